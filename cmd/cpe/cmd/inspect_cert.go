package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat/signer"
)

func newInspectCertCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect-cert",
		Short: "Diagnostica el material de firma: lectura, contraseña, par llave/certificado y vigencia",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := g.target(g.cfg.SUNAT.RUC, true)
			if err != nil {
				return err
			}
			m, err := signer.LoadMaterial(target.Material)
			if err != nil {
				return err
			}
			defer m.Close()

			cert := m.Certificate()
			fp := sha256.Sum256(cert.Raw)
			now := time.Now()
			status := "VIGENTE"
			switch {
			case now.Before(cert.NotBefore):
				status = "AUN_NO_VIGENTE"
			case now.After(cert.NotAfter):
				status = "VENCIDO"
			}
			if err := printJSON(cmd.OutOrStdout(), map[string]string{
				"subject":     cert.Subject.String(),
				"issuer":      cert.Issuer.String(),
				"serial":      cert.SerialNumber.String(),
				"not_before":  cert.NotBefore.Format(time.RFC3339),
				"not_after":   cert.NotAfter.Format(time.RFC3339),
				"sha256":      hex.EncodeToString(fp[:]),
				"status":      status,
				"environment": target.Environment,
			}); err != nil {
				return err
			}
			if status != "VIGENTE" {
				return fmt.Errorf("certificado %s", status)
			}
			return nil
		},
	}
}
