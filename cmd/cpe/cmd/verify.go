package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat/signer"
)

func newVerifyCommand(g *globalOptions) *cobra.Command {
	var exclusive bool
	c := &cobra.Command{
		Use:   "verify [firmado.xml]",
		Short: "Verifica la firma de un XML firmado (digest y RSA-SHA256)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var opts []signer.Option
			if exclusive {
				opts = append(opts, signer.WithCanonicalizer(signer.NewExclusiveCanonicalizer()))
			}
			v, err := signer.NewDigitalSignatureService(opts...).Verify(data)
			if err != nil {
				return err
			}
			g.log.Debug().Str("digest", v.DigestValue).Msg("firma válida")
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"status":       "VALID",
				"digest_value": v.DigestValue,
				"subject":      v.Certificate.Subject.String(),
			})
		},
	}
	c.Flags().BoolVar(&exclusive, "exclusive", false, "Usar C14N exclusivo")
	return c
}
