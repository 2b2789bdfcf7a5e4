package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jhoicas/facturador-sunat/internal/application/dto"
	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

func newSendCommand(g *globalOptions) *cobra.Command {
	var (
		outDir   string
		endpoint string
	)
	c := &cobra.Command{
		Use:   "send [documento.json]",
		Short: "Firma y envía un comprobante al billService",
		Long: `Firma el comprobante, lo envía con sendBill e imprime la CDR interpretada.
Nunca reintenta: si el resultado es desconocido, consulte con "cpe status" antes de reenviar.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, opts, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			g.applyOptions(opts)
			target, err := g.target(req.Issuer.DocumentID, false)
			if err != nil {
				return err
			}
			if endpoint != "" {
				target.Endpoint = endpoint
			}
			p, out, err := g.orchestrator().Send(cmd.Context(), req, target)
			if err != nil {
				if sunat.IsOutcomeUnknown(err) {
					return fmt.Errorf("%w\nconsulte el estado con: cpe status %s %s %s %s",
						err, req.Issuer.DocumentID, mustCode(req.Kind), req.Series, sunat.NormalizeCorrelative(req.Correlative))
				}
				return err
			}
			if len(out.CDR) > 0 && outDir != "" {
				path := filepath.Join(outDir, "R-"+p.Package.XMLName())
				if err := os.WriteFile(path, out.CDR, 0o644); err != nil {
					return err
				}
			}
			if err := printJSON(cmd.OutOrStdout(), dto.NewOutcomeResponse(out)); err != nil {
				return err
			}
			if !out.Accepted() {
				return errors.New("comprobante no aceptado: " + string(out.Status))
			}
			return nil
		},
	}
	c.Flags().StringVarP(&outDir, "out", "o", "", "Directorio donde guardar la CDR (R-*.xml)")
	c.Flags().StringVar(&endpoint, "endpoint", "", "URL del billService (reemplaza la del entorno)")
	return c
}

func mustCode(k sunat.DocumentKind) string {
	code, _ := k.Code()
	return code
}
