package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newSignCommand(g *globalOptions) *cobra.Command {
	var outDir string
	c := &cobra.Command{
		Use:   "sign [documento.json]",
		Short: "Genera, firma y empaqueta un comprobante sin enviarlo",
		Long: `Genera el XML UBL 2.1, lo firma, verifica la firma y guarda
{ruc}-{tipo}-{serie}-{correlativo}.zip (y el .xml firmado) en --out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, opts, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			g.applyOptions(opts)
			target, err := g.target(req.Issuer.DocumentID, true)
			if err != nil {
				return err
			}
			p, err := g.orchestrator().Prepare(cmd.Context(), req, target.Material)
			if err != nil {
				return err
			}
			zipPath, err := p.Package.Save(outDir)
			if err != nil {
				return err
			}
			xmlPath := filepath.Join(outDir, p.Package.XMLName())
			if err := os.WriteFile(xmlPath, p.Signed.XML, 0o644); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"zip":          zipPath,
				"xml":          xmlPath,
				"digest_value": p.Signed.Signature.DigestValue,
			})
		},
	}
	c.Flags().StringVarP(&outDir, "out", "o", ".", "Directorio de salida")
	return c
}
