package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jhoicas/facturador-sunat/internal/application/dto"
)

func newRetryCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry ID",
		Short: "Reenvía el XML firmado de una transmisión FAILED o NOT_FOUND",
		Long: `Lee la transmisión de la base de auditoría y reenvía su XML firmado sin volver a firmarlo.
Una transmisión UNKNOWN se resuelve antes con "cpe status".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeDB, err := g.auditedOrchestrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			tx, err := o.Transmission(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if g.environment == "" {
				g.environment = tx.Environment
			}
			target, err := g.target(tx.IssuerRUC, false)
			if err != nil {
				return err
			}
			out, err := o.Retry(cmd.Context(), tx.ID, target)
			if err != nil {
				return err
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
}
