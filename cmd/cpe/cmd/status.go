package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jhoicas/facturador-sunat/internal/application/billing"
	"github.com/jhoicas/facturador-sunat/internal/application/dto"
	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

func newStatusCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status RUC TIPO SERIE CORRELATIVO",
		Short: "Consulta la CDR de un comprobante (getStatusCdr)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := sunat.ParseDocumentKind(args[1])
			if err != nil {
				return err
			}
			target, err := g.target(args[0], false)
			if err != nil {
				return err
			}
			out, err := g.orchestrator().QueryStatus(cmd.Context(), billing.StatusQuery{
				RUC:         args[0],
				Kind:        kind,
				Series:      args[2],
				Correlative: args[3],
			}, target)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.NewOutcomeResponse(out))
		},
	}
}
