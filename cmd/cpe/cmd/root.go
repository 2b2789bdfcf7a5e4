package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jhoicas/facturador-sunat/internal/application/billing"
	"github.com/jhoicas/facturador-sunat/internal/application/dto"
	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	"github.com/jhoicas/facturador-sunat/internal/infrastructure/postgres"
	infrasunat "github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat"
	"github.com/jhoicas/facturador-sunat/pkg/config"
	"github.com/jhoicas/facturador-sunat/pkg/logger"
)

var version = "0.1.0"

// globalOptions flags compartidos por todos los comandos.
type globalOptions struct {
	environment string
	keyPath     string
	certPath    string
	password    string
	verbose     bool

	cfg *config.Config
	log zerolog.Logger
}

// NewRootCommand arma el árbol de comandos de cpe.
func NewRootCommand() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "cpe",
		Short: "Facturador electrónico SUNAT: firma, envío y consulta de comprobantes",
		Long: `cpe genera el XML UBL 2.1 de facturas, boletas y notas de crédito, lo firma,
lo empaqueta y lo envía al billService de SUNAT.

Examples:
  # Firmar y empaquetar sin enviar
  cpe sign factura.json --out ./salida

  # Enviar a beta con el certificado de pruebas
  cpe send factura.json --env beta --key emisor.key --cert emisor.crt

  # Consultar la CDR de un comprobante cuyo envío quedó sin respuesta
  cpe status 20123456789 01 F001 123

  # Reenviar el XML firmado de una transmisión FAILED o NOT_FOUND (requiere DB)
  cpe retry 0d7f1f7e-8c8a-4d3b-9a55-3c2b8a2b6c11

  # Revisar un certificado .p12
  cpe inspect-cert --cert emisor.p12 --password secreto`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			g.cfg = cfg
			level := cfg.App.LogLevel
			if g.verbose {
				level = "debug"
			}
			g.log = logger.New(logger.Config{Env: "development", Level: level, Out: cmd.ErrOrStderr()}).Zerolog()
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&g.environment, "env", "e", "", "Entorno SUNAT: beta | prod (env: SUNAT_ENV)")
	root.PersistentFlags().StringVar(&g.keyPath, "key", "", "Llave privada PEM (reemplaza SUNAT_KEY_PATH_*)")
	root.PersistentFlags().StringVar(&g.certPath, "cert", "", "Certificado PEM/DER o .p12 (reemplaza SUNAT_CERT_PATH_*)")
	root.PersistentFlags().StringVar(&g.password, "password", "", "Contraseña del .p12 (env: SUNAT_CERT_PASSWORD)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log detallado (transiciones del cliente SOAP)")

	root.AddCommand(
		newSignCommand(g),
		newSendCommand(g),
		newStatusCommand(g),
		newRetryCommand(g),
		newVerifyCommand(g),
		newInspectCertCommand(g),
	)
	return root
}

// Execute corre cpe con los argumentos del proceso.
func Execute() error {
	return NewRootCommand().Execute()
}

// target resuelve el destino del RUC emisor; signingOnly no exige usuario SOL.
func (g *globalOptions) target(issuerRUC string, signingOnly bool) (billing.Target, error) {
	t, err := billing.NewConfigTargets(g.cfg.SUNAT).Resolve(billing.TargetOverrides{
		IssuerRUC:   issuerRUC,
		Environment: g.environment,
		KeyPath:     g.keyPath,
		CertPath:    g.certPath,
		SigningOnly: signingOnly,
	})
	if err != nil {
		return t, err
	}
	if g.password != "" {
		t.Material.Password = g.password
	}
	return t, nil
}

func (g *globalOptions) orchestrator(opts ...billing.OrchestratorOption) *billing.SunatOrchestrator {
	client := infrasunat.NewSOAPClient(
		infrasunat.WithTimeout(g.cfg.SUNAT.Timeout),
		infrasunat.WithLogger(g.log.With().Str("component", "soap").Logger()),
	)
	opts = append([]billing.OrchestratorOption{billing.WithOrchestratorLogger(g.log)}, opts...)
	return billing.NewSunatOrchestrator(client, opts...)
}

// auditedOrchestrator abre la base de auditoría (DATABASE_URL / DB_*); el llamador cierra el pool.
func (g *globalOptions) auditedOrchestrator(ctx context.Context) (*billing.SunatOrchestrator, func(), error) {
	if !g.cfg.DB.Enabled() {
		return nil, nil, fmt.Errorf("%w: defina DATABASE_URL o DB_HOST", billing.ErrAuditDisabled)
	}
	pool, err := postgres.NewPool(ctx, g.cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	o := g.orchestrator(billing.WithTransmissionRepository(postgres.NewTransmissionRepository(pool)))
	return o, pool.Close, nil
}

// readDocument lee el JSON del comprobante (ruta o "-" para stdin).
func readDocument(cmd *cobra.Command, path string) (*sunat.DocumentRequest, *dto.SendOptionsDTO, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		r = f
	}
	var in dto.DocumentRequest
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, nil, fmt.Errorf("leer %s: %w", path, err)
	}
	req, err := in.ToDomain()
	return req, in.Options, err
}

// applyOptions los flags tienen prioridad sobre las opciones del JSON.
func (g *globalOptions) applyOptions(o *dto.SendOptionsDTO) {
	if o == nil {
		return
	}
	if g.environment == "" {
		g.environment = o.Environment
	}
	if g.keyPath == "" {
		g.keyPath = o.PrivateKeyPath
	}
	if g.certPath == "" {
		g.certPath = o.CertificatePath
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
