package billing

import (
	"errors"
	"fmt"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	infrasunat "github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat"
	"github.com/jhoicas/facturador-sunat/pkg/config"
)

var (
	// ErrIssuerNotConfigured el RUC emisor no es el RUC con credenciales y certificado configurados.
	ErrIssuerNotConfigured = errors.New("sunat: el RUC emisor no tiene credenciales configuradas")
	// ErrMissingCredentials faltan RUC, usuario o clave SOL del entorno.
	ErrMissingCredentials = errors.New("sunat: faltan credenciales SOL configuradas")
)

// TargetOverrides datos por petición: RUC emisor, entorno y rutas de firma.
type TargetOverrides struct {
	IssuerRUC   string // obligatorio: la firma y el usuario SOL deben ser de este RUC
	Environment string
	KeyPath     string
	CertPath    string
	SigningOnly bool // solo firma: no exige usuario ni clave SOL
}

// TargetResolver construye el Target de un envío a partir de la configuración.
type TargetResolver interface {
	Resolve(o TargetOverrides) (Target, error)
}

// ConfigTargets resuelve destinos desde SunatConfig (BETA / PROD).
type ConfigTargets struct {
	cfg config.SunatConfig
}

var _ TargetResolver = (*ConfigTargets)(nil)

// NewConfigTargets construye el resolvedor.
func NewConfigTargets(cfg config.SunatConfig) *ConfigTargets {
	return &ConfigTargets{cfg: cfg}
}

// Resolve devuelve endpoint, credenciales SOL y material de firma del entorno pedido.
// Falla antes de firmar si el emisor no es el RUC configurado o faltan credenciales.
func (r *ConfigTargets) Resolve(o TargetOverrides) (Target, error) {
	env, ec, err := r.cfg.For(o.Environment)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", sunat.ErrInvalidDocument, err)
	}
	if r.cfg.RUC == "" {
		return Target{}, fmt.Errorf("%w: SUNAT_RUC vacío", ErrMissingCredentials)
	}
	if o.IssuerRUC != r.cfg.RUC {
		return Target{}, fmt.Errorf("%w: %q", ErrIssuerNotConfigured, o.IssuerRUC)
	}
	if !o.SigningOnly && (ec.SolUser == "" || ec.SolPassword == "") {
		return Target{}, fmt.Errorf("%w: entorno %s", ErrMissingCredentials, env)
	}
	endpoint := ec.BillURL
	if endpoint == "" {
		endpoint = infrasunat.BillURL(env)
	}
	t := Target{
		Environment:     env,
		Endpoint:        endpoint,
		ConsultEndpoint: r.cfg.ConsultURL,
		Credentials: infrasunat.Credentials{
			RUC:      r.cfg.RUC,
			User:     ec.SolUser,
			Password: ec.SolPassword,
		},
		Material: sunat.SigningMaterial{
			KeyPath:  ec.KeyPath,
			CertPath: ec.CertPath,
			Password: r.cfg.CertPassword,
		},
	}
	if o.KeyPath != "" {
		t.Material.KeyPath = o.KeyPath
	}
	if o.CertPath != "" {
		t.Material.CertPath = o.CertPath
	}
	return t, nil
}
