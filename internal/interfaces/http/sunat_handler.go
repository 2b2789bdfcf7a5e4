package http

import (
	"encoding/base64"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturador-sunat/internal/application/billing"
	"github.com/jhoicas/facturador-sunat/internal/application/dto"
	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

// SunatHandler expone el facturador electrónico SUNAT (protegido).
type SunatHandler struct {
	orch    *billing.SunatOrchestrator
	targets billing.TargetResolver
	log     zerolog.Logger
}

// NewSunatHandler construye el handler.
func NewSunatHandler(orch *billing.SunatOrchestrator, targets billing.TargetResolver, log zerolog.Logger) *SunatHandler {
	return &SunatHandler{orch: orch, targets: targets, log: log}
}

// Send genera, firma y envía el comprobante al billService.
// POST /api/sunat/documents
func (h *SunatHandler) Send(c *fiber.Ctx) error {
	req, target, err := h.parse(c, false)
	if err != nil {
		return h.fail(c, err)
	}
	prepared, out, err := h.orch.Send(c.UserContext(), req, target)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.SendDocumentResponse{
		FileName:    prepared.Package.ZipName(),
		DigestValue: prepared.Signed.Signature.DigestValue,
		Outcome:     dto.NewOutcomeResponse(out),
	})
}

// Sign genera y firma el comprobante sin enviarlo.
// POST /api/sunat/documents/sign
func (h *SunatHandler) Sign(c *fiber.Ctx) error {
	req, target, err := h.parse(c, true)
	if err != nil {
		return h.fail(c, err)
	}
	prepared, err := h.orch.Prepare(c.UserContext(), req, target.Material)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.SignedDocumentResponse{
		FileName:    prepared.Package.ZipName(),
		DigestValue: prepared.Signed.Signature.DigestValue,
		SignedXML:   base64.StdEncoding.EncodeToString(prepared.Signed.XML),
		Zip:         base64.StdEncoding.EncodeToString(prepared.Package.Content),
	})
}

// Status consulta la CDR de un comprobante ya enviado.
// GET /api/sunat/status/:ruc/:kind/:series/:correlative?environment=beta
func (h *SunatHandler) Status(c *fiber.Ctx) error {
	ruc := c.Params("ruc")
	if !h.issuerAllowed(c, ruc) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "el token no autoriza al RUC " + ruc})
	}
	kind, err := sunat.ParseDocumentKind(c.Params("kind"))
	if err != nil {
		return h.fail(c, err)
	}
	target, err := h.targets.Resolve(billing.TargetOverrides{IssuerRUC: ruc, Environment: c.Query("environment")})
	if err != nil {
		return h.fail(c, err)
	}
	out, err := h.orch.QueryStatus(c.UserContext(), billing.StatusQuery{
		RUC:         ruc,
		Kind:        kind,
		Series:      c.Params("series"),
		Correlative: c.Params("correlative"),
	}, target)
	if err != nil {
		return h.fail(c, err)
	}
	if out.Status == sunat.StatusNotFound {
		return c.Status(fiber.StatusNotFound).JSON(dto.NewOutcomeResponse(out))
	}
	return c.JSON(dto.NewOutcomeResponse(out))
}

// Transmission devuelve el registro de auditoría de un envío.
// GET /api/sunat/transmissions/:id
func (h *SunatHandler) Transmission(c *fiber.Ctx) error {
	tx, err := h.orch.Transmission(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if !h.issuerAllowed(c, tx.IssuerRUC) {
		return h.fail(c, errForeignIssuer)
	}
	return c.JSON(dto.NewTransmissionResponse(tx))
}

// Retry reenvía el XML firmado guardado de una transmisión FAILED o NOT_FOUND.
// POST /api/sunat/transmissions/:id/retry
func (h *SunatHandler) Retry(c *fiber.Ctx) error {
	id := c.Params("id")
	tx, err := h.orch.Transmission(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	if !h.issuerAllowed(c, tx.IssuerRUC) {
		return h.fail(c, errForeignIssuer)
	}
	target, err := h.targets.Resolve(billing.TargetOverrides{IssuerRUC: tx.IssuerRUC, Environment: tx.Environment})
	if err != nil {
		return h.fail(c, err)
	}
	out, err := h.orch.Retry(c.UserContext(), id, target)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.NewOutcomeResponse(out))
}

func (h *SunatHandler) parse(c *fiber.Ctx, signingOnly bool) (*sunat.DocumentRequest, billing.Target, error) {
	var in dto.DocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return nil, billing.Target{}, errBadBody
	}
	req, err := in.ToDomain()
	if err != nil {
		return nil, billing.Target{}, err
	}
	if !h.issuerAllowed(c, req.Issuer.DocumentID) {
		return nil, billing.Target{}, errForeignIssuer
	}
	o := billing.TargetOverrides{IssuerRUC: req.Issuer.DocumentID, SigningOnly: signingOnly}
	if opt := in.Options; opt != nil {
		if (opt.PrivateKeyPath != "" || opt.CertificatePath != "") && GetRole(c) != RoleAdmin {
			return nil, billing.Target{}, errPathOverride
		}
		o.Environment = opt.Environment
		o.KeyPath = opt.PrivateKeyPath
		o.CertPath = opt.CertificatePath
	}
	target, err := h.targets.Resolve(o)
	if err != nil {
		return nil, billing.Target{}, err
	}
	return req, target, nil
}

// issuerAllowed un token atado a un RUC solo opera ese RUC; admin sin RUC opera cualquiera.
func (h *SunatHandler) issuerAllowed(c *fiber.Ctx, ruc string) bool {
	tokenRUC := GetRUC(c)
	if tokenRUC == "" {
		return GetRole(c) == RoleAdmin
	}
	return tokenRUC == ruc
}

var (
	errBadBody       = errors.New("cuerpo inválido")
	errForeignIssuer = errors.New("el token no autoriza al RUC emisor")
	errPathOverride  = errors.New("solo admin puede indicar rutas de certificado")
)

// fail traduce los errores del facturador a HTTP.
func (h *SunatHandler) fail(c *fiber.Ctx, err error) error {
	var (
		keyErr  *sunat.KeyReadError
		signErr *sunat.SigningError
		pkgErr  *sunat.PackagingError
		authErr *sunat.AuthenticationError
		trErr   *sunat.TransportError
	)
	status, code := fiber.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, errBadBody):
		status, code = fiber.StatusBadRequest, "INVALID_BODY"
	case errors.Is(err, errForeignIssuer), errors.Is(err, errPathOverride):
		status, code = fiber.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, billing.ErrIssuerNotConfigured):
		status, code = fiber.StatusUnprocessableEntity, "ISSUER_NOT_CONFIGURED"
	case errors.Is(err, billing.ErrMissingCredentials):
		status, code = fiber.StatusBadRequest, "MISSING_CREDENTIALS"
	case errors.Is(err, billing.ErrTransmissionNotFound):
		status, code = fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, billing.ErrNotRetryable):
		status, code = fiber.StatusConflict, "NOT_RETRYABLE"
	case errors.Is(err, billing.ErrAuditDisabled):
		status, code = fiber.StatusNotImplemented, "AUDIT_DISABLED"
	case errors.Is(err, sunat.ErrUnsupportedDocumentKind):
		status, code = fiber.StatusBadRequest, "UNSUPPORTED_KIND"
	case errors.Is(err, sunat.ErrInvalidDocument):
		status, code = fiber.StatusUnprocessableEntity, "VALIDATION"
	case errors.As(err, &keyErr), errors.As(err, &signErr), errors.Is(err, sunat.ErrInsertionPointMissing):
		status, code = fiber.StatusInternalServerError, "SIGNING"
	case errors.As(err, &pkgErr):
		status, code = fiber.StatusInternalServerError, "PACKAGING"
	case errors.As(err, &authErr):
		status, code = fiber.StatusBadGateway, "SUNAT_AUTH"
	case errors.As(err, &trErr) && trErr.OutcomeUnknown:
		status, code = fiber.StatusGatewayTimeout, "OUTCOME_UNKNOWN"
	case errors.As(err, &trErr):
		status, code = fiber.StatusServiceUnavailable, "SUNAT_UNAVAILABLE"
	}
	if status >= fiber.StatusInternalServerError {
		h.log.Error().Err(err).Str("code", code).Str("path", c.Path()).Msg("sunat: petición fallida")
	}
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: err.Error()})
}
