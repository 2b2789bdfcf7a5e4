package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturador-sunat/internal/domain/entity"
	"github.com/jhoicas/facturador-sunat/internal/domain/repository"
	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	infrasunat "github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat"
	"github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat/signer"
	pkgsunat "github.com/jhoicas/facturador-sunat/pkg/sunat"
)

// Target destino de un envío: entorno, endpoints, credenciales SOL y material de firma.
// Viaja con cada llamada; el orquestador no lee configuración.
type Target struct {
	Environment     string // beta | prod
	Endpoint        string // vacío = billService oficial del entorno
	ConsultEndpoint string // vacío = billConsultService oficial
	Credentials     infrasunat.Credentials
	Material        sunat.SigningMaterial
}

func (t Target) billEndpoint() string {
	if t.Endpoint != "" {
		return t.Endpoint
	}
	return infrasunat.BillURL(t.Environment)
}

// Prepared comprobante firmado y empaquetado, listo para enviar. Inmutable.
type Prepared struct {
	Request *sunat.DocumentRequest
	Name    string // {ruc}-{tipo}-{serie}-{correlativo}
	Signed  *signer.SignedDocument
	Package *infrasunat.Package
}

// SunatOrchestrator orquesta el ciclo completo de un comprobante electrónico:
//
//	XML UBL 2.1 → Firma XMLDSig → Verificación → ZIP → sendBill → CDR → auditoría
//
// Solo guarda dependencias inmutables: es seguro para uso concurrente. Nunca reintenta;
// un TransportError con OutcomeUnknown se resuelve con QueryStatus antes de reenviar.
type SunatOrchestrator struct {
	builder     *infrasunat.XMLBuilderService
	signer      *signer.DigitalSignatureService
	submitter   infrasunat.BillSubmitter
	interpreter *infrasunat.Interpreter
	repo        repository.TransmissionRepository // nil = sin auditoría
	log         zerolog.Logger
}

// OrchestratorOption configura el orquestador.
type OrchestratorOption func(*SunatOrchestrator)

// WithTransmissionRepository registra cada envío en el repositorio de auditoría.
func WithTransmissionRepository(r repository.TransmissionRepository) OrchestratorOption {
	return func(o *SunatOrchestrator) { o.repo = r }
}

// WithSignatureService reemplaza el servicio de firma (ej: C14N exclusivo).
func WithSignatureService(s *signer.DigitalSignatureService) OrchestratorOption {
	return func(o *SunatOrchestrator) { o.signer = s }
}

// WithOrchestratorLogger define el logger.
func WithOrchestratorLogger(l zerolog.Logger) OrchestratorOption {
	return func(o *SunatOrchestrator) { o.log = l }
}

// NewSunatOrchestrator construye el orquestador. submitter puede ser nil si solo se firma.
func NewSunatOrchestrator(submitter infrasunat.BillSubmitter, opts ...OrchestratorOption) *SunatOrchestrator {
	o := &SunatOrchestrator{
		builder:     infrasunat.NewXMLBuilderService(),
		signer:      signer.NewDigitalSignatureService(),
		submitter:   submitter,
		interpreter: infrasunat.NewInterpreter(),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Prepare genera, firma, verifica y empaqueta el comprobante. No toca la red.
func (o *SunatOrchestrator) Prepare(ctx context.Context, req *sunat.DocumentRequest, material sunat.SigningMaterial) (*Prepared, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: solicitud vacía", sunat.ErrInvalidDocument)
	}
	if !pkgsunat.RUCCheckDigitValid(req.Issuer.DocumentID) {
		o.log.Warn().Str("ruc", req.Issuer.DocumentID).Msg("sunat: dígito verificador del RUC emisor no válido")
	}

	xmlBytes, err := o.builder.Build(req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signed, err := o.signer.SignFiles(xmlBytes, material)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Autoverificación: un documento que no verifica localmente tampoco pasará en SUNAT.
	v, err := o.signer.Verify(signed.XML)
	if err != nil {
		return nil, err
	}
	if v.DigestValue != signed.Signature.DigestValue {
		return nil, &sunat.SigningError{Op: "verificar", Err: signer.ErrSignatureInvalid}
	}

	name, err := infrasunat.FileNameFor(req)
	if err != nil {
		return nil, err
	}
	pkg, err := infrasunat.BuildPackage(name, signed.XML)
	if err != nil {
		return nil, err
	}

	o.log.Debug().
		Str("file", pkg.ZipName()).
		Str("digest", signed.Signature.DigestValue).
		Msg("sunat: comprobante firmado y empaquetado")
	return &Prepared{Request: req, Name: name, Signed: signed, Package: pkg}, nil
}

// Submit envía el paquete e interpreta la respuesta.
//
// Un rechazo de SUNAT es un Outcome (error nil). Los errores de transporte o autenticación
// se devuelven tal cual; si hay repositorio, la transmisión queda en FAILED o UNKNOWN.
func (o *SunatOrchestrator) Submit(ctx context.Context, p *Prepared, target Target) (*sunat.Outcome, error) {
	if o.submitter == nil {
		return nil, errors.New("sunat: orquestador sin cliente de envío")
	}
	if p == nil || p.Package == nil {
		return nil, fmt.Errorf("%w: paquete vacío", sunat.ErrInvalidDocument)
	}
	endpoint := target.billEndpoint()
	log := o.log.With().Str("file", p.Package.ZipName()).Str("endpoint", endpoint).Logger()

	tx, err := o.recordPending(ctx, p, target)
	if err != nil {
		return nil, err
	}
	return o.transmit(ctx, log, tx, p.Package, target.Credentials, endpoint)
}

// transmit llama a sendBill, interpreta la respuesta y cierra el registro de auditoría (si hay).
func (o *SunatOrchestrator) transmit(ctx context.Context, log zerolog.Logger, tx *entity.SunatTransmission,
	pkg *infrasunat.Package, cred infrasunat.Credentials, endpoint string) (*sunat.Outcome, error) {
	raw, err := o.submitter.SendBill(ctx, infrasunat.SendBillRequest{
		Endpoint:    endpoint,
		Credentials: cred,
		FileName:    pkg.ZipName(),
		Content:     pkg.Content,
	})
	if err != nil {
		status := entity.TransmissionFailed
		if sunat.IsOutcomeUnknown(err) {
			status = entity.TransmissionUnknown
			log.Warn().Err(err).Msg("sunat: resultado desconocido, consultar estado antes de reenviar")
		} else {
			log.Error().Err(err).Msg("sunat: envío fallido")
		}
		if tx != nil {
			tx.Status = status
			tx.ErrorMessage = err.Error()
			o.saveResult(ctx, log, tx)
		}
		return nil, err
	}

	out := o.interpreter.Interpret(raw)
	log.Info().
		Str("submission_id", out.SubmissionID).
		Str("state", string(out.Status)).
		Str("code", out.Code).
		Str("digest", out.CDRDigest).
		Int("notes", len(out.Notes)).
		Msg("sunat: respuesta interpretada")

	if tx != nil {
		tx.SubmissionID = out.SubmissionID
		applyOutcome(tx, out)
		o.saveResult(ctx, log, tx)
	}
	return out, nil
}

// Send ejecuta Prepare y Submit con el material de firma del destino.
func (o *SunatOrchestrator) Send(ctx context.Context, req *sunat.DocumentRequest, target Target) (*Prepared, *sunat.Outcome, error) {
	p, err := o.Prepare(ctx, req, target.Material)
	if err != nil {
		return nil, nil, err
	}
	out, err := o.Submit(ctx, p, target)
	return p, out, err
}

// StatusQuery identifica un comprobante ya enviado.
type StatusQuery struct {
	RUC         string
	Kind        sunat.DocumentKind
	Series      string
	Correlative string
}

// QueryStatus consulta la CDR en billConsultService. Si el último envío registrado quedó en
// UNKNOWN y SUNAT ya tiene una respuesta definitiva, la auditoría se concilia; NOT_FOUND
// deja la transmisión lista para Retry.
func (o *SunatOrchestrator) QueryStatus(ctx context.Context, q StatusQuery, target Target) (*sunat.Outcome, error) {
	if o.submitter == nil {
		return nil, errors.New("sunat: orquestador sin cliente de envío")
	}
	code, err := q.Kind.Code()
	if err != nil {
		return nil, err
	}
	if err := pkgsunat.ValidateRUC(q.RUC); err != nil {
		return nil, fmt.Errorf("%w: %v", sunat.ErrInvalidDocument, err)
	}
	series := strings.ToUpper(q.Series)
	correlative := sunat.NormalizeCorrelative(q.Correlative)

	raw, err := o.submitter.GetStatusCdr(ctx, infrasunat.StatusRequest{
		Endpoint:     target.ConsultEndpoint,
		Credentials:  target.Credentials,
		RUC:          q.RUC,
		DocumentType: code,
		Series:       series,
		Number:       correlative,
	})
	if err != nil {
		return nil, err
	}
	out := o.interpreter.InterpretStatus(raw)
	o.log.Info().
		Str("submission_id", out.SubmissionID).
		Str("state", string(out.Status)).
		Str("code", out.Code).
		Msgf("sunat: estado de %s-%s-%s", code, series, correlative)

	if o.repo != nil && out.Status != sunat.StatusMalformed {
		tx, err := o.repo.GetLatestByDocument(ctx, q.RUC, code, series, correlative)
		if err != nil {
			o.log.Error().Err(err).Msg("sunat: no se pudo leer la auditoría para conciliar")
		} else if tx != nil && tx.Status == entity.TransmissionUnknown {
			applyOutcome(tx, out)
			o.saveResult(ctx, o.log, tx)
		}
	}
	return out, nil
}

func (o *SunatOrchestrator) recordPending(ctx context.Context, p *Prepared, target Target) (*entity.SunatTransmission, error) {
	if o.repo == nil {
		return nil, nil
	}
	code, err := p.Request.Kind.Code()
	if err != nil {
		return nil, err
	}
	tx := &entity.SunatTransmission{
		Environment:  target.Environment,
		IssuerRUC:    p.Request.Issuer.DocumentID,
		DocumentType: code,
		Series:       strings.ToUpper(p.Request.Series),
		Correlative:  sunat.NormalizeCorrelative(p.Request.Correlative),
		FileName:     p.Package.ZipName(),
		Status:       entity.TransmissionPending,
		DigestValue:  p.Signed.Signature.DigestValue,
		GrandTotal:   p.Request.Totals.GrandTotal,
		SignedXML:    p.Signed.XML,
	}
	if err := o.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("registrar transmisión: %w", err)
	}
	return tx, nil
}

// saveResult persiste el resultado aunque el contexto del llamador ya se haya cancelado.
func (o *SunatOrchestrator) saveResult(ctx context.Context, log zerolog.Logger, tx *entity.SunatTransmission) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.repo.Update(ctx, tx); err != nil {
		log.Error().Err(err).Str("transmission_id", tx.ID).Msg("sunat: no se pudo actualizar la auditoría")
	}
}

func applyOutcome(tx *entity.SunatTransmission, out *sunat.Outcome) {
	switch out.Status {
	case sunat.StatusAccepted:
		tx.Status = entity.TransmissionAccepted
	case sunat.StatusRejected:
		tx.Status = entity.TransmissionRejected
	case sunat.StatusNotFound:
		tx.Status = entity.TransmissionNotFound
	default:
		// Respuesta ilegible: SUNAT pudo haberlo registrado.
		tx.Status = entity.TransmissionUnknown
	}
	tx.ResponseCode = out.Code
	tx.Description = out.Description
	tx.Ticket = out.Ticket
	tx.CDRDigest = out.CDRDigest
	tx.CDR = out.CDR
}
