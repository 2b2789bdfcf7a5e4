package dto

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturador-sunat/internal/domain/entity"
	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

// DocumentRequest body de POST /api/sunat/documents y del comando cpe sign/send.
type DocumentRequest struct {
	Kind        string          `json:"kind"` // invoice | receipt | creditNote o 01 | 03 | 07
	Issuer      PartyDTO        `json:"issuer"`
	Customer    PartyDTO        `json:"customer"`
	Series      string          `json:"series"`
	Correlative string          `json:"correlative"`
	Currency    string          `json:"currency,omitempty"`
	IssueDate   string          `json:"issue_date"`         // RFC3339 o YYYY-MM-DD
	DueDate     string          `json:"due_date,omitempty"` // RFC3339 o YYYY-MM-DD
	PaymentForm string          `json:"payment_form,omitempty"`
	Lines       []LineDTO       `json:"lines"`
	Totals      TotalsDTO       `json:"totals"`
	Legends     []LegendDTO     `json:"legends,omitempty"`
	Reference   *ReferenceDTO   `json:"reference,omitempty"`
	Options     *SendOptionsDTO `json:"options,omitempty"`
}

// SendOptionsDTO overrides por petición del entorno y del material de firma.
type SendOptionsDTO struct {
	Environment     string `json:"environment,omitempty"` // beta | prod
	PrivateKeyPath  string `json:"private_key_path,omitempty"`
	CertificatePath string `json:"certificate_path,omitempty"`
}

// PartyDTO emisor o adquirente.
type PartyDTO struct {
	DocumentType string      `json:"document_type"`
	DocumentID   string      `json:"document_id"`
	LegalName    string      `json:"legal_name"`
	TradeName    string      `json:"trade_name,omitempty"`
	Address      *AddressDTO `json:"address,omitempty"`
}

// AddressDTO domicilio fiscal.
type AddressDTO struct {
	Ubigeo            string `json:"ubigeo"`
	Street            string `json:"street"`
	District          string `json:"district,omitempty"`
	Province          string `json:"province,omitempty"`
	Department        string `json:"department,omitempty"`
	CountryCode       string `json:"country_code,omitempty"`
	EstablishmentCode string `json:"establishment_code,omitempty"`
}

// LineDTO línea con importes ya calculados.
type LineDTO struct {
	Code          string          `json:"code,omitempty"`
	Description   string          `json:"description"`
	UnitCode      string          `json:"unit_code,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Affectation   string          `json:"affectation,omitempty"`
	TaxPercent    decimal.Decimal `json:"tax_percent"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	SerialNumbers []string        `json:"serial_numbers,omitempty"`
}

// TotalsDTO importes globales.
type TotalsDTO struct {
	TaxableBase decimal.Decimal `json:"taxable_base"`
	TaxTotal    decimal.Decimal `json:"tax_total"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
}

// LegendDTO leyenda catálogo 52.
type LegendDTO struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// ReferenceDTO documento afectado por la nota de crédito.
type ReferenceDTO struct {
	Kind        string `json:"kind"`
	Series      string `json:"series"`
	Correlative string `json:"correlative"`
	ReasonCode  string `json:"reason_code"`
	Reason      string `json:"reason"`
}

// ToDomain convierte el body en la solicitud del dominio. Solo valida formato; las reglas
// del comprobante las aplica el generador de XML.
func (in *DocumentRequest) ToDomain() (*sunat.DocumentRequest, error) {
	kind, err := sunat.ParseDocumentKind(in.Kind)
	if err != nil {
		return nil, err
	}
	issued, err := parseDate(in.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("%w: issue_date: %v", sunat.ErrInvalidDocument, err)
	}
	req := &sunat.DocumentRequest{
		Kind:        kind,
		Issuer:      in.Issuer.toDomain(),
		Customer:    in.Customer.toDomain(),
		Series:      strings.TrimSpace(in.Series),
		Correlative: strings.TrimSpace(in.Correlative),
		Currency:    in.Currency,
		IssueDate:   issued,
		PaymentForm: in.PaymentForm,
		Totals: sunat.Totals{
			TaxableBase: in.Totals.TaxableBase,
			TaxTotal:    in.Totals.TaxTotal,
			GrandTotal:  in.Totals.GrandTotal,
		},
	}
	if in.DueDate != "" {
		due, err := parseDate(in.DueDate)
		if err != nil {
			return nil, fmt.Errorf("%w: due_date: %v", sunat.ErrInvalidDocument, err)
		}
		req.DueDate = &due
	}
	for _, l := range in.Lines {
		req.Lines = append(req.Lines, sunat.LineItem{
			Code:          l.Code,
			Description:   l.Description,
			UnitCode:      l.UnitCode,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			Affectation:   l.Affectation,
			TaxPercent:    l.TaxPercent,
			TaxAmount:     l.TaxAmount,
			Subtotal:      l.Subtotal,
			SerialNumbers: l.SerialNumbers,
		})
	}
	for _, lg := range in.Legends {
		req.Legends = append(req.Legends, sunat.Legend{Code: lg.Code, Value: lg.Value})
	}
	if r := in.Reference; r != nil {
		refKind, err := sunat.ParseDocumentKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: reference.kind: %v", sunat.ErrInvalidDocument, err)
		}
		req.Reference = &sunat.Reference{
			DocumentKind: refKind,
			Series:       r.Series,
			Correlative:  r.Correlative,
			ReasonCode:   r.ReasonCode,
			Reason:       r.Reason,
		}
	}
	return req, nil
}

func (p PartyDTO) toDomain() sunat.Party {
	party := sunat.Party{
		DocumentType: p.DocumentType,
		DocumentID:   strings.TrimSpace(p.DocumentID),
		LegalName:    p.LegalName,
		TradeName:    p.TradeName,
	}
	if a := p.Address; a != nil {
		party.Address = &sunat.Address{
			Ubigeo:            a.Ubigeo,
			Street:            a.Street,
			District:          a.District,
			Province:          a.Province,
			Department:        a.Department,
			CountryCode:       a.CountryCode,
			EstablishmentCode: a.EstablishmentCode,
		}
	}
	return party
}

var peruLocation = time.FixedZone("PET", -5*60*60)

// parseDate acepta RFC3339 o YYYY-MM-DD (hora de Lima).
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("fecha requerida")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, s, peruLocation)
}

// NoteDTO observación de la CDR.
type NoteDTO struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// OutcomeResponse resultado de un envío o de una consulta de estado.
type OutcomeResponse struct {
	SubmissionID string    `json:"submission_id,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
	Status       string    `json:"status"`
	Code         string    `json:"code,omitempty"`
	Description  string    `json:"description,omitempty"`
	ReferenceID  string    `json:"reference_id,omitempty"`
	Ticket       string    `json:"ticket,omitempty"`
	Notes        []NoteDTO `json:"notes,omitempty"`
	Exception    bool      `json:"exception,omitempty"`
	CDRDigest    string    `json:"cdr_digest,omitempty"`
	CDR          string    `json:"cdr_base64,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// NewOutcomeResponse mapea el Outcome del dominio.
func NewOutcomeResponse(o *sunat.Outcome) OutcomeResponse {
	r := OutcomeResponse{
		SubmissionID: o.SubmissionID,
		FileName:     o.FileName,
		Status:       string(o.Status),
		Code:         o.Code,
		Description:  o.Description,
		ReferenceID:  o.ReferenceID,
		Ticket:       o.Ticket,
		Exception:    o.Exception,
		CDRDigest:    o.CDRDigest,
		ReceivedAt:   o.ReceivedAt,
	}
	if len(o.CDR) > 0 {
		r.CDR = base64.StdEncoding.EncodeToString(o.CDR)
	}
	for _, n := range o.Notes {
		r.Notes = append(r.Notes, NoteDTO{Code: n.Code, Message: n.Message})
	}
	return r
}

// SignedDocumentResponse respuesta de POST /api/sunat/documents/sign.
type SignedDocumentResponse struct {
	FileName    string `json:"file_name"`
	DigestValue string `json:"digest_value"`
	SignedXML   string `json:"signed_xml_base64"`
	Zip         string `json:"zip_base64"`
}

// SendDocumentResponse respuesta de POST /api/sunat/documents.
type SendDocumentResponse struct {
	FileName    string          `json:"file_name"`
	DigestValue string          `json:"digest_value"`
	Outcome     OutcomeResponse `json:"outcome"`
}

// TransmissionResponse registro de auditoría de un envío (sin XML ni CDR).
type TransmissionResponse struct {
	ID           string          `json:"id"`
	SubmissionID string          `json:"submission_id,omitempty"`
	Environment  string          `json:"environment"`
	IssuerRUC    string          `json:"issuer_ruc"`
	DocumentType string          `json:"document_type"`
	Series       string          `json:"series"`
	Correlative  string          `json:"correlative"`
	FileName     string          `json:"file_name"`
	Status       string          `json:"status"`
	Retryable    bool            `json:"retryable"`
	ResponseCode string          `json:"response_code,omitempty"`
	Description  string          `json:"description,omitempty"`
	Ticket       string          `json:"ticket,omitempty"`
	DigestValue  string          `json:"digest_value,omitempty"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewTransmissionResponse mapea la entidad de auditoría.
func NewTransmissionResponse(t *entity.SunatTransmission) TransmissionResponse {
	return TransmissionResponse{
		ID:           t.ID,
		SubmissionID: t.SubmissionID,
		Environment:  t.Environment,
		IssuerRUC:    t.IssuerRUC,
		DocumentType: t.DocumentType,
		Series:       t.Series,
		Correlative:  t.Correlative,
		FileName:     t.FileName,
		Status:       t.Status,
		Retryable:    entity.Retryable(t.Status),
		ResponseCode: t.ResponseCode,
		Description:  t.Description,
		Ticket:       t.Ticket,
		DigestValue:  t.DigestValue,
		GrandTotal:   t.GrandTotal,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}
