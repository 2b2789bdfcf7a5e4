package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de una transmisión a SUNAT.
const (
	TransmissionPending  = "PENDING"   // Registrada antes de llamar al billService
	TransmissionAccepted = "ACCEPTED"  // CDR con código 0 o observaciones (≥ 4000)
	TransmissionRejected = "REJECTED"  // Rechazo de negocio (2000-3999) o excepción (< 2000)
	TransmissionFailed   = "FAILED"    // No entregado: seguro reenviar
	TransmissionUnknown  = "UNKNOWN"   // Resultado desconocido: consultar getStatusCdr antes de reenviar
	TransmissionNotFound = "NOT_FOUND" // getStatusCdr confirmó que SUNAT no lo registró: seguro reenviar
	TransmissionRetrying = "RETRYING"  // Reenvío del XML firmado en curso
)

// Retryable indica si el estado permite reenviar el XML firmado guardado.
func Retryable(status string) bool {
	return status == TransmissionFailed || status == TransmissionNotFound
}

// SunatTransmission registro de auditoría de un envío al billService.
type SunatTransmission struct {
	ID           string
	SubmissionID string
	Environment  string // beta | prod
	IssuerRUC    string
	DocumentType string // 01, 03, 07
	Series       string
	Correlative  string
	FileName     string
	Status       string
	ResponseCode string
	Description  string
	Ticket       string // cbc:ID de la CDR
	DigestValue  string // DigestValue de la firma del comprobante
	CDRDigest    string
	GrandTotal   decimal.Decimal
	ErrorMessage string
	SignedXML    []byte
	CDR          []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
