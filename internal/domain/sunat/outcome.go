package sunat

import "time"

// OutcomeStatus clasificación terminal de una respuesta de SUNAT.
type OutcomeStatus string

const (
	StatusAccepted  OutcomeStatus = "ACCEPTED"
	StatusRejected  OutcomeStatus = "REJECTED"
	StatusMalformed OutcomeStatus = "MALFORMED"
	// StatusNotFound solo lo produce la consulta de estado: SUNAT no tiene el comprobante.
	StatusNotFound OutcomeStatus = "NOT_FOUND"
)

// Note observación de la CDR (códigos 4000 en adelante): el comprobante es aceptado con observaciones.
type Note struct {
	Code    string
	Message string
}

// Outcome resultado de una entrega que sí llegó a SUNAT. Un rechazo es un Outcome, no un error.
type Outcome struct {
	SubmissionID string
	FileName     string
	Status       OutcomeStatus
	Code         string // ResponseCode de la CDR o código del SOAP Fault
	Description  string
	ReferenceID  string // documento al que responde la CDR (ej: F001-123)
	Ticket       string // cbc:ID de la CDR
	Notes        []Note
	Exception    bool // códigos 0100-1999: SUNAT no registró el comprobante
	Raw          []byte
	CDR          []byte
	CDRDigest    string // SHA-256 base64 de la CDR canonicalizada
	ReceivedAt   time.Time
}

// Accepted indica si SUNAT aceptó el comprobante (con o sin observaciones).
func (o *Outcome) Accepted() bool {
	return o != nil && o.Status == StatusAccepted
}

// HasObservations indica si la aceptación vino con observaciones.
func (o *Outcome) HasObservations() bool {
	return o.Accepted() && len(o.Notes) > 0
}
