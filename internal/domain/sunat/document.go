// Package sunat contiene el modelo de dominio de los comprobantes de pago electrónicos (CPE)
// que se firman y envían a SUNAT (Perú): factura, boleta y nota de crédito.
package sunat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgsunat "github.com/jhoicas/facturador-sunat/pkg/sunat"
)

// DocumentKind es la variante del comprobante. El builder hace switch sobre este valor.
type DocumentKind string

const (
	KindInvoice    DocumentKind = "invoice"    // Factura (01)
	KindReceipt    DocumentKind = "receipt"    // Boleta de venta (03)
	KindCreditNote DocumentKind = "creditNote" // Nota de crédito (07)
)

// Code devuelve el código de dos dígitos del catálogo 01.
func (k DocumentKind) Code() (string, error) {
	switch k {
	case KindInvoice:
		return pkgsunat.DocTypeFactura, nil
	case KindReceipt:
		return pkgsunat.DocTypeBoleta, nil
	case KindCreditNote:
		return pkgsunat.DocTypeNotaCredito, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedDocumentKind, string(k))
}

// ParseDocumentKind acepta el nombre de la variante ("invoice", "factura"...) o su código ("01", "03", "07").
func ParseDocumentKind(s string) (DocumentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "invoice", "factura", pkgsunat.DocTypeFactura:
		return KindInvoice, nil
	case "receipt", "boleta", pkgsunat.DocTypeBoleta:
		return KindReceipt, nil
	case "creditnote", "credit_note", "nota_credito", pkgsunat.DocTypeNotaCredito:
		return KindCreditNote, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedDocumentKind, s)
}

// Address domicilio fiscal del emisor (ubigeo INEI de 6 dígitos).
type Address struct {
	Ubigeo            string
	Street            string
	District          string
	Province          string
	Department        string
	CountryCode       string // ISO 3166-1, por defecto PE
	EstablishmentCode string // código de anexo SUNAT, por defecto 0000
}

// Party identifica al emisor o al adquirente.
type Party struct {
	DocumentType string // catálogo 06 (6 = RUC, 1 = DNI...)
	DocumentID   string
	LegalName    string
	TradeName    string
	Address      *Address
}

// LineItem línea del comprobante. Los importes llegan calculados por el llamador.
type LineItem struct {
	Code          string
	Description   string
	UnitCode      string // catálogo 03 (NIU, ZZ...)
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal // valor unitario sin impuestos
	Affectation   string          // catálogo 07, por defecto 10 (gravado)
	TaxPercent    decimal.Decimal // 18 para IGV
	TaxAmount     decimal.Decimal
	Subtotal      decimal.Decimal // valor de venta de la línea (sin impuestos)
	SerialNumbers []string
}

// Totals importes globales del comprobante.
type Totals struct {
	TaxableBase decimal.Decimal
	TaxTotal    decimal.Decimal
	GrandTotal  decimal.Decimal
}

// Legend leyenda del comprobante (catálogo 52).
type Legend struct {
	Code  string
	Value string
}

// Reference documento afectado por una nota de crédito.
type Reference struct {
	DocumentKind DocumentKind
	Series       string
	Correlative  string
	ReasonCode   string // catálogo 09
	Reason       string
}

// ID devuelve "{serie}-{correlativo}" del documento afectado.
func (r Reference) ID() string {
	return r.Series + "-" + NormalizeCorrelative(r.Correlative)
}

// DocumentRequest datos ya resueltos que recibe el núcleo para generar un comprobante.
type DocumentRequest struct {
	Kind        DocumentKind
	Issuer      Party
	Customer    Party
	Series      string
	Correlative string
	Currency    string // ISO 4217, por defecto PEN
	IssueDate   time.Time
	DueDate     *time.Time
	PaymentForm string // Contado | Credito
	Lines       []LineItem
	Totals      Totals
	Legends     []Legend
	Reference   *Reference // obligatorio para nota de crédito
}

// CurrencyCode devuelve la moneda del comprobante en mayúsculas (PEN si viene vacía).
func (r *DocumentRequest) CurrencyCode() string {
	if c := strings.ToUpper(strings.TrimSpace(r.Currency)); c != "" {
		return c
	}
	return pkgsunat.CurrencyPEN
}

// DocumentID devuelve el identificador externo "{serie}-{correlativo}".
func (r *DocumentRequest) DocumentID() string {
	return r.Series + "-" + NormalizeCorrelative(r.Correlative)
}

// NormalizeCorrelative quita los ceros a la izquierda de un correlativo numérico ("00000123" -> "123").
// Si no es numérico se devuelve sin cambios para que la validación lo rechace.
func NormalizeCorrelative(c string) string {
	c = strings.TrimSpace(c)
	n, err := strconv.ParseUint(c, 10, 64)
	if err != nil {
		return c
	}
	return strconv.FormatUint(n, 10)
}

// SigningMaterial rutas al certificado y a la llave privada del emisor.
// Password solo aplica a contenedores .p12/.pfx.
type SigningMaterial struct {
	KeyPath  string
	CertPath string
	Password string
}
