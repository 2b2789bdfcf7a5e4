// Package sunattest provee comprobantes válidos para pruebas de las capas que consumen el dominio.
package sunattest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	pkgsunat "github.com/jhoicas/facturador-sunat/pkg/sunat"
)

const (
	IssuerRUC   = "20123456789"
	CustomerRUC = "20100000001"
)

var igvRate = decimal.RequireFromString("0.18")

// Issuer emisor de pruebas.
func Issuer() sunat.Party {
	return sunat.Party{
		DocumentType: pkgsunat.IdentityTypeRUC,
		DocumentID:   IssuerRUC,
		LegalName:    "COMERCIAL ANDINA S.A.C.",
		TradeName:    "ANDINA",
		Address: &sunat.Address{
			Ubigeo:     "150101",
			Street:     "AV. AREQUIPA 123",
			District:   "LIMA",
			Province:   "LIMA",
			Department: "LIMA",
		},
	}
}

// Line construye una línea gravada con IGV 18% a partir de cantidad y valor unitario.
func Line(code, description string, qty, unitPrice string) sunat.LineItem {
	q := decimal.RequireFromString(qty)
	p := decimal.RequireFromString(unitPrice)
	subtotal := q.Mul(p).Round(2)
	return sunat.LineItem{
		Code:        code,
		Description: description,
		UnitCode:    pkgsunat.UnitProduct,
		Quantity:    q,
		UnitPrice:   p,
		Affectation: pkgsunat.AffectationGravado,
		TaxPercent:  decimal.NewFromInt(18),
		TaxAmount:   subtotal.Mul(igvRate).Round(2),
		Subtotal:    subtotal,
	}
}

// WithTotals completa los totales como suma de las líneas.
func WithTotals(req *sunat.DocumentRequest) *sunat.DocumentRequest {
	var sub, tax decimal.Decimal
	for _, l := range req.Lines {
		sub = sub.Add(l.Subtotal)
		tax = tax.Add(l.TaxAmount)
	}
	req.Totals = sunat.Totals{TaxableBase: sub, TaxTotal: tax, GrandTotal: sub.Add(tax)}
	return req
}

// Invoice factura F001-123 de dos líneas: base 100.00, IGV 18.00, total 118.00.
func Invoice() *sunat.DocumentRequest {
	return WithTotals(&sunat.DocumentRequest{
		Kind:   sunat.KindInvoice,
		Issuer: Issuer(),
		Customer: sunat.Party{
			DocumentType: pkgsunat.IdentityTypeRUC,
			DocumentID:   CustomerRUC,
			LegalName:    "CLIENTE CORPORATIVO S.A.",
		},
		Series:      "F001",
		Correlative: "123",
		Currency:    "PEN",
		IssueDate:   time.Date(2024, 3, 15, 10, 30, 0, 0, time.FixedZone("PET", -5*3600)),
		PaymentForm: pkgsunat.PaymentFormContado,
		Lines: []sunat.LineItem{
			Line("P001", "TECLADO USB", "2", "25.00"),
			Line("P002", "MOUSE INALAMBRICO", "1", "50.00"),
		},
	})
}

// Receipt boleta B001-45 para un adquirente con DNI.
func Receipt() *sunat.DocumentRequest {
	req := Invoice()
	req.Kind = sunat.KindReceipt
	req.Series = "B001"
	req.Correlative = "45"
	req.Customer = sunat.Party{
		DocumentType: pkgsunat.IdentityTypeDNI,
		DocumentID:   "45678912",
		LegalName:    "JUAN PEREZ",
	}
	return req
}

// CreditNote nota de crédito FC01-7 que anula la factura F001-123.
func CreditNote() *sunat.DocumentRequest {
	req := Invoice()
	req.Kind = sunat.KindCreditNote
	req.Series = "FC01"
	req.Correlative = "7"
	req.Reference = &sunat.Reference{
		DocumentKind: sunat.KindInvoice,
		Series:       "F001",
		Correlative:  "123",
		ReasonCode:   pkgsunat.CreditNoteAnulacion,
		Reason:       "ANULACION DE LA OPERACION",
	}
	return req
}

// TenLineInvoice factura de 10 líneas con IGV 18% por línea y valores que obligan a redondear.
func TenLineInvoice() *sunat.DocumentRequest {
	req := Invoice()
	req.Lines = nil
	for i := 1; i <= 10; i++ {
		req.Lines = append(req.Lines, Line(fmt.Sprintf("P%03d", i), fmt.Sprintf("PRODUCTO %d", i), "3", fmt.Sprintf("%d.37", i)))
	}
	return WithTotals(req)
}
