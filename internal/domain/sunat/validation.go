package sunat

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	pkgsunat "github.com/jhoicas/facturador-sunat/pkg/sunat"
)

var (
	seriesPattern   = regexp.MustCompile(`^[FB][A-Z0-9]{3}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// maxCorrelative la numeración de un comprobante admite hasta 8 dígitos.
const maxCorrelative = 99999999

// ValidateRequest valida el comprobante antes de construir el XML.
// Comprueba identidad del emisor y del adquirente, serie y correlativo por tipo, líneas,
// datos de la nota de crédito y que los totales coincidan con las líneas:
//
//	taxableBase == Σ subtotal, taxTotal == Σ impuesto, grandTotal == Σ subtotal + taxTotal
//
// Todos los errores se agrupan con errors.Join y envuelven ErrInvalidDocument.
func ValidateRequest(req *DocumentRequest) error {
	if req == nil {
		return fmt.Errorf("%w: comprobante nulo", ErrInvalidDocument)
	}
	if _, err := req.Kind.Code(); err != nil {
		return err
	}
	var errs []error

	// Emisor: siempre RUC.
	if req.Issuer.DocumentType != "" && req.Issuer.DocumentType != pkgsunat.IdentityTypeRUC {
		errs = append(errs, fmt.Errorf("emisor: el tipo de documento debe ser RUC (6), se recibió %q", req.Issuer.DocumentType))
	}
	if err := pkgsunat.ValidateRUC(req.Issuer.DocumentID); err != nil {
		errs = append(errs, fmt.Errorf("emisor: %w", err))
	}
	if req.Issuer.LegalName == "" {
		errs = append(errs, errors.New("emisor: la razón social es obligatoria"))
	}

	errs = append(errs, validateCustomer(req)...)

	// Serie: F para facturas, B para boletas; la nota de crédito sigue al documento afectado.
	if !seriesPattern.MatchString(req.Series) {
		errs = append(errs, fmt.Errorf("serie %q inválida: se espera una letra F/B y 3 caracteres alfanuméricos", req.Series))
	} else if prefix := expectedSeriesPrefix(req); prefix != 0 && req.Series[0] != prefix {
		errs = append(errs, fmt.Errorf("serie %q inválida para %s: debe empezar con %c", req.Series, req.Kind, prefix))
	}
	if err := validateCorrelative(req.Correlative); err != nil {
		errs = append(errs, err)
	}
	if !currencyPattern.MatchString(req.CurrencyCode()) {
		errs = append(errs, fmt.Errorf("moneda %q inválida (ISO 4217)", req.Currency))
	}
	if req.IssueDate.IsZero() {
		errs = append(errs, errors.New("la fecha de emisión es obligatoria"))
	}
	if req.DueDate != nil && req.DueDate.Before(req.IssueDate) {
		errs = append(errs, errors.New("la fecha de vencimiento es anterior a la de emisión"))
	}
	switch req.PaymentForm {
	case "", pkgsunat.PaymentFormContado, pkgsunat.PaymentFormCredito:
	default:
		errs = append(errs, fmt.Errorf("forma de pago %q inválida", req.PaymentForm))
	}

	if req.Kind == KindCreditNote {
		errs = append(errs, validateReference(req.Reference)...)
	}

	// Líneas y totales coherentes.
	if len(req.Lines) == 0 {
		errs = append(errs, errors.New("el comprobante debe tener al menos una línea"))
	} else {
		var sumSubtotal, sumTax decimal.Decimal
		for i, l := range req.Lines {
			errs = append(errs, validateLine(i+1, l)...)
			sumSubtotal = sumSubtotal.Add(l.Subtotal)
			sumTax = sumTax.Add(l.TaxAmount)
		}
		sumSubtotal = sumSubtotal.Round(2)
		sumTax = sumTax.Round(2)
		if !req.Totals.TaxableBase.Round(2).Equal(sumSubtotal) {
			errs = append(errs, fmt.Errorf("base imponible (%s) no coincide con la suma de subtotales (%s)", req.Totals.TaxableBase.StringFixed(2), sumSubtotal.StringFixed(2)))
		}
		if !req.Totals.TaxTotal.Round(2).Equal(sumTax) {
			errs = append(errs, fmt.Errorf("total de impuestos (%s) no coincide con la suma de impuestos por línea (%s)", req.Totals.TaxTotal.StringFixed(2), sumTax.StringFixed(2)))
		}
		expectedGrand := sumSubtotal.Add(req.Totals.TaxTotal.Round(2))
		if !req.Totals.GrandTotal.Round(2).Equal(expectedGrand) {
			errs = append(errs, fmt.Errorf("importe total (%s) no coincide con subtotales + impuestos (%s)", req.Totals.GrandTotal.StringFixed(2), expectedGrand.StringFixed(2)))
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidDocument}, errs...)...)
	}
	return nil
}

// expectedSeriesPrefix devuelve la letra de serie exigida (0 si no se puede determinar).
func expectedSeriesPrefix(req *DocumentRequest) byte {
	switch req.Kind {
	case KindInvoice:
		return 'F'
	case KindReceipt:
		return 'B'
	case KindCreditNote:
		if req.Reference == nil {
			return 0
		}
		switch req.Reference.DocumentKind {
		case KindInvoice:
			return 'F'
		case KindReceipt:
			return 'B'
		}
	}
	return 0
}

// validateCustomer la factura (y su nota de crédito) exige adquirente con RUC.
func validateCustomer(req *DocumentRequest) []error {
	var errs []error
	c := req.Customer
	if !pkgsunat.ValidIdentityTypes[c.DocumentType] {
		errs = append(errs, fmt.Errorf("adquirente: tipo de documento %q inválido (catálogo 06)", c.DocumentType))
	}
	if c.LegalName == "" {
		errs = append(errs, errors.New("adquirente: el nombre o razón social es obligatorio"))
	}
	requiresRUC := req.Kind == KindInvoice ||
		(req.Kind == KindCreditNote && req.Reference != nil && req.Reference.DocumentKind == KindInvoice)
	switch {
	case requiresRUC && c.DocumentType != pkgsunat.IdentityTypeRUC:
		errs = append(errs, errors.New("adquirente: la factura exige RUC (tipo 6)"))
	case c.DocumentType == pkgsunat.IdentityTypeRUC:
		if err := pkgsunat.ValidateRUC(c.DocumentID); err != nil {
			errs = append(errs, fmt.Errorf("adquirente: %w", err))
		}
	case c.DocumentType == pkgsunat.IdentityTypeDNI:
		if len(c.DocumentID) != 8 || !pkgsunat.IsDigits(c.DocumentID) {
			errs = append(errs, fmt.Errorf("adquirente: el DNI debe tener 8 dígitos, se recibió %q", c.DocumentID))
		}
	case c.DocumentType != pkgsunat.IdentityTypeSinDocumento && c.DocumentID == "":
		errs = append(errs, errors.New("adquirente: el número de documento es obligatorio"))
	}
	return errs
}

func validateCorrelative(c string) error {
	if !pkgsunat.IsDigits(c) {
		return fmt.Errorf("correlativo %q inválido: solo dígitos", c)
	}
	n, err := decimal.NewFromString(c)
	if err != nil || n.Sign() <= 0 || n.GreaterThan(decimal.NewFromInt(maxCorrelative)) {
		return fmt.Errorf("correlativo %q fuera de rango (1-%d)", c, maxCorrelative)
	}
	return nil
}

func validateReference(ref *Reference) []error {
	if ref == nil {
		return []error{errors.New("nota de crédito: falta el documento afectado")}
	}
	var errs []error
	if ref.DocumentKind != KindInvoice && ref.DocumentKind != KindReceipt {
		errs = append(errs, fmt.Errorf("nota de crédito: el documento afectado debe ser factura o boleta, se recibió %q", ref.DocumentKind))
	}
	if !seriesPattern.MatchString(ref.Series) {
		errs = append(errs, fmt.Errorf("nota de crédito: serie afectada %q inválida", ref.Series))
	}
	if err := validateCorrelative(ref.Correlative); err != nil {
		errs = append(errs, fmt.Errorf("nota de crédito: %w", err))
	}
	if !pkgsunat.ValidCreditNoteReasons[ref.ReasonCode] {
		errs = append(errs, fmt.Errorf("nota de crédito: motivo %q inválido (catálogo 09)", ref.ReasonCode))
	}
	if ref.Reason == "" {
		errs = append(errs, errors.New("nota de crédito: la descripción del motivo es obligatoria"))
	}
	return errs
}

func validateLine(n int, l LineItem) []error {
	var errs []error
	if l.Description == "" {
		errs = append(errs, fmt.Errorf("línea %d: la descripción es obligatoria", n))
	}
	if !l.Quantity.IsPositive() {
		errs = append(errs, fmt.Errorf("línea %d: la cantidad debe ser mayor que cero", n))
	}
	if l.UnitPrice.IsNegative() || l.Subtotal.IsNegative() || l.TaxAmount.IsNegative() {
		errs = append(errs, fmt.Errorf("línea %d: importes negativos", n))
	}
	switch l.Affectation {
	case "", pkgsunat.AffectationGravado:
	case pkgsunat.AffectationExonerado, pkgsunat.AffectationInafecto:
		if !l.TaxAmount.IsZero() {
			errs = append(errs, fmt.Errorf("línea %d: una línea exonerada o inafecta no lleva IGV", n))
		}
	default:
		errs = append(errs, fmt.Errorf("línea %d: afectación %q inválida (catálogo 07)", n, l.Affectation))
	}
	return errs
}
