package sunat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	pkgsunat "github.com/jhoicas/facturador-sunat/pkg/sunat"
)

// signatureURI referencia desde cac:Signature al ds:Signature que inserta el firmador.
const signatureURI = "#SignatureSP"

// XMLBuilderService construye el XML UBL 2.1 (sin firma) de factura, boleta o nota de crédito.
// Es una función pura: la misma entrada produce siempre los mismos bytes.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build valida el comprobante y genera el XML. Deja un único <ext:ExtensionContent></ext:ExtensionContent>
// vacío donde el firmador inserta el ds:Signature.
func (s *XMLBuilderService) Build(req *sunat.DocumentRequest) ([]byte, error) {
	if err := sunat.ValidateRequest(req); err != nil {
		return nil, err
	}
	var root, rootNs, lineTag, qtyTag string
	switch req.Kind {
	case sunat.KindInvoice, sunat.KindReceipt:
		root, rootNs, lineTag, qtyTag = "Invoice", NsInvoice, "cac:InvoiceLine", "cbc:InvoicedQuantity"
	case sunat.KindCreditNote:
		root, rootNs, lineTag, qtyTag = "CreditNote", NsCreditNote, "cac:CreditNoteLine", "cbc:CreditedQuantity"
	default:
		return nil, fmt.Errorf("%w: %q", sunat.ErrUnsupportedDocumentKind, string(req.Kind))
	}
	kindCode, _ := req.Kind.Code()
	currency := req.CurrencyCode()

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	w := newXMLWriter(&buf)

	w.start(root,
		attr("xmlns", rootNs),
		attr("xmlns:cac", NsCac),
		attr("xmlns:cbc", NsCbc),
		attr("xmlns:ds", NsDs),
		attr("xmlns:ext", NsExt),
	)

	// ---- ext:UBLExtensions: primer hijo, reservado para la firma
	w.start("ext:UBLExtensions")
	w.start("ext:UBLExtension")
	w.leaf("ext:ExtensionContent", "")
	w.end("ext:UBLExtension")
	w.end("ext:UBLExtensions")

	// ---- Cabecera
	w.leaf("cbc:UBLVersionID", ublVersion)
	w.leaf("cbc:CustomizationID", customizationID, attr("schemeAgencyName", agencySunat))
	if req.Kind != sunat.KindCreditNote {
		w.leaf("cbc:ProfileID", pkgsunat.OperationVentaInterna,
			attr("schemeName", "Tipo de Operacion"),
			attr("schemeAgencyName", agencySunat),
			attr("schemeURI", catalogURIBase+"51"),
		)
	}
	w.leaf("cbc:ID", req.DocumentID())
	w.leaf("cbc:IssueDate", req.IssueDate.Format("2006-01-02"))
	w.leaf("cbc:IssueTime", req.IssueDate.Format("15:04:05"))
	if req.Kind != sunat.KindCreditNote {
		if req.DueDate != nil {
			w.leaf("cbc:DueDate", req.DueDate.Format("2006-01-02"))
		}
		w.leaf("cbc:InvoiceTypeCode", kindCode,
			attr("listAgencyName", agencySunat),
			attr("listName", "Tipo de Documento"),
			attr("listURI", catalogURIBase+"01"),
			attr("listID", pkgsunat.OperationVentaInterna),
			attr("name", "Tipo de Operacion"),
		)
	}
	for _, l := range legends(req, currency) {
		w.leaf("cbc:Note", l.Value, attr("languageLocaleID", l.Code))
	}
	w.leaf("cbc:DocumentCurrencyCode", currency,
		attr("listID", "ISO 4217 Alpha"),
		attr("listName", "Currency"),
		attr("listAgencyName", agencyUNECE),
	)
	w.leaf("cbc:LineCountNumeric", strconv.Itoa(len(req.Lines)))

	// ---- Nota de crédito: motivo y documento afectado
	if req.Kind == sunat.KindCreditNote {
		s.writeDiscrepancy(w, req.Reference)
	}

	// ---- cac:Signature
	s.writeSignatureRef(w, req.Issuer)
	// ---- Emisor y adquirente
	s.writeSupplierParty(w, req.Issuer)
	s.writeCustomerParty(w, req.Customer)
	// ---- Forma de pago
	if req.Kind != sunat.KindCreditNote {
		s.writePaymentTerms(w, req, currency)
	}
	// ---- Totales
	s.writeTaxTotal(w, req.Lines, req.Totals.TaxTotal, currency)
	s.writeMonetaryTotal(w, req, currency)
	// ---- Líneas
	for i, line := range req.Lines {
		s.writeLine(w, lineTag, qtyTag, i+1, line, currency)
	}

	w.end(root)
	if err := w.flush(); err != nil {
		return nil, fmt.Errorf("sunat: serializar XML: %w", err)
	}
	return buf.Bytes(), nil
}

// legends devuelve las leyendas del comprobante; agrega la 1000 (monto en letras) si falta.
func legends(req *sunat.DocumentRequest, currency string) []sunat.Legend {
	out := make([]sunat.Legend, 0, len(req.Legends)+1)
	hasAmount := false
	for _, l := range req.Legends {
		if l.Code == pkgsunat.LegendAmountInWords {
			hasAmount = true
		}
		out = append(out, l)
	}
	if !hasAmount {
		out = append([]sunat.Legend{{
			Code:  pkgsunat.LegendAmountInWords,
			Value: pkgsunat.AmountInWords(req.Totals.GrandTotal, currency),
		}}, out...)
	}
	return out
}

func (s *XMLBuilderService) writeDiscrepancy(w *xmlWriter, ref *sunat.Reference) {
	refCode, _ := ref.DocumentKind.Code()
	w.start("cac:DiscrepancyResponse")
	w.leaf("cbc:ReferenceID", ref.ID())
	w.leaf("cbc:ResponseCode", ref.ReasonCode,
		attr("listAgencyName", agencySunat),
		attr("listName", "Tipo de nota de credito"),
		attr("listURI", catalogURIBase+"09"),
	)
	w.leaf("cbc:Description", ref.Reason)
	w.end("cac:DiscrepancyResponse")

	w.start("cac:BillingReference")
	w.start("cac:InvoiceDocumentReference")
	w.leaf("cbc:ID", ref.ID())
	w.leaf("cbc:DocumentTypeCode", refCode,
		attr("listAgencyName", agencySunat),
		attr("listName", "Tipo de Documento"),
		attr("listURI", catalogURIBase+"01"),
	)
	w.end("cac:InvoiceDocumentReference")
	w.end("cac:BillingReference")
}

func (s *XMLBuilderService) writeSignatureRef(w *xmlWriter, issuer sunat.Party) {
	w.start("cac:Signature")
	w.leaf("cbc:ID", issuer.DocumentID)
	w.start("cac:SignatoryParty")
	w.start("cac:PartyIdentification")
	w.leaf("cbc:ID", issuer.DocumentID)
	w.end("cac:PartyIdentification")
	w.start("cac:PartyName")
	w.leaf("cbc:Name", issuer.LegalName)
	w.end("cac:PartyName")
	w.end("cac:SignatoryParty")
	w.start("cac:DigitalSignatureAttachment")
	w.start("cac:ExternalReference")
	w.leaf("cbc:URI", signatureURI)
	w.end("cac:ExternalReference")
	w.end("cac:DigitalSignatureAttachment")
	w.end("cac:Signature")
}

func (s *XMLBuilderService) writePartyIdentification(w *xmlWriter, p sunat.Party) {
	docType := p.DocumentType
	if docType == "" {
		docType = pkgsunat.IdentityTypeRUC
	}
	docID := p.DocumentID
	if docID == "" {
		docID = "-"
	}
	w.start("cac:PartyIdentification")
	w.leaf("cbc:ID", docID,
		attr("schemeID", docType),
		attr("schemeName", "Documento de Identidad"),
		attr("schemeAgencyName", agencySunat),
		attr("schemeURI", catalogURIBase+"06"),
	)
	w.end("cac:PartyIdentification")
}

// writeSupplierParty cac:AccountingSupplierParty con domicilio fiscal.
func (s *XMLBuilderService) writeSupplierParty(w *xmlWriter, p sunat.Party) {
	w.start("cac:AccountingSupplierParty")
	w.start("cac:Party")
	s.writePartyIdentification(w, p)
	if p.TradeName != "" {
		w.start("cac:PartyName")
		w.leaf("cbc:Name", p.TradeName)
		w.end("cac:PartyName")
	}
	w.start("cac:PartyLegalEntity")
	w.leaf("cbc:RegistrationName", p.LegalName)
	addr := p.Address
	if addr == nil {
		addr = &sunat.Address{}
	}
	w.start("cac:RegistrationAddress")
	if addr.Ubigeo != "" {
		w.leaf("cbc:ID", addr.Ubigeo, attr("schemeName", "Ubigeos"), attr("schemeAgencyName", "PE:INEI"))
	}
	anexo := addr.EstablishmentCode
	if anexo == "" {
		anexo = defaultAnexo
	}
	w.leaf("cbc:AddressTypeCode", anexo, attr("listAgencyName", agencySunat), attr("listName", "Establecimientos anexos"))
	w.optLeaf("cbc:CityName", addr.Province)
	w.optLeaf("cbc:CountrySubentity", addr.Department)
	w.optLeaf("cbc:District", addr.District)
	if addr.Street != "" {
		w.start("cac:AddressLine")
		w.leaf("cbc:Line", addr.Street)
		w.end("cac:AddressLine")
	}
	country := addr.CountryCode
	if country == "" {
		country = defaultCountry
	}
	w.start("cac:Country")
	w.leaf("cbc:IdentificationCode", country,
		attr("listID", "ISO 3166-1"),
		attr("listAgencyName", agencyUNECE),
		attr("listName", "Country"),
	)
	w.end("cac:Country")
	w.end("cac:RegistrationAddress")
	w.end("cac:PartyLegalEntity")
	w.end("cac:Party")
	w.end("cac:AccountingSupplierParty")
}

func (s *XMLBuilderService) writeCustomerParty(w *xmlWriter, p sunat.Party) {
	w.start("cac:AccountingCustomerParty")
	w.start("cac:Party")
	s.writePartyIdentification(w, p)
	w.start("cac:PartyLegalEntity")
	w.leaf("cbc:RegistrationName", p.LegalName)
	w.end("cac:PartyLegalEntity")
	w.end("cac:Party")
	w.end("cac:AccountingCustomerParty")
}

// writePaymentTerms forma de pago; al crédito agrega una cuota única con la fecha de vencimiento.
func (s *XMLBuilderService) writePaymentTerms(w *xmlWriter, req *sunat.DocumentRequest, currency string) {
	form := req.PaymentForm
	if form == "" {
		form = pkgsunat.PaymentFormContado
	}
	w.start("cac:PaymentTerms")
	w.leaf("cbc:ID", "FormaPago")
	w.leaf("cbc:PaymentMeansID", form)
	if form == pkgsunat.PaymentFormCredito {
		w.amount("cbc:Amount", req.Totals.GrandTotal, currency)
	}
	w.end("cac:PaymentTerms")
	if form == pkgsunat.PaymentFormCredito && req.DueDate != nil {
		w.start("cac:PaymentTerms")
		w.leaf("cbc:ID", "FormaPago")
		w.leaf("cbc:PaymentMeansID", "Cuota001")
		w.amount("cbc:Amount", req.Totals.GrandTotal, currency)
		w.leaf("cbc:PaymentDueDate", req.DueDate.Format("2006-01-02"))
		w.end("cac:PaymentTerms")
	}
}

// taxGroup acumula base e impuesto por tributo, en orden de primera aparición.
type taxGroup struct {
	scheme  pkgsunat.TaxScheme
	taxable decimal.Decimal
	tax     decimal.Decimal
}

func groupTaxes(lines []sunat.LineItem) []*taxGroup {
	var groups []*taxGroup
	index := make(map[string]*taxGroup)
	for _, l := range lines {
		scheme := pkgsunat.TaxSchemeFor(l.Affectation)
		g, ok := index[scheme.ID]
		if !ok {
			g = &taxGroup{scheme: scheme}
			index[scheme.ID] = g
			groups = append(groups, g)
		}
		g.taxable = g.taxable.Add(l.Subtotal)
		g.tax = g.tax.Add(l.TaxAmount)
	}
	return groups
}

func (s *XMLBuilderService) writeTaxTotal(w *xmlWriter, lines []sunat.LineItem, taxTotal decimal.Decimal, currency string) {
	w.start("cac:TaxTotal")
	w.amount("cbc:TaxAmount", taxTotal, currency)
	for _, g := range groupTaxes(lines) {
		w.start("cac:TaxSubtotal")
		w.amount("cbc:TaxableAmount", g.taxable, currency)
		w.amount("cbc:TaxAmount", g.tax, currency)
		w.start("cac:TaxCategory")
		writeTaxScheme(w, g.scheme)
		w.end("cac:TaxCategory")
		w.end("cac:TaxSubtotal")
	}
	w.end("cac:TaxTotal")
}

func writeTaxScheme(w *xmlWriter, scheme pkgsunat.TaxScheme) {
	w.start("cac:TaxScheme")
	w.leaf("cbc:ID", scheme.ID,
		attr("schemeName", "Codigo de tributos"),
		attr("schemeAgencyName", agencySunat),
		attr("schemeURI", catalogURIBase+"05"),
	)
	w.leaf("cbc:Name", scheme.Name)
	w.leaf("cbc:TaxTypeCode", scheme.TypeCode)
	w.end("cac:TaxScheme")
}

func (s *XMLBuilderService) writeMonetaryTotal(w *xmlWriter, req *sunat.DocumentRequest, currency string) {
	w.start("cac:LegalMonetaryTotal")
	w.amount("cbc:LineExtensionAmount", req.Totals.TaxableBase, currency)
	w.amount("cbc:TaxInclusiveAmount", req.Totals.GrandTotal, currency)
	w.amount("cbc:PayableAmount", req.Totals.GrandTotal, currency)
	w.end("cac:LegalMonetaryTotal")
}

func (s *XMLBuilderService) writeLine(w *xmlWriter, lineTag, qtyTag string, n int, l sunat.LineItem, currency string) {
	unit := l.UnitCode
	if unit == "" {
		unit = pkgsunat.UnitProduct
	}
	affectation := l.Affectation
	if affectation == "" {
		affectation = pkgsunat.AffectationGravado
	}

	w.start(lineTag)
	w.leaf("cbc:ID", strconv.Itoa(n))
	w.leaf(qtyTag, l.Quantity.String(),
		attr("unitCode", unit),
		attr("unitCodeListID", "UN/ECE rec 20"),
		attr("unitCodeListAgencyName", agencyUNECE),
	)
	w.amount("cbc:LineExtensionAmount", l.Subtotal, currency)

	// Precio unitario con impuestos (catálogo 16, tipo 01).
	w.start("cac:PricingReference")
	w.start("cac:AlternativeConditionPrice")
	w.price("cbc:PriceAmount", l.Subtotal.Add(l.TaxAmount).Div(l.Quantity), currency)
	w.leaf("cbc:PriceTypeCode", pkgsunat.PriceTypeUnitIncludingTax,
		attr("listName", "Tipo de Precio"),
		attr("listAgencyName", agencySunat),
		attr("listURI", catalogURIBase+"16"),
	)
	w.end("cac:AlternativeConditionPrice")
	w.end("cac:PricingReference")

	w.start("cac:TaxTotal")
	w.amount("cbc:TaxAmount", l.TaxAmount, currency)
	w.start("cac:TaxSubtotal")
	w.amount("cbc:TaxableAmount", l.Subtotal, currency)
	w.amount("cbc:TaxAmount", l.TaxAmount, currency)
	w.start("cac:TaxCategory")
	w.leaf("cbc:Percent", l.TaxPercent.String())
	w.leaf("cbc:TaxExemptionReasonCode", affectation,
		attr("listAgencyName", agencySunat),
		attr("listName", "Afectacion del IGV"),
		attr("listURI", catalogURIBase+"07"),
	)
	writeTaxScheme(w, pkgsunat.TaxSchemeFor(affectation))
	w.end("cac:TaxCategory")
	w.end("cac:TaxSubtotal")
	w.end("cac:TaxTotal")

	w.start("cac:Item")
	w.leaf("cbc:Description", l.Description)
	if l.Code != "" {
		w.start("cac:SellersItemIdentification")
		w.leaf("cbc:ID", l.Code)
		w.end("cac:SellersItemIdentification")
	}
	for _, serial := range l.SerialNumbers {
		w.start("cac:ItemInstance")
		w.leaf("cbc:SerialID", serial)
		w.end("cac:ItemInstance")
	}
	w.end("cac:Item")

	w.start("cac:Price")
	w.price("cbc:PriceAmount", l.UnitPrice, currency)
	w.end("cac:Price")
	w.end(lineTag)
}

// ── xmlWriter ────────────────────────────────────────────────────────────────

// xmlWriter escribe elementos con prefijo literal (cbc:, cac:, ext:) y guarda el primer error.
type xmlWriter struct {
	enc *xml.Encoder
	err error
}

func newXMLWriter(buf *bytes.Buffer) *xmlWriter {
	enc := xml.NewEncoder(buf)
	enc.Indent("", "  ")
	return &xmlWriter{enc: enc}
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func (w *xmlWriter) token(t xml.Token) {
	if w.err == nil {
		w.err = w.enc.EncodeToken(t)
	}
}

func (w *xmlWriter) start(name string, attrs ...xml.Attr) {
	w.token(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (w *xmlWriter) end(name string) {
	w.token(xml.EndElement{Name: xml.Name{Local: name}})
}

func (w *xmlWriter) leaf(name, value string, attrs ...xml.Attr) {
	w.start(name, attrs...)
	if value != "" {
		w.token(xml.CharData(value))
	}
	w.end(name)
}

func (w *xmlWriter) optLeaf(name, value string) {
	if value != "" {
		w.leaf(name, value)
	}
}

// amount importe con exactamente 2 decimales.
func (w *xmlWriter) amount(name string, v decimal.Decimal, currency string) {
	w.leaf(name, v.StringFixed(2), attr("currencyID", currency))
}

// price precio unitario: 2 decimales salvo que el valor necesite más (hasta 10).
func (w *xmlWriter) price(name string, v decimal.Decimal, currency string) {
	r := v.Round(10)
	text := r.String()
	if r.Equal(r.Round(2)) {
		text = r.StringFixed(2)
	}
	w.leaf(name, text, attr("currencyID", currency))
}

func (w *xmlWriter) flush() error {
	if w.err != nil {
		return w.err
	}
	return w.enc.Flush()
}
