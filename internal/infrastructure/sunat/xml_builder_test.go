package sunat_test

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	"github.com/jhoicas/facturador-sunat/internal/domain/sunat/sunattest"
	infrasunat "github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat"
)

func parse(t *testing.T, b []byte) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(b))
	return doc
}

func TestBuild_Factura(t *testing.T) {
	out, err := infrasunat.NewXMLBuilderService().Build(sunattest.Invoice())
	require.NoError(t, err)

	s := string(out)
	assert.True(t, strings.HasPrefix(s, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Equal(t, 1, strings.Count(s, "<ext:ExtensionContent></ext:ExtensionContent>"), "un único punto de inserción")

	doc := parse(t, out)
	root := doc.Root()
	assert.Equal(t, "Invoice", root.Tag)
	assert.Equal(t, infrasunat.NsInvoice, root.SelectAttrValue("xmlns", ""))
	assert.Equal(t, "UBLExtensions", root.ChildElements()[0].Tag, "ext:UBLExtensions debe ser el primer hijo")

	assert.Equal(t, "F001-123", doc.FindElement("/Invoice/ID").Text())
	assert.Equal(t, "2024-03-15", doc.FindElement("/Invoice/IssueDate").Text())
	assert.Equal(t, "10:30:00", doc.FindElement("/Invoice/IssueTime").Text())
	typeCode := doc.FindElement("/Invoice/InvoiceTypeCode")
	assert.Equal(t, "01", typeCode.Text())
	assert.Equal(t, "0101", typeCode.SelectAttrValue("listID", ""))
	assert.Equal(t, "SON: CIENTO DIECIOCHO CON 00/100 SOLES", doc.FindElement("/Invoice/Note[@languageLocaleID='1000']").Text())
	assert.Equal(t, "#SignatureSP", doc.FindElement("/Invoice/Signature/DigitalSignatureAttachment/ExternalReference/URI").Text())

	assert.Equal(t, "20123456789", doc.FindElement("/Invoice/AccountingSupplierParty/Party/PartyIdentification/ID").Text())
	assert.Equal(t, "6", doc.FindElement("/Invoice/AccountingCustomerParty/Party/PartyIdentification/ID").SelectAttrValue("schemeID", ""))

	assert.Equal(t, "18.00", doc.FindElement("/Invoice/TaxTotal/TaxAmount").Text())
	assert.Equal(t, "PEN", doc.FindElement("/Invoice/TaxTotal/TaxAmount").SelectAttrValue("currencyID", ""))
	assert.Equal(t, "1000", doc.FindElement("/Invoice/TaxTotal/TaxSubtotal/TaxCategory/TaxScheme/ID").Text())
	assert.Equal(t, "100.00", doc.FindElement("/Invoice/LegalMonetaryTotal/LineExtensionAmount").Text())
	assert.Equal(t, "118.00", doc.FindElement("/Invoice/LegalMonetaryTotal/PayableAmount").Text())

	lines := doc.FindElements("/Invoice/InvoiceLine")
	require.Len(t, lines, 2)
	assert.Equal(t, "2", lines[0].FindElement("InvoicedQuantity").Text())
	assert.Equal(t, "NIU", lines[0].FindElement("InvoicedQuantity").SelectAttrValue("unitCode", ""))
	assert.Equal(t, "50.00", lines[0].FindElement("LineExtensionAmount").Text())
	assert.Equal(t, "29.50", lines[0].FindElement("PricingReference/AlternativeConditionPrice/PriceAmount").Text())
	assert.Equal(t, "25.00", lines[0].FindElement("Price/PriceAmount").Text())
}

// Misma entrada, mismos bytes: requisito para firmar de forma reproducible.
func TestBuild_Determinista(t *testing.T) {
	b := infrasunat.NewXMLBuilderService()
	a1, err := b.Build(sunattest.Invoice())
	require.NoError(t, err)
	a2, err := b.Build(sunattest.Invoice())
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}

func TestBuild_Boleta(t *testing.T) {
	out, err := infrasunat.NewXMLBuilderService().Build(sunattest.Receipt())
	require.NoError(t, err)

	doc := parse(t, out)
	assert.Equal(t, "B001-45", doc.FindElement("/Invoice/ID").Text())
	assert.Equal(t, "03", doc.FindElement("/Invoice/InvoiceTypeCode").Text())
	customer := doc.FindElement("/Invoice/AccountingCustomerParty/Party/PartyIdentification/ID")
	assert.Equal(t, "45678912", customer.Text())
	assert.Equal(t, "1", customer.SelectAttrValue("schemeID", ""))
}

func TestBuild_NotaCredito(t *testing.T) {
	out, err := infrasunat.NewXMLBuilderService().Build(sunattest.CreditNote())
	require.NoError(t, err)

	doc := parse(t, out)
	assert.Equal(t, "CreditNote", doc.Root().Tag)
	assert.Equal(t, infrasunat.NsCreditNote, doc.Root().SelectAttrValue("xmlns", ""))
	assert.Nil(t, doc.FindElement("/CreditNote/InvoiceTypeCode"))
	assert.Equal(t, "F001-123", doc.FindElement("/CreditNote/DiscrepancyResponse/ReferenceID").Text())
	assert.Equal(t, "01", doc.FindElement("/CreditNote/DiscrepancyResponse/ResponseCode").Text())
	assert.Equal(t, "F001-123", doc.FindElement("/CreditNote/BillingReference/InvoiceDocumentReference/ID").Text())
	assert.Equal(t, "01", doc.FindElement("/CreditNote/BillingReference/InvoiceDocumentReference/DocumentTypeCode").Text())
	assert.Len(t, doc.FindElements("/CreditNote/CreditNoteLine"), 2)
	assert.NotNil(t, doc.FindElement("/CreditNote/CreditNoteLine/CreditedQuantity"))
}

func TestBuild_SeriesYCredito(t *testing.T) {
	req := sunattest.Invoice()
	req.Lines[0].SerialNumbers = []string{"SN-001", "SN-002"}
	req.PaymentForm = "Credito"
	due := req.IssueDate.AddDate(0, 0, 30)
	req.DueDate = &due

	out, err := infrasunat.NewXMLBuilderService().Build(req)
	require.NoError(t, err)

	doc := parse(t, out)
	serials := doc.FindElements("/Invoice/InvoiceLine[1]/Item/ItemInstance/SerialID")
	require.Len(t, serials, 2)
	assert.Equal(t, "SN-002", serials[1].Text())
	assert.Equal(t, "2024-04-14", doc.FindElement("/Invoice/DueDate").Text())
	terms := doc.FindElements("/Invoice/PaymentTerms")
	require.Len(t, terms, 2)
	assert.Equal(t, "Cuota001", terms[1].FindElement("PaymentMeansID").Text())
}

// El builder rechaza comprobantes cuyo total no es Σ subtotales + impuestos.
func TestBuild_RechazaTotalInconsistente(t *testing.T) {
	req := sunattest.Invoice()
	req.Totals.GrandTotal = decimal.RequireFromString("120.00")

	_, err := infrasunat.NewXMLBuilderService().Build(req)
	assert.ErrorIs(t, err, sunat.ErrInvalidDocument)
}

func TestBuild_TipoNoSoportado(t *testing.T) {
	req := sunattest.Invoice()
	req.Kind = "despatchAdvice"

	_, err := infrasunat.NewXMLBuilderService().Build(req)
	assert.ErrorIs(t, err, sunat.ErrUnsupportedDocumentKind)
}

// 10 líneas con IGV 18%: el total de impuestos es exactamente la suma de los impuestos por línea.
func TestBuild_DiezLineasSinDeriva(t *testing.T) {
	req := sunattest.TenLineInvoice()
	out, err := infrasunat.NewXMLBuilderService().Build(req)
	require.NoError(t, err)

	doc := parse(t, out)
	var sumLines decimal.Decimal
	for _, el := range doc.FindElements("/Invoice/InvoiceLine/TaxTotal/TaxAmount") {
		sumLines = sumLines.Add(decimal.RequireFromString(el.Text()))
	}
	total := decimal.RequireFromString(doc.FindElement("/Invoice/TaxTotal/TaxAmount").Text())
	assert.True(t, total.Equal(sumLines), "total %s vs suma %s", total, sumLines)
	assert.Equal(t, req.Totals.TaxTotal.StringFixed(2), total.StringFixed(2))

	// Frente al cálculo global (base × 18%) la diferencia no supera un céntimo.
	global := req.Totals.TaxableBase.Mul(decimal.RequireFromString("0.18")).Round(2)
	assert.True(t, global.Sub(total).Abs().LessThanOrEqual(decimal.RequireFromString("0.01")))

	payable := decimal.RequireFromString(doc.FindElement("/Invoice/LegalMonetaryTotal/PayableAmount").Text())
	base := decimal.RequireFromString(doc.FindElement("/Invoice/LegalMonetaryTotal/LineExtensionAmount").Text())
	assert.True(t, payable.Equal(base.Add(total)))
}
