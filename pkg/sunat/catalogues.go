// Package sunat contiene catálogos y utilidades alineados a la especificación UBL 2.1
// de comprobantes de pago electrónicos (CPE) de la SUNAT (Perú).
package sunat

// =============================================================================
// Catálogo 01 - Código de tipo de documento
// =============================================================================

const (
	DocTypeFactura     = "01" // Factura
	DocTypeBoleta      = "03" // Boleta de venta
	DocTypeNotaCredito = "07" // Nota de crédito
)

// =============================================================================
// Catálogo 06 - Tipos de documento de identidad
// =============================================================================

const (
	IdentityTypeSinDocumento = "0" // No domiciliado, sin RUC
	IdentityTypeDNI          = "1" // Documento Nacional de Identidad
	IdentityTypeExtranjeria  = "4" // Carnet de extranjería
	IdentityTypeRUC          = "6" // Registro Único de Contribuyentes
	IdentityTypePasaporte    = "7" // Pasaporte
)

// ValidIdentityTypes contiene los tipos de documento de identidad aceptados.
var ValidIdentityTypes = map[string]bool{
	IdentityTypeSinDocumento: true,
	IdentityTypeDNI:          true,
	IdentityTypeExtranjeria:  true,
	IdentityTypeRUC:          true,
	IdentityTypePasaporte:    true,
}

// =============================================================================
// Catálogo 07 - Tipo de afectación del IGV
// =============================================================================

const (
	AffectationGravado   = "10" // Gravado - Operación Onerosa
	AffectationExonerado = "20" // Exonerado - Operación Onerosa
	AffectationInafecto  = "30" // Inafecto - Operación Onerosa
)

// =============================================================================
// Catálogo 05 - Códigos de tipos de tributos
// =============================================================================

// TaxScheme agrupa los tres valores que identifican un tributo en cac:TaxScheme.
type TaxScheme struct {
	ID       string
	Name     string
	TypeCode string
}

var (
	TaxIGV = TaxScheme{ID: "1000", Name: "IGV", TypeCode: "VAT"}
	TaxEXO = TaxScheme{ID: "9997", Name: "EXO", TypeCode: "VAT"}
	TaxINA = TaxScheme{ID: "9998", Name: "INA", TypeCode: "FRE"}
)

// TaxSchemeFor devuelve el tributo que corresponde a un código de afectación del IGV.
func TaxSchemeFor(affectation string) TaxScheme {
	switch affectation {
	case AffectationExonerado:
		return TaxEXO
	case AffectationInafecto:
		return TaxINA
	default:
		return TaxIGV
	}
}

// =============================================================================
// Catálogo 09 - Códigos de tipo de nota de crédito electrónica
// =============================================================================

const (
	CreditNoteAnulacion         = "01" // Anulación de la operación
	CreditNoteAnulacionErrorRUC = "02" // Anulación por error en el RUC
	CreditNoteCorreccion        = "03" // Corrección por error en la descripción
	CreditNoteDescuentoGlobal   = "04" // Descuento global
	CreditNoteDevolucionTotal   = "06" // Devolución total
	CreditNoteDevolucionItem    = "07" // Devolución por ítem
)

// ValidCreditNoteReasons códigos de motivo de nota de crédito aceptados.
var ValidCreditNoteReasons = map[string]bool{
	CreditNoteAnulacion: true, CreditNoteAnulacionErrorRUC: true, CreditNoteCorreccion: true,
	CreditNoteDescuentoGlobal: true, "05": true, CreditNoteDevolucionTotal: true,
	CreditNoteDevolucionItem: true, "08": true, "09": true, "10": true, "13": true,
}

// =============================================================================
// Catálogo 51 - Tipo de operación
// =============================================================================

const OperationVentaInterna = "0101"

// =============================================================================
// Catálogo 52 - Leyendas
// =============================================================================

const LegendAmountInWords = "1000" // Monto expresado en letras

// =============================================================================
// Catálogo 03 - Unidades de medida (UN/ECE rec 20) de uso frecuente
// =============================================================================

const (
	UnitProduct  = "NIU" // Unidad (bienes)
	UnitService  = "ZZ"  // Unidad (servicios)
	UnitKilogram = "KGM"
	UnitLitre    = "LTR"
	UnitBox      = "BX"
)

// Forma de pago (cac:PaymentTerms).
const (
	PaymentFormContado = "Contado"
	PaymentFormCredito = "Credito"
)

// Código de tipo de precio (catálogo 16).
const PriceTypeUnitIncludingTax = "01"

// Moneda por defecto de los comprobantes (ISO 4217).
const CurrencyPEN = "PEN"

// CurrencyNames nombre en letras de la moneda para la leyenda 1000.
var CurrencyNames = map[string]string{
	"PEN": "SOLES",
	"USD": "DOLARES AMERICANOS",
	"EUR": "EUROS",
}
