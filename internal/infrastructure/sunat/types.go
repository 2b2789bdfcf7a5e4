// Package sunat implementa la generación del XML UBL 2.1, el empaquetado ZIP, el cliente SOAP
// del billService y la interpretación de la CDR de SUNAT (Perú).
package sunat

// Namespaces UBL 2.1 usados por los comprobantes SUNAT.
const (
	NsInvoice    = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NsCreditNote = "urn:oasis:names:specification:ubl:schema:xsd:CreditNote-2"
	NsCac        = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NsCbc        = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	NsExt        = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	NsDs         = "http://www.w3.org/2000/09/xmldsig#"
)

// Atributos de catálogo repetidos en el XML.
const (
	agencySunat    = "PE:SUNAT"
	agencyUNECE    = "United Nations Economic Commission for Europe"
	catalogURIBase = "urn:pe:gob:sunat:cpe:see:gem:catalogos:catalogo"

	ublVersion      = "2.1"
	customizationID = "2.0"
	defaultCountry  = "PE"
	defaultAnexo    = "0000"
)

// Entornos del billService.
const (
	EnvBeta = "beta"
	EnvProd = "prod"

	BillURLBeta = "https://e-beta.sunat.gob.pe/ol-ti-itcpfegem-beta/billService"
	BillURLProd = "https://e-factura.sunat.gob.pe/ol-ti-itcpfegem/billService"
	ConsultURL  = "https://e-factura.sunat.gob.pe/ol-it-wsconscpegem/billConsultService"
)

// BillURL devuelve el endpoint del billService para el entorno (beta si no es prod).
func BillURL(env string) string {
	if env == EnvProd {
		return BillURLProd
	}
	return BillURLBeta
}

// Credentials usuario secundario SOL. El Username del WS-Security es RUC + usuario.
type Credentials struct {
	RUC      string
	User     string
	Password string
}

// Username usuario para wsse:UsernameToken.
func (c Credentials) Username() string {
	return c.RUC + c.User
}
