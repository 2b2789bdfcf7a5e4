// Constantes XMLDSig para la firma enveloped de comprobantes SUNAT.

package signer

// Namespaces y algoritmos XMLDSig.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgExcC14N         = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// SignatureID Id del nodo ds:Signature; el builder lo referencia desde cac:Signature como "#SignatureSP".
const SignatureID = "SignatureSP"

// Marcas del único punto de inserción que deja el builder.
const (
	extensionContentOpen  = "<ext:ExtensionContent>"
	extensionContentClose = "</ext:ExtensionContent>"
	placeholder           = extensionContentOpen + extensionContentClose
)
