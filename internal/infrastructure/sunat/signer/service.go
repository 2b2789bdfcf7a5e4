// Firma XMLDSig enveloped (RSA-SHA256) de comprobantes UBL 2.1 para SUNAT.
// La firma se inserta en el ext:ExtensionContent vacío que deja el builder.

package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

// SignatureBlock valores que componen el ds:Signature.
type SignatureBlock struct {
	ReferenceID               string
	CanonicalizationAlgorithm string
	DigestAlgorithm           string
	DigestValue               string
	SignatureAlgorithm        string
	SignatureValue            string
	Certificate               string // DER en Base64, sin armadura PEM
}

// SignedDocument XML final con la firma insertada. No se modifica una vez creado.
type SignedDocument struct {
	XML       []byte
	Signature SignatureBlock
	Canonical *CanonicalDocument
}

// DigitalSignatureService firma comprobantes. No guarda estado entre llamadas: es seguro para uso concurrente.
type DigitalSignatureService struct {
	canon *Canonicalizer
}

// Option configura el servicio de firma.
type Option func(*DigitalSignatureService)

// WithCanonicalizer reemplaza el C14N inclusivo por defecto.
func WithCanonicalizer(c *Canonicalizer) Option {
	return func(s *DigitalSignatureService) { s.canon = c }
}

// NewDigitalSignatureService crea el servicio con C14N 1.0 inclusivo.
func NewDigitalSignatureService(opts ...Option) *DigitalSignatureService {
	s := &DigitalSignatureService{canon: NewCanonicalizer()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Canonicalizer devuelve el canonicalizador usado para digest y SignedInfo.
func (s *DigitalSignatureService) Canonicalizer() *Canonicalizer { return s.canon }

// SignFiles carga el material desde las rutas, firma y libera la llave antes de retornar.
func (s *DigitalSignatureService) SignFiles(xmlBytes []byte, paths sunat.SigningMaterial) (*SignedDocument, error) {
	var signed *SignedDocument
	err := WithMaterial(paths, func(m *Material) error {
		var err error
		signed, err = s.Sign(xmlBytes, m)
		return err
	})
	return signed, err
}

// Sign firma el XML con el material indicado:
//
//	digest C14N del documento → SignedInfo → C14N del SignedInfo en contexto → RSA-SHA256 → inserción
func (s *DigitalSignatureService) Sign(xmlBytes []byte, m *Material) (*SignedDocument, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("%w: XML vacío", sunat.ErrInvalidDocument)
	}
	if _, err := insertionPoint(xmlBytes); err != nil {
		return nil, err
	}
	key, err := m.privateKey()
	if err != nil {
		return nil, err
	}

	// 1) Digest del documento sin firma (equivale al transform enveloped-signature).
	canonical, err := s.canon.Digest(xmlBytes)
	if err != nil {
		return nil, err
	}

	block := SignatureBlock{
		ReferenceID:               "ref-" + uuid.NewString(),
		CanonicalizationAlgorithm: s.canon.Algorithm(),
		DigestAlgorithm:           AlgSHA256,
		DigestValue:               canonical.DigestValue,
		SignatureAlgorithm:        AlgRSASHA256,
		Certificate:               m.CertificateBase64(),
	}
	signedInfo := s.buildSignedInfo(block)

	// 2) SignedInfo canonicalizado tal como quedará dentro del documento (hereda sus xmlns).
	canonicalSignedInfo, err := s.canonicalSignedInfo(xmlBytes, signedInfo)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(canonicalSignedInfo)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return nil, &sunat.SigningError{Op: "rsa-sha256", Err: err}
	}
	block.SignatureValue = base64.StdEncoding.EncodeToString(sig)

	// 3) ds:Signature completo e inserción textual.
	out, err := Embed(xmlBytes, buildSignature(signedInfo, block))
	if err != nil {
		return nil, err
	}
	return &SignedDocument{XML: out, Signature: block, Canonical: canonical}, nil
}

func (s *DigitalSignatureService) buildSignedInfo(b SignatureBlock) string {
	var sb strings.Builder
	sb.WriteString(`<ds:SignedInfo>`)
	sb.WriteString(`<ds:CanonicalizationMethod Algorithm="` + b.CanonicalizationAlgorithm + `"/>`)
	sb.WriteString(`<ds:SignatureMethod Algorithm="` + b.SignatureAlgorithm + `"/>`)
	sb.WriteString(`<ds:Reference Id="` + b.ReferenceID + `" URI="">`)
	sb.WriteString(`<ds:Transforms><ds:Transform Algorithm="` + TransformEnveloped + `"/>`)
	sb.WriteString(`<ds:Transform Algorithm="` + b.CanonicalizationAlgorithm + `"/></ds:Transforms>`)
	sb.WriteString(`<ds:DigestMethod Algorithm="` + b.DigestAlgorithm + `"/>`)
	sb.WriteString(`<ds:DigestValue>` + b.DigestValue + `</ds:DigestValue>`)
	sb.WriteString(`</ds:Reference>`)
	sb.WriteString(`</ds:SignedInfo>`)
	return sb.String()
}

func signatureOpen() string {
	return `<ds:Signature xmlns:ds="` + NamespaceDS + `" Id="` + SignatureID + `">`
}

func buildSignature(signedInfo string, b SignatureBlock) string {
	var sb strings.Builder
	sb.WriteString(signatureOpen())
	sb.WriteString(signedInfo)
	sb.WriteString(`<ds:SignatureValue>` + b.SignatureValue + `</ds:SignatureValue>`)
	sb.WriteString(`<ds:KeyInfo><ds:X509Data><ds:X509Certificate>` + b.Certificate + `</ds:X509Certificate></ds:X509Data></ds:KeyInfo>`)
	sb.WriteString(`</ds:Signature>`)
	return sb.String()
}

// canonicalSignedInfo inserta un borrador del ds:Signature en el documento y canonicaliza su SignedInfo.
// El C14N inclusivo copia al SignedInfo todos los xmlns de sus ancestros, por eso no basta con
// canonicalizarlo suelto.
func (s *DigitalSignatureService) canonicalSignedInfo(xmlBytes []byte, signedInfo string) ([]byte, error) {
	draft, err := Embed(xmlBytes, signatureOpen()+signedInfo+`</ds:Signature>`)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(draft); err != nil {
		return nil, &sunat.SigningError{Op: "signedinfo", Err: err}
	}
	si := findSignedInfo(doc)
	if si == nil {
		return nil, &sunat.SigningError{Op: "signedinfo", Err: fmt.Errorf("ds:SignedInfo no encontrado")}
	}
	return s.canon.CanonicalizeElement(si)
}

// findSignature ubica el ds:Signature con Id SignatureSP (o el primero que haya).
func findSignature(doc *etree.Document) *etree.Element {
	if el := doc.FindElement(fmt.Sprintf("//Signature[@Id='%s']", SignatureID)); el != nil {
		return el
	}
	return doc.FindElement("//Signature")
}

func findSignedInfo(doc *etree.Document) *etree.Element {
	sig := findSignature(doc)
	if sig == nil {
		return nil
	}
	return sig.SelectElement("SignedInfo")
}
