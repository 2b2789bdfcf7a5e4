package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

// ErrSignatureInvalid la firma o el digest no coinciden con el documento.
var ErrSignatureInvalid = errors.New("firma inválida")

// Verification resultado de una verificación exitosa.
type Verification struct {
	DigestValue string
	Certificate *x509.Certificate
}

// Verify comprueba un documento firmado con el certificado que lleva embebido:
// recalcula el digest quitando el ds:Signature y valida el SignatureValue sobre el SignedInfo canónico.
// Cualquier discrepancia devuelve *sunat.SigningError que envuelve ErrSignatureInvalid.
func (s *DigitalSignatureService) Verify(signedXML []byte) (*Verification, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return nil, verifyErr(fmt.Errorf("parsear XML: %w", err))
	}
	sig := findSignature(doc)
	if sig == nil {
		return nil, verifyErr(errors.New("ds:Signature no encontrado"))
	}
	si := sig.SelectElement("SignedInfo")
	if si == nil {
		return nil, verifyErr(errors.New("ds:SignedInfo no encontrado"))
	}
	if alg := attrOf(si.FindElement("./CanonicalizationMethod"), "Algorithm"); alg != s.canon.Algorithm() {
		return nil, verifyErr(fmt.Errorf("canonicalización %q no soportada", alg))
	}
	if alg := attrOf(si.FindElement("./SignatureMethod"), "Algorithm"); alg != AlgRSASHA256 {
		return nil, verifyErr(fmt.Errorf("algoritmo de firma %q no soportado", alg))
	}
	digestValue := textOf(si.FindElement("./Reference/DigestValue"))
	sigValue, err := base64.StdEncoding.DecodeString(compact(textOf(sig.SelectElement("SignatureValue"))))
	if err != nil {
		return nil, verifyErr(fmt.Errorf("SignatureValue: %w", err))
	}
	certDER, err := base64.StdEncoding.DecodeString(compact(textOf(sig.FindElement("./KeyInfo/X509Data/X509Certificate"))))
	if err != nil {
		return nil, verifyErr(fmt.Errorf("X509Certificate: %w", err))
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, verifyErr(fmt.Errorf("X509Certificate: %w", err))
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, verifyErr(errors.New("el certificado no tiene llave RSA"))
	}

	// SignedInfo en contexto, antes de retirar la firma del árbol.
	canonicalSI, err := s.canon.CanonicalizeElement(si)
	if err != nil {
		return nil, verifyErr(err)
	}
	hash := sha256.Sum256(canonicalSI)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hash[:], sigValue); err != nil {
		return nil, verifyErr(fmt.Errorf("SignatureValue: %w", ErrSignatureInvalid))
	}

	// Transform enveloped-signature: el digest se calcula sin el ds:Signature.
	parent := sig.Parent()
	if parent == nil {
		return nil, verifyErr(errors.New("ds:Signature sin padre"))
	}
	parent.RemoveChild(sig)
	canonicalDoc, err := s.canon.CanonicalizeElement(doc.Root())
	if err != nil {
		return nil, verifyErr(err)
	}
	if got := digestB64(canonicalDoc); got != digestValue {
		return nil, verifyErr(fmt.Errorf("DigestValue %s no coincide con %s: %w", digestValue, got, ErrSignatureInvalid))
	}
	return &Verification{DigestValue: digestValue, Certificate: cert}, nil
}

func verifyErr(err error) error {
	return &sunat.SigningError{Op: "verificar", Err: err}
}

func textOf(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

func attrOf(el *etree.Element, key string) string {
	if el == nil {
		return ""
	}
	return el.SelectAttrValue(key, "")
}

// compact quita los saltos de línea que algunos firmadores insertan en valores Base64.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
