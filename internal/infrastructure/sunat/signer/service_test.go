package signer_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	"github.com/jhoicas/facturador-sunat/internal/domain/sunat/sunattest"
	infrasunat "github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat"
	"github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat/signer"
)

func buildInvoice(t *testing.T) []byte {
	t.Helper()
	xmlBytes, err := infrasunat.NewXMLBuilderService().Build(sunattest.Invoice())
	require.NoError(t, err)
	return xmlBytes
}

// El digest calculado sobre la forma canónica es el que termina en la Reference del documento firmado.
func TestSign_DigestRoundTrip(t *testing.T) {
	paths := writeMaterial(t)
	unsigned := buildInvoice(t)
	svc := signer.NewDigitalSignatureService()

	canonical, err := svc.Canonicalizer().Digest(unsigned)
	require.NoError(t, err)

	signed, err := svc.SignFiles(unsigned, paths)
	require.NoError(t, err)
	assert.Equal(t, canonical.DigestValue, signed.Signature.DigestValue)
	assert.Equal(t, canonical.Canonical, signed.Canonical.Canonical)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed.XML))
	embedded := doc.FindElement("//Signature/SignedInfo/Reference/DigestValue")
	require.NotNil(t, embedded)
	assert.Equal(t, canonical.DigestValue, embedded.Text())

	v, err := svc.Verify(signed.XML)
	require.NoError(t, err)
	assert.Equal(t, canonical.DigestValue, v.DigestValue)
}

// La firma se inserta sin tocar ningún otro byte del documento.
func TestSign_SoloInsertaLaFirma(t *testing.T) {
	unsigned := buildInvoice(t)
	signed, err := signer.NewDigitalSignatureService().SignFiles(unsigned, writeMaterial(t))
	require.NoError(t, err)

	start := bytes.Index(signed.XML, []byte("<ds:Signature"))
	end := bytes.Index(signed.XML, []byte("</ds:Signature>")) + len("</ds:Signature>")
	require.True(t, start > 0 && end > start)
	withoutSig := append(append([]byte{}, signed.XML[:start]...), signed.XML[end:]...)
	assert.Equal(t, unsigned, withoutSig)
	assert.Contains(t, string(signed.XML), `Id="SignatureSP"`)
}

// Dos firmas del mismo documento difieren (Reference Id único) y ambas verifican.
func TestSign_DosFirmasDistintasAmbasValidas(t *testing.T) {
	paths := writeMaterial(t)
	unsigned := buildInvoice(t)
	svc := signer.NewDigitalSignatureService()

	a, err := svc.SignFiles(unsigned, paths)
	require.NoError(t, err)
	b, err := svc.SignFiles(unsigned, paths)
	require.NoError(t, err)

	assert.NotEqual(t, a.Signature.SignatureValue, b.Signature.SignatureValue)
	assert.NotEqual(t, a.Signature.ReferenceID, b.Signature.ReferenceID)
	assert.Equal(t, a.Signature.DigestValue, b.Signature.DigestValue)
	assert.Equal(t, a.Signature.Certificate, b.Signature.Certificate)

	_, err = svc.Verify(a.XML)
	assert.NoError(t, err)
	_, err = svc.Verify(b.XML)
	assert.NoError(t, err)
}

func TestSign_CanonicalizadorExclusivo(t *testing.T) {
	svc := signer.NewDigitalSignatureService(signer.WithCanonicalizer(signer.NewExclusiveCanonicalizer()))
	signed, err := svc.SignFiles(buildInvoice(t), writeMaterial(t))
	require.NoError(t, err)
	assert.Contains(t, string(signed.XML), signer.AlgExcC14N)

	_, err = svc.Verify(signed.XML)
	assert.NoError(t, err)
}

func TestVerify_DocumentoAlterado(t *testing.T) {
	svc := signer.NewDigitalSignatureService()
	signed, err := svc.SignFiles(buildInvoice(t), writeMaterial(t))
	require.NoError(t, err)

	tampered := bytes.Replace(signed.XML, []byte("TECLADO USB"), []byte("TECLADO PS2"), 1)
	_, err = svc.Verify(tampered)
	require.Error(t, err)
	assert.ErrorIs(t, err, signer.ErrSignatureInvalid)
	var se *sunat.SigningError
	assert.True(t, errors.As(err, &se))
}

func TestSign_SinPuntoDeInsercion(t *testing.T) {
	unsigned := bytes.Replace(buildInvoice(t), []byte("<ext:ExtensionContent></ext:ExtensionContent>"), []byte("<ext:ExtensionContent/>"), 1)
	_, err := signer.NewDigitalSignatureService().SignFiles(unsigned, writeMaterial(t))
	assert.ErrorIs(t, err, sunat.ErrInsertionPointMissing)

	_, err = signer.Embed([]byte("<a></a>"), "<ds:Signature/>")
	assert.ErrorIs(t, err, sunat.ErrInsertionPointMissing)
}

func TestLoadMaterial_Errores(t *testing.T) {
	paths := writeMaterial(t)

	t.Run("llave inexistente", func(t *testing.T) {
		_, err := signer.LoadMaterial(sunat.SigningMaterial{KeyPath: "/no/existe.key", CertPath: paths.CertPath})
		var kre *sunat.KeyReadError
		require.ErrorAs(t, err, &kre)
		assert.Equal(t, "/no/existe.key", kre.Path)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("llave que no es PEM", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.key")
		require.NoError(t, os.WriteFile(bad, []byte("no es una llave"), 0o600))
		_, err := signer.LoadMaterial(sunat.SigningMaterial{KeyPath: bad, CertPath: paths.CertPath})
		var kre *sunat.KeyReadError
		assert.ErrorAs(t, err, &kre)
	})

	t.Run("p12 ilegible", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "cert.p12")
		require.NoError(t, os.WriteFile(bad, []byte{0x30, 0x00}, 0o600))
		_, err := signer.LoadMaterial(sunat.SigningMaterial{CertPath: bad, Password: "x"})
		var kre *sunat.KeyReadError
		assert.ErrorAs(t, err, &kre)
	})

	t.Run("llave y certificado no corresponden", func(t *testing.T) {
		other := writeOtherCert(t)
		_, err := signer.LoadMaterial(sunat.SigningMaterial{KeyPath: paths.KeyPath, CertPath: other})
		var se *sunat.SigningError
		assert.ErrorAs(t, err, &se)
	})
}

func TestMaterial_CloseImpideFirmar(t *testing.T) {
	m, err := signer.LoadMaterial(writeMaterial(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m.CertificateBase64(), "MII"))

	m.Close()
	m.Close()
	_, err = signer.NewDigitalSignatureService().Sign(buildInvoice(t), m)
	var se *sunat.SigningError
	assert.ErrorAs(t, err, &se)
}

// El material se comparte en lectura entre firmas concurrentes de documentos distintos.
func TestSign_Concurrente(t *testing.T) {
	svc := signer.NewDigitalSignatureService()
	unsigned := buildInvoice(t)

	err := signer.WithMaterial(writeMaterial(t), func(m *signer.Material) error {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				signed, err := svc.Sign(unsigned, m)
				if err == nil {
					_, err = svc.Verify(signed.XML)
				}
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				return err
			}
		}
		return nil
	})
	assert.NoError(t, err)
}
