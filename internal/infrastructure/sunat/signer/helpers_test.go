package signer_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func selfSigned(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(20123456789),
		Subject:      pkix.Name{CommonName: "COMERCIAL ANDINA S.A.C.", SerialNumber: "20123456789", Country: []string{"PE"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

// writeMaterial escribe llave PKCS#1 y certificado PEM en un directorio temporal.
func writeMaterial(t *testing.T) sunat.SigningMaterial {
	t.Helper()
	key := rsaKey(t)
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "emisor.key")
	certPath := filepath.Join(dir, "emisor.crt")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600))
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: selfSigned(t, key)}), 0o600))
	return sunat.SigningMaterial{KeyPath: keyPath, CertPath: certPath}
}

// writeOtherCert certificado emitido para una llave distinta a la de prueba.
func writeOtherCert(t *testing.T) string {
	t.Helper()
	other, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "otro.crt")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: selfSigned(t, other)}), 0o600))
	return path
}
