// Package signertest genera material de firma descartable para tests.
package signertest

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

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

var (
	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyErr  error
)

// Key llave RSA 2048 compartida por todo el proceso de test.
func Key(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() { key, keyErr = rsa.GenerateKey(rand.Reader, 2048) })
	if keyErr != nil {
		t.Fatalf("generar llave: %v", keyErr)
	}
	return key
}

// WriteMaterial escribe llave PKCS#1 y certificado autofirmado PEM en t.TempDir().
func WriteMaterial(t testing.TB) sunat.SigningMaterial {
	t.Helper()
	k := Key(t)
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "EMISOR DE PRUEBA", Country: []string{"PE"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &k.PublicKey, k)
	if err != nil {
		t.Fatalf("crear certificado: %v", err)
	}
	dir := t.TempDir()
	m := sunat.SigningMaterial{
		KeyPath:  filepath.Join(dir, "emisor.key"),
		CertPath: filepath.Join(dir, "emisor.crt"),
	}
	write(t, m.KeyPath, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)})
	write(t, m.CertPath, &pem.Block{Type: "CERTIFICATE", Bytes: der})
	return m
}

func write(t testing.TB, path string, b *pem.Block) {
	t.Helper()
	if err := os.WriteFile(path, pem.EncodeToMemory(b), 0o600); err != nil {
		t.Fatalf("escribir %s: %v", path, err)
	}
}
