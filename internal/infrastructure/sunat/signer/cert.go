// Carga del material de firma: par PEM (llave + certificado) o contenedor .p12/.pfx.

package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

var errMaterialClosed = errors.New("material de firma cerrado")

// Material llave privada RSA y certificado X.509 del emisor. Solo lectura mientras se firma;
// puede compartirse entre firmas concurrentes y se libera con Close.
type Material struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

// LoadMaterial lee la llave y el certificado desde las rutas indicadas.
// Si alguna ruta termina en .p12 o .pfx se decodifica como PKCS#12 con Password.
// Errores de lectura o de formato devuelven *sunat.KeyReadError; llave no RSA o que no
// corresponde al certificado devuelve *sunat.SigningError.
func LoadMaterial(paths sunat.SigningMaterial) (*Material, error) {
	if p12 := pkcs12Path(paths); p12 != "" {
		return loadP12(p12, paths.Password)
	}
	if paths.KeyPath == "" {
		return nil, &sunat.KeyReadError{Path: paths.KeyPath, Err: errors.New("ruta de llave vacía")}
	}
	if paths.CertPath == "" {
		return nil, &sunat.KeyReadError{Path: paths.CertPath, Err: errors.New("ruta de certificado vacía")}
	}

	keyData, err := os.ReadFile(paths.KeyPath)
	if err != nil {
		return nil, &sunat.KeyReadError{Path: paths.KeyPath, Err: err}
	}
	signer, err := parsePrivateKey(keyData)
	if err != nil {
		return nil, &sunat.KeyReadError{Path: paths.KeyPath, Err: err}
	}
	certData, err := os.ReadFile(paths.CertPath)
	if err != nil {
		return nil, &sunat.KeyReadError{Path: paths.CertPath, Err: err}
	}
	cert, err := parseCertificate(certData)
	if err != nil {
		return nil, &sunat.KeyReadError{Path: paths.CertPath, Err: err}
	}
	return newMaterial(signer, cert)
}

// WithMaterial carga el material, ejecuta fn y lo libera siempre al terminar.
func WithMaterial(paths sunat.SigningMaterial, fn func(*Material) error) error {
	m, err := LoadMaterial(paths)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

// Certificate devuelve el certificado del emisor.
func (m *Material) Certificate() *x509.Certificate { return m.cert }

// CertificateBase64 DER del certificado en Base64, sin cabeceras PEM ni saltos de línea.
func (m *Material) CertificateBase64() string {
	return base64.StdEncoding.EncodeToString(m.cert.Raw)
}

// Close suelta la llave y pone en cero D, los primos y los CRT de big.Int.
// No alcanza copias internas del runtime (la forma precomputada de crypto/rsa)
// ni lo que el GC aún no recolectó. Firmar después de Close devuelve SigningError.
func (m *Material) Close() {
	if m == nil || m.key == nil {
		return
	}
	m.key.D.SetInt64(0)
	for _, p := range m.key.Primes {
		p.SetInt64(0)
	}
	if m.key.Precomputed.Dp != nil {
		m.key.Precomputed.Dp.SetInt64(0)
		m.key.Precomputed.Dq.SetInt64(0)
		m.key.Precomputed.Qinv.SetInt64(0)
	}
	m.key = nil
}

func (m *Material) privateKey() (*rsa.PrivateKey, error) {
	if m == nil || m.key == nil {
		return nil, &sunat.SigningError{Op: "llave", Err: errMaterialClosed}
	}
	return m.key, nil
}

func newMaterial(key any, cert *x509.Certificate) (*Material, error) {
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, &sunat.SigningError{Op: "llave", Err: fmt.Errorf("se requiere llave RSA, se recibió %T", key)}
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok || !rsaKey.PublicKey.Equal(pub) {
		return nil, &sunat.SigningError{Op: "certificado", Err: errors.New("la llave privada no corresponde al certificado")}
	}
	return &Material{key: rsaKey, cert: cert}, nil
}

func pkcs12Path(paths sunat.SigningMaterial) string {
	for _, p := range []string{paths.CertPath, paths.KeyPath} {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".p12", ".pfx":
			return p
		}
	}
	return ""
}

func loadP12(path, password string) (*Material, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &sunat.KeyReadError{Path: path, Err: err}
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, &sunat.KeyReadError{Path: path, Err: fmt.Errorf("decodificar p12: %w", err)}
	}
	return newMaterial(priv, cert)
}

// parsePrivateKey acepta PEM PKCS#1 ("RSA PRIVATE KEY") o PKCS#8 ("PRIVATE KEY").
func parsePrivateKey(data []byte) (any, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, errors.New("no se encontró una llave privada PEM")
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			return x509.ParsePKCS1PrivateKey(block.Bytes)
		case "PRIVATE KEY":
			return x509.ParsePKCS8PrivateKey(block.Bytes)
		}
	}
}

// parseCertificate acepta PEM (primer bloque CERTIFICATE) o DER.
func parseCertificate(data []byte) (*x509.Certificate, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
	return x509.ParseCertificate(data)
}
