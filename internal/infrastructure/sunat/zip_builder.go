package sunat

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

// Package ZIP listo para enviar. Name es el nombre base sin extensión.
type Package struct {
	Name    string
	Content []byte
}

// ZipName nombre del archivo ZIP.
func (p *Package) ZipName() string { return p.Name + ".zip" }

// XMLName nombre de la única entrada del ZIP.
func (p *Package) XMLName() string { return p.Name + ".xml" }

// FileName genera el nombre exigido por SUNAT para el XML y el ZIP:
//
//	{RUC}-{tipo}-{serie}-{correlativo}   ej: 20123456789-01-F001-123
//
// El correlativo se escribe sin ceros a la izquierda.
func FileName(ruc string, kind sunat.DocumentKind, series, correlative string) (string, error) {
	code, err := kind.Code()
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		strings.TrimSpace(ruc),
		code,
		strings.ToUpper(strings.TrimSpace(series)),
		sunat.NormalizeCorrelative(correlative),
	}, "-"), nil
}

// FileNameFor nombre de archivo de un comprobante.
func FileNameFor(req *sunat.DocumentRequest) (string, error) {
	return FileName(req.Issuer.DocumentID, req.Kind, req.Series, req.Correlative)
}

// CompressXMLToZip empaqueta el XML firmado en un ZIP en memoria con una única entrada.
func CompressXMLToZip(xmlBytes []byte, xmlFilename string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create(xmlFilename)
	if err != nil {
		return nil, &sunat.PackagingError{File: xmlFilename, Err: err}
	}
	if _, err := fw.Write(xmlBytes); err != nil {
		return nil, &sunat.PackagingError{File: xmlFilename, Err: err}
	}
	if err := zw.Close(); err != nil {
		return nil, &sunat.PackagingError{File: xmlFilename, Err: err}
	}
	return buf.Bytes(), nil
}

// BuildPackage empaqueta el documento firmado con el nombre {name}.xml dentro de {name}.zip.
func BuildPackage(name string, signedXML []byte) (*Package, error) {
	content, err := CompressXMLToZip(signedXML, name+".xml")
	if err != nil {
		return nil, err
	}
	return &Package{Name: name, Content: content}, nil
}

// Save escribe el ZIP en dir (archivo temporal + rename) y devuelve la ruta final.
func (p *Package) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &sunat.PackagingError{File: p.ZipName(), Err: err}
	}
	tmp, err := os.CreateTemp(dir, p.Name+"-*.tmp")
	if err != nil {
		return "", &sunat.PackagingError{File: p.ZipName(), Err: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(p.Content); err != nil {
		tmp.Close()
		return "", &sunat.PackagingError{File: p.ZipName(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &sunat.PackagingError{File: p.ZipName(), Err: err}
	}
	final := filepath.Join(dir, p.ZipName())
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", &sunat.PackagingError{File: p.ZipName(), Err: err}
	}
	return final, nil
}

// ReadSingleEntry abre un ZIP de una sola entrada (el paquete o la CDR) y devuelve nombre y contenido.
func ReadSingleEntry(zipBytes []byte) (string, []byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return "", nil, fmt.Errorf("sunat: abrir zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", nil, fmt.Errorf("sunat: abrir %s: %w", f.Name, err)
		}
		data, err := readAllLimited(rc, maxResponseBytes)
		rc.Close()
		if err != nil {
			return "", nil, fmt.Errorf("sunat: leer %s: %w", f.Name, err)
		}
		return f.Name, data, nil
	}
	return "", nil, fmt.Errorf("sunat: zip sin archivos")
}
