package sunat_test

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	infrasunat "github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat"
)

func TestFileName(t *testing.T) {
	cases := []struct {
		kind        sunat.DocumentKind
		series      string
		correlative string
		want        string
	}{
		{sunat.KindInvoice, "F001", "123", "20123456789-01-F001-123"},
		{sunat.KindReceipt, "B001", "00000045", "20123456789-03-B001-45"},
		{sunat.KindCreditNote, "fc01", "7", "20123456789-07-FC01-7"},
	}
	for _, tc := range cases {
		got, err := infrasunat.FileName("20123456789", tc.kind, tc.series, tc.correlative)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := infrasunat.FileName("20123456789", "summary", "F001", "1")
	assert.ErrorIs(t, err, sunat.ErrUnsupportedDocumentKind)
}

// RUC 20123456789, factura F001-123 → 20123456789-01-F001-123.zip con 20123456789-01-F001-123.xml.
func TestBuildPackage_EntradaUnica(t *testing.T) {
	name, err := infrasunat.FileName("20123456789", sunat.KindInvoice, "F001", "123")
	require.NoError(t, err)
	signed := []byte(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<Invoice>firmado</Invoice>")

	pkg, err := infrasunat.BuildPackage(name, signed)
	require.NoError(t, err)
	assert.Equal(t, "20123456789-01-F001-123.zip", pkg.ZipName())

	zr, err := zip.NewReader(bytes.NewReader(pkg.Content), int64(len(pkg.Content)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "20123456789-01-F001-123.xml", zr.File[0].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, signed, content)

	entry, data, err := infrasunat.ReadSingleEntry(pkg.Content)
	require.NoError(t, err)
	assert.Equal(t, pkg.XMLName(), entry)
	assert.Equal(t, signed, data)
}

func TestPackage_Save(t *testing.T) {
	pkg, err := infrasunat.BuildPackage("20123456789-01-F001-123", []byte("<Invoice/>"))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "salida")
	path, err := pkg.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20123456789-01-F001-123.zip"), path)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pkg.Content, onDisk)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no deben quedar temporales")
}

func TestPackage_SaveError(t *testing.T) {
	pkg, err := infrasunat.BuildPackage("20123456789-01-F001-123", []byte("<Invoice/>"))
	require.NoError(t, err)

	// Un archivo en lugar de directorio impide escribir.
	blocker := filepath.Join(t.TempDir(), "archivo")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err = pkg.Save(filepath.Join(blocker, "sub"))
	var pe *sunat.PackagingError
	assert.ErrorAs(t, err, &pe)
}

func TestReadSingleEntry_LimiteDeTamano(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("R-20123456789-01-F001-123.xml")
	require.NoError(t, err)
	_, err = w.Write(make([]byte, 10<<20+1))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, _, err = infrasunat.ReadSingleEntry(buf.Bytes())
	assert.ErrorIs(t, err, infrasunat.ErrResponseTooLarge)
}
