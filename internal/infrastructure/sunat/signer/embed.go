package signer

import (
	"bytes"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
)

// Embed inserta la firma dentro del único <ext:ExtensionContent></ext:ExtensionContent> vacío.
// Es un empalme textual: el resto de bytes del documento no cambia.
// Si no hay exactamente un punto de inserción devuelve sunat.ErrInsertionPointMissing.
func Embed(xmlBytes []byte, signatureXML string) ([]byte, error) {
	idx, err := insertionPoint(xmlBytes)
	if err != nil {
		return nil, err
	}
	at := idx + len(extensionContentOpen)
	out := make([]byte, 0, len(xmlBytes)+len(signatureXML))
	out = append(out, xmlBytes[:at]...)
	out = append(out, signatureXML...)
	out = append(out, xmlBytes[at:]...)
	return out, nil
}

func insertionPoint(xmlBytes []byte) (int, error) {
	ph := []byte(placeholder)
	idx := bytes.Index(xmlBytes, ph)
	if idx < 0 || bytes.Count(xmlBytes, ph) != 1 {
		return -1, sunat.ErrInsertionPointMissing
	}
	return idx, nil
}
