package sunat_test

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// cdrXML ApplicationResponse mínimo como el que devuelve SUNAT.
func cdrXML(code, description string, notes ...string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sb.WriteString(`<ar:ApplicationResponse xmlns:ar="urn:oasis:names:specification:ubl:schema:xsd:ApplicationResponse-2" `)
	sb.WriteString(`xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2" `)
	sb.WriteString(`xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">`)
	sb.WriteString(`<cbc:UBLVersionID>2.0</cbc:UBLVersionID><cbc:ID>1710000000001</cbc:ID>`)
	sb.WriteString(`<cbc:IssueDate>2024-03-15</cbc:IssueDate>`)
	for _, n := range notes {
		sb.WriteString(`<cbc:Note>` + n + `</cbc:Note>`)
	}
	sb.WriteString(`<cac:DocumentResponse><cac:Response><cbc:ReferenceID>F001-123</cbc:ReferenceID>`)
	sb.WriteString(fmt.Sprintf(`<cbc:ResponseCode>%s</cbc:ResponseCode><cbc:Description>%s</cbc:Description>`, code, description))
	sb.WriteString(`</cac:Response></cac:DocumentResponse></ar:ApplicationResponse>`)
	return sb.String()
}

func zipOf(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func sendBillResponse(t *testing.T, cdr string) string {
	t.Helper()
	b64 := base64.StdEncoding.EncodeToString(zipOf(t, "R-20123456789-01-F001-123.xml", cdr))
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<soap-env:Envelope xmlns:soap-env="http://schemas.xmlsoap.org/soap/envelope/"><soap-env:Header/>` +
		`<soap-env:Body><br:sendBillResponse xmlns:br="http://service.sunat.gob.pe">` +
		`<applicationResponse>` + b64 + `</applicationResponse>` +
		`</br:sendBillResponse></soap-env:Body></soap-env:Envelope>`
}

func faultResponse(code, message string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<soap-env:Envelope xmlns:soap-env="http://schemas.xmlsoap.org/soap/envelope/"><soap-env:Body>` +
		`<soap-env:Fault><faultcode>` + code + `</faultcode><faultstring>` + message + `</faultstring></soap-env:Fault>` +
		`</soap-env:Body></soap-env:Envelope>`
}
