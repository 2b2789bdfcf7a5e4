package sunat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	infrasunat "github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat"
)

func rawCDR(t *testing.T, cdr string) *infrasunat.RawResponse {
	t.Helper()
	return &infrasunat.RawResponse{
		SubmissionID:        "sub-1",
		FileName:            "20123456789-01-F001-123.zip",
		Envelope:            []byte("<envelope/>"),
		ApplicationResponse: zipOf(t, "R-20123456789-01-F001-123.xml", cdr),
	}
}

func TestInterpret_Aceptado(t *testing.T) {
	out := infrasunat.NewInterpreter().Interpret(rawCDR(t, cdrXML("0", "La Factura numero F001-123, ha sido aceptada")))

	assert.Equal(t, sunat.StatusAccepted, out.Status)
	assert.True(t, out.Accepted())
	assert.False(t, out.HasObservations())
	assert.Equal(t, "0", out.Code)
	assert.Equal(t, "F001-123", out.ReferenceID)
	assert.Equal(t, "1710000000001", out.Ticket)
	assert.Equal(t, "sub-1", out.SubmissionID)
	assert.NotEmpty(t, out.CDR)
	assert.NotEmpty(t, out.CDRDigest)
	assert.Equal(t, []byte("<envelope/>"), out.Raw)
}

func TestInterpret_AceptadoConObservaciones(t *testing.T) {
	out := infrasunat.NewInterpreter().Interpret(rawCDR(t, cdrXML("4287", "Aceptada con observaciones",
		"4287 - El precio unitario de la operación que se informa difiere de los cálculos realizados")))

	assert.Equal(t, sunat.StatusAccepted, out.Status)
	assert.True(t, out.HasObservations())
	require.Len(t, out.Notes, 1)
	assert.Equal(t, "4287", out.Notes[0].Code)
	assert.Contains(t, out.Notes[0].Message, "precio unitario")
}

// Una CDR con código 2335 es un rechazo de negocio, no un error.
func TestInterpret_RechazoCDR2335(t *testing.T) {
	out := infrasunat.NewInterpreter().Interpret(rawCDR(t, cdrXML("2335", "El documento electrónico ingresado ha sido alterado")))

	assert.Equal(t, sunat.StatusRejected, out.Status)
	assert.Equal(t, "2335", out.Code)
	assert.False(t, out.Exception)
	assert.Contains(t, out.Description, "alterado")
}

func TestInterpret_RechazoFault2335(t *testing.T) {
	raw := &infrasunat.RawResponse{Fault: &infrasunat.Fault{
		Code: "soap-env:Client.2335", String: "El documento electrónico ingresado ha sido alterado", Numeric: "2335",
	}}
	out := infrasunat.NewInterpreter().Interpret(raw)

	assert.Equal(t, sunat.StatusRejected, out.Status)
	assert.Equal(t, "2335", out.Code)
	assert.False(t, out.Exception)
}

func TestInterpret_Excepcion(t *testing.T) {
	raw := &infrasunat.RawResponse{Fault: &infrasunat.Fault{Code: "soap-env:Client.1033", String: "El comprobante fue registrado previamente", Numeric: "1033"}}
	out := infrasunat.NewInterpreter().Interpret(raw)
	assert.Equal(t, sunat.StatusRejected, out.Status)
	assert.True(t, out.Exception)
}

func TestInterpret_Malformado(t *testing.T) {
	i := infrasunat.NewInterpreter()

	assert.Equal(t, sunat.StatusMalformed, i.Interpret(nil).Status)
	assert.Equal(t, sunat.StatusMalformed, i.Interpret(&infrasunat.RawResponse{Envelope: []byte("<x/>")}).Status)
	assert.Equal(t, sunat.StatusMalformed, i.Interpret(&infrasunat.RawResponse{ApplicationResponse: []byte("no es zip")}).Status)
	assert.Equal(t, sunat.StatusMalformed, i.Interpret(&infrasunat.RawResponse{Fault: &infrasunat.Fault{Code: "env:Server", String: "Internal Error"}}).Status)
	assert.Equal(t, sunat.StatusMalformed, i.Interpret(rawCDR(t, "<ar:ApplicationResponse xmlns:ar=\"urn:x\"/>")).Status)
}

// La CDR puede venir declarada en ISO-8859-1.
func TestInterpret_CDRLatin1(t *testing.T) {
	cdr := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" +
		"<ApplicationResponse><ID>1</ID><DocumentResponse><Response><ReferenceID>F001-123</ReferenceID>" +
		"<ResponseCode>0</ResponseCode><Description>Aceptada con \xf1</Description></Response></DocumentResponse></ApplicationResponse>"
	out := infrasunat.NewInterpreter().Interpret(rawCDR(t, cdr))

	assert.Equal(t, sunat.StatusAccepted, out.Status)
	assert.Equal(t, "Aceptada con ñ", out.Description)
}

func TestInterpretStatus(t *testing.T) {
	i := infrasunat.NewInterpreter()
	assert.Equal(t, sunat.StatusAccepted, i.InterpretStatus(&infrasunat.RawResponse{StatusCode: "0001"}).Status)
	assert.Equal(t, sunat.StatusRejected, i.InterpretStatus(&infrasunat.RawResponse{StatusCode: "0002"}).Status)
	assert.Equal(t, sunat.StatusNotFound, i.InterpretStatus(&infrasunat.RawResponse{StatusCode: "0011"}).Status)

	withCDR := rawCDR(t, cdrXML("0", "aceptada"))
	withCDR.StatusCode = "0004"
	out := i.InterpretStatus(withCDR)
	assert.Equal(t, sunat.StatusAccepted, out.Status)
	assert.Equal(t, "0", out.Code)
}
