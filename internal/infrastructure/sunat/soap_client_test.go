package sunat_test

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	infrasunat "github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat"
)

var testCredentials = infrasunat.Credentials{RUC: "20123456789", User: "MODDATOS", Password: "moddatos"}

func sendReq(endpoint string) infrasunat.SendBillRequest {
	return infrasunat.SendBillRequest{
		Endpoint:    endpoint,
		Credentials: testCredentials,
		FileName:    "20123456789-01-F001-123.zip",
		Content:     []byte("PK-zip"),
	}
}

func TestSendBill_Envelope(t *testing.T) {
	var got *etree.Document
	var action string
	response := sendBillResponse(t, cdrXML("0", "La Factura numero F001-123, ha sido aceptada"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action = r.Header.Get("SOAPAction")
		body, _ := io.ReadAll(r.Body)
		got = etree.NewDocument()
		_ = got.ReadFromBytes(body)
		_, _ = io.WriteString(w, response)
	}))
	defer srv.Close()

	raw, err := infrasunat.NewSOAPClient().SendBill(context.Background(), sendReq(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "urn:sendBill", action)
	assert.Equal(t, "20123456789MODDATOS", got.FindElement("//Security/UsernameToken/Username").Text())
	assert.Equal(t, "moddatos", got.FindElement("//Security/UsernameToken/Password").Text())
	assert.Equal(t, "20123456789-01-F001-123.zip", got.FindElement("//Body/sendBill/fileName").Text())
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("PK-zip")), got.FindElement("//Body/sendBill/contentFile").Text())
	assert.Equal(t, "http://service.sunat.gob.pe", got.Root().SelectAttrValue("xmlns:ser", ""))

	assert.NotEmpty(t, raw.SubmissionID)
	assert.NotEmpty(t, raw.ApplicationResponse)
	assert.Equal(t, []infrasunat.State{
		infrasunat.StateIdle, infrasunat.StateSending, infrasunat.StateAwaitingResponse, infrasunat.StateSucceeded,
	}, raw.Transitions)
}

// Timeout a mitad de la llamada: la petición ya salió, el resultado es desconocido.
func TestSendBill_TimeoutResultadoDesconocido(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	client := infrasunat.NewSOAPClient(infrasunat.WithTimeout(100 * time.Millisecond))
	raw, err := client.SendBill(context.Background(), sendReq(srv.URL))
	assert.Nil(t, raw)

	var te *sunat.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.OutcomeUnknown)
	assert.True(t, sunat.IsOutcomeUnknown(err))
}

// Sin conexión la petición nunca salió: se puede reintentar.
func TestSendBill_ConexionRechazada(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := infrasunat.NewSOAPClient().SendBill(context.Background(), sendReq(url))
	var te *sunat.TransportError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.OutcomeUnknown)
}

func TestSendBill_ContextoCanceladoTrasEnviar(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		cancel()
		<-r.Context().Done()
	}))
	defer srv.Close()

	_, err := infrasunat.NewSOAPClient().SendBill(ctx, sendReq(srv.URL))
	assert.True(t, sunat.IsOutcomeUnknown(err))
}

func TestSendBill_ClasificacionDeFaults(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		auth     bool
		unknown  *bool
		faultNum string
	}{
		{name: "usuario incorrecto", status: 500, body: faultResponse("soap-env:Client.0102", "Usuario o contraseña incorrectos"), auth: true},
		{name: "sin perfil", status: 500, body: faultResponse("soap-env:Client.0111", "No tiene el perfil para enviar comprobantes electronicos"), auth: true},
		{name: "servicio no disponible", status: 500, body: faultResponse("soap-env:Server.0109", "El sistema no puede responder su solicitud"), unknown: boolPtr(false)},
		{name: "401 sin SOAP", status: 401, body: "Unauthorized", auth: true},
		{name: "502 sin SOAP", status: 502, body: "<html>Bad Gateway</html>", unknown: boolPtr(true)},
		{name: "rechazo de negocio", status: 500, body: faultResponse("soap-env:Client.2335", "El documento electrónico ingresado ha sido alterado"), faultNum: "2335"},
		{name: "código en faultstring", status: 500, body: faultResponse("env:Client", "2800"), faultNum: "2800"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/xml")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			raw, err := infrasunat.NewSOAPClient().SendBill(context.Background(), sendReq(srv.URL))
			switch {
			case tc.auth:
				var ae *sunat.AuthenticationError
				assert.ErrorAs(t, err, &ae)
			case tc.unknown != nil:
				var te *sunat.TransportError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, *tc.unknown, te.OutcomeUnknown)
			default:
				require.NoError(t, err)
				require.NotNil(t, raw.Fault)
				assert.Equal(t, tc.faultNum, raw.Fault.Numeric)
			}
		})
	}
}

func TestGetStatusCdr(t *testing.T) {
	var got *etree.Document
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = etree.NewDocument()
		_ = got.ReadFromBytes(body)
		_, _ = io.WriteString(w, `<S:Envelope xmlns:S="http://schemas.xmlsoap.org/soap/envelope/"><S:Body>`+
			`<ns2:getStatusCdrResponse xmlns:ns2="http://service.sunat.gob.pe"><statusCdr>`+
			`<statusCode>0011</statusCode><statusMessage>El comprobante de pago electrónico no existe.</statusMessage>`+
			`</statusCdr></ns2:getStatusCdrResponse></S:Body></S:Envelope>`)
	}))
	defer srv.Close()

	raw, err := infrasunat.NewSOAPClient().GetStatusCdr(context.Background(), infrasunat.StatusRequest{
		Endpoint: srv.URL, Credentials: testCredentials,
		RUC: "20123456789", DocumentType: "01", Series: "F001", Number: "00000123",
	})
	require.NoError(t, err)
	assert.Equal(t, "0011", raw.StatusCode)
	assert.Equal(t, "123", got.FindElement("//getStatusCdr/numeroComprobante").Text())
	assert.Equal(t, "F001", got.FindElement("//getStatusCdr/serieComprobante").Text())

	out := infrasunat.NewInterpreter().InterpretStatus(raw)
	assert.Equal(t, sunat.StatusNotFound, out.Status)
}

// Respuesta por encima del límite: error explícito, no un envelope truncado.
func TestSendBill_RespuestaDemasiadoGrande(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, "<soap-env:Envelope>")
		_, _ = w.Write(make([]byte, 10<<20))
	}))
	defer srv.Close()

	raw, err := infrasunat.NewSOAPClient().SendBill(context.Background(), sendReq(srv.URL))
	assert.Nil(t, raw)
	require.ErrorIs(t, err, infrasunat.ErrResponseTooLarge)
	assert.True(t, sunat.IsOutcomeUnknown(err))
}

func TestCredentials_Username(t *testing.T) {
	assert.Equal(t, "20123456789MODDATOS", testCredentials.Username())
	assert.True(t, strings.HasPrefix(infrasunat.BillURL("prod"), "https://e-factura.sunat.gob.pe"))
	assert.Equal(t, infrasunat.BillURLBeta, infrasunat.BillURL(""))
}

func boolPtr(b bool) *bool { return &b }
