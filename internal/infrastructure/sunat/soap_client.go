package sunat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	pkgsunat "github.com/jhoicas/facturador-sunat/pkg/sunat"
)

// ── Constantes del protocolo ──────────────────────────────────────────────────

const (
	soapNS         = "http://schemas.xmlsoap.org/soap/envelope/"
	serNS          = "http://service.sunat.gob.pe"
	wsseNS         = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	wssePasswordTx = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText"

	defaultTimeout   = 60 * time.Second
	maxResponseBytes = 10 << 20
)

// ── Máquina de estados ────────────────────────────────────────────────────────

// State estado de una llamada: Idle → Sending → AwaitingResponse → {Succeeded | Failed}.
type State int32

const (
	StateIdle State = iota
	StateSending
	StateAwaitingResponse
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSending:
		return "SENDING"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// exchange sigue el estado de una sola llamada. Los callbacks de httptrace llegan desde otra goroutine.
type exchange struct {
	mu          sync.Mutex
	state       State
	transitions []State
	wroteHeader atomic.Bool
	log         zerolog.Logger
}

func newExchange(log zerolog.Logger) *exchange {
	return &exchange{state: StateIdle, transitions: []State{StateIdle}, log: log}
}

// move avanza el estado; nunca retrocede ni sale de un estado terminal.
func (x *exchange) move(to State) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if to <= x.state || x.state == StateSucceeded || x.state == StateFailed {
		return
	}
	x.log.Debug().Str("from", x.state.String()).Str("state", to.String()).Msg("sunat: transición")
	x.state = to
	x.transitions = append(x.transitions, to)
}

func (x *exchange) history() []State {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]State(nil), x.transitions...)
}

// ── Tipos públicos ────────────────────────────────────────────────────────────

// SendBillRequest datos de un envío síncrono al billService.
type SendBillRequest struct {
	Endpoint    string // vacío = beta
	Credentials Credentials
	FileName    string // nombre del ZIP, ej: 20123456789-01-F001-123.zip
	Content     []byte // bytes del ZIP
}

// StatusRequest consulta de la CDR de un comprobante ya enviado (billConsultService).
type StatusRequest struct {
	Endpoint     string // vacío = ConsultURL
	Credentials  Credentials
	RUC          string
	DocumentType string // 01, 03, 07
	Series       string
	Number       string
}

// Fault SOAP Fault devuelto por SUNAT.
type Fault struct {
	Code    string
	String  string
	Detail  string
	Numeric string // código SUNAT de 4 dígitos, si lo hay
}

// RawResponse respuesta sin interpretar. Solo existe si hubo ida y vuelta completa.
type RawResponse struct {
	SubmissionID string
	Endpoint     string
	FileName     string
	HTTPStatus   int
	Envelope     []byte
	Fault        *Fault
	// ApplicationResponse ZIP de la CDR ya decodificado de Base64.
	ApplicationResponse []byte
	// Campos de getStatusCdr.
	StatusCode    string
	StatusMessage string
	Transitions   []State
	Duration      time.Duration
}

// BillSubmitter puerto de salida hacia SUNAT; el orquestador depende de esta interfaz.
type BillSubmitter interface {
	SendBill(ctx context.Context, req SendBillRequest) (*RawResponse, error)
	GetStatusCdr(ctx context.Context, req StatusRequest) (*RawResponse, error)
}

// ── Implementación SOAP ───────────────────────────────────────────────────────

// SOAPClient cliente del billService de SUNAT. Una llamada, una respuesta: nunca reintenta.
// Solo guarda dependencias inmutables, por lo que es seguro para uso concurrente.
type SOAPClient struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// ClientOption configura el cliente.
type ClientOption func(*SOAPClient)

// WithHTTPClient usa un http.Client propio (proxies, TLS, transporte de pruebas).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(s *SOAPClient) { s.httpClient = c }
}

// WithTimeout fija el timeout total de cada llamada.
func WithTimeout(d time.Duration) ClientOption {
	return func(s *SOAPClient) {
		cp := *s.httpClient
		cp.Timeout = d
		s.httpClient = &cp
	}
}

// WithLogger registra transiciones de estado y resultados.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(s *SOAPClient) { s.log = l }
}

// NewSOAPClient construye el cliente con timeout de 60 s: el billService suele tardar varios segundos.
func NewSOAPClient(opts ...ClientOption) *SOAPClient {
	c := &SOAPClient{
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ BillSubmitter = (*SOAPClient)(nil)

// SendBill envía el ZIP con la operación sendBill.
//
// Errores:
//   - *sunat.TransportError: falla de red; OutcomeUnknown indica si la petición alcanzó a salir.
//   - *sunat.AuthenticationError: credenciales SOL rechazadas.
//
// Un rechazo de negocio llega como RawResponse con Fault o CDR y se interpreta aparte.
func (c *SOAPClient) SendBill(ctx context.Context, req SendBillRequest) (*RawResponse, error) {
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = BillURLBeta
	}
	body := &sendBillBody{
		FileName:    req.FileName,
		ContentFile: base64.StdEncoding.EncodeToString(req.Content),
	}
	raw, err := c.call(ctx, endpoint, "urn:sendBill", req.Credentials, body)
	if raw != nil {
		raw.FileName = req.FileName
	}
	return raw, err
}

// GetStatusCdr consulta el estado y la CDR de un comprobante. Es la verificación previa a
// reenviar cuando un SendBill terminó con OutcomeUnknown.
func (c *SOAPClient) GetStatusCdr(ctx context.Context, req StatusRequest) (*RawResponse, error) {
	endpoint := req.Endpoint
	if endpoint == "" {
		endpoint = ConsultURL
	}
	number, err := strconv.Atoi(sunat.NormalizeCorrelative(req.Number))
	if err != nil {
		return nil, fmt.Errorf("%w: número %q", sunat.ErrInvalidDocument, req.Number)
	}
	body := &getStatusCdrBody{
		RUC:          req.RUC,
		DocumentType: req.DocumentType,
		Series:       req.Series,
		Number:       number,
	}
	return c.call(ctx, endpoint, "urn:getStatusCdr", req.Credentials, body)
}

func (c *SOAPClient) call(ctx context.Context, endpoint, action string, cred Credentials, content any) (*RawResponse, error) {
	submissionID := uuid.NewString()
	log := c.log.With().Str("submission_id", submissionID).Str("endpoint", endpoint).Logger()
	x := newExchange(log)
	started := time.Now()

	fail := func(err error) (*RawResponse, error) {
		x.move(StateFailed)
		log.Warn().Err(err).Msg("sunat: llamada fallida")
		return nil, err
	}

	envelope := soapEnvelope{
		XmlnsSoapenv: soapNS,
		XmlnsSer:     serNS,
		XmlnsWsse:    wsseNS,
		Header: soapHeader{Security: wsseSecurity{UsernameToken: wsseUsernameToken{
			Username: cred.Username(),
			Password: wssePassword{Type: wssePasswordTx, Value: cred.Password},
		}}},
		Body: soapBody{Content: content},
	}
	payload, err := xml.Marshal(envelope)
	if err != nil {
		return fail(fmt.Errorf("sunat: serializar envelope: %w", err))
	}
	payload = append([]byte(xml.Header), payload...)

	trace := &httptrace.ClientTrace{
		WroteHeaders: func() { x.wroteHeader.Store(true) },
		WroteRequest: func(httptrace.WroteRequestInfo) { x.move(StateAwaitingResponse) },
	}
	httpReq, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fail(&sunat.TransportError{Endpoint: endpoint, Err: err})
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", action)

	x.move(StateSending)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Si los headers salieron, SUNAT pudo haber registrado el comprobante.
		return fail(&sunat.TransportError{Endpoint: endpoint, OutcomeUnknown: x.wroteHeader.Load(), Err: err})
	}
	defer resp.Body.Close()
	x.move(StateAwaitingResponse)

	rawBody, err := readAllLimited(resp.Body, maxResponseBytes)
	if err != nil {
		return fail(&sunat.TransportError{Endpoint: endpoint, OutcomeUnknown: true, Err: fmt.Errorf("leer respuesta: %w", err)})
	}

	raw := &RawResponse{
		SubmissionID: submissionID,
		Endpoint:     endpoint,
		HTTPStatus:   resp.StatusCode,
		Envelope:     rawBody,
	}
	if err := c.parseResponse(raw, rawBody); err != nil {
		return fail(err)
	}
	x.move(StateSucceeded)
	raw.Transitions = x.history()
	raw.Duration = time.Since(started)
	log.Info().Int("http_status", resp.StatusCode).Str("code", faultNumeric(raw.Fault)).Dur("duration", raw.Duration).Msg("sunat: respuesta recibida")
	return raw, nil
}

// parseResponse desempaqueta el envelope y clasifica faults de autenticación y de sistema.
func (c *SOAPClient) parseResponse(raw *RawResponse, body []byte) error {
	var env soapResponseEnvelope
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = pkgsunat.CharsetReader
	parseErr := dec.Decode(&env)
	isSOAP := parseErr == nil && (env.Body.Fault != nil || env.Body.SendBill != nil || env.Body.StatusCdr != nil)

	if !isSOAP {
		switch {
		case raw.HTTPStatus == http.StatusUnauthorized || raw.HTTPStatus == http.StatusForbidden:
			return &sunat.AuthenticationError{Code: strconv.Itoa(raw.HTTPStatus), Message: http.StatusText(raw.HTTPStatus)}
		case raw.HTTPStatus < 200 || raw.HTTPStatus > 299:
			return &sunat.TransportError{Endpoint: raw.Endpoint, OutcomeUnknown: true, Err: fmt.Errorf("HTTP %d sin envelope SOAP", raw.HTTPStatus)}
		}
		// HTTP 200 con cuerpo ilegible: el intérprete lo clasifica como MALFORMED.
		return nil
	}

	if f := env.Body.Fault; f != nil {
		raw.Fault = &Fault{
			Code:    strings.TrimSpace(f.Code),
			String:  strings.TrimSpace(f.String),
			Detail:  strings.TrimSpace(f.Detail.Message),
			Numeric: faultCode(f.Code, f.String),
		}
		return classifyFault(raw)
	}
	if r := env.Body.SendBill; r != nil {
		content, err := decodeB64(r.ApplicationResponse)
		if err != nil {
			return nil
		}
		raw.ApplicationResponse = content
	}
	if r := env.Body.StatusCdr; r != nil {
		raw.StatusCode = strings.TrimSpace(r.Status.StatusCode)
		raw.StatusMessage = strings.TrimSpace(r.Status.StatusMessage)
		if content, err := decodeB64(r.Status.Content); err == nil {
			raw.ApplicationResponse = content
		}
	}
	return nil
}

// classifyFault separa faults que no son un resultado de negocio:
//
//	0101-0106, 0110-0113 → credenciales o perfil SOL → AuthenticationError
//	0100, 0109, 0130-0138 → SUNAT declara que no procesó la solicitud → TransportError (entregado: no)
//
// El resto queda en RawResponse.Fault para el intérprete.
func classifyFault(raw *RawResponse) error {
	n, err := strconv.Atoi(raw.Fault.Numeric)
	if err != nil {
		return nil
	}
	switch {
	case (n >= 101 && n <= 106) || (n >= 110 && n <= 113):
		return &sunat.AuthenticationError{Code: raw.Fault.Numeric, Message: raw.Fault.String}
	case n == 100 || n == 109 || (n >= 130 && n <= 138):
		return &sunat.TransportError{
			Endpoint: raw.Endpoint,
			Err:      fmt.Errorf("SOAP Fault [%s]: %s", raw.Fault.Numeric, raw.Fault.String),
		}
	}
	return nil
}

// faultCode extrae el código numérico de "soap-env:Client.2335" o de un faultstring numérico.
func faultCode(code, str string) string {
	code = strings.TrimSpace(code)
	if i := strings.LastIndex(code, "."); i >= 0 && pkgsunat.IsDigits(code[i+1:]) {
		return code[i+1:]
	}
	if s := strings.TrimSpace(str); pkgsunat.IsDigits(s) {
		return s
	}
	return ""
}

func faultNumeric(f *Fault) string {
	if f == nil {
		return ""
	}
	return f.Numeric
}

func decodeB64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, errors.New("contenido vacío")
	}
	return base64.StdEncoding.DecodeString(s)
}

// ErrResponseTooLarge la respuesta o la CDR descomprimida supera maxResponseBytes.
var ErrResponseTooLarge = fmt.Errorf("sunat: respuesta mayor a %d bytes", maxResponseBytes)

// readAllLimited lee hasta n bytes; si hay más devuelve ErrResponseTooLarge en vez de truncar.
func readAllLimited(r io.Reader, n int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, n+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > n {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// ── Estructuras SOAP ─────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName      xml.Name   `xml:"soapenv:Envelope"`
	XmlnsSoapenv string     `xml:"xmlns:soapenv,attr"`
	XmlnsSer     string     `xml:"xmlns:ser,attr"`
	XmlnsWsse    string     `xml:"xmlns:wsse,attr"`
	Header       soapHeader `xml:"soapenv:Header"`
	Body         soapBody   `xml:"soapenv:Body"`
}

type soapHeader struct {
	Security wsseSecurity `xml:"wsse:Security"`
}

type wsseSecurity struct {
	UsernameToken wsseUsernameToken `xml:"wsse:UsernameToken"`
}

type wsseUsernameToken struct {
	Username string       `xml:"wsse:Username"`
	Password wssePassword `xml:"wsse:Password"`
}

type wssePassword struct {
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
}

type soapBody struct {
	Content any
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type sendBillBody struct {
	XMLName     xml.Name `xml:"ser:sendBill"`
	FileName    string   `xml:"fileName"`
	ContentFile string   `xml:"contentFile"` // ZIP en Base64
}

type getStatusCdrBody struct {
	XMLName      xml.Name `xml:"ser:getStatusCdr"`
	RUC          string   `xml:"rucComprobante"`
	DocumentType string   `xml:"tipoComprobante"`
	Series       string   `xml:"serieComprobante"`
	Number       int      `xml:"numeroComprobante"`
}

// ── Estructuras de respuesta (sin prefijos: aceptan soap-env:, S:, ns2:...) ──

type soapResponseEnvelope struct {
	Body soapResponseBody `xml:"Body"`
}

type soapResponseBody struct {
	SendBill  *sendBillResponse     `xml:"sendBillResponse"`
	StatusCdr *getStatusCdrResponse `xml:"getStatusCdrResponse"`
	Fault     *soapFault            `xml:"Fault"`
}

type sendBillResponse struct {
	ApplicationResponse string `xml:"applicationResponse"`
}

type getStatusCdrResponse struct {
	Status statusCdr `xml:"statusCdr"`
}

type statusCdr struct {
	StatusCode    string `xml:"statusCode"`
	StatusMessage string `xml:"statusMessage"`
	Content       string `xml:"content"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail struct {
		Message string `xml:"message"`
	} `xml:"detail"`
}
