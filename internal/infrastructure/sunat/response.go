package sunat

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	pkgsunat "github.com/jhoicas/facturador-sunat/pkg/sunat"
)

// Estados de getStatusCdr.
const (
	statusCdrAccepted = "0001"
	statusCdrRejected = "0002"
	statusCdrVoided   = "0003"
	statusCdrNotFound = "0011"
)

// Interpreter convierte la respuesta cruda en un sunat.Outcome. Nunca devuelve error:
// una respuesta que no se entiende es un Outcome MALFORMED.
type Interpreter struct {
	now func() time.Time
}

// NewInterpreter crea el intérprete.
func NewInterpreter() *Interpreter {
	return &Interpreter{now: time.Now}
}

// Interpret clasifica la respuesta de sendBill:
//
//	Fault numérico            → REJECTED (Exception si el código es menor a 2000)
//	Fault no numérico         → MALFORMED
//	CDR ResponseCode 0        → ACCEPTED
//	CDR ResponseCode ≥ 4000   → ACCEPTED con observaciones
//	CDR ResponseCode 2000-3999 → REJECTED
//	CDR ResponseCode 100-1999 → REJECTED con Exception
func (i *Interpreter) Interpret(raw *RawResponse) *sunat.Outcome {
	if raw == nil {
		return &sunat.Outcome{Status: sunat.StatusMalformed, Description: "respuesta vacía", ReceivedAt: i.now()}
	}
	out := &sunat.Outcome{
		SubmissionID: raw.SubmissionID,
		FileName:     raw.FileName,
		Raw:          raw.Envelope,
		ReceivedAt:   i.now(),
	}
	if f := raw.Fault; f != nil {
		out.Code = f.Numeric
		out.Description = f.String
		if f.Detail != "" && f.Detail != f.String {
			out.Description = strings.TrimSpace(f.String + " " + f.Detail)
		}
		n, err := strconv.Atoi(f.Numeric)
		if err != nil {
			out.Status = sunat.StatusMalformed
			if out.Description == "" {
				out.Description = "SOAP Fault sin código: " + f.Code
			}
			return out
		}
		out.Status = sunat.StatusRejected
		out.Exception = n < 2000
		return out
	}
	if len(raw.ApplicationResponse) == 0 {
		out.Status = sunat.StatusMalformed
		out.Description = "la respuesta no contiene applicationResponse"
		return out
	}
	i.applyCDR(out, raw.ApplicationResponse)
	return out
}

// InterpretStatus clasifica la respuesta de getStatusCdr. Si trae CDR se interpreta igual que sendBill;
// si no, se usa el código de estado de la consulta. "No existe" es NOT_FOUND: se puede reenviar.
func (i *Interpreter) InterpretStatus(raw *RawResponse) *sunat.Outcome {
	if raw == nil || raw.Fault != nil || len(raw.ApplicationResponse) > 0 {
		out := i.Interpret(raw)
		if raw != nil && out.Code == "" {
			out.Code = raw.StatusCode
		}
		return out
	}
	out := &sunat.Outcome{
		SubmissionID: raw.SubmissionID,
		Code:         raw.StatusCode,
		Description:  raw.StatusMessage,
		Raw:          raw.Envelope,
		ReceivedAt:   i.now(),
	}
	switch raw.StatusCode {
	case statusCdrAccepted:
		out.Status = sunat.StatusAccepted
	case statusCdrRejected, statusCdrVoided:
		out.Status = sunat.StatusRejected
	case statusCdrNotFound:
		out.Status = sunat.StatusNotFound
	case "":
		out.Status = sunat.StatusMalformed
		out.Description = "la consulta no devolvió statusCode"
	default:
		out.Status = sunat.StatusRejected
		out.Exception = true
	}
	return out
}

// applyCDR abre el ZIP de la CDR (R-{nombre}.xml) y lee el ApplicationResponse.
func (i *Interpreter) applyCDR(out *sunat.Outcome, zipBytes []byte) {
	_, cdr, err := ReadSingleEntry(zipBytes)
	if err != nil {
		out.Status = sunat.StatusMalformed
		out.Description = err.Error()
		return
	}
	out.CDR = cdr

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = pkgsunat.CharsetReader
	if err := doc.ReadFromBytes(cdr); err != nil {
		out.Status = sunat.StatusMalformed
		out.Description = "CDR ilegible: " + err.Error()
		return
	}
	out.CDRDigest = cdrDigest(cdr)
	out.Ticket = text(doc.FindElement("/ApplicationResponse/ID"))

	resp := doc.FindElement("//DocumentResponse/Response")
	if resp == nil {
		out.Status = sunat.StatusMalformed
		out.Description = "CDR sin cac:DocumentResponse/cac:Response"
		return
	}
	out.Code = text(resp.SelectElement("ResponseCode"))
	out.Description = text(resp.SelectElement("Description"))
	out.ReferenceID = text(resp.SelectElement("ReferenceID"))

	n, err := strconv.Atoi(out.Code)
	if err != nil {
		out.Status = sunat.StatusMalformed
		return
	}
	out.Notes = cdrNotes(doc)
	switch {
	case n == 0 || n >= 4000:
		out.Status = sunat.StatusAccepted
	default:
		out.Status = sunat.StatusRejected
		out.Exception = n < 2000
	}
}

// cdrNotes observaciones "4287 - mensaje" en cbc:Note de la CDR.
func cdrNotes(doc *etree.Document) []sunat.Note {
	var notes []sunat.Note
	for _, el := range doc.FindElements("/ApplicationResponse/Note") {
		code, msg, found := strings.Cut(text(el), "-")
		code = strings.TrimSpace(code)
		if !found || !pkgsunat.IsDigits(code) {
			notes = append(notes, sunat.Note{Message: text(el)})
			continue
		}
		notes = append(notes, sunat.Note{Code: code, Message: strings.TrimSpace(msg)})
	}
	return notes
}

// cdrDigest SHA-256 de la CDR canonicalizada, para auditoría. Vacío si no se puede canonicalizar.
func cdrDigest(cdr []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(cdr))
	dec.CharsetReader = pkgsunat.CharsetReader
	canonical, err := c14n.Canonicalize(dec)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(h[:])
}

func text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}
