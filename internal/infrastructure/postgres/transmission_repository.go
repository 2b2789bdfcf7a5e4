package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/facturador-sunat/internal/domain/entity"
	"github.com/jhoicas/facturador-sunat/internal/domain/repository"
)

var _ repository.TransmissionRepository = (*TransmissionRepo)(nil)

// TransmissionRepo implementación de TransmissionRepository sobre la tabla sunat_transmissions.
type TransmissionRepo struct {
	q Querier
}

// NewTransmissionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTransmissionRepository(q Querier) *TransmissionRepo {
	return &TransmissionRepo{q: q}
}

const transmissionColumns = `id, submission_id, environment, issuer_ruc, document_type, series, correlative,
	file_name, status, response_code, description, ticket, digest_value, cdr_digest, grand_total,
	error_message, signed_xml, cdr, created_at, updated_at`

// Create registra la transmisión antes del envío.
func (r *TransmissionRepo) Create(ctx context.Context, t *entity.SunatTransmission) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	query := `
		INSERT INTO sunat_transmissions (` + transmissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err := r.q.Exec(ctx, query,
		t.ID, nullIfEmpty(t.SubmissionID), t.Environment, t.IssuerRUC, t.DocumentType, t.Series, t.Correlative,
		t.FileName, t.Status, nullIfEmpty(t.ResponseCode), nullIfEmpty(t.Description), nullIfEmpty(t.Ticket),
		nullIfEmpty(t.DigestValue), nullIfEmpty(t.CDRDigest), t.GrandTotal,
		nullIfEmpty(t.ErrorMessage), nullBytes(t.SignedXML), nullBytes(t.CDR), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transmission already registered: %w", err)
		}
		return fmt.Errorf("insert transmission: %w", err)
	}
	return nil
}

// Update actualiza el resultado del envío. Los campos vacíos conservan el valor previo.
func (r *TransmissionRepo) Update(ctx context.Context, t *entity.SunatTransmission) error {
	t.UpdatedAt = time.Now()
	query := `
		UPDATE sunat_transmissions
		SET status        = $2,
		    response_code = COALESCE($3, response_code),
		    description   = COALESCE($4, description),
		    ticket        = COALESCE($5, ticket),
		    cdr_digest    = COALESCE($6, cdr_digest),
		    error_message = COALESCE($7, error_message),
		    cdr           = COALESCE($8, cdr),
		    updated_at    = $9,
		    submission_id = COALESCE($10, submission_id)
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		t.ID, t.Status, nullIfEmpty(t.ResponseCode), nullIfEmpty(t.Description), nullIfEmpty(t.Ticket),
		nullIfEmpty(t.CDRDigest), nullIfEmpty(t.ErrorMessage), nullBytes(t.CDR), t.UpdatedAt,
		nullIfEmpty(t.SubmissionID),
	)
	if err != nil {
		return fmt.Errorf("update transmission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update transmission: %s no existe", t.ID)
	}
	return nil
}

// TransitionStatus cambia el estado solo si el actual está en from (compare-and-set).
func (r *TransmissionRepo) TransitionStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	query := `
		UPDATE sunat_transmissions
		SET status = $2, error_message = NULL, updated_at = $3
		WHERE id = $1 AND status = ANY($4)`
	tag, err := r.q.Exec(ctx, query, id, to, time.Now(), from)
	if err != nil {
		return false, fmt.Errorf("transition transmission: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID devuelve la transmisión o nil si no existe.
func (r *TransmissionRepo) GetByID(ctx context.Context, id string) (*entity.SunatTransmission, error) {
	query := `SELECT ` + transmissionColumns + ` FROM sunat_transmissions WHERE id = $1`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// GetLatestByDocument devuelve el último envío del comprobante o nil si nunca se envió.
func (r *TransmissionRepo) GetLatestByDocument(ctx context.Context, ruc, documentType, series, correlative string) (*entity.SunatTransmission, error) {
	query := `SELECT ` + transmissionColumns + `
		FROM sunat_transmissions
		WHERE issuer_ruc = $1 AND document_type = $2 AND series = $3 AND correlative = $4
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanOne(r.q.QueryRow(ctx, query, ruc, documentType, series, correlative))
}

func (r *TransmissionRepo) scanOne(row pgx.Row) (*entity.SunatTransmission, error) {
	var t entity.SunatTransmission
	var submissionID, code, desc, ticket, digest, cdrDigest, errMsg *string
	err := row.Scan(
		&t.ID, &submissionID, &t.Environment, &t.IssuerRUC, &t.DocumentType, &t.Series, &t.Correlative,
		&t.FileName, &t.Status, &code, &desc, &ticket, &digest, &cdrDigest, &t.GrandTotal,
		&errMsg, &t.SignedXML, &t.CDR, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transmission: %w", err)
	}
	t.SubmissionID = deref(submissionID)
	t.ResponseCode = deref(code)
	t.Description = deref(desc)
	t.Ticket = deref(ticket)
	t.DigestValue = deref(digest)
	t.CDRDigest = deref(cdrDigest)
	t.ErrorMessage = deref(errMsg)
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
