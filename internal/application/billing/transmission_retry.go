package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jhoicas/facturador-sunat/internal/domain/entity"
	"github.com/jhoicas/facturador-sunat/internal/domain/sunat"
	infrasunat "github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat"
	"github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat/signer"
)

var (
	// ErrAuditDisabled el orquestador no tiene repositorio de transmisiones.
	ErrAuditDisabled = errors.New("sunat: auditoría de envíos no configurada")
	// ErrTransmissionNotFound no existe una transmisión con ese ID.
	ErrTransmissionNotFound = errors.New("sunat: transmisión no encontrada")
	// ErrNotRetryable el estado de la transmisión no permite reenviarla.
	ErrNotRetryable = errors.New("sunat: la transmisión no admite reenvío")
)

// Transmission devuelve el registro de auditoría de un envío.
func (o *SunatOrchestrator) Transmission(ctx context.Context, id string) (*entity.SunatTransmission, error) {
	if o.repo == nil {
		return nil, ErrAuditDisabled
	}
	tx, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("leer transmisión: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: %s", ErrTransmissionNotFound, id)
	}
	return tx, nil
}

// Retry reenvía el XML firmado guardado de una transmisión FAILED o NOT_FOUND.
//
// UNKNOWN no se reenvía: primero QueryStatus debe confirmar que SUNAT no lo registró.
// El XML no se vuelve a firmar; se verifica contra el DigestValue registrado y se reempaqueta.
// El paso a RETRYING es condicional: de dos reenvíos simultáneos solo uno llega a SUNAT.
func (o *SunatOrchestrator) Retry(ctx context.Context, id string, target Target) (*sunat.Outcome, error) {
	if o.submitter == nil {
		return nil, errors.New("sunat: orquestador sin cliente de envío")
	}
	tx, err := o.Transmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entity.Retryable(tx.Status) {
		return nil, fmt.Errorf("%w: estado %s", ErrNotRetryable, tx.Status)
	}
	if tx.IssuerRUC != target.Credentials.RUC {
		return nil, fmt.Errorf("%w: %q", ErrIssuerNotConfigured, tx.IssuerRUC)
	}
	if tx.Environment != target.Environment {
		return nil, fmt.Errorf("%w: registrada en %s, destino %s", ErrNotRetryable, tx.Environment, target.Environment)
	}
	if len(tx.SignedXML) == 0 {
		return nil, fmt.Errorf("%w: sin XML firmado", ErrNotRetryable)
	}

	v, err := o.signer.Verify(tx.SignedXML)
	if err != nil {
		return nil, err
	}
	if v.DigestValue != tx.DigestValue {
		return nil, &sunat.SigningError{Op: "verificar", Err: signer.ErrSignatureInvalid}
	}
	pkg, err := infrasunat.BuildPackage(strings.TrimSuffix(tx.FileName, ".zip"), tx.SignedXML)
	if err != nil {
		return nil, err
	}

	claimed, err := o.repo.TransitionStatus(ctx, tx.ID,
		[]string{entity.TransmissionFailed, entity.TransmissionNotFound}, entity.TransmissionRetrying)
	if err != nil {
		return nil, fmt.Errorf("marcar reenvío: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: otro reenvío en curso", ErrNotRetryable)
	}
	tx.Status = entity.TransmissionRetrying
	tx.ErrorMessage = ""

	endpoint := target.billEndpoint()
	log := o.log.With().
		Str("transmission_id", tx.ID).
		Str("file", pkg.ZipName()).
		Str("endpoint", endpoint).
		Logger()
	log.Info().Msg("sunat: reenviando XML firmado")
	return o.transmit(ctx, log, tx, pkg, target.Credentials, endpoint)
}
