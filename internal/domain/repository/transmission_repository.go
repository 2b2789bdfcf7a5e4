package repository

import (
	"context"

	"github.com/jhoicas/facturador-sunat/internal/domain/entity"
)

// TransmissionRepository puerto de persistencia de la auditoría de envíos a SUNAT.
type TransmissionRepository interface {
	Create(ctx context.Context, t *entity.SunatTransmission) error
	// Update actualiza estado, respuesta y CDR.
	Update(ctx context.Context, t *entity.SunatTransmission) error
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id string) (*entity.SunatTransmission, error)
	// TransitionStatus cambia el estado a to solo si el actual está en from y limpia el error previo.
	// Devuelve false si otro proceso ya lo cambió.
	TransitionStatus(ctx context.Context, id string, from []string, to string) (bool, error)
	// GetLatestByDocument último envío de un comprobante (RUC + tipo + serie + correlativo).
	GetLatestByDocument(ctx context.Context, ruc, documentType, series, correlative string) (*entity.SunatTransmission, error)
}
