package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturador-sunat/internal/application/billing"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Orchestrator *billing.SunatOrchestrator
	Targets      billing.TargetResolver
	JWTSecret    string
	Logger       zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/sunat", AuthMiddleware(deps.JWTSecret))

	h := NewSunatHandler(deps.Orchestrator, deps.Targets, deps.Logger)
	protected.Post("/documents", RequireRole(RoleAdmin, RoleEmisor), h.Send)
	protected.Post("/documents/sign", RequireRole(RoleAdmin, RoleEmisor), h.Sign)
	protected.Get("/status/:ruc/:kind/:series/:correlative", RequireRole(RoleAdmin, RoleEmisor, RoleConsulta), h.Status)
	protected.Get("/transmissions/:id", RequireRole(RoleAdmin, RoleEmisor, RoleConsulta), h.Transmission)
	protected.Post("/transmissions/:id/retry", RequireRole(RoleAdmin, RoleEmisor), h.Retry)
}
