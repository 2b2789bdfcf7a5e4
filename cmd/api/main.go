package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/facturador-sunat/internal/application/billing"
	"github.com/jhoicas/facturador-sunat/internal/infrastructure/postgres"
	infrasunat "github.com/jhoicas/facturador-sunat/internal/infrastructure/sunat"
	httpRouter "github.com/jhoicas/facturador-sunat/internal/interfaces/http"
	"github.com/jhoicas/facturador-sunat/pkg/config"
	"github.com/jhoicas/facturador-sunat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("sunat_env", cfg.SUNAT.Environment).
		Msg("iniciando aplicación")

	ctx := context.Background()
	opts := []billing.OrchestratorOption{
		billing.WithOrchestratorLogger(log.Component("orchestrator")),
	}

	// La auditoría de envíos es opcional: sin DB el facturador sigue operando.
	if cfg.DB.Enabled() {
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		opts = append(opts, billing.WithTransmissionRepository(postgres.NewTransmissionRepository(pool)))
	} else {
		log.Warn().Msg("sin base de datos: los envíos no quedan auditados")
	}

	soapClient := infrasunat.NewSOAPClient(
		infrasunat.WithTimeout(cfg.SUNAT.Timeout),
		infrasunat.WithLogger(log.Component("soap")),
	)
	orchestrator := billing.NewSunatOrchestrator(soapClient, opts...)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.SUNAT.Timeout + 15*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturador SUNAT API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "sunat_env": cfg.SUNAT.Environment})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Orchestrator: orchestrator,
		Targets:      billing.NewConfigTargets(cfg.SUNAT),
		JWTSecret:    cfg.JWT.Secret,
		Logger:       log.Component("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
