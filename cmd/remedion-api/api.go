// Package main provides the Remedion API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/medwise/remedion/pkg/cmd"
	"github.com/medwise/remedion/pkg/web"
)

type API struct {
	logger   *slog.Logger
	engine   *cmd.Engine
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, engine *cmd.Engine) *API {
	return &API{
		logger:   logger,
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.engine.Store,
		a.engine.Machine,
		a.engine.Recovery,
		a.engine.Snapshots,
		a.engine.Detector,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Remedion API")
	})

	app.Post("/transitions/validate", handlers.ValidateTransition)
	app.Post("/errors", handlers.ReportError)
	app.Post("/timeouts", handlers.ReportTimeout)

	instances := app.Group("/instances")
	instances.Get("/", handlers.ListInstances)
	instances.Get("/:id", handlers.GetInstance)
	instances.Put("/:id", handlers.UpsertInstance)
	instances.Post("/:id/snapshot", handlers.CreateSnapshot)
	instances.Post("/:id/rollback", handlers.RollbackInstance)

	app.Get("/audit", handlers.GetAuditTrail)
	app.Get("/deadlocks", handlers.GetDeadlocks)
	app.Get("/alerts", handlers.GetAlerts)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Remedion API listening", "port", port)

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
