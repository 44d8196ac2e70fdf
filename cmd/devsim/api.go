package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/devsim/pkg/persistence"
	"github.com/dukex/devsim/pkg/scheduler"
	"github.com/dukex/devsim/pkg/transmission"
	"github.com/dukex/devsim/pkg/web"
)

type API struct {
	logger    *slog.Logger
	records   persistence.Persistence
	scheduler *scheduler.Scheduler
	manager   *transmission.Manager
	validate  *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	records persistence.Persistence,
	sched *scheduler.Scheduler,
	manager *transmission.Manager,
) *API {
	return &API{
		logger:    logger,
		records:   records,
		scheduler: sched,
		manager:   manager,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.manager, a.scheduler, a.records, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("devsim")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

func (a *API) Start(app *fiber.App, port int) error {
	a.logger.Info("Starting devsim API", "port", port)

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
