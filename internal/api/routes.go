package api

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

const requestIDKey = "requestid"

// NewApp creates a fiber app with the API's middleware and routes.
// bodyLimitMB caps uploads; zero keeps fiber's default.
func NewApp(h *Handler, bodyLimitMB int) *fiber.App {
	cfg := fiber.Config{
		AppName:      "invoice-item-converter",
		ErrorHandler: errorHandler,
	}
	if bodyLimitMB > 0 {
		cfg.BodyLimit = bodyLimitMB << 20
	}

	app := fiber.New(cfg)
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator:  uuid.NewString,
		ContextKey: requestIDKey,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/health", h.HandleHealth)
	api.Post("/convert", h.HandleConvert)
	api.Post("/export/:format", h.HandleExport)

	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.Metrics.Handler()))
	}

	// Serve the web UI, falling back to index.html for client-side routes
	if h.StaticDir != "" {
		app.Static("/", h.StaticDir)
		app.Get("/*", func(c *fiber.Ctx) error {
			path := c.Path()
			if strings.HasPrefix(path, "/api/") {
				return fiber.ErrNotFound
			}
			index := filepath.Join(h.StaticDir, "index.html")
			if _, err := os.Stat(index); err != nil {
				return fiber.ErrNotFound
			}
			return c.SendFile(index)
		})
	}
}

// errorHandler turns errors escaping handlers, recovered panics included,
// into the JSON error envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	return writeFiberError(c, err)
}
