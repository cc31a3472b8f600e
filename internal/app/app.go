package app

import (
	"totemgw/internal/handlers"
	u "totemgw/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
)

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, svc *handlers.Service) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			// Flat {error} body; the kiosk UI reads exactly this shape.
			return c.Status(code).JSON(fiber.Map{"error": msg})
		},
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, cfg, svc)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, svc *handlers.Service) {
	app.Get("/", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })

	api := app.Group("/api")

	api.Post("/identificacao/lookup", svc.HandleLookup)
	api.Get("/identificacao/lookup", svc.HandleLookupQuery)
	api.Post("/identificacao/validar", svc.HandleValidar)

	api.Post("/faturas", svc.HandleFaturas)

	api.Post("/boleto", svc.HandleBoletoURL)
	api.Post("/boleto/proxy", svc.HandleBoletoProxy)
	api.Post("/boleto/print", svc.HandlePrint)
	api.Post("/send-boleto", svc.HandleSendBoleto)

	api.Get("/pdf", svc.HandlePDF)
	api.Get("/pdf-download", svc.HandlePDFDownload)

	api.Get("/print/stats", svc.HandlePrintStats)
	api.Get("/monitor", monitor.New())

	if cfg.Server.StaticDir != "" {
		app.Static("/", cfg.Server.StaticDir)
	}
}
