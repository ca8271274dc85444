package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/smartcity/rtiis/internal/service"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(
	app *fiber.App,
	ingestSvc *service.IngestService,
	incidentSvc *service.IncidentService,
	statusSvc *service.StatusService,
	scenarioSvc *service.ScenarioService,
) {
	handler := NewHandler(ingestSvc, incidentSvc, statusSvc, scenarioSvc)

	// Health check
	app.Get("/health", handler.HealthCheck)

	api := app.Group("/api")
	{
		// Reference data
		api.Get("/segments", handler.ListSegments)
		api.Get("/sensors", handler.ListSensors)

		// Ingestion runs detection synchronously
		api.Post("/readings", handler.IngestReadings)

		// Incidents
		api.Get("/incidents", handler.ListIncidents)
		api.Get("/incidents/:id", handler.GetIncident)
		api.Patch("/incidents/:id/resolve", handler.ResolveIncident)

		// Diagnostics and demo scenarios
		api.Get("/system/status", handler.GetSystemStatus)
		api.Post("/system/scenario/:name", handler.TriggerScenario)
	}
}

// ErrorHandler renders every error as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
