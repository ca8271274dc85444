package http

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/smartcity/rtiis/internal/domain"
	"github.com/smartcity/rtiis/internal/service"
)

// Handler contains all HTTP handlers
type Handler struct {
	ingestSvc   *service.IngestService
	incidentSvc *service.IncidentService
	statusSvc   *service.StatusService
	scenarioSvc *service.ScenarioService
}

// NewHandler creates a new handler
func NewHandler(
	ingestSvc *service.IngestService,
	incidentSvc *service.IncidentService,
	statusSvc *service.StatusService,
	scenarioSvc *service.ScenarioService,
) *Handler {
	return &Handler{
		ingestSvc:   ingestSvc,
		incidentSvc: incidentSvc,
		statusSvc:   statusSvc,
		scenarioSvc: scenarioSvc,
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": "rtiis-backend",
		"version": "1.0.0",
	})
}

// ListSegments returns every monitored road segment
func (h *Handler) ListSegments(c *fiber.Ctx) error {
	segments, err := h.incidentSvc.ListSegments(c.Context())
	if err != nil {
		return serviceError(err, "Failed to fetch segments")
	}
	return c.JSON(segments)
}

// ListSensors returns every sensor
func (h *Handler) ListSensors(c *fiber.Ctx) error {
	sensors, err := h.incidentSvc.ListSensors(c.Context())
	if err != nil {
		return serviceError(err, "Failed to fetch sensors")
	}
	return c.JSON(sensors)
}

// IngestReadings accepts a batch of sensor readings and runs detection
func (h *Handler) IngestReadings(c *fiber.Ctx) error {
	var req domain.IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	result, err := h.ingestSvc.Ingest(c.Context(), req)
	if err != nil {
		return serviceError(err, "Failed to ingest readings")
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

// ListIncidents returns incidents newest first, optionally filtered by status
func (h *Handler) ListIncidents(c *fiber.Ctx) error {
	limit := service.DefaultIncidentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "limit must be an integer")
		}
		limit = n
	}

	incidents, err := h.incidentSvc.ListIncidents(c.Context(), c.Query("status"), limit)
	if err != nil {
		return serviceError(err, "Failed to fetch incidents")
	}
	return c.JSON(incidents)
}

// GetIncident returns an incident with its segment and recent readings
func (h *Handler) GetIncident(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid incident id")
	}

	detail, err := h.incidentSvc.GetIncident(c.Context(), int64(id))
	if err != nil {
		return serviceError(err, "Failed to fetch incident")
	}
	return c.JSON(detail)
}

type resolveRequest struct {
	ResolutionNote *string `json:"resolution_note"`
}

// ResolveIncident closes an OPEN incident
func (h *Handler) ResolveIncident(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid incident id")
	}

	var req resolveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}

	if err := h.incidentSvc.ResolveIncident(c.Context(), int64(id), req.ResolutionNote); err != nil {
		return serviceError(err, "Failed to resolve incident")
	}

	return c.JSON(fiber.Map{
		"status":      "ok",
		"incident_id": id,
	})
}

// GetSystemStatus returns diagnostics counters
func (h *Handler) GetSystemStatus(c *fiber.Ctx) error {
	status, err := h.statusSvc.Status(c.Context())
	if err != nil {
		return serviceError(err, "Failed to fetch system status")
	}
	return c.JSON(status)
}

// TriggerScenario generates a demo scenario
func (h *Handler) TriggerScenario(c *fiber.Ctx) error {
	result, err := h.scenarioSvc.Trigger(c.Context(), c.Params("name"))
	if err != nil {
		return serviceError(err, "Failed to trigger scenario")
	}
	return c.JSON(result)
}

// serviceError maps domain errors to HTTP errors. Anything unrecognised is
// logged and reported as a 500 with the generic message.
func serviceError(err error, message string) error {
	switch {
	case errors.Is(err, domain.ErrUnknownSensor),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, service.ErrUnknownScenario):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrInvalidTimestamp),
		errors.Is(err, domain.ErrInvalidArgument):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrIncidentNotOpen):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}

	log.Printf("%s: %v", message, err)
	return fiber.NewError(fiber.StatusInternalServerError, message)
}
