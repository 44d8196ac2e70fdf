// Package web provides the HTTP API over the transmission core.
package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/devsim/pkg/models"
	"github.com/dukex/devsim/pkg/persistence"
	"github.com/dukex/devsim/pkg/scheduler"
	"github.com/dukex/devsim/pkg/transmission"
)

type APIHandlers struct {
	manager   *transmission.Manager
	scheduler *scheduler.Scheduler
	records   persistence.Persistence
	validator *validator.Validate
}

func NewAPIHandlers(
	manager *transmission.Manager,
	sched *scheduler.Scheduler,
	records persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		manager:   manager,
		scheduler: sched,
		records:   records,
		validator: validator,
	}
}

// RegisterRoutes mounts every transmission endpoint on router.
func RegisterRoutes(router fiber.Router, h *APIHandlers) {
	router.Get("/health", h.HealthCheck)
	router.Get("/jobs", h.ListJobs)

	s := router.Group("/scheduler")
	s.Get("/stats", h.SchedulerStats)
	s.Post("/reconcile", h.Reconcile)

	d := router.Group("/devices/:id")
	d.Get("/state", h.GetState)
	d.Get("/actions", h.GetActions)
	d.Get("/history", h.GetHistory)
	d.Post("/connections/:cid/start", h.StartTransmission)
	d.Post("/connections/:cid/transmit", h.TransmitNow)
	d.Post("/pause", h.PauseTransmission)
	d.Post("/resume", h.ResumeTransmission)
	d.Post("/stop", h.StopTransmission)
	d.Post("/reset-cursor", h.ResetCursor)

	c := router.Group("/connections/:cid")
	c.Post("/activate", h.ActivateConnection)
	c.Post("/deactivate", h.DeactivateConnection)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	ctx := c.Context()

	recordsCheck := check(ctx, h.records.HealthCheck)
	jobsCheck := check(ctx, h.scheduler.HealthCheck)

	status := "healthy"
	httpStatus := http.StatusOK

	if recordsCheck != "ok" || jobsCheck != "ok" {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"records":   recordsCheck,
			"job_store": jobsCheck,
		},
		"scheduler": h.scheduler.Stats(),
		"timestamp": time.Now().UTC(),
	})
}

func check(ctx context.Context, probe func(context.Context) error) string {
	if err := probe(ctx); err != nil {
		return err.Error()
	}

	return "ok"
}

func (h *APIHandlers) ListJobs(c fiber.Ctx) error {
	jobs := h.manager.Jobs()

	return c.JSON(JobsResponse{Jobs: jobs, Total: len(jobs)})
}

func (h *APIHandlers) SchedulerStats(c fiber.Ctx) error {
	return c.JSON(h.scheduler.Stats())
}

func (h *APIHandlers) Reconcile(c fiber.Ctx) error {
	removed, err := h.scheduler.Reconcile(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"removed": removed, "jobs": len(h.scheduler.Jobs())})
}

func (h *APIHandlers) GetState(c fiber.Ctx) error {
	path, err := h.devicePath(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	view, err := h.manager.StateView(c.Context(), path.DeviceID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) GetActions(c fiber.Ctx) error {
	path, err := h.devicePath(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if _, err := h.records.DeviceByID(c.Context(), path.DeviceID); err != nil {
		return handleServiceError(c, err)
	}

	actions, err := h.manager.Actions(c.Context(), path.DeviceID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(actions)
}

func (h *APIHandlers) GetHistory(c fiber.Ctx) error {
	path, err := h.devicePath(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	query := HistoryQuery{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "Invalid limit: "+err.Error())
		}

		query.Limit = limit
	}

	if err := h.validator.Struct(query); err != nil {
		return badRequest(c, err.Error())
	}

	entries, err := h.manager.History(c.Context(), path.DeviceID, query.Limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"device_id": path.DeviceID, "entries": entries})
}

func (h *APIHandlers) StartTransmission(c fiber.Ctx) error {
	path, err := h.transmissionPath(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	key, err := h.manager.StartAutomatic(c.Context(), path.DeviceID, path.ConnectionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ActionResponse{
		DeviceID: path.DeviceID,
		State:    models.StateActive,
		JobKey:   key,
	})
}

func (h *APIHandlers) TransmitNow(c fiber.Ctx) error {
	path, err := h.transmissionPath(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	outcome, err := h.manager.ExecuteManual(c.Context(), path.DeviceID, path.ConnectionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransmitResponse{Success: outcome.Success, Detail: outcome.Detail, Entry: outcome.Entry})
}

func (h *APIHandlers) PauseTransmission(c fiber.Ctx) error {
	return h.transition(c, h.manager.Pause, models.StatePaused)
}

func (h *APIHandlers) ResumeTransmission(c fiber.Ctx) error {
	return h.transition(c, h.manager.Resume, models.StateActive)
}

func (h *APIHandlers) StopTransmission(c fiber.Ctx) error {
	path, err := h.devicePath(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	stopped, err := h.manager.Stop(c.Context(), path.DeviceID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ActionResponse{DeviceID: path.DeviceID, State: models.StateInactive, Stopped: stopped})
}

func (h *APIHandlers) ResetCursor(c fiber.Ctx) error {
	path, err := h.devicePath(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.manager.ResetCursor(c.Context(), path.DeviceID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateConnection(c fiber.Ctx) error {
	cid := c.Params("cid")

	created, err := h.manager.OnConnectionActivated(c.Context(), cid)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ConnectionChangeResponse{ConnectionID: cid, Active: true, Jobs: created})
}

func (h *APIHandlers) DeactivateConnection(c fiber.Ctx) error {
	cid := c.Params("cid")

	removed, err := h.manager.OnConnectionDeactivated(c.Context(), cid)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ConnectionChangeResponse{ConnectionID: cid, Active: false, Jobs: removed})
}

func (h *APIHandlers) transition(c fiber.Ctx, action func(context.Context, string) error, to models.TransmissionState) error {
	path, err := h.devicePath(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := action(c.Context(), path.DeviceID); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ActionResponse{DeviceID: path.DeviceID, State: to})
}

func (h *APIHandlers) devicePath(c fiber.Ctx) (DevicePath, error) {
	path := DevicePath{DeviceID: c.Params("id")}

	return path, h.validator.Struct(path)
}

func (h *APIHandlers) transmissionPath(c fiber.Ctx) (TransmissionPath, error) {
	path := TransmissionPath{DeviceID: c.Params("id"), ConnectionID: c.Params("cid")}

	return path, h.validator.Struct(path)
}
