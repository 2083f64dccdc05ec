package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"charitybot/internal/catalog"
	"charitybot/internal/dispatch"
)

// handleCategories ingests a full category snapshot. An empty list is legal
// and archives every category.
func (s *Server) handleCategories(c *fiber.Ctx) error {
	var in []categoryIn
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid category payload: "+err.Error())
	}
	snapshot := make([]catalog.Category, 0, len(in))
	for _, item := range in {
		snapshot = append(snapshot, item.toDomain())
	}
	return s.reconcileResponse(c, s.categories.Reconcile(c.UserContext(), snapshot))
}

// handleTasks ingests a full task snapshot.
func (s *Server) handleTasks(c *fiber.Ctx) error {
	var in []taskIn
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid task payload: "+err.Error())
	}
	snapshot := make([]catalog.Task, 0, len(in))
	for _, item := range in {
		t, err := item.toDomain()
		if err != nil {
			return badRequest(c, err.Error())
		}
		snapshot = append(snapshot, t)
	}
	return s.reconcileResponse(c, s.tasks.Reconcile(c.UserContext(), snapshot))
}

func (s *Server) reconcileResponse(c *fiber.Ctx, err error) error {
	var verr *catalog.ValidationError
	switch {
	case err == nil:
		return c.SendStatus(fiber.StatusOK)
	case errors.As(err, &verr):
		return badRequest(c, verr.Error())
	case errors.Is(err, catalog.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		s.log.Error().Err(err).Msg("reconciliation failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconciliation failed"})
	}
}

// handleBroadcast sends one message to a recipient group.
func (s *Server) handleBroadcast(c *fiber.Ctx) error {
	var in broadcastIn
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid notification payload: "+err.Error())
	}
	if strings.TrimSpace(in.Message) == "" {
		return badRequest(c, "message is required")
	}
	mode := dispatch.Mode(in.Mode)
	if !mode.Valid() {
		return badRequest(c, "mode must be one of: all, subscribed, unsubscribed")
	}
	return s.dispatchResponse(c, dispatch.Request{Mode: mode, Text: in.Message})
}

// handleGroup sends per-recipient messages from an explicit list. Unknown
// recipient ids become failed entries in the aggregate, never a request error.
func (s *Server) handleGroup(c *fiber.Ctx) error {
	var in groupIn
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid message list payload: "+err.Error())
	}
	if len(in.Messages) == 0 {
		return badRequest(c, "messages list is empty")
	}
	targets := make([]dispatch.Message, 0, len(in.Messages))
	for _, m := range in.Messages {
		if strings.TrimSpace(m.Message) == "" {
			return badRequest(c, "message is required for every recipient")
		}
		targets = append(targets, dispatch.Message{RecipientID: m.RecipientID, Text: m.Message})
	}
	return s.dispatchResponse(c, dispatch.Request{Targets: targets})
}

// handleSingle sends one message to one recipient; the response is the same
// aggregate shape with at most one entry.
func (s *Server) handleSingle(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("recipient_id"), 10, 64)
	if err != nil {
		return badRequest(c, "recipient_id must be an integer")
	}
	var in singleIn
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid notification payload: "+err.Error())
	}
	if strings.TrimSpace(in.Message) == "" {
		return badRequest(c, "message is required")
	}
	return s.dispatchResponse(c, dispatch.Request{
		Targets: []dispatch.Message{{RecipientID: id, Text: in.Message}},
	})
}

func (s *Server) dispatchResponse(c *fiber.Ctx, req dispatch.Request) error {
	rep, err := s.dispatcher.Dispatch(c.UserContext(), req)
	if err != nil {
		s.log.Error().Err(err).Msg("dispatch failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "dispatch failed"})
	}
	return c.JSON(toInfoRate(rep))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := s.store.Ping(c.UserContext()); err != nil {
		dbStatus = "unavailable"
	}
	status := fiber.StatusOK
	if dbStatus != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status": "ok",
		"db":     dbStatus,
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
