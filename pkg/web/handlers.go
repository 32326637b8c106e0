package web

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-narrator/pkg/engine"
	"github.com/teslashibe/go-narrator/pkg/hub"
)

// LocationRequest optionally carries a position entered by hand.
type LocationRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.narrator.Status())
}

func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

func (s *Server) handleTap(c *fiber.Ctx) error {
	s.narrator.Tap()
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleToggleVoice(c *fiber.Ctx) error {
	return s.act(c, "voice_toggle", s.narrator.ToggleVoice)
}

func (s *Server) handleToggleSpeech(c *fiber.Ctx) error {
	return s.act(c, "speech_toggle", s.narrator.ToggleSpeech)
}

func (s *Server) handleFlipCamera(c *fiber.Ctx) error {
	return s.act(c, "camera_flip", s.narrator.FlipCamera)
}

func (s *Server) handleLocation(c *fiber.Ctx) error {
	var req LocationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
		}
	}
	if (req.Lat == nil) != (req.Lon == nil) {
		return fiber.NewError(fiber.StatusBadRequest, "lat and lon must be given together")
	}
	if req.Lat != nil {
		if s.positions == nil {
			return fiber.NewError(fiber.StatusConflict, "manual position is not enabled")
		}
		if *req.Lat < -90 || *req.Lat > 90 || *req.Lon < -180 || *req.Lon > 180 {
			return fiber.NewError(fiber.StatusBadRequest, "coordinates out of range")
		}
		s.positions.Set(*req.Lat, *req.Lon)
		s.logger.Info("manual position", "lat", *req.Lat, "lon", *req.Lon)
	}
	return s.act(c, "locate", s.narrator.Locate)
}

func (s *Server) act(c *fiber.Ctx, name string, fn func(context.Context) error) error {
	if err := fn(c.UserContext()); err != nil {
		if errors.Is(err, engine.ErrStopped) {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "action": name})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func jsonMessage(v any) (hub.Message, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return hub.Message{}, false
	}
	return hub.NewJSONMessage(data), true
}
