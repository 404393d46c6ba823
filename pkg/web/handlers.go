package web

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-lazarillo/pkg/hub"
	"github.com/teslashibe/go-lazarillo/pkg/inference"
	"github.com/teslashibe/go-lazarillo/pkg/session"
	"github.com/teslashibe/go-lazarillo/pkg/settings"
)

// InferResponse is the /api/infer payload. The overlay travels inline as
// base64 so a single response carries everything.
type InferResponse struct {
	*inference.Result
	OverlayB64 string `json:"overlay_jpg_b64,omitempty"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.deps.Settings.View())
}

func (s *Server) handlePutSettings(c *fiber.Ctx) error {
	var patch settings.Patch
	if err := c.BodyParser(&patch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if _, err := s.deps.Settings.Apply(patch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(s.deps.Settings.View())
}

func (s *Server) handleTap(c *fiber.Ctx) error {
	state, err := s.deps.Session.Tap(c.UserContext())
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(fiber.Map{"state": state})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.deps.Session.Stop(c.UserContext()); err != nil {
		return sessionError(err)
	}
	return c.JSON(s.deps.Session.Status())
}

func (s *Server) handleToggleSettings(c *fiber.Ctx) error {
	state, err := s.deps.Session.ToggleSettings(c.UserContext())
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(fiber.Map{"state": state})
}

func (s *Server) handleRetryPermission(c *fiber.Ctx) error {
	if err := s.deps.Session.RetryPermission(c.UserContext()); err != nil {
		return sessionError(err)
	}
	return c.JSON(s.deps.Session.Status())
}

func (s *Server) handleOverlay(c *fiber.Ctx) error {
	frame, _ := s.Overlay()
	if len(frame) == 0 {
		return c.SendStatus(fiber.StatusNoContent)
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(frame)
}

func (s *Server) handleDetections(c *fiber.Ctx) error {
	if s.deps.Results == nil {
		return c.JSON([]inference.DetectedObject{})
	}
	objs := s.deps.Results.Detections()
	if objs == nil {
		objs = []inference.DetectedObject{}
	}
	return c.JSON(objs)
}

func (s *Server) handleInfer(c *fiber.Ctx) error {
	if s.deps.Inferer == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "inference not configured")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	res, err := s.deps.Inferer.Infer(c.UserContext(), data, fh.Filename)
	if err != nil {
		var te *inference.TransportError
		if errors.As(err, &te) {
			return fiber.NewError(fiber.StatusBadGateway, te.Error())
		}
		return err
	}

	out := InferResponse{Result: res}
	if len(res.Overlay) > 0 {
		out.OverlayB64 = base64.StdEncoding.EncodeToString(res.Overlay)
	}
	return c.JSON(out)
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, session.ErrPermissionDenied):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	return err
}

func jsonMessage(v any) (hub.Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return hub.Message{}, err
	}
	return hub.StatusMessage(data), nil
}
