package web

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-photoanalyzer/pkg/capture"
	"github.com/teslashibe/go-photoanalyzer/pkg/detection"
	"github.com/teslashibe/go-photoanalyzer/pkg/hub"
	"github.com/teslashibe/go-photoanalyzer/pkg/pipeline"
)

// StateView is the JSON form of a pipeline state. The image itself is served
// separately from /api/image.
type StateView struct {
	pipeline.State
	HasImage bool `json:"has_image"`
}

// NewStateView wraps st for encoding.
func NewStateView(st pipeline.State) StateView {
	return StateView{State: st, HasImage: st.HasImage()}
}

// CaptureResponse is returned by POST /api/capture/:mode.
type CaptureResponse struct {
	Outcome pipeline.Outcome `json:"outcome"`
	Mode    capture.Mode     `json:"mode"`
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	Pipeline  pipeline.Stats   `json:"pipeline"`
	Detection *detection.Stats `json:"detection,omitempty"`
	Clients   int              `json:"ws_clients"`
	Uptime    string           `json:"uptime"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(NewStateView(s.pipe.State()))
}

func (s *Server) handleImage(c *fiber.Ctx) error {
	st := s.pipe.State()
	if !st.HasImage() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no image",
		})
	}
	c.Set(fiber.HeaderContentType, http.DetectContentType(st.Image))
	c.Set("X-Run-ID", st.RunID)
	return c.Send(st.Image)
}

func (s *Server) handleCapture(c *fiber.Ctx) error {
	mode, err := capture.ParseMode(c.Params("mode"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	outcome, err := s.pipe.TriggerManualCapture(mode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.logger.Debug("manual capture", "mode", mode, "outcome", outcome)

	return c.Status(fiber.StatusAccepted).JSON(CaptureResponse{Outcome: outcome, Mode: mode})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	resp := StatsResponse{
		Pipeline: s.pipe.Stats(),
		Clients:  s.stateHub.ClientCount() + s.imageHub.ClientCount(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}
	if s.detectionStats != nil {
		ds := s.detectionStats()
		resp.Detection = &ds
	}
	return c.JSON(resp)
}

// handleStateWS streams the current state then every transition.
func (s *Server) handleStateWS(c *websocket.Conn) {
	s.serveWS(s.stateHub, c)
}

// handleImageWS streams each captured image as a binary frame.
func (s *Server) handleImageWS(c *websocket.Conn) {
	s.serveWS(s.imageHub, c)
}

func (s *Server) serveWS(h *hub.Hub, c *websocket.Conn) {
	client := hub.NewClient(h, c)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
