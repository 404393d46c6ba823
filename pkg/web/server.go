// Package web provides the local dashboard and control surface: REST
// endpoints for settings and session actions, live overlay and status
// streams over websockets, and the Prometheus scrape endpoint.
package web

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-lazarillo/pkg/events"
	"github.com/teslashibe/go-lazarillo/pkg/hub"
	"github.com/teslashibe/go-lazarillo/pkg/inference"
	"github.com/teslashibe/go-lazarillo/pkg/pipeline"
	"github.com/teslashibe/go-lazarillo/pkg/scheduler"
	"github.com/teslashibe/go-lazarillo/pkg/session"
	"github.com/teslashibe/go-lazarillo/pkg/settings"
)

//go:embed index.html
var indexHTML []byte

// Session is the state machine surface the dashboard drives.
type Session interface {
	Status() session.Status
	Tap(ctx context.Context) (session.State, error)
	Stop(ctx context.Context) error
	ToggleSettings(ctx context.Context) (session.State, error)
	RetryPermission(ctx context.Context) error
}

// Results exposes the latest pipeline outcome.
type Results interface {
	Last() pipeline.Outcome
	Detections() []inference.DetectedObject
}

// Inferer runs a single-shot upload.
type Inferer interface {
	Infer(ctx context.Context, image []byte, filename string) (*inference.Result, error)
}

// Routes is implemented by components that mount their own endpoints,
// such as the handset server.
type Routes interface {
	RegisterRoutes(router fiber.Router)
	RegisterAPIRoutes(api fiber.Router)
}

// Deps are the components behind the dashboard. Session and Settings are
// required; the rest are optional.
type Deps struct {
	Session   Session
	Settings  *settings.Store
	Results   Results
	Scheduler func() scheduler.Stats
	Inferer   Inferer
	Metrics   http.Handler
	Devices   Routes
	Connected func() bool
}

// Config holds server options.
type Config struct {
	Port      string
	AccessLog bool
	Logger    *slog.Logger
}

// Status is the dashboard snapshot served by /api/status and /ws/status.
type Status struct {
	Session         session.Status    `json:"session"`
	Settings        settings.View     `json:"settings"`
	Scheduler       *scheduler.Stats  `json:"scheduler,omitempty"`
	Last            *pipeline.Outcome `json:"last,omitempty"`
	DeviceConnected bool              `json:"device_connected"`
	Viewers         int               `json:"viewers"`
	Time            time.Time         `json:"time"`
}

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	port   string
	deps   Deps
	logger *slog.Logger

	statusHub  *hub.Hub
	overlayHub *hub.Hub

	overlayMu sync.RWMutex
	overlay   []byte
	overlayAt time.Time
}

// NewServer creates the dashboard.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	s := &Server{
		port:       cfg.Port,
		deps:       deps,
		logger:     cfg.Logger.With("component", "web"),
		statusHub:  hub.New("status", cfg.Logger),
		overlayHub: hub.New("overlay", cfg.Logger),
	}
	s.statusHub.OnConnect(s.statusMessage)
	s.overlayHub.OnConnect(s.overlayMessage)

	app := fiber.New(fiber.Config{
		AppName:               "Lazarillo",
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	app.Get("/", func(c *fiber.Ctx) error {
		c.Type("html")
		return c.Send(indexHTML)
	})

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/settings", s.handleGetSettings)
	api.Put("/settings", s.handlePutSettings)
	api.Post("/session/tap", s.handleTap)
	api.Post("/session/stop", s.handleStop)
	api.Post("/session/settings", s.handleToggleSettings)
	api.Post("/session/permission/retry", s.handleRetryPermission)
	api.Get("/overlay", s.handleOverlay)
	api.Get("/detections", s.handleDetections)
	api.Post("/infer", s.handleInfer)

	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	if deps.Devices != nil {
		deps.Devices.RegisterRoutes(app)
		deps.Devices.RegisterAPIRoutes(api)
	}

	// WebSocket upgrade middleware
	upgrade := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
	app.Get("/ws/status", upgrade, websocket.New(func(c *websocket.Conn) {
		hub.Serve(s.statusHub, c)
	}))
	app.Get("/ws/overlay", upgrade, websocket.New(func(c *websocket.Conn) {
		hub.Serve(s.overlayHub, c)
	}))

	s.app = app
	return s
}

// App returns the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Subscribe pushes a fresh status to /ws/status whenever the session,
// the settings or the pipeline change.
func (s *Server) Subscribe(bus *events.Bus) error {
	push := func(events.Event) { s.PushStatus() }
	for _, topic := range []string{events.TopicSessionState, events.TopicSettings, events.TopicResult} {
		if err := bus.SubscribeAsync(topic, push); err != nil {
			return err
		}
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHubs := context.WithCancel(ctx)
	defer stopHubs()
	go s.statusHub.Run(hubCtx)
	go s.overlayHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "url", "http://localhost:"+s.port)
		errCh <- s.app.Listen(":" + s.port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// SetOverlay implements pipeline.OverlaySink.
func (s *Server) SetOverlay(jpeg []byte) {
	s.overlayMu.Lock()
	s.overlay = jpeg
	s.overlayAt = time.Now()
	s.overlayMu.Unlock()

	s.overlayHub.BroadcastBinary(jpeg)
}

// Overlay returns the latest overlay frame.
func (s *Server) Overlay() ([]byte, time.Time) {
	s.overlayMu.RLock()
	defer s.overlayMu.RUnlock()
	return s.overlay, s.overlayAt
}

// PushStatus broadcasts the current status to /ws/status clients.
func (s *Server) PushStatus() {
	if err := s.statusHub.BroadcastJSON(s.status()); err != nil {
		s.logger.Warn("encode status failed", "error", err)
	}
}

func (s *Server) status() Status {
	st := Status{
		Session:  s.deps.Session.Status(),
		Settings: s.deps.Settings.View(),
		Viewers:  s.overlayHub.ClientCount(),
		Time:     time.Now(),
	}
	if s.deps.Scheduler != nil {
		stats := s.deps.Scheduler()
		st.Scheduler = &stats
	}
	if s.deps.Results != nil {
		last := s.deps.Results.Last()
		if !last.At.IsZero() {
			st.Last = &last
		}
	}
	if s.deps.Connected != nil {
		st.DeviceConnected = s.deps.Connected()
	}
	return st
}

func (s *Server) statusMessage() (hub.Message, bool) {
	msg, err := jsonMessage(s.status())
	if err != nil {
		return hub.Message{}, false
	}
	return msg, true
}

func (s *Server) overlayMessage() (hub.Message, bool) {
	frame, _ := s.Overlay()
	if len(frame) == 0 {
		return hub.Message{}, false
	}
	return hub.OverlayMessage(frame), true
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
