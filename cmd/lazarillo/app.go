package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/go-lazarillo/internal/config"
	"github.com/teslashibe/go-lazarillo/internal/log"
	"github.com/teslashibe/go-lazarillo/pkg/alert"
	"github.com/teslashibe/go-lazarillo/pkg/audio"
	"github.com/teslashibe/go-lazarillo/pkg/camera"
	"github.com/teslashibe/go-lazarillo/pkg/camera/webcam"
	"github.com/teslashibe/go-lazarillo/pkg/detection"
	"github.com/teslashibe/go-lazarillo/pkg/device"
	"github.com/teslashibe/go-lazarillo/pkg/events"
	"github.com/teslashibe/go-lazarillo/pkg/haptics"
	"github.com/teslashibe/go-lazarillo/pkg/inference"
	"github.com/teslashibe/go-lazarillo/pkg/metrics"
	"github.com/teslashibe/go-lazarillo/pkg/pipeline"
	"github.com/teslashibe/go-lazarillo/pkg/scheduler"
	"github.com/teslashibe/go-lazarillo/pkg/session"
	"github.com/teslashibe/go-lazarillo/pkg/settings"
	"github.com/teslashibe/go-lazarillo/pkg/speech"
	"github.com/teslashibe/go-lazarillo/pkg/tts"
	"github.com/teslashibe/go-lazarillo/pkg/web"
)

// app is the assembled client. Fields are nil when the matching feature is
// disabled in the config.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	bus      *events.Bus
	store    *settings.Store
	capturer camera.Capturer
	client   *inference.Client
	voice    tts.Provider
	synth    *speech.Synth
	speaker  speech.Speaker
	alerts   *alert.Coordinator
	pipe     *pipeline.Pipeline
	sched    *scheduler.Scheduler
	machine  *session.Machine
	metrics  *metrics.Metrics

	link      *device.Link
	handsets  *device.Server
	feedback  *device.Feedback
	dashboard *web.Server
}

func newStore(cfg *config.Config) *settings.Store {
	return settings.NewStore(settings.Config{
		Language:           settings.Language(cfg.Language),
		VibrationEnabled:   cfg.VibrationEnabled,
		VibrationIntensity: cfg.VibrationIntensity,
		Facing:             settings.FacingBack,
	})
}

func newClient(cfg *config.Config) (*inference.Client, error) {
	return inference.NewClient(
		inference.WithBaseURL(cfg.ServerURL),
		inference.WithTimeout(cfg.RequestTimeout),
		inference.WithRequestIDs(true),
		inference.WithLogger(log.Component("inference")),
	)
}

func newCapturer(cfg *config.Config) (camera.Capturer, error) {
	opts := []camera.Option{
		camera.WithWidth(cfg.Camera.Width),
		camera.WithQuality(cfg.Camera.Quality),
	}
	switch cfg.Camera.Source {
	case "dir":
		return camera.NewFileSource(cfg.Camera.Dir, opts...)
	default:
		return webcam.New(webcam.Config{
			BackDevice:  cfg.Camera.Device,
			FrontDevice: cfg.Camera.FrontDevice,
			Logger:      log.Component("webcam"),
		}, opts...)
	}
}

// newVoice builds the TTS chain. The configured provider goes first and
// the other one, when usable, is the fallback.
func newVoice(cfg *config.Config) (tts.Provider, error) {
	logger := log.Component("tts")

	var providers []tts.Provider
	edge := func() error {
		p, err := tts.NewEdge(tts.WithLogger(logger))
		if err != nil {
			return err
		}
		providers = append(providers, p)
		return nil
	}
	openai := func() error {
		p, err := tts.NewOpenAI(tts.WithAPIKey(cfg.Speech.OpenAIKey), tts.WithLogger(logger))
		if err != nil {
			return err
		}
		providers = append(providers, p)
		return nil
	}

	switch cfg.Speech.Provider {
	case "openai":
		if err := openai(); err != nil {
			return nil, err
		}
		if err := edge(); err != nil {
			logger.Warn("edge fallback unavailable", "error", err)
		}
	default:
		if err := edge(); err != nil {
			return nil, err
		}
		if cfg.Speech.OpenAIKey != "" {
			if err := openai(); err != nil {
				logger.Warn("openai fallback unavailable", "error", err)
			}
		}
	}
	return tts.NewChainWithLogger(logger, providers...)
}

func build(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: log.Component("app"),
		bus:    events.New(),
	}

	a.store = newStore(cfg)

	capturer, err := newCapturer(cfg)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	a.capturer = capturer

	a.store.OnChange = func(s settings.Config) {
		if sw, ok := a.capturer.(camera.FacingSwitcher); ok {
			if err := sw.SetFacing(s.Facing); err != nil {
				a.logger.Warn("switch camera failed", "error", err)
			}
		}
		a.bus.Publish(events.TopicSettings, s)
	}

	if a.client, err = newClient(cfg); err != nil {
		a.Close()
		return nil, fmt.Errorf("inference: %w", err)
	}

	if err := a.buildFeedback(); err != nil {
		a.Close()
		return nil, err
	}

	vibrator := haptics.Vibrator(haptics.Log{Logger: log.Component("haptics")})
	if a.feedback != nil {
		vibrator = a.feedback
	}

	if cfg.Speech.Provider == "log" {
		a.speaker = speech.LogSpeaker{Logger: log.Component("speech")}
	} else {
		if a.voice, err = newVoice(cfg); err != nil {
			a.Close()
			return nil, fmt.Errorf("speech: %w", err)
		}
		var sink speech.Sink
		switch {
		case a.feedback != nil:
			sink = a.feedback
		case cfg.Speech.Output == "local":
			sink = audio.NewPlayer(nil, log.L())
		default:
			sink = speech.LogSink{Logger: log.Component("speech")}
		}
		a.synth = speech.NewSynth(a.voice, sink, nil, log.Component("speech"))
		a.speaker = a.synth
	}

	a.alerts = alert.NewCoordinator(vibrator, a.speaker, a.store,
		alert.WithDedupeWindow(cfg.DedupeWindow),
		alert.WithPublisher(a.bus),
		alert.WithLogger(log.Component("alert")),
	)

	policy := detection.Policy{
		MaxDistanceMeters: cfg.MaxDistanceMeters,
		MaxCount:          cfg.MaxCount,
		MinConfidence:     cfg.MinConfidence,
	}
	a.pipe = pipeline.New(policy, a.alerts,
		pipeline.WithOverlay(pipeline.OverlayFunc(a.setOverlay)),
		pipeline.WithPublisher(a.bus),
		pipeline.WithLogger(log.Component("pipeline")),
	)

	a.sched = scheduler.New(a.capturer, a.client, a.pipe.Handle, log.Component("scheduler"))

	sessionOpts := []session.Option{
		session.WithInterval(cfg.TickInterval),
		session.WithDoubleTapWindow(cfg.DoubleTapWindow),
		session.WithPublisher(a.bus),
		session.WithLogger(log.Component("session")),
		session.WithOnStop(a.pipe.Clear),
	}
	if pr, ok := a.capturer.(camera.PermissionRequester); ok {
		sessionOpts = append(sessionOpts, session.WithPermission(pr))
	}
	a.machine = session.New(a.sched, a.alerts, a.speaker, a.store, sessionOpts...)

	a.metrics = metrics.New()
	a.metrics.WatchScheduler(a.sched.Stats)
	if a.feedback != nil {
		a.metrics.WatchDevice(a.deviceConnected)
	}
	if err := a.metrics.Attach(a.bus); err != nil {
		a.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if cfg.Web.Enabled {
		if err := a.buildDashboard(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) buildFeedback() error {
	if a.cfg.Feedback.URL == "" && !a.cfg.Feedback.Accept {
		return nil
	}

	packetizer, err := device.NewOpusPacketizer()
	if err != nil {
		return fmt.Errorf("opus: %w", err)
	}

	if a.cfg.Feedback.Accept {
		a.handsets = device.NewServer(log.Component("device"))
		a.feedback = device.NewFeedback(a.handsets, packetizer, log.Component("device"))
		return nil
	}

	a.link, err = device.NewLink(a.cfg.Feedback.URL, device.WithLogger(log.Component("device")))
	if err != nil {
		return fmt.Errorf("device link: %w", err)
	}
	a.feedback = device.NewFeedback(a.link, packetizer, log.Component("device"))
	return nil
}

func (a *app) buildDashboard() error {
	deps := web.Deps{
		Session:   a.machine,
		Settings:  a.store,
		Results:   a.pipe,
		Scheduler: a.sched.Stats,
		Inferer:   a.client,
		Metrics:   a.metrics.Handler(),
	}
	if a.handsets != nil {
		deps.Devices = a.handsets
	}
	if a.feedback != nil {
		deps.Connected = a.deviceConnected
	}

	a.dashboard = web.NewServer(web.Config{
		Port:      a.cfg.Web.Port,
		AccessLog: log.ParseLevel(a.cfg.LogLevel) == slog.LevelDebug,
		Logger:    log.L(),
	}, deps)
	return a.dashboard.Subscribe(a.bus)
}

func (a *app) setOverlay(jpeg []byte) {
	if a.dashboard != nil {
		a.dashboard.SetOverlay(jpeg)
	}
}

func (a *app) deviceConnected() bool {
	switch {
	case a.link != nil:
		return a.link.Connected()
	case a.handsets != nil:
		return a.handsets.Connected()
	}
	return false
}

// Close stops the scheduler and releases every resource. Safe on a partly
// built app.
func (a *app) Close() error {
	var errs []error
	if a.sched != nil {
		a.sched.Close()
	}
	if a.synth != nil {
		a.synth.Cancel()
		a.synth.Wait()
	}
	if a.voice != nil {
		errs = append(errs, a.voice.Close())
	}
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.capturer != nil {
		errs = append(errs, a.capturer.Close())
	}
	a.bus.Wait()
	return errors.Join(errs...)
}
