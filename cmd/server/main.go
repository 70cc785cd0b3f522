package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/screencheck/screencheck/internal/capture"
	"github.com/screencheck/screencheck/internal/capture/mock"
	"github.com/screencheck/screencheck/internal/capture/portal"
	"github.com/screencheck/screencheck/internal/config"
	"github.com/screencheck/screencheck/internal/envinfo"
	"github.com/screencheck/screencheck/internal/logging"
	"github.com/screencheck/screencheck/internal/notify"
	"github.com/screencheck/screencheck/internal/preview"
	"github.com/screencheck/screencheck/internal/screenshare"
	"github.com/screencheck/screencheck/internal/ws"
)

const maxWSConnections = 32

func main() {
	mockMode := flag.Bool("mock", false, "Use the scripted mock capture backend")
	devMode := flag.Bool("dev", false, "Development logging (human-readable, colored)")
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	logLevel := flag.String("log-level", "", "Override log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *mockMode {
		cfg.Capture.Backend = config.BackendMock
	}
	if *devMode {
		cfg.Log.Development = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	named := logger.Named("main")
	if err := cfg.Validate(); err != nil {
		named.Fatalw("Invalid configuration", "error", err)
	}

	platform, closePlatform := newPlatform(cfg, logger)
	defer closePlatform()

	surface := preview.NewSurface()
	surface.OnChange(func(info preview.Info) {
		named.Debugw("Preview surface changed", "attached", info.Attached, "streamID", info.StreamID)
	})

	controller := screenshare.NewController(platform, surface, logger)
	broadcaster := ws.NewBroadcaster(controller, surface, logger,
		cfg.Broadcast.Throttle, cfg.Broadcast.SnapshotInterval, maxWSConnections)
	controller.AddObserver(broadcaster)
	var notifier *notify.Notifier
	if cfg.Notifications.Enabled {
		notifier = notify.New(logger)
		controller.AddObserver(notifier)
	}

	server := ws.NewServer(controller, broadcaster, surface, envinfo.NewCollector(), logger, ws.Options{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		StartTimeout:   cfg.Capture.RequestTimeout,
	})

	named.Infow("Starting screencheck",
		"backend", cfg.Capture.Backend,
		"supported", controller.Supported(),
		"addr", cfg.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = ws.ListenAndServe(ctx, cfg.Addr(), server.Handler(), logger.Named("http"))

	named.Info("Shutting down...")
	controller.Close()
	broadcaster.Stop()
	if notifier != nil {
		notifier.Close()
	}

	if err != nil {
		named.Fatalw("Server error", "error", err)
	}
}

// newPlatform builds the configured capture backend and a function that
// releases it.
func newPlatform(cfg *config.Config, logger *zap.SugaredLogger) (capture.Platform, func()) {
	if cfg.Capture.Backend == config.BackendMock {
		logger.Named("main").Info("Starting with mock capture backend")
		p := mock.New()
		p.SetFallback(mockOutcome(cfg.Capture.Mock))
		return p, func() {}
	}

	p := portal.New(logger)
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Debugw("Failed to close session bus", "error", err)
		}
	}
}

func mockOutcome(m config.MockConfig) mock.Outcome {
	if m.FailWith != "" {
		o := mock.FailOutcome(capture.ErrorName(m.FailWith), "Simulated capture failure")
		o.Delay = m.Delay
		return o
	}
	settings := mock.MonitorSettings(m.Width, m.Height, m.FrameRate)
	if m.Surface != "" {
		surface := m.Surface
		settings.DisplaySurface = &surface
	}
	return mock.Outcome{Video: []capture.Settings{settings}, Delay: m.Delay}
}
