// Benchd is the safety-monitor daemon for the X8 propulsion test bench.
//
// It loads configuration, connects to the rig's parameter/telemetry store
// (or starts the built-in simulator), and serves the HTTP/WebSocket control
// surface. The actual test is started and stopped through benchctl or the
// HTTP API; shutdown is handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/propdyn/benchguard/internal/app"
	"github.com/propdyn/benchguard/internal/config"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/benchguard/benchguard.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides server.bind)")
		simulate   = pflag.Bool("sim", false, "Force sim mode regardless of config")
	)
	pflag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("no config at %s, using built-in defaults", *configPath)
			cfg = config.Default()
		} else {
			logger.Fatalf("config load failed: %v", err)
		}
	}
	if *simulate {
		cfg.Sim.Enabled = true
	}

	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Logging.Level)
	}

	a := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		Bind:       *bind,
		ConfigPath: *configPath,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("benchd failed: %v", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
