// Package app wires together the HTTP server, WebSocket hub, the store
// (live redis or the in-process sim), and the monitor. It owns the daemon's
// lifecycle and is the single source of truth for the current operating
// state.
package app

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/propdyn/benchguard/internal/config"
	"github.com/propdyn/benchguard/internal/events"
	"github.com/propdyn/benchguard/internal/monitor"
	"github.com/propdyn/benchguard/internal/sim"
	"github.com/propdyn/benchguard/internal/store"
	"github.com/propdyn/benchguard/internal/ws"
)

// Options holds everything the App needs from the caller.
type Options struct {
	Logger     *logrus.Logger
	Cfg        config.Config
	Bind       string
	ConfigPath string
}

// App is the top-level daemon process. It manages the HTTP server, the
// WebSocket event hub, and the monitor.
type App struct {
	log        *logrus.Logger
	cfg        config.Config
	configPath string
	bind       string
	server     *http.Server

	startedAt time.Time
	state     atomic.Value // current state string (BOOTING, IDLE, etc.)
	mode      string       // "live" or "sim"

	wsHub   *ws.Hub
	monitor *monitor.Monitor
	st      store.Store

	logBuf   *ringBuffer[logEntry]
	findings *ringBuffer[events.Finding]
}

// New creates an App in the BOOTING state. Call Run to start serving.
func New(opts Options) *App {
	mode := "live"
	if opts.Cfg.Sim.Enabled {
		mode = "sim"
	}
	a := &App{
		log:        opts.Logger,
		cfg:        opts.Cfg,
		configPath: opts.ConfigPath,
		bind:       opts.Bind,
		mode:       mode,
		startedAt:  time.Now(),
		wsHub:      ws.NewHub(),
		logBuf:     newRingBuffer[logEntry](500),
		findings:   newRingBuffer[events.Finding](200),
	}
	a.state.Store("BOOTING")
	opts.Logger.AddHook(&bufferHook{buf: a.logBuf})
	return a
}

// Run starts the store, the HTTP server, the WebSocket hub, the heartbeat
// ticker, the monitor, and (in sim mode) the simulated rig. It blocks until
// the context is cancelled or the server returns an error.
func (a *App) Run(ctx context.Context) error {
	bind := a.bind
	if bind == "" && a.cfg.Server.Bind != "" {
		bind = a.cfg.Server.Bind
	}
	if bind == "" {
		bind = "0.0.0.0:8080"
	}

	plan, err := a.cfg.Plan()
	if err != nil {
		return err
	}

	var simRunner *sim.Runner
	if a.cfg.Sim.Enabled {
		mem := store.NewMemory()
		mem.SetFlag(a.cfg.Store.EnableParam, 0)
		a.st = mem
		simRunner = &sim.Runner{
			Store:       mem,
			Plan:        plan,
			Hub:         a.wsHub,
			Log:         a.log,
			Interval:    time.Duration(a.cfg.Monitor.TickSeconds) * time.Second,
			EnableParam: a.cfg.Store.EnableParam,
			Fault:       a.cfg.Sim.Fault,
			FaultAfter:  time.Duration(a.cfg.Sim.FaultAfterSeconds) * time.Second,
		}
	} else {
		rs, err := store.NewRedis(store.RedisOptions{
			Addr:      a.cfg.Store.Addr,
			Password:  a.cfg.Store.Password,
			DB:        a.cfg.Store.DB,
			Namespace: a.cfg.Store.Namespace,
			OpTimeout: a.cfg.Store.OpTimeout(),
		}, a.log)
		if err != nil {
			return err
		}
		defer rs.Close()
		a.st = rs
	}

	a.monitor = monitor.New(monitor.Options{
		Hub:         a.wsHub,
		Store:       a.st,
		Plan:        plan,
		Limits:      monitor.LimitsFromConfig(a.cfg.Monitor),
		Log:         a.log,
		EnableParam: a.cfg.Store.EnableParam,
		Tick:        time.Duration(a.cfg.Monitor.TickSeconds) * time.Second,
		MaxOverrun:  time.Duration(a.cfg.Monitor.MaxOverrunSeconds) * time.Second,
	})
	a.monitor.SetFindingCallback(a.recordFinding)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/version", a.handleVersion)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/stages", a.handleStages)
	mux.HandleFunc("/api/findings", a.handleFindings)
	mux.HandleFunc("/api/logs", a.handleLogs)
	mux.HandleFunc("/api/start", a.handleStart)
	mux.HandleFunc("/api/stop", a.handleStop)
	mux.Handle("/ws", a.wsHub.Handler())
	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}

	a.log.Infof("listening on http://%s (%s mode)", bind, a.mode)

	go a.wsHub.Run(ctx)
	go a.heartbeatLoop(ctx)
	if simRunner != nil {
		go simRunner.Run(ctx)
	}
	go a.monitor.Run(ctx, a.transition)

	go func() {
		<-ctx.Done()
		a.log.Info("shutdown requested")
		_ = a.server.Shutdown(context.Background())
	}()

	return a.server.Serve(ln)
}

// transition atomically updates the daemon state and broadcasts the change
// to all connected WebSocket clients.
func (a *App) transition(newState string) {
	old := a.state.Load().(string)
	if old == newState {
		return
	}
	a.state.Store(newState)

	a.wsHub.BroadcastJSON(map[string]any{
		"type":      "state",
		"ts":        events.NowTS(),
		"from":      old,
		"to":        newState,
		"component": "benchd",
	})
}

// heartbeatLoop sends a periodic heartbeat event so clients can detect
// connectivity and track uptime without polling.
func (a *App) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.wsHub.BroadcastJSON(map[string]any{
				"type":           "heartbeat",
				"ts":             events.NowTS(),
				"state":          a.state.Load().(string),
				"uptime_seconds": int64(time.Since(a.startedAt).Seconds()),
			})
		}
	}
}

func (a *App) recordFinding(f events.Finding) {
	a.findings.append(f)
}
