package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/propdyn/benchguard/internal/monitor"
	"github.com/propdyn/benchguard/internal/store"
)

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// If the client asks for JSON, return component-level health checks.
	if r.Header.Get("Accept") == "application/json" {
		a.handleHealthDetailed(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (a *App) handleHealthDetailed(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]any{}
	allOK := true

	// Store reachability: a flag that simply has no value yet still proves
	// the link is up.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := a.st.ReadFlag(ctx, a.cfg.Store.EnableParam)
	if err != nil && !errors.Is(err, store.ErrUnavailable) {
		checks["store"] = map[string]any{"ok": false, "error": err.Error()}
		allOK = false
	} else {
		checks["store"] = map[string]any{"ok": true, "mode": a.mode}
	}

	if a.configPath != "" {
		if _, err := os.Stat(a.configPath); err != nil {
			checks["config_file"] = map[string]any{"ok": false, "error": err.Error()}
			allOK = false
		} else {
			checks["config_file"] = map[string]any{"ok": true, "path": a.configPath}
		}
	}

	st := a.monitor.Current()
	checks["monitor"] = map[string]any{"ok": !st.StopFailure, "state": st.State}
	if st.StopFailure {
		allOK = false
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy": allOK,
		"checks":  checks,
	})
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	plan, _ := a.cfg.Plan()

	resp := map[string]any{
		"name":             "benchguard",
		"state":            a.state.Load().(string),
		"mode":             a.mode,
		"uptime_seconds":   int64(time.Since(a.startedAt).Seconds()),
		"enable_param":     a.cfg.Store.EnableParam,
		"stage_count":      plan.Len(),
		"planned_duration": int(plan.Total().Seconds()),
		"ws_clients":       a.wsHub.ClientCount(),
		"monitor":          a.monitor.Current(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *App) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"version":    Version,
		"go_version": GoVersion,
		"built_at":   BuiltAt,
	})
}

func (a *App) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a.cfg)
}

func (a *App) handleStages(w http.ResponseWriter, _ *http.Request) {
	type stageJSON struct {
		Index                int     `json:"index"`
		Name                 string  `json:"name"`
		StartSeconds         int     `json:"start_s"`
		DurationSeconds      int     `json:"duration_s"`
		ExpectedRPM          float64 `json:"expected_rpm"`
		ExpectedESCCurrent   float64 `json:"expected_esc_current"`
		ExpectedTotalCurrent float64 `json:"expected_total_current"`
	}

	plan, err := a.cfg.Plan()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stages := make([]stageJSON, plan.Len())
	start := 0
	for i, s := range plan.Stages() {
		stages[i] = stageJSON{
			Index:                i,
			Name:                 s.Name,
			StartSeconds:         start,
			DurationSeconds:      int(s.Duration.Seconds()),
			ExpectedRPM:          s.ExpectedRPM,
			ExpectedESCCurrent:   s.ExpectedESCCurrent,
			ExpectedTotalCurrent: s.ExpectedTotalCurrent,
		}
		start += int(s.Duration.Seconds())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stages":        stages,
		"total_seconds": int(plan.Total().Seconds()),
	})
}

func (a *App) handleFindings(w http.ResponseWriter, r *http.Request) {
	findings := a.findings.snapshot()

	if sev := strings.ToUpper(r.URL.Query().Get("severity")); sev != "" {
		filtered := findings[:0:0]
		for _, f := range findings {
			if f.Severity == sev {
				filtered = append(filtered, f)
			}
		}
		findings = filtered
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n < len(findings) {
			findings = findings[len(findings)-n:]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"findings": findings})
}

func (a *App) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := a.logBuf.snapshot()

	if level := r.URL.Query().Get("level"); level != "" {
		filtered := entries[:0:0]
		for _, e := range entries {
			if e.Level == level {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n < len(entries) {
			entries = entries[len(entries)-n:]
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"logs": entries})
}

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeCommandResult(w, a.sendMonitorCommand("start"))
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeCommandResult(w, a.sendMonitorCommand("stop"))
}

// sendMonitorCommand sends a command to the monitor and waits for the reply.
func (a *App) sendMonitorCommand(cmdType string) monitor.CommandResult {
	reply := make(chan monitor.CommandResult, 1)
	a.monitor.Commands <- monitor.Command{Type: cmdType, Reply: reply}
	return <-reply
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": msg,
	})
}

// writeCommandResult writes a monitor.CommandResult as JSON.
func writeCommandResult(w http.ResponseWriter, result monitor.CommandResult) {
	w.Header().Set("Content-Type", "application/json")
	if !result.OK {
		w.WriteHeader(http.StatusConflict)
	}
	_ = json.NewEncoder(w).Encode(result)
}
