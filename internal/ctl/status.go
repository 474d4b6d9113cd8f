package ctl

import (
	"fmt"
	"strings"
	"time"
)

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name            string `json:"name"`
	State           string `json:"state"`
	Mode            string `json:"mode"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	EnableParam     string `json:"enable_param"`
	StageCount      int    `json:"stage_count"`
	PlannedDuration int    `json:"planned_duration"`
	Monitor         struct {
		State          string `json:"state"`
		RunID          string `json:"run_id"`
		Tick           int    `json:"tick"`
		ElapsedSeconds int    `json:"elapsed_s"`
		StageIndex     int    `json:"stage_index"`
		StageName      string `json:"stage"`
		InStageSeconds int    `json:"in_stage_s"`
		LastSample     string `json:"last_sample"`
		Enabled        bool   `json:"enabled"`
		StopFailure    bool   `json:"stop_failure"`
		Outcome        string `json:"outcome"`
	} `json:"monitor"`
}

// Status fetches the daemon status and prints a formatted summary.
func Status(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var s StatusResponse
	if err := getJSON(baseURL, "/api/status", &s); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
	stateStr := colorize(stateColor(s.State), s.State)

	fmt.Println()
	fmt.Println(header("  BENCHGUARD STATUS"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
	fmt.Printf("  %-14s %s\n", colorize(dim, "Daemon:"), s.Name)
	fmt.Printf("  %-14s %s\n", colorize(dim, "State:"), stateStr)
	fmt.Printf("  %-14s %s\n", colorize(dim, "Mode:"), s.Mode)
	fmt.Printf("  %-14s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Printf("  %-14s %s\n", colorize(dim, "Enable param:"), s.EnableParam)
	fmt.Printf("  %-14s %d stages, %s planned\n", colorize(dim, "Plan:"),
		s.StageCount, formatDuration(time.Duration(s.PlannedDuration)*time.Second))
	fmt.Printf("  %-14s %s\n", colorize(dim, "Host:"), baseURL)

	m := s.Monitor
	if m.State == "RUNNING" || m.State == "COMPLETED" {
		fmt.Println()
		fmt.Println(header("  ACTIVE RUN"))
		fmt.Println(colorize(dim, "  "+strings.Repeat("─", 38)))
		fmt.Printf("  %-14s %s\n", colorize(dim, "Run:"), m.RunID)
		fmt.Printf("  %-14s %s (t=%ds in stage)\n", colorize(dim, "Stage:"), m.StageName, m.InStageSeconds)
		fmt.Printf("  %-14s %s (tick %d)\n", colorize(dim, "Elapsed:"),
			formatDuration(time.Duration(m.ElapsedSeconds)*time.Second), m.Tick)
		if m.LastSample != "" {
			fmt.Printf("  %-14s %s\n", colorize(dim, "Sample:"), colorize(dim, m.LastSample))
		}
	} else if m.Outcome != "" {
		fmt.Printf("  %-14s %s\n", colorize(dim, "Last run:"), m.Outcome)
	}
	if m.StopFailure {
		fmt.Printf("  %-14s %s\n", colorize(dim, "Alert:"),
			colorize(red, "enable flag write FAILED, use the physical kill switch"))
	}
	fmt.Println()

	return nil
}
