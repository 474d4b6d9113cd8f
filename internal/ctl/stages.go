package ctl

import (
	"fmt"
	"strings"
	"time"
)

// Stages fetches the configured test plan via GET /api/stages and displays
// it as a table.
func Stages(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		Stages []struct {
			Index                int     `json:"index"`
			Name                 string  `json:"name"`
			StartSeconds         int     `json:"start_s"`
			DurationSeconds      int     `json:"duration_s"`
			ExpectedRPM          float64 `json:"expected_rpm"`
			ExpectedESCCurrent   float64 `json:"expected_esc_current"`
			ExpectedTotalCurrent float64 `json:"expected_total_current"`
		} `json:"stages"`
		TotalSeconds int `json:"total_seconds"`
	}
	if err := getJSON(baseURL, "/api/stages", &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  TEST PLAN"))
	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 74)))
	fmt.Printf("  %s %s %s %s %s %s %s\n",
		colorize(dim, padRight("#", 3)),
		colorize(dim, padRight("NAME", 16)),
		colorize(dim, padRight("START", 8)),
		colorize(dim, padRight("DURATION", 10)),
		colorize(dim, padRight("RPM", 7)),
		colorize(dim, padRight("ESC A", 7)),
		colorize(dim, padRight("TOTAL A", 8)),
	)

	expect := func(v float64, format string) string {
		if v <= 0 {
			return "-"
		}
		return fmt.Sprintf(format, v)
	}

	for _, s := range resp.Stages {
		fmt.Printf("  %s %s %s %s %s %s %s\n",
			padRight(fmt.Sprintf("%d", s.Index), 3),
			padRight(s.Name, 16),
			padRight(formatDuration(time.Duration(s.StartSeconds)*time.Second), 8),
			padRight(formatDuration(time.Duration(s.DurationSeconds)*time.Second), 10),
			padRight(expect(s.ExpectedRPM, "%.0f"), 7),
			padRight(expect(s.ExpectedESCCurrent, "%.1f"), 7),
			padRight(expect(s.ExpectedTotalCurrent, "%.1f"), 8),
		)
	}

	fmt.Println(colorize(dim, "  "+strings.Repeat("─", 74)))
	fmt.Printf("  %d stages, %s total\n", len(resp.Stages),
		formatDuration(time.Duration(resp.TotalSeconds)*time.Second))
	fmt.Println()

	return nil
}
