package ctl

import (
	"fmt"
	"strings"
	"time"
)

// FindingsOptions configures the findings command.
type FindingsOptions struct {
	Severity string
	Limit    int
	JSON     bool
}

// Findings shows anomaly findings recorded by the daemon, most recent last.
func Findings(baseURL string, opts FindingsOptions) error {
	baseURL = strings.TrimRight(baseURL, "/")

	path := "/api/findings"
	var params []string
	if opts.Severity != "" {
		params = append(params, "severity="+opts.Severity)
	}
	if opts.Limit > 0 {
		params = append(params, fmt.Sprintf("limit=%d", opts.Limit))
	}
	if len(params) > 0 {
		path += "?" + strings.Join(params, "&")
	}

	var resp struct {
		Findings []struct {
			TS        string  `json:"ts"`
			RunID     string  `json:"run_id"`
			Tick      int     `json:"tick"`
			Severity  string  `json:"severity"`
			Subject   string  `json:"subject"`
			Message   string  `json:"message"`
			Measured  float64 `json:"measured"`
			Expected  float64 `json:"expected"`
			Deviation float64 `json:"deviation"`
		} `json:"findings"`
	}
	if err := getJSON(baseURL, path, &resp); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(resp)
	}

	fmt.Println()
	fmt.Println(header("  FINDINGS"))
	fmt.Println("  " + strings.Repeat("─", 70))

	if len(resp.Findings) == 0 {
		fmt.Println("  No findings recorded.")
	} else {
		for _, f := range resp.Findings {
			ts := f.TS
			if t, err := time.Parse(time.RFC3339Nano, f.TS); err == nil {
				ts = t.Local().Format("15:04:05")
			}
			run := f.RunID
			if len(run) > 8 {
				run = run[:8]
			}
			fmt.Printf("  %s %s  %s t=%-4d %s\n",
				colorize(dim, ts),
				colorize(severityColor(f.Severity), padRight(f.Severity, 5)),
				colorize(dim, run),
				f.Tick,
				f.Message,
			)
		}
	}

	fmt.Println()
	return nil
}
