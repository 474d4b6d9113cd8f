package ctl

import (
	"fmt"
	"strings"
)

// Start asks the daemon to arm the rig and begin a monitored test run.
func Start(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	var resp struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
		Error   string `json:"error"`
		RunID   string `json:"run_id"`
	}
	if err := postJSON(baseURL, "/api/start", nil, &resp); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}

	fmt.Println()
	if resp.OK {
		fmt.Printf("  %s  %s\n", colorize(green, "STARTED"), resp.Message)
		if resp.RunID != "" {
			fmt.Printf("  %s  %s\n", colorize(dim, "run:   "), resp.RunID)
		}
	} else {
		fmt.Printf("  %s  %s\n", colorize(red, "FAILED"), resp.Error)
	}
	fmt.Println()

	return nil
}
