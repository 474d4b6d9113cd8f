package ctl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Health queries /healthz with an Accept: application/json header so the
// daemon reports per-component checks (store link, config file, monitor
// latch) instead of a bare ok.
func Health(baseURL string, jsonOutput bool) error {
	baseURL = strings.TrimRight(baseURL, "/")

	req, err := http.NewRequest(http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		if jsonOutput {
			return printJSON(map[string]any{"healthy": false, "url": baseURL, "error": err.Error()})
		}
		return err
	}
	defer resp.Body.Close()

	var health struct {
		Healthy bool                      `json:"healthy"`
		Checks  map[string]map[string]any `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{"healthy": health.Healthy, "url": baseURL, "checks": health.Checks})
	}

	fmt.Println()
	if health.Healthy {
		fmt.Printf("  %s  benchd is healthy at %s\n", colorize(green, "HEALTHY"), colorize(dim, baseURL))
	} else {
		fmt.Printf("  %s  benchd reports problems at %s\n", colorize(red, "UNHEALTHY"), colorize(dim, baseURL))
	}

	names := make([]string, 0, len(health.Checks))
	for name := range health.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := health.Checks[name]
		ok, _ := check["ok"].(bool)
		mark := colorize(green, "ok")
		detail := ""
		if !ok {
			mark = colorize(red, "FAIL")
			if msg, _ := check["error"].(string); msg != "" {
				detail = "  " + colorize(dim, msg)
			}
		}
		fmt.Printf("    %-14s %s%s\n", colorize(dim, name+":"), mark, detail)
	}
	fmt.Println()

	return nil
}
