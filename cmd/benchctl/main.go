// Benchctl is the command-line client for monitoring and controlling a
// running benchd instance. It connects over HTTP and WebSocket to query
// status, start and stop test runs, and stream live bench telemetry.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/propdyn/benchguard/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8080", "Benchd daemon URL (e.g. http://192.168.8.1:8080)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter tick,finding)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --limit are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "config":
		err = ctl.Config(*host, *jsonOut)

	case "stages":
		err = ctl.Stages(*host, *jsonOut)

	case "findings":
		opts := ctl.FindingsOptions{JSON: *jsonOut}
		fFlags := pflag.NewFlagSet("findings", pflag.ContinueOnError)
		fFlags.StringVar(&opts.Severity, "severity", "", "Filter by severity (warn, abort)")
		fFlags.IntVar(&opts.Limit, "limit", 0, "Limit number of findings shown")
		_ = fFlags.Parse(subArgs)
		err = ctl.Findings(*host, opts)

	case "logs":
		opts := ctl.LogsOptions{JSON: *jsonOut}
		logFlags := pflag.NewFlagSet("logs", pflag.ContinueOnError)
		logFlags.StringVar(&opts.Level, "level", "", "Filter by log level (info, warning, error)")
		logFlags.IntVar(&opts.Limit, "limit", 0, "Limit number of log entries shown")
		logFlags.BoolVar(&opts.Tail, "tail", false, "Stream live log events (like watch --filter log)")
		_ = logFlags.Parse(subArgs)
		err = ctl.Logs(*host, opts)

	// ── Control commands ──────────────────────────────────────────
	case "start":
		err = ctl.Start(*host, *jsonOut)

	case "stop":
		err = ctl.Stop(*host, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  benchctl - benchguard control CLI

  USAGE
    benchctl [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show daemon state, active run, and stage context
    health          Check daemon, store, and monitor health
    version         Show CLI and daemon version information
    config          Show the daemon's running configuration
    stages          List the configured test stage table
    findings        Show recent anomaly findings (warnings and aborts)
    logs            Show recent daemon log messages

  COMMANDS (control)
    start           Start the staged motor test (sets the enable flag)
    stop            Stop the test (clears the enable flag)

  COMMANDS (live)
    watch           Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8080)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    findings:
        --severity S        Filter by severity (warn, abort)
        --limit N           Limit number of findings shown

    logs:
        --level LEVEL       Filter by log level (info, warning, error)
        --limit N           Limit number of log entries shown
        --tail              Stream live log events

  EXAMPLES
    benchctl status
    benchctl --json status
    benchctl --host http://192.168.8.1:8080 watch
    benchctl stages
    benchctl start
    benchctl --filter tick,finding watch
    benchctl findings --severity abort
    benchctl logs --level error --limit 20
    benchctl logs --tail
    benchctl stop

`)
}
