// Package cli parses command-line arguments for the simrun binary into
// Options that the caller merges over a loaded config.Scenario, handling
// process-level concerns like usage text and exit codes.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string { return e.Message }

// Options holds the parsed command-line flags, ready to be merged over a
// loaded config.Scenario.
type Options struct {
	ScenarioPath    string
	Rank            int
	WorkersOverride int
	MeasurementPath string
	LogFormat       string
	LogLevel        string
}

// Parse processes command-line arguments. It returns parsed Options, a
// boolean indicating the program should exit cleanly (e.g. -help), or an
// ExitError.
func Parse(args []string, output io.Writer) (*Options, bool, error) {
	flagSet := flag.NewFlagSet("simrun", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
simrun - task-graph scheduled power-system dynamic simulation core.

Usage:
  simrun [options] SCENARIO_PATH

Arguments:
  SCENARIO_PATH
    Path to an HCL scenario file.

Options:
`)
		flagSet.PrintDefaults()
	}

	scenarioFlag := flagSet.String("scenario", "", "Path to the scenario file.")
	rankFlag := flagSet.Int("rank", 0, "This process's rank, for distributed executor mode.")
	workersFlag := flagSet.Int("workers", 0, "Override the scenario's worker count. 0 uses the scenario value.")
	measurementFlag := flagSet.String("measurement-path", "", "Override the scenario's measurement output path.")
	logFormatFlag := flagSet.String("log-format", "", "Override log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "", "Override log level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := *scenarioFlag
	if path == "" && flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "" && logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	return &Options{
		ScenarioPath:    path,
		Rank:            *rankFlag,
		WorkersOverride: *workersFlag,
		MeasurementPath: *measurementFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	}, false, nil
}
