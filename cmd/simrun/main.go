// Command simrun runs one task-graph scheduled power-system dynamic
// simulation from a scenario file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/vk/gridflow/internal/cli"
	"github.com/vk/gridflow/internal/config"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(output *os.File, args []string) error {
	opts, exitCleanly, err := cli.Parse(args, output)
	if err != nil {
		return err
	}
	if exitCleanly {
		return nil
	}

	scenario, err := config.Load(opts.ScenarioPath)
	if err != nil {
		return fmt.Errorf("simrun: loading scenario: %w", err)
	}
	if opts.WorkersOverride > 0 {
		scenario.Workers = opts.WorkersOverride
	}
	if opts.MeasurementPath != "" {
		scenario.MeasurementPath = opts.MeasurementPath
	}
	if opts.LogFormat != "" {
		scenario.LogFormat = opts.LogFormat
	}
	if opts.LogLevel != "" {
		scenario.LogLevel = opts.LogLevel
	}

	sim, err := buildSimulation(output, scenario, opts.Rank)
	if err != nil {
		return fmt.Errorf("simrun: building simulation: %w", err)
	}

	return sim.Run(context.Background())
}
