// Package config decodes the HCL scenario file describing a simulation run:
// time stepping, executor mode, steady-state initialization parameters,
// decoupling-line defaults, and output paths.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// ConfigError reports a malformed or invalid scenario configuration.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// ExecutorMode selects which internal/executor implementation runs the
// scenario.
type ExecutorMode string

const (
	Sequential  ExecutorMode = "sequential"
	Threaded    ExecutorMode = "threaded"
	Distributed ExecutorMode = "distributed"
)

// Scenario is the format-agnostic, fully-decoded configuration for one
// simulation run.
type Scenario struct {
	TimeStep float64 `hcl:"time_step"`
	Duration float64 `hcl:"duration"`

	ExecutorMode ExecutorMode `hcl:"executor_mode,optional"`
	Workers      int          `hcl:"workers,optional"`

	// SwitchNumBound caps the number of switch components a scenario may
	// register; simulation.New rejects a registry with more switches. The
	// solve core's per-switch-state factorization cache is not bounded by
	// it and never evicts entries.
	SwitchNumBound int `hcl:"switch_num_bound,optional"`

	SteadyStateEpsilon   float64 `hcl:"steady_state_epsilon,optional"`
	SteadyStateTimeLimit string  `hcl:"steady_state_time_limit,optional"`

	MeasurementPath string `hcl:"measurement_path,optional"`
	MaxTicks        int    `hcl:"max_ticks,optional"`

	LoadProfilePath string `hcl:"load_profile_path,optional"`

	RankCount int `hcl:"rank_count,optional"`

	LogLevel  string `hcl:"log_level,optional"`
	LogFormat string `hcl:"log_format,optional"`

	DecouplingLines []DecouplingLineBlock `hcl:"decoupling_line,block"`
}

// DecouplingLineBlock configures one decoupling line declared in the
// scenario file.
type DecouplingLineBlock struct {
	Name               string  `hcl:"name,label"`
	R                  float64 `hcl:"r"`
	L                  float64 `hcl:"l"`
	C                  float64 `hcl:"c"`
	SubsystemA         string  `hcl:"subsystem_a"`
	SubsystemB         string  `hcl:"subsystem_b"`
	NominalFrequencyHz float64 `hcl:"nominal_frequency_hz,optional"`
}

// Load reads and decodes the HCL scenario file at path and applies
// defaults for every optional field left unset.
func Load(path string) (*Scenario, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	file, diags := hclsyntax.ParseConfig(src, path, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, &ConfigError{Msg: fmt.Sprintf("config: parsing %s: %s", path, diags.Error())}
	}

	var scenario Scenario
	if diags := gohcl.DecodeBody(file.Body, nil, &scenario); diags.HasErrors() {
		return nil, &ConfigError{Msg: fmt.Sprintf("config: decoding %s: %s", path, diags.Error())}
	}

	applyDefaults(&scenario)
	if err := validate(&scenario); err != nil {
		return nil, err
	}
	return &scenario, nil
}

func applyDefaults(s *Scenario) {
	if s.ExecutorMode == "" {
		s.ExecutorMode = Sequential
	}
	if s.Workers <= 0 {
		s.Workers = 1
	}
	if s.SwitchNumBound <= 0 {
		s.SwitchNumBound = 64
	}
	if s.SteadyStateEpsilon <= 0 {
		s.SteadyStateEpsilon = 1e-6
	}
	if s.SteadyStateTimeLimit == "" {
		s.SteadyStateTimeLimit = "1s"
	}
	if s.MaxTicks <= 0 {
		s.MaxTicks = 1000
	}
	if s.RankCount <= 0 {
		s.RankCount = 1
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.LogFormat == "" {
		s.LogFormat = "json"
	}
}

func validate(s *Scenario) error {
	if s.TimeStep <= 0 {
		return &ConfigError{Msg: "config: time_step must be positive"}
	}
	if s.Duration <= 0 {
		return &ConfigError{Msg: "config: duration must be positive"}
	}
	switch s.ExecutorMode {
	case Sequential, Threaded, Distributed:
	default:
		return &ConfigError{Msg: fmt.Sprintf("config: invalid executor_mode %q", s.ExecutorMode)}
	}
	for _, line := range s.DecouplingLines {
		if line.L <= 0 || line.C <= 0 {
			return &ConfigError{Msg: fmt.Sprintf("config: decoupling_line %q requires positive l and c", line.Name)}
		}
	}
	return nil
}
