// Package plan loads cycle definitions and resolves them into ordered,
// fully specified test cases.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// Format identifies the encoding of a plan file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// PlatformConfig is the typed environment record for one platform
type PlatformConfig struct {
	Environment types.Environment `yaml:"environment" toml:"environment"`
	Deploy      []string          `yaml:"deploy" toml:"deploy"`
	Teardown    []string          `yaml:"teardown" toml:"teardown"`
}

// SetupTypeConfig describes a named environment template
type SetupTypeConfig struct {
	Description       string            `yaml:"description,omitempty" toml:"description,omitempty"`
	RequiresBaseImage bool              `yaml:"requiresBaseImage" toml:"requiresBaseImage"`
	Environment       types.Environment `yaml:"environment" toml:"environment"`
}

// TestConfig is a test case as written in the plan file
type TestConfig struct {
	Name        string            `yaml:"name" toml:"name"`
	Platforms   []string          `yaml:"platforms,omitempty" toml:"platforms,omitempty"`
	Priority    int               `yaml:"priority" toml:"priority"`
	SetupType   string            `yaml:"setupType" toml:"setupType"`
	Iterations  int               `yaml:"iterations,omitempty" toml:"iterations,omitempty"`
	Command     []string          `yaml:"command" toml:"command"`
	Timeout     *time.Duration    `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Environment types.Environment `yaml:"environment,omitempty" toml:"environment,omitempty"`
	Params      map[string]string `yaml:"params,omitempty" toml:"params,omitempty"`
}

// CycleConfig is an ordered list of tests under a name
type CycleConfig struct {
	Name        string       `yaml:"name" toml:"name"`
	Description string       `yaml:"description,omitempty" toml:"description,omitempty"`
	Tests       []TestConfig `yaml:"tests" toml:"tests"`
}

// Plan is the complete, parsed plan file
type Plan struct {
	Platforms  map[string]PlatformConfig  `yaml:"platforms" toml:"platforms"`
	SetupTypes map[string]SetupTypeConfig `yaml:"setupTypes" toml:"setupTypes"`
	Cycles     []CycleConfig              `yaml:"cycles" toml:"cycles"`
}

// Config contains loader configuration
type Config struct {
	Log  log.Logger
	File string
}

// Load reads and validates the plan file named in cfg. The format is chosen
// by file extension: .toml is TOML, anything else YAML.
func Load(cfg Config) (*Plan, error) {
	if cfg.File == "" {
		return nil, errors.New("plan file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	cfg.Log.Debug("Reading plan file", "path", cfg.File)
	data, err := os.ReadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	format := FormatYAML
	if strings.EqualFold(filepath.Ext(cfg.File), ".toml") {
		format = FormatTOML
	}

	p, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing plan file %s: %w", cfg.File, err)
	}
	cfg.Log.Debug("Plan loaded", "cycles", len(p.Cycles), "platforms", len(p.Platforms), "setupTypes", len(p.SetupTypes))
	return p, nil
}

// Parse decodes and validates a plan
func Parse(data []byte, format Format) (*Plan, error) {
	var p Plan
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &p); err != nil {
			return nil, fmt.Errorf("decoding toml: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decoding yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported plan format %q", format)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) validate() error {
	if len(p.Cycles) == 0 {
		return errors.New("plan defines no cycles")
	}
	var errs []error
	seenCycles := make(map[string]bool)
	for _, c := range p.Cycles {
		if c.Name == "" {
			errs = append(errs, errors.New("cycle with empty name"))
			continue
		}
		if seenCycles[c.Name] {
			errs = append(errs, fmt.Errorf("duplicate cycle %q", c.Name))
		}
		seenCycles[c.Name] = true
		if len(c.Tests) == 0 {
			errs = append(errs, fmt.Errorf("cycle %q has no tests", c.Name))
		}

		seenTests := make(map[string]bool)
		for i, t := range c.Tests {
			switch {
			case t.Name == "":
				errs = append(errs, fmt.Errorf("cycle %q: test at index %d has no name", c.Name, i))
			case seenTests[t.Name]:
				errs = append(errs, fmt.Errorf("cycle %q: duplicate test %q", c.Name, t.Name))
			case len(t.Command) == 0:
				errs = append(errs, fmt.Errorf("cycle %q: test %q has no command", c.Name, t.Name))
			case t.Priority < 0:
				errs = append(errs, fmt.Errorf("cycle %q: test %q has negative priority %d", c.Name, t.Name, t.Priority))
			case t.Iterations < 0:
				errs = append(errs, fmt.Errorf("cycle %q: test %q has negative iteration count %d", c.Name, t.Name, t.Iterations))
			}
			seenTests[t.Name] = true
		}
	}
	return errors.Join(errs...)
}

// Platform looks up a platform case-insensitively
func (p *Plan) Platform(name string) (PlatformConfig, bool) {
	if cfg, ok := p.Platforms[name]; ok {
		return cfg, true
	}
	for k, cfg := range p.Platforms {
		if strings.EqualFold(k, name) {
			return cfg, true
		}
	}
	return PlatformConfig{}, false
}

// ResolveOptions controls how a cycle is turned into test cases
type ResolveOptions struct {
	Cycle          string
	Platform       string
	Iterations     int           // used when a test does not set its own
	DefaultTimeout time.Duration // used when a test does not set its own
	JobID          string
}

// Resolve produces the cycle shell with fully resolved test cases. Every
// environment field is merged test > setup type > platform. A test whose
// setup type needs a base image that cannot be resolved yields a PlanError.
func (p *Plan) Resolve(opts ResolveOptions) (*types.TestCycle, error) {
	var cycleCfg *CycleConfig
	for i := range p.Cycles {
		if p.Cycles[i].Name == opts.Cycle {
			cycleCfg = &p.Cycles[i]
			break
		}
	}
	if cycleCfg == nil {
		return nil, fmt.Errorf("cycle %q not found in plan", opts.Cycle)
	}

	platform, ok := p.Platform(opts.Platform)
	if !ok {
		return nil, fmt.Errorf("platform %q not defined in plan", opts.Platform)
	}

	specs := make([]types.TestCaseSpec, 0, len(cycleCfg.Tests))
	for _, tc := range cycleCfg.Tests {
		env := tc.Environment
		if tc.SetupType != "" {
			setup, ok := p.SetupTypes[tc.SetupType]
			if !ok {
				return nil, &PlanError{Cycle: cycleCfg.Name, Test: tc.Name, Reason: fmt.Sprintf("unknown setup type %q", tc.SetupType)}
			}
			env = env.WithDefaults(setup.Environment)
			env = env.WithDefaults(platform.Environment)
			if setup.RequiresBaseImage && (env.BaseImage == nil || strings.TrimSpace(*env.BaseImage) == "") {
				return nil, &PlanError{Cycle: cycleCfg.Name, Test: tc.Name, Reason: fmt.Sprintf("no base image resolvable for setup type %q", tc.SetupType)}
			}
		} else {
			env = env.WithDefaults(platform.Environment)
		}

		iterations := tc.Iterations
		if iterations == 0 {
			iterations = opts.Iterations
		}
		if iterations < 1 {
			iterations = 1
		}

		timeout := opts.DefaultTimeout
		if tc.Timeout != nil {
			timeout = *tc.Timeout
		}

		specs = append(specs, types.TestCaseSpec{
			Name:         tc.Name,
			OriginalName: tc.Name,
			Platforms:    tc.Platforms,
			Priority:     tc.Priority,
			SetupType:    tc.SetupType,
			Env:          env,
			Iterations:   iterations,
			Command:      tc.Command,
			Timeout:      timeout,
			Params:       tc.Params,
		})
	}

	return types.NewTestCycle(cycleCfg.Name, opts.JobID, specs), nil
}

// ParsePriorityFilter parses a comma separated priority list such as
// "0,1,2". An empty string admits every priority.
func ParsePriorityFilter(s string) (*types.PriorityFilter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.NewPriorityFilter(), nil
	}
	var priorities []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := strconv.Atoi(field)
		if err != nil || p < 0 {
			return nil, fmt.Errorf("invalid priority %q in filter %q", field, s)
		}
		priorities = append(priorities, p)
	}
	return types.NewPriorityFilter(priorities...), nil
}
