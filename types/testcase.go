package types

import (
	"slices"
	"strings"
	"time"
)

// Environment describes the target a test case needs. Every field is
// optional: nil means "not specified", which is distinct from an empty
// string. Platform defaults are merged in by the plan loader, so the
// scheduler never has to look at raw configuration again.
type Environment struct {
	Networking         *string `yaml:"networking,omitempty" toml:"networking,omitempty"`
	DiskType           *string `yaml:"diskType,omitempty" toml:"diskType,omitempty"`
	OSDiskType         *string `yaml:"osDiskType,omitempty" toml:"osDiskType,omitempty"`
	ImageType          *string `yaml:"imageType,omitempty" toml:"imageType,omitempty"`
	OSType             *string `yaml:"osType,omitempty" toml:"osType,omitempty"`
	VMGeneration       *string `yaml:"vmGeneration,omitempty" toml:"vmGeneration,omitempty"`
	OverrideSize       *string `yaml:"overrideSize,omitempty" toml:"overrideSize,omitempty"`
	Location           *string `yaml:"location,omitempty" toml:"location,omitempty"`
	StorageAccountType *string `yaml:"storageAccountType,omitempty" toml:"storageAccountType,omitempty"`
	BaseImage          *string `yaml:"baseImage,omitempty" toml:"baseImage,omitempty"`
}

// WithDefaults returns a copy of e where every unspecified field is taken
// from defaults.
func (e Environment) WithDefaults(defaults Environment) Environment {
	merged := e
	fill := func(dst **string, src *string) {
		if *dst == nil && src != nil {
			v := *src
			*dst = &v
		}
	}
	fill(&merged.Networking, defaults.Networking)
	fill(&merged.DiskType, defaults.DiskType)
	fill(&merged.OSDiskType, defaults.OSDiskType)
	fill(&merged.ImageType, defaults.ImageType)
	fill(&merged.OSType, defaults.OSType)
	fill(&merged.VMGeneration, defaults.VMGeneration)
	fill(&merged.OverrideSize, defaults.OverrideSize)
	fill(&merged.Location, defaults.Location)
	fill(&merged.StorageAccountType, defaults.StorageAccountType)
	fill(&merged.BaseImage, defaults.BaseImage)
	return merged
}

// Vars flattens the specified fields into CYCLER_* environment variables
// for deploy and test commands.
func (e Environment) Vars() []string {
	var vars []string
	add := func(name string, v *string) {
		if v != nil {
			vars = append(vars, "CYCLER_"+name+"="+*v)
		}
	}
	add("NETWORKING", e.Networking)
	add("DISK_TYPE", e.DiskType)
	add("OS_DISK_TYPE", e.OSDiskType)
	add("IMAGE_TYPE", e.ImageType)
	add("OS_TYPE", e.OSType)
	add("VM_GENERATION", e.VMGeneration)
	add("OVERRIDE_SIZE", e.OverrideSize)
	add("LOCATION", e.Location)
	add("STORAGE_ACCOUNT_TYPE", e.StorageAccountType)
	add("BASE_IMAGE", e.BaseImage)
	return vars
}

// Ptr returns a pointer to s. Handy for building Environment literals.
func Ptr(s string) *string {
	return &s
}

// TestCaseSpec is a fully resolved test case. It is immutable once the plan
// loader has produced it.
type TestCaseSpec struct {
	Name         string            `yaml:"name"`
	OriginalName string            `yaml:"originalName"` // name before iteration suffixing
	Platforms    []string          `yaml:"platforms,omitempty"`
	Priority     int               `yaml:"priority"`
	SetupType    string            `yaml:"setupType,omitempty"`
	Env          Environment       `yaml:"environment"`
	Iterations   int               `yaml:"iterations"`
	Command      []string          `yaml:"command,flow"`
	Timeout      time.Duration     `yaml:"timeout"`
	Params       map[string]string `yaml:"params,omitempty"`
}

// SupportsPlatform reports whether the test may run on platform. Matching
// is case-insensitive; an empty platform set supports every platform.
func (t TestCaseSpec) SupportsPlatform(platform string) bool {
	if len(t.Platforms) == 0 {
		return true
	}
	return slices.ContainsFunc(t.Platforms, func(p string) bool {
		return strings.EqualFold(p, platform)
	})
}

// IterationCount returns the number of sub-invocations the test expands
// into. Anything below one counts as one.
func (t TestCaseSpec) IterationCount() int {
	if t.Iterations < 1 {
		return 1
	}
	return t.Iterations
}

// PriorityFilter selects the priorities that may run. The zero value (or a
// nil filter) admits every priority.
type PriorityFilter struct {
	allowed map[int]struct{}
}

// NewPriorityFilter creates a filter admitting only the given priorities.
// With no arguments the filter admits everything.
func NewPriorityFilter(priorities ...int) *PriorityFilter {
	if len(priorities) == 0 {
		return &PriorityFilter{}
	}
	f := &PriorityFilter{allowed: make(map[int]struct{}, len(priorities))}
	for _, p := range priorities {
		f.allowed[p] = struct{}{}
	}
	return f
}

// Allows reports whether priority passes the filter
func (f *PriorityFilter) Allows(priority int) bool {
	if f == nil || len(f.allowed) == 0 {
		return true
	}
	_, ok := f.allowed[priority]
	return ok
}

// Priorities returns the admitted priorities in ascending order, or nil for
// an unrestricted filter.
func (f *PriorityFilter) Priorities() []int {
	if f == nil || len(f.allowed) == 0 {
		return nil
	}
	out := make([]int, 0, len(f.allowed))
	for p := range f.allowed {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
