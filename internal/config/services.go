package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultService is run when SERVICE is unset.
	DefaultService = "suggestion"
	// DefaultRequirements is the dependency manifest inside each service dir.
	DefaultRequirements = "requirements.txt"
	// DefaultEnvFile holds key=value pairs exported into every service.
	DefaultEnvFile = "config.env"
)

// ErrUnknownService is returned when a name is not in the service table.
var ErrUnknownService = errors.New("unknown service")

// ServiceSpec describes one launchable service.
type ServiceSpec struct {
	Name         string `yaml:"-"`
	Dir          string `yaml:"dir,omitempty"`          // relative to the repo root; defaults to Name
	Port         int    `yaml:"port,omitempty"`         // fixed listen port
	Requirements string `yaml:"requirements,omitempty"` // relative to Dir; defaults to requirements.txt
	Module       string `yaml:"module,omitempty"`       // entry module; empty = detect app.py / main.py
	Host         string `yaml:"host,omitempty"`         // bind address; empty = settings host
}

// DefaultServices returns the built-in table: suggestion, related and
// multiagent on 8000, 8001 and 8002.
func DefaultServices() []*ServiceSpec {
	return []*ServiceSpec{
		{Name: "suggestion", Dir: "suggestion", Port: 8000, Requirements: DefaultRequirements},
		{Name: "related", Dir: "related", Port: 8001, Requirements: DefaultRequirements},
		{Name: "multiagent", Dir: "multiagent", Port: 8002, Requirements: DefaultRequirements},
	}
}

// Table is the ordered set of services the supervisor manages.
type Table struct {
	services []*ServiceSpec
	byName   map[string]*ServiceSpec
}

// NewTable builds a table from specs, validating names and ports.
func NewTable(specs []*ServiceSpec) (*Table, error) {
	t := &Table{byName: make(map[string]*ServiceSpec, len(specs))}
	ports := make(map[int]string, len(specs))

	for _, spec := range specs {
		if spec == nil {
			continue
		}
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("service with empty name")
		}
		if _, dup := t.byName[name]; dup {
			return nil, fmt.Errorf("duplicate service %q", name)
		}
		if spec.Port < 1 || spec.Port > 65535 {
			return nil, fmt.Errorf("service %s: invalid port %d", name, spec.Port)
		}
		if other, taken := ports[spec.Port]; taken {
			return nil, fmt.Errorf("service %s: port %d already assigned to %s", name, spec.Port, other)
		}
		ports[spec.Port] = name

		cp := *spec
		cp.Name = name
		if cp.Dir == "" {
			cp.Dir = name
		}
		if cp.Requirements == "" {
			cp.Requirements = DefaultRequirements
		}
		t.services = append(t.services, &cp)
		t.byName[name] = &cp
	}

	return t, nil
}

// DefaultTable returns the built-in three-service table.
func DefaultTable() *Table {
	t, err := NewTable(DefaultServices())
	if err != nil {
		panic(err)
	}
	return t
}

// tableFile is the on-disk shape of services.yaml.
type tableFile struct {
	Services map[string]*ServiceSpec `yaml:"services"`
}

// LoadTable returns the default table overlaid with services.yaml if present.
// Entries for built-in names override only the fields they set; other names
// are appended as extra services in sorted order.
func LoadTable(paths *Paths) (*Table, error) {
	specs := DefaultServices()

	data, err := os.ReadFile(paths.ServicesFile())
	if err != nil {
		if os.IsNotExist(err) {
			return NewTable(specs)
		}
		return nil, fmt.Errorf("failed to read service table: %w", err)
	}

	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", paths.ServicesFile(), err)
	}

	byName := make(map[string]*ServiceSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	extra := make([]string, 0)
	for name, override := range file.Services {
		if override == nil {
			continue
		}
		if base, ok := byName[name]; ok {
			mergeSpec(base, override)
			continue
		}
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		spec := *file.Services[name]
		spec.Name = name
		specs = append(specs, &spec)
	}

	t, err := NewTable(specs)
	if err != nil {
		return nil, fmt.Errorf("invalid service table %s: %w", paths.ServicesFile(), err)
	}
	return t, nil
}

func mergeSpec(base, override *ServiceSpec) {
	if override.Dir != "" {
		base.Dir = override.Dir
	}
	if override.Port != 0 {
		base.Port = override.Port
	}
	if override.Requirements != "" {
		base.Requirements = override.Requirements
	}
	if override.Module != "" {
		base.Module = override.Module
	}
	if override.Host != "" {
		base.Host = override.Host
	}
}

// Lookup returns the spec for name.
func (t *Table) Lookup(name string) (*ServiceSpec, error) {
	spec, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (valid: %s)", ErrUnknownService, name, strings.Join(t.Names(), ", "))
	}
	return spec, nil
}

// Names returns service names in table order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.services))
	for _, s := range t.services {
		names = append(names, s.Name)
	}
	return names
}

// Services returns specs in table order.
func (t *Table) Services() []*ServiceSpec {
	return append([]*ServiceSpec(nil), t.services...)
}

// Select returns every service when name is empty, otherwise just the named one.
func (t *Table) Select(name string) ([]*ServiceSpec, error) {
	if name == "" {
		return t.Services(), nil
	}
	spec, err := t.Lookup(name)
	if err != nil {
		return nil, err
	}
	return []*ServiceSpec{spec}, nil
}

// ResolveServiceName returns the SERVICE selector, defaulting to suggestion.
func ResolveServiceName(getenv func(string) string) string {
	if name := strings.TrimSpace(getenv("SERVICE")); name != "" {
		return name
	}
	return DefaultService
}
