package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultTable_Ports(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name string
		port int
	}{
		{"suggestion", 8000},
		{"related", 8001},
		{"multiagent", 8002},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := table.Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup(%q) error = %v", tt.name, err)
			}
			if spec.Port != tt.port {
				t.Errorf("Lookup(%q).Port = %d, want %d", tt.name, spec.Port, tt.port)
			}
			if spec.Requirements != "requirements.txt" {
				t.Errorf("Requirements = %q", spec.Requirements)
			}
		})
	}

	want := []string{"suggestion", "related", "multiagent"}
	if got := table.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestTable_LookupUnknown(t *testing.T) {
	_, err := DefaultTable().Lookup("bogus")
	if err == nil {
		t.Fatal("Lookup(bogus) should fail")
	}
	if !errors.Is(err, ErrUnknownService) {
		t.Errorf("error should wrap ErrUnknownService: %v", err)
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Errorf("error should name the service: %v", err)
	}
}

func TestTable_Select(t *testing.T) {
	table := DefaultTable()

	all, err := table.Select("")
	if err != nil || len(all) != 3 {
		t.Fatalf("Select(\"\") = %d specs, err %v", len(all), err)
	}

	one, err := table.Select("multiagent")
	if err != nil || len(one) != 1 || one[0].Port != 8002 {
		t.Fatalf("Select(multiagent) = %+v, err %v", one, err)
	}

	if _, err := table.Select("nope"); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Select(nope) error = %v", err)
	}
}

func TestNewTable_Validation(t *testing.T) {
	tests := []struct {
		name  string
		specs []*ServiceSpec
		want  string
	}{
		{
			name:  "duplicate port",
			specs: []*ServiceSpec{{Name: "a", Port: 8000}, {Name: "b", Port: 8000}},
			want:  "already assigned",
		},
		{
			name:  "invalid port",
			specs: []*ServiceSpec{{Name: "a", Port: 70000}},
			want:  "invalid port",
		},
		{
			name:  "duplicate name",
			specs: []*ServiceSpec{{Name: "a", Port: 1}, {Name: "a", Port: 2}},
			want:  "duplicate service",
		},
		{
			name:  "empty name",
			specs: []*ServiceSpec{{Name: " ", Port: 1}},
			want:  "empty name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.specs)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NewTable() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadTable_NoFile(t *testing.T) {
	paths := NewPaths(t.TempDir(), t.TempDir())

	table, err := LoadTable(paths)
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if len(table.Names()) != 3 {
		t.Errorf("Names() = %v", table.Names())
	}
}

func TestLoadTable_Overrides(t *testing.T) {
	root := t.TempDir()
	paths := NewPaths(root, t.TempDir())

	yml := `services:
  related:
    port: 9001
    module: main
  search:
    dir: services/search
    port: 9100
  audit:
    port: 9200
`
	if err := os.WriteFile(filepath.Join(root, "services.yaml"), []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(paths)
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}

	want := []string{"suggestion", "related", "multiagent", "audit", "search"}
	if got := table.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	related, _ := table.Lookup("related")
	if related.Port != 9001 || related.Module != "main" || related.Dir != "related" {
		t.Errorf("related = %+v", related)
	}

	search, _ := table.Lookup("search")
	if search.Dir != "services/search" || search.Requirements != "requirements.txt" {
		t.Errorf("search = %+v", search)
	}
}

func TestLoadTable_PortConflict(t *testing.T) {
	root := t.TempDir()
	paths := NewPaths(root, t.TempDir())

	yml := "services:\n  related:\n    port: 8000\n"
	if err := os.WriteFile(filepath.Join(root, "services.yaml"), []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTable(paths); err == nil {
		t.Fatal("LoadTable() should reject two services on port 8000")
	}
}

func TestLoadTable_InvalidYAML(t *testing.T) {
	root := t.TempDir()
	paths := NewPaths(root, t.TempDir())

	if err := os.WriteFile(filepath.Join(root, "services.yaml"), []byte("services: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTable(paths); err == nil {
		t.Fatal("LoadTable() expected parse error")
	}
}

func TestResolveServiceName(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unset defaults to suggestion", map[string]string{}, "suggestion"},
		{"blank defaults to suggestion", map[string]string{"SERVICE": "  "}, "suggestion"},
		{"explicit related", map[string]string{"SERVICE": "related"}, "related"},
		{"unknown passes through", map[string]string{"SERVICE": "bogus"}, "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			if got := ResolveServiceName(getenv); got != tt.want {
				t.Errorf("ResolveServiceName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	paths := NewPaths(root, t.TempDir())
	if err := os.WriteFile(paths.ServicesFile(), []byte("services:\n  related:\n    port: 9001\n"), 0644); err != nil {
		t.Fatal(err)
	}

	table, settings, err := Load(paths)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	spec, _ := table.Lookup("related")
	if spec.Port != 9001 {
		t.Errorf("related port = %d, want 9001", spec.Port)
	}
	if settings.Host != "0.0.0.0" || settings.BaseDir != paths.BaseDir {
		t.Errorf("settings = %+v, want defaults", settings)
	}

	if err := os.WriteFile(paths.ServicesFile(), []byte("services: [oops"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(paths); err == nil {
		t.Error("Load() should fail on a malformed services.yaml")
	}
}
