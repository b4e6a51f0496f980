package config

import (
	"os"
	"os/user"
	"path/filepath"
)

// Environment variables that relocate the harness.
const (
	EnvRoot = "HARNESS_ROOT" // directory holding the service directories
	EnvHome = "HARNESS_HOME" // supervisor state and settings
)

// Paths holds the standard locations used by the harness.
//
// RepoRoot holds one directory per service (suggestion/, related/, ...), the
// optional services.yaml table and config.env. BaseDir holds state owned by
// the supervisor itself.
type Paths struct {
	RepoRoot string
	BaseDir  string
}

// NewPaths creates a new Paths instance. An empty baseDir uses DefaultBaseDir.
func NewPaths(repoRoot, baseDir string) *Paths {
	if baseDir == "" {
		baseDir = DefaultBaseDir()
	}
	return &Paths{
		RepoRoot: repoRoot,
		BaseDir:  baseDir,
	}
}

// DefaultBaseDir returns $HARNESS_HOME, or $HOME/.harness.
func DefaultBaseDir() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}

	home := os.Getenv("HOME")
	if home == "" {
		if currentUser, err := user.Current(); err == nil {
			home = currentUser.HomeDir
		}
	}

	return filepath.Join(home, ".harness")
}

// StateDir returns $BASE_DIR/state
func (p *Paths) StateDir() string {
	return filepath.Join(p.BaseDir, "state")
}

// RegistryFile returns the crash-recovery snapshot of the process registry.
func (p *Paths) RegistryFile() string {
	return filepath.Join(p.StateDir(), "registry.json")
}

// SettingsDir returns $BASE_DIR/settings
func (p *Paths) SettingsDir() string {
	return filepath.Join(p.BaseDir, "settings")
}

// SettingsFile returns $BASE_DIR/settings/setting.json
func (p *Paths) SettingsFile() string {
	return filepath.Join(p.SettingsDir(), "setting.json")
}

// ServicesFile returns the optional service table override: $REPO_ROOT/services.yaml
func (p *Paths) ServicesFile() string {
	return filepath.Join(p.RepoRoot, "services.yaml")
}

// EnvFile resolves the key=value file exported into every service.
// Relative names are taken from RepoRoot.
func (p *Paths) EnvFile(name string) string {
	if name == "" {
		name = DefaultEnvFile
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.RepoRoot, name)
}

// ServiceDir returns the directory holding a service's code. Relative dirs
// from the service table are taken from RepoRoot.
func (p *Paths) ServiceDir(spec *ServiceSpec) string {
	dir := spec.Dir
	if dir == "" {
		dir = spec.Name
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.RepoRoot, dir)
}

// ServicePaths holds the per-service file locations.
type ServicePaths struct {
	Dir          string // Service directory
	VenvDir      string // Virtual environment
	Requirements string // Dependency manifest
	PidFile      string // <dir>/<name>.pid
	LogFile      string // <dir>/<name>.log
}

// Service returns the file locations for one service.
func (p *Paths) Service(spec *ServiceSpec) *ServicePaths {
	dir := p.ServiceDir(spec)
	req := spec.Requirements
	if req == "" {
		req = DefaultRequirements
	}
	if !filepath.IsAbs(req) {
		req = filepath.Join(dir, req)
	}
	return &ServicePaths{
		Dir:          dir,
		VenvDir:      filepath.Join(dir, "venv"),
		Requirements: req,
		PidFile:      filepath.Join(dir, spec.Name+".pid"),
		LogFile:      filepath.Join(dir, spec.Name+".log"),
	}
}

// DiscoverRepoRoot finds the directory holding the service directories.
// Order: $HARNESS_ROOT, the working directory, the executable's directory and
// its parent. A candidate qualifies when it contains services.yaml or a
// directory for one of the default services.
func DiscoverRepoRoot() string {
	if root := os.Getenv(EnvRoot); root != "" {
		return root
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates, exeDir, filepath.Dir(exeDir))
	}

	for _, dir := range candidates {
		if looksLikeRepoRoot(dir) {
			return dir
		}
	}

	if len(candidates) > 0 {
		return candidates[0]
	}
	return "."
}

func looksLikeRepoRoot(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "services.yaml")); err == nil {
		return true
	}
	for _, spec := range DefaultServices() {
		if info, err := os.Stat(filepath.Join(dir, spec.Name)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}
