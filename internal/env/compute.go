package env

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/danieljhkim/service-harness/internal/config"
	"github.com/danieljhkim/service-harness/internal/service/python"
	"github.com/danieljhkim/service-harness/internal/util"
)

// Environment holds the variables a service process is launched with.
type Environment struct {
	Service string
	Host    string
	Port    int
	Dir     string
	VenvDir string
	Path    string

	EnvFile  string            // resolved config.env path (may not exist)
	FileVars map[string]string // entries loaded from EnvFile
}

// Options tweak Compute.
type Options struct {
	// PortOverride replaces the table port when > 0 (foreground runs honor PORT).
	PortOverride int
}

// Compute builds the environment for one service: entries from the env
// file, then the harness-managed SERVICE, HOST, PORT, VIRTUAL_ENV and PATH
// (venv bin first).
func Compute(paths *config.Paths, settings *config.Settings, spec *config.ServiceSpec, opts Options) (*Environment, error) {
	sp := paths.Service(spec)

	envFile := paths.EnvFile(settings.EnvFile)
	vars, err := config.LoadEnvFile(envFile)
	if err != nil {
		return nil, err
	}

	host := spec.Host
	if host == "" {
		host = settings.Host
	}
	port := spec.Port
	if opts.PortOverride > 0 {
		port = opts.PortOverride
	}

	existingPath := os.Getenv("PATH")
	if p, ok := vars["PATH"]; ok {
		existingPath = p
	}

	return &Environment{
		Service:  spec.Name,
		Host:     host,
		Port:     port,
		Dir:      sp.Dir,
		VenvDir:  sp.VenvDir,
		Path:     util.DeduplicatePath([]string{python.VenvBin(sp.VenvDir)}, existingPath),
		EnvFile:  envFile,
		FileVars: vars,
	}, nil
}

// ParsePort validates a PORT value.
func ParsePort(value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid PORT %q: must be a number between 1 and 65535", value)
	}
	return port, nil
}

// Overrides returns every variable the harness sets, env-file entries first
// so managed values win on conflict.
func (e *Environment) Overrides() map[string]string {
	vars := make(map[string]string, len(e.FileVars)+5)
	for k, v := range e.FileVars {
		vars[k] = v
	}
	vars["SERVICE"] = e.Service
	vars["HOST"] = e.Host
	vars["PORT"] = strconv.Itoa(e.Port)
	vars["VIRTUAL_ENV"] = e.VenvDir
	vars["PATH"] = e.Path
	return vars
}

// Export returns the harness-set variables as sorted KEY=VALUE pairs.
func (e *Environment) Export() []string {
	vars := e.Overrides()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	exports := make([]string, 0, len(keys))
	for _, k := range keys {
		exports = append(exports, k+"="+vars[k])
	}
	return exports
}

// MergeWithCurrent returns the current process environment overlaid with
// the harness-set variables, suitable for exec.Cmd.Env.
func (e *Environment) MergeWithCurrent() []string {
	return util.MergeEnv(os.Environ(), e.Overrides())
}

// PrintShell writes export statements that can be eval'd by a shell.
func (e *Environment) PrintShell(w io.Writer) {
	for _, kv := range e.Export() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				fmt.Fprintf(w, "export %s=%s\n", kv[:i], util.ShellEscape(kv[i+1:]))
				break
			}
		}
	}
}
