package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/danieljhkim/service-harness/internal/config"
	"github.com/danieljhkim/service-harness/internal/env"
	"github.com/danieljhkim/service-harness/internal/health"
	"github.com/danieljhkim/service-harness/internal/service/python"
	"github.com/danieljhkim/service-harness/internal/util"
)

// Supervisor drives every service in the table through one code path:
// install, start (detached or exec'd in the foreground), stop, status.
type Supervisor struct {
	paths    *config.Paths
	table    *config.Table
	settings *config.Settings
	registry *Registry

	Launcher *python.Launcher
	Checker  *health.Checker

	// ExecFunc replaces the current process in Run; defaults to unix.Exec.
	ExecFunc func(argv0 string, argv []string, envv []string) error
}

// NewSupervisor loads the process registry and wires the default launcher.
func NewSupervisor(paths *config.Paths, table *config.Table, settings *config.Settings) *Supervisor {
	registry, err := LoadRegistry(paths.RegistryFile())
	if err != nil {
		util.Warn("%v; continuing with an empty registry", err)
	}

	return &Supervisor{
		paths:    paths,
		table:    table,
		settings: settings,
		registry: registry,
		Launcher: python.NewLauncher(settings.Python),
		Checker:  health.NewChecker(health.DefaultTimeout),
		ExecFunc: unix.Exec,
	}
}

// Table returns the service table.
func (s *Supervisor) Table() *config.Table {
	return s.table
}

// Registry returns the process registry.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// StartOptions control Start and StartAll.
type StartOptions struct {
	SkipInstall bool          // reuse the existing venv as-is
	Wait        bool          // block until GET /health succeeds
	WaitTimeout time.Duration // bound for Wait; 0 means 60s
}

// StartResult reports the outcome of starting one service.
type StartResult struct {
	Name           string
	Port           int
	PID            int
	AlreadyRunning bool
	LogFile        string
	Err            error
}

// StopOptions control Stop and StopAll.
type StopOptions struct {
	// Force kills every listener on the service port, not only ones whose
	// command line looks like the service.
	Force bool
}

// StopResult reports what Stop signaled.
type StopResult struct {
	Name         string
	PID          int   // process stopped via its PID file (0 if none)
	ListenerPIDs []int // processes killed by the port fallback
	Reused       bool  // the PID file named an unrelated process
}

// RunOptions control the foreground runner.
type RunOptions struct {
	SkipInstall bool
	Port        int // overrides the table port when > 0
}

// HealthOptions control health probes.
type HealthOptions struct {
	Port int // overrides the table port of a single named service when > 0
}

type launchPlan struct {
	spec   *config.ServiceSpec
	paths  *config.ServicePaths
	module string
	env    *env.Environment
	argv   []string
}

func (s *Supervisor) processManager(sp *config.ServicePaths) *ProcessManager {
	pm := NewProcessManager(sp.Dir, sp.Dir)
	pm.StartGrace = s.settings.StartGraceDuration()
	return pm
}

func (s *Supervisor) host(spec *config.ServiceSpec) string {
	if spec.Host != "" {
		return spec.Host
	}
	return s.settings.Host
}

// prepare resolves the entry module, installs dependencies and computes the
// runner command line and environment.
func (s *Supervisor) prepare(ctx context.Context, spec *config.ServiceSpec, skipInstall bool, port int, out io.Writer) (*launchPlan, error) {
	sp := s.paths.Service(spec)
	if !util.DirExists(sp.Dir) {
		return nil, fmt.Errorf("service %s: directory not found: %s", spec.Name, sp.Dir)
	}

	module, err := python.ResolveModule(sp.Dir, spec.Module)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w\n%s", spec.Name, err, python.EntryDiagnostics(sp.Dir))
	}

	if !skipInstall {
		if err := s.install(ctx, spec, sp, out); err != nil {
			return nil, err
		}
	} else if !util.FileExists(python.VenvPython(sp.VenvDir)) {
		return nil, fmt.Errorf("service %s: no virtual environment at %s (run: harness install %s)", spec.Name, sp.VenvDir, spec.Name)
	}

	environment, err := env.Compute(s.paths, s.settings, spec, env.Options{PortOverride: port})
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", spec.Name, err)
	}

	return &launchPlan{
		spec:   spec,
		paths:  sp,
		module: module,
		env:    environment,
		argv:   python.RunnerArgs(sp.VenvDir, module, environment.Host, environment.Port),
	}, nil
}

func (s *Supervisor) install(ctx context.Context, spec *config.ServiceSpec, sp *config.ServicePaths, out io.Writer) error {
	if _, err := s.Launcher.EnsureVenv(ctx, sp.VenvDir, out); err != nil {
		return fmt.Errorf("service %s: %w", spec.Name, err)
	}
	if err := s.Launcher.InstallRequirements(ctx, sp.VenvDir, sp.Requirements, out); err != nil {
		return fmt.Errorf("service %s: %w", spec.Name, err)
	}
	return nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Install creates the virtual environment and installs dependencies for
// one service. Installer output is appended to the service log.
func (s *Supervisor) Install(ctx context.Context, name string) error {
	spec, err := s.table.Lookup(name)
	if err != nil {
		return err
	}
	sp := s.paths.Service(spec)
	if !util.DirExists(sp.Dir) {
		return fmt.Errorf("service %s: directory not found: %s", spec.Name, sp.Dir)
	}

	logf, err := openLog(sp.LogFile)
	if err != nil {
		return err
	}
	defer logf.Close()

	if err := s.install(ctx, spec, sp, logf); err != nil {
		return fmt.Errorf("%w (installer output: %s)", err, sp.LogFile)
	}
	util.Success("%s: dependencies installed", spec.Name)
	return nil
}

// InstallAll installs every selected service concurrently and returns one
// error slot per service in table order.
func (s *Supervisor) InstallAll(ctx context.Context, name string) ([]string, []error, error) {
	specs, err := s.table.Select(name)
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, len(specs))
	errs := make([]error, len(specs))
	// failures land in errs; the group itself never fails
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		names[i] = spec.Name
		g.Go(func() error {
			errs[i] = s.Install(gctx, spec.Name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return names, errs, err
	}

	return names, errs, nil
}

// Start launches one service detached, recording its PID file and registry
// entry. A service that is already running is left alone.
func (s *Supervisor) Start(ctx context.Context, name string, opts StartOptions) (*StartResult, error) {
	spec, err := s.table.Lookup(name)
	if err != nil {
		return nil, err
	}

	sp := s.paths.Service(spec)
	pm := s.processManager(sp)
	host := s.host(spec)
	res := &StartResult{Name: spec.Name, Port: spec.Port, LogFile: sp.LogFile}

	if pid, _ := pm.Status(spec.Name); pid > 0 {
		if err := Verify(pid, s.registry.Get(spec.Name)); errors.Is(err, ErrPIDReused) {
			util.Warn("%s: %v; discarding stale PID file", spec.Name, err)
			_ = pm.RemovePID(spec.Name)
			s.forget(spec.Name)
		} else {
			util.Log("%s already running (pid %d).", spec.Name, pid)
			res.PID = pid
			res.AlreadyRunning = true
			return res, nil
		}
	}

	if !util.DirExists(sp.Dir) {
		return res, fmt.Errorf("service %s: directory not found: %s", spec.Name, sp.Dir)
	}
	if PortInUse(host, spec.Port) {
		return res, fmt.Errorf("service %s: port %d already in use (try: harness stop %s --force)", spec.Name, spec.Port, spec.Name)
	}

	logf, err := openLog(sp.LogFile)
	if err != nil {
		return res, err
	}
	plan, err := s.prepare(ctx, spec, opts.SkipInstall, 0, logf)
	logf.Close()
	if err != nil {
		return res, err
	}

	cmd := exec.Command(plan.argv[0], plan.argv[1:]...)
	cmd.Dir = sp.Dir
	cmd.Env = plan.env.MergeWithCurrent()

	rec, err := pm.Start(spec.Name, cmd, filepath.Base(sp.LogFile))
	if err != nil {
		return res, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}
	rec.Port = plan.env.Port
	if err := s.registry.Put(rec); err != nil {
		util.Warn("%s: %v", spec.Name, err)
	}
	res.PID = rec.PID
	util.Log("%s started (pid %d, port %d, %s:%s).", spec.Name, rec.PID, plan.env.Port, plan.module, python.AppObject)

	if opts.Wait {
		timeout := opts.WaitTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		wctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if _, err := s.Checker.WaitHealthy(wctx, health.BaseURL(host, plan.env.Port), 500*time.Millisecond); err != nil {
			return res, fmt.Errorf("service %s: %w (check logs: %s)", spec.Name, err, sp.LogFile)
		}
		util.Success("%s is healthy", spec.Name)
	}

	return res, nil
}

// StartAll starts the selected services concurrently. A failure of one
// service never prevents the others from starting; each result carries its
// own error. Results are in table order.
func (s *Supervisor) StartAll(ctx context.Context, name string, opts StartOptions) ([]*StartResult, error) {
	specs, err := s.table.Select(name)
	if err != nil {
		return nil, err
	}

	results := make([]*StartResult, len(specs))
	// per-service errors ride on the results; the group itself never fails
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			res, err := s.Start(gctx, spec.Name, opts)
			if res == nil {
				res = &StartResult{Name: spec.Name, Port: spec.Port}
			}
			res.Err = err
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Stop terminates one service: first via its PID file (after checking the
// PID still belongs to the process the harness started), then by killing
// whatever still listens on the service port. Finding nothing to stop is a
// warning, not an error.
func (s *Supervisor) Stop(ctx context.Context, name string, opts StopOptions) (*StopResult, error) {
	spec, err := s.table.Lookup(name)
	if err != nil {
		return nil, err
	}

	sp := s.paths.Service(spec)
	pm := s.processManager(sp)
	timeout := s.settings.StopTimeoutDuration()
	res := &StopResult{Name: spec.Name}

	pid, err := pm.ReadPID(spec.Name)
	if err != nil {
		util.Warn("%s: %v; removing it", spec.Name, err)
		_ = pm.RemovePID(spec.Name)
	}

	switch {
	case pid > 0 && IsProcessRunning(pid):
		if err := Verify(pid, s.registry.Get(spec.Name)); errors.Is(err, ErrPIDReused) {
			util.Warn("%s: %v; not signaling it", spec.Name, err)
			res.Reused = true
			_ = pm.RemovePID(spec.Name)
			break
		}
		signaled, err := pm.Stop(spec.Name, timeout)
		if err != nil {
			return res, fmt.Errorf("failed to stop %s: %w", spec.Name, err)
		}
		res.PID = signaled
		util.Log("Stopped %s (pid %d).", spec.Name, signaled)
	case pid > 0:
		util.Log("%s: removing stale PID file (pid %d not running).", spec.Name, pid)
		_ = pm.RemovePID(spec.Name)
	}
	s.forget(spec.Name)

	if opts.Force || PortInUse(s.host(spec), spec.Port) {
		var match CommandMatcher
		if !opts.Force {
			match = MatchAny(sp.Dir, "uvicorn")
		}
		killed, err := KillListeners(ctx, spec.Port, match, timeout)
		switch {
		case errors.Is(err, ErrLsofMissing):
			util.Warn("lsof not found; cannot force-kill listeners on port %d.", spec.Port)
		case err != nil:
			util.Warn("%s: %v", spec.Name, err)
		}
		res.ListenerPIDs = killed
	}

	if res.PID == 0 && len(res.ListenerPIDs) == 0 && !res.Reused {
		util.Warn("%s: no running process found.", spec.Name)
	}
	return res, nil
}

// StopAll stops the selected services in reverse table order, continuing
// past failures.
func (s *Supervisor) StopAll(ctx context.Context, name string, opts StopOptions) ([]*StopResult, error) {
	specs, err := s.table.Select(name)
	if err != nil {
		return nil, err
	}

	var errs []error
	results := make([]*StopResult, 0, len(specs))
	for i := len(specs) - 1; i >= 0; i-- {
		res, err := s.Stop(ctx, specs[i].Name, opts)
		if err != nil {
			errs = append(errs, err)
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results, errors.Join(errs...)
}

// Restart stops then starts one service.
func (s *Supervisor) Restart(ctx context.Context, name string, stop StopOptions, start StartOptions) (*StartResult, error) {
	if _, err := s.Stop(ctx, name, stop); err != nil {
		return nil, err
	}
	return s.Start(ctx, name, start)
}

// Status reports the selected services.
func (s *Supervisor) Status(ctx context.Context, name string) ([]ServiceStatus, error) {
	specs, err := s.table.Select(name)
	if err != nil {
		return nil, err
	}

	statuses := make([]ServiceStatus, 0, len(specs))
	for _, spec := range specs {
		sp := s.paths.Service(spec)
		pm := s.processManager(sp)
		st := ServiceStatus{Name: spec.Name, Port: spec.Port, LogFile: sp.LogFile}

		if pid, err := pm.Status(spec.Name); err == nil && pid > 0 {
			if Verify(pid, s.registry.Get(spec.Name)) == nil {
				st.Running = true
				st.PID = pid
			}
		}
		st.Listening = PortInUse(s.host(spec), spec.Port)

		statuses = append(statuses, st)
	}
	return statuses, nil
}

// Logs writes the last lines of each selected service log to w.
func (s *Supervisor) Logs(name string, lines int, w io.Writer) error {
	specs, err := s.table.Select(name)
	if err != nil {
		return err
	}

	for _, spec := range specs {
		logFile := s.paths.Service(spec).LogFile
		fmt.Fprintf(w, "==> %s\n", logFile)
		tail, err := util.TailLines(logFile, lines)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintln(w, "(missing)")
			} else {
				fmt.Fprintf(w, "(unreadable: %v)\n", err)
			}
			fmt.Fprintln(w)
			continue
		}
		for _, line := range tail {
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// Health probes GET /health on the selected services. A port override only
// applies when one service is named, matching how run binds PORT.
func (s *Supervisor) Health(ctx context.Context, name string, opts HealthOptions) ([]*health.Result, error) {
	specs, err := s.table.Select(name)
	if err != nil {
		return nil, err
	}

	targets := make([]health.Target, 0, len(specs))
	for _, spec := range specs {
		port := spec.Port
		if name != "" && opts.Port > 0 {
			port = opts.Port
		}
		targets = append(targets, health.Target{Name: spec.Name, BaseURL: health.BaseURL(s.host(spec), port)})
	}
	return s.Checker.CheckAll(ctx, targets), nil
}

// Run prepares a service and replaces the current process with its runner
// (container mode). It only returns on failure.
func (s *Supervisor) Run(ctx context.Context, name string, opts RunOptions) error {
	spec, err := s.table.Lookup(name)
	if err != nil {
		return err
	}

	plan, err := s.prepare(ctx, spec, opts.SkipInstall, opts.Port, os.Stdout)
	if err != nil {
		return err
	}

	if err := os.Chdir(plan.paths.Dir); err != nil {
		return fmt.Errorf("service %s: %w", spec.Name, err)
	}

	util.Log("Running %s on %s:%d (%s:%s)", spec.Name, plan.env.Host, plan.env.Port, plan.module, python.AppObject)
	if err := s.ExecFunc(plan.argv[0], plan.argv, plan.env.MergeWithCurrent()); err != nil {
		return fmt.Errorf("failed to exec %s: %w", plan.argv[0], err)
	}
	return nil
}

func (s *Supervisor) forget(name string) {
	if err := s.registry.Delete(name); err != nil {
		util.Warn("%s: %v", name, err)
	}
}
