package env

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/danieljhkim/service-harness/internal/config"
	"github.com/danieljhkim/service-harness/internal/service/python"
	"github.com/danieljhkim/service-harness/internal/util"
)

// DoctorCheck represents a single dependency or layout check
type DoctorCheck struct {
	Name     string // Command or check label
	Required bool   // true if required, false if optional
	Found    bool   // true if the check passed
	Detail   string // Extra context shown next to the check
}

// DoctorResult holds the results of all checks
type DoctorResult struct {
	Target        string // "" for every service, otherwise one service name
	Checks        []DoctorCheck
	PythonMajor   int
	PythonMinor   int
	HasFailures   bool
	pythonCommand string
}

// RunDoctor checks tooling and the layout of the targeted services.
// Required: the configured python and, per service, its directory,
// dependency manifest and entry module. Optional: lsof (port fallback on
// stop) and curl.
func RunDoctor(paths *config.Paths, table *config.Table, settings *config.Settings, target string) (*DoctorResult, error) {
	specs, err := table.Select(target)
	if err != nil {
		return nil, err
	}

	result := &DoctorResult{Target: target, pythonCommand: settings.Python}

	detector := NewToolDetector()
	result.add(DoctorCheck{Name: settings.Python, Required: true, Found: detector.IsInstalled(settings.Python)})

	py := NewPythonDetector(settings.Python)
	if py.IsInstalled() {
		result.PythonMajor, result.PythonMinor = py.Version()
	}

	for _, tool := range []string{"lsof", "curl"} {
		result.add(DoctorCheck{Name: tool, Required: false, Found: detector.IsInstalled(tool)})
	}

	for _, spec := range specs {
		for _, c := range layoutChecks(paths, spec) {
			result.add(c)
		}
	}

	return result, nil
}

func layoutChecks(paths *config.Paths, spec *config.ServiceSpec) []DoctorCheck {
	sp := paths.Service(spec)
	label := func(what string) string { return spec.Name + ": " + what }

	checks := []DoctorCheck{{
		Name:     label("directory"),
		Required: true,
		Found:    util.DirExists(sp.Dir),
		Detail:   sp.Dir,
	}}

	checks = append(checks, DoctorCheck{
		Name:     label(filepath.Base(sp.Requirements)),
		Required: true,
		Found:    util.IsRegularFile(sp.Requirements),
		Detail:   sp.Requirements,
	})

	module, err := python.ResolveModule(sp.Dir, spec.Module)
	entry := DoctorCheck{Name: label("entry module"), Required: true, Found: err == nil}
	if err == nil {
		entry.Detail = module + ":" + python.AppObject
	} else {
		entry.Detail = "need app.py or main.py"
	}
	checks = append(checks, entry)

	checks = append(checks, DoctorCheck{
		Name:     label("virtualenv"),
		Required: false,
		Found:    util.FileExists(python.VenvPython(sp.VenvDir)),
		Detail:   sp.VenvDir,
	})

	return checks
}

func (dr *DoctorResult) add(c DoctorCheck) {
	dr.Checks = append(dr.Checks, c)
	if c.Required && !c.Found {
		dr.HasFailures = true
	}
}

// Print writes the doctor report.
func (dr *DoctorResult) Print(w io.Writer) {
	targetStr := "all services"
	if dr.Target != "" {
		targetStr = dr.Target
	}

	util.Log("Doctor (%s):", targetStr)

	for _, check := range dr.Checks {
		status := "OK  "
		msg := check.Name

		if !check.Found {
			if check.Required {
				status = "FAIL"
				msg = fmt.Sprintf("%s (required)", check.Name)
			} else {
				status = "WARN"
				msg = fmt.Sprintf("%s (optional)", check.Name)
			}
		}
		if check.Detail != "" {
			msg = fmt.Sprintf("%s  [%s]", msg, check.Detail)
		}

		fmt.Fprintf(w, "  %s %s\n", status, msg)
	}

	if dr.PythonMajor != 0 && (dr.PythonMajor < 3 || (dr.PythonMajor == 3 && dr.PythonMinor < 8)) {
		fmt.Fprintf(w, "  WARN %s is %d.%d (need 3.8+ for uvicorn)\n", dr.pythonCommand, dr.PythonMajor, dr.PythonMinor)
	}
}

// ExitCode returns 0 if all required checks passed, 1 otherwise.
func (dr *DoctorResult) ExitCode() int {
	if dr.HasFailures {
		return 1
	}
	return 0
}
