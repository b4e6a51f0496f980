package env

import (
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ToolDetector checks for commands on PATH.
type ToolDetector struct{}

// NewToolDetector creates a new tool detector
func NewToolDetector() *ToolDetector {
	return &ToolDetector{}
}

// IsInstalled reports whether command resolves on PATH.
func (t *ToolDetector) IsInstalled(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// PythonDetector inspects a Python interpreter.
type PythonDetector struct {
	Python string
}

// NewPythonDetector creates a detector for the given interpreter.
func NewPythonDetector(python string) *PythonDetector {
	return &PythonDetector{Python: python}
}

// IsInstalled reports whether the interpreter resolves on PATH.
func (p *PythonDetector) IsInstalled() bool {
	_, err := exec.LookPath(p.Python)
	return err == nil
}

var pythonVersionRe = regexp.MustCompile(`Python (\d+)\.(\d+)`)

// Version returns the interpreter's major and minor version, or 0, 0 when
// it cannot be determined.
func (p *PythonDetector) Version() (int, int) {
	// python < 3.4 prints the version on stderr
	output, err := exec.Command(p.Python, "--version").CombinedOutput()
	if err != nil {
		return 0, 0
	}
	return ParsePythonVersion(string(output))
}

// ParsePythonVersion extracts major.minor from `python --version` output.
func ParsePythonVersion(output string) (int, int) {
	m := pythonVersionRe.FindStringSubmatch(strings.TrimSpace(output))
	if m == nil {
		return 0, 0
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return major, minor
}
