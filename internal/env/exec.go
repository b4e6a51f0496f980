package env

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/service-harness/internal/config"
)

// Exec runs args inside spec's environment with stdio attached and the
// service directory as working directory.
func Exec(paths *config.Paths, settings *config.Settings, spec *config.ServiceSpec, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: harness env exec <service> -- <cmd...>")
	}

	environment, err := Compute(paths, settings, spec, Options{})
	if err != nil {
		return err
	}

	// resolve against the service PATH so venv tools win
	name := args[0]
	if resolved, err := lookPathIn(name, environment.Path); err == nil {
		name = resolved
	}

	cmd := exec.Command(name, args[1:]...)
	cmd.Dir = environment.Dir
	cmd.Env = environment.MergeWithCurrent()
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

func lookPathIn(name, path string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		return name, nil
	}
	for _, dir := range filepath.SplitList(path) {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}
