package service

import (
	"github.com/danieljhkim/service-harness/internal/config"
	svc "github.com/danieljhkim/service-harness/internal/service"
	"github.com/spf13/cobra"
)

// PathsGetter is a function that returns the Paths instance
type PathsGetter func() *config.Paths

// newSupervisor is swapped by tests.
var newSupervisor = func(paths *config.Paths) (*svc.Supervisor, error) {
	table, settings, err := config.Load(paths)
	if err != nil {
		return nil, err
	}
	return svc.NewSupervisor(paths, table, settings), nil
}

// NewStartCmd creates the start command
func NewStartCmd(pathsGetter PathsGetter) *cobra.Command {
	return newStartCmd(pathsGetter)
}

// NewStopCmd creates the stop command
func NewStopCmd(pathsGetter PathsGetter) *cobra.Command {
	return newStopCmd(pathsGetter)
}

// NewRestartCmd creates the restart command
func NewRestartCmd(pathsGetter PathsGetter) *cobra.Command {
	return newRestartCmd(pathsGetter)
}

// NewStatusCmd creates the status command
func NewStatusCmd(pathsGetter PathsGetter) *cobra.Command {
	return newStatusCmd(pathsGetter)
}

// NewInstallCmd creates the install command
func NewInstallCmd(pathsGetter PathsGetter) *cobra.Command {
	return newInstallCmd(pathsGetter)
}

func target(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
