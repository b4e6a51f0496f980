package env

import (
	"github.com/danieljhkim/service-harness/internal/config"
	"github.com/spf13/cobra"
)

// PathsGetter is a function that returns the Paths instance
type PathsGetter func() *config.Paths

// NewEnvCmd creates the env command with all subcommands
func NewEnvCmd(pathsGetter PathsGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Environment management commands",
		Long: `Commands for inspecting the environment each service runs in.

Includes dependency checking, environment variable printing, and running
commands inside a service environment.`,
	}

	// Add subcommands
	cmd.AddCommand(newDoctorCmd(pathsGetter))
	cmd.AddCommand(newPrintCmd(pathsGetter))
	cmd.AddCommand(newExecCmd(pathsGetter))

	return cmd
}

// loadService resolves one service from the table.
func loadService(paths *config.Paths, name string) (*config.ServiceSpec, *config.Settings, error) {
	table, settings, err := config.Load(paths)
	if err != nil {
		return nil, nil, err
	}
	spec, err := table.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	return spec, settings, nil
}
