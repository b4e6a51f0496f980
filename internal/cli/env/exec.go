package env

import (
	"fmt"

	envpkg "github.com/danieljhkim/service-harness/internal/env"
	"github.com/spf13/cobra"
)

func newExecCmd(pathsGetter PathsGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <service> -- <command> [args...]",
		Short: "Run a command inside a service environment",
		Long: `Execute a command in the service directory with the service environment:
config.env entries, SERVICE, HOST, PORT, VIRTUAL_ENV and PATH with the venv
first.

Note: Use '--' to separate env exec flags from the command being executed.

Examples:
  harness env exec related -- python -c 'import fastapi'
  harness env exec suggestion -- pip list`,
		DisableFlagParsing: true, // Don't parse flags after 'exec'
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || args[0] == "--" {
				return fmt.Errorf("usage: harness env exec <service> -- <command> [args...]")
			}

			spec, settings, err := loadService(pathsGetter(), args[0])
			if err != nil {
				return err
			}

			rest := args[1:]
			// Skip the separator if present
			if len(rest) > 0 && rest[0] == "--" {
				rest = rest[1:]
			}

			return envpkg.Exec(pathsGetter(), settings, spec, rest)
		},
	}

	return cmd
}
