package cli

import (
	"fmt"
	"os"

	"github.com/danieljhkim/service-harness/internal/config"
	envpkg "github.com/danieljhkim/service-harness/internal/env"
	"github.com/danieljhkim/service-harness/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// execProcess replaces the current process; tests swap it out.
var execProcess = unix.Exec

// NewRunCmd creates the foreground runner used as the container entrypoint.
func NewRunCmd(pathsGetter func() *config.Paths) *cobra.Command {
	var skipInstall bool

	cmd := &cobra.Command{
		Use:   "run [service]",
		Short: "Run one service in the foreground (container entrypoint)",
		Long: `Run one service in the foreground, replacing this process with uvicorn.

The service is taken from the argument, else $SERVICE, else suggestion.
$PORT overrides the service's table port. Entries from config.env are
exported into the service environment.

Examples:
  harness run                       # suggestion on 8000
  SERVICE=related harness run       # related on 8001
  PORT=9000 harness run multiagent  # multiagent on 9000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := pathsGetter()

			name := config.ResolveServiceName(os.Getenv)
			if len(args) > 0 {
				name = args[0]
			}

			opts := service.RunOptions{SkipInstall: skipInstall}
			if raw := os.Getenv("PORT"); raw != "" {
				port, err := envpkg.ParsePort(raw)
				if err != nil {
					return err
				}
				opts.Port = port
			}

			table, settings, err := config.Load(p)
			if err != nil {
				return err
			}
			if _, err := table.Lookup(name); err != nil {
				return fmt.Errorf("%w (set SERVICE to one of the services above)", err)
			}

			sup := service.NewSupervisor(p, table, settings)
			sup.ExecFunc = execProcess
			return sup.Run(cmd.Context(), name, opts)
		},
	}

	cmd.Flags().BoolVar(&skipInstall, "skip-install", false, "Use the existing virtual environment as-is")

	return cmd
}
