package service

import (
	svc "github.com/danieljhkim/service-harness/internal/service"
	"github.com/spf13/cobra"
)

func newStopCmd(pathsGetter PathsGetter) *cobra.Command {
	var opts svc.StopOptions

	cmd := &cobra.Command{
		Use:   "stop [service]",
		Short: "Stop one or all services",
		Long: `Stop services started with 'harness start'.

The PID file is checked against the process registry before signaling, so a
recycled PID is never killed. The process group gets SIGTERM, then SIGKILL
after the stop timeout. Anything still listening on the service port that
looks like the service (uvicorn, or running from the service directory) is
killed as a fallback; --force kills every listener on the port.

With no arguments all services are stopped, in reverse order.

Examples:
  harness stop                  # all services
  harness stop multiagent       # multiagent only
  harness stop suggestion --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, err := newSupervisor(pathsGetter())
			if err != nil {
				return err
			}

			_, err = sup.StopAll(cmd.Context(), target(args), opts)
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Kill any process listening on the service port")

	return cmd
}
