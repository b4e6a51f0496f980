package service

import (
	"fmt"
	"time"

	svc "github.com/danieljhkim/service-harness/internal/service"
	"github.com/danieljhkim/service-harness/internal/util"
	"github.com/spf13/cobra"
)

func newStartCmd(pathsGetter PathsGetter) *cobra.Command {
	var opts svc.StartOptions

	cmd := &cobra.Command{
		Use:   "start [service]",
		Short: "Start one or all services in the background",
		Long: `Start services detached, each with its own PID file and log.

For every service the virtual environment is created if missing, the pinned
requirements are installed, the entry module (app.py, else main.py) is
detected and uvicorn is launched on the service port.

With no arguments all services are started concurrently. A failing service
does not stop the others; a summary is printed at the end.

Examples:
  harness start                 # suggestion, related and multiagent
  harness start related         # related only (port 8001)
  harness start --skip-install  # reuse existing virtual environments
  harness start --wait          # block until GET /health answers`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, err := newSupervisor(pathsGetter())
			if err != nil {
				return err
			}

			if name := target(args); name != "" {
				_, err := sup.Start(cmd.Context(), name, opts)
				return err
			}

			results, err := sup.StartAll(cmd.Context(), "", opts)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout())
			util.Section("summary")
			rows := make([]util.StatusTableRow, 0, len(results))
			failed := 0
			for _, res := range results {
				row := util.StatusTableRow{Name: res.Name, Ok: res.Err == nil}
				switch {
				case res.Err != nil:
					failed++
					row.Status = "failed"
					row.Detail = res.Err.Error()
				case res.AlreadyRunning:
					row.Status = "running"
					row.Detail = fmt.Sprintf("pid %d, port %d (already running)", res.PID, res.Port)
				default:
					row.Status = "started"
					row.Detail = fmt.Sprintf("pid %d, port %d, log %s", res.PID, res.Port, res.LogFile)
				}
				rows = append(rows, row)
			}
			util.StatusTable(rows)

			if failed > 0 {
				return fmt.Errorf("%d of %d services failed to start", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.SkipInstall, "skip-install", false, "Skip virtual environment and dependency installation")
	cmd.Flags().BoolVar(&opts.Wait, "wait", false, "Wait until each service answers GET /health")
	cmd.Flags().DurationVar(&opts.WaitTimeout, "wait-timeout", 60*time.Second, "Upper bound for --wait")

	return cmd
}
