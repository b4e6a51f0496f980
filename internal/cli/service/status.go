package service

import (
	"fmt"

	"github.com/danieljhkim/service-harness/internal/util"
	"github.com/spf13/cobra"
)

func newStatusCmd(pathsGetter PathsGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [service]",
		Short: "Show status of one or all services",
		Long: `Show whether each service is running and whether its port accepts
connections.

Examples:
  harness status
  harness status related`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, err := newSupervisor(pathsGetter())
			if err != nil {
				return err
			}

			statuses, err := sup.Status(cmd.Context(), target(args))
			if err != nil {
				return err
			}

			rows := make([]util.StatusTableRow, 0, len(statuses))
			for _, st := range statuses {
				row := util.StatusTableRow{Name: st.Name}
				switch {
				case st.Running:
					row.Status = "running"
					row.Ok = true
					row.Detail = fmt.Sprintf("pid %d, port %d", st.PID, st.Port)
					if !st.Listening {
						row.Detail += " (not listening yet)"
					}
				case st.Listening:
					row.Status = "unmanaged"
					row.Detail = fmt.Sprintf("port %d in use by a process without a PID file", st.Port)
				default:
					row.Status = "stopped"
					row.Detail = fmt.Sprintf("port %d", st.Port)
				}
				rows = append(rows, row)
			}
			util.StatusTable(rows)

			return nil
		},
	}

	return cmd
}
