package cli

import (
	"github.com/danieljhkim/service-harness/internal/config"
	"github.com/danieljhkim/service-harness/internal/service"
	"github.com/spf13/cobra"
)

// NewLogsCmd creates the logs command
func NewLogsCmd(pathsGetter func() *config.Paths) *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "logs [service]",
		Short: "Show recent log output of one or all services",
		Long: `Display the last lines of <service>/<service>.log for each service.

Examples:
  harness logs
  harness logs related -n 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := pathsGetter()
			table, settings, err := config.Load(p)
			if err != nil {
				return err
			}

			name := ""
			if len(args) > 0 {
				name = args[0]
			}

			sup := service.NewSupervisor(p, table, settings)
			return sup.Logs(name, lines, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 120, "Number of lines to show per service")

	return cmd
}
