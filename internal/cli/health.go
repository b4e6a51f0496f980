package cli

import (
	"fmt"
	"os"

	"github.com/danieljhkim/service-harness/internal/config"
	envpkg "github.com/danieljhkim/service-harness/internal/env"
	"github.com/danieljhkim/service-harness/internal/service"
	"github.com/danieljhkim/service-harness/internal/util"
	"github.com/spf13/cobra"
)

// NewHealthCmd creates the health command
func NewHealthCmd(pathsGetter func() *config.Paths) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health [service]",
		Short: "Probe GET /health on one or all services",
		Long: `Probe GET /health on each service port and report the result.

Exits non-zero when any probed service is unhealthy, so it can serve as a
container HEALTHCHECK:

  HEALTHCHECK CMD harness health "$SERVICE"

When one service is named and PORT is set, that port is probed instead of
the table port, the same port run binds.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := pathsGetter()
			table, settings, err := config.Load(p)
			if err != nil {
				return err
			}

			name := ""
			var opts service.HealthOptions
			if len(args) > 0 {
				name = args[0]
				if raw := os.Getenv("PORT"); raw != "" {
					port, err := envpkg.ParsePort(raw)
					if err != nil {
						return err
					}
					opts.Port = port
				}
			}

			sup := service.NewSupervisor(p, table, settings)
			results, err := sup.Health(cmd.Context(), name, opts)
			if err != nil {
				return err
			}

			rows := make([]util.StatusTableRow, 0, len(results))
			unhealthy := 0
			for _, res := range results {
				row := util.StatusTableRow{Name: res.Name, Ok: res.Healthy, Detail: res.Detail()}
				if res.Healthy {
					row.Status = "healthy"
				} else {
					row.Status = "unhealthy"
					unhealthy++
				}
				rows = append(rows, row)
			}
			util.StatusTable(rows)

			if unhealthy > 0 {
				return fmt.Errorf("%d of %d services unhealthy", unhealthy, len(results))
			}
			return nil
		},
	}

	return cmd
}
