package service

import (
	"errors"

	svc "github.com/danieljhkim/service-harness/internal/service"
	"github.com/spf13/cobra"
)

func newRestartCmd(pathsGetter PathsGetter) *cobra.Command {
	var (
		stopOpts  svc.StopOptions
		startOpts svc.StartOptions
	)

	cmd := &cobra.Command{
		Use:   "restart [service]",
		Short: "Stop then start one or all services",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, err := newSupervisor(pathsGetter())
			if err != nil {
				return err
			}

			specs, err := sup.Table().Select(target(args))
			if err != nil {
				return err
			}

			var errs []error
			for _, spec := range specs {
				if _, err := sup.Restart(cmd.Context(), spec.Name, stopOpts, startOpts); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&stopOpts.Force, "force", false, "Kill any process listening on the service port")
	cmd.Flags().BoolVar(&startOpts.SkipInstall, "skip-install", false, "Skip virtual environment and dependency installation")
	cmd.Flags().BoolVar(&startOpts.Wait, "wait", false, "Wait until each service answers GET /health")

	return cmd
}
