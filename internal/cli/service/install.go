package service

import (
	"fmt"

	"github.com/danieljhkim/service-harness/internal/util"
	"github.com/spf13/cobra"
)

func newInstallCmd(pathsGetter PathsGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [service]",
		Short: "Create virtual environments and install dependencies",
		Long: `Create <service>/venv if missing and install <service>/requirements.txt
into it. Installer output is appended to <service>/<service>.log.

With no arguments all services are installed concurrently.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, err := newSupervisor(pathsGetter())
			if err != nil {
				return err
			}

			names, errs, err := sup.InstallAll(cmd.Context(), target(args))
			if err != nil {
				return err
			}

			failed := 0
			for i, name := range names {
				if errs[i] != nil {
					failed++
					util.Error("%s: %v", name, errs[i])
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d installs failed", failed, len(names))
			}
			return nil
		},
	}

	return cmd
}
