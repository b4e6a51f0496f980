package env

import (
	"fmt"

	"github.com/danieljhkim/service-harness/internal/config"
	envpkg "github.com/danieljhkim/service-harness/internal/env"
	"github.com/spf13/cobra"
)

func newDoctorCmd(pathsGetter PathsGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor [service]",
		Short: "Check required and optional dependencies",
		Long: `Check that the interpreter and tools the harness needs are available and
that each service directory is laid out correctly (requirements.txt, an
entry module, a virtual environment).

Examples:
  harness env doctor
  harness env doctor related`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := pathsGetter()
			table, settings, err := config.Load(paths)
			if err != nil {
				return err
			}

			target := ""
			if len(args) > 0 {
				target = args[0]
			}

			result, err := envpkg.RunDoctor(paths, table, settings, target)
			if err != nil {
				return err
			}
			result.Print(cmd.OutOrStdout())

			if result.ExitCode() != 0 {
				return fmt.Errorf("required checks failed")
			}
			return nil
		},
	}

	return cmd
}
