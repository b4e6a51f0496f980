package env

import (
	envpkg "github.com/danieljhkim/service-harness/internal/env"
	"github.com/spf13/cobra"
)

func newPrintCmd(pathsGetter PathsGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print <service>",
		Short: "Print export statements for a service environment",
		Long: `Print environment variable export statements.

Output can be evaluated in your shell to enter a service environment:

  eval "$(harness env print related)"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := pathsGetter()
			spec, settings, err := loadService(paths, args[0])
			if err != nil {
				return err
			}

			env, err := envpkg.Compute(paths, settings, spec, envpkg.Options{})
			if err != nil {
				return err
			}

			// Print shell exports
			env.PrintShell(cmd.OutOrStdout())

			return nil
		},
	}

	return cmd
}
