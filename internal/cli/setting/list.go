package setting

import (
	"fmt"

	"github.com/danieljhkim/service-harness/internal/config"
	"github.com/spf13/cobra"
)

func newListCmd(pathsGetter PathsGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configurable user settings",
		Long:  `List all configurable user settings and current values.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sm := config.NewSettingsManager(pathsGetter())
			settings, err := sm.LoadOrDefault()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, key := range append([]string{"base-dir"}, config.SettingKeys...) {
				value, err := settings.Value(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "- %s: %s\n", key, value)
			}
			return nil
		},
	}

	return cmd
}
