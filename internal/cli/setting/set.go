package setting

import (
	"fmt"
	"strings"

	"github.com/danieljhkim/service-harness/internal/config"
	"github.com/spf13/cobra"
)

func newSetCmd(pathsGetter PathsGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configurable user setting",
		Long: fmt.Sprintf(`Set a configurable user setting.

Supported keys: %s.
Note: base-dir is static; relocate it with $%s.`, strings.Join(config.SettingKeys, ", "), config.EnvHome),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]

			sm := config.NewSettingsManager(pathsGetter())
			settings, err := sm.LoadOrDefault()
			if err != nil {
				return err
			}

			if err := settings.Set(key, value); err != nil {
				return err
			}
			if err := sm.Save(settings); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s in %s\n", key, sm.Path())
			if key == "host" || key == "env-file" {
				fmt.Fprintln(cmd.ErrOrStderr(), "WARNING: Restart running services for the change to take effect ('harness restart').")
			}
			return nil
		},
	}

	return cmd
}
