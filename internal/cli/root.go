package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danieljhkim/service-harness/internal/cli/env"
	"github.com/danieljhkim/service-harness/internal/cli/service"
	"github.com/danieljhkim/service-harness/internal/cli/setting"
	"github.com/danieljhkim/service-harness/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Global paths instance
	paths *config.Paths
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = NewRootCmd(getPaths)

// NewRootCmd builds the command tree around a paths getter.
func NewRootCmd(pathsGetter func() *config.Paths) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harness",
		Short: "Install, run and supervise the suggestion, related and multiagent services",
		Long: `harness: one supervisor for the suggestion (8000), related (8001) and
multiagent (8002) services.

Each service lives in its own directory with a requirements.txt and an entry
module (app.py or main.py) exposing an ASGI app. harness creates the virtual
environment, installs dependencies, exports config.env and runs uvicorn,
either detached with PID and log files or in the foreground for containers.

Set HARNESS_ROOT to point at the directory holding the services.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(service.NewStartCmd(pathsGetter))
	cmd.AddCommand(service.NewStopCmd(pathsGetter))
	cmd.AddCommand(service.NewRestartCmd(pathsGetter))
	cmd.AddCommand(service.NewStatusCmd(pathsGetter))
	cmd.AddCommand(service.NewInstallCmd(pathsGetter))
	cmd.AddCommand(NewRunCmd(pathsGetter))
	cmd.AddCommand(NewLogsCmd(pathsGetter))
	cmd.AddCommand(NewHealthCmd(pathsGetter))
	cmd.AddCommand(env.NewEnvCmd(pathsGetter))
	cmd.AddCommand(setting.NewSettingCmd(pathsGetter))

	return cmd
}

// Execute runs the root command; SIGINT and SIGTERM cancel its context.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig resolves the repo root and base directory.
func initConfig() {
	paths = config.NewPaths(config.DiscoverRepoRoot(), config.DefaultBaseDir())
}

// getPaths returns the global paths instance
// This is passed to subcommands as a getter function
func getPaths() *config.Paths {
	if paths == nil {
		initConfig()
	}
	return paths
}
