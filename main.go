// main.go
package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/flmcompanion/flmcompanion/config"
	"github.com/flmcompanion/flmcompanion/core"
	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/flmcompanion/flmcompanion/styles"
	"github.com/spf13/cobra"
)

var (
	Version string // Version will be set during the build process
)

// cli holds the global flags and the service shared by every command.
type cli struct {
	configPath string
	flmPath    string
	logLevel   string

	svc *core.Service
	// tuiActive is set while a full screen view is running; notifications
	// are only raised when nobody is looking at one.
	tuiActive atomic.Bool
}

func main() {
	app := &cli{}
	err := newRootCmd(app).Execute()
	if app.svc != nil {
		if cerr := app.svc.Close(); cerr != nil {
			logging.ErrorLogger.Error().Msgf("Error closing service: %v", cerr)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, styles.ErrorStyle().Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(app *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "flmc",
		Short:         "Companion for the FastFlowLM runtime",
		Long:          "flmc manages FastFlowLM models, runs the FLM server and chats with models from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runDashboard(cmd)
		},
	}
	root.PersistentFlags().StringVar(&app.configPath, "config", "", "Path to the config file")
	root.PersistentFlags().StringVar(&app.flmPath, "flm-path", "", "FLM executable or install directory")
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		app.newVersionCmd(),
		app.newListCmd(),
		app.newPullCmd(),
		app.newRemoveCmd(),
		app.newServeCmd(),
		app.newChatCmd(),
		app.newHardwareCmd(),
		app.newStatsCmd(),
		app.newPresetsCmd(),
		app.newUpdateCmd(),
		app.newDashboardCmd(),
	)
	return root
}

// setup builds the service once per invocation.
func (app *cli) setup(cmd *cobra.Command) error {
	if app.svc != nil {
		return nil
	}
	svc, err := core.NewService(core.ServiceConfig{
		ConfigPath: app.configPath,
		LogLevel:   app.logLevel,
		FlmPath:    app.flmPath,
		Context:    context.Background(),
		Visible:    app.tuiActive.Load,
		Desktop:    cmd.Annotations[notifyAnnotation] == "desktop",
	})
	if err != nil {
		return err
	}
	app.svc = svc
	styles.InitTheme(config.ResolveTheme(svc.Config().Theme))
	return nil
}
