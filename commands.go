package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/flmcompanion/flmcompanion/config"
	"github.com/flmcompanion/flmcompanion/core"
	"github.com/flmcompanion/flmcompanion/flm"
	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/flmcompanion/flmcompanion/release"
	"github.com/flmcompanion/flmcompanion/styles"
	"github.com/spf13/cobra"
)

// notifyAnnotation marks commands that raise desktop notifications.
const notifyAnnotation = "notify"

var errNoTerminal = errors.New("this command needs an interactive terminal")

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (app *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the companion and runtime versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "flmc %s\n", orDash(Version))
			fmt.Fprintf(out, "flm  %s\n", app.svc.Version(cmd.Context()))
			return nil
		},
	}
}

func parseFilter(s string) (flm.Filter, error) {
	switch f := flm.Filter(s); f {
	case flm.FilterAll, flm.FilterInstalled, flm.FilterNotInstalled:
		return f, nil
	}
	return "", fmt.Errorf("invalid filter %q (want all, installed or not-installed)", s)
}

func (app *cli) newListCmd() *cobra.Command {
	var filter string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilter(filter)
			if err != nil {
				return err
			}
			models := app.svc.ListModels(cmd.Context(), f, refresh)
			fmt.Fprint(cmd.OutOrStdout(), formatModels(models, isTerminal()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", string(flm.FilterInstalled), "all, installed or not-installed")
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "Re-read the model catalog")
	return cmd
}

func (app *cli) newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <model>",
		Short: "Download a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			out := cmd.OutOrStdout()
			if err := app.svc.PullModel(ctx, args[0], func(line string) { fmt.Fprintln(out, line) }); err != nil {
				return err
			}
			fmt.Fprintln(out, styles.SuccessStyle().Render("Pulled "+args[0]))
			return nil
		},
	}
}

func (app *cli) newRemoveCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "remove <model>",
		Aliases: []string{"rm"},
		Short:   "Delete a downloaded model",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !yes && isTerminal() {
				answer := promptForText(fmt.Sprintf("Delete %s? (y/N)", name), "n")
				if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
					fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled")
					return nil
				}
			}
			if err := app.svc.RemoveModel(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.SuccessStyle().Render("Deleted "+name))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func (app *cli) newServeCmd() *cobra.Command {
	var so serveOptions
	cmd := &cobra.Command{
		Use:         "serve [model|preset]",
		Short:       "Run the FLM server in the foreground",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{notifyAnnotation: "desktop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			server := app.svc.Server()
			app.svc.RefreshModels(ctx, false)
			if len(args) == 1 {
				if err := server.Select(args[0]); err != nil {
					return err
				}
			}
			so.markChanged(cmd)
			opts, err := so.apply(server.Options())
			if err != nil {
				return err
			}
			server.SetOptions(opts)
			return serve(ctx, app.svc, cmd.OutOrStdout(), isTerminal())
		},
	}
	cmd.Flags().StringVar(&so.pmode, "pmode", "", "Performance mode (powersaver, balanced, performance, turbo)")
	cmd.Flags().IntVar(&so.ctxLen, "ctx-len", 0, "Context length, 0 for the model default")
	cmd.Flags().IntVar(&so.port, "port", 0, "Port to listen on")
	cmd.Flags().StringVar(&so.host, "host", "", "Host to listen on")
	cmd.Flags().BoolVar(&so.asr, "asr", false, "Enable speech recognition")
	cmd.Flags().BoolVar(&so.embed, "embed", false, "Enable the embeddings endpoint")
	return cmd
}

func (app *cli) newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <model>",
		Short: "Chat with a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal() {
				return errNoTerminal
			}
			chat := app.svc.Chat()
			if err := chat.Start(args[0], app.svc.Server().Options()); err != nil {
				return err
			}
			defer chat.Stop()

			width, height := terminalSize()
			app.tuiActive.Store(true)
			defer app.tuiActive.Store(false)
			p := tea.NewProgram(NewChatModel(chat, app.svc.GetEventBus(), width, height), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
}

func (app *cli) newHardwareCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "hardware",
		Short: "Show CPU, memory and NPU information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := app.svc.HardwareInfo(cmd.Context(), refresh)
			fmt.Fprint(cmd.OutOrStdout(), formatHardware(info, isTerminal()))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "Probe again instead of using the cached result")
	return cmd
}

func (app *cli) newStatsCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show live CPU, memory and NPU utilisation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if once || !isTerminal() {
				fmt.Fprint(cmd.OutOrStdout(), formatStats(app.svc.Stats(cmd.Context()), isTerminal()))
				return nil
			}
			app.tuiActive.Store(true)
			defer app.tuiActive.Store(false)
			_, err := tea.NewProgram(NewTopModel(app.svc.Stats, true)).Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Print one sample and exit")
	return cmd
}

func (app *cli) newPresetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage server presets",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List built-in and user presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), formatPresets(app.svc.Server().Presets(), isTerminal()))
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export <file>",
		Short: "Write user presets to a yaml, json or toml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := app.svc.Config().UserPresets
			if err := config.SavePresets(args[0], presets); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d presets to %s\n", len(presets), args[0])
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Add presets from a yaml, json or toml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := config.LoadPresets(args[0])
			if err != nil {
				return err
			}
			added := importPresets(app.svc, presets)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d presets\n", added, len(presets))
			return nil
		},
	}

	cmd.AddCommand(list, export, importCmd, app.newPresetAddCmd())
	return cmd
}

// importPresets adds the presets whose ids are not taken yet.
func importPresets(svc *core.Service, presets []config.ServerPreset) int {
	added := 0
	for _, p := range presets {
		if _, exists := config.FindPreset(p.ID, svc.Config().UserPresets); exists {
			logging.InfoLogger.Info().Msgf("Skipping preset %s, it already exists", p.ID)
			continue
		}
		svc.AddPreset(p)
		added++
	}
	return added
}

func (app *cli) newPresetAddCmd() *cobra.Command {
	var model string
	var so serveOptions
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Create a user preset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			} else if isTerminal() {
				name = promptForText("Name for the new preset:", "My preset")
			}
			if name == "" {
				return errors.New("a preset needs a name")
			}
			so.markChanged(cmd)
			patch, err := so.patch()
			if err != nil {
				return err
			}
			p := config.NewUserPreset(name, model, patch)
			app.svc.AddPreset(p)
			fmt.Fprintf(cmd.OutOrStdout(), "Added preset %s (%s)\n", name, p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model to serve, empty to keep the current selection's model")
	cmd.Flags().StringVar(&so.pmode, "pmode", "", "Performance mode (powersaver, balanced, performance, turbo)")
	cmd.Flags().IntVar(&so.ctxLen, "ctx-len", 0, "Context length, 0 for the model default")
	cmd.Flags().IntVar(&so.port, "port", 0, "Port to listen on")
	cmd.Flags().StringVar(&so.host, "host", "", "Host to listen on")
	cmd.Flags().BoolVar(&so.asr, "asr", false, "Enable speech recognition")
	cmd.Flags().BoolVar(&so.embed, "embed", false, "Enable the embeddings endpoint")
	return cmd
}

func (app *cli) newUpdateCmd() *cobra.Command {
	var runtimeFlag, check, open bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check for and install updates of the companion or the runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			out := cmd.OutOrStdout()

			var info core.UpdateInfo
			var err error
			if runtimeFlag {
				info, err = app.svc.CheckRuntimeUpdate(ctx)
			} else {
				info, err = app.svc.CheckUpdate(ctx, release.CompanionRepo, Version)
			}
			if err != nil {
				return fmt.Errorf("failed to check for updates: %w", err)
			}
			fmt.Fprintf(out, "Installed: %s\nLatest:    %s\n", orDash(info.Current), orDash(info.Latest))
			if !info.Newer {
				fmt.Fprintln(out, styles.SuccessStyle().Render("Up to date"))
				return nil
			}
			if check {
				fmt.Fprintln(out, styles.InfoStyle().Render("An update is available: "+info.Release.HTMLURL))
				return nil
			}
			if open {
				return release.OpenPage(info.Release.HTMLURL)
			}

			if runtimeFlag {
				version, err := runWithProgress(out, "Downloading FLM "+info.Latest, func(onProgress func(int)) (string, error) {
					return app.svc.UpdateRuntime(ctx, onProgress)
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(out, styles.SuccessStyle().Render("FLM runtime updated to "+version))
				return nil
			}
			path, err := runWithProgress(out, "Downloading flmc "+info.Latest, func(onProgress func(int)) (string, error) {
				return app.svc.InstallRelease(ctx, info.Release, onProgress)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Installer started: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&runtimeFlag, "runtime", false, "Update the FLM runtime instead of the companion")
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether an update is available")
	cmd.Flags().BoolVar(&open, "open", false, "Open the release page instead of downloading")
	return cmd
}

func (app *cli) newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Open the server dashboard (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runDashboard(cmd)
		},
	}
}

func (app *cli) runDashboard(cmd *cobra.Command) error {
	if !isTerminal() {
		return errNoTerminal
	}
	ctx, cancel := context.WithCancel(app.svc.Context())
	defer cancel()
	go func() {
		if err := app.svc.WatchConfig(ctx); err != nil {
			logging.WarnLogger.Warn().Msgf("Config watcher stopped: %v", err)
		}
	}()

	width, height := terminalSize()
	app.tuiActive.Store(true)
	defer app.tuiActive.Store(false)
	p := tea.NewProgram(NewAppModel(ctx, app.svc, width, height), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
