package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/flmcompanion/flmcompanion/catalog"
	"github.com/flmcompanion/flmcompanion/config"
	"github.com/flmcompanion/flmcompanion/flm"
	"github.com/flmcompanion/flmcompanion/hardware"
	"github.com/flmcompanion/flmcompanion/release"
	"github.com/flmcompanion/flmcompanion/utils"
)

// Service ties the configuration, the runtime gateway and the coordinators
// together for the CLI and the dashboard.
type Service struct {
	store    *config.Store
	gateway  *flm.Gateway
	logger   *Logger
	eventBus *EventBus
	notifier *NotificationService
	server   *ServerManager
	chat     *ChatSession
	probe    *hardware.Probe
	releases *release.Client

	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// ServiceConfig holds configuration for initialising the service
type ServiceConfig struct {
	ConfigPath string
	LogLevel   string
	FlmPath    string
	Context    context.Context

	// Visible reports whether the user is looking at the application.
	// Notifications are only delivered while it returns false.
	Visible func() bool
	// Desktop enables native desktop notifications.
	Desktop bool

	// Gateway replaces the runtime gateway, mostly for tests.
	Gateway      *flm.Gateway
	RestartDelay time.Duration
}

// NewService loads the configuration and builds every component.
func NewService(cfg ServiceConfig) (*Service, error) {
	path := cfg.ConfigPath
	if path == "" {
		path = utils.GetConfigPath()
	}
	store, err := config.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	conf := store.Get()
	if cfg.LogLevel != "" {
		conf.LogLevel = cfg.LogLevel
	}
	if cfg.FlmPath != "" {
		conf.FlmPath = cfg.FlmPath
	}

	logger, err := NewLogger(conf.LogLevel, conf.LogFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise logger: %w", err)
	}
	if lerr := store.LoadError(); lerr != nil {
		logger.Warnf("Config at %s could not be loaded, using defaults (original kept at %s.bak): %v", path, path, lerr)
	}

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	gateway := cfg.Gateway
	if gateway == nil {
		gateway = flm.New(flm.Options{Binary: RuntimeBinary(conf.FlmPath)})
	}

	bus := NewEventBus()
	var sender Sender = LogSender{Bus: bus}
	if cfg.Desktop {
		sender = Senders{sender, NewDesktopSender(gateway)}
	}
	notifier := NewNotificationService(cfg.Visible, sender)

	s := &Service{
		store:      store,
		gateway:    gateway,
		logger:     logger,
		eventBus:   bus,
		notifier:   notifier,
		chat:       NewChatSession(gateway, gateway.Matcher(), bus),
		probe:      hardware.NewProbe(gateway),
		releases:   release.NewClient(),
		ctx:        ctx,
		cancelFunc: cancel,
	}
	s.server = NewServerManager(ServerManagerOptions{
		Runner:       gateway,
		Matcher:      gateway.Matcher(),
		Notifier:     notifier,
		Bus:          bus,
		RestartDelay: cfg.RestartDelay,
		Options:      conf.ServerOptions,
		Selection:    conf.LastSelectedModel,
		Presets:      conf.UserPresets,
		OnChange:     s.persistSelection,
	})

	logger.Infof("FLM Companion service initialised (runtime %s, config %s)", gateway.Binary(), path)
	return s, nil
}

// RuntimeBinary turns the configured runtime path into an executable to run.
// A directory is taken to be the install directory.
func RuntimeBinary(flmPath string) string {
	flmPath = utils.ExpandHome(flmPath)
	if flmPath == "" {
		return "flm"
	}
	if utils.IsDir(flmPath) {
		name := "flm"
		if runtime.GOOS == "windows" {
			name = "flm.exe"
		}
		return filepath.Join(flmPath, name)
	}
	return flmPath
}

func (s *Service) persistSelection(selection string, opts config.ServerOptions) {
	s.store.Update(func(c *config.Config) {
		c.LastSelectedModel = selection
		c.ServerOptions = opts
	})
}

// Close stops any owned process, writes pending configuration and shuts
// the event bus.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.gateway.Owned() {
			s.server.Stop()
			s.chat.Stop()
		}
		s.cancelFunc()
		err = s.store.Flush()
		s.eventBus.Close()
		s.logger.Info("FLM Companion service shut down")
	})
	return err
}

func (s *Service) Config() config.Config              { return s.store.Get() }
func (s *Service) Store() *config.Store               { return s.store }
func (s *Service) Gateway() *flm.Gateway              { return s.gateway }
func (s *Service) Server() *ServerManager             { return s.server }
func (s *Service) Chat() *ChatSession                 { return s.chat }
func (s *Service) Notifier() *NotificationService     { return s.notifier }
func (s *Service) Releases() *release.Client          { return s.releases }
func (s *Service) GetLogger() *Logger                 { return s.logger }
func (s *Service) GetEventBus() *EventBus             { return s.eventBus }
func (s *Service) Context() context.Context           { return s.ctx }
func (s *Service) Version(ctx context.Context) string { return s.gateway.Version(ctx) }

// UpdateConfig edits and persists the configuration.
func (s *Service) UpdateConfig(fn func(*config.Config)) {
	s.store.Update(fn)
	cfg := s.store.Get()
	s.server.SetPresets(cfg.UserPresets)
	s.eventBus.Publish(EventConfigUpdated, cfg)
}

// WatchConfig applies external edits of the config file until ctx is done.
func (s *Service) WatchConfig(ctx context.Context) error {
	return s.store.Watch(ctx, func(cfg config.Config) {
		s.logger.Info("Configuration changed on disk, reloading")
		s.server.SetPresets(cfg.UserPresets)
		s.eventBus.Publish(EventConfigUpdated, cfg)
	})
}

// RefreshModels reloads the installed models. The selection is kept while
// it is still installed (or is a preset), otherwise the first installed
// model is selected.
func (s *Service) RefreshModels(ctx context.Context, force bool) []catalog.Model {
	models := s.gateway.ListModels(ctx, flm.FilterInstalled, force)
	s.server.SetInstalledModels(models)

	current := s.server.Selection()
	_, installed := catalog.Find(models, current)
	if !config.IsPresetID(current) && !installed {
		next := ""
		if len(models) > 0 {
			next = models[0].Name
		}
		if err := s.server.Select(next); err != nil {
			s.logger.Warnf("Failed to select %q: %v", next, err)
		}
	}
	s.eventBus.Publish(EventModelsRefreshed, models)
	return models
}

// ListModels lists models for any filter.
func (s *Service) ListModels(ctx context.Context, filter flm.Filter, force bool) []catalog.Model {
	return s.gateway.ListModels(ctx, filter, force)
}

// PullModel downloads a model and refreshes the installed list.
func (s *Service) PullModel(ctx context.Context, name string, onProgress func(string)) error {
	s.notifier.Send("Download started", fmt.Sprintf("Downloading %s...", name))
	if err := s.gateway.PullModel(ctx, name, onProgress); err != nil {
		s.logger.Errorf("Failed to pull %s: %v", name, err)
		s.notifier.Send("Download failed", fmt.Sprintf("Could not download %s.", name))
		s.eventBus.Publish(EventError, err)
		return err
	}
	s.notifier.Send("Download complete", fmt.Sprintf("%s is ready to use.", name))
	s.RefreshModels(ctx, true)
	return nil
}

// RemoveModel deletes a model and refreshes the installed list.
func (s *Service) RemoveModel(ctx context.Context, name string) error {
	if err := s.gateway.RemoveModel(ctx, name); err != nil {
		s.logger.Errorf("Failed to remove %s: %v", name, err)
		s.notifier.Send("Delete failed", fmt.Sprintf("Could not delete %s.", name))
		s.eventBus.Publish(EventError, err)
		return err
	}
	s.notifier.Send("Model deleted", fmt.Sprintf("%s has been deleted.", name))
	s.RefreshModels(ctx, true)
	return nil
}

func (s *Service) HardwareInfo(ctx context.Context, force bool) hardware.Info {
	return s.probe.Info(ctx, force)
}

func (s *Service) Stats(ctx context.Context) hardware.Stats {
	return s.probe.Stats(ctx)
}

// SampleStats streams utilisation samples until ctx is done.
func (s *Service) SampleStats(ctx context.Context, interval time.Duration) <-chan hardware.Stats {
	return s.probe.Sample(ctx, interval)
}

// RequestStart starts the server unless it is already starting or running.
func (s *Service) RequestStart() error {
	if s.server.Status() != StatusStopped {
		return nil
	}
	return s.server.Start()
}

// RequestStop stops a running server.
func (s *Service) RequestStop() {
	if s.server.Status() == StatusRunning {
		s.server.Stop()
	}
}

// AddPreset stores a user-defined preset.
func (s *Service) AddPreset(p config.ServerPreset) {
	s.UpdateConfig(func(c *config.Config) {
		c.UserPresets = append(c.UserPresets, p)
	})
}

// UpdateInfo compares an installed version with the latest release.
type UpdateInfo struct {
	Current string
	Latest  string
	Newer   bool
	Release release.Release
}

// CheckUpdate looks up the latest release of repo and compares it with current.
func (s *Service) CheckUpdate(ctx context.Context, repo, current string) (UpdateInfo, error) {
	rel, err := s.releases.LatestRelease(ctx, repo)
	if err != nil {
		return UpdateInfo{Current: current}, err
	}
	return UpdateInfo{
		Current: current,
		Latest:  rel.TagName,
		Newer:   release.IsNewerVersion(current, rel.TagName),
		Release: rel,
	}, nil
}

// CheckRuntimeUpdate compares the installed runtime with its latest release.
func (s *Service) CheckRuntimeUpdate(ctx context.Context) (UpdateInfo, error) {
	return s.CheckUpdate(ctx, release.RuntimeRepo, installedVersion(s.gateway.Version(ctx)))
}

// InstallRelease downloads the installer for this platform and hands it to
// the operating system. It returns the installer path.
func (s *Service) InstallRelease(ctx context.Context, rel release.Release, onProgress func(int)) (string, error) {
	asset, err := release.PickAsset(rel, runtime.GOOS)
	if err != nil {
		return "", err
	}
	data, err := s.releases.Download(ctx, asset, onProgress)
	if err != nil {
		return "", err
	}
	path, err := release.WriteTemp(release.AssetFileName(asset), data)
	if err != nil {
		return "", fmt.Errorf("failed to save installer: %w", err)
	}
	if err := release.Launch(path); err != nil {
		return path, err
	}
	return path, nil
}

// UpdateRuntime installs the latest runtime and waits for the installed
// version to change.
func (s *Service) UpdateRuntime(ctx context.Context, onProgress func(int)) (string, error) {
	info, err := s.CheckRuntimeUpdate(ctx)
	if err != nil {
		return "", err
	}
	if _, err := s.InstallRelease(ctx, info.Release, onProgress); err != nil {
		return "", err
	}
	version, err := release.WaitForVersionChange(ctx,
		func(ctx context.Context) string { return installedVersion(s.gateway.Version(ctx)) },
		info.Current, release.InstallPollInterval, release.InstallPollAttempts)
	if err != nil {
		if errors.Is(err, release.ErrInstallTimeout) {
			s.logger.Warn("Runtime version did not change after running the installer")
		}
		return "", err
	}
	s.gateway.InvalidateCache()
	s.notifier.SendAlways("Runtime updated", fmt.Sprintf("FLM %s is installed.", version))
	return version, nil
}

// installedVersion maps the gateway's sentinels to "no version".
func installedVersion(v string) string {
	if v == flm.VersionUnknown || v == flm.VersionNotFound {
		return ""
	}
	return v
}
