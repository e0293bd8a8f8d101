package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/fsnotify/fsnotify"
)

// SaveDelay is how long the store waits after the last change before writing.
const SaveDelay = 500 * time.Millisecond

// Store holds the live configuration and persists changes to disk, coalescing
// bursts of updates into a single write.
type Store struct {
	path string

	mu          sync.RWMutex
	cfg         Config
	lastWritten []byte
	loadErr     error

	writeMu   sync.Mutex
	debounced func(f func())
}

// NewStore loads path (creating it with defaults if absent) and returns a store over it.
// An unreadable or malformed file is copied to path+".bak" and the store
// starts from the defaults, so the next save does not lose the original.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:      path,
		debounced: debounce.New(SaveDelay),
	}
	cfg, err := Load(path)
	if err != nil {
		logging.WarnLogger.Warn().Msgf("Using default config, %s could not be loaded: %v", path, err)
		if berr := backup(path); berr != nil {
			logging.WarnLogger.Warn().Msgf("Failed to back up config file: %v", berr)
		}
		s.loadErr = err
		// defaults, still honouring environment overrides
		if s.cfg, err = decode(newViper(path)); err != nil {
			s.cfg = DefaultConfig()
		}
		return s, nil
	}
	s.cfg = cfg
	if data, err := os.ReadFile(path); err == nil {
		s.lastWritten = data
	}
	return s, nil
}

// backup copies the file at path to path+".bak" if it exists.
func backup(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path+".bak", data, 0644)
}

func (s *Store) Path() string { return s.path }

// LoadError is the error that made the store start from the defaults, if any.
func (s *Store) LoadError() error { return s.loadErr }

// Get returns a copy of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.cfg)
}

// Update mutates the configuration and schedules a save.
func (s *Store) Update(fn func(*Config)) {
	s.mu.Lock()
	fn(&s.cfg)
	s.mu.Unlock()
	s.debounced(func() {
		if err := s.Flush(); err != nil {
			logging.ErrorLogger.Error().Msgf("Debounced config save failed: %v", err)
		}
	})
}

// Flush writes the current configuration immediately.
func (s *Store) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cfg := s.Get()
	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	s.mu.RLock()
	unchanged := bytes.Equal(data, s.lastWritten)
	s.mu.RUnlock()
	if unchanged {
		return nil
	}

	if err := Save(s.path, cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastWritten = data
	s.mu.Unlock()
	return nil
}

// Watch reloads the configuration when the file is changed by someone else
// and calls fn with the new value. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// editors often replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if cfg, changed := s.reload(); changed {
				fn(cfg)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnLogger.Warn().Msgf("Config watcher error: %v", err)
		}
	}
}

func (s *Store) reload() (Config, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return Config{}, false
	}

	s.mu.RLock()
	own := bytes.Equal(data, s.lastWritten)
	s.mu.RUnlock()
	if own {
		return Config{}, false
	}

	cfg, err := Load(s.path)
	if err != nil {
		logging.WarnLogger.Warn().Msgf("Ignoring unreadable config change: %v", err)
		return Config{}, false
	}

	s.mu.Lock()
	s.cfg = cfg
	s.lastWritten = data
	s.mu.Unlock()
	logging.InfoLogger.Info().Msgf("Config reloaded from %s", s.path)
	return clone(cfg), true
}

func clone(cfg Config) Config {
	if cfg.UserPresets != nil {
		cfg.UserPresets = append([]ServerPreset(nil), cfg.UserPresets...)
	}
	return cfg
}
