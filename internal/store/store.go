// Package store persists the worker settings as a TOML file and is the only
// writer of the canonical Settings. Readers get a consistent snapshot; a
// successful save is applied to the worker before Save returns.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/sdk/contracts"
)

const lockRetryDelay = 50 * time.Millisecond

// Applier receives every accepted configuration.
type Applier interface {
	ApplySettings(ctx context.Context, s contracts.Settings) contracts.WorkerStatus
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l contracts.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithApplier sets the component notified after each accepted save.
func WithApplier(a Applier) Option {
	return func(s *Store) { s.applier = a }
}

// Store is the settings store backed by a single TOML file.
type Store struct {
	path     string
	lockPath string
	logger   contracts.Logger
	applier  Applier

	current atomic.Pointer[contracts.Settings]
	saveMu  sync.Mutex
}

// New creates a store for path. Until Load is called, Current returns defaults.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:     filepath.Clean(path),
		lockPath: filepath.Clean(path) + ".lock",
		logger:   logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	defaults := contracts.DefaultSettings()
	s.current.Store(&defaults)
	return s
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Current returns the in-memory snapshot without touching disk.
func (s *Store) Current() contracts.Settings {
	return *s.current.Load()
}

// Load reads the settings file. A missing file yields defaults; an unreadable,
// corrupt or invalid one yields defaults and a warning. Load never fails.
func (s *Store) Load(ctx context.Context) contracts.Settings {
	// Held across read and swap so a Save cannot land between them.
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	settings, err := s.read(ctx)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("settings unreadable, using defaults",
				s.logger.Field().String("path", s.path),
				s.logger.Field().Error("error", fmt.Errorf("%w: %v", contracts.ErrLoad, err)))
		}
		settings = contracts.DefaultSettings()
	}
	s.current.Store(&settings)
	return settings
}

// Save validates candidate as a whole, persists it atomically and applies it.
// An invalid candidate returns a *contracts.ValidationError and nothing is written.
func (s *Store) Save(ctx context.Context, candidate contracts.Settings) error {
	if err := candidate.Validate(); err != nil {
		return err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.persist(ctx, candidate); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	s.current.Store(&candidate)
	s.logger.Info("settings saved",
		s.logger.Field().Int("device", candidate.Device.Index),
		s.logger.Field().Int("interval_ms", candidate.SamplingIntervalMs),
		s.logger.Field().Int("channel", candidate.Channel),
		s.logger.Field().Int("cc", candidate.Controller))

	if s.applier != nil {
		s.applier.ApplySettings(ctx, candidate)
	}
	return nil
}

func (s *Store) read(ctx context.Context) (contracts.Settings, error) {
	if _, err := os.Stat(s.path); err != nil {
		return contracts.Settings{}, err
	}
	// A fresh Flock per operation: flock(2) locks held through different open
	// files conflict even within one process.
	lock := flock.New(s.lockPath)
	locked, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return contracts.Settings{}, fmt.Errorf("acquiring settings lock: %w", err)
	}
	if locked {
		defer func() { _ = lock.Unlock() }()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return contracts.Settings{}, err
	}
	return decode(data)
}

// decode starts from defaults so files written before channel and controller
// existed still load.
func decode(data []byte) (contracts.Settings, error) {
	settings := contracts.DefaultSettings()
	if _, err := toml.Decode(string(data), &settings); err != nil {
		return contracts.Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return contracts.Settings{}, err
	}
	return settings, nil
}

func (s *Store) persist(ctx context.Context, settings contracts.Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	lock := flock.New(s.lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquiring settings lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("settings file is locked")
	}
	defer func() { _ = lock.Unlock() }()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(settings); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.toml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
