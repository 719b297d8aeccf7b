// Package backend implements the configuration command surface
// (get_settings, set_settings, get_error, attempt_restart) on top of the
// settings store and the worker supervisor.
package backend

import (
	"context"
	"sync"

	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"golang.org/x/sync/errgroup"
)

// SettingsStore is the subset of *store.Store the service needs.
type SettingsStore interface {
	Load(ctx context.Context) contracts.Settings
	Current() contracts.Settings
	Save(ctx context.Context, s contracts.Settings) error
}

// Supervisor is the subset of *supervisor.Supervisor the service needs.
type Supervisor interface {
	CurrentStatus() contracts.WorkerStatus
	Restart(ctx context.Context) contracts.WorkerStatus
}

// DeviceLister enumerates MIDI input devices.
type DeviceLister interface {
	ListDevices() ([]contracts.DeviceInfo, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l contracts.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service implements contracts.Backend in-process.
type Service struct {
	store      SettingsStore
	supervisor Supervisor
	devices    DeviceLister
	logger     contracts.Logger

	// setMu keeps "save, apply, read status" atomic with respect to other updates.
	setMu sync.Mutex
}

var _ contracts.Backend = (*Service)(nil)

// New builds the service. The store is expected to apply accepted settings to
// the supervisor (store.WithApplier).
func New(store SettingsStore, supervisor Supervisor, devices DeviceLister, opts ...Option) *Service {
	s := &Service{
		store:      store,
		supervisor: supervisor,
		devices:    devices,
		logger:     logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSettings reads the settings file and enumerates devices concurrently.
// An enumeration failure (typically no devices attached) yields an empty list.
func (s *Service) GetSettings(ctx context.Context) (contracts.SettingsView, error) {
	var view contracts.SettingsView
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		view.Devices = s.listDevices()
		return nil
	})
	g.Go(func() error {
		view.Settings = s.store.Load(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return contracts.SettingsView{}, err
	}
	return view, nil
}

// Devices returns the current device snapshot.
func (s *Service) Devices(ctx context.Context) (contracts.DeviceList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.listDevices(), nil
}

// SetSettings merges update over the current settings and saves. Saving
// applies to the supervisor synchronously, so the returned status belongs to
// the worker started with these settings.
func (s *Service) SetSettings(ctx context.Context, update contracts.SettingsUpdate) (contracts.WorkerStatus, error) {
	s.setMu.Lock()
	defer s.setMu.Unlock()

	next := update.MergeInto(s.store.Current())
	if next.Device.Name == "" {
		devices := s.listDevices()
		if next.Device.Index >= 0 && next.Device.Index < len(devices) {
			next.Device.Name = devices[next.Device.Index]
		}
	}

	if err := s.store.Save(ctx, next); err != nil {
		if ve, ok := contracts.IsValidation(err); ok {
			s.logger.Info("settings rejected",
				s.logger.Field().String("field", ve.Field),
				s.logger.Field().String("reason", ve.Reason))
		}
		return contracts.Unknown(), err
	}
	return s.supervisor.CurrentStatus(), nil
}

// GetError returns the supervisor's current status.
func (s *Service) GetError(ctx context.Context) (contracts.WorkerStatus, error) {
	return s.supervisor.CurrentStatus(), nil
}

// AttemptRestart restarts the worker with the last applied settings.
func (s *Service) AttemptRestart(ctx context.Context) (contracts.WorkerStatus, error) {
	return s.supervisor.Restart(ctx), nil
}

func (s *Service) listDevices() contracts.DeviceList {
	devices, err := s.devices.ListDevices()
	if err != nil {
		s.logger.Debug("device enumeration failed", s.logger.Field().Error("error", err))
		return contracts.DeviceList{}
	}
	return contracts.DeviceNames(devices)
}
