// Package supervisor owns the lifecycle of the single background worker
// instance: it starts it with applied settings, observes it exiting, and
// restarts it on request. Failures are reported, never retried automatically.
package supervisor

import (
	"context"
	"errors"
	"sync"

	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// ErrNoSettings is the Failed diagnostic of a restart before any settings were applied.
var ErrNoSettings = errors.New("no settings applied")

// ErrClosed is the Failed diagnostic after Close.
var ErrClosed = errors.New("supervisor closed")

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the supervisor's logger.
func WithLogger(l contracts.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// Supervisor serializes every lifecycle transition behind one mutex and
// publishes status through a separate read lock so CurrentStatus never waits
// on a start in progress.
type Supervisor struct {
	launcher Launcher
	logger   contracts.Logger

	lifecycle sync.Mutex
	current   Handle
	last      *contracts.Settings
	closed    bool

	mu     sync.RWMutex
	status contracts.WorkerStatus
	subs   map[int]func(contracts.WorkerStatus)
	nextID int

	restarts singleflight.Group
	watchers sync.WaitGroup
}

// New creates a supervisor that starts workers through launcher.
func New(launcher Launcher, opts ...Option) *Supervisor {
	s := &Supervisor{
		launcher: launcher,
		logger:   logger.NewNopLogger(),
		status:   contracts.Unknown(),
		subs:     make(map[int]func(contracts.WorkerStatus)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentStatus returns the latest known status; Unknown before anything was observed.
func (s *Supervisor) CurrentStatus() contracts.WorkerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastApplied returns the settings the current (or next restarted) worker uses.
func (s *Supervisor) LastApplied() (contracts.Settings, bool) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.last == nil {
		return contracts.Settings{}, false
	}
	return *s.last, true
}

// Subscribe registers fn for every status transition. fn runs on the
// goroutine that caused the transition and must not block.
func (s *Supervisor) Subscribe(fn func(contracts.WorkerStatus)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// ApplySettings makes settings the active configuration. A running worker is
// replaced by a fresh instance: device handles are not assumed to survive a
// reconfiguration.
func (s *Supervisor) ApplySettings(ctx context.Context, settings contracts.Settings) contracts.WorkerStatus {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed {
		return s.setStatus(contracts.Failed(ErrClosed.Error()))
	}
	applied := settings
	s.last = &applied
	if err := s.stopLocked(ctx); err != nil {
		s.logger.Warn("stopping worker for new settings", s.logger.Field().Error("error", err))
	}
	return s.startLocked(ctx, applied)
}

// Restart stops the worker if it runs, clears any failure and starts it again
// with the last applied settings. Callers arriving while a restart is in
// flight share its outcome instead of starting another.
func (s *Supervisor) Restart(ctx context.Context) contracts.WorkerStatus {
	v, _, shared := s.restarts.Do("restart", func() (interface{}, error) {
		return s.restart(context.WithoutCancel(ctx)), nil
	})
	if shared {
		s.logger.Debug("restart collapsed into in-flight attempt")
	}
	return v.(contracts.WorkerStatus)
}

func (s *Supervisor) restart(ctx context.Context) contracts.WorkerStatus {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.closed {
		return s.setStatus(contracts.Failed(ErrClosed.Error()))
	}
	if err := s.stopLocked(ctx); err != nil {
		s.logger.Warn("stopping worker for restart", s.logger.Field().Error("error", err))
	}
	s.setStatus(contracts.Unknown())
	if s.last == nil {
		return s.setStatus(contracts.Failed(ErrNoSettings.Error()))
	}
	s.logger.Info("restarting worker")
	return s.startLocked(ctx, *s.last)
}

// Close stops the worker and waits for its watcher. Later applies and
// restarts report ErrClosed.
func (s *Supervisor) Close(ctx context.Context) error {
	s.lifecycle.Lock()
	s.closed = true
	err := s.stopLocked(ctx)
	s.lifecycle.Unlock()

	done := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
	}
	return err
}

func (s *Supervisor) startLocked(ctx context.Context, settings contracts.Settings) contracts.WorkerStatus {
	h, err := s.launcher.Launch(ctx, settings)
	if err != nil {
		startErr := &contracts.WorkerStartError{Err: err}
		s.logger.Error("worker failed to start", s.logger.Field().Error("error", startErr))
		return s.setStatus(contracts.Failed(startErr.Error()))
	}

	s.current = h
	s.logger.Info("worker running",
		s.logger.Field().String("instance", h.ID()),
		s.logger.Field().Int("channel", settings.Channel),
		s.logger.Field().Int("cc", settings.Controller))
	s.watchers.Add(1)
	go s.watch(h)
	return s.setStatus(contracts.Running())
}

func (s *Supervisor) stopLocked(ctx context.Context) error {
	h := s.current
	if h == nil {
		return nil
	}
	s.current = nil
	s.logger.Debug("stopping worker", s.logger.Field().String("instance", h.ID()))
	return h.Stop(ctx)
}

// watch turns an unrequested exit of the current instance into Failed.
// Exits of instances that were already replaced or stopped are ignored.
func (s *Supervisor) watch(h Handle) {
	defer s.watchers.Done()
	<-h.Done()

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.current != h {
		return
	}
	s.current = nil

	reason := "worker exited unexpectedly"
	if err := h.Err(); err != nil {
		reason = err.Error()
	}
	s.logger.Error("worker exited",
		s.logger.Field().String("instance", h.ID()),
		s.logger.Field().String("reason", reason))
	s.setStatus(contracts.Failed(reason))
}

func (s *Supervisor) setStatus(st contracts.WorkerStatus) contracts.WorkerStatus {
	s.mu.Lock()
	changed := s.status != st
	s.status = st
	var subs []func(contracts.WorkerStatus)
	if changed {
		subs = make([]func(contracts.WorkerStatus), 0, len(s.subs))
		for _, fn := range s.subs {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
	return st
}
