// Package session tracks a configuration client's view of the settings: the
// device snapshot, the user's draft and the load/save round-trips that keep
// it in sync with the backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSuperseded is returned by a Begin or Save whose result was discarded
	// because a newer Begin or Save was issued while it was in flight.
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrNotReady is returned by Save before the first Begin has completed.
	ErrNotReady = errors.New("session is not ready")
)

// State is the session's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSaving:
		return "saving"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Backend is the part of contracts.Backend the session talks to.
type Backend interface {
	GetSettings(ctx context.Context) (contracts.SettingsView, error)
	SetSettings(ctx context.Context, update contracts.SettingsUpdate) (contracts.WorkerStatus, error)
}

// DeviceSource is optionally implemented by a Backend that can enumerate
// devices on its own; Begin then fetches both concurrently.
type DeviceSource interface {
	Devices(ctx context.Context) (contracts.DeviceList, error)
}

// StatusSink receives worker statuses learned from saves.
type StatusSink interface {
	Observe(status contracts.WorkerStatus)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger.
func WithLogger(l contracts.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithStatusSink forwards the status returned by each save to sink.
func WithStatusSink(sink StatusSink) Option {
	return func(s *Session) { s.sink = sink }
}

// Session is safe for concurrent use. Its lock is never held across backend
// calls, so Edit stays responsive while a load or save is in flight.
type Session struct {
	backend Backend
	sink    StatusSink
	logger  contracts.Logger

	mu    sync.Mutex
	state State
	draft Draft
	// gen is bumped by every Begin and Save; only the latest may complete.
	gen uint64
	// editSeq[field] is the value of seq at the field's last edit.
	seq     uint64
	editSeq map[string]uint64
}

// New returns an idle session.
func New(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend: backend,
		logger:  logger.NewNopLogger(),
		draft:   newDraft(contracts.DefaultSettings(), nil),
		editSeq: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Draft returns a copy of the current draft.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.clone()
}

// Begin loads the current settings and device list and resets the draft to
// them. If the settings cannot be fetched the draft starts from defaults with
// an empty device list. A Begin overtaken by a newer Begin or Save returns
// ErrSuperseded and leaves the draft alone.
func (s *Session) Begin(ctx context.Context) (contracts.DeviceList, contracts.Settings, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = StateLoading
	s.mu.Unlock()

	view := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil, contracts.Settings{}, ErrSuperseded
	}
	s.draft = newDraft(view.Settings, view.Devices)
	s.editSeq = make(map[string]uint64)
	s.state = StateReady
	return append(contracts.DeviceList(nil), view.Devices...), view.Settings, nil
}

func (s *Session) fetch(ctx context.Context) contracts.SettingsView {
	var (
		view       contracts.SettingsView
		settingErr error
		devices    contracts.DeviceList
		devicesOK  bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		view, settingErr = s.backend.GetSettings(gctx)
		return nil
	})
	if ds, ok := s.backend.(DeviceSource); ok {
		g.Go(func() error {
			list, err := ds.Devices(gctx)
			if err != nil {
				s.logger.Debug("device enumeration failed", s.logger.Field().Error("error", err))
				return nil
			}
			devices, devicesOK = list, true
			return nil
		})
	}
	_ = g.Wait()

	if settingErr != nil {
		s.logger.Warn("loading settings failed, using defaults", s.logger.Field().Error("error", settingErr))
		view = contracts.SettingsView{Settings: contracts.DefaultSettings()}
	}
	if devicesOK {
		view.Devices = devices
	}
	if view.Devices == nil {
		view.Devices = contracts.DeviceList{}
	}
	return view
}

// Edit records raw as the text of field and recomputes its validity. It never
// rejects input.
func (s *Session) Edit(field, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft.Raw[field] = raw
	s.seq++
	s.editSeq[field] = s.seq
	if _, err := parseField(field, raw, s.draft.Devices); err != nil {
		s.draft.Errors[field] = err.Reason
	} else {
		delete(s.draft.Errors, field)
	}
}

// Save parses the draft and submits it. A field that does not parse fails
// locally with a *contracts.ValidationError and the backend is not called.
// On success the draft mirrors the saved settings, except for fields edited
// while the save was in flight, and the returned status is the worker's
// status under the new settings. A backend rejection annotates the offending
// field and keeps the draft.
func (s *Session) Save(ctx context.Context) (contracts.WorkerStatus, error) {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateLoading {
		s.mu.Unlock()
		return contracts.Unknown(), ErrNotReady
	}
	candidate, err := s.draft.parse()
	if err != nil {
		ve, _ := contracts.IsValidation(err)
		s.draft.Errors[ve.Field] = ve.Reason
		s.mu.Unlock()
		return contracts.Unknown(), err
	}
	s.gen++
	gen := s.gen
	startSeq := s.seq
	s.state = StateSaving
	s.mu.Unlock()

	status, err := s.backend.SetSettings(ctx, contracts.UpdateFor(candidate))

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return status, ErrSuperseded
	}
	s.state = StateReady
	if err != nil {
		if ve, ok := contracts.IsValidation(err); ok {
			s.draft.Errors[ve.Field] = ve.Reason
		}
		s.mu.Unlock()
		s.logger.Info("saving settings failed", s.logger.Field().Error("error", err))
		if contracts.IsCommunication(err) {
			s.observe(contracts.Unknown())
		}
		return contracts.Unknown(), err
	}

	next := newDraft(candidate, s.draft.Devices)
	for field, at := range s.editSeq {
		if at > startSeq {
			next.Raw[field] = s.draft.Raw[field]
			if reason, bad := s.draft.Errors[field]; bad {
				next.Errors[field] = reason
			}
		}
	}
	s.draft = next
	s.mu.Unlock()

	s.logger.Debug("settings saved", s.logger.Field().String("status", status.String()))
	s.observe(status)
	return status, nil
}

func (s *Session) observe(status contracts.WorkerStatus) {
	if s.sink != nil {
		s.sink.Observe(status)
	}
}
