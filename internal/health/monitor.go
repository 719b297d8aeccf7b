// Package health observes the worker's status on behalf of a front-end and
// delivers transitions to subscribers without the display ever waiting on a
// backend round-trip.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/sdk/contracts"
)

const defaultInterval = time.Second

// StatusSource is the part of contracts.Backend the monitor polls.
type StatusSource interface {
	GetError(ctx context.Context) (contracts.WorkerStatus, error)
	AttemptRestart(ctx context.Context) (contracts.WorkerStatus, error)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the polling interval used by Run.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the monitor's logger.
func WithLogger(l contracts.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// Monitor polls a StatusSource and fans status transitions out to
// subscribers. Identical consecutive statuses are delivered once.
//
// Callbacks run synchronously on the goroutine that learned the status and
// must not call back into the Monitor.
type Monitor struct {
	source   StatusSource
	interval time.Duration
	logger   contracts.Logger

	// deliverMu orders deliveries so subscribers see transitions in the
	// order they were decided.
	deliverMu sync.Mutex

	mu       sync.Mutex
	status   contracts.WorkerStatus
	observed bool
	subs     map[uint64]func(contracts.WorkerStatus)
	nextSub  uint64
	// gen is bumped whenever a status is pushed rather than polled; a poll
	// issued under an older gen is dropped.
	gen        uint64
	restarting int
}

// New returns a monitor that has not observed anything yet.
func New(source StatusSource, opts ...Option) *Monitor {
	m := &Monitor{
		source:   source,
		interval: defaultInterval,
		logger:   logger.NewNopLogger(),
		subs:     make(map[uint64]func(contracts.WorkerStatus)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the last delivered status, Unknown before the first observation.
func (m *Monitor) Status() contracts.WorkerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscribe registers cb. If a status has already been observed cb receives
// it immediately. The returned func unregisters cb.
func (m *Monitor) Subscribe(cb func(contracts.WorkerStatus)) (cancel func()) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = cb
	status, observed := m.status, m.observed
	m.mu.Unlock()

	if observed {
		cb(status)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Run polls until ctx is done. The first poll happens immediately.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Refresh(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Refresh polls the source once and delivers the result. An unreachable
// backend is reported as Unknown. The result is dropped if a restart is in
// flight or a newer status was pushed while the poll was outstanding.
func (m *Monitor) Refresh(ctx context.Context) contracts.WorkerStatus {
	m.mu.Lock()
	if m.restarting > 0 {
		st := m.status
		m.mu.Unlock()
		return st
	}
	gen := m.gen
	m.mu.Unlock()

	st, err := m.source.GetError(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return m.Status()
		}
		m.logger.Debug("status poll failed", m.logger.Field().Error("error", err))
		st = contracts.Unknown()
	}
	m.deliver(st, gen, false)
	return m.Status()
}

// Observe pushes a status learned elsewhere, such as the result of a save.
func (m *Monitor) Observe(status contracts.WorkerStatus) {
	m.deliver(status, 0, true)
}

// RequestRestart immediately reports Unknown, asks the backend to restart
// the worker and then reports the outcome. It never retries on its own.
func (m *Monitor) RequestRestart(ctx context.Context) (contracts.WorkerStatus, error) {
	m.mu.Lock()
	m.restarting++
	m.mu.Unlock()

	m.deliver(contracts.Unknown(), 0, true)

	st, err := m.source.AttemptRestart(ctx)
	if err != nil {
		m.logger.Warn("restart request failed", m.logger.Field().Error("error", err))
		st = contracts.Unknown()
	}

	m.mu.Lock()
	m.restarting--
	m.mu.Unlock()

	m.deliver(st, 0, true)
	return st, err
}

func (m *Monitor) deliver(st contracts.WorkerStatus, gen uint64, pushed bool) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if pushed {
		m.gen++
	} else if gen != m.gen || m.restarting > 0 {
		m.mu.Unlock()
		return
	}
	if m.observed && m.status == st {
		m.mu.Unlock()
		return
	}
	prev := m.status
	m.status, m.observed = st, true
	subs := make([]func(contracts.WorkerStatus), 0, len(m.subs))
	for _, cb := range m.subs {
		subs = append(subs, cb)
	}
	m.mu.Unlock()

	m.logger.Info("worker status changed",
		m.logger.Field().String("from", prev.String()),
		m.logger.Field().String("to", st.String()))
	for _, cb := range subs {
		cb(st)
	}
}
