package supervisor

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/internal/worker"
	"github.com/leandrodaf/midicc/sdk/contracts"
)

// Handle is the lifecycle handle of one running worker instance.
type Handle interface {
	// ID identifies the instance in logs.
	ID() string
	// Done is closed when the instance has exited, for whatever reason.
	Done() <-chan struct{}
	// Err is the exit cause. Only valid once Done is closed; nil after Stop.
	Err() error
	// Stop asks the instance to exit and waits for it, bounded by ctx.
	Stop(ctx context.Context) error
}

// Launcher starts worker instances. Launch returns only after the instance
// has either come up (device opened) or failed to.
type Launcher interface {
	Launch(ctx context.Context, settings contracts.Settings) (Handle, error)
}

// InProcessLauncher runs each worker instance in a goroutine of the current
// process with a freshly opened MIDI client.
type InProcessLauncher struct {
	NewClient  func() (contracts.ClientMIDI, error)
	Sink       worker.Sink
	Logger     contracts.Logger
	ProbeEvery int
}

// Launch opens a client, starts a worker on it and runs it in the background.
func (l *InProcessLauncher) Launch(ctx context.Context, settings contracts.Settings) (Handle, error) {
	log := l.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	client, err := l.NewClient()
	if err != nil {
		return nil, err
	}

	opts := []worker.Option{worker.WithLogger(log)}
	if l.ProbeEvery > 0 {
		opts = append(opts, worker.WithProbeEvery(l.ProbeEvery))
	}
	w := worker.New(client, settings, l.Sink, opts...)
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &goroutineHandle{
		id:     uuid.NewString(),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(h.done)
		h.err = w.Run(runCtx)
	}()
	return h, nil
}

type goroutineHandle struct {
	id     string
	done   chan struct{}
	err    error
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

func (h *goroutineHandle) ID() string            { return h.id }
func (h *goroutineHandle) Done() <-chan struct{} { return h.done }

func (h *goroutineHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	return h.err
}

func (h *goroutineHandle) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
