// Package worker implements the MIDI-to-control-change loop: it listens for
// control change messages on one channel and controller, samples the latest
// value on a fixed interval and hands it to a Sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"go.uber.org/multierr"
)

var (
	// ErrDeviceNotFound is returned by Start when the configured device index is not enumerated.
	ErrDeviceNotFound = errors.New("MIDI device not found")
	// ErrDeviceDisconnected is returned when the selected device is no longer enumerated.
	ErrDeviceDisconnected = errors.New("disconnected")
	// ErrNotStarted is returned by Run when Start has not succeeded.
	ErrNotStarted = errors.New("worker not started")
)

const (
	defaultProbeEvery = 10
	defaultBufferSize = 100
)

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker's logger.
func WithLogger(l contracts.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithProbeEvery sets how many sampling ticks pass between device presence
// checks. Zero disables probing.
func WithProbeEvery(n int) Option {
	return func(w *Worker) { w.probeEvery = n }
}

// WithBufferSize sets the capacity of the event channel handed to the MIDI client.
func WithBufferSize(n int) Option {
	return func(w *Worker) { w.bufferSize = n }
}

// Worker is a single run of the MIDI-to-CC loop with fixed settings.
type Worker struct {
	client     contracts.ClientMIDI
	settings   contracts.Settings
	sink       Sink
	logger     contracts.Logger
	probeEvery int
	bufferSize int

	events     chan contracts.MIDI
	deviceName string
	closeOnce  sync.Once
	closeErr   error
}

// New builds a worker. The client is owned by the worker and stopped by Close.
func New(client contracts.ClientMIDI, settings contracts.Settings, sink Sink, opts ...Option) *Worker {
	w := &Worker{
		client:     client,
		settings:   settings,
		sink:       sink,
		logger:     logger.NewNopLogger(),
		probeEvery: defaultProbeEvery,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// DeviceName is the name of the device selected by Start.
func (w *Worker) DeviceName() string { return w.deviceName }

// Start resolves and opens the configured device and begins capture.
func (w *Worker) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	devices, err := w.client.ListDevices()
	if err != nil && w.settings.Device.Name == "" {
		return fmt.Errorf("listing MIDI devices: %w", err)
	}

	index, err := resolveDevice(devices, w.settings.Device)
	if err != nil {
		return err
	}
	if err := w.client.SelectDevice(index); err != nil {
		return err
	}

	w.deviceName = devices[index].Name
	w.events = make(chan contracts.MIDI, w.bufferSize)
	w.client.StartCapture(w.events)

	w.logger.Info("worker capturing",
		w.logger.Field().String("device", w.deviceName),
		w.logger.Field().Int("channel", w.settings.Channel),
		w.logger.Field().Int("cc", w.settings.Controller),
		w.logger.Field().Duration("interval", w.settings.SamplingInterval()))
	return nil
}

// resolveDevice prefers the recorded device name. A recorded name that is no
// longer enumerated is reported as a disconnect rather than silently falling
// back to whatever now sits at the same index.
func resolveDevice(devices []contracts.DeviceInfo, ref contracts.DeviceRef) (int, error) {
	if ref.Name != "" {
		for i, d := range devices {
			if d.Name == ref.Name {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%s %w", ref.Name, ErrDeviceDisconnected)
	}
	if ref.Index < 0 || ref.Index >= len(devices) {
		return 0, fmt.Errorf("%w: index %d (%d available)", ErrDeviceNotFound, ref.Index, len(devices))
	}
	return ref.Index, nil
}

// Run samples until ctx is cancelled or the device disappears. It returns nil
// on cancellation and an error wrapping ErrDeviceDisconnected on disconnect.
// The MIDI client is released before Run returns.
func (w *Worker) Run(ctx context.Context) (err error) {
	if w.events == nil {
		return ErrNotStarted
	}
	defer func() {
		err = multierr.Append(err, w.Close())
	}()

	ticker := time.NewTicker(w.settings.SamplingInterval())
	defer ticker.Stop()

	var (
		latest, applied uint8
		have, sent      bool
		ticks           int
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-w.events:
			if ev.IsControlChange(w.settings.Channel, w.settings.Controller) {
				latest, have = ev.Data2, true
			}
		case <-ticker.C:
			if have && (!sent || latest != applied) {
				if err := w.sink.Apply(ctx, latest); err != nil {
					w.logger.Warn("sink rejected sample", w.logger.Field().Error("error", err))
				} else {
					applied, sent = latest, true
				}
			}
			ticks++
			if w.probeEvery > 0 && ticks%w.probeEvery == 0 {
				if err := w.probe(); err != nil {
					return err
				}
			}
		}
	}
}

func (w *Worker) probe() error {
	devices, err := w.client.ListDevices()
	if err != nil {
		w.logger.Debug("device probe failed", w.logger.Field().Error("error", err))
	}
	for _, d := range devices {
		if d.Name == w.deviceName {
			return nil
		}
	}
	return fmt.Errorf("%s %w", w.deviceName, ErrDeviceDisconnected)
}

// Close releases the MIDI client and, if the sink is an io.Closer, the sink.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.client.Stop()
		if c, ok := w.sink.(io.Closer); ok {
			w.closeErr = multierr.Append(w.closeErr, c.Close())
		}
	})
	return w.closeErr
}
