package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leandrodaf/midicc/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu     sync.Mutex
	values []uint8
}

func (s *recordingSink) Apply(_ context.Context, v uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, v)
	return nil
}

func (s *recordingSink) snapshot() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint8(nil), s.values...)
}

func testSettings() contracts.Settings {
	return contracts.Settings{SamplingIntervalMs: 5, Device: contracts.DeviceRef{Index: 1}, Channel: 2, Controller: 7}
}

func TestStart_ResolvesIndex(t *testing.T) {
	client := newFakeClient("a", "b")
	w := New(client, testSettings(), &recordingSink{})

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, 1, client.selected)
	assert.Equal(t, "b", w.DeviceName())
	require.NoError(t, w.Close())
}

func TestStart_NamePreferredOverIndex(t *testing.T) {
	client := newFakeClient("a", "b", "c")
	s := testSettings()
	s.Device = contracts.DeviceRef{Index: 0, Name: "c"}
	w := New(client, s, &recordingSink{})

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, 2, client.selected)
	require.NoError(t, w.Close())
}

func TestStart_Failures(t *testing.T) {
	t.Run("index out of range", func(t *testing.T) {
		w := New(newFakeClient("a"), testSettings(), &recordingSink{})
		err := w.Start(context.Background())
		assert.True(t, errors.Is(err, ErrDeviceNotFound))
	})

	t.Run("named device missing", func(t *testing.T) {
		s := testSettings()
		s.Device.Name = "Launchkey"
		w := New(newFakeClient("a", "b"), s, &recordingSink{})
		err := w.Start(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDeviceDisconnected))
		assert.Equal(t, "Launchkey disconnected", err.Error())
	})

	t.Run("listing fails", func(t *testing.T) {
		client := newFakeClient()
		client.listErr = errors.New("no MIDI devices found")
		w := New(client, testSettings(), &recordingSink{})
		err := w.Start(context.Background())
		assert.ErrorContains(t, err, "no MIDI devices found")
	})
}

func TestRun_RequiresStart(t *testing.T) {
	w := New(newFakeClient("a"), testSettings(), &recordingSink{})
	assert.ErrorIs(t, w.Run(context.Background()), ErrNotStarted)
}

func TestRun_SamplesMatchingControlChange(t *testing.T) {
	client := newFakeClient("a", "b")
	sink := &recordingSink{}
	w := New(client, testSettings(), sink, WithProbeEvery(0))
	require.NoError(t, w.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	client.send(cc(1, 7, 99)) // wrong channel
	client.send(cc(2, 8, 99)) // wrong controller
	client.send(cc(2, 7, 64))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond) // unchanged value is not re-applied
	client.send(cc(2, 7, 127))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []uint8{64, 127}, sink.snapshot())
	assert.Equal(t, 1, client.stopCount())
}

func TestRun_ReportsDisconnect(t *testing.T) {
	client := newFakeClient("a", "Launchkey")
	w := New(client, testSettings(), &recordingSink{}, WithProbeEvery(1))
	require.NoError(t, w.Start(context.Background()))

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	client.setDevices("a")

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDeviceDisconnected))
		assert.Equal(t, "Launchkey disconnected", err.Error())
	case <-time.After(time.Second):
		t.Fatal("worker did not detect the disconnect")
	}
	assert.Equal(t, 1, client.stopCount())
}

func TestVolumeLevel(t *testing.T) {
	tests := []struct {
		value uint8
		want  float64
	}{
		{0, 0},
		{64, 3.5},
		{127, 7},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, VolumeLevel(tt.value), 1e-9, "value %d", tt.value)
	}
}

func TestVolumeSink_CallsHook(t *testing.T) {
	var got float64
	sink := &VolumeSink{SetVolume: func(_ context.Context, level float64) error {
		got = level
		return nil
	}}
	require.NoError(t, sink.Apply(context.Background(), 127))
	assert.Equal(t, 7.0, got)
}
