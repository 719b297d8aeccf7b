package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leandrodaf/midicc/internal/worker"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMIDI struct {
	mu      sync.Mutex
	devices []contracts.DeviceInfo
}

func (c *stubMIDI) set(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = nil
	for _, n := range names {
		c.devices = append(c.devices, contracts.DeviceInfo{Name: n})
	}
}

func (c *stubMIDI) ListDevices() ([]contracts.DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.devices) == 0 {
		return nil, errors.New("no MIDI devices found")
	}
	return append([]contracts.DeviceInfo(nil), c.devices...), nil
}

func (c *stubMIDI) SelectDevice(int) error           { return nil }
func (c *stubMIDI) StartCapture(chan contracts.MIDI) {}
func (c *stubMIDI) Stop() error                      { return nil }

func inProcess(client *stubMIDI) *InProcessLauncher {
	return &InProcessLauncher{
		NewClient:  func() (contracts.ClientMIDI, error) { return client, nil },
		Sink:       worker.SinkFunc(func(context.Context, uint8) error { return nil }),
		ProbeEvery: 1,
	}
}

func fastSettings() contracts.Settings {
	s := contracts.DefaultSettings()
	s.SamplingIntervalMs = 5
	return s
}

func TestInProcessLauncher_StartFailure(t *testing.T) {
	client := &stubMIDI{}
	_, err := inProcess(client).Launch(context.Background(), fastSettings())
	assert.ErrorContains(t, err, "no MIDI devices found")
}

func TestInProcessLauncher_StopIsClean(t *testing.T) {
	client := &stubMIDI{}
	client.set("Launchkey")

	h, err := inProcess(client).Launch(context.Background(), fastSettings())
	require.NoError(t, err)
	require.NotEmpty(t, h.ID())

	require.NoError(t, h.Stop(context.Background()))
	<-h.Done()
	assert.NoError(t, h.Err())
}

func TestSupervisor_DisconnectThenRestartReportsSameDiagnostic(t *testing.T) {
	client := &stubMIDI{}
	client.set("Launchkey")
	s := New(inProcess(client))
	defer closeSupervisor(t, s)

	settings := fastSettings()
	settings.Device.Name = "Launchkey"
	require.Equal(t, contracts.Running(), s.ApplySettings(context.Background(), settings))

	client.set("Other")
	require.Eventually(t, func() bool {
		return s.CurrentStatus() == contracts.Failed("Launchkey disconnected")
	}, time.Second, time.Millisecond)

	assert.Equal(t, contracts.Failed("Launchkey disconnected"), s.Restart(context.Background()))
}
