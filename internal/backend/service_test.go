package backend

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/leandrodaf/midicc/internal/store"
	"github.com/leandrodaf/midicc/internal/supervisor"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type devices []string

func (d devices) ListDevices() ([]contracts.DeviceInfo, error) {
	if len(d) == 0 {
		return nil, errors.New("no MIDI devices found")
	}
	out := make([]contracts.DeviceInfo, len(d))
	for i, n := range d {
		out[i] = contracts.DeviceInfo{Name: n}
	}
	return out, nil
}

type handle struct {
	done chan struct{}
	once sync.Once
}

func (h *handle) ID() string            { return "h" }
func (h *handle) Done() <-chan struct{} { return h.done }
func (h *handle) Err() error            { return nil }

func (h *handle) Stop(context.Context) error {
	h.once.Do(func() { close(h.done) })
	return nil
}

// launcher fails for any device whose name is listed in busy.
type launcher struct {
	busy map[string]bool
}

func (l launcher) Launch(_ context.Context, s contracts.Settings) (supervisor.Handle, error) {
	if l.busy[s.Device.Name] {
		return nil, errors.New(s.Device.Name + " is busy")
	}
	return &handle{done: make(chan struct{})}, nil
}

func newService(t *testing.T, devs devices, busy ...string) (*Service, *store.Store) {
	t.Helper()
	l := launcher{busy: map[string]bool{}}
	for _, b := range busy {
		l.busy[b] = true
	}
	sup := supervisor.New(l)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sup.Close(ctx)
	})
	st := store.New(filepath.Join(t.TempDir(), "settings.toml"), store.WithApplier(sup))
	return New(st, sup, devs), st
}

func intPtr(v int) *int { return &v }

func TestGetSettings_ReturnsSettingsAndDevices(t *testing.T) {
	svc, _ := newService(t, devices{"a", "b"})

	view, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contracts.DefaultSettings(), view.Settings)
	assert.Equal(t, contracts.DeviceList{"a", "b"}, view.Devices)
}

func TestGetSettings_NoDevicesIsEmptyList(t *testing.T) {
	svc, _ := newService(t, nil)

	view, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, view.Devices)
	assert.NotNil(t, view.Devices)
}

func TestGetError_UnknownBeforeAnyApply(t *testing.T) {
	svc, _ := newService(t, devices{"a"})

	st, err := svc.GetError(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contracts.Unknown(), st)
}

func TestSetSettings_StatusReflectsNewSettings(t *testing.T) {
	svc, _ := newService(t, devices{"good", "busy"}, "busy")
	ctx := context.Background()

	st, err := svc.SetSettings(ctx, contracts.SettingsUpdate{DeviceIndex: 0, SampleTimeMs: 50})
	require.NoError(t, err)
	assert.Equal(t, contracts.Running(), st)

	st, err = svc.SetSettings(ctx, contracts.SettingsUpdate{DeviceIndex: 1, SampleTimeMs: 50})
	require.NoError(t, err)
	assert.Equal(t, contracts.Failed("busy is busy"), st)

	observed, err := svc.GetError(ctx)
	require.NoError(t, err)
	assert.Equal(t, contracts.Failed("busy is busy"), observed)

	st, err = svc.SetSettings(ctx, contracts.SettingsUpdate{DeviceIndex: 0, SampleTimeMs: 50})
	require.NoError(t, err)
	assert.Equal(t, contracts.Running(), st)
}

func TestSetSettings_TwoFieldUpdateKeepsChannelAndController(t *testing.T) {
	svc, st := newService(t, devices{"a", "b"})
	ctx := context.Background()

	_, err := svc.SetSettings(ctx, contracts.SettingsUpdate{
		DeviceIndex: 0, SampleTimeMs: 30, Channel: intPtr(10), ControllerNumber: intPtr(74),
	})
	require.NoError(t, err)

	_, err = svc.SetSettings(ctx, contracts.SettingsUpdate{DeviceIndex: 1, SampleTimeMs: 60})
	require.NoError(t, err)

	got := st.Current()
	assert.Equal(t, 60, got.SamplingIntervalMs)
	assert.Equal(t, contracts.DeviceRef{Index: 1, Name: "b"}, got.Device)
	assert.Equal(t, 10, got.Channel)
	assert.Equal(t, 74, got.Controller)
}

func TestSetSettings_ValidationErrorLeavesWorkerAlone(t *testing.T) {
	svc, st := newService(t, devices{"a"})
	ctx := context.Background()

	_, err := svc.SetSettings(ctx, contracts.SettingsUpdate{DeviceIndex: 0, SampleTimeMs: 50})
	require.NoError(t, err)
	before := st.Current()

	_, err = svc.SetSettings(ctx, contracts.SettingsUpdate{DeviceIndex: 0, SampleTimeMs: 50, Channel: intPtr(17)})
	ve, ok := contracts.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, contracts.FieldChannel, ve.Field)
	assert.Equal(t, before, st.Current())

	status, _ := svc.GetError(ctx)
	assert.Equal(t, contracts.Running(), status)
}

func TestAttemptRestart(t *testing.T) {
	svc, _ := newService(t, devices{"a"})
	ctx := context.Background()

	st, err := svc.AttemptRestart(ctx)
	require.NoError(t, err)
	assert.Equal(t, contracts.Failed(supervisor.ErrNoSettings.Error()), st)

	_, err = svc.SetSettings(ctx, contracts.SettingsUpdate{DeviceIndex: 0, SampleTimeMs: 50})
	require.NoError(t, err)
	st, err = svc.AttemptRestart(ctx)
	require.NoError(t, err)
	assert.Equal(t, contracts.Running(), st)
}
