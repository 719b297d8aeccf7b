package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend answers GetSettings from a queue of responses so tests can hold
// individual calls open and release them in any order.
type fakeBackend struct {
	mu       sync.Mutex
	views    []chan contracts.SettingsView
	getErr   error
	saved    []contracts.SettingsUpdate
	saveGate chan struct{}
	setErr   error
	status   contracts.WorkerStatus
}

func (f *fakeBackend) queue() chan contracts.SettingsView {
	ch := make(chan contracts.SettingsView, 1)
	f.mu.Lock()
	f.views = append(f.views, ch)
	f.mu.Unlock()
	return ch
}

func (f *fakeBackend) GetSettings(ctx context.Context) (contracts.SettingsView, error) {
	f.mu.Lock()
	if f.getErr != nil {
		f.mu.Unlock()
		return contracts.SettingsView{}, f.getErr
	}
	ch := f.views[0]
	f.views = f.views[1:]
	f.mu.Unlock()
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return contracts.SettingsView{}, ctx.Err()
	}
}

func (f *fakeBackend) SetSettings(ctx context.Context, u contracts.SettingsUpdate) (contracts.WorkerStatus, error) {
	f.mu.Lock()
	gate := f.saveGate
	f.saved = append(f.saved, u)
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.setErr != nil {
		return contracts.Unknown(), f.setErr
	}
	return f.status, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type recordingSink struct {
	mu  sync.Mutex
	got []contracts.WorkerStatus
}

func (r *recordingSink) Observe(st contracts.WorkerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, st)
}

func stored() contracts.SettingsView {
	return contracts.SettingsView{
		Settings: contracts.Settings{SamplingIntervalMs: 80, Device: contracts.DeviceRef{Index: 1, Name: "Keystation"}, Channel: 4, Controller: 11},
		Devices:  contracts.DeviceList{"IAC Bus", "Keystation"},
	}
}

func ready(t *testing.T, b *fakeBackend, opts ...Option) *Session {
	t.Helper()
	b.queue() <- stored()
	s := New(b, opts...)
	_, _, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateReady, s.State())
	return s
}

func TestBegin_LoadsDraft(t *testing.T) {
	b := &fakeBackend{}
	b.queue() <- stored()
	s := New(b)
	assert.Equal(t, StateIdle, s.State())

	devices, settings, err := s.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stored().Devices, devices)
	assert.Equal(t, stored().Settings, settings)

	want := Draft{
		Raw: map[string]string{
			contracts.FieldSamplingInterval: "80",
			contracts.FieldDevice:           "1",
			contracts.FieldChannel:          "4",
			contracts.FieldController:       "11",
		},
		Errors:  map[string]string{},
		Devices: stored().Devices,
		Base:    stored().Settings,
	}
	if diff := cmp.Diff(want, s.Draft()); diff != "" {
		t.Errorf("draft mismatch (-want +got):\n%s", diff)
	}
}

func TestBegin_FallsBackToDefaults(t *testing.T) {
	b := &fakeBackend{getErr: &contracts.CommunicationError{Op: "get_settings", Err: errors.New("connection refused")}}
	s := New(b)

	devices, settings, err := s.Begin(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.Equal(t, contracts.DefaultSettings(), settings)
	assert.Equal(t, StateReady, s.State())
}

func TestBegin_StaleResponseIgnored(t *testing.T) {
	b := &fakeBackend{}
	slow, fast := b.queue(), b.queue()
	s := New(b)

	firstDone := make(chan error, 1)
	go func() {
		_, _, err := s.Begin(context.Background())
		firstDone <- err
	}()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.views) == 1
	}, time.Second, time.Millisecond)

	newer := stored()
	newer.Settings.Channel = 9
	fast <- newer
	_, settings, err := s.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, settings.Channel)

	older := stored()
	older.Settings.Channel = 2
	slow <- older
	assert.ErrorIs(t, <-firstDone, ErrSuperseded)
	assert.Equal(t, "9", s.Draft().Raw[contracts.FieldChannel])
}

func TestEdit_TracksValidity(t *testing.T) {
	s := ready(t, &fakeBackend{})

	s.Edit(contracts.FieldChannel, "")
	d := s.Draft()
	assert.Equal(t, "", d.Raw[contracts.FieldChannel])
	assert.False(t, d.Valid(contracts.FieldChannel))

	s.Edit(contracts.FieldChannel, "17")
	assert.Equal(t, "must be between 1 and 16", s.Draft().Errors[contracts.FieldChannel])

	s.Edit(contracts.FieldChannel, "16")
	assert.True(t, s.Draft().Valid(contracts.FieldChannel))

	s.Edit(contracts.FieldDevice, "2")
	assert.False(t, s.Draft().Valid(contracts.FieldDevice), "only two devices are enumerated")
}

func TestSave_NonNumericFailsLocally(t *testing.T) {
	b := &fakeBackend{status: contracts.Running()}
	s := ready(t, b)

	s.Edit(contracts.FieldSamplingInterval, "abc")
	_, err := s.Save(context.Background())

	ve, ok := contracts.IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, contracts.FieldSamplingInterval, ve.Field)
	assert.Zero(t, b.calls(), "backend must not be contacted")

	d := s.Draft()
	assert.Equal(t, "abc", d.Raw[contracts.FieldSamplingInterval])
	assert.False(t, d.Valid(contracts.FieldSamplingInterval))
	for _, f := range []string{contracts.FieldDevice, contracts.FieldChannel, contracts.FieldController} {
		assert.True(t, d.Valid(f), f)
	}
	assert.Equal(t, "4", d.Raw[contracts.FieldChannel])
	assert.Equal(t, StateReady, s.State())
}

func TestSave_Success(t *testing.T) {
	b := &fakeBackend{status: contracts.Failed("IAC Bus is busy")}
	sink := &recordingSink{}
	s := ready(t, b, WithStatusSink(sink))

	s.Edit(contracts.FieldDevice, " 0 ")
	s.Edit(contracts.FieldController, "74")
	st, err := s.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, contracts.Failed("IAC Bus is busy"), st)

	require.Len(t, b.saved, 1)
	u := b.saved[0]
	assert.Equal(t, 0, u.DeviceIndex)
	assert.Equal(t, 80, u.SampleTimeMs)
	assert.Equal(t, 4, *u.Channel)
	assert.Equal(t, 74, *u.ControllerNumber)

	d := s.Draft()
	assert.Equal(t, "0", d.Raw[contracts.FieldDevice], "draft mirrors the canonical value")
	assert.Equal(t, 74, d.Base.Controller)
	assert.Equal(t, []contracts.WorkerStatus{contracts.Failed("IAC Bus is busy")}, sink.got)
}

func TestSave_RejectionAnnotatesField(t *testing.T) {
	b := &fakeBackend{setErr: &contracts.ValidationError{Field: contracts.FieldController, Reason: "must be between 0 and 127"}}
	s := ready(t, b)
	s.Edit(contracts.FieldSamplingInterval, "120")

	_, err := s.Save(context.Background())
	_, ok := contracts.IsValidation(err)
	require.True(t, ok)

	d := s.Draft()
	assert.Equal(t, "must be between 0 and 127", d.Errors[contracts.FieldController])
	assert.Equal(t, "120", d.Raw[contracts.FieldSamplingInterval], "user input is kept")
	assert.Equal(t, StateReady, s.State())
}

func TestSave_CommunicationErrorReportsUnknown(t *testing.T) {
	b := &fakeBackend{setErr: &contracts.CommunicationError{Op: "set_settings", Err: errors.New("connection refused")}}
	sink := &recordingSink{}
	s := ready(t, b, WithStatusSink(sink))

	st, err := s.Save(context.Background())
	assert.True(t, contracts.IsCommunication(err))
	assert.Equal(t, contracts.Unknown(), st)
	assert.Equal(t, []contracts.WorkerStatus{contracts.Unknown()}, sink.got)
}

func TestSave_BeforeBegin(t *testing.T) {
	_, err := New(&fakeBackend{}).Save(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSave_EditsDuringSaveAreKept(t *testing.T) {
	gate := make(chan struct{})
	b := &fakeBackend{status: contracts.Running(), saveGate: gate}
	s := ready(t, b)

	s.Edit(contracts.FieldChannel, "5")
	done := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return b.calls() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateSaving, s.State())

	s.Edit(contracts.FieldController, "12")
	close(gate)
	require.NoError(t, <-done)

	d := s.Draft()
	assert.Equal(t, "5", d.Raw[contracts.FieldChannel])
	assert.Equal(t, "12", d.Raw[contracts.FieldController], "edit made while saving survives")
	assert.Equal(t, 11, d.Base.Controller)
}

func TestSave_LastRequestWins(t *testing.T) {
	gate := make(chan struct{})
	b := &fakeBackend{status: contracts.Running(), saveGate: gate}
	s := ready(t, b)

	s.Edit(contracts.FieldChannel, "5")
	first := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return b.calls() == 1 }, time.Second, time.Millisecond)

	s.Edit(contracts.FieldChannel, "6")
	second := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		second <- err
	}()
	require.Eventually(t, func() bool { return b.calls() == 2 }, time.Second, time.Millisecond)

	close(gate)
	errs := []error{<-first, <-second}
	assert.ErrorIs(t, errs[0], ErrSuperseded)
	assert.NoError(t, errs[1])
	assert.Equal(t, 6, s.Draft().Base.Channel)
}
