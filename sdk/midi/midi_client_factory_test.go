package midi

import (
	"errors"
	"testing"

	"github.com/leandrodaf/midicc/internal/logger"
	"github.com/leandrodaf/midicc/sdk/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientFor_UnsupportedOS(t *testing.T) {
	opts := &contracts.ClientOptions{Logger: logger.NewNopLogger()}
	_, err := newClientFor("plan9", opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedOS))
	assert.Contains(t, err.Error(), "plan9")
}

func TestApplyDefaultOptions(t *testing.T) {
	opts, err := applyDefaultOptions(contracts.WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)

	assert.Equal(t, contracts.InfoLevel, opts.LogLevel)
	require.NotNil(t, opts.CoreMIDIConfig)
	assert.Equal(t, "midicc", opts.CoreMIDIConfig.ClientName)
	require.NotNil(t, opts.MIDIEventFilter)
	assert.True(t, opts.MIDIEventFilter.Allows(byte(contracts.ControlChange)))
	assert.False(t, opts.MIDIEventFilter.Allows(byte(contracts.NoteOn)))
}

func TestApplyDefaultOptions_KeepsExplicitValues(t *testing.T) {
	opts, err := applyDefaultOptions(
		contracts.WithLogger(logger.NewNopLogger()),
		contracts.WithLogLevel(contracts.DebugLevel),
		contracts.WithCoreMIDIConfig(contracts.CoreMIDIConfig{ClientName: "custom"}),
		contracts.WithMIDIEventFilter(contracts.MIDIEventFilter{Commands: []contracts.MIDICommand{contracts.NoteOn}}),
	)
	require.NoError(t, err)

	assert.Equal(t, contracts.DebugLevel, opts.LogLevel)
	assert.Equal(t, "custom", opts.CoreMIDIConfig.ClientName)
	assert.True(t, opts.MIDIEventFilter.Allows(byte(contracts.NoteOn)))
}
