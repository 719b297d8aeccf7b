package midi

import (
	"fmt"

	"github.com/leandrodaf/midicc/sdk/contracts"
	"go.uber.org/multierr"
)

// NewMIDIClient creates a new MIDI client for the current platform.
// Unless overridden, the client only captures Control Change messages, which
// is all the volume worker ever sends or listens for.
func NewMIDIClient(opts ...contracts.Option) (contracts.ClientMIDI, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	client, err := NewClient(&options)
	if err != nil {
		return nil, fmt.Errorf("opening MIDI client: %w", err)
	}

	return client, nil
}

// ListDevices opens a client with newClient, enumerates its devices and stops
// it again. Callers that run next to a worker use this so they never keep a
// second device handle open.
func ListDevices(newClient func() (contracts.ClientMIDI, error)) (devices []contracts.DeviceInfo, err error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, client.Stop()) }()
	return client.ListDevices()
}
