package midi

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/leandrodaf/midicc/internal/midi/mididarwin"
	"github.com/leandrodaf/midicc/internal/midi/midiwindows"
	"github.com/leandrodaf/midicc/sdk/contracts"
)

// ErrUnsupportedOS is returned when the operating system is not supported by the MIDI client.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// clientInitializers maps OS names to corresponding MIDI client initializers.
var clientInitializers = map[string]func(*contracts.ClientOptions) (contracts.ClientMIDI, error){
	"darwin":  mididarwin.NewMIDIClient,  // macOS (Darwin) MIDI client initializer.
	"windows": midiwindows.NewMIDIClient, // Windows MIDI client initializer.
}

// NewClient initializes a MIDI client based on the current operating system.
// It returns ErrUnsupportedOS on platforms without a native backend.
func NewClient(opts *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	return newClientFor(runtime.GOOS, opts)
}

func newClientFor(goos string, opts *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	if initializer, exists := clientInitializers[goos]; exists {
		return initializer(opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
}

// Factory returns a constructor bound to opts, suitable for components that
// open a fresh client per worker instance.
func Factory(opts ...contracts.Option) func() (contracts.ClientMIDI, error) {
	return func() (contracts.ClientMIDI, error) {
		return NewMIDIClient(opts...)
	}
}
