package worker

import (
	"context"
	"math"

	"github.com/leandrodaf/midicc/sdk/contracts"
)

// Sink receives the sampled controller value.
type Sink interface {
	Apply(ctx context.Context, value uint8) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, value uint8) error

func (f SinkFunc) Apply(ctx context.Context, value uint8) error { return f(ctx, value) }

// VolumeLevel maps a 7-bit controller value onto the 0.0–7.0 output volume
// scale, rounded to one decimal.
func VolumeLevel(value uint8) float64 {
	return math.Round(float64(value)/127*70) / 10
}

// VolumeSink logs the volume level derived from each sample. Setting the
// system volume is platform specific and left to the SetVolume hook.
type VolumeSink struct {
	Logger    contracts.Logger
	SetVolume func(ctx context.Context, level float64) error
}

func (v *VolumeSink) Apply(ctx context.Context, value uint8) error {
	level := VolumeLevel(value)
	if v.Logger != nil {
		v.Logger.Debug("volume sample",
			v.Logger.Field().Uint8("value", value),
			v.Logger.Field().Float64("level", level))
	}
	if v.SetVolume == nil {
		return nil
	}
	return v.SetVolume(ctx, level)
}
