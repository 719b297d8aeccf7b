package contracts

import (
	"strconv"
	"time"
)

// Field names used in validation errors and draft annotations. They match the
// keys used on the wire and in the settings file.
const (
	FieldSamplingInterval = "sampling_interval_ms"
	FieldDevice           = "device"
	FieldChannel          = "channel"
	FieldController       = "cc_num"
)

// Settings is the worker configuration.
type Settings struct {
	SamplingIntervalMs int       `toml:"sampling_interval_ms" json:"vol_sample_time"`
	Device             DeviceRef `toml:"device" json:"device"`
	Channel            int       `toml:"channel" json:"channel"`
	Controller         int       `toml:"cc_num" json:"cc_num"`
}

// DeviceRef identifies an input device by its enumeration index. Name is the
// display name recorded when the settings were saved; when set and still
// enumerated it takes precedence over Index, which can shift on hot-plug.
type DeviceRef struct {
	Index int    `toml:"index" json:"index"`
	Name  string `toml:"name,omitempty" json:"name,omitempty"`
}

// DefaultSettings returns the configuration used on first run.
func DefaultSettings() Settings {
	return Settings{
		SamplingIntervalMs: 100,
		Device:             DeviceRef{Index: 0},
		Channel:            1,
		Controller:         7,
	}
}

// SamplingInterval returns the sampling interval as a duration.
func (s Settings) SamplingInterval() time.Duration {
	return time.Duration(s.SamplingIntervalMs) * time.Millisecond
}

// Validate checks every field and returns a *ValidationError naming the first
// invalid one, in declaration order.
func (s Settings) Validate() error {
	switch {
	case s.SamplingIntervalMs <= 0:
		return &ValidationError{Field: FieldSamplingInterval, Reason: "must be greater than 0"}
	case s.Device.Index < 0:
		return &ValidationError{Field: FieldDevice, Reason: "must reference an enumerated device"}
	case s.Channel < 1 || s.Channel > 16:
		return &ValidationError{Field: FieldChannel, Reason: "must be between 1 and 16"}
	case s.Controller < 0 || s.Controller > 127:
		return &ValidationError{Field: FieldController, Reason: "must be between 0 and 127"}
	}
	return nil
}

// SettingsUpdate is the set_settings request. Channel and Controller are
// optional for clients speaking the older two-field shape; nil keeps the
// previously stored value.
type SettingsUpdate struct {
	DeviceIndex      int  `json:"deviceIndex"`
	SampleTimeMs     int  `json:"sampleTime"`
	Channel          *int `json:"channel,omitempty"`
	ControllerNumber *int `json:"ccNum,omitempty"`
}

// MergeInto applies the update on top of prev.
func (u SettingsUpdate) MergeInto(prev Settings) Settings {
	next := prev
	next.SamplingIntervalMs = u.SampleTimeMs
	if u.DeviceIndex != prev.Device.Index {
		next.Device = DeviceRef{Index: u.DeviceIndex}
	}
	if u.Channel != nil {
		next.Channel = *u.Channel
	}
	if u.ControllerNumber != nil {
		next.Controller = *u.ControllerNumber
	}
	return next
}

// UpdateFor builds the full four-field update for s.
func UpdateFor(s Settings) SettingsUpdate {
	ch, cc := s.Channel, s.Controller
	return SettingsUpdate{
		DeviceIndex:      s.Device.Index,
		SampleTimeMs:     s.SamplingIntervalMs,
		Channel:          &ch,
		ControllerNumber: &cc,
	}
}

// SettingsView is the get_settings response: current settings plus the device
// snapshot they refer to.
type SettingsView struct {
	Settings Settings
	Devices  DeviceList
}

// FormatField renders a settings field as draft text.
func (s Settings) FormatField(field string) string {
	switch field {
	case FieldSamplingInterval:
		return strconv.Itoa(s.SamplingIntervalMs)
	case FieldDevice:
		return strconv.Itoa(s.Device.Index)
	case FieldChannel:
		return strconv.Itoa(s.Channel)
	case FieldController:
		return strconv.Itoa(s.Controller)
	}
	return ""
}
