// Package control exposes the configuration command surface over local
// JSON/HTTP so the CLI and the daemon can run as separate processes.
package control

import "github.com/leandrodaf/midicc/sdk/contracts"

const (
	pathSettings = "/v1/settings"
	pathError    = "/v1/error"
	pathRestart  = "/v1/restart"
	pathDevices  = "/v1/devices"
)

// settingsResponse is the get_settings payload. Field names follow the
// original command names so older clients keep working.
type settingsResponse struct {
	VolSampleTime int      `json:"vol_sample_time"`
	MIDIDevices   []string `json:"midi_devices"`
	DeviceIndex   int      `json:"device_index"`
	DeviceName    string   `json:"device_name,omitempty"`
	Channel       int      `json:"channel"`
	CCNum         int      `json:"cc_num"`
}

func newSettingsResponse(v contracts.SettingsView) settingsResponse {
	devices := []string(v.Devices)
	if devices == nil {
		devices = []string{}
	}
	return settingsResponse{
		VolSampleTime: v.Settings.SamplingIntervalMs,
		MIDIDevices:   devices,
		DeviceIndex:   v.Settings.Device.Index,
		DeviceName:    v.Settings.Device.Name,
		Channel:       v.Settings.Channel,
		CCNum:         v.Settings.Controller,
	}
}

func (r settingsResponse) view() contracts.SettingsView {
	return contracts.SettingsView{
		Settings: contracts.Settings{
			SamplingIntervalMs: r.VolSampleTime,
			Device:             contracts.DeviceRef{Index: r.DeviceIndex, Name: r.DeviceName},
			Channel:            r.Channel,
			Controller:         r.CCNum,
		},
		Devices: contracts.DeviceList(r.MIDIDevices),
	}
}

// statusResponse is the reply of set_settings, get_error and attempt_restart:
// error is null while running and the diagnostic otherwise. Field and Reason
// are set only when set_settings rejected a field.
type statusResponse struct {
	Error  *string `json:"error"`
	Status string  `json:"status,omitempty"`
	Field  string  `json:"field,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

func newStatusResponse(st contracts.WorkerStatus) statusResponse {
	return statusResponse{Error: st.Diagnostic(), Status: st.Kind.String()}
}

func (r statusResponse) status() contracts.WorkerStatus {
	if r.Status == "" {
		return contracts.StatusFromDiagnostic(r.Error)
	}
	kind := contracts.ParseStatusKind(r.Status)
	if kind == contracts.StatusFailed {
		reason := ""
		if r.Error != nil {
			reason = *r.Error
		}
		return contracts.Failed(reason)
	}
	return contracts.WorkerStatus{Kind: kind}
}

type devicesResponse struct {
	MIDIDevices []string `json:"midi_devices"`
}
