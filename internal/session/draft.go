package session

import (
	"strconv"
	"strings"

	"github.com/leandrodaf/midicc/sdk/contracts"
)

// Fields lists the editable settings fields in validation order.
var Fields = []string{
	contracts.FieldSamplingInterval,
	contracts.FieldDevice,
	contracts.FieldChannel,
	contracts.FieldController,
}

// Draft is the in-progress edit of the settings. Raw holds exactly what the
// user typed per field; Errors holds the reason a field does not parse, and
// has no entry for valid fields.
type Draft struct {
	Raw     map[string]string
	Errors  map[string]string
	Devices contracts.DeviceList
	// Base is the canonical settings the draft was last synced from.
	Base contracts.Settings
}

func newDraft(s contracts.Settings, devices contracts.DeviceList) Draft {
	d := Draft{
		Raw:     make(map[string]string, len(Fields)),
		Errors:  make(map[string]string),
		Devices: devices,
		Base:    s,
	}
	for _, f := range Fields {
		d.Raw[f] = s.FormatField(f)
	}
	return d
}

// Valid reports whether field currently parses.
func (d Draft) Valid(field string) bool {
	_, bad := d.Errors[field]
	return !bad
}

func (d Draft) clone() Draft {
	c := Draft{
		Raw:     make(map[string]string, len(d.Raw)),
		Errors:  make(map[string]string, len(d.Errors)),
		Devices: append(contracts.DeviceList(nil), d.Devices...),
		Base:    d.Base,
	}
	for k, v := range d.Raw {
		c.Raw[k] = v
	}
	for k, v := range d.Errors {
		c.Errors[k] = v
	}
	return c
}

// parse builds candidate settings from the raw text. It returns the first
// invalid field in Fields order.
func (d Draft) parse() (contracts.Settings, error) {
	s := d.Base
	for _, f := range Fields {
		v, err := parseField(f, d.Raw[f], d.Devices)
		if err != nil {
			return contracts.Settings{}, err
		}
		switch f {
		case contracts.FieldSamplingInterval:
			s.SamplingIntervalMs = v
		case contracts.FieldDevice:
			if v != s.Device.Index {
				s.Device = contracts.DeviceRef{Index: v}
			}
		case contracts.FieldChannel:
			s.Channel = v
		case contracts.FieldController:
			s.Controller = v
		}
	}
	return s, nil
}

func parseField(field, raw string, devices contracts.DeviceList) (int, *contracts.ValidationError) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &contracts.ValidationError{Field: field, Reason: "must be a whole number"}
	}

	var probe contracts.Settings
	switch field {
	case contracts.FieldSamplingInterval:
		probe = contracts.DefaultSettings()
		probe.SamplingIntervalMs = v
	case contracts.FieldDevice:
		if len(devices) > 0 && v >= len(devices) {
			return 0, &contracts.ValidationError{Field: field, Reason: "must reference an enumerated device"}
		}
		probe = contracts.DefaultSettings()
		probe.Device.Index = v
	case contracts.FieldChannel:
		probe = contracts.DefaultSettings()
		probe.Channel = v
	case contracts.FieldController:
		probe = contracts.DefaultSettings()
		probe.Controller = v
	default:
		return 0, &contracts.ValidationError{Field: field, Reason: "unknown field"}
	}
	if err := probe.Validate(); err != nil {
		ve, _ := contracts.IsValidation(err)
		return 0, ve
	}
	return v, nil
}
