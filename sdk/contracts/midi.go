package contracts

// MIDI represents a channel voice message received from an input device.
// For control change messages Data1 is the controller number and Data2 the value.
type MIDI struct {
	Timestamp uint64 // Timestamp indicates the time the event occurred.
	Command   byte   // Command is the status high nibble (e.g. 0xB0 for Control Change).
	Channel   uint8  // Channel is the 1-based MIDI channel (1-16).
	Data1     byte   // Data1 is the note or controller number (0-127).
	Data2     byte   // Data2 is the velocity or controller value (0-127).
}

// IsControlChange reports whether the event is a control change on channel for controller.
func (m MIDI) IsControlChange(channel, controller int) bool {
	return m.Command == byte(ControlChange) && int(m.Channel) == channel && int(m.Data1) == controller
}

// ParseStatus splits a raw MIDI status byte into command and 1-based channel.
func ParseStatus(status byte) (command byte, channel uint8) {
	return status & 0xF0, (status & 0x0F) + 1
}

// ClientMIDI defines an interface for MIDI client operations.
type ClientMIDI interface {
	Stop() error                         // Stops the MIDI client and releases resources.
	ListDevices() ([]DeviceInfo, error)  // Lists all available MIDI devices.
	SelectDevice(deviceID int) error     // Selects a MIDI device by its ID for communication.
	StartCapture(eventChannel chan MIDI) // Starts capturing MIDI events and sends them to the specified channel.
}
