package contracts

// DeviceInfo contains information about a MIDI device.
type DeviceInfo struct {
	Name         string // Device name.
	Manufacturer string // Device manufacturer.
	EntityName   string // Name of the entity to which the device belongs.
}

// DeviceList is the ordered snapshot of device display names offered to a
// configuration session. Position i is the device index used in Settings.
type DeviceList []string

// DeviceNames flattens device infos into a DeviceList.
func DeviceNames(devices []DeviceInfo) DeviceList {
	names := make(DeviceList, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return names
}

// IndexOf returns the index of the first device named name, or -1.
func (l DeviceList) IndexOf(name string) int {
	for i, n := range l {
		if n == name {
			return i
		}
	}
	return -1
}
