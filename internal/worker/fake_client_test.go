package worker

import (
	"sync"

	"github.com/leandrodaf/midicc/sdk/contracts"
)

type fakeClient struct {
	mu       sync.Mutex
	devices  []contracts.DeviceInfo
	listErr  error
	selected int
	events   chan contracts.MIDI
	stops    int
}

func newFakeClient(names ...string) *fakeClient {
	c := &fakeClient{selected: -1}
	c.setDevices(names...)
	return c
}

func (c *fakeClient) setDevices(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = nil
	for _, n := range names {
		c.devices = append(c.devices, contracts.DeviceInfo{Name: n})
	}
}

func (c *fakeClient) ListDevices() ([]contracts.DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]contracts.DeviceInfo(nil), c.devices...), nil
}

func (c *fakeClient) SelectDevice(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = id
	return nil
}

func (c *fakeClient) StartCapture(ch chan contracts.MIDI) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = ch
}

func (c *fakeClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *fakeClient) send(ev contracts.MIDI) {
	c.mu.Lock()
	ch := c.events
	c.mu.Unlock()
	ch <- ev
}

func (c *fakeClient) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func cc(channel uint8, controller, value byte) contracts.MIDI {
	return contracts.MIDI{Command: byte(contracts.ControlChange), Channel: channel, Data1: controller, Data2: value}
}
