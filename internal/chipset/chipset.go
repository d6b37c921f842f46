package chipset

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// FloatingBus is what a read from a port with nothing behind it returns.
const FloatingBus = 0xFF

// Start activates all registered devices.
func (c *Chipset) Start() error {
	for _, name := range c.deviceNames() {
		if err := c.devices[name].Start(); err != nil {
			return fmt.Errorf("chipset: start device %q: %w", name, err)
		}
	}
	return nil
}

// Stop deactivates all registered devices.
func (c *Chipset) Stop() error {
	for _, name := range c.deviceNames() {
		if err := c.devices[name].Stop(); err != nil {
			return fmt.Errorf("chipset: stop device %q: %w", name, err)
		}
	}
	return nil
}

// Reset resets all registered devices.
func (c *Chipset) Reset() error {
	for _, name := range c.deviceNames() {
		if err := c.devices[name].Reset(); err != nil {
			return fmt.Errorf("chipset: reset device %q: %w", name, err)
		}
	}
	return nil
}

// HandlePIO dispatches an I/O port access to the registered device.
func (c *Chipset) HandlePIO(port uint16, data []byte, isWrite bool) error {
	handler, ok := c.pio[port]
	if !ok {
		return fmt.Errorf("chipset: no handler for I/O port 0x%04x", port)
	}
	if isWrite {
		return handler.WriteIOPort(port, data)
	}
	return handler.ReadIOPort(port, data)
}

// InByte reads one byte from port. Unclaimed ports and device errors read
// as FloatingBus, like an ISA bus with nothing driving it.
func (c *Chipset) InByte(port uint16) byte {
	var buf [1]byte
	if err := c.HandlePIO(port, buf[:], false); err != nil {
		c.log.Debug("chipset: port read failed", "port", fmt.Sprintf("0x%04x", port), "error", err)
		return FloatingBus
	}
	return buf[0]
}

// OutByte writes one byte to port. Writes nobody claims are dropped.
func (c *Chipset) OutByte(port uint16, value byte) {
	buf := [1]byte{value}
	if err := c.HandlePIO(port, buf[:], true); err != nil {
		c.log.Debug("chipset: port write failed", "port", fmt.Sprintf("0x%04x", port), "error", err)
	}
}

// Poll executes Poll on all poll-capable devices.
func (c *Chipset) Poll(ctx context.Context) error {
	for _, handler := range c.polls {
		if err := handler.Poll(ctx); err != nil {
			return fmt.Errorf("chipset: poll: %w", err)
		}
	}
	return nil
}

// Run polls the devices every interval until ctx is done.
func (c *Chipset) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Poll(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Chipset) deviceNames() []string {
	names := make([]string, 0, len(c.devices))
	for name := range c.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
