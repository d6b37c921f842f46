package pio

import "sync"

// Regs is a flat register file: each port reads back the last value written
// to it unless a read hook is installed. The zero value is ready to use.
type Regs struct {
	mu     sync.Mutex
	values map[uint16]byte
	hooks  map[uint16]func() byte
}

// Set stores value at port without going through the bus.
func (r *Regs) Set(port uint16, value byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values == nil {
		r.values = make(map[uint16]byte)
	}
	r.values[port] = value
}

// Get returns the stored value at port.
func (r *Regs) Get(port uint16) byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[port]
}

// OnRead makes reads of port return fn() instead of the stored value.
// A nil fn removes the hook.
func (r *Regs) OnRead(port uint16, fn func() byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.hooks, port)
		return
	}
	if r.hooks == nil {
		r.hooks = make(map[uint16]func() byte)
	}
	r.hooks[port] = fn
}

// InByte implements Bus.
func (r *Regs) InByte(port uint16) byte {
	r.mu.Lock()
	fn, ok := r.hooks[port]
	v := r.values[port]
	r.mu.Unlock()
	if ok {
		return fn()
	}
	return v
}

// OutByte implements Bus.
func (r *Regs) OutByte(port uint16, value byte) {
	r.Set(port, value)
}
