package pio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Op is the direction of a port access.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
)

func (o Op) String() string {
	if o == OpWrite {
		return "out"
	}
	return "in"
}

// Access is one recorded port access.
type Access struct {
	Op    Op
	Port  uint16
	Value byte
}

func (a Access) String() string {
	return fmt.Sprintf("%s 0x%04x 0x%02x", a.Op, a.Port, a.Value)
}

// Out returns the Access for a write of value to port.
func Out(port uint16, value byte) Access { return Access{Op: OpWrite, Port: port, Value: value} }

// In returns the Access for a read of port that returned value.
func In(port uint16, value byte) Access { return Access{Op: OpRead, Port: port, Value: value} }

// Trace records every access that passes through it to the wrapped bus.
type Trace struct {
	mu       sync.Mutex
	bus      Bus
	log      *slog.Logger
	accesses []Access
}

// NewTrace wraps bus. When logger is non-nil every access is also logged at
// debug level.
func NewTrace(bus Bus, logger *slog.Logger) *Trace {
	return &Trace{bus: bus, log: logger}
}

// InByte implements Bus.
func (t *Trace) InByte(port uint16) byte {
	v := t.bus.InByte(port)
	t.record(In(port, v))
	return v
}

// OutByte implements Bus.
func (t *Trace) OutByte(port uint16, value byte) {
	t.bus.OutByte(port, value)
	t.record(Out(port, value))
}

func (t *Trace) record(a Access) {
	t.mu.Lock()
	t.accesses = append(t.accesses, a)
	t.mu.Unlock()
	if t.log != nil {
		t.log.Debug("pio", "op", a.Op.String(), "port", fmt.Sprintf("0x%04x", a.Port), "value", fmt.Sprintf("0x%02x", a.Value))
	}
}

// Accesses returns a copy of everything recorded so far.
func (t *Trace) Accesses() []Access {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Access, len(t.accesses))
	copy(out, t.accesses)
	return out
}

// Writes returns only the recorded writes.
func (t *Trace) Writes() []Access {
	var out []Access
	for _, a := range t.Accesses() {
		if a.Op == OpWrite {
			out = append(out, a)
		}
	}
	return out
}

// Count returns how many accesses of kind op hit port.
func (t *Trace) Count(op Op, port uint16) int {
	n := 0
	for _, a := range t.Accesses() {
		if a.Op == op && a.Port == port {
			n++
		}
	}
	return n
}

// Reset forgets all recorded accesses.
func (t *Trace) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accesses = t.accesses[:0]
}
