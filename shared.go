package uart

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Shared hands one Port to several goroutines, one at a time.
type Shared struct {
	mu   sync.Mutex
	port *Port
}

// NewShared takes ownership of port. The caller must not use port directly
// afterwards.
func NewShared(port *Port) *Shared {
	return &Shared{port: port}
}

// Do runs fn with exclusive use of the Port. fn must not keep the pointer.
func (s *Shared) Do(fn func(*Port)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.port)
}

// Write implements io.Writer; each call is sent without interleaving.
func (s *Shared) Write(b []byte) (n int, err error) {
	s.Do(func(p *Port) { n, err = p.Write(b) })
	return n, err
}

// ErrPortInUse is returned by Registry.Open when the requested registers
// overlap a Port that is still open.
var ErrPortInUse = errors.New("uart: registers already claimed")

// Registry hands out Ports on one bus and refuses to create two whose
// register windows overlap.
type Registry struct {
	mu     sync.Mutex
	bus    Bus
	log    *slog.Logger
	claims map[uint16]*Port
}

// NewRegistry returns a Registry for bus. A nil logger uses slog.Default().
func NewRegistry(bus Bus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		bus:    bus,
		log:    logger,
		claims: make(map[uint16]*Port),
	}
}

// Open claims the eight registers at base and returns a Port for them.
func (r *Registry) Open(base uint16) (*Port, error) {
	if int(base)+registerCount > 1<<16 {
		return nil, fmt.Errorf("uart: base 0x%04x: register window exceeds I/O space", base)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for claimed := range r.claims {
		if overlaps(base, claimed) {
			return nil, fmt.Errorf("uart: open 0x%04x: overlaps port at 0x%04x: %w", base, claimed, ErrPortInUse)
		}
	}

	port := New(r.bus, base)
	r.claims[base] = port
	r.log.Debug("uart: claimed port", "base", fmt.Sprintf("0x%04x", base))
	return port, nil
}

// Close releases the registers held by port. port must not be used again.
func (r *Registry) Close(port *Port) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.claims[port.base] != port {
		return fmt.Errorf("uart: close 0x%04x: port not opened by this registry", port.base)
	}
	delete(r.claims, port.base)
	r.log.Debug("uart: released port", "base", fmt.Sprintf("0x%04x", port.base))
	return nil
}

func overlaps(a, b uint16) bool {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return int(hi)-int(lo) < registerCount
}
