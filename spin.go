package uart

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransmitTimeout is returned by the bounded writers when the
	// transmitter did not report empty within the allowed number of polls.
	ErrTransmitTimeout = errors.New("uart: transmitter not ready")
	// ErrNoData is returned by ReadByte when nothing has been received.
	ErrNoData = errors.New("uart: no data received")
	// ErrSelfTest is returned by SelfTest when the loopback byte never arrives
	// or arrives changed.
	ErrSelfTest = errors.New("uart: loopback self-test failed")
)

// SelfTestError reports a loopback byte that came back different.
type SelfTestError struct {
	Got byte
}

func (e *SelfTestError) Error() string {
	return fmt.Sprintf("uart: loopback self-test failed: sent 0x%02x, read 0x%02x", selfTestByte, e.Got)
}

func (e *SelfTestError) Is(target error) bool { return target == ErrSelfTest }

const (
	unbounded = -1

	// contextCheckInterval is how many status polls WriteContext makes between
	// context checks.
	contextCheckInterval = 1024
)

// spinUntil polls cond until it returns true or limit polls have failed.
// A negative limit never stops. It reports whether cond became true.
func spinUntil(cond func() bool, limit int) bool {
	for n := 0; limit < 0 || n < limit; n++ {
		if cond() {
			return true
		}
	}
	return false
}

// WaitTransmitEmpty polls the line status register at most limit times and
// reports whether the transmitter became empty. A negative limit is unbounded.
func (p *Port) WaitTransmitEmpty(limit int) bool {
	return spinUntil(p.TransmitEmpty, limit)
}

// TryWriteChar is WriteChar with at most limit status polls.
func (p *Port) TryWriteChar(c rune, limit int) error {
	if !spinUntil(p.TransmitEmpty, limit) {
		return ErrTransmitTimeout
	}
	p.dataDLABLSB.write(byte(c))
	return nil
}

// TryWriteString sends s rune by rune, allowing limit status polls per rune.
// It returns the number of bytes of s consumed before the first timeout.
func (p *Port) TryWriteString(s string, limit int) (int, error) {
	for i, c := range s {
		if err := p.TryWriteChar(c, limit); err != nil {
			return i, err
		}
	}
	return len(s), nil
}

// WriteContext sends b as text like Write but gives up when ctx is done,
// returning the number of bytes of b consumed so far.
func (p *Port) WriteContext(ctx context.Context, b []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := string(b)
	for i, c := range s {
		for !spinUntil(p.TransmitEmpty, contextCheckInterval) {
			if err := ctx.Err(); err != nil {
				return i, err
			}
		}
		p.dataDLABLSB.write(byte(c))
	}
	return len(s), nil
}
