//go:build !linux

package pio

import (
	"errors"
	"log/slog"
)

// ErrUnsupported is returned where raw port access is not available.
var ErrUnsupported = errors.New("pio: /dev/port is only available on linux")

// DevPort is unavailable on this platform.
type DevPort struct{}

// OpenDevPort always fails on this platform.
func OpenDevPort(*slog.Logger) (*DevPort, error) { return nil, ErrUnsupported }

func (*DevPort) InByte(uint16) byte   { return 0xFF }
func (*DevPort) OutByte(uint16, byte) {}
func (*DevPort) Close() error         { return nil }
