//go:build linux

package pio

import (
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// DevPortPath is the Linux character device that maps file offsets to
// I/O port numbers.
const DevPortPath = "/dev/port"

// DevPort reaches real I/O ports through /dev/port. It needs CAP_SYS_RAWIO.
type DevPort struct {
	fd  int
	log *slog.Logger
}

// OpenDevPort opens /dev/port for reading and writing.
func OpenDevPort(logger *slog.Logger) (*DevPort, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fd, err := unix.Open(DevPortPath, unix.O_CLOEXEC|unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("pio: open %s: %w", DevPortPath, err)
	}
	return &DevPort{fd: fd, log: logger}, nil
}

// InByte implements Bus. A failed read returns 0xFF, the floating bus value.
func (d *DevPort) InByte(port uint16) byte {
	var buf [1]byte
	if n, err := unix.Pread(d.fd, buf[:], int64(port)); err != nil || n != 1 {
		d.log.Error("pio: read failed", "port", fmt.Sprintf("0x%04x", port), "n", n, "error", err)
		return 0xFF
	}
	return buf[0]
}

// OutByte implements Bus.
func (d *DevPort) OutByte(port uint16, value byte) {
	buf := [1]byte{value}
	if n, err := unix.Pwrite(d.fd, buf[:], int64(port)); err != nil || n != 1 {
		d.log.Error("pio: write failed", "port", fmt.Sprintf("0x%04x", port), "n", n, "error", err)
	}
}

// Close releases the file descriptor.
func (d *DevPort) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("pio: close %s: %w", DevPortPath, err)
	}
	return nil
}
