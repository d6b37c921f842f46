// Package pio provides I/O port buses for the uart driver: a recording
// wrapper, an in-memory register file and, on Linux, /dev/port.
package pio

// Bus is the single-byte port access primitive. It matches uart.Bus.
type Bus interface {
	InByte(port uint16) byte
	OutByte(port uint16, value byte)
}
