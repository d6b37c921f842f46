package uart

import (
	"fmt"
	"strings"
)

// Register is the offset of a UART register from the port's base address.
// The order is fixed by the 8250/16450/16550 hardware.
type Register uint16

const (
	RegDataDLABLSB          Register = iota // RBR/THR, or DLL while DLAB is set
	RegInterruptDLABMSB                     // IER, or DLM while DLAB is set
	RegInterruptIdentFIFO                   // IIR on read, FCR on write
	RegLineControl                          // LCR
	RegModemControl                         // MCR
	RegLineStatus                           // LSR
	RegModemStatus                          // MSR
	RegScratch                              // SCR

	registerCount = 8
)

var registerNames = [registerCount]string{
	"data/dll",
	"ier/dlm",
	"iir/fcr",
	"lcr",
	"mcr",
	"lsr",
	"msr",
	"scr",
}

func (r Register) String() string {
	if r.Valid() {
		return registerNames[r]
	}
	return fmt.Sprintf("Register(%d)", uint16(r))
}

// Valid reports whether r is one of the eight hardware registers.
func (r Register) Valid() bool { return r < registerCount }

// Offset returns the register's distance from the base address.
func (r Register) Offset() uint16 { return uint16(r) }

// KnownPort is a legacy PC serial port base address.
type KnownPort uint16

const (
	COM1 KnownPort = 0x3F8
	COM2 KnownPort = 0x2F8
	COM3 KnownPort = 0x3E8
	COM4 KnownPort = 0x2E8
)

// KnownPorts lists the legacy bases in COM number order.
var KnownPorts = []KnownPort{COM1, COM2, COM3, COM4}

func (p KnownPort) String() string {
	switch p {
	case COM1:
		return "COM1"
	case COM2:
		return "COM2"
	case COM3:
		return "COM3"
	case COM4:
		return "COM4"
	}
	return fmt.Sprintf("port(0x%03x)", uint16(p))
}

// Base returns the port's base I/O address.
func (p KnownPort) Base() uint16 { return uint16(p) }

// ParseKnownPort accepts "com1".."com4" in any case.
func ParseKnownPort(name string) (KnownPort, bool) {
	for _, p := range KnownPorts {
		if strings.EqualFold(name, p.String()) {
			return p, true
		}
	}
	return 0, false
}

// DivisorSpeed is the 16-bit baud-rate divisor programmed through the divisor latch.
// The UART's reference clock yields 115200 baud at divisor 1.
type DivisorSpeed uint16

const (
	Baud115200 DivisorSpeed = 1
	Baud57600  DivisorSpeed = 2
	Baud38400  DivisorSpeed = 3
)

// BaseBaud is the line rate produced by a divisor of 1.
const BaseBaud = 115200

func (d DivisorSpeed) String() string {
	if d == 0 {
		return "DivisorSpeed(0)"
	}
	return fmt.Sprintf("%d baud", d.Baud())
}

// Valid reports whether d can be programmed. Zero stops the baud generator.
func (d DivisorSpeed) Valid() bool { return d != 0 }

// Baud returns the line rate selected by d.
func (d DivisorSpeed) Baud() int {
	if d == 0 {
		return 0
	}
	return BaseBaud / int(d)
}

// Low is the byte written to the divisor latch LSB.
func (d DivisorSpeed) Low() byte { return byte(d) }

// High is the byte written to the divisor latch MSB.
func (d DivisorSpeed) High() byte { return byte(d >> 8) }

// DivisorFor returns the divisor for baud. baud must divide 115200 exactly.
func DivisorFor(baud int) (DivisorSpeed, error) {
	if baud <= 0 || baud > BaseBaud || BaseBaud%baud != 0 {
		return 0, fmt.Errorf("uart: unsupported baud rate %d", baud)
	}
	return DivisorSpeed(BaseBaud / baud), nil
}

// Parity is the parity field of the line control register.
type Parity uint8

const (
	ParityNone  Parity = 0x00
	ParityOdd   Parity = 0x04
	ParityEven  Parity = 0x12
	ParityMark  Parity = 0x14
	ParitySpace Parity = 0x1C
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	case ParityMark:
		return "mark"
	case ParitySpace:
		return "space"
	}
	return fmt.Sprintf("Parity(0x%02x)", uint8(p))
}

// Valid reports whether p is one of the five defined encodings.
func (p Parity) Valid() bool {
	switch p {
	case ParityNone, ParityOdd, ParityEven, ParityMark, ParitySpace:
		return true
	}
	return false
}

// ParseParity accepts the names returned by Parity.String.
func ParseParity(name string) (Parity, error) {
	for _, p := range []Parity{ParityNone, ParityOdd, ParityEven, ParityMark, ParitySpace} {
		if strings.EqualFold(name, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("uart: unknown parity %q", name)
}

// Interrupt is a set of interrupt-enable bits. Values combine with |.
type Interrupt uint8

const (
	// DataAvailable shares the zero code with None: the cause table carries
	// the IIR encoding, where "received data" is not a separate mask bit.
	InterruptNone             Interrupt = 0x0
	InterruptDataAvailable    Interrupt = 0x0
	InterruptTransmitterEmpty Interrupt = 0x2
	InterruptBreakError       Interrupt = 0x4
	InterruptStatusChange     Interrupt = 0x8
)

// String lists the named sources present in i.
func (i Interrupt) String() string {
	if i == 0 {
		return "none"
	}
	s := ""
	add := func(bit Interrupt, name string) {
		if i&bit == 0 {
			return
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	add(InterruptTransmitterEmpty, "tx-empty")
	add(InterruptBreakError, "break-error")
	add(InterruptStatusChange, "status-change")
	if rest := i &^ (InterruptTransmitterEmpty | InterruptBreakError | InterruptStatusChange); rest != 0 {
		add(rest, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return s
}

// Line control, FIFO control and line status bits used by the driver.
const (
	LCRDivisorLatch = 0x80

	FIFOInit = 0xC7

	LSRDataReady     = 0x01
	LSROverrun       = 0x02
	LSRParityError   = 0x04
	LSRFramingError  = 0x08
	LSRBreak         = 0x10
	LSRTransmitEmpty = 0x20
	LSRIdle          = 0x40
	LSRFIFOError     = 0x80

	MCRNormal   = 0x0F // DTR, RTS, OUT1, OUT2
	MCRLoopback = 0x1E // RTS, OUT1, OUT2, LOOP
)

// LineStatus is a snapshot of the line status register.
type LineStatus uint8

func (s LineStatus) DataReady() bool     { return s&LSRDataReady != 0 }
func (s LineStatus) TransmitEmpty() bool { return s&LSRTransmitEmpty != 0 }
func (s LineStatus) Idle() bool          { return s&LSRIdle != 0 }

// Errors reports whether any receive error bit is set.
func (s LineStatus) Errors() bool {
	return s&(LSROverrun|LSRParityError|LSRFramingError|LSRBreak|LSRFIFOError) != 0
}

func (s LineStatus) String() string {
	return fmt.Sprintf("lsr(0x%02x dr=%t thre=%t temt=%t err=%t)",
		uint8(s), s.DataReady(), s.TransmitEmpty(), s.Idle(), s.Errors())
}
