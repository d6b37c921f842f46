// Package serial emulates a 16550A UART behind eight I/O ports.
package serial

import (
	"context"
	"io"
	"sync"

	"github.com/tinyrange/uart/internal/chipset"
)

const (
	registerCount = 8

	lcrDLAB = 1 << 7

	lsrDataReady = 1 << 0
	lsrOverrun   = 1 << 1
	lsrTHRE      = 1 << 5
	lsrTEMT      = 1 << 6

	// MCR bits
	mcrDTR  = 1 << 0
	mcrRTS  = 1 << 1
	mcrOUT1 = 1 << 2
	mcrOUT2 = 1 << 3 // Interrupt gate
	mcrLoop = 1 << 4

	// MSR bits (low 4 bits are change flags, high 4 bits are status)
	msrCTS = 1 << 4
	msrDSR = 1 << 5
	msrRI  = 1 << 6
	msrDCD = 1 << 7

	// FCR bits
	fcrEnable  = 1 << 0
	fcrClearRX = 1 << 1
	fcrClearTX = 1 << 2

	// IIR bits 6-7 read back as set while the FIFOs are enabled.
	iirFIFOsEnabled = 0xC0
	iirNone         = 0x01

	fifoSize = 16
)

// Stats counts traffic through the UART.
type Stats struct {
	TxBytes uint64
	RxBytes uint64
	Overrun uint64
}

// Registers is a snapshot of the UART's programmable state.
type Registers struct {
	DLL, DLM byte
	IER      byte
	FCR      byte
	LCR      byte
	MCR      byte
	SCR      byte
}

// Divisor returns the 16-bit baud divisor held in the latch.
func (r Registers) Divisor() uint16 {
	return uint16(r.DLM)<<8 | uint16(r.DLL)
}

// fifo is a fixed ring of bytes.
type fifo struct {
	buf   [fifoSize]byte
	head  int
	count int
}

func (f *fifo) push(b byte) bool {
	if f.count == fifoSize {
		return false
	}
	f.buf[(f.head+f.count)%fifoSize] = b
	f.count++
	return true
}

func (f *fifo) pop() byte {
	b := f.buf[f.head]
	f.head = (f.head + 1) % fifoSize
	f.count--
	return b
}

func (f *fifo) clear() { f.head, f.count = 0, 0 }

// UART16550 is an emulated 16550A. Transmitted bytes go to out, bytes read
// from in arrive in the receiver when the device is polled.
type UART16550 struct {
	mu sync.Mutex

	base    uint16
	irqLine chipset.LineInterrupt
	out     io.Writer
	in      io.Reader

	regs      Registers
	lsr       byte
	msrStatus byte
	msrDelta  byte

	rx fifo
	tx fifo

	fifoEnabled bool
	fifoTrigger int
	pendingIIR  byte
	skipLF      bool

	// txLatency is how many line status reads see THRE clear after a
	// write. Negative keeps the transmitter busy forever.
	txLatency int
	txBusy    int

	stats Stats
}

// New creates a 16550 at base. irqLine may be nil; out and in may be nil.
func New(base uint16, irqLine chipset.LineInterrupt, out io.Writer, in io.Reader) *UART16550 {
	if irqLine == nil {
		irqLine = chipset.LineInterruptDetached()
	}
	u := &UART16550{
		base:    base,
		irqLine: irqLine,
		out:     out,
		in:      in,
	}
	u.resetLocked()
	return u
}

// SetTransmitLatency makes THRE read as clear for n line status reads
// after each write to the transmit holding register. n < 0 never sets it,
// which looks like a transmitter that is stuck or not there.
func (u *UART16550) SetTransmitLatency(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.txLatency = n
}

// Registers returns a snapshot of the programmable registers.
func (u *UART16550) Registers() Registers {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.regs
}

// Stats returns traffic counters.
func (u *UART16550) Stats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

// Start implements chipset.ChangeDeviceState.
func (u *UART16550) Start() error { return nil }

// Stop implements chipset.ChangeDeviceState.
func (u *UART16550) Stop() error { return nil }

// Reset implements chipset.ChangeDeviceState.
func (u *UART16550) Reset() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resetLocked()
	return nil
}

func (u *UART16550) resetLocked() {
	u.regs = Registers{}
	u.lsr = lsrTHRE | lsrTEMT
	u.msrStatus = msrCTS | msrDSR | msrDCD
	u.msrDelta = 0
	u.rx.clear()
	u.tx.clear()
	u.fifoEnabled = false
	u.fifoTrigger = 1
	u.pendingIIR = iirNone
	u.skipLF = false
	u.txBusy = 0
	u.irqLine.SetLevel(false)
}

// SupportsPortIO implements chipset.ChipsetDevice.
func (u *UART16550) SupportsPortIO() *chipset.PortIOIntercept {
	ports := make([]uint16, registerCount)
	for i := uint16(0); i < registerCount; i++ {
		ports[i] = u.base + i
	}
	return &chipset.PortIOIntercept{
		Ports:   ports,
		Handler: u,
	}
}

// SupportsPollDevice implements chipset.ChipsetDevice.
func (u *UART16550) SupportsPollDevice() *chipset.PollDevice {
	return &chipset.PollDevice{Handler: u}
}

// Poll pulls at most one byte from in and finishes any transmission in
// progress. in is read without holding the register lock, so a reader that
// blocks stalls only the poller.
func (u *UART16550) Poll(ctx context.Context) error {
	u.mu.Lock()
	room := u.in != nil && u.rx.count < fifoSize
	u.mu.Unlock()

	var (
		buf [1]byte
		n   int
	)
	if room {
		n, _ = u.in.Read(buf[:])
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if n > 0 {
		u.receiveLocked(buf[0])
	}

	if u.tx.count > 0 && u.txLatency >= 0 {
		u.txBusy = 0
		u.drainLocked()
	}
	return nil
}

// ReadIOPort implements chipset.PortIOHandler.
func (u *UART16550) ReadIOPort(port uint16, data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	for i := range data {
		data[i] = u.readLocked(port)
	}
	return nil
}

// WriteIOPort implements chipset.PortIOHandler.
func (u *UART16550) WriteIOPort(port uint16, data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, value := range data {
		u.writeLocked(port, value)
	}
	return nil
}

func (u *UART16550) writeLocked(port uint16, value byte) {
	if port < u.base || port >= u.base+registerCount {
		return
	}

	switch port - u.base {
	case 0:
		if u.regs.LCR&lcrDLAB != 0 {
			u.regs.DLL = value
		} else {
			u.transmitLocked(value)
		}
	case 1:
		if u.regs.LCR&lcrDLAB != 0 {
			u.regs.DLM = value
		} else {
			u.regs.IER = value & 0x0F
			u.updateInterruptsLocked()
		}
	case 2:
		u.setFCRLocked(value)
	case 3:
		u.regs.LCR = value
	case 4:
		u.setMCRLocked(value)
	case 5, 6:
		// LSR and MSR are read-only.
	case 7:
		u.regs.SCR = value
	}
}

func (u *UART16550) readLocked(port uint16) byte {
	if port < u.base || port >= u.base+registerCount {
		return 0
	}

	switch port - u.base {
	case 0:
		if u.regs.LCR&lcrDLAB != 0 {
			return u.regs.DLL
		}
		return u.readRBRLocked()
	case 1:
		if u.regs.LCR&lcrDLAB != 0 {
			return u.regs.DLM
		}
		return u.regs.IER
	case 2:
		iir := u.pendingIIR
		if u.fifoEnabled {
			iir |= iirFIFOsEnabled
		}
		return iir
	case 3:
		return u.regs.LCR
	case 4:
		return u.regs.MCR
	case 5:
		return u.readLSRLocked()
	case 6:
		v := u.msrStatus | u.msrDelta
		u.msrDelta = 0
		u.updateInterruptsLocked()
		return v
	default:
		return u.regs.SCR
	}
}

// readLSRLocked returns the status as it stands, clears the overrun error
// and then lets the transmitter make progress.
func (u *UART16550) readLSRLocked() byte {
	v := u.lsr
	if u.lsr&lsrOverrun != 0 {
		u.lsr &^= lsrOverrun
		u.updateInterruptsLocked()
	}
	if u.txBusy > 0 {
		u.txBusy--
		if u.txBusy == 0 {
			u.drainLocked()
		}
	}
	return v
}

func (u *UART16550) transmitLocked(value byte) {
	if !u.tx.push(value) {
		// Writing to a full holding register loses the byte, as on hardware.
		return
	}
	if !u.fifoEnabled && u.tx.count > 1 {
		// Without FIFOs there is a single holding register.
		u.tx.count = 1
		u.tx.buf[u.tx.head] = value
	}
	u.lsr &^= lsrTHRE | lsrTEMT

	switch {
	case u.txLatency == 0:
		u.drainLocked()
	case u.txLatency > 0 && u.txBusy == 0:
		u.txBusy = u.txLatency
	}
	u.updateInterruptsLocked()
}

func (u *UART16550) drainLocked() {
	for u.tx.count > 0 {
		u.shiftOutLocked(u.tx.pop())
	}
	u.lsr |= lsrTHRE | lsrTEMT
	u.updateInterruptsLocked()
}

func (u *UART16550) shiftOutLocked(value byte) {
	u.stats.TxBytes++
	if u.regs.MCR&mcrLoop != 0 {
		u.receiveLocked(value)
		return
	}
	if u.out == nil {
		return
	}
	switch value {
	case '\r':
		_, _ = u.out.Write([]byte{'\n'})
		u.skipLF = true
	case '\n':
		if u.skipLF {
			u.skipLF = false
			return
		}
		_, _ = u.out.Write([]byte{'\n'})
	default:
		u.skipLF = false
		_, _ = u.out.Write([]byte{value})
	}
}

func (u *UART16550) receiveLocked(value byte) {
	capacity := 1
	if u.fifoEnabled {
		capacity = fifoSize
	}
	if u.rx.count >= capacity {
		u.lsr |= lsrOverrun
		u.stats.Overrun++
		u.updateInterruptsLocked()
		return
	}
	u.rx.push(value)
	u.stats.RxBytes++
	u.lsr |= lsrDataReady
	u.updateInterruptsLocked()
}

func (u *UART16550) readRBRLocked() byte {
	if u.rx.count == 0 {
		return 0
	}
	value := u.rx.pop()
	if u.rx.count == 0 {
		u.lsr &^= lsrDataReady
	}
	u.updateInterruptsLocked()
	return value
}

func (u *UART16550) setFCRLocked(value byte) {
	if value&fcrClearRX != 0 {
		u.rx.clear()
		u.lsr &^= lsrDataReady
	}
	if value&fcrClearTX != 0 {
		u.tx.clear()
		u.txBusy = 0
		u.lsr |= lsrTHRE | lsrTEMT
	}

	u.regs.FCR = value
	u.fifoEnabled = value&fcrEnable != 0

	switch value & 0xC0 {
	case 0x40:
		u.fifoTrigger = 4
	case 0x80:
		u.fifoTrigger = 8
	case 0xC0:
		u.fifoTrigger = 14
	default:
		u.fifoTrigger = 1
	}

	u.updateInterruptsLocked()
}

func (u *UART16550) setMCRLocked(value byte) {
	prev := u.regs.MCR
	u.regs.MCR = value & 0x1F

	if prev&mcrLoop != 0 && u.regs.MCR&mcrLoop == 0 {
		u.rx.clear()
		u.lsr &^= lsrDataReady
	}

	u.updateModemStatusLocked()
	u.updateInterruptsLocked()
}

func (u *UART16550) updateModemStatusLocked() {
	mcr := u.regs.MCR
	prev := u.msrStatus
	if mcr&mcrLoop != 0 {
		// Loopback: outputs feed the matching inputs.
		u.msrStatus = 0
		if mcr&mcrRTS != 0 {
			u.msrStatus |= msrCTS
		}
		if mcr&mcrDTR != 0 {
			u.msrStatus |= msrDSR
		}
		if mcr&mcrOUT1 != 0 {
			u.msrStatus |= msrRI
		}
		if mcr&mcrOUT2 != 0 {
			u.msrStatus |= msrDCD
		}
	} else {
		u.msrStatus = msrCTS | msrDSR | msrDCD
	}
	u.msrDelta |= ((prev ^ u.msrStatus) >> 4) & 0x0F
}

func (u *UART16550) updateInterruptsLocked() {
	interrupt := byte(iirNone)

	switch {
	case u.regs.IER&0x04 != 0 && u.lsr&0x1E != 0:
		interrupt = 0x06
	case u.regs.IER&0x01 != 0 && u.rx.count >= u.rxThresholdLocked():
		interrupt = 0x04
	case u.regs.IER&0x02 != 0 && u.lsr&lsrTHRE != 0:
		interrupt = 0x02
	case u.regs.IER&0x08 != 0 && u.msrDelta != 0:
		interrupt = 0x00
	}

	u.pendingIIR = interrupt
	u.irqLine.SetLevel(interrupt != iirNone && u.regs.MCR&mcrOUT2 != 0)
}

func (u *UART16550) rxThresholdLocked() int {
	if u.fifoEnabled {
		return u.fifoTrigger
	}
	return 1
}

var (
	_ chipset.ChipsetDevice = &UART16550{}
	_ chipset.PortIOHandler = &UART16550{}
	_ chipset.PollHandler   = &UART16550{}
)
