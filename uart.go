// Package uart drives a 16450/16550-class UART through port-mapped I/O.
//
// A Port owns the eight registers that sit at consecutive I/O addresses from a
// base address and implements the register protocols on top of a Bus, the
// single-byte in/out primitive supplied by the environment (a hypervisor
// exit handler, /dev/port, an emulator, or a test double).
//
// The driver is synchronous and polling only. It never arms interrupts, does
// not buffer, and performs no locking: a *Port must have one owner at a time.
// Use Shared to hand one Port to several goroutines and Registry to keep two
// Ports from aliasing the same registers.
package uart

// Bus issues single-byte accesses to I/O port addresses. Accesses happen in
// program order on the calling goroutine and are assumed to always succeed.
type Bus interface {
	InByte(port uint16) byte
	OutByte(port uint16, value byte)
}

// register is one I/O address on a bus.
type register struct {
	bus  Bus
	addr uint16
}

func (r register) read() byte       { return r.bus.InByte(r.addr) }
func (r register) write(value byte) { r.bus.OutByte(r.addr, value) }
func (r register) address() uint16  { return r.addr }

func newRegister(bus Bus, base uint16, reg Register) register {
	return register{bus: bus, addr: base + reg.Offset()}
}

// noCopy makes go vet's copylocks check flag copies of a Port.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Port is one UART instance.
type Port struct {
	noCopy noCopy

	base uint16

	dataDLABLSB        register
	interruptDLABMSB   register
	interruptIdentFIFO register
	lineControl        register
	modemControl       register
	lineStatus         register
	modemStatus        register
	scratch            register
}

// New binds a Port to the eight registers starting at base on bus. It does
// not touch the hardware; whether a UART exists at base is the caller's
// concern (see Probe).
func New(bus Bus, base uint16) *Port {
	return &Port{
		base:               base,
		dataDLABLSB:        newRegister(bus, base, RegDataDLABLSB),
		interruptDLABMSB:   newRegister(bus, base, RegInterruptDLABMSB),
		interruptIdentFIFO: newRegister(bus, base, RegInterruptIdentFIFO),
		lineControl:        newRegister(bus, base, RegLineControl),
		modemControl:       newRegister(bus, base, RegModemControl),
		lineStatus:         newRegister(bus, base, RegLineStatus),
		modemStatus:        newRegister(bus, base, RegModemStatus),
		scratch:            newRegister(bus, base, RegScratch),
	}
}

// Base returns the base I/O address the Port was created with.
func (p *Port) Base() uint16 { return p.base }

// Address returns the I/O address of reg on this Port. reg must be Valid.
func (p *Port) Address(reg Register) uint16 {
	return p.registers()[reg].address()
}

// registers returns the handles in hardware offset order.
func (p *Port) registers() [registerCount]register {
	return [registerCount]register{
		p.dataDLABLSB,
		p.interruptDLABMSB,
		p.interruptIdentFIFO,
		p.lineControl,
		p.modemControl,
		p.lineStatus,
		p.modemStatus,
		p.scratch,
	}
}
