package uart

// Init puts the UART into the driver's polling configuration: interrupts
// off, 38400 baud, line options (7, true, none), FIFOs enabled and cleared.
// It must run before any other register operation.
func (p *Port) Init() {
	p.SetInterruptMask(InterruptNone)
	p.SetDivisorSpeed(Baud38400)
	p.SetLineOptions(7, true, ParityNone)
	p.SetFIFOOptions(FIFOInit)
}

// SetFIFOOptions writes options to the FIFO control register unchanged.
func (p *Port) SetFIFOOptions(options byte) {
	p.interruptIdentFIFO.write(options)
}

// SetInterruptMask writes mask to the interrupt enable register.
func (p *Port) SetInterruptMask(mask Interrupt) {
	p.interruptDLABMSB.write(byte(mask))
}

// SetDivisorSpeed programs the baud-rate divisor. While the divisor latch
// access bit is set, offsets 0 and 1 address the divisor LSB and MSB instead
// of the data and interrupt enable registers, so nothing else may touch the
// Port until this returns.
func (p *Port) SetDivisorSpeed(div DivisorSpeed) {
	lcr := p.lineControl.read()
	p.lineControl.write(lcr | LCRDivisorLatch)
	p.dataDLABLSB.write(div.Low())
	p.interruptDLABMSB.write(div.High())
	p.lineControl.write(lcr &^ LCRDivisorLatch)
}

// SetLineOptions writes dataBits | stopBits<<1 | parity to the line control
// register. Nothing is validated: dataBits is written as given and any bits
// above the word-length field land in the neighbouring fields.
//
// On a 16550 the word length is LCR bits 0-1 (0 = 5 bits ... 3 = 8 bits) and
// the stop-bit select is bit 2, where set means two stop bits, or 1.5 with a
// five-bit word. The stopBits flag here lands on bit 1, the high bit of the
// word-length field; callers that want the data-sheet meaning should encode
// it into dataBits themselves.
func (p *Port) SetLineOptions(dataBits uint8, stopBits bool, parity Parity) {
	var stop uint8
	if stopBits {
		stop = 1
	}
	p.lineControl.write(dataBits | stop<<1 | uint8(parity))
}

// PacketReceived reports whether the data ready bit is set.
func (p *Port) PacketReceived() bool {
	return p.LineStatus().DataReady()
}

// TransmitEmpty reports whether the transmit holding register is empty.
func (p *Port) TransmitEmpty() bool {
	return p.LineStatus().TransmitEmpty()
}

// LineStatus reads the line status register.
func (p *Port) LineStatus() LineStatus {
	return LineStatus(p.lineStatus.read())
}

// ModemStatus reads the modem status register. Reading clears its delta bits.
func (p *Port) ModemStatus() byte {
	return p.modemStatus.read()
}

// SetModemControl writes the modem control register.
func (p *Port) SetModemControl(mcr byte) {
	p.modemControl.write(mcr)
}

// WriteChar spins until the transmitter is empty and then sends the low
// eight bits of c. Anything above U+00FF is truncated, not encoded.
//
// WriteChar never gives up: with no UART at the Port's address it spins
// forever. Use TryWriteChar or WriteContext when that matters.
func (p *Port) WriteChar(c rune) {
	spinUntil(p.TransmitEmpty, unbounded)
	p.dataDLABLSB.write(byte(c))
}

// WriteString sends each rune of s with WriteChar. It always returns
// len(s), nil.
func (p *Port) WriteString(s string) (int, error) {
	for _, c := range s {
		p.WriteChar(c)
	}
	return len(s), nil
}

// Write sends p as text, one rune at a time, like WriteString. This is what
// makes fmt.Fprintf(port, ...) work. It always returns len(b), nil.
func (p *Port) Write(b []byte) (int, error) {
	return p.WriteString(string(b))
}

// WriteByte sends b unchanged. It always returns nil.
func (p *Port) WriteByte(b byte) error {
	spinUntil(p.TransmitEmpty, unbounded)
	p.dataDLABLSB.write(b)
	return nil
}

// ReadByte returns the received byte if the data ready bit is set and
// ErrNoData otherwise. It never waits.
func (p *Port) ReadByte() (byte, error) {
	if !p.PacketReceived() {
		return 0, ErrNoData
	}
	return p.dataDLABLSB.read(), nil
}

// Probe reports whether something at the Port's address behaves like a
// UART scratch register. An 8250 has no scratch register and fails it.
func (p *Port) Probe() bool {
	for _, pattern := range []byte{0x55, 0xAA} {
		p.scratch.write(pattern)
		if p.scratch.read() != pattern {
			return false
		}
	}
	return true
}

// SelfTest puts the UART in loopback, sends 0xAE and checks it comes back,
// then selects normal operation with DTR, RTS, OUT1 and OUT2 set. limit
// bounds each wait in status polls; a negative limit waits forever.
func (p *Port) SelfTest(limit int) error {
	p.SetModemControl(MCRLoopback)
	if err := p.TryWriteChar(selfTestByte, limit); err != nil {
		return err
	}
	if !spinUntil(p.PacketReceived, limit) {
		return ErrSelfTest
	}
	if b := p.dataDLABLSB.read(); b != selfTestByte {
		return &SelfTestError{Got: b}
	}
	p.SetModemControl(MCRNormal)
	return nil
}

const selfTestByte = 0xAE
