package serial

import (
	"bytes"
	"context"
	"sync"
	"testing"
)

// testIRQLine captures interrupt line state changes
type testIRQLine struct {
	mu     sync.Mutex
	level  bool
	events []bool
}

func (t *testIRQLine) SetLevel(level bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = level
	t.events = append(t.events, level)
}

func (t *testIRQLine) getLevel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

func (t *testIRQLine) getEvents() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]bool, len(t.events))
	copy(result, t.events)
	return result
}

func (t *testIRQLine) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = false
	t.events = t.events[:0]
}

// testReader provides controllable input for testing
type testReader struct {
	mu    sync.Mutex
	data  []byte
	index int
}

func (t *testReader) Read(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index >= len(t.data) {
		return 0, nil
	}
	n := copy(buf, t.data[t.index:])
	t.index += n
	return n, nil
}

func (t *testReader) addData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = append(t.data, data...)
}

func (t *testReader) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = t.data[:0]
	t.index = 0
}

// testWriter captures output for testing
type testWriter struct {
	mu   sync.Mutex
	data []byte
}

func (t *testWriter) Write(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = append(t.data, buf...)
	return len(buf), nil
}

func (t *testWriter) getData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]byte, len(t.data))
	copy(result, t.data)
	return result
}

func (t *testWriter) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = t.data[:0]
}

// TestSerialTHRRHRFIFO tests transmit/receive FIFO functionality
func TestSerialTHRRHRFIFO(t *testing.T) {
	irqLine := &testIRQLine{}
	writer := &testWriter{}
	reader := &testReader{}
	u := New(0x3F8, irqLine, writer, reader)

	// Enable FIFO mode
	// FCR: enable FIFO (bit 0), clear RX FIFO (bit 1), clear TX FIFO (bit 2)
	if err := u.WriteIOPort(0x3F8+2, []byte{0x07}); err != nil {
		t.Fatalf("write FCR: %v", err)
	}

	// Enable RX interrupt (IER bit 0)
	if err := u.WriteIOPort(0x3F8+1, []byte{0x01}); err != nil {
		t.Fatalf("write IER: %v", err)
	}

	// Test RX FIFO: add data to reader
	testData := []byte{'A', 'B', 'C', 'D', 'E'}
	reader.addData(testData)

	// Poll multiple times to read all data into FIFO (Poll reads one byte at a time)
	ctx := context.Background()
	for i := 0; i < len(testData); i++ {
		if err := u.Poll(ctx); err != nil {
			t.Fatalf("poll[%d]: %v", i, err)
		}
	}

	// Read data from RHR
	readBuf := make([]byte, len(testData))
	for i := range readBuf {
		buf := []byte{0}
		if err := u.ReadIOPort(0x3F8, buf); err != nil {
			t.Fatalf("read RHR[%d]: %v", i, err)
		}
		readBuf[i] = buf[0]
	}

	// Verify data matches
	if !bytes.Equal(readBuf, testData) {
		t.Fatalf("RX data mismatch: got %v, want %v", readBuf, testData)
	}

	// Test TX FIFO: write data to THR
	txData := []byte{'X', 'Y', 'Z'}
	for _, b := range txData {
		if err := u.WriteIOPort(0x3F8, []byte{b}); err != nil {
			t.Fatalf("write THR: %v", err)
		}
	}

	// Poll to process TX FIFO
	if err := u.Poll(ctx); err != nil {
		t.Fatalf("poll TX: %v", err)
	}

	// Verify data was written
	written := writer.getData()
	if !bytes.Equal(written, txData) {
		t.Fatalf("TX data mismatch: got %v, want %v", written, txData)
	}
}

// TestSerialFIFOTriggerLevel tests FIFO trigger level behavior
func TestSerialFIFOTriggerLevel(t *testing.T) {
	irqLine := &testIRQLine{}
	reader := &testReader{}
	u := New(0x3F8, irqLine, nil, reader)

	// Enable FIFO with trigger level 4 (FCR bits 6-7 = 0x40)
	if err := u.WriteIOPort(0x3F8+2, []byte{0x41}); err != nil {
		t.Fatalf("write FCR: %v", err)
	}

	// Enable OUT2 for interrupts
	if err := u.WriteIOPort(0x3F8+4, []byte{0x08}); err != nil {
		t.Fatalf("write MCR: %v", err)
	}

	// Enable RX interrupt
	if err := u.WriteIOPort(0x3F8+1, []byte{0x01}); err != nil {
		t.Fatalf("write IER: %v", err)
	}

	// Add 3 bytes (below trigger)
	reader.addData([]byte{'A', 'B', 'C'})
	irqLine.reset()
	// Poll 3 times to read all 3 bytes
	for i := 0; i < 3; i++ {
		if err := u.Poll(context.Background()); err != nil {
			t.Fatalf("poll[%d]: %v", i, err)
		}
	}

	// Should not trigger interrupt yet (only 3 bytes, trigger is 4)
	events := irqLine.getEvents()
	hasHigh := false
	for _, e := range events {
		if e {
			hasHigh = true
			break
		}
	}
	if hasHigh {
		t.Fatalf("unexpected interrupt with 3 bytes, events: %v", events)
	}

	// Add 1 more byte to reach trigger level 4
	reader.addData([]byte{'D'})
	// Poll to read the 4th byte - this should trigger interrupt
	if err := u.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	// Should trigger interrupt now
	events = irqLine.getEvents()
	hasHigh = false
	for _, e := range events {
		if e {
			hasHigh = true
			break
		}
	}
	if !hasHigh {
		t.Fatalf("expected interrupt at trigger level, events: %v", events)
	}
}

// TestSerialInterruptGeneration tests interrupt generation based on IER
func TestSerialInterruptGeneration(t *testing.T) {
	irqLine := &testIRQLine{}
	writer := &testWriter{}
	reader := &testReader{}
	u := New(0x3F8, irqLine, writer, reader)

	// Enable OUT2 (MCR bit 3) - required for interrupts
	if err := u.WriteIOPort(0x3F8+4, []byte{0x08}); err != nil {
		t.Fatalf("write MCR: %v", err)
	}

	// Test RX data available interrupt (IER bit 0)
	irqLine.reset()
	if err := u.WriteIOPort(0x3F8+1, []byte{0x01}); err != nil {
		t.Fatalf("write IER: %v", err)
	}

	reader.addData([]byte{'X'})
	if err := u.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	events := irqLine.getEvents()
	if len(events) == 0 || !events[len(events)-1] {
		t.Fatalf("expected RX interrupt, events: %v", events)
	}

	// Read IIR to verify interrupt type
	buf := []byte{0}
	if err := u.ReadIOPort(0x3F8+2, buf); err != nil {
		t.Fatalf("read IIR: %v", err)
	}
	iir := buf[0]
	// IIR bit 0 = 0 means interrupt pending, bits 1-2 = 00 means RX data available
	if iir&0x07 != 0x04 {
		t.Fatalf("unexpected IIR value: 0x%02x (expected 0x04 for RX data)", iir)
	}

	// Test TX holding register empty interrupt (IER bit 1)
	irqLine.reset()
	if err := u.WriteIOPort(0x3F8+1, []byte{0x02}); err != nil {
		t.Fatalf("write IER: %v", err)
	}

	// Clear RX data by reading
	if err := u.ReadIOPort(0x3F8, buf); err != nil {
		t.Fatalf("read RHR: %v", err)
	}

	// THRE should be set, triggering interrupt
	events = irqLine.getEvents()
	if len(events) == 0 || !events[len(events)-1] {
		t.Fatalf("expected THRE interrupt, events: %v", events)
	}

	// Read IIR to verify interrupt type
	if err := u.ReadIOPort(0x3F8+2, buf); err != nil {
		t.Fatalf("read IIR: %v", err)
	}
	iir = buf[0]
	// IIR bits 1-2 = 01 means THRE
	if iir&0x07 != 0x02 {
		t.Fatalf("unexpected IIR value: 0x%02x (expected 0x02 for THRE)", iir)
	}
}

// TestSerialModemControlLoopback tests loopback mode
func TestSerialModemControlLoopback(t *testing.T) {
	irqLine := &testIRQLine{}
	writer := &testWriter{}
	u := New(0x3F8, irqLine, writer, nil)

	// Enable OUT2 for interrupts
	if err := u.WriteIOPort(0x3F8+4, []byte{0x08}); err != nil {
		t.Fatalf("write MCR: %v", err)
	}

	// Enable FIFO mode for proper loopback behavior
	if err := u.WriteIOPort(0x3F8+2, []byte{0x01}); err != nil {
		t.Fatalf("write FCR: %v", err)
	}

	// Enable loopback mode (MCR bit 4) and OUT2
	if err := u.WriteIOPort(0x3F8+4, []byte{0x18}); err != nil {
		t.Fatalf("write MCR loopback: %v", err)
	}

	// Enable RX interrupt
	if err := u.WriteIOPort(0x3F8+1, []byte{0x01}); err != nil {
		t.Fatalf("write IER: %v", err)
	}

	// Write to THR - should loop back to RX
	txData := []byte{'L', 'O', 'O', 'P'}
	for _, b := range txData {
		if err := u.WriteIOPort(0x3F8, []byte{b}); err != nil {
			t.Fatalf("write THR: %v", err)
		}
	}

	// Poll multiple times to process all TX bytes (each poll processes one TX byte from FIFO)
	for i := 0; i < len(txData); i++ {
		if err := u.Poll(context.Background()); err != nil {
			t.Fatalf("poll[%d]: %v", i, err)
		}
	}

	// Verify data looped back (not written to output)
	written := writer.getData()
	if len(written) != 0 {
		t.Fatalf("unexpected output in loopback mode: %v", written)
	}

	// Read looped back data
	readBuf := make([]byte, len(txData))
	for i := range readBuf {
		buf := []byte{0}
		if err := u.ReadIOPort(0x3F8, buf); err != nil {
			t.Fatalf("read RHR: %v", err)
		}
		readBuf[i] = buf[0]
	}

	if !bytes.Equal(readBuf, txData) {
		t.Fatalf("loopback data mismatch: got %v, want %v", readBuf, txData)
	}

	// Test MSR reflects MCR in loopback mode
	// Set DTR (MCR bit 0) and RTS (MCR bit 1)
	if err := u.WriteIOPort(0x3F8+4, []byte{0x1B}); err != nil {
		t.Fatalf("write MCR with DTR/RTS: %v", err)
	}

	// Read MSR
	buf := []byte{0}
	if err := u.ReadIOPort(0x3F8+6, buf); err != nil {
		t.Fatalf("read MSR: %v", err)
	}
	msr := buf[0]

	// In loopback: DTR -> DSR (bit 5), RTS -> CTS (bit 4)
	if msr&0x30 != 0x30 {
		t.Fatalf("MSR mismatch in loopback: got 0x%02x, expected DSR and CTS set", msr)
	}
}

// TestSerialOUT2InterruptGate tests OUT2 interrupt gating
func TestSerialOUT2InterruptGate(t *testing.T) {
	irqLine := &testIRQLine{}
	reader := &testReader{}
	u := New(0x3F8, irqLine, nil, reader)

	// Enable RX interrupt
	if err := u.WriteIOPort(0x3F8+1, []byte{0x01}); err != nil {
		t.Fatalf("write IER: %v", err)
	}

	// OUT2 disabled (MCR bit 3 = 0) - interrupts should be gated
	// First ensure MCR is 0 (OUT2 disabled)
	if err := u.WriteIOPort(0x3F8+4, []byte{0x00}); err != nil {
		t.Fatalf("write MCR disable OUT2: %v", err)
	}
	irqLine.reset()
	reader.addData([]byte{'X'})
	if err := u.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	events := irqLine.getEvents()
	// Note: initial state might set level to false, filter that out
	hasHigh := false
	for _, e := range events {
		if e {
			hasHigh = true
			break
		}
	}
	if hasHigh {
		t.Fatalf("unexpected interrupt with OUT2 disabled, events: %v", events)
	}

	// Enable OUT2
	if err := u.WriteIOPort(0x3F8+4, []byte{0x08}); err != nil {
		t.Fatalf("write MCR with OUT2: %v", err)
	}

	// Interrupt should now be asserted
	events = irqLine.getEvents()
	if len(events) == 0 || !events[len(events)-1] {
		t.Fatalf("expected interrupt with OUT2 enabled, events: %v", events)
	}
}

// TestSerialLSRStatus tests LSR status bits
func TestSerialLSRStatus(t *testing.T) {
	irqLine := &testIRQLine{}
	reader := &testReader{}
	u := New(0x3F8, irqLine, nil, reader)

	// Initially THRE and TEMT should be set
	buf := []byte{0}
	if err := u.ReadIOPort(0x3F8+5, buf); err != nil {
		t.Fatalf("read LSR: %v", err)
	}
	lsr := buf[0]
	if lsr&0x60 != 0x60 {
		t.Fatalf("expected THRE and TEMT set initially, got 0x%02x", lsr)
	}

	// Enable FIFO mode to test FIFO behavior
	if err := u.WriteIOPort(0x3F8+2, []byte{0x01}); err != nil {
		t.Fatalf("write FCR: %v", err)
	}

	// Hold the transmitter so writes stay queued, then fill the FIFO.
	u.SetTransmitLatency(-1)
	for i := 0; i < 16; i++ {
		if err := u.WriteIOPort(0x3F8, []byte{'X'}); err != nil {
			t.Fatalf("write THR[%d]: %v", i, err)
		}
	}

	if err := u.ReadIOPort(0x3F8+5, buf); err != nil {
		t.Fatalf("read LSR: %v", err)
	}
	lsr = buf[0]
	if lsr&0x20 != 0 {
		t.Fatalf("expected THRE cleared while transmitter busy, got 0x%02x", lsr)
	}

	// Add RX data
	reader.addData([]byte{'Y'})
	if err := u.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	// Data ready bit should be set
	if err := u.ReadIOPort(0x3F8+5, buf); err != nil {
		t.Fatalf("read LSR: %v", err)
	}
	lsr = buf[0]
	if lsr&0x01 == 0 {
		t.Fatalf("expected data ready bit set, got 0x%02x", lsr)
	}
}

// TestSerialFIFOClear tests FIFO clear operations
func TestSerialFIFOClear(t *testing.T) {
	irqLine := &testIRQLine{}
	reader := &testReader{}
	u := New(0x3F8, irqLine, nil, reader)

	// Enable FIFO
	if err := u.WriteIOPort(0x3F8+2, []byte{0x01}); err != nil {
		t.Fatalf("write FCR: %v", err)
	}

	// Add data to RX FIFO
	reader.addData([]byte{'A', 'B', 'C'})
	if err := u.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	// Clear RX FIFO (FCR bit 1)
	if err := u.WriteIOPort(0x3F8+2, []byte{0x03}); err != nil {
		t.Fatalf("write FCR clear RX: %v", err)
	}

	// Try to read - should get nothing
	buf := []byte{0}
	if err := u.ReadIOPort(0x3F8, buf); err != nil {
		t.Fatalf("read RHR: %v", err)
	}
	if buf[0] != 0 {
		t.Fatalf("expected empty FIFO after clear, got 0x%02x", buf[0])
	}

	// LSR data ready should be clear
	lsrBuf := []byte{0}
	if err := u.ReadIOPort(0x3F8+5, lsrBuf); err != nil {
		t.Fatalf("read LSR: %v", err)
	}
	if lsrBuf[0]&0x01 != 0 {
		t.Fatalf("expected data ready cleared, got 0x%02x", lsrBuf[0])
	}
}

func readPort(t *testing.T, u *UART16550, port uint16) byte {
	t.Helper()
	buf := []byte{0}
	if err := u.ReadIOPort(port, buf); err != nil {
		t.Fatalf("read 0x%x: %v", port, err)
	}
	return buf[0]
}

func writePort(t *testing.T, u *UART16550, port uint16, value byte) {
	t.Helper()
	if err := u.WriteIOPort(port, []byte{value}); err != nil {
		t.Fatalf("write 0x%x: %v", port, err)
	}
}

// TestSerialDivisorLatch tests that DLAB remaps offsets 0 and 1
func TestSerialDivisorLatch(t *testing.T) {
	writer := &testWriter{}
	u := New(0x2F8, nil, writer, nil)

	writePort(t, u, 0x2F8+1, 0x05) // IER
	writePort(t, u, 0x2F8+3, 0x83) // DLAB + 8 bits
	writePort(t, u, 0x2F8+0, 0x0C)
	writePort(t, u, 0x2F8+1, 0x01)

	if got := readPort(t, u, 0x2F8+0); got != 0x0C {
		t.Fatalf("DLL = 0x%02x, want 0x0c", got)
	}
	if got := readPort(t, u, 0x2F8+1); got != 0x01 {
		t.Fatalf("DLM = 0x%02x, want 0x01", got)
	}

	writePort(t, u, 0x2F8+3, 0x03)

	regs := u.Registers()
	if regs.Divisor() != 0x010C {
		t.Fatalf("divisor = 0x%04x, want 0x010c", regs.Divisor())
	}
	if regs.IER != 0x05 {
		t.Fatalf("IER = 0x%02x, want 0x05 (latch writes must not touch it)", regs.IER)
	}
	if got := readPort(t, u, 0x2F8+1); got != 0x05 {
		t.Fatalf("IER read = 0x%02x, want 0x05", got)
	}
	if len(writer.getData()) != 0 {
		t.Fatalf("divisor writes leaked to the line: %q", writer.getData())
	}
}

// TestSerialTransmitLatency tests THRE staying clear for the configured reads
func TestSerialTransmitLatency(t *testing.T) {
	writer := &testWriter{}
	u := New(0x3F8, nil, writer, nil)
	u.SetTransmitLatency(3)

	writePort(t, u, 0x3F8, 'Q')
	for i := 0; i < 3; i++ {
		if lsr := readPort(t, u, 0x3F8+5); lsr&0x20 != 0 {
			t.Fatalf("read %d: THRE set early, lsr 0x%02x", i, lsr)
		}
	}
	if lsr := readPort(t, u, 0x3F8+5); lsr&0x60 != 0x60 {
		t.Fatalf("THRE/TEMT not set after latency, lsr 0x%02x", lsr)
	}
	if got := string(writer.getData()); got != "Q" {
		t.Fatalf("output = %q, want %q", got, "Q")
	}
}

// TestSerialStuckTransmitter tests that a negative latency never completes
func TestSerialStuckTransmitter(t *testing.T) {
	writer := &testWriter{}
	u := New(0x3F8, nil, writer, nil)
	u.SetTransmitLatency(-1)

	writePort(t, u, 0x3F8, 'Z')
	for i := 0; i < 100; i++ {
		if lsr := readPort(t, u, 0x3F8+5); lsr&0x20 != 0 {
			t.Fatalf("THRE set on stuck transmitter, lsr 0x%02x", lsr)
		}
	}
	if err := u.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(writer.getData()) != 0 {
		t.Fatalf("stuck transmitter produced output %q", writer.getData())
	}

	// Clearing the TX FIFO frees the holding register.
	writePort(t, u, 0x3F8+2, 0x05)
	if lsr := readPort(t, u, 0x3F8+5); lsr&0x20 == 0 {
		t.Fatalf("THRE clear after TX FIFO reset, lsr 0x%02x", lsr)
	}
}

// TestSerialLineEndings tests CR/LF folding on the output stream
func TestSerialLineEndings(t *testing.T) {
	writer := &testWriter{}
	u := New(0x3F8, nil, writer, nil)

	for _, b := range []byte("a\r\nb\nc\r") {
		writePort(t, u, 0x3F8, b)
	}
	if got, want := string(writer.getData()), "a\nb\nc\n"; got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
	if got := u.Stats().TxBytes; got != 7 {
		t.Fatalf("TxBytes = %d, want 7", got)
	}
}

// TestSerialIIRFIFOBits tests IIR bits 6-7 following FCR bit 0
func TestSerialIIRFIFOBits(t *testing.T) {
	u := New(0x3F8, nil, nil, nil)

	if iir := readPort(t, u, 0x3F8+2); iir != 0x01 {
		t.Fatalf("IIR = 0x%02x, want 0x01", iir)
	}
	writePort(t, u, 0x3F8+2, 0xC7)
	if iir := readPort(t, u, 0x3F8+2); iir != 0xC1 {
		t.Fatalf("IIR = 0x%02x, want 0xc1", iir)
	}
	if regs := u.Registers(); regs.FCR != 0xC7 {
		t.Fatalf("FCR = 0x%02x, want 0xc7", regs.FCR)
	}
}

// TestSerialReset tests that Reset restores power-on state
func TestSerialReset(t *testing.T) {
	reader := &testReader{}
	u := New(0x3F8, nil, nil, reader)

	writePort(t, u, 0x3F8+7, 0x5A)
	writePort(t, u, 0x3F8+3, 0x1B)
	reader.addData([]byte{'r'})
	if err := u.Poll(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	if err := u.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if regs := u.Registers(); regs != (Registers{}) {
		t.Fatalf("registers after reset = %+v", regs)
	}
	if lsr := readPort(t, u, 0x3F8+5); lsr != 0x60 {
		t.Fatalf("LSR after reset = 0x%02x, want 0x60", lsr)
	}
}

// TestSerialOverrunClearedByLSRRead tests that reading LSR clears the overrun error
func TestSerialOverrunClearedByLSRRead(t *testing.T) {
	irqLine := &testIRQLine{}
	u := New(0x3F8, irqLine, nil, nil)

	// Loopback with FIFOs off holds one byte; the second overruns.
	writePort(t, u, 0x3F8+4, 0x18)
	writePort(t, u, 0x3F8+1, 0x04)
	writePort(t, u, 0x3F8, 'a')
	writePort(t, u, 0x3F8, 'b')
	if !irqLine.getLevel() {
		t.Fatalf("line status interrupt not raised on overrun")
	}

	if lsr := readPort(t, u, 0x3F8+5); lsr&0x03 != 0x03 {
		t.Fatalf("first LSR = 0x%02x, want data ready and overrun", lsr)
	}
	if lsr := readPort(t, u, 0x3F8+5); lsr&0x02 != 0 {
		t.Fatalf("second LSR = 0x%02x, overrun still set", lsr)
	}
	if irqLine.getLevel() {
		t.Fatalf("line status interrupt still raised after LSR read")
	}
	if got := readPort(t, u, 0x3F8); got != 'a' {
		t.Fatalf("RBR = %q, want 'a'", got)
	}
	if got := u.Stats().Overrun; got != 1 {
		t.Fatalf("Overrun = %d, want 1", got)
	}
}

// blockingReader delivers bytes only when fed.
type blockingReader struct {
	ch chan byte
}

func (r *blockingReader) Read(buf []byte) (int, error) {
	buf[0] = <-r.ch
	return 1, nil
}

// TestSerialPollBlockedReaderKeepsRegistersUsable tests that a Poll waiting
// on input does not hold up register access
func TestSerialPollBlockedReaderKeepsRegistersUsable(t *testing.T) {
	reader := &blockingReader{ch: make(chan byte)}
	u := New(0x3F8, nil, nil, reader)

	done := make(chan error, 1)
	go func() { done <- u.Poll(context.Background()) }()

	writePort(t, u, 0x3F8+7, 0x42)
	if got := readPort(t, u, 0x3F8+7); got != 0x42 {
		t.Fatalf("SCR = 0x%02x while Poll blocked, want 0x42", got)
	}

	reader.ch <- 'k'
	if err := <-done; err != nil {
		t.Fatalf("poll: %v", err)
	}
	if lsr := readPort(t, u, 0x3F8+5); lsr&0x01 == 0 {
		t.Fatalf("LSR = 0x%02x, want data ready", lsr)
	}
	if got := readPort(t, u, 0x3F8); got != 'k' {
		t.Fatalf("RBR = %q, want 'k'", got)
	}
}
