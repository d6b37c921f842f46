package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/tinyrange/uart"
	"golang.org/x/term"
)

// consoleEscape ends the console session (Ctrl-]).
const consoleEscape = 0x1D

const consoleIdle = time.Millisecond

// console forwards stdin to the UART and received bytes to stdout until
// the escape key, EOF on stdin, or ctx ends.
func (s *session) console(ctx context.Context) error {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("enable raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
	}
	fmt.Fprintf(os.Stderr, "connected to 0x%04x, Ctrl-] to quit\r\n", s.port.Base())

	keys := make(chan byte, 64)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readKeys(os.Stdin, keys, readErr, done)

	out := os.Stdout
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read stdin: %w", err)
		case k := <-keys:
			if k == consoleEscape {
				return nil
			}
			if err := s.port.TryWriteChar(rune(k), s.spin); err != nil {
				return fmt.Errorf("console: %w", err)
			}
		default:
			if !s.drain(out) {
				time.Sleep(consoleIdle)
			}
		}
	}
}

// readKeys sends each byte read from r to keys until r fails or done is
// closed. The read error is sent once on readErr, which needs room for it.
func readKeys(r io.Reader, keys chan<- byte, readErr chan<- error, done <-chan struct{}) {
	var buf [1]byte
	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			select {
			case keys <- buf[0]:
			case <-done:
				return
			}
		}
		if err != nil {
			readErr <- err
			return
		}
	}
}

// drain copies every byte the UART has received to w and reports whether
// there was any.
func (s *session) drain(w io.Writer) bool {
	got := false
	for {
		b, err := s.port.ReadByte()
		if errors.Is(err, uart.ErrNoData) {
			return got
		}
		got = true
		if status := s.port.LineStatus(); status.Errors() {
			slog.Debug("console: line error", "status", status.String())
		}
		if _, err := w.Write([]byte{b}); err != nil {
			slog.Warn("console: write stdout", "error", err)
			return got
		}
	}
}
