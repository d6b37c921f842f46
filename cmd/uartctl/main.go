// Command uartctl configures a 16550 UART and talks to it by polling.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/schollz/progressbar/v3"
	"github.com/tinyrange/uart"
	"github.com/tinyrange/uart/internal/chipset"
	"github.com/tinyrange/uart/internal/config"
	"github.com/tinyrange/uart/internal/devices/serial"
	"github.com/tinyrange/uart/internal/pio"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "uartctl: %v\n", err)
		os.Exit(1)
	}
}

type fixCrlf struct {
	w io.Writer
}

func (f *fixCrlf) Write(p []byte) (n int, err error) {
	if _, err := f.w.Write(bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\r', '\n'})); err != nil {
		return 0, err
	}
	return len(p), nil
}

type options struct {
	cfg       config.Port
	emulate   bool
	latency   int
	trace     bool
	timeout   time.Duration
	stripANSI bool
	noInit    bool
	// line receives what an emulated UART transmits.
	line io.Writer
	// lineIn, when set, is what the far end of an emulated line sends.
	lineIn io.Reader
}

// emulatePollInterval is how often the emulated chipset is polled.
const emulatePollInterval = time.Millisecond

func run() error {
	configFile := flag.String("config", "", "YAML port configuration file")
	portFlag := flag.String("port", "", "Port base: com1..com4 or an I/O address (default com1)")
	baud := flag.Int("baud", 0, "Baud rate; must divide 115200 (default 38400)")
	parity := flag.String("parity", "", "Parity: none, odd, even, mark, space")
	spinLimit := flag.Int("spin-limit", 0, "Status polls per byte before giving up; -1 waits forever, 0 uses the default")
	emulate := flag.Bool("emulate", false, "Drive an emulated 16550 whose line output is stdout")
	lineInput := flag.String("line-input", "", "File the far end of the emulated line sends (-emulate only)")
	latency := flag.Int("latency", 0, "Emulated transmitter latency in status reads (-emulate only)")
	trace := flag.Bool("trace", false, "Log every port access (implies -debug)")
	dbg := flag.Bool("debug", false, "Enable debug logging")
	timeout := flag.Duration("timeout", 0, "Give up on write/send after this long; overrides -spin-limit")
	stripANSI := flag.Bool("strip-ansi", false, "Remove terminal escape sequences before sending")
	noInit := flag.Bool("no-init", false, "Do not program the UART before the command")
	writeConfig := flag.String("write-config", "", "Write the effective configuration to this file and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [args...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Configure a 16550 UART over port I/O and transmit by polling.\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  init            program the UART and exit\n")
		fmt.Fprintf(os.Stderr, "  status          print line and modem status\n")
		fmt.Fprintf(os.Stderr, "  probe           check for a UART at the port\n")
		fmt.Fprintf(os.Stderr, "  selftest        run the loopback self-test\n")
		fmt.Fprintf(os.Stderr, "  write TEXT...   send the arguments, space separated, with a newline\n")
		fmt.Fprintf(os.Stderr, "  send FILE       send a file ('-' for stdin)\n")
		fmt.Fprintf(os.Stderr, "  console         interactive console; Ctrl-] quits\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s -port com2 -baud 115200 write hello\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -emulate -trace init\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -emulate -line-input reply.txt console\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *dbg || *trace {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(
		&fixCrlf{w: os.Stderr},
		&slog.HandlerOptions{Level: level},
	)))

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Base = *portFlag
		case "baud":
			cfg.Baud = *baud
		case "parity":
			cfg.Parity = *parity
		case "spin-limit":
			cfg.SpinLimit = *spinLimit
		}
	})
	if _, err := cfg.Settings(); err != nil {
		return err
	}

	if *writeConfig != "" {
		if err := config.Write(*writeConfig, cfg); err != nil {
			return err
		}
		slog.Info("configuration written", "file", *writeConfig)
		return nil
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("no command given")
	}

	var lineIn io.Reader
	if *lineInput != "" {
		f, err := os.Open(*lineInput)
		if err != nil {
			return fmt.Errorf("open line input: %w", err)
		}
		defer f.Close()
		lineIn = f
	}

	opts := options{
		cfg:       cfg,
		emulate:   *emulate,
		latency:   *latency,
		trace:     *trace,
		timeout:   *timeout,
		stripANSI: *stripANSI,
		noInit:    *noInit,
		line:      os.Stdout,
		lineIn:    lineIn,
	}
	return dispatch(opts, args[0], args[1:])
}

// session is an open Port plus what is needed to tear it down.
type session struct {
	port     *uart.Port
	settings config.Settings
	spin     int
	registry *uart.Registry
	closers  []func() error
}

func (s *session) Close() error {
	var errs []error
	if err := s.registry.Close(s.port); err != nil {
		errs = append(errs, err)
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func open(opts options) (*session, error) {
	settings, err := opts.cfg.Settings()
	if err != nil {
		return nil, err
	}
	s := &session{settings: settings, spin: settings.SpinLimit}

	var bus uart.Bus
	if opts.emulate {
		var (
			in     io.Reader
			lineIn *io.PipeReader
		)
		if opts.lineIn != nil {
			pr, pw := io.Pipe()
			go func() {
				_, err := io.Copy(pw, opts.lineIn)
				pw.CloseWithError(err)
			}()
			in, lineIn = pr, pr
		}
		dev := serial.New(settings.Base, nil, opts.line, in)
		dev.SetTransmitLatency(opts.latency)
		b := chipset.NewBuilder().WithLogger(slog.Default())
		if err := b.RegisterDevice("uart", dev); err != nil {
			return nil, err
		}
		cs, err := b.Build()
		if err != nil {
			return nil, err
		}
		if err := cs.Start(); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, cs.Stop)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- cs.Run(ctx, emulatePollInterval) }()
		s.closers = append(s.closers, func() error {
			cancel()
			if lineIn != nil {
				// Unblocks a Poll waiting on the line.
				lineIn.Close()
			}
			return <-done
		})
		bus = cs
		slog.Debug("using emulated 16550", "base", fmt.Sprintf("0x%04x", settings.Base))
	} else {
		dp, err := pio.OpenDevPort(slog.Default())
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, dp.Close)
		bus = dp
	}
	if opts.trace {
		bus = pio.NewTrace(bus, slog.Default())
	}

	s.registry = uart.NewRegistry(bus, slog.Default())
	if s.port, err = s.registry.Open(settings.Base); err != nil {
		return nil, err
	}

	if !opts.noInit {
		settings.Apply(s.port)
		slog.Debug("uart programmed",
			"base", fmt.Sprintf("0x%04x", settings.Base),
			"baud", settings.Divisor.Baud(),
			"parity", settings.Parity.String(),
			"fifo", fmt.Sprintf("0x%02x", settings.FIFO))
	}
	return s, nil
}

func dispatch(opts options, cmd string, args []string) error {
	s, err := open(opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Warn("close port", "error", err)
		}
	}()

	ctx := context.Background()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	switch cmd {
	case "init":
		return nil
	case "status":
		lsr := s.port.LineStatus()
		fmt.Printf("base:  0x%04x\n", s.port.Base())
		fmt.Printf("line:  %v\n", lsr)
		fmt.Printf("modem: 0x%02x\n", s.port.ModemStatus())
		return nil
	case "probe":
		if !s.port.Probe() {
			return fmt.Errorf("no UART at 0x%04x", s.port.Base())
		}
		fmt.Printf("UART present at 0x%04x\n", s.port.Base())
		return nil
	case "selftest":
		if err := s.port.SelfTest(s.spin); err != nil {
			return err
		}
		fmt.Println("self-test passed")
		return nil
	case "write":
		text := strings.Join(args, " ") + "\n"
		if opts.stripANSI {
			text = ansi.Strip(text)
		}
		return s.send(ctx, []byte(text), nil)
	case "send":
		if len(args) != 1 {
			return fmt.Errorf("send: expected one file")
		}
		return s.sendFile(ctx, args[0], opts.stripANSI)
	case "console":
		return s.console(ctx)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

const sendChunk = 256

// send transmits data in chunks. With a deadline or cancellation on ctx it
// waits on ctx alone and the spin limit does not apply.
func (s *session) send(ctx context.Context, data []byte, progress io.Writer) error {
	for len(data) > 0 {
		n := min(sendChunk, len(data))
		chunk := data[:n]
		var sent int
		var err error
		if s.spin < 0 || ctx.Done() != nil {
			sent, err = s.port.WriteContext(ctx, chunk)
		} else {
			sent, err = s.port.TryWriteString(string(chunk), s.spin)
		}
		if progress != nil {
			_, _ = progress.Write(chunk[:sent])
		}
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		data = data[n:]
	}
	return nil
}

func (s *session) sendFile(ctx context.Context, name string, stripANSI bool) error {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	if stripANSI {
		data = []byte(ansi.Strip(string(data)))
	}

	bar := progressbar.DefaultBytes(int64(len(data)), "sending "+name)
	if err := s.send(ctx, data, bar); err != nil {
		return err
	}
	if err := bar.Finish(); err != nil {
		return err
	}
	slog.Info("sent", "file", name, "bytes", len(data))
	return nil
}
