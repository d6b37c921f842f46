// Package config loads serial port settings from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tinyrange/uart"
	"gopkg.in/yaml.v3"
)

// DefaultSpinLimit bounds status polls per byte when a config does not say.
const DefaultSpinLimit = 1 << 20

// Port describes how to bring up one UART. The zero value, once normalized,
// reproduces uart.Port.Init.
type Port struct {
	// Base is a COM name ("com1") or a numeric I/O address ("0x3f8").
	Base     string `yaml:"base"`
	Baud     int    `yaml:"baud,omitempty"`
	DataBits *uint8 `yaml:"dataBits,omitempty"`
	StopBits *bool  `yaml:"stopBits,omitempty"`
	Parity   string `yaml:"parity,omitempty"`
	FIFO     *uint8 `yaml:"fifo,omitempty"`
	// SpinLimit bounds status polls per byte; negative waits forever.
	SpinLimit int `yaml:"spinLimit,omitempty"`
}

func (p *Port) normalize() {
	if p.Base == "" {
		p.Base = "com1"
	}
	if p.Baud == 0 {
		p.Baud = uart.Baud38400.Baud()
	}
	if p.DataBits == nil {
		v := uint8(7)
		p.DataBits = &v
	}
	if p.StopBits == nil {
		v := true
		p.StopBits = &v
	}
	if p.Parity == "" {
		p.Parity = uart.ParityNone.String()
	}
	if p.FIFO == nil {
		v := uint8(uart.FIFOInit)
		p.FIFO = &v
	}
	p.SpinLimit = spinLimit(p.SpinLimit)
}

// spinLimit maps the unset value 0 to DefaultSpinLimit. A limit of zero
// polls would fail every write on an idle transmitter.
func spinLimit(n int) int {
	if n == 0 {
		return DefaultSpinLimit
	}
	return n
}

// Default returns the normalized zero configuration.
func Default() Port {
	var p Port
	p.normalize()
	return p
}

// Load reads and normalizes a YAML port configuration.
func Load(path string) (Port, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Port{}, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and normalizes a YAML port configuration.
func Parse(data []byte) (Port, error) {
	var p Port
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Port{}, fmt.Errorf("parse port config: %w", err)
	}
	p.normalize()
	if _, err := p.Settings(); err != nil {
		return Port{}, err
	}
	return p, nil
}

// Settings are the decoded register values for a Port.
type Settings struct {
	Base     uint16
	Divisor  uart.DivisorSpeed
	DataBits uint8
	StopBits bool
	Parity   uart.Parity
	FIFO     byte

	// SpinLimit is never zero: zero resolves to DefaultSpinLimit.
	SpinLimit int
}

// Settings resolves the textual fields. p must be normalized.
func (p Port) Settings() (Settings, error) {
	base, err := ParseBase(p.Base)
	if err != nil {
		return Settings{}, err
	}
	div, err := uart.DivisorFor(p.Baud)
	if err != nil {
		return Settings{}, err
	}
	parity, err := uart.ParseParity(p.Parity)
	if err != nil {
		return Settings{}, err
	}
	if p.DataBits == nil || p.StopBits == nil || p.FIFO == nil {
		return Settings{}, fmt.Errorf("config: port settings not normalized")
	}
	return Settings{
		Base:     base,
		Divisor:  div,
		DataBits: *p.DataBits,
		StopBits: *p.StopBits,
		Parity:   parity,
		FIFO:     *p.FIFO,

		SpinLimit: spinLimit(p.SpinLimit),
	}, nil
}

// Apply programs port with s in the same order as uart.Port.Init.
func (s Settings) Apply(port *uart.Port) {
	port.SetInterruptMask(uart.InterruptNone)
	port.SetDivisorSpeed(s.Divisor)
	port.SetLineOptions(s.DataBits, s.StopBits, s.Parity)
	port.SetFIFOOptions(s.FIFO)
}

// ParseBase accepts a COM name or a number in any base strconv understands.
func ParseBase(s string) (uint16, error) {
	if p, ok := uart.ParseKnownPort(s); ok {
		return p.Base(), nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("config: invalid port base %q", s)
	}
	return uint16(v), nil
}

// Write encodes p as YAML to path.
func Write(path string, p Port) error {
	p.normalize()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
