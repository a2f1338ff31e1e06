package output

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"

	"github.com/coreman2200/arcaluminis-show/internal/frame"
)

// ErrNoPort is returned when no SPI port can be opened.
var ErrNoPort = errors.New("output: no spi port")

// DefaultFreqKHz suits WS281x strips driven over SPI.
const DefaultFreqKHz = 2500

// LEDOptions configure a physical strip.
type LEDOptions struct {
	Name    string `json:"name" yaml:"name" toml:"name"`
	Port    string `json:"port" yaml:"port" toml:"port"`
	FreqKHz int    `json:"freq_khz" yaml:"freq_khz" toml:"freq_khz"`
	Layout  Layout `json:"layout" yaml:"layout" toml:"layout"`
}

// LEDSink drives a WS281x strip through an nrzled device.
type LEDSink struct {
	name   string
	layout Layout
	dev    *nrzled.Dev
	port   io.Closer

	mu  sync.Mutex
	buf []byte
}

// NewLEDSink drives the strip on p. When p is a spi.PortCloser it is
// closed with the sink.
func NewLEDSink(name string, p spi.Port, l Layout, freq physic.Frequency) (*LEDSink, error) {
	if freq <= 0 {
		freq = DefaultFreqKHz * physic.KiloHertz
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{NumPixels: l.Count(), Channels: 3, Freq: freq})
	if err != nil {
		return nil, fmt.Errorf("output: nrzled: %w", err)
	}
	s := &LEDSink{name: name, layout: l, dev: d}
	if c, ok := p.(io.Closer); ok {
		s.port = c
	}
	if s.name == "" {
		s.name = "led"
	}
	return s, nil
}

// OpenLED initialises the host drivers and opens the named SPI port, the
// first available one when o.Port is empty.
func OpenLED(o LEDOptions) (*LEDSink, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("output: host init: %w", err)
	}
	p, err := spireg.Open(o.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPort, err)
	}
	freq := o.FreqKHz
	if freq <= 0 {
		freq = DefaultFreqKHz
	}
	s, err := NewLEDSink(o.Name, p, o.Layout, physic.Frequency(freq)*physic.KiloHertz)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

func (s *LEDSink) Name() string { return s.name }

func (s *LEDSink) Layout() Layout { return s.layout }

func (s *LEDSink) Write(f *frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = s.layout.Map(f, s.buf)
	_, err := s.dev.Write(s.buf)
	return err
}

// Close blanks the strip and releases the port.
func (s *LEDSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.dev.Halt()
	if s.port != nil {
		err = errors.Join(err, s.port.Close())
	}
	return err
}
