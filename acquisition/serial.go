package acquisition

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/neurosonar/neurosonar/config"
	"github.com/neurosonar/neurosonar/logging"
)

// DefaultDevicePatterns are the device nodes a USB or Bluetooth EEG bridge
// usually appears as
var DefaultDevicePatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/rfcomm*",
	"/dev/cu.usbserial*",
	"/dev/cu.usbmodem*",
}

// SerialPort is the subset of *serial.Port the source uses, so tests can
// replace the device.
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// SerialDriver opens serial bridges that stream raw float32 frames
type SerialDriver struct {
	BaudRate     int
	SampleRate   int
	ChannelCount int
	ReadTimeout  time.Duration
	Patterns     []string
}

// NewSerialDriver creates a driver from the acquisition config
func NewSerialDriver(cfg config.AcquisitionConfig) *SerialDriver {
	return &SerialDriver{
		BaudRate:     cfg.BaudRate,
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.ChannelCount,
		ReadTimeout:  500 * time.Millisecond,
		Patterns:     DefaultDevicePatterns,
	}
}

// Devices lists candidate device nodes, sorted
func (d *SerialDriver) Devices() ([]string, error) {
	var devices []string
	for _, pattern := range d.Patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad device pattern %q: %w", pattern, err)
		}
		devices = append(devices, matches...)
	}
	sort.Strings(devices)
	return devices, nil
}

// Open opens the named port. Streaming starts with Start.
func (d *SerialDriver) Open(name string) (Source, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        d.BaudRate,
		ReadTimeout: d.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrDeviceUnavailable, name, err)
	}
	return NewSerialSource(name, port, d.SampleRate, d.ChannelCount, d.ReadTimeout), nil
}

// SerialSource reads frames from an open serial port
type SerialSource struct {
	name         string
	port         SerialPort
	sampleRate   int
	channelCount int

	// A read that makes no progress for this long fails
	stallTimeout time.Duration

	mu      sync.Mutex
	started bool
	closed  bool
	logger  logging.Logger
}

// NewSerialSource wraps an already opened port
func NewSerialSource(name string, port SerialPort, sampleRate, channelCount int, readTimeout time.Duration) *SerialSource {
	stall := 4 * readTimeout
	if stall <= 0 {
		stall = 2 * time.Second
	}

	return &SerialSource{
		name:         name,
		port:         port,
		sampleRate:   sampleRate,
		channelCount: channelCount,
		stallTimeout: stall,
		logger: logging.WithFields(logging.Fields{
			"component": "serial_source",
			"device":    name,
		}),
	}
}

func (s *SerialSource) SampleRate() int   { return s.sampleRate }
func (s *SerialSource) ChannelCount() int { return s.channelCount }

// Start discards anything buffered before streaming
func (s *SerialSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: %s is closed", ErrDeviceUnavailable, s.name)
	}
	if err := s.port.Flush(); err != nil {
		return fmt.Errorf("%w: flushing %s: %v", ErrDeviceUnavailable, s.name, err)
	}
	s.started = true
	s.logger.Info("Acquisition started", logging.Fields{
		"sample_rate": s.sampleRate,
		"channels":    s.channelCount,
	})
	return nil
}

// Stop ends streaming and closes the port. Calling it again is a no-op.
func (s *SerialSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.started = false
	if err := s.port.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", s.name, err)
	}
	s.logger.Info("Acquisition stopped")
	return nil
}

func (s *SerialSource) ReadFrames(frameLength int, buf []byte) error {
	want := BufferSize(frameLength, s.channelCount)
	if len(buf) < want {
		return fmt.Errorf("%w: buffer holds %d bytes, need %d", ErrAcquisitionRead, len(buf), want)
	}

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return fmt.Errorf("%w: %s not started", ErrAcquisitionRead, s.name)
	}

	// A read timeout yields zero bytes, with io.EOF on Linux where the port is
	// a plain file, so progress is tracked explicitly instead of relying on
	// io.ReadFull.
	filled := 0
	lastProgress := time.Now()
	for filled < want {
		n, err := s.port.Read(buf[filled:want])
		if n == 0 && errors.Is(err, io.EOF) {
			err = nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s after %d of %d bytes: %v", ErrAcquisitionRead, s.name, filled+n, want, err)
		}
		if n > 0 {
			filled += n
			lastProgress = time.Now()
			continue
		}
		if time.Since(lastProgress) > s.stallTimeout {
			return fmt.Errorf("%w: %s stalled after %d of %d bytes", ErrAcquisitionRead, s.name, filled, want)
		}
	}
	return nil
}
