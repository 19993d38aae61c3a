package acquisition

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDeviceUnavailable means no device was discovered or it could not be opened
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrCalibration means the baseline could not be collected
	ErrCalibration = errors.New("baseline calibration failed")

	// ErrAcquisitionRead means a blocking read returned an error or too few bytes
	ErrAcquisitionRead = errors.New("acquisition read failed")
)

// BytesPerValue is the size of one sample on the wire (float32)
const BytesPerValue = 4

// Source is a started device streaming fixed-layout frames. Every frame holds
// ChannelCount values: EEG channels first, auxiliary channels after.
type Source interface {
	SampleRate() int
	ChannelCount() int
	Start() error
	Stop() error

	// ReadFrames blocks until frameLength frames have been written into buf
	// as little-endian float32, row-major. len(buf) must be
	// frameLength*ChannelCount()*BytesPerValue.
	ReadFrames(frameLength int, buf []byte) error
}

// Driver discovers and opens sources
type Driver interface {
	Devices() ([]string, error)
	Open(name string) (Source, error)
}

// BufferSize returns the byte length ReadFrames expects
func BufferSize(frameLength, channels int) int {
	return frameLength * channels * BytesPerValue
}

// OpenFirst opens name, or the first discovered device when name is empty
func OpenFirst(d Driver, name string) (Source, string, error) {
	if name == "" {
		devices, err := d.Devices()
		if err != nil {
			return nil, "", fmt.Errorf("%w: listing devices: %v", ErrDeviceUnavailable, err)
		}
		if len(devices) == 0 {
			return nil, "", fmt.Errorf("%w: no devices found", ErrDeviceUnavailable)
		}
		name = devices[0]
	}

	src, err := d.Open(name)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return nil, name, err
		}
		return nil, name, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, name, err)
	}
	return src, name, nil
}

// DecodeFrames converts a raw read buffer into frameLength frames of
// channels values each.
func DecodeFrames(buf []byte, frameLength, channels int) ([][]float64, error) {
	if want := BufferSize(frameLength, channels); len(buf) < want {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, need %d", ErrAcquisitionRead, len(buf), want)
	}

	frames := make([][]float64, frameLength)
	offset := 0
	for i := range frames {
		frame := make([]float64, channels)
		for ch := range frame {
			bits := binary.LittleEndian.Uint32(buf[offset:])
			frame[ch] = float64(math.Float32frombits(bits))
			offset += BytesPerValue
		}
		frames[i] = frame
	}
	return frames, nil
}

// EncodeFrames is the inverse of DecodeFrames. buf must be large enough.
func EncodeFrames(buf []byte, frames [][]float64) {
	offset := 0
	for _, frame := range frames {
		for _, v := range frame {
			binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(float32(v)))
			offset += BytesPerValue
		}
	}
}
