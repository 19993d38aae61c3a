package recorder

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/OpenPSG/edf"

	"github.com/neurosonar/neurosonar/algorithms/common"
	"github.com/neurosonar/neurosonar/logging"
)

const (
	edfDigitalMin = -32768
	edfDigitalMax = 32767
)

// EDFOptions describes the exported recording
type EDFOptions struct {
	SampleRate  int
	Labels      []string // one per EEG channel
	PhysicalMin float64
	PhysicalMax float64
	PatientID   string
	SessionID   string
	StartTime   time.Time
}

// EDFRecorder writes corrected EEG to an EDF file in one-second data records.
// Samples outside the physical range are clamped. A trailing partial second
// is dropped on Close.
type EDFRecorder struct {
	file    io.Closer
	writer  *edf.Writer
	opts    EDFOptions
	pending [][]float64
	filled  int
	records int
	clamped int
	closed  bool
	logger  logging.Logger
}

// NewEDFRecorder creates (truncates) the file at path
func NewEDFRecorder(path string, opts EDFOptions) (*EDFRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}

	r, err := NewEDFWriter(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	r.logger = r.logger.WithFields(logging.Fields{"path": path})
	return r, nil
}

// NewEDFWriter records to w. Close finalises the header but does not close w.
func NewEDFWriter(w io.WriteSeeker, opts EDFOptions) (*EDFRecorder, error) {
	if opts.SampleRate < 1 {
		return nil, fmt.Errorf("edf sample rate must be >= 1, got %d", opts.SampleRate)
	}
	if len(opts.Labels) == 0 {
		return nil, fmt.Errorf("edf recording needs at least one channel")
	}
	if opts.PhysicalMax <= opts.PhysicalMin {
		return nil, fmt.Errorf("edf physical range [%g, %g] is empty", opts.PhysicalMin, opts.PhysicalMax)
	}
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}

	signals := make([]edf.Signal, len(opts.Labels))
	for i, label := range opts.Labels {
		signals[i] = edf.Signal{
			Label:             "EEG " + label,
			TransducerType:    "EEG electrode",
			PhysicalDimension: "uV",
			PhysicalMin:       opts.PhysicalMin,
			PhysicalMax:       opts.PhysicalMax,
			DigitalMin:        edfDigitalMin,
			DigitalMax:        edfDigitalMax,
			Prefiltering:      "baseline removed",
			SamplesPerRecord:  opts.SampleRate,
		}
	}

	writer, err := edf.Create(w, edf.Header{
		Version:            edf.Version0,
		PatientID:          opts.PatientID,
		RecordingID:        fmt.Sprintf("Startdate %s neurosonar %s", opts.StartTime.Format("02-Jan-2006"), opts.SessionID),
		StartTime:          opts.StartTime,
		DataRecordDuration: time.Second,
		SignalCount:        len(signals),
		Signals:            signals,
	})
	if err != nil {
		return nil, fmt.Errorf("creating edf writer: %w", err)
	}

	pending := make([][]float64, len(opts.Labels))
	for i := range pending {
		pending[i] = make([]float64, opts.SampleRate)
	}

	return &EDFRecorder{
		writer:  writer,
		opts:    opts,
		pending: pending,
		logger: logging.WithFields(logging.Fields{
			"component": "edf_recorder",
			"session":   opts.SessionID,
		}),
	}, nil
}

func (r *EDFRecorder) Record(frame []float64) error {
	if r.closed {
		return fmt.Errorf("edf recorder closed")
	}
	if len(frame) < len(r.pending) {
		return fmt.Errorf("frame has %d values, recording has %d channels", len(frame), len(r.pending))
	}

	for ch := range r.pending {
		v := frame[ch]
		if math.IsNaN(v) {
			r.clamped++
			v = 0
		} else if v < r.opts.PhysicalMin || v > r.opts.PhysicalMax {
			r.clamped++
			v = common.Clamp(v, r.opts.PhysicalMin, r.opts.PhysicalMax)
		}
		r.pending[ch][r.filled] = v
	}
	r.filled++

	if r.filled < r.opts.SampleRate {
		return nil
	}
	r.filled = 0
	if err := r.writer.WriteRecord(r.pending); err != nil {
		return fmt.Errorf("writing edf record %d: %w", r.records, err)
	}
	r.records++
	return nil
}

// Flush is a no-op: complete records are written as soon as they fill
func (r *EDFRecorder) Flush() error {
	return nil
}

// Records returns how many one-second records were written
func (r *EDFRecorder) Records() int {
	return r.records
}

func (r *EDFRecorder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if r.filled > 0 {
		r.logger.Debug("Dropping partial edf record", logging.Fields{"samples": r.filled})
	}
	if r.clamped > 0 {
		r.logger.Warn("Samples clamped to the edf physical range", logging.Fields{
			"samples": r.clamped,
			"min":     r.opts.PhysicalMin,
			"max":     r.opts.PhysicalMax,
		})
	}

	err := r.writer.Close()
	if r.file != nil {
		if closeErr := r.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return fmt.Errorf("closing edf: %w", err)
	}

	r.logger.Info("EDF recording finalised", logging.Fields{"records": r.records})
	return nil
}
