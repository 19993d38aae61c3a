package recorder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/neurosonar/neurosonar/logging"
)

// CSVRecorder appends one line per frame: values with three decimals,
// comma separated, no header.
type CSVRecorder struct {
	file   io.Closer
	writer *bufio.Writer
	line   []byte
	frames int
	logger logging.Logger
}

// NewCSVRecorder creates (truncates) the file at path
func NewCSVRecorder(path string) (*CSVRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}

	r := NewCSVWriter(f)
	r.file = f
	r.logger = r.logger.WithFields(logging.Fields{"path": path})
	return r, nil
}

// NewCSVWriter records to w. Close flushes but does not close w.
func NewCSVWriter(w io.Writer) *CSVRecorder {
	return &CSVRecorder{
		writer: bufio.NewWriter(w),
		logger: logging.WithFields(logging.Fields{
			"component": "csv_recorder",
		}),
	}
}

func (r *CSVRecorder) Record(frame []float64) error {
	line := r.line[:0]
	for i, v := range frame {
		if i > 0 {
			line = append(line, ',')
		}
		line = strconv.AppendFloat(line, v, 'f', 3, 64)
	}
	line = append(line, '\n')
	r.line = line

	if _, err := r.writer.Write(line); err != nil {
		return fmt.Errorf("writing frame %d: %w", r.frames, err)
	}
	r.frames++
	return nil
}

func (r *CSVRecorder) Flush() error {
	if err := r.writer.Flush(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// Frames returns how many frames were recorded
func (r *CSVRecorder) Frames() int {
	return r.frames
}

func (r *CSVRecorder) Close() error {
	flushErr := r.Flush()
	if r.file != nil {
		if err := r.file.Close(); err != nil && flushErr == nil {
			return fmt.Errorf("closing csv: %w", err)
		}
	}
	r.logger.Debug("CSV recorder closed", logging.Fields{"frames": r.frames})
	return flushErr
}

// ReadCSV parses a file written by CSVRecorder back into frames
func ReadCSV(r io.Reader) ([][]float64, error) {
	var frames [][]float64

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		fields := strings.Split(text, ",")
		frame := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", lineNo, i+1, err)
			}
			frame[i] = v
		}
		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return frames, nil
}
