package recorder

import (
	"errors"
)

// Recorder persists baseline-corrected EEG frames. The acquisition loop only
// depends on this interface.
type Recorder interface {
	Record(frame []float64) error
	Flush() error
	Close() error
}

// NoOp records nothing
type NoOp struct{}

func (NoOp) Record([]float64) error { return nil }
func (NoOp) Flush() error           { return nil }
func (NoOp) Close() error           { return nil }

// Multi writes every frame to each recorder in order
type Multi []Recorder

func (m Multi) Record(frame []float64) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Flush() error {
	var errs []error
	for _, r := range m {
		if err := r.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every recorder even if some fail
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
