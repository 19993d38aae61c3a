package acquisition

import (
	"context"
	"fmt"

	"github.com/neurosonar/neurosonar/algorithms/common"
	"github.com/neurosonar/neurosonar/logging"
)

// Baseline holds the per-channel resting mean collected at startup. It does
// not change for the rest of the session.
type Baseline struct {
	means []float64
}

// NewBaseline wraps precomputed means
func NewBaseline(means []float64) *Baseline {
	own := make([]float64, len(means))
	copy(own, means)
	return &Baseline{means: own}
}

// Means returns a copy of the per-channel means
func (b *Baseline) Means() []float64 {
	out := make([]float64, len(b.means))
	copy(out, b.means)
	return out
}

// Channels is the number of EEG channels the baseline covers
func (b *Baseline) Channels() int {
	return len(b.means)
}

// Apply returns the first Channels() values of frame minus the baseline
func (b *Baseline) Apply(frame []float64) ([]float64, error) {
	if len(frame) < len(b.means) {
		return nil, fmt.Errorf("frame has %d values, baseline covers %d channels", len(frame), len(b.means))
	}

	out := make([]float64, len(b.means))
	for ch, mean := range b.means {
		out[ch] = frame[ch] - mean
	}
	return out, nil
}

// Calibrate reads frames frames from a started source and averages the
// first eegChannels values of each. Reads happen in blocks of frameLength,
// so frames is rounded up to a whole number of blocks. Any failed read or
// a cancelled ctx aborts with ErrCalibration; no partial baseline is returned.
func Calibrate(ctx context.Context, src Source, frameLength, frames, eegChannels int) (*Baseline, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "baseline_calibrator",
		"function":  "Calibrate",
	})

	if frameLength < 1 || frames < 1 {
		return nil, fmt.Errorf("%w: frame length %d, frames %d", ErrCalibration, frameLength, frames)
	}
	channels := src.ChannelCount()
	if eegChannels < 1 || eegChannels > channels {
		return nil, fmt.Errorf("%w: %d eeg channels out of %d", ErrCalibration, eegChannels, channels)
	}

	logger.Info("Collecting baseline...", logging.Fields{"frames": frames})

	blocks := (frames + frameLength - 1) / frameLength
	buf := make([]byte, BufferSize(frameLength, channels))
	rows := make([][]float64, 0, blocks*frameLength)

	for range blocks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCalibration, err)
		}
		if err := src.ReadFrames(frameLength, buf); err != nil {
			return nil, fmt.Errorf("%w: after %d frames: %v", ErrCalibration, len(rows), err)
		}
		decoded, err := DecodeFrames(buf, frameLength, channels)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCalibration, err)
		}
		rows = append(rows, decoded...)
	}

	baseline := &Baseline{means: common.ColumnMeans(rows, eegChannels)}
	logger.Info("Baseline collected", logging.Fields{
		"frames": len(rows),
		"means":  baseline.means,
	})
	return baseline, nil
}

// ReadBattery reads one block and returns the battery channel of its first
// frame as a percentage. The device reports a fraction in [0,1].
func ReadBattery(src Source, frameLength, batteryIndex int) (float64, error) {
	channels := src.ChannelCount()
	if batteryIndex < 0 || batteryIndex >= channels {
		return 0, fmt.Errorf("battery channel %d out of range for %d channels", batteryIndex, channels)
	}

	buf := make([]byte, BufferSize(frameLength, channels))
	if err := src.ReadFrames(frameLength, buf); err != nil {
		return 0, fmt.Errorf("reading battery level: %w", err)
	}
	frames, err := DecodeFrames(buf, frameLength, channels)
	if err != nil {
		return 0, err
	}
	return frames[0][batteryIndex] * 100, nil
}
