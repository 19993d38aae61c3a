package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neurosonar/neurosonar/acquisition"
	"github.com/neurosonar/neurosonar/algorithms/common"
	"github.com/neurosonar/neurosonar/classifier"
	"github.com/neurosonar/neurosonar/config"
	"github.com/neurosonar/neurosonar/features"
	"github.com/neurosonar/neurosonar/logging"
	"github.com/neurosonar/neurosonar/prompt"
	"github.com/neurosonar/neurosonar/recorder"
)

// State is the lifecycle position of a Loop
type State int32

const (
	Idle State = iota
	Calibrating
	Streaming
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Calibrating:
		return "calibrating"
	case Streaming:
		return "streaming"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats counts what the loop has done so far
type Stats struct {
	Frames           int64
	Cycles           int64
	Prompts          int64
	Skipped          int64 // cycles without enough buffered data
	Failed           int64 // cycles aborted by an analysis error
	ConsumerFailures int64
}

// Option customises a Loop
type Option func(*Loop)

// WithClock replaces time.Now for the update interval check
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithPlotWriter sets where the spectrum view draws (default stdout)
func WithPlotWriter(w io.Writer) Option {
	return func(l *Loop) { l.plotOut = w }
}

// WithResultHook is called with every classification, before the prompt is consumed
func WithResultHook(fn func(classifier.Result)) Option {
	return func(l *Loop) { l.onResult = fn }
}

// Loop drives one acquisition session: battery report, baseline
// calibration, then read, correct, buffer, record and, every update
// interval, analyse. Everything runs on the goroutine that calls Run.
type Loop struct {
	cfg      *config.Config
	source   acquisition.Source
	recorder recorder.Recorder
	consumer prompt.Consumer

	extractor  *features.Extractor
	classifier *classifier.Classifier
	view       *SpectrumView

	now      func() time.Time
	plotOut  io.Writer
	onResult func(classifier.Result)

	state        atomic.Int32
	frames       atomic.Int64
	cycles       atomic.Int64
	prompts      atomic.Int64
	skipped      atomic.Int64
	failed       atomic.Int64
	consumerErrs atomic.Int64

	baseline *acquisition.Baseline
	teardown sync.Once
	logger   logging.Logger
}

// NewLoop wires a session. recorder and consumer may be nil.
func NewLoop(cfg *config.Config, src acquisition.Source, rec recorder.Recorder, consumer prompt.Consumer, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Acquisition.EEGChannels > src.ChannelCount() {
		return nil, fmt.Errorf("%d eeg channels configured, source delivers %d", cfg.Acquisition.EEGChannels, src.ChannelCount())
	}
	if rec == nil {
		rec = recorder.NoOp{}
	}
	if consumer == nil {
		consumer = prompt.NoOpConsumer{}
	}

	l := &Loop{
		cfg:        cfg,
		source:     src,
		recorder:   rec,
		consumer:   consumer,
		extractor:  features.NewExtractor(src.SampleRate(), cfg.Analysis),
		classifier: classifier.New(cfg.Classifier),
		now:        time.Now,
		plotOut:    os.Stdout,
		logger: logging.WithFields(logging.Fields{
			"component":   "acquisition_loop",
			"sample_rate": src.SampleRate(),
		}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if capacity := common.WindowCapacity(src.SampleRate(), cfg.Analysis.WindowSeconds); capacity < cfg.Analysis.MinSamples {
		l.logger.Warn("Analysis window is shorter than the feature minimum, every cycle will be skipped", logging.Fields{
			"window_samples": capacity,
			"min_samples":    cfg.Analysis.MinSamples,
		})
	}

	if cfg.Output.ShowPlots {
		view, err := NewSpectrumView(src.SampleRate(), cfg.Analysis, cfg.Acquisition.ChannelLabels, l.plotOut)
		if err != nil {
			return nil, err
		}
		l.view = view
	}
	return l, nil
}

// State returns the current lifecycle state
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Stats returns a snapshot of the counters
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:           l.frames.Load(),
		Cycles:           l.cycles.Load(),
		Prompts:          l.prompts.Load(),
		Skipped:          l.skipped.Load(),
		Failed:           l.failed.Load(),
		ConsumerFailures: l.consumerErrs.Load(),
	}
}

// Baseline returns the calibrated baseline, nil before calibration finishes
func (l *Loop) Baseline() *acquisition.Baseline {
	return l.baseline
}

// Run blocks until ctx is cancelled (returns nil) or a fatal error occurs.
// The source, recorder and consumer are released exactly once on every
// exit path. A Loop runs once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(Idle), int32(Calibrating)) {
		return fmt.Errorf("loop already %s", l.State())
	}
	defer l.shutdown()

	logger := l.logger.WithContext(ctx)
	acq := l.cfg.Acquisition
	channels := l.source.ChannelCount()
	sampleRate := l.source.SampleRate()

	if err := l.source.Start(); err != nil {
		return fmt.Errorf("starting acquisition: %w", err)
	}

	battery, err := acquisition.ReadBattery(l.source, acq.FrameLength, acq.BatteryIndex(channels))
	if err != nil {
		return fmt.Errorf("%w: %v", acquisition.ErrAcquisitionRead, err)
	}
	logger.Info(fmt.Sprintf("Battery level: %.0f%%", battery))

	baseline, err := acquisition.Calibrate(ctx, l.source, acq.FrameLength, sampleRate, acq.EEGChannels)
	if err != nil {
		return err
	}
	l.baseline = baseline

	capacity := common.WindowCapacity(sampleRate, l.cfg.Analysis.WindowSeconds)
	buffers := common.NewChannelBuffers(acq.EEGChannels, capacity)
	interval := l.cfg.Analysis.UpdateInterval.Std()
	buf := make([]byte, acquisition.BufferSize(acq.FrameLength, channels))

	l.state.Store(int32(Streaming))
	logger.Info("Streaming", logging.Fields{
		"window_samples":  capacity,
		"update_interval": interval.String(),
		"mode":            l.mode(),
	})

	lastCycle := l.now()
	for {
		if ctx.Err() != nil {
			logger.Info("Acquisition cancelled", logging.Fields{"frames": l.frames.Load()})
			return nil
		}

		if err := l.source.ReadFrames(acq.FrameLength, buf); err != nil {
			if !errors.Is(err, acquisition.ErrAcquisitionRead) {
				err = fmt.Errorf("%w: %v", acquisition.ErrAcquisitionRead, err)
			}
			return err
		}
		frames, err := acquisition.DecodeFrames(buf, acq.FrameLength, channels)
		if err != nil {
			return err
		}

		for _, frame := range frames {
			corrected, err := baseline.Apply(frame)
			if err != nil {
				return err
			}
			if err := buffers.AppendFrame(corrected); err != nil {
				return err
			}
			if err := l.recorder.Record(corrected); err != nil {
				return fmt.Errorf("recording frame: %w", err)
			}
		}
		l.frames.Add(int64(len(frames)))

		if now := l.now(); now.Sub(lastCycle) >= interval {
			lastCycle = now
			l.cycle(ctx, buffers)
		}
	}
}

func (l *Loop) mode() string {
	if l.view != nil {
		return "visualization"
	}
	return "classification"
}

// cycle runs one analysis. Nothing in here stops the loop.
func (l *Loop) cycle(ctx context.Context, buffers common.ChannelBuffers) {
	logger := l.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "cycle",
		"cycle":    l.cycles.Add(1),
	})

	defer func() {
		if r := recover(); r != nil {
			l.failed.Add(1)
			logger.Error(fmt.Errorf("%v", r), "Analysis panicked, cycle dropped")
		}
	}()

	if err := l.recorder.Flush(); err != nil {
		logger.Error(err, "Flushing recording failed")
	}

	if l.view != nil {
		if _, err := l.view.Render(buffers); err != nil {
			logger.Error(err, "Drawing spectrum failed")
		}
		return
	}

	vector, err := l.extractor.ExtractFromBuffers(buffers)
	if errors.Is(err, features.ErrInsufficientWindowData) {
		l.skipped.Add(1)
		logger.Debug("Not enough data buffered, skipping cycle", logging.Fields{
			"buffered": buffers.MinLen(),
			"required": l.extractor.MinSamples(),
		})
		return
	}
	if err != nil {
		l.failed.Add(1)
		logger.Error(err, "Feature extraction failed")
		return
	}

	result := l.classifier.Classify(vector)
	if l.onResult != nil {
		l.onResult(result)
	}
	logger.Info("Mental state classified", logging.Fields{
		"activity": result.Activity,
		"genre":    result.Genre,
	})

	p := prompt.Compose(result)
	l.prompts.Add(1)
	if err := l.consumer.Consume(ctx, p); err != nil {
		l.consumerErrs.Add(1)
		if errors.Is(err, prompt.ErrConsumerBusy) {
			logger.Warn("Prompt consumer busy, prompt dropped", logging.Fields{"activity": p.Activity})
			return
		}
		logger.Error(err, "Prompt consumer failed", logging.Fields{"activity": p.Activity})
	}
}

// shutdown releases every resource once; failures are logged, not returned
func (l *Loop) shutdown() {
	l.teardown.Do(func() {
		if err := l.source.Stop(); err != nil {
			l.logger.Warn("Stopping acquisition failed", logging.Fields{"error": err.Error()})
		}
		if err := l.recorder.Close(); err != nil {
			l.logger.Warn("Closing recording failed", logging.Fields{"error": err.Error()})
		}
		if err := l.consumer.Close(); err != nil {
			l.logger.Warn("Closing prompt consumer failed", logging.Fields{"error": err.Error()})
		}

		l.state.Store(int32(Stopped))
		l.logger.Info("Disconnected", logging.Fields{
			"frames":  l.frames.Load(),
			"prompts": l.prompts.Load(),
		})
	})
}
