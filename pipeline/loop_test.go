package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurosonar/neurosonar/acquisition"
	"github.com/neurosonar/neurosonar/classifier"
	"github.com/neurosonar/neurosonar/config"
	"github.com/neurosonar/neurosonar/logging"
	"github.com/neurosonar/neurosonar/prompt"
	"github.com/neurosonar/neurosonar/recorder"
)

const (
	testRate     = 250
	testChannels = 17
	testBattery  = 15
)

// streamStart is the number of frames consumed before streaming: one battery
// frame and one second of calibration
const streamStart = 1 + testRate

// fakeClock advances by one sample period per call
func fakeClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second / testRate)
		return t
	}
}

type countingSource struct {
	*acquisition.SyntheticSource
	stops int
}

func (s *countingSource) Stop() error {
	s.stops++
	return s.SyntheticSource.Stop()
}

func newSource(tones [][]acquisition.Tone, offset float64, maxFrames int) *countingSource {
	offsets := make([]float64, 8)
	for i := range offsets {
		offsets[i] = offset
	}
	return &countingSource{SyntheticSource: acquisition.NewSyntheticSource(acquisition.SyntheticConfig{
		SampleRate:   testRate,
		ChannelCount: testChannels,
		Tones:        tones,
		Offsets:      offsets,
		BatteryIndex: testBattery,
		Battery:      0.9,
		MaxFrames:    maxFrames,
	})}
}

// meditationTones: strong 5 Hz on the theta channel, weaker 10 Hz on the alpha channels
func meditationTones() [][]acquisition.Tone {
	tones := make([][]acquisition.Tone, 8)
	tones[0] = []acquisition.Tone{{Frequency: 5, Amplitude: 10}}
	for ch := 1; ch <= 3; ch++ {
		tones[ch] = []acquisition.Tone{{Frequency: 10, Amplitude: 4.5}}
	}
	return tones
}

// corruptingSource replaces channel 2 of the given read with NaN
type corruptingSource struct {
	*acquisition.SyntheticSource
	reads     int
	corruptAt int
}

func (s *corruptingSource) ReadFrames(frameLength int, buf []byte) error {
	if err := s.SyntheticSource.ReadFrames(frameLength, buf); err != nil {
		return err
	}
	s.reads++
	if s.reads != s.corruptAt {
		return nil
	}
	frames, err := acquisition.DecodeFrames(buf, frameLength, s.ChannelCount())
	if err != nil {
		return err
	}
	frames[0][2] = math.NaN()
	acquisition.EncodeFrames(buf, frames)
	return nil
}

type captureConsumer struct {
	mu      sync.Mutex
	prompts []prompt.Prompt
	err     error
	closes  int
	onCall  func()
}

func (c *captureConsumer) Consume(_ context.Context, p prompt.Prompt) error {
	c.mu.Lock()
	c.prompts = append(c.prompts, p)
	c.mu.Unlock()
	if c.onCall != nil {
		c.onCall()
	}
	return c.err
}

func (c *captureConsumer) Close() error {
	c.closes++
	return nil
}

type countingRecorder struct {
	recorder.Recorder
	closes  int
	flushes int
}

func (r *countingRecorder) Flush() error {
	r.flushes++
	return r.Recorder.Flush()
}

func (r *countingRecorder) Close() error {
	r.closes++
	return r.Recorder.Close()
}

func TestLoopMeditationEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newSource(meditationTones(), 50, 0)
	consumer := &captureConsumer{onCall: cancel}

	var results []classifier.Result
	loop, err := NewLoop(config.DefaultConfig(), src, nil, consumer,
		WithClock(fakeClock()),
		WithResultHook(func(r classifier.Result) { results = append(results, r) }),
	)
	require.NoError(t, err)
	assert.Equal(t, Idle, loop.State())

	require.NoError(t, loop.Run(ctx))

	require.Len(t, consumer.prompts, 1)
	p := consumer.prompts[0]
	assert.Equal(t, "Meditation", p.Activity)
	assert.Equal(t, "Ambient", p.Genre)
	assert.True(t, strings.HasPrefix(p.Text, "\nMental state: Meditation — calm and floating\n"))

	require.Len(t, results, 1)
	assert.Greater(t, results[0].Features.ThetaRel, 0.5)
	assert.Greater(t, results[0].Features.AlphaRel, 0.3)
	assert.Less(t, results[0].Features.BetaRel, 0.1)

	for _, mean := range loop.Baseline().Means() {
		assert.InDelta(t, 50, mean, 1e-3)
	}

	stats := loop.Stats()
	assert.Equal(t, int64(5*testRate), stats.Frames)
	assert.Equal(t, int64(1), stats.Cycles)
	assert.Equal(t, int64(1), stats.Prompts)
	assert.Equal(t, Stopped, loop.State())
	assert.Equal(t, 1, src.stops)
	assert.Equal(t, 1, consumer.closes)
}

func TestLoopConstantSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newSource(nil, 1.0, 0)
	var csv bytes.Buffer
	rec := &countingRecorder{Recorder: recorder.NewCSVWriter(&csv)}

	var got classifier.Result
	loop, err := NewLoop(config.DefaultConfig(), src, rec, &captureConsumer{onCall: cancel},
		WithClock(fakeClock()),
		WithResultHook(func(r classifier.Result) { got = r }),
	)
	require.NoError(t, err)
	require.NoError(t, loop.Run(ctx))

	for _, mean := range loop.Baseline().Means() {
		assert.InDelta(t, 1.0, mean, 1e-9)
	}
	assert.Zero(t, got.Features.RMS)
	assert.Equal(t, "soft and reserved", got.Descriptors.Volume)
	assert.Equal(t, "Undefined", got.Activity)

	lines := strings.Split(strings.TrimSuffix(csv.String(), "\n"), "\n")
	require.Len(t, lines, 5*testRate)
	assert.Equal(t, "0.000,0.000,0.000,0.000,0.000,0.000,0.000,0.000", lines[0])
	assert.Equal(t, 1, rec.flushes)
	assert.Equal(t, 1, rec.closes)
}

func TestLoopInsufficientWindowProducesNoPrompt(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Analysis.WindowSeconds = 1 // 250 samples, below the 1203 minimum

	var out, errOut bytes.Buffer
	orig := logging.GetGlobalLogger()
	logging.SetGlobalLogger(logging.NewDefaultLoggerWithWriters(&out, &errOut, false))
	t.Cleanup(func() { logging.SetGlobalLogger(orig) })

	src := newSource(meditationTones(), 0, streamStart+10*testRate)
	consumer := &captureConsumer{}
	rec := &countingRecorder{Recorder: recorder.NoOp{}}

	loop, err := NewLoop(cfg, src, rec, consumer, WithClock(fakeClock()))
	require.NoError(t, err)
	assert.Contains(t, errOut.String(), "every cycle will be skipped")
	assert.Contains(t, errOut.String(), "window_samples")

	err = loop.Run(context.Background())
	require.ErrorIs(t, err, acquisition.ErrAcquisitionRead)

	assert.Empty(t, consumer.prompts)
	stats := loop.Stats()
	assert.Equal(t, int64(2), stats.Cycles)
	assert.Equal(t, int64(2), stats.Skipped)
	assert.Zero(t, stats.Prompts)

	// teardown ran exactly once
	assert.Equal(t, Stopped, loop.State())
	assert.Equal(t, 1, src.stops)
	assert.Equal(t, 1, rec.closes)
	assert.Equal(t, 1, consumer.closes)

	assert.Error(t, loop.Run(context.Background()), "a loop runs once")
	assert.Equal(t, 1, src.stops)
}

func TestLoopConsumerFailureKeepsRunning(t *testing.T) {
	src := newSource(meditationTones(), 0, streamStart+15*testRate)
	consumer := &captureConsumer{err: errors.New("music service unreachable")}

	loop, err := NewLoop(config.DefaultConfig(), src, nil, consumer, WithClock(fakeClock()))
	require.NoError(t, err)

	err = loop.Run(context.Background())
	require.ErrorIs(t, err, acquisition.ErrAcquisitionRead)

	stats := loop.Stats()
	assert.Equal(t, int64(3), stats.Prompts)
	assert.Equal(t, int64(3), stats.ConsumerFailures)
	assert.Len(t, consumer.prompts, 3)
}

func TestLoopCalibrationFailure(t *testing.T) {
	src := newSource(nil, 1.0, 100)
	consumer := &captureConsumer{}

	loop, err := NewLoop(config.DefaultConfig(), src, nil, consumer, WithClock(fakeClock()))
	require.NoError(t, err)

	err = loop.Run(context.Background())
	require.ErrorIs(t, err, acquisition.ErrCalibration)
	assert.Nil(t, loop.Baseline())
	assert.Equal(t, Stopped, loop.State())
	assert.Equal(t, 1, src.stops)
	assert.Equal(t, 1, consumer.closes)
}

func TestLoopCancelledBeforeStreaming(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := newSource(nil, 1.0, 0)
	loop, err := NewLoop(config.DefaultConfig(), src, nil, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, loop.Run(ctx), acquisition.ErrCalibration)
	assert.Equal(t, 1, src.stops)
}

func TestLoopVisualizationMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.ShowPlots = true

	var plot bytes.Buffer
	src := newSource(meditationTones(), 0, streamStart+5*testRate)
	consumer := &captureConsumer{}

	loop, err := NewLoop(cfg, src, nil, consumer, WithClock(fakeClock()), WithPlotWriter(&plot))
	require.NoError(t, err)

	err = loop.Run(context.Background())
	require.ErrorIs(t, err, acquisition.ErrAcquisitionRead)

	assert.Empty(t, consumer.prompts, "visualization replaces classification")

	lines := strings.Split(strings.TrimSuffix(plot.String(), "\n"), "\n")
	require.Len(t, lines, 9)
	assert.True(t, strings.HasPrefix(lines[0], "Fz "))
	assert.True(t, strings.HasSuffix(lines[0], " 5.0 Hz"))
	assert.True(t, strings.HasPrefix(lines[1], "C3 "))
	assert.True(t, strings.HasSuffix(lines[1], "10.0 Hz"))
	assert.Contains(t, lines[8], "5-40 Hz")
}

func TestNewLoopRejectsTooFewChannels(t *testing.T) {
	src := acquisition.NewSyntheticSource(acquisition.SyntheticConfig{SampleRate: testRate, ChannelCount: 4})
	_, err := NewLoop(config.DefaultConfig(), src, nil, nil)
	assert.Error(t, err)
}

func TestLoopCorruptFrameDropsOnlyAffectedCycles(t *testing.T) {
	src := &corruptingSource{
		SyntheticSource: newSource(meditationTones(), 0, streamStart+15*testRate).SyntheticSource,
		corruptAt:       streamStart + 10,
	}
	consumer := &captureConsumer{}

	loop, err := NewLoop(config.DefaultConfig(), src, nil, consumer, WithClock(fakeClock()))
	require.NoError(t, err)

	err = loop.Run(context.Background())
	require.ErrorIs(t, err, acquisition.ErrAcquisitionRead)

	// the first window holds the NaN, later windows have moved past it
	stats := loop.Stats()
	assert.Equal(t, int64(3), stats.Cycles)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(2), stats.Prompts)
	require.Len(t, consumer.prompts, 2)
	assert.Equal(t, "Meditation", consumer.prompts[0].Activity)
}

func TestLoopRecoversFromPanickingCycle(t *testing.T) {
	src := newSource(meditationTones(), 0, streamStart+10*testRate)
	consumer := &captureConsumer{}

	calls := 0
	loop, err := NewLoop(config.DefaultConfig(), src, nil, consumer,
		WithClock(fakeClock()),
		WithResultHook(func(classifier.Result) {
			calls++
			if calls == 1 {
				panic("boom")
			}
		}),
	)
	require.NoError(t, err)

	err = loop.Run(context.Background())
	require.ErrorIs(t, err, acquisition.ErrAcquisitionRead)

	stats := loop.Stats()
	assert.Equal(t, int64(2), stats.Cycles)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Prompts)
	assert.Len(t, consumer.prompts, 1)
	assert.Equal(t, Stopped, loop.State())
}
