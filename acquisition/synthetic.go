package acquisition

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/neurosonar/neurosonar/logging"
)

// SyntheticDeviceName is the single device the synthetic driver exposes
const SyntheticDeviceName = "synthetic"

// Tone is one sinusoidal component of a synthetic channel
type Tone struct {
	Frequency float64 // Hz
	Amplitude float64
	Phase     float64 // radians
}

// SyntheticConfig describes the generated stream
type SyntheticConfig struct {
	SampleRate   int
	ChannelCount int

	// Tones[ch] and Offsets[ch] shape channel ch; missing entries are silent
	Tones   [][]Tone
	Offsets []float64

	Noise        float64 // uniform noise amplitude added to every tone channel
	Seed         uint64
	BatteryIndex int // -1 disables
	Battery      float64

	// Realtime paces reads to the sample rate
	Realtime bool

	// MaxFrames ends the stream with ErrAcquisitionRead after that many
	// frames. Zero streams forever.
	MaxFrames int
}

// DefaultSyntheticConfig generates a resting recording on the Unicorn layout:
// a strong 5 Hz rhythm on the frontal channel, a 10 Hz rhythm on the central
// channels, weak beta and gamma on the posterior ones and a DC offset the
// baseline has to remove.
func DefaultSyntheticConfig(sampleRate, channelCount, batteryIndex int) SyntheticConfig {
	tones := make([][]Tone, 8)
	tones[0] = []Tone{{Frequency: 5, Amplitude: 10}}
	for ch := 1; ch <= 3; ch++ {
		tones[ch] = []Tone{{Frequency: 10, Amplitude: 4.5, Phase: float64(ch) * 0.3}}
	}
	tones[4] = []Tone{{Frequency: 18, Amplitude: 0.8}, {Frequency: 6, Amplitude: 1.5}}
	tones[5] = []Tone{{Frequency: 20, Amplitude: 0.6}, {Frequency: 35, Amplitude: 0.4}}
	tones[6] = []Tone{{Frequency: 40, Amplitude: 0.5}}
	tones[7] = []Tone{{Frequency: 22, Amplitude: 0.6}, {Frequency: 35, Amplitude: 0.35}}

	offsets := make([]float64, 8)
	for ch := range offsets {
		offsets[ch] = 120 + 15*float64(ch)
	}

	return SyntheticConfig{
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
		Tones:        tones,
		Offsets:      offsets,
		Noise:        0.2,
		Seed:         1,
		BatteryIndex: batteryIndex,
		Battery:      0.87,
	}
}

// SyntheticDriver exposes one SyntheticSource
type SyntheticDriver struct {
	Config SyntheticConfig
}

func (d *SyntheticDriver) Devices() ([]string, error) {
	return []string{SyntheticDeviceName}, nil
}

func (d *SyntheticDriver) Open(name string) (Source, error) {
	if name != SyntheticDeviceName {
		return nil, fmt.Errorf("%w: unknown synthetic device %q", ErrDeviceUnavailable, name)
	}
	return NewSyntheticSource(d.Config), nil
}

// SyntheticSource generates frames from a sum of sinusoids per channel
type SyntheticSource struct {
	cfg    SyntheticConfig
	rng    *rand.Rand
	logger logging.Logger

	mu      sync.Mutex
	started bool
	startAt time.Time
	frame   int
}

// NewSyntheticSource creates a stopped source
func NewSyntheticSource(cfg SyntheticConfig) *SyntheticSource {
	return &SyntheticSource{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		logger: logging.WithFields(logging.Fields{
			"component": "synthetic_source",
		}),
	}
}

func (s *SyntheticSource) SampleRate() int   { return s.cfg.SampleRate }
func (s *SyntheticSource) ChannelCount() int { return s.cfg.ChannelCount }

func (s *SyntheticSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = true
	s.startAt = time.Now()
	s.logger.Info("Acquisition started", logging.Fields{
		"sample_rate": s.cfg.SampleRate,
		"channels":    s.cfg.ChannelCount,
		"realtime":    s.cfg.Realtime,
	})
	return nil
}

func (s *SyntheticSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = false
	return nil
}

// FramesGenerated returns how many frames have been produced
func (s *SyntheticSource) FramesGenerated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *SyntheticSource) ReadFrames(frameLength int, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("%w: synthetic source not started", ErrAcquisitionRead)
	}
	if want := BufferSize(frameLength, s.cfg.ChannelCount); len(buf) < want {
		return fmt.Errorf("%w: buffer holds %d bytes, need %d", ErrAcquisitionRead, len(buf), want)
	}
	if s.cfg.MaxFrames > 0 && s.frame+frameLength > s.cfg.MaxFrames {
		return fmt.Errorf("%w: synthetic stream ended after %d frames", ErrAcquisitionRead, s.frame)
	}

	if s.cfg.Realtime {
		due := s.startAt.Add(time.Duration(s.frame+frameLength) * time.Second / time.Duration(s.cfg.SampleRate))
		if wait := time.Until(due); wait > 0 {
			time.Sleep(wait)
		}
	}

	frames := make([][]float64, frameLength)
	for i := range frames {
		frames[i] = s.next()
	}
	EncodeFrames(buf, frames)
	return nil
}

// next produces one frame and advances the sample clock
func (s *SyntheticSource) next() []float64 {
	t := float64(s.frame) / float64(s.cfg.SampleRate)
	frame := make([]float64, s.cfg.ChannelCount)

	for ch := range frame {
		if ch < len(s.cfg.Offsets) {
			frame[ch] = s.cfg.Offsets[ch]
		}
		if ch < len(s.cfg.Tones) && len(s.cfg.Tones[ch]) > 0 {
			for _, tone := range s.cfg.Tones[ch] {
				frame[ch] += tone.Amplitude * math.Sin(2*math.Pi*tone.Frequency*t+tone.Phase)
			}
			if s.cfg.Noise > 0 {
				frame[ch] += s.cfg.Noise * (2*s.rng.Float64() - 1)
			}
		}
	}
	if idx := s.cfg.BatteryIndex; idx >= 0 && idx < len(frame) {
		frame[idx] = s.cfg.Battery
	}

	s.frame++
	return frame
}
