package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/neurosonar/neurosonar/algorithms/spectral"
)

// Config is the full runtime configuration. It is read once at startup.
type Config struct {
	Acquisition AcquisitionConfig `json:"acquisition"`
	Analysis    AnalysisConfig    `json:"analysis"`
	Classifier  ClassifierConfig  `json:"classifier"`
	Recording   RecordingConfig   `json:"recording"`
	Output      OutputConfig      `json:"output"`
	LogLevel    string            `json:"log_level"`
}

type AcquisitionConfig struct {
	FrameLength  int    `json:"frame_length"` // frames per blocking read
	Device       string `json:"device"`       // serial port; empty = first discovered
	BaudRate     int    `json:"baud_rate"`
	SampleRate   int    `json:"sample_rate"`   // used by serial and simulated sources
	ChannelCount int    `json:"channel_count"` // total acquired channels incl. auxiliary
	EEGChannels  int    `json:"eeg_channels"`

	// Negative values index from the end of the frame (-2 = second to last)
	BatteryChannel int `json:"battery_channel"`

	ChannelLabels []string `json:"channel_labels"`
}

type AnalysisConfig struct {
	WindowSeconds  float64  `json:"window_seconds"`
	UpdateInterval Duration `json:"update_interval"`
	MinSamples     int      `json:"min_samples"`
	Epsilon        float64  `json:"epsilon"`

	Bands   BandConfig   `json:"bands"`
	Regions RegionConfig `json:"regions"`

	// Visualisation filter
	FilterTaps  int           `json:"filter_taps"`
	FilterBand  spectral.Band `json:"filter_band"`
	EntropyBins int           `json:"entropy_bins"`
}

type BandConfig struct {
	Theta spectral.Band `json:"theta"`
	Alpha spectral.Band `json:"alpha"`
	Beta  spectral.Band `json:"beta"`
	Gamma spectral.Band `json:"gamma"`
}

// RegionConfig assigns EEG channel indices to the features computed from them
type RegionConfig struct {
	Theta         []int  `json:"theta"`
	Alpha         []int  `json:"alpha"`
	Beta          []int  `json:"beta"`
	Gamma         []int  `json:"gamma"`
	AsymmetryPair [2]int `json:"asymmetry_pair"`
	RatioBeta     int    `json:"ratio_beta"`
	CoherencePair [2]int `json:"coherence_pair"`
	RMS           int    `json:"rms"`
	Entropy       int    `json:"entropy"`
}

type ClassifierConfig struct {
	AsymmetryThreshold float64 `json:"asymmetry_threshold"`
}

type RecordingConfig struct {
	CSVPath     string  `json:"csv_path"`
	EDFPath     string  `json:"edf_path"`
	PhysicalMin float64 `json:"physical_min"`
	PhysicalMax float64 `json:"physical_max"`
	PatientID   string  `json:"patient_id"`
}

type OutputConfig struct {
	ShowPlots bool       `json:"show_plots"` // spectrum view instead of classification
	Async     bool       `json:"async"`
	MQTT      MQTTConfig `json:"mqtt"`
}

type MQTTConfig struct {
	Broker   string   `json:"broker"`
	Topic    string   `json:"topic"`
	ClientID string   `json:"client_id"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	QoS      byte     `json:"qos"`
	Timeout  Duration `json:"timeout"`
}

// Duration is a time.Duration that reads "5s"-style strings or seconds from JSON
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(value * float64(time.Second))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// DefaultConfig returns the settings of an 8-channel Unicorn headset
// (Fz, C3, Cz, C4, Pz, PO7, Oz, PO8) sampled at 250 Hz.
func DefaultConfig() *Config {
	return &Config{
		Acquisition: AcquisitionConfig{
			FrameLength:    1,
			BaudRate:       115200,
			SampleRate:     250,
			ChannelCount:   17,
			EEGChannels:    8,
			BatteryChannel: -2,
			ChannelLabels:  []string{"Fz", "C3", "Cz", "C4", "Pz", "PO7", "Oz", "PO8"},
		},
		Analysis: AnalysisConfig{
			WindowSeconds:  5,
			UpdateInterval: Duration(5 * time.Second),
			MinSamples:     1203, // 3 x filter taps
			Epsilon:        1e-8,
			Bands: BandConfig{
				Theta: spectral.Band{Low: 4, High: 7},
				Alpha: spectral.Band{Low: 8, High: 12},
				Beta:  spectral.Band{Low: 13, High: 30},
				Gamma: spectral.Band{Low: 30, High: 50},
			},
			Regions: RegionConfig{
				Theta:         []int{0},
				Alpha:         []int{1, 2, 3},
				Beta:          []int{4, 5, 7},
				Gamma:         []int{6},
				AsymmetryPair: [2]int{1, 3},
				RatioBeta:     4,
				CoherencePair: [2]int{5, 7},
				RMS:           0,
				Entropy:       2,
			},
			FilterTaps:  401,
			FilterBand:  spectral.Band{Low: 5, High: 40},
			EntropyBins: 50,
		},
		Classifier: ClassifierConfig{
			AsymmetryThreshold: 1e9,
		},
		Recording: RecordingConfig{
			CSVPath:     "data.csv",
			PhysicalMin: -3200,
			PhysicalMax: 3200,
			PatientID:   "X X X X",
		},
		Output: OutputConfig{
			MQTT: MQTTConfig{
				Topic:    "neurosonar/prompts",
				ClientID: "neurosonar",
				QoS:      1,
				Timeout:  Duration(5 * time.Second),
			},
		},
		LogLevel: "info",
	}
}

// Load reads a JSON file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// BatteryIndex resolves BatteryChannel against the channel count
func (a AcquisitionConfig) BatteryIndex(channelCount int) int {
	if a.BatteryChannel < 0 {
		return channelCount + a.BatteryChannel
	}
	return a.BatteryChannel
}

// Validate checks ranges and channel references
func (c *Config) Validate() error {
	var errs []error

	acq := c.Acquisition
	if acq.FrameLength < 1 {
		errs = append(errs, fmt.Errorf("frame_length must be >= 1"))
	}
	if acq.SampleRate < 1 {
		errs = append(errs, fmt.Errorf("sample_rate must be >= 1"))
	}
	if acq.EEGChannels < 1 || acq.EEGChannels > acq.ChannelCount {
		errs = append(errs, fmt.Errorf("eeg_channels must be in [1, %d]", acq.ChannelCount))
	}
	if len(acq.ChannelLabels) != 0 && len(acq.ChannelLabels) != acq.EEGChannels {
		errs = append(errs, fmt.Errorf("channel_labels has %d entries for %d eeg channels", len(acq.ChannelLabels), acq.EEGChannels))
	}
	if idx := acq.BatteryIndex(acq.ChannelCount); idx < 0 || idx >= acq.ChannelCount {
		errs = append(errs, fmt.Errorf("battery_channel %d out of range", acq.BatteryChannel))
	}

	an := c.Analysis
	if an.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("window_seconds must be > 0"))
	}
	if an.UpdateInterval <= 0 {
		errs = append(errs, fmt.Errorf("update_interval must be > 0"))
	}
	if an.MinSamples < 2 {
		errs = append(errs, fmt.Errorf("min_samples must be >= 2"))
	}
	if an.Epsilon <= 0 {
		errs = append(errs, fmt.Errorf("epsilon must be > 0"))
	}
	for name, band := range map[string]spectral.Band{
		"theta": an.Bands.Theta, "alpha": an.Bands.Alpha,
		"beta": an.Bands.Beta, "gamma": an.Bands.Gamma, "filter": an.FilterBand,
	} {
		if err := band.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s band: %w", name, err))
		}
	}
	for _, ch := range an.Regions.Channels() {
		if ch < 0 || ch >= acq.EEGChannels {
			errs = append(errs, fmt.Errorf("region channel %d outside [0, %d)", ch, acq.EEGChannels))
		}
	}

	rec := c.Recording
	if rec.EDFPath != "" && rec.PhysicalMax <= rec.PhysicalMin {
		errs = append(errs, fmt.Errorf("physical_max must exceed physical_min"))
	}

	return errors.Join(errs...)
}

// Channels lists every channel index the regions refer to
func (r RegionConfig) Channels() []int {
	out := make([]int, 0, 16)
	out = append(out, r.Theta...)
	out = append(out, r.Alpha...)
	out = append(out, r.Beta...)
	out = append(out, r.Gamma...)
	out = append(out, r.AsymmetryPair[0], r.AsymmetryPair[1], r.RatioBeta,
		r.CoherencePair[0], r.CoherencePair[1], r.RMS, r.Entropy)
	return out
}
