package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/neurosonar/neurosonar/algorithms/common"
	"github.com/neurosonar/neurosonar/algorithms/spectral"
	"github.com/neurosonar/neurosonar/algorithms/stats"
	"github.com/neurosonar/neurosonar/config"
	"github.com/neurosonar/neurosonar/logging"
)

// ErrInsufficientWindowData means a designated channel has fewer samples than
// a stable estimate needs. Callers skip the cycle; it is not a failure.
var ErrInsufficientWindowData = errors.New("insufficient window data")

// ErrNonFiniteSample means a designated channel holds NaN or ±Inf, usually a
// corrupted frame. The cycle is dropped; the window recovers once the sample
// ages out.
var ErrNonFiniteSample = errors.New("non-finite sample in window")

// positions in the BandPowers result
const (
	thetaIdx = iota
	alphaIdx
	betaIdx
	gammaIdx
)

// Vector is the feature set of one update cycle
type Vector struct {
	Theta float64 `json:"theta"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`

	ThetaRel float64 `json:"theta_rel"`
	AlphaRel float64 `json:"alpha_rel"`
	BetaRel  float64 `json:"beta_rel"`
	GammaRel float64 `json:"gamma_rel"`

	AlphaAsym float64 `json:"alpha_asym"` // signed
	Ratio     float64 `json:"ratio"`      // theta / beta of the ratio channel
	Coherence float64 `json:"coherence"`  // gamma symmetry of the posterior pair, [0,1]
	RMS       float64 `json:"rms"`
	Entropy   float64 `json:"entropy"` // nats
}

// Fields returns the vector as logging fields
func (v Vector) Fields() logging.Fields {
	return logging.Fields{
		"theta_rel":  v.ThetaRel,
		"alpha_rel":  v.AlphaRel,
		"beta_rel":   v.BetaRel,
		"gamma_rel":  v.GammaRel,
		"alpha_asym": v.AlphaAsym,
		"ratio":      v.Ratio,
		"coherence":  v.Coherence,
		"rms":        v.RMS,
		"entropy":    v.Entropy,
	}
}

// Extractor turns per-channel sample windows into a Vector. Which channel
// feeds which feature is fixed by the region configuration.
type Extractor struct {
	sampleRate int
	minSamples int
	epsilon    float64
	bands      config.BandConfig
	regions    config.RegionConfig

	power   *spectral.PowerSpectrum
	entropy *stats.Entropy
	logger  logging.Logger
}

// NewExtractor creates an extractor for signals sampled at sampleRate Hz
func NewExtractor(sampleRate int, cfg config.AnalysisConfig) *Extractor {
	bins := cfg.EntropyBins
	if bins <= 0 {
		bins = 50
	}

	return &Extractor{
		sampleRate: sampleRate,
		minSamples: cfg.MinSamples,
		epsilon:    cfg.Epsilon,
		bands:      cfg.Bands,
		regions:    cfg.Regions,
		power:      spectral.NewPowerSpectrum(sampleRate),
		entropy: stats.NewEntropyWithParams(stats.EntropyParams{
			NumBins:        bins,
			MinProbability: 1e-12,
			BaseLog:        math.E,
		}),
		logger: logging.WithFields(logging.Fields{
			"component":   "feature_extractor",
			"sample_rate": sampleRate,
		}),
	}
}

// MinSamples returns the per-channel length below which Extract refuses to run
func (e *Extractor) MinSamples() int {
	return e.minSamples
}

// Ready reports whether every designated channel of buffers holds enough samples
func (e *Extractor) Ready(buffers common.ChannelBuffers) bool {
	for _, ch := range e.regions.Channels() {
		if ch >= len(buffers) || buffers[ch].Len() < e.minSamples {
			return false
		}
	}
	return true
}

// ExtractFromBuffers snapshots buffers and runs Extract
func (e *Extractor) ExtractFromBuffers(buffers common.ChannelBuffers) (Vector, error) {
	if !e.Ready(buffers) {
		return Vector{}, ErrInsufficientWindowData
	}
	return e.Extract(buffers.Snapshots())
}

// Extract computes the feature vector from one chronological window per channel
func (e *Extractor) Extract(data [][]float64) (Vector, error) {
	for _, ch := range e.regions.Channels() {
		if ch < 0 || ch >= len(data) {
			return Vector{}, fmt.Errorf("region channel %d not present in %d channels", ch, len(data))
		}
		if len(data[ch]) < e.minSamples {
			return Vector{}, fmt.Errorf("channel %d has %d of %d samples: %w",
				ch, len(data[ch]), e.minSamples, ErrInsufficientWindowData)
		}
		if !common.AllFinite(data[ch]) {
			return Vector{}, fmt.Errorf("channel %d: %w", ch, ErrNonFiniteSample)
		}
	}

	r := e.regions
	b := e.bands
	eps := e.epsilon

	// one transform per designated channel
	powers := make(map[int][]float64)
	for _, ch := range r.Channels() {
		if _, ok := powers[ch]; !ok {
			powers[ch] = e.power.BandPowers(data[ch], b.Theta, b.Alpha, b.Beta, b.Gamma)
		}
	}

	var v Vector
	v.Theta = sumBand(powers, r.Theta, thetaIdx)
	v.Alpha = sumBand(powers, r.Alpha, alphaIdx)
	v.Beta = sumBand(powers, r.Beta, betaIdx)
	v.Gamma = sumBand(powers, r.Gamma, gammaIdx)

	total := v.Theta + v.Alpha + v.Beta + v.Gamma + eps
	v.ThetaRel = v.Theta / total
	v.AlphaRel = v.Alpha / total
	v.BetaRel = v.Beta / total
	v.GammaRel = v.Gamma / total

	v.AlphaAsym = powers[r.AsymmetryPair[0]][alphaIdx] - powers[r.AsymmetryPair[1]][alphaIdx]

	v.Ratio = v.Theta / (powers[r.RatioBeta][betaIdx] + eps)

	gammaA := powers[r.CoherencePair[0]][gammaIdx]
	gammaB := powers[r.CoherencePair[1]][gammaIdx]
	v.Coherence = 1 - math.Abs(gammaA-gammaB)/(gammaA+gammaB+eps)

	v.RMS = common.RMS(data[r.RMS])

	h, err := e.entropy.Shannon(data[r.Entropy])
	if err != nil {
		return Vector{}, fmt.Errorf("entropy of channel %d: %w", r.Entropy, err)
	}
	v.Entropy = h

	e.logger.Debug("Features extracted", v.Fields())
	return v, nil
}

// sumBand adds band idx of powers over channels
func sumBand(powers map[int][]float64, channels []int, idx int) float64 {
	total := 0.0
	for _, ch := range channels {
		total += powers[ch][idx]
	}
	return total
}
