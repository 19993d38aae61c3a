package stats

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/neurosonar/neurosonar/algorithms/common"
)

// ErrNonFinite is returned for data holding NaN or ±Inf
var ErrNonFinite = errors.New("non-finite sample")

// EntropyParams contains parameters for histogram entropy
type EntropyParams struct {
	NumBins int `json:"num_bins"`

	// Added to every bin density before normalisation so empty bins
	// do not hit log(0)
	MinProbability float64 `json:"min_probability"`

	// Base for logarithm (math.E for nats, 2 for bits)
	BaseLog float64 `json:"base_log"`
}

// EntropyResult holds the histogram the entropy was computed from
type EntropyResult struct {
	ShannonEntropy float64   `json:"shannon_entropy"`
	Density        []float64 `json:"density"`
	BinEdges       []float64 `json:"bin_edges"`
	NumSamples     int       `json:"num_samples"`
}

// Entropy estimates the Shannon entropy of the amplitude distribution of a
// signal from a fixed-bin density histogram.
//
// Higher entropy = amplitudes spread over many bins (irregular signal)
// Lower entropy = amplitudes concentrated in few bins (structured signal)
type Entropy struct {
	params EntropyParams
}

// NewEntropy creates an analyzer with 50 bins, a 1e-12 floor and natural log
func NewEntropy() *Entropy {
	return &Entropy{
		params: EntropyParams{
			NumBins:        50,
			MinProbability: 1e-12,
			BaseLog:        math.E,
		},
	}
}

// NewEntropyWithParams creates an entropy analyzer with custom parameters
func NewEntropyWithParams(params EntropyParams) *Entropy {
	if params.NumBins <= 0 {
		params.NumBins = 50
	}
	if params.BaseLog <= 1 {
		params.BaseLog = math.E
	}
	return &Entropy{params: params}
}

// Shannon returns only the entropy value of Analyze
func (e *Entropy) Shannon(data []float64) (float64, error) {
	result, err := e.Analyze(data)
	if err != nil {
		return 0, err
	}
	return result.ShannonEntropy, nil
}

// Analyze builds the density histogram of data and computes its entropy
func (e *Entropy) Analyze(data []float64) (*EntropyResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	if !common.AllFinite(data) {
		return nil, ErrNonFinite
	}

	density, edges := e.densityHistogram(data)

	probabilities := make([]float64, len(density))
	for i, d := range density {
		probabilities[i] = d + e.params.MinProbability
	}
	floats.Scale(1/floats.Sum(probabilities), probabilities)

	// stat.Entropy is in nats
	h := stat.Entropy(probabilities)
	if e.params.BaseLog != math.E {
		h /= math.Log(e.params.BaseLog)
	}

	return &EntropyResult{
		ShannonEntropy: h,
		Density:        density,
		BinEdges:       edges,
		NumSamples:     len(data),
	}, nil
}

// densityHistogram returns count/(n*binWidth) per bin over [min, max] of
// the data. Constant data is spread over [v-0.5, v+0.5].
func (e *Entropy) densityHistogram(data []float64) ([]float64, []float64) {
	sorted := slices.Clone(data)
	slices.Sort(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	edges := floats.Span(make([]float64, e.params.NumBins+1), lo, hi)

	// stat.Histogram treats the last divider as exclusive; nudge it so the
	// maximum sample lands in the final bin.
	dividers := slices.Clone(edges)
	dividers[len(dividers)-1] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)

	width := (hi - lo) / float64(e.params.NumBins)
	norm := float64(len(data)) * width
	for i := range counts {
		counts[i] /= norm
	}

	return counts, edges
}
