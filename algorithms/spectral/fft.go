package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT wraps the real-input transform from mjibson/go-dsp
type FFT struct {
	sampleRate int
}

// NewFFT creates an FFT calculator for signals sampled at sampleRate Hz
func NewFFT(sampleRate int) *FFT {
	return &FFT{sampleRate: sampleRate}
}

// Compute computes the full complex spectrum of x.
// go-dsp handles non-power-of-2 lengths, so no padding is applied.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// Magnitude returns |X[k]| for the one-sided bins k = 0..N/2
func (f *FFT) Magnitude(x []float64) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	spectrum := f.Compute(x)
	bins := len(x)/2 + 1

	magnitude := make([]float64, bins)
	for k := range bins {
		magnitude[k] = cmplx.Abs(spectrum[k])
	}
	return magnitude
}

// Frequencies returns the centre frequency of each one-sided bin for an
// n-point transform, k * sampleRate / n.
func (f *FFT) Frequencies(n int) []float64 {
	if n <= 0 {
		return []float64{}
	}

	freqs := make([]float64, n/2+1)
	step := float64(f.sampleRate) / float64(n)
	for k := range freqs {
		freqs[k] = float64(k) * step
	}
	return freqs
}
