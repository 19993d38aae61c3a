package spectral

import "fmt"

// Band is a closed frequency interval [Low, High] in Hz
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether freq lies inside the band, edges included
func (b Band) Contains(freq float64) bool {
	return freq >= b.Low && freq <= b.High
}

// Validate checks that the band is well formed
func (b Band) Validate() error {
	if b.Low < 0 || b.High < b.Low {
		return fmt.Errorf("invalid band [%g, %g]", b.Low, b.High)
	}
	return nil
}

// PowerSpectrum computes one-sided power spectra and band powers
type PowerSpectrum struct {
	fft *FFT
}

// NewPowerSpectrum creates a power spectrum calculator
func NewPowerSpectrum(sampleRate int) *PowerSpectrum {
	return &PowerSpectrum{fft: NewFFT(sampleRate)}
}

// Compute returns |X[k]|^2 for the one-sided bins of x together with the
// bin frequencies.
func (ps *PowerSpectrum) Compute(x []float64) (power, freqs []float64) {
	magnitude := ps.fft.Magnitude(x)

	power = make([]float64, len(magnitude))
	for i, mag := range magnitude {
		power[i] = mag * mag
	}
	return power, ps.fft.Frequencies(len(x))
}

// BandPower sums the power of every bin whose frequency falls in band
func (ps *PowerSpectrum) BandPower(x []float64, band Band) float64 {
	return ps.BandPowers(x, band)[0]
}

// BandPowers computes several bands from a single transform of x
func (ps *PowerSpectrum) BandPowers(x []float64, bands ...Band) []float64 {
	out := make([]float64, len(bands))
	if len(x) == 0 {
		return out
	}

	power, freqs := ps.Compute(x)
	for k, f := range freqs {
		for i, band := range bands {
			if band.Contains(f) {
				out[i] += power[k]
			}
		}
	}
	return out
}
