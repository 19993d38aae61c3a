package filters

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/window"
)

// FIR is a linear-phase band-pass filter designed with the window method
// (Hamming-windowed sinc), applied forward and backward for zero phase.
//
// The coefficients are normalised to unit gain at the centre of the pass
// band.
type FIR struct {
	sampleRate int
	lowCutoff  float64 // Hz
	highCutoff float64 // Hz
	taps       []float64
}

// NewBandpassFIR designs a numTaps-long band-pass filter for [lowCutoff, highCutoff] Hz.
// numTaps must be odd so the filter has a whole-sample group delay.
func NewBandpassFIR(sampleRate, numTaps int, lowCutoff, highCutoff float64) (*FIR, error) {
	nyquist := float64(sampleRate) / 2
	if numTaps < 3 || numTaps%2 == 0 {
		return nil, fmt.Errorf("number of taps must be odd and >= 3, got %d", numTaps)
	}
	if lowCutoff <= 0 || highCutoff <= lowCutoff || highCutoff >= nyquist {
		return nil, fmt.Errorf("cutoffs [%g, %g] Hz invalid for nyquist %g Hz", lowCutoff, highCutoff, nyquist)
	}

	f := &FIR{
		sampleRate: sampleRate,
		lowCutoff:  lowCutoff,
		highCutoff: highCutoff,
	}
	f.design(numTaps)
	return f, nil
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// design computes the windowed-sinc coefficients
func (f *FIR) design(numTaps int) {
	nyquist := float64(f.sampleRate) / 2
	left := f.lowCutoff / nyquist
	right := f.highCutoff / nyquist
	alpha := 0.5 * float64(numTaps-1)

	taps := make([]float64, numTaps)
	for n := range taps {
		m := float64(n) - alpha
		taps[n] = right*sinc(right*m) - left*sinc(left*m)
	}

	win := window.Hamming(numTaps)
	for n := range taps {
		taps[n] *= win[n]
	}

	// Unit gain at the pass band centre
	centre := 0.5 * (left + right)
	gain := 0.0
	for n, h := range taps {
		gain += h * math.Cos(math.Pi*(float64(n)-alpha)*centre)
	}
	for n := range taps {
		taps[n] /= gain
	}

	f.taps = taps
}

// Taps returns a copy of the filter coefficients
func (f *FIR) Taps() []float64 {
	out := make([]float64, len(f.taps))
	copy(out, f.taps)
	return out
}

// PadLength is the number of samples reflected onto each end before
// zero-phase filtering.
func (f *FIR) PadLength() int {
	return 3 * len(f.taps)
}

// Filter runs the filter once over x starting from state zi (nil = rest)
func (f *FIR) Filter(x []float64, zi []float64) []float64 {
	n := len(f.taps)
	state := make([]float64, n-1)
	copy(state, zi)

	y := make([]float64, len(x))
	for i, sample := range x {
		out := f.taps[0]*sample + state[0]
		for k := 0; k < n-2; k++ {
			state[k] = f.taps[k+1]*sample + state[k+1]
		}
		state[n-2] = f.taps[n-1] * sample
		y[i] = out
	}
	return y
}

// steadyState returns the state vector of a unit-step steady state
func (f *FIR) steadyState() []float64 {
	n := len(f.taps)
	zi := make([]float64, n-1)
	acc := 0.0
	for k := n - 1; k >= 1; k-- {
		acc += f.taps[k]
		zi[k-1] = acc
	}
	return zi
}

// FiltFilt applies the filter forward and backward with odd extension at
// both ends, giving zero phase distortion. Signals of PadLength samples or
// fewer use a reduced pad of len(x)-1 samples.
func (f *FIR) FiltFilt(x []float64) ([]float64, error) {
	if len(x) < 2 {
		return nil, fmt.Errorf("signal too short for filtering: %d samples", len(x))
	}

	pad := min(f.PadLength(), len(x)-1)
	ext := oddExtend(x, pad)

	zi := f.steadyState()
	scaled := make([]float64, len(zi))

	for i, z := range zi {
		scaled[i] = z * ext[0]
	}
	forward := f.Filter(ext, scaled)

	reverse(forward)
	for i, z := range zi {
		scaled[i] = z * forward[0]
	}
	backward := f.Filter(forward, scaled)
	reverse(backward)

	return backward[pad : len(backward)-pad], nil
}

// oddExtend reflects x about its end points: 2*x[0]-x[pad..1], x, 2*x[n-1]-x[n-2..n-1-pad]
func oddExtend(x []float64, pad int) []float64 {
	n := len(x)
	ext := make([]float64, n+2*pad)
	for i := range pad {
		ext[i] = 2*x[0] - x[pad-i]
		ext[pad+n+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[pad:], x)
	return ext
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
