package filters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rate = 250

func tone(n int, freq float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / rate)
	}
	return out
}

func rms(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s / float64(len(x)))
}

func TestNewBandpassFIRValidation(t *testing.T) {
	_, err := NewBandpassFIR(rate, 400, 5, 40)
	assert.Error(t, err, "even tap count")

	_, err = NewBandpassFIR(rate, 401, 40, 5)
	assert.Error(t, err, "inverted cutoffs")

	_, err = NewBandpassFIR(rate, 401, 5, 130)
	assert.Error(t, err, "above nyquist")

	f, err := NewBandpassFIR(rate, 401, 5, 40)
	require.NoError(t, err)
	assert.Len(t, f.Taps(), 401)
	assert.Equal(t, 1203, f.PadLength())
}

func TestFIRIsSymmetric(t *testing.T) {
	f, err := NewBandpassFIR(rate, 401, 5, 40)
	require.NoError(t, err)

	taps := f.Taps()
	for i := range taps {
		assert.InDelta(t, taps[i], taps[len(taps)-1-i], 1e-12)
	}
}

func TestFiltFiltPassesInBandTone(t *testing.T) {
	f, err := NewBandpassFIR(rate, 401, 5, 40)
	require.NoError(t, err)

	y, err := f.FiltFilt(tone(1250, 20))
	require.NoError(t, err)
	require.Len(t, y, 1250)

	assert.InDelta(t, 1/math.Sqrt2, rms(y[200:1050]), 0.03)
}

func TestFiltFiltRejectsOutOfBand(t *testing.T) {
	f, err := NewBandpassFIR(rate, 401, 5, 40)
	require.NoError(t, err)

	for _, freq := range []float64{1, 60} {
		y, err := f.FiltFilt(tone(1250, freq))
		require.NoError(t, err)
		assert.Less(t, rms(y[200:1050]), 0.02, "freq %g", freq)
	}

	dc := make([]float64, 1250)
	for i := range dc {
		dc[i] = 5
	}
	y, err := f.FiltFilt(dc)
	require.NoError(t, err)
	assert.Less(t, rms(y), 0.05)
}

func TestFiltFiltShortSignal(t *testing.T) {
	f, err := NewBandpassFIR(rate, 401, 5, 40)
	require.NoError(t, err)

	y, err := f.FiltFilt(tone(300, 20))
	require.NoError(t, err)
	assert.Len(t, y, 300)

	_, err = f.FiltFilt([]float64{1})
	assert.Error(t, err)
}
