package pipeline

import (
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/neurosonar/neurosonar/algorithms/common"
	"github.com/neurosonar/neurosonar/algorithms/filters"
	"github.com/neurosonar/neurosonar/algorithms/spectral"
	"github.com/neurosonar/neurosonar/config"
	"github.com/neurosonar/neurosonar/logging"
)

const (
	spectrumWidth  = 70
	spectrumBlocks = " ▁▂▃▄▅▆▇█"
)

// Spectrum is the normalised magnitude spectrum of one channel
type Spectrum struct {
	Frequencies []float64
	Magnitudes  []float64 // peak is 1 unless the signal is silent
}

// Peak returns the frequency of the largest magnitude inside band
func (s Spectrum) Peak(band spectral.Band) float64 {
	peak, best := 0.0, -1.0
	for k, f := range s.Frequencies {
		if band.Contains(f) && s.Magnitudes[k] > best {
			peak, best = f, s.Magnitudes[k]
		}
	}
	return peak
}

// SpectrumView draws a text spectrum per EEG channel: zero-phase band-pass,
// mean removal, FFT magnitude normalised to its maximum.
type SpectrumView struct {
	fir        *filters.FIR
	fft        *spectral.FFT
	band       spectral.Band
	minSamples int
	labels     []string
	out        io.Writer
	logger     logging.Logger
}

// NewSpectrumView designs the display filter from the analysis config
func NewSpectrumView(sampleRate int, cfg config.AnalysisConfig, labels []string, out io.Writer) (*SpectrumView, error) {
	fir, err := filters.NewBandpassFIR(sampleRate, cfg.FilterTaps, cfg.FilterBand.Low, cfg.FilterBand.High)
	if err != nil {
		return nil, fmt.Errorf("designing display filter: %w", err)
	}

	return &SpectrumView{
		fir:        fir,
		fft:        spectral.NewFFT(sampleRate),
		band:       cfg.FilterBand,
		minSamples: cfg.MinSamples,
		labels:     labels,
		out:        out,
		logger: logging.WithFields(logging.Fields{
			"component": "spectrum_view",
		}),
	}, nil
}

// Compute returns the display spectrum of x
func (v *SpectrumView) Compute(x []float64) (Spectrum, error) {
	filtered, err := v.fir.FiltFilt(x)
	if err != nil {
		return Spectrum{}, err
	}
	floats.AddConst(-common.Mean(filtered), filtered)

	mags := v.fft.Magnitude(filtered)
	common.MaxNormalize(mags)

	return Spectrum{
		Frequencies: v.fft.Frequencies(len(filtered)),
		Magnitudes:  mags,
	}, nil
}

// Render writes one line per channel holding at least minSamples values.
// Shorter channels are skipped. It returns the number of lines drawn.
func (v *SpectrumView) Render(buffers common.ChannelBuffers) (int, error) {
	var b strings.Builder
	drawn := 0

	for ch, buf := range buffers {
		if buf.Len() < v.minSamples {
			continue
		}
		spectrum, err := v.Compute(buf.Snapshot())
		if err != nil {
			v.logger.Error(err, "Spectrum failed", logging.Fields{"channel": ch})
			continue
		}

		fmt.Fprintf(&b, "%-4s %s %5.1f Hz\n", v.label(ch), v.bars(spectrum), spectrum.Peak(v.band))
		drawn++
	}

	if drawn == 0 {
		return 0, nil
	}
	fmt.Fprintf(&b, "     %-*s\n", spectrumWidth, fmt.Sprintf("%g-%g Hz", v.band.Low, v.band.High))
	if _, err := io.WriteString(v.out, b.String()); err != nil {
		return drawn, fmt.Errorf("writing spectrum: %w", err)
	}
	return drawn, nil
}

func (v *SpectrumView) label(ch int) string {
	if ch < len(v.labels) {
		return v.labels[ch]
	}
	return fmt.Sprintf("ch%d", ch)
}

// bars maps the in-band bins onto spectrumWidth columns, each showing the
// largest magnitude it covers
func (v *SpectrumView) bars(s Spectrum) string {
	var inBand []float64
	for k, f := range s.Frequencies {
		if v.band.Contains(f) {
			inBand = append(inBand, s.Magnitudes[k])
		}
	}

	blocks := []rune(spectrumBlocks)
	levels := len(blocks) - 1
	columns := min(spectrumWidth, len(inBand))

	var b strings.Builder
	for c := range columns {
		lo := c * len(inBand) / columns
		hi := max((c+1)*len(inBand)/columns, lo+1)
		level := int(floats.Max(inBand[lo:hi])*float64(levels) + 0.5)
		level = max(0, min(levels, level))
		b.WriteRune(blocks[level])
	}
	return b.String()
}
