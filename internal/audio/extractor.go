package audio

import (
	"context"
	"math/cmplx"

	"codeberg.org/mutker/vibesd/internal/bus"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Plan holds a reusable real FFT. It is not safe for concurrent use; each
// extraction goroutine owns its own Plan.
type Plan struct {
	fft    *fourier.FFT
	coeffs []complex128
}

// NewPlan returns a Plan sized lazily on first use.
func NewPlan() *Plan {
	return &Plan{}
}

func (p *Plan) prepare(n int) {
	if p.fft == nil {
		p.fft = fourier.NewFFT(n)
	} else if p.fft.Len() != n {
		p.fft.Reset(n)
	}
	if len(p.coeffs) != n/2+1 {
		p.coeffs = make([]complex128, n/2+1)
	}
}

// Extract computes band energies and spectral flux for one block of
// normalized samples. prev is the magnitude spectrum returned by the
// previous call; it is only read. The returned spectrum is a new slice.
// ok is false for an empty block, in which case prev should be kept.
func (p *Plan) Extract(samples []float64, sampleRate int, prev []float64) (f Features, spectrum []float64, ok bool) {
	n := len(samples)
	if n == 0 {
		return Features{}, prev, false
	}

	p.prepare(n)
	p.coeffs = p.fft.Coefficients(p.coeffs, samples)

	half := n / 2
	binSize := float64(sampleRate) / float64(n)
	spectrum = make([]float64, half)

	var low, mid, high float64
	for i := 0; i < half; i++ {
		mag := cmplx.Abs(p.coeffs[i])
		spectrum[i] = mag

		switch freq := float64(i) * binSize; {
		case freq < LowCutoff:
			low += mag
		case freq < HighCutoff:
			mid += mag
		default:
			high += mag
		}
	}

	var flux float64
	if len(prev) == len(spectrum) {
		for i, cur := range spectrum {
			if d := cur - prev[i]; d > 0 {
				flux += d
			}
		}
	}

	norm := float64(n)
	f = Features{
		LowEnergy:    clamp01(low / norm),
		MidEnergy:    clamp01(mid / norm),
		HighEnergy:   clamp01(high / norm),
		SpectralFlux: clamp01(flux / norm),
	}

	return f, spectrum, true
}

// Extractor turns raw blocks of one capture stream into Features. It keeps
// the previous spectrum between calls, so a stream must be fed by a single
// goroutine.
type Extractor struct {
	sampleRate int
	normalize  Normalizer
	plan       *Plan
	samples    []float64
	prev       []float64
}

// NewExtractor resolves the sample decoding for format once.
func NewExtractor(format SampleFormat, sampleRate int) (*Extractor, error) {
	normalize, err := NormalizerFor(format)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		sampleRate: sampleRate,
		normalize:  normalize,
		plan:       NewPlan(),
	}, nil
}

// Process decodes and analyses one raw block. ok is false for blocks that
// contain no whole sample.
func (e *Extractor) Process(raw []byte) (Features, bool) {
	e.samples = e.normalize(e.samples, raw)

	f, spectrum, ok := e.plan.Extract(e.samples, e.sampleRate, e.prev)
	if !ok {
		return Features{}, false
	}
	e.prev = spectrum

	return f, true
}

// Run consumes blocks until ctx is done or blocks is closed, publishing one
// Features value per non-empty block.
func (e *Extractor) Run(ctx context.Context, blocks <-chan []byte, out *bus.Bus[Features]) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-blocks:
			if !ok {
				return
			}
			if f, ok := e.Process(raw); ok {
				out.Publish(f)
			}
		}
	}
}
