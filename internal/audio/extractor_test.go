package audio_test

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
	"time"

	"codeberg.org/mutker/vibesd/internal/audio"
	"codeberg.org/mutker/vibesd/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRate = 44100

func sine(n int, freq, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
	}
	return out
}

func assertUnit(t *testing.T, f audio.Features) {
	t.Helper()
	for _, v := range []float64{f.LowEnergy, f.MidEnergy, f.HighEnergy, f.SpectralFlux} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestExtractValuesInUnitRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	plan := audio.NewPlan()

	var prev []float64
	for _, n := range []int{1, 2, 3, 64, 512, 1000, 1024, 4096} {
		for trial := 0; trial < 5; trial++ {
			block := make([]float64, n)
			for i := range block {
				block[i] = rng.Float64()*2 - 1
			}
			f, spectrum, ok := plan.Extract(block, sampleRate, prev)
			require.True(t, ok)
			assertUnit(t, f)
			prev = spectrum
		}
	}
}

func TestExtractClampsLoudInput(t *testing.T) {
	block := make([]float64, 1024)
	for i := range block {
		block[i] = 1
	}

	f, _, ok := audio.NewPlan().Extract(block, sampleRate, nil)
	require.True(t, ok)
	assert.Equal(t, 1.0, f.LowEnergy)
	assertUnit(t, f)
}

func TestExtractEmptyBlock(t *testing.T) {
	prev := []float64{1, 2, 3}

	_, spectrum, ok := audio.NewPlan().Extract(nil, sampleRate, prev)
	assert.False(t, ok)
	assert.Equal(t, prev, spectrum)
}

func TestExtractBands(t *testing.T) {
	plan := audio.NewPlan()

	f, spectrum, ok := plan.Extract(sine(1024, 1000, 1), sampleRate, nil)
	require.True(t, ok)
	assert.Len(t, spectrum, 512)
	assert.Greater(t, f.MidEnergy, f.LowEnergy)
	assert.Greater(t, f.MidEnergy, f.HighEnergy)

	f, _, ok = plan.Extract(sine(1024, 8000, 1), sampleRate, nil)
	require.True(t, ok)
	assert.Greater(t, f.HighEnergy, f.MidEnergy)
	assert.Greater(t, f.HighEnergy, f.LowEnergy)
}

func TestExtractFlux(t *testing.T) {
	plan := audio.NewPlan()
	quiet := sine(1024, 440, 0.01)
	loud := sine(1024, 440, 0.9)

	f, s1, _ := plan.Extract(quiet, sampleRate, nil)
	assert.Zero(t, f.SpectralFlux, "no previous spectrum")

	f, s2, _ := plan.Extract(loud, sampleRate, s1)
	assert.Greater(t, f.SpectralFlux, 0.0)

	f, _, _ = plan.Extract(loud, sampleRate, s2)
	assert.InDelta(t, 0.0, f.SpectralFlux, 1e-9, "identical block has no positive change")

	f, _, _ = plan.Extract(quiet, sampleRate, s2)
	assert.InDelta(t, 0.0, f.SpectralFlux, 1e-9, "only increases count")
}

func TestExtractFluxZeroOnLengthChange(t *testing.T) {
	plan := audio.NewPlan()

	_, prev, _ := plan.Extract(sine(1024, 440, 0.01), sampleRate, nil)
	f, spectrum, ok := plan.Extract(sine(2048, 440, 0.9), sampleRate, prev)
	require.True(t, ok)
	assert.Equal(t, 0.0, f.SpectralFlux)
	assert.Len(t, spectrum, 1024)
}

func s16Block(samples []float64) []byte {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(s*32767)))
	}
	return raw
}

func TestExtractorKeepsSpectrumAcrossCalls(t *testing.T) {
	ex, err := audio.NewExtractor(audio.FormatS16LE, sampleRate)
	require.NoError(t, err)

	_, ok := ex.Process(s16Block(sine(1024, 440, 0.01)))
	require.True(t, ok)

	_, ok = ex.Process(nil)
	assert.False(t, ok, "empty block produces nothing")

	f, ok := ex.Process(s16Block(sine(1024, 440, 0.9)))
	require.True(t, ok)
	assert.Greater(t, f.SpectralFlux, 0.0, "empty block must not reset the previous spectrum")
}

func TestNewExtractorRejectsUnknownFormat(t *testing.T) {
	_, err := audio.NewExtractor("alaw", sampleRate)
	require.Error(t, err)
}

func TestExtractorRunPublishes(t *testing.T) {
	ex, err := audio.NewExtractor(audio.FormatS16LE, sampleRate)
	require.NoError(t, err)

	features := bus.New[audio.Features](8)
	sub, err := features.Subscribe("test")
	require.NoError(t, err)

	blocks := make(chan []byte, 3)
	blocks <- s16Block(sine(512, 100, 0.5))
	blocks <- []byte{}
	blocks <- s16Block(sine(512, 100, 0.5))
	close(blocks)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ex.Run(ctx, blocks, features)

	assert.Len(t, sub.C(), 2)
	f := <-sub.C()
	assertUnit(t, f)
}
