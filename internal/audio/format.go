package audio

import (
	"encoding/binary"
	"math"
	"strings"

	"codeberg.org/mutker/vibesd/internal/errors"
)

// SampleFormat is the wire encoding of captured PCM samples.
type SampleFormat string

const (
	FormatF32LE SampleFormat = "f32le"
	FormatF64LE SampleFormat = "f64le"
	FormatS16LE SampleFormat = "s16le"
	FormatU16LE SampleFormat = "u16le"
	FormatS32LE SampleFormat = "s32le"
	FormatU8    SampleFormat = "u8"
)

// ParseSampleFormat accepts the canonical names plus a few common aliases.
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f32", "f32le", "float32":
		return FormatF32LE, nil
	case "f64", "f64le", "float64":
		return FormatF64LE, nil
	case "s16", "s16le", "i16", "int16":
		return FormatS16LE, nil
	case "u16", "u16le", "uint16":
		return FormatU16LE, nil
	case "s32", "s32le", "i32", "int32":
		return FormatS32LE, nil
	case "u8", "uint8":
		return FormatU8, nil
	default:
		return "", errors.New().WithData(errors.ErrInvalidFormat, s)
	}
}

// BytesPerSample returns the width of one sample, or 0 if unknown.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16LE, FormatU16LE:
		return 2
	case FormatF32LE, FormatS32LE:
		return 4
	case FormatF64LE:
		return 8
	default:
		return 0
	}
}

// Normalizer decodes a raw little-endian block into floats in [-1,1],
// reusing dst when it has enough capacity. Trailing partial samples are
// ignored.
type Normalizer func(dst []float64, raw []byte) []float64

// NormalizerFor resolves the decoding function for a stream once, so the
// per-sample loop carries no format dispatch.
func NormalizerFor(f SampleFormat) (Normalizer, error) {
	switch f {
	case FormatF32LE:
		return func(dst []float64, raw []byte) []float64 {
			dst = grow(dst, len(raw)/4)
			for i := range dst {
				dst[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
			}
			return dst
		}, nil
	case FormatF64LE:
		return func(dst []float64, raw []byte) []float64 {
			dst = grow(dst, len(raw)/8)
			for i := range dst {
				dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
			}
			return dst
		}, nil
	case FormatS16LE:
		return func(dst []float64, raw []byte) []float64 {
			dst = grow(dst, len(raw)/2)
			for i := range dst {
				dst[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
			}
			return dst
		}, nil
	case FormatU16LE:
		return func(dst []float64, raw []byte) []float64 {
			dst = grow(dst, len(raw)/2)
			for i := range dst {
				dst[i] = (float64(binary.LittleEndian.Uint16(raw[i*2:])) - 32768.0) / 32768.0
			}
			return dst
		}, nil
	case FormatS32LE:
		return func(dst []float64, raw []byte) []float64 {
			dst = grow(dst, len(raw)/4)
			for i := range dst {
				dst[i] = float64(int32(binary.LittleEndian.Uint32(raw[i*4:]))) / 2147483648.0
			}
			return dst
		}, nil
	case FormatU8:
		return func(dst []float64, raw []byte) []float64 {
			dst = grow(dst, len(raw))
			for i := range dst {
				dst[i] = (float64(raw[i]) - 128.0) / 128.0
			}
			return dst
		}, nil
	default:
		return nil, errors.New().WithData(errors.ErrInvalidFormat, string(f))
	}
}

func grow(dst []float64, n int) []float64 {
	if cap(dst) < n {
		return make([]float64, n)
	}
	return dst[:n]
}
