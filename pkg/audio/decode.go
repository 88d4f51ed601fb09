package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MinSamples is the minimum number of samples an encoding must yield for
// [Decode] to accept it.
const MinSamples = 100

// ErrUndecodable is returned by [Decode] when no encoding yields at least
// [MinSamples] samples.
var ErrUndecodable = errors.New("audio: no encoding yields enough samples")

// Encoding identifies a sample layout tried by [Decode].
type Encoding int

const (
	// EncodingUnknown is the zero value; no decode has happened.
	EncodingUnknown Encoding = iota

	// EncodingInt16LE is signed 16-bit little-endian PCM scaled by 1/32768.
	EncodingInt16LE

	// EncodingFloat32LE is IEEE-754 32-bit little-endian float, used as-is.
	EncodingFloat32LE

	// EncodingInt16BE is signed 16-bit big-endian PCM scaled by 1/32768.
	EncodingInt16BE
)

// String returns the short name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingInt16LE:
		return "s16le"
	case EncodingFloat32LE:
		return "f32le"
	case EncodingInt16BE:
		return "s16be"
	default:
		return "unknown"
	}
}

// decodeOrder is the fixed priority used by Decode. A buffer can parse under
// more than one layout, so the order decides the result.
var decodeOrder = []Encoding{EncodingInt16LE, EncodingFloat32LE, EncodingInt16BE}

// Decode converts raw bytes into a mono [AudioFrame]. Encodings are tried in
// the order s16le, f32le, s16be and the first one that parses and yields at
// least [MinSamples] samples wins. No attempt is made to validate the choice
// against stream metadata.
func Decode(data []byte, sampleRate int) (AudioFrame, error) {
	for _, enc := range decodeOrder {
		samples, ok := decodeAs(data, enc)
		if !ok || len(samples) < MinSamples {
			continue
		}
		return AudioFrame{Samples: samples, SampleRate: sampleRate, Encoding: enc}, nil
	}
	return AudioFrame{}, fmt.Errorf("%w (%d bytes)", ErrUndecodable, len(data))
}

// decodeAs interprets data under a single encoding. It reports false when the
// byte count is not a multiple of the sample width.
func decodeAs(data []byte, enc Encoding) ([]float64, bool) {
	switch enc {
	case EncodingInt16LE:
		if len(data)%2 != 0 {
			return nil, false
		}
		out := make([]float64, len(data)/2)
		for i := range out {
			out[i] = float64(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
		}
		return out, true

	case EncodingFloat32LE:
		if len(data)%4 != 0 {
			return nil, false
		}
		out := make([]float64, len(data)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
		return out, true

	case EncodingInt16BE:
		if len(data)%2 != 0 {
			return nil, false
		}
		out := make([]float64, len(data)/2)
		for i := range out {
			out[i] = float64(int16(binary.BigEndian.Uint16(data[i*2:]))) / 32768
		}
		return out, true
	}
	return nil, false
}

// Level returns the mean absolute sample value, used as a cheap loudness
// estimate. An empty slice has level 0.
func Level(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(s)
	}
	return sum / float64(len(samples))
}

// EncodeInt16LE converts normalised samples to little-endian int16 PCM,
// clamping to the int16 range. It is the inverse of the s16le branch of
// [Decode] up to quantisation.
func EncodeInt16LE(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
