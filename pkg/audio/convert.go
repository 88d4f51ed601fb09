package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an int16 PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter converts int16 little-endian PCM to a mono target rate. It
// logs once on the first format mismatch and once on misaligned input.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	// TargetRate is the nominal pipeline sample rate in Hz.
	TargetRate int

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert downmixes and resamples pcm from the given format to mono at
// TargetRate. When the source already matches, pcm is returned unchanged.
// Conversion order: downmix first, then resample.
func (c *FormatConverter) Convert(pcm []byte, from Format) []byte {
	frameBytes := 2 * max(from.Channels, 1)
	if len(pcm)%frameBytes != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: trailing partial frame in PCM data, truncating",
				"bytes", len(pcm),
				"channels", from.Channels,
			)
		})
		pcm = pcm[:len(pcm)-len(pcm)%frameBytes]
	}

	if from.Channels <= 1 && from.SampleRate == c.TargetRate {
		return pcm
	}

	c.warnedMismatch.Do(func() {
		slog.Info("audio format mismatch: converting",
			"from", formatString(from.SampleRate, from.Channels),
			"to", formatString(c.TargetRate, 1),
		)
	})

	if from.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	if from.SampleRate != c.TargetRate {
		pcm = ResampleMono16(pcm, from.SampleRate, c.TargetRate)
	}
	return pcm
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
