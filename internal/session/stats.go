package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MrWong99/buzzer/internal/tone"
)

// StatisticsText renders the session statistics panel as of now.
func (s *State) StatisticsText(now time.Time) string {
	snap := s.Snapshot(now)
	tones := s.classifier.Config().Tones
	return statisticsText(snap, tones)
}

func statisticsText(snap Snapshot, tones [3]float64) string {
	m := snap.Metrics
	secs := m.Elapsed.Seconds()

	var sum, lo, hi, cur float64
	for i, f := range snap.Frequencies {
		sum += f.Frequency
		if i == 0 || f.Frequency < lo {
			lo = f.Frequency
		}
		if i == 0 || f.Frequency > hi {
			hi = f.Frequency
		}
		cur = f.Frequency
	}
	var avg float64
	if n := len(snap.Frequencies); n > 0 {
		avg = sum / float64(n)
	}

	var ones int
	for _, b := range snap.Bits {
		ones += int(b.Bit)
	}
	nbits := len(snap.Bits)
	var ratio, bps float64
	if nbits > 0 {
		ratio = float64(ones) / float64(nbits)
	}
	if secs > 0 {
		bps = float64(nbits) / secs
	}

	counts := snap.ToneCounts
	state := "Unknown"
	if snap.Tone != nil {
		state = snap.Tone.Label
	}

	var b strings.Builder
	b.WriteString("SESSION STATISTICS\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString("Connection Info:\n")
	fmt.Fprintf(&b, "  Duration: %.0f seconds (%.1f minutes)\n", secs, secs/60)
	fmt.Fprintf(&b, "  Data received: %s bytes (%.1f KB)\n", humanize.Comma(int64(m.BytesReceived)), float64(m.BytesReceived)/1024)
	fmt.Fprintf(&b, "  Average data rate: %.2f KB/s\n", m.KBps)
	fmt.Fprintf(&b, "  Chunks processed: %s\n\n", humanize.Comma(int64(m.ChunksProcessed)))

	b.WriteString("Frequency Analysis:\n")
	fmt.Fprintf(&b, "  Measurements: %s\n", humanize.Comma(int64(len(snap.Frequencies))))
	fmt.Fprintf(&b, "  Average frequency: %.2f Hz\n", avg)
	fmt.Fprintf(&b, "  Frequency range: %.2f - %.2f Hz\n", lo, hi)
	fmt.Fprintf(&b, "  Current frequency: %.2f Hz\n\n", cur)

	b.WriteString("Binary Decoding:\n")
	fmt.Fprintf(&b, "  Total bits decoded: %s\n", humanize.Comma(int64(nbits)))
	fmt.Fprintf(&b, "  Binary 1s: %s (%.1f%%)\n", humanize.Comma(int64(ones)), ratio*100)
	fmt.Fprintf(&b, "  Binary 0s: %s (%.1f%%)\n", humanize.Comma(int64(nbits-ones)), (1-ratio)*100)
	fmt.Fprintf(&b, "  Bits per second: %.2f\n\n", bps)

	b.WriteString("FSK State Analysis:\n")
	fmt.Fprintf(&b, "  Current state: %s\n", state)
	fmt.Fprintf(&b, "  State changes: %s\n", humanize.Comma(int64(snap.ToneChanges)))
	fmt.Fprintf(&b, "  FSK-1 (%.2fHz): %d/%d recent\n", tones[0], counts[tone.ClassDataZero], snap.Buffers.History)
	fmt.Fprintf(&b, "  FSK-2 (%.2fHz): %d/%d recent\n", tones[1], counts[tone.ClassDataOne], snap.Buffers.History)
	fmt.Fprintf(&b, "  FSK-3 (%.2fHz): %d/%d recent\n\n", tones[2], counts[tone.ClassCarrier], snap.Buffers.History)

	b.WriteString("Data Quality:\n")
	fmt.Fprintf(&b, "  Waterfall snapshots: %s\n", humanize.Comma(int64(snap.WaterfallLen)))
	fmt.Fprintf(&b, "  Decode failures: %s\n", humanize.Comma(int64(m.DecodeFailures)))
	fmt.Fprintf(&b, "  Log entries (binary): %s\n", humanize.Comma(int64(snap.BitLogLen)))
	fmt.Fprintf(&b, "  Log entries (frequency): %s\n", humanize.Comma(int64(snap.FrequencyLogLen)))
	fmt.Fprintf(&b, "  Log entries (waterfall): %s\n\n", humanize.Comma(int64(snap.WaterfallLogLen)))

	b.WriteString("Memory Usage:\n")
	fmt.Fprintf(&b, "  Frequency buffer: %d/%d slots\n", len(snap.Frequencies), snap.Buffers.Frequency)
	fmt.Fprintf(&b, "  Binary buffer: %d/%d slots\n", nbits, snap.Buffers.Bits)
	fmt.Fprintf(&b, "  Audio level buffer: %d/%d slots\n\n", len(snap.Levels), snap.Buffers.AudioLevel)

	b.WriteString("Analysis:\n")
	fmt.Fprintf(&b, "  Data logging active: %s\n", yesNo(snap.Logging.Binary))
	fmt.Fprintf(&b, "  Frequency logging active: %s\n", yesNo(snap.Logging.Frequency))
	fmt.Fprintf(&b, "  Waterfall logging active: %s\n", yesNo(snap.Logging.Waterfall))
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
