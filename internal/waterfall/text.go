package waterfall

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Analysis renders the signal strength analysis. When target is positive
// the time series of the closest bin is included.
func (d *Data) Analysis(target float64) string {
	var b strings.Builder
	b.WriteString("=== Signal Strength Analysis ===\n")

	dur := d.Duration().Seconds()
	fmt.Fprintf(&b, "Total time samples: %d\n", len(d.Times))
	fmt.Fprintf(&b, "Duration: %.1f seconds (%.1f minutes)\n", dur, dur/60)
	fmt.Fprintf(&b, "Frequency bins: %d (%.2f-%.2f Hz)\n",
		len(d.Frequencies), d.Frequencies[0], d.Frequencies[len(d.Frequencies)-1])

	b.WriteString("\nTop 10 frequencies by average magnitude:\n")
	for i, bin := range d.TopBins(10) {
		fmt.Fprintf(&b, "  %d: %.2f Hz - Magnitude: %.2f\n", i+1, bin.Frequency, bin.Magnitude)
	}

	b.WriteString("\nUVB-76 frequency analysis:\n")
	for _, tb := range d.ToneBins(UVBTones) {
		fmt.Fprintf(&b, "  %.2f Hz: Closest bin %.2f Hz, Avg magnitude: %.2f\n", tb.Tone, tb.Closest, tb.Magnitude)
	}

	if target > 0 {
		s := d.Series(target)
		fmt.Fprintf(&b, "\nTime series at %.2f Hz (requested %.2f Hz):\n", s.Frequency, target)
		fmt.Fprintf(&b, "  Min: %.2f  Mean: %.2f  Max: %.2f\n", s.Min, s.Mean, s.Max)
	}
	return b.String()
}

// WriteSummary writes the summary text for the file at source.
func (d *Data) WriteSummary(w io.Writer, source string, now time.Time) error {
	var b strings.Builder
	b.WriteString("UVB-76 Waterfall Data Analysis Summary\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
	fmt.Fprintf(&b, "Source file: %s\n", source)
	fmt.Fprintf(&b, "Analysis time: %s\n\n", now.Format(time.DateTime))

	fmt.Fprintf(&b, "Time samples: %d\n", len(d.Times))
	if len(d.Times) > 1 {
		end := d.Start.Add(time.Duration(d.Times[len(d.Times)-1] * float64(time.Second)))
		fmt.Fprintf(&b, "Duration: %.1f seconds\n", d.Duration().Seconds())
		fmt.Fprintf(&b, "Start time: %s\n", d.Start.Add(time.Duration(d.Times[0]*float64(time.Second))).Format(time.DateTime))
		fmt.Fprintf(&b, "End time: %s\n", end.Format(time.DateTime))
	}
	fmt.Fprintf(&b, "Frequency bins: %d\n", len(d.Frequencies))
	fmt.Fprintf(&b, "Data shape: (%d, %d)\n\n", len(d.Magnitudes), len(d.Frequencies))
	b.WriteString(d.Analysis(0))

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("waterfall: write summary: %w", err)
	}
	return nil
}
