// Package waterfall analyses exported waterfall logs offline.
package waterfall

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/buzzer/internal/export"
)

// UVBTones are the nominal tone frequencies marked in every analysis.
var UVBTones = []float64{21.53, 26.92, 32.30}

var (
	// ErrEmpty is returned when a log or a filter leaves no data.
	ErrEmpty = errors.New("waterfall: no data")

	// ErrShape is returned when entries disagree on their frequency axis.
	ErrShape = errors.New("waterfall: entries have different frequency axes")
)

// Data is a loaded waterfall: one magnitude row per time sample over a
// shared frequency axis.
type Data struct {
	// Start is the wall-clock time of the first row.
	Start time.Time

	// Times are seconds relative to the first row.
	Times       []float64
	Frequencies []float64
	Magnitudes  [][]float64
}

// Load reads a waterfall JSON export.
func Load(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("waterfall: %w", err)
	}
	defer f.Close()

	entries, err := export.ReadWaterfallJSON(f)
	if err != nil {
		return nil, err
	}
	return FromEntries(entries)
}

// FromEntries builds Data from export entries. The frequency axis is taken
// from the first entry.
func FromEntries(entries []export.WaterfallEntry) (*Data, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	axis := entries[0].Frequencies
	if len(axis) == 0 {
		return nil, ErrEmpty
	}

	t0 := entries[0].Timestamp
	d := &Data{
		Start:       unixSeconds(t0),
		Times:       make([]float64, len(entries)),
		Frequencies: slices.Clone(axis),
		Magnitudes:  make([][]float64, len(entries)),
	}
	for i, e := range entries {
		if len(e.Magnitudes) != len(axis) || len(e.Frequencies) != len(axis) {
			return nil, fmt.Errorf("%w: entry %d has %d bins, want %d", ErrShape, i, len(e.Magnitudes), len(axis))
		}
		d.Times[i] = e.Timestamp - t0
		d.Magnitudes[i] = slices.Clone(e.Magnitudes)
	}
	return d, nil
}

func unixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Duration is the time between the first and the last row.
func (d *Data) Duration() time.Duration {
	if len(d.Times) < 2 {
		return 0
	}
	return time.Duration((d.Times[len(d.Times)-1] - d.Times[0]) * float64(time.Second))
}

// FilterFrequency keeps the bins within [lo, hi] Hz.
func (d *Data) FilterFrequency(lo, hi float64) (*Data, error) {
	var keep []int
	for i, f := range d.Frequencies {
		if f >= lo && f <= hi {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("%w in %.2f-%.2f Hz", ErrEmpty, lo, hi)
	}

	out := &Data{
		Start:       d.Start,
		Times:       slices.Clone(d.Times),
		Frequencies: pick(d.Frequencies, keep),
		Magnitudes:  make([][]float64, len(d.Magnitudes)),
	}
	for i, row := range d.Magnitudes {
		out.Magnitudes[i] = pick(row, keep)
	}
	return out, nil
}

// FilterTime keeps the rows within [start, end] seconds of the first row.
// Times of the result stay relative to the original first row.
func (d *Data) FilterTime(start, end float64) (*Data, error) {
	out := &Data{Start: d.Start, Frequencies: slices.Clone(d.Frequencies)}
	for i, t := range d.Times {
		if t >= start && t <= end {
			out.Times = append(out.Times, t)
			out.Magnitudes = append(out.Magnitudes, slices.Clone(d.Magnitudes[i]))
		}
	}
	if len(out.Times) == 0 {
		return nil, fmt.Errorf("%w in %.1f-%.1f s", ErrEmpty, start, end)
	}
	return out, nil
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

// AverageSpectrum is the mean magnitude of every bin over time.
func (d *Data) AverageSpectrum() []float64 {
	avg := make([]float64, len(d.Frequencies))
	for _, row := range d.Magnitudes {
		floats.Add(avg, row)
	}
	if n := len(d.Magnitudes); n > 0 {
		floats.Scale(1/float64(n), avg)
	}
	return avg
}

// Bin is one frequency bin with its average magnitude.
type Bin struct {
	Frequency float64
	Magnitude float64
}

// TopBins returns the n bins with the highest average magnitude, strongest
// first.
func (d *Data) TopBins(n int) []Bin {
	avg := d.AverageSpectrum()
	idx := make([]int, len(avg))
	floats.Argsort(slices.Clone(avg), idx)

	n = min(n, len(idx))
	out := make([]Bin, 0, n)
	for i := len(idx) - 1; i >= len(idx)-n; i-- {
		out = append(out, Bin{Frequency: d.Frequencies[idx[i]], Magnitude: avg[idx[i]]})
	}
	return out
}

// ToneBin relates a nominal tone to the closest bin of the axis.
type ToneBin struct {
	Tone      float64
	Closest   float64
	Magnitude float64
}

// ToneBins finds the closest bin and its average magnitude for each tone.
func (d *Data) ToneBins(tones []float64) []ToneBin {
	avg := d.AverageSpectrum()
	out := make([]ToneBin, len(tones))
	for i, f := range tones {
		j := d.closest(f)
		out[i] = ToneBin{Tone: f, Closest: d.Frequencies[j], Magnitude: avg[j]}
	}
	return out
}

func (d *Data) closest(f float64) int {
	best, bestDiff := 0, math.Inf(1)
	for i, g := range d.Frequencies {
		if diff := math.Abs(g - f); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

// Series is the magnitude of one bin over time.
type Series struct {
	Frequency float64
	Times     []float64
	Values    []float64
	Min       float64
	Mean      float64
	Max       float64
}

// Series extracts the bin closest to target.
func (d *Data) Series(target float64) Series {
	j := d.closest(target)
	s := Series{
		Frequency: d.Frequencies[j],
		Times:     slices.Clone(d.Times),
		Values:    make([]float64, len(d.Magnitudes)),
	}
	for i, row := range d.Magnitudes {
		s.Values[i] = row[j]
	}
	if len(s.Values) > 0 {
		s.Min = floats.Min(s.Values)
		s.Max = floats.Max(s.Values)
		s.Mean = stat.Mean(s.Values, nil)
	}
	return s
}
