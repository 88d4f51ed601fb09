package spectral

import "math"

// Hann returns a symmetric Hann window of length n.
func Hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// FindPeak returns the strongest bin of f whose frequency lies in [low, high]
// and whose magnitude is at least minStrength. Ties keep the lowest bin.
func FindPeak(f *Frame, low, high, minStrength float64) (Peak, bool) {
	best := -1
	for k, m := range f.Magnitudes {
		freq := f.Frequency(k)
		if freq < low || freq > high {
			continue
		}
		if m < minStrength {
			continue
		}
		if best < 0 || m > f.Magnitudes[best] {
			best = k
		}
	}
	if best < 0 {
		return Peak{}, false
	}
	return Peak{
		Frequency: f.Frequency(best),
		Magnitude: f.Magnitudes[best],
		Bin:       best,
	}, true
}
