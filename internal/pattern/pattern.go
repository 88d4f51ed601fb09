// Package pattern runs speculative decoders and heuristics over a bit
// sequence. Every entry point is a pure function of its input.
package pattern

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MinBits is the shortest sequence [Analyze] will decode.
const MinBits = 8

// InsufficientData is the report text for sequences shorter than [MinBits].
const InsufficientData = "Insufficient data"

// Decoding is the output of one codec.
type Decoding struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Value  string `json:"value"`
	Failed bool   `json:"failed,omitempty"`
}

// Run is a maximal stretch of equal bits.
type Run struct {
	Bit    uint8 `json:"bit"`
	Length int   `json:"length"`
}

// Delimiter lists where a candidate message delimiter occurs.
type Delimiter struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description"`
	Count       int    `json:"count"`
	// Positions holds the last five overlapping match offsets.
	Positions []int `json:"positions"`
}

// Report is the full analysis of one bit sequence.
type Report struct {
	Bits         int  `json:"bits"`
	Insufficient bool `json:"insufficient,omitempty"`

	Ones      int     `json:"ones"`
	Zeros     int     `json:"zeros"`
	OnesRatio float64 `json:"ones_ratio"`
	Entropy   float64 `json:"entropy"`

	Patterns   []string    `json:"patterns,omitempty"`
	Decodings  []Decoding  `json:"decodings,omitempty"`
	Monolit    *Monolit    `json:"monolit,omitempty"`
	Runs       []Run       `json:"runs,omitempty"`
	Delimiters []Delimiter `json:"delimiters,omitempty"`
	Hints      []string    `json:"hints,omitempty"`
}

// Decoded returns the value of the named codec.
func (r *Report) Decoded(name string) (string, bool) {
	for _, d := range r.Decodings {
		if d.Name == name {
			return d.Value, true
		}
	}
	return "", false
}

// Option configures [Analyze].
type Option func(*options)

type options struct {
	sessionTimes []time.Duration
}

// WithSessionTimes supplies the session times of the logged bits so the
// Monolit heuristic can estimate the bit interval.
func WithSessionTimes(times []time.Duration) Option {
	return func(o *options) { o.sessionTimes = times }
}

// Analyze decodes bits. Fewer than [MinBits] bits yield a report with
// Insufficient set and no codec output.
func Analyze(bits []uint8, opts ...Option) *Report {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	bs := bitString(bits)
	r := &Report{Bits: len(bs)}
	if len(bs) < MinBits {
		r.Insufficient = true
		return r
	}

	r.Ones = strings.Count(bs, "1")
	r.Zeros = len(bs) - r.Ones
	r.OnesRatio = float64(r.Ones) / float64(len(bs))
	r.Entropy = entropy(r.Ones, r.Zeros)

	r.Patterns = repeats(bs)
	r.Decodings = runCodecs(bs, codecs)
	r.Monolit = safeMonolit(bs, o.sessionTimes)

	all := runLengths(bs)
	r.Runs = all[max(len(all)-10, 0):]
	r.Delimiters = delimiters(bs)
	r.Hints = hints(bs, r.OnesRatio, all)
	return r
}

// bitString renders bits as '0'/'1' characters.
func bitString(bits []uint8) string {
	var b strings.Builder
	b.Grow(len(bits))
	for _, v := range bits {
		b.WriteByte('0' + v&1)
	}
	return b.String()
}

// entropy is the Shannon entropy of a binary distribution in bits.
func entropy(ones, zeros int) float64 {
	total := float64(ones + zeros)
	if total == 0 {
		return 0
	}
	var h float64
	for _, n := range []int{ones, zeros} {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		h -= p * math.Log2(p)
	}
	return h
}

// statistics formats the counts line of the statistics codec.
func statistics(bs string) string {
	ones := strings.Count(bs, "1")
	zeros := strings.Count(bs, "0")
	total := float64(len(bs))
	p1, p0 := float64(ones)/total, float64(zeros)/total
	return fmt.Sprintf("1s:%d(%.1f%%) 0s:%d(%.1f%%) Entropy:%.2f",
		ones, p1*100, zeros, p0*100, entropy(ones, zeros))
}
