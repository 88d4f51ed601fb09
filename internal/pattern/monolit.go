package pattern

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// MonolitMinBits is the shortest sequence the Monolit heuristic scores.
const MonolitMinBits = 64

// Monolit likelihood bands.
const (
	LikelihoodHigh   = "HIGH - Strong Monolit characteristics"
	LikelihoodMedium = "MEDIUM - Some Monolit patterns"
	LikelihoodLow    = "LOW - Few Monolit indicators"
	LikelihoodNone   = "NONE - No clear Monolit patterns"
)

// Monolit is the result of the Monolit structure heuristic: repeated call
// signs, numeric ID groups and code words found in the byte rendering.
type Monolit struct {
	Error string `json:"error,omitempty"`

	Callsigns  []string `json:"callsigns"`
	FiveDigit  []string `json:"five_digit_groups"`
	EightDigit []string `json:"eight_digit_blocks"`
	CodeWords  []string `json:"code_words"`

	Score      int      `json:"score"`
	Likelihood string   `json:"likelihood"`
	Structure  []string `json:"structure"`

	// Timing is empty when fewer than 11 session times were supplied.
	Timing string `json:"timing,omitempty"`
}

var (
	fiveDigitRe  = regexp.MustCompile(`\b\d{5}\b`)
	eightDigitRe = regexp.MustCompile(`\b\d{8}\b`)
	codeWordRe   = regexp.MustCompile(`\b[A-Z]{4,6}\b`)
)

func safeMonolit(bs string, times []time.Duration) (m *Monolit) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("pattern: monolit heuristic panicked", "panic", r)
			m = &Monolit{Error: fmt.Sprintf("Monolit analysis failed: %v", r)}
		}
	}()
	return monolit(bs, times)
}

func monolit(bs string, times []time.Duration) *Monolit {
	if len(bs) < MonolitMinBits {
		return &Monolit{Error: "Insufficient data for Monolit analysis"}
	}
	vals, err := groups(bs, 8)
	if err != nil {
		return &Monolit{Error: fmt.Sprintf("Monolit analysis failed: %v", err)}
	}

	ascii := make([]byte, len(vals))
	digits := make([]byte, len(vals))
	for i, v := range vals {
		ascii[i] = '.'
		if printable(v) {
			ascii[i] = byte(v)
		}
		digits[i] = ' '
		if v >= '0' && v <= '9' {
			digits[i] = byte(v)
		}
	}

	five := fiveDigitRe.FindAllString(string(digits), -1)
	eight := eightDigitRe.FindAllString(string(digits), -1)
	words := codeWordRe.FindAllString(strings.ToUpper(string(ascii)), -1)
	m := &Monolit{
		Callsigns:  callsigns(string(ascii)),
		FiveDigit:  firstN(five, 10),
		EightDigit: firstN(eight, 5),
		CodeWords:  firstN(words, 5),
	}

	if len(m.Callsigns) > 0 {
		m.Score += 30
		m.Structure = append(m.Structure, "✓ Repeated callsign pattern detected")
	}
	if len(m.FiveDigit) > 0 {
		m.Score += 25
		m.Structure = append(m.Structure, fmt.Sprintf("✓ %d five-digit ID groups found", len(five)))
	}
	if len(m.EightDigit) > 0 {
		m.Score += 25
		m.Structure = append(m.Structure, fmt.Sprintf("✓ %d eight-digit message blocks found", len(eight)))
	}
	if len(m.CodeWords) > 0 {
		m.Score += 20
		m.Structure = append(m.Structure, fmt.Sprintf("✓ %d code word candidates found", len(words)))
	}
	if len(m.Structure) == 0 {
		m.Structure = []string{"No clear Monolit structure detected"}
	}
	m.Likelihood = likelihood(m.Score)

	if len(times) > 10 {
		m.Timing = timing(times)
	}
	return m
}

func likelihood(score int) string {
	switch {
	case score >= 70:
		return LikelihoodHigh
	case score >= 40:
		return LikelihoodMedium
	case score >= 20:
		return LikelihoodLow
	default:
		return LikelihoodNone
	}
}

// callsigns finds alphanumeric substrings of length 3–5 that are immediately
// repeated.
func callsigns(ascii string) []string {
	var out []string
	for _, length := range []int{3, 4, 5} {
		for i := 0; i < len(ascii)-2*length; i++ {
			p := ascii[i : i+length]
			if p == ascii[i+length:i+2*length] && alnum(p) {
				out = append(out, fmt.Sprintf("'%s' (repeated)", p))
				if len(out) == 5 {
					return out
				}
			}
		}
	}
	return out
}

func alnum(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// timing averages plausible gaps between the first 50 bit times.
func timing(times []time.Duration) string {
	var sum float64
	var n int
	for i := 1; i < min(len(times), 50); i++ {
		gap := (times[i] - times[i-1]).Seconds()
		if gap > 0.1 && gap < 10 {
			sum += gap
			n++
		}
	}
	if n == 0 {
		return "Insufficient timing data"
	}
	return fmt.Sprintf("Avg bit interval: %.2fs (typical Monolit: 0.5-2.0s)", sum/float64(n))
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
