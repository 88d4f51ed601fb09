package pattern

import (
	"fmt"
	"strconv"
	"strings"
)

// textOrder is the order codecs appear in the text rendering.
var textOrder = []string{
	CodecASCII, CodecBaudot, CodecBytes, CodecHex,
	CodecNibbles, CodecBCD, CodecSync, CodecStatistics,
}

// Text renders the report in the fixed multi-section layout used by the
// terminal UI, the stats endpoint and exports.
func (r *Report) Text() string {
	var b strings.Builder
	b.WriteString("PATTERN ANALYSIS & DECODING:\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	if r.Insufficient {
		fmt.Fprintf(&b, "%s (%d bits, need %d)\n", InsufficientData, r.Bits, MinBits)
		return b.String()
	}

	b.WriteString("Bit statistics:\n")
	fmt.Fprintf(&b, "  1s ratio: %.2f%%\n", r.OnesRatio*100)
	fmt.Fprintf(&b, "  0s ratio: %.2f%%\n", (1-r.OnesRatio)*100)
	fmt.Fprintf(&b, "  Total bits: %d\n\n", r.Bits)

	b.WriteString("Repeating patterns:\n")
	for _, p := range r.Patterns {
		fmt.Fprintf(&b, "  %s\n", p)
	}
	b.WriteString("\n")

	b.WriteString("DECODING ATTEMPTS:\n")
	b.WriteString(strings.Repeat("-", 20) + "\n")
	for _, name := range textOrder {
		for _, d := range r.Decodings {
			if d.Name == name {
				fmt.Fprintf(&b, "%s: %s\n", d.Label, d.Value)
			}
		}
	}

	b.WriteString("\nMONOLIT CODING ANALYSIS:\n")
	b.WriteString(strings.Repeat("-", 25) + "\n")
	if m := r.Monolit; m != nil {
		if m.Error != "" {
			fmt.Fprintf(&b, "Error: %s\n", m.Error)
		} else {
			fmt.Fprintf(&b, "Likelihood: %s\n\n", m.Likelihood)
			fmt.Fprintf(&b, "Callsign Candidates: %s\n", listOrNone(m.Callsigns))
			fmt.Fprintf(&b, "5-Digit ID Groups: %s\n", listOrNone(m.FiveDigit))
			fmt.Fprintf(&b, "8-Digit Message Blocks: %s\n", listOrNone(m.EightDigit))
			fmt.Fprintf(&b, "Code Word Candidates: %s\n", listOrNone(m.CodeWords))
			if m.Timing != "" {
				fmt.Fprintf(&b, "Timing: %s\n", m.Timing)
			}
			b.WriteString("\nStructure Analysis:\n")
			for _, s := range m.Structure {
				fmt.Fprintf(&b, "  %s\n", s)
			}
		}
	}

	b.WriteString("\nRUN LENGTHS:\n")
	b.WriteString(strings.Repeat("-", 12) + "\n")
	for _, run := range r.Runs {
		fmt.Fprintf(&b, "  %d: %d bits\n", run.Bit, run.Length)
	}

	b.WriteString("\nPOSSIBLE MESSAGE STRUCTURE:\n")
	b.WriteString(strings.Repeat("-", 25) + "\n")
	for _, d := range r.Delimiters {
		fmt.Fprintf(&b, "  %s (%s): positions %s\n", d.Pattern, d.Description, intList(d.Positions))
	}

	b.WriteString("\nMOST LIKELY INTERPRETATION:\n")
	b.WriteString(strings.Repeat("-", 26) + "\n")
	for _, h := range r.Hints {
		fmt.Fprintf(&b, "  • %s\n", h)
	}
	return b.String()
}

func listOrNone(s []string) string {
	if len(s) == 0 {
		return NoneDetected
	}
	return strings.Join(s, ", ")
}

func intList(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
