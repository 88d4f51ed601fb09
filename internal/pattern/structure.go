package pattern

import "strings"

// runLengths splits bs into maximal runs of equal bits.
func runLengths(bs string) []Run {
	if bs == "" {
		return nil
	}
	var runs []Run
	cur, n := bs[0], 1
	for i := 1; i < len(bs); i++ {
		if bs[i] == cur {
			n++
			continue
		}
		runs = append(runs, Run{Bit: cur - '0', Length: n})
		cur, n = bs[i], 1
	}
	return append(runs, Run{Bit: cur - '0', Length: n})
}

var delimiterPatterns = []struct{ bits, desc string }{
	{"1010", "Alt pattern"},
	{"0101", "Alt pattern"},
	{"1111", "Sync/start"},
	{"0000", "Null/end"},
	{"11110000", "Byte sync"},
	{"10101010", "Clock sync"},
}

// delimiters finds every overlapping occurrence of the candidate delimiters.
func delimiters(bs string) []Delimiter {
	var out []Delimiter
	for _, d := range delimiterPatterns {
		var pos []int
		for start := 0; ; {
			i := strings.Index(bs[start:], d.bits)
			if i < 0 {
				break
			}
			pos = append(pos, start+i)
			start += i + 1
		}
		if len(pos) == 0 {
			continue
		}
		out = append(out, Delimiter{
			Pattern:     d.bits,
			Description: d.desc,
			Count:       len(pos),
			Positions:   pos[max(len(pos)-5, 0):],
		})
	}
	return out
}

// hints derives the interpretation suggestions shown under the report.
func hints(bs string, onesRatio float64, runs []Run) []string {
	var out []string
	switch {
	case onesRatio < 0.3:
		out = append(out, "Low 1s ratio suggests structured data")
	case onesRatio > 0.7:
		out = append(out, "High 1s ratio suggests sync/fill pattern")
	default:
		out = append(out, "Balanced bit ratio suggests data content")
	}

	if strings.Contains(bs, "10101010") || strings.Contains(bs, "01010101") {
		out = append(out, "Contains alternating patterns (likely sync)")
	}

	distinct := make(map[Run]struct{}, len(runs))
	for _, r := range runs {
		distinct[r] = struct{}{}
	}
	if len(distinct) < 5 {
		out = append(out, "Limited run lengths suggest digital encoding")
	}

	var ascii int
	for i := 0; i+8 <= len(bs); i += 8 {
		var v int
		for _, c := range bs[i : i+8] {
			v = v<<1 | int(c-'0')
		}
		if v >= 32 && v <= 126 {
			ascii++
		}
	}
	if ascii > len(bs)/16 {
		out = append(out, "High ASCII validity - possible text data")
	}
	return out
}
