package pattern

import (
	"fmt"
	"strings"
)

// repeatLengths are the substring lengths scanned for repetition.
var repeatLengths = []int{4, 8, 16}

// NoPatterns is reported when no substring repeats often enough.
const NoPatterns = "No clear patterns"

// repeats returns up to five substrings that occur more than twice
// (non-overlapping count), formatted "<pattern>(<n>x)". Each pattern is
// listed once, in order of first appearance.
func repeats(bs string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, length := range repeatLengths {
		for i := 0; i < len(bs)-length; i++ {
			p := bs[i : i+length]
			if seen[p] {
				continue
			}
			seen[p] = true
			if n := strings.Count(bs, p); n > 2 {
				out = append(out, fmt.Sprintf("%s(%dx)", p, n))
				if len(out) == 5 {
					return out
				}
			}
		}
	}
	if len(out) == 0 {
		return []string{NoPatterns}
	}
	return out
}
