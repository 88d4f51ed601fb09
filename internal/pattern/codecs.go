package pattern

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Codec names as they appear in [Report.Decodings].
const (
	CodecASCII      = "ascii_8bit"
	CodecNibbles    = "nibbles_4bit"
	CodecBytes      = "bytes_decimal"
	CodecHex        = "hex_bytes"
	CodecBaudot     = "baudot_5bit"
	CodecBCD        = "bcd_decimal"
	CodecSync       = "sync_patterns"
	CodecStatistics = "statistics"
)

// Failure markers.
const (
	DecodeFailed   = "Decode failed"
	AnalysisFailed = "Analysis failed"
	CalcFailed     = "Calc failed"
)

type codec struct {
	name   string
	label  string
	marker string
	decode func(bs string) (string, error)
}

var codecs = []codec{
	{CodecASCII, "ASCII (8-bit)", DecodeFailed, decodeASCII},
	{CodecNibbles, "4-bit nibbles", DecodeFailed, decodeNibbles},
	{CodecBytes, "Decimal bytes", DecodeFailed, decodeBytes},
	{CodecHex, "Hex bytes", DecodeFailed, decodeHex},
	{CodecBaudot, "Baudot (5-bit)", DecodeFailed, decodeBaudot},
	{CodecBCD, "BCD decimal", DecodeFailed, decodeBCD},
	{CodecSync, "Sync patterns", AnalysisFailed, decodeSync},
	{CodecStatistics, "Statistics", CalcFailed, func(bs string) (string, error) { return statistics(bs), nil }},
}

// runCodecs applies every codec to bs. A codec that errors or panics
// contributes its failure marker; the others are unaffected.
func runCodecs(bs string, cs []codec) []Decoding {
	out := make([]Decoding, 0, len(cs))
	for _, c := range cs {
		out = append(out, runCodec(bs, c))
	}
	return out
}

func runCodec(bs string, c codec) (d Decoding) {
	d = Decoding{Name: c.name, Label: c.label}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("pattern: codec panicked", "codec", c.name, "panic", r)
			d.Value, d.Failed = c.marker, true
		}
	}()
	v, err := c.decode(bs)
	if err != nil {
		slog.Debug("pattern: codec failed", "codec", c.name, "err", err)
		d.Value, d.Failed = c.marker, true
		return d
	}
	d.Value = v
	return d
}

// groups returns the complete width-bit groups of bs parsed as integers.
// A trailing partial group is dropped.
func groups(bs string, width int) ([]uint64, error) {
	out := make([]uint64, 0, len(bs)/width)
	for i := 0; i+width <= len(bs); i += width {
		v, err := strconv.ParseUint(bs[i:i+width], 2, width)
		if err != nil {
			return nil, fmt.Errorf("group at bit %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func joinFirst(vals []uint64, n int) string {
	parts := make([]string, 0, min(len(vals), n))
	for _, v := range vals[:min(len(vals), n)] {
		parts = append(parts, strconv.FormatUint(v, 10))
	}
	return strings.Join(parts, " ")
}

func printable(v uint64) bool { return v >= 32 && v <= 126 }

func decodeASCII(bs string) (string, error) {
	vals, err := groups(bs, 8)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, v := range vals {
		if printable(v) {
			b.WriteByte(byte(v))
		} else {
			fmt.Fprintf(&b, "[%d]", v)
		}
	}
	return truncate(b.String(), 50), nil
}

func decodeNibbles(bs string) (string, error) {
	vals, err := groups(bs, 4)
	if err != nil {
		return "", err
	}
	return joinFirst(vals, 20), nil
}

func decodeBytes(bs string) (string, error) {
	vals, err := groups(bs, 8)
	if err != nil {
		return "", err
	}
	return joinFirst(vals, 15), nil
}

func decodeHex(bs string) (string, error) {
	vals, err := groups(bs, 8)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, v := range vals {
		fmt.Fprintf(&b, "%02X ", v)
	}
	return truncate(b.String(), 60), nil
}

// baudot maps 5-bit ITA2 letter-shift codes to letters.
var baudot = map[string]byte{
	"11000": 'A', "10011": 'B', "01110": 'C', "10010": 'D', "10000": 'E',
	"10110": 'F', "01011": 'G', "00101": 'H', "01100": 'I', "11010": 'J',
	"11110": 'K', "01001": 'L', "00111": 'M', "00110": 'N', "00011": 'O',
	"01101": 'P', "11101": 'Q', "01010": 'R', "10100": 'S', "00001": 'T',
	"11100": 'U', "01111": 'V', "11001": 'W', "10111": 'X', "10101": 'Y',
	"10001": 'Z',
}

func decodeBaudot(bs string) (string, error) {
	var b strings.Builder
	for i := 0; i+5 <= len(bs); i += 5 {
		if c, ok := baudot[bs[i:i+5]]; ok {
			b.WriteByte(c)
		} else {
			b.WriteByte('?')
		}
	}
	return truncate(b.String(), 30), nil
}

func decodeBCD(bs string) (string, error) {
	vals, err := groups(bs, 4)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, v := range vals {
		if v <= 9 {
			b.WriteByte('0' + byte(v))
		} else {
			b.WriteByte('X')
		}
	}
	return truncate(b.String(), 40), nil
}

// syncPatterns are the byte-aligned fill and sync words counted by the sync
// codec, in reporting order.
var syncPatterns = []struct{ bits, name string }{
	{"10101010", "SYNC_AA"},
	{"01010101", "SYNC_55"},
	{"11110000", "SYNC_F0"},
	{"00001111", "SYNC_0F"},
	{"11111111", "ALL_ONES"},
	{"00000000", "ALL_ZEROS"},
}

// NoneDetected is reported by heuristics that found nothing.
const NoneDetected = "None detected"

func decodeSync(bs string) (string, error) {
	var found []string
	for _, p := range syncPatterns {
		if n := strings.Count(bs, p.bits); n > 0 {
			found = append(found, fmt.Sprintf("%s(%d)", p.name, n))
		}
	}
	if len(found) == 0 {
		return NoneDetected, nil
	}
	return strings.Join(found, ", "), nil
}
