// Package export writes the logs of a decoding session to disk: CSV files for
// the bit and frequency logs, a grouped plain-text rendering of the bit
// sequence, a JSON array for the waterfall log, a human-readable summary, and
// optionally an SQLite database.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/MrWong99/buzzer/internal/bitstream"
	"github.com/MrWong99/buzzer/internal/session"
)

// ErrNoData is returned when there is nothing to export.
var ErrNoData = errors.New("export: no data")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Column layouts of the CSV exports.
var (
	BitColumns       = []string{"timestamp", "session_time", "binary_state", "frequency", "bit_number"}
	FrequencyColumns = []string{"timestamp", "session_time", "frequency", "magnitude", "audio_level"}
)

// Data is everything a session export contains.
type Data struct {
	SessionID     string
	URL           string
	Start         time.Time
	End           time.Time
	BytesReceived uint64
	Bits          []bitstream.Record
	Frequencies   []session.FrequencyRecord
	Waterfall     []session.WaterfallRecord
}

// Empty reports whether none of the logs hold entries.
func (d Data) Empty() bool {
	return len(d.Bits) == 0 && len(d.Frequencies) == 0 && len(d.Waterfall) == 0
}

// FromState copies the logs of st as of now.
func FromState(st *session.State, id, url string, now time.Time) Data {
	m := st.Metrics(now)
	return Data{
		SessionID:     id,
		URL:           url,
		Start:         m.Start,
		End:           now,
		BytesReceived: m.BytesReceived,
		Bits:          st.BitLog(),
		Frequencies:   st.FrequencyLog(),
		Waterfall:     st.WaterfallLog(),
	}
}

func unixSeconds(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func float(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteBitCSV writes the bit log as CSV with [BitColumns].
func WriteBitCSV(w io.Writer, bits []bitstream.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(BitColumns); err != nil {
		return fmt.Errorf("export: bit csv: %w", err)
	}
	for _, b := range bits {
		row := []string{
			unixSeconds(b.Timestamp),
			seconds(b.SessionTime),
			strconv.Itoa(int(b.Bit)),
			float(b.Frequency),
			strconv.FormatUint(b.Seq, 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: bit csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: bit csv: %w", err)
	}
	return nil
}

// WriteFrequencyCSV writes the frequency log as CSV with [FrequencyColumns].
func WriteFrequencyCSV(w io.Writer, freqs []session.FrequencyRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FrequencyColumns); err != nil {
		return fmt.Errorf("export: frequency csv: %w", err)
	}
	for _, f := range freqs {
		row := []string{
			unixSeconds(f.Timestamp),
			seconds(f.SessionTime),
			float(f.Frequency),
			float(f.Magnitude),
			float(f.AudioLevel),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: frequency csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: frequency csv: %w", err)
	}
	return nil
}

// WriteBinaryText renders the bit sequence 64 bits per line, grouped by 8,
// each line prefixed with its byte offset.
func WriteBinaryText(w io.Writer, bits []bitstream.Record, start time.Time) error {
	seq := bitstream.String(bitstream.BitsOf(bits))
	var duration time.Duration
	if len(bits) > 0 {
		duration = bits[len(bits)-1].SessionTime
	}

	var b strings.Builder
	b.WriteString("UVB-76 Binary Sequence\n")
	fmt.Fprintf(&b, "Session: %s\n", start.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "Total bits: %d\n", len(seq))
	fmt.Fprintf(&b, "Duration: %.1f seconds\n\n", duration.Seconds())
	for i := 0; i < len(seq); i += 64 {
		line := seq[i:min(i+64, len(seq))]
		groups := make([]string, 0, 8)
		for j := 0; j < len(line); j += 8 {
			groups = append(groups, line[j:min(j+8, len(line))])
		}
		fmt.Fprintf(&b, "%04d: %s\n", i/8, strings.Join(groups, " "))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WaterfallEntry is the JSON form of one waterfall log entry.
type WaterfallEntry struct {
	Timestamp   float64   `json:"timestamp"`
	SessionTime float64   `json:"session_time"`
	Frequencies []float64 `json:"frequencies"`
	Magnitudes  []float64 `json:"magnitudes"`
}

// WriteWaterfallJSON writes the waterfall log as an indented JSON array.
func WriteWaterfallJSON(w io.Writer, log []session.WaterfallRecord) error {
	entries := make([]WaterfallEntry, len(log))
	for i, r := range log {
		entries[i] = WaterfallEntry{
			Timestamp:   float64(r.Timestamp.UnixNano()) / 1e9,
			SessionTime: r.SessionTime.Seconds(),
			Frequencies: r.Frequencies,
			Magnitudes:  r.Magnitudes,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("export: waterfall json: %w", err)
	}
	return nil
}

// ReadWaterfallJSON parses a file written by [WriteWaterfallJSON].
func ReadWaterfallJSON(r io.Reader) ([]WaterfallEntry, error) {
	var entries []WaterfallEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("export: waterfall json: %w", err)
	}
	return entries, nil
}

// WriteSummary writes the session summary text as of now.
func WriteSummary(w io.Writer, d Data, now time.Time) error {
	var b strings.Builder
	b.WriteString("UVB-76 Analysis Session Summary\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
	fmt.Fprintf(&b, "Session Start: %s\n", d.Start.Local().Format(time.DateTime))
	fmt.Fprintf(&b, "Duration: %.1f seconds\n", now.Sub(d.Start).Seconds())
	fmt.Fprintf(&b, "Stream URL: %s\n\n", d.URL)

	b.WriteString("Data Collected:\n")
	fmt.Fprintf(&b, "- Binary bits: %d\n", len(d.Bits))
	fmt.Fprintf(&b, "- Frequency measurements: %d\n", len(d.Frequencies))
	fmt.Fprintf(&b, "- Waterfall snapshots: %d\n", len(d.Waterfall))
	fmt.Fprintf(&b, "- Total bytes received: %d\n\n", d.BytesReceived)

	if n := len(d.Bits); n > 0 {
		seq := bitstream.String(bitstream.BitsOf(d.Bits))
		b.WriteString("Binary sequence (first 100 bits):\n")
		b.WriteString(seq[:min(100, n)] + "\n\n")

		ones := strings.Count(seq, "1")
		zeros := strings.Count(seq, "0")
		b.WriteString("Binary Statistics:\n")
		fmt.Fprintf(&b, "- Total bits: %d\n", n)
		fmt.Fprintf(&b, "- Ones: %d (%.1f%%)\n", ones, float64(ones)/float64(n)*100)
		fmt.Fprintf(&b, "- Zeros: %d (%.1f%%)\n", zeros, float64(zeros)/float64(n)*100)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// writeFile creates path and streams content into it.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("export: %w", cerr)
		}
	}()
	return write(f)
}

// BinaryLog writes the bit log to path as CSV and the grouped text rendering
// next to it, replacing a trailing .csv with _binary.txt. It returns the
// written paths.
func BinaryLog(path string, d Data) ([]string, error) {
	if len(d.Bits) == 0 {
		return nil, fmt.Errorf("%w: binary log is empty", ErrNoData)
	}
	if err := writeFile(path, func(w io.Writer) error { return WriteBitCSV(w, d.Bits) }); err != nil {
		return nil, err
	}
	txt := strings.TrimSuffix(path, ".csv") + "_binary.txt"
	if err := writeFile(txt, func(w io.Writer) error { return WriteBinaryText(w, d.Bits, d.Start) }); err != nil {
		return []string{path}, err
	}
	return []string{path, txt}, nil
}

// FrequencyLog writes the frequency log to path as CSV.
func FrequencyLog(path string, d Data) error {
	if len(d.Frequencies) == 0 {
		return fmt.Errorf("%w: frequency log is empty", ErrNoData)
	}
	return writeFile(path, func(w io.Writer) error { return WriteFrequencyCSV(w, d.Frequencies) })
}

// All writes every non-empty log plus a summary into dir. File names are
// <base>_<kind>_<YYYYmmdd_HHMMSS>.<ext> using the session start time. It
// returns the written paths in the order binary, frequency, waterfall,
// summary.
func All(dir, base string, d Data, now time.Time) ([]string, error) {
	if d.Empty() {
		return nil, ErrNoData
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: ensure dir: %w", err)
	}
	if base == "" {
		base = "uvb76"
	}
	stamp := d.Start.Local().Format("20060102_150405")
	name := func(kind, ext string) string {
		return filepath.Join(dir, fmt.Sprintf("%s_%s_%s.%s", base, kind, stamp, ext))
	}

	var written []string
	if len(d.Bits) > 0 {
		p := name("binary", "csv")
		if err := writeFile(p, func(w io.Writer) error { return WriteBitCSV(w, d.Bits) }); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	if len(d.Frequencies) > 0 {
		p := name("frequency", "csv")
		if err := writeFile(p, func(w io.Writer) error { return WriteFrequencyCSV(w, d.Frequencies) }); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	if len(d.Waterfall) > 0 {
		p := name("waterfall", "json")
		if err := writeFile(p, func(w io.Writer) error { return WriteWaterfallJSON(w, d.Waterfall) }); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	p := name("summary", "txt")
	if err := writeFile(p, func(w io.Writer) error { return WriteSummary(w, d, now) }); err != nil {
		return written, err
	}
	return append(written, p), nil
}
