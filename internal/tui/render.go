package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MrWong99/buzzer/internal/app"
	"github.com/MrWong99/buzzer/internal/bitstream"
	"github.com/MrWong99/buzzer/internal/session"
)

// statusLine renders the one-line session header.
func statusLine(info app.SessionInfo, snap *session.Snapshot, now time.Time) string {
	if info.SessionID == "" {
		return "idle: press s to start a session"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", info.Status, info.URL)
	if snap == nil {
		return b.String()
	}
	m := snap.Metrics
	fmt.Fprintf(&b, "  up %s  rx %s (%.1f KB/s)  bits %s  pass %s",
		m.Elapsed.Truncate(time.Second),
		humanize.Bytes(m.BytesReceived),
		m.KBps,
		humanize.Comma(int64(m.BitsDecoded)),
		snap.LastStatus,
	)
	if !info.EndedAt.IsZero() {
		fmt.Fprintf(&b, "  ended %s", humanize.RelTime(info.EndedAt, now, "ago", "from now"))
	}
	return b.String()
}

// toneLines renders the current peak, tone state and recent transitions.
func toneLines(snap *session.Snapshot, history int) string {
	if snap == nil {
		return ""
	}
	var b strings.Builder
	if snap.Peak != nil {
		strong := ""
		if snap.Peak.Strong {
			strong = "  STRONG"
		}
		fmt.Fprintf(&b, "Peak:  %s  mag %.1f%s\n", snap.Description, snap.Peak.Magnitude, strong)
	} else {
		b.WriteString("Peak:  -\n")
	}
	if snap.Tone != nil {
		fmt.Fprintf(&b, "State: %s since %s\n", snap.Tone.Label, snap.Tone.Since.Format("15:04:05"))
	} else {
		b.WriteString("State: -\n")
	}
	fmt.Fprintf(&b, "Changes: %s\n\n", humanize.Comma(int64(snap.ToneChanges)))

	events := snap.History[max(len(snap.History)-history, 0):]
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		fmt.Fprintf(&b, "%s  %-18s %6.2fs\n", ev.At.Format("15:04:05"), ev.Label, ev.Duration.Seconds())
	}
	return b.String()
}

// bitLines renders bits in rows of width, grouped by 8.
func bitLines(recs []bitstream.Record, width int) string {
	if width < 8 {
		width = 8
	}
	width -= width % 8
	bs := bitstream.String(bitstream.BitsOf(recs))

	var b strings.Builder
	for len(bs) > 0 {
		row := bs[:min(width, len(bs))]
		bs = bs[len(row):]
		for i := 0; i < len(row); i += 8 {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(row[i:min(i+8, len(row))])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// bitsPerRow is how many bits fit a view of the given inner width when
// every group of 8 takes 9 columns.
func bitsPerRow(cols int) int {
	return max((cols+1)/9, 1) * 8
}
