package bitstream_test

import (
	"testing"
	"time"

	"github.com/MrWong99/buzzer/internal/bitstream"
)

var start = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestAccumulator_DisplayAndLog(t *testing.T) {
	acc := bitstream.New(500, true)
	acc.Reset(start)
	for i := range 600 {
		acc.Append(uint8(i%2), 21.53, start.Add(time.Duration(i)*time.Second))
	}

	if got := acc.Len(); got != 500 {
		t.Errorf("display: got %d, want 500", got)
	}
	if got := acc.LogLen(); got != 600 {
		t.Errorf("log: got %d, want 600", got)
	}
	if got := acc.Total(); got != 600 {
		t.Errorf("total: got %d, want 600", got)
	}

	recs := acc.Records()
	if recs[0].Seq != 101 || recs[len(recs)-1].Seq != 600 {
		t.Errorf("display holds seq %d..%d, want 101..600", recs[0].Seq, recs[len(recs)-1].Seq)
	}
	log := acc.Log()
	for i, r := range log {
		if r.Seq != uint64(i+1) {
			t.Fatalf("log[%d].Seq: got %d", i, r.Seq)
		}
	}
	if log[599].SessionTime != 599*time.Second {
		t.Errorf("session time: got %v", log[599].SessionTime)
	}
}

func TestAccumulator_LoggingDisabled(t *testing.T) {
	acc := bitstream.New(10, false)
	acc.Reset(start)
	acc.Append(1, 26.92, start)
	acc.Append(0, 21.53, start)
	if acc.LogLen() != 0 {
		t.Errorf("log should stay empty, got %d", acc.LogLen())
	}
	if got := bitstream.String(acc.Bits()); got != "10" {
		t.Errorf("bits: got %q, want 10", got)
	}

	acc.SetLogging(true)
	rec := acc.Append(1, 26.92, start)
	if rec.Seq != 3 {
		t.Errorf("seq keeps counting while logging is off: got %d, want 3", rec.Seq)
	}
	if acc.LogLen() != 1 {
		t.Errorf("log: got %d, want 1", acc.LogLen())
	}
}

func TestAccumulator_SessionTimeMonotonic(t *testing.T) {
	acc := bitstream.New(10, true)
	acc.Reset(start)
	a := acc.Append(0, 21.53, start.Add(2*time.Second))
	b := acc.Append(1, 26.92, start.Add(time.Second))
	c := acc.Append(1, 26.92, start.Add(-time.Second))
	if a.SessionTime != 2*time.Second || b.SessionTime != 2*time.Second || c.SessionTime != 2*time.Second {
		t.Errorf("got %v %v %v, want all 2s", a.SessionTime, b.SessionTime, c.SessionTime)
	}
}

func TestAccumulator_Reset(t *testing.T) {
	acc := bitstream.New(10, true)
	acc.Reset(start)
	acc.Append(1, 26.92, start)
	later := start.Add(time.Hour)
	acc.Reset(later)
	if acc.Len() != 0 || acc.LogLen() != 0 || acc.Total() != 0 {
		t.Error("reset should clear everything")
	}
	if !acc.Start().Equal(later) {
		t.Errorf("start: got %v", acc.Start())
	}
	if rec := acc.Append(0, 21.53, later); rec.Seq != 1 || rec.SessionTime != 0 {
		t.Errorf("first record after reset: %+v", rec)
	}
}

func TestParseAndString(t *testing.T) {
	bits := bitstream.Parse("0100 0001x")
	if got := bitstream.String(bits); got != "01000001" {
		t.Errorf("got %q", got)
	}
}
