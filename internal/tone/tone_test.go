package tone_test

import (
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/MrWong99/buzzer/internal/tone"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	cfg := tone.DefaultConfig()
	tests := []struct {
		freq      float64
		wantClass tone.Class
		wantBit   bool
		bit       uint8
		wantLabel string
	}{
		{21.53, tone.ClassDataZero, true, 0, "FSK-1 (21.53Hz)"},
		{26.92, tone.ClassDataOne, true, 1, "FSK-2 (26.92Hz)"},
		{32.30, tone.ClassCarrier, false, 0, "FSK-3 (32.30Hz)"},
		// Misses the tight band by 0.03 Hz but still takes tone 0's label.
		{21.0, tone.ClassUnknownInBand, false, 0, "FSK-1 (21.53Hz)"},
		{24.2, tone.ClassUnknownInBand, false, 0, "Unknown (24.20Hz)"},
		{35.0, tone.ClassUnknownInBand, false, 0, "Unknown (35.00Hz)"},
		{40.0, tone.ClassOutOfBand, false, 0, "Out of band (40.00Hz)"},
	}
	for _, tc := range tests {
		cls := cfg.Classify(tc.freq)
		if cls != tc.wantClass {
			t.Errorf("Classify(%v): got %v, want %v", tc.freq, cls, tc.wantClass)
		}
		bit, ok := cls.Bit()
		if ok != tc.wantBit || bit != tc.bit {
			t.Errorf("Bit(%v): got (%d,%v), want (%d,%v)", tc.freq, bit, ok, tc.bit, tc.wantBit)
		}
		if got := cfg.Label(tc.freq); got != tc.wantLabel {
			t.Errorf("Label(%v): got %q, want %q", tc.freq, got, tc.wantLabel)
		}
	}
}

func TestDescribe(t *testing.T) {
	cfg := tone.DefaultConfig()
	tests := map[float64]string{
		21.53: "21.5 Hz (FSK-1: Binary 0)",
		27.5:  "27.5 Hz (FSK-2: Binary 1)",
		32.30: "32.3 Hz (FSK-3: Carrier/Buzzer)",
		24.0:  "24.0 Hz (Unknown UVB tone)",
		50.0:  "50.0 Hz (Non-UVB)",
	}
	for f, want := range tests {
		if got := cfg.Describe(f); got != want {
			t.Errorf("Describe(%v): got %q, want %q", f, got, want)
		}
	}
}

func TestClassifier_TransitionDuration(t *testing.T) {
	c := tone.NewClassifier(tone.DefaultConfig())
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d := c.Observe(21.53, 30, t0)
	if d.Event == nil {
		t.Fatal("first observation must record an event")
	}
	if d.Event.Duration != 0 {
		t.Errorf("first event duration: got %v, want 0", d.Event.Duration)
	}

	// Same label: no event.
	if d := c.Observe(21.50, 31, t0.Add(time.Second)); d.Event != nil {
		t.Errorf("unexpected event for unchanged label: %+v", d.Event)
	}

	d = c.Observe(26.92, 28, t0.Add(3*time.Second))
	if d.Event == nil {
		t.Fatal("label change must record an event")
	}
	// The FSK-1 state began at t0 and ended at t0+3s.
	if d.Event.Duration != 3*time.Second {
		t.Errorf("duration: got %v, want 3s", d.Event.Duration)
	}
	if d.Event.Previous != "FSK-1 (21.53Hz)" || d.Event.Label != "FSK-2 (26.92Hz)" {
		t.Errorf("labels: got %q -> %q", d.Event.Previous, d.Event.Label)
	}

	d = c.Observe(21.53, 28, t0.Add(3500*time.Millisecond))
	if d.Event == nil || d.Event.Duration != 500*time.Millisecond {
		t.Fatalf("second transition: got %+v, want 500ms", d.Event)
	}

	hist := c.History()
	if len(hist) != 3 {
		t.Fatalf("history length: got %d, want 3", len(hist))
	}
	if c.Changes() != 3 {
		t.Errorf("changes: got %d, want 3", c.Changes())
	}
	st, ok := c.State()
	if !ok || st.Class != tone.ClassDataZero || !st.Since.Equal(t0.Add(3500*time.Millisecond)) {
		t.Errorf("state: got %+v", st)
	}
}

func TestClassifier_HistoryBounded(t *testing.T) {
	cfg := tone.DefaultConfig()
	cfg.HistorySize = 4
	c := tone.NewClassifier(cfg)
	t0 := time.Now()
	for i := range 10 {
		f := 21.53
		if i%2 == 1 {
			f = 26.92
		}
		c.Observe(f, 20, t0.Add(time.Duration(i)*time.Second))
	}
	if got := len(c.History()); got != 4 {
		t.Errorf("history length: got %d, want 4", got)
	}
	if c.Changes() != 10 {
		t.Errorf("changes: got %d, want 10", c.Changes())
	}
	counts := c.Counts()
	if counts[tone.ClassDataZero] != 2 || counts[tone.ClassDataOne] != 2 {
		t.Errorf("counts: got %v", counts)
	}
}

func TestClassifier_Reset(t *testing.T) {
	c := tone.NewClassifier(tone.DefaultConfig())
	c.Observe(21.53, 20, time.Now())
	c.Reset()
	if _, ok := c.State(); ok {
		t.Error("state should be empty after reset")
	}
	if len(c.History()) != 0 || c.Changes() != 0 {
		t.Error("history should be empty after reset")
	}
	if d := c.Observe(21.53, 20, time.Now()); d.Event == nil || d.Event.Duration != 0 {
		t.Errorf("first event after reset: got %+v", d.Event)
	}
}

func TestEvent_JSON(t *testing.T) {
	c := tone.NewClassifier(tone.DefaultConfig())
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := c.Observe(26.92, 30, t0).Event
	second := c.Observe(32.30, 25, t0.Add(2*time.Second)).Event

	raw, err := jsoniter.Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "previous") {
		t.Errorf("first event carries a previous state: %s", raw)
	}

	raw, err = jsoniter.Marshal(second)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"previous_class":"data_one"`) || !strings.Contains(string(raw), `"class":"carrier"`) {
		t.Errorf("encoded: %s", raw)
	}
	var got tone.Event
	if err := jsoniter.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Class != tone.ClassCarrier || got.PreviousClass == nil || *got.PreviousClass != tone.ClassDataOne {
		t.Errorf("decoded: %+v", got)
	}
	if got.Duration != 2*time.Second || got.Previous != "FSK-2 (26.92Hz)" {
		t.Errorf("decoded: %+v", got)
	}
}

func TestClass_UnmarshalText(t *testing.T) {
	for cls := tone.ClassDataZero; cls <= tone.ClassOutOfBand; cls++ {
		var got tone.Class
		if err := got.UnmarshalText([]byte(cls.String())); err != nil || got != cls {
			t.Errorf("%s: got %v, %v", cls, got, err)
		}
	}
	var c tone.Class
	if err := c.UnmarshalText([]byte("invalid")); err == nil {
		t.Error("expected an error for an unknown name")
	}
}
