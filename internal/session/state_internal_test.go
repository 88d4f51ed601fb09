package session

import (
	"math"
	"testing"
	"time"

	"github.com/MrWong99/buzzer/pkg/audio"
)

func TestStep_RecoversPanicAndAdvances(t *testing.T) {
	st := NewState(DefaultConfig())
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	st.Reset(now)

	samples := make([]float64, 8192)
	for i := range samples {
		samples[i] = 0.1 * math.Sin(2*math.Pi*5*44100/8192*float64(i)/44100)
	}
	st.feed(audio.EncodeInt16LE(samples))

	// A nil waterfall ring makes the pass panic after the spectrum exists.
	st.waterfall = nil
	if _, err := st.step(now); err == nil {
		t.Fatal("expected the panic to surface as an error")
	}
	if got := st.passErrors.Load(); got != 1 {
		t.Errorf("pass errors: got %d, want 1", got)
	}
	if got := st.fe.Buffered(); got != 8192 {
		t.Errorf("buffer should advance past the failed pass, got %d bytes", got)
	}
	if st.bits.Total() != 0 {
		t.Error("failed pass must not append bits")
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	def := DefaultConfig()
	if cfg.Buffers != def.Buffers {
		t.Errorf("buffers: got %+v, want %+v", cfg.Buffers, def.Buffers)
	}
	if cfg.PopTimeout != time.Second {
		t.Errorf("pop timeout: got %v", cfg.PopTimeout)
	}
	if cfg.Tone.HistorySize != 50 {
		t.Errorf("history size: got %d", cfg.Tone.HistorySize)
	}
}
