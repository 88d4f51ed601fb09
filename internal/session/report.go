package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/buzzer/internal/observe"
	"github.com/MrWong99/buzzer/internal/pattern"
)

// Report runs the pattern decoder over the bits in the display buffer. The
// bit log's session times feed the Monolit timing estimate.
func (s *State) Report(ctx context.Context) *pattern.Report {
	s.mu.RLock()
	bits := s.bits.Bits()
	log := s.bits.Log()
	s.mu.RUnlock()

	_, span := observe.StartSpan(ctx, "pattern.analyze")
	defer span.End()
	span.SetAttributes(attribute.Int("bits", len(bits)))

	times := make([]time.Duration, len(log))
	for i, r := range log {
		times[i] = r.SessionTime
	}
	return pattern.Analyze(bits, pattern.WithSessionTimes(times))
}
