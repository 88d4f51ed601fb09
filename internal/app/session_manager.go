package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/buzzer/internal/bitstream"
	"github.com/MrWong99/buzzer/internal/config"
	"github.com/MrWong99/buzzer/internal/export"
	"github.com/MrWong99/buzzer/internal/observe"
	"github.com/MrWong99/buzzer/internal/pattern"
	"github.com/MrWong99/buzzer/internal/session"
	"github.com/MrWong99/buzzer/internal/source"
	"github.com/MrWong99/buzzer/internal/tone"
)

var (
	// ErrSessionActive is returned by Start while a session is running.
	ErrSessionActive = errors.New("app: a session is already active")

	// ErrNoSession is returned when an operation needs a session and none
	// is running (Stop) or none has run yet (reports, exports).
	ErrNoSession = errors.New("app: no session")

	// ErrNoURL is returned by Start when neither the request nor the config
	// names a stream.
	ErrNoURL = errors.New("app: no stream url given or configured")

	// ErrNoStore is returned by archive lookups when export.sqlite is unset.
	ErrNoStore = errors.New("app: no session store configured")
)

// Status is the lifecycle state of the current or most recent session.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusRunning     Status = "running"
	StatusStopped     Status = "stopped"
	StatusFinished    Status = "finished"
	StatusStreamError Status = "stream_error"
)

// SessionInfo holds metadata about the current or most recent session.
type SessionInfo struct {
	SessionID string    `json:"session_id,omitempty"`
	URL       string    `json:"url,omitempty"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// Error is the stream failure that ended a stream_error session.
	Error string `json:"error,omitempty"`

	// Exported lists the files written when the session ended.
	Exported []string `json:"exported,omitempty"`
}

// Opener opens the stream for a session.
type Opener func(cfg source.Config) (session.Source, error)

func openSource(cfg source.Config) (session.Source, error) {
	return source.Open(cfg)
}

// SessionManager manages the lifecycle of decode sessions.
// Only one session can be active at a time (enforced by mutex).
// All exported methods are safe for concurrent use.
//
// The manager is also the session listener: events are fanned out to
// every listener registered with [SessionManager.AddListener], so
// subscribers outlive individual sessions.
type SessionManager struct {
	mu       sync.Mutex
	cfg      *config.Config
	state    *session.State
	info     SessionInfo
	active   bool
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
	lastErr  error

	lmu       sync.Mutex
	nextID    int
	listeners map[int]session.Listener
	snapshot  atomic.Pointer[session.Listeners]

	// Dependencies injected at construction.
	open    Opener
	metrics *observe.Metrics
	store   *export.SQLite
	now     func() time.Time
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Config *config.Config

	// Open defaults to the source registry.
	Open Opener

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Store, when set, receives every exported session.
	Store *export.SQLite

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		cfg:       cfg.Config,
		info:      SessionInfo{Status: StatusIdle},
		listeners: make(map[int]session.Listener),
		open:      cfg.Open,
		metrics:   cfg.Metrics,
		store:     cfg.Store,
		now:       cfg.Now,
	}
	if sm.cfg == nil {
		sm.cfg = config.Default()
	}
	if sm.open == nil {
		sm.open = openSource
	}
	if sm.metrics == nil {
		sm.metrics = observe.DefaultMetrics()
	}
	if sm.now == nil {
		sm.now = time.Now
	}
	sm.snapshot.Store(&session.Listeners{})
	return sm
}

// Start begins a new decode session on url, or on the configured source
// URL when url is empty. It resets every buffer and counter and returns
// once the source is open; decoding runs in the background until the
// stream ends or [SessionManager.Stop] is called.
//
// Returns [ErrSessionActive] if a session is already active.
func (sm *SessionManager) Start(ctx context.Context, url string) (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return sm.info, fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.SessionID)
	}

	cfg := sm.cfg
	if url == "" {
		url = cfg.Source.URL
	}
	if url == "" {
		return sm.info, ErrNoURL
	}

	src, err := sm.open(sourceConfig(cfg, url))
	if err != nil {
		return sm.info, fmt.Errorf("app: open source: %w", err)
	}

	now := sm.now()
	state := session.NewState(sessionConfig(cfg))
	state.Reset(now)

	sessionID := "session-" + uuid.NewString()
	runCtx, cancel := context.WithCancel(observe.WithSession(context.WithoutCancel(ctx), sessionID))
	done := make(chan struct{})

	sm.active = true
	sm.stopping = false
	sm.state = state
	sm.cancel = cancel
	sm.done = done
	sm.lastErr = nil
	sm.info = SessionInfo{
		SessionID: sessionID,
		URL:       url,
		Status:    StatusRunning,
		StartedAt: now,
	}

	sm.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session started",
		"session_id", sessionID,
		"url", url,
		"chunk_size", cfg.Source.ChunkSize,
		"sample_rate", cfg.Source.SampleRate,
	)

	go sm.run(runCtx, cfg, src, state, done)
	return sm.info, nil
}

// run drives one session to its end, exports it when configured and
// records the outcome.
func (sm *SessionManager) run(ctx context.Context, cfg *config.Config, src session.Source, state *session.State, done chan struct{}) {
	defer close(done)

	err := session.Run(ctx, src, state,
		session.WithMetrics(sm.metrics),
		session.WithListener(sm),
		session.WithClock(sm.now),
	)
	if cerr := src.Close(); cerr != nil {
		slog.Warn("session: source close error", "err", cerr)
	}
	ended := sm.now()

	sm.mu.Lock()
	status := StatusFinished
	if sm.stopping {
		status = StatusStopped
	}
	if err != nil {
		status = StatusStreamError
		sm.info.Error = err.Error()
		sm.lastErr = err
	}
	sm.info.Status = status
	sm.info.EndedAt = ended
	info := sm.info
	sm.mu.Unlock()

	sm.metrics.ActiveSessions.Add(context.Background(), -1)

	var exported []string
	if cfg.Export.OnStop {
		files, xerr := sm.exportState(context.Background(), cfg, state, info, ended)
		switch {
		case errors.Is(xerr, export.ErrNoData):
			slog.Info("session: nothing to export", "session_id", info.SessionID)
		case xerr != nil:
			slog.Warn("session: export error", "session_id", info.SessionID, "err", xerr)
		}
		exported = files
	}

	sm.mu.Lock()
	sm.info.Exported = exported
	sm.active = false
	sm.cancel()
	sm.cancel = nil
	sm.mu.Unlock()

	m := state.Metrics(ended)
	slog.Info("session ended",
		"session_id", info.SessionID,
		"status", status,
		"bytes", m.BytesReceived,
		"bits", m.BitsDecoded,
		"elapsed", m.Elapsed.Round(time.Millisecond),
	)
}

// Stop ends the active session and waits until its goroutines have
// returned and its logs are exported.
//
// Returns [ErrNoSession] if no session is active.
func (sm *SessionManager) Stop(ctx context.Context) (SessionInfo, error) {
	sm.mu.Lock()
	if !sm.active {
		info := sm.info
		sm.mu.Unlock()
		return info, ErrNoSession
	}
	sm.stopping = true
	cancel, done := sm.cancel, sm.done
	sm.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return sm.Info(), fmt.Errorf("app: stop session: %w", ctx.Err())
	}
	return sm.Info(), nil
}

// Wait blocks until the active session ends or ctx is done. It returns
// immediately when no session is active.
func (sm *SessionManager) Wait(ctx context.Context) error {
	sm.mu.Lock()
	done, active := sm.done, sm.active
	sm.mu.Unlock()
	if !active {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the current or most recent session.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	info := sm.info
	info.Exported = append([]string(nil), sm.info.Exported...)
	return info
}

// Received returns the bytes read by the active session. ok is false when
// no session is running.
func (sm *SessionManager) Received() (bytes uint64, ok bool) {
	sm.mu.Lock()
	st, active := sm.state, sm.active
	sm.mu.Unlock()
	if !active || st == nil {
		return 0, false
	}
	return st.Metrics(sm.now()).BytesReceived, true
}

// State returns the state of the current or most recent session.
// Returns [ErrNoSession] before the first session.
func (sm *SessionManager) State() (*session.State, SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state == nil {
		return nil, sm.info, ErrNoSession
	}
	return sm.state, sm.info, nil
}

// Snapshot copies the live state of the current or most recent session.
func (sm *SessionManager) Snapshot() (session.Snapshot, SessionInfo, error) {
	st, info, err := sm.State()
	if err != nil {
		return session.Snapshot{}, info, err
	}
	return st.Snapshot(sm.now()), info, nil
}

// Report runs the pattern decoder over the current bit buffer.
func (sm *SessionManager) Report(ctx context.Context) (*pattern.Report, error) {
	st, _, err := sm.State()
	if err != nil {
		return nil, err
	}
	return st.Report(ctx), nil
}

// ArchivedReport runs the pattern decoder over the bits an earlier session
// recorded in the SQLite store. Unknown IDs yield [export.ErrUnknownSession].
func (sm *SessionManager) ArchivedReport(ctx context.Context, id string) (*pattern.Report, error) {
	if sm.store == nil {
		return nil, ErrNoStore
	}
	bits, err := sm.store.SessionBits(ctx, id)
	if err != nil {
		return nil, err
	}
	return pattern.Analyze(bitstream.Parse(bits)), nil
}

// StatisticsText renders the session statistics.
func (sm *SessionManager) StatisticsText() (string, error) {
	st, _, err := sm.State()
	if err != nil {
		return "", err
	}
	return st.StatisticsText(sm.now()), nil
}

// Export writes every log of the current or most recent session to the
// configured export directory and, when configured, the SQLite store.
func (sm *SessionManager) Export(ctx context.Context) ([]string, error) {
	sm.mu.Lock()
	st, info, cfg := sm.state, sm.info, sm.cfg
	sm.mu.Unlock()
	if st == nil {
		return nil, ErrNoSession
	}
	return sm.exportState(ctx, cfg, st, info, sm.now())
}

func (sm *SessionManager) exportState(ctx context.Context, cfg *config.Config, st *session.State, info SessionInfo, now time.Time) ([]string, error) {
	data := export.FromState(st, info.SessionID, info.URL, now)
	files, err := export.All(cfg.Export.Dir, cfg.Export.Base, data, now)
	if err != nil {
		return files, err
	}
	slog.Info("session exported", "session_id", info.SessionID, "dir", cfg.Export.Dir, "files", len(files))

	if sm.store != nil {
		if err := sm.store.WriteSession(ctx, data); err != nil {
			return files, fmt.Errorf("app: record session: %w", err)
		}
	}
	return files, nil
}

// LastError returns the stream failure that ended the most recent session,
// or nil.
func (sm *SessionManager) LastError() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.lastErr
}

// Config returns the configuration the next session starts with.
func (sm *SessionManager) Config() *config.Config {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.cfg
}

// UpdateConfig replaces the configuration for the next session. Logging
// flags also apply to the running session.
func (sm *SessionManager) UpdateConfig(cfg *config.Config) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active && sm.cfg.Logging != cfg.Logging {
		sm.state.SetLogging(sessionLogging(cfg.Logging))
		slog.Info("session: logging updated", "session_id", sm.info.SessionID, "logging", cfg.Logging)
	}
	sm.cfg = cfg
}

// AddListener registers l for the events of this and every later session.
// The returned function removes it again.
func (sm *SessionManager) AddListener(l session.Listener) (remove func()) {
	sm.lmu.Lock()
	id := sm.nextID
	sm.nextID++
	sm.listeners[id] = l
	sm.publishListeners()
	sm.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sm.lmu.Lock()
			delete(sm.listeners, id)
			sm.publishListeners()
			sm.lmu.Unlock()
		})
	}
}

// publishListeners must be called with lmu held.
func (sm *SessionManager) publishListeners() {
	ls := make(session.Listeners, 0, len(sm.listeners))
	for id := range sm.nextID {
		if l, ok := sm.listeners[id]; ok {
			ls = append(ls, l)
		}
	}
	sm.snapshot.Store(&ls)
}

func (sm *SessionManager) OnBit(rec bitstream.Record) { sm.snapshot.Load().OnBit(rec) }

func (sm *SessionManager) OnTransition(ev tone.Event) { sm.snapshot.Load().OnTransition(ev) }

func (sm *SessionManager) OnPass(out session.Outcome) { sm.snapshot.Load().OnPass(out) }
