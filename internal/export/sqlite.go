package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// ErrUnknownSession is returned for a session ID the database has no row for.
var ErrUnknownSession = errors.New("export: unknown session")

// SQLite appends finished sessions to an SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema
// exists.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("export: sqlite: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("export: sqlite: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("export: sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("export: sqlite: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    url TEXT,
    started_at INTEGER,
    ended_at INTEGER,
    bytes_received INTEGER,
    bit_count INTEGER,
    frequency_count INTEGER,
    bits TEXT
);
CREATE TABLE IF NOT EXISTS bits (
    session_id TEXT NOT NULL,
    bit_number INTEGER NOT NULL,
    binary_state INTEGER NOT NULL,
    frequency REAL,
    timestamp_ns INTEGER,
    session_time REAL,
    PRIMARY KEY (session_id, bit_number)
);
CREATE TABLE IF NOT EXISTS frequencies (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    frequency REAL,
    magnitude REAL,
    audio_level REAL,
    timestamp_ns INTEGER,
    session_time REAL
);
CREATE INDEX IF NOT EXISTS frequencies_session ON frequencies(session_id);`
	_, err := db.Exec(schema)
	return err
}

// WriteSession stores d in one transaction. Writing the same session ID
// again replaces its rows.
func (s *SQLite) WriteSession(ctx context.Context, d Data) (err error) {
	if d.SessionID == "" {
		return errors.New("export: sqlite: session id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, q := range []string{
		`DELETE FROM bits WHERE session_id = ?`,
		`DELETE FROM frequencies WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, q, d.SessionID); err != nil {
			return fmt.Errorf("export: sqlite: clear: %w", err)
		}
	}

	var bits []byte
	for _, b := range d.Bits {
		bits = append(bits, '0'+b.Bit)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (id, url, started_at, ended_at, bytes_received, bit_count, frequency_count, bits)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.URL, d.Start.UTC().Unix(), d.End.UTC().Unix(),
		int64(d.BytesReceived), len(d.Bits), len(d.Frequencies), string(bits),
	)
	if err != nil {
		return fmt.Errorf("export: sqlite: insert session: %w", err)
	}

	bitStmt, err := tx.PrepareContext(ctx, `
INSERT INTO bits (session_id, bit_number, binary_state, frequency, timestamp_ns, session_time)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("export: sqlite: prepare bits: %w", err)
	}
	defer bitStmt.Close()
	for _, b := range d.Bits {
		_, err = bitStmt.ExecContext(ctx, d.SessionID, int64(b.Seq), int(b.Bit), b.Frequency,
			b.Timestamp.UnixNano(), b.SessionTime.Seconds())
		if err != nil {
			return fmt.Errorf("export: sqlite: insert bit %d: %w", b.Seq, err)
		}
	}

	freqStmt, err := tx.PrepareContext(ctx, `
INSERT INTO frequencies (session_id, frequency, magnitude, audio_level, timestamp_ns, session_time)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("export: sqlite: prepare frequencies: %w", err)
	}
	defer freqStmt.Close()
	for _, f := range d.Frequencies {
		_, err = freqStmt.ExecContext(ctx, d.SessionID, f.Frequency, f.Magnitude, f.AudioLevel,
			f.Timestamp.UnixNano(), f.SessionTime.Seconds())
		if err != nil {
			return fmt.Errorf("export: sqlite: insert frequency: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("export: sqlite: commit: %w", err)
	}
	return nil
}

// SessionBits returns the stored bit sequence of a session as a 0/1 string.
func (s *SQLite) SessionBits(ctx context.Context, id string) (string, error) {
	var bits string
	err := s.db.QueryRowContext(ctx, `SELECT bits FROM sessions WHERE id = ?`, id).Scan(&bits)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrUnknownSession
	}
	if err != nil {
		return "", fmt.Errorf("export: sqlite: session %s: %w", id, err)
	}
	return bits, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
