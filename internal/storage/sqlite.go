// Package storage provides SQLite-based persistence for run history.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Outcomes stored for a run.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
)

// Store manages the SQLite database connection for run history.
type Store struct {
	db *sql.DB
}

// Run represents one started run.
type Run struct {
	ID         string
	Song       string
	Difficulty string
	Instrument string
	DelayMs    int
	Offsets    []int
	Key        string
	Outcome    string // "running", "completed", "cancelled"
	Fired      int
	StartedAt  time.Time
	FinishedAt time.Time // Zero while running
}

// Fire represents one overdrive press within a run.
type Fire struct {
	RunID    string
	Index    int
	TargetMs int
	ActualMs int64
	Cue      bool // whether the audio cue played
}

// Drift returns actual minus target in ms.
func (f Fire) Drift() int64 {
	return f.ActualMs - int64(f.TargetMs)
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	// Create parent directories
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	// Open database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			song TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			instrument TEXT NOT NULL,
			delay_ms INTEGER NOT NULL DEFAULT 0,
			offsets TEXT NOT NULL DEFAULT '',
			press_key TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			fired INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_runs_song ON runs(song);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

		CREATE TABLE IF NOT EXISTS fires (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			target_ms INTEGER NOT NULL,
			actual_ms INTEGER NOT NULL,
			cue INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, idx)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun inserts a run. Outcome defaults to "running".
func (s *Store) SaveRun(r Run) error {
	if r.Outcome == "" {
		r.Outcome = OutcomeRunning
	}
	var finished any
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UnixMilli()
	}

	_, err := s.db.Exec(
		`INSERT INTO runs
		 (id, song, difficulty, instrument, delay_ms, offsets, press_key, outcome, fired, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.Song,
		r.Difficulty,
		r.Instrument,
		r.DelayMs,
		encodeOffsets(r.Offsets),
		r.Key,
		r.Outcome,
		r.Fired,
		r.StartedAt.UnixMilli(),
		finished,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(id, outcome string, fired int, at time.Time) error {
	res, err := s.db.Exec(
		"UPDATE runs SET outcome = ?, fired = ?, finished_at = ? WHERE id = ?",
		outcome, fired, at.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("storage: cannot finish run: unknown run %s", id)
	}
	return nil
}

// SaveFire records one overdrive press.
func (s *Store) SaveFire(f Fire) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO fires (run_id, idx, target_ms, actual_ms, cue) VALUES (?, ?, ?, ?, ?)",
		f.RunID, f.Index, f.TargetMs, f.ActualMs, boolToInt(f.Cue),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save fire: %w", err)
	}
	return nil
}

// RunByID retrieves a run. Returns nil if it does not exist.
func (s *Store) RunByID(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, song, difficulty, instrument, delay_ms, offsets, press_key, outcome, fired, started_at, finished_at
		 FROM runs WHERE id = ?`,
		id,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query run: %w", err)
	}
	return r, nil
}

// RecentRuns retrieves the most recent runs, newest first.
// An empty song matches every song.
func (s *Store) RecentRuns(song string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, song, difficulty, instrument, delay_ms, offsets, press_key, outcome, fired, started_at, finished_at
		 FROM runs
		 WHERE ? = '' OR song = ?
		 ORDER BY started_at DESC
		 LIMIT ?`,
		song, song, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		runs = append(runs, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return runs, nil
}

// RunFires retrieves the presses of a run in index order.
func (s *Store) RunFires(runID string) ([]Fire, error) {
	rows, err := s.db.Query(
		`SELECT run_id, idx, target_ms, actual_ms, cue
		 FROM fires
		 WHERE run_id = ?
		 ORDER BY idx`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query fires: %w", err)
	}
	defer rows.Close()

	var fires []Fire
	for rows.Next() {
		var f Fire
		var played int
		if err := rows.Scan(&f.RunID, &f.Index, &f.TargetMs, &f.ActualMs, &played); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		f.Cue = played != 0
		fires = append(fires, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return fires, nil
}

// ClearHistory deletes every run and fire.
func (s *Store) ClearHistory() error {
	if _, err := s.db.Exec("DELETE FROM fires; DELETE FROM runs;"); err != nil {
		return fmt.Errorf("storage: cannot clear history: %w", err)
	}
	return nil
}

// DriftStats contains aggregated timing error, in ms, of recorded fires.
type DriftStats struct {
	Song      string
	Runs      int
	Fires     int
	MeanDrift float64
	MaxDrift  int64 // largest absolute drift
	LastRun   time.Time
}

// GetDriftStats aggregates drift over all fires of a song.
// An empty song aggregates everything.
func (s *Store) GetDriftStats(song string) (*DriftStats, error) {
	stats := &DriftStats{Song: song}

	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(AVG(f.actual_ms - f.target_ms), 0),
		        COALESCE(MAX(ABS(f.actual_ms - f.target_ms)), 0)
		 FROM fires f JOIN runs r ON r.id = f.run_id
		 WHERE ? = '' OR r.song = ?`,
		song, song,
	).Scan(&stats.Fires, &stats.MeanDrift, &stats.MaxDrift)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get drift stats: %w", err)
	}

	var last sql.NullInt64
	err = s.db.QueryRow(
		`SELECT COUNT(*), MAX(started_at) FROM runs WHERE ? = '' OR song = ?`,
		song, song,
	).Scan(&stats.Runs, &last)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get last run: %w", err)
	}
	if last.Valid {
		stats.LastRun = time.UnixMilli(last.Int64)
	}

	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var offsets string
	var started int64
	var finished sql.NullInt64

	if err := sc.Scan(
		&r.ID,
		&r.Song,
		&r.Difficulty,
		&r.Instrument,
		&r.DelayMs,
		&offsets,
		&r.Key,
		&r.Outcome,
		&r.Fired,
		&started,
		&finished,
	); err != nil {
		return nil, err
	}

	r.Offsets = decodeOffsets(offsets)
	r.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64)
	}
	return &r, nil
}

// encodeOffsets stores offsets as a comma-separated list.
func encodeOffsets(offsets []int) string {
	parts := make([]string, len(offsets))
	for i, o := range offsets {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}

func decodeOffsets(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if v, err := strconv.Atoi(p); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
