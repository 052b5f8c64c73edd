package store

import (
	"database/sql"
	"log"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// StepResult is one step of a rolling prediction run: the interval issued at
// that step, the realized outcome once known, and the effective level in force.
type StepResult struct {
	RunID          string
	Step           int
	Point          float64
	Lower          float64
	Upper          float64
	Realized       float64
	EffectiveAlpha float64
}

type ResultStore interface {
	WriteStep(res StepResult) error
	BatchWriteSteps(results []StepResult) error
	LoadRun(runID string) ([]StepResult, error)
	Runs() ([]string, error)
	Close()
	Truncate() error
}

type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	query := `
	CREATE TABLE IF NOT EXISTS run_steps (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		point REAL,
		lower REAL,
		upper REAL,
		realized REAL,
		effective_alpha REAL,
		created_at INTEGER,
		PRIMARY KEY (run_id, step)
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
	`)
	if err != nil {
		log.Printf("[Store] Warning: failed to set PRAGMA: %v", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) WriteStep(res StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO run_steps (run_id, step, point, lower, upper, realized, effective_alpha, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		res.RunID, res.Step, res.Point, res.Lower, res.Upper, res.Realized, res.EffectiveAlpha, time.Now().Unix(),
	)
	return err
}

func (s *SQLiteStore) BatchWriteSteps(results []StepResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO run_steps (run_id, step, point, lower, upper, realized, effective_alpha, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, res := range results {
		if _, err := stmt.Exec(res.RunID, res.Step, res.Point, res.Lower, res.Upper, res.Realized, res.EffectiveAlpha, now); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadRun(runID string) ([]StepResult, error) {
	rows, err := s.db.Query(
		"SELECT run_id, step, point, lower, upper, realized, effective_alpha FROM run_steps WHERE run_id = ? ORDER BY step ASC",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []StepResult
	for rows.Next() {
		var r StepResult
		if err := rows.Scan(&r.RunID, &r.Step, &r.Point, &r.Lower, &r.Upper, &r.Realized, &r.EffectiveAlpha); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) Runs() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT run_id FROM run_steps ORDER BY run_id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RunSummary aggregates realized coverage and mean width for a stored run.
func (s *SQLiteStore) RunSummary(runID string) (coverage, meanWidth float64, err error) {
	row := s.db.QueryRow(`
		SELECT AVG(CASE WHEN realized >= lower AND realized <= upper THEN 1.0 ELSE 0.0 END),
		       AVG(upper - lower)
		FROM run_steps WHERE run_id = ?`, runID)
	err = row.Scan(&coverage, &meanWidth)
	return
}

func (s *SQLiteStore) Truncate() error {
	_, err := s.db.Exec("DELETE FROM run_steps")
	return err
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

// sanitizeRunID keeps run identifiers filesystem- and log-friendly.
func SanitizeRunID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
