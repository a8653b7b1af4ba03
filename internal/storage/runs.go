package storage

import (
	"database/sql"
	"errors"
	"time"
)

// SaveRun records a finished pipeline request.
func (s *Store) SaveRun(r Run) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO generation_runs (id, topic, module_id, status, attempts, last_origin, last_error, video_path, from_cache, source, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Topic, r.ModuleID, r.Status, r.Attempts, r.LastOrigin, r.LastError,
		r.VideoPath, r.FromCache, r.Source, r.DurationMs, formatTime(createdAt),
	)
	return err
}

const runColumns = `id, topic, module_id, status, attempts, last_origin, last_error, video_path, from_cache, source, duration_ms, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var createdAt string
	if err := row.Scan(&r.ID, &r.Topic, &r.ModuleID, &r.Status, &r.Attempts, &r.LastOrigin,
		&r.LastError, &r.VideoPath, &r.FromCache, &r.Source, &r.DurationMs, &createdAt); err != nil {
		return Run{}, err
	}
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return Run{}, err
	}
	r.CreatedAt = t
	return r, nil
}

func (s *Store) GetRun(id string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM generation_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM generation_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RunsForTopic returns every run for topic, newest first.
func (s *Store) RunsForTopic(topic string) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM generation_runs WHERE topic = ? ORDER BY created_at DESC, rowid DESC`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
