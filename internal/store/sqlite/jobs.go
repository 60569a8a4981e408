// Package sqlite implements the scheduler's job store in a SQLite file
// separate from the primary Postgres store, so the external scheduler
// collaborator never contends for locks with pipeline traffic.
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/taskrunner/gateway/internal/store"
)

// JobStore implements store.SchedulerJobStore against a dedicated SQLite
// database file.
type JobStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (if needed) the schema at path and returns a JobStore.
func Open(path string) (*JobStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open scheduler db: %w", err)
	}
	// A single SQLite writer connection avoids SQLITE_BUSY under the
	// scheduler's own polling loop.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_jobs (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			trigger    TEXT NOT NULL,
			message    TEXT NOT NULL,
			next_run   INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init scheduler schema: %w", err)
	}

	return &JobStore{db: db}, nil
}

func (s *JobStore) Close() error { return s.db.Close() }

func (s *JobStore) Create(j *store.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO scheduled_jobs (id, user_id, trigger, message, next_run, created_at) VALUES (?,?,?,?,?,?)`,
		j.ID, j.UserID, j.Trigger, j.Message, j.NextRun.Unix(), j.CreatedAt.Unix(),
	)
	return err
}

func (s *JobStore) Remove(idPrefix string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM scheduled_jobs WHERE id LIKE ?`, idPrefix+"%")
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *JobStore) List(userID string) []*store.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT id, user_id, trigger, message, next_run, created_at FROM scheduled_jobs WHERE user_id=? ORDER BY next_run ASC`,
		userID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStore) GetByPrefix(idPrefix string) (*store.ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT id, user_id, trigger, message, next_run, created_at FROM scheduled_jobs WHERE id LIKE ? LIMIT 1`,
		idPrefix+"%")
	if err != nil {
		return nil, false
	}
	defer rows.Close()
	jobs := scanJobs(rows)
	if len(jobs) == 0 {
		return nil, false
	}
	return jobs[0], true
}

func scanJobs(rows *sql.Rows) []*store.ScheduledJob {
	var out []*store.ScheduledJob
	for rows.Next() {
		var j store.ScheduledJob
		var nextRun, createdAt int64
		if err := rows.Scan(&j.ID, &j.UserID, &j.Trigger, &j.Message, &nextRun, &createdAt); err != nil {
			continue
		}
		j.NextRun = time.Unix(nextRun, 0)
		j.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &j)
	}
	return out
}
