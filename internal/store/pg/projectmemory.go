package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskrunner/gateway/internal/store"
)

// ProjectMemoryStore implements store.ProjectMemoryStore backed by Postgres.
type ProjectMemoryStore struct {
	pool *pgxpool.Pool
}

func NewProjectMemoryStore(pool *pgxpool.Pool) *ProjectMemoryStore {
	return &ProjectMemoryStore{pool: pool}
}

func (s *ProjectMemoryStore) Append(rec store.ProjectMemoryRecord) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO project_memory (project, outcome, lesson, created_at) VALUES ($1,$2,$3,$4)`,
		rec.Project, rec.Outcome, rec.Lesson, rec.Timestamp,
	)
	return err
}

func (s *ProjectMemoryStore) Recent(project string, limit int) []store.ProjectMemoryRecord {
	rows, err := s.pool.Query(context.Background(),
		`SELECT project, outcome, lesson, created_at FROM project_memory
		 WHERE project=$1 ORDER BY created_at DESC LIMIT $2`, project, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []store.ProjectMemoryRecord
	for rows.Next() {
		var rec store.ProjectMemoryRecord
		if err := rows.Scan(&rec.Project, &rec.Outcome, &rec.Lesson, &rec.Timestamp); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}
