package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskrunner/gateway/internal/store"
)

// TaskStore implements store.TaskStore backed by Postgres. Reads go
// straight to the database rather than through an in-memory cache: tasks
// are written once per stage transition and read rarely enough that a
// cache buys little.
type TaskStore struct {
	pool *pgxpool.Pool
}

func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

func (s *TaskStore) Create(t *store.Task) error {
	filesJSON, _ := json.Marshal(t.Files)
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO tasks (id, user_id, message, files, status, created_at, result, error, input_tokens, output_tokens, type)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		t.ID, t.UserID, t.Message, filesJSON, t.Status, t.CreatedAt, t.Result, t.Error, t.InputTokens, t.OutputTokens, t.Type,
	)
	return err
}

func (s *TaskStore) Update(t *store.Task) error {
	_, err := s.pool.Exec(context.Background(),
		`UPDATE tasks SET status=$2, completed_at=$3, result=$4, error=$5, input_tokens=$6, output_tokens=$7, type=$8
		 WHERE id=$1`,
		t.ID, t.Status, t.CompletedAt, t.Result, t.Error, t.InputTokens, t.OutputTokens, t.Type,
	)
	return err
}

func (s *TaskStore) Get(id string) (*store.Task, bool) {
	return s.scanOne(`SELECT id, user_id, message, files, status, created_at, completed_at, result, error, input_tokens, output_tokens, type
		FROM tasks WHERE id=$1`, id)
}

func (s *TaskStore) GetByPrefix(prefix string) (*store.Task, bool) {
	return s.scanOne(`SELECT id, user_id, message, files, status, created_at, completed_at, result, error, input_tokens, output_tokens, type
		FROM tasks WHERE id LIKE $1 ORDER BY created_at DESC LIMIT 1`, prefix+"%")
}

func (s *TaskStore) scanOne(query string, arg any) (*store.Task, bool) {
	row := s.pool.QueryRow(context.Background(), query, arg)
	t, err := scanTask(row)
	if err != nil {
		return nil, false
	}
	return t, true
}

func scanTask(row pgx.Row) (*store.Task, error) {
	var t store.Task
	var filesJSON []byte
	if err := row.Scan(&t.ID, &t.UserID, &t.Message, &filesJSON, &t.Status, &t.CreatedAt,
		&t.CompletedAt, &t.Result, &t.Error, &t.InputTokens, &t.OutputTokens, &t.Type); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(filesJSON, &t.Files)
	return &t, nil
}

func (s *TaskStore) ListRecent(userID string, limit int) []*store.Task {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, user_id, message, files, status, created_at, completed_at, result, error, input_tokens, output_tokens, type
		 FROM tasks WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []*store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// RewriteRunningToCrashed runs once at startup: any task left in
// pending/running status after an unclean shutdown is rewritten so
// history reflects reality rather than implying a task is still active.
func (s *TaskStore) RewriteRunningToCrashed() (int, error) {
	tag, err := s.pool.Exec(context.Background(),
		`UPDATE tasks SET status=$1, completed_at=now() WHERE status IN ($2,$3)`,
		store.TaskCrashed, store.TaskPending, store.TaskRunning)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *TaskStore) Prune(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(context.Background(),
		`DELETE FROM tasks WHERE completed_at IS NOT NULL AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
