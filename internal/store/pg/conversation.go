package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskrunner/gateway/internal/store"
)

// ConversationStore implements store.ConversationStore backed by Postgres.
type ConversationStore struct {
	pool *pgxpool.Pool
}

func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

func (s *ConversationStore) Append(rec store.ConversationHistoryRecord) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO conversation_history (user_id, role, text, created_at) VALUES ($1,$2,$3,$4)`,
		rec.UserID, rec.Role, rec.Text, rec.Timestamp,
	)
	return err
}

func (s *ConversationStore) Recent(userID string, limit int) []store.ConversationHistoryRecord {
	rows, err := s.pool.Query(context.Background(),
		`SELECT user_id, role, text, created_at FROM conversation_history
		 WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []store.ConversationHistoryRecord
	for rows.Next() {
		var rec store.ConversationHistoryRecord
		if err := rows.Scan(&rec.UserID, &rec.Role, &rec.Text, &rec.Timestamp); err != nil {
			continue
		}
		out = append(out, rec)
	}
	// reverse into oldest-first order for the caller
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *ConversationStore) Clear(userID string) error {
	_, err := s.pool.Exec(context.Background(), `DELETE FROM conversation_history WHERE user_id=$1`, userID)
	return err
}

func (s *ConversationStore) PruneOlderThan(age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	tag, err := s.pool.Exec(context.Background(), `DELETE FROM conversation_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
