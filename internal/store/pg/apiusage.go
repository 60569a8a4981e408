package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskrunner/gateway/internal/store"
)

// ApiUsageStore implements store.ApiUsageStore backed by Postgres. All
// cutoff comparisons use the numeric epoch_seconds column, never a parsed
// timestamp string, so that day/month boundary checks in the budget
// ledger can't drift on timezone or format.
type ApiUsageStore struct {
	pool *pgxpool.Pool
}

func NewApiUsageStore(pool *pgxpool.Pool) *ApiUsageStore {
	return &ApiUsageStore{pool: pool}
}

func (s *ApiUsageStore) Append(rec store.ApiUsageRecord) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO api_usage (epoch_seconds, model, input_tokens, output_tokens, thinking_tokens, estimated_cost_usd)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.EpochSeconds, rec.Model, rec.InputTokens, rec.OutputTokens, rec.ThinkingTokens, rec.EstimatedCostUSD,
	)
	return err
}

func (s *ApiUsageStore) SumSince(sinceEpoch int64) (inputTokens, outputTokens, thinkingTokens int, costUSD float64) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT COALESCE(SUM(input_tokens),0), COALESCE(SUM(output_tokens),0),
		        COALESCE(SUM(thinking_tokens),0), COALESCE(SUM(estimated_cost_usd),0)
		 FROM api_usage WHERE epoch_seconds >= $1`, sinceEpoch)
	_ = row.Scan(&inputTokens, &outputTokens, &thinkingTokens, &costUSD)
	return
}

func (s *ApiUsageStore) Breakdown(sinceEpoch int64) map[string]float64 {
	rows, err := s.pool.Query(context.Background(),
		`SELECT model, COALESCE(SUM(estimated_cost_usd),0) FROM api_usage
		 WHERE epoch_seconds >= $1 GROUP BY model`, sinceEpoch)
	if err != nil {
		return nil
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var model string
		var cost float64
		if err := rows.Scan(&model, &cost); err != nil {
			continue
		}
		out[model] = cost
	}
	return out
}

func (s *ApiUsageStore) PruneOlderThan(age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).Unix()
	tag, err := s.pool.Exec(context.Background(), `DELETE FROM api_usage WHERE epoch_seconds < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
