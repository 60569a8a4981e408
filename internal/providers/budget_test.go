package providers

import (
	"testing"
	"time"

	"github.com/taskrunner/gateway/internal/store"
)

// fakeApiUsageStore is an in-memory stand-in for store.ApiUsageStore.
type fakeApiUsageStore struct {
	records []store.ApiUsageRecord
}

func (f *fakeApiUsageStore) Append(rec store.ApiUsageRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeApiUsageStore) SumSince(sinceEpoch int64) (int, int, int, float64) {
	var in, out, think int
	var cost float64
	for _, r := range f.records {
		if r.EpochSeconds >= sinceEpoch {
			in += r.InputTokens
			out += r.OutputTokens
			think += r.ThinkingTokens
			cost += r.EstimatedCostUSD
		}
	}
	return in, out, think, cost
}

func (f *fakeApiUsageStore) Breakdown(sinceEpoch int64) map[string]float64 {
	out := make(map[string]float64)
	for _, r := range f.records {
		if r.EpochSeconds >= sinceEpoch {
			out[r.Model] += r.EstimatedCostUSD
		}
	}
	return out
}

func (f *fakeApiUsageStore) PruneOlderThan(age time.Duration) (int, error) {
	return 0, nil
}

func newTestBudget(fixedNow time.Time, dailyCapUSD, monthlyCapUSD, escalationFrac float64) (*Budget, *fakeApiUsageStore) {
	store := &fakeApiUsageStore{}
	b := NewBudget(store, dailyCapUSD, monthlyCapUSD, escalationFrac)
	b.now = func() time.Time { return fixedNow }
	return b, store
}

func TestBudget_RecordAppendsToLedger(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b, store := newTestBudget(now, 10, 100, 0.7)

	if err := b.Record("claude-sonnet", Usage{PromptTokens: 100, CompletionTokens: 50}, 0.02); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected one record appended, got %d", len(store.records))
	}
	if store.records[0].EpochSeconds != now.Unix() {
		t.Errorf("EpochSeconds = %d, want %d", store.records[0].EpochSeconds, now.Unix())
	}
}

func TestBudget_DailySpendOnlyCountsToday(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	b, store := newTestBudget(now, 10, 100, 0.7)

	yesterday := now.Add(-36 * time.Hour)
	store.records = append(store.records,
		storeRecord(yesterday, 5.00),
		storeRecord(now, 2.00),
	)

	if got := b.DailySpendUSD(); got != 2.00 {
		t.Errorf("DailySpendUSD() = %.2f, want 2.00", got)
	}
}

func TestBudget_MonthlySpendAccumulatesWholeMonth(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	b, store := newTestBudget(now, 10, 100, 0.7)

	store.records = append(store.records,
		storeRecord(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 5.00),
		storeRecord(now, 2.00),
		storeRecord(time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC), 50.00),
	)

	if got := b.MonthlySpendUSD(); got != 7.00 {
		t.Errorf("MonthlySpendUSD() = %.2f, want 7.00 (February spend excluded)", got)
	}
}

func TestBudget_ExceededDailyCap(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	b, store := newTestBudget(now, 10, 100, 0.7)
	store.records = append(store.records, storeRecord(now, 10.00))

	if !b.ExceededDailyCap() {
		t.Errorf("expected ExceededDailyCap() to be true once spend reaches the cap")
	}
}

func TestBudget_NotExceededWhenCapIsZero(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	b, store := newTestBudget(now, 0, 0, 0.7)
	store.records = append(store.records, storeRecord(now, 1000))

	if b.ExceededDailyCap() || b.ExceededMonthlyCap() {
		t.Errorf("a zero cap must mean unlimited, got caps exceeded")
	}
}

func TestBudget_ShouldEscalateToLocal(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	b, store := newTestBudget(now, 10, 100, 0.7)

	store.records = append(store.records, storeRecord(now, 6.99))
	if b.ShouldEscalateToLocal() {
		t.Errorf("spend just under the escalation fraction should not escalate")
	}

	store.records = append(store.records, storeRecord(now, 0.02))
	if !b.ShouldEscalateToLocal() {
		t.Errorf("spend at or above the escalation fraction should escalate")
	}
}

func storeRecord(at time.Time, costUSD float64) store.ApiUsageRecord {
	return store.ApiUsageRecord{EpochSeconds: at.Unix(), EstimatedCostUSD: costUSD}
}
