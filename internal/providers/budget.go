package providers

import (
	"time"

	"github.com/taskrunner/gateway/internal/store"
)

// Budget tracks and enforces the daily/monthly spend caps against the
// api_usage ledger. All cutoff math uses numeric Unix
// epoch seconds, matching store.ApiUsageRecord's invariant, never a
// parsed date string.
type Budget struct {
	usage          store.ApiUsageStore
	dailyCapUSD    float64
	monthlyCapUSD  float64
	escalationFrac float64
	// now is overridable for tests; defaults to time.Now.
	now func() time.Time
}

func NewBudget(usage store.ApiUsageStore, dailyCapUSD, monthlyCapUSD, escalationFrac float64) *Budget {
	return &Budget{
		usage:          usage,
		dailyCapUSD:    dailyCapUSD,
		monthlyCapUSD:  monthlyCapUSD,
		escalationFrac: escalationFrac,
		now:            time.Now,
	}
}

// Record appends one call's spend to the ledger.
func (b *Budget) Record(model string, usage Usage, costUSD float64) error {
	return b.usage.Append(store.ApiUsageRecord{
		EpochSeconds:     b.now().Unix(),
		Model:            model,
		InputTokens:      usage.PromptTokens,
		OutputTokens:     usage.CompletionTokens,
		ThinkingTokens:   usage.ThinkingTokens,
		EstimatedCostUSD: costUSD,
	})
}

// DailySpendUSD returns the cost accrued since the start of the current
// UTC day.
func (b *Budget) DailySpendUSD() float64 {
	_, _, _, cost := b.usage.SumSince(startOfUTCDay(b.now()).Unix())
	return cost
}

// MonthlySpendUSD returns the cost accrued since the start of the current
// UTC month.
func (b *Budget) MonthlySpendUSD() float64 {
	_, _, _, cost := b.usage.SumSince(startOfUTCMonth(b.now()).Unix())
	return cost
}

// ExceededDailyCap reports whether today's spend has already reached the
// daily cap. Once this or ExceededMonthlyCap is true, the Gateway sends
// remote-routed calls other than audit and code_gen to the local
// backend, or refuses them when no local backend is configured.
func (b *Budget) ExceededDailyCap() bool {
	return b.dailyCapUSD > 0 && b.DailySpendUSD() >= b.dailyCapUSD
}

// ExceededMonthlyCap reports the same for the monthly cap.
func (b *Budget) ExceededMonthlyCap() bool {
	return b.monthlyCapUSD > 0 && b.MonthlySpendUSD() >= b.monthlyCapUSD
}

// ShouldEscalateToLocal reports whether daily spend has crossed the
// escalation fraction of the daily cap — above this threshold,
// low-complexity calls that could route remote are pushed to the local
// backend instead, to conserve the remaining budget for audit/code_gen
// calls that must stay remote.
func (b *Budget) ShouldEscalateToLocal() bool {
	if b.dailyCapUSD <= 0 {
		return false
	}
	return b.DailySpendUSD() >= b.dailyCapUSD*b.escalationFrac
}

func startOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfUTCMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
