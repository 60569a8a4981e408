package coordinator

import (
	"context"
	"os"
	"time"

	"github.com/taskrunner/gateway/internal/guard"
	"github.com/taskrunner/gateway/internal/providers"
)

// HealthReport is the `health` command's payload.
type HealthReport struct {
	RAMUsedPct     float64
	DiskFreeBytes  uint64
	LocalModelUp   bool
	InFlight       int
	MaxInFlight    int
	Projects       []ProjectHealth
	DailySpendUSD  float64
	MonthlySpendUSD float64
}

// ProjectHealth reports whether a registered project's path still exists
// on disk, since the registry file is human-edited and can drift.
type ProjectHealth struct {
	Name   string
	Exists bool
}

// Health assembles a point-in-time health snapshot. Any field that can't
// be read degrades gracefully (zero value) rather than failing the whole
// report — an operator checking health during a partial outage still
// wants to see what does work.
func (c *Coordinator) Health(ctx context.Context, router *providers.Router, maxInFlight int) HealthReport {
	report := HealthReport{
		InFlight:    c.guard.InFlight(),
		MaxInFlight: maxInFlight,
	}

	if pct, err := guard.ReadRAMUsedPct(); err == nil {
		report.RAMUsedPct = pct
	}
	if free, err := guard.ReadDiskFreeBytes(c.deps.OutputsDir); err == nil {
		report.DiskFreeBytes = free
	}
	if router != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		report.LocalModelUp = router.LocalHealthy(probeCtx)
	}

	if c.deps.Registry != nil {
		for _, p := range c.deps.Registry.All() {
			_, err := os.Stat(p.Path)
			report.Projects = append(report.Projects, ProjectHealth{Name: p.Name, Exists: err == nil})
		}
	}

	if c.stores.ApiUsage != nil {
		dayStart := time.Now().UTC().Truncate(24 * time.Hour).Unix()
		_, _, _, costUSD := c.stores.ApiUsage.SumSince(dayStart)
		report.DailySpendUSD = costUSD

		monthStart := time.Date(time.Now().UTC().Year(), time.Now().UTC().Month(), 1, 0, 0, 0, 0, time.UTC).Unix()
		_, _, _, monthCost := c.stores.ApiUsage.SumSince(monthStart)
		report.MonthlySpendUSD = monthCost
	}

	return report
}

// UsageTotals is the `usage` command's payload: raw token counts with no
// cost conversion.
type UsageTotals struct {
	InputTokens    int
	OutputTokens   int
	ThinkingTokens int
}

// UsageSince sums token usage for records at or after sinceEpoch.
func (c *Coordinator) UsageSince(sinceEpoch int64) UsageTotals {
	if c.stores.ApiUsage == nil {
		return UsageTotals{}
	}
	in, out, think, _ := c.stores.ApiUsage.SumSince(sinceEpoch)
	return UsageTotals{InputTokens: in, OutputTokens: out, ThinkingTokens: think}
}

// CostReport is the `cost` command's payload: today/month totals plus a
// per-model breakdown.
type CostReport struct {
	TodayUSD        float64
	MonthUSD        float64
	TodayByModel    map[string]float64
	MonthByModel    map[string]float64
}

func (c *Coordinator) Cost() CostReport {
	if c.stores.ApiUsage == nil {
		return CostReport{}
	}
	dayStart := time.Now().UTC().Truncate(24 * time.Hour).Unix()
	monthStart := time.Date(time.Now().UTC().Year(), time.Now().UTC().Month(), 1, 0, 0, 0, 0, time.UTC).Unix()

	_, _, _, todayCost := c.stores.ApiUsage.SumSince(dayStart)
	_, _, _, monthCost := c.stores.ApiUsage.SumSince(monthStart)

	return CostReport{
		TodayUSD:     todayCost,
		MonthUSD:     monthCost,
		TodayByModel: c.stores.ApiUsage.Breakdown(dayStart),
		MonthByModel: c.stores.ApiUsage.Breakdown(monthStart),
	}
}
