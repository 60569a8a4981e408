package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ErrBudgetExceeded is returned when a call would exceed the daily or
// monthly spend cap and no local fallback is available.
var ErrBudgetExceeded = errors.New("gateway: budget exceeded")

// ErrCalledFromEventLoop guards against synchronously blocking the
// async chat/scheduler event loop on a model call. Every pipeline run
// must happen off-loop, inside a worker goroutine; Gateway refuses to
// run otherwise.
var ErrCalledFromEventLoop = errors.New("gateway: Call invoked from the event loop goroutine")

// modelPricePerMToken is a rough $/million-token table used to turn
// token usage into an estimated cost for the budget ledger. Real prices
// drift constantly; this only needs to be directionally correct so the
// daily/monthly caps trip at roughly the right time.
var modelPricePerMToken = map[string][2]float64{
	"claude-opus-4-1-20250805":   {15.0, 75.0},
	"claude-sonnet-4-5-20250929": {3.0, 15.0},
}

func estimateCostUSD(model string, usage Usage) float64 {
	prices, ok := modelPricePerMToken[model]
	if !ok {
		return 0
	}
	in := float64(usage.PromptTokens) / 1_000_000 * prices[0]
	out := float64(usage.CompletionTokens+usage.ThinkingTokens) / 1_000_000 * prices[1]
	return in + out
}

// Gateway is the single entry point pipeline nodes use to talk to a
// model, wrapping routing, budget enforcement, and retry behind one call.
type Gateway struct {
	router *Router
	budget *Budget

	// eventLoopGuard, while true, makes Call refuse to run. It is a
	// single flag for the whole Gateway and does not record which
	// goroutine set it.
	eventLoopGuard atomic.Bool
}

func NewGateway(router *Router, budget *Budget) *Gateway {
	return &Gateway{router: router, budget: budget}
}

// MarkEventLoop sets the Gateway-wide event-loop flag; Call refuses to
// run, from any goroutine, while it is set. Callers clear it by calling
// UnmarkEventLoop once control returns to a worker.
func (g *Gateway) MarkEventLoop()   { g.eventLoopGuard.Store(true) }
func (g *Gateway) UnmarkEventLoop() { g.eventLoopGuard.Store(false) }

// Call is the Model Gateway's entire surface: route by
// purpose/complexity, enforce the spend ledger, retry on transient
// failure or an empty response, and record the call's cost.
func (g *Gateway) Call(ctx context.Context, purpose Purpose, complexity Complexity, system, prompt string, maxTokens int, enableThinking bool) (*ChatResponse, error) {
	if g.eventLoopGuard.Load() {
		return nil, ErrCalledFromEventLoop
	}

	provider, model := g.router.Route(ctx, purpose, complexity)

	// Audit and code_gen must stay remote regardless of budget state —
	// refusing them would strand a running pipeline with no way to
	// finish a task it already started executing.
	if provider == g.router.remote && purpose != PurposeAudit && purpose != PurposeCodeGen {
		if g.budget != nil && (g.budget.ExceededDailyCap() || g.budget.ExceededMonthlyCap()) {
			if g.router.local != nil {
				provider, model = g.router.local, g.router.local.DefaultModel()
			} else {
				return nil, fmt.Errorf("%w: spend cap reached, no local fallback configured", ErrBudgetExceeded)
			}
		}
	}

	resp, err := provider.Chat(ctx, ChatRequest{
		System:         system,
		Messages:       []Message{{Role: "user", Content: prompt}},
		Model:          model,
		MaxTokens:      maxTokens,
		EnableThinking: enableThinking,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: %s call via %s: %w", purpose, provider.Name(), err)
	}

	if g.budget != nil && provider.Name() != "local" {
		cost := estimateCostUSD(model, resp.Usage)
		if recErr := g.budget.Record(model, resp.Usage, cost); recErr != nil {
			// A ledger write failure must never fail the pipeline run
			// that already got its answer.
			slog.Warn("budget ledger append failed", "error", recErr, "model", model)
		}
	}

	return resp, nil
}
