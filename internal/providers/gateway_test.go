package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taskrunner/gateway/internal/store"
)

func TestGateway_CallReturnsResponseFromRoutedProvider(t *testing.T) {
	srv := newFakeAnthropicServer(t, http.StatusOK, `{
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "the plan"}],
		"usage": {"input_tokens": 5, "output_tokens": 3}
	}`)
	defer srv.Close()

	remote := NewRemoteProvider("test-key", "claude-sonnet", WithRemoteBaseURL(srv.URL))
	router := NewRouter(remote, nil, nil, 0.75)
	gw := NewGateway(router, nil)

	resp, err := gw.Call(context.Background(), PurposePlan, ComplexityHigh, "sys", "prompt", 1000, false)
	if err != nil {
		t.Fatalf("Call() failed: %v", err)
	}
	if resp.Content != "the plan" {
		t.Errorf("Content = %q, want %q", resp.Content, "the plan")
	}
}

func TestGateway_CallRefusesWhileEventLoopMarked(t *testing.T) {
	remote := NewRemoteProvider("test-key", "claude-sonnet")
	router := NewRouter(remote, nil, nil, 0.75)
	gw := NewGateway(router, nil)

	gw.MarkEventLoop()
	_, err := gw.Call(context.Background(), PurposePlan, ComplexityHigh, "sys", "prompt", 1000, false)
	if err != ErrCalledFromEventLoop {
		t.Errorf("err = %v, want ErrCalledFromEventLoop", err)
	}

	gw.UnmarkEventLoop()
}

func TestGateway_CallRecordsSpendToBudget(t *testing.T) {
	srv := newFakeAnthropicServer(t, http.StatusOK, `{
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "ok"}],
		"usage": {"input_tokens": 1000000, "output_tokens": 1000000}
	}`)
	defer srv.Close()

	remote := NewRemoteProvider("test-key", "claude-sonnet-4-5-20250929", WithRemoteBaseURL(srv.URL))
	usage := &fakeApiUsageStore{}
	budget := NewBudget(usage, 1000, 30000, 0.75)
	router := NewRouter(remote, nil, budget, 0.75)
	gw := NewGateway(router, budget)

	if _, err := gw.Call(context.Background(), PurposePlan, ComplexityHigh, "sys", "prompt", 1000, false); err != nil {
		t.Fatalf("Call() failed: %v", err)
	}
	if len(usage.records) != 1 {
		t.Fatalf("expected a single budget ledger record, got %d", len(usage.records))
	}
	if usage.records[0].EstimatedCostUSD <= 0 {
		t.Errorf("EstimatedCostUSD = %v, want a positive estimated cost", usage.records[0].EstimatedCostUSD)
	}
}

func TestGateway_CallFallsBackToLocalWhenDailyCapExceeded(t *testing.T) {
	srv := newFakeAnthropicServer(t, http.StatusOK, `{"stop_reason": "end_turn", "content": [{"type":"text","text":"remote"}], "usage": {}}`)
	defer srv.Close()
	localSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [{"message": {"content": "local"}}], "usage": {}}`))
	}))
	defer localSrv.Close()

	remote := NewRemoteProvider("test-key", "claude-sonnet", WithRemoteBaseURL(srv.URL))
	local := NewLocalProvider(localSrv.URL, "qwen2.5-coder")

	usage := &fakeApiUsageStore{}
	now := time.Now().UTC()
	usage.records = append(usage.records, store.ApiUsageRecord{EpochSeconds: now.Unix(), EstimatedCostUSD: 1000})
	budget := NewBudget(usage, 1.0, 30000, 0.75)

	router := NewRouter(remote, local, budget, 0.75)
	gw := NewGateway(router, budget)

	resp, err := gw.Call(context.Background(), PurposePlan, ComplexityHigh, "sys", "prompt", 1000, false)
	if err != nil {
		t.Fatalf("Call() failed: %v", err)
	}
	if resp.Content != "local" {
		t.Errorf("Content = %q, want the call to fall back to the local provider", resp.Content)
	}
}
