package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskrunner/gateway/internal/bus"
	"github.com/taskrunner/gateway/internal/pipeline"
	"github.com/taskrunner/gateway/internal/store"
	"github.com/taskrunner/gateway/pkg/protocol"
)

// ChainDelimiter separates sub-prompts in a `chain:` command.
const ChainDelimiter = "->"

// ChainResult reports a chain run's outcome.
type ChainResult struct {
	Steps     int
	Completed int
	HaltedAt  int // 1-indexed step that failed, 0 if all succeeded
	Artifacts []string
}

// RunChain executes a sequence of sub-prompts strictly AND: each step
// runs the full pipeline, and any non-pass verdict halts the remainder
// immediately with no further model calls. On success,
// the literal token `{output}` in the next sub-prompt is substituted
// with the primary artifact path of the previous step.
func (c *Coordinator) RunChain(ctx context.Context, userID, chatID, raw string) (*ChainResult, error) {
	steps := splitChainSteps(raw)
	if len(steps) == 0 {
		return nil, fmt.Errorf("chain: no steps given")
	}

	result := &ChainResult{Steps: len(steps)}
	var previousArtifact string

	for i, step := range steps {
		prompt := step
		if previousArtifact != "" {
			prompt = strings.ReplaceAll(step, "{output}", previousArtifact)
		}

		taskID := uuid.NewString()
		state := pipeline.NewState(taskID, userID, prompt, nil)
		state.ConversationCtx = c.recentConversation(userID)

		runCtx, cancel := context.WithTimeout(ctx, c.pipelineTimeout)
		err := c.graph.Run(runCtx, state)
		cancel()

		if err != nil || state.Verdict != pipeline.VerdictPass {
			result.HaltedAt = i + 1
			c.events.Broadcast(bus.Event{
				Name:   "chain.halted",
				TaskID: taskID,
				Payload: bus.OutboundMessage{ChatID: chatID, Content: fmt.Sprintf(
					"chain halted at step %d/%d; %d step(s) skipped", i+1, len(steps), len(steps)-i-1)},
			})
			return result, nil
		}

		result.Completed++
		result.Artifacts = append(result.Artifacts, state.ArtifactPaths...)
		if len(state.ArtifactPaths) > 0 {
			previousArtifact = state.ArtifactPaths[0]
		}

		c.events.Broadcast(bus.Event{Name: protocol.EventTaskDone, TaskID: taskID, Payload: bus.OutboundMessage{
			ChatID:  chatID,
			Content: fmt.Sprintf("step %d/%d: %s", i+1, len(steps), state.FinalResponse),
			Media:   c.artifactMedia(state.ArtifactPaths),
		}})

		_ = c.stores.Tasks.Create(&store.Task{
			ID: taskID, UserID: userID, Message: prompt, Status: store.TaskDone,
			CreatedAt: time.Now(), Result: state.FinalResponse, Type: string(state.Type),
		})
	}

	return result, nil
}

func splitChainSteps(raw string) []string {
	parts := strings.Split(raw, ChainDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
