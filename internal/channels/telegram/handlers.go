package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/taskrunner/gateway/internal/bus"
	"github.com/taskrunner/gateway/internal/channels"
	"github.com/taskrunner/gateway/pkg/protocol"
)

// handleMessage processes one incoming Telegram message: allow-list gate,
// command dispatch, upload handling, and finally submission to the
// Coordinator for anything that isn't a recognized command.
func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil {
		return
	}
	userID := fmt.Sprintf("%d", msg.From.ID)
	chatID := fmt.Sprintf("%d", msg.Chat.ID)

	if !c.IsAllowed(userID) {
		slog.Debug("telegram message rejected: not on operator allow-list", "user_id", userID)
		return
	}

	c.chatIDs.Store(userID, chatID)

	content := msg.Text
	if msg.Caption != "" {
		if content != "" {
			content += "\n"
		}
		content += msg.Caption
	}

	if handled := c.handleCommand(ctx, msg, userID, chatID, content); handled {
		return
	}

	uploads := c.resolveUploads(ctx, msg)
	if content == "" && len(uploads) == 0 {
		return
	}

	taskID, err := c.coordinator.Submit(ctx, bus.InboundMessage{
		Channel: c.Name(),
		UserID:  userID,
		ChatID:  chatID,
		Content: content,
		Files:   uploads,
	})
	if err != nil {
		c.reply(ctx, chatID, channels.Truncate(fmt.Sprintf("could not start task: %s", err), protocol.ChatMessageLimitBytes))
		return
	}

	placeholder, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(msg.Chat.ID), "Working on it..."))
	if err == nil {
		c.placeholders().Store(taskID, fmt.Sprintf("%d", placeholder.MessageID))
	}
}

// onEventFull relays a pipeline/coordinator event to the chat it concerns. A
// stage-change event edits the task's placeholder message in place
// (hash-gated upstream, so this only fires when the view actually
// changed); completion/failure events send a fresh final message.
func (c *Channel) onEventFull(ev bus.Event) {
	out, ok := ev.Payload.(bus.OutboundMessage)
	if !ok {
		return
	}

	switch ev.Name {
	case protocol.EventStageChanged:
		if id, found := c.placeholders().Load(ev.TaskID); found {
			out.EditMessageID = id.(string)
		}
	case protocol.EventTaskDone, protocol.EventTaskFailed:
		c.placeholders().Delete(ev.TaskID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.send(ctx, out); err != nil {
		slog.Warn("telegram: event send failed", "error", err, "event", ev.Name)
	}
}

func (c *Channel) reply(ctx context.Context, chatID, text string) {
	if err := c.send(ctx, bus.OutboundMessage{ChatID: chatID, Content: text}); err != nil {
		slog.Warn("telegram: reply failed", "error", err)
	}
}

// stripCommand removes the leading "/cmd" token (and any "@botname"
// suffix) and returns the remaining argument text.
func stripCommand(text string) string {
	parts := strings.SplitN(text, " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func commandName(text string) string {
	cmd := strings.SplitN(text, " ", 2)[0]
	cmd = strings.SplitN(cmd, "@", 2)[0]
	return strings.ToLower(cmd)
}
