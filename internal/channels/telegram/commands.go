package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/taskrunner/gateway/internal/channels"
)

// MenuCommands returns the bot's registered slash-command menu.
func MenuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "start", Description: "Start chatting with the bot"},
		{Command: "help", Description: "Show available commands"},
		{Command: "status", Description: "List in-flight tasks"},
		{Command: "history", Description: "Show recent tasks"},
		{Command: "usage", Description: "Show token usage totals"},
		{Command: "cost", Description: "Show spend today/this month"},
		{Command: "health", Description: "Show system health"},
		{Command: "exec", Description: "Run a single sandboxed command"},
		{Command: "context", Description: "View or clear conversation history"},
		{Command: "cancel", Description: "Cancel your in-flight tasks"},
		{Command: "listprojects", Description: "List registered projects"},
		{Command: "schedule", Description: "Create/list/remove a scheduled job"},
		{Command: "chain", Description: "Run a strict-AND chain of steps"},
		{Command: "debug", Description: "Fetch a task's debug sidecar"},
	}
}

const helpText = `Available commands:
/start, /help - show this message
/status - list your in-flight tasks
/history - recent tasks with status and duration
/usage - token usage totals
/cost - spend today/this month, per model
/health - RAM, disk, local-model and project health
/exec <command> - run one command through the sandbox
/context [clear] - view or clear conversation history
/cancel - cancel your in-flight tasks
/listprojects - list registered projects
/schedule <cron> <message> | /schedule list | /schedule remove <id>
/chain step one -> step two -> ...
/debug <task-id-prefix> - fetch a task's debug sidecar

Anything else is submitted as a task.`

// handleCommand dispatches a recognized slash command. Returns false if
// text isn't a command, so the caller falls through to task submission.
func (c *Channel) handleCommand(ctx context.Context, msg *telego.Message, userID, chatID, text string) bool {
	if len(text) == 0 || text[0] != '/' {
		return false
	}
	cmd := commandName(text)
	arg := stripCommand(text)

	switch cmd {
	case "/start", "/help":
		c.reply(ctx, chatID, helpText)

	case "/status":
		views := c.coordinator.Status(userID)
		if len(views) == 0 {
			c.reply(ctx, chatID, "No in-flight tasks.")
			return true
		}
		var sb strings.Builder
		for _, v := range views {
			fmt.Fprintf(&sb, "%s: %s\n", v.TaskID[:8], v.Stage)
		}
		c.reply(ctx, chatID, sb.String())

	case "/history":
		tasks := c.coordinator.History(userID, 10)
		if len(tasks) == 0 {
			c.reply(ctx, chatID, "No task history yet.")
			return true
		}
		var sb strings.Builder
		for _, t := range tasks {
			dur := "running"
			if t.CompletedAt != nil {
				dur = t.CompletedAt.Sub(t.CreatedAt).Round(time.Second).String()
			}
			fmt.Fprintf(&sb, "%s [%s] %s (%s)\n", t.ID[:8], t.Status, channels.Truncate(t.Message, 50), dur)
		}
		c.reply(ctx, chatID, sb.String())

	case "/usage":
		totals := c.coordinator.UsageSince(0)
		c.reply(ctx, chatID, fmt.Sprintf(
			"Input tokens: %d\nOutput tokens: %d\nThinking tokens: %d",
			totals.InputTokens, totals.OutputTokens, totals.ThinkingTokens,
		))

	case "/cost":
		report := c.coordinator.Cost()
		var sb strings.Builder
		fmt.Fprintf(&sb, "Today: $%.4f\nThis month: $%.4f\n", report.TodayUSD, report.MonthUSD)
		if len(report.TodayByModel) > 0 {
			sb.WriteString("\nToday by model:\n")
			for model, cost := range report.TodayByModel {
				fmt.Fprintf(&sb, "  %s: $%.4f\n", model, cost)
			}
		}
		c.reply(ctx, chatID, sb.String())

	case "/health":
		report := c.coordinator.Health(ctx, c.router, c.maxInFlight)
		var sb strings.Builder
		fmt.Fprintf(&sb, "RAM used: %.0f%%\nDisk free: %.2f GB\nLocal model: %v\nIn flight: %d/%d\n",
			report.RAMUsedPct*100, float64(report.DiskFreeBytes)/(1<<30), report.LocalModelUp,
			report.InFlight, report.MaxInFlight)
		fmt.Fprintf(&sb, "Spend today: $%.4f, this month: $%.4f\n", report.DailySpendUSD, report.MonthlySpendUSD)
		if len(report.Projects) > 0 {
			sb.WriteString("Projects:\n")
			for _, p := range report.Projects {
				fmt.Fprintf(&sb, "  %s: %v\n", p.Name, p.Exists)
			}
		}
		c.reply(ctx, chatID, sb.String())

	case "/exec":
		if arg == "" {
			c.reply(ctx, chatID, "Usage: /exec <command>")
			return true
		}
		result, err := c.coordinator.Exec(ctx, userID, arg)
		if err != nil {
			c.reply(ctx, chatID, fmt.Sprintf("exec failed: %s", err))
			return true
		}
		c.reply(ctx, chatID, fmt.Sprintf("exit %d\nstdout:\n%s\nstderr:\n%s",
			result.ExitCode, channels.Truncate(result.Stdout, 2000), channels.Truncate(result.Stderr, 1000)))

	case "/context":
		if strings.TrimSpace(arg) == "clear" {
			if err := c.coordinator.ClearConversation(userID); err != nil {
				c.reply(ctx, chatID, fmt.Sprintf("clear failed: %s", err))
				return true
			}
			c.reply(ctx, chatID, "Conversation history cleared.")
			return true
		}
		records := c.coordinator.ConversationHistory(userID, 20)
		if len(records) == 0 {
			c.reply(ctx, chatID, "No conversation history.")
			return true
		}
		var sb strings.Builder
		for _, r := range records {
			fmt.Fprintf(&sb, "[%s] %s\n", r.Role, channels.Truncate(r.Text, 200))
		}
		c.reply(ctx, chatID, sb.String())

	case "/cancel":
		n := c.coordinator.Cancel(userID)
		c.reply(ctx, chatID, fmt.Sprintf("Cancelled %d in-flight task(s).", n))

	case "/listprojects":
		projs := c.coordinator.ListProjects()
		if len(projs) == 0 {
			c.reply(ctx, chatID, "No registered projects.")
			return true
		}
		var sb strings.Builder
		for _, p := range projs {
			fmt.Fprintf(&sb, "- %s: %s\n", p.Name, p.Description)
		}
		c.reply(ctx, chatID, sb.String())

	case "/schedule":
		c.handleSchedule(ctx, userID, chatID, arg)

	case "/chain":
		result, err := c.coordinator.RunChain(ctx, userID, chatID, arg)
		if err != nil {
			c.reply(ctx, chatID, fmt.Sprintf("chain failed: %s", err))
			return true
		}
		if result.HaltedAt > 0 {
			c.reply(ctx, chatID, fmt.Sprintf("chain halted at step %d/%d", result.HaltedAt, result.Steps))
			return true
		}
		c.reply(ctx, chatID, fmt.Sprintf("chain completed %d/%d steps", result.Completed, result.Steps))

	case "/debug":
		if arg == "" {
			c.reply(ctx, chatID, "Usage: /debug <task-id-prefix>")
			return true
		}
		sidecar, err := c.coordinator.ReadSidecar(arg)
		if err != nil {
			c.reply(ctx, chatID, fmt.Sprintf("debug failed: %s", err))
			return true
		}
		c.reply(ctx, chatID, fmt.Sprintf(
			"task %s (%s)\nverdict: %s, retries: %d\ntotal: %dms\nmessage: %s",
			sidecar.TaskID[:8], sidecar.TaskType, sidecar.Verdict, sidecar.RetryCount,
			sidecar.TotalDurationMs, sidecar.Message,
		))

	default:
		return false
	}
	return true
}

func (c *Channel) handleSchedule(ctx context.Context, userID, chatID, arg string) {
	if c.scheduler == nil {
		c.reply(ctx, chatID, "Scheduling is not configured.")
		return
	}

	fields := strings.Fields(arg)
	switch {
	case len(fields) == 0:
		c.reply(ctx, chatID, "Usage: /schedule <cron> <message> | /schedule list | /schedule remove <id>")

	case fields[0] == "list":
		jobs := c.scheduler.List(userID)
		if len(jobs) == 0 {
			c.reply(ctx, chatID, "No scheduled jobs.")
			return
		}
		var sb strings.Builder
		for _, j := range jobs {
			fmt.Fprintf(&sb, "%s: %s -> %s (next %s)\n", j.ID[:8], j.Trigger, channels.Truncate(j.Message, 40), j.NextRun.Format(time.RFC3339))
		}
		c.reply(ctx, chatID, sb.String())

	case fields[0] == "remove" && len(fields) >= 2:
		ok, err := c.scheduler.Remove(fields[1])
		if err != nil {
			c.reply(ctx, chatID, fmt.Sprintf("remove failed: %s", err))
			return
		}
		if !ok {
			c.reply(ctx, chatID, "No job matched that id.")
			return
		}
		c.reply(ctx, chatID, "Job removed.")

	default:
		// <cron expression (5 space-separated fields)> <message...>
		if len(fields) < 6 {
			c.reply(ctx, chatID, "Usage: /schedule <min> <hour> <dom> <mon> <dow> <message>")
			return
		}
		trigger := strings.Join(fields[:5], " ")
		message := strings.Join(fields[5:], " ")
		job, err := c.scheduler.Create(userID, trigger, message)
		if err != nil {
			c.reply(ctx, chatID, fmt.Sprintf("schedule failed: %s", err))
			return
		}
		c.reply(ctx, chatID, fmt.Sprintf("Scheduled %s, next run %s", job.ID[:8], job.NextRun.Format(time.RFC3339)))
	}
}
