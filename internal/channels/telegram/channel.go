// Package telegram adapts the Telegram Bot API (long polling, via
// github.com/mymmrac/telego) to the Task Coordinator: it is the one
// concrete chat front-end this service ships.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/taskrunner/gateway/internal/bus"
	"github.com/taskrunner/gateway/internal/channels"
	"github.com/taskrunner/gateway/internal/config"
	"github.com/taskrunner/gateway/internal/coordinator"
	"github.com/taskrunner/gateway/internal/providers"
	"github.com/taskrunner/gateway/internal/scheduler"
)

// Channel is the Telegram chat front-end adapter.
type Channel struct {
	*channels.BaseChannel
	bot         *telego.Bot
	cfg         config.TelegramConfig
	coordinator *coordinator.Coordinator
	router      *providers.Router
	scheduler   *scheduler.Adapter
	events      bus.EventPublisher
	maxInFlight int
	uploadsDir  string
	maxUploadBytes int64
	sendLimiter *rate.Limiter // caps outbound calls below Telegram's per-bot rate limit

	chatIDs      sync.Map // userID -> last known chat id, for unsolicited status/event pushes
	placeholderMsgs sync.Map // taskID -> messageID of its "Working on it..." placeholder
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// Deps bundles the collaborators New needs.
type Deps struct {
	Config         config.TelegramConfig
	OwnerIDs       []string
	Coordinator    *coordinator.Coordinator
	Router         *providers.Router
	Scheduler      *scheduler.Adapter
	Events         bus.EventPublisher
	MaxInFlight    int
	UploadsDir     string
	MaxUploadBytes int64
}

func New(d Deps) (*Channel, error) {
	var opts []telego.BotOption
	if d.Config.Proxy != "" {
		proxyURL, err := url.Parse(d.Config.Proxy)
		if err != nil {
			return nil, fmt.Errorf("telegram: invalid proxy url %q: %w", d.Config.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(d.Config.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}

	c := &Channel{
		BaseChannel:    channels.NewBaseChannel("telegram", d.OwnerIDs),
		bot:            bot,
		cfg:            d.Config,
		coordinator:    d.Coordinator,
		router:         d.Router,
		scheduler:      d.Scheduler,
		events:         d.Events,
		maxInFlight:    d.MaxInFlight,
		uploadsDir:     d.UploadsDir,
		maxUploadBytes: d.MaxUploadBytes,
		sendLimiter:    rate.NewLimiter(rate.Limit(25), 5),
		pollDone:       make(chan struct{}),
	}
	if d.Events != nil {
		d.Events.Subscribe("telegram", c.onEventFull)
	}
	return c, nil
}

func (c *Channel) placeholders() *sync.Map {
	return &c.placeholderMsgs
}

// Start begins long polling for updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		if err := c.bot.SetMyCommands(pollCtx, &telego.SetMyCommandsParams{Commands: MenuCommands()}); err != nil {
			slog.Warn("telegram: sync menu commands failed", "error", err)
		}
	}()

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the polling goroutine to exit.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
	}
	select {
	case <-c.pollDone:
	case <-time.After(10 * time.Second):
		slog.Warn("telegram: polling goroutine did not exit within timeout")
	}
	return nil
}

// send delivers an outbound message, chunked below Telegram's message
// size limit. If EditMessageID is set it edits that message instead of
// sending a new one (used for the hash-gated status loop).
func (c *Channel) send(ctx context.Context, out bus.OutboundMessage) error {
	chatID, err := parseChatID(out.ChatID)
	if err != nil {
		return err
	}

	if out.EditMessageID != "" {
		msgID, convErr := parseMessageID(out.EditMessageID)
		if convErr == nil {
			if err := c.sendLimiter.Wait(ctx); err != nil {
				return err
			}
			_, err := c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
				ChatID:    tu.ID(chatID),
				MessageID: msgID,
				Text:      firstChunk(out.Content),
			})
			if err == nil {
				return nil
			}
			// Fall through to a fresh send if the edit failed (e.g. message
			// too old to edit, or identical-content no-op error).
		}
	}

	for _, chunk := range chunkMessage(out.Content) {
		if err := c.sendLimiter.Wait(ctx); err != nil {
			return err
		}
		msg := tu.Message(tu.ID(chatID), chunk)
		if _, err := c.bot.SendMessage(ctx, msg); err != nil {
			return fmt.Errorf("telegram: send message: %w", err)
		}
	}
	for _, m := range out.Media {
		if err := c.sendMedia(ctx, chatID, m); err != nil {
			slog.Warn("telegram: send media failed", "path", m.Path, "error", err)
		}
	}
	return nil
}

func (c *Channel) sendMedia(ctx context.Context, chatID int64, m bus.MediaAttachment) error {
	if err := c.sendLimiter.Wait(ctx); err != nil {
		return err
	}
	doc := tu.Document(tu.ID(chatID), tu.FileFromPath(m.Path))
	if m.Caption != "" {
		doc.Caption = m.Caption
	}
	_, err := c.bot.SendDocument(ctx, doc)
	return err
}

func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}

func parseMessageID(s string) (int, error) {
	var id int
	_, err := fmt.Sscanf(s, "%d", &id)
	return id, err
}
