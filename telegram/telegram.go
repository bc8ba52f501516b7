// Package telegram adapts the Bot API client to the conversation and delivery interfaces.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"avito-helper/conversation"
	"avito-helper/delivery"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultPollTimeout is the long polling timeout in seconds
const DefaultPollTimeout = 60

// Dispatcher accepts inbound events; scheduler.Scheduler satisfies it
type Dispatcher interface {
	Dispatch(ev conversation.Event) bool
}

// RateLimitError is returned when the Bot API asks the client to slow down
type RateLimitError struct {
	After time.Duration
	Err   error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.After, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// RetryAfter is the delay requested by the server
func (e *RateLimitError) RetryAfter() time.Duration {
	return e.After
}

// Transport sends messages and receives updates through the Bot API
type Transport struct {
	bot         *tgbotapi.BotAPI
	PollTimeout int
}

// New authorizes against the public Bot API
func New(token string) (*Transport, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint, &http.Client{})
}

// NewWithEndpoint authorizes against a custom endpoint, formatted like tgbotapi.APIEndpoint
func NewWithEndpoint(token, endpoint string, client *http.Client) (*Transport, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot: %w", err)
	}
	slog.Info("authorized on account", "username", bot.Self.UserName)

	return &Transport{bot: bot, PollTimeout: DefaultPollTimeout}, nil
}

// Username returns the bot's account name
func (t *Transport) Username() string {
	return t.bot.Self.UserName
}

// Send posts a plain text message
func (t *Transport) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps Bot API failures onto the delivery retry policy
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0:
		return &RateLimitError{After: time.Duration(apiErr.RetryAfter) * time.Second, Err: err}
	case apiErr.Code >= 400 && apiErr.Code < 500:
		return delivery.Permanent(err)
	default:
		return err
	}
}

// Run long-polls for updates and hands text messages to d until ctx is done
func (t *Transport) Run(ctx context.Context, d Dispatcher) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = t.PollTimeout

	updates := t.bot.GetUpdatesChan(updateConfig)
	defer t.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := EventFromUpdate(update)
			if !ok {
				continue
			}
			if !d.Dispatch(ev) {
				slog.Warn("event dropped", "chat_id", ev.ChatID)
			}
		}
	}
}

// EventFromUpdate converts a text message update; other update kinds are ignored
func EventFromUpdate(update tgbotapi.Update) (conversation.Event, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return conversation.Event{}, false
	}

	if msg.IsCommand() {
		return conversation.Event{
			ChatID:  msg.Chat.ID,
			Command: msg.Command(),
			Text:    msg.CommandArguments(),
		}, true
	}

	return conversation.Event{ChatID: msg.Chat.ID, Text: msg.Text}, true
}
