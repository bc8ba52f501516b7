// Package conversation drives the search dialog: query, then price, then a search run.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"avito-helper/delivery"
	"avito-helper/models"
)

// Commands understood by the machine
const (
	CommandStart  = "start"
	CommandCancel = "cancel"
	CommandStop   = "stop"
	CommandHelp   = "help"
)

// Event is one inbound chat message
type Event struct {
	ChatID  int64
	Text    string
	Command string // Command name without the leading slash, empty for plain text
}

// IsCommand reports whether the event carries a command
func (e Event) IsCommand() bool {
	return e.Command != ""
}

// Sender delivers a text reply to a chat
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Searcher runs the scrape and delivery pipeline for a completed request.
// Expected outcomes such as fetch errors or empty results are reported to the chat by the searcher itself.
type Searcher interface {
	Search(ctx context.Context, chatID int64, req models.SearchRequest) error
}

// Store mirrors in-flight conversations so they survive a restart
type Store interface {
	SaveConversation(ctx context.Context, conv *models.Conversation) error
	DeleteConversation(ctx context.Context, chatID int64) error
	LoadConversations(ctx context.Context) ([]*models.Conversation, error)
}

// Option configures a Machine
type Option func(*Machine)

// WithStore mirrors conversation state into store
func WithStore(store Store) Option {
	return func(m *Machine) {
		m.store = store
	}
}

// WithCurrency sets the currency shown in the search acknowledgement
func WithCurrency(currency string) Option {
	return func(m *Machine) {
		m.currency = currency
	}
}

// Machine owns every conversation, keyed by chat id.
// Events of one chat must be handled sequentially; different chats may be handled concurrently.
type Machine struct {
	mu            sync.Mutex
	conversations map[int64]*models.Conversation

	sender   Sender
	searcher Searcher
	store    Store
	currency string

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewMachine creates a state machine replying through sender and searching through searcher
func NewMachine(sender Sender, searcher Searcher, opts ...Option) *Machine {
	m := &Machine{
		conversations: make(map[int64]*models.Conversation),
		sender:        sender,
		searcher:      searcher,
		currency:      delivery.DefaultCurrency,
		shutdown:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads mirrored conversations from the store
func (m *Machine) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	convs, err := m.store.LoadConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conv := range convs {
		if conv.State.Terminal() {
			continue
		}
		m.conversations[conv.ChatID] = conv
	}
	slog.Info("restored conversations", "count", len(m.conversations))
	return nil
}

// Shutdown is closed once a user asks the whole bot to stop
func (m *Machine) Shutdown() <-chan struct{} {
	return m.shutdown
}

// State returns the chat's current state
func (m *Machine) State(chatID int64) (models.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[chatID]
	if !ok {
		return 0, false
	}
	return conv.State, true
}

// snapshot returns a copy of the chat's conversation
func (m *Machine) snapshot(chatID int64) (models.Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[chatID]
	if !ok {
		return models.Conversation{}, false
	}
	return *conv, true
}

// put stores conv as the chat's conversation and mirrors it
func (m *Machine) put(ctx context.Context, conv models.Conversation) {
	conv.UpdatedAt = time.Now()

	m.mu.Lock()
	m.conversations[conv.ChatID] = &conv
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	var err error
	if conv.State.Terminal() {
		err = m.store.DeleteConversation(ctx, conv.ChatID)
	} else {
		err = m.store.SaveConversation(ctx, &conv)
	}
	if err != nil {
		slog.Warn("failed to mirror conversation", "chat_id", conv.ChatID, "state", conv.State, "err", err)
	}
}

// finish resets the chat's dialog into a terminal state
func (m *Machine) finish(ctx context.Context, chatID int64, state models.State) {
	m.put(ctx, models.Conversation{ChatID: chatID, State: state})
}

// Handle processes one event. Failures never escape: they are logged and the conversation is cancelled.
func (m *Machine) Handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while handling message", "chat_id", ev.ChatID, "panic", r, "stack", string(debug.Stack()))
			m.fail(ctx, ev.ChatID)
		}
	}()

	if err := m.handle(ctx, ev); err != nil {
		if ctx.Err() != nil {
			slog.Info("message handling interrupted by shutdown", "chat_id", ev.ChatID, "err", err)
			return
		}
		slog.Error("failed to handle message", "chat_id", ev.ChatID, "command", ev.Command, "err", err)
		m.fail(ctx, ev.ChatID)
	}
}

func (m *Machine) fail(ctx context.Context, chatID int64) {
	m.finish(ctx, chatID, models.Cancelled)
	if err := m.sender.Send(ctx, chatID, MsgInternalError); err != nil {
		slog.Warn("failed to send error reply", "chat_id", chatID, "err", err)
	}
}

func (m *Machine) handle(ctx context.Context, ev Event) error {
	if ev.IsCommand() {
		return m.handleCommand(ctx, ev)
	}

	conv, ok := m.snapshot(ev.ChatID)
	if !ok || conv.State.Terminal() {
		return m.reply(ctx, ev.ChatID, MsgNotStarted)
	}

	switch conv.State {
	case models.AwaitingQuery:
		return m.acceptQuery(ctx, conv, ev.Text)
	case models.AwaitingPrice:
		return m.acceptPrice(ctx, conv, ev.Text)
	default:
		return fmt.Errorf("unexpected conversation state %v", conv.State)
	}
}

func (m *Machine) handleCommand(ctx context.Context, ev Event) error {
	switch ev.Command {
	case CommandStart:
		slog.Info("conversation started", "chat_id", ev.ChatID)
		m.put(ctx, *models.NewConversation(ev.ChatID))
		return m.reply(ctx, ev.ChatID, MsgStart)
	case CommandCancel:
		slog.Info("conversation cancelled", "chat_id", ev.ChatID)
		m.finish(ctx, ev.ChatID, models.Cancelled)
		return m.reply(ctx, ev.ChatID, MsgCancelled)
	case CommandStop:
		slog.Info("stop requested", "chat_id", ev.ChatID)
		err := m.reply(ctx, ev.ChatID, MsgStopped)
		m.shutdownOnce.Do(func() { close(m.shutdown) })
		return err
	case CommandHelp:
		return m.reply(ctx, ev.ChatID, MsgHelp)
	default:
		return m.reply(ctx, ev.ChatID, MsgUnknownCommand)
	}
}

func (m *Machine) acceptQuery(ctx context.Context, conv models.Conversation, text string) error {
	if strings.TrimSpace(text) == "" {
		return m.reply(ctx, conv.ChatID, MsgStart)
	}

	conv.Query = text
	conv.State = models.AwaitingPrice
	m.put(ctx, conv)
	return m.reply(ctx, conv.ChatID, MsgAskPrice)
}

func (m *Machine) acceptPrice(ctx context.Context, conv models.Conversation, text string) error {
	maxPrice, err := parsePrice(text)
	if err != nil {
		slog.Debug("rejected price input", "chat_id", conv.ChatID, "input", text, "err", err)
		return m.reply(ctx, conv.ChatID, MsgInvalidPrice)
	}

	conv.MaxPrice = &maxPrice
	m.put(ctx, conv)

	req, _ := conv.SearchRequest()
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid search request: %w", err)
	}

	if err := m.reply(ctx, conv.ChatID, fmt.Sprintf(MsgSearching, req.Query, delivery.FormatPrice(req.MaxPrice, m.currency))); err != nil {
		return err
	}

	slog.Info("running search", "chat_id", conv.ChatID, "query", req.Query, "max_price", req.MaxPrice)
	if err := m.searcher.Search(ctx, conv.ChatID, req); err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	m.finish(ctx, conv.ChatID, models.Done)
	return nil
}

func (m *Machine) reply(ctx context.Context, chatID int64, text string) error {
	if err := m.sender.Send(ctx, chatID, text); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

var errNegativePrice = errors.New("price is negative")

// parsePrice accepts a whole non-negative number surrounded by optional whitespace
func parsePrice(text string) (int, error) {
	price, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, err
	}
	if price < 0 {
		return 0, errNegativePrice
	}
	return price, nil
}
