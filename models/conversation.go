package models

import "time"

// State is the position of a conversation in the search dialog
type State int

const (
	AwaitingQuery State = iota
	AwaitingPrice
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case AwaitingQuery:
		return "awaiting_query"
	case AwaitingPrice:
		return "awaiting_price"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String
func ParseState(s string) (State, bool) {
	switch s {
	case "awaiting_query":
		return AwaitingQuery, true
	case "awaiting_price":
		return AwaitingPrice, true
	case "done":
		return Done, true
	case "cancelled":
		return Cancelled, true
	}
	return 0, false
}

// Terminal reports whether no further input is accepted in this state
func (s State) Terminal() bool {
	return s == Done || s == Cancelled
}

// Conversation tracks one chat's progress through the dialog
type Conversation struct {
	ChatID    int64
	State     State
	Query     string
	MaxPrice  *int
	UpdatedAt time.Time
}

// NewConversation creates a conversation waiting for a query
func NewConversation(chatID int64) *Conversation {
	return &Conversation{
		ChatID:    chatID,
		State:     AwaitingQuery,
		UpdatedAt: time.Now(),
	}
}

// SearchRequest returns the collected request once both fields are set
func (c *Conversation) SearchRequest() (SearchRequest, bool) {
	if c.Query == "" || c.MaxPrice == nil {
		return SearchRequest{}, false
	}
	return SearchRequest{Query: c.Query, MaxPrice: *c.MaxPrice}, true
}
