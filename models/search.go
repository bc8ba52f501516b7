package models

import (
	"errors"
	"strings"
)

var (
	ErrEmptyQuery    = errors.New("search query is empty")
	ErrNegativePrice = errors.New("max price must not be negative")
)

// SearchRequest is the validated pair that triggers a pipeline run
type SearchRequest struct {
	Query    string
	MaxPrice int
}

// Validate checks the request invariants
func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	if r.MaxPrice < 0 {
		return ErrNegativePrice
	}
	return nil
}
