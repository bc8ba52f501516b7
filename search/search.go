// Package search runs one search request end to end: fetch, extract, filter and deliver.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"avito-helper/delivery"
	"avito-helper/fetcher"
	"avito-helper/filter"
	"avito-helper/models"
	"avito-helper/parser"

	"github.com/google/uuid"
)

// Replies for outcomes that end a search without results
const (
	MsgFetchError = "Error fetching page: %s"
	MsgNoResults  = "No listings found matching your query and price range."
)

// Service wires the pipeline stages together
type Service struct {
	fetcher  fetcher.Fetcher
	parser   *parser.Parser
	pipeline *delivery.Pipeline
	limit    int
}

// NewService creates a search service delivering at most limit listings per run
func NewService(f fetcher.Fetcher, p *parser.Parser, pipeline *delivery.Pipeline, limit int) *Service {
	return &Service{
		fetcher:  f,
		parser:   p,
		pipeline: pipeline,
		limit:    limit,
	}
}

// Search fetches the results page for req and delivers the matching listings to chatID.
// Fetch failures and empty results are reported to the chat and are not returned as errors.
func (s *Service) Search(ctx context.Context, chatID int64, req models.SearchRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	log := slog.With("run_id", uuid.NewString(), "chat_id", chatID)
	log.Info("starting search", "query", req.Query, "max_price", req.MaxPrice)

	html, err := s.fetcher.Fetch(ctx, req.Query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var fetchErr *fetcher.FetchError
		if errors.As(err, &fetchErr) {
			log.Error("failed to fetch search page", "err", err)
			return s.pipeline.SendWithRetry(ctx, chatID, fmt.Sprintf(MsgFetchError, fetchErr.Reason()))
		}
		return fmt.Errorf("fetch failed: %w", err)
	}

	items, err := s.parser.ParseHTML(html)
	if err != nil {
		return fmt.Errorf("failed to parse search page: %w", err)
	}
	log.Info("found listings", "count", items.Len())

	listings := filter.NewFilter(req.MaxPrice, s.limit).Apply(items.All())
	if len(listings) == 0 {
		log.Info("no listings matched")
		return s.pipeline.SendWithRetry(ctx, chatID, MsgNoResults)
	}

	report, err := s.pipeline.Deliver(ctx, chatID, listings)
	log.Info("search delivered", "listings", len(listings), "sent", report.Sent, "skipped", report.Skipped, "failed", report.Failed)
	return err
}
