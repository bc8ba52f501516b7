package parser

import (
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"avito-helper/models"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the search results markup
const (
	ItemSelector        = `div[data-marker="item"]`
	linkSelector        = "a"
	descriptionSelector = `meta[itemprop="description"]`
	priceSelector       = `meta[itemprop="price"]`
	imageSelector       = "img"
)

// Parser extracts listing data from HTML
type Parser struct {
	baseURL *url.URL
}

// NewParser creates a Parser resolving relative links against baseURL
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	return &Parser{baseURL: u}, nil
}

// Items is the ordered set of listing nodes found on a page.
// Extraction happens while ranging, and All may be ranged any number of times.
type Items struct {
	selection *goquery.Selection
	parser    *Parser
}

// ParseHTML selects every listing node in htmlContent
func (p *Parser) ParseHTML(htmlContent string) (*Items, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &Items{
		selection: doc.Find(ItemSelector),
		parser:    p,
	}, nil
}

// Len returns the number of listing nodes
func (it *Items) Len() int {
	return it.selection.Length()
}

// All yields one unranked listing per node in document order
func (it *Items) All() iter.Seq[models.Listing] {
	return func(yield func(models.Listing) bool) {
		for _, s := range it.selection.EachIter() {
			if !yield(it.parser.extractListing(s)) {
				return
			}
		}
	}
}

// extractListing builds a listing from one item node; missing fields fall back to placeholders
func (p *Parser) extractListing(s *goquery.Selection) models.Listing {
	return models.Listing{
		URL:         p.extractLink(s),
		Description: extractDescription(s),
		Price:       extractPrice(s),
		Thumbnail:   extractImage(s),
	}
}

func (p *Parser) extractLink(s *goquery.Selection) string {
	href, ok := s.Find(linkSelector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return models.LinkNotFound
	}

	ref, err := url.Parse(href)
	if err != nil {
		slog.Debug("unparseable listing href", "href", href, "err", err)
		return models.LinkNotFound
	}
	return p.baseURL.ResolveReference(ref).String()
}

func extractDescription(s *goquery.Selection) string {
	content, ok := s.Find(descriptionSelector).First().Attr("content")
	if !ok {
		return models.DescriptionNotFound
	}
	return strings.TrimSpace(content)
}

func extractPrice(s *goquery.Selection) *int {
	content, ok := s.Find(priceSelector).First().Attr("content")
	if !ok {
		return nil
	}

	price, err := strconv.Atoi(strings.TrimSpace(content))
	if err != nil {
		slog.Warn("ignoring unparseable price", "content", content, "err", err)
		return nil
	}
	return &price
}

func extractImage(s *goquery.Selection) *string {
	src, ok := s.Find(imageSelector).First().Attr("src")
	if !ok || src == "" {
		return nil
	}
	return &src
}
