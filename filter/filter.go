package filter

import (
	"iter"

	"avito-helper/models"
)

// DefaultLimit caps how many listings a single search delivers
const DefaultLimit = 20

// Filter applies the price ceiling and result cap to listings
type Filter struct {
	maxPrice int
	limit    int
}

// NewFilter creates a new Filter; a non-positive limit falls back to DefaultLimit
func NewFilter(maxPrice, limit int) *Filter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Filter{
		maxPrice: maxPrice,
		limit:    limit,
	}
}

// Apply consumes listings until limit of them pass the price check and ranks the survivors from 1.
// Listings after the limit are never pulled from the sequence.
func (f *Filter) Apply(listings iter.Seq[models.Listing]) []models.Listing {
	var filtered []models.Listing

	for listing := range listings {
		if !f.matches(listing) {
			continue
		}
		filtered = append(filtered, listing.WithRank(len(filtered)+1))
		if len(filtered) == f.limit {
			break
		}
	}

	return filtered
}

// matches checks the price ceiling.
// A listing without a price can't be compared, so it is kept.
func (f *Filter) matches(listing models.Listing) bool {
	if listing.Price == nil {
		return true
	}
	return *listing.Price <= f.maxPrice
}
