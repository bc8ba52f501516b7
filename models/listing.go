package models

// Placeholders shown when a listing field could not be extracted
const (
	LinkNotFound        = "link not found"
	DescriptionNotFound = "description not found"
	PriceNotFound       = "price not found"
)

// Listing represents one scraped classifieds item
type Listing struct {
	Rank        int     // 1-based position within the delivered batch, 0 until ranked
	URL         string  // Absolute link or LinkNotFound
	Description string  // Trimmed description or DescriptionNotFound
	Price       *int    // Nil when the item carries no price metadata
	Thumbnail   *string // First image source, nil when the item has no image
}

// HasPrice reports whether the listing carries a price
func (l Listing) HasPrice() bool {
	return l.Price != nil
}

// HasThumbnail reports whether the listing carries an image URL
func (l Listing) HasThumbnail() bool {
	return l.Thumbnail != nil && *l.Thumbnail != ""
}

// WithRank returns a copy of the listing ranked at position rank
func (l Listing) WithRank(rank int) Listing {
	l.Rank = rank
	return l
}
