package delivery

import (
	"fmt"
	"strings"

	"avito-helper/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is appended to formatted prices
const DefaultCurrency = "₽"

var groupingPrinter = message.NewPrinter(language.English)

// FormatPrice groups thousands with spaces and appends the currency, e.g. "40 000 ₽"
func FormatPrice(price int, currency string) string {
	grouped := strings.ReplaceAll(groupingPrinter.Sprintf("%d", price), ",", " ")
	if currency == "" {
		return grouped
	}
	return grouped + " " + currency
}

// FormatListing renders the text message for one ranked listing
func FormatListing(l models.Listing, currency string) string {
	price := models.PriceNotFound
	if l.Price != nil {
		price = FormatPrice(*l.Price, currency)
	}

	return fmt.Sprintf("%d) Link: %s\nDescription: %s\nPrice: %s",
		l.Rank, l.URL, l.Description, price)
}
