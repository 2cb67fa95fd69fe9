package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"paisapro/cartworker/helpers"
)

// pricePatterns is an ordered priority list: explicit currency prefixes are
// tried before bare trailing-unit forms so unrelated numbers in a listing
// (weights, pack sizes) don't win.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Rs\.?\s*([\d,]+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)PKR\.?\s*([\d,]+(?:\.\d+)?)`),
	regexp.MustCompile(`₨\.?\s*([\d,]+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)\b([\d,]+(?:\.\d+)?)\s*Rs\b`),
	regexp.MustCompile(`(?i)\b([\d,]+(?:\.\d+)?)\s*PKR\b`),
}

// ExtractPrice pulls a numeric rupee amount out of free-form listing text.
// A miss is not an error: callers skip the listing.
func ExtractPrice(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}

	for _, pattern := range pricePatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
		if err != nil {
			continue
		}
		return value, true
	}
	return 0, false
}

// Converter converts source-currency prices to the normalized currency.
type Converter struct {
	rate float64
}

// NewConverter creates a converter with a fixed PKR per USD rate.
func NewConverter(rate float64) *Converter {
	return &Converter{rate: rate}
}

// ToUSD converts a PKR amount, rounded to two decimals.
func (c *Converter) ToUSD(pkr float64) float64 {
	return helpers.Round2(pkr / c.rate)
}

// Rate returns the configured exchange rate.
func (c *Converter) Rate() float64 {
	return c.rate
}
