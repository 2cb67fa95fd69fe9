package scraper

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	"paisapro/cartworker/internal/renderer"
)

// Listing is a single normalized product offer returned by a source.
type Listing struct {
	Name     string  `json:"name"`
	PricePKR float64 `json:"price_pkr"`
	PriceUSD float64 `json:"price_usd"`
	URL      string  `json:"url"`
	Source   string  `json:"source"`
}

// Source is one retail site. The ProductScraper drives these capability
// methods through the fixed scrape lifecycle.
type Source interface {
	// Name returns the source key used for logging and result attribution.
	Name() string

	// SearchURL builds the search result URL for a query.
	SearchURL(query string) string

	// Setup runs source-specific pre-search steps (e.g. a delivery-area
	// modal). Every step is best-effort; Setup never fails the scrape.
	Setup(ctx context.Context, session renderer.Session) error

	// ExtractRaw pulls raw listing nodes from the rendered document.
	ExtractRaw(doc *goquery.Document) []*goquery.Selection

	// ParseRaw converts raw nodes into normalized listings, dropping nodes
	// without a usable name or price.
	ParseRaw(nodes []*goquery.Selection) []Listing
}

// Config tunes the scrape lifecycle shared by all sources.
type Config struct {
	Headless    bool
	SettleDelay time.Duration
	ScrollCount int
	ScrollDelay time.Duration
	MaxResults  int
	Timeout     time.Duration
	BlockTime   time.Duration
}

// SetupStep is one interactive pre-search action. Selectors is an ordered
// candidate list; the first one that takes wins.
type SetupStep struct {
	Action      string // "click", "type" or "press"
	Selectors   []string
	Text        string
	Key         string
	SettleAfter time.Duration
}

// SourceConfig describes a retail source declaratively: selector fallback
// chains for containers and fields, plus optional interactive setup.
type SourceConfig struct {
	Name               string
	HomeURL            string
	SearchURLFormat    string
	BaseURL            string
	ContainerSelectors []string
	NameSelectors      []string
	PriceSelectors     []string
	LinkSelector       string
	SetupSteps         []SetupStep
}
