package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"paisapro/cartworker/internal/renderer"
	"paisapro/cartworker/logger"
)

// RetailSource is a Source driven entirely by a SourceConfig: selector
// fallback chains for containers and fields, and optional interactive
// setup steps. Adding a fallback is a config change, not a code change.
type RetailSource struct {
	cfg       SourceConfig
	converter *Converter
	log       *logger.Logger
}

// NewRetailSource creates a config-driven source.
func NewRetailSource(cfg SourceConfig, converter *Converter) *RetailSource {
	return &RetailSource{
		cfg:       cfg,
		converter: converter,
		log:       logger.ForScraper(cfg.Name),
	}
}

// Name returns the source key.
func (r *RetailSource) Name() string {
	return r.cfg.Name
}

// SearchURL builds the search URL with the query escaped.
func (r *RetailSource) SearchURL(query string) string {
	return fmt.Sprintf(r.cfg.SearchURLFormat, url.QueryEscape(query))
}

// Setup loads the home page when the source needs one and walks the
// configured interactive steps. Each step hands its whole ordered candidate
// selector list to the session; the renderer uses the first selector
// present on the page and skips the step when none are.
func (r *RetailSource) Setup(ctx context.Context, session renderer.Session) error {
	if r.cfg.HomeURL == "" && len(r.cfg.SetupSteps) == 0 {
		return nil
	}

	if r.cfg.HomeURL != "" {
		if err := session.Navigate(ctx, r.cfg.HomeURL); err != nil {
			return err
		}
		session.Wait(5 * time.Second)
	}

	for _, step := range r.cfg.SetupSteps {
		var err error
		switch step.Action {
		case "click":
			err = session.TryClick(ctx, step.Selectors...)
		case "type":
			err = session.TryType(ctx, step.Text, step.Selectors...)
		case "press":
			err = session.TryPress(ctx, step.Key)
		}

		if err != nil {
			r.log.Warn().
				Err(err).
				Str("action", step.Action).
				Strs("selectors", step.Selectors).
				Msg("Setup step skipped")
		}
		if step.SettleAfter > 0 {
			session.Wait(step.SettleAfter)
		}
	}

	return nil
}

// ExtractRaw tries the container selector chain in order and returns the
// nodes from the first selector that matches anything.
func (r *RetailSource) ExtractRaw(doc *goquery.Document) []*goquery.Selection {
	for _, selector := range r.cfg.ContainerSelectors {
		selection := doc.Find(selector)
		if selection.Length() == 0 {
			continue
		}

		nodes := make([]*goquery.Selection, 0, selection.Length())
		selection.Each(func(_ int, s *goquery.Selection) {
			nodes = append(nodes, s)
		})

		r.log.Debug().
			Str("selector", selector).
			Int("count", len(nodes)).
			Msg("Container selector matched")
		return nodes
	}
	return nil
}

// ParseRaw converts raw nodes into listings. Nodes missing a name or price
// are dropped silently; duplicate names within one scrape are collapsed.
func (r *RetailSource) ParseRaw(nodes []*goquery.Selection) []Listing {
	listings := make([]Listing, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))

	for _, node := range nodes {
		name := r.extractName(node)
		if name == "" || seen[name] {
			continue
		}

		pricePKR, ok := r.extractPrice(node)
		if !ok {
			continue
		}

		seen[name] = true
		listings = append(listings, Listing{
			Name:     name,
			PricePKR: pricePKR,
			PriceUSD: r.converter.ToUSD(pricePKR),
			URL:      r.extractLink(node),
			Source:   r.cfg.Name,
		})
	}

	return listings
}

func (r *RetailSource) extractName(node *goquery.Selection) string {
	for _, selector := range r.cfg.NameSelectors {
		sel := node.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if title, exists := sel.Attr("title"); exists && strings.TrimSpace(title) != "" {
			return strings.TrimSpace(title)
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			return text
		}
	}
	return ""
}

func (r *RetailSource) extractPrice(node *goquery.Selection) (float64, bool) {
	for _, selector := range r.cfg.PriceSelectors {
		sel := node.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if price, ok := ExtractPrice(sel.Text()); ok {
			return price, true
		}
	}
	// Fall back to the node's whole text; sources shuffle price markup
	// more often than they drop the printed amount.
	return ExtractPrice(node.Text())
}

func (r *RetailSource) extractLink(node *goquery.Selection) string {
	if r.cfg.LinkSelector == "" {
		return "N/A"
	}

	sel := node.Find(r.cfg.LinkSelector).First()
	href, exists := sel.Attr("href")
	href = strings.TrimSpace(href)
	if !exists || href == "" {
		return "N/A"
	}

	switch {
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(r.cfg.BaseURL, "/") + href
	default:
		return href
	}
}
