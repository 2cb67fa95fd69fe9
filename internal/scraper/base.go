package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"paisapro/cartworker/helpers"
	"paisapro/cartworker/internal/renderer"
	"paisapro/cartworker/logger"
	pkgerr "paisapro/cartworker/pkg/errors"
	"paisapro/cartworker/services/cache"
)

// ProductScraper drives a Source through the fixed scrape lifecycle:
// acquire session, setup, navigate, settle, scroll, extract, parse, sort.
// The session is released on every exit path, panics included.
type ProductScraper struct {
	source   Source
	renderer renderer.Renderer
	cooldown cache.CacheService
	cfg      Config
	log      *logger.Logger
}

// NewProductScraper creates a scraper for one source.
func NewProductScraper(source Source, rend renderer.Renderer, cooldown cache.CacheService, cfg Config) *ProductScraper {
	return &ProductScraper{
		source:   source,
		renderer: rend,
		cooldown: cooldown,
		cfg:      cfg,
		log:      logger.ForScraper(source.Name()),
	}
}

// Source returns the source key this scraper serves.
func (p *ProductScraper) Source() string {
	return p.source.Name()
}

func cooldownKey(source string) string {
	return "cooldown:" + source
}

// Run executes one scrape for the query. Errors identify the source; the
// comparison layer converts them into an empty contribution.
func (p *ProductScraper) Run(ctx context.Context, query string, sortByPrice bool) (listings []Listing, err error) {
	name := p.source.Name()

	if p.cooldown != nil {
		if _, cerr := p.cooldown.Get(cooldownKey(name)); cerr == nil {
			return nil, pkgerr.NewSource(name, "source is cooling down after a recent failure", nil)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	session, err := p.renderer.Open(ctx, p.cfg.Headless)
	if err != nil {
		return nil, pkgerr.NewSource(name, "failed to open rendering session", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			p.log.Warn().Err(cerr).Msg("Failed to close rendering session")
		}
		if r := recover(); r != nil {
			listings = nil
			err = pkgerr.NewSource(name, fmt.Sprintf("scrape panicked: %v", r), nil)
		}
	}()

	if serr := p.source.Setup(ctx, session); serr != nil {
		// Setup is best-effort by contract; log and continue.
		p.log.Warn().Err(serr).Msg("Source setup incomplete")
	}

	if nerr := session.Navigate(ctx, p.source.SearchURL(query)); nerr != nil {
		return nil, pkgerr.NewSource(name, "navigation failed", nerr)
	}
	session.Wait(p.cfg.SettleDelay)

	for i := 0; i < p.cfg.ScrollCount; i++ {
		if serr := session.ScrollToBottom(ctx); serr != nil {
			p.log.Debug().Err(serr).Int("scroll", i).Msg("Scroll failed")
			break
		}
		session.Wait(p.cfg.ScrollDelay)
	}

	doc, derr := session.Content(ctx)
	if derr != nil {
		if errors.Is(derr, helpers.ErrRateLimited) && p.cooldown != nil && p.cfg.BlockTime > 0 {
			if serr := p.cooldown.Set(cooldownKey(name), []byte("1"), p.cfg.BlockTime); serr != nil {
				p.log.Warn().Err(serr).Msg("Failed to set cooldown")
			}
		}
		return nil, pkgerr.NewSource(name, "failed to render page", derr)
	}

	nodes := p.source.ExtractRaw(doc)
	if len(nodes) > p.cfg.MaxResults {
		nodes = nodes[:p.cfg.MaxResults]
	}

	listings = p.source.ParseRaw(nodes)

	if sortByPrice {
		sort.SliceStable(listings, func(i, j int) bool {
			return listings[i].PricePKR < listings[j].PricePKR
		})
	}

	p.log.Debug().
		Int("raw_nodes", len(nodes)).
		Int("listings", len(listings)).
		Str("query", query).
		Msg("Scrape completed")

	return listings, nil
}
