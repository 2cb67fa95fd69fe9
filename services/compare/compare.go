package compare

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"paisapro/cartworker/internal/scraper"
	"paisapro/cartworker/logger"
	pkgerr "paisapro/cartworker/pkg/errors"
)

// Scraper runs one source's scrape lifecycle for a query.
type Scraper interface {
	Source() string
	Run(ctx context.Context, query string, sortByPrice bool) ([]scraper.Listing, error)
}

// ScraperFactory builds a Scraper for a source key.
type ScraperFactory func(source string) (Scraper, error)

// Options controls one Find call.
type Options struct {
	Sources           []string
	TopN              int
	SortByPrice       bool
	EqualDistribution bool
	Parallel          bool
}

// Result carries the composed listings plus the measured wall-clock time.
// Elapsed is observability only, not part of the correctness contract.
type Result struct {
	Listings []scraper.Listing
	Elapsed  time.Duration
}

// Service fans a query out across retail sources and composes the ranked
// result. A single source's failure degrades the result set; it never
// fails the aggregation.
type Service struct {
	factory        ScraperFactory
	defaultSources func() []string
	maxWorkers     int
	log            *logger.Logger
}

// New creates a comparison service. defaultSources supplies the source set
// when a caller doesn't name any; maxWorkers bounds parallel scrapes.
func New(factory ScraperFactory, defaultSources func() []string, maxWorkers int) *Service {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Service{
		factory:        factory,
		defaultSources: defaultSources,
		maxWorkers:     maxWorkers,
		log:            logger.ForCart().WithField("component", "compare"),
	}
}

// Find scrapes the requested sources for the query and returns the composed
// top-N listings. Parallel and sequential modes produce the same logical
// result set; results are always composed in requested source order so the
// ranking is deterministic regardless of completion order.
func (s *Service) Find(ctx context.Context, query string, opts Options) (Result, error) {
	started := time.Now()

	if strings.TrimSpace(query) == "" {
		return Result{}, pkgerr.NewValidation("query must not be empty")
	}

	sources := opts.Sources
	if len(sources) == 0 {
		sources = s.defaultSources()
	}

	s.log.Info().
		Str("query", query).
		Strs("sources", sources).
		Bool("parallel", opts.Parallel).
		Msg("Searching sources")

	bySource := s.scrapeAll(ctx, query, sources, opts)

	listings := compose(sources, bySource, opts)
	elapsed := time.Since(started)

	s.log.Info().
		Str("query", query).
		Int("count", len(listings)).
		Dur("elapsed", elapsed).
		Msg("Search completed")

	return Result{Listings: listings, Elapsed: elapsed}, nil
}

// scrapeAll runs every source and collects per-source results. Failures
// are logged and contribute an empty slice.
func (s *Service) scrapeAll(ctx context.Context, query string, sources []string, opts Options) map[string][]scraper.Listing {
	bySource := make(map[string][]scraper.Listing, len(sources))

	if !opts.Parallel {
		for _, source := range sources {
			bySource[source] = s.scrapeOne(ctx, source, query, opts.SortByPrice)
		}
		return bySource
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.maxWorkers)
	)
	for _, source := range sources {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			listings := s.scrapeOne(ctx, source, query, opts.SortByPrice)

			mu.Lock()
			bySource[source] = listings
			mu.Unlock()
		}(source)
	}
	wg.Wait()

	return bySource
}

func (s *Service) scrapeOne(ctx context.Context, source, query string, sortByPrice bool) []scraper.Listing {
	sc, err := s.factory(source)
	if err != nil {
		s.log.Error().Err(err).Str("source", source).Msg("Failed to create scraper")
		return nil
	}

	listings, err := sc.Run(ctx, query, sortByPrice)
	if err != nil {
		s.log.Error().Err(err).Str("source", source).Msg("Source scrape failed")
		return nil
	}

	s.log.Debug().
		Str("source", source).
		Int("count", len(listings)).
		Msg("Source scrape finished")
	return listings
}

// compose combines per-source results under one of two mutually exclusive
// policies: price-sorted merge, or equal distribution across the sources
// that returned anything.
func compose(sources []string, bySource map[string][]scraper.Listing, opts Options) []scraper.Listing {
	if opts.EqualDistribution && !opts.SortByPrice {
		return composeEqual(sources, bySource, opts.TopN)
	}

	merged := make([]scraper.Listing, 0)
	for _, source := range sources {
		merged = append(merged, bySource[source]...)
	}

	if opts.SortByPrice {
		// Stable sort keeps source iteration order for price ties.
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].PricePKR < merged[j].PricePKR
		})
	}

	if opts.TopN > 0 && len(merged) > opts.TopN {
		merged = merged[:opts.TopN]
	}
	return merged
}

// composeEqual splits topN as evenly as possible across the sources that
// returned results; the remainder goes to the first sources in request
// order. Each source's internal ordering is preserved.
func composeEqual(sources []string, bySource map[string][]scraper.Listing, topN int) []scraper.Listing {
	contributing := make([]string, 0, len(sources))
	for _, source := range sources {
		if len(bySource[source]) > 0 {
			contributing = append(contributing, source)
		}
	}
	if len(contributing) == 0 {
		return nil
	}
	if topN <= 0 {
		topN = len(contributing)
	}

	perSource := topN / len(contributing)
	remainder := topN % len(contributing)

	result := make([]scraper.Listing, 0, topN)
	for i, source := range contributing {
		count := perSource
		if i < remainder {
			count++
		}
		listings := bySource[source]
		if count > len(listings) {
			count = len(listings)
		}
		result = append(result, listings[:count]...)
	}
	return result
}
