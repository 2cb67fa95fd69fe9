package cart

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"paisapro/cartworker/helpers"
	"paisapro/cartworker/internal/scraper"
	"paisapro/cartworker/logger"
	pkgerr "paisapro/cartworker/pkg/errors"
	"paisapro/cartworker/services/compare"
	"paisapro/cartworker/services/publisher"
)

// Finder abstracts the price comparison service.
type Finder interface {
	Find(ctx context.Context, query string, opts compare.Options) (compare.Result, error)
}

// ServiceConfig carries the cart service tuning knobs.
type ServiceConfig struct {
	// TopN is the number of recommendations cached per item.
	TopN int
	// FetchTopN is how many listings to request from the comparison layer;
	// the full fetch feeds price history, only the head is cached.
	FetchTopN int
}

// Service implements shopping list management and price optimization on top
// of the repository and the comparison layer.
type Service struct {
	repo   Repository
	finder Finder
	policy *StalenessPolicy
	pub    publisher.Publisher
	cfg    ServiceConfig
	log    *logger.Logger

	// itemLocks serializes refreshes per item so a scheduler run and a
	// user-triggered refresh cannot double-scrape the same product.
	itemLocks sync.Map
}

// NewService creates a cart service.
func NewService(repo Repository, finder Finder, policy *StalenessPolicy, pub publisher.Publisher, cfg ServiceConfig) *Service {
	if cfg.TopN < 1 {
		cfg.TopN = 3
	}
	if cfg.FetchTopN < cfg.TopN {
		cfg.FetchTopN = cfg.TopN
	}
	if pub == nil {
		pub = publisher.NoopPublisher{}
	}
	return &Service{
		repo:   repo,
		finder: finder,
		policy: policy,
		pub:    pub,
		cfg:    cfg,
		log:    logger.ForCart(),
	}
}

func (s *Service) lockFor(itemID int64) *sync.Mutex {
	mu, _ := s.itemLocks.LoadOrStore(itemID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateList creates a named list with its initial items and warms the
// price cache for each of them. Pricing failures leave items uncached; the
// optimized view fetches on demand later.
func (s *Service) CreateList(ctx context.Context, userID, name string, items []NewItem) (ShoppingList, error) {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return ShoppingList{}, pkgerr.NewValidation("user id and list name must not be empty")
	}

	list, err := s.repo.CreateList(ctx, userID, name)
	if err != nil {
		return ShoppingList{}, err
	}

	for _, in := range items {
		product := strings.TrimSpace(in.ProductName)
		if product == "" {
			continue
		}
		qty := in.Quantity
		if qty < 1 {
			qty = 1
		}
		item, err := s.repo.InsertItem(ctx, list.ID, product, qty)
		if err != nil {
			return ShoppingList{}, err
		}
		if rerr := s.RefreshItem(ctx, item.ID); rerr != nil {
			s.log.Warn().Err(rerr).Str("product", product).Msg("Initial price fetch failed")
		}
	}

	s.log.Info().
		Int64("list_id", list.ID).
		Str("user_id", userID).
		Int("items", len(items)).
		Msg("List created")
	return list, nil
}

// AddItem adds a product to an existing list and warms its price cache.
func (s *Service) AddItem(ctx context.Context, listID int64, in NewItem) (ListItem, error) {
	product := strings.TrimSpace(in.ProductName)
	if product == "" {
		return ListItem{}, pkgerr.NewValidation("product name must not be empty")
	}
	qty := in.Quantity
	if qty < 1 {
		qty = 1
	}

	if _, err := s.repo.GetList(ctx, listID); err != nil {
		return ListItem{}, err
	}
	item, err := s.repo.InsertItem(ctx, listID, product, qty)
	if err != nil {
		return ListItem{}, err
	}
	if rerr := s.RefreshItem(ctx, item.ID); rerr != nil {
		s.log.Warn().Err(rerr).Str("product", product).Msg("Initial price fetch failed")
	}
	return item, nil
}

// UpdateItemQuantity changes an item's quantity.
func (s *Service) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	if quantity < 1 {
		return pkgerr.NewValidation("quantity must be at least 1")
	}
	return s.repo.UpdateItemQuantity(ctx, itemID, quantity)
}

// RemoveItem deletes an item from its list.
func (s *Service) RemoveItem(ctx context.Context, itemID int64) error {
	return s.repo.DeleteItem(ctx, itemID)
}

// MarkPurchased marks an item purchased. Purchased items keep their cached
// recommendations but drop out of staleness scans.
func (s *Service) MarkPurchased(ctx context.Context, itemID int64) error {
	return s.repo.UpdateItemStatus(ctx, itemID, StatusPurchased)
}

// UserLists returns summaries of the user's lists.
func (s *Service) UserLists(ctx context.Context, userID string) ([]ListSummary, error) {
	return s.repo.ListsForUser(ctx, userID)
}

// DeleteList removes a list after verifying ownership. A wrong user id is
// indistinguishable from a missing list.
func (s *Service) DeleteList(ctx context.Context, listID int64, userID string) error {
	list, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return err
	}
	if list.UserID != userID {
		return pkgerr.NewNotFound("list not found for user")
	}
	return s.repo.DeleteList(ctx, listID)
}

// RefreshItem scrapes current prices for one item and replaces its cached
// recommendation set. An empty scrape result leaves the previous set in
// place so a market outage never erases known prices.
func (s *Service) RefreshItem(ctx context.Context, itemID int64) error {
	mu := s.lockFor(itemID)
	mu.Lock()
	defer mu.Unlock()

	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	result, err := s.finder.Find(ctx, item.ProductName, compare.Options{
		TopN:        s.cfg.FetchTopN,
		SortByPrice: true,
		Parallel:    true,
	})
	if err != nil {
		return err
	}
	if len(result.Listings) == 0 {
		return pkgerr.NewSource("", "no listings found for "+item.ProductName, nil)
	}

	return s.cacheRecommendations(ctx, item, result.Listings)
}

// cacheRecommendations installs the top-N cheapest listings as the item's
// current set, appends every observation to history, and emits a price
// update event.
func (s *Service) cacheRecommendations(ctx context.Context, item ListItem, listings []scraper.Listing) error {
	sorted := make([]scraper.Listing, len(listings))
	copy(sorted, listings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PricePKR < sorted[j].PricePKR
	})

	now := s.policy.Now().UTC()
	expires := s.policy.ExpiryFrom(now)

	top := sorted
	if len(top) > s.cfg.TopN {
		top = top[:s.cfg.TopN]
	}
	recs := make([]Recommendation, 0, len(top))
	for i, l := range top {
		recs = append(recs, Recommendation{
			ItemID:      item.ID,
			ProductName: item.ProductName,
			Source:      l.Source,
			PricePKR:    l.PricePKR,
			PriceUSD:    l.PriceUSD,
			URL:         l.URL,
			Rank:        i + 1,
			IsCurrent:   true,
			CreatedAt:   now,
			ExpiresAt:   expires,
		})
	}
	if err := s.repo.ReplaceCurrentRecommendations(ctx, item.ID, recs); err != nil {
		return err
	}

	history := make([]HistoryRecord, 0, len(sorted))
	for _, l := range sorted {
		history = append(history, HistoryRecord{
			ProductName: item.ProductName,
			Source:      l.Source,
			PricePKR:    l.PricePKR,
			PriceUSD:    l.PriceUSD,
			RecordedAt:  now,
		})
	}
	if err := s.repo.AppendHistory(ctx, history); err != nil {
		return err
	}

	s.publishUpdate(item, recs, now)

	s.log.Info().
		Int64("item_id", item.ID).
		Str("product", item.ProductName).
		Int("cached", len(recs)).
		Int("observed", len(history)).
		Msg("Recommendations cached")
	return nil
}

func (s *Service) publishUpdate(item ListItem, recs []Recommendation, now time.Time) {
	if len(recs) == 0 {
		return
	}
	event := publisher.PriceUpdate{
		ItemID:      item.ID,
		ProductName: item.ProductName,
		Source:      recs[0].Source,
		CheapestPKR: recs[0].PricePKR,
		CheapestUSD: recs[0].PriceUSD,
		Options:     len(recs),
		CachedAt:    now,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal price update")
		return
	}
	if err := s.pub.Publish(item.ProductName, payload); err != nil {
		s.log.Warn().Err(err).Str("product", item.ProductName).Msg("Failed to publish price update")
	}
}

// OptimizedCart assembles the best-price view of a list. Items with no
// current recommendations are fetched on demand; with forceRefresh, items
// whose cached set has gone stale are re-fetched too.
func (s *Service) OptimizedCart(ctx context.Context, listID int64, forceRefresh bool) (OptimizedCart, error) {
	list, err := s.repo.GetList(ctx, listID)
	if err != nil {
		return OptimizedCart{}, err
	}
	items, err := s.repo.ListItems(ctx, listID)
	if err != nil {
		return OptimizedCart{}, err
	}

	out := OptimizedCart{
		ListID:      list.ID,
		ListName:    list.Name,
		UserID:      list.UserID,
		Items:       make([]OptimizedItem, 0, len(items)),
		OptimizedAt: s.policy.Now().UTC(),
	}

	var newest time.Time
	for _, item := range items {
		recs, err := s.repo.CurrentRecommendations(ctx, item.ID)
		if err != nil {
			return OptimizedCart{}, err
		}

		needsFetch := len(recs) == 0
		if forceRefresh && len(recs) > 0 && !s.policy.IsFresh(recs[0].CreatedAt) {
			needsFetch = true
		}
		if needsFetch && item.Status == StatusPending {
			if rerr := s.RefreshItem(ctx, item.ID); rerr != nil {
				s.log.Warn().Err(rerr).Str("product", item.ProductName).Msg("On-demand price fetch failed")
			} else if recs, err = s.repo.CurrentRecommendations(ctx, item.ID); err != nil {
				return OptimizedCart{}, err
			}
		}

		if len(recs) == 0 {
			out.MissingPrices = append(out.MissingPrices, item.ProductName)
			continue
		}

		view := buildOptimizedItem(item, recs, s.policy)
		if recs[0].CreatedAt.After(newest) {
			newest = recs[0].CreatedAt
		}
		out.Items = append(out.Items, view)
		out.TotalCartCostPKR += view.TotalCostPKR
		out.TotalCartCostUSD += view.TotalCostUSD
		out.TotalPotentialSavingsPKR += view.PotentialSavingsPKR
	}

	out.TotalCartCostPKR = helpers.Round2(out.TotalCartCostPKR)
	out.TotalCartCostUSD = helpers.Round2(out.TotalCartCostUSD)
	out.TotalPotentialSavingsPKR = helpers.Round2(out.TotalPotentialSavingsPKR)
	if !newest.IsZero() {
		out.PricesLastUpdated = &newest
	}
	return out, nil
}

// buildOptimizedItem computes the per-item view. Savings compare the
// cheapest option against the second-cheapest, scaled by quantity.
func buildOptimizedItem(item ListItem, recs []Recommendation, policy *StalenessPolicy) OptimizedItem {
	views := make([]RecommendationView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, RecommendationView{
			Recommendation: rec,
			IsFresh:        policy.IsFresh(rec.CreatedAt),
		})
	}

	qty := float64(item.Quantity)
	out := OptimizedItem{
		ItemID:          item.ID,
		ProductName:     item.ProductName,
		Quantity:        item.Quantity,
		Status:          item.Status,
		Recommendations: views,
		Cheapest:        views[0],
		TotalCostPKR:    helpers.Round2(recs[0].PricePKR * qty),
		TotalCostUSD:    helpers.Round2(recs[0].PriceUSD * qty),
	}
	if len(recs) > 1 {
		out.PotentialSavingsPKR = helpers.Round2((recs[1].PricePKR - recs[0].PricePKR) * qty)
	}
	return out
}

// PriceHistory returns the product's observations from the last days days.
func (s *Service) PriceHistory(ctx context.Context, productName string, days int) ([]HistoryRecord, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, pkgerr.NewValidation("product name must not be empty")
	}
	if days < 1 {
		days = 30
	}
	since := s.policy.Now().UTC().AddDate(0, 0, -days)
	return s.repo.History(ctx, productName, since)
}

// StaleItems returns pending items due for a refresh under the policy.
func (s *Service) StaleItems(ctx context.Context) ([]StaleItem, error) {
	cutoff := s.policy.Now().Add(-s.policy.FreshFor)
	return s.repo.StaleItems(ctx, cutoff)
}

// PendingItems returns a list's pending items; the scheduler's per-list
// refresh path.
func (s *Service) PendingItems(ctx context.Context, listID int64) ([]ListItem, error) {
	if _, err := s.repo.GetList(ctx, listID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, listID)
	if err != nil {
		return nil, err
	}
	pending := items[:0]
	for _, item := range items {
		if item.Status == StatusPending {
			pending = append(pending, item)
		}
	}
	return pending, nil
}

// Ping verifies the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
