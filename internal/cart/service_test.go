package cart

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paisapro/cartworker/internal/scraper"
	pkgerr "paisapro/cartworker/pkg/errors"
	"paisapro/cartworker/services/compare"
	"paisapro/cartworker/services/publisher"
)

type fakeFinder struct {
	mu       sync.Mutex
	listings map[string][]scraper.Listing
	calls    map[string]int
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{
		listings: make(map[string][]scraper.Listing),
		calls:    make(map[string]int),
	}
}

func (f *fakeFinder) Find(_ context.Context, query string, opts compare.Options) (compare.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[query]++

	out := make([]scraper.Listing, len(f.listings[query]))
	copy(out, f.listings[query])
	if opts.SortByPrice {
		sort.SliceStable(out, func(i, j int) bool { return out[i].PricePKR < out[j].PricePKR })
	}
	if opts.TopN > 0 && len(out) > opts.TopN {
		out = out[:opts.TopN]
	}
	return compare.Result{Listings: out}, nil
}

func (f *fakeFinder) callCount(query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[query]
}

type capturePublisher struct {
	publisher.NoopPublisher
	mu     sync.Mutex
	events [][]byte
}

func (c *capturePublisher) Publish(_ string, message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, message)
	return nil
}

func offer(name, source string, pkr, usd float64) scraper.Listing {
	return scraper.Listing{Name: name, Source: source, PricePKR: pkr, PriceUSD: usd, URL: "N/A"}
}

type serviceFixture struct {
	svc    *Service
	repo   *SQLiteRepository
	finder *fakeFinder
	pub    *capturePublisher
	now    *time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	repo := newTestRepo(t)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := NewStalenessPolicy(6 * time.Hour).WithClock(func() time.Time { return now })

	finder := newFakeFinder()
	pub := &capturePublisher{}
	svc := NewService(repo, finder, policy, pub, ServiceConfig{TopN: 3, FetchTopN: 20})

	f := &serviceFixture{svc: svc, repo: repo, finder: finder, pub: pub, now: &now}
	policy.WithClock(func() time.Time { return *f.now })
	return f
}

func (f *serviceFixture) stockMarket() {
	f.finder.listings["rice 5kg"] = []scraper.Listing{
		offer("Rice Premium", "daraz", 2600, 9.29),
		offer("Rice Budget", "daraz", 2000, 7.14),
		offer("Rice Mid", "alfatah", 2150, 7.68),
		offer("Rice Alt", "imtiaz", 2300, 8.21),
	}
	f.finder.listings["cooking oil 3L"] = []scraper.Listing{
		offer("Oil 3L", "alfatah", 1500, 5.36),
	}
}

func TestCreateListWarmsCache(t *testing.T) {
	f := newServiceFixture(t)
	f.stockMarket()
	ctx := context.Background()

	list, err := f.svc.CreateList(ctx, "u1", "weekly", []NewItem{
		{ProductName: "rice 5kg", Quantity: 2},
		{ProductName: "cooking oil 3L", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.finder.callCount("rice 5kg"))
	assert.Equal(t, 1, f.finder.callCount("cooking oil 3L"))

	// The optimized view serves from cache; no re-scrape.
	optimized, err := f.svc.OptimizedCart(ctx, list.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.finder.callCount("rice 5kg"))
	require.Len(t, optimized.Items, 2)
	assert.Empty(t, optimized.MissingPrices)
}

func TestCreateListDuplicate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateList(ctx, "u1", "weekly", nil)
	require.NoError(t, err)
	_, err = f.svc.CreateList(ctx, "u1", "weekly", nil)
	assert.True(t, pkgerr.IsDuplicate(err))
}

func TestCreateListValidation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.CreateList(context.Background(), "", "weekly", nil)
	assert.True(t, pkgerr.IsType(err, pkgerr.ErrorTypeValidation))
	_, err = f.svc.CreateList(context.Background(), "u1", "  ", nil)
	assert.True(t, pkgerr.IsType(err, pkgerr.ErrorTypeValidation))
}

func TestRefreshItemCachesTopThree(t *testing.T) {
	f := newServiceFixture(t)
	f.stockMarket()
	ctx := context.Background()

	list, err := f.svc.CreateList(ctx, "u1", "weekly", nil)
	require.NoError(t, err)
	item, err := f.repo.InsertItem(ctx, list.ID, "rice 5kg", 2)
	require.NoError(t, err)

	require.NoError(t, f.svc.RefreshItem(ctx, item.ID))

	recs, err := f.repo.CurrentRecommendations(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// Ranked 1..3 by ascending price; the fourth observation feeds history
	// only.
	assert.Equal(t, []int{1, 2, 3}, []int{recs[0].Rank, recs[1].Rank, recs[2].Rank})
	assert.Equal(t, 2000.0, recs[0].PricePKR)
	assert.Equal(t, "daraz", recs[0].Source)
	assert.Equal(t, 2150.0, recs[1].PricePKR)
	assert.Equal(t, 2300.0, recs[2].PricePKR)
	assert.True(t, recs[0].ExpiresAt.Equal(f.now.Add(6*time.Hour)))

	history, err := f.repo.History(ctx, "rice 5kg", f.now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, history, 4)

	f.pub.mu.Lock()
	assert.Len(t, f.pub.events, 1)
	f.pub.mu.Unlock()
}

func TestRefreshItemReplacesCurrentSet(t *testing.T) {
	f := newServiceFixture(t)
	f.stockMarket()
	ctx := context.Background()

	list, err := f.svc.CreateList(ctx, "u1", "weekly", nil)
	require.NoError(t, err)
	item, err := f.repo.InsertItem(ctx, list.ID, "rice 5kg", 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.RefreshItem(ctx, item.ID))
	require.NoError(t, f.svc.RefreshItem(ctx, item.ID))

	// Still exactly one current set of three.
	recs, err := f.repo.CurrentRecommendations(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	// Both refreshes appended to history.
	history, err := f.repo.History(ctx, "rice 5kg", f.now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, history, 8)
}

func TestRefreshItemEmptyResultRetainsCache(t *testing.T) {
	f := newServiceFixture(t)
	f.stockMarket()
	ctx := context.Background()

	list, err := f.svc.CreateList(ctx, "u1", "weekly", nil)
	require.NoError(t, err)
	item, err := f.repo.InsertItem(ctx, list.ID, "rice 5kg", 1)
	require.NoError(t, err)
	require.NoError(t, f.svc.RefreshItem(ctx, item.ID))

	// Market goes dark.
	f.finder.listings["rice 5kg"] = nil
	err = f.svc.RefreshItem(ctx, item.ID)
	assert.True(t, pkgerr.IsType(err, pkgerr.ErrorTypeSource))

	recs, err := f.repo.CurrentRecommendations(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestOptimizedCartTotals(t *testing.T) {
	f := newServiceFixture(t)
	f.stockMarket()
	ctx := context.Background()

	list, err := f.svc.CreateList(ctx, "u1", "weekly", []NewItem{
		{ProductName: "rice 5kg", Quantity: 2},
		{ProductName: "cooking oil 3L", Quantity: 1},
	})
	require.NoError(t, err)

	optimized, err := f.svc.OptimizedCart(ctx, list.ID, false)
	require.NoError(t, err)
	require.Len(t, optimized.Items, 2)

	rice := optimized.Items[0]
	assert.Equal(t, "rice 5kg", rice.ProductName)
	assert.Equal(t, 2000.0, rice.Cheapest.PricePKR)
	assert.Equal(t, 4000.0, rice.TotalCostPKR)
	assert.Equal(t, 14.28, rice.TotalCostUSD)
	// Savings against the second-cheapest option, scaled by quantity.
	assert.Equal(t, 300.0, rice.PotentialSavingsPKR)
	assert.True(t, rice.Cheapest.IsFresh)

	oil := optimized.Items[1]
	assert.Equal(t, 1500.0, oil.TotalCostPKR)
	assert.Zero(t, oil.PotentialSavingsPKR)

	assert.Equal(t, 5500.0, optimized.TotalCartCostPKR)
	assert.Equal(t, 300.0, optimized.TotalPotentialSavingsPKR)
	require.NotNil(t, optimized.PricesLastUpdated)
}

func TestOptimizedCartFetchesUncachedItems(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// Items created while the market is dark stay uncached.
	list, err := f.svc.CreateList(ctx, "u1", "weekly", []NewItem{
		{ProductName: "rice 5kg", Quantity: 1},
	})
	require.NoError(t, err)

	optimized, err := f.svc.OptimizedCart(ctx, list.ID, false)
	require.NoError(t, err)
	assert.Empty(t, optimized.Items)
	assert.Equal(t, []string{"rice 5kg"}, optimized.MissingPrices)

	// Prices appear; the next view fetches on demand.
	f.stockMarket()
	optimized, err = f.svc.OptimizedCart(ctx, list.ID, false)
	require.NoError(t, err)
	require.Len(t, optimized.Items, 1)
	assert.Empty(t, optimized.MissingPrices)
}

func TestOptimizedCartForceRefreshOnStale(t *testing.T) {
	f := newServiceFixture(t)
	f.stockMarket()
	ctx := context.Background()

	list, err := f.svc.CreateList(ctx, "u1", "weekly", []NewItem{
		{ProductName: "rice 5kg", Quantity: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.finder.callCount("rice 5kg"))

	// Inside the fresh window a forced view still serves from cache.
	*f.now = f.now.Add(3 * time.Hour)
	_, err = f.svc.OptimizedCart(ctx, list.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.finder.callCount("rice 5kg"))

	// Past the window the forced view re-scrapes.
	*f.now = f.now.Add(4 * time.Hour)
	_, err = f.svc.OptimizedCart(ctx, list.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.finder.callCount("rice 5kg"))

	// Without the flag, stale cache is still served.
	*f.now = f.now.Add(7 * time.Hour)
	optimized, err := f.svc.OptimizedCart(ctx, list.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.finder.callCount("rice 5kg"))
	require.Len(t, optimized.Items, 1)
	assert.False(t, optimized.Items[0].Cheapest.IsFresh)
}

func TestMarkPurchasedKeepsRecommendations(t *testing.T) {
	f := newServiceFixture(t)
	f.stockMarket()
	ctx := context.Background()

	list, err := f.svc.CreateList(ctx, "u1", "weekly", []NewItem{
		{ProductName: "rice 5kg", Quantity: 1},
	})
	require.NoError(t, err)
	items, err := f.repo.ListItems(ctx, list.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, f.svc.MarkPurchased(ctx, items[0].ID))

	// Recommendations stay readable.
	optimized, err := f.svc.OptimizedCart(ctx, list.ID, false)
	require.NoError(t, err)
	require.Len(t, optimized.Items, 1)
	assert.Equal(t, StatusPurchased, optimized.Items[0].Status)

	// But the item drops out of staleness scans even once stale.
	*f.now = f.now.Add(10 * time.Hour)
	stale, err := f.svc.StaleItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestDeleteListOwnership(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	list, err := f.svc.CreateList(ctx, "u1", "weekly", nil)
	require.NoError(t, err)

	err = f.svc.DeleteList(ctx, list.ID, "u2")
	assert.True(t, pkgerr.IsNotFound(err))

	require.NoError(t, f.svc.DeleteList(ctx, list.ID, "u1"))
	_, err = f.repo.GetList(ctx, list.ID)
	assert.True(t, pkgerr.IsNotFound(err))
}

func TestUpdateItemQuantityValidation(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.UpdateItemQuantity(context.Background(), 1, 0)
	assert.True(t, pkgerr.IsType(err, pkgerr.ErrorTypeValidation))
}

func TestPriceHistoryWindow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.AppendHistory(ctx, []HistoryRecord{
		{ProductName: "rice 5kg", Source: "daraz", PricePKR: 2000, PriceUSD: 7.14, RecordedAt: f.now.Add(-40 * 24 * time.Hour)},
		{ProductName: "rice 5kg", Source: "daraz", PricePKR: 1950, PriceUSD: 6.96, RecordedAt: f.now.Add(-2 * 24 * time.Hour)},
	}))

	records, err := f.svc.PriceHistory(ctx, "rice 5kg", 30)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1950.0, records[0].PricePKR)

	_, err = f.svc.PriceHistory(ctx, "", 30)
	assert.True(t, pkgerr.IsType(err, pkgerr.ErrorTypeValidation))
}
