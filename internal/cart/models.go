package cart

import "time"

// ItemStatus is the lifecycle state of a list item. The transition
// pending -> purchased is terminal.
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusPurchased ItemStatus = "purchased"
)

// ShoppingList is a user-owned list of items to price-optimize.
type ShoppingList struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListItem is one product entry on a shopping list. ProductName doubles as
// the scrape query.
type ListItem struct {
	ID          int64      `json:"id"`
	ListID      int64      `json:"list_id"`
	ProductName string     `json:"product_name"`
	Quantity    int        `json:"quantity"`
	Status      ItemStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Recommendation is one cached top-N listing for an item. Superseded rows
// are flagged non-current, never deleted.
type Recommendation struct {
	ID          int64     `json:"id"`
	ItemID      int64     `json:"item_id"`
	ProductName string    `json:"product_name"`
	Source      string    `json:"source"`
	PricePKR    float64   `json:"price_pkr"`
	PriceUSD    float64   `json:"price_usd"`
	URL         string    `json:"url"`
	Rank        int       `json:"rank"`
	IsCurrent   bool      `json:"is_current"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HistoryRecord is an append-only market price observation.
type HistoryRecord struct {
	ID          int64     `json:"id"`
	ProductName string    `json:"product_name"`
	Source      string    `json:"source"`
	PricePKR    float64   `json:"price_pkr"`
	PriceUSD    float64   `json:"price_usd"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// StaleItem identifies a pending item whose current recommendation set is
// absent or older than the fresh window.
type StaleItem struct {
	ItemID      int64  `json:"item_id"`
	ListID      int64  `json:"list_id"`
	ProductName string `json:"product_name"`
	ListName    string `json:"list_name"`
}

// ListSummary is the per-user lists overview row.
type ListSummary struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ItemCount      int       `json:"item_count"`
	PurchasedCount int       `json:"purchased_count"`
}

// RecommendationView is a recommendation plus its freshness at read time.
type RecommendationView struct {
	Recommendation
	IsFresh bool `json:"is_fresh"`
}

// OptimizedItem is one item of the optimized cart view.
type OptimizedItem struct {
	ItemID              int64                `json:"item_id"`
	ProductName         string               `json:"product_name"`
	Quantity            int                  `json:"quantity"`
	Status              ItemStatus           `json:"status"`
	Recommendations     []RecommendationView `json:"recommendations"`
	Cheapest            RecommendationView   `json:"cheapest_option"`
	TotalCostPKR        float64              `json:"total_cost_pkr"`
	TotalCostUSD        float64              `json:"total_cost_usd"`
	PotentialSavingsPKR float64              `json:"potential_savings_pkr"`
}

// OptimizedCart is the assembled best-price view of a list. Items without
// any priced option are excluded from the totals and reported separately.
type OptimizedCart struct {
	ListID                   int64           `json:"list_id"`
	ListName                 string          `json:"list_name"`
	UserID                   string          `json:"user_id"`
	Items                    []OptimizedItem `json:"items"`
	MissingPrices            []string        `json:"missing_prices,omitempty"`
	TotalCartCostPKR         float64         `json:"total_cart_cost_pkr"`
	TotalCartCostUSD         float64         `json:"total_cart_cost_usd"`
	TotalPotentialSavingsPKR float64         `json:"total_potential_savings_pkr"`
	OptimizedAt              time.Time       `json:"optimization_timestamp"`
	PricesLastUpdated        *time.Time      `json:"prices_last_updated,omitempty"`
}

// NewItem is the input shape for creating list items.
type NewItem struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}
