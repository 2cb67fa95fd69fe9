package cart

import (
	"context"
	"time"
)

// Repository is the persistence surface of the cart engine. Each method is
// atomic; writes that change a list's contents also bump the parent list's
// updated timestamp.
type Repository interface {
	// Lists.
	CreateList(ctx context.Context, userID, name string) (ShoppingList, error)
	GetList(ctx context.Context, listID int64) (ShoppingList, error)
	GetListByName(ctx context.Context, userID, name string) (ShoppingList, error)
	ListsForUser(ctx context.Context, userID string) ([]ListSummary, error)
	DeleteList(ctx context.Context, listID int64) error
	TouchList(ctx context.Context, listID int64) error

	// Items. InsertItem upserts on (list_id, product_name): re-adding an
	// existing product increments its quantity and leaves status untouched.
	InsertItem(ctx context.Context, listID int64, productName string, quantity int) (ListItem, error)
	GetItem(ctx context.Context, itemID int64) (ListItem, error)
	ListItems(ctx context.Context, listID int64) ([]ListItem, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error
	UpdateItemStatus(ctx context.Context, itemID int64, status ItemStatus) error
	DeleteItem(ctx context.Context, itemID int64) error

	// Recommendations. ReplaceCurrentRecommendations demotes the item's
	// current set and inserts rows as the new one in a single transaction.
	ReplaceCurrentRecommendations(ctx context.Context, itemID int64, rows []Recommendation) error
	CurrentRecommendations(ctx context.Context, itemID int64) ([]Recommendation, error)

	// Price history, append-only.
	AppendHistory(ctx context.Context, rows []HistoryRecord) error
	History(ctx context.Context, productName string, since time.Time) ([]HistoryRecord, error)

	// StaleItems returns pending items whose current recommendation set is
	// missing or was cached before cutoff.
	StaleItems(ctx context.Context, cutoff time.Time) ([]StaleItem, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
