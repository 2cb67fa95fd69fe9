package cart

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"paisapro/cartworker/logger"
	pkgerr "paisapro/cartworker/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRepository is the Repository implementation backed by an embedded
// SQLite database. Timestamps are stored in UTC.
type SQLiteRepository struct {
	db  *sql.DB
	log *logger.Logger
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, pkgerr.NewRepository("failed to create database directory", err)
		}
	}

	if err := runMigrations(dbPath); err != nil {
		return nil, pkgerr.NewRepository("failed to apply migrations", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, pkgerr.NewRepository("failed to open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, pkgerr.NewRepository("failed to connect to database", err)
	}

	return &SQLiteRepository{
		db:  db,
		log: logger.ForCart().WithField("component", "repository"),
	}, nil
}

func runMigrations(dbPath string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, fmt.Sprintf("sqlite://%s", dbPath))
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Ping verifies the database connection is alive.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return pkgerr.NewRepository("database ping failed", err)
	}
	return nil
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateList inserts a new shopping list for the user.
func (r *SQLiteRepository) CreateList(ctx context.Context, userID, name string) (ShoppingList, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO shopping_lists (user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, name, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ShoppingList{}, pkgerr.NewDuplicate(fmt.Sprintf("list %q already exists for user %s", name, userID))
		}
		return ShoppingList{}, pkgerr.NewRepository("failed to create list", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ShoppingList{}, pkgerr.NewRepository("failed to read list id", err)
	}
	return ShoppingList{ID: id, UserID: userID, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetList fetches a list by id.
func (r *SQLiteRepository) GetList(ctx context.Context, listID int64) (ShoppingList, error) {
	var list ShoppingList
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM shopping_lists WHERE id = ?`, listID).
		Scan(&list.ID, &list.UserID, &list.Name, &list.CreatedAt, &list.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ShoppingList{}, pkgerr.NewNotFound(fmt.Sprintf("list %d not found", listID))
	}
	if err != nil {
		return ShoppingList{}, pkgerr.NewRepository("failed to get list", err)
	}
	return list, nil
}

// GetListByName fetches a user's list by name.
func (r *SQLiteRepository) GetListByName(ctx context.Context, userID, name string) (ShoppingList, error) {
	var list ShoppingList
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at, updated_at FROM shopping_lists WHERE user_id = ? AND name = ?`,
		userID, name).
		Scan(&list.ID, &list.UserID, &list.Name, &list.CreatedAt, &list.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ShoppingList{}, pkgerr.NewNotFound(fmt.Sprintf("list %q not found for user %s", name, userID))
	}
	if err != nil {
		return ShoppingList{}, pkgerr.NewRepository("failed to get list by name", err)
	}
	return list, nil
}

// ListsForUser returns summaries of all lists owned by the user, newest
// updated first.
func (r *SQLiteRepository) ListsForUser(ctx context.Context, userID string) ([]ListSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.name, l.created_at, l.updated_at,
		       COUNT(i.id),
		       COALESCE(SUM(CASE WHEN i.status = 'purchased' THEN 1 ELSE 0 END), 0)
		FROM shopping_lists l
		LEFT JOIN shopping_list_items i ON i.list_id = l.id
		WHERE l.user_id = ?
		GROUP BY l.id
		ORDER BY l.updated_at DESC`, userID)
	if err != nil {
		return nil, pkgerr.NewRepository("failed to list user lists", err)
	}
	defer rows.Close()

	var summaries []ListSummary
	for rows.Next() {
		var s ListSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt, &s.ItemCount, &s.PurchasedCount); err != nil {
			return nil, pkgerr.NewRepository("failed to scan list summary", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DeleteList removes a list; items and recommendations cascade.
func (r *SQLiteRepository) DeleteList(ctx context.Context, listID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shopping_lists WHERE id = ?`, listID)
	if err != nil {
		return pkgerr.NewRepository("failed to delete list", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerr.NewNotFound(fmt.Sprintf("list %d not found", listID))
	}
	return nil
}

// TouchList bumps the list's updated timestamp.
func (r *SQLiteRepository) TouchList(ctx context.Context, listID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE shopping_lists SET updated_at = ? WHERE id = ?`, time.Now().UTC(), listID)
	if err != nil {
		return pkgerr.NewRepository("failed to touch list", err)
	}
	return nil
}

// InsertItem adds an item to a list. Re-adding an existing product adds to
// its quantity; the status stays as it is, purchased included.
func (r *SQLiteRepository) InsertItem(ctx context.Context, listID int64, productName string, quantity int) (ListItem, error) {
	now := time.Now().UTC()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ListItem{}, pkgerr.NewRepository("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shopping_list_items (list_id, product_name, quantity, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)
		ON CONFLICT (list_id, product_name)
		DO UPDATE SET quantity = quantity + excluded.quantity`,
		listID, productName, quantity, now)
	if err != nil {
		return ListItem{}, pkgerr.NewRepository("failed to insert item", err)
	}

	var item ListItem
	err = tx.QueryRowContext(ctx, `
		SELECT id, list_id, product_name, quantity, status, created_at
		FROM shopping_list_items WHERE list_id = ? AND product_name = ?`,
		listID, productName).
		Scan(&item.ID, &item.ListID, &item.ProductName, &item.Quantity, &item.Status, &item.CreatedAt)
	if err != nil {
		return ListItem{}, pkgerr.NewRepository("failed to read inserted item", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE shopping_lists SET updated_at = ? WHERE id = ?`, now, listID); err != nil {
		return ListItem{}, pkgerr.NewRepository("failed to touch list", err)
	}
	if err := tx.Commit(); err != nil {
		return ListItem{}, pkgerr.NewRepository("failed to commit item insert", err)
	}
	return item, nil
}

// GetItem fetches an item by id.
func (r *SQLiteRepository) GetItem(ctx context.Context, itemID int64) (ListItem, error) {
	var item ListItem
	err := r.db.QueryRowContext(ctx, `
		SELECT id, list_id, product_name, quantity, status, created_at
		FROM shopping_list_items WHERE id = ?`, itemID).
		Scan(&item.ID, &item.ListID, &item.ProductName, &item.Quantity, &item.Status, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ListItem{}, pkgerr.NewNotFound(fmt.Sprintf("item %d not found", itemID))
	}
	if err != nil {
		return ListItem{}, pkgerr.NewRepository("failed to get item", err)
	}
	return item, nil
}

// ListItems returns all items of a list in insertion order.
func (r *SQLiteRepository) ListItems(ctx context.Context, listID int64) ([]ListItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, list_id, product_name, quantity, status, created_at
		FROM shopping_list_items WHERE list_id = ? ORDER BY id`, listID)
	if err != nil {
		return nil, pkgerr.NewRepository("failed to list items", err)
	}
	defer rows.Close()

	var items []ListItem
	for rows.Next() {
		var item ListItem
		if err := rows.Scan(&item.ID, &item.ListID, &item.ProductName, &item.Quantity, &item.Status, &item.CreatedAt); err != nil {
			return nil, pkgerr.NewRepository("failed to scan item", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItemQuantity sets an item's quantity and touches the parent list.
func (r *SQLiteRepository) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	return r.updateItem(ctx, itemID,
		`UPDATE shopping_list_items SET quantity = ? WHERE id = ?`, quantity, itemID)
}

// UpdateItemStatus sets an item's status and touches the parent list.
func (r *SQLiteRepository) UpdateItemStatus(ctx context.Context, itemID int64, status ItemStatus) error {
	return r.updateItem(ctx, itemID,
		`UPDATE shopping_list_items SET status = ? WHERE id = ?`, string(status), itemID)
}

func (r *SQLiteRepository) updateItem(ctx context.Context, itemID int64, query string, args ...any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerr.NewRepository("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var listID int64
	err = tx.QueryRowContext(ctx,
		`SELECT list_id FROM shopping_list_items WHERE id = ?`, itemID).Scan(&listID)
	if errors.Is(err, sql.ErrNoRows) {
		return pkgerr.NewNotFound(fmt.Sprintf("item %d not found", itemID))
	}
	if err != nil {
		return pkgerr.NewRepository("failed to locate item", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return pkgerr.NewRepository("failed to update item", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE shopping_lists SET updated_at = ? WHERE id = ?`, time.Now().UTC(), listID); err != nil {
		return pkgerr.NewRepository("failed to touch list", err)
	}
	if err := tx.Commit(); err != nil {
		return pkgerr.NewRepository("failed to commit item update", err)
	}
	return nil
}

// DeleteItem removes an item and touches the parent list. Cached
// recommendations cascade away with the item; price history stays.
func (r *SQLiteRepository) DeleteItem(ctx context.Context, itemID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerr.NewRepository("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var listID int64
	err = tx.QueryRowContext(ctx,
		`SELECT list_id FROM shopping_list_items WHERE id = ?`, itemID).Scan(&listID)
	if errors.Is(err, sql.ErrNoRows) {
		return pkgerr.NewNotFound(fmt.Sprintf("item %d not found", itemID))
	}
	if err != nil {
		return pkgerr.NewRepository("failed to locate item", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM shopping_list_items WHERE id = ?`, itemID); err != nil {
		return pkgerr.NewRepository("failed to delete item", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE shopping_lists SET updated_at = ? WHERE id = ?`, time.Now().UTC(), listID); err != nil {
		return pkgerr.NewRepository("failed to touch list", err)
	}
	if err := tx.Commit(); err != nil {
		return pkgerr.NewRepository("failed to commit item delete", err)
	}
	return nil
}

// ReplaceCurrentRecommendations atomically demotes the item's current
// recommendation set and installs rows as the new one. Demoted rows remain
// queryable as non-current history.
func (r *SQLiteRepository) ReplaceCurrentRecommendations(ctx context.Context, itemID int64, recs []Recommendation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerr.NewRepository("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE price_recommendations SET is_current = 0 WHERE item_id = ? AND is_current = 1`,
		itemID); err != nil {
		return pkgerr.NewRepository("failed to demote recommendations", err)
	}

	for _, rec := range recs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO price_recommendations
				(item_id, product_name, source, price_pkr, price_usd, url, rank, is_current, created_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			itemID, rec.ProductName, rec.Source, rec.PricePKR, rec.PriceUSD, rec.URL,
			rec.Rank, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC())
		if err != nil {
			return pkgerr.NewRepository("failed to insert recommendation", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return pkgerr.NewRepository("failed to commit recommendation replace", err)
	}
	return nil
}

// CurrentRecommendations returns the item's current set ordered by rank.
func (r *SQLiteRepository) CurrentRecommendations(ctx context.Context, itemID int64) ([]Recommendation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, item_id, product_name, source, price_pkr, price_usd, url, rank, is_current, created_at, expires_at
		FROM price_recommendations
		WHERE item_id = ? AND is_current = 1
		ORDER BY rank`, itemID)
	if err != nil {
		return nil, pkgerr.NewRepository("failed to query recommendations", err)
	}
	defer rows.Close()

	var recs []Recommendation
	for rows.Next() {
		var rec Recommendation
		if err := rows.Scan(&rec.ID, &rec.ItemID, &rec.ProductName, &rec.Source, &rec.PricePKR,
			&rec.PriceUSD, &rec.URL, &rec.Rank, &rec.IsCurrent, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
			return nil, pkgerr.NewRepository("failed to scan recommendation", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// AppendHistory inserts price observations. History rows are never updated
// or deleted.
func (r *SQLiteRepository) AppendHistory(ctx context.Context, records []HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerr.NewRepository("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO price_history (product_name, source, price_pkr, price_usd, recorded_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ProductName, rec.Source, rec.PricePKR, rec.PriceUSD, rec.RecordedAt.UTC())
		if err != nil {
			return pkgerr.NewRepository("failed to append history", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return pkgerr.NewRepository("failed to commit history append", err)
	}
	return nil
}

// History returns observations for a product recorded at or after since,
// newest first.
func (r *SQLiteRepository) History(ctx context.Context, productName string, since time.Time) ([]HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_name, source, price_pkr, price_usd, recorded_at
		FROM price_history
		WHERE product_name = ? AND recorded_at >= ?
		ORDER BY recorded_at DESC`, productName, since.UTC())
	if err != nil {
		return nil, pkgerr.NewRepository("failed to query history", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		if err := rows.Scan(&rec.ID, &rec.ProductName, &rec.Source, &rec.PricePKR, &rec.PriceUSD, &rec.RecordedAt); err != nil {
			return nil, pkgerr.NewRepository("failed to scan history record", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// StaleItems returns pending items with no current recommendation set
// cached at or after cutoff. Purchased items are never reported.
func (r *SQLiteRepository) StaleItems(ctx context.Context, cutoff time.Time) ([]StaleItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.list_id, i.product_name, l.name
		FROM shopping_list_items i
		JOIN shopping_lists l ON l.id = i.list_id
		WHERE i.status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM price_recommendations pr
			WHERE pr.item_id = i.id AND pr.is_current = 1 AND pr.created_at >= ?
		  )
		ORDER BY i.id`, cutoff.UTC())
	if err != nil {
		return nil, pkgerr.NewRepository("failed to query stale items", err)
	}
	defer rows.Close()

	var stale []StaleItem
	for rows.Next() {
		var s StaleItem
		if err := rows.Scan(&s.ItemID, &s.ListID, &s.ProductName, &s.ListName); err != nil {
			return nil, pkgerr.NewRepository("failed to scan stale item", err)
		}
		stale = append(stale, s)
	}
	return stale, rows.Err()
}
