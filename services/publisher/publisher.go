package publisher

import "time"

// PriceUpdate is the event emitted after a successful recommendation cache
// for a cart item, so the surrounding application can react to new prices.
type PriceUpdate struct {
	ItemID      int64     `json:"item_id"`
	ProductName string    `json:"product_name"`
	Source      string    `json:"source"`
	CheapestPKR float64   `json:"cheapest_pkr"`
	CheapestUSD float64   `json:"cheapest_usd"`
	Options     int       `json:"options"`
	CachedAt    time.Time `json:"cached_at"`
}

// Publisher represents a service for publishing price update events
type Publisher interface {
	// Publish publishes a message to a stream under the given key
	Publish(key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}

// NoopPublisher discards events; used when Redis is not configured.
type NoopPublisher struct{}

// Publish discards the message.
func (NoopPublisher) Publish(string, []byte) error { return nil }

// TrimStreams does nothing.
func (NoopPublisher) TrimStreams() error { return nil }

// Close does nothing.
func (NoopPublisher) Close() error { return nil }
