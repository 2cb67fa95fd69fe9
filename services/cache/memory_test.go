package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryService(t *testing.T) {
	svc := NewMemoryService()

	_, err := svc.Get("missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, svc.Set("key", []byte("value"), time.Minute))
	value, err := svc.Get("key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	assert.NoError(t, svc.Delete("key"))
	_, err = svc.Get("key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryServiceExpiry(t *testing.T) {
	svc := NewMemoryService()

	assert.NoError(t, svc.Set("short", []byte("1"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, err := svc.Get("short")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Zero expiration never expires
	assert.NoError(t, svc.Set("pinned", []byte("1"), 0))
	_, err = svc.Get("pinned")
	assert.NoError(t, err)
}
