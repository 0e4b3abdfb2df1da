package cache

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// ErrDropped is returned by L1.Set when ristretto refuses to admit the value,
// either because its write buffer was full or because the admission policy
// rejected it.
var ErrDropped = errors.New("cache: value dropped by L1 admission")

// L1 is a bounded in-process Store backed by ristretto. Each entry has a cost
// of 1, so maxEntries caps the number of keys held at once.
type L1 struct {
	rc *ristretto.Cache[string, []byte]
}

// NewL1 creates a new L1 cache that holds at most maxEntries keys.
func NewL1(maxEntries int64) (*L1, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &L1{rc: rc}, nil
}

// Get retrieves a value by key. ristretto reports expired items as missing.
func (l *L1) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := l.rc.Get(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Set stores a value under key with the given TTL and waits until the write
// is visible to readers.
func (l *L1) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	switch {
	case ttl == NoExpiry:
		// ristretto reads a zero TTL as no expiry.
		ttl = 0
	case ttl <= 0:
		l.rc.Del(key)
		l.rc.Wait()
		return nil
	}
	ok := l.rc.SetWithTTL(key, bytes.Clone(val), 1, ttl)
	l.rc.Wait()
	if !ok {
		return ErrDropped
	}
	return nil
}

// Contains reports whether key holds a live entry.
func (l *L1) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := l.Get(ctx, key)
	return ok, err
}

// Close releases the ristretto goroutines.
func (l *L1) Close() error {
	l.rc.Close()
	return nil
}
