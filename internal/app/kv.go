package app

import (
	"context"
	"net/url"
	"strings"
)

// KeyValueStore is the durable local storage capability used for checkpoints
// and the offline queue (memory, Redis, sqlite).
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	// Keys lists keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Prefixed scopes every key of store under prefix.
func Prefixed(store KeyValueStore, prefix string) KeyValueStore {
	return &prefixedStore{next: store, prefix: prefix}
}

type prefixedStore struct {
	next   KeyValueStore
	prefix string
}

func (p *prefixedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.next.Get(ctx, p.prefix+key)
}

func (p *prefixedStore) Set(ctx context.Context, key string, value []byte) error {
	return p.next.Set(ctx, p.prefix+key, value)
}

func (p *prefixedStore) Remove(ctx context.Context, key string) error {
	return p.next.Remove(ctx, p.prefix+key)
}

func (p *prefixedStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := p.next.Keys(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, strings.TrimPrefix(key, p.prefix))
	}
	return out, nil
}

// userPrefix escapes userID so a ':' inside it cannot end the segment.
func userPrefix(userID string) string {
	return "user:" + url.QueryEscape(userID) + ":"
}
