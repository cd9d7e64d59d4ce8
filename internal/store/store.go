// Package store holds the durable key-value stores a conversation session persists into.
package store

import "context"

// Store is a synchronous string-keyed, string-valued store.
// Get reports ok=false for an absent key; that is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Key joins a fixed store key with the owner of the data.
func Key(base, owner string) string {
	if owner == "" {
		return base
	}
	return base + ":" + owner
}
