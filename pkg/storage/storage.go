package storage

import "context"

// Storage is an ordered key-value store. List and ListPrefix return values in
// ascending key order.
type Storage interface {
	Create(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (any, error)
	Update(ctx context.Context, key string, value any) error
	Put(ctx context.Context, key string, value any) error
	List(ctx context.Context, offset, limit uint64) ([]any, uint64, error)
	ListPrefix(ctx context.Context, prefix string, offset, limit uint64) ([]any, uint64, error)
}
