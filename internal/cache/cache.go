package cache

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound      = errors.New("cache entry not found")
	ErrAlreadyExists = errors.New("cache entry already exists")
	ErrInvalidKey    = errors.New("invalid cache key")
)

// Cache is the durable document store behind the selection, cart and plan
// documents. Values are whole documents; there is no partial update.
type Cache interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key, value string, opts PutOptions) error
}

type PutCondition int

const (
	PutUnconditional PutCondition = iota
	PutIfNoneMatch
)

type PutOptions struct {
	Condition PutCondition
}

func Unconditional() PutOptions {
	return PutOptions{Condition: PutUnconditional}
}

// IfNoneMatch only writes when the key does not exist yet.
func IfNoneMatch() PutOptions {
	return PutOptions{Condition: PutIfNoneMatch}
}
