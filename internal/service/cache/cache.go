package cache

import (
	"context"
	"time"
)

// BytesCache stores raw provider responses with a TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Nop never hits and drops every write.
type Nop struct{}

func (Nop) GetBytes(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (Nop) SetBytes(context.Context, string, []byte, time.Duration) error { return nil }
