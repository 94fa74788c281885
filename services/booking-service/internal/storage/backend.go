package storage

import (
	"context"
	"errors"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
)

var (
	ErrNotFound = errors.New("tenant not found")
	ErrExists   = errors.New("tenant already exists")
)

// MutateFunc edits a private copy of the freshly loaded tenant. Returning an
// error aborts the write. Backends using optimistic concurrency may call it
// more than once, always with the latest committed state.
type MutateFunc func(t *model.Tenant) error

// Backend is the physical persistence of tenant documents. Implementations
// serialize Mutate and Delete per tenant, so a write is never computed from
// a snapshot older than the last committed write for that tenant. Writes to
// different tenants do not block each other.
type Backend interface {
	List(ctx context.Context) ([]model.Tenant, error)
	Get(ctx context.Context, id string) (model.Tenant, error)
	Insert(ctx context.Context, t model.Tenant) error
	Mutate(ctx context.Context, id string, fn MutateFunc) (model.Tenant, error)
	Delete(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
}
