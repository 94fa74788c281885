package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingResolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingResolver) Resolve(_ context.Context, tenantID, date string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return Result{}, r.err
	}
	return Result{TenantID: tenantID, Date: date, Times: []string{"09:00"}}, nil
}

func TestCachedResolverMemoizes(t *testing.T) {
	next := &countingResolver{}
	c := NewCachedResolver(next, time.Minute, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := c.Resolve(ctx, "t1", "2024-06-10")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if len(res.Times) != 1 || res.Times[0] != "09:00" {
			t.Fatalf("unexpected result: %+v", res)
		}
	}
	if _, err := c.Resolve(ctx, "t1", "2024-06-11"); err != nil {
		t.Fatalf("resolve other date: %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("expected 2 upstream resolutions, got %d", next.calls)
	}
}

func TestCachedResolverDoesNotCacheErrors(t *testing.T) {
	next := &countingResolver{err: errors.New("boom")}
	c := NewCachedResolver(next, time.Minute, 0)
	ctx := context.Background()

	if _, err := c.Resolve(ctx, "t1", "2024-06-10"); err == nil {
		t.Fatalf("expected error")
	}
	next.mu.Lock()
	next.err = nil
	next.mu.Unlock()
	if _, err := c.Resolve(ctx, "t1", "2024-06-10"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("expected the failure to be retried, got %d calls", next.calls)
	}
}
