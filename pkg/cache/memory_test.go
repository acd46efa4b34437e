package cache

import (
	"context"
	"runtime"
	"testing"
	"time"
)

func TestMemoryCacheSetGetDelete(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	type payload struct {
		Price float64 `json:"price"`
	}

	if err := mc.Set(ctx, "k", payload{Price: 42.5}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got payload
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Price != 42.5 {
		t.Fatalf("price = %v", got.Price)
	}

	if err := mc.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mc.Get(ctx, "k", &got); err != ErrCacheMiss {
		t.Fatalf("err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheExpiration(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	if err := mc.Set(ctx, "k", "v", time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	var got string
	if err := mc.Get(ctx, "k", &got); err != ErrCacheMiss {
		t.Fatalf("err = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheCloseStopsCleanupGoroutine(t *testing.T) {
	baseline := runtime.NumGoroutine()

	caches := make([]*MemoryCache, 0, 50)
	for i := 0; i < 50; i++ {
		caches = append(caches, NewMemoryCache(WithMemoryCleanup(time.Millisecond)))
	}
	for _, mc := range caches {
		if err := mc.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		// Second close must be a no-op, not a panic.
		if err := mc.Close(); err != nil {
			t.Fatalf("double close: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if n := runtime.NumGoroutine(); n <= baseline+2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("cleanup goroutines leaked: %d running, baseline %d",
				runtime.NumGoroutine(), baseline)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
