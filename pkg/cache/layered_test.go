package cache

import (
	"context"
	"testing"
	"time"
)

func TestLayeredCacheWriteThroughAndBackfill(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryCache()
	lc := NewLayeredCache(backing, WithLayeredMemorySize(10))
	t.Cleanup(func() { _ = lc.Close() })

	type payload struct {
		Price float64 `json:"price"`
	}

	// Write-through: the value lands in the backing layer too.
	if err := lc.Set(ctx, "hot", payload{Price: 42}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var fromBacking payload
	if err := backing.Get(ctx, "hot", &fromBacking); err != nil {
		t.Fatalf("backing get: %v", err)
	}
	if fromBacking.Price != 42 {
		t.Fatalf("backing price = %v", fromBacking.Price)
	}

	// A value present only in the backing layer is served and backfilled
	// into L1, so it survives the backing copy going away.
	if err := backing.Set(ctx, "cold", payload{Price: 7}, time.Minute); err != nil {
		t.Fatalf("backing set: %v", err)
	}
	var cold payload
	if err := lc.Get(ctx, "cold", &cold); err != nil {
		t.Fatalf("get cold: %v", err)
	}
	if cold.Price != 7 {
		t.Fatalf("cold price = %v", cold.Price)
	}
	if err := backing.Delete(ctx, "cold"); err != nil {
		t.Fatalf("backing delete: %v", err)
	}
	var again payload
	if err := lc.Get(ctx, "cold", &again); err != nil {
		t.Fatalf("get after backing delete: %v", err)
	}
	if again.Price != 7 {
		t.Fatalf("L1 price = %v", again.Price)
	}
}

func TestLayeredCacheDeleteClearsBothLayers(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryCache()
	lc := NewLayeredCache(backing)
	t.Cleanup(func() { _ = lc.Close() })

	if err := lc.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := lc.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var got string
	if err := lc.Get(ctx, "k", &got); err != ErrCacheMiss {
		t.Fatalf("layered err = %v, want ErrCacheMiss", err)
	}
	if err := backing.Get(ctx, "k", &got); err != ErrCacheMiss {
		t.Fatalf("backing err = %v, want ErrCacheMiss", err)
	}
}
