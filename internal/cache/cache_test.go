package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/txmon/internal/domain"
	"github.com/shopspring/decimal"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return now }

		_ = c.Set(ctx, "expiring", []byte("temp"), time.Minute)
		if val, _ := c.Get(ctx, "expiring"); val == nil {
			t.Fatal("expected value before expiry")
		}

		now = now.Add(2 * time.Minute)
		if val, _ := c.Get(ctx, "expiring"); val != nil {
			t.Error("expected nil after TTL expiration")
		}
		if size, _ := c.Stats(); size != 0 {
			t.Errorf("expired entry should be evicted, size %d", size)
		}
	})

	t.Run("NoExpiry", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return now }

		_ = c.Set(ctx, "forever", []byte("v"), 0)
		now = now.Add(1000 * time.Hour)
		if val, _ := c.Get(ctx, "forever"); val == nil {
			t.Error("zero TTL entries should not expire")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" becomes least recently used
		_, _ = small.Get(ctx, "a")
		_ = small.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		for _, k := range []string{"a", "c", "d"} {
			if val, _ := small.Get(ctx, k); val == nil {
				t.Errorf("expected %q to remain", k)
			}
		}

		size, capacity := small.Stats()
		if size != 3 || capacity != 3 {
			t.Errorf("expected 3/3, got %d/%d", size, capacity)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = cache.Set(ctx, "k", []byte("old"), time.Minute)
		_ = cache.Set(ctx, "k", []byte("new"), time.Minute)

		val, _ := cache.Get(ctx, "k")
		if string(val) != "new" {
			t.Errorf("expected 'new', got %q", val)
		}
	})

	t.Run("Concurrent", func(t *testing.T) {
		done := make(chan struct{})
		for i := 0; i < 8; i++ {
			go func(n int) {
				defer func() { done <- struct{}{} }()
				for j := 0; j < 100; j++ {
					key := fmt.Sprintf("c-%d-%d", n, j%10)
					_ = cache.Set(ctx, key, []byte("x"), time.Minute)
					_, _ = cache.Get(ctx, key)
				}
			}(i)
		}
		for i := 0; i < 8; i++ {
			<-done
		}
	})

	t.Run("Close", func(t *testing.T) {
		c := NewLRUCache(10)
		_ = c.Set(ctx, "k", []byte("v"), time.Minute)
		_ = c.Close()

		if val, _ := c.Get(ctx, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestReportCaching(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()

	report := &domain.Report{
		RunID:             "run-1",
		TotalTransactions: 3,
		TotalAmount:       decimal.RequireFromString("1234.56"),
		FlagRatio:         33.3,
		FlagsByType:       []domain.TypeCount{{FlagType: domain.FlagHighValue, Count: 1}},
	}

	if err := cache.SetReport(ctx, "run-1", report, time.Hour); err != nil {
		t.Fatalf("SetReport failed: %v", err)
	}

	got, err := cache.GetReport(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached report")
	}
	if !got.TotalAmount.Equal(report.TotalAmount) || got.FlagsByType[0].Count != 1 {
		t.Errorf("report not restored: %+v", got)
	}

	miss, err := cache.GetReport(ctx, "run-2")
	if err != nil || miss != nil {
		t.Errorf("expected nil, nil on miss, got %v, %v", miss, err)
	}
}

func TestCorruptReport(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()

	_ = cache.Set(ctx, reportKey("bad"), []byte("{not json"), time.Minute)
	if _, err := cache.GetReport(ctx, "bad"); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
