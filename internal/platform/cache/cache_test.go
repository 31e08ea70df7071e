package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, "consol", time.Minute)
}

func TestFetchJSONPopulatesAndReuses(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "run", "abc")
	if err != nil {
		t.Fatalf("build key: %v", err)
	}

	loads := 0
	loader := func(context.Context) (interface{}, error) {
		loads++
		return map[string]string{"status": "completed"}, nil
	}

	var first map[string]string
	if err := cache.FetchJSON(ctx, key, &first, loader); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	var second map[string]string
	if err := cache.FetchJSON(ctx, key, &second, loader); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected single loader call, got %d", loads)
	}
	if second["status"] != "completed" {
		t.Fatalf("unexpected cached value %v", second)
	}
}

func TestBumpInvalidatesKeys(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "run", "abc")
	if err != nil {
		t.Fatalf("build key: %v", err)
	}
	if err := cache.Bump(ctx); err != nil {
		t.Fatalf("bump: %v", err)
	}
	after, err := cache.BuildKey(ctx, "run", "abc")
	if err != nil {
		t.Fatalf("build key after bump: %v", err)
	}
	if before == after {
		t.Fatalf("expected bump to change key, both %s", before)
	}
}

func TestFetchJSONLoaderErrorPropagates(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	wantErr := errors.New("load failed")
	var dest map[string]string
	err := cache.FetchJSON(ctx, "consol:x:1", &dest, func(context.Context) (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
}
