//go:build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hanko-field/product-studio/internal/repositories"
)

func TestContextStoreIntegration(t *testing.T) {
	addr := os.Getenv("STUDIO_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("redis not reachable: " + err.Error())
	}

	store, err := NewContextStore(client, "studio-test", time.Minute)
	if err != nil {
		t.Fatalf("NewContextStore: %v", err)
	}
	namespace := "it-" + time.Now().UTC().Format("150405.000000")
	t.Cleanup(func() { _ = store.DropNamespace(context.Background(), namespace) })

	if _, err := store.Get(ctx, namespace, repositories.ProductContextKey); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Set(ctx, namespace, repositories.ProductContextKey, []byte(`{"productId":"P-1"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, namespace, repositories.ActiveVersionKey, []byte(`{"versionId":"2.0"}`)); err != nil {
		t.Fatalf("Set active version: %v", err)
	}

	got, err := store.Get(ctx, namespace, repositories.ProductContextKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"productId":"P-1"}` {
		t.Fatalf("unexpected payload %s", got)
	}

	ttl, err := client.TTL(ctx, "studio-test:ctx:"+namespace+":"+repositories.ProductContextKey).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected ttl on record, got %v (%v)", ttl, err)
	}

	if err := store.DropNamespace(ctx, namespace); err != nil {
		t.Fatalf("DropNamespace: %v", err)
	}
	if _, err := store.Get(ctx, namespace, repositories.ActiveVersionKey); !repositories.IsNotFound(err) {
		t.Fatalf("expected dropped record, got %v", err)
	}
}
