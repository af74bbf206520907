package redis

import (
	"context"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hanko-field/product-studio/internal/repositories"
)

func TestRecordKeyLayout(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewContextStore(client, ":studio:", 0)
	if err != nil {
		t.Fatalf("NewContextStore: %v", err)
	}
	key, err := store.recordKey("test", "01HSESSION", repositories.ProductVersionsKey("P-1"))
	if err != nil {
		t.Fatalf("recordKey: %v", err)
	}
	if key != "studio:ctx:01HSESSION:productVersions:P-1" {
		t.Fatalf("unexpected key %s", key)
	}
	if idx := store.indexKey("01HSESSION"); idx != "studio:ns:01HSESSION" {
		t.Fatalf("unexpected index key %s", idx)
	}
}

func TestBlankKeysAreRejectedWithoutNetwork(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	store, _ := NewContextStore(client, "", 0)

	_, err := store.Get(context.Background(), "", repositories.ProductContextKey)
	var storeErr *repositories.StoreError
	if !errors.As(err, &storeErr) || storeErr.Code != repositories.StoreErrorInvalidInput {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestNewContextStoreRequiresClient(t *testing.T) {
	if _, err := NewContextStore(nil, "", 0); err == nil {
		t.Fatal("expected error without client")
	}
}
