package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hanko-field/product-studio/internal/repositories"
)

const defaultKeyPrefix = "studio"

// ContextStore keeps editing context records in Redis strings. Every namespace also owns a
// set listing its keys so DropNamespace does not need SCAN.
type ContextStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

var (
	_ repositories.ContextStore     = (*ContextStore)(nil)
	_ repositories.NamespaceDropper = (*ContextStore)(nil)
)

// NewContextStore wraps client. A zero ttl keeps records until the namespace is dropped.
func NewContextStore(client goredis.UniversalClient, prefix string, ttl time.Duration) (*ContextStore, error) {
	if client == nil {
		return nil, errors.New("context store: redis client is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &ContextStore{client: client, prefix: prefix, ttl: ttl}, nil
}

// Get returns the payload stored under namespace/key.
func (s *ContextStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	recordKey, err := s.recordKey("redis.get", namespace, key)
	if err != nil {
		return nil, err
	}
	value, err := s.client.Get(ctx, recordKey).Bytes()
	if err == goredis.Nil {
		return nil, repositories.NewStoreError("redis.get", repositories.StoreErrorNotFound, key, nil)
	}
	if err != nil {
		return nil, wrap("redis.get", key, err)
	}
	return value, nil
}

// Set writes the payload and refreshes the namespace expiry in one transaction.
func (s *ContextStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	recordKey, err := s.recordKey("redis.set", namespace, key)
	if err != nil {
		return err
	}
	indexKey := s.indexKey(namespace)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey, value, s.ttl)
	pipe.SAdd(ctx, indexKey, recordKey)
	if s.ttl > 0 {
		pipe.Expire(ctx, indexKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return wrap("redis.set", key, err)
	}
	return nil
}

// Remove deletes the record. Missing records are ignored.
func (s *ContextStore) Remove(ctx context.Context, namespace, key string) error {
	recordKey, err := s.recordKey("redis.remove", namespace, key)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, recordKey)
	pipe.SRem(ctx, s.indexKey(namespace), recordKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return wrap("redis.remove", key, err)
	}
	return nil
}

// DropNamespace deletes every record listed in the namespace index together with the index.
func (s *ContextStore) DropNamespace(ctx context.Context, namespace string) error {
	if strings.TrimSpace(namespace) == "" {
		return repositories.NewStoreError("redis.drop", repositories.StoreErrorInvalidInput, "", nil)
	}
	indexKey := s.indexKey(namespace)
	members, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != goredis.Nil {
		return wrap("redis.drop", namespace, err)
	}
	keys := append(members, indexKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return wrap("redis.drop", namespace, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *ContextStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrap("redis.ping", "", err)
	}
	return nil
}

func (s *ContextStore) recordKey(op, namespace, key string) (string, error) {
	namespace = strings.TrimSpace(namespace)
	key = strings.TrimSpace(key)
	if namespace == "" || key == "" {
		return "", repositories.NewStoreError(op, repositories.StoreErrorInvalidInput, key, nil)
	}
	return s.prefix + ":ctx:" + namespace + ":" + key, nil
}

func (s *ContextStore) indexKey(namespace string) string {
	return s.prefix + ":ns:" + strings.TrimSpace(namespace)
}

func wrap(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return repositories.NewStoreError(op, repositories.StoreErrorUnavailable, key, err)
}
