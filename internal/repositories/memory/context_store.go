package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/hanko-field/product-studio/internal/repositories"
)

// ContextStore keeps editing context records in process memory.
type ContextStore struct {
	mu      sync.RWMutex
	records map[string]map[string][]byte
}

var (
	_ repositories.ContextStore     = (*ContextStore)(nil)
	_ repositories.NamespaceDropper = (*ContextStore)(nil)
)

// NewContextStore returns an empty in-memory store.
func NewContextStore() *ContextStore {
	return &ContextStore{records: make(map[string]map[string][]byte)}
}

// Get returns a copy of the stored value.
func (s *ContextStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := validate("memory.get", namespace, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.records[namespace][key]
	if !ok {
		return nil, repositories.NewStoreError("memory.get", repositories.StoreErrorNotFound, key, nil)
	}
	return append([]byte(nil), value...), nil
}

// Set overwrites the value stored under key.
func (s *ContextStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := validate("memory.set", namespace, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.records[namespace]
	if !ok {
		bucket = make(map[string][]byte)
		s.records[namespace] = bucket
	}
	bucket[key] = append([]byte(nil), value...)
	return nil
}

// Remove deletes key. Missing keys are ignored.
func (s *ContextStore) Remove(ctx context.Context, namespace, key string) error {
	if err := validate("memory.remove", namespace, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records[namespace], key)
	return nil
}

// DropNamespace deletes every record of namespace.
func (s *ContextStore) DropNamespace(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, namespace)
	return nil
}

// Ping always succeeds.
func (s *ContextStore) Ping(context.Context) error { return nil }

func validate(op, namespace, key string) error {
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(key) == "" {
		return repositories.NewStoreError(op, repositories.StoreErrorInvalidInput, key, nil)
	}
	return nil
}
