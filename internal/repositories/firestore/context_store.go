package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/product-studio/internal/platform/firestore"
	"github.com/hanko-field/product-studio/internal/repositories"
)

const (
	defaultContextCollection = "studioSessions"
	docIDSeparator           = "__"
)

type contextRecordDocument struct {
	Namespace string    `firestore:"namespace"`
	Key       string    `firestore:"key"`
	Payload   string    `firestore:"payload"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// ContextStore persists editing context records as one document per namespace/key pair.
type ContextStore struct {
	base  *pfirestore.BaseRepository[contextRecordDocument]
	clock func() time.Time
}

var (
	_ repositories.ContextStore     = (*ContextStore)(nil)
	_ repositories.NamespaceDropper = (*ContextStore)(nil)
)

// NewContextStore constructs a Firestore-backed context store writing to collection.
func NewContextStore(provider *pfirestore.Provider, collection string, clock func() time.Time) (*ContextStore, error) {
	if provider == nil {
		return nil, errors.New("context store: firestore provider is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = defaultContextCollection
	}
	if clock == nil {
		clock = time.Now
	}
	return &ContextStore{
		base:  pfirestore.NewBaseRepository[contextRecordDocument](provider, collection, nil, nil),
		clock: func() time.Time { return clock().UTC() },
	}, nil
}

// Get returns the payload stored under namespace/key.
func (s *ContextStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	id, err := documentID(namespace, key)
	if err != nil {
		return nil, err
	}
	doc, err := s.base.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return []byte(doc.Data.Payload), nil
}

// Set overwrites the payload stored under namespace/key.
func (s *ContextStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	id, err := documentID(namespace, key)
	if err != nil {
		return err
	}
	_, err = s.base.Set(ctx, id, contextRecordDocument{
		Namespace: namespace,
		Key:       key,
		Payload:   string(value),
		UpdatedAt: s.clock(),
	})
	return err
}

// Remove deletes the record. Missing records are ignored.
func (s *ContextStore) Remove(ctx context.Context, namespace, key string) error {
	id, err := documentID(namespace, key)
	if err != nil {
		return err
	}
	return s.base.Delete(ctx, id)
}

// DropNamespace deletes every record written for namespace.
func (s *ContextStore) DropNamespace(ctx context.Context, namespace string) error {
	if strings.TrimSpace(namespace) == "" {
		return repositories.NewStoreError("firestore.drop", repositories.StoreErrorInvalidInput, "", nil)
	}
	_, err := s.base.DeleteWhere(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("namespace", "==", namespace)
	})
	return err
}

func documentID(namespace, key string) (string, error) {
	namespace = strings.TrimSpace(namespace)
	key = strings.TrimSpace(key)
	if namespace == "" || key == "" {
		return "", repositories.NewStoreError("firestore.document", repositories.StoreErrorInvalidInput, key, nil)
	}
	// Firestore ids may not contain slashes.
	return namespace + docIDSeparator + strings.ReplaceAll(key, "/", "_"), nil
}
