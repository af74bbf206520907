package firestore

import (
	"errors"
	"testing"

	"github.com/hanko-field/product-studio/internal/repositories"
)

func TestDocumentID(t *testing.T) {
	id, err := documentID("01HSESSION", repositories.ProductVersionsKey("P/1"))
	if err != nil {
		t.Fatalf("documentID: %v", err)
	}
	if id != "01HSESSION__productVersions:P_1" {
		t.Fatalf("unexpected document id %s", id)
	}

	_, err = documentID("", repositories.ProductContextKey)
	var storeErr *repositories.StoreError
	if !errors.As(err, &storeErr) || storeErr.Code != repositories.StoreErrorInvalidInput {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestNewContextStoreRequiresProvider(t *testing.T) {
	if _, err := NewContextStore(nil, "", nil); err == nil {
		t.Fatal("expected error without provider")
	}
}
