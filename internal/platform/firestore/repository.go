package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
)

// Document is a decoded document plus its server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// DocumentStore is a typed view over one collection.
type DocumentStore[T any] struct {
	provider   *Provider
	collection string
}

// NewDocumentStore binds a DocumentStore to a collection.
func NewDocumentStore[T any](provider *Provider, collection string) *DocumentStore[T] {
	return &DocumentStore[T]{provider: provider, collection: strings.TrimSpace(collection)}
}

// Set upserts value under id.
func (s *DocumentStore[T]) Set(ctx context.Context, id string, value T) error {
	doc, err := s.doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Set(ctx, value); err != nil {
		return WrapError(s.op("set"), err)
	}
	return nil
}

// Get fetches and decodes the document.
func (s *DocumentStore[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := s.doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(s.op("get"), err)
	}
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", s.collection, id, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, UpdateTime: snap.UpdateTime}, nil
}

// Delete removes the document. Missing documents are not an error.
func (s *DocumentStore[T]) Delete(ctx context.Context, id string) error {
	doc, err := s.doc(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx); err != nil {
		return WrapError(s.op("delete"), err)
	}
	return nil
}

func (s *DocumentStore[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("firestore: document id is required")
	}
	if s.collection == "" {
		return nil, errors.New("firestore: collection name is required")
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(id), nil
}

func (s *DocumentStore[T]) op(action string) string {
	return s.collection + "." + action
}
