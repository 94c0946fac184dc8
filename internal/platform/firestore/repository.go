package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded Firestore document with its metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection provides typed access to a top level collection, or to a collection nested under the
// documents of a parent collection (e.g. customers/{id}/specialRates).
type Collection[T any] struct {
	provider *Provider
	parent   string
	name     string
	decode   Decoder[T]
}

// NewCollection binds a top level collection.
func NewCollection[T any](provider *Provider, name string, decode Decoder[T]) *Collection[T] {
	return NewSubCollection(provider, "", name, decode)
}

// NewSubCollection binds a collection stored under each document of parent.
func NewSubCollection[T any](provider *Provider, parent, name string, decode Decoder[T]) *Collection[T] {
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &Collection[T]{
		provider: provider,
		parent:   strings.TrimSpace(parent),
		name:     strings.TrimSpace(name),
		decode:   decode,
	}
}

// Get fetches a document by ID. parentID is ignored for top level collections.
func (c *Collection[T]) Get(ctx context.Context, parentID, id string) (Document[T], error) {
	doc, err := c.Ref(ctx, parentID, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return c.decodeDocument(snap)
}

// Query executes a collection query and returns the decoded documents in query order.
func (c *Collection[T]) Query(ctx context.Context, parentID string, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.collectionRef(ctx, parentID)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	return c.collect(query.Documents(ctx))
}

// QueryTx runs the query inside a transaction so later writes are guarded by the reads.
func (c *Collection[T]) QueryTx(ctx context.Context, tx *firestore.Transaction, parentID string, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.collectionRef(ctx, parentID)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	return c.collect(tx.Documents(query))
}

// Delete removes the document, failing with a not-found error when it does not exist.
func (c *Collection[T]) Delete(ctx context.Context, parentID, id string) error {
	doc, err := c.Ref(ctx, parentID, id)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx, firestore.Exists); err != nil {
		return WrapError(c.op("delete"), err)
	}
	return nil
}

// Ref exposes the document reference for transactional writes.
func (c *Collection[T]) Ref(ctx context.Context, parentID, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := c.collectionRef(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) collect(iter *firestore.DocumentIterator) ([]Document[T], error) {
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		decoded, err := c.decodeDocument(snap)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snap.Ref.ID, err)
		}
		docs = append(docs, decoded)
	}
	return docs, nil
}

func (c *Collection[T]) decodeDocument(snap *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := c.decode(snap)
	if err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       entity,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

func (c *Collection[T]) collectionRef(ctx context.Context, parentID string) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError(c.op("collection"), errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError(c.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	if c.parent == "" {
		return client.Collection(c.name), nil
	}
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return nil, WrapError(c.op("collection"), errors.New("firestore: parent document id is required"))
	}
	return client.Collection(c.parent).Doc(parentID).Collection(c.name), nil
}

func (c *Collection[T]) op(action string) string {
	name := "firestore"
	if c != nil && c.name != "" {
		name = c.name
		if c.parent != "" {
			name = c.parent + "." + c.name
		}
	}
	return fmt.Sprintf("%s.%s", name, strings.ToLower(action))
}

// StructDecoder populates the target struct using Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		if err := snap.DataTo(&target); err != nil {
			return target, err
		}
		return target, nil
	}
}
