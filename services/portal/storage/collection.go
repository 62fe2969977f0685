// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Document is anything stored in a Collection.
type Document interface {
	// DocID returns the document's primary key. Must be non-empty.
	DocID() string
}

// NewID returns a fresh random document ID.
func NewID() string {
	return uuid.NewString()
}

// UniqueIndex declares a field whose value must be unique within a
// collection. Values are compared case-insensitively; an empty value is
// not indexed.
type UniqueIndex[T Document] struct {
	Field string
	Value func(T) string
}

// Collection is a typed view over the documents of one collection.
//
// # Thread Safety
//
// Safe for concurrent use. Each method is one Badger transaction.
type Collection[T Document] struct {
	db      *DB
	name    string
	indexes []UniqueIndex[T]
}

// NewCollection returns the collection called name in db.
func NewCollection[T Document](db *DB, name string, indexes ...UniqueIndex[T]) *Collection[T] {
	return &Collection[T]{db: db, name: name, indexes: indexes}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

func (c *Collection[T]) docKey(id string) []byte {
	return []byte(c.name + "/" + id)
}

func (c *Collection[T]) prefix() []byte {
	return []byte(c.name + "/")
}

func (c *Collection[T]) indexKey(field, value string) []byte {
	return []byte(c.name + "#" + field + "/" + strings.ToLower(value))
}

// =============================================================================
// Reads
// =============================================================================

// Get returns the document with the given ID or ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var doc T
	err := c.db.View(ctx, func(txn *badger.Txn) error {
		var err error
		doc, err = c.get(txn, id)
		return err
	})
	return doc, err
}

// FindBy returns the document whose unique field equals value.
func (c *Collection[T]) FindBy(ctx context.Context, field, value string) (T, error) {
	var doc T
	err := c.db.View(ctx, func(txn *badger.Txn) error {
		var err error
		doc, err = c.bind(txn).FindBy(field, value)
		return err
	})
	return doc, err
}

// List returns every document for which filter returns true, in key
// order. A nil filter matches everything.
func (c *Collection[T]) List(ctx context.Context, filter func(T) bool) ([]T, error) {
	out := []T{}
	err := c.db.View(ctx, func(txn *badger.Txn) error {
		return c.scan(txn, func(doc T) error {
			if filter == nil || filter(doc) {
				out = append(out, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns how many documents match filter.
func (c *Collection[T]) Count(ctx context.Context, filter func(T) bool) (int, error) {
	n := 0
	err := c.db.View(ctx, func(txn *badger.Txn) error {
		return c.scan(txn, func(doc T) error {
			if filter == nil || filter(doc) {
				n++
			}
			return nil
		})
	})
	return n, err
}

// =============================================================================
// Writes
// =============================================================================

// Insert stores a new document.
//
// Returns ErrDuplicate (as *DuplicateError) when the ID or any unique
// field value is already taken.
func (c *Collection[T]) Insert(ctx context.Context, doc T) error {
	if doc.DocID() == "" {
		return fmt.Errorf("%s: document id is empty", c.name)
	}
	return c.db.Update(ctx, func(txn *badger.Txn) error {
		return c.bind(txn).Insert(doc)
	})
}

// Put inserts or replaces a document.
func (c *Collection[T]) Put(ctx context.Context, doc T) error {
	if doc.DocID() == "" {
		return fmt.Errorf("%s: document id is empty", c.name)
	}
	return c.db.Update(ctx, func(txn *badger.Txn) error {
		old, err := c.get(txn, doc.DocID())
		switch {
		case err == nil:
			return c.write(txn, &old, doc)
		case errors.Is(err, ErrNotFound):
			return c.write(txn, nil, doc)
		default:
			return err
		}
	})
}

// Update loads the document, applies mutate and writes the result in one
// transaction.
//
// # Description
//
// mutate receives a copy of the stored document and may return an error
// to abort without writing. The document ID must not be changed.
//
// # Outputs
//
//   - T: The document as written.
//   - error: ErrNotFound, the error returned by mutate, ErrDuplicate when
//     a unique field now collides, or ErrConflict when another writer
//     committed first.
func (c *Collection[T]) Update(ctx context.Context, id string, mutate func(*T) error) (T, error) {
	var result T
	err := c.db.Update(ctx, func(txn *badger.Txn) error {
		var err error
		result, err = c.bind(txn).Update(id, mutate)
		return err
	})
	return result, err
}

// UpdateAll applies mutate to every document in one transaction. mutate
// reports whether it changed the document; unchanged documents are not
// rewritten.
func (c *Collection[T]) UpdateAll(ctx context.Context, mutate func(*T) (bool, error)) error {
	return c.db.Update(ctx, func(txn *badger.Txn) error {
		var docs []T
		if err := c.scan(txn, func(doc T) error {
			docs = append(docs, doc)
			return nil
		}); err != nil {
			return err
		}
		for _, old := range docs {
			next, err := c.get(txn, old.DocID())
			if err != nil {
				return err
			}
			changed, err := mutate(&next)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			if err := c.write(txn, &old, next); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes a document and its index entries.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.DeleteIf(ctx, id, nil)
}

// DeleteIf removes a document when guard (if non-nil) returns nil. The
// check and the delete happen in the same transaction.
func (c *Collection[T]) DeleteIf(ctx context.Context, id string, guard func(T) error) error {
	return c.db.Update(ctx, func(txn *badger.Txn) error {
		return c.bind(txn).DeleteIf(id, guard)
	})
}

// =============================================================================
// Transaction Helpers (Internal)
// =============================================================================

func (c *Collection[T]) get(txn *badger.Txn, id string) (T, error) {
	var doc T
	item, err := txn.Get(c.docKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return doc, ErrNotFound
	}
	if err != nil {
		return doc, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return doc, fmt.Errorf("%s/%s: decode: %w", c.name, id, err)
	}
	return doc, nil
}

func (c *Collection[T]) scan(txn *badger.Txn, fn func(T) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = c.prefix()
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var doc T
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
		if err != nil {
			return fmt.Errorf("%s/%s: decode: %w", c.name, it.Item().Key(), err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// write stores doc and moves its unique index entries from old (nil for
// a new document).
func (c *Collection[T]) write(txn *badger.Txn, old *T, doc T) error {
	id := doc.DocID()
	for _, idx := range c.indexes {
		next := idx.Value(doc)
		prev := ""
		if old != nil {
			prev = idx.Value(*old)
		}
		if strings.EqualFold(next, prev) {
			continue
		}
		if next != "" {
			item, err := txn.Get(c.indexKey(idx.Field, next))
			switch {
			case err == nil:
				owner, verr := item.ValueCopy(nil)
				if verr != nil {
					return verr
				}
				if string(owner) != id {
					return &DuplicateError{Collection: c.name, Field: idx.Field, Value: next}
				}
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err := txn.Set(c.indexKey(idx.Field, next), []byte(id)); err != nil {
				return err
			}
		}
		if prev != "" {
			if err := txn.Delete(c.indexKey(idx.Field, prev)); err != nil {
				return err
			}
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s/%s: encode: %w", c.name, id, err)
	}
	return txn.Set(c.docKey(id), data)
}
