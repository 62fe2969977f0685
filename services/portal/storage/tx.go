// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// txAttempts bounds how often RunInTx retries a commit that lost a
// conflict.
const txAttempts = 3

// Tx is an open read-write transaction that several collections can join
// through Collection.In. Reads made through it are conflict-checked at
// commit.
type Tx struct {
	txn *badger.Txn
}

// RunInTx runs fn in one read-write transaction spanning any number of
// collections.
//
// # Description
//
// fn may run more than once: when Badger rejects the commit because a
// key fn read was written concurrently, the transaction is retried from
// scratch. fn must therefore derive everything it writes from what it
// reads through tx.
//
// # Outputs
//
//   - error: The error returned by fn, or ErrConflict when every attempt
//     lost a conflict.
func (d *DB) RunInTx(ctx context.Context, fn func(tx *Tx) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = d.Update(ctx, func(txn *badger.Txn) error {
			return fn(&Tx{txn: txn})
		})
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

// TxCollection is a Collection bound to an open transaction.
type TxCollection[T Document] struct {
	c   *Collection[T]
	txn *badger.Txn
}

// In binds the collection to tx.
func (c *Collection[T]) In(tx *Tx) TxCollection[T] {
	return c.bind(tx.txn)
}

func (c *Collection[T]) bind(txn *badger.Txn) TxCollection[T] {
	return TxCollection[T]{c: c, txn: txn}
}

// Get returns the document with the given ID or ErrNotFound.
func (t TxCollection[T]) Get(id string) (T, error) {
	return t.c.get(t.txn, id)
}

// FindBy returns the document whose unique field equals value.
func (t TxCollection[T]) FindBy(field, value string) (T, error) {
	var zero T
	item, err := t.txn.Get(t.c.indexKey(field, value))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, err
	}
	id, err := item.ValueCopy(nil)
	if err != nil {
		return zero, err
	}
	return t.c.get(t.txn, string(id))
}

// Count returns how many documents match filter (nil counts all).
func (t TxCollection[T]) Count(filter func(T) bool) (int, error) {
	n := 0
	err := t.c.scan(t.txn, func(doc T) error {
		if filter == nil || filter(doc) {
			n++
		}
		return nil
	})
	return n, err
}

// Insert stores a new document, failing with ErrDuplicate like
// Collection.Insert.
func (t TxCollection[T]) Insert(doc T) error {
	id := doc.DocID()
	if id == "" {
		return fmt.Errorf("%s: document id is empty", t.c.name)
	}
	_, err := t.txn.Get(t.c.docKey(id))
	if err == nil {
		return &DuplicateError{Collection: t.c.name, Field: "id", Value: id}
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return t.c.write(t.txn, nil, doc)
}

// Update applies mutate to a copy of the stored document and writes the
// result. See Collection.Update.
func (t TxCollection[T]) Update(id string, mutate func(*T) error) (T, error) {
	var zero T
	old, err := t.c.get(t.txn, id)
	if err != nil {
		return zero, err
	}
	next, err := t.c.get(t.txn, id)
	if err != nil {
		return zero, err
	}
	if err := mutate(&next); err != nil {
		return zero, err
	}
	if next.DocID() != id {
		return zero, fmt.Errorf("%s: update must not change document id", t.c.name)
	}
	if err := t.c.write(t.txn, &old, next); err != nil {
		return zero, err
	}
	return next, nil
}

// DeleteIf removes the document and its index entries when guard (if
// non-nil) returns nil.
func (t TxCollection[T]) DeleteIf(id string, guard func(T) error) error {
	doc, err := t.c.get(t.txn, id)
	if err != nil {
		return err
	}
	if guard != nil {
		if err := guard(doc); err != nil {
			return err
		}
	}
	for _, idx := range t.c.indexes {
		if v := idx.Value(doc); v != "" {
			if err := t.txn.Delete(t.c.indexKey(idx.Field, v)); err != nil {
				return err
			}
		}
	}
	return t.txn.Delete(t.c.docKey(id))
}

// Touch rewrites the document unchanged. Any concurrent transaction that
// read it, such as a guarded delete, then fails its commit with
// ErrConflict. Returns ErrNotFound when the document is gone.
func (t TxCollection[T]) Touch(id string) error {
	item, err := t.txn.Get(t.c.docKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return t.txn.Set(t.c.docKey(id), val)
}
