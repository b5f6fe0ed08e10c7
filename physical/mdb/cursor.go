// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Cursor iterates a database in key order; in a dup-sort database each
// key/value pair is visited in value order. A cursor belongs to one
// transaction and database handle and is only usable while the transaction
// is Ready.
//
// The cursor remembers the last pair it returned and seeks back to it on
// every call, so writes through the transaction (including Del on the
// cursor itself) do not invalidate it. After Del, Next and Prev move to the
// neighbours of the deleted pair.
type Cursor struct {
	txn *Txn
	dbi DBI

	key    []byte
	val    []byte
	set    bool
	closed bool
}

func (c *Cursor) Txn() *Txn {
	return c.txn
}

func (c *Cursor) DBI() DBI {
	return c.dbi
}

// Close is idempotent. Closing the transaction does not close its cursors.
func (c *Cursor) Close() {
	c.closed = true
	c.set = false
}

func (c *Cursor) bucket(op string) (*bolt.Bucket, bool, error) {
	if c.closed {
		return nil, false, fmt.Errorf("mdb: %s: %w", op, ErrCursorClosed)
	}
	if err := c.txn.requireReady(op); err != nil {
		return nil, false, err
	}
	b, info, err := c.txn.bucket(op, c.dbi)
	if err != nil {
		return nil, false, err
	}
	return b, info.dup(), nil
}

func (c *Cursor) at(k, v []byte) Result {
	c.key = valBytes(k)
	c.val = valBytes(v)
	c.set = true
	return found(k, v)
}

func (c *Cursor) first(b *bolt.Bucket, dup bool) Result {
	k, v := b.Cursor().First()
	if k == nil {
		return notFound(nil)
	}
	if dup {
		v = firstDup(b, k)
	}
	return c.at(k, v)
}

func (c *Cursor) last(b *bolt.Bucket, dup bool) Result {
	k, v := b.Cursor().Last()
	if k == nil {
		return notFound(nil)
	}
	if dup {
		v = lastDup(b, k)
	}
	return c.at(k, v)
}

func (c *Cursor) nextKey(b *bolt.Bucket, dup bool) Result {
	bc := b.Cursor()
	k, v := bc.Seek(c.key)
	if k != nil && bytes.Equal(k, c.key) {
		k, v = bc.Next()
	}
	if k == nil {
		return notFound(nil)
	}
	if dup {
		v = firstDup(b, k)
	}
	return c.at(k, v)
}

func (c *Cursor) prevKey(b *bolt.Bucket, dup bool) Result {
	bc := b.Cursor()
	k, v := bc.Seek(c.key)
	if k == nil {
		k, v = bc.Last()
	} else {
		k, v = bc.Prev()
	}
	if k == nil {
		return notFound(nil)
	}
	if dup {
		v = lastDup(b, k)
	}
	return c.at(k, v)
}

// nextDup returns the value following val under key, or nil.
func nextDup(b *bolt.Bucket, key, val []byte) []byte {
	sub := b.Bucket(key)
	if sub == nil {
		return nil
	}
	sc := sub.Cursor()
	v, _ := sc.Seek(val)
	if v != nil && bytes.Equal(v, val) {
		v, _ = sc.Next()
	}
	return v
}

// prevDup returns the value preceding val under key, or nil.
func prevDup(b *bolt.Bucket, key, val []byte) []byte {
	sub := b.Bucket(key)
	if sub == nil {
		return nil
	}
	sc := sub.Cursor()
	v, _ := sc.Seek(val)
	if v == nil {
		v, _ = sc.Last()
	} else {
		v, _ = sc.Prev()
	}
	return v
}

// First positions the cursor at the first pair of the database.
func (c *Cursor) First() (Result, error) {
	b, dup, err := c.bucket("cursor first")
	if err != nil {
		return Result{}, err
	}
	return c.first(b, dup), nil
}

// Last positions the cursor at the last pair of the database.
func (c *Cursor) Last() (Result, error) {
	b, dup, err := c.bucket("cursor last")
	if err != nil {
		return Result{}, err
	}
	return c.last(b, dup), nil
}

// Next moves to the following pair; an unpositioned cursor moves to the
// first one. At the end of the database the position is kept and the
// Result is NotFound.
func (c *Cursor) Next() (Result, error) {
	b, dup, err := c.bucket("cursor next")
	if err != nil {
		return Result{}, err
	}
	if !c.set {
		return c.first(b, dup), nil
	}
	if dup {
		if v := nextDup(b, c.key, c.val); v != nil {
			return c.at(c.key, v), nil
		}
	}
	return c.nextKey(b, dup), nil
}

// Prev moves to the preceding pair; an unpositioned cursor moves to the
// last one.
func (c *Cursor) Prev() (Result, error) {
	b, dup, err := c.bucket("cursor prev")
	if err != nil {
		return Result{}, err
	}
	if !c.set {
		return c.last(b, dup), nil
	}
	if dup {
		if v := prevDup(b, c.key, c.val); v != nil {
			return c.at(c.key, v), nil
		}
	}
	return c.prevKey(b, dup), nil
}

// NextDup moves to the next value of the current key in a dup-sort
// database.
func (c *Cursor) NextDup() (Result, error) {
	const op = "cursor next dup"

	b, dup, err := c.bucket(op)
	if err != nil {
		return Result{}, err
	}
	if !dup {
		return Result{}, check(op, Incompatible)
	}
	if !c.set {
		return Result{}, check(op, EINVAL)
	}
	if v := nextDup(b, c.key, c.val); v != nil {
		return c.at(c.key, v), nil
	}
	return notFound(c.key), nil
}

// NextNoDup moves to the first value of the next key.
func (c *Cursor) NextNoDup() (Result, error) {
	b, dup, err := c.bucket("cursor next nodup")
	if err != nil {
		return Result{}, err
	}
	if !c.set {
		return c.first(b, dup), nil
	}
	return c.nextKey(b, dup), nil
}

// Set positions the cursor at key, which must exist.
func (c *Cursor) Set(key []byte) (Result, error) {
	b, dup, err := c.bucket("cursor set")
	if err != nil {
		return Result{}, err
	}
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		c.set = false
		return notFound(key), nil
	}
	if dup {
		v = firstDup(b, k)
	}
	return c.at(k, v), nil
}

// SetRange positions the cursor at the first key greater than or equal to
// key.
func (c *Cursor) SetRange(key []byte) (Result, error) {
	b, dup, err := c.bucket("cursor set range")
	if err != nil {
		return Result{}, err
	}
	k, v := b.Cursor().Seek(key)
	if k == nil {
		c.set = false
		return notFound(key), nil
	}
	if dup {
		v = firstDup(b, k)
	}
	return c.at(k, v), nil
}

// Current returns the pair at the cursor. If it was deleted since the
// cursor moved there the Result is NotFound.
func (c *Cursor) Current() (Result, error) {
	const op = "cursor current"

	b, dup, err := c.bucket(op)
	if err != nil {
		return Result{}, err
	}
	if !c.set {
		return Result{}, check(op, EINVAL)
	}
	if dup {
		if sub := b.Bucket(c.key); sub != nil && hasDup(sub, c.val) {
			return found(c.key, c.val), nil
		}
		return notFound(c.key), nil
	}
	v, ok := lookup(b, c.key)
	if !ok {
		return notFound(c.key), nil
	}
	return found(c.key, v), nil
}

// Count returns the number of values stored under the current key.
func (c *Cursor) Count() (uint64, error) {
	const op = "cursor count"

	b, dup, err := c.bucket(op)
	if err != nil {
		return 0, err
	}
	if !c.set {
		return 0, check(op, EINVAL)
	}
	if !dup {
		if _, ok := lookup(b, c.key); !ok {
			return 0, check(op, NotFound)
		}
		return 1, nil
	}
	sub := b.Bucket(c.key)
	if sub == nil {
		return 0, check(op, NotFound)
	}
	var n uint64
	sc := sub.Cursor()
	for v, _ := sc.First(); v != nil; v, _ = sc.Next() {
		n++
	}
	return n, nil
}

// Put stores a pair through the cursor's transaction and moves the cursor
// to it.
func (c *Cursor) Put(key, val []byte, opts ...PutOption) error {
	if c.closed {
		return fmt.Errorf("mdb: cursor put: %w", ErrCursorClosed)
	}
	if err := c.txn.Put(c.dbi, key, val, opts...); err != nil {
		return err
	}
	c.at(key, val)
	return nil
}

// Del deletes the pair at the cursor. In a dup-sort database only the
// current value is removed.
func (c *Cursor) Del() error {
	const op = "cursor del"

	_, dup, err := c.bucket(op)
	if err != nil {
		return err
	}
	if !c.set {
		return check(op, EINVAL)
	}
	var val []byte
	if dup {
		val = c.val
	}
	return c.txn.del(op, c.dbi, c.key, val)
}
