// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import (
	"bytes"
	"encoding/binary"

	bolt "go.etcd.io/bbolt"
)

// Engine calls. Everything in this file talks to bbolt directly and reports
// failures as either a bbolt error or a Status; callers classify them with
// check or checkRead.
//
// Layout: every database is a top-level bucket. The default database lives
// under defaultBucket and the persistent flags of every database are kept in
// metaBucket, keyed by bucket name. In a dup-sort database each key is a
// nested bucket whose keys are the sorted values.

var (
	defaultBucket = []byte("\x00main")
	metaBucket    = []byte("\x00dbs")
)

const reservedPrefix = 0x00

func nativeBegin(db *bolt.DB, writable bool) (*bolt.Tx, error) {
	return db.Begin(writable)
}

// nativeCommit commits a writable transaction. Read-only transactions have
// nothing to commit and are rolled back. bbolt frees the transaction on
// failure, so the handle is unusable afterwards either way.
func nativeCommit(tx *bolt.Tx) error {
	if !tx.Writable() {
		return tx.Rollback()
	}
	return tx.Commit()
}

func nativeAbort(tx *bolt.Tx) {
	// ErrTxClosed is the only possible failure and means there is nothing
	// left to free.
	_ = tx.Rollback()
}

func readFlags(tx *bolt.Tx, name []byte) (DbiOption, bool) {
	meta := tx.Bucket(metaBucket)
	if meta == nil {
		return 0, false
	}
	v := meta.Get(name)
	if len(v) != flagsLen {
		return 0, false
	}
	return DbiOption(binary.BigEndian.Uint32(v)), true
}

func writeFlags(tx *bolt.Tx, name []byte, flags DbiOption) error {
	meta, err := tx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return err
	}
	var buf [flagsLen]byte
	binary.BigEndian.PutUint32(buf[:], uint32(flags&persistentDbiFlags))
	return meta.Put(newVal(name), buf[:])
}

func deleteFlags(tx *bolt.Tx, name []byte) error {
	meta := tx.Bucket(metaBucket)
	if meta == nil {
		return nil
	}
	return meta.Delete(name)
}

// lookup returns the value stored for key in a plain database.
func lookup(b *bolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

func firstDup(b *bolt.Bucket, key []byte) []byte {
	sub := b.Bucket(key)
	if sub == nil {
		return nil
	}
	v, _ := sub.Cursor().First()
	return v
}

func lastDup(b *bolt.Bucket, key []byte) []byte {
	sub := b.Bucket(key)
	if sub == nil {
		return nil
	}
	v, _ := sub.Cursor().Last()
	return v
}

func hasDup(sub *bolt.Bucket, val []byte) bool {
	k, _ := sub.Cursor().Seek(val)
	return k != nil && bytes.Equal(k, val)
}

func nativeGet(b *bolt.Bucket, dup bool, key []byte) ([]byte, error) {
	if dup {
		v := firstDup(b, key)
		if v == nil {
			return nil, NotFound
		}
		return v, nil
	}
	v, ok := lookup(b, key)
	if !ok {
		return nil, NotFound
	}
	return v, nil
}

const (
	flagsLen        = 4
	pageHeaderSize  = 16
	leafElementSize = 16

	// commitOverhead is the pages every write commit adds besides its
	// leaves: the freelist and the rewritten branch path.
	commitOverhead = 2
)

// writeCost estimates how many bytes a stored entry adds to the file once
// bbolt spills it. Leaves split half full; an entry over half a page ends up
// alone on an overflow run.
func writeCost(pageSize, keyLen, valLen int) int64 {
	sz := keyLen + valLen + leafElementSize
	if sz*2 < pageSize {
		return int64(sz * 2)
	}
	pages := (sz + pageHeaderSize + pageSize - 1) / pageSize
	return int64(pages * pageSize)
}

func nativePut(b *bolt.Bucket, dup bool, key, val []byte, flags PutOption) error {
	if flags&PutReserve != 0 {
		return EINVAL
	}
	if !dup {
		if flags&PutAppend != 0 {
			if last, _ := b.Cursor().Last(); last != nil && bytes.Compare(key, last) <= 0 {
				return KeyExist
			}
		}
		if flags&PutNoOverwrite != 0 {
			if _, ok := lookup(b, key); ok {
				return KeyExist
			}
		}
		return b.Put(newVal(key), newVal(val))
	}

	if flags&PutAppend != 0 {
		if last, _ := b.Cursor().Last(); last != nil && bytes.Compare(key, last) < 0 {
			return KeyExist
		}
	}
	if sub := b.Bucket(key); sub != nil {
		if flags&PutNoOverwrite != 0 {
			return KeyExist
		}
		if hasDup(sub, val) {
			if flags&PutNoDupData != 0 {
				return KeyExist
			}
			return nil
		}
		if flags&PutAppendDup != 0 {
			if last, _ := sub.Cursor().Last(); last != nil && bytes.Compare(val, last) <= 0 {
				return KeyExist
			}
		}
		return sub.Put(newVal(val), []byte{})
	}
	sub, err := b.CreateBucket(newVal(key))
	if err != nil {
		return err
	}
	return sub.Put(newVal(val), []byte{})
}

// nativeReserve stores a zeroed value of n bytes and returns it. bbolt keeps
// referencing the slice until commit, so writes into it before commit are
// what gets persisted.
func nativeReserve(b *bolt.Bucket, dup bool, key []byte, n int, flags PutOption) ([]byte, error) {
	if dup {
		return nil, EINVAL
	}
	if n < 0 || n > bolt.MaxValueSize {
		return nil, BadValSize
	}
	if flags&PutAppend != 0 {
		if last, _ := b.Cursor().Last(); last != nil && bytes.Compare(key, last) <= 0 {
			return nil, KeyExist
		}
	}
	if flags&PutNoOverwrite != 0 {
		if _, ok := lookup(b, key); ok {
			return nil, KeyExist
		}
	}
	buf := make([]byte, n)
	if err := b.Put(newVal(key), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// nativeDel removes key, or only the key/val pair when val is non-nil and
// the database is dup-sort. val is ignored for plain databases.
func nativeDel(b *bolt.Bucket, dup bool, key, val []byte) error {
	if !dup {
		if _, ok := lookup(b, key); !ok {
			return NotFound
		}
		return b.Delete(key)
	}

	sub := b.Bucket(key)
	if sub == nil {
		return NotFound
	}
	if val == nil {
		return b.DeleteBucket(key)
	}
	if !hasDup(sub, val) {
		return NotFound
	}
	if err := sub.Delete(val); err != nil {
		return err
	}
	if k, _ := sub.Cursor().First(); k == nil {
		return b.DeleteBucket(key)
	}
	return nil
}

// nativeDrop deletes every entry of the named bucket. With del set the
// bucket and its flags are removed as well, otherwise an empty bucket is
// left in its place.
func nativeDrop(tx *bolt.Tx, name []byte, del bool) error {
	if err := tx.DeleteBucket(name); err != nil {
		return err
	}
	if del {
		return deleteFlags(tx, name)
	}
	_, err := tx.CreateBucket(name)
	return err
}

// nativeStat reports page usage from the committed pages of the bucket;
// Entries is counted directly so that it includes pending writes.
func nativeStat(tx *bolt.Tx, b *bolt.Bucket, dup bool) *Stat {
	s := b.Stats()
	st := &Stat{
		PageSize:      tx.DB().Info().PageSize,
		Depth:         s.Depth,
		BranchPages:   s.BranchPageN,
		LeafPages:     s.LeafPageN,
		OverflowPages: s.BranchOverflowN + s.LeafOverflowN,
	}

	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if !dup {
			st.Entries++
			continue
		}
		if sub := b.Bucket(k); sub != nil {
			sc := sub.Cursor()
			for v, _ := sc.First(); v != nil; v, _ = sc.Next() {
				st.Entries++
			}
		}
	}
	return st
}
