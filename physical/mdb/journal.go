// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import (
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-multierror"
	bolt "go.etcd.io/bbolt"
)

// The engine has no nested transactions. A nested Txn writes straight into
// its parent's bbolt transaction and records enough here to put everything
// back if it aborts. Top-level read-write transactions keep a journal too,
// but only for handle registry changes: the engine rolls back their data.

type undoOp uint8

const (
	// undoKey restores one key: a plain value or a full dup set.
	undoKey undoOp = iota + 1
	// undoBucket restores a database emptied or dropped by the transaction.
	undoBucket
	// undoCreate removes a database created by the transaction.
	undoCreate
	// undoFlags restores the persistent options of a database.
	undoFlags
	// undoRegister unregisters a handle allocated by the transaction.
	undoRegister
	// undoUnregister re-registers a handle removed by a drop.
	undoUnregister
)

// registry reports whether the record restores handle registry state that
// the engine knows nothing about, which must be undone even when the engine
// rolls the data back itself.
func (o undoOp) registry() bool {
	return o == undoRegister || o == undoUnregister || o == undoFlags
}

// entrySnapshot is the state of one key at the time it was first touched.
type entrySnapshot struct {
	Key   []byte
	Value []byte
	Dups  [][]byte
}

type undoRecord struct {
	OpType undoOp
	Bucket []byte

	// If this record is an undoKey and Prior is nil, the key was absent.
	Key   []byte
	Prior *entrySnapshot

	Entries  []*entrySnapshot
	Dup      bool
	Flags    DbiOption
	HadFlags bool

	DBI  DBI
	Info *dbiInfo
}

type journal struct {
	data    bool
	records []*undoRecord
	seen    map[string]struct{}
}

func newJournal(data bool) *journal {
	j := &journal{data: data}
	if data {
		j.seen = make(map[string]struct{})
	}
	return j
}

func seenKey(bucket, key []byte) string {
	buf := binary.AppendUvarint(nil, uint64(len(bucket)))
	buf = append(buf, bucket...)
	return string(append(buf, key...))
}

func snapshotEntry(b *bolt.Bucket, key []byte, dup bool) *entrySnapshot {
	if !dup {
		v, ok := lookup(b, key)
		if !ok {
			return nil
		}
		return &entrySnapshot{Key: valBytes(key), Value: valBytes(v)}
	}

	sub := b.Bucket(key)
	if sub == nil {
		return nil
	}
	snap := &entrySnapshot{Key: valBytes(key)}
	c := sub.Cursor()
	for v, _ := c.First(); v != nil; v, _ = c.Next() {
		snap.Dups = append(snap.Dups, valBytes(v))
	}
	return snap
}

func (j *journal) recordKey(bucket []byte, b *bolt.Bucket, key []byte, dup bool) {
	if j == nil || !j.data {
		return
	}
	id := seenKey(bucket, key)
	if _, ok := j.seen[id]; ok {
		return
	}
	j.seen[id] = struct{}{}
	j.records = append(j.records, &undoRecord{
		OpType: undoKey,
		Bucket: valBytes(bucket),
		Key:    valBytes(key),
		Prior:  snapshotEntry(b, key, dup),
		Dup:    dup,
	})
}

func (j *journal) recordBucket(bucket []byte, b *bolt.Bucket, dup bool, flags DbiOption) {
	if j == nil || !j.data {
		return
	}
	rec := &undoRecord{
		OpType:   undoBucket,
		Bucket:   valBytes(bucket),
		Dup:      dup,
		Flags:    flags,
		HadFlags: true,
	}
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		rec.Entries = append(rec.Entries, snapshotEntry(b, k, dup))
	}
	j.records = append(j.records, rec)
}

func (j *journal) recordCreate(bucket []byte) {
	if j == nil || !j.data {
		return
	}
	j.records = append(j.records, &undoRecord{OpType: undoCreate, Bucket: valBytes(bucket)})
}

func (j *journal) recordFlags(bucket []byte, flags DbiOption, hadFlags bool) {
	if j == nil {
		return
	}
	j.records = append(j.records, &undoRecord{
		OpType:   undoFlags,
		Bucket:   valBytes(bucket),
		Flags:    flags,
		HadFlags: hadFlags,
	})
}

func (j *journal) recordRegister(dbi DBI) {
	if j == nil {
		return
	}
	j.records = append(j.records, &undoRecord{OpType: undoRegister, DBI: dbi})
}

func (j *journal) recordUnregister(dbi DBI, info *dbiInfo) {
	if j == nil {
		return
	}
	j.records = append(j.records, &undoRecord{OpType: undoUnregister, DBI: dbi, Info: info})
}

// absorb takes over the records of a committed nested transaction so that
// they are undone if this transaction aborts.
func (j *journal) absorb(child *journal) {
	if j == nil || child == nil {
		return
	}
	for _, rec := range child.records {
		if j.data || rec.OpType.registry() {
			j.records = append(j.records, rec)
		}
	}
	if j.data {
		for id := range child.seen {
			j.seen[id] = struct{}{}
		}
	}
}

// undo replays the journal newest first. tx may be nil for journals without
// data records.
func (j *journal) undo(tx *bolt.Tx, env *Env) error {
	if j == nil {
		return nil
	}

	var result *multierror.Error
	for i := len(j.records) - 1; i >= 0; i-- {
		rec := j.records[i]
		if tx == nil && !rec.OpType.registry() {
			continue
		}
		if err := rec.apply(tx, env); err != nil {
			result = multierror.Append(result, fmt.Errorf("undo %d of %d: %w", i+1, len(j.records), err))
		}
	}
	j.records = nil
	return result.ErrorOrNil()
}

func (r *undoRecord) apply(tx *bolt.Tx, env *Env) error {
	switch r.OpType {
	case undoKey:
		b := tx.Bucket(r.Bucket)
		if b == nil {
			return fmt.Errorf("database %q is missing", r.Bucket)
		}
		return restoreEntry(b, r.Key, r.Prior, r.Dup)

	case undoBucket:
		if tx.Bucket(r.Bucket) != nil {
			if err := tx.DeleteBucket(r.Bucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(r.Bucket)
		if err != nil {
			return err
		}
		for _, e := range r.Entries {
			if err := restoreEntry(b, e.Key, e, r.Dup); err != nil {
				return err
			}
		}
		if err := writeFlags(tx, r.Bucket, r.Flags); err != nil {
			return err
		}
		env.setDBIFlags(r.Bucket, r.Flags&persistentDbiFlags)
		return nil

	case undoCreate:
		if tx.Bucket(r.Bucket) != nil {
			if err := tx.DeleteBucket(r.Bucket); err != nil {
				return err
			}
		}
		return deleteFlags(tx, r.Bucket)

	case undoFlags:
		env.setDBIFlags(r.Bucket, r.Flags)
		if tx == nil {
			return nil
		}
		if !r.HadFlags {
			return deleteFlags(tx, r.Bucket)
		}
		return writeFlags(tx, r.Bucket, r.Flags)

	case undoRegister:
		env.unregisterDBI(r.DBI)
		return nil

	case undoUnregister:
		env.restoreDBI(r.DBI, r.Info)
		return nil
	}
	return fmt.Errorf("unknown undo operation %d", r.OpType)
}

// restoreEntry puts key back into the state captured by prior; a nil prior
// means the key did not exist.
func restoreEntry(b *bolt.Bucket, key []byte, prior *entrySnapshot, dup bool) error {
	if !dup {
		if prior == nil {
			if _, ok := lookup(b, key); !ok {
				return nil
			}
			return b.Delete(key)
		}
		return b.Put(newVal(key), newVal(prior.Value))
	}

	if b.Bucket(key) != nil {
		if err := b.DeleteBucket(key); err != nil {
			return err
		}
	}
	if prior == nil || len(prior.Dups) == 0 {
		return nil
	}
	sub, err := b.CreateBucket(newVal(key))
	if err != nil {
		return err
	}
	for _, v := range prior.Dups {
		if err := sub.Put(newVal(v), []byte{}); err != nil {
			return err
		}
	}
	return nil
}
