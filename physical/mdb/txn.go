// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import (
	"bytes"
	"fmt"
	"time"

	"github.com/armon/go-metrics"
	log "github.com/hashicorp/go-hclog"
	bolt "go.etcd.io/bbolt"
)

// Txn is a transaction against an Env: the unit of atomicity and isolation
// for every read and write, and the factory for nested transactions,
// database handles and cursors.
//
// A Txn must be used from one goroutine at a time. It must be ended with
// Commit or Abort and then Release; Release alone aborts a transaction that
// is still Ready, so `defer txn.Release()` right after begin is always safe.
//
// A nested transaction may only be used while its parent stays Ready; the
// parent rejects operations with ErrNestedActive while the child is open.
// Releasing a parent releases every nested transaction begun from it,
// finished or not.
type Txn struct {
	env    *Env
	parent *Txn
	child  *Txn

	// handle is non-nil if and only if released is unset.
	handle   *txnHandle
	state    TxnState
	released bool

	readOnly bool
	// broken is set when undoing a nested transaction failed, leaving this
	// transaction's view inconsistent; it may then only be aborted.
	broken bool

	journal *journal
	logger  log.Logger
	started time.Time

	// nested holds the children begun from this transaction that have not
	// been released yet, including finished ones.
	nested []*Txn
	// grown estimates the bytes the writes of a top-level transaction add
	// to the file; nested transactions account on their root.
	grown int64
}

// txnHandle is the native transaction handle. A nested transaction shares
// the bbolt transaction of its top-level ancestor but owns its own handle.
type txnHandle struct {
	tx     *bolt.Tx
	nested bool
}

func (e *Env) beginTxn(flags TxnOption) (*Txn, error) {
	const op = "txn begin"

	if e.closed.Load() {
		return nil, check(op, EINVAL)
	}

	readOnly := flags&TxnReadOnly != 0
	if readOnly {
		if err := e.acquireReader(); err != nil {
			return nil, check(op, err)
		}
	}

	tx, err := nativeBegin(e.db, !readOnly)
	if err != nil {
		if readOnly {
			e.releaseReader()
		}
		return nil, check(op, err)
	}

	t := &Txn{
		env:      e,
		handle:   &txnHandle{tx: tx},
		state:    Ready,
		readOnly: readOnly,
		logger:   e.logger.With("txn_id", tx.ID()),
		started:  time.Now(),
	}
	if !readOnly {
		t.journal = newJournal(false)
	}

	e.live.Inc()
	metrics.IncrCounter([]string{"mdb", "txn", "begin"}, 1)
	t.logger.Trace("transaction started", "read_only", readOnly)
	return t, nil
}

// Begin starts a transaction nested inside t. Its writes become visible to t
// when it commits and are discarded when it aborts. Read-only transactions
// cannot be nested.
func (t *Txn) Begin(opts ...TxnOption) (*Txn, error) {
	const op = "txn begin"

	if err := t.requireReady(op); err != nil {
		return nil, err
	}
	if t.readOnly || toFlags(opts)&TxnReadOnly != 0 {
		return nil, check(op, EINVAL)
	}

	child := &Txn{
		env:     t.env,
		parent:  t,
		handle:  &txnHandle{tx: t.handle.tx, nested: true},
		state:   Ready,
		journal: newJournal(true),
		logger:  t.logger.With("nested", t.depth()+1),
		started: time.Now(),
	}
	t.child = child
	t.nested = append(t.nested, child)

	t.env.live.Inc()
	metrics.IncrCounter([]string{"mdb", "txn", "begin"}, 1)
	child.logger.Trace("nested transaction started")
	return child, nil
}

// Sub runs fn in a nested transaction, committing it into t if fn returns
// nil and aborting it otherwise.
func (t *Txn) Sub(fn func(*Txn) error) error {
	child, err := t.Begin()
	if err != nil {
		return err
	}
	defer child.Release()

	if err := fn(child); err != nil {
		return err
	}
	return child.Commit()
}

func (t *Txn) depth() int {
	d := 0
	for p := t.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

func (t *Txn) stateError(op string, want ...TxnState) error {
	return &StateError{Op: op, Want: want, Have: t.state}
}

// requireReady guards every data operation.
func (t *Txn) requireReady(op string) error {
	if t.state != Ready {
		return t.stateError(op, Ready)
	}
	if t.child != nil {
		return fmt.Errorf("mdb: %s: %w", op, ErrNestedActive)
	}
	if t.broken {
		return check(op, BadTxn)
	}
	return nil
}

func (t *Txn) requireWritable(op string) error {
	if err := t.requireReady(op); err != nil {
		return err
	}
	if t.readOnly {
		return check(op, EACCES)
	}
	return nil
}

// Commit makes the transaction's writes durable (or, for a nested
// transaction, visible to its parent). An open nested transaction is
// committed first.
//
// The transaction is Done once Commit returns, whether or not it succeeded:
// the engine releases the transaction on a failed commit and nothing it
// wrote was persisted.
func (t *Txn) Commit() error {
	const op = "txn commit"

	if t.state != Ready {
		return t.stateError(op, Ready)
	}
	if t.child != nil {
		if err := t.child.Commit(); err != nil {
			return err
		}
	}
	if t.broken {
		t.abort()
		return check(op, BadTxn)
	}

	if t.handle.nested {
		t.parent.journal.absorb(t.journal)
		t.journal = nil
		t.parent.child = nil
		t.state = Done
		t.logger.Trace("nested transaction committed")
		return nil
	}

	tx := t.handle.tx
	if tx.Writable() && t.mapFull() {
		t.abort()
		return check(op, MapFull)
	}

	start := time.Now()
	err := nativeCommit(tx)
	metrics.MeasureSince([]string{"mdb", "txn", "commit"}, start)
	t.state = Done

	if err != nil {
		t.undoRegistry()
		t.logger.Debug("transaction commit failed", "error", err)
		return check(op, err)
	}
	t.journal = nil
	t.logger.Trace("transaction committed")
	return nil
}

// mapFull reports whether committing would move the file's high-water mark
// past map_size. Pages on the freelist are counted as reusable.
func (t *Txn) mapFull() bool {
	pageSize := int64(t.env.pageSize)
	free := int64(t.env.db.Stats().FreePageN) * pageSize
	grow := t.grown + commitOverhead*pageSize - free
	if grow < 0 {
		grow = 0
	}
	return t.handle.tx.Size()+grow > t.env.mapSize
}

func (t *Txn) root() *Txn {
	r := t
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// grow records n more bytes of pending file growth.
func (t *Txn) grow(n int64) {
	t.root().grown += n
}

// Abort discards the transaction's writes. An open nested transaction is
// aborted first.
func (t *Txn) Abort() error {
	if t.state != Ready {
		return t.stateError("txn abort", Ready)
	}
	t.abort()
	return nil
}

func (t *Txn) abort() {
	if t.child != nil {
		t.child.abort()
	}

	if t.handle.nested {
		if err := t.journal.undo(t.handle.tx, t.env); err != nil {
			t.logger.Error("failed to undo nested transaction, parent must abort", "error", err)
			t.parent.broken = true
		}
		t.parent.child = nil
	} else {
		nativeAbort(t.handle.tx)
		t.undoRegistry()
	}

	t.journal = nil
	t.state = Done
	metrics.IncrCounter([]string{"mdb", "txn", "abort"}, 1)
	t.logger.Trace("transaction aborted")
}

// undoRegistry reverts the handle registrations of a top-level transaction
// whose writes were rolled back by the engine.
func (t *Txn) undoRegistry() {
	if err := t.journal.undo(nil, t.env); err != nil {
		t.logger.Error("failed to revert database handles", "error", err)
	}
	t.journal = nil
}

// Reset releases the snapshot held by a read-only transaction while keeping
// its handle and reader slot, so that it can be reused with Renew. It is
// valid on a Ready or Done read-only transaction.
func (t *Txn) Reset() error {
	const op = "txn reset"

	if t.state != Ready && t.state != Done {
		return t.stateError(op, Ready, Done)
	}
	if !t.readOnly {
		return check(op, EINVAL)
	}

	if t.state == Ready {
		nativeAbort(t.handle.tx)
	}
	t.handle.tx = nil
	t.state = Reset

	metrics.IncrCounter([]string{"mdb", "txn", "reset"}, 1)
	t.logger.Trace("transaction reset")
	return nil
}

// Renew acquires a fresh snapshot for a transaction parked by Reset. If the
// engine fails to start the snapshot the transaction stays Reset and Renew
// may be retried.
func (t *Txn) Renew() error {
	const op = "txn renew"

	if t.state != Reset {
		return t.stateError(op, Reset)
	}

	tx, err := nativeBegin(t.env.db, false)
	if err != nil {
		return check(op, err)
	}
	t.handle.tx = tx
	t.state = Ready
	t.logger = t.env.logger.With("txn_id", tx.ID())

	metrics.IncrCounter([]string{"mdb", "txn", "renew"}, 1)
	t.logger.Trace("transaction renewed")
	return nil
}

// Release frees the transaction handle and those of its nested
// transactions, aborting the transaction first if it is still Ready. It
// never fails and may be called any number of times.
func (t *Txn) Release() {
	if t.released {
		return
	}

	// Children that already finished still hold a handle.
	for len(t.nested) > 0 {
		t.nested[len(t.nested)-1].Release()
	}
	if t.state == Ready {
		t.abort()
		t.logger.Debug("released an active transaction; it was aborted")
	}

	t.released = true
	t.state = Released
	nested := t.handle.nested
	t.handle = nil
	if t.parent != nil {
		t.parent.forget(t)
	}

	if t.readOnly && !nested {
		t.env.releaseReader()
	}
	t.env.live.Dec()
	metrics.MeasureSince([]string{"mdb", "txn", "lifetime"}, t.started)
}

func (t *Txn) forget(child *Txn) {
	for i := len(t.nested) - 1; i >= 0; i-- {
		if t.nested[i] == child {
			t.nested = append(t.nested[:i], t.nested[i+1:]...)
			return
		}
	}
}

func (t *Txn) Env() *Env {
	return t.env
}

// Parent is nil for top-level transactions.
func (t *Txn) Parent() *Txn {
	return t.parent
}

func (t *Txn) State() TxnState {
	return t.state
}

func (t *Txn) ReadOnly() bool {
	return t.readOnly
}

// ID returns the engine transaction id, or 0 when the transaction holds no
// snapshot. Nested transactions report the id of their top-level ancestor.
func (t *Txn) ID() int {
	if t.handle == nil || t.handle.tx == nil {
		return 0
	}
	return t.handle.tx.ID()
}

func (t *Txn) bucket(op string, dbi DBI) (*bolt.Bucket, *dbiInfo, error) {
	info, ok := t.env.dbi(dbi)
	if !ok {
		return nil, nil, check(op, BadDbi)
	}
	tx := t.handle.tx
	b := tx.Bucket(info.bucket)
	if b == nil {
		return nil, nil, check(op, BadDbi)
	}
	// The registry follows the latest writer; this snapshot may be older.
	if flags, ok := readFlags(tx, info.bucket); ok && flags != info.flags {
		info = &dbiInfo{name: info.name, bucket: info.bucket, flags: flags}
	}
	return b, info, nil
}

// OpenDatabase opens the named database, or the default database when name
// is empty, returning a handle that outlives the transaction.
//
// A missing database is created only with DbiCreate, which requires a
// read-write transaction. Opening an existing database with persistent
// options that differ from the stored ones fails with Incompatible, unless
// the database is empty and DbiCreate is given, in which case the new
// options replace the stored ones.
func (t *Txn) OpenDatabase(name string, opts ...DbiOption) (DBI, error) {
	const op = "open database"

	if err := t.requireReady(op); err != nil {
		return invalidDBI, err
	}

	flags := toFlags(opts)
	want := flags & persistentDbiFlags

	bname := defaultBucket
	if name != "" {
		if name[0] == reservedPrefix {
			return invalidDBI, check(op, EINVAL)
		}
		bname = []byte(name)
	}

	tx := t.handle.tx
	b := tx.Bucket(bname)
	stored, hadFlags := readFlags(tx, bname)

	if b == nil {
		if flags&DbiCreate == 0 {
			return invalidDBI, check(op, NotFound)
		}
		if t.readOnly {
			return invalidDBI, check(op, EACCES)
		}

		dbi, created, err := t.env.registerDBI(name, bname, want, true)
		if err != nil {
			return invalidDBI, check(op, err)
		}
		if created {
			t.journal.recordRegister(dbi)
		}

		t.journal.recordCreate(bname)
		if _, err := tx.CreateBucket(bname); err != nil {
			return invalidDBI, check(op, err)
		}
		if err := writeFlags(tx, bname, want); err != nil {
			return invalidDBI, check(op, err)
		}
		t.grow(writeCost(t.env.pageSize, len(bname), flagsLen) + int64(t.env.pageSize))
		t.logger.Trace("database created", "name", name, "dup_sort", want&DbiDupSort != 0)
		return dbi, nil
	}

	adopted := false
	if want != 0 && want != stored {
		empty := false
		if k, _ := b.Cursor().First(); k == nil {
			empty = true
		}
		if flags&DbiCreate == 0 || t.readOnly || !empty {
			return invalidDBI, check(op, Incompatible)
		}
		t.journal.recordFlags(bname, stored, hadFlags)
		if err := writeFlags(tx, bname, want); err != nil {
			return invalidDBI, check(op, err)
		}
		stored = want
		adopted = true
	}

	dbi, created, err := t.env.registerDBI(name, bname, stored, adopted)
	if err != nil {
		return invalidDBI, check(op, err)
	}
	if created && !t.readOnly {
		t.journal.recordRegister(dbi)
	}
	return dbi, nil
}

// Get looks up key. A missing key is not an error: the returned Result has
// Status NotFound.
func (t *Txn) Get(dbi DBI, key []byte) (Result, error) {
	const op = "get"

	if err := t.requireReady(op); err != nil {
		return Result{}, err
	}
	b, info, err := t.bucket(op, dbi)
	if err != nil {
		return Result{}, err
	}
	if err := t.env.checkKey(key); err != nil {
		return Result{}, check(op, err)
	}

	v, err := nativeGet(b, info.dup(), key)
	code, err := checkRead(op, err)
	if err != nil {
		return Result{}, err
	}
	if code == NotFound {
		return notFound(key), nil
	}
	return found(key, v), nil
}

// Put stores val under key. In a dup-sort database val is added to the set
// of values for key; storing a pair that already exists is a no-op unless
// PutNoDupData is given.
func (t *Txn) Put(dbi DBI, key, val []byte, opts ...PutOption) error {
	const op = "put"

	if err := t.requireWritable(op); err != nil {
		return err
	}
	b, info, err := t.bucket(op, dbi)
	if err != nil {
		return err
	}
	if err := t.env.checkKey(key); err != nil {
		return check(op, err)
	}
	if info.dup() {
		if err := t.env.checkDupVal(val); err != nil {
			return check(op, err)
		}
	}

	t.journal.recordKey(info.bucket, b, key, info.dup())
	if err := nativePut(b, info.dup(), key, val, toFlags(opts)); err != nil {
		return check(op, err)
	}
	t.grow(writeCost(t.env.pageSize, len(key), len(val)))
	return nil
}

// PutReserve stores a zeroed value of n bytes under key and returns it; the
// caller fills it in place before the transaction commits. Dup-sort
// databases do not support reserved values.
func (t *Txn) PutReserve(dbi DBI, key []byte, n int, opts ...PutOption) ([]byte, error) {
	const op = "put reserve"

	if err := t.requireWritable(op); err != nil {
		return nil, err
	}
	b, info, err := t.bucket(op, dbi)
	if err != nil {
		return nil, err
	}
	if err := t.env.checkKey(key); err != nil {
		return nil, check(op, err)
	}

	t.journal.recordKey(info.bucket, b, key, info.dup())
	buf, err := nativeReserve(b, info.dup(), key, n, toFlags(opts)&^PutReserve)
	if err != nil {
		return nil, check(op, err)
	}
	t.grow(writeCost(t.env.pageSize, len(key), n))
	return buf, nil
}

// Delete removes key and, in a dup-sort database, all of its values. A
// missing key fails with NotFound.
func (t *Txn) Delete(dbi DBI, key []byte) error {
	return t.del("delete", dbi, key, nil)
}

// DeleteValue removes a single key/value pair from a dup-sort database. For
// other databases val is ignored and the key is removed.
func (t *Txn) DeleteValue(dbi DBI, key, val []byte) error {
	return t.del("delete", dbi, key, val)
}

func (t *Txn) del(op string, dbi DBI, key, val []byte) error {
	if err := t.requireWritable(op); err != nil {
		return err
	}
	b, info, err := t.bucket(op, dbi)
	if err != nil {
		return err
	}
	if err := t.env.checkKey(key); err != nil {
		return check(op, err)
	}

	t.journal.recordKey(info.bucket, b, key, info.dup())
	return check(op, nativeDel(b, info.dup(), key, val))
}

// Drop deletes every entry of the database and the database itself,
// invalidating dbi. The default database cannot be deleted and is emptied
// instead.
func (t *Txn) Drop(dbi DBI) error {
	const op = "drop"

	if err := t.requireWritable(op); err != nil {
		return err
	}
	b, info, err := t.bucket(op, dbi)
	if err != nil {
		return err
	}
	if bytes.Equal(info.bucket, defaultBucket) {
		return t.empty(op, b, info)
	}

	t.journal.recordBucket(info.bucket, b, info.dup(), info.flags)
	if err := nativeDrop(t.handle.tx, info.bucket, true); err != nil {
		return check(op, err)
	}
	if removed := t.env.unregisterDBI(dbi); removed != nil {
		t.journal.recordUnregister(dbi, removed)
	}
	t.logger.Trace("database dropped", "name", info.name)
	return nil
}

// Empty deletes every entry of the database but keeps dbi valid.
func (t *Txn) Empty(dbi DBI) error {
	const op = "empty"

	if err := t.requireWritable(op); err != nil {
		return err
	}
	b, info, err := t.bucket(op, dbi)
	if err != nil {
		return err
	}
	return t.empty(op, b, info)
}

func (t *Txn) empty(op string, b *bolt.Bucket, info *dbiInfo) error {
	t.journal.recordBucket(info.bucket, b, info.dup(), info.flags)
	return check(op, nativeDrop(t.handle.tx, info.bucket, false))
}

// OpenCursor creates a cursor over dbi. The cursor must not be used after t
// is committed, aborted or released.
func (t *Txn) OpenCursor(dbi DBI) (*Cursor, error) {
	const op = "open cursor"

	if err := t.requireReady(op); err != nil {
		return nil, err
	}
	if _, _, err := t.bucket(op, dbi); err != nil {
		return nil, err
	}
	return &Cursor{txn: t, dbi: dbi}, nil
}

// Stat is a summary of a database's B+tree.
type Stat struct {
	PageSize      int
	Depth         int
	BranchPages   int
	LeafPages     int
	OverflowPages int
	Entries       uint64
}

// Stat describes dbi. Page counts cover pages already written to the file;
// Entries also counts writes pending in t.
func (t *Txn) Stat(dbi DBI) (*Stat, error) {
	const op = "stat"

	if err := t.requireReady(op); err != nil {
		return nil, err
	}
	b, info, err := t.bucket(op, dbi)
	if err != nil {
		return nil, err
	}
	return nativeStat(t.handle.tx, b, info.dup()), nil
}
