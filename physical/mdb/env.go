// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/dustin/go-humanize"
	log "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/openbao/mdbkv/helper/osutil"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMapSize    = 32 * 1024 * 1024
	DefaultMaxDBs     = 128
	DefaultMaxReaders = 126
	DefaultMaxKeySize = 511
	DefaultFileMode   = 0o600
)

// DBI is a database handle. Handles are scoped to the Env: they are obtained
// through a transaction but remain valid after it ends, until the database
// is dropped.
type DBI uint32

const (
	invalidDBI DBI = iota
	defaultDBI
)

// dbiInfo is never modified once registered; changes replace the entry.
type dbiInfo struct {
	name   string
	bucket []byte
	flags  DbiOption
}

func (i *dbiInfo) dup() bool {
	return i.flags&DbiDupSort != 0
}

// Env is an open storage environment: one memory-mapped database file and
// the registry of database handles opened in it. An Env is safe for
// concurrent use; the transactions it creates are not.
type Env struct {
	db     *bolt.DB
	logger log.Logger

	path       string
	mapSize    int64
	pageSize   int
	maxDBs     int
	maxReaders int
	maxKeySize int
	readOnly   bool
	noSync     bool

	readers    *semaphore.Weighted
	numReaders *atomic.Int64
	live       *atomic.Int64
	closed     *atomic.Bool

	dbiLock  sync.RWMutex
	dbis     map[DBI]*dbiInfo
	dbiNames map[string]DBI
	nextDBI  DBI
}

// NewEnv opens (creating if needed) the environment described by conf.
//
// Recognized keys: path (required), map_size, max_dbs, max_readers,
// max_key_size, read_only, no_sync, timeout and file_mode.
func NewEnv(conf map[string]string, logger log.Logger) (*Env, error) {
	if logger == nil {
		logger = log.NewNullLogger()
	}

	path := conf["path"]
	if path == "" {
		return nil, errors.New("'path' must be set")
	}

	e := &Env{
		logger:     logger,
		path:       path,
		mapSize:    DefaultMapSize,
		maxDBs:     DefaultMaxDBs,
		maxReaders: DefaultMaxReaders,
		maxKeySize: DefaultMaxKeySize,
		numReaders: atomic.NewInt64(0),
		live:       atomic.NewInt64(0),
		closed:     atomic.NewBool(false),
		dbis:       make(map[DBI]*dbiInfo),
		dbiNames:   make(map[string]DBI),
		nextDBI:    defaultDBI + 1,
	}

	if v, ok := conf["map_size"]; ok {
		size, err := humanize.ParseBytes(v)
		if err != nil {
			return nil, fmt.Errorf("failed parsing map_size parameter: %w", err)
		}
		e.mapSize = int64(size)
	}

	for key, target := range map[string]*int{
		"max_dbs":      &e.maxDBs,
		"max_readers":  &e.maxReaders,
		"max_key_size": &e.maxKeySize,
	} {
		v, ok := conf[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("failed parsing %s parameter: %w", key, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("%s must not be negative", key)
		}
		*target = n
	}
	if e.maxReaders == 0 {
		return nil, errors.New("max_readers must be at least 1")
	}
	if e.maxKeySize == 0 || e.maxKeySize > bolt.MaxKeySize {
		e.maxKeySize = bolt.MaxKeySize
	}

	for key, target := range map[string]*bool{
		"read_only": &e.readOnly,
		"no_sync":   &e.noSync,
	} {
		v, ok := conf[key]
		if !ok {
			continue
		}
		b, err := parseutil.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("failed parsing %s parameter: %w", key, err)
		}
		*target = b
	}

	var timeout time.Duration
	if v, ok := conf["timeout"]; ok {
		d, err := parseutil.ParseDurationSecond(v)
		if err != nil {
			return nil, fmt.Errorf("failed parsing timeout parameter: %w", err)
		}
		timeout = d
	}

	mode := os.FileMode(DefaultFileMode)
	if v, ok := conf["file_mode"]; ok {
		m, err := strconv.ParseUint(v, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("failed parsing file_mode parameter: %w", err)
		}
		mode = os.FileMode(m)
	}

	e.readers = semaphore.NewWeighted(int64(e.maxReaders))

	if err := osutil.CheckDataFilePermissions(path); err != nil {
		e.logger.Warn("data file permissions", "error", err)
	}

	db, err := bolt.Open(path, mode, &bolt.Options{
		Timeout:         timeout,
		NoSync:          e.noSync,
		ReadOnly:        e.readOnly,
		InitialMmapSize: int(e.mapSize),
	})
	if err != nil {
		return nil, check("env open", err)
	}
	e.db = db
	e.pageSize = db.Info().PageSize

	if err := e.init(); err != nil {
		db.Close()
		return nil, err
	}

	e.logger.Debug("environment opened", "path", path, "map_size", humanize.IBytes(uint64(e.mapSize)), "read_only", e.readOnly)
	return e, nil
}

// init creates the default database on a writable environment and
// registers its handle.
func (e *Env) init() error {
	var flags DbiOption
	if e.readOnly {
		err := e.db.View(func(tx *bolt.Tx) error {
			flags, _ = readFlags(tx, defaultBucket)
			return nil
		})
		if err != nil {
			return check("env open", err)
		}
	} else {
		err := e.db.Update(func(tx *bolt.Tx) error {
			if _, err := tx.CreateBucketIfNotExists(defaultBucket); err != nil {
				return err
			}
			stored, ok := readFlags(tx, defaultBucket)
			if !ok {
				return writeFlags(tx, defaultBucket, 0)
			}
			flags = stored
			return nil
		})
		if err != nil {
			return check("env open", err)
		}
	}

	info := &dbiInfo{bucket: defaultBucket, flags: flags}
	e.dbis[defaultDBI] = info
	e.dbiNames[""] = defaultDBI
	return nil
}

// BeginTxn starts a transaction. When parent is non-nil the new transaction
// is nested inside it; see Txn.Begin.
func (e *Env) BeginTxn(parent *Txn, opts ...TxnOption) (*Txn, error) {
	if parent != nil {
		return parent.Begin(opts...)
	}
	return e.beginTxn(toFlags(opts))
}

// Update runs fn inside a read-write transaction, committing it if fn
// returns nil and aborting it otherwise.
func (e *Env) Update(fn func(*Txn) error) error {
	txn, err := e.BeginTxn(nil)
	if err != nil {
		return err
	}
	defer txn.Release()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// View runs fn inside a read-only transaction.
func (e *Env) View(fn func(*Txn) error) error {
	txn, err := e.BeginTxn(nil, TxnReadOnly)
	if err != nil {
		return err
	}
	defer txn.Release()

	return fn(txn)
}

func (e *Env) acquireReader() error {
	if !e.readers.TryAcquire(1) {
		return ReadersFull
	}
	n := e.numReaders.Inc()
	metrics.SetGauge([]string{"mdb", "env", "readers"}, float32(n))
	return nil
}

func (e *Env) releaseReader() {
	n := e.numReaders.Dec()
	e.readers.Release(1)
	metrics.SetGauge([]string{"mdb", "env", "readers"}, float32(n))
}

func (e *Env) dbi(dbi DBI) (*dbiInfo, bool) {
	e.dbiLock.RLock()
	defer e.dbiLock.RUnlock()

	info, ok := e.dbis[dbi]
	return info, ok
}

// registerDBI returns the handle for name, allocating one if the name is not
// registered yet. created reports whether a new handle was allocated. The
// flags of an existing handle are replaced only when adopt is set, which is
// the case for a writer that just stored new flags.
func (e *Env) registerDBI(name string, bucket []byte, flags DbiOption, adopt bool) (DBI, bool, error) {
	e.dbiLock.Lock()
	defer e.dbiLock.Unlock()

	if dbi, ok := e.dbiNames[name]; ok {
		if info := e.dbis[dbi]; adopt && info.flags != flags {
			e.dbis[dbi] = &dbiInfo{name: info.name, bucket: info.bucket, flags: flags}
		}
		return dbi, false, nil
	}

	// The default database does not count against max_dbs.
	named := len(e.dbiNames)
	if _, ok := e.dbiNames[""]; ok {
		named--
	}
	if name != "" && named >= e.maxDBs {
		return invalidDBI, false, DbsFull
	}

	dbi := e.nextDBI
	e.nextDBI++
	e.dbis[dbi] = &dbiInfo{name: name, bucket: bucket, flags: flags}
	e.dbiNames[name] = dbi
	return dbi, true, nil
}

func (e *Env) unregisterDBI(dbi DBI) *dbiInfo {
	e.dbiLock.Lock()
	defer e.dbiLock.Unlock()

	info, ok := e.dbis[dbi]
	if !ok {
		return nil
	}
	delete(e.dbis, dbi)
	if e.dbiNames[info.name] == dbi {
		delete(e.dbiNames, info.name)
	}
	return info
}

func (e *Env) restoreDBI(dbi DBI, info *dbiInfo) {
	e.dbiLock.Lock()
	defer e.dbiLock.Unlock()

	e.dbis[dbi] = info
	e.dbiNames[info.name] = dbi
}

func (e *Env) setDBIFlags(bucket []byte, flags DbiOption) {
	e.dbiLock.Lock()
	defer e.dbiLock.Unlock()

	for dbi, info := range e.dbis {
		if string(info.bucket) == string(bucket) && info.flags != flags {
			e.dbis[dbi] = &dbiInfo{name: info.name, bucket: info.bucket, flags: flags}
		}
	}
}

// DBIName returns the name a handle was opened with; the default database
// is named "".
func (e *Env) DBIName(dbi DBI) (string, bool) {
	info, ok := e.dbi(dbi)
	if !ok {
		return "", false
	}
	return info.name, true
}

func (e *Env) Path() string {
	return e.path
}

// MaxKeySize is the largest key, and dup-sort value, accepted by Put.
func (e *Env) MaxKeySize() int {
	return e.maxKeySize
}

func (e *Env) ReadOnly() bool {
	return e.readOnly
}

// EnvInfo describes the environment.
type EnvInfo struct {
	MapSize    int64
	Size       int64
	PageSize   int
	LastTxnID  int
	MaxReaders int
	NumReaders int
	MaxDBs     int
	NumDBs     int
}

func (e *Env) Info() (*EnvInfo, error) {
	info := &EnvInfo{
		MapSize:    e.mapSize,
		PageSize:   e.db.Info().PageSize,
		MaxReaders: e.maxReaders,
		MaxDBs:     e.maxDBs,
	}

	err := e.View(func(txn *Txn) error {
		info.Size = txn.handle.tx.Size()
		info.LastTxnID = txn.handle.tx.ID()
		return nil
	})
	if err != nil {
		return nil, err
	}

	info.NumReaders = int(e.numReaders.Load())
	e.dbiLock.RLock()
	info.NumDBs = len(e.dbis)
	e.dbiLock.RUnlock()
	return info, nil
}

// Stat returns statistics for the default database.
func (e *Env) Stat() (*Stat, error) {
	var st *Stat
	err := e.View(func(txn *Txn) error {
		var err error
		st, err = txn.Stat(defaultDBI)
		return err
	})
	return st, err
}

// Sync flushes the data file to disk. Unless force is set this is a no-op
// when the environment was opened with no_sync, matching how commits
// behave.
func (e *Env) Sync(force bool) error {
	if e.readOnly || (e.noSync && !force) {
		return nil
	}
	return check("env sync", e.db.Sync())
}

// Copy writes a consistent snapshot of the environment to path. The copy is
// written beside path and moved into place once complete.
func (e *Env) Copy(path string) error {
	tmp := path + ".tmp"
	err := e.View(func(txn *Txn) error {
		return check("env copy", txn.handle.tx.CopyFile(tmp, DefaultFileMode))
	})
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := osutil.ReplaceFile(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move copy into place: %w", err)
	}
	return nil
}

// Close closes the environment. It fails with EBUSY while transactions are
// still live, since the engine cannot unmap the file under them.
func (e *Env) Close() error {
	if e.live.Load() > 0 {
		return check("env close", EBUSY)
	}
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	var result *multierror.Error
	if !e.readOnly && e.noSync {
		if err := e.db.Sync(); err != nil {
			result = multierror.Append(result, check("env sync", err))
		}
	}
	if err := e.db.Close(); err != nil {
		result = multierror.Append(result, check("env close", err))
	}

	e.logger.Debug("environment closed", "path", e.path)
	return result.ErrorOrNil()
}
