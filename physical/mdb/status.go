// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	bolt "go.etcd.io/bbolt"
)

// Status is a native status code returned by the storage engine. Zero is
// success; the negative values follow the classic LMDB numbering so that
// codes logged by this package can be compared against other bindings. The
// positive values are errno codes.
type Status int32

const (
	Success Status = 0

	KeyExist        Status = -30799
	NotFound        Status = -30798
	PageNotFound    Status = -30797
	Corrupted       Status = -30796
	Panic           Status = -30795
	VersionMismatch Status = -30794
	Invalid         Status = -30793
	MapFull         Status = -30792
	DbsFull         Status = -30791
	ReadersFull     Status = -30790
	TxnFull         Status = -30788
	CursorFull      Status = -30787
	PageFull        Status = -30786
	MapResized      Status = -30785
	Incompatible    Status = -30784
	BadRslot        Status = -30783
	BadTxn          Status = -30782
	BadValSize      Status = -30781
	BadDbi          Status = -30780

	EIO    = Status(syscall.EIO)
	EAGAIN = Status(syscall.EAGAIN)
	ENOMEM = Status(syscall.ENOMEM)
	EACCES = Status(syscall.EACCES)
	EBUSY  = Status(syscall.EBUSY)
	EINVAL = Status(syscall.EINVAL)
	ENOSPC = Status(syscall.ENOSPC)
)

var statusText = map[Status]string{
	Success:         "MDB_SUCCESS: Successful return",
	KeyExist:        "MDB_KEYEXIST: Key/data pair already exists",
	NotFound:        "MDB_NOTFOUND: No matching key/data pair found",
	PageNotFound:    "MDB_PAGE_NOTFOUND: Requested page not found",
	Corrupted:       "MDB_CORRUPTED: Located page was wrong type",
	Panic:           "MDB_PANIC: Update of meta page failed or environment had fatal error",
	VersionMismatch: "MDB_VERSION_MISMATCH: Database environment version mismatch",
	Invalid:         "MDB_INVALID: File is not an LMDB file",
	MapFull:         "MDB_MAP_FULL: Environment mapsize limit reached",
	DbsFull:         "MDB_DBS_FULL: Environment maxdbs limit reached",
	ReadersFull:     "MDB_READERS_FULL: Environment maxreaders limit reached",
	TxnFull:         "MDB_TXN_FULL: Transaction has too many dirty pages",
	CursorFull:      "MDB_CURSOR_FULL: Internal error - cursor stack limit reached",
	PageFull:        "MDB_PAGE_FULL: Internal error - page has no more space",
	MapResized:      "MDB_MAP_RESIZED: Database contents grew beyond environment mapsize",
	Incompatible:    "MDB_INCOMPATIBLE: Operation and DB incompatible, or DB flags changed",
	BadRslot:        "MDB_BAD_RSLOT: Invalid reuse of reader locktable slot",
	BadTxn:          "MDB_BAD_TXN: Transaction must abort, has a child, or is invalid",
	BadValSize:      "MDB_BAD_VALSIZE: Unsupported size of key/DB name/data, or wrong DUPFIXED size",
	BadDbi:          "MDB_BAD_DBI: The specified DBI handle was closed/changed unexpectedly",
}

// Error returns the engine's description of the status code.
func (s Status) Error() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	if s > 0 {
		return syscall.Errno(s).Error()
	}
	return fmt.Sprintf("unknown status %d", int32(s))
}

// statusOf translates an error produced by the engine into a native status
// code. Errors that are already a Status pass through unchanged.
func statusOf(err error) Status {
	if err == nil {
		return Success
	}

	var st Status
	if errors.As(err, &st) {
		return st
	}

	switch {
	case errors.Is(err, bolt.ErrBucketNotFound):
		return NotFound
	case errors.Is(err, bolt.ErrBucketExists):
		return KeyExist
	case errors.Is(err, bolt.ErrBucketNameRequired),
		errors.Is(err, bolt.ErrKeyRequired),
		errors.Is(err, bolt.ErrKeyTooLarge),
		errors.Is(err, bolt.ErrValueTooLarge):
		return BadValSize
	case errors.Is(err, bolt.ErrIncompatibleValue):
		return Incompatible
	case errors.Is(err, bolt.ErrTxNotWritable),
		errors.Is(err, bolt.ErrDatabaseReadOnly):
		return EACCES
	case errors.Is(err, bolt.ErrTxClosed):
		return BadTxn
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return EINVAL
	case errors.Is(err, bolt.ErrTimeout):
		return EBUSY
	case errors.Is(err, bolt.ErrInvalid):
		return Invalid
	case errors.Is(err, bolt.ErrVersionMismatch):
		return VersionMismatch
	case errors.Is(err, bolt.ErrChecksum):
		return Corrupted
	case errors.Is(err, syscall.ENOSPC):
		return ENOSPC
	case errors.Is(err, syscall.ENOMEM):
		return ENOMEM
	case errors.Is(err, os.ErrPermission):
		return EACCES
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return Status(errno)
	}
	return EIO
}
