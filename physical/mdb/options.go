// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import "strings"

// TxnOption configures a transaction at begin time.
type TxnOption uint32

const (
	TxnReadOnly TxnOption = 1 << iota
)

// DbiOption configures how a database is opened. DbiDupSort is persistent:
// it is recorded with the database when it is created.
type DbiOption uint32

const (
	DbiCreate DbiOption = 1 << iota
	DbiDupSort
)

const persistentDbiFlags = DbiDupSort

// PutOption selects the behavior of a put.
type PutOption uint32

const (
	// PutNoOverwrite fails with KeyExist if the key is already present.
	PutNoOverwrite PutOption = 1 << iota
	// PutNoDupData fails with KeyExist if the exact key/value pair is
	// already present in a dup-sort database.
	PutNoDupData
	// PutAppend asserts the key sorts after every existing key.
	PutAppend
	// PutAppendDup asserts the value sorts after every existing value of
	// the key in a dup-sort database.
	PutAppendDup
	// PutReserve reserves space for the value to be written in place; only
	// accepted through PutReserve.
	PutReserve
)

var putOptionNames = []struct {
	opt  PutOption
	name string
}{
	{PutNoOverwrite, "no-overwrite"},
	{PutNoDupData, "no-dup-data"},
	{PutAppend, "append"},
	{PutAppendDup, "append-dup"},
	{PutReserve, "reserve"},
}

func (o PutOption) String() string {
	var names []string
	for _, n := range putOptionNames {
		if o&n.opt != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

func toFlags[T ~uint32](opts []T) T {
	var flags T
	for _, o := range opts {
		flags |= o
	}
	return flags
}
