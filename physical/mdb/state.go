// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

// TxnState is the lifecycle state of a Txn.
type TxnState uint8

const (
	// Ready transactions accept reads and writes.
	Ready TxnState = iota + 1
	// Done transactions have been committed or aborted.
	Done
	// Reset is a parked read-only transaction: its snapshot is released but
	// the handle and reader slot are kept for Renew.
	Reset
	// Released transactions have freed their handle and are inert.
	Released
)

func (s TxnState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Done:
		return "done"
	case Reset:
		return "reset"
	case Released:
		return "released"
	}
	return "unknown"
}
