// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

// Byte slices crossing into the engine are referenced by it until the
// transaction commits, and slices coming out of it point into the memory
// map and are invalid once the transaction ends. Both directions copy.

// newVal copies caller-owned bytes into memory owned by the engine.
func newVal(b []byte) []byte {
	v := make([]byte, len(b))
	copy(v, b)
	return v
}

// valBytes copies bytes read from the memory map out to the caller. A nil
// input stays nil so that absent values remain distinguishable.
func valBytes(v []byte) []byte {
	if v == nil {
		return nil
	}
	ret := make([]byte, len(v))
	copy(ret, v)
	return ret
}

func (e *Env) checkKey(key []byte) error {
	if len(key) == 0 || len(key) > e.maxKeySize {
		return BadValSize
	}
	return nil
}

// checkDupVal validates a value stored in a dup-sort database, where values
// are themselves ordered keys and carry the key size limit.
func (e *Env) checkDupVal(val []byte) error {
	return e.checkKey(val)
}
