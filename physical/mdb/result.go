// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

// Result is the outcome of a point lookup or cursor positioning. Value is
// only meaningful when Found reports true; both slices are owned by the
// caller.
type Result struct {
	Status Status
	Key    []byte
	Value  []byte
}

func (r Result) Found() bool {
	return r.Status == Success
}

func notFound(key []byte) Result {
	return Result{Status: NotFound, Key: valBytes(key)}
}

func found(key, value []byte) Result {
	return Result{Status: Success, Key: valBytes(key), Value: valBytes(value)}
}
