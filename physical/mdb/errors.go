// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidState is matched (via errors.Is) by every *StateError.
	ErrInvalidState = errors.New("transaction is in an invalid state")

	// ErrNestedActive is returned when an operation is issued against a
	// transaction while one of its nested transactions is still open.
	ErrNestedActive = errors.New("transaction has an open nested transaction")

	// ErrCursorClosed is returned by every cursor operation after Close.
	ErrCursorClosed = errors.New("cursor is closed")
)

// Error is a failure reported by the storage engine.
type Error struct {
	Op   string
	Code Status

	// Err is the underlying engine error, if the status was translated
	// from one.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mdb: %s: %s", e.Op, e.Code.Error())
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Code
}

// StateError is returned when an operation is attempted on a transaction
// that is not in a state permitting it. It always indicates a programming
// error in the caller.
type StateError struct {
	Op   string
	Want []TxnState
	Have TxnState
}

func (e *StateError) Error() string {
	want := make([]string, 0, len(e.Want))
	for _, s := range e.Want {
		want = append(want, s.String())
	}
	return fmt.Sprintf("mdb: %s: transaction is %s, must be %s", e.Op, e.Have, strings.Join(want, " or "))
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// check is the strict classifier: any non-success status is a failure.
func check(op string, err error) error {
	code := statusOf(err)
	if code == Success {
		return nil
	}
	e := &Error{Op: op, Code: code}
	if _, ok := err.(Status); !ok {
		e.Err = err
	}
	return e
}

// checkRead is the tolerant classifier used on the read path: NotFound is a
// valid negative outcome and is returned as data.
func checkRead(op string, err error) (Status, error) {
	code := statusOf(err)
	switch code {
	case Success, NotFound:
		return code, nil
	}
	return code, check(op, err)
}

// IsNotFound reports whether err is an engine NotFound failure.
func IsNotFound(err error) bool {
	return IsErrno(err, NotFound)
}

// IsErrno reports whether err carries the given native status code.
func IsErrno(err error, code Status) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	var st Status
	if errors.As(err, &st) {
		return st == code
	}
	return false
}
