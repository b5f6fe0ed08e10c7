// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func beginTxn(t *testing.T, env *Env, opts ...TxnOption) *Txn {
	t.Helper()
	txn, err := env.BeginTxn(nil, opts...)
	require.NoError(t, err)
	t.Cleanup(txn.Release)
	return txn
}

func putCommitted(t *testing.T, env *Env, dbi DBI, pairs ...string) {
	t.Helper()
	err := env.Update(func(txn *Txn) error {
		for i := 0; i+1 < len(pairs); i += 2 {
			if err := txn.Put(dbi, []byte(pairs[i]), []byte(pairs[i+1])); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func requireValue(t *testing.T, txn *Txn, dbi DBI, key, want string) {
	t.Helper()
	res, err := txn.Get(dbi, []byte(key))
	require.NoError(t, err)
	require.True(t, res.Found(), "key %q not found", key)
	require.Equal(t, want, string(res.Value))
	require.Equal(t, key, string(res.Key))
}

func requireMissing(t *testing.T, txn *Txn, dbi DBI, key string) {
	t.Helper()
	res, err := txn.Get(dbi, []byte(key))
	require.NoError(t, err)
	require.False(t, res.Found(), "key %q unexpectedly found", key)
	require.Equal(t, NotFound, res.Status)
	require.Nil(t, res.Value)
}

func TestTxn_CommitVisibleToNewTxn(t *testing.T) {
	env := GetEnv(t, nil)

	txn := beginTxn(t, env)
	require.Equal(t, Ready, txn.State())
	dbi, err := txn.OpenDatabase("")
	require.NoError(t, err)
	require.NoError(t, txn.Put(dbi, []byte("a"), []byte("1")))
	require.NoError(t, txn.Commit())
	require.Equal(t, Done, txn.State())

	ro := beginTxn(t, env, TxnReadOnly)
	requireValue(t, ro, dbi, "a", "1")
}

func TestTxn_AbortDiscards(t *testing.T) {
	env := GetEnv(t, nil)

	txn := beginTxn(t, env)
	require.NoError(t, txn.Put(defaultDBI, []byte("a"), []byte("1")))
	require.NoError(t, txn.Abort())
	require.Equal(t, Done, txn.State())

	_, err := txn.Get(defaultDBI, []byte("a"))
	require.ErrorIs(t, err, ErrInvalidState)
	var se *StateError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "get", se.Op)
	require.Equal(t, Done, se.Have)
	require.Equal(t, []TxnState{Ready}, se.Want)

	ro := beginTxn(t, env, TxnReadOnly)
	requireMissing(t, ro, defaultDBI, "a")
}

func TestTxn_TerminalOnce(t *testing.T) {
	env := GetEnv(t, nil)

	txn := beginTxn(t, env)
	require.NoError(t, txn.Commit())
	require.ErrorIs(t, txn.Commit(), ErrInvalidState)
	require.ErrorIs(t, txn.Abort(), ErrInvalidState)

	txn = beginTxn(t, env)
	require.NoError(t, txn.Abort())
	require.ErrorIs(t, txn.Abort(), ErrInvalidState)
	require.ErrorIs(t, txn.Commit(), ErrInvalidState)
}

func TestTxn_ReleaseIsFinal(t *testing.T) {
	env := GetEnv(t, nil)

	for _, end := range []string{"commit", "abort", "none"} {
		txn, err := env.BeginTxn(nil)
		require.NoError(t, err)
		switch end {
		case "commit":
			require.NoError(t, txn.Commit())
		case "abort":
			require.NoError(t, txn.Abort())
		}

		txn.Release()
		require.Equal(t, Released, txn.State())
		require.Zero(t, txn.ID())

		ops := map[string]func() error{
			"get":    func() error { _, err := txn.Get(defaultDBI, []byte("k")); return err },
			"put":    func() error { return txn.Put(defaultDBI, []byte("k"), []byte("v")) },
			"delete": func() error { return txn.Delete(defaultDBI, []byte("k")) },
			"drop":   func() error { return txn.Drop(defaultDBI) },
			"empty":  func() error { return txn.Empty(defaultDBI) },
			"open":   func() error { _, err := txn.OpenDatabase(""); return err },
			"cursor": func() error { _, err := txn.OpenCursor(defaultDBI); return err },
			"begin":  func() error { _, err := txn.Begin(); return err },
			"commit": txn.Commit,
			"abort":  txn.Abort,
			"reset":  txn.Reset,
			"renew":  txn.Renew,
			"stat":   func() error { _, err := txn.Stat(defaultDBI); return err },
		}
		for name, op := range ops {
			require.ErrorIs(t, op(), ErrInvalidState, "%s after %s", name, end)
		}

		// Second release is a no-op.
		txn.Release()
		require.Equal(t, Released, txn.State())
	}
}

func TestTxn_ReleaseAbortsReady(t *testing.T) {
	env := GetEnv(t, nil)

	txn, err := env.BeginTxn(nil)
	require.NoError(t, err)
	require.NoError(t, txn.Put(defaultDBI, []byte("k"), []byte("v")))
	txn.Release()

	ro := beginTxn(t, env, TxnReadOnly)
	requireMissing(t, ro, defaultDBI, "k")
}

func TestTxn_ReadYourWrites(t *testing.T) {
	env := GetEnv(t, nil)
	putCommitted(t, env, defaultDBI, "k", "old")

	txn := beginTxn(t, env)
	requireValue(t, txn, defaultDBI, "k", "old")
	require.NoError(t, txn.Put(defaultDBI, []byte("k"), []byte("new")))
	requireValue(t, txn, defaultDBI, "k", "new")

	require.NoError(t, txn.Delete(defaultDBI, []byte("k")))
	requireMissing(t, txn, defaultDBI, "k")
}

func TestTxn_ValuesAreCopied(t *testing.T) {
	env := GetEnv(t, nil)

	txn := beginTxn(t, env)
	key := []byte("k")
	val := []byte("value")
	require.NoError(t, txn.Put(defaultDBI, key, val))

	// Mutating the caller's buffers after the put must not change what is
	// stored.
	key[0] = 'x'
	val[0] = 'X'
	requireValue(t, txn, defaultDBI, "k", "value")

	res, err := txn.Get(defaultDBI, []byte("k"))
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	// Results stay valid after the transaction ends.
	require.Equal(t, "value", string(res.Value))
}

func TestTxn_GetMissingNeverFails(t *testing.T) {
	env := GetEnv(t, nil)

	for _, opts := range [][]TxnOption{nil, {TxnReadOnly}} {
		txn := beginTxn(t, env, opts...)
		for _, key := range []string{"a", "missing", "zzz"} {
			requireMissing(t, txn, defaultDBI, key)
		}
		txn.Release()
	}
}

func TestTxn_InvalidKeySize(t *testing.T) {
	env := GetEnv(t, map[string]string{"max_key_size": "8"})

	txn := beginTxn(t, env)
	err := txn.Put(defaultDBI, nil, []byte("v"))
	require.True(t, IsErrno(err, BadValSize))

	err = txn.Put(defaultDBI, []byte("123456789"), []byte("v"))
	require.True(t, IsErrno(err, BadValSize))

	_, err = txn.Get(defaultDBI, []byte(""))
	require.True(t, IsErrno(err, BadValSize))

	require.NoError(t, txn.Put(defaultDBI, []byte("12345678"), []byte("v")))
}

func TestTxn_DeleteMissingFails(t *testing.T) {
	env := GetEnv(t, nil)

	txn := beginTxn(t, env)
	err := txn.Delete(defaultDBI, []byte("missing"))
	require.Error(t, err)
	require.True(t, IsNotFound(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "delete", e.Op)

	// The failed delete leaves the transaction usable.
	require.Equal(t, Ready, txn.State())
	require.NoError(t, txn.Put(defaultDBI, []byte("k"), []byte("v")))
}

func TestTxn_PutNoOverwrite(t *testing.T) {
	env := GetEnv(t, nil)
	putCommitted(t, env, defaultDBI, "k", "v1")

	txn := beginTxn(t, env)
	err := txn.Put(defaultDBI, []byte("k"), []byte("v2"), PutNoOverwrite)
	require.True(t, IsErrno(err, KeyExist))
	requireValue(t, txn, defaultDBI, "k", "v1")

	require.NoError(t, txn.Put(defaultDBI, []byte("k2"), []byte("v2"), PutNoOverwrite))
	require.NoError(t, txn.Put(defaultDBI, []byte("k"), []byte("v3")))
	requireValue(t, txn, defaultDBI, "k", "v3")
}

func TestTxn_PutAppend(t *testing.T) {
	env := GetEnv(t, nil)

	txn := beginTxn(t, env)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, txn.Put(defaultDBI, []byte(k), []byte(k), PutAppend))
	}

	err := txn.Put(defaultDBI, []byte("b"), []byte("x"), PutAppend)
	require.True(t, IsErrno(err, KeyExist))
	err = txn.Put(defaultDBI, []byte("c"), []byte("x"), PutAppend)
	require.True(t, IsErrno(err, KeyExist))
	requireValue(t, txn, defaultDBI, "c", "c")
}

func TestTxn_PutReserve(t *testing.T) {
	env := GetEnv(t, nil)

	txn := beginTxn(t, env)
	buf, err := txn.PutReserve(defaultDBI, []byte("k"), 5)
	require.NoError(t, err)
	require.Len(t, buf, 5)
	copy(buf, "hello")
	require.NoError(t, txn.Commit())

	ro := beginTxn(t, env, TxnReadOnly)
	requireValue(t, ro, defaultDBI, "k", "hello")

	// The reserve option is only meaningful through PutReserve.
	w := beginTxn(t, env)
	err = w.Put(defaultDBI, []byte("k"), []byte("v"), PutReserve)
	require.True(t, IsErrno(err, EINVAL))
	_, err = w.PutReserve(defaultDBI, []byte("k"), 1, PutNoOverwrite)
	require.True(t, IsErrno(err, KeyExist))
}

func TestTxn_ReadOnlyRejectsWrites(t *testing.T) {
	env := GetEnv(t, nil)

	ro := beginTxn(t, env, TxnReadOnly)
	require.True(t, ro.ReadOnly())

	require.True(t, IsErrno(ro.Put(defaultDBI, []byte("k"), []byte("v")), EACCES))
	require.True(t, IsErrno(ro.Delete(defaultDBI, []byte("k")), EACCES))
	require.True(t, IsErrno(ro.Empty(defaultDBI), EACCES))
	require.True(t, IsErrno(ro.Drop(defaultDBI), EACCES))

	_, err := ro.Begin()
	require.True(t, IsErrno(err, EINVAL))
}

func TestTxn_DropInvalidatesHandle(t *testing.T) {
	env := GetEnv(t, nil)

	txn := beginTxn(t, env)
	dbi, err := txn.OpenDatabase("things", DbiCreate)
	require.NoError(t, err)
	require.NoError(t, txn.Put(dbi, []byte("a"), []byte("1")))
	require.NoError(t, txn.Drop(dbi))

	_, err = txn.Get(dbi, []byte("a"))
	require.True(t, IsErrno(err, BadDbi))
	require.True(t, IsErrno(txn.Put(dbi, []byte("a"), []byte("1")), BadDbi))
	require.NoError(t, txn.Commit())

	_, ok := env.DBIName(dbi)
	require.False(t, ok)

	ro := beginTxn(t, env, TxnReadOnly)
	_, err = ro.OpenDatabase("things")
	require.True(t, IsNotFound(err))
}

func TestTxn_DropDefaultEmpties(t *testing.T) {
	env := GetEnv(t, nil)
	putCommitted(t, env, defaultDBI, "a", "1")

	txn := beginTxn(t, env)
	require.NoError(t, txn.Drop(defaultDBI))
	requireMissing(t, txn, defaultDBI, "a")
	require.NoError(t, txn.Put(defaultDBI, []byte("b"), []byte("2")))
	require.NoError(t, txn.Commit())
}

func TestTxn_EmptyKeepsHandle(t *testing.T) {
	env := GetEnv(t, nil)

	var dbi DBI
	err := env.Update(func(txn *Txn) error {
		var err error
		dbi, err = txn.OpenDatabase("things", DbiCreate)
		if err != nil {
			return err
		}
		return txn.Put(dbi, []byte("a"), []byte("1"))
	})
	require.NoError(t, err)
	putCommitted(t, env, dbi, "b", "2")

	txn := beginTxn(t, env)
	require.NoError(t, txn.Empty(dbi))
	requireMissing(t, txn, dbi, "a")
	requireMissing(t, txn, dbi, "b")
	require.NoError(t, txn.Put(dbi, []byte("c"), []byte("3")))
	require.NoError(t, txn.Commit())

	ro := beginTxn(t, env, TxnReadOnly)
	requireMissing(t, ro, dbi, "a")
	requireValue(t, ro, dbi, "c", "3")

	st, err := ro.Stat(dbi)
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.Entries)
}

func TestTxn_ResetRenew(t *testing.T) {
	env := GetEnv(t, nil)
	putCommitted(t, env, defaultDBI, "a", "1")

	ro := beginTxn(t, env, TxnReadOnly)
	requireValue(t, ro, defaultDBI, "a", "1")

	require.NoError(t, ro.Reset())
	require.Equal(t, Reset, ro.State())
	require.Zero(t, ro.ID())

	_, err := ro.Get(defaultDBI, []byte("a"))
	require.ErrorIs(t, err, ErrInvalidState)
	require.ErrorIs(t, ro.Reset(), ErrInvalidState)
	require.ErrorIs(t, ro.Commit(), ErrInvalidState)

	// A write committed while parked is visible after renew.
	putCommitted(t, env, defaultDBI, "a", "2")

	require.NoError(t, ro.Renew())
	require.Equal(t, Ready, ro.State())
	requireValue(t, ro, defaultDBI, "a", "2")
	require.ErrorIs(t, ro.Renew(), ErrInvalidState)

	// Reset is also valid once the transaction is done.
	require.NoError(t, ro.Commit())
	require.NoError(t, ro.Reset())
	require.NoError(t, ro.Renew())
	requireValue(t, ro, defaultDBI, "a", "2")
}

func TestTxn_ResetRequiresReadOnly(t *testing.T) {
	env := GetEnv(t, nil)

	txn := beginTxn(t, env)
	require.True(t, IsErrno(txn.Reset(), EINVAL))
	require.Equal(t, Ready, txn.State())
	require.ErrorIs(t, txn.Renew(), ErrInvalidState)
}

func TestTxn_ReleaseFromReset(t *testing.T) {
	env := GetEnv(t, map[string]string{"max_readers": "1"})

	ro, err := env.BeginTxn(nil, TxnReadOnly)
	require.NoError(t, err)
	require.NoError(t, ro.Reset())

	// The reader slot is held while reset.
	_, err = env.BeginTxn(nil, TxnReadOnly)
	require.True(t, IsErrno(err, ReadersFull))

	ro.Release()
	require.Equal(t, Released, ro.State())

	ro2 := beginTxn(t, env, TxnReadOnly)
	require.Equal(t, Ready, ro2.State())
}

func TestTxn_Accessors(t *testing.T) {
	env := GetEnv(t, nil)

	txn := beginTxn(t, env)
	require.Same(t, env, txn.Env())
	require.Nil(t, txn.Parent())
	require.False(t, txn.ReadOnly())
	require.NotZero(t, txn.ID())
}

func TestTxn_UpdateAbortsOnError(t *testing.T) {
	env := GetEnv(t, nil)

	errBoom := errors.New("boom")
	err := env.Update(func(txn *Txn) error {
		if err := txn.Put(defaultDBI, []byte("k"), []byte("v")); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	err = env.View(func(txn *Txn) error {
		requireMissing(t, txn, defaultDBI, "k")
		return nil
	})
	require.NoError(t, err)
}
