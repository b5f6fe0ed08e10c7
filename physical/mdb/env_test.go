// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package mdb

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func TestNewEnv_Config(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")

	cases := map[string]map[string]string{
		"missing path":      {},
		"bad map_size":      {"path": path, "map_size": "lots"},
		"bad max_dbs":       {"path": path, "max_dbs": "many"},
		"negative max_dbs":  {"path": path, "max_dbs": "-1"},
		"zero max_readers":  {"path": path, "max_readers": "0"},
		"bad read_only":     {"path": path, "read_only": "perhaps"},
		"bad no_sync":       {"path": path, "no_sync": "2"},
		"bad timeout":       {"path": path, "timeout": "soon"},
		"bad file_mode":     {"path": path, "file_mode": "rw-------"},
		"bad max_key_size":  {"path": path, "max_key_size": "1k"},
		"read-only missing": {"path": filepath.Join(dir, "nope.db"), "read_only": "true"},
	}
	for name, conf := range cases {
		t.Run(name, func(t *testing.T) {
			env, err := NewEnv(conf, hclog.NewNullLogger())
			require.Error(t, err)
			require.Nil(t, env)
		})
	}
}

func TestNewEnv_Options(t *testing.T) {
	env := GetEnv(t, map[string]string{
		"map_size":     "64MiB",
		"max_dbs":      "4",
		"max_readers":  "8",
		"max_key_size": "100",
		"no_sync":      "true",
		"timeout":      "5",
		"file_mode":    "0640",
	})

	info, err := env.Info()
	require.NoError(t, err)
	require.Equal(t, int64(64*1024*1024), info.MapSize)
	require.Equal(t, 4, info.MaxDBs)
	require.Equal(t, 8, info.MaxReaders)
	require.Equal(t, 1, info.NumDBs)
	require.Equal(t, 100, env.MaxKeySize())
	require.False(t, env.ReadOnly())
	require.NotZero(t, info.PageSize)
	require.NotZero(t, info.Size)

	fi, err := os.Stat(env.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o640), fi.Mode().Perm())

	require.NoError(t, env.Sync(false))
	require.NoError(t, env.Sync(true))
}

func TestNewEnv_MaxKeySizeClamped(t *testing.T) {
	env := GetEnv(t, map[string]string{"max_key_size": "0"})
	require.Greater(t, env.MaxKeySize(), DefaultMaxKeySize)
}

func TestEnv_ReadersFull(t *testing.T) {
	env := GetEnv(t, map[string]string{"max_readers": "2"})

	r1 := beginTxn(t, env, TxnReadOnly)
	beginTxn(t, env, TxnReadOnly)

	_, err := env.BeginTxn(nil, TxnReadOnly)
	require.True(t, IsErrno(err, ReadersFull))

	info, err := env.Info()
	require.True(t, IsErrno(err, ReadersFull))
	require.Nil(t, info)

	// Write transactions do not take a reader slot.
	w := beginTxn(t, env)
	require.NoError(t, w.Abort())

	r1.Release()
	info, err = env.Info()
	require.NoError(t, err)
	require.Equal(t, 1, info.NumReaders)
}

func TestEnv_CloseBusy(t *testing.T) {
	env := GetEnv(t, nil)

	txn, err := env.BeginTxn(nil, TxnReadOnly)
	require.NoError(t, err)
	require.True(t, IsErrno(env.Close(), EBUSY))

	txn.Release()
	require.NoError(t, env.Close())
	require.NoError(t, env.Close())

	_, err = env.BeginTxn(nil)
	require.True(t, IsErrno(err, EINVAL))
}

func TestEnv_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	conf := map[string]string{"path": path}

	env, err := NewEnv(conf, hclog.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, env.Update(func(txn *Txn) error {
		dbi, err := txn.OpenDatabase("multi", DbiCreate, DbiDupSort)
		if err != nil {
			return err
		}
		if err := txn.Put(dbi, []byte("k"), []byte("a")); err != nil {
			return err
		}
		if err := txn.Put(dbi, []byte("k"), []byte("b")); err != nil {
			return err
		}
		return txn.Put(defaultDBI, []byte("plain"), []byte("v"))
	}))
	require.NoError(t, env.Close())

	env, err = NewEnv(conf, hclog.NewNullLogger())
	require.NoError(t, err)
	defer env.Close()

	require.NoError(t, env.View(func(txn *Txn) error {
		requireValue(t, txn, defaultDBI, "plain", "v")

		// The stored options come back without being asked for.
		dbi, err := txn.OpenDatabase("multi")
		require.NoError(t, err)
		c, err := txn.OpenCursor(dbi)
		require.NoError(t, err)
		if _, err := c.Set([]byte("k")); err != nil {
			return err
		}
		n, err := c.Count()
		require.NoError(t, err)
		require.Equal(t, uint64(2), n)
		return nil
	}))
}

func TestEnv_Stat(t *testing.T) {
	env := GetEnv(t, nil)
	putCommitted(t, env, defaultDBI, "a", "1", "b", "2", "c", "3")

	st, err := env.Stat()
	require.NoError(t, err)
	require.Equal(t, uint64(3), st.Entries)
	require.NotZero(t, st.PageSize)
}

func TestEnv_CopyReadOnly(t *testing.T) {
	env := GetEnv(t, nil)
	putCommitted(t, env, defaultDBI, "a", "1")

	dest := filepath.Join(t.TempDir(), "copy.db")
	require.NoError(t, env.Copy(dest))
	_, err := os.Stat(dest + ".tmp")
	require.True(t, os.IsNotExist(err))

	cp := GetEnv(t, map[string]string{"path": dest, "read_only": "true"})
	require.True(t, cp.ReadOnly())

	ro := beginTxn(t, cp, TxnReadOnly)
	requireValue(t, ro, defaultDBI, "a", "1")
	_, err = ro.OpenDatabase("new", DbiCreate)
	require.True(t, IsErrno(err, EACCES))
	ro.Release()

	_, err = cp.BeginTxn(nil)
	require.True(t, IsErrno(err, EACCES))
}

func TestEnv_MapFull(t *testing.T) {
	const mapSize = 1 << 20
	env := GetEnv(t, map[string]string{"map_size": "1MiB"})
	val := make([]byte, 4096)

	// One transaction writing four times the map.
	txn := beginTxn(t, env)
	for i := 0; i < 1024; i++ {
		require.NoError(t, txn.Put(defaultDBI, []byte(fmt.Sprintf("k%04d", i)), val))
	}
	require.True(t, IsErrno(txn.Commit(), MapFull))
	require.Equal(t, Done, txn.State())

	ro := beginTxn(t, env, TxnReadOnly)
	requireMissing(t, ro, defaultDBI, "k0000")
	ro.Release()

	// Smaller transactions commit until the map is used up.
	var err error
	committed := 0
	for i := 0; i < 32 && err == nil; i++ {
		err = env.Update(func(txn *Txn) error {
			for j := 0; j < 16; j++ {
				key := []byte(fmt.Sprintf("b%02d-%02d", i, j))
				if err := txn.Put(defaultDBI, key, val); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			committed += 16 * len(val)
		}
	}
	require.True(t, IsErrno(err, MapFull), "err = %v", err)
	require.NotZero(t, committed)
	require.LessOrEqual(t, committed, mapSize)

	ro = beginTxn(t, env, TxnReadOnly)
	requireMissing(t, ro, defaultDBI, "k0000")
	res, err := ro.Get(defaultDBI, []byte("b00-00"))
	require.NoError(t, err)
	require.True(t, res.Found())
}

func TestWriteCost(t *testing.T) {
	require.Equal(t, int64(2*(3+10+leafElementSize)), writeCost(4096, 3, 10))
	require.Equal(t, int64(8192), writeCost(4096, 5, 4096))
	require.Equal(t, int64(4096), writeCost(4096, 5, 3000))
}
