package container

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemgarden/habitat/pkg/storeerr"
)

func openTemp(t *testing.T) *Container {
	t.Helper()
	path := filepath.Join(t.TempDir(), "container.db")
	c, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := openTemp(t)
	err := c.WithTx(ReadWrite, func(tx *Txn) error {
		return tx.Put([]byte("a"), []byte("1"))
	})
	require.NoError(t, err)

	var got []byte
	var ok bool
	err = c.WithTx(ReadOnly, func(tx *Txn) error {
		var gerr error
		got, ok, gerr = tx.Get([]byte("a"))
		return gerr
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), got)
}

func TestGetMissing(t *testing.T) {
	c := openTemp(t)
	var ok bool
	err := c.WithTx(ReadOnly, func(tx *Txn) error {
		_, o, gerr := tx.Get([]byte("missing"))
		ok = o
		return gerr
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutOutsideWriteTxFails(t *testing.T) {
	c := openTemp(t)
	err := c.WithTx(ReadOnly, func(tx *Txn) error {
		return tx.Put([]byte("a"), []byte("1"))
	})
	require.Error(t, err)
	assert.True(t, storeerr.Is(err, storeerr.Invalid))
}

func TestDeleteIdempotent(t *testing.T) {
	c := openTemp(t)
	err := c.WithTx(ReadWrite, func(tx *Txn) error {
		return tx.Delete([]byte("nope"))
	})
	assert.NoError(t, err)
}

func TestIteration(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.WithTx(ReadWrite, func(tx *Txn) error {
		for _, k := range []string{"a", "b", "c"} {
			if err := tx.Put([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	}))

	var keys []string
	require.NoError(t, c.WithTx(ReadOnly, func(tx *Txn) error {
		k, _, ok := tx.First()
		for ok {
			keys = append(keys, string(k))
			k, _, ok = tx.Next(k)
		}
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestSearch(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.WithTx(ReadWrite, func(tx *Txn) error {
		tx.Put([]byte("__ts_cpu60"), []byte("ring"))
		tx.Put([]byte("__ts_mem60"), []byte("ring"))
		tx.Put([]byte("superblock"), []byte("828662"))
		return nil
	}))

	var matches map[string][]byte
	require.NoError(t, c.WithTx(ReadOnly, func(tx *Txn) error {
		var err error
		matches, err = tx.Search(`^__ts_`, "")
		return err
	}))
	assert.Len(t, matches, 2)
}

func TestRollbackOnError(t *testing.T) {
	c := openTemp(t)
	err := c.WithTx(ReadWrite, func(tx *Txn) error {
		tx.Put([]byte("a"), []byte("1"))
		return assert.AnError
	})
	require.Error(t, err)

	var ok bool
	require.NoError(t, c.WithTx(ReadOnly, func(tx *Txn) error {
		_, o, _ := tx.Get([]byte("a"))
		ok = o
		return nil
	}))
	assert.False(t, ok, "write should have rolled back")
}

func TestFootprint(t *testing.T) {
	c := openTemp(t)
	size, err := c.Footprint()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
}
