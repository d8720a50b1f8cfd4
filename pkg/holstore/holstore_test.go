package holstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemgarden/habitat/pkg/storeerr"
)

func TestCreateThenOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hol.db")

	h, err := Create(path)
	require.NoError(t, err)
	assert.Equal(t, Magic, Magic)
	assert.Equal(t, Version, h.Version())
	assert.NotEmpty(t, h.Platform())
	require.NoError(t, h.Close())

	h2, err := Open(path)
	require.NoError(t, err)
	defer h2.Close()
	assert.Equal(t, Version, h2.Version())
}

func TestOpenMissingSuperblockIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	_, err := Open(path)
	require.Error(t, err)
	assert.True(t, storeerr.Is(err, storeerr.Corrupt))
}

func TestPutGetThroughHolstore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hol.db")
	h, err := Create(path)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Put([]byte("k"), []byte("v")))
	v, ok, err := h.Get([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestRetainRefcount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hol.db")
	h, err := Create(path)
	require.NoError(t, err)

	h2 := h.Retain()
	require.NoError(t, h.Close())

	// h2 still usable because refcount hasn't reached zero.
	require.NoError(t, h2.Put([]byte("k"), []byte("v")))
	require.NoError(t, h2.Close())
}
