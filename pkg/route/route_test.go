package route

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemgarden/habitat/pkg/storeerr"
	"github.com/systemgarden/habitat/pkg/table"
)

func TestHolRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	url := "hol:" + path + ",greeting"

	h, err := Open(url, "", "", 0)
	require.NoError(t, err)
	_, err = h.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h2, err := Open(url, "", "", 0)
	require.NoError(t, err)
	defer h2.Close()
	got, err := h2.Read(0, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("hello")}, got)
}

func TestTsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	url := "ts:" + path + ",cpu60"

	h, err := Open(url, "cpu load", "", 3)
	require.NoError(t, err)
	_, err = h.Write([]byte("1"))
	require.NoError(t, err)
	_, err = h.Write([]byte("2"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h2, err := Open(url, "", "", 0)
	require.NoError(t, err)
	defer h2.Close()
	vals, err := h2.Read(0, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2")}, vals)

	tell, err := h2.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(1), tell.Seq)
}

func TestTabRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	url := "tab:" + path + ",T"

	h, err := Open(url, "", "", 0)
	require.NoError(t, err)
	tbl := table.New([]string{"x"})
	tbl.Info = []string{"--"}
	tbl.Rows = [][]string{{"1"}}
	_, err = h.TWrite(tbl)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h2, err := Open(url, "", "", 0)
	require.NoError(t, err)
	defer h2.Close()
	got, err := h2.TRead(0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Columns)
}

func TestVsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	url := "vs:" + path + ",V"

	h, err := Open(url, "versions of things", "", 0)
	require.NoError(t, err)
	tbl := table.New([]string{"author", "comment", "data"})
	tbl.Rows = [][]string{{"alice", "first", "payload"}}
	_, err = h.TWrite(tbl)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h2, err := Open(url, "", "", 0)
	require.NoError(t, err)
	defer h2.Close()
	all, err := h2.TRead(0, 0)
	require.NoError(t, err)
	require.Len(t, all.Rows, 1)
}

func TestAccessPasswordMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	url := "ts:" + path + ",secret"

	h, err := Open(url, "", "s3cret", 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	err = Access(url, "wrong")
	assert.True(t, storeerr.Is(err, storeerr.AccessDenied))

	err = Access(url, "s3cret")
	assert.NoError(t, err)
}

func TestParseURLRejectsUnknownScheme(t *testing.T) {
	_, err := Open("nope:file,name", "", "", 0)
	assert.True(t, storeerr.Is(err, storeerr.Invalid))
}
