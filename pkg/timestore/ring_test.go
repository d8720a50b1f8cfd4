package timestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemgarden/habitat/pkg/holstore"
	"github.com/systemgarden/habitat/pkg/storeerr"
)

func openHol(t *testing.T) *holstore.Holstore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hol.db")
	h, err := holstore.Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestCreateOpenPutGet(t *testing.T) {
	h := openHol(t)
	r, err := Create(h, "cpu60", "cpu load", "", 0)
	require.NoError(t, err)

	seq, err := r.Put([]byte("10.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	r2, err := Open(h, "cpu60", "")
	require.NoError(t, err)
	payload, _, err := r2.Get(seq)
	require.NoError(t, err)
	assert.Equal(t, []byte("10.5"), payload)
}

func TestCreateDuplicateFails(t *testing.T) {
	h := openHol(t)
	_, err := Create(h, "cpu60", "", "", 0)
	require.NoError(t, err)
	_, err = Create(h, "cpu60", "", "", 0)
	require.Error(t, err)
	assert.True(t, storeerr.Is(err, storeerr.AlreadyExists))
}

func TestOpenWrongPasswordDenied(t *testing.T) {
	h := openHol(t)
	_, err := Create(h, "secret", "", "hunter2", 0)
	require.NoError(t, err)

	_, err = Open(h, "secret", "wrong")
	require.Error(t, err)
	assert.True(t, storeerr.Is(err, storeerr.AccessDenied))

	_, err = Open(h, "secret", "hunter2")
	require.NoError(t, err)
}

// TestBoundedRingEvicts mirrors the bounded-ring-eviction scenario:
// after inserting more records than nslots, the oldest ones are gone
// and Oldest/Youngest reflect the surviving window.
func TestBoundedRingEvicts(t *testing.T) {
	h := openHol(t)
	r, err := Create(h, "ring3", "", "", 3)
	require.NoError(t, err)

	var last int64
	for i := 0; i < 5; i++ {
		last, err = r.Put([]byte{byte(i)})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(4), last)

	oldest, err := r.Oldest()
	require.NoError(t, err)
	youngest, err := r.Youngest()
	require.NoError(t, err)
	assert.Equal(t, int64(2), oldest)
	assert.Equal(t, int64(4), youngest)

	_, _, err = r.Get(0)
	assert.True(t, storeerr.Is(err, storeerr.NotFound))

	payload, _, err := r.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, payload)
}

func TestPutWithTimePreserved(t *testing.T) {
	h := openHol(t)
	r, err := Create(h, "ring0", "", "", 0)
	require.NoError(t, err)

	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	seq, err := r.PutWithTime([]byte("x"), ts)
	require.NoError(t, err)

	_, insertedAt, err := r.Get(seq)
	require.NoError(t, err)
	assert.True(t, ts.Equal(insertedAt))
}

func TestMGetAndMGetTable(t *testing.T) {
	h := openHol(t)
	r, err := Create(h, "ring0", "", "", 0)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := r.Put([]byte{byte('a' + i)})
		require.NoError(t, err)
	}

	vals, err := r.MGet(1, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{'b'}, {'c'}}, vals)

	tbl, err := r.MGetTable(0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"_seq", "_time", "value"}, tbl.Columns)
	assert.Len(t, tbl.Rows, 4)
}

func TestJumpCursor(t *testing.T) {
	h := openHol(t)
	r, err := Create(h, "ring0", "", "", 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := r.Put([]byte{byte(i)})
		require.NoError(t, err)
	}

	p, seq, err := r.Jump(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
	assert.Equal(t, []byte{0}, p)

	p, seq, err = r.Jump(1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
	assert.Equal(t, []byte{1}, p)

	p, seq, err = r.JumpYoungest()
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
	assert.Equal(t, []byte{2}, p)

	p, seq, err = r.JumpOldest()
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
	assert.Equal(t, []byte{0}, p)
}

func TestReplacePreservesTime(t *testing.T) {
	h := openHol(t)
	r, err := Create(h, "ring0", "", "", 0)
	require.NoError(t, err)
	ts := time.Date(2021, 5, 6, 0, 0, 0, 0, time.UTC)
	seq, err := r.PutWithTime([]byte("orig"), ts)
	require.NoError(t, err)

	_, _, err = r.Jump(1) // positions cursor at seq 0
	require.NoError(t, err)
	require.NoError(t, r.Replace([]byte("replaced")))

	payload, insertedAt, err := r.Get(seq)
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), payload)
	assert.True(t, ts.Equal(insertedAt))
}

func TestPurgeResetsRing(t *testing.T) {
	h := openHol(t)
	r, err := Create(h, "ring0", "", "", 0)
	require.NoError(t, err)
	r.Put([]byte("a"))
	youngest, err := r.Put([]byte("b"))
	require.NoError(t, err)

	require.NoError(t, r.Purge(youngest))

	_, err = r.Oldest()
	assert.True(t, storeerr.Is(err, storeerr.NotFound))

	seq, err := r.Put([]byte("fresh"))
	require.NoError(t, err)
	assert.Equal(t, youngest+1, seq)
}

func TestPurgeOutOfBoundsFails(t *testing.T) {
	h := openHol(t)
	r, err := Create(h, "ring0", "", "", 0)
	require.NoError(t, err)
	r.Put([]byte("a"))

	err = r.Purge(5)
	assert.True(t, storeerr.Is(err, storeerr.Bounds))
}

func TestResizeEvictsImmediately(t *testing.T) {
	h := openHol(t)
	r, err := Create(h, "ring0", "", "", 0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		r.Put([]byte{byte(i)})
	}

	require.NoError(t, r.Resize(2))
	oldest, err := r.Oldest()
	require.NoError(t, err)
	youngest, err := r.Youngest()
	require.NoError(t, err)
	assert.Equal(t, int64(3), oldest)
	assert.Equal(t, int64(4), youngest)
}

func TestRmDeletesRingAndRecords(t *testing.T) {
	h := openHol(t)
	_, err := Create(h, "ring0", "", "", 0)
	require.NoError(t, err)

	require.NoError(t, Rm(h, "ring0"))

	_, err = Open(h, "ring0", "")
	assert.True(t, storeerr.Is(err, storeerr.NotFound))
}

func TestLsRings(t *testing.T) {
	h := openHol(t)
	_, err := Create(h, "cpu60", "", "", 0)
	require.NoError(t, err)
	_, err = Create(h, "mem60", "", "", 0)
	require.NoError(t, err)

	names, err := LsRings(h, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu60", "mem60"}, names)

	names, err = LsRings(h, "^cpu")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu60"}, names)
}

func TestTellReportsOccupancy(t *testing.T) {
	h := openHol(t)
	r, err := Create(h, "ring0", "a ring", "", 5)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		r.Put([]byte{byte(i)})
	}
	r.Jump(1)
	r.Jump(1)

	info, err := r.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.NSlots)
	assert.Equal(t, int64(3), info.NAvail)
	assert.Equal(t, int64(2), info.NRead)
	assert.Equal(t, "a ring", info.Description)
}
