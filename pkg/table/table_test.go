package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	tbl, err := ParseText("x\ty\n--\t--\n1\t2")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, tbl.Columns)
	assert.Equal(t, []string{"--", "--"}, tbl.Info)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, []string{"1", "2"}, tbl.Rows[0])
}

func TestHeaderRoundTrip(t *testing.T) {
	tbl := &Table{Columns: []string{"x", "y", "z"}, Info: []string{"--", "--", "--"}}
	header := tbl.Header()
	cols, info := ParseHeader(header)
	assert.Equal(t, tbl.Columns, cols)
	assert.Equal(t, tbl.Info, info)
}

func TestSameColumns(t *testing.T) {
	a := New([]string{"x", "y"})
	b := New([]string{"x", "y"})
	c := New([]string{"y", "x"})
	d := New([]string{"x", "y", "z"})
	assert.True(t, a.SameColumns(b))
	assert.False(t, a.SameColumns(c))
	assert.False(t, a.SameColumns(d))
}

func TestUnion(t *testing.T) {
	first, err := ParseText("x\ty\n--\t--\n1\t2")
	require.NoError(t, err)
	second, err := ParseText("x\ty\tz\n--\t--\t--\n3\t4\t5")
	require.NoError(t, err)

	out := Union(nil, first)
	out = Union(out, second)

	assert.Equal(t, []string{"x", "y", "z"}, out.Columns)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, []string{"1", "2", ""}, out.Rows[0])
	assert.Equal(t, []string{"3", "4", "5"}, out.Rows[1])
}

func TestBodyRoundTrip(t *testing.T) {
	tbl := &Table{Rows: [][]string{{"1", "2"}, {"3", "4"}}}
	body := tbl.Body()
	parsed := ParseBody([]string{"x", "y"}, nil, body)
	assert.Equal(t, tbl.Rows, parsed.Rows)
}
