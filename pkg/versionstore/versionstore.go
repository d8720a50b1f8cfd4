// Package versionstore implements the versionstore variant described in
// spec.md §4.6: an unbounded timestore ring whose records are
// (author, comment, data) triples, with sequence number doubling as
// version number.
package versionstore

import (
	"sort"
	"strings"
	"time"

	"github.com/systemgarden/habitat/pkg/container"
	"github.com/systemgarden/habitat/pkg/holstore"
	"github.com/systemgarden/habitat/pkg/storeerr"
	"github.com/systemgarden/habitat/pkg/table"
	"github.com/systemgarden/habitat/pkg/timestore"
)

const catalogKey = "__vs"

// Versionstore is an open handle onto an unbounded, versioned ring.
type Versionstore struct {
	hol  *holstore.Holstore
	ring *timestore.Ring
	name string
}

// Version is one decoded record: author, comment, data, and the time
// it was first written.
type Version struct {
	Number  int64
	Author  string
	Comment string
	Data    []byte
	Time    time.Time
}

func encode(author, comment string, data []byte) []byte {
	var b []byte
	b = append(b, author...)
	b = append(b, 0)
	b = append(b, comment...)
	b = append(b, 0)
	b = append(b, data...)
	b = append(b, 0)
	return b
}

func decode(buf []byte) (author, comment string, data []byte, err error) {
	i := indexByte(buf, 0)
	if i < 0 {
		return "", "", nil, storeerr.New("versionstore.decode", storeerr.Corrupt, nil)
	}
	author = string(buf[:i])
	rest := buf[i+1:]
	j := indexByte(rest, 0)
	if j < 0 {
		return "", "", nil, storeerr.New("versionstore.decode", storeerr.Corrupt, nil)
	}
	comment = string(rest[:j])
	rest = rest[j+1:]
	if len(rest) == 0 || rest[len(rest)-1] != 0 {
		return "", "", nil, storeerr.New("versionstore.decode", storeerr.Corrupt, nil)
	}
	data = append([]byte(nil), rest[:len(rest)-1]...)
	return author, comment, data, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Create makes a new, unbounded versionstore ring and registers it in
// the "__vs" catalog. Create is idempotent if the ring already exists
// and is already cataloged (spec.md §7 "AlreadyExists ... except
// versionstore create which is idempotent").
func Create(hol *holstore.Holstore, name, description, password string) (*Versionstore, error) {
	r, err := timestore.Create(hol, name, description, password, 0)
	if err != nil && !storeerr.Is(err, storeerr.AlreadyExists) {
		return nil, err
	}
	if err != nil {
		r, err = timestore.Open(hol, name, password)
		if err != nil {
			return nil, err
		}
	}
	err = hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		names, cerr := readCatalogOn(tx)
		if cerr != nil {
			return cerr
		}
		for _, n := range names {
			if n == name {
				return nil
			}
		}
		names = append(names, name)
		return writeCatalogOn(tx, names)
	})
	if err != nil {
		return nil, err
	}
	return &Versionstore{hol: hol, ring: r, name: name}, nil
}

// Open opens an existing versionstore ring.
func Open(hol *holstore.Holstore, name, password string) (*Versionstore, error) {
	r, err := timestore.Open(hol, name, password)
	if err != nil {
		return nil, err
	}
	return &Versionstore{hol: hol, ring: r, name: name}, nil
}

// Close releases the handle.
func (vs *Versionstore) Close() error { return vs.ring.Close() }

func readCatalogOn(tx *container.Txn) ([]string, error) {
	raw, ok, err := tx.Get([]byte(catalogKey))
	if err != nil || !ok {
		return nil, err
	}
	return strings.Fields(string(raw)), nil
}

func writeCatalogOn(tx *container.Txn, names []string) error {
	return tx.Put([]byte(catalogKey), []byte(strings.Join(names, " ")))
}

// New appends a new version, returning its version number (spec.md
// §4.6 "new"): strictly increasing starting at 0.
func (vs *Versionstore) New(data []byte, author, comment string) (int64, error) {
	return vs.ring.Put(encode(author, comment, data))
}

// GetVersion returns the version numbered v.
func (vs *Versionstore) GetVersion(v int64) (Version, error) {
	payload, at, err := vs.ring.Get(v)
	if err != nil {
		return Version{}, err
	}
	author, comment, data, err := decode(payload)
	if err != nil {
		return Version{}, err
	}
	return Version{Number: v, Author: author, Comment: comment, Data: data, Time: at}, nil
}

// GetLatest returns the highest-numbered version.
func (vs *Versionstore) GetLatest() (Version, error) {
	youngest, err := vs.ring.Youngest()
	if err != nil {
		return Version{}, err
	}
	return vs.GetVersion(youngest)
}

// GetAll returns every version as a table with columns
// {version, author, comment, data}.
func (vs *Versionstore) GetAll() (*table.Table, error) {
	oldest, err := vs.ring.Oldest()
	if err != nil {
		if storeerr.Is(err, storeerr.NotFound) {
			return table.New([]string{"version", "author", "comment", "data"}), nil
		}
		return nil, err
	}
	youngest, err := vs.ring.Youngest()
	if err != nil {
		return nil, err
	}
	t := table.New([]string{"version", "author", "comment", "data"})
	for v := oldest; v <= youngest; v++ {
		ver, err := vs.GetVersion(v)
		if err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, []string{
			table.FormatInt64(ver.Number), ver.Author, ver.Comment, string(ver.Data),
		})
	}
	return t, nil
}

// Edit rewrites author and/or comment on an existing version, preserving
// its data and original insertion time (spec.md §4.6 "edit"). An empty
// replacement string leaves the corresponding field unchanged.
func (vs *Versionstore) Edit(v int64, author, comment string) error {
	current, err := vs.GetVersion(v)
	if err != nil {
		return err
	}
	if author != "" {
		current.Author = author
	}
	if comment != "" {
		current.Comment = comment
	}
	vs.ring.SetJump(v - 1)
	_, _, err = vs.ring.Jump(1)
	if err != nil {
		return err
	}
	return vs.ring.Replace(encode(current.Author, current.Comment, current.Data))
}

// NVersions returns the number of live versions.
func (vs *Versionstore) NVersions() (int64, error) {
	oldest, err := vs.ring.Oldest()
	if err != nil {
		if storeerr.Is(err, storeerr.NotFound) {
			return 0, nil
		}
		return 0, err
	}
	youngest, err := vs.ring.Youngest()
	if err != nil {
		return 0, err
	}
	return youngest - oldest + 1, nil
}

// IsLatest reports whether v is the highest live version number.
func (vs *Versionstore) IsLatest(v int64) (bool, error) {
	youngest, err := vs.ring.Youngest()
	if err != nil {
		return false, err
	}
	return v == youngest, nil
}

// Contains reports whether v is a live version number.
func (vs *Versionstore) Contains(v int64) (bool, error) {
	oldest, err := vs.ring.Oldest()
	if err != nil {
		if storeerr.Is(err, storeerr.NotFound) {
			return false, nil
		}
		return false, err
	}
	youngest, err := vs.ring.Youngest()
	if err != nil {
		return false, err
	}
	return v >= oldest && v <= youngest, nil
}

// Purge deletes every version up to and including uptoVersion.
func (vs *Versionstore) Purge(uptoVersion int64) error {
	return vs.ring.Purge(uptoVersion)
}

// Rm deletes the ring entirely and removes it from the catalog.
func Rm(hol *holstore.Holstore, name string) error {
	if err := timestore.Rm(hol, name); err != nil {
		return err
	}
	return hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		names, err := readCatalogOn(tx)
		if err != nil {
			return err
		}
		out := names[:0:0]
		for _, n := range names {
			if n != name {
				out = append(out, n)
			}
		}
		return writeCatalogOn(tx, out)
	})
}

// LsVers returns every ring name registered in the versionstore catalog.
func LsVers(hol *holstore.Holstore) ([]string, error) {
	var names []string
	err := hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		var err error
		names, err = readCatalogOn(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
