// Package holstore implements the second layer of the storage engine: a
// container augmented with a reserved superblock identifying it as ours
// (spec.md §3/§4.2).
package holstore

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/systemgarden/habitat/pkg/container"
	"github.com/systemgarden/habitat/pkg/log"
	"github.com/systemgarden/habitat/pkg/storeerr"
)

var holLog = log.WithLayer("holstore")

// Holstore is a container plus a verified superblock. Handles are
// reference-counted (spec.md §3 "Ownership & lifetime summary"):
// Retain returns another handle sharing the same underlying container,
// and Close only closes the container once the last handle is gone.
type Holstore struct {
	c    *container.Container
	sb   Superblock
	path string
	refs *int32
}

// Create opens path, creating it if absent, and populates the
// superblock with the current host identity and format version if one
// is not already present (spec.md §4.2 "Algorithm — create").
// If a superblock is already present, its magic and version are
// verified exactly as Open would.
func Create(path string) (*Holstore, error) {
	c, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	h := &Holstore{c: c, path: path, refs: new(int32)}
	*h.refs = 1

	err = c.WithTx(container.ReadWrite, func(tx *container.Txn) error {
		existing, ok, err := tx.Get([]byte(superblockKey))
		if err != nil {
			return err
		}
		if ok {
			sb, err := ParseSuperblock(existing)
			if err != nil {
				return err
			}
			if sb.Magic != Magic || sb.Version != Version {
				holLog.Warn().Str("file", path).Str("magic", sb.Magic).Int("version", sb.Version).Msg("superblock magic or version mismatch")
				return storeerr.New("holstore.Create", storeerr.Corrupt, nil)
			}
			h.sb = sb
			return nil
		}
		machine, nodename, sysname, err := hostIdentity()
		if err != nil {
			return err
		}
		sb := Superblock{
			Magic:    Magic,
			Version:  Version,
			Created:  time.Now().UTC(),
			Machine:  machine,
			Nodename: nodename,
			Sysname:  sysname,
		}
		if err := tx.Put([]byte(superblockKey), sb.Marshal()); err != nil {
			return err
		}
		h.sb = sb
		return nil
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	return h, nil
}

// Open opens an existing holstore file, verifying the superblock's
// magic and version (spec.md §4.2 "Algorithm — open"). A mismatch or
// unreadable superblock is a fatal open failure; no half-open handle is
// left behind.
func Open(path string) (*Holstore, error) {
	c, err := container.Open(path)
	if err != nil {
		return nil, err
	}
	h := &Holstore{c: c, path: path, refs: new(int32)}
	*h.refs = 1

	err = c.WithTx(container.ReadOnly, func(tx *container.Txn) error {
		raw, ok, err := tx.Get([]byte(superblockKey))
		if err != nil {
			return err
		}
		if !ok {
			holLog.Warn().Str("file", path).Msg("no superblock present")
			return storeerr.New("holstore.Open", storeerr.Corrupt, nil)
		}
		sb, err := ParseSuperblock(raw)
		if err != nil {
			return err
		}
		if sb.Magic != Magic {
			holLog.Warn().Str("file", path).Str("magic", sb.Magic).Msg("superblock magic mismatch")
			return storeerr.New("holstore.Open", storeerr.Corrupt, nil)
		}
		if sb.Version != Version {
			holLog.Warn().Str("file", path).Int("version", sb.Version).Msg("superblock version mismatch")
			return storeerr.New("holstore.Open", storeerr.Corrupt, nil)
		}
		h.sb = sb
		return nil
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	return h, nil
}

// Retain returns another handle sharing this holstore's underlying
// container and superblock, incrementing the reference count.
func (h *Holstore) Retain() *Holstore {
	atomic.AddInt32(h.refs, 1)
	return &Holstore{c: h.c, sb: h.sb, path: h.path, refs: h.refs}
}

// Close decrements the reference count, closing the underlying
// container only when the last handle is closed.
func (h *Holstore) Close() error {
	if atomic.AddInt32(h.refs, -1) == 0 {
		return h.c.Close()
	}
	return nil
}

// Container exposes the underlying container so timestore/spanstore/
// tablestore/versionstore can compose cross-layer transactions.
func (h *Holstore) Container() *container.Container { return h.c }

// Put/Get/Delete/Search/First/Next are convenience wrappers forwarding
// to the container under their own transaction, for callers that treat
// a holstore as a plain keyed blob store (spec.md §4.2).
func (h *Holstore) Put(key, value []byte) error {
	return h.c.WithTx(container.ReadWrite, func(tx *container.Txn) error {
		return tx.Put(key, value)
	})
}

func (h *Holstore) Get(key []byte) ([]byte, bool, error) {
	var v []byte
	var ok bool
	err := h.c.WithTx(container.ReadOnly, func(tx *container.Txn) error {
		var gerr error
		v, ok, gerr = tx.Get(key)
		return gerr
	})
	return v, ok, err
}

func (h *Holstore) Delete(key []byte) error {
	return h.c.WithTx(container.ReadWrite, func(tx *container.Txn) error {
		return tx.Delete(key)
	})
}

func (h *Holstore) Search(keyPattern, valuePattern string) (map[string][]byte, error) {
	var out map[string][]byte
	err := h.c.WithTx(container.ReadOnly, func(tx *container.Txn) error {
		var serr error
		out, serr = tx.Search(keyPattern, valuePattern)
		return serr
	})
	return out, err
}

// Platform/Host/OS/Created/Version expose the cached superblock fields.
func (h *Holstore) Platform() string  { return h.sb.Machine }
func (h *Holstore) Host() string      { return h.sb.Nodename }
func (h *Holstore) OS() string        { return h.sb.Sysname }
func (h *Holstore) Created() time.Time { return h.sb.Created }
func (h *Holstore) Version() int      { return h.sb.Version }

// Footprint returns the current on-disk byte usage of the container file.
func (h *Holstore) Footprint() (int64, error) { return h.c.Footprint() }

// Remain returns an estimate of free space on the filesystem backing
// this holstore file, via unix.Statfs -- the practical Go analogue of
// the reference implementation's statvfs(2)-based "remain" accessor.
func (h *Holstore) Remain() (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(h.path), &st); err != nil {
		return 0, storeerr.New("holstore.Remain", storeerr.Io, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
