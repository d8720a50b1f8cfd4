// Package route implements the route-driver surface from spec.md §6: a
// thin, URL-prefixed adapter presenting each storage layer as a uniform
// sink/source, replacing the reference implementation's four
// near-duplicate opener functions with one tagged dispatcher (spec.md
// §9 "Tagged sum of stored record types").
package route

import (
	"strings"
	"time"

	"github.com/systemgarden/habitat/pkg/holstore"
	"github.com/systemgarden/habitat/pkg/storeerr"
	"github.com/systemgarden/habitat/pkg/table"
	"github.com/systemgarden/habitat/pkg/tablestore"
	"github.com/systemgarden/habitat/pkg/timestore"
	"github.com/systemgarden/habitat/pkg/versionstore"
)

// Kind tags which storage layer a Route addresses.
type Kind int

const (
	KindHolstore Kind = iota
	KindTimestore
	KindTablestore
	KindVersionstore
)

// parsed holds the decomposed "<scheme>:<file>,<name>" URL.
type parsed struct {
	kind Kind
	file string
	name string
}

func parseURL(url string) (parsed, error) {
	scheme, rest, ok := strings.Cut(url, ":")
	if !ok {
		return parsed{}, storeerr.New("route.parseURL", storeerr.Invalid, nil)
	}
	file, name, _ := strings.Cut(rest, ",")
	var kind Kind
	switch scheme {
	case "hol":
		kind = KindHolstore
	case "ts":
		kind = KindTimestore
	case "tab":
		kind = KindTablestore
	case "vs":
		kind = KindVersionstore
	default:
		return parsed{}, storeerr.New("route.parseURL", storeerr.Invalid, nil)
	}
	return parsed{kind: kind, file: file, name: name}, nil
}

// Handle is the uniform surface every route kind presents once opened.
type Handle struct {
	kind Kind
	hol  *holstore.Holstore
	key  string // hol: the key addressed
	ts   *timestore.Ring
	tab  *tablestore.Tablestore
	vs   *versionstore.Versionstore
}

// Access opens the existing holstore behind url (a file with no
// superblock fails with storeerr.Corrupt) and verifies the named object
// exists and the password matches, without leaving anything open
// (spec.md §6 "access").
func Access(url, password string) error {
	p, err := parseURL(url)
	if err != nil {
		return err
	}
	hol, err := holstore.Open(p.file)
	if err != nil {
		return err
	}
	defer hol.Close()

	switch p.kind {
	case KindHolstore:
		return nil
	case KindTimestore:
		r, err := timestore.Open(hol, p.name, password)
		if err != nil {
			return err
		}
		return r.Close()
	case KindTablestore:
		ts, err := tablestore.Open(hol, p.name, password)
		if err != nil {
			return err
		}
		return ts.Close()
	case KindVersionstore:
		vs, err := versionstore.Open(hol, p.name, password)
		if err != nil {
			return err
		}
		return vs.Close()
	default:
		return storeerr.New("route.Access", storeerr.Invalid, nil)
	}
}

// Open opens url for reading and writing, creating the addressed ring
// if it doesn't exist yet (comment, password, nslots are only used on
// that creation path; nslots is ignored for vs: rings, which are always
// unbounded). Spec.md's "keep" flag -- whether the underlying holstore
// outlives this call -- is expressed in this API by retaining the
// holstore via Handle.Holstore().Retain() before Close instead of a
// boolean parameter.
func Open(url, comment, password string, nslots int64) (*Handle, error) {
	p, err := parseURL(url)
	if err != nil {
		return nil, err
	}
	hol, err := holstore.Create(p.file)
	if err != nil {
		return nil, err
	}

	h := &Handle{kind: p.kind, hol: hol}
	switch p.kind {
	case KindHolstore:
		h.key = p.name
		return h, nil
	case KindTimestore:
		r, err := timestore.Open(hol, p.name, password)
		if storeerr.Is(err, storeerr.NotFound) {
			r, err = timestore.Create(hol, p.name, comment, password, nslots)
		}
		if err != nil {
			hol.Close()
			return nil, err
		}
		h.ts = r
		return h, nil
	case KindTablestore:
		ts, err := tablestore.Open(hol, p.name, password)
		if storeerr.Is(err, storeerr.NotFound) {
			ts, err = tablestore.Create(hol, p.name, comment, password, nslots)
		}
		if err != nil {
			hol.Close()
			return nil, err
		}
		h.tab = ts
		return h, nil
	case KindVersionstore:
		vs, err := versionstore.Create(hol, p.name, comment, password)
		if err != nil {
			hol.Close()
			return nil, err
		}
		h.vs = vs
		return h, nil
	default:
		hol.Close()
		return nil, storeerr.New("route.Open", storeerr.Invalid, nil)
	}
}

// Holstore exposes the underlying holstore, e.g. to Retain() it before
// Close so it outlives this handle.
func (h *Handle) Holstore() *holstore.Holstore { return h.hol }

// Close releases any layer-specific handle and the underlying holstore.
func (h *Handle) Close() error {
	switch h.kind {
	case KindTimestore:
		h.ts.Close()
	case KindTablestore:
		h.tab.Close()
	case KindVersionstore:
		h.vs.Close()
	}
	return h.hol.Close()
}

// Write stores raw bytes at the addressed key, replacing any previous
// value (hol:), or appends them as a new record (ts:). It is unsupported
// for tab:/vs:, which require structured writes via TWrite.
func (h *Handle) Write(data []byte) (int64, error) {
	switch h.kind {
	case KindHolstore:
		return 0, h.hol.Put([]byte(h.key), data)
	case KindTimestore:
		return h.ts.Put(data)
	default:
		return 0, storeerr.New("route.Write", storeerr.Invalid, nil)
	}
}

// TWrite appends a structured table row (tab:) or a version (vs:, with
// data, author and comment taken from the first row's cells under the
// columns named "data", "author" and "comment"; a missing column yields
// an empty value, and rows after the first are ignored).
func (h *Handle) TWrite(t *table.Table) (int64, error) {
	switch h.kind {
	case KindTablestore:
		return h.tab.Put(t)
	case KindVersionstore:
		if len(t.Rows) == 0 {
			return 0, storeerr.New("route.TWrite", storeerr.Invalid, nil)
		}
		row := t.Rows[0]
		author, comment, data := "", "", ""
		for i, c := range t.Columns {
			if i >= len(row) {
				continue
			}
			switch c {
			case "author":
				author = row[i]
			case "comment":
				comment = row[i]
			case "data":
				data = row[i]
			}
		}
		return h.vs.New([]byte(data), author, comment)
	default:
		return 0, storeerr.New("route.TWrite", storeerr.Invalid, nil)
	}
}

// Read returns count raw records starting at seq (ts:) or the single
// value at the addressed key (hol:, seq/offset ignored).
func (h *Handle) Read(seq int64, count int) ([][]byte, error) {
	switch h.kind {
	case KindHolstore:
		v, ok, err := h.hol.Get([]byte(h.key))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, storeerr.New("route.Read", storeerr.NotFound, nil)
		}
		return [][]byte{v}, nil
	case KindTimestore:
		return h.ts.MGet(seq, count)
	default:
		return nil, storeerr.New("route.Read", storeerr.Invalid, nil)
	}
}

// TRead returns count rows starting at seq as a table (tab:), or every
// version as a table (vs:, seq/count ignored).
func (h *Handle) TRead(seq int64, count int) (*table.Table, error) {
	switch h.kind {
	case KindTablestore:
		return h.tab.MGetBySeqs(seq, seq+int64(count)-1)
	case KindVersionstore:
		return h.vs.GetAll()
	default:
		return nil, storeerr.New("route.TRead", storeerr.Invalid, nil)
	}
}

// TellInfo summarizes the addressed object's size and modification time.
type TellInfo struct {
	Seq   int64
	Size  int64
	MTime time.Time
}

// Tell reports the addressed object's current extent.
func (h *Handle) Tell() (TellInfo, error) {
	switch h.kind {
	case KindHolstore:
		size, err := h.hol.Footprint()
		return TellInfo{Size: size}, err
	case KindTimestore:
		youngest, err := h.ts.Youngest()
		if err != nil {
			return TellInfo{}, err
		}
		_, at, err := h.ts.Get(youngest)
		if err != nil {
			return TellInfo{}, err
		}
		info, err := h.ts.Tell()
		return TellInfo{Seq: youngest, Size: info.NAvail, MTime: at}, nil
	case KindVersionstore:
		latest, err := h.vs.GetLatest()
		if err != nil {
			return TellInfo{}, err
		}
		return TellInfo{Seq: latest.Number, MTime: latest.Time}, nil
	default:
		return TellInfo{}, storeerr.New("route.Tell", storeerr.Invalid, nil)
	}
}
