// Package timestore implements the third-layer ring buffer of
// timestamped records described in spec.md §4.3: bounded or unbounded
// sequences of byte-string records, each keyed by a monotonic sequence
// number, living inside a holstore.
package timestore

import (
	"regexp"
	"sort"
	"time"

	"github.com/systemgarden/habitat/pkg/container"
	"github.com/systemgarden/habitat/pkg/holstore"
	"github.com/systemgarden/habitat/pkg/log"
	"github.com/systemgarden/habitat/pkg/storeerr"
	"github.com/systemgarden/habitat/pkg/table"
)

var ringLog = log.WithLayer("timestore")

// Ring is an open handle onto one ring within a holstore. Handles are
// not safe for concurrent use from multiple goroutines without external
// synchronization, matching the reference implementation's per-handle
// cursor state (lastread).
type Ring struct {
	hol      *holstore.Holstore
	name     string
	hasRead  bool
	lastread int64
}

// Create makes a new ring named name with the given slot bound (0 means
// unbounded) and optional password, failing if the name is already in
// use (spec.md §4.3 "create").
func Create(hol *holstore.Holstore, name, description, password string, nslots int64) (*Ring, error) {
	err := hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		_, ok, err := readDescriptorOn(tx, name)
		if err != nil {
			return err
		}
		if ok {
			return storeerr.New("timestore.Create", storeerr.AlreadyExists, nil)
		}
		d := RingDescriptor{NSlots: nslots, Oldest: -1, Youngest: -1, Name: name, Description: description, Password: password}
		if err := writeDescriptorOn(tx, d); err != nil {
			return err
		}
		super, err := readSuperOn(tx)
		if err != nil {
			return err
		}
		super.NRings++
		return writeSuperOn(tx, super)
	})
	if err != nil {
		return nil, err
	}
	return &Ring{hol: hol, name: name}, nil
}

// Open opens an existing ring, verifying password if the ring has one
// (spec.md §4.3 "open"). An empty password passed by the caller is
// allowed to open a passworded ring only when stored password is empty.
func Open(hol *holstore.Holstore, name, password string) (*Ring, error) {
	err := hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		d, ok, err := readDescriptorOn(tx, name)
		if err != nil {
			return err
		}
		if !ok {
			return storeerr.New("timestore.Open", storeerr.NotFound, nil)
		}
		if d.Password != "" && d.Password != password {
			return storeerr.New("timestore.Open", storeerr.AccessDenied, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Ring{hol: hol, name: name}, nil
}

// Close releases the handle. No on-disk state is touched; the ring's
// descriptor lives in the holstore independent of open handles.
func (r *Ring) Close() error { return nil }

func (r *Ring) descriptor() (RingDescriptor, error) {
	var d RingDescriptor
	err := r.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		got, ok, err := readDescriptorOn(tx, r.name)
		if err != nil {
			return err
		}
		if !ok {
			return storeerr.New("timestore.descriptor", storeerr.NotFound, nil)
		}
		d = got
		return nil
	})
	return d, err
}

// PutOn inserts payload with insertion time t into ring name, evicting
// the oldest record if the ring is bounded and full, as part of the
// caller-supplied transaction tx. Exported so tablestore can compose a
// timestore write atomically with a spanstore write (spec.md §9).
func PutOn(tx *container.Txn, name string, payload []byte, t time.Time) (int64, error) {
	d, ok, err := readDescriptorOn(tx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, storeerr.New("timestore.PutOn", storeerr.NotFound, nil)
	}
	if d.Oldest == -1 {
		d.Oldest, d.Youngest = 0, 0
	} else {
		d.Youngest++
	}
	if d.NSlots > 0 && d.Youngest-d.Oldest+1 > d.NSlots {
		if err := tx.Delete([]byte(recordKey(name, d.Oldest))); err != nil {
			return 0, err
		}
		ringLog.Debug().Str("ring", name).Int64("seq", d.Oldest).Msg("evicted oldest record")
		d.Oldest++
	}
	encoded := encodeRecord(payload, t)
	if err := tx.Put([]byte(recordKey(name, d.Youngest)), encoded); err != nil {
		return 0, err
	}
	if err := writeDescriptorOn(tx, d); err != nil {
		return 0, err
	}
	return d.Youngest, nil
}

// DescriptorOn returns the live ring descriptor for name as part of an
// already-open transaction, for cross-layer callers (tablestore) that
// need oldest/youngest without opening their own transaction.
func DescriptorOn(tx *container.Txn, name string) (RingDescriptor, error) {
	d, ok, err := readDescriptorOn(tx, name)
	if err != nil {
		return RingDescriptor{}, err
	}
	if !ok {
		return RingDescriptor{}, storeerr.New("timestore.DescriptorOn", storeerr.NotFound, nil)
	}
	return d, nil
}

// GetOn returns the record at seq as part of an already-open
// transaction, for cross-layer callers composing a single atomic write.
func GetOn(tx *container.Txn, name string, seq int64) (payload []byte, insertedAt time.Time, err error) {
	raw, ok, err := tx.Get([]byte(recordKey(name, seq)))
	if err != nil {
		return nil, time.Time{}, err
	}
	if !ok {
		return nil, time.Time{}, storeerr.New("timestore.GetOn", storeerr.NotFound, nil)
	}
	return decodeRecord(raw)
}

// Put appends payload to the ring, timestamped with the current time.
func (r *Ring) Put(payload []byte) (int64, error) {
	return r.PutWithTime(payload, time.Now().UTC())
}

// PutWithTime appends payload to the ring with an explicit insertion
// time (spec.md §4.3 "put_with_time").
func (r *Ring) PutWithTime(payload []byte, t time.Time) (int64, error) {
	var seq int64
	err := r.hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		var err error
		seq, err = PutOn(tx, r.name, payload, t)
		return err
	})
	return seq, err
}

// Get returns the record at seq, or storeerr.NotFound if it has been
// evicted or never existed (spec.md §4.3 "get").
func (r *Ring) Get(seq int64) (payload []byte, insertedAt time.Time, err error) {
	err = r.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		raw, ok, gerr := tx.Get([]byte(recordKey(r.name, seq)))
		if gerr != nil {
			return gerr
		}
		if !ok {
			return storeerr.New("timestore.Get", storeerr.NotFound, nil)
		}
		p, t, derr := decodeRecord(raw)
		if derr != nil {
			return derr
		}
		payload, insertedAt = p, t
		return nil
	})
	return payload, insertedAt, err
}

// MGet returns up to count records starting at seq (inclusive),
// stopping early at the youngest record (spec.md §4.3 "mget").
func (r *Ring) MGet(seq int64, count int) ([][]byte, error) {
	d, err := r.descriptor()
	if err != nil {
		return nil, err
	}
	var out [][]byte
	err = r.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		for s := seq; s <= d.Youngest && len(out) < count; s++ {
			raw, ok, gerr := tx.Get([]byte(recordKey(r.name, s)))
			if gerr != nil {
				return gerr
			}
			if !ok {
				continue
			}
			p, _, derr := decodeRecord(raw)
			if derr != nil {
				return derr
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

// MGetTable returns the same span of records as MGet, plus sequence and
// time columns, in the "_seq, _time, value" table shape of the mget_t
// projection (spec.md §4.3). Embedded NUL
// bytes in a record's payload are replaced with newlines so the table
// body's line-oriented format stays well-formed.
func (r *Ring) MGetTable(seq int64, count int) (*table.Table, error) {
	d, err := r.descriptor()
	if err != nil {
		return nil, err
	}
	t := table.New([]string{"_seq", "_time", "value"})
	err = r.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		for s := seq; s <= d.Youngest && len(t.Rows) < count; s++ {
			raw, ok, gerr := tx.Get([]byte(recordKey(r.name, s)))
			if gerr != nil {
				return gerr
			}
			if !ok {
				continue
			}
			p, at, derr := decodeRecord(raw)
			if derr != nil {
				return derr
			}
			value := sanitizeNul(p)
			t.Rows = append(t.Rows, []string{table.FormatInt64(s), table.FormatInt64(at.UnixNano()), value})
		}
		return nil
	})
	return t, err
}

func sanitizeNul(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c == 0 {
			out[i] = '\n'
		} else {
			out[i] = c
		}
	}
	return string(out)
}

// Replace overwrites the payload at the cursor position last returned
// by a cursor op, preserving the record's original insertion time
// (spec.md §4.3 "replace").
func (r *Ring) Replace(payload []byte) error {
	seq := r.effectiveLastRead()
	return r.hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		key := []byte(recordKey(r.name, seq))
		raw, ok, err := tx.Get(key)
		if err != nil {
			return err
		}
		if !ok {
			return storeerr.New("timestore.Replace", storeerr.NotFound, nil)
		}
		_, at, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		return tx.Put(key, encodeRecord(payload, at))
	})
}

// effectiveLastRead returns the cursor position to advance from: the
// last position actually read, or one before the oldest live record if
// the cursor has never been positioned, so that Jump(1) on a fresh
// handle lands on the oldest record.
func (r *Ring) effectiveLastRead() int64 {
	if r.hasRead {
		return r.lastread
	}
	d, err := r.descriptor()
	if err != nil || d.Oldest == -1 {
		return -1
	}
	return d.Oldest - 1
}

// Jump advances the cursor by delta records relative to its current
// position and returns the record landed on (spec.md §4.3 cursor ops).
func (r *Ring) Jump(delta int64) (payload []byte, seq int64, err error) {
	next := r.effectiveLastRead() + delta
	p, _, err := r.Get(next)
	if err != nil {
		return nil, 0, err
	}
	r.hasRead, r.lastread = true, next
	return p, next, nil
}

// JumpOldest positions the cursor at the oldest live record.
func (r *Ring) JumpOldest() (payload []byte, seq int64, err error) {
	d, err := r.descriptor()
	if err != nil {
		return nil, 0, err
	}
	if d.Oldest == -1 {
		return nil, 0, storeerr.New("timestore.JumpOldest", storeerr.NotFound, nil)
	}
	p, _, err := r.Get(d.Oldest)
	if err != nil {
		return nil, 0, err
	}
	r.hasRead, r.lastread = true, d.Oldest
	return p, d.Oldest, nil
}

// JumpYoungest positions the cursor at the youngest live record.
func (r *Ring) JumpYoungest() (payload []byte, seq int64, err error) {
	d, err := r.descriptor()
	if err != nil {
		return nil, 0, err
	}
	if d.Youngest == -1 {
		return nil, 0, storeerr.New("timestore.JumpYoungest", storeerr.NotFound, nil)
	}
	p, _, err := r.Get(d.Youngest)
	if err != nil {
		return nil, 0, err
	}
	r.hasRead, r.lastread = true, d.Youngest
	return p, d.Youngest, nil
}

// SetJump positions the cursor at an explicit sequence number without
// reading it.
func (r *Ring) SetJump(seq int64) { r.hasRead, r.lastread = true, seq }

// LastRead returns the sequence number the cursor is currently at, and
// whether the cursor has ever been positioned.
func (r *Ring) LastRead() (seq int64, ok bool) { return r.lastread, r.hasRead }

// Oldest returns the oldest live sequence number, or storeerr.NotFound
// if the ring is empty.
func (r *Ring) Oldest() (int64, error) {
	d, err := r.descriptor()
	if err != nil {
		return 0, err
	}
	if d.Oldest == -1 {
		return 0, storeerr.New("timestore.Oldest", storeerr.NotFound, nil)
	}
	return d.Oldest, nil
}

// Youngest returns the youngest live sequence number, or
// storeerr.NotFound if the ring is empty.
func (r *Ring) Youngest() (int64, error) {
	d, err := r.descriptor()
	if err != nil {
		return 0, err
	}
	if d.Youngest == -1 {
		return 0, storeerr.New("timestore.Youngest", storeerr.NotFound, nil)
	}
	return d.Youngest, nil
}

// Purge deletes every record with sequence <= uptoSeq, advancing
// oldest past it. uptoSeq must lie within [oldest, youngest] or Purge
// fails with storeerr.Bounds and leaves the ring unchanged (spec.md §8
// "boundary behaviors").
func (r *Ring) Purge(uptoSeq int64) error {
	return r.hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		d, ok, err := readDescriptorOn(tx, r.name)
		if err != nil {
			return err
		}
		if !ok {
			return storeerr.New("timestore.Purge", storeerr.NotFound, nil)
		}
		if d.Oldest == -1 || uptoSeq < d.Oldest || uptoSeq > d.Youngest {
			return storeerr.New("timestore.Purge", storeerr.Bounds, nil)
		}
		for s := d.Oldest; s <= uptoSeq; s++ {
			if err := tx.Delete([]byte(recordKey(r.name, s))); err != nil {
				return err
			}
		}
		if uptoSeq == d.Youngest {
			d.Oldest, d.Youngest = -1, -1
		} else {
			d.Oldest = uptoSeq + 1
		}
		ringLog.Info().Str("ring", r.name).Int64("upto_seq", uptoSeq).Msg("purged records")
		return writeDescriptorOn(tx, d)
	})
}

// Resize changes the slot bound, evicting the oldest records
// immediately if the new bound is smaller than the current occupancy
// (spec.md §4.3 "resize").
func (r *Ring) Resize(nslots int64) error {
	return r.hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		d, ok, err := readDescriptorOn(tx, r.name)
		if err != nil {
			return err
		}
		if !ok {
			return storeerr.New("timestore.Resize", storeerr.NotFound, nil)
		}
		d.NSlots = nslots
		if nslots > 0 && d.Oldest != -1 {
			for d.Youngest-d.Oldest+1 > nslots {
				if err := tx.Delete([]byte(recordKey(r.name, d.Oldest))); err != nil {
					return err
				}
				d.Oldest++
			}
		}
		return writeDescriptorOn(tx, d)
	})
}

// Rm deletes the ring entirely: all records, then its descriptor
// (spec.md §4.3 "rm").
func Rm(hol *holstore.Holstore, name string) error {
	return hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		d, ok, err := readDescriptorOn(tx, name)
		if err != nil {
			return err
		}
		if !ok {
			return storeerr.New("timestore.Rm", storeerr.NotFound, nil)
		}
		if d.Oldest != -1 {
			for s := d.Oldest; s <= d.Youngest; s++ {
				if err := tx.Delete([]byte(recordKey(name, s))); err != nil {
					return err
				}
			}
		}
		if err := tx.Delete([]byte(ringKey(name))); err != nil {
			return err
		}
		super, err := readSuperOn(tx)
		if err != nil {
			return err
		}
		if super.NRings > 0 {
			super.NRings--
		}
		return writeSuperOn(tx, super)
	})
}

// TellInfo summarizes a ring's occupancy and this handle's cursor
// progress (spec.md §4.3 "tell").
type TellInfo struct {
	NSlots      int64
	NAvail      int64
	NRead       int64
	Description string
}

// Tell reports ring occupancy and how much of it this handle has
// consumed.
func (r *Ring) Tell() (TellInfo, error) {
	d, err := r.descriptor()
	if err != nil {
		return TellInfo{}, err
	}
	info := TellInfo{NSlots: d.NSlots, Description: d.Description}
	if d.Oldest != -1 {
		info.NAvail = d.Youngest - d.Oldest + 1
	}
	if r.hasRead && r.lastread >= d.Oldest {
		info.NRead = r.lastread - d.Oldest + 1
	}
	return info, nil
}

// LsRings lists ring names in hol matching the given regular
// expression pattern (empty matches all), sorted lexically (spec.md
// §4.3 "ls_rings"). Ring descriptor keys are told apart from record
// keys by requiring the ring name to start with an ASCII letter, so a
// ring whose name starts with any other character is not listed.
func LsRings(hol *holstore.Holstore, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, storeerr.New("timestore.LsRings", storeerr.Invalid, err)
	}
	var names []string
	err = hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		matches, serr := tx.Search(`^__ts_[A-Za-z]`, "")
		if serr != nil {
			return serr
		}
		for k := range matches {
			name := k[len("__ts_"):]
			if pattern == "" || re.MatchString(name) {
				names = append(names, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
