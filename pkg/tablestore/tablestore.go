// Package tablestore implements the fourth layer: a ring of tabular
// rows whose schema may evolve over time, built by combining a
// timestore ring (row payloads) with a spanstore block (schema/header
// history), per spec.md §4.5.
package tablestore

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/systemgarden/habitat/pkg/container"
	"github.com/systemgarden/habitat/pkg/holstore"
	"github.com/systemgarden/habitat/pkg/spanstore"
	"github.com/systemgarden/habitat/pkg/storeerr"
	"github.com/systemgarden/habitat/pkg/table"
	"github.com/systemgarden/habitat/pkg/timestore"
)

// CompatColumnCountOnly reproduces the reference implementation's
// original, looser new-span test (column count only, ignoring names).
// The default behavior is the stronger column-name-equality test
// described in spec.md §9; set this when reading data written by that
// legacy behavior and schema-evolution detection needs to match it.
var CompatColumnCountOnly = false

// Tablestore is a value-only, in-memory composition of an open
// timestore ring and the sequence bounds of the span currently being
// extended (spec.md §3 "Tablestore handle").
type Tablestore struct {
	hol    *holstore.Holstore
	ring   *timestore.Ring
	name   string
	schema []string // cached column names of the active span
	from   int64    // -1 when there is no active span
	to     int64
}

// Create makes a new tablestore ring (a plain timestore ring; its
// schema history starts empty).
func Create(hol *holstore.Holstore, name, description, password string, nslots int64) (*Tablestore, error) {
	r, err := timestore.Create(hol, name, description, password, nslots)
	if err != nil {
		return nil, err
	}
	return &Tablestore{hol: hol, ring: r, name: name, from: -1, to: -1}, nil
}

// Open opens an existing tablestore ring and loads its active span (if
// any) so Put can decide new-span-vs-extend correctly.
func Open(hol *holstore.Holstore, name, password string) (*Tablestore, error) {
	r, err := timestore.Open(hol, name, password)
	if err != nil {
		return nil, err
	}
	ts := &Tablestore{hol: hol, ring: r, name: name, from: -1, to: -1}
	err = hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		spans, serr := spanstore.ReadBlockOn(tx, name)
		if serr != nil {
			return serr
		}
		latest, ok := spanstore.GetLatest(spans)
		if !ok {
			return nil
		}
		ts.from, ts.to = latest.FromSeq, latest.ToSeq
		cols, _ := table.ParseHeader(latest.Header)
		ts.schema = cols
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ts, nil
}

// Close releases the handle.
func (ts *Tablestore) Close() error { return ts.ring.Close() }

// Rm deletes the ring and its spans block.
func Rm(hol *holstore.Holstore, name string) error {
	err := hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		return tx.Delete([]byte("__spans_" + name))
	})
	if err != nil {
		return err
	}
	return timestore.Rm(hol, name)
}

// Put appends every row of t at the current time.
func (ts *Tablestore) Put(t *table.Table) (int64, error) {
	return ts.PutWithTime(t, time.Now().UTC())
}

// PutText parses text as a tab/newline table and appends it (spec.md
// §4.5 "put_text").
func (ts *Tablestore) PutText(text string) (int64, error) {
	t, err := table.ParseText(text)
	if err != nil {
		return 0, storeerr.New("tablestore.PutText", storeerr.Invalid, err)
	}
	return ts.Put(t)
}

// PutWithTime implements the schema-evolution-aware put algorithm from
// spec.md §4.5: decide new-span vs extend, write the row through the
// timestore, update the spans block, and purge spans that fell off the
// back of the ring -- all under one write transaction.
func (ts *Tablestore) PutWithTime(t *table.Table, at time.Time) (int64, error) {
	if t == nil || len(t.Columns) == 0 || len(t.Rows) == 0 {
		return 0, storeerr.New("tablestore.PutWithTime", storeerr.Invalid, nil)
	}
	newSpan := ts.from == -1 || !sameSchema(ts.schema, t.Columns)

	body := t.Body()
	var seq int64
	newFrom, newTo := ts.from, ts.to
	newSchema := ts.schema
	err := ts.hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		var perr error
		seq, perr = timestore.PutOn(tx, ts.name, []byte(body), at)
		if perr != nil {
			return perr
		}

		spans, serr := spanstore.ReadBlockOn(tx, ts.name)
		if serr != nil {
			return serr
		}

		nanos := at.UnixNano()
		if newSpan {
			header := t.Header()
			grown, ok := spanstore.New(spans, seq, seq, nanos, nanos, header)
			if !ok {
				return storeerr.New("tablestore.PutWithTime", storeerr.Invalid, nil)
			}
			spans = grown
			newFrom, newTo = seq, seq
			newSchema = append([]string(nil), t.Columns...)
		} else {
			grown, ok := spanstore.Extend(spans, ts.from, ts.to, seq, nanos)
			if !ok {
				return storeerr.New("tablestore.PutWithTime", storeerr.Invalid, nil)
			}
			spans = grown
			newTo = seq
		}

		desc, derr := timestore.DescriptorOn(tx, ts.name)
		if derr != nil {
			return derr
		}
		if desc.Oldest != -1 {
			_, oldestAt, gerr := timestore.GetOn(tx, ts.name, desc.Oldest)
			if gerr != nil {
				return gerr
			}
			spans = spanstore.Purge(spans, desc.Oldest, oldestAt.UnixNano())
			if newFrom < desc.Oldest {
				if s, ok := spanstore.GetSeq(spans, newTo); ok {
					newFrom = s.FromSeq
				}
			}
		}

		return spanstore.WriteBlockOn(tx, ts.name, spans)
	})
	if err == nil {
		ts.from, ts.to, ts.schema = newFrom, newTo, newSchema
		return seq, nil
	}
	if storeerr.Is(err, storeerr.Io) {
		// Row write succeeded in the attempted transaction but the span
		// block write hit an I/O error: spec.md §4.5 keeps the row and
		// tolerates a schema-less read rather than losing a payload that
		// would otherwise have committed. Since WithTx rolled the whole
		// attempt back, redo the row write alone, outside span bookkeeping.
		// The handle no longer knows of an active span covering this row,
		// so drop it back to "no active span" and let the next Put open a
		// fresh one rather than extend a span that never saw this row.
		var werr error
		seq, werr = ts.writeRowOnly(body, at)
		if werr != nil {
			return 0, err
		}
		ts.from, ts.to, ts.schema = -1, -1, nil
		return seq, nil
	}
	return 0, err
}

func (ts *Tablestore) writeRowOnly(body string, at time.Time) (int64, error) {
	var seq int64
	err := ts.hol.Container().WithTx(container.ReadWrite, func(tx *container.Txn) error {
		var perr error
		seq, perr = timestore.PutOn(tx, ts.name, []byte(body), at)
		return perr
	})
	return seq, err
}

func sameSchema(have, want []string) bool {
	if CompatColumnCountOnly {
		return len(have) == len(want)
	}
	if len(have) != len(want) {
		return false
	}
	for i, c := range have {
		if c != want[i] {
			return false
		}
	}
	return true
}

// unknownSchemaHeader is the defensive one-column header used when a
// row's owning span cannot be found (spec.md §4.5 "Failure semantics").
var unknownSchemaHeader = []string{"value"}

// Get returns the next unread row, parsed against its owning span's
// header.
func (ts *Tablestore) Get() (*table.Table, time.Time, int64, error) {
	raw, seq, err := ts.ring.Jump(1)
	if err != nil {
		return nil, time.Time{}, 0, err
	}
	_, at, err := ts.ring.Get(seq)
	if err != nil {
		return nil, time.Time{}, 0, err
	}
	t, err := ts.parseRowAtSeq(seq, raw)
	return t, at, seq, err
}

func (ts *Tablestore) parseRowAtSeq(seq int64, raw []byte) (*table.Table, error) {
	var out *table.Table
	err := ts.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		spans, serr := spanstore.ReadBlockOn(tx, ts.name)
		if serr != nil {
			return serr
		}
		span, ok := spanstore.GetSeq(spans, seq)
		if !ok {
			out = table.ParseBody(unknownSchemaHeader, nil, string(raw))
			return nil
		}
		cols, info := table.ParseHeader(span.Header)
		out = table.ParseBody(cols, info, string(raw))
		return nil
	})
	return out, err
}

// GetSpanBySeq returns the full set of rows in the span containing seq.
func (ts *Tablestore) GetSpanBySeq(seq int64) (*table.Table, error) {
	var span spanstore.Span
	var ok bool
	err := ts.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		spans, serr := spanstore.ReadBlockOn(tx, ts.name)
		if serr != nil {
			return serr
		}
		span, ok = spanstore.GetSeq(spans, seq)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storeerr.New("tablestore.GetSpanBySeq", storeerr.NotFound, nil)
	}
	return ts.MGetBySeqs(span.FromSeq, span.ToSeq)
}

// MGetBySeqs walks every span overlapping [from,to], reading each
// span's sub-range of rows and unioning them into one output table
// (spec.md §4.5 "mget_by_seqs").
func (ts *Tablestore) MGetBySeqs(from, to int64) (*table.Table, error) {
	var out *table.Table
	err := ts.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		spans, serr := spanstore.ReadBlockOn(tx, ts.name)
		if serr != nil {
			return serr
		}
		for _, span := range spans {
			lo, hi := max64(from, span.FromSeq), min64(to, span.ToSeq)
			if lo > hi {
				continue
			}
			cols, info := table.ParseHeader(span.Header)
			for s := lo; s <= hi; s++ {
				raw, ok, gerr := tx.Get([]byte(timestore.RecordKey(ts.name, s)))
				if gerr != nil {
					return gerr
				}
				if !ok {
					continue
				}
				payload, _, derr := timestore.DecodeRecord(raw)
				if derr != nil {
					return derr
				}
				rowTable := table.ParseBody(cols, info, string(payload))
				out = table.Union(out, rowTable)
			}
		}
		return nil
	})
	return out, err
}

// ConsolidatedTable pairs a span's starting time with the rows
// extracted from it for a time-range query.
type ConsolidatedTable struct {
	StartTime time.Time
	Table     *table.Table
}

var ringPeriodPattern = regexp.MustCompile(`^[A-Za-z]+(\d+)$`)

// ringPeriod returns the ring's sampling period in seconds: preferring
// a "period:<seconds>" entry in the ring's description (spec.md §9's
// resolution of the legacy name-parsing ambiguity), falling back to
// parsing trailing digits from the ring name for rings written under
// the legacy convention.
func ringPeriod(description, name string) (int64, error) {
	for _, field := range strings.Fields(description) {
		if strings.HasPrefix(field, "period:") {
			return strconv.ParseInt(strings.TrimPrefix(field, "period:"), 10, 64)
		}
	}
	m := ringPeriodPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, storeerr.New("tablestore.ringPeriod", storeerr.Invalid, nil)
	}
	return strconv.ParseInt(m[1], 10, 64)
}

// GetConsByTime implements spec.md §4.5 "get_cons_by_time": hunt the
// spans whose ranges bound [fromT,toT], derive sequence bounds by
// arithmetic from the ring's sampling period, and emit one table per
// overlapping span.
func (ts *Tablestore) GetConsByTime(fromT, toT time.Time) ([]ConsolidatedTable, error) {
	var description string
	var spans []spanstore.Span
	err := ts.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		d, derr := timestore.DescriptorOn(tx, ts.name)
		if derr != nil {
			return derr
		}
		description = d.Description
		s, serr := spanstore.ReadBlockOn(tx, ts.name)
		if serr != nil {
			return serr
		}
		spans = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	period, err := ringPeriod(description, ts.name)
	if err != nil {
		return nil, err
	}
	periodNanos := period * int64(time.Second)

	startSpan, ok := spanstore.GetTime(spans, fromT.UnixNano(), spanstore.HuntNext)
	if !ok {
		return nil, nil
	}
	endSpan, ok := spanstore.GetTime(spans, toT.UnixNano(), spanstore.HuntPrev)
	if !ok {
		return nil, nil
	}

	var out []ConsolidatedTable
	for _, span := range spans {
		if span.FromSeq > endSpan.ToSeq || span.ToSeq < startSpan.FromSeq {
			continue
		}
		lo := span.FromSeq
		if periodNanos > 0 && fromT.UnixNano() > span.FromTime {
			lo = span.FromSeq + (fromT.UnixNano()-span.FromTime)/periodNanos
		}
		hi := span.ToSeq
		if periodNanos > 0 && toT.UnixNano() < span.ToTime {
			hi = span.FromSeq + (toT.UnixNano()-span.FromTime)/periodNanos
		}
		if lo < span.FromSeq {
			lo = span.FromSeq
		}
		if hi > span.ToSeq {
			hi = span.ToSeq
		}
		rows, err := ts.MGetBySeqs(lo, hi)
		if err != nil {
			return nil, err
		}
		out = append(out, ConsolidatedTable{StartTime: time.Unix(0, span.FromTime).UTC(), Table: rows})
	}
	return out, nil
}

// JumpYoungestSpan / JumpOldestSpan / JumpSeqSpan position the cursor
// at the first row of the span containing, respectively, the youngest
// sequence, the oldest sequence, or an explicit sequence.
func (ts *Tablestore) JumpYoungestSpan() error {
	youngest, err := ts.ring.Youngest()
	if err != nil {
		return err
	}
	return ts.jumpToSpanStart(youngest)
}

func (ts *Tablestore) JumpOldestSpan() error {
	oldest, err := ts.ring.Oldest()
	if err != nil {
		return err
	}
	return ts.jumpToSpanStart(oldest)
}

func (ts *Tablestore) JumpSeqSpan(seq int64) error {
	return ts.jumpToSpanStart(seq)
}

func (ts *Tablestore) jumpToSpanStart(seq int64) error {
	var span spanstore.Span
	var ok bool
	err := ts.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		spans, serr := spanstore.ReadBlockOn(tx, ts.name)
		if serr != nil {
			return serr
		}
		span, ok = spanstore.GetSeq(spans, seq)
		return nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return storeerr.New("tablestore.jumpToSpanStart", storeerr.NotFound, nil)
	}
	ts.ring.SetJump(span.FromSeq - 1)
	return nil
}

// GetHeaderLatest / GetHeaderOldest / GetHeaderSeq return the column
// names in force at, respectively, the latest span, the oldest span,
// or the span containing an explicit sequence.
func (ts *Tablestore) GetHeaderLatest() ([]string, error) { return ts.headerFrom(spanstore.GetLatest) }
func (ts *Tablestore) GetHeaderOldest() ([]string, error) { return ts.headerFrom(spanstore.GetOldest) }

func (ts *Tablestore) headerFrom(pick func([]spanstore.Span) (spanstore.Span, bool)) ([]string, error) {
	var span spanstore.Span
	var ok bool
	err := ts.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		spans, serr := spanstore.ReadBlockOn(tx, ts.name)
		if serr != nil {
			return serr
		}
		span, ok = pick(spans)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storeerr.New("tablestore.headerFrom", storeerr.NotFound, nil)
	}
	cols, _ := table.ParseHeader(span.Header)
	return cols, nil
}

func (ts *Tablestore) GetHeaderSeq(seq int64) ([]string, error) {
	var span spanstore.Span
	var ok bool
	err := ts.hol.Container().WithTx(container.ReadOnly, func(tx *container.Txn) error {
		spans, serr := spanstore.ReadBlockOn(tx, ts.name)
		if serr != nil {
			return serr
		}
		span, ok = spanstore.GetSeq(spans, seq)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storeerr.New("tablestore.GetHeaderSeq", storeerr.NotFound, nil)
	}
	cols, _ := table.ParseHeader(span.Header)
	return cols, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
