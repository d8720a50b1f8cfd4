// Package spanstore implements the companion index to a timestore ring
// that tracks which contiguous run of sequences was written under which
// schema/header string, as described in spec.md §4.4. A spanstore block
// is itself stored as one tabular value inside the owning holstore, at
// key "__spans_<ring>".
package spanstore

import (
	"strconv"
	"strings"

	"github.com/systemgarden/habitat/pkg/container"
	"github.com/systemgarden/habitat/pkg/storeerr"
	"github.com/systemgarden/habitat/pkg/table"
)

// Span is one row of a spanstore block: a contiguous sequence range
// written under one schema/header, plus its time bounds.
type Span struct {
	FromSeq  int64
	ToSeq    int64
	FromTime int64 // unix nanoseconds
	ToTime   int64
	Header   string
}

// HuntMode selects how GetTime resolves a time that doesn't land
// exactly on a span boundary.
type HuntMode int

const (
	HuntExact HuntMode = iota
	HuntNext
	HuntPrev
)

func blockKey(ring string) string { return "__spans_" + ring }

var spanColumns = []string{"from_seq", "to_seq", "from_time", "to_time", "header"}

// ReadBlockOn returns the spanstore block for ring, or an empty block
// (no error) if none has been written yet.
func ReadBlockOn(tx *container.Txn, ring string) ([]Span, error) {
	raw, ok, err := tx.Get([]byte(blockKey(ring)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	t, err := table.ParseText(string(raw))
	if err != nil {
		return nil, storeerr.New("spanstore.ReadBlockOn", storeerr.Corrupt, err)
	}
	spans := make([]Span, 0, len(t.Rows))
	for _, row := range t.Rows {
		if len(row) != 5 {
			return nil, storeerr.New("spanstore.ReadBlockOn", storeerr.Corrupt, nil)
		}
		s, err := parseSpanRow(row)
		if err != nil {
			return nil, err
		}
		s.Header = unescapeHeader(s.Header)
		spans = append(spans, s)
	}
	return spans, nil
}

// escapeHeader/unescapeHeader let a header blob -- which itself embeds
// tabs (column separators) and newlines (info-row separator) -- travel
// safely as a single cell inside the tab/newline-separated spans table.
func escapeHeader(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func unescapeHeader(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func parseSpanRow(row []string) (Span, error) {
	from, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return Span{}, storeerr.New("spanstore.parseSpanRow", storeerr.Corrupt, err)
	}
	to, err := strconv.ParseInt(row[1], 10, 64)
	if err != nil {
		return Span{}, storeerr.New("spanstore.parseSpanRow", storeerr.Corrupt, err)
	}
	fromT, err := strconv.ParseInt(row[2], 10, 64)
	if err != nil {
		return Span{}, storeerr.New("spanstore.parseSpanRow", storeerr.Corrupt, err)
	}
	toT, err := strconv.ParseInt(row[3], 10, 64)
	if err != nil {
		return Span{}, storeerr.New("spanstore.parseSpanRow", storeerr.Corrupt, err)
	}
	return Span{FromSeq: from, ToSeq: to, FromTime: fromT, ToTime: toT, Header: row[4]}, nil
}

// WriteBlockOn persists spans as the spanstore block for ring.
func WriteBlockOn(tx *container.Txn, ring string, spans []Span) error {
	t := table.New(spanColumns)
	t.Info = []string{"int", "int", "int", "int", "text"}
	for _, s := range spans {
		t.Rows = append(t.Rows, []string{
			strconv.FormatInt(s.FromSeq, 10),
			strconv.FormatInt(s.ToSeq, 10),
			strconv.FormatInt(s.FromTime, 10),
			strconv.FormatInt(s.ToTime, 10),
			escapeHeader(s.Header),
		})
	}
	text := t.Header() + "\n" + t.Body()
	return tx.Put([]byte(blockKey(ring)), []byte(text))
}

// New appends a new span covering [from,to] under header. Fails (returns
// false) if the spans block already has a span overlapping that range.
func New(spans []Span, from, to, fromTime, toTime int64, header string) ([]Span, bool) {
	for _, s := range spans {
		if from <= s.ToSeq && s.FromSeq <= to {
			return spans, false
		}
	}
	return append(spans, Span{FromSeq: from, ToSeq: to, FromTime: fromTime, ToTime: toTime, Header: header}), true
}

// Extend grows the span currently covering [from,to] to also cover
// newSeq/newTime. Fails (returns false) if no span covers exactly
// [from,to].
func Extend(spans []Span, from, to, newSeq, newTime int64) ([]Span, bool) {
	for i := range spans {
		if spans[i].FromSeq == from && spans[i].ToSeq == to {
			spans[i].ToSeq = newSeq
			spans[i].ToTime = newTime
			return spans, true
		}
	}
	return spans, false
}

// Purge drops spans entirely below oldestSeqStillAlive and clamps the
// surviving leading span's FromSeq/FromTime (spec.md §4.4 "purge").
func Purge(spans []Span, oldestSeqStillAlive, oldestTimeStillAlive int64) []Span {
	out := spans[:0:0]
	for _, s := range spans {
		if s.ToSeq < oldestSeqStillAlive {
			continue
		}
		if s.FromSeq < oldestSeqStillAlive {
			s.FromSeq = oldestSeqStillAlive
			s.FromTime = oldestTimeStillAlive
		}
		out = append(out, s)
	}
	return out
}

// GetSeq returns the span containing seq, if any.
func GetSeq(spans []Span, seq int64) (Span, bool) {
	for _, s := range spans {
		if seq >= s.FromSeq && seq <= s.ToSeq {
			return s, true
		}
	}
	return Span{}, false
}

// GetTime returns the span containing t in every mode. When no span
// contains t, NEXT mode returns the earliest span starting after t, PREV
// mode the latest span ending before t, and EXACT mode nothing.
func GetTime(spans []Span, t int64, mode HuntMode) (Span, bool) {
	switch mode {
	case HuntExact:
		for _, s := range spans {
			if t >= s.FromTime && t <= s.ToTime {
				return s, true
			}
		}
		return Span{}, false
	case HuntNext:
		var best Span
		found := false
		for _, s := range spans {
			if t >= s.FromTime && t <= s.ToTime {
				return s, true
			}
			if s.FromTime >= t && (!found || s.FromTime < best.FromTime) {
				best, found = s, true
			}
		}
		return best, found
	case HuntPrev:
		var best Span
		found := false
		for _, s := range spans {
			if t >= s.FromTime && t <= s.ToTime {
				return s, true
			}
			if s.ToTime <= t && (!found || s.ToTime > best.ToTime) {
				best, found = s, true
			}
		}
		return best, found
	default:
		return Span{}, false
	}
}

// GetOldest returns the span with the smallest FromSeq.
func GetOldest(spans []Span) (Span, bool) {
	if len(spans) == 0 {
		return Span{}, false
	}
	best := spans[0]
	for _, s := range spans[1:] {
		if s.FromSeq < best.FromSeq {
			best = s
		}
	}
	return best, true
}

// GetLatest returns the span with the largest ToSeq.
func GetLatest(spans []Span) (Span, bool) {
	if len(spans) == 0 {
		return Span{}, false
	}
	best := spans[0]
	for _, s := range spans[1:] {
		if s.ToSeq > best.ToSeq {
			best = s
		}
	}
	return best, true
}
