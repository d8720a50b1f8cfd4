package timestore

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/systemgarden/habitat/pkg/container"
	"github.com/systemgarden/habitat/pkg/storeerr"
)

const (
	superKey     = "__ts"
	superMagic   = "ts1"
	superVersion = 1
)

// RingDescriptor is the on-disk record at "__ts_<name>" describing one
// ring (spec.md §3).
type RingDescriptor struct {
	NSlots      int64
	Oldest      int64 // -1 when empty
	Youngest    int64 // -1 when empty
	Name        string
	Description string
	Password    string
}

func ringKey(name string) string { return "__ts_" + name }

func recordKey(name string, seq int64) string {
	return fmt.Sprintf("__ts__%s_%d", name, seq)
}

// RecordKey exposes the record key format so cross-layer callers
// (tablestore's mget_by_seqs) can read raw records directly inside
// their own transaction without a timestore handle.
func RecordKey(name string, seq int64) string { return recordKey(name, seq) }

// Marshal renders the descriptor in the "<nslots>|<oldest>|<youngest>|
// <name>|<description>|<password>" wire format from spec.md §6.
func (d RingDescriptor) Marshal() []byte {
	fields := []string{
		strconv.FormatInt(d.NSlots, 10),
		strconv.FormatInt(d.Oldest, 10),
		strconv.FormatInt(d.Youngest, 10),
		d.Name,
		d.Description,
		d.Password,
	}
	return []byte(strings.Join(fields, "|"))
}

func parseRingDescriptor(b []byte) (RingDescriptor, error) {
	fields := strings.SplitN(string(b), "|", 6)
	if len(fields) != 6 {
		return RingDescriptor{}, storeerr.New("timestore.parseRingDescriptor", storeerr.Corrupt, nil)
	}
	nslots, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return RingDescriptor{}, storeerr.New("timestore.parseRingDescriptor", storeerr.Corrupt, err)
	}
	oldest, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return RingDescriptor{}, storeerr.New("timestore.parseRingDescriptor", storeerr.Corrupt, err)
	}
	youngest, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return RingDescriptor{}, storeerr.New("timestore.parseRingDescriptor", storeerr.Corrupt, err)
	}
	return RingDescriptor{
		NSlots:      nslots,
		Oldest:      oldest,
		Youngest:    youngest,
		Name:        fields[3],
		Description: fields[4],
		Password:    fields[5],
	}, nil
}

func readDescriptorOn(tx *container.Txn, name string) (RingDescriptor, bool, error) {
	raw, ok, err := tx.Get([]byte(ringKey(name)))
	if err != nil || !ok {
		return RingDescriptor{}, ok, err
	}
	d, err := parseRingDescriptor(raw)
	return d, true, err
}

func writeDescriptorOn(tx *container.Txn, d RingDescriptor) error {
	return tx.Put([]byte(ringKey(d.Name)), d.Marshal())
}

// timestoreSuper is the "__ts" superblock: a count of rings plus any
// alias entries (spec.md §3/§6). Aliases are carried for format
// fidelity but this implementation does not itself create aliases.
type timestoreSuper struct {
	Magic   string
	Version int
	NRings  int
	Aliases []string
}

func readSuperOn(tx *container.Txn) (timestoreSuper, error) {
	raw, ok, err := tx.Get([]byte(superKey))
	if err != nil {
		return timestoreSuper{}, err
	}
	if !ok {
		return timestoreSuper{Magic: superMagic, Version: superVersion}, nil
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 4 {
		return timestoreSuper{}, storeerr.New("timestore.readSuper", storeerr.Corrupt, nil)
	}
	nrings, err := strconv.Atoi(fields[2])
	if err != nil {
		return timestoreSuper{}, storeerr.New("timestore.readSuper", storeerr.Corrupt, err)
	}
	nalias, err := strconv.Atoi(fields[3])
	if err != nil {
		return timestoreSuper{}, storeerr.New("timestore.readSuper", storeerr.Corrupt, err)
	}
	s := timestoreSuper{Magic: fields[0], Version: mustAtoi(fields[1]), NRings: nrings}
	if nalias > 0 && len(fields) >= 4+nalias {
		s.Aliases = append([]string(nil), fields[4:4+nalias]...)
	}
	return s, nil
}

func mustAtoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func writeSuperOn(tx *container.Txn, s timestoreSuper) error {
	fields := []string{s.Magic, strconv.Itoa(s.Version), strconv.Itoa(s.NRings), strconv.Itoa(len(s.Aliases))}
	fields = append(fields, s.Aliases...)
	return tx.Put([]byte(superKey), []byte(strings.Join(fields, " ")))
}

// encodeRecord appends an 8-byte big-endian unix-nanosecond insertion
// time to payload -- "record format version 1" per SPEC_FULL.md §3.1.
func encodeRecord(payload []byte, t time.Time) []byte {
	out := make([]byte, len(payload)+8)
	copy(out, payload)
	binary.BigEndian.PutUint64(out[len(payload):], uint64(t.UnixNano()))
	return out
}

// DecodeRecord splits a raw stored record into its payload and
// insertion time, for cross-layer callers reading raw records directly.
func DecodeRecord(buf []byte) (payload []byte, t time.Time, err error) {
	return decodeRecord(buf)
}

func decodeRecord(buf []byte) (payload []byte, t time.Time, err error) {
	if len(buf) < 8 {
		return nil, time.Time{}, storeerr.New("timestore.decodeRecord", storeerr.Corrupt, nil)
	}
	payload = buf[:len(buf)-8]
	nanos := binary.BigEndian.Uint64(buf[len(buf)-8:])
	return payload, time.Unix(0, int64(nanos)).UTC(), nil
}
