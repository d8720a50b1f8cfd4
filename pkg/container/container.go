// Package container implements the leaf layer of the storage engine: a
// persistent, transactional, byte-string keyed map. It is a thin
// wrapper over go.etcd.io/bbolt, the Go-ecosystem substitute named in
// spec.md §6 for the reference implementation's GDBM-compatible pages.
//
// All of a container's keys live in a single bbolt bucket; the flat,
// prefix-namespaced key layout upper layers rely on (spec.md §6) is
// realized entirely through key bytes, never through bbolt buckets.
package container

import (
	"bytes"
	"os"
	"regexp"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/systemgarden/habitat/pkg/log"
	"github.com/systemgarden/habitat/pkg/metrics"
	"github.com/systemgarden/habitat/pkg/storeerr"
)

var containerLog = log.WithLayer("container")

// TxMode selects read or write intent for a transaction, per spec.md §4.1.
type TxMode int

const (
	ReadOnly TxMode = iota
	ReadWrite
)

var bucketName = []byte("kv")

const (
	writeRetryAttempts = 80
	writeRetryBase     = 5 * time.Millisecond
	writeRetryCap      = 200 * time.Millisecond
)

// Container is a persistent keyed byte-string map with two-phase
// transactions, matching the contract in spec.md §4.1.
type Container struct {
	db       *bolt.DB
	path     string
	writeSem chan struct{}
}

// Open opens, creating if absent, the container file at path.
func Open(path string) (*Container, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, storeerr.New("container.Open", storeerr.Io, err)
	}
	c := &Container{db: db, path: path, writeSem: make(chan struct{}, 1)}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, storeerr.New("container.Open", storeerr.Io, err)
	}
	return c, nil
}

// Close closes the underlying file. Callers must ensure no transaction
// is in flight.
func (c *Container) Close() error {
	if err := c.db.Close(); err != nil {
		return storeerr.New("container.Close", storeerr.Io, err)
	}
	return nil
}

// Footprint returns the current on-disk byte size of the container file.
func (c *Container) Footprint() (int64, error) {
	fi, err := os.Stat(c.path)
	if err != nil {
		return 0, storeerr.New("container.Footprint", storeerr.Io, err)
	}
	return fi.Size(), nil
}

// Path returns the container's file path.
func (c *Container) Path() string { return c.path }

// Txn is the unit of work passed to a WithTx callback. It exposes the
// same put/get/delete/iterate/search primitives as spec.md §4.1,
// restricted to what the transaction's mode allows.
type Txn struct {
	bolt   *bolt.Tx
	bucket *bolt.Bucket
	mode   TxMode
}

// WithTx begins a transaction in the given mode, runs fn, and commits
// or rolls back depending on whether fn returns an error. Acquiring a
// write transaction retries with exponential backoff up to a bounded
// attempt count (spec.md §4.1); exhaustion surfaces storeerr.Busy.
//
// This replaces the reference implementation's hol_inhibittrans/
// allowtrans flags (spec.md §9): nesting multiple layers' writes into
// one atomic unit is achieved by passing an already-open *Txn down to
// lower-layer "...On(tx, ...)" functions instead of each layer opening
// its own transaction.
func (c *Container) WithTx(mode TxMode, fn func(*Txn) error) error {
	start := time.Now()
	if mode == ReadOnly {
		err := c.db.View(func(btx *bolt.Tx) error {
			return fn(&Txn{bolt: btx, bucket: btx.Bucket(bucketName), mode: mode})
		})
		metrics.ObserveTx("container", start, txOutcome(err))
		return err
	}
	if err := c.acquireWriteSlot(); err != nil {
		metrics.ObserveTx("container", start, txOutcome(err))
		return err
	}
	defer func() { <-c.writeSem }()
	err := c.db.Update(func(btx *bolt.Tx) error {
		b, err := btx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return storeerr.New("container.WithTx", storeerr.Io, err)
		}
		return fn(&Txn{bolt: btx, bucket: b, mode: mode})
	})
	metrics.ObserveTx("container", start, txOutcome(err))
	return err
}

func txOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case storeerr.Is(err, storeerr.Busy):
		return "busy"
	default:
		return "error"
	}
}

func (c *Container) acquireWriteSlot() error {
	delay := writeRetryBase
	for i := 0; i < writeRetryAttempts; i++ {
		select {
		case c.writeSem <- struct{}{}:
			return nil
		default:
		}
		metrics.IncBusyRetry("container")
		time.Sleep(delay)
		if delay < writeRetryCap {
			delay *= 2
			if delay > writeRetryCap {
				delay = writeRetryCap
			}
		}
	}
	containerLog.Warn().Str("file", c.path).Int("attempts", writeRetryAttempts).Msg("write slot acquisition exhausted")
	return storeerr.New("container.WithTx", storeerr.Busy, nil)
}

// Put stores value under key. Fails if the transaction is read-only.
func (t *Txn) Put(key, value []byte) error {
	if t.mode != ReadWrite {
		return storeerr.New("Txn.Put", storeerr.Invalid, nil)
	}
	if err := t.bucket.Put(key, value); err != nil {
		return storeerr.New("Txn.Put", storeerr.Io, err)
	}
	return nil
}

// Get returns a copy of the value stored at key, and whether it existed.
func (t *Txn) Get(key []byte) ([]byte, bool, error) {
	v := t.bucket.Get(key)
	if v == nil {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (t *Txn) Delete(key []byte) error {
	if t.mode != ReadWrite {
		return storeerr.New("Txn.Delete", storeerr.Invalid, nil)
	}
	if err := t.bucket.Delete(key); err != nil {
		return storeerr.New("Txn.Delete", storeerr.Io, err)
	}
	return nil
}

// First returns the first key/value pair in key order.
func (t *Txn) First() (key, value []byte, ok bool) {
	c := t.bucket.Cursor()
	k, v := c.First()
	if k == nil {
		return nil, nil, false
	}
	return append([]byte(nil), k...), append([]byte(nil), v...), true
}

// Next returns the pair immediately after lastKey in key order. If
// lastKey itself is no longer present, Next returns the first key
// greater than it (spec.md §4.1: iteration is undefined if records are
// deleted mid-iteration; this is the least-surprising behavior).
func (t *Txn) Next(lastKey []byte) (key, value []byte, ok bool) {
	c := t.bucket.Cursor()
	k, v := c.Seek(lastKey)
	if k == nil {
		return nil, nil, false
	}
	if bytes.Equal(k, lastKey) {
		k, v = c.Next()
		if k == nil {
			return nil, nil, false
		}
	}
	return append([]byte(nil), k...), append([]byte(nil), v...), true
}

// Search scans every key, matching each against keyPattern and, when
// valuePattern is non-empty, its value against valuePattern too. Both
// patterns are Go regexp syntax, the practical substitute for the
// reference implementation's POSIX-like matcher (spec.md §4.1).
func (t *Txn) Search(keyPattern, valuePattern string) (map[string][]byte, error) {
	var keyRe, valRe *regexp.Regexp
	var err error
	if keyPattern != "" {
		if keyRe, err = regexp.Compile(keyPattern); err != nil {
			return nil, storeerr.New("Txn.Search", storeerr.Invalid, err)
		}
	}
	if valuePattern != "" {
		if valRe, err = regexp.Compile(valuePattern); err != nil {
			return nil, storeerr.New("Txn.Search", storeerr.Invalid, err)
		}
	}
	out := make(map[string][]byte)
	c := t.bucket.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if keyRe != nil && !keyRe.Match(k) {
			continue
		}
		if valRe != nil && !valRe.Match(v) {
			continue
		}
		out[string(k)] = append([]byte(nil), v...)
	}
	return out, nil
}
