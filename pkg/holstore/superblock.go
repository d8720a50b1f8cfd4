package holstore

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/systemgarden/habitat/pkg/storeerr"
)

// Magic is the fixed superblock magic string, per spec.md §3.
const Magic = "828662"

// Version is the superblock format version this package writes and
// requires on open.
const Version = 1

const superblockKey = "superblock"

// Superblock is the fixed metadata record every holstore file carries,
// written exactly once at creation (spec.md §3/§4.2).
type Superblock struct {
	Magic    string
	Version  int
	Created  time.Time
	Machine  string
	Nodename string
	Sysname  string
}

// Marshal renders the superblock in the wire format from spec.md §6:
// "828662 <version> <created> <machine> <nodename> <sysname>".
func (s Superblock) Marshal() []byte {
	fields := []string{
		s.Magic,
		strconv.Itoa(s.Version),
		strconv.FormatInt(s.Created.Unix(), 10),
		orDash(s.Machine),
		orDash(s.Nodename),
		orDash(s.Sysname),
	}
	return []byte(strings.Join(fields, " "))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// ParseSuperblock parses the wire format written by Marshal.
func ParseSuperblock(b []byte) (Superblock, error) {
	fields := strings.Fields(string(b))
	if len(fields) != 6 {
		return Superblock{}, storeerr.New("holstore.ParseSuperblock", storeerr.Corrupt, nil)
	}
	version, err := strconv.Atoi(fields[1])
	if err != nil {
		return Superblock{}, storeerr.New("holstore.ParseSuperblock", storeerr.Corrupt, err)
	}
	createdUnix, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Superblock{}, storeerr.New("holstore.ParseSuperblock", storeerr.Corrupt, err)
	}
	return Superblock{
		Magic:    fields[0],
		Version:  version,
		Created:  time.Unix(createdUnix, 0).UTC(),
		Machine:  fields[3],
		Nodename: fields[4],
		Sysname:  fields[5],
	}, nil
}

// hostIdentity reads machine/nodename/sysname the way the reference
// implementation's uname(2) call did, via the direct Go analogue
// golang.org/x/sys/unix.Uname.
func hostIdentity() (machine, nodename, sysname string, err error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", "", "", storeerr.New("holstore.hostIdentity", storeerr.Io, err)
	}
	return charsToString(uts.Machine[:]), charsToString(uts.Nodename[:]), charsToString(uts.Sysname[:]), nil
}

func charsToString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
