// Package sds implements the SeisComP Data Structure (SDS) file descriptor:
// a value object that decodes the canonical seven-field archive filename into
// stream identity plus day, derives every path a rule needs (local, object
// store key, grid path), exposes the previous/next day descriptors, and
// computes content properties (size, mtime, checksum) lazily on first use.
//
// A Descriptor never holds a file handle. It is cheap to copy and safe to
// pass by value; the only mutable state is the content-property cache, which
// is instance-local and must not be shared between two Descriptors built for
// the same filename (see the Lifecycle invariant in the archive spec).
package sds

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/knmi/sdsrules/pkg/errs"
)

// Quality is the one-character data quality code embedded in an SDS filename.
type Quality string

const (
	QualityD Quality = "D" // raw, continuous
	QualityR Quality = "R" // raw, real-time
	QualityQ Quality = "Q" // quality-controlled / pruned
	QualityM Quality = "M" // merged
)

const checksumPrefix = "sha2:"

// checksumChunkSize is the read buffer size used while streaming a file
// through the SHA-256 digest. 64 KiB balances syscall overhead against
// memory footprint for archives with many concurrently-open descriptors.
const checksumChunkSize = 64 * 1024

// Descriptor identifies one daily waveform file in an SDS archive and derives
// every path, neighbor, and time property from its seven identity fields.
type Descriptor struct {
	Network     string
	Station     string
	Location    string
	Channel     string
	QualityCode Quality
	Year        string // four digits, e.g. "2019"
	Day         string // three digits, zero-padded day-of-year, e.g. "001"

	ArchiveRoot string

	content *contentCache
}

// contentCache holds the lazily-computed, file-presence-dependent properties
// of a single Descriptor instance. It is created fresh by New and must never
// be copied into another Descriptor sharing the same filename — doing so
// would leak a stat result across pipeline steps in violation of the
// "cache lifetime <= one pipeline step" lifecycle rule.
type contentCache struct {
	once     sync.Once
	size     int64
	modTime  time.Time
	created  time.Time
	checksum string
	present  bool
	loadErr  error
}

// New parses filename (the bare basename, not a path) into a Descriptor
// rooted at archiveRoot. The filename must have exactly seven dot-separated
// fields: NET.STA.LOC.CHA.QUAL.YYYY.DDD. LOC may be empty between its dots.
func New(filename, archiveRoot string) (Descriptor, error) {
	fields := strings.Split(filename, ".")
	if len(fields) != 7 {
		return Descriptor{}, fmt.Errorf("%w: %q has %d fields, want 7", errs.ErrInvalidFilename, filename, len(fields))
	}

	d := Descriptor{
		Network:     fields[0],
		Station:     fields[1],
		Location:    fields[2],
		Channel:     fields[3],
		QualityCode: Quality(fields[4]),
		Year:        fields[5],
		Day:         fields[6],
		ArchiveRoot: archiveRoot,
		content:     &contentCache{},
	}

	if len(d.QualityCode) != 1 {
		return Descriptor{}, fmt.Errorf("%w: %q has invalid quality code %q", errs.ErrInvalidFilename, filename, d.QualityCode)
	}
	if _, err := strconv.Atoi(d.Year); err != nil || len(d.Year) != 4 {
		return Descriptor{}, fmt.Errorf("%w: %q has invalid year %q", errs.ErrInvalidFilename, filename, d.Year)
	}
	if _, err := strconv.Atoi(d.Day); err != nil || len(d.Day) != 3 {
		return Descriptor{}, fmt.Errorf("%w: %q has invalid day %q", errs.ErrInvalidFilename, filename, d.Day)
	}
	for _, f := range fields {
		if strings.ContainsAny(f, "/\\") {
			return Descriptor{}, fmt.Errorf("%w: %q contains a path separator", errs.ErrInvalidFilename, filename)
		}
	}

	return d, nil
}

// Filename reconstructs the canonical dotted filename from the identity
// fields.
func (d Descriptor) Filename() string {
	return strings.Join([]string{
		d.Network, d.Station, d.Location, d.Channel,
		string(d.QualityCode), d.Year, d.Day,
	}, ".")
}

// SubDirectory is the SDS layout path under any archive root:
// <year>/<network>/<station>/<channel>.<quality>.
func (d Descriptor) SubDirectory() string {
	return filepath.Join(d.Year, d.Network, d.Station, d.Channel+"."+string(d.QualityCode))
}

// FilePath is the absolute local path of this descriptor under its own
// ArchiveRoot.
func (d Descriptor) FilePath() string {
	return filepath.Join(d.ArchiveRoot, d.SubDirectory(), d.Filename())
}

// ObjectKey is the object-store key this descriptor maps to under prefix.
func (d Descriptor) ObjectKey(prefix string) string {
	return path(prefix, d.SubDirectory(), d.Filename())
}

// GridPath is the remote grid-archive path this descriptor maps to under
// root.
func (d Descriptor) GridPath(root string) string {
	return path(root, d.SubDirectory(), d.Filename())
}

func path(parts ...string) string {
	return strings.Join(parts, "/")
}

// WithQuality returns a copy of d with its quality code replaced; used e.g.
// by the prune rule to synthesize the "Q" sibling descriptor.
func (d Descriptor) WithQuality(q Quality) Descriptor {
	d2 := d
	d2.QualityCode = q
	d2.content = &contentCache{}
	return d2
}

// Start is midnight UTC of this descriptor's (year, day).
func (d Descriptor) Start() time.Time {
	year, _ := strconv.Atoi(d.Year)
	day, _ := strconv.Atoi(d.Day)
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day-1)
}

// End is Start() + 24h, the exclusive end of this descriptor's data day.
func (d Descriptor) End() time.Time {
	return d.Start().Add(24 * time.Hour)
}

// SampleStart is the inclusive day-boundary string used when driving
// external waveform tools: "YYYY,DDD,00,00,00.000000".
func (d Descriptor) SampleStart() string {
	return fmt.Sprintf("%s,%s,00,00,00.000000", d.Year, d.Day)
}

// SampleEnd is the inclusive day-boundary string used when driving external
// waveform tools: "YYYY,DDD,23,59,59.999999".
func (d Descriptor) SampleEnd() string {
	return fmt.Sprintf("%s,%s,23,59,59.999999", d.Year, d.Day)
}

// IsPressureChannel reports whether this descriptor's channel code is an
// infrasound/pressure channel (code ends with "DF"). Pure, no I/O.
func (d Descriptor) IsPressureChannel() bool {
	return strings.HasSuffix(d.Channel, "DF")
}

// shiftDays returns the Descriptor identical to d except its (year, day) is
// shifted by delta days (may be negative), recomputed via Start().AddDate.
func (d Descriptor) shiftDays(delta int) Descriptor {
	t := d.Start().AddDate(0, 0, delta)
	d2 := d
	d2.Year = fmt.Sprintf("%04d", t.Year())
	d2.Day = fmt.Sprintf("%03d", t.YearDay())
	d2.content = &contentCache{}
	return d2
}

// Previous returns the descriptor for the calendar day immediately before d.
func (d Descriptor) Previous() Descriptor { return d.shiftDays(-1) }

// Next returns the descriptor for the calendar day immediately after d.
func (d Descriptor) Next() Descriptor { return d.shiftDays(1) }

// Neighbors returns the subset of {previous, self, next} whose files exist
// on disk, in chronological order.
func (d Descriptor) Neighbors() []Descriptor {
	candidates := []Descriptor{d.Previous(), d, d.Next()}
	out := make([]Descriptor, 0, 3)
	for _, c := range candidates {
		if c.Exists() {
			out = append(out, c)
		}
	}
	return out
}

// Exists reports whether this descriptor's file is present on disk. This is
// the explicit presence test the content-property accessors rely on; it
// never returns an error.
func (d Descriptor) Exists() bool {
	_, err := os.Stat(d.FilePath())
	return err == nil
}

// ensureLoaded stats (and, for checksum, reads) the file exactly once per
// Descriptor instance, caching the result. Safe for concurrent use by
// multiple goroutines holding the same Descriptor value (they share the
// *contentCache pointer), but the cache itself must not outlive one
// pipeline step for one item.
func (d Descriptor) ensureLoaded() error {
	d.content.once.Do(func() {
		info, err := os.Stat(d.FilePath())
		if os.IsNotExist(err) {
			d.content.present = false
			return
		}
		if err != nil {
			d.content.loadErr = fmt.Errorf("%w: stat %s: %v", errs.ErrIoError, d.FilePath(), err)
			return
		}
		d.content.present = true
		d.content.size = info.Size()
		d.content.modTime = info.ModTime()
		d.content.created = creationTime(info)

		sum, err := hashFile(d.FilePath())
		if err != nil {
			d.content.loadErr = fmt.Errorf("%w: %v", errs.ErrIoError, err)
			return
		}
		d.content.checksum = sum
	})
	return d.content.loadErr
}

// creationTime extracts the inode change time from a stat result, the
// closest POSIX analogue to a creation timestamp (true file birth time is
// not portably exposed by the standard library); it falls back to the
// modification time on platforms whose os.FileInfo.Sys() is not a
// *syscall.Stat_t.
func creationTime(info os.FileInfo) time.Time {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
	}
	return info.ModTime()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return checksumPrefix + base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// Size returns the file size in bytes, or (0, false) if the file is absent.
func (d Descriptor) Size() (int64, bool) {
	if err := d.ensureLoaded(); err != nil || !d.content.present {
		return 0, false
	}
	return d.content.size, true
}

// ModTime returns the file's modification time, or the zero time and false
// if the file is absent.
func (d Descriptor) ModTime() (time.Time, bool) {
	if err := d.ensureLoaded(); err != nil || !d.content.present {
		return time.Time{}, false
	}
	return d.content.modTime, true
}

// Created returns the file's creation time (see creationTime), or the zero
// time and false if the file is absent.
func (d Descriptor) Created() (time.Time, bool) {
	if err := d.ensureLoaded(); err != nil || !d.content.present {
		return time.Time{}, false
	}
	return d.content.created, true
}

// Checksum returns the "sha2:"-prefixed, base64-encoded SHA-256 digest of the
// file contents, or ("", false) if the file is absent. An I/O error on a file
// that does exist is reported by returning ("", false) as well — callers that
// need to distinguish "absent" from "read error" should call Exists() first
// and inspect CheckErr().
func (d Descriptor) Checksum() (string, bool) {
	if err := d.ensureLoaded(); err != nil || !d.content.present {
		return "", false
	}
	return d.content.checksum, true
}

// CheckErr returns the I/O error (if any) from the most recent content load,
// distinguishing a genuine read failure on an existing file from ordinary
// absence.
func (d Descriptor) CheckErr() error {
	return d.ensureLoaded()
}
