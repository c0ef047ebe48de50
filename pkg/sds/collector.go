package sds

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/knmi/sdsrules/pkg/errs"
)

// DateRangeMode selects which timestamp a FilterDateRange call compares
// against the anchor date.
type DateRangeMode string

const (
	ModeFileName DateRangeMode = "file_name"
	ModeModTime  DateRangeMode = "mod_time"
)

// SortOrder selects the lexicographic ordering applied by Collector.Sort.
type SortOrder string

const (
	SortNone SortOrder = "none"
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Collector scans an archive root once, materializes valid descriptors, and
// applies an in-memory, composable filter chain. Filters mutate the
// Collector's internal ordered list; Files returns its current snapshot.
type Collector struct {
	root  string
	files []Descriptor
}

// Load recursively scans root, parsing every basename as an SDS filename.
// Entries whose basename does not parse are skipped without being logged or
// reported to the caller (this package has no logging dependency).
func Load(root string) (*Collector, error) {
	c := &Collector{root: root}

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		d, parseErr := New(entry.Name(), root)
		if parseErr != nil {
			return nil // invalid name: skip, not fatal
		}
		c.files = append(c.files, d)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scanning %s: %v", errs.ErrConfigNotFound, root, err)
	}

	return c, nil
}

// Files returns the collector's current ordered descriptor list.
func (c *Collector) Files() []Descriptor {
	return c.files
}

// FilterWildcards keeps only files whose filename matches at least one
// pattern under POSIX-style glob semantics (*, ?, [...]), matched segment by
// segment. Each pattern must itself have seven dotted segments. Results are
// deduplicated by filename.
func (c *Collector) FilterWildcards(patterns []string) error {
	for _, p := range patterns {
		if len(strings.Split(p, ".")) != 7 {
			return fmt.Errorf("%w: pattern %q must have 7 dotted segments", errs.ErrInvalidPattern, p)
		}
	}

	seen := make(map[string]bool, len(c.files))
	kept := c.files[:0:0]
	for _, d := range c.files {
		name := d.Filename()
		if seen[name] {
			continue
		}
		for _, p := range patterns {
			if matchesSegmented(name, p) {
				kept = append(kept, d)
				seen[name] = true
				break
			}
		}
	}
	c.files = kept
	return nil
}

// matchesSegmented matches name against pattern field-by-field, so that a
// wildcard in one SDS field (e.g. "D" vs "Q") can never accidentally cross a
// dot boundary into the neighboring field.
func matchesSegmented(name, pattern string) bool {
	nameFields := strings.Split(name, ".")
	patternFields := strings.Split(pattern, ".")
	if len(nameFields) != len(patternFields) {
		return false
	}
	for i := range nameFields {
		ok, err := filepath.Match(patternFields[i], nameFields[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// FilterFinished keeps files whose modification time is strictly before
// today's UTC midnight plus toleranceMinutes. Absent files (no mod time) are
// dropped.
func (c *Collector) FilterFinished(toleranceMinutes int) {
	cutoff := todayMidnightUTC().Add(time.Duration(toleranceMinutes) * time.Minute)

	kept := c.files[:0:0]
	for _, d := range c.files {
		mt, ok := d.ModTime()
		if ok && mt.Before(cutoff) {
			kept = append(kept, d)
		}
	}
	c.files = kept
}

func todayMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// FilterDateRange keeps files within a day-window relative to anchor:
//   - days > 0: keep [anchor, anchor+days-1]
//   - days < 0: keep [anchor+days, anchor-1]
//   - days == 0: keep none
//
// mode selects whether the compared date comes from the filename's
// (year, day) identity or from the filesystem modification time.
func (c *Collector) FilterDateRange(anchor time.Time, days int, mode DateRangeMode) error {
	if mode != ModeFileName && mode != ModeModTime {
		return fmt.Errorf("%w: %q", errs.ErrInvalidMode, mode)
	}

	var lo, hi time.Time
	switch {
	case days > 0:
		lo = dateOnly(anchor)
		hi = dateOnly(anchor).AddDate(0, 0, days-1)
	case days < 0:
		lo = dateOnly(anchor).AddDate(0, 0, days)
		hi = dateOnly(anchor).AddDate(0, 0, -1)
	default:
		c.files = c.files[:0]
		return nil
	}

	kept := c.files[:0:0]
	for _, d := range c.files {
		var t time.Time
		switch mode {
		case ModeFileName:
			t = dateOnly(d.Start())
		case ModeModTime:
			mt, ok := d.ModTime()
			if !ok {
				continue
			}
			t = dateOnly(mt)
		}
		if !t.Before(lo) && !t.After(hi) {
			kept = append(kept, d)
		}
	}
	c.files = kept
	return nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FilterFromList keeps files whose filename exactly matches an entry of
// filenames.
func (c *Collector) FilterFromList(filenames map[string]bool) {
	kept := c.files[:0:0]
	for _, d := range c.files {
		if filenames[d.Filename()] {
			kept = append(kept, d)
		}
	}
	c.files = kept
}

// Sort reorders the collector's file list lexicographically by filename.
func (c *Collector) Sort(order SortOrder) {
	switch order {
	case SortAsc:
		sort.Slice(c.files, func(i, j int) bool { return c.files[i].Filename() < c.files[j].Filename() })
	case SortDesc:
		sort.Slice(c.files, func(i, j int) bool { return c.files[i].Filename() > c.files[j].Filename() })
	case SortNone:
		// no-op, preserve scan order
	}
}
