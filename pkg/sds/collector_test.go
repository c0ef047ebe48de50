package sds

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArchiveFile creates dir/<SDS path>/<filename> and sets its mtime.
func writeArchiveFile(t *testing.T, root, filename string, mtime time.Time) Descriptor {
	t.Helper()
	d, err := New(filename, root)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(d.FilePath()), 0o755))
	require.NoError(t, os.WriteFile(d.FilePath(), []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(d.FilePath(), mtime, mtime))
	return d
}

func TestLoadSkipsUnparseableBasenames(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "NL.HGN.02.BHZ.D.2019.045", time.Now())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("n/a"), 0o644))

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, c.Files(), 1)
}

func TestFilterWildcardsMatchesPerSegment(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "NL.HGN.02.BHZ.D.2019.045", time.Now())
	writeArchiveFile(t, dir, "NL.HGN.02.BHN.D.2019.045", time.Now())
	writeArchiveFile(t, dir, "NL.OTHR.02.BHZ.D.2019.045", time.Now())

	c, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, c.FilterWildcards([]string{"NL.HGN.*.BHZ.*.*.*"}))

	names := filenames(c.Files())
	assert.ElementsMatch(t, []string{"NL.HGN.02.BHZ.D.2019.045"}, names)
}

func TestFilterWildcardsRejectsPatternWithWrongSegmentCount(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(dir)
	require.NoError(t, err)
	err = c.FilterWildcards([]string{"NL.HGN.*.BHZ"})
	assert.Error(t, err)
}

func TestFilterFinishedDropsFilesModifiedSinceCutoff(t *testing.T) {
	dir := t.TempDir()
	old := writeArchiveFile(t, dir, "NL.HGN.02.BHZ.D.2019.045", time.Now().Add(-48*time.Hour))
	writeArchiveFile(t, dir, "NL.HGN.02.BHN.D.2019.045", time.Now().Add(5*time.Minute))

	c, err := Load(dir)
	require.NoError(t, err)
	c.FilterFinished(0)

	names := filenames(c.Files())
	assert.ElementsMatch(t, []string{old.Filename()}, names)
}

func TestFilterDateRangeByFileName(t *testing.T) {
	dir := t.TempDir()
	d1 := writeArchiveFile(t, dir, "NL.HGN.02.BHZ.D.2019.043", time.Now())
	d2 := writeArchiveFile(t, dir, "NL.HGN.02.BHZ.D.2019.045", time.Now())
	writeArchiveFile(t, dir, "NL.HGN.02.BHZ.D.2019.050", time.Now())

	c, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, c.FilterDateRange(d1.Start(), 3, ModeFileName))

	names := filenames(c.Files())
	assert.ElementsMatch(t, []string{d1.Filename(), d2.Filename()}, names)
}

func TestFilterDateRangeZeroDaysKeepsNone(t *testing.T) {
	dir := t.TempDir()
	d1 := writeArchiveFile(t, dir, "NL.HGN.02.BHZ.D.2019.043", time.Now())

	c, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, c.FilterDateRange(d1.Start(), 0, ModeFileName))
	assert.Empty(t, c.Files())
}

func TestFilterDateRangeRejectsUnknownMode(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(dir)
	require.NoError(t, err)
	err = c.FilterDateRange(time.Now(), 1, "bogus")
	assert.Error(t, err)
}

func TestFilterFromList(t *testing.T) {
	dir := t.TempDir()
	keep := writeArchiveFile(t, dir, "NL.HGN.02.BHZ.D.2019.045", time.Now())
	writeArchiveFile(t, dir, "NL.HGN.02.BHN.D.2019.045", time.Now())

	c, err := Load(dir)
	require.NoError(t, err)
	c.FilterFromList(map[string]bool{keep.Filename(): true})

	names := filenames(c.Files())
	assert.ElementsMatch(t, []string{keep.Filename()}, names)
}

func TestSortAscAndDesc(t *testing.T) {
	dir := t.TempDir()
	writeArchiveFile(t, dir, "NL.HGN.02.BHZ.D.2019.050", time.Now())
	writeArchiveFile(t, dir, "NL.HGN.02.BHZ.D.2019.010", time.Now())

	c, err := Load(dir)
	require.NoError(t, err)

	c.Sort(SortAsc)
	names := filenames(c.Files())
	assert.Equal(t, "NL.HGN.02.BHZ.D.2019.010", names[0])

	c.Sort(SortDesc)
	names = filenames(c.Files())
	assert.Equal(t, "NL.HGN.02.BHZ.D.2019.050", names[0])
}

func filenames(ds []Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Filename()
	}
	return out
}
