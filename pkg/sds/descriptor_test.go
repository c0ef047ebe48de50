package sds

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesCanonicalFilename(t *testing.T) {
	d, err := New("NL.HGN.02.BHZ.D.2019.045", "/archive")
	require.NoError(t, err)
	assert.Equal(t, "NL", d.Network)
	assert.Equal(t, "HGN", d.Station)
	assert.Equal(t, "02", d.Location)
	assert.Equal(t, "BHZ", d.Channel)
	assert.Equal(t, QualityD, d.QualityCode)
	assert.Equal(t, "2019", d.Year)
	assert.Equal(t, "045", d.Day)
	assert.Equal(t, "NL.HGN.02.BHZ.D.2019.045", d.Filename())
}

func TestNewRejectsWrongFieldCount(t *testing.T) {
	_, err := New("NL.HGN.BHZ.D.2019.045", "/archive")
	assert.Error(t, err)
}

func TestNewRejectsInvalidYearAndDay(t *testing.T) {
	_, err := New("NL.HGN..BHZ.D.19.045", "/archive")
	assert.Error(t, err)

	_, err = New("NL.HGN..BHZ.D.2019.45", "/archive")
	assert.Error(t, err)
}

func TestNewRejectsPathSeparatorInField(t *testing.T) {
	_, err := New("NL.HGN.02.BH/Z.D.2019.045", "/archive")
	assert.Error(t, err)
}

func TestNewAllowsEmptyLocation(t *testing.T) {
	d, err := New("NL.HGN..BHZ.D.2019.045", "/archive")
	require.NoError(t, err)
	assert.Equal(t, "", d.Location)
}

func TestSubDirectoryAndFilePath(t *testing.T) {
	d, err := New("NL.HGN.02.BHZ.D.2019.045", "/archive")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("2019", "NL", "HGN", "BHZ.D"), d.SubDirectory())
	assert.Equal(t, filepath.Join("/archive", "2019", "NL", "HGN", "BHZ.D", d.Filename()), d.FilePath())
}

func TestObjectKeyAndGridPathUseForwardSlashes(t *testing.T) {
	d, err := New("NL.HGN.02.BHZ.D.2019.045", "/archive")
	require.NoError(t, err)
	assert.Equal(t, "prefix/2019/NL/HGN/BHZ.D/"+d.Filename(), d.ObjectKey("prefix"))
	assert.Equal(t, "/grid/2019/NL/HGN/BHZ.D/"+d.Filename(), d.GridPath("/grid"))
}

func TestWithQualityReplacesCodeAndResetsCache(t *testing.T) {
	d, err := New("NL.HGN.02.BHZ.D.2019.045", "/archive")
	require.NoError(t, err)
	q := d.WithQuality(QualityQ)
	assert.Equal(t, QualityQ, q.QualityCode)
	assert.Equal(t, QualityD, d.QualityCode)
	assert.NotSame(t, d.content, q.content)
}

func TestPreviousAndNextCrossYearBoundary(t *testing.T) {
	d, err := New("NL.HGN.02.BHZ.D.2019.001", "/archive")
	require.NoError(t, err)
	prev := d.Previous()
	assert.Equal(t, "2018", prev.Year)
	assert.Equal(t, "365", prev.Day)

	d2, err := New("NL.HGN.02.BHZ.D.2020.366", "/archive")
	require.NoError(t, err)
	next := d2.Next()
	assert.Equal(t, "2021", next.Year)
	assert.Equal(t, "001", next.Day)
}

func TestStartAndEndAreOneDayApart(t *testing.T) {
	d, err := New("NL.HGN.02.BHZ.D.2019.045", "/archive")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d.End().Sub(d.Start()))
	assert.True(t, d.Start().Equal(time.Date(2019, time.February, 14, 0, 0, 0, 0, time.UTC)))
}

func TestIsPressureChannel(t *testing.T) {
	d, err := New("NL.HGN.02.BDF.D.2019.045", "/archive")
	require.NoError(t, err)
	assert.True(t, d.IsPressureChannel())

	d2, err := New("NL.HGN.02.BHZ.D.2019.045", "/archive")
	require.NoError(t, err)
	assert.False(t, d2.IsPressureChannel())
}

func TestExistsAndContentPropertiesForAbsentFile(t *testing.T) {
	dir := t.TempDir()
	d, err := New("NL.HGN.02.BHZ.D.2019.045", dir)
	require.NoError(t, err)

	assert.False(t, d.Exists())
	_, ok := d.Size()
	assert.False(t, ok)
	_, ok = d.ModTime()
	assert.False(t, ok)
	_, ok = d.Created()
	assert.False(t, ok)
	_, ok = d.Checksum()
	assert.False(t, ok)
	assert.NoError(t, d.CheckErr())
}

func TestContentPropertiesForPresentFile(t *testing.T) {
	dir := t.TempDir()
	d, err := New("NL.HGN.02.BHZ.D.2019.045", dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(d.FilePath()), 0o755))
	require.NoError(t, os.WriteFile(d.FilePath(), []byte("waveform-bytes"), 0o644))

	assert.True(t, d.Exists())
	size, ok := d.Size()
	assert.True(t, ok)
	assert.Equal(t, int64(len("waveform-bytes")), size)

	sum, ok := d.Checksum()
	assert.True(t, ok)
	assert.Contains(t, sum, checksumPrefix)

	sumAgain, _ := d.Checksum()
	assert.Equal(t, sum, sumAgain, "checksum must be stable across repeated calls on the same instance")

	created, ok := d.Created()
	assert.True(t, ok)
	assert.False(t, created.IsZero())
}

func TestNeighborsOnlyIncludesPresentDays(t *testing.T) {
	dir := t.TempDir()
	d, err := New("NL.HGN.02.BHZ.D.2019.045", dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(d.FilePath()), 0o755))
	require.NoError(t, os.WriteFile(d.FilePath(), []byte("x"), 0o644))

	next := d.Next()
	require.NoError(t, os.MkdirAll(filepath.Dir(next.FilePath()), 0o755))
	require.NoError(t, os.WriteFile(next.FilePath(), []byte("y"), 0o644))

	neighbors := d.Neighbors()
	require.Len(t, neighbors, 2)
	assert.Equal(t, d.Filename(), neighbors[0].Filename())
	assert.Equal(t, next.Filename(), neighbors[1].Filename())
}
