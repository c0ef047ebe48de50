package collab

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *BoltLedger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deletion.db")
	l, err := OpenBoltLedger(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestBoltLedgerAddAndList(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Add("NL.HGN.02.BHZ.D.2019.045"))
	require.NoError(t, l.Add("NL.HGN.02.BHN.D.2019.045"))

	pending, err := l.List()
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	n, err := l.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBoltLedgerAddIsIdempotent(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Add("NL.HGN.02.BHZ.D.2019.045"))
	first, err := l.List()
	require.NoError(t, err)
	firstCreatedAt := first[0].CreatedAt

	require.NoError(t, l.Add("NL.HGN.02.BHZ.D.2019.045"))
	second, err := l.List()
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, firstCreatedAt, second[0].CreatedAt, "re-adding a pending filename must not refresh its timestamp")
}

func TestBoltLedgerAddManySkipsExisting(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Add("a.b.c.d.D.2019.045"))
	require.NoError(t, l.AddMany([]string{"a.b.c.d.D.2019.045", "e.f.g.h.D.2019.045"}))

	n, err := l.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBoltLedgerRemove(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Add("a.b.c.d.D.2019.045"))
	require.NoError(t, l.Remove("a.b.c.d.D.2019.045"))

	n, err := l.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBoltLedgerRemoveAbsentIsNoOp(t *testing.T) {
	l := openTestLedger(t)
	assert.NoError(t, l.Remove("never.added.here.x.D.2019.001"))
}
