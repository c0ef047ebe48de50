package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knmi/sdsrules/internal/collab"
	"github.com/knmi/sdsrules/pkg/sds"
)

// fakeLedger is an in-memory collab.DeletionLedger for exercising actions
// that write the deletion ledger without a real bbolt file.
type fakeLedger struct {
	entries map[string]collab.PendingDeletion
}

func newFakeLedger() *fakeLedger { return &fakeLedger{entries: map[string]collab.PendingDeletion{}} }

func (l *fakeLedger) Add(filename string) error {
	if _, ok := l.entries[filename]; !ok {
		l.entries[filename] = collab.PendingDeletion{ID: filename, Filename: filename, CreatedAt: time.Now()}
	}
	return nil
}

func (l *fakeLedger) AddMany(filenames []string) error {
	for _, f := range filenames {
		if err := l.Add(f); err != nil {
			return err
		}
	}
	return nil
}

func (l *fakeLedger) Remove(filename string) error {
	delete(l.entries, filename)
	return nil
}

func (l *fakeLedger) List() ([]collab.PendingDeletion, error) {
	out := make([]collab.PendingDeletion, 0, len(l.entries))
	for _, v := range l.entries {
		out = append(out, v)
	}
	return out, nil
}

func (l *fakeLedger) Count() (int, error) { return len(l.entries), nil }
func (l *fakeLedger) Close() error        { return nil }

// fakeLocker is an in-memory collab.Locker recording acquire/release calls
// so tests can assert the ledger-writing actions actually take the lock.
type fakeLocker struct {
	held        bool
	acquireErr  error
	acquireOK   bool
	acquisition int
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.acquisition++
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key string) error {
	l.held = false
	return nil
}

// fakeInventory is an in-memory collab.InventoryClient.
type fakeInventory struct {
	info map[string]map[string]any
}

func (f *fakeInventory) StationInfo(ctx context.Context, network, station string) (map[string]any, error) {
	return f.info[network+"."+station], nil
}

// fakeCatalog is an in-memory collab.CatalogStore keyed by fileID.
type fakeCatalog struct {
	docs map[string][]collab.CatalogDocument
}

func newFakeCatalog() *fakeCatalog { return &fakeCatalog{docs: map[string][]collab.CatalogDocument{}} }

func (c *fakeCatalog) FindOne(ctx context.Context, fileID string) (*collab.CatalogDocument, error) {
	docs := c.docs[fileID]
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

func (c *fakeCatalog) FindMany(ctx context.Context, fileID string) ([]*collab.CatalogDocument, error) {
	docs := c.docs[fileID]
	out := make([]*collab.CatalogDocument, len(docs))
	for i := range docs {
		out[i] = &docs[i]
	}
	return out, nil
}

func (c *fakeCatalog) Save(ctx context.Context, doc collab.CatalogDocument, overwrite bool) error {
	if overwrite {
		c.docs[doc.FileID] = []collab.CatalogDocument{doc}
		return nil
	}
	c.docs[doc.FileID] = append(c.docs[doc.FileID], doc)
	return nil
}

func (c *fakeCatalog) DeleteMany(ctx context.Context, fileID string) error {
	delete(c.docs, fileID)
	return nil
}

func testAction(t *testing.T) sds.Descriptor {
	t.Helper()
	d, err := sds.New("NL.HGN.02.BHZ.D.2019.045", t.TempDir())
	require.NoError(t, err)
	return d
}

func TestActionMarkForDeletionAddsEntry(t *testing.T) {
	ledger := newFakeLedger()
	co := Collaborators{Ledger: ledger}
	d := testAction(t)

	outcome := actionMarkForDeletion(co, context.Background(), Options{}, d)
	assert.Equal(t, KindSuccess, outcome.Kind)

	n, _ := ledger.Count()
	assert.Equal(t, 1, n)
}

func TestActionMarkForDeletionAcquiresConfiguredLock(t *testing.T) {
	ledger := newFakeLedger()
	locker := &fakeLocker{}
	co := Collaborators{Ledger: ledger, Locker: locker}
	d := testAction(t)

	outcome := actionMarkForDeletion(co, context.Background(), Options{}, d)
	assert.Equal(t, KindSuccess, outcome.Kind)
	assert.Equal(t, 1, locker.acquisition, "the action must acquire the ledger lock when one is configured")
	assert.False(t, locker.held, "the lock must be released after the write")
}

func TestActionMarkForDeletionFailsWhenLockHeldElsewhere(t *testing.T) {
	ledger := newFakeLedger()
	locker := &fakeLocker{held: true}
	co := Collaborators{Ledger: ledger, Locker: locker}
	d := testAction(t)

	outcome := actionMarkForDeletion(co, context.Background(), Options{}, d)
	assert.Equal(t, KindError, outcome.Kind)

	n, _ := ledger.Count()
	assert.Equal(t, 0, n, "a contended lock must prevent the ledger write")
}

func TestActionComputeDCMetadataMergesStationInfo(t *testing.T) {
	catalog := newFakeCatalog()
	inventory := &fakeInventory{info: map[string]map[string]any{
		"NL.HGN": {"elevation_m": 97.0, "owner": "KNMI"},
	}}
	co := Collaborators{
		Inventory: inventory,
		Catalogs:  map[string]collab.CatalogStore{"Dublin Core": catalog},
	}
	d := testAction(t)

	outcome := actionComputeDCMetadata(co, context.Background(), Options{}, d)
	require.Equal(t, KindSuccess, outcome.Kind)

	doc, err := catalog.FindOne(context.Background(), d.Filename())
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "NL", doc.Fields["network"])
	assert.Equal(t, 97.0, doc.Fields["elevation_m"])
	assert.Equal(t, "KNMI", doc.Fields["owner"])
}

func TestActionComputeDCMetadataWithoutStationMatchStillSaves(t *testing.T) {
	catalog := newFakeCatalog()
	inventory := &fakeInventory{info: map[string]map[string]any{}}
	co := Collaborators{
		Inventory: inventory,
		Catalogs:  map[string]collab.CatalogStore{"Dublin Core": catalog},
	}
	d := testAction(t)

	outcome := actionComputeDCMetadata(co, context.Background(), Options{}, d)
	require.Equal(t, KindSuccess, outcome.Kind)

	doc, err := catalog.FindOne(context.Background(), d.Filename())
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "BHZ", doc.Fields["channel"])
}

func TestActionRemoveFromDeletionLedgerExitsSuccessfully(t *testing.T) {
	ledger := newFakeLedger()
	require.NoError(t, ledger.Add("NL.HGN.02.BHZ.D.2019.045"))
	co := Collaborators{Ledger: ledger}
	d := testAction(t)

	outcome := actionRemoveFromDeletionLedger(co, context.Background(), Options{}, d)
	assert.Equal(t, KindExitSuccess, outcome.Kind)

	n, _ := ledger.Count()
	assert.Equal(t, 0, n)
}
