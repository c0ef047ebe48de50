package collab

import (
	"fmt"
	"time"

	"github.com/knmi/sdsrules/db/bolt"
	"github.com/knmi/sdsrules/pkg/errs"
)

const deletionBucket = "deletion"

// BoltLedger is a bbolt-backed DeletionLedger built on the generic JSON
// bucket wrapper in db/bolt. The distilled spec describes the
// pending-deletion set as a SQL table (id, file unique, created); here it
// is one bucket keyed by filename holding a JSON-encoded PendingDeletion,
// which gives the same uniqueness and durability guarantees a single bbolt
// file can provide without a separate server process.
type BoltLedger struct {
	db *bolt.DB
}

// OpenBoltLedger opens or creates the bbolt file at path and ensures the
// deletion bucket exists.
func OpenBoltLedger(path string) (*BoltLedger, error) {
	db, err := bolt.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open ledger %s: %v", errs.ErrIoError, path, err)
	}
	if err := db.CreateBucket(deletionBucket); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create deletion bucket: %v", errs.ErrIoError, err)
	}
	return &BoltLedger{db: db}, nil
}

// Add records filename as pending deletion. Re-adding an already-pending
// filename is a no-op (idempotent, matching the SQL schema's unique
// constraint on file).
func (l *BoltLedger) Add(filename string) error {
	var existing PendingDeletion
	if err := l.db.GetJSON(deletionBucket, filename, &existing); err == nil {
		return nil
	}
	entry := PendingDeletion{ID: filename, Filename: filename, CreatedAt: time.Now().UTC()}
	return l.db.PutJSON(deletionBucket, filename, entry)
}

// AddMany adds several filenames, skipping any already pending.
func (l *BoltLedger) AddMany(filenames []string) error {
	now := time.Now().UTC()
	for _, filename := range filenames {
		var existing PendingDeletion
		if err := l.db.GetJSON(deletionBucket, filename, &existing); err == nil {
			continue
		}
		entry := PendingDeletion{ID: filename, Filename: filename, CreatedAt: now}
		if err := l.db.PutJSON(deletionBucket, filename, entry); err != nil {
			return err
		}
	}
	return nil
}

// Remove clears filename from the pending-deletion set. Removing an absent
// filename is a no-op.
func (l *BoltLedger) Remove(filename string) error {
	return l.db.Delete(deletionBucket, filename)
}

// List returns every pending deletion, in bucket (lexicographic filename)
// order.
func (l *BoltLedger) List() ([]PendingDeletion, error) {
	var out []PendingDeletion
	err := l.db.ForEachJSON(deletionBucket,
		func(key string, value interface{}) error {
			out = append(out, *value.(*PendingDeletion))
			return nil
		},
		func() interface{} { return &PendingDeletion{} },
	)
	return out, err
}

// Count returns the number of filenames currently pending deletion.
func (l *BoltLedger) Count() (int, error) {
	keys, err := l.db.List(deletionBucket)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close releases the underlying bbolt file handle.
func (l *BoltLedger) Close() error {
	return l.db.Close()
}
