package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knmi/sdsrules/internal/collab"
	"github.com/knmi/sdsrules/pkg/sds"
)

// DeletionLedgerLockKey is the single key guarding every deletion-ledger
// write, shared with callers (e.g. the delete CLI's --from_file append) that
// write the ledger directly rather than through a rule action. The ledger
// itself is one bbolt file per process and already serializes concurrent
// writers within that process; the lock additionally serializes writers
// across parallel pipeline workers sharing the same ledger backing store,
// per the Locker interface's stated purpose.
const DeletionLedgerLockKey = "deletion-ledger"

const deletionLedgerLockTTL = 30 * time.Second

// withLedgerLock runs fn holding co.Locker, when one is configured; with no
// locker configured (single-worker deployments) it runs fn unguarded.
func withLedgerLock(co Collaborators, ctx context.Context, fn func() error) error {
	if co.Locker == nil {
		return fn()
	}
	ok, err := co.Locker.TryLock(ctx, DeletionLedgerLockKey, deletionLedgerLockTTL)
	if err != nil {
		return fmt.Errorf("acquire deletion ledger lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("deletion ledger is locked by another worker")
	}
	defer co.Locker.Unlock(ctx, DeletionLedgerLockKey)
	return fn()
}

// RegisterActions installs every named rule action from §1/§5/§7 of the
// archive specification into reg, closing over co the same way
// RegisterConditions does.
func RegisterActions(reg *ActionRegistry, co Collaborators) {
	reg.MustRegister("ingest", bindAction(co, actionIngest))
	reg.MustRegister("replicate", bindAction(co, actionReplicate))
	reg.MustRegister("assign_pid", bindAction(co, actionAssignPID))
	reg.MustRegister("compute_quality_metadata", bindAction(co, actionComputeQualityMetadata))
	reg.MustRegister("compute_dc_metadata", bindAction(co, actionComputeDCMetadata))
	reg.MustRegister("compute_ppsd", bindAction(co, actionComputePPSD))
	reg.MustRegister("prune", bindAction(co, actionPrune))
	reg.MustRegister("mark_for_deletion", bindAction(co, actionMarkForDeletion))
	reg.MustRegister("purge", bindAction(co, actionPurge))
	reg.MustRegister("quarantine", bindAction(co, actionQuarantine))
	reg.MustRegister("remove_from_deletion_ledger", bindAction(co, actionRemoveFromDeletionLedger))
}

func bindAction(co Collaborators, fn func(Collaborators, context.Context, Options, sds.Descriptor) Outcome) ActionFunc {
	return func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
		return fn(co, ctx, opts, d)
	}
}

// actionIngest uploads the descriptor's local file to the long-term object
// store, computing its checksum first so Put can attach it as object
// metadata. When exit_on_failure is set, a put failure ends the pipeline for
// this item rather than merely logging an error and continuing.
func actionIngest(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	checksum, ok := d.Checksum()
	if !ok {
		return ConditionFailure("temp_archive_exists")
	}
	if err := co.ObjectStore.Put(ctx, d, checksum); err != nil {
		if opts.Bool("exit_on_failure", false) {
			return ExitError(fmt.Sprintf("ingest failed: %v", err))
		}
		return Failed(err)
	}
	return Continue()
}

// actionReplicate asks the grid archive to copy the object to a federated
// remote root named by the replication_root option.
func actionReplicate(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	root := opts.String("replication_root", "")
	if root == "" {
		return Failed(fmt.Errorf("replicate: replication_root option is required"))
	}
	if err := co.GridArchive.Replicate(ctx, d, root); err != nil {
		if opts.Bool("exit_on_failure", false) {
			return ExitError(fmt.Sprintf("replicate failed: %v", err))
		}
		return Failed(err)
	}
	return Continue()
}

// actionAssignPID requests a persistent identifier for the object, which
// must already exist in the grid archive.
func actionAssignPID(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	exists, err := co.GridArchive.Exists(ctx, d)
	if err != nil {
		return Failed(err)
	}
	if !exists {
		return ConditionFailure("grid_exists")
	}
	if _, err := co.GridArchive.AssignPID(ctx, d); err != nil {
		return Failed(err)
	}
	return Continue()
}

// actionComputeQualityMetadata runs the waveform quality-metadata tool and
// saves the result to the catalog named by the catalog option (default
// WFCatalog-daily), stamping it with the descriptor's own checksum so a
// later waveform_catalog_exists condition can verify it.
func actionComputeQualityMetadata(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	fields, err := co.Waveform.QualityMetadata(ctx, d)
	if err != nil {
		return Failed(err)
	}
	checksum, _ := d.Checksum()
	store, err := co.catalog(opts.String("catalog", "WFCatalog-daily"))
	if err != nil {
		return Failed(err)
	}
	doc := collab.CatalogDocument{FileID: d.Filename(), Checksum: checksum, Fields: fields}
	if err := store.Save(ctx, doc, true); err != nil {
		return Failed(err)
	}
	return Continue()
}

// actionComputeDCMetadata builds a Dublin Core descriptive-metadata document
// by combining the descriptor's own stream identity with station metadata
// (instrument, coordinates, owning network) fetched from the station-
// inventory web service, then saves it keyed by filename the same way
// actionComputeQualityMetadata does for WFCatalog-daily. A station lookup
// miss (empty/not-found inventory response) still produces a document, just
// without the station fields, since the stream identity alone is valid
// Dublin Core metadata.
func actionComputeDCMetadata(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	station, err := co.Inventory.StationInfo(ctx, d.Network, d.Station)
	if err != nil {
		return Failed(err)
	}
	fields := map[string]any{
		"network":  d.Network,
		"station":  d.Station,
		"location": d.Location,
		"channel":  d.Channel,
		"quality":  string(d.QualityCode),
	}
	for k, v := range station {
		fields[k] = v
	}
	checksum, _ := d.Checksum()
	store, err := co.catalog("Dublin Core")
	if err != nil {
		return Failed(err)
	}
	doc := collab.CatalogDocument{FileID: d.Filename(), Checksum: checksum, Fields: fields}
	if err := store.Save(ctx, doc, true); err != nil {
		return Failed(err)
	}
	return Continue()
}

// actionComputePPSD runs the PPSD tool, replacing any existing PPSD
// documents for this file with the freshly computed segments (delete-then-
// insert is the batch-replace idiom the PPSD catalog uses per the archive
// specification, since PPSD saves use overwrite=false/append).
func actionComputePPSD(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	segments, err := co.Waveform.PPSDSegments(ctx, d)
	if err != nil {
		return Failed(err)
	}
	store, err := co.catalog("PPSD")
	if err != nil {
		return Failed(err)
	}
	if err := store.DeleteMany(ctx, d.Filename()); err != nil {
		return Failed(err)
	}
	checksum, _ := d.Checksum()
	checksumPrev, checksumNext := "", ""
	if prev := d.Previous(); prev.Exists() {
		checksumPrev, _ = prev.Checksum()
	}
	if next := d.Next(); next.Exists() {
		checksumNext, _ = next.Checksum()
	}
	for _, seg := range segments {
		doc := collab.CatalogDocument{
			FileID:       d.Filename(),
			Checksum:     checksum,
			ChecksumPrev: checksumPrev,
			ChecksumNext: checksumNext,
			Fields:       seg,
		}
		if err := store.Save(ctx, doc, false); err != nil {
			return Failed(err)
		}
	}
	return Continue()
}

// actionPrune runs the gap-compaction tool, writing its output to the
// Q-quality sibling path so pruned_file_exists recognizes it on a later
// rule invocation.
func actionPrune(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	pruned := d.WithQuality(sds.QualityQ)
	if err := os.MkdirAll(filepath.Dir(pruned.FilePath()), 0755); err != nil {
		return Failed(fmt.Errorf("prune: prepare output directory: %w", err))
	}
	if err := co.Waveform.Prune(ctx, d, pruned.FilePath()); err != nil {
		return Failed(err)
	}
	return Continue()
}

// actionMarkForDeletion adds the descriptor's filename to the durable
// pending-deletion set.
func actionMarkForDeletion(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	err := withLedgerLock(co, ctx, func() error {
		return co.Ledger.Add(d.Filename())
	})
	if err != nil {
		return Failed(err)
	}
	return Continue()
}

// actionPurge deletes the descriptor from every configured backend
// (object store, grid archive, local disk) and is required to be
// idempotent: a backend that reports the object already absent is not an
// error.
func actionPurge(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	if co.ObjectStore != nil {
		if err := co.ObjectStore.Delete(ctx, d); err != nil {
			return Failed(fmt.Errorf("purge: object store: %w", err))
		}
	}
	if co.GridArchive != nil {
		if err := co.GridArchive.Delete(ctx, d); err != nil {
			return Failed(fmt.Errorf("purge: grid archive: %w", err))
		}
	}
	if d.Exists() {
		if err := os.Remove(d.FilePath()); err != nil {
			return Failed(fmt.Errorf("purge: local file: %w", err))
		}
	}
	return Continue()
}

// actionQuarantine moves the local file to a quarantine_dir subtree
// mirroring its sub-directory layout, leaving a trail for operator review
// instead of deleting outright.
func actionQuarantine(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	quarantineDir := opts.String("quarantine_dir", "")
	if quarantineDir == "" {
		return Failed(fmt.Errorf("quarantine: quarantine_dir option is required"))
	}
	if !d.Exists() {
		return ConditionFailure("temp_archive_exists")
	}
	dest := filepath.Join(quarantineDir, d.SubDirectory(), d.Filename())
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return Failed(fmt.Errorf("quarantine: prepare destination: %w", err))
	}
	if err := os.Rename(d.FilePath(), dest); err != nil {
		return Failed(fmt.Errorf("quarantine: move file: %w", err))
	}
	return Continue()
}

// actionRemoveFromDeletionLedger is the terminal rule of the deletion
// pipeline: on success it clears the entry so the next invocation does not
// reprocess it.
func actionRemoveFromDeletionLedger(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) Outcome {
	err := withLedgerLock(co, ctx, func() error {
		return co.Ledger.Remove(d.Filename())
	})
	if err != nil {
		return Failed(err)
	}
	return ExitSuccess("removed from deletion ledger")
}
