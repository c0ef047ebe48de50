package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/knmi/sdsrules/internal/collab"
	"github.com/knmi/sdsrules/pkg/sds"
)

// Collaborators bundles the external handles conditions and actions consult.
// The executor is constructed with one Collaborators value and threads it
// into every registered handler; none of the handler functions hold their
// own package-level state, so tests can substitute a bundle of fakes.
type Collaborators struct {
	ObjectStore collab.ObjectStore
	GridArchive collab.GridArchive
	Catalogs    map[string]collab.CatalogStore
	Ledger      collab.DeletionLedger
	Locker      collab.Locker
	Audit       collab.RunAudit
	Waveform    collab.WaveformAnalyzer
	Inventory   collab.InventoryClient
}

func (c Collaborators) catalog(name string) (collab.CatalogStore, error) {
	store, ok := c.Catalogs[name]
	if !ok {
		return nil, fmt.Errorf("no catalog configured with name %q", name)
	}
	return store, nil
}

// RegisterConditions installs every named condition handler from §4.3 of
// the archive specification into reg, closing over co so handlers can reach
// the object store, grid archive, and metadata catalogs.
func RegisterConditions(reg *ConditionRegistry, co Collaborators) {
	reg.MustRegister("quality_in", conditionQualityIn)
	reg.MustRegister("modified_newer_than", conditionModifiedNewerThan)
	reg.MustRegister("modified_older_than", conditionModifiedOlderThan)
	reg.MustRegister("data_time_newer_than", conditionDataTimeNewerThan)
	reg.MustRegister("data_time_older_than", conditionDataTimeOlderThan)
	reg.MustRegister("temp_archive_exists", conditionTempArchiveExists)
	reg.MustRegister("pruned_file_exists", conditionPrunedFileExists)

	reg.MustRegister("object_store_exists", bindCollab(co, conditionObjectStoreExists))
	reg.MustRegister("grid_exists", bindCollab(co, conditionGridExists))
	reg.MustRegister("grid_not_exists", bindCollab(co, conditionGridNotExists))
	reg.MustRegister("waveform_catalog_exists", bindCollab(co, conditionWaveformCatalogExists))
	reg.MustRegister("dc_metadata_exists", bindCollab(co, conditionDCMetadataExists))
	reg.MustRegister("ppsd_metadata_exists", bindCollab(co, conditionPPSDMetadataExists))
	reg.MustRegister("file_replicated", bindCollab(co, conditionFileReplicated))
	reg.MustRegister("pid_assigned", bindCollab(co, conditionPIDAssigned))
	reg.MustRegister("replica_pid_assigned", bindCollab(co, conditionReplicaPIDAssigned))
}

// bindCollab adapts a (Collaborators, ctx, opts, descriptor) handler into a
// plain ConditionFunc, so RegisterConditions can register collaborator-aware
// handlers with the same signature as the pure ones.
func bindCollab(co Collaborators, fn func(Collaborators, context.Context, Options, sds.Descriptor) (bool, error)) ConditionFunc {
	return func(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
		return fn(co, ctx, opts, d)
	}
}

// resolveApplyTo picks the descriptor `apply_to` names: "previous", "next",
// or (the default) "current".
func resolveApplyTo(opts Options, d sds.Descriptor) sds.Descriptor {
	switch opts.String("apply_to", "current") {
	case "previous":
		return d.Previous()
	case "next":
		return d.Next()
	default:
		return d
	}
}

func conditionQualityIn(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	qualities := opts.StringSlice("qualities")
	for _, q := range qualities {
		if string(d.QualityCode) == q {
			return true, nil
		}
	}
	return false, nil
}

// conditionModifiedNewerThan passes when the target descriptor's file
// exists and was modified within the last `days` days. A target descriptor
// with no file on disk is vacuously not "newer than" anything.
func conditionModifiedNewerThan(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	target := resolveApplyTo(opts, d)
	modTime, ok := target.ModTime()
	if !ok {
		return false, nil
	}
	days := opts.Int("days", 0)
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return modTime.After(cutoff), nil
}

// conditionModifiedOlderThan is the dual of conditionModifiedNewerThan; a
// missing target file is vacuously "older than any" cutoff.
func conditionModifiedOlderThan(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	target := resolveApplyTo(opts, d)
	modTime, ok := target.ModTime()
	if !ok {
		return true, nil
	}
	days := opts.Int("days", 0)
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return modTime.Before(cutoff), nil
}

// conditionDataTimeNewerThan compares the target descriptor's embedded data
// day (not its filesystem mtime) against a cutoff of now minus days. A
// target whose file is absent is vacuously not newer.
func conditionDataTimeNewerThan(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	target := resolveApplyTo(opts, d)
	if !target.Exists() {
		return false, nil
	}
	days := opts.Int("days", 0)
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return target.Start().After(cutoff), nil
}

func conditionDataTimeOlderThan(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	target := resolveApplyTo(opts, d)
	if !target.Exists() {
		return true, nil
	}
	days := opts.Int("days", 0)
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return target.Start().Before(cutoff), nil
}

// conditionTempArchiveExists tests local presence of the descriptor itself,
// no options.
func conditionTempArchiveExists(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	return d.Exists(), nil
}

// conditionPrunedFileExists synthesizes the Q-quality sibling and tests its
// local presence.
func conditionPrunedFileExists(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	return d.WithQuality(sds.QualityQ).Exists(), nil
}

func conditionObjectStoreExists(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	exists, err := co.ObjectStore.Exists(ctx, d)
	if err != nil || !exists {
		return exists, err
	}
	if !opts.Bool("check_checksum", true) {
		return true, nil
	}
	checksum, ok := d.Checksum()
	if !ok {
		return false, nil
	}
	remoteSum, err := co.ObjectStore.Checksum(ctx, d)
	if err != nil {
		return false, err
	}
	return remoteSum == checksum, nil
}

func conditionGridExists(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	return co.GridArchive.Exists(ctx, d)
}

func conditionGridNotExists(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	exists, err := co.GridArchive.Exists(ctx, d)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// documentMatches implements the shared document-match sub-procedure: a nil
// document (absent) never matches (resolving the specification's open
// question on the source's undefined `exists` variable), and the
// checksum(s) must agree with the descriptor and, when requireNeighbors is
// true, with whichever of its previous/next neighbors exist.
func documentMatches(doc *collab.CatalogDocument, d sds.Descriptor, checkChecksum, requireNeighbors bool) bool {
	if doc == nil {
		return false
	}
	if !checkChecksum {
		return true
	}
	checksum, ok := d.Checksum()
	if !ok || doc.Checksum != checksum {
		return false
	}
	if !requireNeighbors {
		return true
	}
	if prev := d.Previous(); prev.Exists() {
		if sum, ok := prev.Checksum(); ok && doc.ChecksumPrev != sum {
			return false
		}
	}
	if next := d.Next(); next.Exists() {
		if sum, ok := next.Checksum(); ok && doc.ChecksumNext != sum {
			return false
		}
	}
	return true
}

func conditionWaveformCatalogExists(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	store, err := co.catalog(opts.String("catalog", "WFCatalog-daily"))
	if err != nil {
		return false, err
	}
	doc, err := store.FindOne(ctx, d.Filename())
	if err != nil {
		return false, err
	}
	return documentMatches(doc, d, opts.Bool("check_checksum", true), false), nil
}

func conditionDCMetadataExists(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	store, err := co.catalog("Dublin Core")
	if err != nil {
		return false, err
	}
	doc, err := store.FindOne(ctx, d.Filename())
	if err != nil {
		return false, err
	}
	return documentMatches(doc, d, true, false), nil
}

// conditionPPSDMetadataExists: multiple documents may exist for one file;
// all must agree on checksum/checksum_prev/checksum_next.
func conditionPPSDMetadataExists(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	store, err := co.catalog("PPSD")
	if err != nil {
		return false, err
	}
	docs, err := store.FindMany(ctx, d.Filename())
	if err != nil {
		return false, err
	}
	if len(docs) == 0 {
		return false, nil
	}
	checkChecksum := opts.Bool("check_checksum", true)
	for _, doc := range docs {
		if !documentMatches(doc, d, checkChecksum, true) {
			return false, nil
		}
	}
	return true, nil
}

func conditionFileReplicated(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	return co.GridArchive.FederatedExists(ctx, d, opts.String("replication_root", ""))
}

func conditionPIDAssigned(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	pid, err := co.GridArchive.GetPID(ctx, d)
	if err != nil {
		return false, err
	}
	return pid != "", nil
}

func conditionReplicaPIDAssigned(co Collaborators, ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
	pid, err := co.GridArchive.FederatedGetPID(ctx, d, opts.String("replication_root", ""))
	if err != nil {
		return false, err
	}
	return pid != "", nil
}
