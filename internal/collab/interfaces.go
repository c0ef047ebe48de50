// Package collab implements the concrete external collaborators the rule
// engine consumes only through narrow interfaces: the long-term object
// store, the federated grid archive, the per-collection metadata catalogs,
// the deletion ledger, a distributed lock for serializing ledger writes
// across parallel workers, a containerized waveform-analysis runner, the
// run-audit trail, and the station-inventory client. Conditions and rule
// actions in pkg/rules depend only on these interfaces (never on a concrete
// backend), following the dependency-injection note in the archive spec:
// "the executor receives a bundle of collaborator handles."
package collab

import (
	"context"
	"time"

	"github.com/knmi/sdsrules/pkg/sds"
)

// ObjectStore is the long-term blob store backend (archive spec §6).
type ObjectStore interface {
	Exists(ctx context.Context, d sds.Descriptor) (bool, error)
	Checksum(ctx context.Context, d sds.Descriptor) (string, error)
	Put(ctx context.Context, d sds.Descriptor, checksum string) error
	Delete(ctx context.Context, d sds.Descriptor) error
	Get(ctx context.Context, d sds.Descriptor, localPath string) error
}

// CatalogDocument is one metadata document keyed by fileId, as stored by any
// of the catalog collections (WFCatalog-daily, WFCatalog-segments, Dublin
// Core, PPSD).
type CatalogDocument struct {
	FileID       string
	Checksum     string
	ChecksumPrev string
	ChecksumNext string
	Fields       map[string]any
}

// CatalogStore is one named metadata collection (archive spec §6).
type CatalogStore interface {
	FindOne(ctx context.Context, fileID string) (*CatalogDocument, error)
	FindMany(ctx context.Context, fileID string) ([]*CatalogDocument, error)
	Save(ctx context.Context, doc CatalogDocument, overwrite bool) error
	DeleteMany(ctx context.Context, fileID string) error
}

// GridArchive is the federated, PID-assigning remote archive (archive spec
// §6). Zone-aware operations take the zone implicitly via the client's
// configuration; Replicate/FederatedExists/FederatedGetPID take an explicit
// remote root because replication targets vary per rule invocation.
type GridArchive interface {
	Exists(ctx context.Context, d sds.Descriptor) (bool, error)
	Get(ctx context.Context, d sds.Descriptor, localPath string) error
	Put(ctx context.Context, d sds.Descriptor, checksum string) error
	Delete(ctx context.Context, d sds.Descriptor) error
	AssignPID(ctx context.Context, d sds.Descriptor) (string, error)
	GetPID(ctx context.Context, d sds.Descriptor) (string, error)
	Replicate(ctx context.Context, d sds.Descriptor, remoteRoot string) error
	FederatedExists(ctx context.Context, d sds.Descriptor, remoteRoot string) (bool, error)
	FederatedGetPID(ctx context.Context, d sds.Descriptor, remoteRoot string) (string, error)
}

// PendingDeletion is one row of the deletion ledger.
type PendingDeletion struct {
	ID        string
	Filename  string
	CreatedAt time.Time
}

// DeletionLedger is the durable pending-deletion set (archive spec §4.6).
type DeletionLedger interface {
	Add(filename string) error
	AddMany(filenames []string) error
	Remove(filename string) error
	List() ([]PendingDeletion, error)
	Count() (int, error)
	Close() error
}

// Locker serializes deletion-ledger writes (and any other single-writer
// operation) across parallel pipeline workers (archive spec §5).
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// WaveformAnalyzer runs the out-of-process waveform tools (quality metadata,
// PPSD computation, prune/repack) the core treats as pure functions of a
// descriptor (archive spec §1, "consumed as pure functions").
type WaveformAnalyzer interface {
	QualityMetadata(ctx context.Context, d sds.Descriptor) (map[string]any, error)
	PPSDSegments(ctx context.Context, d sds.Descriptor) ([]map[string]any, error)
	Prune(ctx context.Context, d sds.Descriptor, outputPath string) error
}

// RunAudit persists a trail of rule executions for operational reporting
// (SPEC_FULL §7 — a supplemented feature beyond the distilled spec).
type RunAudit interface {
	SaveRun(ctx context.Context, run RuleRun) error
	RunHistory(ctx context.Context, ruleName string, limit int) ([]RuleRun, error)
}

// RuleRun is one (item, rule) execution record.
type RuleRun struct {
	RuleName string
	Filename string
	Outcome  string
	Detail   string
	Duration time.Duration
	Occurred time.Time
}

// InventoryClient looks up station metadata from the out-of-scope
// station-inventory web service (archive spec §6).
type InventoryClient interface {
	StationInfo(ctx context.Context, network, station string) (map[string]any, error)
}
