// Package app assembles one process-wide Context from configuration: the
// collaborator clients, the observability stack, and the rule registries.
// This replaces the teacher's pattern of package-level singletons
// (grid-archive and catalog sessions created at import time) with an
// explicit struct built once by the CLI and threaded into the collector and
// executor, per the archive specification's dependency-injection design
// note.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/knmi/sdsrules/internal/collab"
	"github.com/knmi/sdsrules/internal/config"
	"github.com/knmi/sdsrules/internal/obslog"
	"github.com/knmi/sdsrules/internal/telemetry"
	"github.com/knmi/sdsrules/pkg/metrics"
	"github.com/knmi/sdsrules/pkg/rules"
)

// Context bundles everything a CLI command needs to build a Collector and
// an Executor.
type Context struct {
	Config        *config.Config
	Log           *obslog.Logger
	Conditions    *rules.ConditionRegistry
	Actions       *rules.ActionRegistry
	Collaborators rules.Collaborators
	Telemetry     *telemetry.Provider
	Ledger        collab.DeletionLedger
	Locker        collab.Locker
}

// New wires every collaborator named in the configuration document and
// registers the built-in condition and action handlers against them. A
// zero-value sub-config (e.g. no audit DSN configured) leaves that
// collaborator nil; handlers that need it will fail loudly rather than
// silently no-op, since a misconfigured rule referencing it is a
// configuration error, not a runtime possibility to mask.
func New(ctx context.Context, serviceName string, cfg *config.Config) (*Context, error) {
	log := obslog.New(cfg.Logging.Level, cfg.Logging.JSON)
	provider := telemetry.Init(serviceName)

	ledger, err := collab.OpenBoltLedger(cfg.DeletionDBPath)
	if err != nil {
		return nil, fmt.Errorf("open deletion ledger: %w", err)
	}

	co := rules.Collaborators{Ledger: ledger}

	if cfg.ObjectStore.Bucket != "" {
		store, err := collab.NewS3ObjectStore(ctx, collab.S3Options{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			KeyPrefix:       cfg.ObjectStore.KeyPrefix,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UsePathStyle:    cfg.ObjectStore.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("configure object store: %w", err)
		}
		co.ObjectStore = store
	}

	if cfg.GridArchive.BaseURL != "" {
		co.GridArchive = collab.NewRestGridArchive(collab.RestGridOptions{
			BaseURL:   cfg.GridArchive.BaseURL,
			Zone:      cfg.GridArchive.Zone,
			KeyPrefix: cfg.GridArchive.KeyPrefix,
			AuthToken: cfg.GridArchive.AuthToken,
		})
	}

	if len(cfg.Catalogs) > 0 {
		co.Catalogs = make(map[string]collab.CatalogStore, len(cfg.Catalogs))
		for _, c := range cfg.Catalogs {
			store, err := collab.NewCouchCatalog(ctx, collab.CouchOptions{
				URL:      c.URL,
				Database: c.Database,
				Username: c.Username,
				Password: c.Password,
			})
			if err != nil {
				return nil, fmt.Errorf("configure catalog %q: %w", c.Name, err)
			}
			co.Catalogs[c.Name] = store
		}
	}

	if cfg.WaveformTools.QualityImage != "" || cfg.WaveformTools.PPSDImage != "" || cfg.WaveformTools.PruneImage != "" {
		analyzer, err := collab.NewDockerWaveformAnalyzer(collab.DockerWaveformOptions{
			QualityImage: cfg.WaveformTools.QualityImage,
			PPSDImage:    cfg.WaveformTools.PPSDImage,
			PruneImage:   cfg.WaveformTools.PruneImage,
			ArchiveMount: cfg.WaveformTools.ArchiveMount,
		})
		if err != nil {
			return nil, fmt.Errorf("configure waveform analyzer: %w", err)
		}
		co.Waveform = analyzer
	}

	if cfg.PostgresDSN != "" {
		audit, err := collab.NewPostgresAudit(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("configure run audit: %w", err)
		}
		co.Audit = audit
	}

	if cfg.InventoryServiceURL != "" {
		co.Inventory = collab.NewHTTPInventoryClient(cfg.InventoryServiceURL)
	}

	var locker collab.Locker
	if cfg.RedisURL != "" {
		l, err := collab.NewRedisLocker(ctx, cfg.RedisURL, "sdsrules:")
		if err != nil {
			return nil, fmt.Errorf("configure distributed lock: %w", err)
		}
		locker = l
		co.Locker = l
	}

	conditions := rules.NewConditionRegistry()
	actions := rules.NewActionRegistry()
	rules.RegisterConditions(conditions, co)
	rules.RegisterActions(actions, co)

	if n, err := ledger.Count(); err == nil {
		metrics.DeletionLedgerSize.Set(float64(n))
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", "err", err)
			}
		}()
	}

	return &Context{
		Config:        cfg,
		Log:           log,
		Conditions:    conditions,
		Actions:       actions,
		Collaborators: co,
		Telemetry:     provider,
		Ledger:        ledger,
		Locker:        locker,
	}, nil
}

// Close releases process-wide resources (the deletion ledger's file handle,
// the tracer provider's batching goroutine).
func (c *Context) Close(ctx context.Context) error {
	if c.Telemetry != nil {
		_ = c.Telemetry.Shutdown(ctx)
	}
	if c.Ledger != nil {
		return c.Ledger.Close()
	}
	return nil
}
