package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/knmi/sdsrules/internal/app"
	"github.com/knmi/sdsrules/internal/config"
	"github.com/knmi/sdsrules/pkg/metrics"
	"github.com/knmi/sdsrules/pkg/rules"
	"github.com/knmi/sdsrules/pkg/sds"
)

var (
	deleteRuleSeq  string
	deleteFromFile string
)

// DeleteCmd is the Deletion CLI: appends --from_file's filenames to the
// durable deletion ledger, then drives every pending entry through the
// deletion rule sequence. The terminal rule of that sequence,
// remove_from_deletion_ledger, clears an entry on success; entries left
// over after a crash are retried on the next invocation.
var DeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "append to the deletion ledger and drive pending entries through the deletion pipeline",
	RunE:  runDelete,
}

func init() {
	DeleteCmd.Flags().StringVar(&deleteRuleSeq, "ruleseq", "", "path to the deletion rule-sequence document")
	DeleteCmd.Flags().StringVar(&deleteFromFile, "from_file", "", "path to a newline-delimited filename list to add to the ledger, or - for stdin")
	DeleteCmd.MarkFlagRequired("ruleseq")
	RootCmd.AddCommand(DeleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.DataDir = dir
	}

	appCtx, err := app.New(ctx, "sdsrules-delete", cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer appCtx.Close(ctx)

	if deleteFromFile != "" {
		names, err := readFilenameList(deleteFromFile)
		if err != nil {
			return err
		}
		if appCtx.Locker != nil {
			ok, err := appCtx.Locker.TryLock(ctx, rules.DeletionLedgerLockKey, 30*time.Second)
			if err != nil {
				return fmt.Errorf("acquire deletion ledger lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("deletion ledger is locked by another worker")
			}
			defer appCtx.Locker.Unlock(ctx, rules.DeletionLedgerLockKey)
		}
		if err := appCtx.Ledger.AddMany(names); err != nil {
			return fmt.Errorf("append to deletion ledger: %w", err)
		}
	}

	pending, err := appCtx.Ledger.List()
	if err != nil {
		return fmt.Errorf("list deletion ledger: %w", err)
	}

	items := make([]sds.Descriptor, 0, len(pending))
	for _, entry := range pending {
		d, err := sds.New(entry.Filename, cfg.DataDir)
		if err != nil {
			appCtx.Log.Error("skipping unparseable deletion ledger entry", "filename", entry.Filename, "err", err)
			continue
		}
		items = append(items, d)
	}

	catalog, err := rules.Load(deleteRuleSeq, appCtx.Conditions, appCtx.Actions, cfg.DefaultRuleTimeout)
	if err != nil {
		return fmt.Errorf("load deletion rule catalog: %w", err)
	}

	executor := rules.New(catalog, appCtx.Log, appCtx.Collaborators.Audit)
	err = executor.Run(ctx, items)

	if n, countErr := appCtx.Ledger.Count(); countErr == nil {
		metrics.DeletionLedgerSize.Set(float64(n))
	}
	return err
}
