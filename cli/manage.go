package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knmi/sdsrules/internal/app"
	"github.com/knmi/sdsrules/internal/config"
	"github.com/knmi/sdsrules/pkg/rules"
	"github.com/knmi/sdsrules/pkg/sds"
)

var (
	manageRuleSeq  string
	manageFromFile string
)

// ManageCmd is the Manager CLI: loads a rule sequence and drives the
// collected (or explicitly listed) archive files through the pipeline
// executor.
var ManageCmd = &cobra.Command{
	Use:   "manage",
	Short: "run the rule pipeline over collected archive files",
	RunE:  runManage,
}

func init() {
	ManageCmd.Flags().StringVar(&manageRuleSeq, "ruleseq", "", "path to the rule-sequence document")
	ManageCmd.Flags().StringVar(&manageFromFile, "from_file", "", "path to a newline-delimited filename list, or - for stdin, instead of scanning --dir")
	ManageCmd.MarkFlagRequired("ruleseq")
	RootCmd.AddCommand(ManageCmd)
}

func runManage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.DataDir = dir
	}

	appCtx, err := app.New(ctx, "sdsrules-manage", cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer appCtx.Close(ctx)

	catalog, err := rules.Load(manageRuleSeq, appCtx.Conditions, appCtx.Actions, cfg.DefaultRuleTimeout)
	if err != nil {
		return fmt.Errorf("load rule catalog: %w", err)
	}

	items, err := collectManageItems(cmd, cfg.DataDir)
	if err != nil {
		return err
	}

	executor := rules.New(catalog, appCtx.Log, appCtx.Collaborators.Audit)
	return executor.Run(ctx, items)
}

// collectManageItems resolves the items to drive through the pipeline:
// either an explicit filename list from --from_file, or a directory scan
// with the shared collector filter flags applied.
func collectManageItems(cmd *cobra.Command, archiveRoot string) ([]sds.Descriptor, error) {
	if manageFromFile == "" {
		collector, err := applyCollectorFlags(cmd)
		if err != nil {
			return nil, err
		}
		return collector.Files(), nil
	}

	filenames, err := readFilenameList(manageFromFile)
	if err != nil {
		return nil, err
	}

	items := make([]sds.Descriptor, 0, len(filenames))
	for _, name := range filenames {
		d, err := sds.New(name, archiveRoot)
		if err != nil {
			return nil, fmt.Errorf("parse %q from %s: %w", name, manageFromFile, err)
		}
		items = append(items, d)
	}
	return items, nil
}

// readFilenameList reads one filename per line from path, or from stdin
// when path is "-", skipping blank lines.
func readFilenameList(path string) ([]string, error) {
	in := os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		in = f
	}

	var names []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return names, nil
}
