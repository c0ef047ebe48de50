package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knmi/sdsrules/pkg/sds"
)

// applyCollectorFlags builds a Collector rooted at --dir and applies the
// --collect_wildcards, --collect_finished, and --sort flags shared by the
// collect and manage subcommands.
func applyCollectorFlags(cmd *cobra.Command) (*sds.Collector, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		return nil, fmt.Errorf("--dir is required")
	}

	collector, err := sds.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("scan archive: %w", err)
	}

	wildcards, _ := cmd.Flags().GetStringSlice("collect_wildcards")
	if len(wildcards) > 0 {
		if err := collector.FilterWildcards(wildcards); err != nil {
			return nil, fmt.Errorf("apply wildcard filter: %w", err)
		}
	}

	finishedMinutes, _ := cmd.Flags().GetInt("collect_finished")
	if finishedMinutes > 0 {
		collector.FilterFinished(finishedMinutes)
	}

	sortOrder, _ := cmd.Flags().GetString("sort")
	switch sortOrder {
	case "asc":
		collector.Sort(sds.SortAsc)
	case "desc":
		collector.Sort(sds.SortDesc)
	case "", "none":
		collector.Sort(sds.SortNone)
	default:
		return nil, fmt.Errorf("unrecognized --sort value %q", sortOrder)
	}

	return collector, nil
}
