package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var collectOutput string

// CollectCmd is the Collector CLI: scans an archive root, applies the
// filter chain, and writes the resulting filenames one per line to
// --output (or stdout for "-").
var CollectCmd = &cobra.Command{
	Use:   "collect",
	Short: "enumerate archive files matching a filter chain",
	RunE:  runCollect,
}

func init() {
	CollectCmd.Flags().StringVarP(&collectOutput, "output", "o", "-", "output path, or - for stdout")
	RootCmd.AddCommand(CollectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	collector, err := applyCollectorFlags(cmd)
	if err != nil {
		return err
	}

	out := os.Stdout
	if collectOutput != "-" {
		f, err := os.Create(collectOutput)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	defer w.Flush()
	for _, d := range collector.Files() {
		fmt.Fprintln(w, d.Filename())
	}
	return nil
}
