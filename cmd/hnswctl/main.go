// Command hnswctl drives a hnswlite index from the shell: build it up
// with add, inspect it with get/stats, search it with query, and
// persist it to disk with save.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hnswctl",
		Short: "Drive a hnswlite approximate nearest-neighbor index from the shell",
		Long: `hnswctl builds, queries, and persists a hnswlite HNSW index.

Each invocation loads the index from --dir if present, applies one
operation, and (for mutating commands) saves the result back.`,
	}

	rootCmd.PersistentFlags().String("dir", "./hnsw-data", "index persistence directory")
	rootCmd.PersistentFlags().Int("dim", 128, "vector dimensionality (only used when creating a new index)")
	rootCmd.PersistentFlags().String("kernel", "euclidean", "distance kernel: euclidean, inner_product, or cosine")
	rootCmd.PersistentFlags().Int("max-elements", 10000, "initial capacity (only used when creating a new index)")
	rootCmd.PersistentFlags().Int("m", 16, "graph fan-out parameter M")
	rootCmd.PersistentFlags().Int("ef-construction", 200, "construction-time beam width")
	rootCmd.PersistentFlags().Int("ef-search", 50, "default query-time beam width")
	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newAddCmd(),
		newGetCmd(),
		newQueryCmd(),
		newDeleteCmd(),
		newStatsCmd(),
		newResizeCmd(),
		newSaveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hnswctl version %s\n", version)
		},
	}
}
