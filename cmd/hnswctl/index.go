package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/monishSR/hnswlite/internal/kernel"
	"github.com/monishSR/hnswlite/pkg/hnswindex"
)

// configFromFlags builds an hnswindex.Config from the command's
// persistent flags.
func configFromFlags(cmd *cobra.Command) hnswindex.Config {
	cfg := hnswindex.DefaultConfig()
	cfg.Dim, _ = cmd.Flags().GetInt("dim")
	cfg.MaxElements, _ = cmd.Flags().GetInt("max-elements")
	cfg.M, _ = cmd.Flags().GetInt("m")
	cfg.EfConstruction, _ = cmd.Flags().GetInt("ef-construction")
	cfg.EfSearch, _ = cmd.Flags().GetInt("ef-search")

	kernelName, _ := cmd.Flags().GetString("kernel")
	cfg.Kernel = kernel.Name(kernelName)
	return cfg
}

// openOrCreate loads the index at dir if it already exists, or
// initializes a fresh one from the command's flags.
func openOrCreate(cmd *cobra.Command, dir string) (*hnswindex.Index, bool, error) {
	cfg := configFromFlags(cmd)
	if _, err := os.Stat(dir); err == nil {
		idx, err := hnswindex.Load(dir, nil, cfg)
		return idx, false, err
	}
	idx, err := hnswindex.Init(cfg)
	return idx, true, err
}

func printJSONOrLine(cmd *cobra.Command, jsonVal any, line string) {
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		json.NewEncoder(os.Stdout).Encode(jsonVal)
		return
	}
	fmt.Println(line)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new empty index at --dir and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			idx, err := hnswindex.Init(configFromFlags(cmd))
			if err != nil {
				return err
			}
			if err := idx.Save(dir); err != nil {
				return fmt.Errorf("saving new index: %w", err)
			}
			printJSONOrLine(cmd, map[string]string{"id": idx.ID().String(), "dir": dir},
				fmt.Sprintf("created index %s at %s", idx.ID(), dir))
			return nil
		},
	}
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <label> <v1,v2,...,vn>",
		Short: "Insert a labeled vector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			label, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parsing label: %w", err)
			}
			vec, err := parseVector(args[1])
			if err != nil {
				return err
			}

			idx, _, err := openOrCreate(cmd, dir)
			if err != nil {
				return err
			}
			if err := idx.Add(label, vec); err != nil {
				return err
			}
			if err := idx.Save(dir); err != nil {
				return fmt.Errorf("saving index: %w", err)
			}
			printJSONOrLine(cmd, map[string]any{"label": label, "len": idx.Len()},
				fmt.Sprintf("added label %d (%d vectors total)", label, idx.Len()))
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <label>",
		Short: "Print a stored vector by label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			label, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parsing label: %w", err)
			}
			idx, _, err := openOrCreate(cmd, dir)
			if err != nil {
				return err
			}
			v, ok, err := idx.Get(label)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("label %d not found", label)
			}
			printJSONOrLine(cmd, map[string]any{"label": label, "vector": v}, formatVector(v))
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <label>",
		Short: "Soft-delete a stored vector by label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			label, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parsing label: %w", err)
			}
			idx, _, err := openOrCreate(cmd, dir)
			if err != nil {
				return err
			}
			if err := idx.Delete(label); err != nil {
				return err
			}
			if err := idx.Save(dir); err != nil {
				return fmt.Errorf("saving index: %w", err)
			}
			printJSONOrLine(cmd, map[string]any{"deleted": label}, fmt.Sprintf("deleted label %d", label))
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	var k int
	var allowed, disallowed string

	cmd := &cobra.Command{
		Use:   "query <v1,v2,...,vn>",
		Short: "Find the k nearest labeled vectors to a query vector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			vec, err := parseVector(args[0])
			if err != nil {
				return err
			}
			idx, _, err := openOrCreate(cmd, dir)
			if err != nil {
				return err
			}
			results, err := idx.Query(vec, k, parseLabelList(allowed), parseLabelList(disallowed))
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(os.Stdout).Encode(results)
				return nil
			}
			for _, r := range results {
				fmt.Printf("%d\t%f\n", r.Label, r.Distance)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 10, "number of neighbors to return")
	cmd.Flags().StringVar(&allowed, "allow", "", "comma-separated labels to restrict results to")
	cmd.Flags().StringVar(&disallowed, "disallow", "", "comma-separated labels to exclude from results")
	return cmd
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Load the index at --dir and write it back unchanged",
		Long: `save is a no-op mutation: it loads the index at --dir and
immediately saves it back, useful for forcing a re-persist (e.g. after
changing the on-disk format) without adding or deleting any vector.
If --dir does not exist, a new empty index is created from the flags
and saved there.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			idx, created, err := openOrCreate(cmd, dir)
			if err != nil {
				return err
			}
			if err := idx.Save(dir); err != nil {
				return fmt.Errorf("saving index: %w", err)
			}
			verb := "saved"
			if created {
				verb = "created and saved"
			}
			printJSONOrLine(cmd, map[string]any{"id": idx.ID().String(), "len": idx.Len()},
				fmt.Sprintf("%s index %s (%d vectors) at %s", verb, idx.ID(), idx.Len(), dir))
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print index size and capacity statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			idx, _, err := openOrCreate(cmd, dir)
			if err != nil {
				return err
			}
			stats := map[string]any{
				"id":               idx.ID().String(),
				"len":              idx.Len(),
				"len_with_deleted": idx.LenWithDeleted(),
				"capacity":         idx.Capacity(),
				"dimensionality":   idx.Dimensionality(),
				"ef_search":        idx.GetEf(),
			}
			printJSONOrLine(cmd, stats, fmt.Sprintf(
				"id=%s len=%d (%d incl. deleted) capacity=%d dim=%d ef=%d",
				stats["id"], stats["len"], stats["len_with_deleted"], stats["capacity"], stats["dimensionality"], stats["ef_search"]))
			return nil
		},
	}
}

func newResizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resize <new-capacity>",
		Short: "Grow the index's slot capacity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			newCap, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("parsing new capacity: %w", err)
			}
			idx, _, err := openOrCreate(cmd, dir)
			if err != nil {
				return err
			}
			if err := idx.Resize(newCap); err != nil {
				return err
			}
			if err := idx.Save(dir); err != nil {
				return fmt.Errorf("saving index: %w", err)
			}
			printJSONOrLine(cmd, map[string]any{"capacity": idx.Capacity()}, fmt.Sprintf("resized to capacity %d", idx.Capacity()))
			return nil
		},
	}
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parsing vector component %q: %w", p, err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

func parseLabelList(s string) []uint64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		label, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, label)
	}
	return out
}

func formatVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return strings.Join(parts, ",")
}
