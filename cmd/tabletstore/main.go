// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Command tabletstore inspects tablet metadata and dry-runs the compaction
// policy over synthetic catalogs.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tabletstore"
	"github.com/cockroachdb/tabletstore/internal/base"
	"github.com/cockroachdb/tabletstore/internal/manifest"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "tabletstore",
		Short: "tabletstore inspection and simulation tool",
	}
	root.AddCommand(metaCmd(), simulateCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func metaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "tablet meta commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump <tablet-dir>",
		Short: "render a tablet's rowset catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := manifest.LoadTabletMeta(args[0])
			if err != nil {
				return err
			}
			opts := (&tabletstore.Options{}).EnsureDefaults()
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Version", "Rowset", "Rows", "Size", "Segments", "Tier", "Deletes"})
			for _, m := range meta.Rowsets {
				table.Append([]string{
					m.Version.String(),
					m.ID.String(),
					strconv.FormatInt(m.NumRows, 10),
					strconv.FormatInt(m.DataSize, 10),
					strconv.FormatInt(m.NumSegments, 10),
					strconv.Itoa(opts.Tier(m.DataSize)),
					strconv.Itoa(len(m.DeletePredicates)),
				})
			}
			table.Render()
			return nil
		},
	})
	return cmd
}

func simulateCmd() *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "run the compaction policy over a synthetic catalog to a fixed point",
		Long: `Reads one rowset per line: "<start>[-<end>] <size>" for data or
"<start> delete" for a tombstone. Sizes accept K/M/G suffixes. Prints each
compaction the policy picks until it declines.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if inputPath != "" {
				f, err := os.Open(inputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			metas, err := parseCatalog(in)
			if err != nil {
				return err
			}
			opts := (&tabletstore.Options{MinCumulativeDeltas: 2}).EnsureDefaults()
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Step", "Kind", "Inputs", "Output"})
			step := 0
			for {
				plan, ok := tabletstore.PlanCompaction(metas, opts, time.Now())
				if !ok {
					break
				}
				step++
				inputs := make([]string, len(plan.Inputs))
				for i, v := range plan.Inputs {
					inputs[i] = v.String()
				}
				table.Append([]string{
					strconv.Itoa(step), plan.Kind,
					strings.Join(inputs, " "), plan.Output.String(),
				})
				metas = applyPlan(metas, plan)
			}
			table.Render()
			if step == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no compaction needed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&inputPath, "file", "f", "", "catalog description file (default stdin)")
	return cmd
}

func parseCatalog(in io.Reader) ([]*manifest.RowsetMeta, error) {
	var metas []*manifest.RowsetMeta
	id := base.RowsetID(1)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errors.Errorf("malformed line %q", line)
		}
		v, err := base.ParseVersion(fields[0])
		if err != nil {
			return nil, err
		}
		m := &manifest.RowsetMeta{
			ID:           id,
			Version:      v,
			CreationTime: time.Now().Unix(),
		}
		id++
		if fields[1] == "delete" {
			m.DeletePredicates = []base.DeletePredicate{{
				Version: v.End, Column: "k1", Values: []string{"0"},
			}}
		} else {
			size, err := parseSize(fields[1])
			if err != nil {
				return nil, err
			}
			m.DataSize = size
			m.NumRows = size
			m.NumSegments = 1
		}
		metas = append(metas, m)
	}
	return metas, scanner.Err()
}

func parseSize(s string) (int64, error) {
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1<<10, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1<<20, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		mult, s = 1<<30, strings.TrimSuffix(s, "G")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing size %q", s)
	}
	return n * mult, nil
}

func applyPlan(metas []*manifest.RowsetMeta, plan tabletstore.Plan) []*manifest.RowsetMeta {
	var inputs []*manifest.RowsetMeta
	var rest []*manifest.RowsetMeta
	maxID := base.RowsetID(0)
	for _, m := range metas {
		if m.ID > maxID {
			maxID = m.ID
		}
		if m.Version.Start >= plan.Output.Start && m.Version.End <= plan.Output.End {
			inputs = append(inputs, m)
		} else {
			rest = append(rest, m)
		}
	}
	out := manifest.MergedMeta(inputs, maxID+1, time.Now().Unix())
	return append(rest, out)
}
