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

// Package waste implements waste identification and the return-plan
// knapsack (spec §4.6): classification by expiry/usage exhaustion,
// urgency-ordered disposal, and a 0/1 knapsack over mass budget for
// selecting which waste items a limited-capacity return vessel takes.
// Grounded on original_source/services/waste.py's identify_waste_items,
// _sort_waste_by_urgency, and generate_waste_return_plan.
package waste

import (
	"fmt"
	"sort"
	"time"

	"k8s.io/klog/v2"

	"github.com/stationcargo/core/pkg/config"
	"github.com/stationcargo/core/pkg/scoring"
	"github.com/stationcargo/core/pkg/store"
	"github.com/stationcargo/core/pkg/types"
)

// Collector identifies waste items and plans their return.
type Collector struct {
	Items      *store.ItemStore
	Containers *store.ContainerStore
	Config     config.Config
	Logger     klog.Logger
	Now        func() time.Time
}

func (c *Collector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// classified pairs an item with its waste category and urgency score.
type classified struct {
	item    *types.Item
	cat     scoring.WasteReasonCategory
	k       int
	reason  string
	urgency float64
}

// classify applies the classification table of spec §4.6, in the order
// given: items already flagged as waste are reasoned first by how they
// became waste, then unflagged items are checked for expiry and usage
// exhaustion.
func classify(it *types.Item, now time.Time) (cat scoring.WasteReasonCategory, k int, reason string, isWaste bool) {
	expired := it.HasExpiry() && it.DaysUntilExpiry(now) <= 0
	usedUp := it.UsageLimit <= 0

	if it.IsWaste {
		switch {
		case usedUp:
			return scoring.ReasonTerminal, 0, "Out of Uses", true
		case expired:
			return scoring.ReasonTerminal, 0, "Expired", true
		default:
			return scoring.ReasonManual, 0, "Manually Marked", true
		}
	}

	if expired {
		return scoring.ReasonTerminal, 0, "Expired", true
	}
	if it.HasExpiry() {
		days := it.DaysUntilExpiry(now)
		if days > 0 && days <= 5 {
			return scoring.ReasonExpiresSoon, days, fmt.Sprintf("Expires in %d days", days), true
		}
	}
	if usedUp {
		return scoring.ReasonTerminal, 0, "Out of Uses", true
	}
	if it.UsageLimit > 0 && it.UsageLimit <= 3 {
		return scoring.ReasonUsesRemaining, it.UsageLimit, fmt.Sprintf("%d uses remaining", it.UsageLimit), true
	}
	return scoring.ReasonManual, 0, "", false
}

// Identify scans every item in the store and returns those that qualify
// as waste under the classification table, sorted by descending urgency.
// Every item it classifies as waste has IsWaste set to true.
func (c *Collector) Identify() []types.WasteItem {
	now := c.now()

	var items []classified
	for _, it := range c.Items.Iter() {
		cat, k, reason, isWaste := classify(it, now)
		if !isWaste {
			continue
		}
		it.IsWaste = true
		items = append(items, classified{item: it, cat: cat, k: k, reason: reason})
	}

	for i := range items {
		items[i].urgency = scoring.WasteUrgency(items[i].cat, items[i].k, items[i].item.Priority, items[i].item.Mass)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].urgency != items[j].urgency {
			return items[i].urgency > items[j].urgency
		}
		return items[i].item.ItemID < items[j].item.ItemID
	})

	out := make([]types.WasteItem, 0, len(items))
	for _, ci := range items {
		var pos *types.Position
		var containerID string
		if ci.item.CurrentLocation != nil {
			containerID = ci.item.CurrentLocation.ContainerID
			p := ci.item.CurrentLocation.Position
			pos = &p
		}
		out = append(out, types.WasteItem{
			ItemID:      ci.item.ItemID,
			Name:        ci.item.Name,
			Reason:      ci.reason,
			ContainerID: containerID,
			Position:    pos,
			Mass:        ci.item.Mass,
		})
	}
	return out
}

const knapsackScale = 100 // DP weight units per kg (one unit is 0.01 kg)

// PlanReturn selects which waste items to load onto a return vessel with
// the given mass budget via 0/1 knapsack maximizing scoring.KnapsackValue,
// then emits steps grouped by source container for efficient collection
// (spec §4.6): within each container, items are ordered by (y ascending,
// z descending, x ascending) — outermost items first — and each emits a
// remove step immediately followed by its place step onto the vessel.
// Selected items with no known source container (ContainerID == "")
// emit only the place step, in urgency order.
func (c *Collector) PlanReturn(massBudgetKG float64) types.WastePlan {
	waste := c.Identify()
	if limit := c.Config.MaxWasteReturnItems; limit > 0 && len(waste) > limit {
		waste = waste[:limit]
	}
	n := len(waste)
	if n == 0 {
		return types.WastePlan{}
	}

	weights := make([]int, n)
	values := make([]float64, n)
	for i, w := range waste {
		weights[i] = int(w.Mass * knapsackScale)
		values[i] = scoring.KnapsackValue(i, n, w.Mass)
	}
	budget := int(massBudgetKG * knapsackScale)
	if budget < 0 {
		budget = 0
	}

	selected := knapsack01(weights, values, budget)
	selectedSet := make(map[int]bool, len(selected))
	for _, idx := range selected {
		selectedSet[idx] = true
	}

	// Group selected items by source container, preserving the
	// container's first-appearance order in the urgency-sorted waste
	// list, then emit remove+place pairs per container group.
	var containerOrder []string
	byContainer := make(map[string][]types.WasteItem)
	var containerless []types.WasteItem
	for i, w := range waste {
		if !selectedSet[i] {
			continue
		}
		if w.ContainerID == "" {
			containerless = append(containerless, w)
			continue
		}
		if _, seen := byContainer[w.ContainerID]; !seen {
			containerOrder = append(containerOrder, w.ContainerID)
		}
		byContainer[w.ContainerID] = append(byContainer[w.ContainerID], w)
	}

	var plan types.WastePlan
	step := 1
	for _, containerID := range containerOrder {
		items := byContainer[containerID]
		sort.SliceStable(items, func(i, j int) bool {
			ay, az, ax := sortKey(items[i])
			by, bz, bx := sortKey(items[j])
			if ay != by {
				return ay < by
			}
			if az != bz {
				return az > bz
			}
			return ax < bx
		})
		for _, w := range items {
			plan.Steps = append(plan.Steps, types.Step{
				Step: step, Action: types.ActionRemove, ItemID: w.ItemID,
				FromContainer: containerID,
			})
			step++
			plan.Steps = append(plan.Steps, types.Step{
				Step: step, Action: types.ActionPlace, ItemID: w.ItemID,
				ToContainer: "return_vessel",
			})
			step++
		}
	}
	for _, w := range containerless {
		plan.Steps = append(plan.Steps, types.Step{
			Step: step, Action: types.ActionPlace, ItemID: w.ItemID,
			ToContainer: "return_vessel",
		})
		step++
	}
	return plan
}

func sortKey(w types.WasteItem) (y, z, x float64) {
	if w.Position == nil {
		return 0, 0, 0
	}
	return w.Position.Y, w.Position.Z, w.Position.X
}

// knapsack01 runs the classic integer-weight 0/1 knapsack DP and
// reconstructs the selected index set at the maximizing weight.
func knapsack01(weights []int, values []float64, budget int) []int {
	n := len(weights)
	if budget <= 0 || n == 0 {
		return nil
	}
	dp := make([][]float64, n+1)
	for i := range dp {
		dp[i] = make([]float64, budget+1)
	}
	for i := 1; i <= n; i++ {
		w, v := weights[i-1], values[i-1]
		for cap := 0; cap <= budget; cap++ {
			dp[i][cap] = dp[i-1][cap]
			if w <= cap {
				if alt := dp[i-1][cap-w] + v; alt > dp[i][cap] {
					dp[i][cap] = alt
				}
			}
		}
	}

	best := 0
	for cap := 1; cap <= budget; cap++ {
		if dp[n][cap] > dp[n][best] {
			best = cap
		}
	}

	var selected []int
	cap := best
	for i := n; i >= 1; i-- {
		if dp[i][cap] != dp[i-1][cap] {
			selected = append(selected, i-1)
			cap -= weights[i-1]
		}
	}
	return selected
}

// CompleteUndocking finalizes a committed return plan: detaches every
// item named in steps from whatever container it occupies and clears its
// location, as if the return vessel has undocked with them aboard.
// Returns the count of items removed.
func (c *Collector) CompleteUndocking(plan types.WastePlan) int {
	count := 0
	seen := make(map[string]bool)
	for _, s := range plan.Steps {
		if s.Action != types.ActionRemove || seen[s.ItemID] {
			continue
		}
		seen[s.ItemID] = true
		if it := c.Items.Get(s.ItemID); it != nil {
			store.Detach(it, c.Containers)
			count++
		}
	}
	return count
}
