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

// Package retrieval implements the retrieval planner (spec §4.5): blocking
// detection via the space model's depth projection, a move-aside/retrieve/
// move-back step sequence for blocked items, and the supplemented
// free-text item search. The blocking rule and temporary-container
// selection follow original_source/services/retrieval.py's
// _calculate_retrieval_complexity and _generate_optimized_retrieval_steps.
package retrieval

import (
	"sort"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/stationcargo/core/pkg/config"
	"github.com/stationcargo/core/pkg/spacemodel"
	"github.com/stationcargo/core/pkg/store"
	"github.com/stationcargo/core/pkg/types"
)

// Planner runs retrieval planning and search over a pair of stores.
type Planner struct {
	Items      *store.ItemStore
	Containers *store.ContainerStore
	Config     config.Config
	Logger     klog.Logger
	Now        func() time.Time
}

func (p *Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// blocker is another item sitting in the same container as the target,
// annotated with its retrieval depth relative to the target.
type blocker struct {
	item  *types.Item
	depth int
}

// blockersOf returns every other item in the target's container whose
// x-z footprint overlaps the target's and which is not entirely behind it
// along the access axis (-y), sorted by ascending depth (spec §4.1).
func (p *Planner) blockersOf(target *types.Item) []blocker {
	loc := target.CurrentLocation
	c := p.Containers.Get(loc.ContainerID)
	if c == nil {
		return nil
	}
	model := spacemodel.New(c.Dims, p.Config.VoxelResolutionCM)
	for id := range c.Items {
		if occ := p.Items.Get(id); occ != nil && occ.CurrentLocation != nil {
			model.Place(occ.CurrentLocation.Position, occ.CurrentLocation.Rotation)
		}
	}

	targetBox := struct {
		x0, x1, y0, z0, z1 float64
	}{
		x0: loc.Position.X, x1: loc.Position.X + loc.Rotation.W,
		y0: loc.Position.Y,
		z0: loc.Position.Z, z1: loc.Position.Z + loc.Rotation.H,
	}

	var blockers []blocker
	for id := range c.Items {
		if id == target.ItemID {
			continue
		}
		other := p.Items.Get(id)
		if other == nil || other.CurrentLocation == nil {
			continue
		}
		ol := other.CurrentLocation
		ox0, ox1 := ol.Position.X, ol.Position.X+ol.Rotation.W
		oz0, oz1 := ol.Position.Z, ol.Position.Z+ol.Rotation.H
		xOverlap := ox0 < targetBox.x1 && targetBox.x0 < ox1
		zOverlap := oz0 < targetBox.z1 && targetBox.z0 < oz1
		if !xOverlap || !zOverlap {
			continue
		}
		// y=0 is the access face; blocks iff not entirely behind the
		// target (starting at or beyond the target's far face counts as
		// behind and out of the way).
		if ol.Position.Y >= targetBox.y0+loc.Rotation.D {
			continue
		}
		depth := model.RetrievalDepth(ol.Position, ol.Rotation)
		blockers = append(blockers, blocker{item: other, depth: depth})
	}
	sort.SliceStable(blockers, func(i, j int) bool { return blockers[i].depth < blockers[j].depth })
	return blockers
}

// availableContainerSpace snapshots free volume for every container other
// than origin, shared across one buildSteps call so that multiple
// blockers choosing a temporary container in the same call see each
// other's reservations (spec §4.5: "decrement the cached available-space
// for chosen containers so subsequent blockers see the update").
func (p *Planner) availableContainerSpace(origin *types.Container) map[string]float64 {
	avail := make(map[string]float64)
	for _, c := range p.Containers.Iter() {
		if c.ContainerID == origin.ContainerID {
			continue
		}
		avail[c.ContainerID] = c.AvailableSpace()
	}
	return avail
}

// bestTemporaryContainer picks a container to move a blocking item aside
// into, consulting the per-call snapshot avail rather than live store
// state: preferring one in the same zone as origin with enough cached
// free space, then any container with enough, excluding the origin
// itself. Decrements avail for the chosen container. Returns nil if none
// qualifies (caller falls back to temporary_storage).
func (p *Planner) bestTemporaryContainer(origin *types.Container, neededVolume float64, avail map[string]float64) *types.Container {
	var sameZoneID, anyZoneID string
	for _, c := range p.Containers.Iter() {
		if c.ContainerID == origin.ContainerID {
			continue
		}
		if avail[c.ContainerID] < neededVolume {
			continue
		}
		if anyZoneID == "" {
			anyZoneID = c.ContainerID
		}
		if c.Zone == origin.Zone && sameZoneID == "" {
			sameZoneID = c.ContainerID
		}
	}
	chosenID := sameZoneID
	if chosenID == "" {
		chosenID = anyZoneID
	}
	if chosenID == "" {
		return nil
	}
	avail[chosenID] -= neededVolume
	return p.Containers.Get(chosenID)
}

// Preview builds the retrieval plan for itemID without mutating any store
// state: the move-aside/retrieve/move-back step sequence a caller would
// see before committing to Retrieve. Returns Found=false if the item is
// absent or already unplaced.
func (p *Planner) Preview(itemID string) types.RetrievalPlan {
	it := p.Items.Get(itemID)
	if it == nil || it.CurrentLocation == nil {
		return types.RetrievalPlan{Found: false}
	}
	return types.RetrievalPlan{Found: true, Steps: p.buildSteps(it, false)}
}

// Retrieve plans and executes the retrieval of itemID: the blocking items
// are moved aside and restored (their store state is mutated through
// store.Attach/Detach), the target's usage count is decremented (or it is
// flipped to waste if usage reaches zero), and the target is finally
// detached from its container.
func (p *Planner) Retrieve(itemID string) (types.RetrievalPlan, error) {
	logger := p.Logger.WithValues("op", "PlanRetrieval", "itemId", itemID)
	it := p.Items.Get(itemID)
	if it == nil {
		return types.RetrievalPlan{}, types.NewError(types.ErrNotFound, "item not found: "+itemID, nil)
	}
	if it.CurrentLocation == nil {
		return types.RetrievalPlan{}, types.NewError(types.ErrNotFound, "item has no current location: "+itemID, nil)
	}

	steps := p.buildSteps(it, true)

	if it.UsageLimit > 0 {
		it.UsageLimit--
		if it.UsageLimit == 0 {
			it.IsWaste = true
		}
	}
	store.Detach(it, p.Containers)

	logger.Info("retrieved item", "steps", len(steps), "remainingUses", it.UsageLimit)
	return types.RetrievalPlan{Found: true, Steps: steps}, nil
}

// buildSteps emits the move-aside, retrieve, and reverse-order move-back
// steps for target. When mutate is true, blocking items' store locations
// are actually updated (move aside then back); Preview passes false so
// the store is left untouched.
func (p *Planner) buildSteps(target *types.Item, mutate bool) []types.Step {
	blockers := p.blockersOf(target)
	origin := p.Containers.Get(target.CurrentLocation.ContainerID)

	var steps []types.Step
	step := 1

	type displaced struct {
		item *types.Item
		dest *types.Container
	}
	var moved []displaced

	avail := p.availableContainerSpace(origin)
	for _, b := range blockers {
		dest := p.bestTemporaryContainer(origin, b.item.Dims.Volume(), avail)
		destID := types.TemporaryStorageID
		if dest != nil {
			destID = dest.ContainerID
		}
		steps = append(steps, types.Step{
			Step: step, Action: types.ActionMove, ItemID: b.item.ItemID,
			FromContainer: origin.ContainerID, ToContainer: destID,
		})
		step++
		moved = append(moved, displaced{item: b.item, dest: dest})

		if mutate {
			store.Detach(b.item, p.Containers)
			if dest != nil {
				model := spacemodel.New(dest.Dims, p.Config.VoxelResolutionCM)
				for _, other := range p.Items.Iter() {
					if other.CurrentLocation != nil && other.CurrentLocation.ContainerID == dest.ContainerID {
						model.Place(other.CurrentLocation.Position, other.CurrentLocation.Rotation)
					}
				}
				if pos, ok := model.FindPosition(b.item.Dims.W, b.item.Dims.D, b.item.Dims.H); ok {
					store.Attach(b.item, dest, pos, b.item.Dims)
				}
			}
		}
	}

	steps = append(steps, types.Step{
		Step: step, Action: types.ActionRetrieve, ItemID: target.ItemID,
		FromContainer: origin.ContainerID,
	})
	step++

	for i := len(moved) - 1; i >= 0; i-- {
		m := moved[i]
		fromID := types.TemporaryStorageID
		if m.dest != nil {
			fromID = m.dest.ContainerID
		}
		steps = append(steps, types.Step{
			Step: step, Action: types.ActionMove, ItemID: m.item.ItemID,
			FromContainer: fromID, ToContainer: origin.ContainerID,
		})
		step++

		if mutate {
			store.Detach(m.item, p.Containers)
			model := spacemodel.New(origin.Dims, p.Config.VoxelResolutionCM)
			for _, other := range p.Items.Iter() {
				if other.CurrentLocation != nil && other.CurrentLocation.ContainerID == origin.ContainerID {
					model.Place(other.CurrentLocation.Position, other.CurrentLocation.Rotation)
				}
			}
			if pos, ok := model.FindPosition(m.item.Dims.W, m.item.Dims.D, m.item.Dims.H); ok {
				store.Attach(m.item, origin, pos, m.item.Dims)
			}
		}
	}

	return steps
}

// searchResult is an internal sort record for Search.
type searchResult struct {
	item  *types.Item
	depth int
}

// Search implements the free-text item lookup supplemented from
// original_source's search_items: items are matched by exact ID, then by
// case-insensitive name substring, and ordered by (retrievalSteps ascending,
// daysUntilExpiry ascending, priority descending).
func (p *Planner) Search(query string) []*types.Item {
	now := p.now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	lowerQuery := strings.ToLower(query)

	var matches []searchResult
	for _, it := range p.Items.Iter() {
		matched := it.ItemID == query || strings.Contains(strings.ToLower(it.Name), lowerQuery)
		if !matched {
			continue
		}
		depth := 0
		if it.CurrentLocation != nil {
			depth = len(p.blockersOf(it))
		}
		matches = append(matches, searchResult{item: it, depth: depth})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		aDays, bDays := expiryRank(a.item, now), expiryRank(b.item, now)
		if aDays != bDays {
			return aDays < bDays
		}
		return a.item.Priority > b.item.Priority
	})

	out := make([]*types.Item, len(matches))
	for i, m := range matches {
		out[i] = m.item
	}
	return out
}

// expiryRank returns days-until-expiry, or a large sentinel for items
// without an expiry so they sort last among otherwise-tied matches.
func expiryRank(it *types.Item, now time.Time) int {
	if !it.HasExpiry() {
		return 1 << 30
	}
	return it.DaysUntilExpiry(now)
}
