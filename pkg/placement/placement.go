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

// Package placement implements the bin-packing loop and rearrangement
// planner (spec §4.4): Best-Fit Decreasing with rotations and
// priority-aware ordering. The packing loop's remaining-capacity
// bookkeeping and best-fit comparison follow the teacher's
// objectives/cost/bestfit.go BestFitDecreasing, generalized from two
// resource dimensions to 3D bins with rotation search.
package placement

import (
	"sort"
	"time"

	"k8s.io/klog/v2"

	"github.com/stationcargo/core/pkg/config"
	"github.com/stationcargo/core/pkg/scoring"
	"github.com/stationcargo/core/pkg/spacemodel"
	"github.com/stationcargo/core/pkg/store"
	"github.com/stationcargo/core/pkg/types"
)

// Engine runs the placement and rearrangement algorithms over a pair of
// stores.
type Engine struct {
	Items      *store.ItemStore
	Containers *store.ContainerStore
	Config     config.Config
	Logger     klog.Logger
	Now        func() time.Time
}

// spaceModels builds one SpaceModel per container from current store
// state, including items already placed there, so the packing loop sees
// existing occupancy.
func (e *Engine) spaceModels() map[string]*spacemodel.SpaceModel {
	models := make(map[string]*spacemodel.SpaceModel)
	for _, c := range e.Containers.Iter() {
		models[c.ContainerID] = spacemodel.New(c.Dims, e.Config.VoxelResolutionCM)
	}
	for _, it := range e.Items.Iter() {
		if it.CurrentLocation == nil {
			continue
		}
		m, ok := models[it.CurrentLocation.ContainerID]
		if !ok {
			continue
		}
		m.Place(it.CurrentLocation.Position, it.CurrentLocation.Rotation)
	}
	return models
}

// Plan runs the full placement algorithm over every item currently
// unplaced (CurrentLocation == nil), attaching each placed item to its
// container via the store primitives, and returns the resulting plan.
func (e *Engine) Plan() types.PlacementPlan {
	logger := e.Logger.WithValues("op", "PlanPlacement")
	now := e.now()

	var toPlace []*types.Item
	for _, it := range e.Items.Iter() {
		if it.CurrentLocation == nil {
			toPlace = append(toPlace, it)
		}
	}
	sort.SliceStable(toPlace, func(i, j int) bool {
		si := scoring.WeightedPlacementOrder(toPlace[i], now)
		sj := scoring.WeightedPlacementOrder(toPlace[j], now)
		if si != sj {
			return si > sj
		}
		return toPlace[i].Dims.Volume() > toPlace[j].Dims.Volume()
	})

	models := e.spaceModels()
	containers := e.Containers.Iter()

	var plan types.PlacementPlan
	for _, it := range toPlace {
		bestContainer, bestPos, bestRot, bestScore, found := e.bestFit(it, containers, models)
		if !found {
			plan.Unplaced = append(plan.Unplaced, it.ItemID)
			continue
		}
		models[bestContainer.ContainerID].Place(bestPos, bestRot)
		store.Attach(it, bestContainer, bestPos, bestRot)
		plan.Placements = append(plan.Placements, types.Placement{
			ItemID:      it.ItemID,
			ContainerID: bestContainer.ContainerID,
			Position:    bestPos,
			Rotation:    bestRot,
		})
		logger.V(4).Info("placed item", "itemId", it.ItemID, "container", bestContainer.ContainerID, "score", bestScore)
	}

	if len(plan.Unplaced) > 0 {
		plan.Rearrangements = e.planRearrangements(plan.Unplaced, models)
	}

	logger.Info("placement complete", "placed", len(plan.Placements), "unplaced", len(plan.Unplaced))
	return plan
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// bestFit searches every container, in ID-sorted order, and every
// rotation of it, for the highest-scoring valid position (spec §4.4
// step 2).
func (e *Engine) bestFit(it *types.Item, containers []*types.Container, models map[string]*spacemodel.SpaceModel) (*types.Container, types.Position, types.Dims, float64, bool) {
	var (
		bestContainer *types.Container
		bestPos       types.Position
		bestRot       types.Dims
		bestScore     float64 = negInf
		found         bool
	)

	threshold := e.Config.CapacityFillThreshold
	if threshold <= 0 {
		threshold = 0.95
	}

	for _, c := range containers {
		if c.OccupiedSpace >= threshold*c.Capacity() {
			continue
		}
		model := models[c.ContainerID]

		for _, rot := range it.Dims.Rotations() {
			if rot.W > c.Dims.W || rot.D > c.Dims.D || rot.H > c.Dims.H {
				continue
			}
			pos, ok := model.FindPosition(rot.W, rot.D, rot.H)
			if !ok {
				continue
			}
			depth := model.RetrievalDepth(pos, rot)
			s := scoring.PlacementScore(it, c.Zone, depth)
			if s > bestScore {
				bestScore = s
				bestContainer = c
				bestPos = pos
				bestRot = rot
				found = true
			}
		}
	}
	return bestContainer, bestPos, bestRot, bestScore, found
}

const negInf = -1 << 62

// planRearrangements implements spec §4.4's rearrangement planning for the
// top MaxRearrangementCandidates unplaced items by priority: for each,
// find lower-priority items in the preferred zone, move the
// cheapest-to-move ones aside until enough volume is freed, then place
// the target.
func (e *Engine) planRearrangements(unplacedIDs []string, models map[string]*spacemodel.SpaceModel) []types.Step {
	var unplaced []*types.Item
	for _, id := range unplacedIDs {
		if it := e.Items.Get(id); it != nil {
			unplaced = append(unplaced, it)
		}
	}
	sort.SliceStable(unplaced, func(i, j int) bool { return unplaced[i].Priority > unplaced[j].Priority })

	limit := e.Config.MaxRearrangementCandidates
	if limit <= 0 {
		limit = 5
	}
	if len(unplaced) > limit {
		unplaced = unplaced[:limit]
	}

	var steps []types.Step
	step := 1

	for _, target := range unplaced {
		candidates := e.candidatesInZone(target)
		sort.SliceStable(candidates, func(i, j int) bool {
			return valueDensity(candidates[i]) < valueDensity(candidates[j])
		})

		targetVolume := target.Dims.Volume()
		movedVolume := 0.0

		for _, cand := range candidates {
			if movedVolume >= targetVolume {
				break
			}
			origin := e.Containers.Get(cand.CurrentLocation.ContainerID)
			dest := e.alternativeContainer(origin, target.PreferredZone, cand.Dims.Volume())
			destID := types.TemporaryStorageID
			if dest != nil {
				destID = dest.ContainerID
			}

			steps = append(steps, types.Step{
				Step:          step,
				Action:        types.ActionMove,
				ItemID:        cand.ItemID,
				FromContainer: origin.ContainerID,
				ToContainer:   destID,
			})
			step++

			if model, ok := models[origin.ContainerID]; ok && cand.CurrentLocation != nil {
				model.Remove(cand.CurrentLocation.Position, cand.CurrentLocation.Rotation)
			}
			store.Detach(cand, e.Containers)
			if dest != nil {
				if m, ok := models[dest.ContainerID]; ok {
					if pos, ok2 := m.FindPosition(cand.Dims.W, cand.Dims.D, cand.Dims.H); ok2 {
						m.Place(pos, cand.Dims)
						store.Attach(cand, dest, pos, cand.Dims)
					}
				}
			}

			movedVolume += cand.Dims.Volume()
		}

		if movedVolume < targetVolume {
			continue // could not free enough space; target remains unplaced
		}

		var zoneContainer *types.Container
		for _, c := range e.Containers.Iter() {
			if c.Zone == target.PreferredZone {
				zoneContainer = c
				break
			}
		}
		if zoneContainer == nil {
			continue
		}
		model := models[zoneContainer.ContainerID]
		for _, rot := range target.Dims.Rotations() {
			if rot.W > zoneContainer.Dims.W || rot.D > zoneContainer.Dims.D || rot.H > zoneContainer.Dims.H {
				continue
			}
			pos, ok := model.FindPosition(rot.W, rot.D, rot.H)
			if !ok {
				continue
			}
			model.Place(pos, rot)
			store.Attach(target, zoneContainer, pos, rot)
			steps = append(steps, types.Step{
				Step:        step,
				Action:      types.ActionPlace,
				ItemID:      target.ItemID,
				ToContainer: zoneContainer.ContainerID,
				Position:    &pos,
			})
			step++
			break
		}
	}

	return steps
}

// candidatesInZone returns items currently residing in a container whose
// zone matches target's preferred zone and whose priority is strictly
// lower than target's.
func (e *Engine) candidatesInZone(target *types.Item) []*types.Item {
	var out []*types.Item
	for _, c := range e.Containers.Iter() {
		if c.Zone != target.PreferredZone {
			continue
		}
		for id := range c.Items {
			it := e.Items.Get(id)
			if it == nil || it.CurrentLocation == nil {
				continue
			}
			if it.Priority < target.Priority {
				out = append(out, it)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// valueDensity is priority / max(0.1, volume); lower moves first.
func valueDensity(it *types.Item) float64 {
	vol := it.Dims.Volume()
	if vol < 0.1 {
		vol = 0.1
	}
	return float64(it.Priority) / vol
}

// alternativeContainer finds another container with enough free space
// that is not in the avoided zone, preferring none in particular beyond
// ID order. Returns nil if none qualifies (caller falls back to
// temporary_storage).
func (e *Engine) alternativeContainer(origin *types.Container, avoidZone string, neededVolume float64) *types.Container {
	for _, c := range e.Containers.Iter() {
		if c.ContainerID == origin.ContainerID {
			continue
		}
		if c.Zone == avoidZone {
			continue
		}
		if c.AvailableSpace() >= neededVolume {
			return c
		}
	}
	return nil
}
