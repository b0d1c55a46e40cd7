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

package placement_test

import (
	"testing"
	"time"

	"k8s.io/klog/v2"

	"github.com/stationcargo/core/pkg/config"
	"github.com/stationcargo/core/pkg/placement"
	"github.com/stationcargo/core/pkg/store"
	"github.com/stationcargo/core/pkg/types"
)

func fixedNow() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }

func newEngine(items *store.ItemStore, containers *store.ContainerStore) *placement.Engine {
	return &placement.Engine{
		Items:      items,
		Containers: containers,
		Config:     config.Default(),
		Logger:     klog.Background(),
		Now:        fixedNow,
	}
}

// S1: a single small item fits in a single empty container at the origin.
func TestPlan_SimpleFit(t *testing.T) {
	items := store.NewItemStore()
	items.Upsert(&types.Item{
		ItemID: "I1", Name: "Widget",
		Dims: types.Dims{W: 10, D: 10, H: 10}, Priority: 50, UsageLimit: 5,
	})

	containers := store.NewContainerStore()
	containers.Upsert(&types.Container{
		ContainerID: "C1", Zone: "A", Dims: types.Dims{W: 100, D: 100, H: 100},
	})

	plan := newEngine(items, containers).Plan()

	if len(plan.Unplaced) != 0 {
		t.Fatalf("unplaced = %v, want none", plan.Unplaced)
	}
	if len(plan.Placements) != 1 {
		t.Fatalf("placements = %d, want 1", len(plan.Placements))
	}
	p := plan.Placements[0]
	if p.ItemID != "I1" || p.ContainerID != "C1" {
		t.Errorf("placement = %+v, want I1 in C1", p)
	}
	if p.Position != (types.Position{0, 0, 0}) {
		t.Errorf("position = %+v, want origin", p.Position)
	}
}

// S2: an item that only fits after rotation is placed using a rotated
// footprint rather than left unplaced.
func TestPlan_RequiresRotation(t *testing.T) {
	items := store.NewItemStore()
	items.Upsert(&types.Item{
		ItemID: "I1", Name: "Pole",
		Dims: types.Dims{W: 90, D: 5, H: 5}, Priority: 50, UsageLimit: 5,
	})

	containers := store.NewContainerStore()
	containers.Upsert(&types.Container{
		ContainerID: "C1", Zone: "A", Dims: types.Dims{W: 5, D: 90, H: 5},
	})

	plan := newEngine(items, containers).Plan()

	if len(plan.Unplaced) != 0 {
		t.Fatalf("unplaced = %v, want none (should fit after rotation)", plan.Unplaced)
	}
	if len(plan.Placements) != 1 {
		t.Fatalf("placements = %d, want 1", len(plan.Placements))
	}
	rot := plan.Placements[0].Rotation
	if rot.W > 5 || rot.H > 5 {
		t.Errorf("rotation = %+v, want a footprint fitting the 5x90x5 container", rot)
	}
}

// Items that genuinely cannot fit anywhere are reported unplaced, never
// silently dropped or force-fit.
func TestPlan_NoFitReportsUnplaced(t *testing.T) {
	items := store.NewItemStore()
	items.Upsert(&types.Item{
		ItemID: "Big", Dims: types.Dims{W: 200, D: 200, H: 200}, Priority: 50, UsageLimit: 5,
	})

	containers := store.NewContainerStore()
	containers.Upsert(&types.Container{
		ContainerID: "C1", Zone: "A", Dims: types.Dims{W: 50, D: 50, H: 50},
	})

	plan := newEngine(items, containers).Plan()

	if len(plan.Placements) != 0 {
		t.Fatalf("placements = %d, want 0", len(plan.Placements))
	}
	if len(plan.Unplaced) != 1 || plan.Unplaced[0] != "Big" {
		t.Fatalf("unplaced = %v, want [Big]", plan.Unplaced)
	}
}

// Idempotence: running Plan again after a successful plan (nothing left
// unplaced) produces no further placements or rearrangements.
func TestPlan_IdempotentOnSecondRun(t *testing.T) {
	items := store.NewItemStore()
	items.Upsert(&types.Item{
		ItemID: "I1", Dims: types.Dims{W: 10, D: 10, H: 10}, Priority: 50, UsageLimit: 5,
	})
	containers := store.NewContainerStore()
	containers.Upsert(&types.Container{
		ContainerID: "C1", Zone: "A", Dims: types.Dims{W: 100, D: 100, H: 100},
	})

	engine := newEngine(items, containers)
	first := engine.Plan()
	if len(first.Unplaced) != 0 {
		t.Fatalf("first plan left items unplaced: %v", first.Unplaced)
	}

	second := engine.Plan()
	if len(second.Placements) != 0 || len(second.Unplaced) != 0 || len(second.Rearrangements) != 0 {
		t.Errorf("second plan = %+v, want a no-op (all items already placed)", second)
	}
}

// Capacity-exceeded containers (>= 95% full) are skipped even when voxel
// space remains, per the fill-threshold rule.
func TestPlan_SkipsNearFullContainer(t *testing.T) {
	items := store.NewItemStore()
	items.Upsert(&types.Item{
		ItemID: "I1", Dims: types.Dims{W: 5, D: 5, H: 5}, Priority: 50, UsageLimit: 5,
	})

	containers := store.NewContainerStore()
	full := &types.Container{
		ContainerID: "C1", Zone: "A", Dims: types.Dims{W: 100, D: 100, H: 100},
	}
	full.OccupiedSpace = 0.96 * full.Capacity()
	containers.Upsert(full)

	plan := newEngine(items, containers).Plan()

	if len(plan.Placements) != 0 {
		t.Fatalf("placements = %d, want 0 (only container is over fill threshold)", len(plan.Placements))
	}
	if len(plan.Unplaced) != 1 {
		t.Fatalf("unplaced = %v, want [I1]", plan.Unplaced)
	}
}
