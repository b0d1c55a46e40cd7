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

package waste_test

import (
	"testing"
	"time"

	"k8s.io/klog/v2"

	"github.com/stationcargo/core/pkg/config"
	"github.com/stationcargo/core/pkg/store"
	"github.com/stationcargo/core/pkg/types"
	"github.com/stationcargo/core/pkg/waste"
)

func fixedNow() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }

func newCollector(items *store.ItemStore, containers *store.ContainerStore) *waste.Collector {
	return &waste.Collector{
		Items:      items,
		Containers: containers,
		Config:     config.Default(),
		Logger:     klog.Background(),
		Now:        fixedNow,
	}
}

// S6: expired items, exhausted-use items, and manually-flagged items are
// all identified as waste with the expected reason strings.
func TestIdentify_Classification(t *testing.T) {
	now := fixedNow()
	expired := now.AddDate(0, 0, -1)
	soon := now.AddDate(0, 0, 3)
	far := now.AddDate(0, 0, 90)

	items := store.NewItemStore()
	items.Upsert(&types.Item{ItemID: "Expired1", ExpiryDate: &expired, UsageLimit: 5})
	items.Upsert(&types.Item{ItemID: "Soon1", ExpiryDate: &soon, UsageLimit: 5})
	items.Upsert(&types.Item{ItemID: "OutOfUses1", ExpiryDate: &far, UsageLimit: 0})
	items.Upsert(&types.Item{ItemID: "LowUses1", ExpiryDate: &far, UsageLimit: 2})
	items.Upsert(&types.Item{ItemID: "Manual1", ExpiryDate: &far, UsageLimit: 10, IsWaste: true})
	items.Upsert(&types.Item{ItemID: "Fine1", ExpiryDate: &far, UsageLimit: 10})

	c := newCollector(items, store.NewContainerStore())
	results := c.Identify()

	reasons := map[string]string{}
	for _, w := range results {
		reasons[w.ItemID] = w.Reason
	}

	want := map[string]string{
		"Expired1":   "Expired",
		"Soon1":      "Expires in 3 days",
		"OutOfUses1": "Out of Uses",
		"LowUses1":   "2 uses remaining",
		"Manual1":    "Manually Marked",
	}
	for id, wantReason := range want {
		if got, ok := reasons[id]; !ok || got != wantReason {
			t.Errorf("reason[%s] = %q, want %q", id, got, wantReason)
		}
	}
	if _, ok := reasons["Fine1"]; ok {
		t.Error("Fine1 should not be classified as waste")
	}
}

// Waste ordering is monotonic with urgency: terminal reasons (expired,
// out of uses) always sort ahead of soft warnings (expires soon, low
// uses remaining).
func TestIdentify_OrderingMonotonic(t *testing.T) {
	now := fixedNow()
	expired := now.AddDate(0, 0, -1)
	soon := now.AddDate(0, 0, 4)

	items := store.NewItemStore()
	items.Upsert(&types.Item{ItemID: "A", ExpiryDate: &expired, UsageLimit: 5, Priority: 50})
	items.Upsert(&types.Item{ItemID: "B", ExpiryDate: &soon, UsageLimit: 5, Priority: 50})
	c := newCollector(items, store.NewContainerStore())

	results := c.Identify()
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ItemID != "A" {
		t.Errorf("first = %s, want A (expired is more urgent than expires-soon)", results[0].ItemID)
	}
}

func TestPlanReturn_RespectsMassBudget(t *testing.T) {
	now := fixedNow()
	expired := now.AddDate(0, 0, -1)

	items := store.NewItemStore()
	containers := store.NewContainerStore()
	c1 := &types.Container{ContainerID: "C1", Zone: "A", Dims: types.Dims{W: 100, D: 100, H: 100}}
	containers.Upsert(c1)

	for i, mass := range []float64{3, 4, 5} {
		it := &types.Item{
			ItemID: itemID(i), ExpiryDate: &expired, UsageLimit: 1, Mass: mass,
			Dims: types.Dims{W: 1, D: 1, H: 1},
		}
		items.Upsert(it)
		store.Attach(it, c1, types.Position{X: float64(i), Y: 0, Z: 0}, it.Dims)
	}

	c := newCollector(items, containers)
	plan := c.PlanReturn(7) // budget allows at most two of the three 3/4/5 kg items

	removed := map[string]bool{}
	for _, s := range plan.Steps {
		if s.Action == types.ActionRemove {
			removed[s.ItemID] = true
		}
	}
	if len(removed) == 0 {
		t.Fatal("expected at least one item selected within budget")
	}

	var totalMass float64
	for _, it := range items.Iter() {
		if removed[it.ItemID] {
			totalMass += it.Mass
		}
	}
	if totalMass > 7.0001 {
		t.Errorf("totalMass selected = %v, exceeds budget 7", totalMass)
	}
}

func itemID(i int) string {
	return "Item" + string(rune('A'+i))
}

// Selected items with no known source container emit only a place step,
// never a remove step with an empty FromContainer.
func TestPlanReturn_ContainerlessItemSkipsRemoveStep(t *testing.T) {
	now := fixedNow()
	expired := now.AddDate(0, 0, -1)

	items := store.NewItemStore()
	it := &types.Item{ItemID: "Loose", ExpiryDate: &expired, UsageLimit: 1, Mass: 2, Dims: types.Dims{W: 1, D: 1, H: 1}}
	items.Upsert(it) // never attached to a container

	c := newCollector(items, store.NewContainerStore())
	plan := c.PlanReturn(10)

	var sawPlace bool
	for _, s := range plan.Steps {
		if s.ItemID != "Loose" {
			continue
		}
		if s.Action == types.ActionRemove {
			t.Fatalf("containerless item emitted a remove step: %+v", s)
		}
		if s.Action == types.ActionPlace {
			sawPlace = true
		}
	}
	if !sawPlace {
		t.Fatal("expected a place step for the containerless item")
	}
}

// Selected items spread across two containers are grouped per container,
// each emitting its remove step immediately followed by its place step,
// rather than all removes then all places globally.
func TestPlanReturn_GroupsStepsByContainer(t *testing.T) {
	now := fixedNow()
	expired := now.AddDate(0, 0, -1)

	items := store.NewItemStore()
	containers := store.NewContainerStore()
	c1 := &types.Container{ContainerID: "C1", Zone: "A", Dims: types.Dims{W: 50, D: 50, H: 50}}
	c2 := &types.Container{ContainerID: "C2", Zone: "A", Dims: types.Dims{W: 50, D: 50, H: 50}}
	containers.Upsert(c1)
	containers.Upsert(c2)

	a := &types.Item{ItemID: "A1", ExpiryDate: &expired, UsageLimit: 1, Mass: 1, Dims: types.Dims{W: 1, D: 1, H: 1}}
	b := &types.Item{ItemID: "B1", ExpiryDate: &expired, UsageLimit: 1, Mass: 1, Dims: types.Dims{W: 1, D: 1, H: 1}}
	items.Upsert(a)
	items.Upsert(b)
	store.Attach(a, c1, types.Position{}, a.Dims)
	store.Attach(b, c2, types.Position{}, b.Dims)

	c := newCollector(items, containers)
	plan := c.PlanReturn(100)

	indexOf := func(id string, action types.StepAction) int {
		for i, s := range plan.Steps {
			if s.ItemID == id && s.Action == action {
				return i
			}
		}
		return -1
	}

	for _, id := range []string{"A1", "B1"} {
		removeIdx := indexOf(id, types.ActionRemove)
		placeIdx := indexOf(id, types.ActionPlace)
		if removeIdx == -1 || placeIdx == -1 {
			t.Fatalf("missing remove/place step for %s: %+v", id, plan.Steps)
		}
		if placeIdx != removeIdx+1 {
			t.Errorf("item %s: place step (%d) should immediately follow its remove step (%d)", id, placeIdx, removeIdx)
		}
	}
}

func TestCompleteUndocking_DetachesAndCounts(t *testing.T) {
	now := fixedNow()
	expired := now.AddDate(0, 0, -1)

	items := store.NewItemStore()
	containers := store.NewContainerStore()
	c1 := &types.Container{ContainerID: "C1", Zone: "A", Dims: types.Dims{W: 50, D: 50, H: 50}}
	containers.Upsert(c1)

	it := &types.Item{ItemID: "I1", ExpiryDate: &expired, UsageLimit: 1, Dims: types.Dims{W: 1, D: 1, H: 1}}
	items.Upsert(it)
	store.Attach(it, c1, types.Position{}, it.Dims)

	c := newCollector(items, containers)
	plan := c.PlanReturn(10)
	n := c.CompleteUndocking(plan)

	if n != 1 {
		t.Errorf("CompleteUndocking count = %d, want 1", n)
	}
	if it.CurrentLocation != nil {
		t.Error("item should be detached after undocking")
	}
}
