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

package core_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"k8s.io/klog/v2"

	"github.com/stationcargo/core/pkg/config"
	"github.com/stationcargo/core/pkg/core"
)

func start() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }

func seeded(t *testing.T) *core.Core {
	t.Helper()
	c := core.New(config.Default(), klog.Background(), start())
	if err := c.IngestContainer(core.IngestContainerRecord{
		ContainerID: "C1", Zone: "Z", Width: 100, Depth: 100, Height: 100,
	}); err != nil {
		t.Fatalf("IngestContainer: %v", err)
	}
	if err := c.IngestItem(core.IngestItemRecord{
		ItemID: "A", Name: "Widget", Width: 30, Depth: 30, Height: 30,
		Mass: 2, Priority: 50, ExpiryDate: "N/A", UsageLimit: 5, PreferredZone: "Z",
	}); err != nil {
		t.Fatalf("IngestItem: %v", err)
	}
	return c
}

func TestIngestItem_RejectsInvalidInput(t *testing.T) {
	c := core.New(config.Default(), klog.Background(), start())

	cases := []core.IngestItemRecord{
		{ItemID: "bad-dims", Width: 0, Depth: 10, Height: 10, Mass: 1, Priority: 50, UsageLimit: 1},
		{ItemID: "bad-mass", Width: 10, Depth: 10, Height: 10, Mass: 0, Priority: 50, UsageLimit: 1},
		{ItemID: "bad-priority", Width: 10, Depth: 10, Height: 10, Mass: 1, Priority: 0, UsageLimit: 1},
		{ItemID: "bad-date", Width: 10, Depth: 10, Height: 10, Mass: 1, Priority: 50, UsageLimit: 1, ExpiryDate: "not-a-date"},
	}
	for _, rec := range cases {
		if err := c.IngestItem(rec); err == nil {
			t.Errorf("IngestItem(%+v) returned nil error, want InvalidInput", rec)
		}
	}
}

func TestPlanPlacement_Deterministic(t *testing.T) {
	c1 := seeded(t)
	c2 := seeded(t)

	p1 := c1.PlanPlacement()
	p2 := c2.PlanPlacement()

	if diff := cmp.Diff(p1, p2); diff != "" {
		t.Errorf("two identically-seeded cores produced different plans (-got1 +got2):\n%s", diff)
	}
}

// Previewing a retrieval finds the placed item; actually retrieving it
// then leaves the item detached from its container.
func TestPreviewThenRetrieve_DetachesItem(t *testing.T) {
	c := seeded(t)
	plan := c.PlanPlacement()
	if len(plan.Placements) != 1 {
		t.Fatalf("setup: expected 1 placement, got %d", len(plan.Placements))
	}

	preview := c.PreviewRetrieval("A")
	if !preview.Found {
		t.Fatal("preview: item A not found")
	}

	if _, err := c.PlanRetrieval("A"); err != nil {
		t.Fatalf("PlanRetrieval: %v", err)
	}

	items := c.Items()
	for _, it := range items {
		if it.ItemID == "A" && it.CurrentLocation != nil {
			t.Fatalf("item A should be detached after retrieval, got location %+v", it.CurrentLocation)
		}
	}
}

func TestSimulateAndIdentifyWaste(t *testing.T) {
	c := core.New(config.Default(), klog.Background(), start())
	_ = c.IngestContainer(core.IngestContainerRecord{ContainerID: "C1", Zone: "Z", Width: 50, Depth: 50, Height: 50})
	_ = c.IngestItem(core.IngestItemRecord{
		ItemID: "Soon", Width: 5, Depth: 5, Height: 5, Mass: 1, Priority: 50,
		ExpiryDate: "2030-01-03", UsageLimit: 5,
	})

	c.Simulate(10, nil)

	waste := c.IdentifyWaste()
	found := false
	for _, w := range waste {
		if w.ItemID == "Soon" && w.Reason == "Expired" {
			found = true
		}
	}
	if !found {
		t.Errorf("waste manifest = %+v, want Soon classified Expired", waste)
	}
}
