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

// Package core assembles the item/container stores, the logical clock,
// and the placement/retrieval/waste engines into the single entry point
// external callers use (spec §5: "construct a single Core value that
// owns them and pass it explicitly to each operation"). The struct
// shape — a logger, config, and owned state guarded by one lock — follows
// the teacher's multiobjective.go Plugin (logger/handle/args fields,
// klog.FromContext logging idiom), generalized from a one-shot scheduler
// plugin to a long-lived stateful core.
package core

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/stationcargo/core/pkg/config"
	"github.com/stationcargo/core/pkg/placement"
	"github.com/stationcargo/core/pkg/retrieval"
	"github.com/stationcargo/core/pkg/simulate"
	"github.com/stationcargo/core/pkg/store"
	"github.com/stationcargo/core/pkg/types"
	"github.com/stationcargo/core/pkg/waste"
)

// Core owns the item and container stores and the logical clock, and
// exposes the five top-level operations as single-exclusive-lock-guarded
// methods (spec §5).
type Core struct {
	mu sync.Mutex

	items      *store.ItemStore
	containers *store.ContainerStore
	clock      *simulate.Clock
	cfg        config.Config
	logger     klog.Logger
}

// New builds a Core with empty stores, a logical clock starting at
// `start`, and the given config. If logger is the zero value,
// klog.Background() is used.
func New(cfg config.Config, logger klog.Logger, start time.Time) *Core {
	if logger.GetSink() == nil {
		logger = klog.Background()
	}
	items := store.NewItemStore()
	return &Core{
		items:      items,
		containers: store.NewContainerStore(),
		clock:      simulate.NewClock(items, logger, start),
		cfg:        cfg,
		logger:     logger,
	}
}

// IngestItemRecord is the ingest-side input shape for an item (spec §6).
type IngestItemRecord struct {
	ItemID        string  `json:"itemId"`
	Name          string  `json:"name"`
	Width         float64 `json:"width"`
	Depth         float64 `json:"depth"`
	Height        float64 `json:"height"`
	Mass          float64 `json:"mass"`
	Priority      int     `json:"priority"`
	ExpiryDate    string  `json:"expiryDate"` // ISO-8601 date, or "N/A"
	UsageLimit    int     `json:"usageLimit"`
	PreferredZone string  `json:"preferredZone"`
}

// IngestItem validates and stores a new item, rejecting the whole record
// on any InvalidInput violation (spec §7: "validation errors are rejected
// before any mutation").
func (c *Core) IngestItem(rec IngestItemRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.Width <= 0 || rec.Depth <= 0 || rec.Height <= 0 {
		return types.NewError(types.ErrInvalidInput, fmt.Sprintf("item %s: dimensions must be strictly positive", rec.ItemID), nil)
	}
	if rec.Mass <= 0 {
		return types.NewError(types.ErrInvalidInput, fmt.Sprintf("item %s: mass must be strictly positive", rec.ItemID), nil)
	}
	if rec.Priority < 1 || rec.Priority > 100 {
		return types.NewError(types.ErrInvalidInput, fmt.Sprintf("item %s: priority %d out of [1,100]", rec.ItemID, rec.Priority), nil)
	}
	if rec.UsageLimit < 0 {
		return types.NewError(types.ErrInvalidInput, fmt.Sprintf("item %s: usageLimit must be >= 0", rec.ItemID), nil)
	}

	var expiry *time.Time
	if rec.ExpiryDate != "" && rec.ExpiryDate != "N/A" {
		t, err := time.Parse("2006-01-02", rec.ExpiryDate)
		if err != nil {
			return types.NewError(types.ErrInvalidInput, fmt.Sprintf("item %s: unparseable expiry date %q", rec.ItemID, rec.ExpiryDate), err)
		}
		expiry = &t
	}

	c.items.Upsert(&types.Item{
		ItemID:        rec.ItemID,
		Name:          rec.Name,
		Dims:          types.Dims{W: rec.Width, D: rec.Depth, H: rec.Height},
		Mass:          rec.Mass,
		Priority:      rec.Priority,
		ExpiryDate:    expiry,
		UsageLimit:    rec.UsageLimit,
		PreferredZone: rec.PreferredZone,
	})
	return nil
}

// IngestContainerRecord is the ingest-side input shape for a container
// (spec §6).
type IngestContainerRecord struct {
	ContainerID string  `json:"containerId"`
	Zone        string  `json:"zone"`
	Width       float64 `json:"width"`
	Depth       float64 `json:"depth"`
	Height      float64 `json:"height"`
}

// IngestContainer validates and stores a new container.
func (c *Core) IngestContainer(rec IngestContainerRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.Width <= 0 || rec.Depth <= 0 || rec.Height <= 0 {
		return types.NewError(types.ErrInvalidInput, fmt.Sprintf("container %s: dimensions must be strictly positive", rec.ContainerID), nil)
	}

	c.containers.Upsert(&types.Container{
		ContainerID: rec.ContainerID,
		Zone:        rec.Zone,
		Dims:        types.Dims{W: rec.Width, D: rec.Depth, H: rec.Height},
	})
	return nil
}

func (c *Core) placementEngine() *placement.Engine {
	return &placement.Engine{
		Items: c.items, Containers: c.containers, Config: c.cfg,
		Logger: c.logger, Now: c.clock.Now,
	}
}

func (c *Core) retrievalPlanner() *retrieval.Planner {
	return &retrieval.Planner{
		Items: c.items, Containers: c.containers, Config: c.cfg,
		Logger: c.logger, Now: c.clock.Now,
	}
}

func (c *Core) wasteCollector() *waste.Collector {
	return &waste.Collector{
		Items: c.items, Containers: c.containers, Config: c.cfg,
		Logger: c.logger, Now: c.clock.Now,
	}
}

// PlanPlacement runs the placement engine over every currently-unplaced
// item.
func (c *Core) PlanPlacement() types.PlacementPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.placementEngine().Plan()
}

// PreviewRetrieval builds a retrieval plan for itemID without mutating
// any store state.
func (c *Core) PreviewRetrieval(itemID string) types.RetrievalPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retrievalPlanner().Preview(itemID)
}

// PlanRetrieval plans and executes the retrieval of itemID.
func (c *Core) PlanRetrieval(itemID string) (types.RetrievalPlan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retrievalPlanner().Retrieve(itemID)
}

// SearchItems runs the free-text item search.
func (c *Core) SearchItems(query string) []*types.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retrievalPlanner().Search(query)
}

// IdentifyWaste returns the current waste manifest, urgency-ordered.
func (c *Core) IdentifyWaste() []types.WasteItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wasteCollector().Identify()
}

// PlanWasteReturn selects a return-vessel load within massBudgetKG.
func (c *Core) PlanWasteReturn(massBudgetKG float64) types.WastePlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wasteCollector().PlanReturn(massBudgetKG)
}

// CompleteUndocking finalizes a committed waste-return plan, detaching
// every removed item and returning the count removed.
func (c *Core) CompleteUndocking(plan types.WastePlan) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wasteCollector().CompleteUndocking(plan)
}

// Simulate advances the logical clock by days (minimum 1), depleting
// usage for itemsUsedThisBatch first and then sweeping for newly expired
// items.
func (c *Core) Simulate(days int, itemsUsedThisBatch []string) simulate.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Simulate(days, itemsUsedThisBatch)
}

// Items exposes the item store for read-only inspection (reporting,
// tests). Callers must not mutate returned items outside a Core
// operation.
func (c *Core) Items() []*types.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Iter()
}

// Containers exposes the container store for read-only inspection.
func (c *Core) Containers() []*types.Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.containers.Iter()
}

// Now returns the core's current logical date, for callers (reports, CLI
// display commands) that need to compute display-only values like
// scoring.EffectivePriority against the same clock the engines use.
func (c *Core) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Now()
}
