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

// Package simulate implements the logical clock (spec §4.7): batch usage
// decrement followed by date advance and expiry sweep. Grounded on
// original_source/services/simulation.py's simulate_days, extended with
// the usage-depletion pass spec.md adds ahead of the expiry check.
package simulate

import (
	"time"

	"k8s.io/klog/v2"

	"github.com/stationcargo/core/pkg/store"
	"github.com/stationcargo/core/pkg/types"
)

// Clock holds the process-wide logical current date.
type Clock struct {
	Items   *store.ItemStore
	Logger  klog.Logger
	current time.Time
}

// NewClock returns a Clock initialized to start.
func NewClock(items *store.ItemStore, logger klog.Logger, start time.Time) *Clock {
	return &Clock{Items: items, Logger: logger, current: start}
}

// Now returns the clock's current logical date.
func (c *Clock) Now() time.Time { return c.current }

// Result is the outcome of one Simulate call.
type Result struct {
	OldDate       time.Time
	NewDate       time.Time
	Expired       []types.WasteItem
	UsageDepleted []types.WasteItem
}

// Simulate advances the logical clock by days (minimum 1) after first
// decrementing usage counts for every item in itemsUsedThisBatch, per
// spec §4.7: usage depletion is evaluated against the pre-advance date,
// then the date advances, then the expiry sweep runs against the new
// date.
func (c *Clock) Simulate(days int, itemsUsedThisBatch []string) Result {
	logger := c.Logger.WithValues("op", "Simulate", "days", days)
	if days < 1 {
		days = 1
	}

	oldDate := c.current
	var depleted []types.WasteItem

	for _, id := range itemsUsedThisBatch {
		it := c.Items.Get(id)
		if it == nil || it.UsageLimit <= 0 {
			continue
		}
		it.UsageLimit--
		if it.UsageLimit == 0 {
			it.IsWaste = true
			depleted = append(depleted, wasteEntry(it, "Out of Uses"))
		}
	}

	newDate := oldDate.AddDate(0, 0, days)
	c.current = newDate

	var expired []types.WasteItem
	for _, it := range c.Items.Iter() {
		if it.IsWaste || !it.HasExpiry() {
			continue
		}
		expiry := *it.ExpiryDate
		if !expiry.After(newDate) && expiry.After(oldDate) {
			it.IsWaste = true
			expired = append(expired, wasteEntry(it, "Expired"))
		}
	}

	logger.Info("simulation complete", "newDate", newDate, "expired", len(expired), "usageDepleted", len(depleted))
	return Result{OldDate: oldDate, NewDate: newDate, Expired: expired, UsageDepleted: depleted}
}

func wasteEntry(it *types.Item, reason string) types.WasteItem {
	w := types.WasteItem{ItemID: it.ItemID, Name: it.Name, Reason: reason, Mass: it.Mass}
	if it.CurrentLocation != nil {
		w.ContainerID = it.CurrentLocation.ContainerID
		p := it.CurrentLocation.Position
		w.Position = &p
	}
	return w
}
