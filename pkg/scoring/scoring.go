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

// Package scoring centralizes the heuristic formulas used by placement,
// retrieval, and waste collection: effective priority, placement score,
// waste urgency, and knapsack value (spec §4.3). The shape — small pure
// functions of domain values with no config of their own — follows the
// teacher's objectives/balance and objectives/cost packages, generalized
// from node/pod scoring to container/item scoring.
package scoring

import (
	"math"
	"time"

	"github.com/stationcargo/core/pkg/types"
)

// EffectivePriority returns the item's ordering/urgency-display priority:
// base priority plus expiry and usage boosts, clamped to 130. Also
// reports whether the item must be forced into waste status as a side
// effect of this calculation (expired, or usage exhausted).
func EffectivePriority(it *types.Item, now time.Time) (score float64, forceWaste bool) {
	score = float64(it.Priority)

	if it.HasExpiry() {
		days := it.DaysUntilExpiry(now)
		if days <= 0 {
			score += 20
			forceWaste = true
		} else if days < 30 {
			score += float64(30-days) / 3.0
		}
	}

	if it.UsageLimit == 0 {
		score += 10
		forceWaste = true
	} else if it.UsageLimit > 0 && it.UsageLimit <= 5 {
		score += float64(5-it.UsageLimit) * 3
	}

	if score > 130 {
		score = 130
	}
	return score, forceWaste
}

// WeightedPlacementOrder returns the ordering key used to sort items
// before the placement loop: 2*priority - min(100, daysUntilExpiry) +
// 0.5*min(100, usageLimit). Items without an expiry are treated as if
// their expiry were far away (365 days), matching the source's default.
func WeightedPlacementOrder(it *types.Item, now time.Time) float64 {
	days := 365
	if it.HasExpiry() {
		d := it.DaysUntilExpiry(now)
		if d < 0 {
			d = 0
		}
		days = d
	}
	if days > 100 {
		days = 100
	}
	usage := it.UsageLimit
	if usage > 100 {
		usage = 100
	}
	return 2*float64(it.Priority) - float64(days) + 0.5*float64(usage)
}

// PlacementScore scores a candidate (container, rotation, position) for
// an item: zone_bonus + 5*priority - 50*retrievalDepth. Higher is better.
func PlacementScore(it *types.Item, containerZone string, retrievalDepth int) float64 {
	zoneBonus := 0.0
	if containerZone == it.PreferredZone {
		zoneBonus = 1000
	}
	return zoneBonus + 5*float64(it.Priority) - 50*float64(retrievalDepth)
}

// WasteReasonCategory is the scoring-relevant category behind a waste
// item's human-readable Reason string.
type WasteReasonCategory int

const (
	// ReasonTerminal covers "Expired" and "Out of Uses" — base 100.
	ReasonTerminal WasteReasonCategory = iota
	// ReasonExpiresSoon covers "Expires in k days" — base 100 - 10k.
	ReasonExpiresSoon
	// ReasonUsesRemaining covers "k uses remaining" — base 50 - 10k.
	ReasonUsesRemaining
	// ReasonManual covers "Manually Marked" — base 0.
	ReasonManual
)

// WasteUrgency scores a classified waste item for disposal-order sorting.
// Higher means more urgent. k is the days-until-expiry or uses-remaining
// count backing ReasonExpiresSoon/ReasonUsesRemaining; ignored otherwise.
func WasteUrgency(cat WasteReasonCategory, k int, priority int, mass float64) float64 {
	var base float64
	switch cat {
	case ReasonTerminal:
		base = 100
	case ReasonExpiresSoon:
		base = 100 - 10*float64(k)
	case ReasonUsesRemaining:
		base = 50 - 10*float64(k)
	case ReasonManual:
		base = 0
	}

	adj := math.Min(30, float64(priority)/3)
	massBoost := math.Min(20, 2*mass)
	return base - adj + massBoost
}

// KnapsackValue combines rank-based urgency and mass for return-selection
// scoring: 0.7*urgencyRankValue + 0.3*min(10, 2*mass), where
// urgencyRankValue = 10*(1 - i/N), i the item's 0-based position in the
// urgency-sorted list of N items.
func KnapsackValue(i, n int, mass float64) float64 {
	if n <= 0 {
		n = 1
	}
	urgencyRankValue := 10 * (1 - float64(i)/float64(n))
	massValue := math.Min(10, 2*mass)
	return 0.7*urgencyRankValue + 0.3*massValue
}
