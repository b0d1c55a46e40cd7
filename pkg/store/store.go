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

// Package store implements the in-memory Item and Container stores: keyed
// maps with the mutation primitives (attach/detach) that keep invariants
// (1), (4), and (6) of the data model intact. The core never bypasses
// these primitives to mutate location state directly.
package store

import (
	"sort"

	"github.com/stationcargo/core/pkg/types"
)

// ItemStore is a keyed map from ItemID to Item.
type ItemStore struct {
	items map[string]*types.Item
}

// NewItemStore returns an empty item store.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[string]*types.Item)}
}

// Get returns the item for id, or nil if absent.
func (s *ItemStore) Get(id string) *types.Item { return s.items[id] }

// Upsert inserts or replaces an item.
func (s *ItemStore) Upsert(it *types.Item) { s.items[it.ItemID] = it }

// Delete removes an item by id.
func (s *ItemStore) Delete(id string) { delete(s.items, id) }

// Iter returns all items sorted by ItemID, for deterministic iteration.
func (s *ItemStore) Iter() []*types.Item {
	out := make([]*types.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Len returns the number of stored items.
func (s *ItemStore) Len() int { return len(s.items) }

// ContainerStore is a keyed map from ContainerID to Container.
type ContainerStore struct {
	containers map[string]*types.Container
}

// NewContainerStore returns an empty container store.
func NewContainerStore() *ContainerStore {
	return &ContainerStore{containers: make(map[string]*types.Container)}
}

// Get returns the container for id, or nil if absent.
func (s *ContainerStore) Get(id string) *types.Container { return s.containers[id] }

// Upsert inserts or replaces a container.
func (s *ContainerStore) Upsert(c *types.Container) {
	if c.Items == nil {
		c.Items = make(map[string]struct{})
	}
	s.containers[c.ContainerID] = c
}

// Delete removes a container by id. The core never destroys containers in
// normal operation; this exists for ingest-side correction.
func (s *ContainerStore) Delete(id string) { delete(s.containers, id) }

// Iter returns all containers sorted by ContainerID, for deterministic
// iteration (spec §4.1: "All iteration orders are fixed by coordinate
// lexicographic order").
func (s *ContainerStore) Iter() []*types.Container {
	out := make([]*types.Container, 0, len(s.containers))
	for _, c := range s.containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContainerID < out[j].ContainerID })
	return out
}

// Len returns the number of stored containers.
func (s *ContainerStore) Len() int { return len(s.containers) }

// Attach places item it into container c at position/rotation, updating
// both the item's location and the container's item set and occupied
// space, maintaining invariants (1), (4), (6).
func Attach(it *types.Item, c *types.Container, pos types.Position, rot types.Dims) {
	if c.Items == nil {
		c.Items = make(map[string]struct{})
	}
	c.Items[it.ItemID] = struct{}{}
	c.OccupiedSpace += it.Dims.Volume()
	it.CurrentLocation = &types.Location{
		ContainerID: c.ContainerID,
		Position:    pos,
		Rotation:    rot,
	}
}

// Detach removes item it from whatever container it currently occupies
// (looked up via cs), clearing its location and updating the container's
// item set and occupied space. No-op if the item has no location.
func Detach(it *types.Item, cs *ContainerStore) {
	if it.CurrentLocation == nil {
		return
	}
	if c := cs.Get(it.CurrentLocation.ContainerID); c != nil {
		delete(c.Items, it.ItemID)
		c.OccupiedSpace -= it.Dims.Volume()
		if c.OccupiedSpace < 0 {
			c.OccupiedSpace = 0
		}
	}
	it.CurrentLocation = nil
}
