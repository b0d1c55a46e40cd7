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

// Package spacemodel implements the per-container 3D occupancy model used
// by the placement engine and retrieval planner: a uniform voxel grid at
// a configurable centimeter resolution (spec §4.1 option (a) — adequate
// for station container sizes on the order of 100x100x200).
//
// The bookkeeping style (remaining-capacity tracking per unit, best-fit
// comparison) follows the teacher's bin-packing bestfit.go, generalized
// from two resource dimensions (CPU, memory) to three spatial dimensions.
package spacemodel

import (
	"github.com/stationcargo/core/pkg/types"
)

// placedBox is one occupant tracked for retrieval-depth queries.
type placedBox struct {
	x, y, z    int
	w, d, h    int
}

// SpaceModel is a transient per-container occupancy grid, built fresh for
// each planning call from the current store state (spec §3: "The
// SpaceModel is transient, built per planning call from the current
// stores").
type SpaceModel struct {
	resolution int // centimeters per voxel
	wv, dv, hv int // container bounds in voxel units
	occupied   []bool
	boxes      []placedBox
}

// New builds an empty SpaceModel for a container of the given real-world
// dimensions, at the given voxel resolution (centimeters per cell).
func New(dims types.Dims, resolutionCM int) *SpaceModel {
	if resolutionCM <= 0 {
		resolutionCM = 1
	}
	wv := toVoxels(dims.W, resolutionCM)
	dv := toVoxels(dims.D, resolutionCM)
	hv := toVoxels(dims.H, resolutionCM)
	return &SpaceModel{
		resolution: resolutionCM,
		wv:         wv,
		dv:         dv,
		hv:         hv,
		occupied:   make([]bool, wv*dv*hv),
	}
}

func toVoxels(cm float64, resolution int) int {
	n := int(cm) / resolution
	if float64(n*resolution) < cm {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (m *SpaceModel) index(x, y, z int) int {
	return x + y*m.wv + z*m.wv*m.dv
}

func (m *SpaceModel) fits(x, y, z, w, d, h int) bool {
	if x < 0 || y < 0 || z < 0 {
		return false
	}
	if x+w > m.wv || y+d > m.dv || z+h > m.hv {
		return false
	}
	for zz := z; zz < z+h; zz++ {
		for yy := y; yy < y+d; yy++ {
			base := yy*m.wv + zz*m.wv*m.dv
			for xx := x; xx < x+w; xx++ {
				if m.occupied[base+xx] {
					return false
				}
			}
		}
	}
	return true
}

// FindPosition returns the lowest-y, then lowest-z, then lowest-x corner
// such that a box of size (w,d,h) fits entirely inside the container and
// does not intersect any occupied cell. Returns (Position{}, false) if no
// such corner exists. Iteration order is fixed so repeated calls on
// identical state are reproducible (spec §4.1 determinism).
func (m *SpaceModel) FindPosition(w, d, h float64) (types.Position, bool) {
	wv := toVoxels(w, m.resolution)
	dv := toVoxels(d, m.resolution)
	hv := toVoxels(h, m.resolution)
	if wv > m.wv || dv > m.dv || hv > m.hv {
		return types.Position{}, false
	}
	for y := 0; y+dv <= m.dv; y++ {
		for z := 0; z+hv <= m.hv; z++ {
			for x := 0; x+wv <= m.wv; x++ {
				if m.fits(x, y, z, wv, dv, hv) {
					return types.Position{
						X: float64(x * m.resolution),
						Y: float64(y * m.resolution),
						Z: float64(z * m.resolution),
					}, true
				}
			}
		}
	}
	return types.Position{}, false
}

// Place marks the cells of a box at the given real-world corner/size as
// occupied. Precondition: the corner was produced by FindPosition (or
// otherwise verified clear) against the current state of m.
func (m *SpaceModel) Place(pos types.Position, dims types.Dims) {
	x := int(pos.X) / m.resolution
	y := int(pos.Y) / m.resolution
	z := int(pos.Z) / m.resolution
	w := toVoxels(dims.W, m.resolution)
	d := toVoxels(dims.D, m.resolution)
	h := toVoxels(dims.H, m.resolution)
	for zz := z; zz < z+h; zz++ {
		for yy := y; yy < y+d; yy++ {
			base := yy*m.wv + zz*m.wv*m.dv
			for xx := x; xx < x+w; xx++ {
				m.occupied[base+xx] = true
			}
		}
	}
	m.boxes = append(m.boxes, placedBox{x, y, z, w, d, h})
}

// Remove clears the cells of a previously placed box, the inverse of
// Place. Used by the placement engine's rearrangement planner when it
// moves a candidate item out of a container.
func (m *SpaceModel) Remove(pos types.Position, dims types.Dims) {
	x := int(pos.X) / m.resolution
	y := int(pos.Y) / m.resolution
	z := int(pos.Z) / m.resolution
	w := toVoxels(dims.W, m.resolution)
	d := toVoxels(dims.D, m.resolution)
	h := toVoxels(dims.H, m.resolution)
	for zz := z; zz < z+h; zz++ {
		for yy := y; yy < y+d; yy++ {
			base := yy*m.wv + zz*m.wv*m.dv
			for xx := x; xx < x+w; xx++ {
				m.occupied[base+xx] = false
			}
		}
	}
	for i, b := range m.boxes {
		if b.x == x && b.y == y && b.z == z && b.w == w && b.d == d && b.h == h {
			m.boxes = append(m.boxes[:i], m.boxes[i+1:]...)
			break
		}
	}
}

// RetrievalDepth counts distinct other items intersecting the forward
// projection of the box at (pos, dims) along -y toward y=0: items whose
// x-z projection overlaps the target's AND whose own y-range is not
// entirely behind the target (spec §4.1).
func (m *SpaceModel) RetrievalDepth(pos types.Position, dims types.Dims) int {
	x := int(pos.X) / m.resolution
	y := int(pos.Y) / m.resolution
	z := int(pos.Z) / m.resolution
	w := toVoxels(dims.W, m.resolution)
	d := toVoxels(dims.D, m.resolution)
	h := toVoxels(dims.H, m.resolution)

	count := 0
	for _, b := range m.boxes {
		if b.x == x && b.y == y && b.z == z && b.w == w && b.d == d && b.h == h {
			continue // the target itself, if already placed
		}
		xOverlap := b.x < x+w && x < b.x+b.w
		zOverlap := b.z < z+h && z < b.z+b.h
		if !xOverlap || !zOverlap {
			continue
		}
		// y=0 is the access face; blocks iff it is not entirely behind the
		// target (b.y >= y+d means b starts at or beyond the target's far
		// face, i.e. strictly deeper and out of the way).
		if b.y >= y+d {
			continue
		}
		count++
	}
	return count
}
