// Package neighbor enumerates the near-field (direct) and interaction-list
// (M2L) neighbours of a cell, the canonical contract every tree
// representation relies on. Both the pointer octree and the grouped
// octree call into this package so there is exactly one
// neighbour-enumeration implementation to keep consistent.
package neighbor

import "github.com/scalfmm-go/fmm/internal/morton"

// Near is one near-field (direct, P2P) neighbour: its Morton index and the
// direction slot (0..26, centre slot 13 never produced).
type Near struct {
	Morton uint64
	Slot   int
}

// Far is one interaction-list (M2L) neighbour: its Morton index and the
// relative-position slot (0..342).
type Far struct {
	Morton uint64
	Slot   int
}

// NearSlot returns the row-major direction slot for a near-field offset,
// each axis in [-1, 1].
func NearSlot(dx, dy, dz int) int {
	return (dx+1)*9 + (dy+1)*3 + (dz + 1)
}

// OppositeNearSlot maps a near-field slot to its centrally-symmetric
// opposite: applying it twice is the identity.
func OppositeNearSlot(slot int) int {
	return 27 - slot - 1
}

// FarSlot returns the row-major relative-position slot for an M2L offset,
// each axis in [-3, 3].
func FarSlot(dx, dy, dz int) int {
	return (dx+3)*49 + (dy+3)*7 + (dz + 3)
}

// OppositeFarSlot maps an M2L slot to its centrally-symmetric opposite.
func OppositeFarSlot(slot int) int {
	return 343 - slot - 1
}

// DirectNeighbors returns the up-to-26 cells at the same level whose
// integer coordinates differ from c by at most 1 on each axis, excluding
// c itself, clamped to the root cube and with no duplicates.
func DirectNeighbors(c morton.Coordinate, level uint8) []Near {
	limit := morton.MaxIndex(level)
	out := make([]Near, 0, 26)
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				nc, ok := offset(c, dx, dy, dz, limit)
				if !ok {
					continue
				}
				out = append(out, Near{Morton: morton.Encode(nc), Slot: NearSlot(dx, dy, dz)})
			}
		}
	}
	return out
}

// InteractionList returns the up-to-189 M2L neighbours of c: enumerate
// the 3x3x3 cube around c's parent, descend to all 8 children of each
// such parent cell, and keep only those children that differ from c by
// more than 1 on at least one axis (i.e. are not direct neighbours).
func InteractionList(c morton.Coordinate, level uint8) []Far {
	if level < 2 {
		return nil
	}
	limit := morton.MaxIndex(level)
	parentLimit := morton.MaxIndex(level - 1)
	parent := morton.Coordinate{X: c.X >> 1, Y: c.Y >> 1, Z: c.Z >> 1}

	out := make([]Far, 0, 189)
	for pdz := -1; pdz <= 1; pdz++ {
		for pdy := -1; pdy <= 1; pdy++ {
			for pdx := -1; pdx <= 1; pdx++ {
				pc, ok := offset(parent, pdx, pdy, pdz, parentLimit)
				if !ok {
					continue
				}
				for k := 0; k < 8; k++ {
					cc := childCoord(pc, k)
					if cc.X >= limit || cc.Y >= limit || cc.Z >= limit {
						continue
					}
					dx := int(cc.X) - int(c.X)
					dy := int(cc.Y) - int(c.Y)
					dz := int(cc.Z) - int(c.Z)
					if abs(dx) <= 1 && abs(dy) <= 1 && abs(dz) <= 1 {
						continue // direct neighbour or self, not an M2L neighbour
					}
					out = append(out, Far{Morton: morton.Encode(cc), Slot: FarSlot(dx, dy, dz)})
				}
			}
		}
	}
	return out
}

func childCoord(parent morton.Coordinate, k int) morton.Coordinate {
	return morton.Coordinate{
		X: parent.X<<1 | uint32(k&1),
		Y: parent.Y<<1 | uint32((k>>1)&1),
		Z: parent.Z<<1 | uint32((k>>2)&1),
	}
}

func offset(c morton.Coordinate, dx, dy, dz int, limit uint32) (morton.Coordinate, bool) {
	x, y, z := int(c.X)+dx, int(c.Y)+dy, int(c.Z)+dz
	if x < 0 || y < 0 || z < 0 || x >= int(limit) || y >= int(limit) || z >= int(limit) {
		return morton.Coordinate{}, false
	}
	return morton.Coordinate{X: uint32(x), Y: uint32(y), Z: uint32(z)}, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
