package geometry

import "math"

// Point is an integer block position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Box is an axis-aligned block volume with inclusive corners. A box whose
// minimum exceeds its maximum on any axis is empty.
type Box struct {
	X1, Y1, Z1 int
	X2, Y2, Z2 int
}

// BoxFromCorners orders two arbitrary corners into a non-empty box.
func BoxFromCorners(a, b Point) Box {
	return Box{
		X1: min(a.X, b.X), Y1: min(a.Y, b.Y), Z1: min(a.Z, b.Z),
		X2: max(a.X, b.X), Y2: max(a.Y, b.Y), Z2: max(a.Z, b.Z),
	}
}

func (b Box) Empty() bool {
	return b.X1 > b.X2 || b.Y1 > b.Y2 || b.Z1 > b.Z2
}

// Volume is the number of cells in the box, saturating at math.MaxInt.
func (b Box) Volume() int {
	if b.Empty() {
		return 0
	}
	v := extent(b.X1, b.X2)
	v = mulSat(v, extent(b.Y1, b.Y2))
	return mulSat(v, extent(b.Z1, b.Z2))
}

// extent is hi-lo+1 for lo <= hi, saturating at math.MaxInt.
func extent(lo, hi int) int {
	d := hi - lo
	if d < 0 || d == math.MaxInt {
		return math.MaxInt
	}
	return d + 1
}

func mulSat(a, b int) int {
	if a != 0 && b > math.MaxInt/a {
		return math.MaxInt
	}
	return a * b
}

func (b Box) Contains(x, y, z int) bool {
	return x >= b.X1 && x <= b.X2 && y >= b.Y1 && y <= b.Y2 && z >= b.Z1 && z <= b.Z2
}

// Cells calls fn for every cell in the box, x fastest. It stops early when fn
// returns false.
func (b Box) Cells(fn func(x, y, z int) bool) {
	if b.Empty() {
		return
	}
	// Loops end on equality so a maximum of math.MaxInt cannot wrap.
	for y := b.Y1; ; y++ {
		for z := b.Z1; ; z++ {
			for x := b.X1; ; x++ {
				if !fn(x, y, z) {
					return
				}
				if x == b.X2 {
					break
				}
			}
			if z == b.Z2 {
				break
			}
		}
		if y == b.Y2 {
			return
		}
	}
}

// SafePoint returns a standing position outside the XZ footprint of box, offset
// by margin past its far corner.
func SafePoint(box Box, y, margin int) Point {
	if margin < 1 {
		margin = 1
	}
	return Point{X: max(box.X1, box.X2) + margin, Y: y, Z: max(box.Z1, box.Z2) + margin}
}

// DistXZ2 is the squared horizontal distance between two points.
func DistXZ2(a, b Point) int {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return dx*dx + dz*dz
}
