package geometry

// FoundationMaterial is laid under every structure regardless of its material.
const FoundationMaterial = "minecraft:grass_block"

type Part int

const (
	PartFoundation Part = iota + 1
	PartFloor
	PartWallNorth
	PartWallSouth
	PartWallEast
	PartWallWest
	PartRoof
)

func (p Part) String() string {
	switch p {
	case PartFoundation:
		return "foundation"
	case PartFloor:
		return "floor"
	case PartWallNorth:
		return "wall_north"
	case PartWallSouth:
		return "wall_south"
	case PartWallEast:
		return "wall_east"
	case PartWallWest:
		return "wall_west"
	case PartRoof:
		return "roof"
	default:
		return "unknown"
	}
}

func (p Part) IsWall() bool {
	return p >= PartWallNorth && p <= PartWallWest
}

// FillOperation is one box of one material, produced for a single build.
type FillOperation struct {
	Part     Part
	Box      Box
	Material string
}

// Structure is the subset of a build instruction the synthesizer needs.
type Structure struct {
	OriginX, OriginZ int
	Material         string
	Width, Height    int
	Hollow           bool
}

// Synthesize expands a structure standing on groundY into fill operations in
// emission order: foundation, floor, north, south, east, west walls, then the
// roof unless hollow.
//
// The list always holds all four walls. With width <= 2 the east/west walls are
// empty boxes, and with height 1 every wall is empty; callers must treat empty
// boxes as no-ops rather than send them.
func Synthesize(s Structure, groundY int) []FillOperation {
	x0, z0 := s.OriginX, s.OriginZ
	x1, z1 := x0+s.Width-1, z0+s.Width-1
	wy1, wy2 := groundY+1, groundY+s.Height-1

	ops := make([]FillOperation, 0, 7)
	ops = append(ops,
		FillOperation{Part: PartFoundation, Box: Box{x0, groundY - 1, z0, x1, groundY - 1, z1}, Material: FoundationMaterial},
		FillOperation{Part: PartFloor, Box: Box{x0, groundY, z0, x1, groundY, z1}, Material: s.Material},
		FillOperation{Part: PartWallNorth, Box: Box{x0, wy1, z0, x0, wy2, z1}, Material: s.Material},
		FillOperation{Part: PartWallSouth, Box: Box{x1, wy1, z0, x1, wy2, z1}, Material: s.Material},
		// East and west are trimmed to the interior so corners are filled once.
		FillOperation{Part: PartWallEast, Box: Box{x0 + 1, wy1, z1, x1 - 1, wy2, z1}, Material: s.Material},
		FillOperation{Part: PartWallWest, Box: Box{x0 + 1, wy1, z0, x1 - 1, wy2, z0}, Material: s.Material},
	)
	if !s.Hollow {
		ops = append(ops, FillOperation{Part: PartRoof, Box: Box{x0, groundY + s.Height, z0, x1, groundY + s.Height, z1}, Material: s.Material})
	}
	return ops
}

// Footprint is the volume a structure occupies, foundation to roof.
func Footprint(s Structure, groundY int) Box {
	return Box{
		X1: s.OriginX, Y1: groundY - 1, Z1: s.OriginZ,
		X2: s.OriginX + s.Width - 1, Y2: groundY + s.Height, Z2: s.OriginZ + s.Width - 1,
	}
}
