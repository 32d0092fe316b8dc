package surface

import (
	"context"
	"fmt"
)

// Block is what the world reports for one cell.
type Block struct {
	ID    string
	Solid bool
}

// BlockQuerier reads a single cell from the world.
type BlockQuerier interface {
	BlockAt(ctx context.Context, x, y, z int) (Block, error)
}

const (
	DefaultCeiling  = 255
	DefaultFloor    = 0
	DefaultFallback = 1
)

// Locator finds the standing surface of a column.
type Locator struct {
	World    BlockQuerier
	Ceiling  int
	Floor    int
	Fallback int
}

func NewLocator(world BlockQuerier) *Locator {
	return &Locator{World: world, Ceiling: DefaultCeiling, Floor: DefaultFloor, Fallback: DefaultFallback}
}

// FindGroundLevel scans the column at (x,z) from the ceiling down and returns
// one above the first solid cell. A column with no solid cell yields Fallback.
// Any query error aborts the scan.
func (l *Locator) FindGroundLevel(ctx context.Context, x, z int) (int, error) {
	if l.World == nil {
		return 0, fmt.Errorf("find ground at %d,%d: no world", x, z)
	}
	for y := l.Ceiling; y >= l.Floor; y-- {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("find ground at %d,%d: %w", x, z, err)
		}
		b, err := l.World.BlockAt(ctx, x, y, z)
		if err != nil {
			return 0, fmt.Errorf("find ground at %d,%d,%d: %w", x, y, z, err)
		}
		if b.Solid {
			return y + 1, nil
		}
	}
	return l.Fallback, nil
}
