package fiber

import (
	"context"
	"fmt"
)

// MemoryCatalog is an in-memory Provider and TargetCatalog. Fiber ids are the
// indexes into Fibers.
type MemoryCatalog struct {
	Fibers Set
	Stars  []Target
}

// NewMemoryCatalog creates a catalog over the given fibers and targets.
func NewMemoryCatalog(fibers Set, targets []Target) *MemoryCatalog {
	return &MemoryCatalog{Fibers: fibers, Stars: targets}
}

func (m *MemoryCatalog) QueryRegion(ctx context.Context, c Coordinate, radius float64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []int64
	for i, f := range m.Fibers {
		if c.Separation(Coordinate{RA: f.RA, Dec: f.Dec}) <= radius {
			ids = append(ids, int64(i))
		}
	}
	return ids, nil
}

func (m *MemoryCatalog) ReadFibers(ctx context.Context, ids []int64) (Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := make(Set, len(ids))
	for i, id := range ids {
		if id < 0 || id >= int64(len(m.Fibers)) {
			return nil, fmt.Errorf("fiber %d does not exist", id)
		}
		set[i] = m.Fibers[id]
	}
	return set, nil
}

func (m *MemoryCatalog) Targets(ctx context.Context) ([]Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Target(nil), m.Stars...), nil
}
