package region

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/chenyuyou/shifting-work-hours/internal/grid"
)

// MaskCache memoizes rasterized masks per grid shape. Files from the same
// model share one grid, so with several workers masking in parallel the
// polygon scan would otherwise run once per file; singleflight collapses
// the concurrent first lookups into a single computation.
type MaskCache struct {
	polys []Polygon

	mu    sync.RWMutex
	masks map[string][]bool
	group singleflight.Group
}

func NewMaskCache(polys []Polygon) *MaskCache {
	return &MaskCache{
		polys: polys,
		masks: make(map[string][]bool),
	}
}

// Get returns the keep-mask for the dataset's grid, computing it at most
// once per distinct grid shape.
func (c *MaskCache) Get(d *grid.Dataset) ([]bool, error) {
	key := gridKey(d)

	c.mu.RLock()
	mask, ok := c.masks[key]
	c.mu.RUnlock()
	if ok {
		return mask, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		mask := BuildMask(d, c.polys)
		c.mu.Lock()
		c.masks[key] = mask
		c.mu.Unlock()
		return mask, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]bool), nil
}

func gridKey(d *grid.Dataset) string {
	if len(d.Lat) == 0 || len(d.Lon) == 0 {
		return "empty"
	}
	return fmt.Sprintf("%dx%d:%g..%g:%g..%g",
		len(d.Lat), len(d.Lon),
		d.Lat[0], d.Lat[len(d.Lat)-1],
		d.Lon[0], d.Lon[len(d.Lon)-1])
}
