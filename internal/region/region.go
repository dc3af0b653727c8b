package region

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chenyuyou/shifting-work-hours/internal/grid"
)

// Bounds is the rectangular clip window applied before any per-cell work.
type Bounds struct {
	LatMin float64 `json:"lat_min" yaml:"lat_min"`
	LatMax float64 `json:"lat_max" yaml:"lat_max"`
	LonMin float64 `json:"lon_min" yaml:"lon_min"`
	LonMax float64 `json:"lon_max" yaml:"lon_max"`
}

func (b Bounds) Validate() error {
	if b.LatMin >= b.LatMax {
		return fmt.Errorf("region: lat_min %g must be below lat_max %g", b.LatMin, b.LatMax)
	}
	if b.LonMin >= b.LonMax {
		return fmt.Errorf("region: lon_min %g must be below lon_max %g", b.LonMin, b.LonMax)
	}
	return nil
}

// Polygon is a closed ring of (lon, lat) vertices. Only the exterior ring
// of the source geometry is kept; holes are below the grid resolution this
// pipeline runs at.
type Polygon struct {
	Name     string
	Vertices [][2]float64
}

// Contains reports whether the point is inside the polygon, by ray casting.
func (p *Polygon) Contains(lon, lat float64) bool {
	inside := false
	n := len(p.Vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := p.Vertices[i][0], p.Vertices[i][1]
		xj, yj := p.Vertices[j][0], p.Vertices[j][1]
		if (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

type geojsonFile struct {
	Type     string `json:"type"`
	Features []struct {
		Properties map[string]any `json:"properties"`
		Geometry   struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// LoadPolygons reads the exterior rings of every Polygon / MultiPolygon
// feature in a GeoJSON file. A file with no usable feature is a structural
// error: downstream stages cannot mask against nothing.
func LoadPolygons(path string) ([]Polygon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region file: %w", err)
	}

	var doc geojsonFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse region file %s: %w", path, err)
	}

	var polys []Polygon
	for i, feature := range doc.Features {
		name := featureName(feature.Properties, i)
		switch feature.Geometry.Type {
		case "Polygon":
			var rings [][][2]float64
			if err := json.Unmarshal(feature.Geometry.Coordinates, &rings); err != nil {
				return nil, fmt.Errorf("feature %s: %w", name, err)
			}
			if len(rings) == 0 {
				continue
			}
			polys = append(polys, Polygon{Name: name, Vertices: rings[0]})
		case "MultiPolygon":
			var multi [][][][2]float64
			if err := json.Unmarshal(feature.Geometry.Coordinates, &multi); err != nil {
				return nil, fmt.Errorf("feature %s: %w", name, err)
			}
			for _, rings := range multi {
				if len(rings) == 0 {
					continue
				}
				polys = append(polys, Polygon{Name: name, Vertices: rings[0]})
			}
		default:
			return nil, fmt.Errorf("feature %s: unsupported geometry %q", name, feature.Geometry.Type)
		}
	}

	if len(polys) == 0 {
		return nil, fmt.Errorf("region file %s: no polygon features", path)
	}
	return polys, nil
}

func featureName(props map[string]any, index int) string {
	for _, key := range []string{"name", "NAME", "region"} {
		if v, ok := props[key].(string); ok && v != "" {
			return v
		}
	}
	return fmt.Sprintf("feature-%d", index)
}

// BuildMask evaluates every grid cell against the polygons: a cell is kept
// when its center falls inside any of them.
func BuildMask(d *grid.Dataset, polys []Polygon) []bool {
	keep := make([]bool, d.CellsPerStep())
	for y, lat := range d.Lat {
		for x, lon := range d.Lon {
			for i := range polys {
				if polys[i].Contains(lon, lat) {
					keep[y*len(d.Lon)+x] = true
					break
				}
			}
		}
	}
	return keep
}
