package grid

import (
	"fmt"
	"math"
)

// Dataset is a gridded time series: one or more variables on a shared
// time / lat / lon grid, time-major. It stands in for the NetCDF-style
// artifacts the pipeline moves between stages.
type Dataset struct {
	// Time holds unix days (days since 1970-01-01).
	Time []int64
	Lat  []float64
	Lon  []float64
	Vars []Variable
}

type Variable struct {
	Name     string
	Units    string
	LongName string
	// Data is len(Time)*len(Lat)*len(Lon) values, time-major.
	Data []float64
}

func New(time []int64, lat, lon []float64) *Dataset {
	return &Dataset{
		Time: time,
		Lat:  lat,
		Lon:  lon,
	}
}

func (d *Dataset) CellsPerStep() int {
	return len(d.Lat) * len(d.Lon)
}

func (d *Dataset) size() int {
	return len(d.Time) * d.CellsPerStep()
}

// AddVar appends a variable; the data length must match the grid shape.
func (d *Dataset) AddVar(name, units, longName string, data []float64) error {
	if len(data) != d.size() {
		return fmt.Errorf("variable %s: %d values, grid wants %d (%d steps x %d cells)",
			name, len(data), d.size(), len(d.Time), d.CellsPerStep())
	}
	d.Vars = append(d.Vars, Variable{
		Name:     name,
		Units:    units,
		LongName: longName,
		Data:     data,
	})
	return nil
}

func (d *Dataset) Var(name string) (*Variable, bool) {
	for i := range d.Vars {
		if d.Vars[i].Name == name {
			return &d.Vars[i], true
		}
	}
	return nil, false
}

// Index converts (time step, lat index, lon index) to a flat offset.
func (d *Dataset) Index(t, y, x int) int {
	return (t*len(d.Lat)+y)*len(d.Lon) + x
}

// Validate checks internal consistency; decoders call it so a malformed
// file is rejected instead of producing out-of-range reads later.
func (d *Dataset) Validate() error {
	if len(d.Time) == 0 || len(d.Lat) == 0 || len(d.Lon) == 0 {
		return fmt.Errorf("grid: empty dimension (time=%d lat=%d lon=%d)",
			len(d.Time), len(d.Lat), len(d.Lon))
	}
	for _, v := range d.Vars {
		if len(v.Data) != d.size() {
			return fmt.Errorf("grid: variable %s has %d values, dimensions want %d",
				v.Name, len(v.Data), d.size())
		}
	}
	return nil
}

// Sel returns the subset of the dataset whose lat/lon coordinates fall
// inside the given bounds (inclusive). Coordinates are assumed ascending.
func (d *Dataset) Sel(latMin, latMax, lonMin, lonMax float64) (*Dataset, error) {
	y0, y1 := coordRange(d.Lat, latMin, latMax)
	x0, x1 := coordRange(d.Lon, lonMin, lonMax)
	if y0 >= y1 || x0 >= x1 {
		return nil, fmt.Errorf("grid: bounds select no cells (lat %g..%g, lon %g..%g)",
			latMin, latMax, lonMin, lonMax)
	}

	out := New(append([]int64(nil), d.Time...),
		append([]float64(nil), d.Lat[y0:y1]...),
		append([]float64(nil), d.Lon[x0:x1]...))

	for _, v := range d.Vars {
		data := make([]float64, 0, len(out.Time)*out.CellsPerStep())
		for t := range d.Time {
			for y := y0; y < y1; y++ {
				row := d.Index(t, y, x0)
				data = append(data, v.Data[row:row+(x1-x0)]...)
			}
		}
		sub := v
		sub.Data = data
		out.Vars = append(out.Vars, sub)
	}
	return out, nil
}

func coordRange(coords []float64, lo, hi float64) (int, int) {
	start := len(coords)
	end := 0
	for i, c := range coords {
		if c >= lo && c <= hi {
			if i < start {
				start = i
			}
			end = i + 1
		}
	}
	if start > end {
		return 0, 0
	}
	return start, end
}

// ApplyMask sets cells where keep is false to NaN, for every time step and
// variable. keep has one entry per (lat, lon) cell.
func (d *Dataset) ApplyMask(keep []bool) error {
	if len(keep) != d.CellsPerStep() {
		return fmt.Errorf("grid: mask has %d cells, grid wants %d", len(keep), d.CellsPerStep())
	}
	cells := d.CellsPerStep()
	for vi := range d.Vars {
		data := d.Vars[vi].Data
		for t := range d.Time {
			base := t * cells
			for c := 0; c < cells; c++ {
				if !keep[c] {
					data[base+c] = math.NaN()
				}
			}
		}
	}
	return nil
}
