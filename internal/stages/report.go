package stages

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chenyuyou/shifting-work-hours/internal/batch"
	"github.com/chenyuyou/shifting-work-hours/internal/grid"
	"github.com/chenyuyou/shifting-work-hours/internal/wbgt"
)

// Report aggregates masked WBGT indices into one productivity-loss CSV per
// model/scenario: for every year, intensity class, and daily metric, the
// loss fraction is evaluated per cell and day, time-averaged, then averaged
// over the region's unmasked cells. The per-metric means are then combined
// into working-day losses under the baseline hour split and the
// sunrise-shifted split, with the difference quantifying what shifting the
// schedule buys.
type Report struct {
	inputRoot  string
	outputRoot string
	shifted    wbgt.HourWeights
}

func NewReport(inputRoot, outputRoot string, sunriseHour int) *Report {
	return &Report{
		inputRoot:  inputRoot,
		outputRoot: outputRoot,
		shifted:    wbgt.ShiftedWeights(sunriseHour),
	}
}

func (r *Report) Name() string { return "report" }

// yearFiles maps year -> indoor/outdoor artifact paths.
type yearFiles struct {
	indoor  string
	outdoor string
}

func (r *Report) Enumerate(ctx context.Context) ([]batch.Unit, error) {
	files, err := walkTree(r.inputRoot)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]bool)
	for _, f := range files {
		groups[f.Model+"/"+f.Scenario] = true
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	units := make([]batch.Unit, 0, len(keys))
	for _, key := range keys {
		model, scenario, _ := strings.Cut(key, "/")
		units = append(units, batch.Unit{
			ID: key,
			Target: filepath.Join(r.outputRoot,
				fmt.Sprintf("productivity_loss_%s_%s.csv", model, scenario)),
		})
	}
	return units, nil
}

func (r *Report) Process(ctx context.Context, unit batch.Unit) error {
	model, scenario, ok := strings.Cut(unit.ID, "/")
	if !ok {
		return fmt.Errorf("malformed report unit id %q", unit.ID)
	}

	files, err := walkTree(r.inputRoot)
	if err != nil {
		return err
	}

	years := make(map[int]*yearFiles)
	for _, f := range files {
		if f.Model != model || f.Scenario != scenario {
			continue
		}
		if years[f.Year] == nil {
			years[f.Year] = &yearFiles{}
		}
		switch f.Variable {
		case "indoor":
			years[f.Year].indoor = f.Path
		case "outdoor":
			years[f.Year].outdoor = f.Path
		}
	}
	if len(years) == 0 {
		return fmt.Errorf("%s: no index files to report on", unit.ID)
	}

	sortedYears := make([]int, 0, len(years))
	for year := range years {
		sortedYears = append(sortedYears, year)
	}
	sort.Ints(sortedYears)

	rows := [][]string{{"model", "scenario", "year", "intensity", "metric", "loss"}}
	for _, year := range sortedYears {
		yf := years[year]
		if yf.indoor == "" || yf.outdoor == "" {
			return fmt.Errorf("%s year %d: indoor and outdoor indices are both required", unit.ID, year)
		}

		indoor, err := grid.ReadFile(yf.indoor)
		if err != nil {
			return fmt.Errorf("read %s: %w", yf.indoor, err)
		}
		outdoor, err := grid.ReadFile(yf.outdoor)
		if err != nil {
			return fmt.Errorf("read %s: %w", yf.outdoor, err)
		}

		for _, intensity := range wbgt.Intensities {
			d, suffix := indoor, "_id"
			if intensity.UsesOutdoor() {
				d, suffix = outdoor, "_od"
			}
			byMetric := make(map[string]float64, 3)
			for _, metric := range []string{"min", "max", "half"} {
				v, ok := d.Var("WBGT" + metric + suffix)
				if !ok {
					return fmt.Errorf("%s year %d: variable WBGT%s%s missing", unit.ID, year, metric, suffix)
				}
				loss, err := regionalMeanLoss(d, v, intensity)
				if err != nil {
					return err
				}
				byMetric[metric] = loss
				rows = append(rows, []string{
					model, scenario, strconv.Itoa(year),
					string(intensity), metric,
					strconv.FormatFloat(loss, 'f', 6, 64),
				})
			}

			baseline := wbgt.BaselineWeights.Combine(byMetric["min"], byMetric["max"], byMetric["half"])
			shifted := r.shifted.Combine(byMetric["min"], byMetric["max"], byMetric["half"])
			for _, day := range []struct {
				metric string
				loss   float64
			}{
				{"baseline", baseline},
				{"shifted", shifted},
				{"difference", shifted - baseline},
			} {
				rows = append(rows, []string{
					model, scenario, strconv.Itoa(year),
					string(intensity), day.metric,
					strconv.FormatFloat(day.loss, 'f', 6, 64),
				})
			}
		}
	}

	return writeCSV(unit.Target, rows)
}

// regionalMeanLoss evaluates the loss curve per cell and day, averages over
// time per cell ignoring NaN, then averages the surviving cells.
func regionalMeanLoss(d *grid.Dataset, v *grid.Variable, intensity wbgt.Intensity) (float64, error) {
	cells := d.CellsPerStep()
	cellSum := make([]float64, cells)
	cellN := make([]int, cells)

	for t := range d.Time {
		base := t * cells
		for c := 0; c < cells; c++ {
			loss, err := wbgt.ProductivityLoss(v.Data[base+c], intensity)
			if err != nil {
				return 0, err
			}
			if math.IsNaN(loss) {
				continue
			}
			cellSum[c] += loss
			cellN[c]++
		}
	}

	var sum float64
	var n int
	for c := 0; c < cells; c++ {
		if cellN[c] == 0 {
			continue
		}
		sum += cellSum[c] / float64(cellN[c])
		n++
	}
	if n == 0 {
		return math.NaN(), nil
	}
	return sum / float64(n), nil
}

// writeCSV writes rows through a temp file and rename, so an interrupted
// report never leaves a truncated CSV behind.
func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
