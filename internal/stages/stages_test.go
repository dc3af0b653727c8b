package stages

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyuyou/shifting-work-hours/internal/batch"
	"github.com/chenyuyou/shifting-work-hours/internal/catalog"
	"github.com/chenyuyou/shifting-work-hours/internal/grid"
	"github.com/chenyuyou/shifting-work-hours/internal/region"
)

const (
	testModel    = "CanESM5"
	testScenario = "SSP245"
	testYear     = 2050
)

// writeVariableTree writes one .grd file per climate variable into the
// fixed model/scenario/realization/variable nesting.
func writeVariableTree(t *testing.T, root string, lat, lon []float64) {
	t.Helper()

	// Two days in 2050.
	times := []int64{29220, 29221}
	cells := len(times) * len(lat) * len(lon)

	fill := map[string]float64{
		"tas":     302.15,
		"tasmax":  307.15,
		"hurs":    65,
		"sfcWind": 2.5,
		"rsds":    450,
	}
	for variable, value := range fill {
		d := grid.New(times, lat, lon)
		data := make([]float64, cells)
		for i := range data {
			data[i] = value
		}
		require.NoError(t, d.AddVar(variable, "", "", data))

		path := filepath.Join(root, testModel, testScenario, catalog.Realization, variable,
			fmt.Sprintf("%s_day_%s_%s_%s_%d.grd", variable, testModel, testScenario, catalog.Realization, testYear))
		require.NoError(t, grid.WriteFile(path, d))
	}
}

func TestWalkTree_RejectsWrongDepth(t *testing.T) {
	root := t.TempDir()
	d := grid.New([]int64{0}, []float64{0}, []float64{0})
	require.NoError(t, d.AddVar("tas", "", "", []float64{1}))
	require.NoError(t, grid.WriteFile(filepath.Join(root, "stray_2050.grd"), d))

	_, err := walkTree(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tree layout")
}

func TestWalkTree_RejectsWrongRealization(t *testing.T) {
	root := t.TempDir()
	d := grid.New([]int64{0}, []float64{0}, []float64{0})
	require.NoError(t, d.AddVar("tas", "", "", []float64{1}))
	path := filepath.Join(root, testModel, testScenario, "r2i1p1f1", "tas", "tas_2050.grd")
	require.NoError(t, grid.WriteFile(path, d))

	_, err := walkTree(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "realization")
}

func TestWalkTree_ParsesCoordinates(t *testing.T) {
	root := t.TempDir()
	writeVariableTree(t, root, []float64{23}, []float64{113})

	files, err := walkTree(root)
	require.NoError(t, err)
	require.Len(t, files, 5)
	for _, f := range files {
		assert.Equal(t, testModel, f.Model)
		assert.Equal(t, testScenario, f.Scenario)
		assert.Equal(t, testYear, f.Year)
	}
}

func TestYearFromFilename(t *testing.T) {
	year, err := yearFromFilename("tas_day_CanESM5_SSP245_r1i1p1f1_2047.grd")
	require.NoError(t, err)
	assert.Equal(t, 2047, year)

	_, err = yearFromFilename("noyear.grd")
	require.Error(t, err)
	_, err = yearFromFilename("tas_day_weird_99.grd")
	require.Error(t, err)
}

func TestClip_EndToEnd(t *testing.T) {
	ctx := context.Background()
	inRoot, outRoot := t.TempDir(), t.TempDir()
	writeVariableTree(t, inRoot, []float64{10, 23, 40, 60}, []float64{90, 113, 150})

	clip := NewClip(inRoot, outRoot, region.Bounds{LatMin: 15, LatMax: 55, LonMin: 100, LonMax: 140})

	units, err := clip.Enumerate(ctx)
	require.NoError(t, err)
	require.Len(t, units, 5)

	for _, unit := range units {
		require.NoError(t, clip.Process(ctx, unit))
	}

	clipped, err := grid.ReadFile(units[0].Target)
	require.NoError(t, err)
	assert.Equal(t, []float64{23, 40}, clipped.Lat)
	assert.Equal(t, []float64{113}, clipped.Lon)
}

func TestClip_EmptySelectionFails(t *testing.T) {
	ctx := context.Background()
	inRoot, outRoot := t.TempDir(), t.TempDir()
	writeVariableTree(t, inRoot, []float64{23}, []float64{113})

	clip := NewClip(inRoot, outRoot, region.Bounds{LatMin: -50, LatMax: -40, LonMin: 0, LonMax: 10})
	units, err := clip.Enumerate(ctx)
	require.NoError(t, err)

	err = clip.Process(ctx, units[0])
	require.Error(t, err)
}

func TestIndex_EndToEnd(t *testing.T) {
	ctx := context.Background()
	inRoot, outRoot := t.TempDir(), t.TempDir()
	writeVariableTree(t, inRoot, []float64{22, 24}, []float64{112, 114})

	index := NewIndex(inRoot, outRoot)

	units, err := index.Enumerate(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "CanESM5/SSP245/2050", units[0].ID)

	require.NoError(t, index.Process(ctx, units[0]))

	indoorPath := filepath.Join(outRoot, testModel, testScenario, catalog.Realization, "indoor",
		fmt.Sprintf("indoor_wbgt_day_%s_%s_%s_%d.grd", testModel, testScenario, catalog.Realization, testYear))
	indoor, err := grid.ReadFile(indoorPath)
	require.NoError(t, err)

	min, ok := indoor.Var("WBGTmin_id")
	require.True(t, ok)
	max, ok := indoor.Var("WBGTmax_id")
	require.True(t, ok)
	half, ok := indoor.Var("WBGThalf_id")
	require.True(t, ok)

	// 29 degC at 65% RH: indoor WBGT sits in the mid twenties, below the
	// daily-max variant.
	assert.InDelta(t, 25.42, min.Data[0], 0.01)
	assert.Greater(t, max.Data[0], min.Data[0])
	assert.InDelta(t, (min.Data[0]+max.Data[0])/2, half.Data[0], 1e-9)

	outdoorPath := filepath.Join(outRoot, testModel, testScenario, catalog.Realization, "outdoor",
		fmt.Sprintf("outdoor_wbgt_day_%s_%s_%s_%d.grd", testModel, testScenario, catalog.Realization, testYear))
	outdoor, err := grid.ReadFile(outdoorPath)
	require.NoError(t, err)
	odMin, ok := outdoor.Var("WBGTmin_od")
	require.True(t, ok)
	assert.False(t, math.IsNaN(odMin.Data[0]))
	assert.InDelta(t, 25, odMin.Data[0], 8)
}

func TestIndex_MissingVariableFailsUnit(t *testing.T) {
	ctx := context.Background()
	inRoot, outRoot := t.TempDir(), t.TempDir()
	writeVariableTree(t, inRoot, []float64{23}, []float64{113})

	// Remove one required variable.
	require.NoError(t, os.RemoveAll(filepath.Join(inRoot, testModel, testScenario, catalog.Realization, "rsds")))

	index := NewIndex(inRoot, outRoot)
	units, err := index.Enumerate(ctx)
	require.NoError(t, err)
	require.Len(t, units, 1)

	err = index.Process(ctx, units[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rsds")
}

func TestMask_EndToEnd(t *testing.T) {
	ctx := context.Background()
	inRoot, outRoot := t.TempDir(), t.TempDir()
	indexRoot := t.TempDir()
	writeVariableTree(t, inRoot, []float64{22, 50}, []float64{112, 114})

	index := NewIndex(inRoot, indexRoot)
	units, err := index.Enumerate(ctx)
	require.NoError(t, err)
	require.NoError(t, index.Process(ctx, units[0]))

	// Square around the southern cells only.
	polys := []region.Polygon{{
		Name:     "south",
		Vertices: [][2]float64{{110, 20}, {116, 20}, {116, 25}, {110, 25}, {110, 20}},
	}}
	mask := NewMask(indexRoot, outRoot, region.NewMaskCache(polys))

	maskUnits, err := mask.Enumerate(ctx)
	require.NoError(t, err)
	require.Len(t, maskUnits, 2)
	for _, unit := range maskUnits {
		require.NoError(t, mask.Process(ctx, unit))
	}

	masked, err := grid.ReadFile(maskUnits[0].Target)
	require.NoError(t, err)
	v := &masked.Vars[0]
	// lat 22 row kept, lat 50 row voided.
	assert.False(t, math.IsNaN(v.Data[masked.Index(0, 0, 0)]))
	assert.True(t, math.IsNaN(v.Data[masked.Index(0, 1, 0)]))
}

func TestReport_EndToEnd(t *testing.T) {
	ctx := context.Background()
	inRoot, indexRoot, reportRoot := t.TempDir(), t.TempDir(), t.TempDir()
	writeVariableTree(t, inRoot, []float64{22, 24}, []float64{112, 114})

	index := NewIndex(inRoot, indexRoot)
	units, err := index.Enumerate(ctx)
	require.NoError(t, err)
	require.NoError(t, index.Process(ctx, units[0]))

	report := NewReport(indexRoot, reportRoot, 6)
	reportUnits, err := report.Enumerate(ctx)
	require.NoError(t, err)
	require.Len(t, reportUnits, 1)
	assert.Equal(t, "CanESM5/SSP245", reportUnits[0].ID)

	require.NoError(t, report.Process(ctx, reportUnits[0]))

	f, err := os.Open(reportUnits[0].Target)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	// Header plus 1 year x 3 intensities x (3 metrics + 3 working-day rows).
	require.Len(t, rows, 19)
	assert.Equal(t, []string{"model", "scenario", "year", "intensity", "metric", "loss"}, rows[0])

	losses := make(map[string]map[string]float64)
	for _, row := range rows[1:] {
		assert.Equal(t, testModel, row[0])
		assert.Equal(t, "2050", row[2])
		var loss float64
		_, err := fmt.Sscanf(row[5], "%f", &loss)
		require.NoError(t, err)
		if row[4] != "difference" {
			assert.GreaterOrEqual(t, loss, 0.0)
			assert.LessOrEqual(t, loss, 0.9)
		}
		if losses[row[3]] == nil {
			losses[row[3]] = make(map[string]float64)
		}
		losses[row[3]][row[4]] = loss
	}

	// The working-day rows combine the metric means; sunrise 6 moves all
	// peak hours onto the cool half of the day.
	for intensity, m := range losses {
		assert.InDelta(t, 0.25*m["min"]+0.25*m["max"]+0.5*m["half"], m["baseline"], 1e-5, intensity)
		assert.InDelta(t, 0.5*m["min"]+0.5*m["half"], m["shifted"], 1e-5, intensity)
		assert.InDelta(t, m["shifted"]-m["baseline"], m["difference"], 1e-5, intensity)
		assert.LessOrEqual(t, m["difference"], 1e-5, intensity)
	}
}

func TestReport_NoInputsFails(t *testing.T) {
	ctx := context.Background()
	report := NewReport(t.TempDir(), t.TempDir(), 6)

	units, err := report.Enumerate(ctx)
	require.NoError(t, err)
	assert.Empty(t, units)

	err = report.Process(ctx, batch.Unit{ID: "CanESM5/SSP245"})
	require.Error(t, err)
}
