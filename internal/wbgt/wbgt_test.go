package wbgt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyuyou/shifting-work-hours/internal/grid"
)

func TestWetBulb(t *testing.T) {
	// Stull (2011) reference point: 20 degC at 50% RH.
	assert.InDelta(t, 13.699, WetBulb(20, 50), 0.001)
	assert.InDelta(t, 31.930, WetBulb(35, 80), 0.001)
}

func TestIndoorWBGT(t *testing.T) {
	got := IndoorWBGT(30, 38, 60)
	assert.InDelta(t, 25.797, got.Min, 0.001)
	assert.InDelta(t, 33.229, got.Max, 0.001)
	assert.InDelta(t, (got.Min+got.Max)/2, got.Half, 1e-9)
}

func TestOutdoorWBGT_HotHumidDay(t *testing.T) {
	// South China summer conditions: 30 degC mean, 35 degC max, 70% RH,
	// light wind, strong insolation.
	got := OutdoorWBGT(303.15, 308.15, 70, 2.0, 500, 196, 23, 113)

	assert.InDelta(t, 26.722, got.Min, 0.01)
	assert.InDelta(t, 31.499, got.Max, 0.01)
	assert.InDelta(t, (got.Min+got.Max)/2, got.Half, 1e-9)
	assert.InDelta(t, 25.491, got.Tnwb, 0.01)
	assert.InDelta(t, 29.391, got.Tg, 0.01)

	// Physical ordering: Tnwb below air temperature, globe above it under
	// strong sun.
	assert.Less(t, got.Tnwb, 30.0)
	assert.Greater(t, got.Tg, 28.0)
}

func TestOutdoorWBGT_CoolDay(t *testing.T) {
	got := OutdoorWBGT(288.15, 293.15, 50, 3.0, 200, 60, 35, 105)
	assert.InDelta(t, 10.613, got.Min, 0.01)
	assert.InDelta(t, 15.152, got.Max, 0.01)
}

func TestOutdoorWBGT_NoSun(t *testing.T) {
	// High latitude in winter with zero irradiance: the globe stays near
	// air temperature.
	got := OutdoorWBGT(275.15, 278.15, 80, 5.0, 0, 15, 60, 100)
	assert.InDelta(t, 0.589, got.Min, 0.01)
	assert.InDelta(t, 3.538, got.Max, 0.01)
	assert.InDelta(t, 0.924, got.Tg, 0.01)
}

func TestPreprocess(t *testing.T) {
	d := grid.New([]int64{0}, []float64{0}, []float64{0, 1, 2, 3})
	require.NoError(t, d.AddVar("tas", "K", "", []float64{290, 150, 340, math.Inf(1)}))
	require.NoError(t, d.AddVar("hurs", "%", "", []float64{50, -3, 104, 100}))
	require.NoError(t, d.AddVar("sfcWind", "m s-1", "", []float64{2, -1, 0, 7}))
	require.NoError(t, d.AddVar("rsds", "W m-2", "", []float64{300, -20, 0, 800}))

	Preprocess(d)

	tas, _ := d.Var("tas")
	assert.Equal(t, 290.0, tas.Data[0])
	assert.True(t, math.IsNaN(tas.Data[1]))
	assert.True(t, math.IsNaN(tas.Data[2]))
	assert.True(t, math.IsNaN(tas.Data[3]))

	hurs, _ := d.Var("hurs")
	assert.Equal(t, 50.0, hurs.Data[0])
	assert.True(t, math.IsNaN(hurs.Data[1]))
	assert.True(t, math.IsNaN(hurs.Data[2]))
	assert.Equal(t, 100.0, hurs.Data[3])

	wind, _ := d.Var("sfcWind")
	assert.Equal(t, []float64{2, 0, 0, 7}, wind.Data)

	rsds, _ := d.Var("rsds")
	assert.Equal(t, []float64{300, 0, 0, 800}, rsds.Data)
}

func TestProductivityLoss(t *testing.T) {
	cases := []struct {
		intensity Intensity
		wbgt      float64
		want      float64
	}{
		{IntensityLow, 33, 0.2244},
		{IntensityMedium, 33, 0.4585},
		{IntensityHigh, 33, 0.6706},
		{IntensityHigh, 25, 0.0252},
	}
	for _, tc := range cases {
		got, err := ProductivityLoss(tc.wbgt, tc.intensity)
		require.NoError(t, err)
		assert.InDelta(t, tc.want, got, 0.001, "%s at %g", tc.intensity, tc.wbgt)
	}
}

func TestProductivityLoss_Edges(t *testing.T) {
	got, err := ProductivityLoss(math.NaN(), IntensityLow)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got))

	got, err = ProductivityLoss(-5, IntensityHigh)
	require.NoError(t, err)
	assert.Zero(t, got)

	_, err = ProductivityLoss(30, Intensity("extreme"))
	require.Error(t, err)
}

func TestProductivityLoss_Monotonic(t *testing.T) {
	for _, intensity := range Intensities {
		prev := -1.0
		for w := 20.0; w <= 45; w += 0.5 {
			got, err := ProductivityLoss(w, intensity)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, prev)
			assert.LessOrEqual(t, got, 0.9)
			prev = got
		}
	}
}
