package stages

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chenyuyou/shifting-work-hours/internal/batch"
	"github.com/chenyuyou/shifting-work-hours/internal/catalog"
	"github.com/chenyuyou/shifting-work-hours/internal/grid"
	"github.com/chenyuyou/shifting-work-hours/internal/wbgt"
)

// indexVariables are the model outputs one index unit consumes. Indoor
// WBGT needs the first three; outdoor additionally needs wind and
// irradiance.
var indexVariables = []string{"tas", "tasmax", "hurs", "sfcWind", "rsds"}

// Index computes indoor and outdoor WBGT for one model/scenario/year from
// the clipped inputs. One unit covers one year: all five variables are
// loaded together, sanitized, and reduced to two artifacts (indoor and
// outdoor index files).
type Index struct {
	inputRoot  string
	outputRoot string
}

func NewIndex(inputRoot, outputRoot string) *Index {
	return &Index{
		inputRoot:  inputRoot,
		outputRoot: outputRoot,
	}
}

func (s *Index) Name() string { return "index" }

func (s *Index) Enumerate(ctx context.Context) ([]batch.Unit, error) {
	files, err := walkTree(s.inputRoot)
	if err != nil {
		return nil, err
	}

	// Group variable files by model/scenario/year.
	groups := make(map[string]map[string]string)
	for _, f := range files {
		key := fmt.Sprintf("%s/%s/%d", f.Model, f.Scenario, f.Year)
		if groups[key] == nil {
			groups[key] = make(map[string]string)
		}
		groups[key][f.Variable] = f.Path
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	units := make([]batch.Unit, 0, len(keys))
	for _, key := range keys {
		meta := map[string]string{}
		for variable, path := range groups[key] {
			meta[variable] = path
		}
		units = append(units, batch.Unit{
			ID:     key,
			Target: filepath.Join(s.outputRoot, filepath.FromSlash(key)),
			Meta:   meta,
		})
	}
	return units, nil
}

func (s *Index) Process(ctx context.Context, unit batch.Unit) error {
	var missing []string
	for _, variable := range indexVariables {
		if unit.Meta[variable] == "" {
			missing = append(missing, variable)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing input variables %s", unit.ID, strings.Join(missing, ", "))
	}

	base, err := grid.ReadFile(unit.Meta["tas"])
	if err != nil {
		return fmt.Errorf("read tas: %w", err)
	}
	for _, variable := range indexVariables[1:] {
		d, err := grid.ReadFile(unit.Meta[variable])
		if err != nil {
			return fmt.Errorf("read %s: %w", variable, err)
		}
		v, ok := d.Var(variable)
		if !ok {
			return fmt.Errorf("%s: file does not carry variable %s", unit.ID, variable)
		}
		if len(d.Time) != len(base.Time) || d.CellsPerStep() != base.CellsPerStep() {
			return fmt.Errorf("%s: %s grid does not match tas grid", unit.ID, variable)
		}
		if err := base.AddVar(v.Name, v.Units, v.LongName, v.Data); err != nil {
			return err
		}
	}

	wbgt.Preprocess(base)

	model, scenario, year, err := splitIndexID(unit.ID)
	if err != nil {
		return err
	}

	indoor, outdoor := computeIndices(base)

	outDir := filepath.Join(s.outputRoot, model, scenario, catalog.Realization)
	indoorPath := filepath.Join(outDir, "indoor",
		fmt.Sprintf("indoor_wbgt_day_%s_%s_%s_%s.grd", model, scenario, catalog.Realization, year))
	outdoorPath := filepath.Join(outDir, "outdoor",
		fmt.Sprintf("outdoor_wbgt_day_%s_%s_%s_%s.grd", model, scenario, catalog.Realization, year))

	if err := grid.WriteFile(indoorPath, indoor); err != nil {
		return fmt.Errorf("write indoor index: %w", err)
	}
	if err := grid.WriteFile(outdoorPath, outdoor); err != nil {
		return fmt.Errorf("write outdoor index: %w", err)
	}
	return nil
}

func splitIndexID(id string) (model, scenario, year string, err error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed index unit id %q", id)
	}
	return parts[0], parts[1], parts[2], nil
}

// computeIndices evaluates both WBGT families cell by cell. NaN in any
// input yields NaN in every derived value for that cell.
func computeIndices(d *grid.Dataset) (indoor, outdoor *grid.Dataset) {
	tas, _ := d.Var("tas")
	tasmax, _ := d.Var("tasmax")
	hurs, _ := d.Var("hurs")
	wind, _ := d.Var("sfcWind")
	rsds, _ := d.Var("rsds")

	size := len(tas.Data)
	idMin := make([]float64, size)
	idMax := make([]float64, size)
	idHalf := make([]float64, size)
	odMin := make([]float64, size)
	odMax := make([]float64, size)
	odHalf := make([]float64, size)

	for t := range d.Time {
		doy := time.Unix(d.Time[t]*86400, 0).UTC().YearDay()
		for y, lat := range d.Lat {
			for x, lon := range d.Lon {
				i := d.Index(t, y, x)
				tk, txk, rh := tas.Data[i], tasmax.Data[i], hurs.Data[i]
				if math.IsNaN(tk) || math.IsNaN(txk) || math.IsNaN(rh) {
					idMin[i], idMax[i], idHalf[i] = math.NaN(), math.NaN(), math.NaN()
					odMin[i], odMax[i], odHalf[i] = math.NaN(), math.NaN(), math.NaN()
					continue
				}

				in := wbgt.IndoorWBGT(tk-273.15, txk-273.15, rh)
				idMin[i], idMax[i], idHalf[i] = in.Min, in.Max, in.Half

				ws, sol := wind.Data[i], rsds.Data[i]
				if math.IsNaN(ws) || math.IsNaN(sol) {
					odMin[i], odMax[i], odHalf[i] = math.NaN(), math.NaN(), math.NaN()
					continue
				}
				out := wbgt.OutdoorWBGT(tk, txk, rh, ws, sol, doy, lat, lon)
				odMin[i], odMax[i], odHalf[i] = out.Min, out.Max, out.Half
			}
		}
	}

	indoor = grid.New(d.Time, d.Lat, d.Lon)
	indoor.AddVar("WBGTmin_id", "degC", "Indoor Wet Bulb Globe Temperature (daily min)", idMin)
	indoor.AddVar("WBGTmax_id", "degC", "Indoor Wet Bulb Globe Temperature (daily max)", idMax)
	indoor.AddVar("WBGThalf_id", "degC", "Indoor Wet Bulb Globe Temperature (daily mid)", idHalf)

	outdoor = grid.New(d.Time, d.Lat, d.Lon)
	outdoor.AddVar("WBGTmin_od", "degC", "Outdoor Wet Bulb Globe Temperature (daily min)", odMin)
	outdoor.AddVar("WBGTmax_od", "degC", "Outdoor Wet Bulb Globe Temperature (daily max)", odMax)
	outdoor.AddVar("WBGThalf_od", "degC", "Outdoor Wet Bulb Globe Temperature (daily mid)", odHalf)
	return indoor, outdoor
}
