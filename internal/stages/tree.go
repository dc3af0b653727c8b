package stages

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chenyuyou/shifting-work-hours/internal/catalog"
	"github.com/chenyuyou/shifting-work-hours/internal/grid"
	"github.com/chenyuyou/shifting-work-hours/pkg/file"
)

// TreeFile is one artifact found in a source tree, with the coordinates
// encoded by its position: model / scenario / realization / variable / file.
type TreeFile struct {
	Model    string
	Scenario string
	Variable string
	Year     int
	Path     string
	Rel      string
}

// walkTree collects every artifact under root, enforcing the fixed nesting
// depth. A data file at the wrong depth means the tree was produced by
// something else entirely, so it aborts rather than guessing.
func walkTree(root string) ([]TreeFile, error) {
	paths, err := file.FindWithExt(root, grid.Ext)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input tree %s does not exist", root)
		}
		return nil, err
	}

	files := make([]TreeFile, 0, len(paths))
	for _, path := range paths {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil, err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 5 {
			return nil, fmt.Errorf("unexpected tree layout: %s is %d levels deep, want model/scenario/%s/variable/file",
				rel, len(parts), catalog.Realization)
		}
		if parts[2] != catalog.Realization {
			return nil, fmt.Errorf("unexpected tree layout: %s has realization %q, want %s",
				rel, parts[2], catalog.Realization)
		}

		year, err := yearFromFilename(parts[4])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}

		files = append(files, TreeFile{
			Model:    parts[0],
			Scenario: parts[1],
			Variable: parts[3],
			Year:     year,
			Path:     path,
			Rel:      rel,
		})
	}
	return files, nil
}

// yearFromFilename extracts the trailing year token, e.g.
// tas_day_CanESM5_SSP245_r1i1p1f1_2047.grd -> 2047.
func yearFromFilename(name string) (int, error) {
	stem := file.Stem(name)
	idx := strings.LastIndex(stem, "_")
	if idx < 0 {
		return 0, fmt.Errorf("filename %s has no year token", name)
	}
	year, err := strconv.Atoi(stem[idx+1:])
	if err != nil || year < 1850 || year > 2300 {
		return 0, fmt.Errorf("filename %s has no valid year token", name)
	}
	return year, nil
}
