package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Realization is the single ensemble member the pipeline works with. It is
// one level of the fixed source-tree nesting:
// model / scenario / realization / variable.
const Realization = "r1i1p1f1"

// Entry describes one remote file listed in the catalog CSV.
type Entry struct {
	Model       string
	Scenario    string
	Variable    string
	Filename    string
	SizeMB      float64
	DownloadURL string
}

// ExpectedSize returns the catalog size in bytes.
func (e Entry) ExpectedSize() int64 {
	return int64(e.SizeMB * 1024 * 1024)
}

// RelPath is the deterministic location of the file below the download
// root. It doubles as the unit identifier for the download stage.
func (e Entry) RelPath() string {
	return filepath.Join(e.Model, e.Scenario, Realization, e.Variable, e.Filename)
}

func (e Entry) LocalPath(root string) string {
	return filepath.Join(root, e.RelPath())
}

var requiredColumns = []string{"model", "scenario", "variable", "filename", "filesize", "download_url"}

// Load parses the catalog CSV. The header row is mandatory; a missing
// required column is a structural error, not something to work around.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

func Parse(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("catalog is missing required column %q", name)
		}
	}

	var entries []Entry
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog line %d: %w", line, err)
		}

		sizeMB, err := parseSizeMB(row[col["filesize"]])
		if err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", line, err)
		}

		entry := Entry{
			Model:       strings.TrimSpace(row[col["model"]]),
			Scenario:    strings.TrimSpace(row[col["scenario"]]),
			Variable:    strings.TrimSpace(row[col["variable"]]),
			Filename:    strings.TrimSpace(row[col["filename"]]),
			SizeMB:      sizeMB,
			DownloadURL: strings.TrimSpace(row[col["download_url"]]),
		}
		if entry.Model == "" || entry.Scenario == "" || entry.Variable == "" || entry.Filename == "" {
			return nil, fmt.Errorf("catalog line %d: empty model/scenario/variable/filename", line)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseSizeMB accepts "123.4" or "123.4 MB" (the catalog export format).
func parseSizeMB(s string) (float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty filesize")
	}
	size, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid filesize %q: %w", s, err)
	}
	return size, nil
}

type FileState string

const (
	StateCompleted  FileState = "completed"
	StatePartial    FileState = "partial"
	StateIncomplete FileState = "incomplete"
)

// Classify compares an on-disk size with the catalog size. Catalog sizes are
// rounded, so a file within tolerancePercent counts as completed.
func Classify(actualSize, expectedSize int64, tolerancePercent float64) FileState {
	diff := actualSize - expectedSize
	if diff < 0 {
		diff = -diff
	}
	if float64(diff) <= float64(expectedSize)*(tolerancePercent/100) {
		return StateCompleted
	}
	if actualSize > 0 {
		return StatePartial
	}
	return StateIncomplete
}
