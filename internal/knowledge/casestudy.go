package knowledge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCaseStudyCSV indicates no simulation results file exists for the
// requested climate scenario year.
var ErrNoCaseStudyCSV = errors.New("no case study CSV found")

// caseStudyFilePatterns are the simulation export naming conventions seen
// across dataset versions, tried in order.
var caseStudyFilePatterns = []string{
	"%d_merged_simulation_results.csv",
	"simulation_results_%d.csv",
	"%d.csv",
}

// FindCaseStudyCSV locates the simulation results file for a climate
// scenario year inside dir.
func FindCaseStudyCSV(dir string, timeHorizon int) (string, error) {
	for _, pattern := range caseStudyFilePatterns {
		path := filepath.Join(dir, fmt.Sprintf(pattern, timeHorizon))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: year %d in %s", ErrNoCaseStudyCSV, timeHorizon, dir)
}

// ReadCaseStudies parses a simulation results CSV into knowledge documents,
// one per scenario row.
func ReadCaseStudies(path string, timeHorizon int) ([]Document, error) {
	f, err := os.Open(path) // #nosec G304 -- paths come from the configured inputs dir
	if err != nil {
		return nil, fmt.Errorf("open case study CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	source := filepath.Base(path)

	docs := make([]Document, 0, len(records)-1)
	for idx, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[strings.TrimSpace(col)] = strings.TrimSpace(record[i])
			}
		}

		simID := field(row, "Simulation ID", "simulation_id")
		if simID == "" {
			simID = fmt.Sprintf("%d", idx)
		}

		docs = append(docs, Document{
			ID:         fmt.Sprintf("case_%d_%d", timeHorizon, idx),
			Collection: CaseStudyCollection(timeHorizon),
			Content:    caseStudyText(row, timeHorizon),
			Metadata: map[string]string{
				"time_horizon":  fmt.Sprintf("%d", timeHorizon),
				"simulation_id": simID,
				"windows_U":     field(row, "windows_U_Factor", "Windows U-Factor"),
				"source":        source,
			},
		})
	}
	return docs, nil
}

// caseStudyText renders one scenario row as natural language so it embeds
// alongside the documentation prose.
func caseStudyText(row map[string]string, timeHorizon int) string {
	simID := field(row, "Simulation ID", "simulation_id")
	if simID == "" {
		simID = "unknown"
	}
	windowsU := fieldOrZero(row, "windows_U_Factor", "Windows U-Factor")
	groundR := fieldOrZero(row, "groundfloor_thermal_resistance", "Ground Floor Thermal Resistance")
	wallsR := fieldOrZero(row, "ext_walls_thermal_resistance", "External Walls Thermal Resistance")
	roofR := fieldOrZero(row, "roof_thermal_resistance", "Roof Thermal Resistance")

	return fmt.Sprintf(`Building retrofit scenario %s:
Climate scenario: %d
Design variables:
- Windows U-Factor: %s W/m²K
- Ground floor thermal resistance: %s m²K/W
- External walls thermal resistance: %s m²K/W
- Roof thermal resistance: %s m²K/W`,
		simID, timeHorizon, windowsU, groundR, wallsR, roofR)
}

// field returns the first non-empty value among alternative column names.
func field(row map[string]string, names ...string) string {
	for _, name := range names {
		if v := row[name]; v != "" {
			return v
		}
	}
	return ""
}

func fieldOrZero(row map[string]string, names ...string) string {
	if v := field(row, names...); v != "" {
		return v
	}
	return "0"
}
