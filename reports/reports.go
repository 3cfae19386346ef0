// Package reports provides report store implementations and ingestion
// helpers.
package reports

import (
	"encoding/json"
	"fmt"
	"os"

	guardowl "github.com/guardowl/guardowl"
)

// LoadFile reads a JSON file containing an array of reports.
func LoadFile(path string) ([]guardowl.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reports file: %w", err)
	}

	var reports []guardowl.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("parsing reports file: %w", err)
	}

	for i, report := range reports {
		if report.ID == "" {
			return nil, fmt.Errorf("report at index %d has no id", i)
		}
		if report.Text == "" {
			return nil, fmt.Errorf("report %s has no text", report.ID)
		}
	}
	return reports, nil
}
