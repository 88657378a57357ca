package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"fx-signal-lab/internal/domain"
)

// Output file names written by WriteFiles.
const (
	ReportFile     = "REPORT.md"
	SignalsFile    = "signals.csv"
	StatisticsFile = "statistics.csv"
)

// WriteFiles writes the Markdown report and both CSV files to dir and
// returns the written paths.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	stats := make([]*domain.PerformanceStatistics, 0, len(r.PairMetrics)+1)
	if r.Overall != nil {
		stats = append(stats, r.Overall)
	}
	stats = append(stats, r.PairMetrics...)

	files := []struct {
		name    string
		content string
	}{
		{ReportFile, RenderMarkdown(r)},
		{SignalsFile, RenderSignalsCSV(r.Signals)},
		{StatisticsFile, RenderStatisticsCSV(stats)},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
