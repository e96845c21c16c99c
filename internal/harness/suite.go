package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoverScenarios lists scenario YAML files under dir, sorted by
// path so suite runs are deterministic.
func DiscoverScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// SuiteResult pairs one scenario with its outcome. Err is set when the
// scenario could not run at all, as opposed to running and failing.
type SuiteResult struct {
	Path     string
	Scenario *Scenario
	Result   *Result
	Err      error
}

// RunSuite loads and executes every scenario under dir.
func RunSuite(dir string) ([]SuiteResult, error) {
	paths, err := DiscoverScenarios(dir)
	if err != nil {
		return nil, err
	}

	results := make([]SuiteResult, 0, len(paths))
	for _, path := range paths {
		sr := SuiteResult{Path: path}
		sr.Scenario, sr.Err = LoadScenario(path)
		if sr.Err == nil {
			sr.Result, sr.Err = Run(sr.Scenario)
		}
		results = append(results, sr)
	}
	return results, nil
}
