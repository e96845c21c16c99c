package harness

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverScenarios(t *testing.T) {
	paths, err := DiscoverScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.True(t, sort.StringsAreSorted(paths))
	for _, p := range paths {
		assert.Equal(t, ".yaml", filepath.Ext(p))
	}
}

func TestDiscoverScenariosMissingDir(t *testing.T) {
	_, err := DiscoverScenarios(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	results, err := RunSuite("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, sr := range results {
		require.NoError(t, sr.Err, sr.Path)
		assert.True(t, sr.Result.Pass, "%s: %v", sr.Path, sr.Result.Errors)
	}
}
