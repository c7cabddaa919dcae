package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSitesMatch(t *testing.T) {
	sites := DefaultSites()

	site, ok := sites.Match("www.linkedin.com")
	require.True(t, ok)
	assert.Equal(t, "linkedin", site.Name)

	site, ok = sites.Match("UK.Indeed.com")
	require.True(t, ok)
	assert.Equal(t, "indeed", site.Name)

	_, ok = sites.Match("example.com")
	assert.False(t, ok)
	_, ok = sites.Match("")
	assert.False(t, ok)
}

func TestDefaultSitesValid(t *testing.T) {
	require.NoError(t, DefaultSites().Validate())
}

func TestLoadSitesEmptyPathUsesDefaults(t *testing.T) {
	sites, err := LoadSites("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSites(), sites)
}

func TestLoadSitesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	blob := []byte(`sites:
  - name: reed
    hosts: [reed.co.uk]
    selectors:
      - ".job-result-heading__posted-by a"
`)
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	sites, err := LoadSites(path)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	site, ok := sites.Match("www.reed.co.uk")
	require.True(t, ok)
	assert.Equal(t, []string{".job-result-heading__posted-by a"}, site.Selectors)
}

func TestLoadSitesRejectsBadSelector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sites:\n  - name: x\n    hosts: [x.com]\n    selectors: [\"div[\"]\n"), 0o644))

	_, err := LoadSites(path)
	require.Error(t, err)
}

func TestLoadSitesRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sites: []\n"), 0o644))

	_, err := LoadSites(path)
	require.Error(t, err)
}
