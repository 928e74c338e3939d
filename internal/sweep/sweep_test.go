package sweep

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperpolymath/panic-attacker/internal/assail"
)

func writeRepo(t *testing.T, parent, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(parent, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	for path, content := range files {
		full := filepath.Join(dir, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestSweepDiscoversAndRanks(t *testing.T) {
	parent := t.TempDir()
	writeRepo(t, parent, "risky", map[string]string{
		"src/main.rs": "unsafe {\n}\neval(x)\n",
	})
	writeRepo(t, parent, "quiet", map[string]string{
		"lib.rs": "pub fn ok() {}\n",
	})
	// A plain directory without .git is not swept.
	require.NoError(t, os.MkdirAll(filepath.Join(parent, "not-a-repo"), 0o755))

	report, err := Run(context.Background(), Config{
		Directory:   parent,
		Parallelism: 2,
		Analyzer:    assail.Options{},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.ReposScanned)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "risky", report.Results[0].RepoName, "riskiest repo first")
	assert.Greater(t, report.Results[0].WeakPointCount, 0)
	assert.Equal(t, 1, report.ReposWithFindings)
}

func TestSweepFindingsOnly(t *testing.T) {
	parent := t.TempDir()
	writeRepo(t, parent, "quiet", map[string]string{"lib.rs": "pub fn ok() {}\n"})

	report, err := Run(context.Background(), Config{
		Directory:    parent,
		FindingsOnly: true,
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Equal(t, 1, report.ReposScanned)
}

func TestSweepRejectsNonDirectory(t *testing.T) {
	_, err := Run(context.Background(), Config{Directory: "/no/such/dir"}, nil)
	assert.Error(t, err)
}
