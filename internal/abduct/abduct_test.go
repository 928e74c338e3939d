package abduct

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNeighbourhood(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"app.rs":     "fn main() {}\n",
		"app.toml":   "[package]\n",
		"other.rs":   "fn other() {}\n",
		"readme.txt": "notes\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return filepath.Join(dir, "app.rs"), dir
}

func TestScopeDirect(t *testing.T) {
	target, _ := writeNeighbourhood(t)
	report, err := Run(context.Background(), Config{
		Target:     target,
		OutputRoot: t.TempDir(),
		Scope:      ScopeDirect,
	}, nil)
	require.NoError(t, err)
	// app.rs plus its same-stem neighbour app.toml.
	assert.Equal(t, 2, report.SelectedFiles)
	for _, record := range report.Files {
		base := filepath.Base(record.Source)
		assert.Contains(t, []string{"app.rs", "app.toml"}, base)
	}
}

func TestScopeDirectory(t *testing.T) {
	target, _ := writeNeighbourhood(t)
	report, err := Run(context.Background(), Config{
		Target:     target,
		OutputRoot: t.TempDir(),
		Scope:      ScopeDirectory,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, report.SelectedFiles)
}

func TestOriginalsUntouched(t *testing.T) {
	target, dir := writeNeighbourhood(t)
	before, err := os.ReadFile(target)
	require.NoError(t, err)

	_, err = Run(context.Background(), Config{
		Target:          target,
		OutputRoot:      t.TempDir(),
		Scope:           ScopeDirectory,
		LockFiles:       true,
		MtimeOffsetDays: -30,
	}, nil)
	require.NoError(t, err)

	after, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	info, err := os.Stat(filepath.Join(dir, "other.rs"))
	require.NoError(t, err)
	assert.NotEqual(t, os.FileMode(0o444), info.Mode().Perm(), "source permissions must not change")
}

func TestMtimeShiftAndLock(t *testing.T) {
	target, _ := writeNeighbourhood(t)
	report, err := Run(context.Background(), Config{
		Target:          target,
		OutputRoot:      t.TempDir(),
		Scope:           ScopeDirect,
		LockFiles:       true,
		MtimeOffsetDays: -10,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, report.SelectedFiles, report.LockedFiles)
	assert.Equal(t, report.SelectedFiles, report.MtimeShifted)

	for _, record := range report.Files {
		info, err := os.Stat(record.Destination)
		require.NoError(t, err)
		assert.True(t, info.Mode().Perm() == 0o444 || info.Mode().Perm() == 0o555)
		assert.True(t, info.ModTime().Before(time.Now().Add(-9*24*time.Hour)))
	}
}

func TestExecuteInIsolation(t *testing.T) {
	target, _ := writeNeighbourhood(t)
	report, err := Run(context.Background(), Config{
		Target:       target,
		OutputRoot:   t.TempDir(),
		Scope:        ScopeDirect,
		ExecTemplate: []string{"cat", "{file}"},
		ExecTimeout:  5 * time.Second,
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, report.Execution)
	assert.True(t, report.Execution.Success)
	assert.Contains(t, report.Execution.Stdout, "fn main()")
}

func TestExecutionTimeout(t *testing.T) {
	target, _ := writeNeighbourhood(t)
	report, err := Run(context.Background(), Config{
		Target:       target,
		OutputRoot:   t.TempDir(),
		Scope:        ScopeDirect,
		ExecTemplate: []string{"sleep", "5"},
		ExecTimeout:  100 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, report.Execution)
	assert.True(t, report.Execution.TimedOut)
	assert.False(t, report.Execution.Success)
}
