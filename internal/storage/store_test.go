package storage

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperpolymath/panic-attacker/internal/report"
	"github.com/hyperpolymath/panic-attacker/internal/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLatest(t *testing.T) {
	store := openStore(t)
	rep := &types.AssailReport{SchemaVersion: types.SchemaVersion, ProgramPath: "demo"}

	path, err := store.Save(rep, "demo", "assail", report.FormatJSON)
	require.NoError(t, err)
	require.FileExists(t, path)
	assert.Contains(t, path, "assail")
	assert.True(t, strings.HasSuffix(path, "-demo.json"))

	latest, err := store.Latest("demo", "assail")
	require.NoError(t, err)
	assert.Equal(t, path, latest)

	loaded, err := report.LoadAssail(latest)
	require.NoError(t, err)
	assert.Equal(t, "demo", loaded.ProgramPath)
}

func TestLatestReflectsNewestSave(t *testing.T) {
	store := openStore(t)
	rep := &types.AssailReport{SchemaVersion: types.SchemaVersion}

	first, err := store.Save(rep, "proj", "assail", report.FormatJSON)
	require.NoError(t, err)
	second, err := store.Save(rep, "proj", "assail", report.FormatJSON)
	require.NoError(t, err)

	latest, err := store.Latest("proj", "assail")
	require.NoError(t, err)
	assert.Equal(t, second, latest)

	history, err := store.History("proj", "assail", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second, history[0])
	assert.Equal(t, first, history[1])
}

func TestLatestMissing(t *testing.T) {
	store := openStore(t)
	_, err := store.Latest("ghost", "assail")
	assert.Error(t, err)
}

func TestSanitizedTargetNames(t *testing.T) {
	store := openStore(t)
	rep := &types.AssailReport{SchemaVersion: types.SchemaVersion}
	path, err := store.Save(rep, "weird name/with:stuff", "assail", report.FormatJSON)
	require.NoError(t, err)
	require.FileExists(t, path)
	assert.NotContains(t, path[strings.LastIndex(path, "/")+1:], ":")
}

func TestOpenCreatesRoot(t *testing.T) {
	root := t.TempDir() + "/nested/store"
	store, err := Open(root)
	require.NoError(t, err)
	defer store.Close()
	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
