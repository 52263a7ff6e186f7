package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := OpenFileStorage(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	_, ok := s.Get(KeyWasInAdmin)
	assert.False(t, ok)

	// Removing absent keys does not create the file.
	require.NoError(t, s.Remove(KeyAdminToken))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStorage_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := OpenFileStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(KeyAdminUsername, "root"))
	require.NoError(t, s.Set(KeyAdminToken, "tok"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := OpenFileStorage(path)
	require.NoError(t, err)
	v, ok := again.Get(KeyAdminUsername)
	assert.True(t, ok)
	assert.Equal(t, "root", v)

	require.NoError(t, again.Remove(KeyAdminUsername, KeyAdminToken))
	third, err := OpenFileStorage(path)
	require.NoError(t, err)
	_, ok = third.Get(KeyAdminToken)
	assert.False(t, ok)
}

func TestFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := OpenFileStorage(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing state file")
}

func TestFileStorage_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	s, err := OpenFileStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", "v"))
}

func TestFileStorage_WithTracker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := OpenFileStorage(path)
	require.NoError(t, err)
	tr, rec := newTestTracker(s)
	ctx := context.Background()

	ev, err := tr.Navigate(ctx, "/admin/properties")
	require.NoError(t, err)
	assert.Equal(t, EnteredAdmin, ev)
	require.NoError(t, s.Set(KeyAdminToken, "tok"))

	// A later run starts with a fresh tracker but the same file.
	reopened, err := OpenFileStorage(path)
	require.NoError(t, err)
	tr2, rec2 := newTestTracker(reopened)
	ev, err = tr2.Navigate(ctx, "/properties")
	require.NoError(t, err)
	assert.Equal(t, LeftAdmin, ev)
	assert.Equal(t, 1, rec2.logouts)
	assert.Zero(t, rec.logouts)

	_, ok := reopened.Get(KeyAdminToken)
	assert.False(t, ok)
}
