package session

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_PathRejectsTraversal(t *testing.T) {
	m := NewManager(afero.NewMemMapFs(), "/data/sessions")

	for _, id := range []string{"../../etc", "..", "a/b", "", "a b", "a.b"} {
		_, err := m.Path(id)
		assert.ErrorIs(t, err, ErrInvalidSessionID, "id %q", id)
	}
}

func TestManager_PathAcceptsValidID(t *testing.T) {
	m := NewManager(afero.NewMemMapFs(), "/data/sessions")

	p, err := m.Path("abc-123_X")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/sessions", "abc-123_X"), p)

	db, err := m.DBPath("abc-123_X")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/sessions", "abc-123_X", "whatsapp.db"), db)
}

func TestManager_Lifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewManager(fs, "/data/sessions")

	has, err := m.HasSessionData("default")
	require.NoError(t, err)
	assert.False(t, has)

	p, err := m.Create("default")
	require.NoError(t, err)

	has, err = m.HasSessionData("default")
	require.NoError(t, err)
	assert.False(t, has, "empty directory holds no session")

	require.NoError(t, afero.WriteFile(fs, filepath.Join(p, "whatsapp.db"), []byte("x"), 0o600))
	has, err = m.HasSessionData("default")
	require.NoError(t, err)
	assert.False(t, has, "database of an unpaired device is not a session")

	require.NoError(t, m.MarkPaired("default"))
	has, err = m.HasSessionData("default")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, m.Remove("default"))
	has, err = m.HasSessionData("default")
	require.NoError(t, err)
	assert.False(t, has)

	assert.ErrorIs(t, m.Remove("../x"), ErrInvalidSessionID)
	assert.ErrorIs(t, m.MarkPaired("../x"), ErrInvalidSessionID)
}
