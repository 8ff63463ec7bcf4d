package offerbook

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBadMakerListInMemory(t *testing.T) {
	t.Parallel()

	list := NewBadMakerList()
	require.False(t, list.IsBad("maker.example"))

	list.Add("maker.example")
	require.True(t, list.IsBad("maker.example"))
	require.Equal(t, []string{"maker.example"}, list.All())
}

func TestBadMakerListPersistsAcrossLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad-makers.json")

	list, err := LoadBadMakerList(path)
	require.NoError(t, err)
	require.False(t, list.IsBad("maker.example"))

	list.Add("maker.example")

	reloaded, err := LoadBadMakerList(path)
	require.NoError(t, err)
	require.True(t, reloaded.IsBad("maker.example"))
}

func TestLoadBadMakerListMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	list, err := LoadBadMakerList(path)
	require.NoError(t, err)
	require.Empty(t, list.All())
}
