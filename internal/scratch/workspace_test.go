package scratch

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceLifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()

	ws, err := Acquire(fs, "split-")
	require.NoError(t, err)

	exists, err := afero.DirExists(fs, ws.Dir())
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, ws.WriteFile("7.pdf", []byte("first")))
	require.NoError(t, ws.WriteFile("7.pdf", []byte("second")))
	assert.True(t, ws.Exists("7.pdf"))

	data, err := ws.ReadFile("7.pdf")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	require.NoError(t, ws.Release())
	exists, err = afero.DirExists(fs, ws.Dir())
	require.NoError(t, err)
	assert.False(t, exists)

	// 重复释放不报错
	assert.NoError(t, ws.Release())
}

func TestWorkspacesAreIndependent(t *testing.T) {
	fs := afero.NewMemMapFs()

	a, err := Acquire(fs, "split-")
	require.NoError(t, err)
	defer a.Release()
	b, err := Acquire(fs, "split-")
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Dir(), b.Dir())

	require.NoError(t, a.WriteFile("x.pdf", []byte("a")))
	assert.False(t, b.Exists("x.pdf"))
}

func TestWorkspacePathStripsDirectories(t *testing.T) {
	ws, err := Acquire(afero.NewMemMapFs(), "split-")
	require.NoError(t, err)
	defer ws.Release()

	assert.Equal(t, ws.Path("a.pdf"), ws.Path("../../a.pdf"))
}

func TestCreate(t *testing.T) {
	ws, err := Acquire(afero.NewMemMapFs(), "split-")
	require.NoError(t, err)
	defer ws.Release()

	f, err := ws.Create("archive.zip")
	require.NoError(t, err)
	_, err = f.Write([]byte("zip"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := ws.ReadFile("archive.zip")
	require.NoError(t, err)
	assert.Equal(t, "zip", string(data))
}
