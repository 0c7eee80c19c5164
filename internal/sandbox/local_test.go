package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l := NewLocal(Options{})
	_, err := l.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Destroy(context.Background()) })
	return l
}

func TestLocalCreate(t *testing.T) {
	l := newLocal(t)
	root := l.Root()
	require.NotEmpty(t, root)
	assert.Contains(t, filepath.Base(root), "clitutor-sandbox-")

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, KindLocal, l.Kind())
}

func TestLocalCreateReplacesPrevious(t *testing.T) {
	l := newLocal(t)
	first := l.Root()

	second, err := l.Create(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = os.Stat(first)
	assert.True(t, os.IsNotExist(err), "expected previous root to be removed")
}

func TestLocalBeforeCreate(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(Options{})

	assert.Equal(t, "", l.Root())
	assert.False(t, l.FileExists(ctx, "a.txt"))

	_, err := l.ReadFile(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, l.SeedFile(ctx, "a.txt", nil), ErrNotInitialized)
	assert.ErrorIs(t, l.SeedAsset(ctx, "x", ""), ErrNotInitialized)
	assert.False(t, l.HasDirWithFile(ctx))
	assert.False(t, l.FindFileContaining(ctx, "x"))
}

func TestLocalDestroyTwice(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(Options{})
	_, err := l.Create(ctx)
	require.NoError(t, err)
	root := l.Root()

	require.NoError(t, l.Destroy(ctx))
	require.NoError(t, l.Destroy(ctx))

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, "", l.Root())
}

func TestLocalDestroyAlreadyRemoved(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	require.NoError(t, os.RemoveAll(l.Root()))
	assert.NoError(t, l.Destroy(ctx))
}

func TestLocalDestroyFailureKeepsRoot(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	root := l.Root()

	busy := errors.New("device busy")
	l.removeAll = func(string) error { return busy }
	err := l.Destroy(ctx)
	require.ErrorIs(t, err, busy)
	assert.Equal(t, root, l.Root())
	assert.DirExists(t, root)

	l.removeAll = os.RemoveAll
	require.NoError(t, l.Destroy(ctx))
	assert.Equal(t, "", l.Root())
	assert.NoDirExists(t, root)
}

func TestLocalSeedAndRead(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	require.NoError(t, l.SeedFile(ctx, "notes/day1/todo.txt", []byte("buy milk\n")))
	assert.True(t, l.FileExists(ctx, "notes/day1/todo.txt"))
	assert.True(t, l.FileExists(ctx, "notes"))

	data, err := l.ReadFile(ctx, "notes/day1/todo.txt")
	require.NoError(t, err)
	assert.Equal(t, "buy milk\n", string(data))

	_, err = l.ReadFile(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalRejectsEscape(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	assert.ErrorIs(t, l.SeedFile(ctx, "../outside.txt", []byte("x")), ErrOutsideRoot)
	_, err := l.ReadFile(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)
	assert.False(t, l.FileExists(ctx, "../"))
}

func TestLocalReset(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	require.NoError(t, l.SeedFile(ctx, "a.txt", []byte("a")))

	root, err := l.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, root, l.Root())
	assert.False(t, l.FileExists(ctx, "a.txt"))
}

func TestSeedFiles(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	require.NoError(t, SeedFiles(ctx, l, []string{"a.txt:hello:world", "empty.txt"}))

	data, err := l.ReadFile(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello:world", string(data))

	data, err = l.ReadFile(ctx, "empty.txt")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLocalSeedAsset(t *testing.T) {
	ctx := context.Background()
	assets := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(assets, "fleet.log"), []byte("ERROR disk\n"), 0o640))

	l := NewLocal(Options{AssetsDir: assets})
	_, err := l.Create(ctx)
	require.NoError(t, err)
	defer l.Destroy(ctx)

	require.NoError(t, l.SeedAsset(ctx, "fleet.log", "logs/app.log"))
	data, err := l.ReadFile(ctx, "logs/app.log")
	require.NoError(t, err)
	assert.Equal(t, "ERROR disk\n", string(data))

	require.NoError(t, l.SeedAsset(ctx, "fleet.log", ""))
	assert.True(t, l.FileExists(ctx, "fleet.log"))

	require.NoError(t, l.SeedAsset(ctx, "missing.bin", ""))
	assert.False(t, l.FileExists(ctx, "missing.bin"))
}

func TestLocalHasDirWithFile(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	require.NoError(t, l.SeedFile(ctx, "top.txt", []byte("x")))
	assert.False(t, l.HasDirWithFile(ctx))

	require.NoError(t, os.Mkdir(filepath.Join(l.Root(), "empty"), 0o755))
	assert.False(t, l.HasDirWithFile(ctx))

	require.NoError(t, l.SeedFile(ctx, "docs/readme.md", []byte("x")))
	assert.True(t, l.HasDirWithFile(ctx))
}

func TestLocalFindFileContaining(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	require.NoError(t, l.SeedFile(ctx, "a/b/c.txt", []byte("the secret word")))
	assert.True(t, l.FindFileContaining(ctx, "secret"))
	assert.False(t, l.FindFileContaining(ctx, "absent"))
	assert.False(t, l.FindFileContaining(ctx, ""))
}
