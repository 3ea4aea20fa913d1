package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureDataDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsureDataDir(".geosnap")
	require.NoError(t, err)

	want, err := filepath.Abs(filepath.Join(tmp, ".geosnap"))
	require.NoError(t, err)
	require.Equal(t, want, got)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}
}

func TestEnsureDataDir_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	first, err := EnsureDataDir(dir)
	require.NoError(t, err)

	second, err := EnsureDataDir(dir)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestEnsureDataDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o660))

	_, err := EnsureDataDir(path)
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestDataFile_JoinsName(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "d")

	p, err := DataFile(dir, "geosnap.db")
	require.NoError(t, err)
	require.Equal(t, "geosnap.db", filepath.Base(p))

	_, err = os.Stat(filepath.Dir(p))
	require.NoError(t, err)
}
