package swarm

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFiles(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for p, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func readAllAt(t *testing.T, fh FileHandle, off, n int64) string {
	b, err := io.ReadAll(io.NewSectionReader(fh, off, n))
	require.NoError(t, err)
	return string(b)
}

func TestDiskStorages(t *testing.T) {
	dir := writeTestFiles(t, map[string]string{
		"album/a.txt":     "hello world",
		"album/sub/empty": "",
	})
	info := NewInfo("album", 4, []FileLength{
		{Path: "a.txt", Length: 11},
		{Path: "sub/empty", Length: 0},
	})
	for name, storage := range map[string]Storage{
		"dir":  NewDirStorage(dir),
		"mmap": NewMMapStorage(dir),
	} {
		t.Run(name, func(t *testing.T) {
			fh, err := storage.OpenFile(info.Files[0])
			require.NoError(t, err)
			assert.Equal(t, "world", readAllAt(t, fh, 6, 5))
			require.NoError(t, fh.Close())

			fh, err = storage.OpenFile(info.Files[1])
			require.NoError(t, err)
			assert.Equal(t, "", readAllAt(t, fh, 0, 0))
			require.NoError(t, fh.Close())

			_, err = storage.OpenFile(File{Path: "album/missing", Length: 1})
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}

func TestMMapStorageShortFile(t *testing.T) {
	dir := writeTestFiles(t, map[string]string{"f": "abc"})
	_, err := NewMMapStorage(dir).OpenFile(File{Path: "f", Length: 10})
	assert.Error(t, err)
}

func TestInfoFilesDiff(t *testing.T) {
	info := NewInfo("d", 8, []FileLength{{Path: "x", Length: 3}, {Path: "y/z", Length: 5}})
	want := []File{
		{Name: "x", Path: "d/x", Length: 3, Offset: 0},
		{Name: "z", Path: "d/y/z", Length: 5, Offset: 3},
	}
	if diff := cmp.Diff(want, info.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}
