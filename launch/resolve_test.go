package launch

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nestedDir creates root/d1/d2/.../dN and returns it.
func nestedDir(t *testing.T, root string, depth int) string {
	t.Helper()
	dir := root
	for i := 1; i <= depth; i++ {
		dir = filepath.Join(dir, "d"+strconv.Itoa(i))
	}
	require.NoError(t, os.MkdirAll(dir, 0755))
	return dir
}

func writeManifest(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0644))
}

func TestFindProjectRoot_WorkingDirDepths(t *testing.T) {
	t.Parallel()

	for depth := 0; depth <= 12; depth++ {
		t.Run(strconv.Itoa(depth), func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			writeManifest(t, root)
			cwd := nestedDir(t, root, depth)

			found, err := FindProjectRoot(cwd, "", "package.json")
			if depth <= maxWorkingDirDepth {
				require.NoError(t, err)
				assert.Equal(t, root, found)
			} else {
				assert.ErrorIs(t, err, ErrProjectRootNotFound)
				assert.Empty(t, found)
			}
		})
	}
}

func TestFindProjectRoot_NearestWins(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeManifest(t, root)
	inner := nestedDir(t, root, 2)
	writeManifest(t, inner)
	cwd := nestedDir(t, inner, 3)

	found, err := FindProjectRoot(cwd, "", "package.json")
	require.NoError(t, err)
	assert.Equal(t, inner, found)
}

func TestFindProjectRoot_ExecutableFallback(t *testing.T) {
	t.Parallel()

	cwd := t.TempDir()
	for _, depth := range []int{0, 3, maxExecutableDepth} {
		t.Run(strconv.Itoa(depth), func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			writeManifest(t, root)
			exeDir := nestedDir(t, root, depth)

			found, err := FindProjectRoot(cwd, exeDir, "package.json")
			require.NoError(t, err)
			assert.Equal(t, root, found)
		})
	}
}

func TestFindProjectRoot_ExecutableFallbackTooDeep(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeManifest(t, root)
	exeDir := nestedDir(t, root, maxExecutableDepth+1)

	_, err := FindProjectRoot("", exeDir, "package.json")
	assert.ErrorIs(t, err, ErrProjectRootNotFound)
}

func TestFindProjectRoot_IgnoresManifestDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "deck.manifest"), 0755))

	_, err := FindProjectRoot(root, "", "deck.manifest")
	assert.ErrorIs(t, err, ErrProjectRootNotFound)
}

func TestFindProjectRoot_NotFound(t *testing.T) {
	t.Parallel()
	_, err := FindProjectRoot(t.TempDir(), t.TempDir(), "deckhost-no-such-manifest.json")
	assert.ErrorIs(t, err, ErrProjectRootNotFound)
}

func TestResolveExecutable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		exePath string
		name    string
		ext     string
		want    string
	}{
		{filepath.Join("opt", "deck", "deckhost"), "server", "", filepath.Join("opt", "deck", "server")},
		{filepath.Join("opt", "deck", "deckhost.exe"), "server", ".exe", filepath.Join("opt", "deck", "server.exe")},
		{"deckhost", "server", "", "server"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ResolveExecutable(tt.exePath, tt.name, tt.ext))
		})
	}
}
