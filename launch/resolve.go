package launch

import (
	"errors"
	"os"
	"path/filepath"
)

const (
	maxWorkingDirDepth = 10
	maxExecutableDepth = 5
)

var ErrProjectRootNotFound = errors.New("project root not found")

// FindProjectRoot looks for manifest in cwd and up to 10 of its ancestors,
// then in exeDir and up to 5 of its ancestors. The first directory holding
// the manifest wins. Either start dir may be empty to skip that search.
func FindProjectRoot(cwd, exeDir, manifest string) (string, error) {
	if cwd != "" {
		if root, ok := searchUpward(cwd, manifest, maxWorkingDirDepth); ok {
			return root, nil
		}
	}
	if exeDir != "" {
		if root, ok := searchUpward(exeDir, manifest, maxExecutableDepth); ok {
			return root, nil
		}
	}
	return "", ErrProjectRootNotFound
}

func searchUpward(start, manifest string, maxDepth int) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		dir = filepath.Clean(start)
	}

	for depth := 0; depth <= maxDepth; depth++ {
		info, err := os.Stat(filepath.Join(dir, manifest))
		if err == nil && !info.IsDir() {
			return dir, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// ResolveExecutable returns the path of a sibling executable of exePath. It
// does not check that the file exists; a missing file surfaces at spawn.
func ResolveExecutable(exePath, name, ext string) string {
	return filepath.Join(filepath.Dir(exePath), name+ext)
}
