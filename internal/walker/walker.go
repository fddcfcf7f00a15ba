// Package walker enumerates the regular files under a directory tree in a
// deterministic order. Its scan-then-sort shape is adapted from the
// directory-walking style in edward-ap-class-collector's
// internal/walkwalk/fswalk.go (consulted for this component since the
// teacher, systemshift-memex-fs, addresses a virtual FUSE tree rather than
// a real filesystem scan).
package walker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/quietridge/merklesentry/internal/apperr"
)

// Symlinks are never followed: a symlink entry — file or directory — is
// skipped outright. This is the Open Question resolution recorded in
// SPEC_FULL.md §9: it keeps a single build's cost bounded and avoids cycles,
// at the cost of silently omitting symlinked content from the tree.
const followSymlinks = false

// Walk recursively enumerates the regular files under root and returns their
// absolute paths sorted lexicographically, the sort order leaf position in
// the tree depends on (§5 of SPEC_FULL.md). If batchLimit > 0, the result is
// truncated to the first batchLimit entries after sorting; truncated
// reports whether that happened, so callers can log a warning.
func Walk(root string, batchLimit int) (paths []string, truncated bool, err error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, false, apperr.New(apperr.KindIO, "walker.Walk", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, false, apperr.New(apperr.KindIO, "walker.Walk", err)
	}
	if !info.IsDir() {
		return nil, false, apperr.New(apperr.KindIO, "walker.Walk", fmt.Errorf("%s is not a directory", abs))
	}

	var files []string
	walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if isSymlink(d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, ferr := d.Info()
		if ferr != nil || !fi.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		return nil, false, apperr.New(apperr.KindIO, "walker.Walk", walkErr)
	}

	sort.Strings(files)

	if len(files) == 0 {
		return nil, false, apperr.New(apperr.KindEmpty, "walker.Walk", fmt.Errorf("no files discovered under %s", abs))
	}

	if batchLimit > 0 && len(files) > batchLimit {
		return files[:batchLimit], true, nil
	}
	return files, false, nil
}

func isSymlink(d fs.DirEntry) bool {
	return !followSymlinks && d.Type()&fs.ModeSymlink != 0
}
