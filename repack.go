// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// NewBuilderFromDir returns a builder preloaded with every regular
// file under srcDir, keyed by its slash-separated path relative to
// srcDir. Files are added in sorted path order so rebuilding the same
// tree always yields the same archive.
func NewBuilderFromDir(srcDir string, platform Platform, policy Policy) (*Builder, error) {
	var paths []string
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", srcDir, err)
	}
	sort.Strings(paths)

	b := NewBuilder(platform, policy)
	for _, rel := range paths {
		if err := b.AddFile(filepath.Join(srcDir, filepath.FromSlash(rel)), rel); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Repack packs the tree under srcDir into archive bytes for the given
// platform and policy.
func Repack(srcDir string, platform Platform, policy Policy) ([]byte, error) {
	b, err := NewBuilderFromDir(srcDir, platform, policy)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// RepackFile packs the tree under srcDir and writes the archive to
// dest. The build runs strict: the archive is re-read and compared
// against the source files before anything lands under dest.
func RepackFile(srcDir, dest string, platform Platform, policy Policy) error {
	b, err := NewBuilderFromDir(srcDir, platform, policy)
	if err != nil {
		return err
	}
	b.SetStrict(true)
	b.SetArchiveName(filepath.Base(dest))
	return b.WriteFile(dest)
}
