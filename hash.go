// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"crypto/md5"
	"strings"
)

// NormalizePath converts a path to the archive's canonical form:
// forward slashes, lower case. File index hashes are computed over the
// canonical form, which is how the game generates them.
func NormalizePath(path string) string {
	return strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
}

// hashPath returns the MD5 hash of the canonical form of path, as
// stored in file index records.
func hashPath(path string) [16]byte {
	return md5.Sum([]byte(NormalizePath(path)))
}
