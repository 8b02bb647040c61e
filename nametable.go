// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import "strings"

// The first file index record of every archive is a pseudo-file: the
// name table, a CRLF-separated list of the archive paths of records
// 1..N-1, with a trailing CRLF. Its index hash is the hash of the
// archive's own name.

// encodeNameTable builds the name table payload for the given paths.
func encodeNameTable(paths []string) []byte {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// parseNameTable splits a name table payload into paths. Position i
// in the result names record i+1 of the file index, so blank lines are
// kept in place; readers skip them without disturbing the mapping.
func parseNameTable(data []byte) []string {
	trimmed := strings.TrimRight(string(data), "\r\n")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\r\n")
}
