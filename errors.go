// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested path is not present in an
// archive's index.
var ErrNotFound = errors.New("file not found in archive")

// FormatError reports an archive that cannot be parsed: bad magic,
// unsupported version, or an index that does not fit inside the file.
// It is fatal for that archive only; batch operations continue with
// the next one.
type FormatError struct {
	Archive string
	Reason  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s is not a valid HGPAK archive: %s", e.Archive, e.Reason)
}

// CorruptEntryError reports an entry whose payload failed to
// decompress or decompressed to the wrong size. Other entries in the
// same archive remain readable.
type CorruptEntryError struct {
	Archive string
	Path    string
	Err     error
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("corrupt entry %s in %s: %v", e.Path, e.Archive, e.Err)
}

func (e *CorruptEntryError) Unwrap() error { return e.Err }

// CodecUnavailableError reports that the codec required to decode or
// encode data is not registered. It is deliberately distinct from
// CorruptEntryError so callers can tell a missing dependency from a
// damaged file.
type CodecUnavailableError struct {
	Codec CodecID
}

func (e *CodecUnavailableError) Error() string {
	return fmt.Sprintf("codec %s is not available", e.Codec)
}

// PathCollisionError reports two entries that normalize to the same
// path, either inside an archive under construction or as extraction
// targets.
type PathCollisionError struct {
	Path string
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("path collision on %s", e.Path)
}

// BuildInconsistencyError is returned by a strict-mode build when
// re-reading the freshly produced archive does not reproduce an
// entry's original bytes. The archive is discarded before it reaches
// its final path.
type BuildInconsistencyError struct {
	Path   string
	Reason string
}

func (e *BuildInconsistencyError) Error() string {
	return fmt.Sprintf("built archive failed re-validation at %s: %s", e.Path, e.Reason)
}

// EntryError associates a per-entry failure with the entry's archive
// path, for extraction summaries.
type EntryError struct {
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }
