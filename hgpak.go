// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// nameTablePath identifies the archive's name table pseudo-file in
// errors. It is not addressable through the reader API.
const nameTablePath = "(name table)"

// Chunks already decompressed are kept for reuse; files regularly
// share chunks with their neighbors.
const maxCachedChunks = 256

// Entry describes one packed file.
type Entry struct {
	// Path is the file's archive path exactly as stored in the name
	// table.
	Path string

	// Size is the decompressed size in bytes.
	Size uint64

	// Offset is the offset recorded in the file index: an absolute
	// file offset for uncompressed archives, or the data offset plus
	// the position in the decompressed data stream for compressed
	// ones.
	Offset uint64

	// Codec is the codec the entry's chunks decode with.
	Codec CodecID

	// FirstChunk and LastChunk delimit the chunks covering the
	// entry's payload. Both are -1 for uncompressed archives and for
	// empty entries.
	FirstChunk int
	LastChunk  int
}

// Archive is an HGPAK archive opened for reading. Once opened it is an
// immutable view over its source; all methods are safe for concurrent
// use.
type Archive struct {
	src      io.ReaderAt
	size     int64
	name     string
	closer   io.Closer
	platform Platform
	codec    CodecID
	registry *Registry

	hdr          fileHeader
	chunkSize    uint64
	chunkSizes   []uint64
	chunkOffsets []int64

	entries map[string]*Entry
	order   []string

	mu    sync.Mutex
	cache map[int][]byte
}

// OpenOption configures Open and OpenReader.
type OpenOption func(*openConfig)

type openConfig struct {
	registry *Registry
	codec    CodecID
	codecSet bool
	name     string
}

// WithRegistry supplies the codec registry to decode with. By default
// a fresh registry without the Oodle backend is used.
func WithRegistry(r *Registry) OpenOption {
	return func(c *openConfig) { c.registry = r }
}

// WithCodec overrides the codec implied by the platform. The format
// does not record the codec, so archives built with a non-default
// policy need the override to decode.
func WithCodec(id CodecID) OpenOption {
	return func(c *openConfig) {
		c.codec = id
		c.codecSet = true
	}
}

// WithName sets the archive name used in errors, for sources that have
// no path of their own.
func WithName(name string) OpenOption {
	return func(c *openConfig) { c.name = name }
}

// Open opens the archive at path for the given platform.
func Open(path string, platform Platform, opts ...OpenOption) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	a, err := OpenReader(f, info.Size(), platform, append([]OpenOption{WithName(path)}, opts...)...)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f

	return a, nil
}

// OpenReader opens an archive from an arbitrary random-access byte
// source of the given size.
func OpenReader(src io.ReaderAt, size int64, platform Platform, opts ...OpenOption) (*Archive, error) {
	cfg := openConfig{name: "archive"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = NewRegistry()
	}
	if !cfg.codecSet {
		cfg.codec = platform.DefaultCodec()
	}

	a := &Archive{
		src:       src,
		size:      size,
		name:      cfg.name,
		platform:  platform,
		codec:     cfg.codec,
		registry:  cfg.registry,
		chunkSize: platform.ChunkSize(),
		cache:     make(map[int][]byte),
	}
	if err := a.parse(); err != nil {
		return nil, err
	}

	return a, nil
}

// parse decodes the header, file index and chunk index, then builds
// the path index from the name table.
func (a *Archive) parse() error {
	raw, err := a.readAt(0, headerSize)
	if err != nil {
		return &FormatError{Archive: a.name, Reason: "file too small for header"}
	}
	a.hdr, err = parseHeader(raw, a.name)
	if err != nil {
		return err
	}

	if a.hdr.DataOffset > uint64(a.size) {
		return &FormatError{Archive: a.name, Reason: "data offset beyond end of file"}
	}

	indexSize := a.hdr.FileCount * fileRecordSize
	if headerSize+indexSize > uint64(a.size) {
		return &FormatError{Archive: a.name, Reason: "file too small for file index"}
	}
	raw, err = a.readAt(headerSize, int(indexSize))
	if err != nil {
		return &FormatError{Archive: a.name, Reason: "file too small for file index"}
	}
	records, err := parseFileIndex(raw, a.hdr.FileCount, a.name)
	if err != nil {
		return err
	}

	if a.hdr.Compressed {
		if err := a.parseChunks(headerSize + indexSize); err != nil {
			return err
		}
	}

	names, err := a.readNameTable(records[0])
	if err != nil {
		return err
	}

	return a.buildIndex(records, names)
}

// parseChunks decodes the chunk index and derives each chunk's file
// offset: chunks are laid out from the data offset, each padded to a
// 0x10 boundary.
func (a *Archive) parseChunks(indexEnd uint64) error {
	if indexEnd+a.hdr.ChunkCount*8 > uint64(a.size) {
		return &FormatError{Archive: a.name, Reason: "file too small for chunk index"}
	}
	raw, err := a.readAt(int64(indexEnd), int(a.hdr.ChunkCount*8))
	if err != nil {
		return &FormatError{Archive: a.name, Reason: "file too small for chunk index"}
	}
	a.chunkSizes, err = parseChunkIndex(raw, a.hdr.ChunkCount, a.name)
	if err != nil {
		return err
	}

	a.chunkOffsets = make([]int64, len(a.chunkSizes))
	pos := a.hdr.DataOffset
	for i, size := range a.chunkSizes {
		if size == 0 || size > a.chunkSize {
			return &FormatError{Archive: a.name, Reason: fmt.Sprintf("chunk %d has invalid size %d", i, size)}
		}
		if pos+size > uint64(a.size) {
			return &FormatError{Archive: a.name, Reason: fmt.Sprintf("chunk %d extends beyond end of file", i)}
		}
		a.chunkOffsets[i] = int64(pos)
		pos += alignUp(size)
	}

	return nil
}

// readNameTable extracts and decodes the name table pseudo-file
// described by record 0.
func (a *Archive) readNameTable(rec fileRecord) ([]string, error) {
	if rec.Size == 0 {
		return nil, nil
	}

	if !a.hdr.Compressed {
		if rec.Offset+rec.Size > uint64(a.size) {
			return nil, &FormatError{Archive: a.name, Reason: "name table extends beyond end of file"}
		}
		raw, err := a.readAt(int64(rec.Offset), int(rec.Size))
		if err != nil {
			return nil, &FormatError{Archive: a.name, Reason: "name table extends beyond end of file"}
		}
		return parseNameTable(raw), nil
	}

	// The name table starts the decompressed stream, so it occupies
	// the leading chunks.
	span := chunkSpan(rec.Size, a.chunkSize)
	if span > uint64(len(a.chunkSizes)) {
		return nil, &FormatError{Archive: a.name, Reason: "name table extends beyond chunk index"}
	}

	raw := make([]byte, 0, span*a.chunkSize)
	for i := 0; i < int(span); i++ {
		chunk, err := a.decompressChunk(i)
		if err != nil {
			return nil, a.entryError(nameTablePath, err)
		}
		raw = append(raw, chunk...)
	}

	return parseNameTable(raw[:rec.Size]), nil
}

// buildIndex maps name table entries onto file index records. Name i
// describes record i+1.
func (a *Archive) buildIndex(records []fileRecord, names []string) error {
	// Blank lines hold index positions, so they count toward the
	// record mapping even though they name nothing.
	if uint64(len(names)) != a.hdr.FileCount-1 {
		return &FormatError{
			Archive: a.name,
			Reason:  fmt.Sprintf("name table has %d entries, file index has %d", len(names), a.hdr.FileCount-1),
		}
	}

	a.entries = make(map[string]*Entry, len(names))
	a.order = make([]string, 0, len(names))

	streamSize := a.hdr.ChunkCount * a.chunkSize

	for i, name := range names {
		if name == "" {
			continue
		}
		rec := records[i+1]

		if _, ok := a.entries[name]; ok {
			return &FormatError{Archive: a.name, Reason: "duplicate path " + name}
		}

		e := &Entry{
			Path:       name,
			Size:       rec.Size,
			Offset:     rec.Offset,
			Codec:      a.codec,
			FirstChunk: -1,
			LastChunk:  -1,
		}

		if a.hdr.Compressed {
			if rec.Offset < a.hdr.DataOffset {
				return &FormatError{Archive: a.name, Reason: "entry offset before data section: " + name}
			}
			logical := rec.Offset - a.hdr.DataOffset
			if logical+rec.Size > streamSize {
				return &FormatError{Archive: a.name, Reason: "entry extends beyond data stream: " + name}
			}
			if rec.Size > 0 {
				e.FirstChunk = int(logical / a.chunkSize)
				e.LastChunk = int((logical + rec.Size - 1) / a.chunkSize)
			}
		} else if rec.Offset+rec.Size > uint64(a.size) {
			return &FormatError{Archive: a.name, Reason: "entry extends beyond end of file: " + name}
		}

		a.entries[name] = e
		a.order = append(a.order, name)
	}

	return nil
}

// Files returns the archive paths of all entries in index order.
func (a *Archive) Files() []string {
	files := make([]string, len(a.order))
	copy(files, a.order)
	return files
}

// HasFile reports whether the archive contains the given path.
func (a *Archive) HasFile(path string) bool {
	_, ok := a.entries[path]
	return ok
}

// Stat returns the entry for the given path.
func (a *Archive) Stat(path string) (Entry, error) {
	e, ok := a.entries[path]
	if !ok {
		return Entry{}, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return *e, nil
}

// Platform returns the platform the archive was opened as.
func (a *Archive) Platform() Platform { return a.platform }

// Name returns the archive's path or assigned name.
func (a *Archive) Name() string { return a.name }

// ReadFile returns the decompressed content of the entry at path.
// Random access: no other entry is decoded, beyond the chunks the
// entry shares with its neighbors. Corruption in one entry does not
// affect reads of any other.
func (a *Archive) ReadFile(path string) ([]byte, error) {
	e, ok := a.entries[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if e.Size == 0 {
		return []byte{}, nil
	}

	if !a.hdr.Compressed {
		out, err := a.readAt(int64(e.Offset), int(e.Size))
		if err != nil {
			return nil, fmt.Errorf("read %s from %s: %w", path, a.name, err)
		}
		return out, nil
	}

	logical := e.Offset - a.hdr.DataOffset
	out := make([]byte, e.Size)

	for i := e.FirstChunk; i <= e.LastChunk; i++ {
		chunk, err := a.decompressChunk(i)
		if err != nil {
			return nil, a.entryError(path, err)
		}

		chunkStart := uint64(i) * a.chunkSize
		from := max(logical, chunkStart)
		to := min(logical+e.Size, chunkStart+a.chunkSize)
		copy(out[from-logical:], chunk[from-chunkStart:to-chunkStart])
	}

	return out, nil
}

// Hashes returns the uppercase hex MD5 of the content of every entry
// matching the include set (all entries when the set is empty), keyed
// by archive path.
func (a *Archive) Hashes(include []MatchFunc) (map[string]string, error) {
	hashes := make(map[string]string)

	for _, path := range a.order {
		if !matchAny(include, path) {
			continue
		}
		data, err := a.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sum := md5.Sum(data)
		hashes[path] = strings.ToUpper(hex.EncodeToString(sum[:]))
	}

	return hashes, nil
}

// Close releases the underlying file, if the archive owns one.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// decompressChunk returns the decompressed bytes of chunk i. A stored
// size equal to the chunk size marks a raw chunk (a compressed chunk
// is always strictly smaller); anything else decodes through the
// archive's codec. Results are cached.
func (a *Archive) decompressChunk(i int) ([]byte, error) {
	a.mu.Lock()
	if chunk, ok := a.cache[i]; ok {
		a.mu.Unlock()
		return chunk, nil
	}
	a.mu.Unlock()

	raw, err := a.readAt(a.chunkOffsets[i], int(a.chunkSizes[i]))
	if err != nil {
		return nil, fmt.Errorf("read chunk %d: %w", i, err)
	}

	var chunk []byte
	if a.chunkSizes[i] == a.chunkSize {
		chunk = raw
	} else {
		chunk, err = a.registry.Decompress(a.codec, raw, int(a.chunkSize))
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	a.mu.Lock()
	if len(a.cache) >= maxCachedChunks {
		for k := range a.cache {
			delete(a.cache, k)
			break
		}
	}
	a.cache[i] = chunk
	a.mu.Unlock()

	return chunk, nil
}

// entryError classifies a chunk decode failure for the given entry. A
// missing codec stays a CodecUnavailableError; everything else is
// corruption of that entry.
func (a *Archive) entryError(path string, err error) error {
	var unavailable *CodecUnavailableError
	if errors.As(err, &unavailable) {
		return fmt.Errorf("%s in %s: %w", path, a.name, err)
	}
	return &CorruptEntryError{Archive: a.name, Path: path, Err: err}
}

// readAt reads exactly n bytes at off. A zero-length read succeeds
// even at end of file; an empty chunk index sits exactly there.
func (a *Archive) readAt(off int64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := a.src.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}
