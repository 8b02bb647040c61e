// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Builder accumulates entries in memory and serializes them once into
// a byte-exact archive for a target platform. Builds are
// deterministic: identical entries, order and policy produce identical
// bytes.
type Builder struct {
	platform    Platform
	policy      Policy
	registry    *Registry
	strict      bool
	archiveName string
	workers     int

	entries []pendingEntry
	seen    map[string]string // normalized path -> path as added
}

type pendingEntry struct {
	path string
	data []byte
}

// NewBuilder returns a builder targeting the given platform. The
// policy's codec is resolved per platform: PC builds are forced to
// store regardless of the request.
func NewBuilder(platform Platform, policy Policy) *Builder {
	return &Builder{
		platform: platform,
		policy:   policy,
		registry: NewRegistry(),
		workers:  runtime.GOMAXPROCS(0),
		seen:     make(map[string]string),
	}
}

// SetRegistry replaces the codec registry used for compression (and
// for strict-mode re-validation).
func (b *Builder) SetRegistry(r *Registry) { b.registry = r }

// SetStrict toggles strict mode: after serializing, the archive is
// re-opened and every entry re-read and compared against its input.
// Any mismatch fails the build before anything reaches disk.
func (b *Builder) SetStrict(strict bool) { b.strict = strict }

// SetArchiveName sets the archive name hashed into the name table's
// index record. The engine derives it from the pak file name.
func (b *Builder) SetArchiveName(name string) { b.archiveName = name }

// SetWorkers bounds the number of chunks compressed concurrently.
func (b *Builder) SetWorkers(n int) {
	if n > 0 {
		b.workers = n
	}
}

// Add appends an entry. Paths are kept as given; collisions are
// detected on the normalized form, which is what the engine hashes.
func (b *Builder) Add(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("empty archive path")
	}
	if strings.ContainsAny(path, "\r\n") {
		return fmt.Errorf("archive path %q contains line breaks", path)
	}

	norm := NormalizePath(path)
	if _, ok := b.seen[norm]; ok {
		return &PathCollisionError{Path: path}
	}
	b.seen[norm] = path

	b.entries = append(b.entries, pendingEntry{path: path, data: data})
	return nil
}

// AddFile reads srcPath from disk and adds it under archivePath.
func (b *Builder) AddFile(srcPath, archivePath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read file %s: %w", srcPath, err)
	}
	return b.Add(archivePath, data)
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int { return len(b.entries) }

// Build serializes the archive and returns its bytes.
func (b *Builder) Build() ([]byte, error) {
	codec, err := b.policy.resolve(b.platform)
	if err != nil {
		return nil, err
	}
	compressed := codec != CodecStore

	// Name table first, then every payload, each padded to 0x10 in
	// the decompressed stream. Offsets fall out as the running sum.
	paths := make([]string, len(b.entries))
	for i, e := range b.entries {
		paths[i] = e.path
	}
	nameTable := encodeNameTable(paths)

	records := make([]fileRecord, len(b.entries)+1)
	records[0] = fileRecord{Hash: hashPath(b.archiveName), Size: uint64(len(nameTable))}

	cursor := alignUp(uint64(len(nameTable)))
	for i, e := range b.entries {
		records[i+1] = fileRecord{Hash: hashPath(e.path), Offset: cursor, Size: uint64(len(e.data))}
		cursor += alignUp(uint64(len(e.data)))
	}

	chunkSize := b.platform.ChunkSize()
	chunkCount := chunkSpan(cursor, chunkSize)

	dataOffset := uint64(headerSize) + uint64(len(records))*fileRecordSize
	if compressed {
		dataOffset += chunkCount * 8
	}
	pad := padOf(dataOffset)
	dataOffset += pad

	for i := range records {
		records[i].Offset += dataOffset
	}

	hdr := fileHeader{
		Version:    formatVersion,
		FileCount:  uint64(len(records)),
		ChunkCount: chunkCount,
		Compressed: compressed,
		DataOffset: dataOffset,
	}

	// Materialize the decompressed stream, zero-padded to a whole
	// number of chunks.
	stream := make([]byte, chunkCount*chunkSize)
	copy(stream, nameTable)
	for i, e := range b.entries {
		copy(stream[records[i+1].Offset-dataOffset:], e.data)
	}

	var buf bytes.Buffer
	buf.Write(encodeHeader(hdr))
	buf.Write(encodeFileIndex(records))

	if !compressed {
		buf.Write(make([]byte, pad))
		buf.Write(stream)
	} else {
		chunks, sizes, err := b.compressChunks(codec, stream, chunkSize, chunkCount)
		if err != nil {
			return nil, err
		}

		buf.Write(encodeChunkIndex(sizes))
		buf.Write(make([]byte, pad))
		for _, chunk := range chunks {
			buf.Write(chunk)
			buf.Write(make([]byte, padOf(uint64(len(chunk)))))
		}
	}

	out := buf.Bytes()

	if b.strict {
		if err := b.verify(out, codec); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// compressChunks compresses each chunk of the stream independently.
// Per-chunk work runs on a bounded pool; the chunk order (and with it
// the layout) stays that of the stream. A chunk whose compressed form
// would not be smaller than the chunk size is stored raw, with its
// recorded size equal to the chunk size.
func (b *Builder) compressChunks(codec CodecID, stream []byte, chunkSize, chunkCount uint64) ([][]byte, []uint64, error) {
	chunks := make([][]byte, chunkCount)
	sizes := make([]uint64, chunkCount)

	var g errgroup.Group
	g.SetLimit(b.workers)

	for i := uint64(0); i < chunkCount; i++ {
		i := i
		g.Go(func() error {
			raw := stream[i*chunkSize : (i+1)*chunkSize]

			packed, err := b.registry.Compress(codec, raw)
			if err != nil && !IsIncompressible(err) {
				return fmt.Errorf("compress chunk %d: %w", i, err)
			}
			if err != nil || uint64(len(packed)) >= chunkSize {
				chunks[i] = raw
				sizes[i] = chunkSize
				return nil
			}

			chunks[i] = packed
			sizes[i] = uint64(len(packed))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return chunks, sizes, nil
}

// verify re-opens the serialized archive and re-reads every entry,
// comparing the decompressed bytes against the original inputs.
func (b *Builder) verify(out []byte, codec CodecID) error {
	name := b.archiveName
	if name == "" {
		name = "built archive"
	}

	a, err := OpenReader(bytes.NewReader(out), int64(len(out)), b.platform,
		WithCodec(codec), WithRegistry(b.registry), WithName(name))
	if err != nil {
		return &BuildInconsistencyError{Path: nameTablePath, Reason: err.Error()}
	}

	for _, e := range b.entries {
		got, err := a.ReadFile(e.path)
		if err != nil {
			return &BuildInconsistencyError{Path: e.path, Reason: err.Error()}
		}
		if !bytes.Equal(got, e.data) {
			return &BuildInconsistencyError{Path: e.path, Reason: "content differs after round trip"}
		}
	}

	return nil
}

// WriteFile builds the archive and writes it to path. The bytes go to
// a temporary file in the destination directory and are renamed into
// place only on full success, so an interrupted build never leaves a
// truncated archive under its final name.
func (b *Builder) WriteFile(path string) error {
	if b.archiveName == "" {
		b.archiveName = filepath.Base(path)
	}

	out, err := b.Build()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "hgpak_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close archive: %w", err)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod archive: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save archive: %w", err)
	}

	return nil
}
