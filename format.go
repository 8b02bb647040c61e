// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"bytes"
	"encoding/binary"
)

// HGPAK format constants
const (
	// Magic signature "HGPAK" followed by three zero bytes
	hgpakMagic = "HGPAK"

	// The only format version the game engine produces or accepts
	formatVersion = 2

	// Header size: magic+pad (8), version (8), file count (8),
	// chunk count (8), compressed flag+pad (8), data offset (8)
	headerSize = 0x30

	// File index record size: 16-byte path hash, u64 offset,
	// u64 decompressed size
	fileRecordSize = 0x20

	// Payloads and compressed chunks are aligned to 0x10 bytes
	alignment = 0x10
)

// fileHeader is the fixed 0x30-byte HGPAK header.
type fileHeader struct {
	Version    uint64
	FileCount  uint64
	ChunkCount uint64
	Compressed bool
	DataOffset uint64
}

// fileRecord is one 0x20-byte file index record. Offset is the value
// as stored on disk: an absolute file offset for uncompressed
// archives, or DataOffset plus the offset within the decompressed
// data stream for compressed ones.
type fileRecord struct {
	Hash   [16]byte
	Offset uint64
	Size   uint64
}

// parseHeader decodes and validates the archive header. The name is
// used only for error reporting.
func parseHeader(data []byte, name string) (fileHeader, error) {
	var h fileHeader

	if len(data) < headerSize {
		return h, &FormatError{Archive: name, Reason: "file too small for header"}
	}
	if string(data[:5]) != hgpakMagic {
		return h, &FormatError{Archive: name, Reason: "bad magic"}
	}

	h.Version = binary.LittleEndian.Uint64(data[0x08:])
	h.FileCount = binary.LittleEndian.Uint64(data[0x10:])
	h.ChunkCount = binary.LittleEndian.Uint64(data[0x18:])
	h.Compressed = data[0x20] != 0
	h.DataOffset = binary.LittleEndian.Uint64(data[0x28:])

	if h.Version != formatVersion {
		return h, &FormatError{Archive: name, Reason: "unsupported version"}
	}
	if h.FileCount == 0 {
		return h, &FormatError{Archive: name, Reason: "zero file count"}
	}

	return h, nil
}

// encodeHeader produces the canonical header bytes.
func encodeHeader(h fileHeader) []byte {
	data := make([]byte, headerSize)

	copy(data, hgpakMagic)
	binary.LittleEndian.PutUint64(data[0x08:], h.Version)
	binary.LittleEndian.PutUint64(data[0x10:], h.FileCount)
	binary.LittleEndian.PutUint64(data[0x18:], h.ChunkCount)
	if h.Compressed {
		data[0x20] = 1
	}
	binary.LittleEndian.PutUint64(data[0x28:], h.DataOffset)

	return data
}

// parseFileIndex decodes count file records.
func parseFileIndex(data []byte, count uint64, name string) ([]fileRecord, error) {
	if uint64(len(data)) < count*fileRecordSize {
		return nil, &FormatError{Archive: name, Reason: "file too small for file index"}
	}

	records := make([]fileRecord, count)
	for i := range records {
		rec := data[uint64(i)*fileRecordSize:]
		copy(records[i].Hash[:], rec[:16])
		records[i].Offset = binary.LittleEndian.Uint64(rec[16:])
		records[i].Size = binary.LittleEndian.Uint64(rec[24:])
	}

	return records, nil
}

// encodeFileIndex produces the canonical file index bytes.
func encodeFileIndex(records []fileRecord) []byte {
	var buf bytes.Buffer
	buf.Grow(len(records) * fileRecordSize)

	for _, rec := range records {
		buf.Write(rec.Hash[:])
		var tail [16]byte
		binary.LittleEndian.PutUint64(tail[:8], rec.Offset)
		binary.LittleEndian.PutUint64(tail[8:], rec.Size)
		buf.Write(tail[:])
	}

	return buf.Bytes()
}

// parseChunkIndex decodes the array of compressed chunk sizes.
func parseChunkIndex(data []byte, count uint64, name string) ([]uint64, error) {
	if uint64(len(data)) < count*8 {
		return nil, &FormatError{Archive: name, Reason: "file too small for chunk index"}
	}

	sizes := make([]uint64, count)
	for i := range sizes {
		sizes[i] = binary.LittleEndian.Uint64(data[i*8:])
	}

	return sizes, nil
}

// encodeChunkIndex produces the canonical chunk index bytes.
func encodeChunkIndex(sizes []uint64) []byte {
	data := make([]byte, len(sizes)*8)
	for i, size := range sizes {
		binary.LittleEndian.PutUint64(data[i*8:], size)
	}
	return data
}

// alignUp rounds n up to the next 0x10 byte boundary.
func alignUp(n uint64) uint64 {
	return (n + alignment - 1) &^ (alignment - 1)
}

// padOf returns the number of bytes needed to pad n to a 0x10 byte
// boundary.
func padOf(n uint64) uint64 {
	return alignUp(n) - n
}

// chunkSpan returns the number of fixed-size bins needed to hold n
// bytes.
func chunkSpan(n, binSize uint64) uint64 {
	return (n + binSize - 1) / binSize
}
