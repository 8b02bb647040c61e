// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CodecID identifies a compression backend. The archive format does
// not record the codec; it is implied by the target platform.
type CodecID uint8

const (
	// CodecStore is the identity codec: data is written as-is.
	CodecStore CodecID = iota

	// CodecLZ4 is raw LZ4 block compression (no frame, no stored
	// size), as used by the macOS build.
	CodecLZ4

	// CodecZstd is Zstandard, as used by the PC build.
	CodecZstd

	// CodecOodle is the proprietary block codec used by the Switch
	// build. The native library is supplied by the caller; without it
	// the codec is unavailable.
	CodecOodle
)

func (id CodecID) String() string {
	switch id {
	case CodecStore:
		return "store"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	case CodecOodle:
		return "oodle"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// ParseCodecID parses a codec id from its string name.
func ParseCodecID(name string) (CodecID, error) {
	switch name {
	case "store", "none":
		return CodecStore, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	case "oodle":
		return CodecOodle, nil
	default:
		return 0, fmt.Errorf("unknown codec: %q", name)
	}
}

// Codec is one compression backend. Compress may return
// errIncompressible when the output would not be smaller than the
// input; the writer then stores the block raw. Decompress returns the
// decoded bytes, which the Registry checks against the expected size.
type Codec interface {
	ID() CodecID
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte, expectedSize int) ([]byte, error)
}

// errIncompressible signals that compressed output would be at least
// as large as the input.
var errIncompressible = errors.New("data is incompressible")

// IsIncompressible reports whether err indicates that data could not
// be compressed smaller than its original size.
func IsIncompressible(err error) bool {
	return errors.Is(err, errIncompressible)
}

// Registry holds the compression backends used to decode and encode
// archives. A Registry is constructed explicitly and injected into
// readers and builders; there is no process-wide instance. All methods
// are safe for concurrent use once the registry is populated.
type Registry struct {
	codecs map[CodecID]Codec
}

// NewRegistry returns a registry with the store, LZ4 and Zstandard
// backends registered. The Oodle backend requires an externally
// supplied native library; see RegisterOodle.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[CodecID]Codec)}
	r.Register(storeCodec{})
	r.Register(lz4Codec{})
	r.Register(newZstdCodec())
	return r
}

// Register adds or replaces a backend.
func (r *Registry) Register(c Codec) {
	r.codecs[c.ID()] = c
}

// Available reports whether the given codec can be used.
func (r *Registry) Available(id CodecID) bool {
	_, ok := r.codecs[id]
	return ok
}

func (r *Registry) lookup(id CodecID) (Codec, error) {
	c, ok := r.codecs[id]
	if !ok {
		return nil, &CodecUnavailableError{Codec: id}
	}
	return c, nil
}

// Compress encodes data with the given backend.
func (r *Registry) Compress(id CodecID, data []byte) ([]byte, error) {
	c, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return c.Compress(data)
}

// Decompress decodes data with the given backend and validates the
// output length against expectedSize. A length mismatch is corruption,
// never silently truncated or padded.
func (r *Registry) Decompress(id CodecID, data []byte, expectedSize int) ([]byte, error) {
	c, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	out, err := c.Decompress(data, expectedSize)
	if err != nil {
		return nil, err
	}
	if len(out) != expectedSize {
		return nil, fmt.Errorf("%s: decompressed to %d bytes, expected %d", id, len(out), expectedSize)
	}

	return out, nil
}

// storeCodec is the identity backend.
type storeCodec struct{}

func (storeCodec) ID() CodecID { return CodecStore }

func (storeCodec) Compress(src []byte) ([]byte, error) {
	return src, nil
}

func (storeCodec) Decompress(src []byte, expectedSize int) ([]byte, error) {
	if len(src) != expectedSize {
		return nil, fmt.Errorf("store: %d bytes stored, expected %d", len(src), expectedSize)
	}
	return src, nil
}

// lz4Codec is raw LZ4 block mode. The format stores no block sizes
// inside the payload, so decompression relies on the expected size.
type lz4Codec struct{}

func (lz4Codec) ID() CodecID { return CodecLZ4 }

func (lz4Codec) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))

	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 when it determines the data is
	// incompressible.
	if n == 0 || n >= len(src) {
		return nil, errIncompressible
	}

	return dst[:n], nil
}

func (lz4Codec) Decompress(src []byte, expectedSize int) ([]byte, error) {
	dst := make([]byte, expectedSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	return dst[:n], nil
}

// maxDecodedChunk caps how much a single zstd frame may decode to. No
// platform's chunks decompress larger than this, so a frame declaring
// more is hostile input, rejected before anything is allocated for it.
const maxDecodedChunk = 0x20000

// zstdCodec wraps a shared encoder/decoder pair. Both are safe for
// concurrent use, so one pair serves all readers and builders holding
// this registry.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() *zstdCodec {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		// Only reachable with invalid options.
		panic("hgpak: zstd encoder initialization failed: " + err.Error())
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedChunk))
	if err != nil {
		panic("hgpak: zstd decoder initialization failed: " + err.Error())
	}
	return &zstdCodec{enc: enc, dec: dec}
}

func (*zstdCodec) ID() CodecID { return CodecZstd }

func (c *zstdCodec) Compress(src []byte) ([]byte, error) {
	dst := c.enc.EncodeAll(src, nil)
	if len(dst) >= len(src) {
		return nil, errIncompressible
	}
	return dst, nil
}

func (c *zstdCodec) Decompress(src []byte, expectedSize int) ([]byte, error) {
	dst, err := c.dec.DecodeAll(src, make([]byte, 0, expectedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return dst, nil
}
