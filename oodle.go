// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import "fmt"

// OodleLib is the surface of the externally supplied Oodle native
// library. The library binary is proprietary and obtained out of
// process; this package never loads it itself. A caller that has a
// binding registers it with Registry.RegisterOodle, after which
// Switch archives can be decoded and encoded. Without a binding the
// registry reports the codec as unavailable rather than failing in
// some less distinguishable way.
type OodleLib interface {
	// Compress encodes one chunk.
	Compress(src []byte) ([]byte, error)

	// Decompress decodes one chunk into exactly expectedSize bytes.
	Decompress(src []byte, expectedSize int) ([]byte, error)
}

// RegisterOodle installs the proprietary Oodle backend backed by the
// given native library binding.
func (r *Registry) RegisterOodle(lib OodleLib) {
	r.Register(oodleCodec{lib: lib})
}

type oodleCodec struct {
	lib OodleLib
}

func (oodleCodec) ID() CodecID { return CodecOodle }

func (c oodleCodec) Compress(src []byte) ([]byte, error) {
	dst, err := c.lib.Compress(src)
	if err != nil {
		return nil, fmt.Errorf("oodle compress: %w", err)
	}
	if len(dst) >= len(src) {
		return nil, errIncompressible
	}
	return dst, nil
}

func (c oodleCodec) Decompress(src []byte, expectedSize int) ([]byte, error) {
	dst, err := c.lib.Decompress(src, expectedSize)
	if err != nil {
		return nil, fmt.Errorf("oodle decompress: %w", err)
	}
	return dst, nil
}
