// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		n    uint64
		want uint64
	}{
		{0, 0},
		{1, 0x10},
		{0x0F, 0x10},
		{0x10, 0x10},
		{0x11, 0x20},
		{0x1FFFF, 0x20000},
		{0x20000, 0x20000},
	}

	for _, test := range tests {
		if got := alignUp(test.n); got != test.want {
			t.Errorf("alignUp(%#x) = %#x, want %#x", test.n, got, test.want)
		}
	}
}

func TestPadOf(t *testing.T) {
	tests := []struct {
		n    uint64
		want uint64
	}{
		{0, 0},
		{1, 0x0F},
		{0x0F, 1},
		{0x10, 0},
		{0x30, 0},
	}

	for _, test := range tests {
		if got := padOf(test.n); got != test.want {
			t.Errorf("padOf(%#x) = %#x, want %#x", test.n, got, test.want)
		}
	}
}

func TestChunkSpan(t *testing.T) {
	tests := []struct {
		n, binSize uint64
		want       uint64
	}{
		{0, 0x20000, 0},
		{1, 0x20000, 1},
		{0x20000, 0x20000, 1},
		{0x20001, 0x20000, 2},
		{0x60000, 0x20000, 3},
	}

	for _, test := range tests {
		if got := chunkSpan(test.n, test.binSize); got != test.want {
			t.Errorf("chunkSpan(%#x, %#x) = %d, want %d", test.n, test.binSize, got, test.want)
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	want := fileHeader{
		Version:    formatVersion,
		FileCount:  3,
		ChunkCount: 7,
		Compressed: true,
		DataOffset: 0xD0,
	}

	got, err := parseHeader(encodeHeader(want), "test.pak")
	if err != nil {
		t.Fatalf("parse header: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	valid := encodeHeader(fileHeader{Version: formatVersion, FileCount: 1})

	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"short buffer", func(h []byte) []byte { return h[:0x20] }},
		{"bad magic", func(h []byte) []byte { h[0] = 'X'; return h }},
		{"bad version", func(h []byte) []byte { h[0x08] = 99; return h }},
		{"zero file count", func(h []byte) []byte { h[0x10] = 0; return h }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := make([]byte, len(valid))
			copy(h, valid)

			_, err := parseHeader(test.mangle(h), "test.pak")
			var ferr *FormatError
			if !errors.As(err, &ferr) {
				t.Fatalf("got %v, want FormatError", err)
			}
		})
	}
}

func TestFileIndexRoundTrip(t *testing.T) {
	want := []fileRecord{
		{Hash: hashPath("test.pak"), Offset: 0xD0, Size: 42},
		{Hash: hashPath("models/debris/a.bin"), Offset: 0x100, Size: 17},
		{Hash: hashPath("models/crystal/b.bin"), Offset: 0x120, Size: 4096},
	}

	got, err := parseFileIndex(encodeFileIndex(want), uint64(len(want)), "test.pak")
	if err != nil {
		t.Fatalf("parse file index: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("file index mismatch (-want +got):\n%s", diff)
	}
}

func TestFileIndexTruncated(t *testing.T) {
	raw := encodeFileIndex([]fileRecord{{Offset: 1, Size: 2}})

	_, err := parseFileIndex(raw[:len(raw)-1], 1, "test.pak")
	var ferr *FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("got %v, want FormatError", err)
	}
}

func TestChunkIndexRoundTrip(t *testing.T) {
	want := []uint64{0x1234, 0x20000, 0x1F}

	got, err := parseChunkIndex(encodeChunkIndex(want), uint64(len(want)), "test.pak")
	if err != nil {
		t.Fatalf("parse chunk index: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunk index mismatch (-want +got):\n%s", diff)
	}
}

func TestNameTableRoundTrip(t *testing.T) {
	paths := []string{"models/debris/a.bin", "models/crystal/b.bin", "audio/theme.ogg"}

	got := parseNameTable(encodeNameTable(paths))
	if diff := cmp.Diff(paths, got); diff != "" {
		t.Errorf("name table mismatch (-want +got):\n%s", diff)
	}

	if got := parseNameTable(nil); len(got) != 0 {
		t.Errorf("empty name table parsed to %v", got)
	}
}

func TestNameTableKeepsBlankLines(t *testing.T) {
	// A blank line holds its position so name i still maps to
	// record i+1.
	got := parseNameTable([]byte("a.bin\r\n\r\nb.bin\r\n"))
	want := []string{"a.bin", "", "b.bin"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("name table mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Models\\Debris\\A.BIN", "models/debris/a.bin"},
		{"models/debris/a.bin", "models/debris/a.bin"},
		{"AUDIO/Theme.OGG", "audio/theme.ogg"},
	}

	for _, test := range tests {
		if got := NormalizePath(test.in); got != test.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}
