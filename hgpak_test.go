// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type testEntry struct {
	path string
	data []byte
}

func buildArchive(t *testing.T, platform Platform, policy Policy, entries []testEntry) []byte {
	t.Helper()

	b := NewBuilder(platform, policy)
	b.SetArchiveName("test.pak")
	for _, e := range entries {
		if err := b.Add(e.path, e.data); err != nil {
			t.Fatalf("add %s: %v", e.path, err)
		}
	}

	out, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return out
}

func openArchive(t *testing.T, out []byte, platform Platform, opts ...OpenOption) *Archive {
	t.Helper()

	a, err := OpenReader(bytes.NewReader(out), int64(len(out)), platform, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return a
}

func TestBuildOpenRoundTrip(t *testing.T) {
	entries := []testEntry{
		{"models/debris/a.bin", compressibleData(17)},
		{"models/crystal/b.bin", compressibleData(4096)},
		{"audio/theme.ogg", compressibleData(300000)}, // spans several chunks
		{"empty.bin", nil},
	}

	tests := []struct {
		name     string
		platform Platform
		policy   Policy
		opts     []OpenOption
	}{
		{"mac lz4", PlatformMac, DefaultPolicy(PlatformMac), nil},
		{"mac zstd", PlatformMac, Policy{Codec: CodecZstd}, []OpenOption{WithCodec(CodecZstd)}},
		{"switch zstd", PlatformSwitch, Policy{Codec: CodecZstd}, []OpenOption{WithCodec(CodecZstd)}},
		{"pc store", PlatformPC, DefaultPolicy(PlatformPC), nil},
		{"mac store", PlatformMac, Policy{Codec: CodecStore}, nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out := buildArchive(t, test.platform, test.policy, entries)
			a := openArchive(t, out, test.platform, test.opts...)
			defer a.Close()

			wantFiles := make([]string, len(entries))
			for i, e := range entries {
				wantFiles[i] = e.path
			}
			if diff := cmp.Diff(wantFiles, a.Files()); diff != "" {
				t.Errorf("file list mismatch (-want +got):\n%s", diff)
			}

			for _, e := range entries {
				if !a.HasFile(e.path) {
					t.Errorf("%s missing", e.path)
					continue
				}

				info, err := a.Stat(e.path)
				if err != nil {
					t.Errorf("stat %s: %v", e.path, err)
				} else if info.Size != uint64(len(e.data)) {
					t.Errorf("%s size = %d, want %d", e.path, info.Size, len(e.data))
				}

				got, err := a.ReadFile(e.path)
				if err != nil {
					t.Errorf("read %s: %v", e.path, err)
				} else if !bytes.Equal(got, e.data) {
					t.Errorf("%s content mismatch: got %d bytes, want %d", e.path, len(got), len(e.data))
				}
			}

			if a.HasFile("nonexistent.bin") {
				t.Errorf("phantom file reported")
			}
			if _, err := a.ReadFile("nonexistent.bin"); !errors.Is(err, ErrNotFound) {
				t.Errorf("read missing file: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSwitchZstdSelectiveExtract(t *testing.T) {
	entries := []testEntry{
		{"models/debris/a.bin", compressibleData(17)},
		{"models/crystal/b.bin", compressibleData(4096)},
	}
	out := buildArchive(t, PlatformSwitch, Policy{Codec: CodecZstd}, entries)

	a := openArchive(t, out, PlatformSwitch, WithCodec(CodecZstd))
	defer a.Close()

	if got := len(a.Files()); got != 2 {
		t.Fatalf("archive lists %d entries, want 2", got)
	}
	for _, e := range entries {
		info, err := a.Stat(e.path)
		if err != nil || info.Size != uint64(len(e.data)) {
			t.Errorf("stat %s: size %d, err %v", e.path, info.Size, err)
		}
	}

	dest := t.TempDir()
	include := []MatchFunc{MustCompilePattern("*debris*").Match}
	summary, err := a.Extract(context.Background(), dest, ExtractOptions{Include: include})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if summary.Extracted != 1 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	got, err := os.ReadFile(filepath.Join(dest, "models", "debris", "a.bin"))
	if err != nil {
		t.Fatalf("read extracted: %v", err)
	}
	if !bytes.Equal(got, entries[0].data) {
		t.Errorf("extracted content mismatch")
	}
	if _, err := os.Stat(filepath.Join(dest, "models", "crystal", "b.bin")); !os.IsNotExist(err) {
		t.Errorf("filtered entry extracted anyway")
	}
}

func TestBuildDeterministic(t *testing.T) {
	entries := []testEntry{
		{"a.bin", compressibleData(1000)},
		{"b.bin", compressibleData(200000)},
	}

	first := buildArchive(t, PlatformMac, DefaultPolicy(PlatformMac), entries)
	second := buildArchive(t, PlatformMac, DefaultPolicy(PlatformMac), entries)
	if !bytes.Equal(first, second) {
		t.Errorf("two builds of the same inputs differ")
	}
}

func TestEmptyArchiveRoundTrip(t *testing.T) {
	out := buildArchive(t, PlatformMac, DefaultPolicy(PlatformMac), nil)

	a := openArchive(t, out, PlatformMac)
	defer a.Close()

	if files := a.Files(); len(files) != 0 {
		t.Errorf("empty archive lists %v", files)
	}
}

func TestBlankNameTableLineSkipped(t *testing.T) {
	// A blank name-table line occupies an index position without
	// naming a file; the archive still opens and later names keep
	// their record mapping.
	nameTable := encodeNameTable([]string{"", "a.bin"})
	payload := []byte("hello")

	dataOffset := uint64(headerSize) + 3*fileRecordSize
	records := []fileRecord{
		{Hash: hashPath("test.pak"), Offset: dataOffset, Size: uint64(len(nameTable))},
		{},
		{Hash: hashPath("a.bin"), Offset: dataOffset + alignUp(uint64(len(nameTable))), Size: uint64(len(payload))},
	}
	hdr := fileHeader{Version: formatVersion, FileCount: 3, DataOffset: dataOffset}

	var buf bytes.Buffer
	buf.Write(encodeHeader(hdr))
	buf.Write(encodeFileIndex(records))
	buf.Write(nameTable)
	buf.Write(make([]byte, padOf(uint64(len(nameTable)))))
	buf.Write(payload)

	a := openArchive(t, buf.Bytes(), PlatformPC)
	defer a.Close()

	if diff := cmp.Diff([]string{"a.bin"}, a.Files()); diff != "" {
		t.Errorf("file list mismatch (-want +got):\n%s", diff)
	}
	got, err := a.ReadFile("a.bin")
	if err != nil {
		t.Fatalf("read a.bin: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("read a.bin = %q, want %q", got, payload)
	}
}

func TestCodecOverrideRequired(t *testing.T) {
	// A Switch archive built with zstd instead of the platform default.
	// The format records no codec, so opening without the override
	// decodes with oodle, which has no binding registered here.
	entries := []testEntry{{"a.bin", compressibleData(5000)}}
	out := buildArchive(t, PlatformSwitch, Policy{Codec: CodecZstd}, entries)

	_, err := OpenReader(bytes.NewReader(out), int64(len(out)), PlatformSwitch)
	var unavailable *CodecUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("open without override: got %v, want CodecUnavailableError", err)
	}

	a := openArchive(t, out, PlatformSwitch, WithCodec(CodecZstd))
	defer a.Close()
	if _, err := a.ReadFile("a.bin"); err != nil {
		t.Errorf("read with override: %v", err)
	}
}

// chunkLayout locates each chunk's bytes within a built archive.
func chunkLayout(t *testing.T, out []byte) (offsets []int64, sizes []uint64) {
	t.Helper()

	fileCount := binary.LittleEndian.Uint64(out[0x10:])
	chunkCount := binary.LittleEndian.Uint64(out[0x18:])
	dataOffset := binary.LittleEndian.Uint64(out[0x28:])

	indexEnd := uint64(headerSize) + fileCount*fileRecordSize
	pos := dataOffset
	for i := uint64(0); i < chunkCount; i++ {
		size := binary.LittleEndian.Uint64(out[indexEnd+i*8:])
		offsets = append(offsets, int64(pos))
		sizes = append(sizes, size)
		pos += alignUp(size)
	}
	return offsets, sizes
}

func TestCorruptChunkIsolation(t *testing.T) {
	// Three files of a full chunk each: the last chunk of the stream
	// covers only the tail of the third file. Destroying it must fail
	// that file and no other.
	cs := int(PlatformMac.ChunkSize())
	entries := []testEntry{
		{"f1.bin", compressibleData(cs)},
		{"f2.bin", compressibleData(cs)},
		{"f3.bin", compressibleData(cs)},
	}

	out := buildArchive(t, PlatformMac, Policy{Codec: CodecZstd}, entries)

	offsets, sizes := chunkLayout(t, out)
	last := len(offsets) - 1
	if sizes[last] == uint64(cs) {
		t.Fatalf("last chunk stored raw, corruption would go undetected")
	}
	for i := uint64(0); i < sizes[last]; i++ {
		out[offsets[last]+int64(i)] = 0
	}

	a := openArchive(t, out, PlatformMac, WithCodec(CodecZstd))
	defer a.Close()

	for _, e := range entries[:2] {
		got, err := a.ReadFile(e.path)
		if err != nil {
			t.Errorf("read %s: %v", e.path, err)
		} else if !bytes.Equal(got, e.data) {
			t.Errorf("%s content mismatch", e.path)
		}
	}

	_, err := a.ReadFile("f3.bin")
	var corrupt *CorruptEntryError
	if !errors.As(err, &corrupt) {
		t.Fatalf("read f3.bin: got %v, want CorruptEntryError", err)
	}
	if corrupt.Path != "f3.bin" {
		t.Errorf("error names %s, want f3.bin", corrupt.Path)
	}
}

func TestDuplicatePathRejected(t *testing.T) {
	entries := []testEntry{
		{"a.bin", []byte("AAAA")},
		{"b.bin", []byte("BBBB")},
	}
	out := buildArchive(t, PlatformPC, DefaultPolicy(PlatformPC), entries)

	// PC archives store the name table raw; rewriting the second name
	// in place forges a duplicate without touching the layout.
	forged := bytes.Replace(out, []byte("b.bin"), []byte("a.bin"), 1)

	_, err := OpenReader(bytes.NewReader(forged), int64(len(forged)), PlatformPC)
	var ferr *FormatError
	if !errors.As(err, &ferr) {
		t.Fatalf("got %v, want FormatError", err)
	}
}

func TestOpenGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", []byte("HGPAK")},
		{"wrong magic", bytes.Repeat([]byte{0xAB}, 0x100)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := OpenReader(bytes.NewReader(test.data), int64(len(test.data)), PlatformPC)
			var ferr *FormatError
			if !errors.As(err, &ferr) {
				t.Fatalf("got %v, want FormatError", err)
			}
		})
	}
}

func TestHashes(t *testing.T) {
	entries := []testEntry{
		{"models/debris/a.bin", []byte("hello")},
		{"models/crystal/b.bin", []byte("world")},
	}
	out := buildArchive(t, PlatformMac, DefaultPolicy(PlatformMac), entries)

	a := openArchive(t, out, PlatformMac)
	defer a.Close()

	all, err := a.Hashes(nil)
	if err != nil {
		t.Fatalf("hashes: %v", err)
	}
	want := map[string]string{
		"models/debris/a.bin":  "5D41402ABC4B2A76B9719D911017C592",
		"models/crystal/b.bin": "7D793037A0760186574B0282F2F435E7",
	}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("hashes mismatch (-want +got):\n%s", diff)
	}

	debris, err := a.Hashes([]MatchFunc{MustCompilePattern("*debris*").Match})
	if err != nil {
		t.Fatalf("filtered hashes: %v", err)
	}
	if len(debris) != 1 || debris["models/debris/a.bin"] == "" {
		t.Errorf("filtered hashes = %v", debris)
	}
}

func BenchmarkReadFile(b *testing.B) {
	builder := NewBuilder(PlatformMac, DefaultPolicy(PlatformMac))
	builder.SetArchiveName("bench.pak")
	data := compressibleData(256 * 1024)
	if err := builder.Add("data.bin", data); err != nil {
		b.Fatalf("add: %v", err)
	}
	out, err := builder.Build()
	if err != nil {
		b.Fatalf("build: %v", err)
	}

	a, err := OpenReader(bytes.NewReader(out), int64(len(out)), PlatformMac)
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	defer a.Close()

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := a.ReadFile("data.bin"); err != nil {
			b.Fatalf("read: %v", err)
		}
	}
}
