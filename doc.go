// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

/*
Package hgpak reads and writes HGPAK (.pak) game archives.

HGPAK is the container format one game engine ships its assets in, with
per-platform variants: PC archives store their data uncompressed, Mac
archives compress with LZ4 block encoding, and Switch archives use the
proprietary Oodle codec. The format is a flat container: a fixed header,
an MD5-keyed file index, an optional chunk index, and a data section
split into fixed-size chunks that compress independently.

# Features

  - Random-access reads: extracting one file decodes only the chunks
    covering it
  - Per-entry corruption isolation: a damaged chunk fails the files it
    covers, the rest of the archive stays readable
  - Deterministic builds: same inputs, same order, same bytes
  - Store, LZ4 and zstd codecs built in; Oodle pluggable via an
    externally supplied native binding

# Basic Usage

Reading an archive:

	archive, err := hgpak.Open("assets.pak", hgpak.PlatformMac)
	if err != nil {
		log.Fatal(err)
	}
	defer archive.Close()

	data, err := archive.ReadFile("models/crystal/b.bin")
	if err != nil {
		log.Fatal(err)
	}

Building one:

	b := hgpak.NewBuilder(hgpak.PlatformMac, hgpak.DefaultPolicy(hgpak.PlatformMac))
	b.Add("models/crystal/b.bin", data)
	if err := b.WriteFile("assets.pak"); err != nil {
		log.Fatal(err)
	}

Batch work over many archives goes through [Run].

# Path Conventions

Archive paths use forward slashes. The index hashes paths in lowercase,
but the name table preserves the case files were added with, and lookups
and pattern matching go by that recorded form.

# Limitations

  - No Oodle implementation ships with the package; Switch archives
    need a binding registered via [Registry.RegisterOodle]
  - PC archives are always written uncompressed, as the game expects
  - No streaming writes: a build accumulates its inputs in memory
*/
package hgpak
