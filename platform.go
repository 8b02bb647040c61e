// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import "fmt"

// Platform identifies which of the game's target platforms an archive
// belongs to. The header layout is identical across platforms, but the
// codec used for chunk data and the decompressed chunk size differ,
// and are not recorded in the archive itself.
type Platform int

const (
	// PlatformPC is the Windows build. Its archives carry the
	// compressed header flag but ship with uncompressed payloads; the
	// chunks that are compressed use Zstandard.
	PlatformPC Platform = iota

	// PlatformMac is the macOS build, which uses LZ4 block
	// compression.
	PlatformMac

	// PlatformSwitch is the Nintendo Switch build, which uses the
	// proprietary Oodle codec.
	PlatformSwitch
)

func (p Platform) String() string {
	switch p {
	case PlatformPC:
		return "pc"
	case PlatformMac:
		return "mac"
	case PlatformSwitch:
		return "switch"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParsePlatform parses a platform from its string name.
func ParsePlatform(name string) (Platform, error) {
	switch name {
	case "pc", "windows":
		return PlatformPC, nil
	case "mac":
		return PlatformMac, nil
	case "switch":
		return PlatformSwitch, nil
	default:
		return 0, fmt.Errorf("unknown platform: %q", name)
	}
}

// ChunkSize returns the decompressed chunk size the platform's engine
// build works in: 64KiB on PC, 128KiB on Mac and Switch.
func (p Platform) ChunkSize() uint64 {
	if p == PlatformPC {
		return 0x10000
	}
	return 0x20000
}

// DefaultCodec returns the codec the platform's archives are encoded
// with.
func (p Platform) DefaultCodec() CodecID {
	switch p {
	case PlatformMac:
		return CodecLZ4
	case PlatformSwitch:
		return CodecOodle
	default:
		return CodecZstd
	}
}

// SupportsCodec reports whether archives built with the given codec
// are accepted by the platform's engine build.
func (p Platform) SupportsCodec(id CodecID) bool {
	switch id {
	case CodecStore, CodecLZ4, CodecZstd:
		return true
	case CodecOodle:
		return p == PlatformSwitch
	default:
		return false
	}
}

// Policy selects the codec applied when building an archive.
// CodecStore produces an uncompressed archive.
type Policy struct {
	Codec CodecID
}

// DefaultPolicy returns the build policy matching what the platform
// ships with. PC archives are built uncompressed: the PC engine sets
// the compressed header flag but is observed to ignore it, and
// recompression for PC is not supported upstream.
func DefaultPolicy(p Platform) Policy {
	if p == PlatformPC {
		return Policy{Codec: CodecStore}
	}
	return Policy{Codec: p.DefaultCodec()}
}

// resolve maps the requested policy onto the codec actually used for
// the target platform. PC is forced to store regardless of the
// request.
func (pol Policy) resolve(p Platform) (CodecID, error) {
	if p == PlatformPC {
		return CodecStore, nil
	}
	if !p.SupportsCodec(pol.Codec) {
		return 0, fmt.Errorf("codec %s is not valid for platform %s", pol.Codec, p)
	}
	return pol.Codec, nil
}
