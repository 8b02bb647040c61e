// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
)

// Mode selects what Run does with its inputs.
type Mode int

const (
	// ModeUnpack extracts each input archive under the output
	// directory.
	ModeUnpack Mode = iota

	// ModePack packs each input directory into an archive in the
	// output directory.
	ModePack

	// ModeList lists the entries of each input archive without
	// extracting anything.
	ModeList
)

func (m Mode) String() string {
	switch m {
	case ModeUnpack:
		return "unpack"
	case ModePack:
		return "pack"
	case ModeList:
		return "list"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Request describes one batch of work over any number of inputs.
type Request struct {
	Mode     Mode
	Platform Platform

	// Policy picks the compression codec for ModePack. The zero value
	// stores everything; DefaultPolicy gives the platform's own codec.
	Policy Policy

	// Inputs are archive paths for ModeUnpack and ModeList, or source
	// directories for ModePack.
	Inputs []string

	// Output is the destination directory. For ModeUnpack, entries
	// land under Output/EXTRACTED, matching the game tooling's layout;
	// empty means the current directory. For ModePack each archive is
	// written to Output as <input dir name>.pak.
	Output string

	// Include filters which entries are extracted or listed. Empty
	// selects everything.
	Include []MatchFunc

	// Strict re-validates packed archives before they reach disk.
	Strict bool

	// OpenOptions is applied when opening each input archive, e.g.
	// WithCodec for archives built with a non-default policy.
	OpenOptions []OpenOption

	// Registry supplies the codecs, for both directions. Nil means a
	// fresh registry without the Oodle backend.
	Registry *Registry

	// Workers bounds per-archive extraction concurrency.
	Workers int

	// FailFast aborts an archive's extraction on its first entry
	// error. Other archives in the batch still run either way.
	FailFast bool

	Logger *slog.Logger
}

// ArchiveResult reports the outcome for one input.
type ArchiveResult struct {
	// Input is the archive path or source directory this result is
	// about.
	Input string

	// Output is where the result landed: the extraction root for
	// ModeUnpack, the written archive for ModePack, empty for
	// ModeList.
	Output string

	// Files lists the selected entries, for ModeList.
	Files []string

	// Summary holds extraction counts, for ModeUnpack.
	Summary ExtractSummary

	// Err is the input-level failure, if the input could not be
	// processed at all.
	Err error
}

// RunResult is the outcome of a whole batch.
type RunResult struct {
	Archives []ArchiveResult

	// Failed counts inputs whose Err is set.
	Failed int
}

// Run processes every input in the request. One unreadable or corrupt
// input does not stop the batch: its failure is recorded in the result
// and the remaining inputs still run. Run itself errors only on a
// malformed request or a cancelled context.
func Run(ctx context.Context, req Request) (*RunResult, error) {
	if len(req.Inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}
	if req.Logger == nil {
		req.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	res := &RunResult{}
	for _, input := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var ar ArchiveResult
		switch req.Mode {
		case ModeUnpack:
			ar = runUnpack(ctx, req, input)
		case ModePack:
			ar = runPack(req, input)
		case ModeList:
			ar = runList(req, input)
		default:
			return nil, fmt.Errorf("unknown mode %d", int(req.Mode))
		}

		if ar.Err != nil {
			req.Logger.Warn("input failed", "mode", req.Mode.String(), "input", input, "error", ar.Err)
			res.Failed++
		}
		res.Archives = append(res.Archives, ar)
	}

	return res, nil
}

func (req Request) openOptions() []OpenOption {
	opts := req.OpenOptions
	if req.Registry != nil {
		opts = append([]OpenOption{WithRegistry(req.Registry)}, opts...)
	}
	return opts
}

func runUnpack(ctx context.Context, req Request, input string) ArchiveResult {
	ar := ArchiveResult{Input: input, Output: filepath.Join(req.Output, "EXTRACTED")}

	a, err := Open(input, req.Platform, req.openOptions()...)
	if err != nil {
		ar.Err = err
		return ar
	}
	defer a.Close()

	ar.Summary, ar.Err = a.Extract(ctx, ar.Output, ExtractOptions{
		Include:  req.Include,
		FailFast: req.FailFast,
		Workers:  req.Workers,
		Logger:   req.Logger,
	})
	return ar
}

func runPack(req Request, input string) ArchiveResult {
	ar := ArchiveResult{Input: input}

	b, err := NewBuilderFromDir(input, req.Platform, req.Policy)
	if err != nil {
		ar.Err = err
		return ar
	}
	if req.Registry != nil {
		b.SetRegistry(req.Registry)
	}
	b.SetStrict(req.Strict)
	if req.Workers > 0 {
		b.SetWorkers(req.Workers)
	}

	ar.Output = filepath.Join(req.Output, filepath.Base(filepath.Clean(input))+".pak")
	b.SetArchiveName(filepath.Base(ar.Output))

	if err := b.WriteFile(ar.Output); err != nil {
		ar.Err = err
		return ar
	}

	req.Logger.Info("packed", "dir", input, "archive", ar.Output, "files", b.Len())
	return ar
}

func runList(req Request, input string) ArchiveResult {
	ar := ArchiveResult{Input: input}

	a, err := Open(input, req.Platform, req.openOptions()...)
	if err != nil {
		ar.Err = err
		return ar
	}
	defer a.Close()

	for _, path := range a.Files() {
		if matchAny(req.Include, path) {
			ar.Files = append(ar.Files, path)
		}
	}
	return ar
}
