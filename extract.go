// Copyright (c) 2025 hgpaktools
// SPDX-License-Identifier: MIT

package hgpak

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ExtractOptions configures Archive.Extract.
type ExtractOptions struct {
	// Include selects which entries to extract. An empty set selects
	// all of them.
	Include []MatchFunc

	// FailFast aborts on the first entry error instead of recording it
	// and continuing with the rest.
	FailFast bool

	// Workers bounds the number of entries extracted concurrently.
	// Zero means one worker per CPU.
	Workers int

	// Logger receives per-entry progress. Nil discards it.
	Logger *slog.Logger
}

// ExtractSummary reports what an extraction did.
type ExtractSummary struct {
	// Extracted is the number of entries written to disk.
	Extracted int

	// Skipped is the number of entries the include set filtered out.
	Skipped int

	// Errors holds one entry per failed extraction, in no particular
	// order. A corrupt entry lands here without affecting any other.
	Errors []EntryError
}

// Extract writes the selected entries under dest, recreating the
// archive's directory layout. Entries extract concurrently; an error
// in one entry is recorded in the summary and the rest still extract,
// unless FailFast is set. Cancelling ctx stops between entries.
func (a *Archive) Extract(ctx context.Context, dest string, opts ExtractOptions) (ExtractSummary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Two case-variant paths land on the same file on a
	// case-insensitive filesystem; the later one is refused instead of
	// silently overwriting the first.
	var selected []string
	var summary ExtractSummary
	claimed := make(map[string]string)
	for _, path := range a.order {
		if !matchAny(opts.Include, path) {
			summary.Skipped++
			continue
		}
		norm := NormalizePath(path)
		if _, ok := claimed[norm]; ok {
			summary.Errors = append(summary.Errors, EntryError{Path: path, Err: &PathCollisionError{Path: path}})
			continue
		}
		claimed[norm] = path
		selected = append(selected, path)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range selected {
		// Stop launching on outer cancellation or a fail-fast error.
		if ctx.Err() != nil || gctx.Err() != nil {
			break
		}

		path := path
		g.Go(func() error {
			if err := a.extractOne(dest, path); err != nil {
				logger.Warn("extract failed", "archive", a.name, "path", path, "error", err)
				if opts.FailFast {
					return &EntryError{Path: path, Err: err}
				}
				mu.Lock()
				summary.Errors = append(summary.Errors, EntryError{Path: path, Err: err})
				mu.Unlock()
				return nil
			}

			logger.Debug("extracted", "archive", a.name, "path", path)
			mu.Lock()
			summary.Extracted++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	logger.Info("extraction done",
		"archive", a.name, "extracted", summary.Extracted,
		"skipped", summary.Skipped, "failed", len(summary.Errors))

	return summary, nil
}

// extractOne reads one entry and writes it under dest.
func (a *Archive) extractOne(dest, path string) error {
	out, err := safeJoin(dest, path)
	if err != nil {
		return err
	}

	data, err := a.ReadFile(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// safeJoin resolves an archive path under dest, rejecting anything
// that would escape it. Archive paths are attacker-supplied data.
func safeJoin(dest, path string) (string, error) {
	if strings.HasPrefix(path, "/") || filepath.IsAbs(filepath.FromSlash(path)) {
		return "", fmt.Errorf("absolute archive path %q", path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return "", fmt.Errorf("archive path %q escapes destination", path)
		}
	}
	return filepath.Join(dest, filepath.FromSlash(path)), nil
}
