// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil holds filesystem helpers for media path handling.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path resolves outside its root.
var ErrEscapesRoot = errors.New("path escapes media root")

// Confine checks that target, absolute or relative to root, stays physically
// underneath root once symlinks are resolved. It returns the resolved path.
func Confine(root, target string) (string, error) {
	if strings.Contains(target, "\\") {
		return "", fmt.Errorf("path contains backslash: %s", target)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid media root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		realRoot = absRoot
	}

	full := filepath.Clean(target)
	if !filepath.IsAbs(full) {
		// Segment check so names like "..clip.mp4" stay allowed.
		if full == ".." || strings.HasPrefix(full, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrEscapesRoot, target)
		}
		full = filepath.Join(realRoot, full)
	}

	return resolveWithin(realRoot, full)
}

// resolveWithin resolves symlinks in full and verifies the result is inside realRoot.
// A missing leaf is resolved through its parent directory.
func resolveWithin(realRoot, full string) (string, error) {
	real, err := filepath.EvalSymlinks(full)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		dir := filepath.Dir(full)
		rp, dirErr := filepath.EvalSymlinks(dir)
		switch {
		case dirErr == nil:
			real = filepath.Join(rp, filepath.Base(full))
		case os.IsNotExist(dirErr):
			real = full
		default:
			return "", fmt.Errorf("resolve parent of %s: %w", full, dirErr)
		}
	default:
		return "", fmt.Errorf("resolve %s: %w", full, err)
	}

	rel, err := filepath.Rel(realRoot, real)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, real)
	}
	return real, nil
}
