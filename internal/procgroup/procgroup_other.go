// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !linux

package procgroup

// No portable process table: rely on group signalling alone.
func descendants(int) []Proc { return nil }

func isZombie(int) bool { return false }
