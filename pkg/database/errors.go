// Copyright 2025 Worldtree Labs
//
// Package database provides sentinel errors for repository operations.

package database

import "errors"

// ErrRootNotFound is returned when a root has no row in root_history.
var ErrRootNotFound = errors.New("root not found")
