// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package random provides the deterministic keys used to initialize bijectors.
//
// Example:
//
//	key := random.NewKey(42)
//	keys := key.Split(3) // independent, reproducible child keys
package random

import "github.com/born-ml/flow/internal/random"

// Key is an immutable, splittable seed.
type Key = random.Key

// NewKey creates a key from an integer seed.
func NewKey(seed uint64) Key {
	return random.NewKey(seed)
}
