// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package bijector

import "github.com/born-ml/flow/internal/bijector"

// Error categories. Every error returned by this package matches exactly
// one of them with errors.Is.
var (
	ErrShape  = bijector.ErrShape
	ErrDomain = bijector.ErrDomain
	ErrConfig = bijector.ErrConfig
)

// ShapeError reports an input whose dimensions do not match the bijector.
type ShapeError = bijector.ShapeError

// DomainError reports an argument or parameter outside its valid range.
type DomainError = bijector.DomainError

// ConfigError reports an invalid composition such as an empty Chain.
type ConfigError = bijector.ConfigError
