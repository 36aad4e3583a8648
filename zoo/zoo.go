// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package zoo fetches pretrained weights into a local cache.
package zoo

import (
	"github.com/born-ml/vision/internal/zoo"
)

// Registry maps model names to weights files.
type Registry = zoo.Registry

// Config configures where weights are cached and fetched from.
type Config = zoo.Config

// Entry describes one registered weights file.
type Entry = zoo.Entry

// Environment variables read by DefaultConfig.
const (
	EnvCacheDir   = zoo.EnvCacheDir
	EnvWeightsURL = zoo.EnvWeightsURL
)

// Registered model names.
const (
	SqueezeNet11 = zoo.SqueezeNet11
	VGG16Reduced = zoo.VGG16Reduced
)

// DefaultConfig returns the configuration taken from the environment.
func DefaultConfig() Config {
	return zoo.DefaultConfig()
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return zoo.NewRegistry(cfg)
}

// DefaultRegistry returns a registry with the built-in model names,
// configured from the environment.
func DefaultRegistry() *Registry {
	return zoo.DefaultRegistry()
}

// NewDefaultRegistry returns a registry using cfg with the built-in model
// names registered.
func NewDefaultRegistry(cfg Config) *Registry {
	return zoo.NewDefaultRegistry(cfg)
}
