package assets

import (
	_ "embed"
)

// DefaultConfigYAML contains the embedded default configuration.
//
//go:embed defaults/config.yaml
var DefaultConfigYAML []byte

// DefaultTriggersYAML contains the embedded default trigger rules.
//
//go:embed defaults/triggers.yaml
var DefaultTriggersYAML []byte
