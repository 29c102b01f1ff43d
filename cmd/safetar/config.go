package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/safetar/pkg/compress"
	"github.com/odvcencio/safetar/pkg/policy"
)

// fileConfig mirrors the optional safetar.toml: default resource limits,
// a default compression codec, and standing exclude patterns. CLI flags
// always win over file values.
type fileConfig struct {
	Limits struct {
		MaxFiles      *uint64 `toml:"max_files"`
		MaxTotalBytes *uint64 `toml:"max_total_bytes"`
		MaxSingleFile *uint64 `toml:"max_single_file"`
		MaxDepth      *int    `toml:"max_depth"`
	} `toml:"limits"`
	Create struct {
		Compression string   `toml:"compression"`
		Exclude     []string `toml:"exclude"`
	} `toml:"create"`
}

// configPath resolves the config location: $SAFETAR_CONFIG, else
// ~/.config/safetar/config.toml.
func configPath() string {
	if path := os.Getenv("SAFETAR_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "safetar", "config.toml")
}

// loadConfig reads the config file. A missing file yields an empty config,
// not an error.
func loadConfig() (*fileConfig, error) {
	cfg := &fileConfig{}
	path := configPath()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// basePolicy builds the operation policy: built-in defaults, overridden by
// the config file, overridden by explicit CLI limit flags.
func (c *fileConfig) basePolicy(flags limitFlags) policy.SecurityPolicy {
	pol := policy.New()
	if c.Limits.MaxFiles != nil {
		pol.Limits.MaxFiles = *c.Limits.MaxFiles
	}
	if c.Limits.MaxTotalBytes != nil {
		pol.Limits.MaxTotalBytes = *c.Limits.MaxTotalBytes
	}
	if c.Limits.MaxSingleFile != nil {
		pol.Limits.MaxSingleFile = *c.Limits.MaxSingleFile
	}
	if c.Limits.MaxDepth != nil {
		pol.Limits.MaxDepth = *c.Limits.MaxDepth
	}
	flags.apply(&pol.Limits)
	return pol
}

// defaultCodec resolves the config-file codec for create when no
// compression flag was given.
func (c *fileConfig) defaultCodec() (compress.Codec, error) {
	return compress.Parse(c.Create.Compression)
}

// limitFlags carries the shared --max-* overrides; zero means "not set"
// and is guarded by Changed checks at the call site.
type limitFlags struct {
	maxFiles      uint64
	maxTotalBytes uint64
	maxSingleFile uint64
	maxDepth      int

	maxFilesSet      bool
	maxTotalBytesSet bool
	maxSingleFileSet bool
	maxDepthSet      bool
}

func (f limitFlags) apply(limits *policy.Limits) {
	if f.maxFilesSet {
		limits.MaxFiles = f.maxFiles
	}
	if f.maxTotalBytesSet {
		limits.MaxTotalBytes = f.maxTotalBytes
	}
	if f.maxSingleFileSet {
		limits.MaxSingleFile = f.maxSingleFile
	}
	if f.maxDepthSet {
		limits.MaxDepth = f.maxDepth
	}
}
