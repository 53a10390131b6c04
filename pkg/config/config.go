// Package config manages mtlgen's project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the complete mtlgen project configuration, loaded from
// mtlgen.toml (spec §6.5 "CLI configuration").
type Config struct {
	Generation GenerationConfig        `toml:"generation"`
	Models     map[string]ModelConfig  `toml:"models"`
}

// GenerationConfig controls the default generation run.
type GenerationConfig struct {
	// MainTemplate names the template to run when none is given on the
	// command line. Empty means auto-detect (spec §6.5 "Main template
	// auto-detect").
	MainTemplate string `toml:"main_template"`

	// OutputDirectory is the configured base directory for generated
	// files. The generate command does not apply it: [file(...)] URLs are
	// resolved against the working directory.
	OutputDirectory string `toml:"output_directory"`

	// Charset is the configured default output encoding. The generate
	// command does not read it: a [file(...)] without a charset argument
	// is written as UTF-8.
	Charset string `toml:"charset"`

	// IndentUnit is the string repeated per indentation level (spec §3
	// "Indentation Stack").
	IndentUnit string `toml:"indent_unit"`

	// Debug enables verbose structured logging during generation.
	Debug bool `toml:"debug"`

	// TraceLinks is the trace-link setting (spec §9 Open Question (a)).
	// Trace links are recorded on every run whatever its value, and the
	// generate command writes ".map" files only when --sourcemap is given.
	TraceLinks bool `toml:"trace_links"`
}

// ModelConfig is one [models.<alias>] entry: where to load a named model
// document from (spec §6.4 "Model loading").
type ModelConfig struct {
	Path string `toml:"path"`
}

// Default returns mtlgen's built-in configuration defaults.
func Default() *Config {
	return &Config{
		Generation: GenerationConfig{
			OutputDirectory: ".",
			Charset:         "UTF-8",
			IndentUnit:      "  ",
			Debug:           false,
			TraceLinks:      true,
		},
		Models: map[string]ModelConfig{},
	}
}

// Load reads mtlgen.toml at path, layering it over Default(). A missing
// file is not an error — a project with no config file just runs with
// defaults (spec §6.5's CLI has no required configuration).
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports whether cfg is self-consistent.
func (c *Config) Validate() error {
	if c.Generation.IndentUnit == "" {
		return fmt.Errorf("generation.indent_unit must not be empty")
	}
	for alias, m := range c.Models {
		if m.Path == "" {
			return fmt.Errorf("models.%s: path must not be empty", alias)
		}
	}
	return nil
}

// ResolveOutputPath joins a [file(...)] url with the configured output
// directory when the url is relative.
func (c *Config) ResolveOutputPath(url string) string {
	if filepath.IsAbs(url) {
		return url
	}
	return filepath.Join(c.Generation.OutputDirectory, url)
}
