// Package config handles bcdiff.toml tool configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	"bcdiff/internal/jar"
)

// FileName is the configuration file FindAndLoad looks for.
const FileName = "bcdiff.toml"

// Config represents a bcdiff.toml file.
type Config struct {
	Generate  Generate  `toml:"generate"`
	Apply     Apply     `toml:"apply"`
	Hierarchy Hierarchy `toml:"hierarchy"`
	Log       Log       `toml:"log"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

// Generate configures patch generation.
type Generate struct {
	Context  int      `toml:"context"`
	Prefixes []string `toml:"prefixes"`
	Workers  int      `toml:"workers"`
	Color    string   `toml:"color"` // auto, always or never
}

// Apply configures patch application.
type Apply struct {
	NativeSuffixes []string `toml:"native-suffixes"`
	Workers        int      `toml:"workers"`
}

// Hierarchy configures type resolution for frame computation.
type Hierarchy struct {
	Strict    bool     `toml:"strict"`
	Classpath []string `toml:"classpath"`
	Index     string   `toml:"index"`
}

// Log configures diagnostics.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	c := &Config{}
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.Generate.Context == 0 {
		c.Generate.Context = 3
	}
	if c.Generate.Workers <= 0 {
		c.Generate.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Generate.Color == "" {
		c.Generate.Color = "auto"
	}
	if c.Apply.NativeSuffixes == nil {
		c.Apply.NativeSuffixes = jar.DefaultNativeSuffixes
	}
	if c.Apply.Workers <= 0 {
		c.Apply.Workers = runtime.GOMAXPROCS(0)
	}
}

// Load parses the configuration file at path. Relative classpath and index
// entries are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	switch c.Generate.Color {
	case "", "auto", "always", "never":
	default:
		return nil, fmt.Errorf("%s: color must be auto, always or never, got %q", path, c.Generate.Color)
	}
	if c.Generate.Context < 0 {
		return nil, fmt.Errorf("%s: negative context %d", path, c.Generate.Context)
	}

	dir := filepath.Dir(path)
	for i, p := range c.Hierarchy.Classpath {
		c.Hierarchy.Classpath[i] = resolve(dir, p)
	}
	if c.Hierarchy.Index != "" {
		c.Hierarchy.Index = resolve(dir, c.Hierarchy.Index)
	}
	c.Path = path
	c.defaults()
	return &c, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// FindAndLoad walks up from startDir to find a bcdiff.toml file and loads
// it. Without one it returns Default().
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}
