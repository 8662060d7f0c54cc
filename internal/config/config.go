// Package config loads deptree settings from .deptree.yaml, DEPTREE_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/phobologic/deptree/internal/deptree"
	"github.com/phobologic/deptree/internal/lang"
	"github.com/phobologic/deptree/internal/output"
	"github.com/phobologic/deptree/internal/scan"
)

const (
	// DefaultConfigFile is the configuration file name without extension.
	DefaultConfigFile = ".deptree"
	// DefaultConfigType is the configuration file type.
	DefaultConfigType = "yaml"
	// EnvPrefix prefixes environment overrides, e.g. DEPTREE_EXTRACT_MAX_DEPTH.
	EnvPrefix = "DEPTREE"

	// DefaultMaxFileSize is the largest source file indexed, in bytes.
	DefaultMaxFileSize = 1_000_000
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all deptree settings.
type Config struct {
	Extract   ExtractConfig `mapstructure:"extract" yaml:"extract"`
	Languages []string      `mapstructure:"languages" yaml:"languages"`
	Index     IndexConfig   `mapstructure:"index" yaml:"index"`
	Scan      ScanConfig    `mapstructure:"scan" yaml:"scan"`
	Cache     CacheConfig   `mapstructure:"cache" yaml:"cache"`
}

// ExtractConfig controls tree building and rendering.
type ExtractConfig struct {
	// MaxDepth is the recursion limit; 0 yields the entry alone.
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`
	// Format is json, yaml or toon.
	Format string `mapstructure:"format" yaml:"format"`
}

// IndexConfig controls which files are indexed.
type IndexConfig struct {
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size"`
	SkipTests   bool  `mapstructure:"skip_tests" yaml:"skip_tests"`
}

// ScanConfig sizes the call-scan memo.
type ScanConfig struct {
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
}

// CacheConfig configures the on-disk output cache. An empty Dir disables it.
type CacheConfig struct {
	Dir string        `mapstructure:"dir" yaml:"dir"`
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Extract: ExtractConfig{
			MaxDepth: deptree.DefaultMaxDepth,
			Format:   string(output.JSON),
		},
		Languages: lang.Names(),
		Index: IndexConfig{
			MaxFileSize: DefaultMaxFileSize,
		},
		Scan: ScanConfig{
			CacheSize: scan.DefaultCacheSize,
		},
	}
}

// New returns a viper instance carrying the defaults and the environment
// bindings. Callers bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("extract.max_depth", d.Extract.MaxDepth)
	v.SetDefault("extract.format", d.Extract.Format)
	v.SetDefault("languages", d.Languages)
	v.SetDefault("index.max_file_size", d.Index.MaxFileSize)
	v.SetDefault("index.skip_tests", d.Index.SkipTests)
	v.SetDefault("scan.cache_size", d.Scan.CacheSize)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttl", d.Cache.TTL)
}

// Load reads cfgFile, or .deptree.yaml in root when cfgFile is empty, into
// v and returns the merged, validated configuration. A missing default file
// is not an error; a missing explicit file is.
func Load(v *viper.Viper, cfgFile, root string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(DefaultConfigFile)
		v.SetConfigType(DefaultConfigType)
		v.AddConfigPath(root)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path returns the default configuration file path for root.
func Path(root string) string {
	return filepath.Join(root, DefaultConfigFile+"."+DefaultConfigType)
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	if c.Extract.MaxDepth < 0 {
		return fmt.Errorf("%w: extract.max_depth must not be negative, got %d", ErrInvalid, c.Extract.MaxDepth)
	}
	if _, err := output.ParseFormat(c.Extract.Format); err != nil {
		return fmt.Errorf("%w: extract.format: %v", ErrInvalid, err)
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("%w: at least one language must be enabled", ErrInvalid)
	}
	for _, name := range c.Languages {
		if _, ok := lang.Languages[name]; !ok {
			return fmt.Errorf("%w: unsupported language %q (supported: %s)", ErrInvalid, name, strings.Join(lang.Names(), ", "))
		}
	}
	if c.Index.MaxFileSize < 0 {
		return fmt.Errorf("%w: index.max_file_size must not be negative", ErrInvalid)
	}
	if c.Scan.CacheSize < 0 {
		return fmt.Errorf("%w: scan.cache_size must not be negative", ErrInvalid)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache.ttl must not be negative", ErrInvalid)
	}
	return nil
}
