// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package config loads the gridsource settings from file, environment and
// command line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/a1s/gridsource/internal/config/data"
	"github.com/a1s/gridsource/internal/dao"
	"github.com/a1s/gridsource/internal/datasource"
	"github.com/spf13/viper"
)

// Default values
const (
	DefaultPageSize    = 100
	DefaultRefreshRate = 2.0
	DefaultCacheTTL    = 30 * time.Second
	DefaultRangePolicy = "strict"
	DefaultLogLevel    = "info"
	DefaultKey         = "id"

	// EnvPrefix prefixes environment overrides, e.g. GRIDSOURCE_PAGESIZE.
	EnvPrefix = "GRIDSOURCE"
)

// Config is the root configuration for the application.
type Config struct {
	Source      string        `yaml:"source,omitempty" mapstructure:"source"`
	Table       string        `yaml:"table,omitempty" mapstructure:"table"`
	Key         string        `yaml:"key" mapstructure:"key"`
	PageSize    int           `yaml:"pageSize" mapstructure:"pageSize"`
	RefreshRate float32       `yaml:"refreshRate" mapstructure:"refreshRate"`
	CacheTTL    time.Duration `yaml:"cacheTTL" mapstructure:"cacheTTL"`
	RangePolicy string        `yaml:"rangePolicy" mapstructure:"rangePolicy"`
	ReadOnly    bool          `yaml:"readOnly" mapstructure:"readOnly"`
	LogLevel    string        `yaml:"logLevel" mapstructure:"logLevel"`
	LogFile     string        `yaml:"logFile,omitempty" mapstructure:"logFile"`
	Profile     string        `yaml:"profile,omitempty" mapstructure:"profile"`
	Region      string        `yaml:"region,omitempty" mapstructure:"region"`
}

// NewConfig creates a Config with default settings.
func NewConfig() *Config {
	return &Config{
		Key:         DefaultKey,
		PageSize:    DefaultPageSize,
		RefreshRate: DefaultRefreshRate,
		CacheTTL:    DefaultCacheTTL,
		RangePolicy: DefaultRangePolicy,
		LogLevel:    DefaultLogLevel,
	}
}

// Load reads the configuration at path with environment overrides applied.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	d := NewConfig()
	v.SetDefault("source", d.Source)
	v.SetDefault("table", d.Table)
	v.SetDefault("key", d.Key)
	v.SetDefault("pageSize", d.PageSize)
	v.SetDefault("refreshRate", d.RefreshRate)
	v.SetDefault("cacheTTL", d.CacheTTL)
	v.SetDefault("rangePolicy", d.RangePolicy)
	v.SetDefault("readOnly", d.ReadOnly)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("logFile", d.LogFile)
	v.SetDefault("profile", d.Profile)
	v.SetDefault("region", d.Region)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	if path == "" {
		return fmt.Errorf("no config file path configured")
	}
	if err := data.SaveYAML(path, c); err != nil {
		return fmt.Errorf("failed to save config to %s: %w", path, err)
	}

	return nil
}

// Validate restores defaults for unset values and rejects invalid ones.
func (c *Config) Validate() error {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.RefreshRate < 0 {
		c.RefreshRate = DefaultRefreshRate
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.Key == "" {
		c.Key = DefaultKey
	}
	if c.RangePolicy == "" {
		c.RangePolicy = DefaultRangePolicy
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if _, err := datasource.ParseRangePolicy(c.RangePolicy); err != nil {
		return err
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	return nil
}

// Override applies CLI flag overrides to the configuration. Nil flags are
// left alone.
func (c *Config) Override(flags *data.Flags) {
	if flags == nil {
		return
	}

	if IsStringSet(flags.Table) {
		c.Table = *flags.Table
	}
	if IsStringSet(flags.Key) {
		c.Key = *flags.Key
	}
	if flags.PageSize != nil && *flags.PageSize > 0 {
		c.PageSize = *flags.PageSize
	}
	if flags.RefreshRate != nil {
		c.RefreshRate = *flags.RefreshRate
	}
	if IsStringSet(flags.RangePolicy) {
		c.RangePolicy = *flags.RangePolicy
	}
	if flags.ReadOnly != nil {
		c.ReadOnly = *flags.ReadOnly
	}
	// Write flag overrides ReadOnly
	if IsBoolSet(flags.Write) {
		c.ReadOnly = false
	}
	if IsStringSet(flags.LogLevel) {
		c.LogLevel = *flags.LogLevel
	}
	if IsStringSet(flags.LogFile) {
		c.LogFile = *flags.LogFile
	}
	if IsStringSet(flags.Profile) {
		c.Profile = *flags.Profile
	}
	if IsStringSet(flags.Region) {
		c.Region = *flags.Region
	}
}

// RefreshInterval returns the refresh rate as a duration. Zero disables
// watching.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(float64(c.RefreshRate) * float64(time.Second))
}

// Options converts the configuration into source options.
func (c *Config) Options() (dao.Options, error) {
	policy, err := datasource.ParseRangePolicy(c.RangePolicy)
	if err != nil {
		return dao.Options{}, err
	}

	return dao.Options{
		PageSize:    c.PageSize,
		CacheTTL:    c.CacheTTL,
		RefreshRate: c.RefreshInterval(),
		RangePolicy: policy,
		ReadOnly:    c.ReadOnly,
		Table:       c.Table,
		Key:         c.Key,
		Profile:     c.Profile,
		Region:      c.Region,
	}, nil
}
