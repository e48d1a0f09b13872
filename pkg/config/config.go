// Package config loads the panel configuration file. TOML (config.toml) and
// YAML files are accepted; the format is picked from the file extension.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBinary is the analysis tool executable looked up on PATH.
	DefaultBinary = "osa_tool"
	// DefaultListen is the HTTP API listen address.
	DefaultListen = "127.0.0.1:8080"
	// DefaultSummaryFile is the about section file the tool writes.
	DefaultSummaryFile = "about_section.md"
	// DefaultMaxSessions bounds concurrently open HTTP sessions.
	DefaultMaxSessions = 64
)

// DefaultReportPatterns are the report globs collected after a run.
var DefaultReportPatterns = []string{"*.pdf"}

// Config represents the top-level configuration file structure
type Config struct {
	Paths  PathsConfig  `toml:"paths" yaml:"paths"`
	Tool   ToolConfig   `toml:"tool" yaml:"tool"`
	Server ServerConfig `toml:"server" yaml:"server"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	// Tmp is the parent of every session temp directory. Empty means the
	// system temp dir.
	Tmp string `toml:"tmp" yaml:"tmp"`
	// Log is an optional file the panel's own log is appended to.
	Log string `toml:"log" yaml:"log"`
}

// ToolConfig describes how the analysis tool is launched.
type ToolConfig struct {
	Binary         string   `toml:"binary" yaml:"binary"`
	Args           []string `toml:"args" yaml:"args"`
	Timeout        string   `toml:"timeout" yaml:"timeout"`
	ReportPatterns []string `toml:"report-patterns" yaml:"report-patterns"`
	SummaryFile    string   `toml:"summary-file" yaml:"summary-file"`
	MaxLogBytes    int      `toml:"max-log-bytes" yaml:"max-log-bytes"`

	timeout time.Duration
}

// TimeoutDuration returns the parsed Timeout. Zero means no limit.
func (t ToolConfig) TimeoutDuration() time.Duration {
	return t.timeout
}

// SetTimeout overrides the timeout, keeping the textual form in sync.
func (t *ToolConfig) SetTimeout(d time.Duration) {
	t.timeout = d
	if d == 0 {
		t.Timeout = ""
		return
	}
	t.Timeout = d.String()
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen      string `toml:"listen" yaml:"listen"`
	MaxSessions int    `toml:"max-sessions" yaml:"max-sessions"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	// Defaults are valid by construction.
	_ = cfg.ApplyDefaults()
	return cfg
}

// LoadFromFile reads a TOML or YAML configuration file and returns the
// parsed Config with defaults applied.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file type %q (use .toml, .yaml or .yml)", filepath.Ext(filename))
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills unset values and validates the rest.
func (c *Config) ApplyDefaults() error {
	c.Tool.Binary = strings.TrimSpace(c.Tool.Binary)
	if c.Tool.Binary == "" {
		c.Tool.Binary = DefaultBinary
	}
	if len(c.Tool.ReportPatterns) == 0 {
		c.Tool.ReportPatterns = append([]string(nil), DefaultReportPatterns...)
	}
	for i, p := range c.Tool.ReportPatterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("tool: report pattern at index %d (%q) is invalid: %w", i, p, err)
		}
	}
	if c.Tool.SummaryFile == "" {
		c.Tool.SummaryFile = DefaultSummaryFile
	}
	if strings.ContainsRune(c.Tool.SummaryFile, filepath.Separator) {
		return fmt.Errorf("tool: summary-file must be a file name, got %q", c.Tool.SummaryFile)
	}
	if c.Tool.MaxLogBytes < 0 {
		c.Tool.MaxLogBytes = -1
	}

	c.Tool.timeout = 0
	if s := strings.TrimSpace(c.Tool.Timeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("tool: invalid timeout %q: %w", c.Tool.Timeout, err)
		}
		if d < 0 {
			return fmt.Errorf("tool: timeout must not be negative, got %s", d)
		}
		c.Tool.timeout = d
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.MaxSessions <= 0 {
		c.Server.MaxSessions = DefaultMaxSessions
	}

	if c.Paths.Tmp != "" {
		info, err := os.Stat(c.Paths.Tmp)
		if err != nil {
			return fmt.Errorf("paths: tmp directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("paths: tmp %q is not a directory", c.Paths.Tmp)
		}
	}

	return nil
}

// TmpDir returns the parent directory for session temp dirs.
func (c *Config) TmpDir() string {
	if c.Paths.Tmp == "" {
		return os.TempDir()
	}
	return c.Paths.Tmp
}
