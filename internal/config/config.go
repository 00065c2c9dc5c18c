// Package config loads the node binary's settings from a
// YAML file, an optional .env file and MAELNODE_*
// environment variables, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Environment variables read by ApplyEnv.
const (
	EnvLogLevel     = "MAELNODE_LOG_LEVEL"
	EnvLogFormat    = "MAELNODE_LOG_FORMAT"
	EnvHandlers     = "MAELNODE_HANDLERS"
	EnvMaxLineBytes = "MAELNODE_MAX_LINE_BYTES"
)

// Log formats understood by pkg/logging.
const (
	FormatTint = "tint"
	FormatText = "text"
	FormatJSON = "json"
)

// Handler names that can be enabled.
const (
	HandlerEcho       = "echo"
	HandlerUniqueIDs  = "unique-ids"
	HandlerCounterIDs = "counter-ids"
)

const defaultMaxLineBytes = 4 * 1024 * 1024

// Config holds the settings of one node process.
type Config struct { // A
	LogLevel     string   `yaml:"logLevel"`
	LogFormat    string   `yaml:"logFormat"`
	Handlers     []string `yaml:"handlers"`
	MaxLineBytes int      `yaml:"maxLineBytes"`
}

// Default returns the settings used when nothing else is
// configured.
func Default() Config { // A
	return Config{
		LogLevel:  "info",
		LogFormat: FormatTint,
		Handlers: []string{
			HandlerEcho,
			HandlerUniqueIDs,
			HandlerCounterIDs,
		},
		MaxLineBytes: defaultMaxLineBytes,
	}
}

// Load reads the YAML file at path on top of the
// defaults. An empty path returns the defaults. Fields
// missing from the file keep their default value.
func Load(path string) (Config, error) { // A
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.merge(file)
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the
// process environment. Variables that are already set are
// not overwritten. A missing file is not an error.
func LoadEnvFile(path string) error { // A
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

// ApplyEnv overrides fields from MAELNODE_* variables.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv( // A
	lookup func(string) (string, bool),
) error {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.LogFormat = v
	}
	if v, ok := lookup(EnvHandlers); ok && v != "" {
		c.Handlers = SplitList(v)
	}
	if v, ok := lookup(EnvMaxLineBytes); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxLineBytes, err)
		}
		c.MaxLineBytes = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error { // A
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	switch c.LogFormat {
	case FormatTint, FormatText, FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}

	if len(c.Handlers) == 0 {
		return fmt.Errorf("no handlers enabled")
	}
	seen := make(map[string]bool, len(c.Handlers))
	for _, h := range c.Handlers {
		switch h {
		case HandlerEcho, HandlerUniqueIDs, HandlerCounterIDs:
		default:
			return fmt.Errorf("unknown handler %q", h)
		}
		if seen[h] {
			return fmt.Errorf("handler %q enabled twice", h)
		}
		seen[h] = true
	}

	if c.MaxLineBytes <= 0 {
		return fmt.Errorf(
			"maxLineBytes must be positive, got %d",
			c.MaxLineBytes,
		)
	}
	return nil
}

// SplitList splits a comma separated list, trimming
// blanks and dropping empty entries.
func SplitList(s string) []string { // H
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) merge(o Config) {
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		c.LogFormat = o.LogFormat
	}
	if len(o.Handlers) > 0 {
		c.Handlers = o.Handlers
	}
	if o.MaxLineBytes != 0 {
		c.MaxLineBytes = o.MaxLineBytes
	}
}
