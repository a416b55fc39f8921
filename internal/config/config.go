package config

import (
	"time"

	"github.com/pathcanon/pathcanon/internal/normalize"
)

type Config struct {
	ConfigVersion int           `yaml:"configVersion" toml:"configVersion"`
	Grammar       string        `yaml:"grammar" toml:"grammar"`
	ExpandHome    bool          `yaml:"expandHome" toml:"expandHome"`
	Server        ServerConfig  `yaml:"server" toml:"server"`
	Logging       LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics       MetricsConfig `yaml:"metrics" toml:"metrics"`

	baseDir string
}

type ServerConfig struct {
	Listen       string          `yaml:"listen" toml:"listen"`
	Timeout      Duration        `yaml:"timeout" toml:"timeout"`
	MaxFragments int             `yaml:"maxFragments" toml:"maxFragments"`
	RateLimit    RateLimitConfig `yaml:"rateLimit" toml:"rateLimit"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" toml:"enabled"`
	RPS     float64 `yaml:"rps" toml:"rps"`
	Burst   int     `yaml:"burst" toml:"burst"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" toml:"level"`
	Format   string `yaml:"format" toml:"format"`
	TraceLog string `yaml:"traceLog" toml:"traceLog"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Listen  string `yaml:"listen" toml:"listen"`
}

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Duration is a time.Duration written as "5s" or "250ms" in config files.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ConfigVersion: 1,
		Grammar:       normalize.GrammarNative,
		ExpandHome:    true,
		Server: ServerConfig{
			Listen:       "127.0.0.1:8787",
			Timeout:      Duration(5 * time.Second),
			MaxFragments: 16,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     50,
				Burst:   100,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: FormatText,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9787",
		},
	}
}

func (c *Config) BaseDir() string {
	return c.baseDir
}

// ResolvePath makes a relative path from the config file relative to the
// file's directory.
func (c *Config) ResolvePath(path string) string {
	return c.resolvePath(path)
}

func (c *Config) ParsedGrammar() (normalize.Grammar, error) {
	return normalize.ParseGrammar(c.Grammar)
}
