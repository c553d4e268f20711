package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/hitmux/packages/transport"
	"gopkg.in/yaml.v3"
)

// Config represents the hitmux configuration
type Config struct {
	LogLevel    string          `yaml:"logLevel,omitempty"`
	WaitTimeout int             `yaml:"waitTimeout,omitempty"` // milliseconds
	NoColor     *bool           `yaml:"noColor,omitempty"`
	Engine      EngineConfig    `yaml:"engine,omitempty"`
	Defaults    RequestDefaults `yaml:"defaults,omitempty"`
	Share       ShareConfig     `yaml:"share,omitempty"`
}

// EngineConfig holds context-wide transport settings
type EngineConfig struct {
	Pipelining          string  `yaml:"pipelining,omitempty"` // off, http1 or multiplex
	MaxHostConnections  int     `yaml:"maxHostConnections,omitempty"`
	MaxTotalConnections int     `yaml:"maxTotalConnections,omitempty"`
	RequestRate         float64 `yaml:"requestRate,omitempty"` // requests started per second
}

// RequestDefaults are merged under every request of a batch
type RequestDefaults struct {
	Headers         map[string]string `yaml:"headers,omitempty"`
	UserAgent       string            `yaml:"userAgent,omitempty"`
	Timeout         int               `yaml:"timeout,omitempty"` // milliseconds
	FollowRedirects *bool             `yaml:"followRedirects,omitempty"`
	MaxRedirects    int               `yaml:"maxRedirects,omitempty"`
	Insecure        *bool             `yaml:"insecure,omitempty"`
}

// ShareConfig selects what requests share across a batch and between batches
type ShareConfig struct {
	Cookies     *bool `yaml:"cookies,omitempty"`
	Connections *bool `yaml:"connections,omitempty"`
	SSLSessions *bool `yaml:"sslSessions,omitempty"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetWaitTimeout returns the wait timeout as a duration
func (c *Config) GetWaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeout) * time.Millisecond
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".hitmux.yaml",
	".hitmux.yml",
	"hitmux.yaml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// Validate checks values that cannot be represented as engine options
func (c *Config) Validate() error {
	if _, err := transport.ParsePipelining(c.Engine.Pipelining); err != nil {
		return err
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("waitTimeout must not be negative")
	}
	if c.Engine.MaxHostConnections < 0 || c.Engine.MaxTotalConnections < 0 {
		return fmt.Errorf("connection limits must not be negative")
	}
	if c.Engine.RequestRate < 0 {
		return fmt.Errorf("requestRate must not be negative")
	}
	if c.Defaults.Timeout < 0 || c.Defaults.MaxRedirects < 0 {
		return fmt.Errorf("request defaults must not be negative")
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}
	if other.WaitTimeout > 0 {
		result.WaitTimeout = other.WaitTimeout
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if other.Engine.Pipelining != "" {
		result.Engine.Pipelining = other.Engine.Pipelining
	}
	if other.Engine.MaxHostConnections > 0 {
		result.Engine.MaxHostConnections = other.Engine.MaxHostConnections
	}
	if other.Engine.MaxTotalConnections > 0 {
		result.Engine.MaxTotalConnections = other.Engine.MaxTotalConnections
	}
	if other.Engine.RequestRate > 0 {
		result.Engine.RequestRate = other.Engine.RequestRate
	}

	if other.Defaults.UserAgent != "" {
		result.Defaults.UserAgent = other.Defaults.UserAgent
	}
	if other.Defaults.Timeout > 0 {
		result.Defaults.Timeout = other.Defaults.Timeout
	}
	if other.Defaults.MaxRedirects > 0 {
		result.Defaults.MaxRedirects = other.Defaults.MaxRedirects
	}
	if other.Defaults.FollowRedirects != nil {
		result.Defaults.FollowRedirects = other.Defaults.FollowRedirects
	}
	if other.Defaults.Insecure != nil {
		result.Defaults.Insecure = other.Defaults.Insecure
	}

	if len(other.Defaults.Headers) > 0 {
		headers := make(map[string]string, len(c.Defaults.Headers)+len(other.Defaults.Headers))
		for k, v := range c.Defaults.Headers {
			headers[k] = v
		}
		for k, v := range other.Defaults.Headers {
			headers[k] = v
		}
		result.Defaults.Headers = headers
	}

	if other.Share.Cookies != nil {
		result.Share.Cookies = other.Share.Cookies
	}
	if other.Share.Connections != nil {
		result.Share.Connections = other.Share.Connections
	}
	if other.Share.SSLSessions != nil {
		result.Share.SSLSessions = other.Share.SSLSessions
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EngineOptions converts the engine section for mux.Context.SetEngineOptions.
// Unset limits are left out so the transport keeps its own defaults.
func (c *Config) EngineOptions() (map[transport.MultiOption]any, error) {
	mode, err := transport.ParsePipelining(c.Engine.Pipelining)
	if err != nil {
		return nil, err
	}

	opts := map[transport.MultiOption]any{
		transport.MultiPipelining: mode,
	}
	if c.Engine.MaxHostConnections > 0 {
		opts[transport.MultiMaxHostConnections] = c.Engine.MaxHostConnections
	}
	if c.Engine.MaxTotalConnections > 0 {
		opts[transport.MultiMaxTotalConnections] = c.Engine.MaxTotalConnections
	}
	if c.Engine.RequestRate > 0 {
		opts[transport.MultiMaxRequestRate] = c.Engine.RequestRate
	}
	return opts, nil
}

// DefaultOptions converts the defaults section for mux.Context.SetDefaults.
// Responses are always buffered with their header block so they can be parsed.
func (c *Config) DefaultOptions() transport.Options {
	d := c.Defaults
	opts := transport.Options{
		transport.OptReturnTransfer: true,
		transport.OptHeader:         true,
		transport.OptFollowLocation: getBool(d.FollowRedirects, true),
	}

	if len(d.Headers) > 0 {
		opts[transport.OptHTTPHeader] = HeaderLines(d.Headers)
	}
	if d.UserAgent != "" {
		opts[transport.OptUserAgent] = d.UserAgent
	}
	if d.Timeout > 0 {
		opts[transport.OptTimeout] = time.Duration(d.Timeout) * time.Millisecond
	}
	if d.MaxRedirects > 0 {
		opts[transport.OptMaxRedirs] = d.MaxRedirects
	}
	if getBool(d.Insecure, false) {
		opts[transport.OptSSLVerifyPeer] = false
	}
	return opts
}

// ShareSettings converts the share section. It returns nil when nothing is
// shared.
func (c *Config) ShareSettings() transport.ShareSettings {
	settings := transport.ShareSettings{}
	if getBool(c.Share.Cookies, false) {
		settings[transport.LockDataCookie] = transport.ShareLock
	}
	if getBool(c.Share.Connections, false) {
		settings[transport.LockDataConnect] = transport.ShareLock
	}
	if getBool(c.Share.SSLSessions, false) {
		settings[transport.LockDataSSLSession] = transport.ShareLock
	}
	if len(settings) == 0 {
		return nil
	}
	return settings
}

// HeaderLines renders a header map as sorted "Key: Value" lines.
func HeaderLines(headers map[string]string) []string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+headers[k])
	}
	return lines
}
