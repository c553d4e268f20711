package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:    "info",
		WaitTimeout: 1000, // 1 second
		NoColor:     BoolPtr(false),
		Engine: EngineConfig{
			Pipelining: "off",
		},
		Defaults: RequestDefaults{
			UserAgent:       "hitmux",
			Timeout:         30000, // 30 seconds
			FollowRedirects: BoolPtr(true),
			MaxRedirects:    10,
			Insecure:        BoolPtr(false),
		},
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	d := DefaultConfig()
	return c.LogLevel == d.LogLevel &&
		c.WaitTimeout == d.WaitTimeout &&
		c.GetNoColor() == d.GetNoColor() &&
		c.Engine == d.Engine &&
		c.Defaults.UserAgent == d.Defaults.UserAgent &&
		c.Defaults.Timeout == d.Defaults.Timeout &&
		getBool(c.Defaults.FollowRedirects, true) == getBool(d.Defaults.FollowRedirects, true) &&
		c.Defaults.MaxRedirects == d.Defaults.MaxRedirects &&
		getBool(c.Defaults.Insecure, false) == getBool(d.Defaults.Insecure, false) &&
		len(c.Defaults.Headers) == 0 &&
		c.ShareSettings() == nil
}
