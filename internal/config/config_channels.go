package config

// ChannelsConfig contains per-transport configuration.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	Proxy   string `json:"proxy,omitempty"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

// HasAnyChannel reports whether at least one transport is configured.
func (c *Config) HasAnyChannel() bool {
	return (c.Channels.Telegram.Enabled && c.Channels.Telegram.Token != "") ||
		(c.Channels.Discord.Enabled && c.Channels.Discord.Token != "")
}

// HasAnyProvider checks if any AI provider has an API key configured.
func (c *Config) HasAnyProvider() bool {
	for _, p := range c.Providers {
		if p.APIKey != "" {
			return true
		}
	}
	return false
}
