package config

// Config represents the complete herald configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	State    StateConfig    `yaml:"state"`
	Server   ServerConfig   `yaml:"server"`
	Delivery DeliveryConfig `yaml:"delivery,omitempty"`
	BotsFile string         `yaml:"bots_file,omitempty"`

	// Bots is populated from BotsFile at load time; it is not part of the
	// main config document.
	Bots []BotConfig `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines message storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig defines the HTTP listener settings.
type ServerConfig struct {
	Listen string `yaml:"listen"`

	// MaxBodySize caps inbound webhook bodies, e.g. "1MB" or "262144".
	MaxBodySize string `yaml:"max_body_size,omitempty"`
}

// DeliveryConfig defines per-bot delivery throttling and history retention.
type DeliveryConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
	HistoryLimit  int `yaml:"history_limit"`
}

// BotConfig declares one integration bot in the bots file.
type BotConfig struct {
	Name string `yaml:"name"`

	// APIKey may reference an environment variable as ${VAR}.
	APIKey string `yaml:"api_key"`

	// Stream is the destination conversation this bot posts into.
	Stream string `yaml:"stream"`
}

// BotsFile is the document shape of bots.yaml.
type BotsFile struct {
	Bots []BotConfig `yaml:"bots"`
}

// ChecksumManifest is the .checksums document covering credential files.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "herald",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/herald.db",
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8080",
		},
		Delivery: DeliveryConfig{
			RatePerMinute: 60,
			Burst:         10,
			HistoryLimit:  200,
		},
		BotsFile: "bots.yaml",
	}
}
