package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// DefaultMaxBodySize caps webhook bodies when server.max_body_size is unset.
const DefaultMaxBodySize = 1048576 // 1 MB

// Load reads and parses configuration from a file or directory.
// A directory must contain config.yaml; the bots file is resolved relative to
// the config file's directory and verified against .checksums when present.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}
	cfg = applyDefaults(cfg)

	configDir := filepath.Dir(absPath)
	botsPath := cfg.BotsFile
	if !filepath.IsAbs(botsPath) {
		botsPath = filepath.Join(configDir, botsPath)
	}

	// Credential files are integrity-checked when a manifest exists next to
	// them. 'herald config lock' authorizes edits by regenerating it.
	if err := VerifyBotsFile(filepath.Dir(botsPath), filepath.Base(botsPath)); err != nil {
		return nil, err
	}

	bots, err := loadBotsFile(botsPath)
	if err != nil {
		return nil, err
	}
	cfg.Bots = bots

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DiscoverConfigDir finds the config directory by checking standard locations.
// Priority order: $HERALD_CONFIG_DIR, ~/.config/herald, /etc/herald, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv("HERALD_CONFIG_DIR"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "herald")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	if _, err := os.Stat("/etc/herald"); err == nil {
		return "/etc/herald", nil
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("no configuration found\n" +
		"Hint: Set HERALD_CONFIG_DIR, create ~/.config/herald, or run with --config")
}

func loadBotsFile(path string) ([]BotConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bots file %s: %w", path, err)
	}

	var doc BotsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse bots file %s: %w", path, err)
	}

	for i := range doc.Bots {
		doc.Bots[i].APIKey = expandEnv(doc.Bots[i].APIKey)
	}
	return doc.Bots, nil
}

// expandEnv replaces ${VAR} references with environment values. Unset
// variables expand to the empty string and fail validation downstream.
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func applyDefaults(cfg *Config) *Config {
	def := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = def.Service.LogFormat
	}
	if cfg.State.Path == "" {
		cfg.State.Path = def.State.Path
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = def.Server.Listen
	}
	if cfg.Delivery.RatePerMinute <= 0 {
		cfg.Delivery.RatePerMinute = def.Delivery.RatePerMinute
	}
	if cfg.Delivery.Burst <= 0 {
		cfg.Delivery.Burst = def.Delivery.Burst
	}
	if cfg.Delivery.HistoryLimit <= 0 {
		cfg.Delivery.HistoryLimit = def.Delivery.HistoryLimit
	}
	if cfg.BotsFile == "" {
		cfg.BotsFile = def.BotsFile
	}
	return cfg
}

func validate(cfg *Config) error {
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if _, err := ParseMaxBodySize(cfg.Server.MaxBodySize); err != nil {
		return fmt.Errorf("server.max_body_size %q: %w", cfg.Server.MaxBodySize, err)
	}

	if len(cfg.Bots) == 0 {
		return fmt.Errorf("no bots configured (bots file is empty)")
	}

	seen := make(map[string]bool, len(cfg.Bots))
	for i, b := range cfg.Bots {
		if b.Name == "" {
			return fmt.Errorf("bot[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("bot %q is declared twice", b.Name)
		}
		seen[b.Name] = true
		if b.APIKey == "" {
			return fmt.Errorf("bot %q: api_key is empty (unset environment variable?)", b.Name)
		}
		if b.Stream == "" {
			return fmt.Errorf("bot %q: stream is required", b.Name)
		}
	}
	return nil
}

// ParseMaxBodySize parses size strings like "1MB", "256KB" or "1048576" to
// bytes. Returns DefaultMaxBodySize if empty.
func ParseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(size)
	multiplier := int64(1)

	if strings.HasSuffix(upper, "KB") {
		multiplier = 1024
		size = strings.TrimSuffix(upper, "KB")
	} else if strings.HasSuffix(upper, "MB") {
		multiplier = 1024 * 1024
		size = strings.TrimSuffix(upper, "MB")
	} else if strings.HasSuffix(upper, "GB") {
		multiplier = 1024 * 1024 * 1024
		size = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(size), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}

	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result < 0 { // Check for overflow
		return 0, fmt.Errorf("size too large")
	}

	return result, nil
}
