package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "PORTOFOON_CONFIG_DEFAULT_PATH"
	envPrefix            = "PORTOFOON"
	defaultConfigName    = "config.yaml"
)

// Load resolves the config file, layers it over Default and the PORTOFOON_*
// environment, and returns the validated result with the path it used.
// A missing file is created from the defaults.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()
	path := resolveConfigPath(explicitPath)

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := readOrCreate(v, logger, path, cfg); err != nil {
		return cfg, path, err
	}

	// mapstructure merges slices element by element; the viper default
	// already carries the seed channels.
	cfg.Channels = nil
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, path, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, path, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, path, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"addr":                cfg.Addr,
		"read_header_timeout": cfg.ReadHeaderTimeout,
		"shutdown_timeout":    cfg.ShutdownTimeout,
		"log_level":           cfg.LogLevel,
		"max_message_bytes":   cfg.MaxMessageBytes,
		"send_buffer":         cfg.SendBuffer,
		"ping_interval":       cfg.PingInterval,
		"rate_limit":          cfg.RateLimit,
		"database_path":       cfg.DatabasePath,
		"session_retention":   cfg.SessionRetention,
		"channels":            channelDefaults(cfg.Channels),
		"discovery.enabled":   cfg.Discovery.Enabled,
		"discovery.instance":  cfg.Discovery.Instance,
		"discovery.service":   cfg.Discovery.Service,
		"discovery.domain":    cfg.Discovery.Domain,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// readOrCreate reads path into v. When the file does not exist the defaults
// are written there so operators get an editable starting point; failing to
// write it is not fatal.
func readOrCreate(v *viper.Viper, logger *zerolog.Logger, path string, cfg Config) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if err := writeDefaultConfig(path, cfg); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to write default config")
		return nil
	}
	logger.Info().Str("path", path).Msg("created default config")
	if err := v.ReadInConfig(); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to read freshly written config")
	}
	return nil
}

// channelDefaults converts the channel list into the generic shape viper
// decodes from YAML, so an absent key still unmarshals into ChannelConfig.
func channelDefaults(channels []ChannelConfig) []map[string]any {
	out := make([]map[string]any, 0, len(channels))
	for _, ch := range channels {
		out = append(out, map[string]any{
			"id":          ch.ID,
			"name":        ch.Name,
			"description": ch.Description,
		})
	}
	return out
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
