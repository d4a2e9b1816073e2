// Package config loads toolrunner settings from the environment and an
// optional YAML file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/everydev1618/toolrunner"
)

// Keys double as environment variable names (upper-cased by Viper).
const (
	KeyAddr                  = "runner_addr"
	KeyDBPath                = "runner_db_path"
	KeyLogLevel              = "log_level"
	KeyExecutionDirPrefix    = "workflow_execution_dir_prefix"
	KeyStorageCredentials    = "workflow_execution_file_storage_credentials"
	KeyAdditionalEnvs        = "tool_additional_envs"
	KeyContainerLabels       = "tool_container_labels"
	KeyDefaultImageTag       = "tool_image_tag_default"
	KeyDockerNetwork         = "docker_network"
	KeyRemoveContainerOnExit = "remove_container_on_exit"
	KeyDatabaseURL           = "database_url"
	KeyDBSchema              = "db_schema"
	KeyLogPublishURL         = "log_publish_url"
	KeyOTLPEndpoint          = "otel_exporter_otlp_endpoint"
	KeyServiceName           = "otel_service_name"
	KeyTracesEnabled         = "otel_traces_enabled"
)

// Config is the resolved runner configuration.
type Config struct {
	Addr     string
	DBPath   string
	LogLevel string

	ExecutionDirPrefix    string
	StorageCredentials    string
	AdditionalEnvs        string
	ContainerLabels       string
	DefaultImageTag       string
	DockerNetwork         string
	RemoveContainerOnExit bool

	// DatabaseURL enables platform-key authentication when set.
	DatabaseURL string
	DBSchema    string

	// LogPublishURL forwards tool events to an HTTP pub/sub bridge when set.
	LogPublishURL string

	OTLPEndpoint  string
	ServiceName   string
	TracesEnabled bool
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Addr:                  ":5002",
		DBPath:                toolrunner.DefaultDBPath(),
		LogLevel:              "info",
		StorageCredentials:    "{}",
		ContainerLabels:       "[]",
		DefaultImageTag:       "latest",
		RemoveContainerOnExit: true,
		DBSchema:              "unstract",
		ServiceName:           "toolrunner",
	}
}

// Load reads configuration from defaults, the optional file at path, and the
// environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault(KeyAddr, defaults.Addr)
	v.SetDefault(KeyDBPath, defaults.DBPath)
	v.SetDefault(KeyLogLevel, defaults.LogLevel)
	v.SetDefault(KeyExecutionDirPrefix, defaults.ExecutionDirPrefix)
	v.SetDefault(KeyStorageCredentials, defaults.StorageCredentials)
	v.SetDefault(KeyAdditionalEnvs, defaults.AdditionalEnvs)
	v.SetDefault(KeyContainerLabels, defaults.ContainerLabels)
	v.SetDefault(KeyDefaultImageTag, defaults.DefaultImageTag)
	v.SetDefault(KeyDockerNetwork, defaults.DockerNetwork)
	v.SetDefault(KeyRemoveContainerOnExit, defaults.RemoveContainerOnExit)
	v.SetDefault(KeyDatabaseURL, defaults.DatabaseURL)
	v.SetDefault(KeyDBSchema, defaults.DBSchema)
	v.SetDefault(KeyLogPublishURL, defaults.LogPublishURL)
	v.SetDefault(KeyOTLPEndpoint, defaults.OTLPEndpoint)
	v.SetDefault(KeyServiceName, defaults.ServiceName)
	v.SetDefault(KeyTracesEnabled, defaults.TracesEnabled)

	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Addr:                  v.GetString(KeyAddr),
		DBPath:                v.GetString(KeyDBPath),
		LogLevel:              v.GetString(KeyLogLevel),
		ExecutionDirPrefix:    v.GetString(KeyExecutionDirPrefix),
		StorageCredentials:    v.GetString(KeyStorageCredentials),
		AdditionalEnvs:        v.GetString(KeyAdditionalEnvs),
		ContainerLabels:       v.GetString(KeyContainerLabels),
		DefaultImageTag:       v.GetString(KeyDefaultImageTag),
		DockerNetwork:         v.GetString(KeyDockerNetwork),
		RemoveContainerOnExit: v.GetBool(KeyRemoveContainerOnExit),
		DatabaseURL:           v.GetString(KeyDatabaseURL),
		DBSchema:              v.GetString(KeyDBSchema),
		LogPublishURL:         v.GetString(KeyLogPublishURL),
		OTLPEndpoint:          v.GetString(KeyOTLPEndpoint),
		ServiceName:           v.GetString(KeyServiceName),
		TracesEnabled:         v.GetBool(KeyTracesEnabled),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present and well formed.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("RUNNER_ADDR is required")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.DatabaseURL != "" && c.DBSchema == "" {
		return errors.New("DB_SCHEMA is required when DATABASE_URL is set")
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

// EnvConfig returns the settings the environment composer needs.
func (c *Config) EnvConfig() toolrunner.EnvConfig {
	return toolrunner.EnvConfig{
		ExecutionDirPrefix: c.ExecutionDirPrefix,
		StorageCredentials: c.StorageCredentials,
		AdditionalEnvs:     c.AdditionalEnvs,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	// slog has no WARNING alias; accept it since tools and operators use it.
	if strings.EqualFold(s, "warning") {
		s = "warn"
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
	return level, nil
}
