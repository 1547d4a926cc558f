// Package config loads docket store settings from a file and the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/cosmos"
	"github.com/zoobzio/docket/mongo"
)

// EnvPrefix prefixes every environment variable, e.g. DOCKET_COSMOS_DATABASE_ID.
const EnvPrefix = "DOCKET"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreCosmos = "cosmos"
	StoreMongo  = "mongo"
)

// Config selects a store and carries its options. Options are validated by
// the store packages, not here.
type Config struct {
	Store    string         `mapstructure:"store"`
	LogLevel string         `mapstructure:"log_level"`
	Memory   Memory         `mapstructure:"memory"`
	Cosmos   cosmos.Options `mapstructure:"cosmos"`
	Mongo    mongo.Options  `mapstructure:"mongo"`
}

// Memory configures the in-process store.
type Memory struct {
	PartitionKeyPath string `mapstructure:"partition_key_path"`
	PageSize         int    `mapstructure:"page_size"`
}

var defaults = map[string]any{
	"store":                          StoreMemory,
	"log_level":                      "info",
	"memory.partition_key_path":      "/id",
	"memory.page_size":               100,
	"cosmos.partition_key_path":      cosmos.DefaultPartitionKeyPath,
	"cosmos.request_units":           cosmos.MinRequestUnits,
	"cosmos.retry_max_attempts":      cosmos.DefaultRetryMaxAttempts,
	"cosmos.retry_max_wait":          cosmos.DefaultRetryMaxWait,
	"cosmos.settle_delay":            cosmos.DefaultSettleDelay,
	"cosmos.concurrent_connections":  cosmos.DefaultConcurrentConnections,
	"mongo.partition_key_path":       mongo.DefaultPartitionKeyPath,
	"mongo.server_selection_timeout": mongo.DefaultServerSelectionTimeout,
	"mongo.operation_timeout":        mongo.DefaultOperationTimeout,
	"mongo.page_size":                mongo.DefaultPageSize,
}

// keys without defaults that may still come from the environment.
var envOnly = []string{
	"cosmos.connection_string",
	"cosmos.database_id",
	"cosmos.container_id",
	"cosmos.regions",
	"cosmos.provision_at_database_level",
	"cosmos.default_ttl_seconds",
	"cosmos.use_gateway_mode",
	"mongo.uri",
	"mongo.database",
	"mongo.collection",
}

// Load reads path (optional; any format viper supports) and overlays
// DOCKET_-prefixed environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envOnly {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("%w: bind %s: %w", docket.ErrConfiguration, k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", docket.ErrConfiguration, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", docket.ErrConfiguration, err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	switch cfg.Store {
	case StoreMemory, StoreCosmos, StoreMongo:
	default:
		return nil, fmt.Errorf("%w: unknown store %q", docket.ErrConfiguration, cfg.Store)
	}
	return &cfg, nil
}
