package cosmos

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/zoobzio/docket"
)

// Defaults applied by Options.Validate.
const (
	MinRequestUnits              = 400
	DefaultConcurrentConnections = 300
	DefaultRetryMaxAttempts      = 10
	DefaultRetryMaxWait          = 30 * time.Second
	DefaultSettleDelay           = 500 * time.Millisecond
	DefaultPartitionKeyPath      = "/id"
)

// Options configures a connection to one Cosmos DB container.
type Options struct {
	// ConnectionString is "AccountEndpoint=...;AccountKey=...;".
	ConnectionString string `mapstructure:"connection_string"`
	DatabaseID       string `mapstructure:"database_id"`
	ContainerID      string `mapstructure:"container_id"`

	// PartitionKeyPath is the container's partition key path. A missing
	// leading "/" is added; empty means "/id".
	PartitionKeyPath string `mapstructure:"partition_key_path"`

	// Regions lists preferred regions in priority order.
	Regions []string `mapstructure:"regions"`

	// RequestUnits is the provisioned throughput. Values below 400 are raised to 400.
	RequestUnits int32 `mapstructure:"request_units"`

	// ProvisionAtDatabaseLevel seeds throughput on the database and shares it
	// across containers instead of dedicating it to the container.
	ProvisionAtDatabaseLevel bool `mapstructure:"provision_at_database_level"`

	// DefaultTTLSeconds enables document expiry when set. Must be at least 1.
	DefaultTTLSeconds *int32 `mapstructure:"default_ttl_seconds"`

	UseGatewayMode        bool `mapstructure:"use_gateway_mode"`
	ConcurrentConnections int  `mapstructure:"concurrent_connections"`

	RetryMaxAttempts int32         `mapstructure:"retry_max_attempts"`
	RetryMaxWait     time.Duration `mapstructure:"retry_max_wait"`

	// SettleDelay is waited after a container is created. Zero means the
	// default; a negative value disables the wait.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// Validate checks required fields and applies defaults. It never touches the network.
func (o *Options) Validate() error {
	if o.ConnectionString == "" {
		return fmt.Errorf("%w: connection string is required", docket.ErrConfiguration)
	}
	if _, err := ParseConnectionString(o.ConnectionString); err != nil {
		return err
	}
	if o.DatabaseID == "" {
		return fmt.Errorf("%w: database id is required", docket.ErrConfiguration)
	}
	if o.ContainerID == "" {
		return fmt.Errorf("%w: container id is required", docket.ErrConfiguration)
	}
	if o.DefaultTTLSeconds != nil && *o.DefaultTTLSeconds < 1 {
		return fmt.Errorf("%w: default ttl must be at least 1 second, got %d", docket.ErrConfiguration, *o.DefaultTTLSeconds)
	}

	o.PartitionKeyPath = NormalizePartitionKeyPath(o.PartitionKeyPath)
	if o.PartitionKeyPath == "" {
		o.PartitionKeyPath = DefaultPartitionKeyPath
	}
	if o.RequestUnits < MinRequestUnits {
		o.RequestUnits = MinRequestUnits
	}
	if o.ConcurrentConnections <= 0 {
		o.ConcurrentConnections = DefaultConcurrentConnections
	}
	if o.RetryMaxAttempts <= 0 {
		o.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if o.RetryMaxWait <= 0 {
		o.RetryMaxWait = DefaultRetryMaxWait
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	return nil
}

// NormalizePartitionKeyPath ensures a non-empty path begins with "/".
func NormalizePartitionKeyPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

// ConnectionString holds the parts of a Cosmos DB connection string.
type ConnectionString struct {
	Endpoint string
	Key      string
}

// ParseConnectionString parses "AccountEndpoint=...;AccountKey=...;".
// Keys are case-insensitive and values may contain "=".
func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return ConnectionString{}, fmt.Errorf("%w: malformed connection string segment %q", docket.ErrConfiguration, k)
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "accountendpoint":
			cs.Endpoint = strings.TrimSpace(v)
		case "accountkey":
			cs.Key = strings.TrimSpace(v)
		}
	}
	if cs.Endpoint == "" {
		return ConnectionString{}, fmt.Errorf("%w: connection string has no AccountEndpoint", docket.ErrConfiguration)
	}
	if u, err := url.Parse(cs.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return ConnectionString{}, fmt.Errorf("%w: invalid AccountEndpoint %q", docket.ErrConfiguration, cs.Endpoint)
	}
	if cs.Key == "" {
		return ConnectionString{}, fmt.Errorf("%w: connection string has no AccountKey", docket.ErrConfiguration)
	}
	return cs, nil
}
