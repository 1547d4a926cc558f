package mongo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/docket"
)

// Defaults applied by Options.Validate.
const (
	DefaultPartitionKeyPath       = "/id"
	DefaultServerSelectionTimeout = 30 * time.Second
	DefaultOperationTimeout       = 30 * time.Second
	DefaultPageSize               = 100
)

// Options configures a connection to one MongoDB collection.
type Options struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`

	// PartitionKeyPath is the document path used as the partition key.
	// A missing leading "/" is added; empty means "/id".
	PartitionKeyPath string `mapstructure:"partition_key_path"`

	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout"`
	OperationTimeout       time.Duration `mapstructure:"operation_timeout"`
	PageSize               int32         `mapstructure:"page_size"`
}

// Validate checks required fields and applies defaults.
func (o *Options) Validate() error {
	if o.URI == "" {
		return fmt.Errorf("%w: mongo uri is required", docket.ErrConfiguration)
	}
	if !strings.HasPrefix(o.URI, "mongodb://") && !strings.HasPrefix(o.URI, "mongodb+srv://") {
		return fmt.Errorf("%w: mongo uri must use the mongodb or mongodb+srv scheme", docket.ErrConfiguration)
	}
	if o.Database == "" {
		return fmt.Errorf("%w: database is required", docket.ErrConfiguration)
	}
	if o.Collection == "" {
		return fmt.Errorf("%w: collection is required", docket.ErrConfiguration)
	}
	o.PartitionKeyPath = normalizePath(o.PartitionKeyPath)
	if o.ServerSelectionTimeout <= 0 {
		o.ServerSelectionTimeout = DefaultServerSelectionTimeout
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = DefaultOperationTimeout
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	return nil
}

// Fingerprint identifies the client for opts. The URI may carry
// credentials, so only its digest is used.
func Fingerprint(opts Options) string {
	sum := sha256.Sum256([]byte(opts.URI))
	return "mongo_" + strings.ToUpper(hex.EncodeToString(sum[:]))
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return DefaultPartitionKeyPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
