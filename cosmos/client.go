// Package cosmos provides the Azure Cosmos DB provider for docket: client
// caching keyed by connection fingerprint, idempotent database and container
// provisioning, and translation of specifications into Cosmos SQL.
package cosmos

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// Container defines the container operations used by Provider.
// This allows mocking in tests. *azcosmos.ContainerClient satisfies it.
type Container interface {
	CreateItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	UpsertItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	ReadItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemID string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	DeleteItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemID string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	NewQueryItemsPager(query string, partitionKey azcosmos.PartitionKey, o *azcosmos.QueryOptions) *runtime.Pager[azcosmos.QueryItemsResponse]
}

// Account defines the account-level operations used by Manager and Provision.
type Account interface {
	CreateDatabase(ctx context.Context, props azcosmos.DatabaseProperties, o *azcosmos.CreateDatabaseOptions) (azcosmos.DatabaseResponse, error)
	CreateContainer(ctx context.Context, databaseID string, props azcosmos.ContainerProperties, o *azcosmos.CreateContainerOptions) (azcosmos.ContainerResponse, error)
	Container(databaseID, containerID string) (Container, error)
	Close() error
}

// ClientFactory constructs an Account for validated options.
type ClientFactory func(opts Options) (Account, error)

// NewAccount builds an Account backed by the Azure SDK.
func NewAccount(opts Options) (Account, error) {
	clientOpts, transport := ClientOptions(opts)
	client, err := azcosmos.NewClientFromConnectionString(opts.ConnectionString, clientOpts)
	if err != nil {
		return nil, err
	}
	return &sdkAccount{client: client, transport: transport}, nil
}

// ClientOptions derives SDK client options from opts. The returned transport
// is non-nil in gateway mode and owned by the caller.
func ClientOptions(opts Options) (*azcosmos.ClientOptions, *http.Transport) {
	co := &azcosmos.ClientOptions{
		EnableContentResponseOnWrite: true,
		PreferredRegions:             append([]string(nil), opts.Regions...),
	}
	co.Retry = policy.RetryOptions{
		MaxRetries:    opts.RetryMaxAttempts,
		MaxRetryDelay: opts.RetryMaxWait,
		StatusCodes: []int{
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			449, // retry with
			http.StatusInternalServerError,
			http.StatusServiceUnavailable,
		},
	}

	var transport *http.Transport
	if opts.UseGatewayMode {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxConnsPerHost:     opts.ConcurrentConnections,
			MaxIdleConnsPerHost: opts.ConcurrentConnections,
		}
		co.Transport = &http.Client{Transport: transport}
	}
	return co, transport
}

// Fingerprint identifies a client configuration without exposing the account key.
func Fingerprint(opts Options, cs ConnectionString) string {
	return opts.DatabaseID + "_" + strconv.FormatBool(opts.UseGatewayMode) + "_" + hashKey(cs.Key)
}

func hashKey(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%X", sum[:])
}

type sdkAccount struct {
	client    *azcosmos.Client
	transport *http.Transport
}

func (a *sdkAccount) CreateDatabase(ctx context.Context, props azcosmos.DatabaseProperties, o *azcosmos.CreateDatabaseOptions) (azcosmos.DatabaseResponse, error) {
	return a.client.CreateDatabase(ctx, props, o)
}

func (a *sdkAccount) CreateContainer(ctx context.Context, databaseID string, props azcosmos.ContainerProperties, o *azcosmos.CreateContainerOptions) (azcosmos.ContainerResponse, error) {
	db, err := a.client.NewDatabase(databaseID)
	if err != nil {
		return azcosmos.ContainerResponse{}, err
	}
	return db.CreateContainer(ctx, props, o)
}

func (a *sdkAccount) Container(databaseID, containerID string) (Container, error) {
	return a.client.NewContainer(databaseID, containerID)
}

func (a *sdkAccount) Close() error {
	if a.transport != nil {
		a.transport.CloseIdleConnections()
	}
	return nil
}

var _ Container = (*azcosmos.ContainerClient)(nil)
