// Package docket provides partition-aware CRUD and querying over partitioned
// document stores. Specifications describe what to fetch; providers translate
// them into store-native queries and execute them.
package docket

import (
	"context"

	"github.com/zoobzio/docket/internal/shared"
)

// Semantic errors for repository operations (re-exported from internal/shared).
var (
	ErrConfiguration = shared.ErrConfiguration
	ErrNotFound      = shared.ErrNotFound
	ErrConflict      = shared.ErrConflict
	ErrProvisioning  = shared.ErrProvisioning
	ErrTransient     = shared.ErrTransient
	ErrCancelled     = shared.ErrCancelled
	ErrInvalidQuery  = shared.ErrInvalidQuery
	ErrInvalidEntity = shared.ErrInvalidEntity
	ErrClosed        = shared.ErrClosed
	ErrDecode        = shared.ErrDecode
	ErrEncode        = shared.ErrEncode
)

// StoreError is re-exported from internal/shared for the public API.
type StoreError = shared.StoreError

// Response is the result of a single-document round trip.
type Response struct {
	// Status is the store's native status code.
	Status int

	// RequestCharge is the resource consumption reported by the store.
	RequestCharge float64

	// Body is the stored document as returned by the store.
	// Empty for deletes.
	Body []byte
}

// Page is one page of query results.
type Page struct {
	Status        int
	RequestCharge float64
	Items         [][]byte
}

// CountResult is the result of a server-side count.
type CountResult struct {
	Status        int
	RequestCharge float64
	Count         int64
}

// Query is a provider-native query under construction.
// Each method returns a new Query; receivers are never modified.
type Query interface {
	// Where restricts the query to documents matching every condition.
	Where(criteria Criteria) Query

	// OrderBy sorts by the given field.
	OrderBy(field string, descending bool) Query

	// GroupBy clusters results by the given field, after ordering.
	GroupBy(field string) Query

	// Page skips skip documents then takes take documents.
	// Negative skip is treated as zero; take <= 0 yields no documents.
	Page(skip, take int) Query
}

// Expander is implemented by queries whose store can eagerly expand related data.
type Expander interface {
	Expand(paths []string) Query
}

// Pager iterates over the remote pages of a query.
type Pager interface {
	// More reports whether another page may be fetched.
	More() bool

	// NextPage fetches the next page.
	NextPage(ctx context.Context) (Page, error)
}

// Provider executes document operations against one partitioned container.
// Implementations (cosmos, mongo, memory) satisfy this interface.
type Provider interface {
	// PartitionKeyPath returns the document path the store partitions on (e.g. "/category").
	// Empty means the container is unpartitioned.
	PartitionKeyPath() string

	// Create inserts a new document.
	// Returns ErrConflict if the id already exists in the partition.
	Create(ctx context.Context, partitionKey string, doc []byte) (Response, error)

	// Upsert creates or replaces a document.
	Upsert(ctx context.Context, partitionKey string, doc []byte) (Response, error)

	// Read fetches a document by id and partition key.
	// Returns ErrNotFound if the document does not exist.
	Read(ctx context.Context, id, partitionKey string) (Response, error)

	// Delete removes a document by id and partition key.
	// Returns ErrNotFound if the document does not exist.
	Delete(ctx context.Context, id, partitionKey string) (Response, error)

	// Query returns a base query narrowed to partitionKey.
	// An empty partitionKey scans across partitions.
	Query(partitionKey string) Query

	// Pages returns a pager over the query's results.
	// Returns ErrInvalidQuery if q was not built by this provider.
	Pages(q Query) (Pager, error)

	// Count returns the number of documents the query selects.
	Count(ctx context.Context, q Query) (CountResult, error)
}

// Lifecycle is implemented by providers that own connections.
type Lifecycle interface {
	// Close releases the provider's resources.
	Close(ctx context.Context) error

	// Health checks connectivity to the store.
	Health(ctx context.Context) error
}
