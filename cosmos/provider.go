package cosmos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/zoobzio/docket"
)

// Provider implements docket.Provider for one Cosmos DB container.
type Provider struct {
	container Container
	path      string
	timeout   time.Duration
	pageSize  int32
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithTimeout bounds every call, including the SDK's own retries.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithPageSize sets the page size hint for queries.
func WithPageSize(n int32) ProviderOption {
	return func(p *Provider) {
		p.pageSize = n
	}
}

// New creates a Provider over container, partitioned on partitionKeyPath.
func New(container Container, partitionKeyPath string, opts ...ProviderOption) *Provider {
	p := &Provider{
		container: container,
		path:      NormalizePartitionKeyPath(partitionKeyPath),
		timeout:   DefaultRetryMaxWait,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PartitionKeyPath returns the container's partition key path.
func (p *Provider) PartitionKeyPath() string {
	return p.path
}

// Create inserts doc. Returns docket.ErrConflict if the id exists in the partition.
func (p *Provider) Create(ctx context.Context, partitionKey string, doc []byte) (docket.Response, error) {
	bctx, cancel := p.bound(ctx)
	defer cancel()
	resp, err := p.container.CreateItem(bctx, azcosmos.NewPartitionKeyString(partitionKey), doc, nil)
	out, err := itemResponse("create", resp, err)
	return out, overran(ctx, bctx, "create", p.timeout, err)
}

// Upsert creates or replaces doc.
func (p *Provider) Upsert(ctx context.Context, partitionKey string, doc []byte) (docket.Response, error) {
	bctx, cancel := p.bound(ctx)
	defer cancel()
	resp, err := p.container.UpsertItem(bctx, azcosmos.NewPartitionKeyString(partitionKey), doc, nil)
	out, err := itemResponse("upsert", resp, err)
	return out, overran(ctx, bctx, "upsert", p.timeout, err)
}

// Read performs a point read.
func (p *Provider) Read(ctx context.Context, id, partitionKey string) (docket.Response, error) {
	bctx, cancel := p.bound(ctx)
	defer cancel()
	resp, err := p.container.ReadItem(bctx, azcosmos.NewPartitionKeyString(partitionKey), id, nil)
	out, err := itemResponse("read", resp, err)
	return out, overran(ctx, bctx, "read", p.timeout, err)
}

// Delete removes a document.
func (p *Provider) Delete(ctx context.Context, id, partitionKey string) (docket.Response, error) {
	bctx, cancel := p.bound(ctx)
	defer cancel()
	resp, err := p.container.DeleteItem(bctx, azcosmos.NewPartitionKeyString(partitionKey), id, nil)
	out, err := itemResponse("delete", resp, err)
	out.Body = nil
	return out, overran(ctx, bctx, "delete", p.timeout, err)
}

// Query returns a base query scoped to partitionKey, or a cross-partition
// query when partitionKey is empty.
func (p *Provider) Query(partitionKey string) docket.Query {
	return &Query{provider: p, partition: partitionKey}
}

// Pages returns a pager over q's results.
func (p *Provider) Pages(q docket.Query) (docket.Pager, error) {
	cq, err := p.own(q)
	if err != nil {
		return nil, err
	}
	if cq.Empty() {
		return &pager{}, nil
	}
	sql, params, err := cq.SQL()
	if err != nil {
		return nil, err
	}
	return &pager{
		inner:   p.container.NewQueryItemsPager(sql, partitionKeyOf(cq), p.queryOptions(params)),
		timeout: p.timeout,
	}, nil
}

// Count runs a server-side count over q's criteria and applies q's paging window.
func (p *Provider) Count(ctx context.Context, q docket.Query) (docket.CountResult, error) {
	cq, err := p.own(q)
	if err != nil {
		return docket.CountResult{}, err
	}
	if cq.Empty() {
		return docket.CountResult{}, nil
	}
	sql, params, err := cq.CountSQL()
	if err != nil {
		return docket.CountResult{}, err
	}

	bctx, cancel := p.bound(ctx)
	defer cancel()

	var result docket.CountResult
	inner := p.container.NewQueryItemsPager(sql, partitionKeyOf(cq), p.queryOptions(params))
	for inner.More() {
		page, err := inner.NextPage(bctx)
		if err != nil {
			return docket.CountResult{}, overran(ctx, bctx, "count", p.timeout, mapError("count", err))
		}
		result.Status = statusOf(page.RawResponse)
		result.RequestCharge += float64(page.RequestCharge)
		// Cross-partition counts may arrive as one partial count per partition.
		for _, item := range page.Items {
			var n int64
			if err := json.Unmarshal(item, &n); err != nil {
				return docket.CountResult{}, fmt.Errorf("%w: count result %q: %w", docket.ErrDecode, item, err)
			}
			result.Count += n
		}
	}
	if cq.paged {
		result.Count = docket.PageWindow(result.Count, cq.skip, cq.take)
	}
	return result, nil
}

func (p *Provider) own(q docket.Query) (*Query, error) {
	cq, ok := q.(*Query)
	if !ok || cq.provider != p {
		return nil, fmt.Errorf("%w: query %T was not built by this provider", docket.ErrInvalidQuery, q)
	}
	return cq, nil
}

func (p *Provider) queryOptions(params []azcosmos.QueryParameter) *azcosmos.QueryOptions {
	return &azcosmos.QueryOptions{
		QueryParameters: params,
		PageSizeHint:    p.pageSize,
	}
}

func (p *Provider) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func partitionKeyOf(q *Query) azcosmos.PartitionKey {
	if q.partition == "" {
		return azcosmos.NewPartitionKey()
	}
	return azcosmos.NewPartitionKeyString(q.partition)
}

func itemResponse(op string, resp azcosmos.ItemResponse, err error) (docket.Response, error) {
	if err != nil {
		return docket.Response{}, mapError(op, err)
	}
	return docket.Response{
		Status:        statusOf(resp.RawResponse),
		RequestCharge: float64(resp.RequestCharge),
		Body:          resp.Value,
	}, nil
}

// pager adapts the SDK pager, bounding each page fetch.
type pager struct {
	inner   *runtime.Pager[azcosmos.QueryItemsResponse]
	timeout time.Duration
}

func (p *pager) More() bool {
	return p.inner != nil && p.inner.More()
}

func (p *pager) NextPage(ctx context.Context) (docket.Page, error) {
	if p.inner == nil {
		return docket.Page{}, nil
	}
	bctx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	resp, err := p.inner.NextPage(bctx)
	if err != nil {
		return docket.Page{}, overran(ctx, bctx, "query", p.timeout, mapError("query", err))
	}
	return docket.Page{
		Status:        statusOf(resp.RawResponse),
		RequestCharge: float64(resp.RequestCharge),
		Items:         resp.Items,
	}, nil
}

var _ docket.Provider = (*Provider)(nil)
