// Package memory provides an in-process partitioned document store for docket.
//
// It executes specifications with the exact semantics the remote providers
// approximate: filter, stable ordering, grouping by first appearance, then paging.
// Use it for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/internal/document"
)

// DefaultPageSize is the number of documents returned per page.
const DefaultPageSize = 100

type record struct {
	body []byte
	doc  map[string]any
	seq  uint64
}

// Provider implements docket.Provider over in-process maps.
type Provider struct {
	mu       sync.RWMutex
	path     string
	parts    map[string]map[string]*record
	seq      uint64
	pageSize int
	closed   bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithPageSize sets how many documents each page carries.
func WithPageSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// New creates a provider partitioned on partitionKeyPath (e.g. "/category").
func New(partitionKeyPath string, opts ...Option) *Provider {
	p := &Provider{
		path:     partitionKeyPath,
		parts:    make(map[string]map[string]*record),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PartitionKeyPath returns the configured partition key path.
func (p *Provider) PartitionKeyPath() string {
	return p.path
}

// Create inserts doc into partitionKey.
func (p *Provider) Create(ctx context.Context, partitionKey string, doc []byte) (docket.Response, error) {
	return p.write(ctx, "create", partitionKey, doc, false)
}

// Upsert creates or replaces doc in partitionKey.
func (p *Provider) Upsert(ctx context.Context, partitionKey string, doc []byte) (docket.Response, error) {
	return p.write(ctx, "upsert", partitionKey, doc, true)
}

func (p *Provider) write(ctx context.Context, op, partitionKey string, data []byte, replace bool) (docket.Response, error) {
	if err := ctx.Err(); err != nil {
		return docket.Response{}, err
	}
	doc, err := document.Decode(data)
	if err != nil {
		return docket.Response{}, storeError(op, http.StatusBadRequest, docket.ErrDecode, err)
	}
	id := document.ID(doc)
	if id == "" {
		return docket.Response{}, storeError(op, http.StatusBadRequest, docket.ErrInvalidEntity, fmt.Errorf("document has no id"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return docket.Response{}, docket.ErrClosed
	}

	part, ok := p.parts[partitionKey]
	if !ok {
		part = make(map[string]*record)
		p.parts[partitionKey] = part
	}

	status := http.StatusCreated
	existing, exists := part[id]
	switch {
	case exists && !replace:
		return docket.Response{}, storeError(op, http.StatusConflict, docket.ErrConflict,
			fmt.Errorf("id %q already exists in partition %q", id, partitionKey))
	case exists:
		status = http.StatusOK
	}

	rec := &record{body: clone(data), doc: doc}
	if exists {
		rec.seq = existing.seq
	} else {
		p.seq++
		rec.seq = p.seq
	}
	part[id] = rec
	return docket.Response{Status: status, Body: clone(data)}, nil
}

// Read fetches a document by id within partitionKey.
func (p *Provider) Read(ctx context.Context, id, partitionKey string) (docket.Response, error) {
	if err := ctx.Err(); err != nil {
		return docket.Response{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return docket.Response{}, docket.ErrClosed
	}

	rec, ok := p.parts[partitionKey][id]
	if !ok {
		return docket.Response{}, notFound("read", id, partitionKey)
	}
	return docket.Response{Status: http.StatusOK, Body: clone(rec.body)}, nil
}

// Delete removes a document by id within partitionKey.
func (p *Provider) Delete(ctx context.Context, id, partitionKey string) (docket.Response, error) {
	if err := ctx.Err(); err != nil {
		return docket.Response{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return docket.Response{}, docket.ErrClosed
	}

	part := p.parts[partitionKey]
	if _, ok := part[id]; !ok {
		return docket.Response{}, notFound("delete", id, partitionKey)
	}
	delete(part, id)
	if len(part) == 0 {
		delete(p.parts, partitionKey)
	}
	return docket.Response{Status: http.StatusNoContent}, nil
}

// Query returns a base query narrowed to partitionKey, or spanning every
// partition when partitionKey is empty.
func (p *Provider) Query(partitionKey string) docket.Query {
	return &Query{provider: p, partition: partitionKey}
}

// Pages returns a pager over q. The result set is captured on the first fetch.
func (p *Provider) Pages(q docket.Query) (docket.Pager, error) {
	mq, ok := q.(*Query)
	if !ok || mq.provider != p {
		return nil, fmt.Errorf("%w: query %T was not built by this provider", docket.ErrInvalidQuery, q)
	}
	return &pager{query: mq, size: p.pageSize}, nil
}

// Count returns how many documents q selects, honoring its paging window.
func (p *Provider) Count(ctx context.Context, q docket.Query) (docket.CountResult, error) {
	mq, ok := q.(*Query)
	if !ok || mq.provider != p {
		return docket.CountResult{}, fmt.Errorf("%w: query %T was not built by this provider", docket.ErrInvalidQuery, q)
	}
	if err := ctx.Err(); err != nil {
		return docket.CountResult{}, err
	}
	matched, err := p.scan(mq)
	if err != nil {
		return docket.CountResult{}, err
	}
	total := int64(len(matched))
	if mq.paged {
		total = docket.PageWindow(total, mq.skip, mq.take)
	}
	return docket.CountResult{Status: http.StatusOK, Count: total}, nil
}

// Close releases all documents. Subsequent calls fail with ErrClosed.
func (p *Provider) Close(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.parts = make(map[string]map[string]*record)
	return nil
}

// Health reports whether the provider is open.
func (p *Provider) Health(_ context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return docket.ErrClosed
	}
	return nil
}

// Reset removes every document.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parts = make(map[string]map[string]*record)
}

// Len returns the total number of stored documents.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, part := range p.parts {
		n += len(part)
	}
	return n
}

// scan returns the filtered records of q in insertion order.
func (p *Provider) scan(q *Query) ([]*record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, docket.ErrClosed
	}

	var out []*record
	collect := func(part map[string]*record) {
		for _, rec := range part {
			if q.criteria.Matches(rec.doc) {
				out = append(out, rec)
			}
		}
	}
	if q.partition != "" {
		collect(p.parts[q.partition])
	} else {
		for _, part := range p.parts {
			collect(part)
		}
	}
	sortBySeq(out)
	return out, nil
}

func storeError(op string, status int, kind, err error) error {
	return &docket.StoreError{Op: op, Status: status, Kind: kind, Err: err}
}

func notFound(op, id, partitionKey string) error {
	return storeError(op, http.StatusNotFound, docket.ErrNotFound,
		fmt.Errorf("id %q not found in partition %q", id, partitionKey))
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ docket.Provider = (*Provider)(nil)
var _ docket.Lifecycle = (*Provider)(nil)
