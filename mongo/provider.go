// Package mongo provides a docket Provider for MongoDB.
//
// Each JSON document is stored as a BSON document whose _id is the pair
// {p: partition key, i: id}, so ids are unique per partition. The remaining
// fields are the document's own, which lets criteria, ordering and counts run
// server-side.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/internal/document"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// key is the compound _id of a stored document.
type key struct {
	Partition string `bson:"p"`
	ID        string `bson:"i"`
}

// Provider implements docket.Provider for one MongoDB collection.
type Provider struct {
	collection *mongo.Collection
	path       string
	timeout    time.Duration
	pageSize   int32
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithPageSize sets the cursor batch size, which is also the page size.
func WithPageSize(n int32) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// New creates a MongoDB provider over collection, partitioned on partitionKeyPath.
func New(collection *mongo.Collection, partitionKeyPath string, opts ...ProviderOption) *Provider {
	p := &Provider{
		collection: collection,
		path:       normalizePath(partitionKeyPath),
		timeout:    DefaultOperationTimeout,
		pageSize:   DefaultPageSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PartitionKeyPath returns the document path used as the partition key.
func (p *Provider) PartitionKeyPath() string {
	return p.path
}

// Create inserts doc. Returns docket.ErrConflict if the id exists in the partition.
func (p *Provider) Create(ctx context.Context, partitionKey string, doc []byte) (docket.Response, error) {
	stored, id, err := encode(partitionKey, doc)
	if err != nil {
		return docket.Response{}, err
	}
	bctx, cancel := p.bound(ctx)
	defer cancel()
	if _, err := p.collection.InsertOne(bctx, stored); err != nil {
		return docket.Response{}, overran(ctx, bctx, "create", p.timeout, mapError("create", fmt.Errorf("insert %q: %w", id, err)))
	}
	return docket.Response{Status: http.StatusCreated, Body: doc}, nil
}

// Upsert creates or replaces doc.
func (p *Provider) Upsert(ctx context.Context, partitionKey string, doc []byte) (docket.Response, error) {
	stored, id, err := encode(partitionKey, doc)
	if err != nil {
		return docket.Response{}, err
	}
	bctx, cancel := p.bound(ctx)
	defer cancel()
	res, err := p.collection.ReplaceOne(bctx,
		bson.D{{Key: "_id", Value: key{Partition: partitionKey, ID: id}}},
		stored,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return docket.Response{}, overran(ctx, bctx, "upsert", p.timeout, mapError("upsert", err))
	}
	status := http.StatusOK
	if res.UpsertedCount > 0 {
		status = http.StatusCreated
	}
	return docket.Response{Status: status, Body: doc}, nil
}

// Read fetches a document by id and partition key.
func (p *Provider) Read(ctx context.Context, id, partitionKey string) (docket.Response, error) {
	bctx, cancel := p.bound(ctx)
	defer cancel()
	raw, err := p.collection.FindOne(bctx, bson.D{{Key: "_id", Value: key{Partition: partitionKey, ID: id}}}).Raw()
	if err != nil {
		return docket.Response{}, overran(ctx, bctx, "read", p.timeout, mapError("read", err))
	}
	body, err := decode(raw)
	if err != nil {
		return docket.Response{}, err
	}
	return docket.Response{Status: http.StatusOK, Body: body}, nil
}

// Delete removes a document by id and partition key.
func (p *Provider) Delete(ctx context.Context, id, partitionKey string) (docket.Response, error) {
	bctx, cancel := p.bound(ctx)
	defer cancel()
	res, err := p.collection.DeleteOne(bctx, bson.D{{Key: "_id", Value: key{Partition: partitionKey, ID: id}}})
	if err != nil {
		return docket.Response{}, overran(ctx, bctx, "delete", p.timeout, mapError("delete", err))
	}
	if res.DeletedCount == 0 {
		return docket.Response{}, &docket.StoreError{
			Op:     "delete",
			Status: http.StatusNotFound,
			Kind:   docket.ErrNotFound,
			Err:    fmt.Errorf("id %q not found in partition %q", id, partitionKey),
		}
	}
	return docket.Response{Status: http.StatusNoContent}, nil
}

// Query returns a base query scoped to partitionKey, or spanning every
// partition when partitionKey is empty.
func (p *Provider) Query(partitionKey string) docket.Query {
	return &Query{provider: p, partition: partitionKey}
}

// Pages returns a pager over q. The cursor is opened on the first fetch.
func (p *Provider) Pages(q docket.Query) (docket.Pager, error) {
	mq, err := p.own(q)
	if err != nil {
		return nil, err
	}
	if mq.Empty() {
		return &pager{done: true}, nil
	}
	filter, err := mq.Filter()
	if err != nil {
		return nil, err
	}
	return &pager{provider: p, filter: filter, opts: mq.FindOptions(), size: int(p.pageSize)}, nil
}

// Count counts the documents matching q's filter and applies its paging window.
func (p *Provider) Count(ctx context.Context, q docket.Query) (docket.CountResult, error) {
	mq, err := p.own(q)
	if err != nil {
		return docket.CountResult{}, err
	}
	if mq.Empty() {
		return docket.CountResult{}, nil
	}
	filter, err := mq.Filter()
	if err != nil {
		return docket.CountResult{}, err
	}
	bctx, cancel := p.bound(ctx)
	defer cancel()
	n, err := p.collection.CountDocuments(bctx, filter)
	if err != nil {
		return docket.CountResult{}, overran(ctx, bctx, "count", p.timeout, mapError("count", err))
	}
	if mq.paged {
		n = docket.PageWindow(n, mq.skip, mq.take)
	}
	return docket.CountResult{Status: http.StatusOK, Count: n}, nil
}

// Close disconnects the MongoDB client. Providers from a Manager share
// clients; close the Manager instead.
func (p *Provider) Close(ctx context.Context) error {
	return p.collection.Database().Client().Disconnect(ctx)
}

// Health checks MongoDB connectivity by pinging the server.
func (p *Provider) Health(ctx context.Context) error {
	return p.collection.Database().Client().Ping(ctx, nil)
}

func (p *Provider) own(q docket.Query) (*Query, error) {
	mq, ok := q.(*Query)
	if !ok || mq.provider != p {
		return nil, fmt.Errorf("%w: query %T was not built by this provider", docket.ErrInvalidQuery, q)
	}
	return mq, nil
}

func (p *Provider) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// encode converts a JSON document into its stored BSON form.
func encode(partitionKey string, data []byte) (bson.D, string, error) {
	doc, err := document.Decode(data)
	if err != nil {
		return nil, "", &docket.StoreError{Op: "encode", Status: http.StatusBadRequest, Kind: docket.ErrDecode, Err: err}
	}
	id := document.ID(doc)
	if id == "" {
		return nil, "", &docket.StoreError{Op: "encode", Status: http.StatusBadRequest, Kind: docket.ErrInvalidEntity, Err: errors.New("document has no id")}
	}

	var fields bson.D
	if err := bson.UnmarshalExtJSON(data, false, &fields); err != nil {
		return nil, "", &docket.StoreError{Op: "encode", Status: http.StatusBadRequest, Kind: docket.ErrDecode, Err: err}
	}
	stored := make(bson.D, 0, len(fields)+1)
	stored = append(stored, bson.E{Key: "_id", Value: key{Partition: partitionKey, ID: id}})
	for _, f := range fields {
		if f.Key != "_id" {
			stored = append(stored, f)
		}
	}
	return stored, id, nil
}

// decode converts a stored BSON document back into JSON without its _id.
func decode(raw bson.Raw) ([]byte, error) {
	var stored bson.D
	if err := bson.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("%w: %w", docket.ErrDecode, err)
	}
	fields := make(bson.D, 0, len(stored))
	for _, f := range stored {
		if f.Key != "_id" {
			fields = append(fields, f)
		}
	}
	data, err := bson.MarshalExtJSON(fields, false, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", docket.ErrDecode, err)
	}
	return data, nil
}

// pager serves a cursor in pages of the batch size.
type pager struct {
	provider *Provider
	filter   bson.D
	opts     *options.FindOptionsBuilder
	size     int
	cursor   *mongo.Cursor
	done     bool
}

func (p *pager) More() bool {
	return !p.done
}

func (p *pager) NextPage(ctx context.Context) (docket.Page, error) {
	if p.done {
		return docket.Page{}, nil
	}
	if p.cursor == nil {
		cur, err := p.provider.collection.Find(ctx, p.filter, p.opts)
		if err != nil {
			p.done = true
			return docket.Page{}, mapError("query", err)
		}
		p.cursor = cur
	}

	page := docket.Page{Status: http.StatusOK}
	for len(page.Items) < p.size {
		if !p.cursor.Next(ctx) {
			p.done = true
			err := p.cursor.Err()
			_ = p.cursor.Close(context.WithoutCancel(ctx))
			if err != nil {
				return docket.Page{}, mapError("query", err)
			}
			break
		}
		body, err := decode(p.cursor.Current)
		if err != nil {
			p.done = true
			_ = p.cursor.Close(context.WithoutCancel(ctx))
			return docket.Page{}, err
		}
		page.Items = append(page.Items, body)
	}
	if !p.done && p.cursor.RemainingBatchLength() == 0 && p.cursor.ID() == 0 {
		p.done = true
		_ = p.cursor.Close(context.WithoutCancel(ctx))
	}
	return page, nil
}

var (
	_ docket.Provider  = (*Provider)(nil)
	_ docket.Lifecycle = (*Provider)(nil)
)
