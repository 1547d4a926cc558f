package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/internal/shared"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/singleflight"
)

// PartitionIndex is the name of the index over the partition key.
const PartitionIndex = "docket_partition"

// Connector constructs a client for opts.
type Connector func(Options) (*mongo.Client, error)

// Connect builds a client from opts. The driver connects lazily.
func Connect(opts Options) (*mongo.Client, error) {
	return mongo.Connect(options.Client().
		ApplyURI(opts.URI).
		SetServerSelectionTimeout(opts.ServerSelectionTimeout))
}

// Manager caches MongoDB clients by URI fingerprint and ensures the
// partition index once per collection.
type Manager struct {
	connect Connector

	mu      sync.RWMutex
	clients map[string]*mongo.Client
	indexed map[string]struct{}
	closed  bool

	clientGroup singleflight.Group
	indexGroup  singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConnector replaces the client constructor.
func WithConnector(c Connector) ManagerOption {
	return func(m *Manager) {
		m.connect = c
	}
}

// NewManager creates a Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		connect: Connect,
		clients: make(map[string]*mongo.Client),
		indexed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve validates opts, returns a Provider over the configured collection
// and ensures its partition index.
func (m *Manager) Resolve(ctx context.Context, opts Options) (*Provider, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	fp := Fingerprint(opts)

	client, err := m.client(fp, opts)
	if err != nil {
		return nil, err
	}
	collection := client.Database(opts.Database).Collection(opts.Collection)
	if err := m.ensureIndex(ctx, fp, collection, opts); err != nil {
		// The index build runs under its own timeout; only the caller's
		// context going away counts as cancellation.
		if ctx.Err() != nil {
			if c := shared.Cancelled(err); c != nil {
				return nil, c
			}
			return nil, fmt.Errorf("%w: %w: %w", docket.ErrCancelled, ctx.Err(), err)
		}
		return nil, err
	}
	return New(collection, opts.PartitionKeyPath,
		WithTimeout(opts.OperationTimeout),
		WithPageSize(opts.PageSize),
	), nil
}

// Len returns the number of cached clients.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Close disconnects every cached client. Calling Close more than once is safe.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	clients := m.clients
	m.clients = make(map[string]*mongo.Client)
	m.indexed = make(map[string]struct{})
	m.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	capitan.Emit(ctx, ManagerClosed, FieldClients.Field(len(clients)))
	return errors.Join(errs...)
}

func (m *Manager) client(fp string, opts Options) (*mongo.Client, error) {
	m.mu.RLock()
	closed := m.closed
	client, ok := m.clients[fp]
	m.mu.RUnlock()
	if closed {
		return nil, docket.ErrClosed
	}
	if ok {
		return client, nil
	}

	v, err, _ := m.clientGroup.Do(fp, func() (any, error) {
		m.mu.RLock()
		existing, ok := m.clients[fp]
		m.mu.RUnlock()
		if ok {
			return existing, nil
		}

		created, err := m.connect(opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", docket.ErrConfiguration, err)
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = created.Disconnect(context.Background())
			return nil, docket.ErrClosed
		}
		m.clients[fp] = created
		m.mu.Unlock()

		capitan.Emit(context.Background(), ClientConnected, FieldFingerprint.Field(fp))
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mongo.Client), nil
}

func (m *Manager) ensureIndex(ctx context.Context, fp string, collection *mongo.Collection, opts Options) error {
	key := fp + "/" + opts.Database + "/" + opts.Collection
	m.mu.RLock()
	_, done := m.indexed[key]
	m.mu.RUnlock()
	if done {
		return nil
	}

	_, err, _ := m.indexGroup.Do(key, func() (any, error) {
		m.mu.RLock()
		_, done := m.indexed[key]
		m.mu.RUnlock()
		if done {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(ctx, opts.OperationTimeout)
		defer cancel()
		_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: partitionField, Value: 1}},
			Options: options.Index().SetName(PartitionIndex),
		})
		if err != nil {
			out := err
			if !errors.Is(err, context.Canceled) {
				status, _ := classify(err)
				out = &docket.StoreError{Op: "create index", Status: status, Kind: docket.ErrProvisioning, Err: err}
			}
			capitan.Emit(ctx, IndexFailed,
				FieldDatabase.Field(opts.Database),
				FieldCollection.Field(opts.Collection),
				docket.FieldError.Field(out),
			)
			return nil, out
		}

		m.mu.Lock()
		if !m.closed {
			m.indexed[key] = struct{}{}
		}
		m.mu.Unlock()

		capitan.Emit(ctx, IndexEnsured,
			FieldDatabase.Field(opts.Database),
			FieldCollection.Field(opts.Collection),
			FieldIndex.Field(PartitionIndex),
		)
		return nil, nil
	})
	return err
}
