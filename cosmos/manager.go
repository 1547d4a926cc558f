package cosmos

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/internal/shared"
	"golang.org/x/sync/singleflight"
)

// Manager owns the Cosmos clients of a process. Clients are cached by
// fingerprint and constructed at most once each; containers are provisioned
// at most once per fingerprint. Create one Manager at startup and Close it at shutdown.
type Manager struct {
	factory ClientFactory

	mu          sync.RWMutex
	clients     map[string]Account
	provisioned map[string]struct{}
	closed      bool

	clientGroup    singleflight.Group
	provisionGroup singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClientFactory replaces the SDK-backed client constructor.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *Manager) {
		m.factory = f
	}
}

// NewManager creates a Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		factory:     NewAccount,
		clients:     make(map[string]Account),
		provisioned: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve validates opts, returns the cached client for its fingerprint
// (constructing it on first use), provisions the database and container
// once, and returns a Provider for the container.
func (m *Manager) Resolve(ctx context.Context, opts Options) (*Provider, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cs, err := ParseConnectionString(opts.ConnectionString)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(opts, cs)

	account, err := m.account(ctx, fp, opts)
	if err != nil {
		return nil, cancelled(err)
	}
	if err := m.provision(ctx, fp, account, opts); err != nil {
		return nil, cancelled(err)
	}

	container, err := account.Container(opts.DatabaseID, opts.ContainerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", docket.ErrConfiguration, err)
	}
	return New(container, opts.PartitionKeyPath, WithTimeout(opts.RetryMaxWait)), nil
}

// Len returns the number of cached clients.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Close releases every cached client. Calling Close more than once is safe.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	clients := m.clients
	m.clients = make(map[string]Account)
	m.provisioned = make(map[string]struct{})
	m.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	capitan.Emit(context.Background(), ManagerClosed, FieldClients.Field(len(clients)))
	return errors.Join(errs...)
}

func (m *Manager) account(ctx context.Context, fp string, opts Options) (Account, error) {
	m.mu.RLock()
	closed := m.closed
	account, ok := m.clients[fp]
	m.mu.RUnlock()
	if closed {
		return nil, docket.ErrClosed
	}
	if ok {
		capitan.Emit(ctx, ClientCacheHit, FieldFingerprint.Field(fp))
		return account, nil
	}

	v, err, _ := m.clientGroup.Do(fp, func() (any, error) {
		m.mu.RLock()
		existing, ok := m.clients[fp]
		m.mu.RUnlock()
		if ok {
			return existing, nil
		}

		created, err := m.factory(opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", docket.ErrConfiguration, err)
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = created.Close()
			return nil, docket.ErrClosed
		}
		m.clients[fp] = created
		m.mu.Unlock()

		capitan.Emit(ctx, ClientCreated,
			FieldFingerprint.Field(fp),
			FieldDatabase.Field(opts.DatabaseID),
		)
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Account), nil
}

func (m *Manager) provision(ctx context.Context, fp string, account Account, opts Options) error {
	key := fp + "/" + opts.ContainerID
	m.mu.RLock()
	_, done := m.provisioned[key]
	m.mu.RUnlock()
	if done {
		return nil
	}

	_, err, _ := m.provisionGroup.Do(key, func() (any, error) {
		m.mu.RLock()
		_, done := m.provisioned[key]
		m.mu.RUnlock()
		if done {
			return nil, nil
		}
		if err := Provision(ctx, account, opts); err != nil {
			return nil, err
		}
		m.mu.Lock()
		if !m.closed {
			m.provisioned[key] = struct{}{}
		}
		m.mu.Unlock()
		return nil, nil
	})
	return err
}

// cancelled maps context errors onto docket.ErrCancelled.
func cancelled(err error) error {
	if c := shared.Cancelled(err); c != nil {
		return c
	}
	return err
}
