package cosmos

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/zoobzio/docket"
)

func testOptions() Options {
	opts := validOptions()
	opts.SettleDelay = -1
	return opts
}

func countingFactory(acct Account, calls *int32) ManagerOption {
	return WithClientFactory(func(Options) (Account, error) {
		atomic.AddInt32(calls, 1)
		return acct, nil
	})
}

func TestManager_ResolveCachesClients(t *testing.T) {
	ctx := context.Background()
	acct := newFakeAccount()
	var calls int32
	m := NewManager(countingFactory(acct, &calls))
	defer m.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Resolve(ctx, testOptions()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Resolve failed: %v", err)
	}

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected one client construction, got %d", n)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 cached client, got %d", m.Len())
	}
	if n := atomic.LoadInt32(&acct.dbCalls); n != 1 {
		t.Errorf("expected database provisioned once, got %d calls", n)
	}
	if n := atomic.LoadInt32(&acct.containerCalls); n != 1 {
		t.Errorf("expected container provisioned once, got %d calls", n)
	}
}

func TestManager_DistinctFingerprints(t *testing.T) {
	ctx := context.Background()
	var calls int32
	m := NewManager(countingFactory(newFakeAccount(), &calls))
	defer m.Close()

	a := testOptions()
	b := testOptions()
	b.DatabaseID = "warehouse"

	if _, err := m.Resolve(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Resolve(ctx, b); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.Errorf("expected 2 cached clients, got %d", m.Len())
	}

	c := testOptions()
	c.ContainerID = "orders"
	if _, err := m.Resolve(ctx, c); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.Errorf("a new container on a known database should reuse the client, got %d", m.Len())
	}
	if calls != 2 {
		t.Errorf("expected 2 client constructions, got %d", calls)
	}
}

func TestManager_ProvisionExistingResources(t *testing.T) {
	ctx := context.Background()
	acct := newFakeAccount()
	var calls int32

	first := NewManager(countingFactory(acct, &calls))
	if _, err := first.Resolve(ctx, testOptions()); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second := NewManager(countingFactory(acct, &calls))
	defer second.Close()
	p, err := second.Resolve(ctx, testOptions())
	if err != nil {
		t.Fatalf("existing database and container should be accepted, got %v", err)
	}
	if p.PartitionKeyPath() != "/category" {
		t.Errorf("unexpected partition key path %q", p.PartitionKeyPath())
	}
	if n := atomic.LoadInt32(&acct.containerCalls); n != 2 {
		t.Errorf("expected a create attempt per manager, got %d", n)
	}
}

func TestManager_ThroughputPlacement(t *testing.T) {
	ctx := context.Background()
	ttl := int32(3600)

	t.Run("container level", func(t *testing.T) {
		acct := newFakeAccount()
		var calls int32
		m := NewManager(countingFactory(acct, &calls))
		defer m.Close()

		opts := testOptions()
		opts.RequestUnits = 800
		opts.DefaultTTLSeconds = &ttl
		if _, err := m.Resolve(ctx, opts); err != nil {
			t.Fatal(err)
		}
		if acct.lastDBOpts != nil {
			t.Error("database should not carry throughput")
		}
		if acct.lastContainerOpt == nil || acct.lastContainerOpt.ThroughputProperties == nil {
			t.Fatal("container should carry throughput")
		}
		if acct.lastContainer.PartitionKeyDefinition.Paths[0] != "/category" {
			t.Errorf("unexpected partition path %v", acct.lastContainer.PartitionKeyDefinition.Paths)
		}
		if acct.lastContainer.DefaultTimeToLive == nil || *acct.lastContainer.DefaultTimeToLive != 3600 {
			t.Error("default TTL not applied")
		}
	})

	t.Run("database level", func(t *testing.T) {
		acct := newFakeAccount()
		var calls int32
		m := NewManager(countingFactory(acct, &calls))
		defer m.Close()

		opts := testOptions()
		opts.ProvisionAtDatabaseLevel = true
		if _, err := m.Resolve(ctx, opts); err != nil {
			t.Fatal(err)
		}
		if acct.lastDBOpts == nil || acct.lastDBOpts.ThroughputProperties == nil {
			t.Error("database should carry throughput")
		}
		if acct.lastContainerOpt != nil {
			t.Error("container should not carry throughput")
		}
	})
}

func TestManager_ProvisionFailure(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		mutate   func(*fakeAccount)
		status   int
		dbCalled bool
	}{
		{"database unauthorized", func(a *fakeAccount) { a.dbErr = responseError(http.StatusUnauthorized, 0) }, http.StatusUnauthorized, true},
		{"container unavailable", func(a *fakeAccount) { a.containerErr = responseError(http.StatusServiceUnavailable, 0) }, http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := newFakeAccount()
			tt.mutate(acct)
			var calls int32
			m := NewManager(countingFactory(acct, &calls))
			defer m.Close()

			opts := validOptions()
			_, err := m.Resolve(ctx, opts)
			if !errors.Is(err, docket.ErrProvisioning) {
				t.Fatalf("expected ErrProvisioning, got %v", err)
			}
			var se *docket.StoreError
			if !errors.As(err, &se) || se.Status != tt.status {
				t.Errorf("expected status %d, got %+v", tt.status, se)
			}

			// A failed provision is retried on the next Resolve.
			acct.dbErr = nil
			acct.containerErr = nil
			if _, err := m.Resolve(ctx, testOptions()); err != nil {
				t.Errorf("retry after failure: %v", err)
			}
		})
	}
}

func TestManager_ProvisionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	acct := newFakeAccount()
	var calls int32
	m := NewManager(countingFactory(acct, &calls))
	defer m.Close()

	opts := validOptions()
	cancel()
	// The container is created, so the settle delay observes the cancelled context.
	_, err := m.Resolve(ctx, opts)
	if !errors.Is(err, docket.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestManager_ValidationBeforeFactory(t *testing.T) {
	var calls int32
	m := NewManager(countingFactory(newFakeAccount(), &calls))
	defer m.Close()

	opts := testOptions()
	opts.DatabaseID = ""
	if _, err := m.Resolve(context.Background(), opts); !errors.Is(err, docket.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	if calls != 0 {
		t.Errorf("factory should not run for invalid options, ran %d times", calls)
	}
}

func TestManager_FactoryError(t *testing.T) {
	m := NewManager(WithClientFactory(func(Options) (Account, error) {
		return nil, errors.New("bad key")
	}))
	defer m.Close()

	if _, err := m.Resolve(context.Background(), testOptions()); !errors.Is(err, docket.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	if m.Len() != 0 {
		t.Error("failed construction should not be cached")
	}
}

func TestManager_Close(t *testing.T) {
	ctx := context.Background()
	acct := newFakeAccount()
	var calls int32
	m := NewManager(countingFactory(acct, &calls))

	if _, err := m.Resolve(ctx, testOptions()); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if n := atomic.LoadInt32(&acct.closed); n != 1 {
		t.Errorf("expected client closed once, got %d", n)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty cache after Close, got %d", m.Len())
	}
	if _, err := m.Resolve(ctx, testOptions()); !errors.Is(err, docket.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
