package docket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docket/internal/document"
)

// mockQuery records the calls made while evaluating a specification.
type mockQuery struct {
	partition string
	calls     []string
	criteria  Criteria
	order     string
	desc      bool
	group     string
	skip      int
	take      int
	paged     bool
	expand    []string
}

func (q *mockQuery) with(call string) *mockQuery {
	c := *q
	c.calls = append(append([]string(nil), q.calls...), call)
	return &c
}

func (q *mockQuery) Where(criteria Criteria) Query {
	c := q.with("where")
	c.criteria = append(append(Criteria(nil), q.criteria...), criteria...)
	return c
}

func (q *mockQuery) OrderBy(field string, descending bool) Query {
	c := q.with("order")
	c.order, c.desc = field, descending
	return c
}

func (q *mockQuery) GroupBy(field string) Query {
	c := q.with("group")
	c.group = field
	return c
}

func (q *mockQuery) Page(skip, take int) Query {
	c := q.with("page")
	c.skip, c.take, c.paged = skip, take, true
	return c
}

func (q *mockQuery) Expand(paths []string) Query {
	c := q.with("expand")
	c.expand = paths
	return c
}

type mockPager struct {
	pages []Page
	errAt int
	err   error
	next  int
}

func (p *mockPager) More() bool { return p.next < len(p.pages) }

func (p *mockPager) NextPage(_ context.Context) (Page, error) {
	if p.err != nil && p.next == p.errAt {
		p.next = len(p.pages)
		return Page{}, p.err
	}
	page := p.pages[p.next]
	p.next++
	return page, nil
}

// mockProvider is an in-memory provider for testing.
type mockProvider struct {
	mu        sync.Mutex
	path      string
	docs      map[EntityKey][]byte
	createErr error
	upsertErr error
	readErr   error
	deleteErr error
	countErr  error
	pages     []Page
	pageErrAt int
	pageErr   error
	count     int64
	lastQuery *mockQuery
}

func newMockProvider(path string) *mockProvider {
	return &mockProvider{path: path, docs: make(map[EntityKey][]byte)}
}

func (m *mockProvider) PartitionKeyPath() string { return m.path }

func (m *mockProvider) Create(ctx context.Context, pk string, doc []byte) (Response, error) {
	if m.createErr != nil {
		return Response{}, m.createErr
	}
	key, err := m.key(pk, doc)
	if err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[key]; ok {
		return Response{}, &StoreError{Op: "create", Status: 409, RequestCharge: 1.5, Kind: ErrConflict, Err: errors.New("exists")}
	}
	m.docs[key] = doc
	return Response{Status: 201, RequestCharge: 5.7, Body: doc}, ctx.Err()
}

func (m *mockProvider) Upsert(_ context.Context, pk string, doc []byte) (Response, error) {
	if m.upsertErr != nil {
		return Response{}, m.upsertErr
	}
	key, err := m.key(pk, doc)
	if err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = doc
	return Response{Status: 200, RequestCharge: 10, Body: doc}, nil
}

func (m *mockProvider) Read(_ context.Context, id, pk string) (Response, error) {
	if m.readErr != nil {
		return Response{}, m.readErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[Key(id, pk)]
	if !ok {
		return Response{}, &StoreError{Op: "read", Status: 404, RequestCharge: 1, Kind: ErrNotFound, Err: errors.New("missing")}
	}
	return Response{Status: 200, RequestCharge: 1, Body: doc}, nil
}

func (m *mockProvider) Delete(_ context.Context, id, pk string) (Response, error) {
	if m.deleteErr != nil {
		return Response{}, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Key(id, pk)
	if _, ok := m.docs[key]; !ok {
		return Response{}, &StoreError{Op: "delete", Status: 404, Kind: ErrNotFound, Err: errors.New("missing")}
	}
	delete(m.docs, key)
	return Response{Status: 204, RequestCharge: 5}, nil
}

func (m *mockProvider) Query(pk string) Query {
	return &mockQuery{partition: pk}
}

func (m *mockProvider) Pages(q Query) (Pager, error) {
	mq, ok := q.(*mockQuery)
	if !ok {
		return nil, ErrInvalidQuery
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = mq
	if m.pages != nil {
		return &mockPager{pages: m.pages, errAt: m.pageErrAt, err: m.pageErr}, nil
	}
	keys := make([]EntityKey, 0, len(m.docs))
	for k := range m.docs {
		if mq.partition == "" || k.PartitionKey == mq.partition {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	items := make([][]byte, len(keys))
	for i, k := range keys {
		items[i] = m.docs[k]
	}
	return &mockPager{pages: []Page{{Status: 200, Items: items}}, errAt: m.pageErrAt, err: m.pageErr}, nil
}

func (m *mockProvider) Count(_ context.Context, q Query) (CountResult, error) {
	if m.countErr != nil {
		return CountResult{}, m.countErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQuery = q.(*mockQuery)
	return CountResult{Status: 200, RequestCharge: 2.5, Count: m.count}, nil
}

func (m *mockProvider) key(pk string, doc []byte) (EntityKey, error) {
	decoded, err := document.Decode(doc)
	if err != nil {
		return EntityKey{}, err
	}
	return Key(document.ID(decoded), pk), nil
}

type testProduct struct {
	Document
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
}

type notAnEntity struct {
	Name string `json:"name"`
}

func newTestRepo(t *testing.T, provider Provider, opts ...Option[testProduct]) *Repository[testProduct] {
	t.Helper()
	repo, err := NewRepository[testProduct](provider, opts...)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	return repo
}

func TestNewRepository(t *testing.T) {
	if _, err := NewRepository[testProduct](nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("nil provider: expected ErrConfiguration, got %v", err)
	}
	if _, err := NewRepository[notAnEntity](newMockProvider("/name")); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("non-entity: expected ErrInvalidEntity, got %v", err)
	}

	provider := newMockProvider("/category")
	repo := newTestRepo(t, provider)
	if repo.Provider() != provider {
		t.Error("Provider() should return the configured provider")
	}
}

func TestRepository_Create(t *testing.T) {
	provider := newMockProvider("/category")
	repo := newTestRepo(t, provider, WithIDGenerator[testProduct](func() string { return "generated" }))
	ctx := context.Background()

	got, err := repo.Create(ctx, &testProduct{Category: "tools", Name: "hammer"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if got.ID != "generated" {
		t.Errorf("expected generated id, got %q", got.ID)
	}
	if _, ok := provider.docs[Key("generated", "tools")]; !ok {
		t.Error("document should be stored under the category partition")
	}

	_, err = repo.Create(ctx, &testProduct{Document: Document{ID: "generated"}, Category: "tools"})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestRepository_Create_DefaultIDIsUUID(t *testing.T) {
	repo := newTestRepo(t, newMockProvider("/category"))
	got, err := repo.Create(context.Background(), &testProduct{Category: "c"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(got.ID) != 36 {
		t.Errorf("expected uuid id, got %q", got.ID)
	}
}

func TestRepository_PartitionKey(t *testing.T) {
	t.Run("path lookup", func(t *testing.T) {
		repo := newTestRepo(t, newMockProvider("/category"))
		key := repo.KeyOf(&testProduct{Document: Document{ID: "1"}, Category: "tools"})
		if key != Key("1", "tools") {
			t.Errorf("unexpected key %+v", key)
		}
	})

	t.Run("missing path yields empty", func(t *testing.T) {
		repo := newTestRepo(t, newMockProvider("/vendor/name"))
		key := repo.KeyOf(&testProduct{Document: Document{ID: "1"}, Category: "tools"})
		if key.PartitionKey != "" {
			t.Errorf("expected empty partition key, got %q", key.PartitionKey)
		}
	})

	t.Run("non-string value yields empty", func(t *testing.T) {
		repo := newTestRepo(t, newMockProvider("/price"))
		key := repo.KeyOf(&testProduct{Document: Document{ID: "1"}, Price: 3})
		if key.PartitionKey != "" {
			t.Errorf("expected empty partition key, got %q", key.PartitionKey)
		}
	})

	t.Run("accessor", func(t *testing.T) {
		repo := newTestRepo(t, newMockProvider("/category"),
			WithPartitionKey(func(p *testProduct) string { return "n:" + p.Name }))
		key := repo.KeyOf(&testProduct{Document: Document{ID: "1"}, Name: "awl"})
		if key.PartitionKey != "n:awl" {
			t.Errorf("unexpected partition key %q", key.PartitionKey)
		}
	})

	t.Run("panicking accessor yields empty", func(t *testing.T) {
		provider := newMockProvider("/category")
		repo := newTestRepo(t, provider,
			WithPartitionKey(func(_ *testProduct) string { panic("boom") }))
		if _, err := repo.Create(context.Background(), &testProduct{Document: Document{ID: "1"}}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if _, ok := provider.docs[Key("1", "")]; !ok {
			t.Error("document should be stored under the empty partition")
		}
	})
}

func TestRepository_Update(t *testing.T) {
	provider := newMockProvider("/category")
	repo := newTestRepo(t, provider)
	ctx := context.Background()

	p := &testProduct{Document: Document{ID: "1"}, Category: "tools", Name: "awl"}
	if _, err := repo.Update(ctx, p); err != nil {
		t.Fatalf("Update (create) failed: %v", err)
	}
	p.Name = "bradawl"
	got, err := repo.Update(ctx, p)
	if err != nil {
		t.Fatalf("Update (replace) failed: %v", err)
	}
	if got.Name != "bradawl" {
		t.Errorf("expected replaced name, got %q", got.Name)
	}
	if len(provider.docs) != 1 {
		t.Errorf("expected 1 document, got %d", len(provider.docs))
	}
}

func TestRepository_Get(t *testing.T) {
	provider := newMockProvider("/category")
	repo := newTestRepo(t, provider)
	ctx := context.Background()

	provider.docs[Key("1", "tools")] = []byte(`{"id":"1","category":"tools","name":"awl"}`)

	got, err := repo.Get(ctx, Key("1", "tools"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.Name != "awl" {
		t.Fatalf("unexpected result %+v", got)
	}

	got, err = repo.Get(ctx, Key("1", "garden"))
	if err != nil {
		t.Errorf("not found should not be an error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing document, got %+v", got)
	}

	provider.docs[Key("bad", "tools")] = []byte(`{not json`)
	if _, err := repo.Get(ctx, Key("bad", "tools")); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}

	provider.readErr = &StoreError{Op: "read", Status: 503, Kind: ErrTransient, Err: errors.New("unavailable")}
	if _, err := repo.Get(ctx, Key("1", "tools")); !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient, got %v", err)
	}
}

func TestRepository_Delete(t *testing.T) {
	provider := newMockProvider("/category")
	repo := newTestRepo(t, provider)
	ctx := context.Background()

	p := &testProduct{Document: Document{ID: "1"}, Category: "tools"}
	provider.docs[Key("1", "tools")] = []byte(`{"id":"1","category":"tools"}`)

	if err := repo.Delete(ctx, p); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(provider.docs) != 0 {
		t.Error("document should be removed")
	}
	if err := repo.Delete(ctx, p); err != nil {
		t.Errorf("deleting a missing document should succeed, got %v", err)
	}

	provider.deleteErr = &StoreError{Op: "delete", Status: 429, Kind: ErrTransient, Err: errors.New("throttled")}
	if err := repo.Delete(ctx, p); !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient, got %v", err)
	}
}

func TestRepository_List(t *testing.T) {
	provider := newMockProvider("/category")
	repo := newTestRepo(t, provider)
	ctx := context.Background()

	provider.pages = []Page{
		{Status: 200, RequestCharge: 2, Items: [][]byte{[]byte(`{"id":"3"}`), []byte(`{"id":"1"}`)}},
		{Status: 200, RequestCharge: 2, Items: [][]byte{[]byte(`{"id":"2"}`)}},
	}

	spec := NewSpecification[testProduct](Eq("name", "awl")).
		InPartition("tools").
		OrderByDescending("price").
		GroupBy("name").
		Page(1, 3).
		Include(Include[testProduct]("name"))

	got, err := repo.List(ctx, spec)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var ids []string
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	if fmt.Sprint(ids) != "[3 1 2]" {
		t.Errorf("expected page order preserved, got %v", ids)
	}

	q := provider.lastQuery
	if q.partition != "tools" {
		t.Errorf("expected partition scope, got %q", q.partition)
	}
	if fmt.Sprint(q.calls) != "[where order group page expand]" {
		t.Errorf("unexpected evaluation order %v", q.calls)
	}
	if q.order != "price" || !q.desc || q.skip != 1 || q.take != 3 {
		t.Errorf("unexpected query %+v", q)
	}
}

func TestRepository_List_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("page failure discards partial results", func(t *testing.T) {
		provider := newMockProvider("/category")
		provider.pages = []Page{
			{Items: [][]byte{[]byte(`{"id":"1"}`)}},
			{Items: [][]byte{[]byte(`{"id":"2"}`)}},
		}
		provider.pageErrAt = 1
		provider.pageErr = &StoreError{Op: "query", Status: 503, Kind: ErrTransient, Err: errors.New("unavailable")}
		repo := newTestRepo(t, provider)

		got, err := repo.List(ctx, NewSpecification[testProduct]())
		if !errors.Is(err, ErrTransient) {
			t.Errorf("expected ErrTransient, got %v", err)
		}
		if got != nil {
			t.Errorf("expected no results, got %d", len(got))
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		provider := newMockProvider("/category")
		provider.pages = []Page{{Items: [][]byte{[]byte(`{"id":"1"}`)}}}
		repo := newTestRepo(t, provider)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := repo.List(cctx, NewSpecification[testProduct]())
		if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
			t.Errorf("expected ErrCancelled wrapping context.Canceled, got %v", err)
		}
	})

	t.Run("invalid criteria", func(t *testing.T) {
		repo := newTestRepo(t, newMockProvider("/category"))
		_, err := repo.List(ctx, NewSpecification[testProduct](Contains("name", "")).Where(Condition{Field: "x", Op: "~"}))
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery, got %v", err)
		}
	})

	t.Run("undecodable item", func(t *testing.T) {
		provider := newMockProvider("/category")
		provider.pages = []Page{{Items: [][]byte{[]byte(`[1,2]`)}}}
		repo := newTestRepo(t, provider)
		if _, err := repo.List(ctx, NewSpecification[testProduct]()); !errors.Is(err, ErrDecode) {
			t.Errorf("expected ErrDecode, got %v", err)
		}
	})
}

func TestRepository_Count(t *testing.T) {
	provider := newMockProvider("/category")
	provider.count = 7
	repo := newTestRepo(t, provider)

	n, err := repo.Count(context.Background(), NewSpecification[testProduct]().InPartition("tools").Page(0, 5))
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 7 {
		t.Errorf("expected provider count, got %d", n)
	}
	if !provider.lastQuery.paged || provider.lastQuery.partition != "tools" {
		t.Errorf("count query should carry scope and window, got %+v", provider.lastQuery)
	}

	provider.countErr = context.DeadlineExceeded
	if _, err := repo.Count(context.Background(), NewSpecification[testProduct]()); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestRepository_EmitsSignals(t *testing.T) {
	provider := newMockProvider("/category")
	repo := newTestRepo(t, provider)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		statuses = make(map[capitan.Signal]int)
		pks      = make(map[capitan.Signal]string)
		found    []bool
	)
	record := func(_ context.Context, e *capitan.Event) {
		mu.Lock()
		defer mu.Unlock()
		statuses[e.Signal()] = FieldStatus.ExtractFromFields(e.Fields())
		pks[e.Signal()] = FieldPartitionKey.ExtractFromFields(e.Fields())
		if e.Signal() == GetCompleted {
			found = append(found, FieldFound.ExtractFromFields(e.Fields()))
		}
	}

	l1 := capitan.Hook(CreateCompleted, record)
	l2 := capitan.Hook(CreateFailed, record)
	l3 := capitan.Hook(GetCompleted, record)
	l4 := capitan.Hook(DeleteCompleted, record)

	p := &testProduct{Document: Document{ID: "1"}, Category: "tools"}
	_, _ = repo.Create(ctx, p)
	_, _ = repo.Create(ctx, p)
	_, _ = repo.Get(ctx, Key("1", "tools"))
	_, _ = repo.Get(ctx, Key("1", "garden"))
	_ = repo.Delete(ctx, p)

	// Wait for async events to be processed
	_ = l1.Drain(ctx)
	_ = l2.Drain(ctx)
	_ = l3.Drain(ctx)
	_ = l4.Drain(ctx)
	l1.Close()
	l2.Close()
	l3.Close()
	l4.Close()

	mu.Lock()
	defer mu.Unlock()

	if statuses[CreateCompleted] != 201 {
		t.Errorf("expected create status 201, got %d", statuses[CreateCompleted])
	}
	if statuses[CreateFailed] != 409 {
		t.Errorf("expected failed create status 409, got %d", statuses[CreateFailed])
	}
	if statuses[DeleteCompleted] != 204 {
		t.Errorf("expected delete status 204, got %d", statuses[DeleteCompleted])
	}
	if pks[CreateCompleted] != "tools" {
		t.Errorf("expected partition key on event, got %q", pks[CreateCompleted])
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 get events, got %d", len(found))
	}
	hits := 0
	for _, f := range found {
		if f {
			hits++
		}
	}
	if hits != 1 {
		t.Errorf("expected one hit and one miss, got %v", found)
	}
}

func TestRepository_CustomCodec(t *testing.T) {
	provider := newMockProvider("/category")
	codec := &countingCodec{}
	repo := newTestRepo(t, provider, WithCodec[testProduct](codec))

	if _, err := repo.Create(context.Background(), &testProduct{Document: Document{ID: "1"}, Category: "c"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if codec.marshals == 0 || codec.unmarshals == 0 {
		t.Errorf("custom codec not used: %+v", codec)
	}
}

type countingCodec struct {
	marshals, unmarshals int
}

func (c *countingCodec) Marshal(v any) ([]byte, error) {
	c.marshals++
	return json.Marshal(v)
}

func (c *countingCodec) Unmarshal(data []byte, v any) error {
	c.unmarshals++
	return json.Unmarshal(data, v)
}

func (*countingCodec) ContentType() string { return "application/json" }
