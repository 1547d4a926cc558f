// Package document provides shared test infrastructure for docket store integration tests.
package document

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/zoobzio/docket"
)

// PartitionPath is the partition key path every store under test must use.
const PartitionPath = "/category"

// Product is the model used for document integration tests.
type Product struct {
	docket.Document
	Category string `json:"category"`
	Name     string `json:"name"`
	Price    int    `json:"price"`
	Batch    string `json:"batch"`
}

// TestContext holds shared test resources for a provider.
type TestContext struct {
	Provider docket.Provider
	Cleanup  func() // optional cleanup function
}

// batch isolates one test's documents from every other test sharing the store.
type batch struct {
	id   string
	repo *docket.Repository[Product]
}

func newBatch(t *testing.T, tc *TestContext) *batch {
	t.Helper()
	repo, err := docket.NewRepository[Product](tc.Provider)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	return &batch{id: uuid.NewString(), repo: repo}
}

// partition returns a partition key unique to the batch.
func (b *batch) partition(name string) string {
	return name + "-" + b.id
}

func (b *batch) product(id, category, name string, price int) *Product {
	return &Product{
		Document: docket.Document{ID: id},
		Category: b.partition(category),
		Name:     name,
		Price:    price,
		Batch:    b.id,
	}
}

// seed stores three saws and two drills.
func (b *batch) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []*Product{
		b.product("s1", "saws", "rip", 30),
		b.product("s2", "saws", "coping", 12),
		b.product("s3", "saws", "fret", 18),
		b.product("d1", "drills", "hand", 20),
		b.product("d2", "drills", "brace", 45),
	} {
		if _, err := b.repo.Create(ctx, p); err != nil {
			t.Fatalf("seed %s failed: %v", p.ID, err)
		}
	}
}

// spec selects only the batch's documents.
func (b *batch) spec(conditions ...docket.Condition) docket.Specification[Product] {
	return docket.NewSpecification[Product](append(conditions, docket.Eq("batch", b.id))...)
}

func names(items []*Product) []string {
	out := make([]string, len(items))
	for i, p := range items {
		out[i] = p.Name
	}
	return out
}

func sameNames(got []*Product, want ...string) bool {
	g := names(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

// RunCRUDTests runs the point operation suite against the given context.
func RunCRUDTests(t *testing.T, tc *TestContext) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, tc) })
	t.Run("CreateAssignsID", func(t *testing.T) { testCreateAssignsID(t, tc) })
	t.Run("CreateConflict", func(t *testing.T) { testCreateConflict(t, tc) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, tc) })
	t.Run("UpdateUpserts", func(t *testing.T) { testUpdateUpserts(t, tc) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, tc) })
	t.Run("DeleteNotFound", func(t *testing.T) { testDeleteNotFound(t, tc) })
	t.Run("PartitionIsolation", func(t *testing.T) { testPartitionIsolation(t, tc) })
}

// RunQueryTests runs the List suite.
func RunQueryTests(t *testing.T, tc *TestContext) {
	RunPartitionQueryTests(t, tc)
	t.Run("ListCrossPartition", func(t *testing.T) { testListCrossPartition(t, tc) })
	t.Run("ListCriteria", func(t *testing.T) { testListCriteria(t, tc) })
	t.Run("ListOrderAndPage", func(t *testing.T) { testListOrderAndPage(t, tc) })
	t.Run("ListTakeZero", func(t *testing.T) { testListTakeZero(t, tc) })
}

// RunPartitionQueryTests runs the List tests that stay inside one partition.
// Stores without a cross-partition ordering engine run only these.
func RunPartitionQueryTests(t *testing.T, tc *TestContext) {
	t.Run("ListPartition", func(t *testing.T) { testListPartition(t, tc) })
	t.Run("ListPartitionPage", func(t *testing.T) { testListPartitionPage(t, tc) })
	t.Run("ListFilterBeforeOrder", func(t *testing.T) { testListFilterBeforeOrder(t, tc) })
}

// RunGroupTests runs GroupBy tests. Stores that need a composite index for
// multi-key ordering skip these unless the index exists.
func RunGroupTests(t *testing.T, tc *TestContext) {
	t.Run("ListGrouped", func(t *testing.T) { testListGrouped(t, tc) })
}

// RunCountTests runs the Count suite.
func RunCountTests(t *testing.T, tc *TestContext) {
	t.Run("Count", func(t *testing.T) { testCount(t, tc) })
	t.Run("CountWindowed", func(t *testing.T) { testCountWindowed(t, tc) })
}

// --- CRUD Tests ---

func testCreateAndGet(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	ctx := context.Background()

	stored, err := b.repo.Create(ctx, b.product("1", "saws", "rip", 30))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if stored.ID != "1" || stored.Name != "rip" {
		t.Errorf("unexpected stored document %+v", stored)
	}

	got, err := b.repo.Get(ctx, docket.Key("1", b.partition("saws")))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected document, got nil")
	}
	if got.Name != "rip" || got.Price != 30 || got.Category != b.partition("saws") {
		t.Errorf("unexpected document %+v", got)
	}
}

func testCreateAssignsID(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	ctx := context.Background()

	stored, err := b.repo.Create(ctx, b.product("", "saws", "tenon", 25))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected an assigned id")
	}
	got, err := b.repo.Get(ctx, b.repo.KeyOf(stored))
	if err != nil || got == nil {
		t.Fatalf("Get by assigned id failed: %v %v", got, err)
	}
}

func testCreateConflict(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	ctx := context.Background()

	if _, err := b.repo.Create(ctx, b.product("1", "saws", "rip", 30)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := b.repo.Create(ctx, b.product("1", "saws", "rip", 31))
	if !errors.Is(err, docket.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var se *docket.StoreError
	if !errors.As(err, &se) || se.Status != 409 {
		t.Errorf("expected a 409 StoreError, got %v", err)
	}
}

func testGetNotFound(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)

	got, err := b.repo.Get(context.Background(), docket.Key("missing", b.partition("saws")))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil document, got %+v", got)
	}
}

func testUpdateUpserts(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	ctx := context.Background()

	if _, err := b.repo.Update(ctx, b.product("1", "saws", "rip", 30)); err != nil {
		t.Fatalf("Update of a new document failed: %v", err)
	}
	if _, err := b.repo.Update(ctx, b.product("1", "saws", "rip", 35)); err != nil {
		t.Fatalf("Update of an existing document failed: %v", err)
	}

	got, err := b.repo.Get(ctx, docket.Key("1", b.partition("saws")))
	if err != nil || got == nil {
		t.Fatalf("Get failed: %v %v", got, err)
	}
	if got.Price != 35 {
		t.Errorf("expected price 35, got %d", got.Price)
	}
}

func testDelete(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	ctx := context.Background()

	p := b.product("1", "saws", "rip", 30)
	if _, err := b.repo.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := b.repo.Delete(ctx, p); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	got, err := b.repo.Get(ctx, b.repo.KeyOf(p))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Error("document should be gone")
	}
}

func testDeleteNotFound(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)

	if err := b.repo.Delete(context.Background(), b.product("missing", "saws", "", 0)); err != nil {
		t.Errorf("deleting a missing document should succeed, got %v", err)
	}
}

func testPartitionIsolation(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	ctx := context.Background()

	if _, err := b.repo.Create(ctx, b.product("1", "saws", "rip", 30)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := b.repo.Create(ctx, b.product("1", "drills", "hand", 20)); err != nil {
		t.Fatalf("same id in another partition should not conflict: %v", err)
	}

	got, err := b.repo.Get(ctx, docket.Key("1", b.partition("drills")))
	if err != nil || got == nil {
		t.Fatalf("Get failed: %v %v", got, err)
	}
	if got.Name != "hand" {
		t.Errorf("read crossed partitions: %+v", got)
	}
}

// --- Query Tests ---

func testListPartition(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	b.seed(t)

	items, err := b.repo.List(context.Background(), b.spec().InPartition(b.partition("saws")).OrderBy("price"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !sameNames(items, "coping", "fret", "rip") {
		t.Errorf("unexpected result %v", names(items))
	}
}

func testListPartitionPage(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	b.seed(t)

	spec := b.spec(docket.Gt("price", 10)).InPartition(b.partition("saws")).OrderByDescending("price").Page(1, 1)
	items, err := b.repo.List(context.Background(), spec)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !sameNames(items, "fret") {
		t.Errorf("unexpected page %v", names(items))
	}
}

// testListFilterBeforeOrder excludes the most expensive saw. Ordering and
// taking two before filtering would return only [fret].
func testListFilterBeforeOrder(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	b.seed(t)

	spec := b.spec(docket.Ne("name", "rip")).InPartition(b.partition("saws")).OrderByDescending("price").Page(0, 2)
	items, err := b.repo.List(context.Background(), spec)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !sameNames(items, "fret", "coping") {
		t.Errorf("got %v, want [fret coping]", names(items))
	}
}

func testListCrossPartition(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	b.seed(t)

	items, err := b.repo.List(context.Background(), b.spec().OrderByDescending("price"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !sameNames(items, "brace", "rip", "hand", "fret", "coping") {
		t.Errorf("unexpected result %v", names(items))
	}
}

func testListCriteria(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	b.seed(t)
	ctx := context.Background()

	tests := []struct {
		name string
		spec docket.Specification[Product]
		want []string
	}{
		{"Gt", b.spec(docket.Gt("price", 19)).OrderBy("price"), []string{"hand", "rip", "brace"}},
		{"Lte", b.spec(docket.Lte("price", 18)).OrderBy("price"), []string{"coping", "fret"}},
		{"Ne", b.spec(docket.Ne("name", "rip")).InPartition(b.partition("saws")).OrderBy("price"), []string{"coping", "fret"}},
		{"In", b.spec(docket.In("name", "hand", "fret")).OrderBy("name"), []string{"fret", "hand"}},
		{"StartsWith", b.spec(docket.StartsWith("name", "br")), []string{"brace"}},
		{"Contains", b.spec(docket.Contains("name", "op")), []string{"coping"}},
		{"NoMatch", b.spec(docket.Eq("name", "none")), []string{}},
		{"FilterBeforeOrder", b.spec(docket.Ne("name", "brace")).OrderByDescending("price").Page(0, 2), []string{"rip", "hand"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := b.repo.List(ctx, tt.spec)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if !sameNames(items, tt.want...) {
				t.Errorf("got %v, want %v", names(items), tt.want)
			}
		})
	}
}

func testListOrderAndPage(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	b.seed(t)

	items, err := b.repo.List(context.Background(), b.spec().OrderBy("price").Page(1, 2))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !sameNames(items, "fret", "hand") {
		t.Errorf("unexpected page %v", names(items))
	}

	items, err = b.repo.List(context.Background(), b.spec().OrderBy("price").Page(4, 10))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !sameNames(items, "brace") {
		t.Errorf("unexpected tail page %v", names(items))
	}
}

func testListTakeZero(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	b.seed(t)

	items, err := b.repo.List(context.Background(), b.spec().Page(0, 0))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no documents, got %v", names(items))
	}
}

func testListGrouped(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	b.seed(t)

	items, err := b.repo.List(context.Background(), b.spec().OrderBy("price").GroupBy("category"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !sameNames(items, "hand", "brace", "coping", "fret", "rip") {
		t.Errorf("unexpected grouping %v", names(items))
	}
}

// --- Count Tests ---

func testCount(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	b.seed(t)
	ctx := context.Background()

	tests := []struct {
		name string
		spec docket.Specification[Product]
		want int64
	}{
		{"All", b.spec(), 5},
		{"Partition", b.spec().InPartition(b.partition("drills")), 2},
		{"Criteria", b.spec(docket.Gte("price", 20)), 3},
		{"EmptyPartition", b.spec().InPartition(b.partition("planes")), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := b.repo.Count(ctx, tt.spec)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("got %d, want %d", n, tt.want)
			}
		})
	}
}

func testCountWindowed(t *testing.T, tc *TestContext) {
	b := newBatch(t, tc)
	b.seed(t)
	ctx := context.Background()

	tests := []struct {
		skip, take int
		want       int64
	}{
		{0, 2, 2},
		{3, 10, 2},
		{10, 5, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		n, err := b.repo.Count(ctx, b.spec().Page(tt.skip, tt.take))
		if err != nil {
			t.Fatalf("Count(%d,%d) failed: %v", tt.skip, tt.take, err)
		}
		if n != tt.want {
			t.Errorf("Count(%d,%d) = %d, want %d", tt.skip, tt.take, n, tt.want)
		}
	}
}
