package benchmarks

import (
	"context"
	"strconv"
	"testing"

	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/memory"
)

// TestRecord is a sample document type for benchmarks.
type TestRecord struct {
	docket.Document
	Category string `json:"category"`
	Name     string `json:"name"`
	Value    int    `json:"value"`
}

func newRepo(b *testing.B) *docket.Repository[TestRecord] {
	b.Helper()
	repo, err := docket.NewRepository[TestRecord](memory.New("/category"))
	if err != nil {
		b.Fatal(err)
	}
	return repo
}

func seed(b *testing.B, repo *docket.Repository[TestRecord], n int) {
	b.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		rec := &TestRecord{
			Document: docket.Document{ID: strconv.Itoa(i)},
			Category: "c" + strconv.Itoa(i%4),
			Name:     "record",
			Value:    i,
		}
		if _, err := repo.Create(ctx, rec); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRepository_Get measures point read performance.
func BenchmarkRepository_Get(b *testing.B) {
	repo := newRepo(b)
	seed(b, repo, 1)
	ctx := context.Background()
	key := docket.Key("0", "c0")

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = repo.Get(ctx, key)
	}
}

// BenchmarkRepository_Update measures upsert performance.
func BenchmarkRepository_Update(b *testing.B) {
	repo := newRepo(b)
	ctx := context.Background()
	rec := &TestRecord{Document: docket.Document{ID: "1"}, Category: "c1", Name: "Test", Value: 42}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = repo.Update(ctx, rec)
	}
}

// BenchmarkRepository_List measures a filtered, ordered, paged partition query.
func BenchmarkRepository_List(b *testing.B) {
	repo := newRepo(b)
	seed(b, repo, 1000)
	ctx := context.Background()
	spec := docket.NewSpecification[TestRecord](docket.Gte("value", 100)).
		InPartition("c2").
		OrderByDescending("value").
		Page(10, 50)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = repo.List(ctx, spec)
	}
}

// BenchmarkRepository_Count measures a cross-partition count.
func BenchmarkRepository_Count(b *testing.B) {
	repo := newRepo(b)
	seed(b, repo, 1000)
	ctx := context.Background()
	spec := docket.NewSpecification[TestRecord](docket.Lt("value", 500))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = repo.Count(ctx, spec)
	}
}

// BenchmarkRepository_Get_Parallel measures concurrent point reads.
func BenchmarkRepository_Get_Parallel(b *testing.B) {
	repo := newRepo(b)
	seed(b, repo, 100)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			id := i % 100
			_, _ = repo.Get(ctx, docket.Key(strconv.Itoa(id), "c"+strconv.Itoa(id%4)))
			i++
		}
	})
}

// BenchmarkCodec_JSONMarshal measures JSON encoding performance.
func BenchmarkCodec_JSONMarshal(b *testing.B) {
	codec := docket.JSONCodec{}
	rec := TestRecord{Document: docket.Document{ID: "1"}, Category: "c1", Name: "Test", Value: 42}

	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = codec.Marshal(rec)
	}
}
