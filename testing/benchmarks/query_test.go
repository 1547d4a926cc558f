package benchmarks

import (
	"testing"

	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/cosmos"
	"github.com/zoobzio/docket/mongo"
)

func benchSpec() docket.Specification[TestRecord] {
	return docket.NewSpecification[TestRecord](
		docket.Eq("name", "record"),
		docket.In("value", 1, 2, 3, 5, 8),
		docket.StartsWith("category", "c"),
	).InPartition("c1").GroupBy("name").OrderByDescending("value").Page(20, 10)
}

// BenchmarkEvaluate_CosmosSQL measures translating a specification into Cosmos SQL.
func BenchmarkEvaluate_CosmosSQL(b *testing.B) {
	p := cosmos.New(nil, "/category")
	spec := benchSpec()

	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		q := docket.Evaluate(p.Query(spec.PartitionKeyValue()), spec).(*cosmos.Query)
		_, _, _ = q.SQL()
	}
}

// BenchmarkEvaluate_MongoFilter measures translating a specification into a Mongo filter.
func BenchmarkEvaluate_MongoFilter(b *testing.B) {
	p := mongo.New(nil, "/category")
	spec := benchSpec()

	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		q := docket.Evaluate(p.Query(spec.PartitionKeyValue()), spec).(*mongo.Query)
		_, _ = q.Filter()
		_ = q.FindOptions()
	}
}
