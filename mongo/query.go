package mongo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/internal/document"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// partitionField is the _id subfield holding the partition key.
const partitionField = "_id.p"

// Query is an immutable MongoDB query. Build it through Provider.Query.
type Query struct {
	provider   *Provider
	partition  string
	criteria   docket.Criteria
	order      string
	descending bool
	group      string
	skip       int
	take       int
	paged      bool
}

// Where appends criteria to the filter.
func (q *Query) Where(criteria docket.Criteria) docket.Query {
	c := q.copy()
	c.criteria = append(append(docket.Criteria{}, q.criteria...), criteria...)
	return c
}

// OrderBy sorts by field. A later call replaces an earlier one.
func (q *Query) OrderBy(field string, descending bool) docket.Query {
	c := q.copy()
	c.order, c.descending = field, descending
	return c
}

// GroupBy sorts by field ahead of the order key so equal values are contiguous.
func (q *Query) GroupBy(field string) docket.Query {
	c := q.copy()
	c.group = field
	return c
}

// Page applies skip and limit.
func (q *Query) Page(skip, take int) docket.Query {
	c := q.copy()
	if skip < 0 {
		skip = 0
	}
	c.skip, c.take, c.paged = skip, take, true
	return c
}

// Partition returns the partition the query is scoped to, or "" for all partitions.
func (q *Query) Partition() string { return q.partition }

// Empty reports whether the query's window selects nothing.
func (q *Query) Empty() bool { return q.paged && q.take <= 0 }

// Filter renders the partition scope and criteria as a bson filter:
// {"_id.p": partition, "$and": [{field: {op: value}}, ...]}.
func (q *Query) Filter() (bson.D, error) {
	if err := q.criteria.Validate(); err != nil {
		return nil, err
	}
	filter := bson.D{}
	if q.partition != "" {
		filter = append(filter, bson.E{Key: partitionField, Value: q.partition})
	}
	if len(q.criteria) == 0 {
		return filter, nil
	}
	clauses := make(bson.A, 0, len(q.criteria))
	for _, cond := range q.criteria {
		expr, err := condition(cond)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, expr)
	}
	return append(filter, bson.E{Key: "$and", Value: clauses}), nil
}

// Sort renders the group and order keys.
func (q *Query) Sort() bson.D {
	var sort bson.D
	if q.group != "" {
		sort = append(sort, bson.E{Key: document.Dotted(q.group), Value: 1})
	}
	if q.order != "" {
		dir := 1
		if q.descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: document.Dotted(q.order), Value: dir})
	}
	return sort
}

// FindOptions renders sort, skip and limit.
func (q *Query) FindOptions() *options.FindOptionsBuilder {
	opts := options.Find().SetBatchSize(q.provider.pageSize)
	if sort := q.Sort(); len(sort) > 0 {
		opts.SetSort(sort)
	}
	if q.paged {
		opts.SetSkip(int64(q.skip)).SetLimit(int64(q.take))
	}
	return opts
}

// String renders the query for diagnostics.
func (q *Query) String() string {
	filter, err := q.Filter()
	if err != nil {
		return fmt.Sprintf("invalid query: %v", err)
	}
	var b strings.Builder
	data, err := bson.MarshalExtJSON(filter, false, false)
	if err != nil {
		return fmt.Sprintf("invalid filter: %v", err)
	}
	fmt.Fprintf(&b, "find(%s)", data)
	if sort := q.Sort(); len(sort) > 0 {
		data, _ := bson.MarshalExtJSON(sort, false, false)
		fmt.Fprintf(&b, ".sort(%s)", data)
	}
	if q.paged {
		fmt.Fprintf(&b, ".skip(%d).limit(%d)", q.skip, q.take)
	}
	return b.String()
}

func (q *Query) copy() *Query {
	c := *q
	return &c
}

// condition renders one condition as {field: {op: value}}.
func condition(c docket.Condition) (bson.D, error) {
	field := document.Dotted(c.Field)
	var expr any
	switch c.Op {
	case docket.OpEq:
		expr = bson.D{{Key: "$eq", Value: c.Value}}
	case docket.OpNe:
		expr = bson.D{{Key: "$ne", Value: c.Value}}
	case docket.OpLt:
		expr = bson.D{{Key: "$lt", Value: c.Value}}
	case docket.OpLte:
		expr = bson.D{{Key: "$lte", Value: c.Value}}
	case docket.OpGt:
		expr = bson.D{{Key: "$gt", Value: c.Value}}
	case docket.OpGte:
		expr = bson.D{{Key: "$gte", Value: c.Value}}
	case docket.OpIn:
		values := c.Values()
		if values == nil {
			values = []any{}
		}
		expr = bson.D{{Key: "$in", Value: bson.A(values)}}
	case docket.OpContains:
		expr = bson.D{{Key: "$regex", Value: regexp.QuoteMeta(fmt.Sprint(c.Value))}}
	case docket.OpStartsWith:
		expr = bson.D{{Key: "$regex", Value: "^" + regexp.QuoteMeta(fmt.Sprint(c.Value))}}
	case docket.OpNotNull:
		// $ne null also excludes missing fields.
		expr = bson.D{{Key: "$ne", Value: nil}}
	case docket.OpIsNull:
		expr = nil
	default:
		return nil, fmt.Errorf("%w: unsupported operator %q", docket.ErrInvalidQuery, c.Op)
	}
	return bson.D{{Key: field, Value: expr}}, nil
}
