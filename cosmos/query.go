package cosmos

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/internal/document"
)

// Query is an immutable Cosmos SQL query. Build it through Provider.Query.
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

// Where appends criteria to the query's conjunction.
func (q *Query) Where(criteria docket.Criteria) docket.Query {
	c := *q
	c.criteria = append(append(docket.Criteria(nil), q.criteria...), criteria...)
	return &c
}

// OrderBy sorts by field, replacing any previous ordering.
func (q *Query) OrderBy(field string, descending bool) docket.Query {
	c := *q
	c.order, c.descending = field, descending
	return &c
}

// GroupBy clusters results by field. Cosmos SQL has no ordered grouping of
// whole documents, so the field is rendered as the leading sort key.
func (q *Query) GroupBy(field string) docket.Query {
	c := *q
	c.group = field
	return &c
}

// Page renders OFFSET/LIMIT.
func (q *Query) Page(skip, take int) docket.Query {
	c := *q
	if skip < 0 {
		skip = 0
	}
	c.skip, c.take, c.paged = skip, take, true
	return &c
}

// Partition returns the partition the query is scoped to, or "" for a cross-partition query.
func (q *Query) Partition() string { return q.partition }

// Empty reports whether the paging window can select nothing.
func (q *Query) Empty() bool { return q.paged && q.take <= 0 }

// String returns the SQL text.
func (q *Query) String() string {
	sql, _, err := q.SQL()
	if err != nil {
		return "invalid query: " + err.Error()
	}
	return sql
}

// SQL renders the select statement and its parameters.
func (q *Query) SQL() (string, []azcosmos.QueryParameter, error) {
	w := &sqlWriter{}
	w.b.WriteString("SELECT * FROM c")
	if err := w.where(q.criteria); err != nil {
		return "", nil, err
	}

	var keys []string
	if q.group != "" {
		keys = append(keys, fieldRef(q.group)+" ASC")
	}
	if q.order != "" {
		dir := " ASC"
		if q.descending {
			dir = " DESC"
		}
		keys = append(keys, fieldRef(q.order)+dir)
	}
	if len(keys) > 0 {
		w.b.WriteString(" ORDER BY ")
		w.b.WriteString(strings.Join(keys, ", "))
	}

	if q.paged {
		fmt.Fprintf(&w.b, " OFFSET %d LIMIT %d", q.skip, q.take)
	}
	return w.b.String(), w.params, nil
}

// CountSQL renders a count over the query's criteria. Ordering and paging
// do not apply; the caller windows the total.
func (q *Query) CountSQL() (string, []azcosmos.QueryParameter, error) {
	w := &sqlWriter{}
	w.b.WriteString("SELECT VALUE COUNT(1) FROM c")
	if err := w.where(q.criteria); err != nil {
		return "", nil, err
	}
	return w.b.String(), w.params, nil
}

type sqlWriter struct {
	b      strings.Builder
	params []azcosmos.QueryParameter
}

func (w *sqlWriter) param(v any) string {
	name := "@p" + strconv.Itoa(len(w.params))
	w.params = append(w.params, azcosmos.QueryParameter{Name: name, Value: v})
	return name
}

func (w *sqlWriter) where(criteria docket.Criteria) error {
	if err := criteria.Validate(); err != nil {
		return err
	}
	for i, cond := range criteria {
		if i == 0 {
			w.b.WriteString(" WHERE ")
		} else {
			w.b.WriteString(" AND ")
		}
		w.b.WriteString(w.condition(cond))
	}
	return nil
}

func (w *sqlWriter) condition(c docket.Condition) string {
	ref := fieldRef(c.Field)
	switch c.Op {
	case docket.OpNotNull:
		return "(IS_DEFINED(" + ref + ") AND NOT IS_NULL(" + ref + "))"
	case docket.OpIsNull:
		return "(NOT IS_DEFINED(" + ref + ") OR IS_NULL(" + ref + "))"
	case docket.OpIn:
		values := c.Values()
		if len(values) == 0 {
			return "false"
		}
		names := make([]string, len(values))
		for i, v := range values {
			names[i] = w.param(v)
		}
		return ref + " IN (" + strings.Join(names, ", ") + ")"
	case docket.OpContains:
		return "CONTAINS(" + ref + ", " + w.param(c.Value) + ")"
	case docket.OpStartsWith:
		return "STARTSWITH(" + ref + ", " + w.param(c.Value) + ")"
	default:
		return ref + " " + string(c.Op) + " " + w.param(c.Value)
	}
}

// fieldRef renders a document path in bracket notation, e.g. c["address"]["city"].
func fieldRef(path string) string {
	var b strings.Builder
	b.WriteString("c")
	for _, seg := range document.Segments(path) {
		b.WriteString("[")
		b.WriteString(strconv.Quote(seg))
		b.WriteString("]")
	}
	return b.String()
}
