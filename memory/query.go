package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/zoobzio/docket"
	"github.com/zoobzio/docket/internal/document"
)

// Query is an immutable in-memory query. Build it through Provider.Query.
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
	expand     []string
}

// Where appends criteria to the query's conjunction.
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

// GroupBy clusters the ordered results by field, groups in order of first appearance.
func (q *Query) GroupBy(field string) docket.Query {
	c := q.copy()
	c.group = field
	return c
}

// Page restricts the results to a skip/take window.
func (q *Query) Page(skip, take int) docket.Query {
	c := q.copy()
	if skip < 0 {
		skip = 0
	}
	c.skip, c.take, c.paged = skip, take, true
	return c
}

// Expand records the include paths. Documents are stored whole, so related
// data is always embedded.
func (q *Query) Expand(paths []string) docket.Query {
	c := q.copy()
	c.expand = append([]string(nil), paths...)
	return c
}

// Partition returns the partition the query is scoped to, or "" for all partitions.
func (q *Query) Partition() string { return q.partition }

// String renders the query for diagnostics.
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString("SCAN")
	if q.partition != "" {
		fmt.Fprintf(&b, " PARTITION %q", q.partition)
	}
	for i, cond := range q.criteria {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s %s %v", cond.Field, cond.Op, cond.Value)
	}
	if q.order != "" {
		dir := "ASC"
		if q.descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", q.order, dir)
	}
	if q.group != "" {
		fmt.Fprintf(&b, " GROUP BY %s", q.group)
	}
	if q.paged {
		fmt.Fprintf(&b, " SKIP %d TAKE %d", q.skip, q.take)
	}
	if len(q.expand) > 0 {
		fmt.Fprintf(&b, " EXPAND %s", strings.Join(q.expand, ","))
	}
	return b.String()
}

func (q *Query) copy() *Query {
	c := *q
	return &c
}

// execute runs the query against the provider's current contents.
func (q *Query) execute() ([][]byte, error) {
	if err := q.criteria.Validate(); err != nil {
		return nil, err
	}
	if q.paged && q.take <= 0 {
		return nil, nil
	}
	records, err := q.provider.scan(q)
	if err != nil {
		return nil, err
	}
	if q.order != "" {
		sortByField(records, q.order, q.descending)
	}
	if q.group != "" {
		records = groupByField(records, q.group)
	}
	if q.paged {
		n := int(docket.PageWindow(int64(len(records)), q.skip, q.take))
		if n == 0 {
			return nil, nil
		}
		records = records[q.skip : q.skip+n]
	}
	out := make([][]byte, len(records))
	for i, rec := range records {
		out[i] = clone(rec.body)
	}
	return out, nil
}

func sortBySeq(records []*record) {
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
}

func sortByField(records []*record, field string, descending bool) {
	sort.SliceStable(records, func(i, j int) bool {
		a, aok := document.Lookup(records[i].doc, field)
		b, bok := document.Lookup(records[j].doc, field)
		cmp := document.Compare(a, aok, b, bok)
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

// groupByField reorders records so equal keys are contiguous, keeping the
// relative order within each group and ordering groups by first appearance.
func groupByField(records []*record, field string) []*record {
	var keys []string
	groups := make(map[string][]*record)
	for _, rec := range records {
		k := groupKey(document.Lookup(rec.doc, field))
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], rec)
	}
	out := make([]*record, 0, len(records))
	for _, k := range keys {
		out = append(out, groups[k]...)
	}
	return out
}

func groupKey(v any, defined bool) string {
	if !defined {
		return "u"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("v%v", v)
	}
	return "v" + string(data)
}

type pager struct {
	query   *Query
	size    int
	results [][]byte
	offset  int
	fetched bool
}

func (p *pager) More() bool {
	return !p.fetched || p.offset < len(p.results)
}

func (p *pager) NextPage(ctx context.Context) (docket.Page, error) {
	if err := ctx.Err(); err != nil {
		return docket.Page{}, err
	}
	if !p.fetched {
		results, err := p.query.execute()
		if err != nil {
			return docket.Page{}, err
		}
		p.results, p.fetched = results, true
	}
	end := p.offset + p.size
	if end > len(p.results) {
		end = len(p.results)
	}
	items := p.results[p.offset:end]
	p.offset = end
	return docket.Page{Status: http.StatusOK, Items: items}, nil
}
