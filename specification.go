package docket

// Ordering is the single sort key of a specification.
type Ordering struct {
	Field      string
	Descending bool
}

// Specification describes what to fetch: criteria, ordering, grouping,
// partition scope, paging window and eager-load paths.
// Specifications are immutable; builder methods return modified copies.
type Specification[T any] struct {
	criteria     Criteria
	order        *Ordering
	groupBy      string
	partitionKey string
	skip         int
	take         int
	paged        bool
	includes     []string
}

// NewSpecification creates a specification for T matching every condition.
// With no conditions it matches all documents with a non-null id.
func NewSpecification[T any](conditions ...Condition) Specification[T] {
	if len(conditions) == 0 {
		return Specification[T]{criteria: Criteria{NotNull("id")}}
	}
	return Specification[T]{criteria: append(Criteria(nil), conditions...)}
}

// Where adds conditions to the specification's criteria.
func (s Specification[T]) Where(conditions ...Condition) Specification[T] {
	out := s.clone()
	out.criteria = append(out.criteria, conditions...)
	return out
}

// OrderBy sorts ascending by field, replacing any previous ordering.
func (s Specification[T]) OrderBy(field string) Specification[T] {
	out := s.clone()
	out.order = &Ordering{Field: field}
	return out
}

// OrderByDescending sorts descending by field, replacing any previous ordering.
func (s Specification[T]) OrderByDescending(field string) Specification[T] {
	out := s.clone()
	out.order = &Ordering{Field: field, Descending: true}
	return out
}

// GroupBy clusters results by field after ordering.
func (s Specification[T]) GroupBy(field string) Specification[T] {
	out := s.clone()
	out.groupBy = field
	return out
}

// InPartition scopes the specification to one partition.
// An empty key scans across partitions.
func (s Specification[T]) InPartition(partitionKey string) Specification[T] {
	out := s.clone()
	out.partitionKey = partitionKey
	return out
}

// Page enables paging with the given window.
func (s Specification[T]) Page(skip, take int) Specification[T] {
	out := s.clone()
	out.skip = skip
	out.take = take
	out.paged = true
	return out
}

// Unpaged disables paging.
func (s Specification[T]) Unpaged() Specification[T] {
	out := s.clone()
	out.skip, out.take, out.paged = 0, 0, false
	return out
}

// Include requests eager expansion of the graph's paths.
func (s Specification[T]) Include(graph Includes[T]) Specification[T] {
	out := s.clone()
	out.includes = graph.Paths()
	return out
}

// Criteria returns a copy of the specification's conditions.
func (s Specification[T]) Criteria() Criteria {
	return append(Criteria(nil), s.criteria...)
}

// Ordering returns the sort key, if any.
func (s Specification[T]) Ordering() (Ordering, bool) {
	if s.order == nil {
		return Ordering{}, false
	}
	return *s.order, true
}

// OrderByField returns the ascending sort field, or "".
func (s Specification[T]) OrderByField() string {
	if s.order == nil || s.order.Descending {
		return ""
	}
	return s.order.Field
}

// OrderByDescendingField returns the descending sort field, or "".
func (s Specification[T]) OrderByDescendingField() string {
	if s.order == nil || !s.order.Descending {
		return ""
	}
	return s.order.Field
}

// GroupByField returns the grouping field, or "".
func (s Specification[T]) GroupByField() string { return s.groupBy }

// PartitionKeyValue returns the partition scope; "" means cross-partition.
func (s Specification[T]) PartitionKeyValue() string { return s.partitionKey }

// Skip returns the number of documents skipped when paging.
func (s Specification[T]) Skip() int { return s.skip }

// Take returns the page size when paging.
func (s Specification[T]) Take() int { return s.take }

// IsPagingEnabled reports whether Skip and Take apply.
func (s Specification[T]) IsPagingEnabled() bool { return s.paged }

// Includes returns the eager-load paths.
func (s Specification[T]) Includes() []string {
	return append([]string(nil), s.includes...)
}

func (s Specification[T]) clone() Specification[T] {
	out := s
	out.criteria = append(Criteria(nil), s.criteria...)
	out.includes = append([]string(nil), s.includes...)
	if s.order != nil {
		o := *s.order
		out.order = &o
	}
	return out
}
