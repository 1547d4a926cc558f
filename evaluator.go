package docket

// Evaluate applies spec to base and returns the resulting query.
// Steps run in a fixed order: criteria, ordering, grouping, paging.
// Partition scope is not applied here; base must already be narrowed.
func Evaluate[T any](base Query, spec Specification[T]) Query {
	q := base
	if len(spec.criteria) > 0 {
		q = q.Where(spec.Criteria())
	}
	if o, ok := spec.Ordering(); ok {
		q = q.OrderBy(o.Field, o.Descending)
	}
	if spec.groupBy != "" {
		q = q.GroupBy(spec.groupBy)
	}
	if spec.paged {
		q = q.Page(spec.skip, spec.take)
	}
	if len(spec.includes) > 0 {
		if e, ok := q.(Expander); ok {
			q = e.Expand(spec.Includes())
		}
	}
	return q
}

// PageWindow returns how many of total documents fall inside a skip/take window.
func PageWindow(total int64, skip, take int) int64 {
	if take <= 0 {
		return 0
	}
	if skip < 0 {
		skip = 0
	}
	remaining := total - int64(skip)
	if remaining <= 0 {
		return 0
	}
	if remaining > int64(take) {
		return int64(take)
	}
	return remaining
}
