package docket

// Option configures a Repository.
type Option[T any] func(*Repository[T])

// WithCodec sets a custom codec for the repository.
// If not specified, JSONCodec is used.
func WithCodec[T any](c Codec) Option[T] {
	return func(r *Repository[T]) {
		r.codec = c
	}
}

// WithPartitionKey registers an explicit partition-key accessor for T.
// The accessor replaces the lookup of the provider's partition key path in the
// encoded document. A panicking accessor yields an empty partition key.
func WithPartitionKey[T any](fn func(*T) string) Option[T] {
	return func(r *Repository[T]) {
		r.partitionKey = fn
	}
}

// WithIDGenerator sets the function used to assign ids on Create.
// If not specified, random UUIDs are used.
func WithIDGenerator[T any](fn func() string) Option[T] {
	return func(r *Repository[T]) {
		r.newID = fn
	}
}
