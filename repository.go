package docket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docket/internal/document"
	"github.com/zoobzio/docket/internal/shared"
	"github.com/zoobzio/sentinel"
)

// Repository provides typed, partition-aware CRUD and querying for T over a Provider.
// *T must implement Entity. Repositories are safe for concurrent use.
type Repository[T any] struct {
	provider     Provider
	codec        Codec
	partitionKey func(*T) string
	newID        func() string
	key          capitan.GenericKey[T]
	typeName     string
}

// NewRepository creates a Repository for T using the given provider.
// Uses JSONCodec and UUID identifiers by default.
func NewRepository[T any](provider Provider, opts ...Option[T]) (*Repository[T], error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrConfiguration)
	}
	if _, ok := any(new(T)).(Entity); !ok {
		var zero T
		return nil, fmt.Errorf("%w: *%T does not implement Entity", ErrInvalidEntity, zero)
	}

	meta := sentinel.Inspect[T]()
	typeName := meta.PackageName + "." + meta.TypeName

	r := &Repository[T]{
		provider: provider,
		codec:    JSONCodec{},
		newID:    uuid.NewString,
		key:      capitan.NewKey[T]("record", capitan.Variant(typeName)),
		typeName: typeName,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.codec == nil {
		r.codec = JSONCodec{}
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r, nil
}

// Key returns the capitan key for extracting T from events.
func (r *Repository[T]) Key() capitan.GenericKey[T] {
	return r.key
}

// Provider returns the underlying provider.
func (r *Repository[T]) Provider() Provider {
	return r.provider
}

// Create inserts entity, assigning a new id when it has none.
// Returns the stored document, which may include store-generated metadata.
// Returns ErrConflict if the id already exists in the partition.
func (r *Repository[T]) Create(ctx context.Context, entity *T) (*T, error) {
	return r.write(ctx, entity, OperationCreate)
}

// Update creates or replaces entity.
func (r *Repository[T]) Update(ctx context.Context, entity *T) (*T, error) {
	return r.write(ctx, entity, OperationUpdate)
}

func (r *Repository[T]) write(ctx context.Context, entity *T, op string) (*T, error) {
	completed, failed := CreateCompleted, CreateFailed
	if op == OperationUpdate {
		completed, failed = UpdateCompleted, UpdateFailed
	}
	start := time.Now()

	if entity == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrInvalidEntity)
	}
	ent := any(entity).(Entity)
	if op == OperationCreate && ent.GetID() == "" {
		ent.SetID(r.newID())
	}
	if err := callBeforeSave(ctx, entity); err != nil {
		return nil, err
	}

	data, err := r.codec.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	pk := r.partitionKeyOf(entity, data)

	var resp Response
	if op == OperationCreate {
		resp, err = r.provider.Create(ctx, pk, data)
	} else {
		resp, err = r.provider.Upsert(ctx, pk, data)
	}
	if err != nil {
		err = normalize(err)
		r.emitFailed(ctx, failed, op, pk, ent.GetID(), start, err)
		return nil, err
	}

	body := resp.Body
	if len(body) == 0 {
		body = data
	}
	result, err := r.decode(ctx, body)
	if err != nil {
		r.emitFailed(ctx, failed, op, pk, ent.GetID(), start, err)
		return nil, err
	}
	if err := callAfterSave(ctx, result); err != nil {
		return nil, err
	}

	capitan.Emit(ctx, completed,
		FieldOperation.Field(op),
		FieldType.Field(r.typeName),
		FieldStatus.Field(resp.Status),
		FieldPartitionKey.Field(pk),
		FieldRequestCharge.Field(resp.RequestCharge),
		FieldID.Field(ent.GetID()),
		FieldDuration.Field(time.Since(start)),
		r.key.Field(*result),
	)
	return result, nil
}

// Get fetches a document by key.
// Returns (nil, nil) when the document does not exist.
func (r *Repository[T]) Get(ctx context.Context, key EntityKey) (*T, error) {
	start := time.Now()

	resp, err := r.provider.Read(ctx, key.ID, key.PartitionKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			status, charge := storeStatus(err)
			capitan.Emit(ctx, GetCompleted,
				FieldOperation.Field(OperationGet),
				FieldType.Field(r.typeName),
				FieldStatus.Field(status),
				FieldPartitionKey.Field(key.PartitionKey),
				FieldRequestCharge.Field(charge),
				FieldID.Field(key.ID),
				FieldFound.Field(false),
				FieldDuration.Field(time.Since(start)),
			)
			return nil, nil
		}
		err = normalize(err)
		r.emitFailed(ctx, GetFailed, OperationGet, key.PartitionKey, key.ID, start, err)
		return nil, err
	}

	result, err := r.decode(ctx, resp.Body)
	if err != nil {
		r.emitFailed(ctx, GetFailed, OperationGet, key.PartitionKey, key.ID, start, err)
		return nil, err
	}

	capitan.Emit(ctx, GetCompleted,
		FieldOperation.Field(OperationGet),
		FieldType.Field(r.typeName),
		FieldStatus.Field(resp.Status),
		FieldPartitionKey.Field(key.PartitionKey),
		FieldRequestCharge.Field(resp.RequestCharge),
		FieldID.Field(key.ID),
		FieldFound.Field(true),
		FieldDuration.Field(time.Since(start)),
		r.key.Field(*result),
	)
	return result, nil
}

// Delete removes entity. Deleting a document that does not exist succeeds.
func (r *Repository[T]) Delete(ctx context.Context, entity *T) error {
	start := time.Now()

	if entity == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidEntity)
	}
	if err := callBeforeDelete(ctx, entity); err != nil {
		return err
	}
	key := r.KeyOf(entity)

	resp, err := r.provider.Delete(ctx, key.ID, key.PartitionKey)
	found := true
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			err = normalize(err)
			r.emitFailed(ctx, DeleteFailed, OperationDelete, key.PartitionKey, key.ID, start, err)
			return err
		}
		found = false
		resp.Status, resp.RequestCharge = storeStatus(err)
	}

	capitan.Emit(ctx, DeleteCompleted,
		FieldOperation.Field(OperationDelete),
		FieldType.Field(r.typeName),
		FieldStatus.Field(resp.Status),
		FieldPartitionKey.Field(key.PartitionKey),
		FieldRequestCharge.Field(resp.RequestCharge),
		FieldID.Field(key.ID),
		FieldFound.Field(found),
		FieldDuration.Field(time.Since(start)),
	)
	return callAfterDelete(ctx, entity)
}

// List returns every document the specification selects, in query order.
// All remote pages are drained before returning; on any error, including
// cancellation, partial results are discarded.
func (r *Repository[T]) List(ctx context.Context, spec Specification[T]) ([]*T, error) {
	start := time.Now()
	pk := spec.PartitionKeyValue()

	pager, err := r.pager(spec)
	if err != nil {
		r.emitFailed(ctx, ListFailed, OperationList, pk, "", start, err)
		return nil, err
	}

	var (
		items  []*T
		charge float64
		pages  int
	)
	for pager.More() {
		if err := ctx.Err(); err != nil {
			err = normalize(err)
			r.emitFailed(ctx, ListFailed, OperationList, pk, "", start, err)
			return nil, err
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			err = normalize(err)
			r.emitFailed(ctx, ListFailed, OperationList, pk, "", start, err)
			return nil, err
		}
		pages++
		charge += page.RequestCharge
		capitan.Emit(ctx, ListPage,
			FieldOperation.Field(OperationList),
			FieldType.Field(r.typeName),
			FieldStatus.Field(page.Status),
			FieldPartitionKey.Field(pk),
			FieldRequestCharge.Field(page.RequestCharge),
			FieldPage.Field(pages),
			FieldCount.Field(int64(len(page.Items))),
		)
		for _, raw := range page.Items {
			item, err := r.decode(ctx, raw)
			if err != nil {
				r.emitFailed(ctx, ListFailed, OperationList, pk, "", start, err)
				return nil, err
			}
			items = append(items, item)
		}
	}

	capitan.Emit(ctx, ListCompleted,
		FieldOperation.Field(OperationList),
		FieldType.Field(r.typeName),
		FieldPartitionKey.Field(pk),
		FieldRequestCharge.Field(charge),
		FieldPage.Field(pages),
		FieldCount.Field(int64(len(items))),
		FieldDuration.Field(time.Since(start)),
	)
	return items, nil
}

// Count returns the number of documents the specification selects.
func (r *Repository[T]) Count(ctx context.Context, spec Specification[T]) (int64, error) {
	start := time.Now()
	pk := spec.PartitionKeyValue()

	if err := spec.criteria.Validate(); err != nil {
		r.emitFailed(ctx, CountFailed, OperationCount, pk, "", start, err)
		return 0, err
	}
	q := Evaluate(r.provider.Query(pk), spec)

	result, err := r.provider.Count(ctx, q)
	if err != nil {
		err = normalize(err)
		r.emitFailed(ctx, CountFailed, OperationCount, pk, "", start, err)
		return 0, err
	}

	capitan.Emit(ctx, CountCompleted,
		FieldOperation.Field(OperationCount),
		FieldType.Field(r.typeName),
		FieldStatus.Field(result.Status),
		FieldPartitionKey.Field(pk),
		FieldRequestCharge.Field(result.RequestCharge),
		FieldCount.Field(result.Count),
		FieldDuration.Field(time.Since(start)),
	)
	return result.Count, nil
}

// KeyOf derives the EntityKey of entity.
func (r *Repository[T]) KeyOf(entity *T) EntityKey {
	id := any(entity).(Entity).GetID()
	if r.partitionKey != nil {
		return EntityKey{ID: id, PartitionKey: safePartitionKey(r.partitionKey, entity)}
	}
	data, err := r.codec.Marshal(entity)
	if err != nil {
		return EntityKey{ID: id}
	}
	return EntityKey{ID: id, PartitionKey: r.partitionKeyOf(entity, data)}
}

func (r *Repository[T]) pager(spec Specification[T]) (Pager, error) {
	if err := spec.criteria.Validate(); err != nil {
		return nil, err
	}
	q := Evaluate(r.provider.Query(spec.PartitionKeyValue()), spec)
	return r.provider.Pages(q)
}

// partitionKeyOf returns the partition key for entity. Derivation never fails:
// a missing, non-string or panicking source yields "".
func (r *Repository[T]) partitionKeyOf(entity *T, data []byte) string {
	if r.partitionKey != nil {
		return safePartitionKey(r.partitionKey, entity)
	}
	path := r.provider.PartitionKeyPath()
	if path == "" {
		return ""
	}
	doc, err := document.Decode(data)
	if err != nil {
		return ""
	}
	return document.StringAt(doc, path)
}

func safePartitionKey[T any](fn func(*T) string, entity *T) (pk string) {
	defer func() {
		if recover() != nil {
			pk = ""
		}
	}()
	return fn(entity)
}

func (r *Repository[T]) decode(ctx context.Context, data []byte) (*T, error) {
	var result T
	if err := r.codec.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := callAfterLoad(ctx, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *Repository[T]) emitFailed(ctx context.Context, sig capitan.Signal, op, pk, id string, start time.Time, err error) {
	status, charge := storeStatus(err)
	capitan.Emit(ctx, sig,
		FieldOperation.Field(op),
		FieldType.Field(r.typeName),
		FieldStatus.Field(status),
		FieldPartitionKey.Field(pk),
		FieldRequestCharge.Field(charge),
		FieldID.Field(id),
		FieldError.Field(err),
		FieldDuration.Field(time.Since(start)),
	)
}

// storeStatus extracts the native status and charge carried by a StoreError.
func storeStatus(err error) (int, float64) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Status, se.RequestCharge
	}
	return 0, 0
}

// normalize maps context errors onto ErrCancelled; other errors pass through unchanged.
func normalize(err error) error {
	if c := shared.Cancelled(err); c != nil {
		return c
	}
	return err
}
