package docket

import "context"

// BeforeSave is called before persisting T. Return an error to abort the operation.
type BeforeSave interface {
	BeforeSave(ctx context.Context) error
}

// AfterSave is called on the stored result after T has been persisted.
// Return an error to signal a post-save invariant failure.
type AfterSave interface {
	AfterSave(ctx context.Context) error
}

// AfterLoad is called after T has been loaded and decoded.
// Return an error to signal a post-load invariant failure.
type AfterLoad interface {
	AfterLoad(ctx context.Context) error
}

// BeforeDelete is called before deleting T. Return an error to abort the operation.
type BeforeDelete interface {
	BeforeDelete(ctx context.Context) error
}

// AfterDelete is called after T has been deleted (or was already absent).
type AfterDelete interface {
	AfterDelete(ctx context.Context) error
}

func callBeforeSave[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(BeforeSave); ok {
		return h.BeforeSave(ctx)
	}
	return nil
}

func callAfterSave[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(AfterSave); ok {
		return h.AfterSave(ctx)
	}
	return nil
}

func callAfterLoad[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(AfterLoad); ok {
		return h.AfterLoad(ctx)
	}
	return nil
}

func callBeforeDelete[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(BeforeDelete); ok {
		return h.BeforeDelete(ctx)
	}
	return nil
}

func callAfterDelete[T any](ctx context.Context, value *T) error {
	if h, ok := any(value).(AfterDelete); ok {
		return h.AfterDelete(ctx)
	}
	return nil
}
