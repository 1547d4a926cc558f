// Package testing provides test utilities for docket.
package testing

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docket"
)

// Provider operation names accepted by FaultProvider.
const (
	OpCreate = "create"
	OpUpsert = "upsert"
	OpRead   = "read"
	OpDelete = "delete"
	OpPages  = "pages"
	OpCount  = "count"
)

// FaultProvider wraps a docket.Provider, counting calls and failing
// operations on demand.
type FaultProvider struct {
	inner docket.Provider
	mu    sync.Mutex
	errs  map[string]error
	calls map[string]int
}

// NewFaultProvider wraps inner.
func NewFaultProvider(inner docket.Provider) *FaultProvider {
	return &FaultProvider{
		inner: inner,
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// Fail makes every later call to op return err. A nil err clears the fault.
func (f *FaultProvider) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Calls returns how many times op was called.
func (f *FaultProvider) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Reset clears faults and call counts.
func (f *FaultProvider) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = make(map[string]error)
	f.calls = make(map[string]int)
}

func (f *FaultProvider) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.errs[op]
}

// PartitionKeyPath returns the wrapped provider's path.
func (f *FaultProvider) PartitionKeyPath() string {
	return f.inner.PartitionKeyPath()
}

// Create delegates unless a fault is set.
func (f *FaultProvider) Create(ctx context.Context, partitionKey string, doc []byte) (docket.Response, error) {
	if err := f.enter(OpCreate); err != nil {
		return docket.Response{}, err
	}
	return f.inner.Create(ctx, partitionKey, doc)
}

// Upsert delegates unless a fault is set.
func (f *FaultProvider) Upsert(ctx context.Context, partitionKey string, doc []byte) (docket.Response, error) {
	if err := f.enter(OpUpsert); err != nil {
		return docket.Response{}, err
	}
	return f.inner.Upsert(ctx, partitionKey, doc)
}

// Read delegates unless a fault is set.
func (f *FaultProvider) Read(ctx context.Context, id, partitionKey string) (docket.Response, error) {
	if err := f.enter(OpRead); err != nil {
		return docket.Response{}, err
	}
	return f.inner.Read(ctx, id, partitionKey)
}

// Delete delegates unless a fault is set.
func (f *FaultProvider) Delete(ctx context.Context, id, partitionKey string) (docket.Response, error) {
	if err := f.enter(OpDelete); err != nil {
		return docket.Response{}, err
	}
	return f.inner.Delete(ctx, id, partitionKey)
}

// Query delegates to the wrapped provider.
func (f *FaultProvider) Query(partitionKey string) docket.Query {
	return f.inner.Query(partitionKey)
}

// Pages delegates unless a fault is set. The fault is also returned by
// the pager's first NextPage call when set after Pages.
func (f *FaultProvider) Pages(q docket.Query) (docket.Pager, error) {
	if err := f.enter(OpPages); err != nil {
		return nil, err
	}
	inner, err := f.inner.Pages(q)
	if err != nil {
		return nil, err
	}
	return &faultPager{inner: inner, owner: f}, nil
}

// Count delegates unless a fault is set.
func (f *FaultProvider) Count(ctx context.Context, q docket.Query) (docket.CountResult, error) {
	if err := f.enter(OpCount); err != nil {
		return docket.CountResult{}, err
	}
	return f.inner.Count(ctx, q)
}

type faultPager struct {
	inner docket.Pager
	owner *FaultProvider
}

func (p *faultPager) More() bool { return p.inner.More() }

func (p *faultPager) NextPage(ctx context.Context) (docket.Page, error) {
	p.owner.mu.Lock()
	err := p.owner.errs[OpPages]
	p.owner.mu.Unlock()
	if err != nil {
		return docket.Page{}, err
	}
	return p.inner.NextPage(ctx)
}

var _ docket.Provider = (*FaultProvider)(nil)

// CapturedEvent represents an event captured during testing.
type CapturedEvent struct {
	Signal    capitan.Signal
	Fields    []capitan.Field
	Timestamp time.Time
}

// EventCapture captures docket events for verification in tests.
type EventCapture struct {
	events []CapturedEvent
	mu     sync.Mutex
}

// NewEventCapture creates a new event capture utility.
func NewEventCapture() *EventCapture {
	return &EventCapture{
		events: make([]CapturedEvent, 0),
	}
}

// Handler returns a capitan.EventCallback that captures events.
func (c *EventCapture) Handler() capitan.EventCallback {
	return func(_ context.Context, e *capitan.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.events = append(c.events, CapturedEvent{
			Signal:    e.Signal(),
			Fields:    e.Fields(),
			Timestamp: time.Now(),
		})
	}
}

// Events returns a copy of all captured events.
func (c *EventCapture) Events() []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]CapturedEvent, len(c.events))
	copy(result, c.events)
	return result
}

// Count returns the number of captured events.
func (c *EventCapture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.events)
}

// Reset clears all captured events.
func (c *EventCapture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = make([]CapturedEvent, 0)
}

// WaitForCount blocks until n events are captured or timeout elapses.
func (c *EventCapture) WaitForCount(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Count() >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return c.Count() >= n
}

// EventsBySignal returns events filtered by signal.
func (c *EventCapture) EventsBySignal(sig capitan.Signal) []CapturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]CapturedEvent, 0)
	for _, e := range c.events {
		if e.Signal == sig {
			result = append(result, e)
		}
	}
	return result
}

// TotalRequestCharge sums the request charge carried by the captured events.
func (c *EventCapture) TotalRequestCharge() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total float64
	for _, e := range c.events {
		total += docket.FieldRequestCharge.ExtractFromFields(e.Fields)
	}
	return total
}

// EventCounter counts events without storing them.
type EventCounter struct {
	count int64
	mu    sync.Mutex
}

// NewEventCounter creates a new event counter.
func NewEventCounter() *EventCounter {
	return &EventCounter{}
}

// Handler returns a capitan.EventCallback that increments the counter.
func (c *EventCounter) Handler() capitan.EventCallback {
	return func(_ context.Context, _ *capitan.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.count++
	}
}

// Count returns the current count.
func (c *EventCounter) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Reset resets the counter to zero.
func (c *EventCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
}

// WaitForCount blocks until the specified count is reached or timeout.
func (c *EventCounter) WaitForCount(n int64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Count() >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return c.Count() >= n
}

// FieldExtractor provides typed field extraction from captured events.
type FieldExtractor struct{}

// NewFieldExtractor creates a new field extractor.
func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{}
}

// GetString extracts a string field.
func (f *FieldExtractor) GetString(fields []capitan.Field, key capitan.StringKey) string {
	return key.ExtractFromFields(fields)
}

// GetInt extracts an int field.
func (f *FieldExtractor) GetInt(fields []capitan.Field, key capitan.IntKey) int {
	return key.ExtractFromFields(fields)
}

// GetInt64 extracts an int64 field.
func (f *FieldExtractor) GetInt64(fields []capitan.Field, key capitan.Int64Key) int64 {
	return key.ExtractFromFields(fields)
}

// GetBool extracts a bool field.
func (f *FieldExtractor) GetBool(fields []capitan.Field, key capitan.BoolKey) bool {
	return key.ExtractFromFields(fields)
}

// GetDuration extracts a duration field.
func (f *FieldExtractor) GetDuration(fields []capitan.Field, key capitan.DurationKey) time.Duration {
	return key.ExtractFromFields(fields)
}

// GetFloat64 extracts a float64 field such as docket.FieldRequestCharge.
func (f *FieldExtractor) GetFloat64(fields []capitan.Field, key capitan.GenericKey[float64]) float64 {
	return key.ExtractFromFields(fields)
}

// GetError extracts an error field.
func (f *FieldExtractor) GetError(fields []capitan.Field, key capitan.ErrorKey) error {
	return key.ExtractFromFields(fields)
}
