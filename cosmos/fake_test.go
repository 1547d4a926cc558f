package cosmos

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/zoobzio/docket/internal/document"
)

func rawResponse(status int, charge float64) *http.Response {
	h := http.Header{}
	h.Set(headerRequestCharge, strconv.FormatFloat(charge, 'f', -1, 64))
	return &http.Response{StatusCode: status, Header: h}
}

func responseError(status int, charge float64) error {
	return &azcore.ResponseError{
		StatusCode:  status,
		ErrorCode:   http.StatusText(status),
		RawResponse: rawResponse(status, charge),
	}
}

func idOf(item []byte) (string, error) {
	doc, err := document.Decode(item)
	if err != nil {
		return "", err
	}
	return document.ID(doc), nil
}

// recordedQuery captures a query issued to fakeContainer.
type recordedQuery struct {
	sql    string
	params []azcosmos.QueryParameter
	pk     string
	opts   *azcosmos.QueryOptions
}

// fakeContainer implements Container in memory.
type fakeContainer struct {
	mu      sync.Mutex
	items   map[string][]byte
	pages   [][][]byte
	pageErr error
	err     error
	queries []recordedQuery
	lastCtx context.Context
	stall   bool
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{items: make(map[string][]byte)}
}

// wait blocks until ctx ends when the container is stalled.
func (f *fakeContainer) wait(ctx context.Context) error {
	f.mu.Lock()
	stall := f.stall
	f.mu.Unlock()
	if !stall {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func itemKey(pk azcosmos.PartitionKey, id string) string {
	return fmt.Sprintf("%v|%s", pk, id)
}

func itemResp(status int, charge float32, body []byte) azcosmos.ItemResponse {
	return azcosmos.ItemResponse{
		Response: azcosmos.Response{RawResponse: &http.Response{StatusCode: status}, RequestCharge: charge},
		Value:    body,
	}
}

func (f *fakeContainer) CreateItem(ctx context.Context, pk azcosmos.PartitionKey, item []byte, _ *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	if err := f.wait(ctx); err != nil {
		return azcosmos.ItemResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx
	if f.err != nil {
		return azcosmos.ItemResponse{}, f.err
	}
	id, err := idOf(item)
	if err != nil {
		return azcosmos.ItemResponse{}, responseError(http.StatusBadRequest, 1)
	}
	key := itemKey(pk, id)
	if _, ok := f.items[key]; ok {
		return azcosmos.ItemResponse{}, responseError(http.StatusConflict, 1.24)
	}
	f.items[key] = item
	return itemResp(http.StatusCreated, 5.71, item), nil
}

func (f *fakeContainer) UpsertItem(ctx context.Context, pk azcosmos.PartitionKey, item []byte, _ *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	if err := f.wait(ctx); err != nil {
		return azcosmos.ItemResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx
	if f.err != nil {
		return azcosmos.ItemResponse{}, f.err
	}
	id, err := idOf(item)
	if err != nil {
		return azcosmos.ItemResponse{}, responseError(http.StatusBadRequest, 1)
	}
	status := http.StatusCreated
	if _, ok := f.items[itemKey(pk, id)]; ok {
		status = http.StatusOK
	}
	f.items[itemKey(pk, id)] = item
	return itemResp(status, 10.3, item), nil
}

func (f *fakeContainer) ReadItem(ctx context.Context, pk azcosmos.PartitionKey, id string, _ *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	if err := f.wait(ctx); err != nil {
		return azcosmos.ItemResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx
	if f.err != nil {
		return azcosmos.ItemResponse{}, f.err
	}
	item, ok := f.items[itemKey(pk, id)]
	if !ok {
		return azcosmos.ItemResponse{}, responseError(http.StatusNotFound, 1)
	}
	return itemResp(http.StatusOK, 1, item), nil
}

func (f *fakeContainer) DeleteItem(ctx context.Context, pk azcosmos.PartitionKey, id string, _ *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	if err := f.wait(ctx); err != nil {
		return azcosmos.ItemResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx
	if f.err != nil {
		return azcosmos.ItemResponse{}, f.err
	}
	key := itemKey(pk, id)
	if _, ok := f.items[key]; !ok {
		return azcosmos.ItemResponse{}, responseError(http.StatusNotFound, 1)
	}
	delete(f.items, key)
	return itemResp(http.StatusNoContent, 5.5, nil), nil
}

func (f *fakeContainer) NewQueryItemsPager(query string, pk azcosmos.PartitionKey, o *azcosmos.QueryOptions) *runtime.Pager[azcosmos.QueryItemsResponse] {
	f.mu.Lock()
	rq := recordedQuery{sql: query, pk: fmt.Sprintf("%v", pk), opts: o}
	if o != nil {
		rq.params = o.QueryParameters
	}
	f.queries = append(f.queries, rq)
	pages := f.pages
	pageErr := f.pageErr
	stall := f.stall
	f.mu.Unlock()

	next := 0
	return runtime.NewPager(runtime.PagingHandler[azcosmos.QueryItemsResponse]{
		More: func(azcosmos.QueryItemsResponse) bool {
			return next < len(pages)
		},
		Fetcher: func(ctx context.Context, _ *azcosmos.QueryItemsResponse) (azcosmos.QueryItemsResponse, error) {
			if stall {
				<-ctx.Done()
			}
			if err := ctx.Err(); err != nil {
				return azcosmos.QueryItemsResponse{}, err
			}
			if pageErr != nil && next == len(pages)-1 {
				return azcosmos.QueryItemsResponse{}, pageErr
			}
			if len(pages) == 0 {
				return azcosmos.QueryItemsResponse{
					Response: azcosmos.Response{RawResponse: &http.Response{StatusCode: http.StatusOK}},
				}, nil
			}
			items := pages[next]
			next++
			return azcosmos.QueryItemsResponse{
				Response: azcosmos.Response{RawResponse: &http.Response{StatusCode: http.StatusOK}, RequestCharge: 2.5},
				Items:    items,
			}, nil
		},
	})
}

func (f *fakeContainer) lastQuery() recordedQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return recordedQuery{}
	}
	return f.queries[len(f.queries)-1]
}

// fakeAccount implements Account and counts provisioning calls.
type fakeAccount struct {
	mu               sync.Mutex
	databases        map[string]bool
	containers       map[string]bool
	container        *fakeContainer
	dbErr            error
	containerErr     error
	dbCalls          int32
	containerCalls   int32
	closed           int32
	lastDBOpts       *azcosmos.CreateDatabaseOptions
	lastContainer    azcosmos.ContainerProperties
	lastContainerOpt *azcosmos.CreateContainerOptions
}

func newFakeAccount() *fakeAccount {
	return &fakeAccount{
		databases:  make(map[string]bool),
		containers: make(map[string]bool),
		container:  newFakeContainer(),
	}
}

func (a *fakeAccount) CreateDatabase(_ context.Context, props azcosmos.DatabaseProperties, o *azcosmos.CreateDatabaseOptions) (azcosmos.DatabaseResponse, error) {
	atomic.AddInt32(&a.dbCalls, 1)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastDBOpts = o
	if a.dbErr != nil {
		return azcosmos.DatabaseResponse{}, a.dbErr
	}
	if a.databases[props.ID] {
		return azcosmos.DatabaseResponse{}, responseError(http.StatusConflict, 1)
	}
	a.databases[props.ID] = true
	return azcosmos.DatabaseResponse{Response: azcosmos.Response{RawResponse: &http.Response{StatusCode: http.StatusCreated}}}, nil
}

func (a *fakeAccount) CreateContainer(_ context.Context, databaseID string, props azcosmos.ContainerProperties, o *azcosmos.CreateContainerOptions) (azcosmos.ContainerResponse, error) {
	atomic.AddInt32(&a.containerCalls, 1)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastContainer = props
	a.lastContainerOpt = o
	if a.containerErr != nil {
		return azcosmos.ContainerResponse{}, a.containerErr
	}
	key := databaseID + "/" + props.ID
	if a.containers[key] {
		return azcosmos.ContainerResponse{}, responseError(http.StatusConflict, 1)
	}
	a.containers[key] = true
	return azcosmos.ContainerResponse{Response: azcosmos.Response{RawResponse: &http.Response{StatusCode: http.StatusCreated}}}, nil
}

func (a *fakeAccount) Container(_, _ string) (Container, error) {
	return a.container, nil
}

func (a *fakeAccount) Close() error {
	atomic.AddInt32(&a.closed, 1)
	return nil
}
