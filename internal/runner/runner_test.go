package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"collection-runner/internal/models"
	"collection-runner/internal/substitute"
	"collection-runner/internal/transport"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	calls   []transport.Call
	ctxs    []context.Context
	respond func(call transport.Call) (*transport.Response, error)
}

func (f *fakeTransport) Do(ctx context.Context, call transport.Call) (*transport.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.ctxs = append(f.ctxs, ctx)
	f.mu.Unlock()
	if f.respond == nil {
		return &transport.Response{Status: 200, StatusText: "OK", Data: map[string]any{}}, nil
	}
	return f.respond(call)
}

func (f *fakeTransport) Calls() []transport.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Call(nil), f.calls...)
}

type savedResponse struct {
	requestID string
	resp      models.LastResponse
}

type fakeStore struct {
	mu    sync.Mutex
	saved []savedResponse
	err   error
}

func (s *fakeStore) SaveLastResponse(_ context.Context, requestID string, resp models.LastResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, savedResponse{requestID: requestID, resp: resp})
	return s.err
}

func (s *fakeStore) Saved() []savedResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]savedResponse(nil), s.saved...)
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func fixedClock() time.Time {
	return time.UnixMilli(1700000000000)
}

func newTestController(tr transport.Transport, store ResultStore, opts ...Option) *Controller {
	opts = append([]Option{WithLogger(quietLogger()), WithClock(fixedClock)}, opts...)
	return NewController(tr, store, opts...)
}

func makeRequests(urls ...string) []models.Request {
	reqs := make([]models.Request, len(urls))
	for i, u := range urls {
		reqs[i] = models.Request{
			ID:      "req-" + string(rune('a'+i)),
			Name:    "request " + string(rune('a'+i)),
			Method:  "GET",
			URL:     u,
			Headers: map[string]string{},
			Params:  map[string]string{},
		}
	}
	return reqs
}

func statuses(snap Snapshot) []ItemStatus {
	out := make([]ItemStatus, len(snap.Items))
	for i, it := range snap.Items {
		out[i] = it.Status
	}
	return out
}

func TestRun_AllSucceed(t *testing.T) {
	tr := &fakeTransport{}
	store := &fakeStore{}
	c := newTestController(tr, store)

	snap, err := c.Run(context.Background(), Options{Requests: makeRequests("http://a", "http://b", "http://c")})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, []ItemStatus{StatusSuccess, StatusSuccess, StatusSuccess}, statuses(snap))
	assert.Equal(t, Summary{Total: 3, Success: 3, Error: 0, Percent: 100}, snap.Summary)
	assert.NotNil(t, snap.FinishedAt)
	assert.Len(t, store.Saved(), 3)

	calls := tr.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "http://a", calls[0].URL)
	assert.Equal(t, "http://c", calls[2].URL)
}

func TestRun_SubstitutesEnvironment(t *testing.T) {
	tr := &fakeTransport{}
	reqs := makeRequests("{{HOST}}/users")
	reqs[0].Headers = map[string]string{"Authorization": "Bearer {{TOKEN}}"}
	reqs[0].Body = json.RawMessage(`{"who":"{{USER}}"}`)
	reqs[0].Method = "POST"

	c := newTestController(tr, nil)
	_, err := c.Run(context.Background(), Options{
		Requests:    reqs,
		Environment: models.EnvProduction,
		Variables:   map[string]string{"HOST": "api.test", "TOKEN": "t", "USER": "ann"},
	})
	require.NoError(t, err)

	calls := tr.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "api.test/users", calls[0].URL)
	assert.Equal(t, "Bearer t", calls[0].Headers["Authorization"])
	assert.JSONEq(t, `{"who":"ann"}`, string(calls[0].Body))

	// stored request untouched
	assert.Equal(t, "{{HOST}}/users", reqs[0].URL)
}

func TestRun_ErrorWithoutStopOnErrorContinues(t *testing.T) {
	tr := &fakeTransport{respond: func(call transport.Call) (*transport.Response, error) {
		if call.URL == "http://first" {
			return &transport.Response{Status: 500, StatusText: "Internal Server Error", Data: "boom"}, nil
		}
		return &transport.Response{Status: 200, StatusText: "OK"}, nil
	}}
	c := newTestController(tr, &fakeStore{})

	snap, err := c.Run(context.Background(), Options{Requests: makeRequests("http://first", "http://second")})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, []ItemStatus{StatusError, StatusSuccess}, statuses(snap))
	assert.Equal(t, 500, snap.Items[0].StatusCode)
	assert.Equal(t, "HTTP 500: Internal Server Error", snap.Items[0].Error)
	assert.Equal(t, 1, snap.Summary.Success)
	assert.Equal(t, 1, snap.Summary.Error)
}

func TestRun_StopOnErrorLeavesRestPending(t *testing.T) {
	tr := &fakeTransport{respond: func(call transport.Call) (*transport.Response, error) {
		if call.URL == "http://b" {
			return nil, errors.New("dial tcp: connection refused")
		}
		return &transport.Response{Status: 200}, nil
	}}
	store := &fakeStore{}
	c := newTestController(tr, store)

	snap, err := c.Run(context.Background(), Options{
		Requests:    makeRequests("http://a", "http://b", "http://c", "http://d"),
		StopOnError: true,
	})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, []ItemStatus{StatusSuccess, StatusError, StatusPending, StatusPending}, statuses(snap))
	assert.Equal(t, "dial tcp: connection refused", snap.Items[1].Error)
	assert.Zero(t, snap.Items[1].StatusCode)
	assert.Len(t, tr.Calls(), 2)
	assert.Equal(t, 50.0, snap.Summary.Percent)

	saved := store.Saved()
	require.Len(t, saved, 2)
	assert.Equal(t, "req-b", saved[1].requestID)
	assert.Equal(t, "dial tcp: connection refused", saved[1].resp.Error)
	assert.Equal(t, int64(1700000000000), saved[1].resp.Timestamp)
}

func TestRun_PersistsHTTPErrorResponses(t *testing.T) {
	tr := &fakeTransport{respond: func(call transport.Call) (*transport.Response, error) {
		return &transport.Response{
			Status:     404,
			StatusText: "Not Found",
			Headers:    map[string]string{"Content-Type": "application/json"},
			Data:       map[string]any{"error": "missing"},
		}, nil
	}}
	store := &fakeStore{}
	c := newTestController(tr, store)

	_, err := c.Run(context.Background(), Options{Requests: makeRequests("http://a")})
	require.NoError(t, err)

	saved := store.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, 404, saved[0].resp.Status)
	assert.Equal(t, "Not Found", saved[0].resp.StatusText)
	assert.Empty(t, saved[0].resp.Error)
	assert.Equal(t, map[string]any{"error": "missing"}, saved[0].resp.Data)
}

func TestRun_StoreFailureDoesNotHaltRun(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	c := newTestController(&fakeTransport{}, store)

	snap, err := c.Run(context.Background(), Options{Requests: makeRequests("http://a", "http://b")})
	require.NoError(t, err)
	assert.Equal(t, []ItemStatus{StatusSuccess, StatusSuccess}, statuses(snap))
}

func TestRun_SchemaMismatchIsStillSuccess(t *testing.T) {
	tr := &fakeTransport{respond: func(call transport.Call) (*transport.Response, error) {
		return &transport.Response{Status: 200, Data: map[string]any{}}, nil
	}}
	reqs := makeRequests("http://a", "http://b")
	reqs[0].ExpectedSchema = `{"type":"object","required":["id"]}`

	c := newTestController(tr, nil)
	snap, err := c.Run(context.Background(), Options{Requests: reqs, StopOnError: true})
	require.NoError(t, err)

	assert.Equal(t, []ItemStatus{StatusSuccess, StatusSuccess}, statuses(snap))
	require.NotNil(t, snap.Items[0].SchemaValidation)
	assert.False(t, snap.Items[0].SchemaValidation.Valid)
	assert.Len(t, snap.Items[0].SchemaValidation.Errors, 1)
	assert.Nil(t, snap.Items[1].SchemaValidation)
}

func TestRun_NoSchemaValidationOnError(t *testing.T) {
	tr := &fakeTransport{respond: func(call transport.Call) (*transport.Response, error) {
		return &transport.Response{Status: 400, Data: map[string]any{}}, nil
	}}
	reqs := makeRequests("http://a")
	reqs[0].ExpectedSchema = `{"type":"object","required":["id"]}`

	snap, err := newTestController(tr, nil).Run(context.Background(), Options{Requests: reqs})
	require.NoError(t, err)
	assert.Equal(t, StatusError, snap.Items[0].Status)
	assert.Nil(t, snap.Items[0].SchemaValidation)
}

func TestRun_SubstitutionErrorIsItemError(t *testing.T) {
	tr := &fakeTransport{}
	reqs := makeRequests("http://a", "http://b")
	reqs[0].Headers = map[string]string{"X": "{{V}}"}

	c := newTestController(tr, nil, WithSubstitutionMode(substitute.Textual))
	snap, err := c.Run(context.Background(), Options{
		Requests:  reqs,
		Variables: map[string]string{"V": `a"b`},
	})
	require.NoError(t, err)

	assert.Equal(t, []ItemStatus{StatusError, StatusSuccess}, statuses(snap))
	assert.Contains(t, snap.Items[0].Error, "substituting variables in headers")
	assert.Len(t, tr.Calls(), 1)
}

func TestRun_CancelAfterItemCompletes(t *testing.T) {
	const k = 1
	var c *Controller
	c = newTestController(&fakeTransport{}, nil, WithObserver(func(s Snapshot) {
		if s.Items[k].Status == StatusSuccess {
			c.Cancel()
		}
	}))

	snap, err := c.Run(context.Background(), Options{Requests: makeRequests("http://a", "http://b", "http://c", "http://d")})
	require.NoError(t, err)

	assert.Equal(t, StateAborted, snap.State)
	assert.Equal(t, []ItemStatus{StatusSuccess, StatusSuccess, StatusSkipped, StatusSkipped}, statuses(snap))
	assert.Equal(t, 50.0, snap.Summary.Percent)
}

func TestRun_CancelDuringCallSkipsInFlightItem(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	tr := &fakeTransport{respond: func(call transport.Call) (*transport.Response, error) {
		if call.URL == "http://b" {
			close(started)
			<-release
		}
		return &transport.Response{Status: 200}, nil
	}}
	store := &fakeStore{}
	c := newTestController(tr, store)

	require.NoError(t, c.Start(context.Background(), Options{Requests: makeRequests("http://a", "http://b", "http://c")}))

	<-started
	c.Cancel()
	close(release)
	snap := c.Wait()

	assert.Equal(t, StateAborted, snap.State)
	assert.Equal(t, []ItemStatus{StatusSuccess, StatusSkipped, StatusSkipped}, statuses(snap))
	assert.Len(t, tr.Calls(), 2)
	assert.Len(t, store.Saved(), 1)

	// the in-flight call was not interrupted
	tr.mu.Lock()
	assert.NoError(t, tr.ctxs[1].Err())
	tr.mu.Unlock()
}

func TestRun_ParentContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := newTestController(&fakeTransport{}, nil).Run(ctx, Options{Requests: makeRequests("http://a", "http://b")})
	require.NoError(t, err)
	assert.Equal(t, StateAborted, snap.State)
	assert.Equal(t, []ItemStatus{StatusSkipped, StatusSkipped}, statuses(snap))
}

func TestStart_Rejections(t *testing.T) {
	release := make(chan struct{})
	tr := &fakeTransport{respond: func(call transport.Call) (*transport.Response, error) {
		<-release
		return &transport.Response{Status: 200}, nil
	}}
	c := newTestController(tr, nil)

	err := c.Start(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrEmptyCollection)
	assert.Equal(t, StateIdle, c.Status().State)

	err = c.Start(context.Background(), Options{Requests: makeRequests("http://a"), Environment: "staging"})
	assert.ErrorContains(t, err, "unknown environment")

	require.NoError(t, c.Start(context.Background(), Options{Requests: makeRequests("http://a")}))
	first := c.Status()

	err = c.Start(context.Background(), Options{Requests: makeRequests("http://x", "http://y")})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, first.ID, c.Status().ID)
	assert.Len(t, c.Status().Items, 1)

	close(release)
	snap := c.Wait()
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, models.EnvDev, snap.Environment)

	// a finished controller can run again
	require.NoError(t, c.Start(context.Background(), Options{Requests: makeRequests("http://z")}))
	second := c.Wait()
	assert.NotEqual(t, first.ID, second.ID)
}

func TestObserver_SeesOrderedTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen [][]ItemStatus
	c := newTestController(&fakeTransport{}, nil, WithObserver(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, statuses(s))
		mu.Unlock()
	}))

	_, err := c.Run(context.Background(), Options{Requests: makeRequests("http://a", "http://b")})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]ItemStatus{
		{StatusPending, StatusPending},
		{StatusRunning, StatusPending},
		{StatusSuccess, StatusPending},
		{StatusSuccess, StatusRunning},
		{StatusSuccess, StatusSuccess},
		{StatusSuccess, StatusSuccess},
	}, seen)
}

func TestClassify(t *testing.T) {
	status, err := Classify(&transport.Response{Status: 399}, nil)
	assert.Equal(t, StatusSuccess, status)
	assert.NoError(t, err)

	status, err = Classify(&transport.Response{Status: 400, StatusText: "Bad Request"}, nil)
	assert.Equal(t, StatusError, status)
	var httpErr *HTTPStatusError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 400, httpErr.Status)

	status, err = Classify(nil, errors.New("timeout"))
	assert.Equal(t, StatusError, status)
	var trErr *TransportError
	require.True(t, errors.As(err, &trErr))
	assert.Equal(t, "timeout", trErr.Message)
}

func TestRegistry(t *testing.T) {
	release := make(chan struct{})
	tr := &fakeTransport{respond: func(call transport.Call) (*transport.Response, error) {
		<-release
		return &transport.Response{Status: 200}, nil
	}}
	reg := NewRegistry(func() *Controller { return newTestController(tr, nil) }, 2)

	c1, err := reg.Start(context.Background(), "folder-1", Options{Requests: makeRequests("http://a")})
	require.NoError(t, err)

	_, err = reg.Start(context.Background(), "folder-1", Options{Requests: makeRequests("http://a")})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	_, err = reg.Start(context.Background(), "folder-2", Options{})
	assert.ErrorIs(t, err, ErrEmptyCollection)

	got, ok := reg.Get(c1.Status().ID)
	require.True(t, ok)
	assert.Same(t, c1, got)

	close(release)
	c1.Wait()

	c2, err := reg.Start(context.Background(), "folder-1", Options{Requests: makeRequests("http://a")})
	require.NoError(t, err)
	c2.Wait()
	c3, err := reg.Start(context.Background(), "folder-3", Options{Requests: makeRequests("http://a")})
	require.NoError(t, err)
	c3.Wait()

	_, ok = reg.Get(c1.Status().ID)
	assert.False(t, ok, "oldest finished run is pruned")
	_, ok = reg.Get(c3.Status().ID)
	assert.True(t, ok)
}

func TestRegistry_WaitBlocksUntilRunsFinish(t *testing.T) {
	release := make(chan struct{})
	tr := &fakeTransport{respond: func(call transport.Call) (*transport.Response, error) {
		<-release
		return &transport.Response{Status: 200}, nil
	}}
	reg := NewRegistry(func() *Controller { return newTestController(tr, nil) }, 0)

	ctx, cancel := context.WithCancel(context.Background())
	c, err := reg.Start(ctx, "folder-1", Options{Requests: makeRequests("http://a", "http://b")})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(tr.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	waited := make(chan struct{})
	go func() {
		reg.Wait()
		close(waited)
	}()

	cancel()
	select {
	case <-waited:
		t.Fatal("Wait returned while a call was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the run finished")
	}
	assert.Equal(t, StateAborted, c.Status().State)
}
