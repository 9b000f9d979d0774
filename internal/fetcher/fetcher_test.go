package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/chromecrawl/internal/cdp"
)

// fakeWaiter yields a canned event or reports a timeout.
type fakeWaiter struct {
	fire     bool
	canceled bool
}

func (w *fakeWaiter) Wait(context.Context, time.Duration) (json.RawMessage, bool) {
	if w.fire {
		return json.RawMessage(`{"timestamp":1}`), true
	}
	return nil, false
}

func (w *fakeWaiter) Cancel() { w.canceled = true }

// fakeTransport scripts responses per method and records the order of
// operations.
type fakeTransport struct {
	responses map[string]json.RawMessage
	errs      map[string]error
	waiter    *fakeWaiter
	ops       []string
}

func (t *fakeTransport) Call(_ context.Context, method string, _ any) (json.RawMessage, error) {
	t.ops = append(t.ops, method)
	if err := t.errs[method]; err != nil {
		return nil, err
	}
	if res, ok := t.responses[method]; ok {
		return res, nil
	}
	return json.RawMessage(`{}`), nil
}

func (t *fakeTransport) WaitEvent(method string) EventWaiter {
	t.ops = append(t.ops, "wait:"+method)
	return t.waiter
}

func newFetcher(t *fakeTransport) *Fetcher {
	f := New(t, Config{
		LoadTimeout:     10 * time.Millisecond,
		SettleDelay:     time.Millisecond,
		MinContentBytes: 10,
	}, nil)
	return f
}

func page(body string) json.RawMessage {
	doc := "<html><body>" + body + strings.Repeat(" filler", 10) + "</body></html>"
	encoded, _ := json.Marshal(map[string]any{"result": map[string]any{"value": doc}})
	return encoded
}

func TestFetchHappyPath(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		responses: map[string]json.RawMessage{"Runtime.evaluate": page("hello")},
		errs:      map[string]error{},
		waiter:    &fakeWaiter{fire: true},
	}
	html, err := newFetcher(tr).Fetch(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Contains(t, html, "hello")
	assert.Equal(t, []string{
		"Page.enable",
		"wait:Page.loadEventFired",
		"Page.navigate",
		"Runtime.evaluate",
	}, tr.ops, "load waiter must be registered before navigating")
}

func TestFetchProceedsWithoutLoadEvent(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		responses: map[string]json.RawMessage{"Runtime.evaluate": page("late render")},
		errs:      map[string]error{},
		waiter:    &fakeWaiter{fire: false},
	}
	html, err := newFetcher(tr).Fetch(context.Background(), "https://example.com")
	require.NoError(t, err, "a missing load event is not a failure")
	assert.Contains(t, html, "late render")
}

func TestFetchNavigationRejected(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		responses: map[string]json.RawMessage{
			"Page.navigate": json.RawMessage(`{"errorText":"net::ERR_NAME_NOT_RESOLVED"}`),
		},
		errs:   map[string]error{},
		waiter: &fakeWaiter{},
	}
	_, err := newFetcher(tr).Fetch(context.Background(), "https://bad.invalid")
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.True(t, tr.waiter.canceled, "abandoned waiter must be deregistered")
}

func TestFetchNavigationCallError(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		errs:   map[string]error{"Page.navigate": &cdp.RemoteError{Code: -32000, Message: "boom"}},
		waiter: &fakeWaiter{},
	}
	_, err := newFetcher(tr).Fetch(context.Background(), "https://example.com")
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	var remoteErr *cdp.RemoteError
	require.ErrorAs(t, err, &remoteErr)
}

func TestFetchEvaluationError(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		errs:   map[string]error{"Runtime.evaluate": cdp.ErrCallTimeout},
		waiter: &fakeWaiter{fire: true},
	}
	_, err := newFetcher(tr).Fetch(context.Background(), "https://example.com")
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	require.ErrorIs(t, err, cdp.ErrCallTimeout)
}

func TestFetchEvaluationException(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		responses: map[string]json.RawMessage{
			"Runtime.evaluate": json.RawMessage(`{"result":{},"exceptionDetails":{"text":"Uncaught"}}`),
		},
		errs:   map[string]error{},
		waiter: &fakeWaiter{fire: true},
	}
	_, err := newFetcher(tr).Fetch(context.Background(), "https://example.com")
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
}

func TestFetchContentTooShort(t *testing.T) {
	t.Parallel()

	short, _ := json.Marshal(map[string]any{"result": map[string]any{"value": "<html/>"}})
	tr := &fakeTransport{
		responses: map[string]json.RawMessage{"Runtime.evaluate": json.RawMessage(short)},
		errs:      map[string]error{},
		waiter:    &fakeWaiter{fire: true},
	}
	_, err := newFetcher(tr).Fetch(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrContentTooShort)
}

func TestFetchCanceledDuringSettle(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{
		errs:   map[string]error{},
		waiter: &fakeWaiter{fire: true},
	}
	f := New(tr, Config{
		LoadTimeout:     time.Millisecond,
		SettleDelay:     time.Hour,
		MinContentBytes: 10,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, "https://example.com")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, tr.ops, "Runtime.evaluate", "evaluation must not run after cancellation")
}

func TestErrorTypesCompose(t *testing.T) {
	t.Parallel()

	navErr := &NavigationError{URL: "https://x", Err: errors.New("refused")}
	assert.Contains(t, navErr.Error(), "https://x")
	evalErr := &EvaluationError{URL: "https://x", Err: errors.New("bad")}
	assert.Contains(t, evalErr.Error(), "https://x")
}
