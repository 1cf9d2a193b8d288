package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	retry "github.com/appleboy/go-httpretry"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a go-httpretry client that never retries, so the
// request counts observed by test servers are exactly what the session
// code sent.
func newTestClient(t *testing.T) *retry.Client {
	t.Helper()
	client, err := retry.NewClient(retry.WithMaxRetries(0))
	require.NoError(t, err)
	return client
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// recordingObserver counts lifecycle events.
type recordingObserver struct {
	rejected atomic.Int32
	started  atomic.Int32
	ok       atomic.Int32
	failed   atomic.Int32
	retrying atomic.Int32
	expired  atomic.Int32

	mu   sync.Mutex
	errs []error
}

func (o *recordingObserver) AccessTokenRejected() { o.rejected.Add(1) }
func (o *recordingObserver) Refreshing()          { o.started.Add(1) }
func (o *recordingObserver) RefreshOK()           { o.ok.Add(1) }
func (o *recordingObserver) Retrying()            { o.retrying.Add(1) }
func (o *recordingObserver) SessionExpired()      { o.expired.Add(1) }

func (o *recordingObserver) RefreshFailed(err error) {
	o.failed.Add(1)
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

// countingDoer counts the requests it forwards to next.
type countingDoer struct {
	next  Doer
	calls atomic.Int32
}

func (d *countingDoer) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	return d.next.DoWithContext(ctx, req)
}
