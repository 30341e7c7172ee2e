package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiimwatch/internal/models"
)

const processBody = `{
	"name": "Boiler 3", "comment": "Steam line", "zone": "North",
	"tags": [
		{"alias": "Temp", "name": "B3_TT01", "comment": "outlet", "unit": "C", "status": 4.5,
		 "records": [{"value": 82.1, "time_opc": "2020-01-01 10:20:30"}]},
		{"alias": "Flow", "name": "B3_FT01", "comment": "feed", "unit": "m3/h", "status": 1,
		 "records": [{"value": 3, "time_opc": "2020-01-01 10:20:31"}]}
	]
}`

const tagBody = `{"alias": "Temp", "name": "B3_TT01", "comment": "outlet", "unit": "C", "status": 3,
	"records": [{"value": 80, "time_opc": "2020-01-01 10:20:30"}]}`

type recorder struct {
	mu   sync.Mutex
	reqs []*http.Request
}

func (r *recorder) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
}

func (r *recorder) all() []*http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*http.Request(nil), r.reqs...)
}

func newAPI(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()
	seen := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.add(r)
		switch r.URL.EscapedPath() {
		case "/api/processes/42":
			_, _ = w.Write([]byte(processBody))
		case "/api/tags/B3%20TT01":
			_, _ = w.Write([]byte(tagBody))
		case "/api/processes/broken":
			_, _ = w.Write([]byte(`{"name": `))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestFetchProcess(t *testing.T) {
	srv, seen := newAPI(t)
	c := NewClient(time.Second)
	c.now = func() time.Time { return time.Date(2020, 1, 1, 10, 20, 32, 0, time.UTC) }

	snap, err := c.Fetch(context.Background(), Endpoint{BaseURL: srv.URL + "/api/", APIKey: "secret"}, models.Target{Kind: models.KindProcess, ID: "42"})
	require.NoError(t, err)

	assert.Equal(t, "Boiler 3", snap.Title)
	assert.Equal(t, "Steam line", snap.Summary)
	assert.Equal(t, "North", snap.Zone)
	assert.Len(t, snap.Tags, 2)
	assert.Equal(t, c.now(), snap.FetchedAt)

	reqs := seen.all()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
}

func TestFetchTagWrapsSingleCard(t *testing.T) {
	srv, seen := newAPI(t)
	c := NewClient(time.Second)

	snap, err := c.Fetch(context.Background(), Endpoint{BaseURL: srv.URL + "/api"}, models.Target{Kind: models.KindTag, ID: "B3 TT01"})
	require.NoError(t, err)

	assert.Equal(t, "Temp", snap.Title)
	assert.Equal(t, "outlet", snap.Summary)
	assert.Equal(t, "B3_TT01", snap.Zone)
	require.Len(t, snap.Tags, 1)
	assert.Equal(t, models.Value("80"), snap.Tags[0].Records[0].Value)
	assert.Empty(t, seen.all()[0].Header.Get("Authorization"))
}

func TestFetchErrors(t *testing.T) {
	srv, _ := newAPI(t)
	c := NewClient(time.Second)

	tests := []struct {
		name   string
		base   string
		target models.Target
		msg    string
	}{
		{name: "not found", base: srv.URL + "/api/", target: models.Target{Kind: models.KindProcess, ID: "404"}, msg: "http 404"},
		{name: "bad json", base: srv.URL + "/api/", target: models.Target{Kind: models.KindProcess, ID: "broken"}, msg: "decode processes"},
		{name: "empty base", base: "", target: models.Target{Kind: models.KindProcess, ID: "42"}, msg: "not configured"},
		{name: "relative base", base: "wiim.local/api", target: models.Target{Kind: models.KindTag, ID: "1"}, msg: "not an absolute url"},
		{name: "unknown kind", base: srv.URL, target: models.Target{Kind: "pump", ID: "1"}, msg: "unsupported target kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Fetch(context.Background(), Endpoint{BaseURL: tt.base}, tt.target)
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr), "want *api.Error, got %T", err)
			assert.Contains(t, apiErr.Message, tt.msg)
		})
	}
}

func TestFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewClient(time.Second).Fetch(context.Background(), Endpoint{BaseURL: base}, models.Target{Kind: models.KindProcess, ID: "1"})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.NotEmpty(t, apiErr.Message)
}

func TestFetchHonoursCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(5*time.Second).Fetch(ctx, Endpoint{BaseURL: srv.URL}, models.Target{Kind: models.KindTag, ID: "1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
