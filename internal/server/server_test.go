package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wiimwatch/internal/metrics"
	"wiimwatch/internal/models"
	"wiimwatch/internal/settings"
	"wiimwatch/internal/view"
)

type fakeController struct {
	mu      sync.Mutex
	current settings.Settings
	halted  bool
	exits   int
	resumes int
}

func (f *fakeController) Settings() settings.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeController) UpdateSettings(next settings.Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	f.current = next
	f.mu.Unlock()
	f.Resume()
	return nil
}

func (f *fakeController) RequestExit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.halted {
		return false
	}
	f.halted = false
	f.exits++
	return true
}

func (f *fakeController) Resume() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.halted {
		return false
	}
	f.halted = false
	f.resumes++
	return true
}

func (f *fakeController) counts() (exits, resumes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exits, f.resumes
}

var target = models.Target{Kind: models.KindProcess, ID: "42"}

func newTestServer(t *testing.T) (*httptest.Server, *view.Screen, *fakeController) {
	t.Helper()
	screen := view.NewScreen("sess", target)
	ctrl := &fakeController{current: settings.Settings{ServerAddress: "http://wiim/api", UpdateInterval: 50, APIKey: "secret"}}
	srv := New(":0", screen, ctrl, metrics.New().Handler(), nil)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		srv.hub.Close()
		ts.Close()
	})
	return ts, screen, ctrl
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	}
	return resp, payload
}

func TestIndexAndStatic(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, _ := do(t, http.MethodGet, ts.URL+"/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))

	resp, _ = do(t, http.MethodGet, ts.URL+"/static/app.js", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payload := do(t, http.MethodGet, ts.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", payload["status"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestScreenEndpoint(t *testing.T) {
	ts, screen, _ := newTestServer(t)
	screen.Present(models.Snapshot{
		Target: target,
		Title:  "Boiler",
		Tags:   []models.Tag{{Alias: "Temp", Status: 4, Records: []models.Record{{Value: "80", TimeOPC: "2020-01-01 10:20:30"}}}},
	})

	resp, err := http.Get(ts.URL + "/api/screen")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st view.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "Boiler", st.Header.Title)
	require.Len(t, st.Rows, 1)
	assert.Equal(t, view.FaceHappy, st.Rows[0].Face)
	assert.Equal(t, "10:20:30", st.Rows[0].Time)
}

func TestSettingsEndpoints(t *testing.T) {
	ts, _, ctrl := newTestServer(t)

	resp, payload := do(t, http.MethodGet, ts.URL+"/api/settings", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://wiim/api", payload["server_address"])
	assert.Equal(t, float64(5000), payload["interval_ms"])
	assert.Equal(t, true, payload["has_api_key"])
	assert.NotContains(t, payload, "api_key")

	resp, payload = do(t, http.MethodPut, ts.URL+"/api/settings", `{"server_address": "http://other/api", "update_interval": 10}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1000), payload["interval_ms"])
	got := ctrl.Settings()
	assert.Equal(t, "http://other/api", got.ServerAddress)
	assert.Equal(t, "secret", got.APIKey, "blank api key keeps the stored one")

	resp, payload = do(t, http.MethodPut, ts.URL+"/api/settings", `{"server_address": "ftp://nope"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, payload["message"], "http or https")

	resp, _ = do(t, http.MethodPut, ts.URL+"/api/settings", `{"colour": "blue"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutSettingsResumesHaltedSession(t *testing.T) {
	ts, _, ctrl := newTestServer(t)
	ctrl.halted = true

	resp, _ := do(t, http.MethodPut, ts.URL+"/api/settings", `{"update_interval": 20}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, resumes := ctrl.counts()
	assert.Equal(t, 1, resumes)
}

func TestRecover(t *testing.T) {
	ts, _, ctrl := newTestServer(t)

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/recover", `{"action": "exit"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "nothing to recover from while polling")

	ctrl.mu.Lock()
	ctrl.halted = true
	ctrl.mu.Unlock()

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/recover", `{"action": "exit"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	exits, _ := ctrl.counts()
	assert.Equal(t, 1, exits)

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/recover", `{"action": "dance"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/recover", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestScreenWebsocketPushesRedraws(t *testing.T) {
	ts, screen, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/screen/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first view.State
	require.NoError(t, conn.ReadJSON(&first))
	assert.True(t, first.Loading)

	// The subscription is registered before the first frame is written.
	screen.Present(models.Snapshot{Target: target, Title: "Boiler"})

	var next view.State
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "Boiler", next.Header.Title)
	assert.False(t, next.Loading)
}

func TestHubKeepsLatestFrame(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()

	h.Redraw(view.State{Header: view.Header{Title: "one"}})
	h.Redraw(view.State{Header: view.Header{Title: "two"}})

	got := <-ch
	assert.Equal(t, "two", got.Header.Title)

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)

	h.Close()
	late, _ := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
