package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusioncam/internal/auth"
	"fusioncam/internal/detection"
	"fusioncam/internal/eventlog"
	"fusioncam/internal/mode"
	"fusioncam/internal/pipeline"
)

type fakeStats struct{}

func (fakeStats) Stats() pipeline.Stats {
	return pipeline.Stats{SessionID: "s1", FramesProcessed: 42, CurrentMode: mode.All}
}

type fakeHealth map[string]bool

func (h fakeHealth) Health() map[string]bool { return h }

func testLog(t *testing.T) *eventlog.Log {
	t.Helper()
	l := eventlog.New("")
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		dets := []detection.Detection{detection.NewProfileFace(detection.BBox{Width: 10, Height: 10})}
		if i == 3 {
			dets = append(dets, detection.NewColorObject(detection.BBox{Width: 40, Height: 40}, "red", 1600))
		}
		_, err := l.Append(eventlog.NewEntry(base.Add(time.Duration(i)*time.Second), uint64(i), mode.All, dets))
		require.NoError(t, err)
	}
	return l
}

func newTestServer(t *testing.T, a *auth.Authenticator) (*httptest.Server, *pipeline.CommandQueue) {
	t.Helper()
	q := pipeline.NewCommandQueue(4)
	api := NewAPI(fakeStats{}, testLog(t), q, fakeHealth{"face": true, "people": false}, 0)
	snap := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("jpeg")) })

	srv := NewServer(api, Options{
		Snapshot: snap,
		Auth:     a,
		Logger:   log.New(io.Discard, "", 0),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, q
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestStatusAndHealth(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var status StatusResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/status", &status))
	assert.Equal(t, uint64(42), status.FramesProcessed)
	assert.Equal(t, map[string]bool{"face": true, "people": false}, status.Detectors)

	var health map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	assert.Equal(t, "ok", health["status"])
}

func TestSummaryAndRecent(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var summary SummaryResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/summary", &summary))
	assert.Equal(t, 3, summary.TotalEntries)
	assert.Equal(t, 20, summary.Window)
	assert.Equal(t, []eventlog.KindCount{
		{Kind: detection.KindColorObject, Count: 1},
		{Kind: detection.KindProfileFace, Count: 3},
	}, summary.Counts)

	var recent []eventlog.Entry
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/recent?n=2", &recent))
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(2), recent[0].FrameIndex)
	assert.Equal(t, uint64(3), recent[1].FrameIndex)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/recent?n=abc", nil))
}

func TestPostCommand(t *testing.T) {
	ts, q := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/commands", "application/json", strings.NewReader(`{"command":"mode people"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	cmd, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, mode.Command{Kind: mode.CommandSwitchMode, Mode: mode.People}, cmd)

	resp, err = http.Post(ts.URL+"/api/commands", "application/json", strings.NewReader(`{"command":"jump"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/commands", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoutesRequireToken(t *testing.T) {
	a := auth.NewAuthenticator(true, auth.NewJWTManager("secret", time.Hour))
	ts, _ := newTestServer(t, a)

	assert.Equal(t, http.StatusUnauthorized, getJSON(t, ts.URL+"/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, getJSON(t, ts.URL+"/snapshot", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", nil))

	token, _, err := a.IssueToken("viewer")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/snapshot?token=" + token)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "jpeg", string(body))
}
