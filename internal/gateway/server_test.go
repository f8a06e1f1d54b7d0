package gateway_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/internal/config"
	"github.com/agentcore/agentcore/internal/events"
	"github.com/agentcore/agentcore/internal/gateway"
	"github.com/agentcore/agentcore/internal/registry"
	"github.com/agentcore/agentcore/internal/writer"
)

func testServer(t *testing.T) (*httptest.Server, *events.Store) {
	t.Helper()
	store, err := events.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	w := writer.New(store, []time.Duration{time.Millisecond}, 16, nil)
	reg := registry.New(store, w, nil, 15*time.Second, nil)

	cfg := config.Config{PollIntervalMS: 10, WatcherMaxWaitS: 5}
	srv := gateway.New(gateway.Deps{Store: store, Writer: w, Registry: reg}, cfg, nil)

	return httptest.NewServer(srv.Handler()), store
}

func TestCreateMessage_ReturnsMessageIDAndStreamURL(t *testing.T) {
	ts, _ := testServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chats/c1/messages", "application/json", strings.NewReader(`{"content":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		MessageID string `json:"message_id"`
		StreamURL string `json:"stream_url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.MessageID)
	require.Contains(t, body.StreamURL, body.MessageID)
}

func TestStream_EmitsSSEFramesForEchoAgent(t *testing.T) {
	ts, _ := testServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chats/c1/messages", "application/json", strings.NewReader(`{"content":"hello"}`))
	require.NoError(t, err)
	var created struct {
		MessageID string `json:"message_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	streamResp, err := http.Get(ts.URL + "/api/chats/c1/messages/" + created.MessageID + "/stream")
	require.NoError(t, err)
	defer streamResp.Body.Close()
	require.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	var sawEnd bool
	scanner := bufio.NewScanner(streamResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: end") || strings.HasPrefix(line, "event: error") {
			sawEnd = true
			break
		}
	}
	require.True(t, sawEnd, "expected a terminal SSE frame")
}

func TestReplay_ReturnsFullLogAfterCompletion(t *testing.T) {
	ts, store := testServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/chats/c1/messages", "application/json", strings.NewReader(`{"content":"hello"}`))
	require.NoError(t, err)
	var created struct {
		MessageID string `json:"message_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	require.Eventually(t, func() bool {
		ok, _ := store.HasTerminal(t.Context(), created.MessageID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	replayResp, err := http.Get(ts.URL + "/api/messages/" + created.MessageID + "/events")
	require.NoError(t, err)
	defer replayResp.Body.Close()

	var body struct {
		Events []events.Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(replayResp.Body).Decode(&body))
	require.NotEmpty(t, body.Events)
	require.True(t, body.Events[len(body.Events)-1].Type.IsTerminal())
}

func TestActiveAgents_ListsRunningAndCompletedTasks(t *testing.T) {
	ts, _ := testServer(t)
	defer ts.Close()

	_, err := http.Post(ts.URL+"/api/chats/c1/messages", "application/json", strings.NewReader(`{"content":"hi"}`))
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/agents/active")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Count  int `json:"count"`
		Agents []struct {
			MessageID string `json:"message_id"`
		} `json:"agents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
}

func TestSetCORS_HotSwapsPolicyWithoutRebuildingHandler(t *testing.T) {
	store, err := events.Open("")
	require.NoError(t, err)
	defer store.Close()

	w := writer.New(store, []time.Duration{time.Millisecond}, 16, nil)
	reg := registry.New(store, w, nil, 15*time.Second, nil)

	cfg := config.Config{PollIntervalMS: 10, WatcherMaxWaitS: 5}
	srv := gateway.New(gateway.Deps{Store: store, Writer: w, Registry: reg}, cfg, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), "CORS is disabled until SetCORS is called")

	srv.SetCORS(config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://example.com"}})

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthz_ReportsOK(t *testing.T) {
	ts, _ := testServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
