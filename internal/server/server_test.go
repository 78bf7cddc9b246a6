package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/watzon/topiccache/internal/config"
	"github.com/watzon/topiccache/internal/discovery"
	"github.com/watzon/topiccache/internal/realtime"
	"github.com/watzon/topiccache/internal/server/handlers"
)

func setupTestServer(t *testing.T) (*Server, *discovery.Listener, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Port = 0

	listener := discovery.NewListener(cfg.Discovery.NamespacePrefixes, zerolog.Nop())
	srv := New(cfg, listener, WithVersion("test"), WithLogger(zerolog.Nop()))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		if srv.Broker() != nil {
			srv.Broker().Stop()
		}
		ts.Close()
	})

	return srv, listener, ts
}

func seed(t *testing.T, l *discovery.Listener) {
	t.Helper()
	for _, ep := range []discovery.Endpoint{
		{Participant: "p1", Kind: discovery.KindPublisher, Topic: "rt/chatter", Type: "std_msgs::msg::dds_::String_"},
		{Participant: "p2", Kind: discovery.KindPublisher, Topic: "/chatter", Type: "std_msgs/String"},
		{Participant: "p2", Kind: discovery.KindPublisher, Topic: "rt/robot/odom", Type: "nav_msgs::msg::dds_::Odometry_"},
		{Participant: "p3", Kind: discovery.KindSubscriber, Topic: "rt/chatter", Type: "std_msgs::msg::dds_::String_"},
	} {
		_, err := l.OnEndpointDiscovered(ep)
		require.NoError(t, err)
	}
}

func get(t *testing.T, target string) *http.Response {
	t.Helper()
	resp, err := http.Get(target)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_Health(t *testing.T) {
	_, listener, ts := setupTestServer(t)
	seed(t, listener)

	resp := get(t, ts.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := decode[handlers.HealthResponse](t, resp)
	assert.Equal(t, handlers.HealthStatusHealthy, body.Status)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, 3, body.Index.Publishers.Registrations)
	assert.Equal(t, 1, body.Index.Subscribers.Participants)
	assert.Equal(t, "no active connections", body.Components["realtime"].Message)
}

func TestServer_Count(t *testing.T) {
	_, listener, ts := setupTestServer(t)
	seed(t, listener)

	resp := get(t, ts.URL+"/api/count/publisher?topic=/chatter")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[handlers.CountResponse](t, resp)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, discovery.KindPublisher, body.Kind)
	assert.Equal(t, []string{"/chatter", "rt/chatter", "rq/chatter", "rr/chatter"}, body.Candidates)

	body = decode[handlers.CountResponse](t, get(t, ts.URL+"/api/count/subscribers?topic=/chatter"))
	assert.Equal(t, 1, body.Count)
}

func TestServer_CountErrors(t *testing.T) {
	_, _, ts := setupTestServer(t)

	resp := get(t, ts.URL+"/api/count/service?topic=/chatter")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_KIND", decode[handlers.ErrorResponse](t, resp).Code)

	resp = get(t, ts.URL+"/api/count/publisher")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Topics(t *testing.T) {
	_, listener, ts := setupTestServer(t)
	seed(t, listener)

	body := decode[handlers.TopicsResponse](t, get(t, ts.URL+"/api/topics/publisher"))
	assert.Len(t, body.Topics, 3)

	body = decode[handlers.TopicsResponse](t, get(t, ts.URL+"/api/topics/publisher?match=rt/*"))
	assert.Equal(t, []string{"std_msgs::msg::dds_::String_"}, []string(body.Topics["rt/chatter"]))
	assert.Len(t, body.Topics, 1)

	body = decode[handlers.TopicsResponse](t, get(t, ts.URL+"/api/topics/publisher?match=rt/**"))
	assert.Len(t, body.Topics, 2)

	resp := get(t, ts.URL+"/api/topics/publisher?match=[")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_TopicsWhere(t *testing.T) {
	_, listener, ts := setupTestServer(t)
	seed(t, listener)

	q := url.Values{"where": {"topic.contains('robot') || 'std_msgs/String' in types"}}
	body := decode[handlers.TopicsResponse](t, get(t, ts.URL+"/api/topics/publisher?"+q.Encode()))
	assert.Len(t, body.Topics, 2)
	assert.Contains(t, body.Topics, "/chatter")
	assert.Contains(t, body.Topics, "rt/robot/odom")

	q = url.Values{"match": {"rt/**"}, "where": {"count == 1 && topic.endsWith('chatter')"}}
	body = decode[handlers.TopicsResponse](t, get(t, ts.URL+"/api/topics/publisher?"+q.Encode()))
	assert.Len(t, body.Topics, 1)
	assert.Contains(t, body.Topics, "rt/chatter")

	q = url.Values{"where": {"count +"}}
	resp := get(t, ts.URL+"/api/topics/publisher?"+q.Encode())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := decode[handlers.ErrorResponse](t, resp)
	assert.Equal(t, "INVALID_FILTER", errBody.Code)
	assert.Equal(t, map[string]any{"where": "count +"}, errBody.Details)
}

func TestServer_Participant(t *testing.T) {
	_, listener, ts := setupTestServer(t)
	seed(t, listener)

	resp := get(t, ts.URL+"/api/participants/publisher/p2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[handlers.ParticipantResponse](t, resp)
	assert.Equal(t, discovery.ParticipantID("p2"), body.Participant)
	assert.Len(t, body.Topics, 2)

	resp = get(t, ts.URL+"/api/participants/subscriber/p2")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DebugCache(t *testing.T) {
	_, listener, ts := setupTestServer(t)
	seed(t, listener)

	resp := get(t, ts.URL+"/api/debug/cache")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), "Writer cache:\nParticipant Info:\np1\n"))
	assert.Contains(t, string(text), "Reader cache:\n")

	resp = get(t, ts.URL+"/api/debug/cache?format=yaml")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

	var dump map[string]map[string]any
	require.NoError(t, yaml.NewDecoder(resp.Body).Decode(&dump))
	assert.Contains(t, dump, "publishers")
	assert.Contains(t, dump["subscribers"], "participants")

	resp = get(t, ts.URL+"/api/debug/cache?format=xml")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_DebugCacheCompressed(t *testing.T) {
	_, listener, ts := setupTestServer(t)
	seed(t, listener)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/debug/cache", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "zstd")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "zstd", resp.Header.Get("Content-Encoding"))
}

func TestServer_Metrics(t *testing.T) {
	_, listener, ts := setupTestServer(t)
	seed(t, listener)
	get(t, ts.URL+"/health")

	resp := get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `topiccache_index_registrations{kind="publisher"}`)
	assert.Contains(t, string(body), `topiccache_http_requests_total`)
}

func TestServer_Realtime(t *testing.T) {
	srv, listener, ts := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/realtime"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg realtime.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, realtime.MessageTypeConnected, msg.Type)

	var connected realtime.ConnectedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &connected))
	require.Len(t, connected.ParticipantID, 36)

	payload, _ := json.Marshal(realtime.EndpointPayload{
		Kind: discovery.KindSubscriber, Topic: "rt/chatter", Type: "std_msgs::msg::dds_::String_",
	})
	out, _ := json.Marshal(realtime.Message{ID: "1", Type: realtime.MessageTypeAnnounce, Payload: payload})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, out))

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, realtime.MessageTypeAck, msg.Type)

	resp := get(t, ts.URL+"/api/participants/subscriber/"+connected.ParticipantID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, srv.Broker().ClientCount())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool {
		return listener.CountSubscribers("/chatter") == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_RealtimeDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Realtime.Enabled = false
	cfg.Metrics.Enabled = false

	srv := New(cfg, discovery.NewListener(nil, zerolog.Nop()), WithLogger(zerolog.Nop()))
	assert.Nil(t, srv.Broker())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/api/realtime").StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, ts.URL+"/metrics").StatusCode)
}

func TestServer_StartShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	srv := New(cfg, discovery.NewListener(nil, zerolog.Nop()), WithLogger(zerolog.Nop()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
