package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/sampleflow/api/handlers"
	"github.com/BaSui01/sampleflow/broadcast"
	"github.com/BaSui01/sampleflow/internal/ctxkeys"
	"github.com/BaSui01/sampleflow/sample"
	"github.com/BaSui01/sampleflow/types"
)

// --- Helpers ---

type fixture struct {
	srv      *httptest.Server
	buffer   *sample.Buffer
	registry *broadcast.Registry
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	buf, err := sample.NewBuffer(100)
	require.NoError(t, err)
	reg := broadcast.NewRegistry(broadcast.WithSendTimeout(time.Second))

	srv := httptest.NewServer(New(cfg, buf, reg, WithLogger(zap.NewNop())))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, buffer: buf, registry: reg}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, f *fixture, opts *websocket.DialOptions) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(f.srv), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func mkSample(i int) sample.Sample {
	values := make([]float64, sample.DefaultArity)
	values[0] = float64(i)
	return sample.Sample{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(i) * time.Millisecond),
		Values:    values,
	}
}

// publish 模拟接入路径：追加缓冲区并广播
func publish(t *testing.T, f *fixture, s sample.Sample) {
	t.Helper()
	msg, err := sample.EncodeData(s)
	require.NoError(t, err)
	f.registry.Publish(context.Background(), msg, func() { f.buffer.Append(s) })
}

func openConfig() Config {
	return Config{ReadLimit: 4096, AllowedOrigins: []string{"*"}}
}

// --- Handshake ---

func TestEndpoint_RejectsPlainHTTP(t *testing.T) {
	f := newFixture(t, openConfig())

	resp, err := http.Get(f.srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body handlers.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, string(types.ErrSubscriberProtocol), body.Error.Code)
	assert.Equal(t, 0, f.registry.Count())
}

func TestEndpoint_RejectsDisallowedOrigin(t *testing.T) {
	cfg := Config{ReadLimit: 4096, AllowedOrigins: []string{"http://localhost:3000"}}
	f := newFixture(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(f.srv), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, f, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://localhost:3000"}},
	})
	assert.Equal(t, "history", readEnvelope(t, conn).Type)
}

// --- Session ---

func TestEndpoint_EmptyHistoryIsArray(t *testing.T) {
	f := newFixture(t, openConfig())
	conn := dial(t, f, nil)

	env := readEnvelope(t, conn)
	assert.Equal(t, "history", env.Type)
	assert.JSONEq(t, `[]`, string(env.Payload))
}

func TestEndpoint_HistoryThenLiveData(t *testing.T) {
	f := newFixture(t, openConfig())
	for i := 1; i <= 5; i++ {
		f.buffer.Append(mkSample(i))
	}

	conn := dial(t, f, nil)

	env := readEnvelope(t, conn)
	require.Equal(t, "history", env.Type)
	var history []sample.Sample
	require.NoError(t, json.Unmarshal(env.Payload, &history))
	require.Len(t, history, 5)
	for i, s := range history {
		assert.Equal(t, float64(i+1), s.Values[0])
	}

	require.Eventually(t, func() bool { return f.registry.Count() == 1 }, 5*time.Second, 5*time.Millisecond)
	publish(t, f, mkSample(6))

	env = readEnvelope(t, conn)
	require.Equal(t, "data", env.Type)
	var live sample.Sample
	require.NoError(t, json.Unmarshal(env.Payload, &live))
	assert.Equal(t, float64(6), live.Values[0])
}

func TestEndpoint_IgnoresClientMessages(t *testing.T) {
	f := newFixture(t, openConfig())
	conn := dial(t, f, nil)
	readEnvelope(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"subscribe":"all"}`)))

	require.Eventually(t, func() bool { return f.registry.Count() == 1 }, 5*time.Second, 5*time.Millisecond)
	publish(t, f, mkSample(1))
	assert.Equal(t, "data", readEnvelope(t, conn).Type)
	assert.Equal(t, 1, f.registry.Count())
}

func TestEndpoint_ClientCloseDeregisters(t *testing.T) {
	f := newFixture(t, openConfig())
	conn := dial(t, f, nil)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return f.registry.Count() == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool { return f.registry.Count() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestEndpoint_OversizedClientMessageEndsSession(t *testing.T) {
	cfg := openConfig()
	cfg.ReadLimit = 16
	f := newFixture(t, cfg)
	conn := dial(t, f, nil)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return f.registry.Count() == 1 }, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, []byte(strings.Repeat("x", 64)))

	require.Eventually(t, func() bool { return f.registry.Count() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestEndpoint_MultipleSubscribersReceiveSameStream(t *testing.T) {
	f := newFixture(t, openConfig())
	a := dial(t, f, nil)
	b := dial(t, f, nil)
	readEnvelope(t, a)
	readEnvelope(t, b)
	require.Eventually(t, func() bool { return f.registry.Count() == 2 }, 5*time.Second, 5*time.Millisecond)

	for i := 1; i <= 3; i++ {
		publish(t, f, mkSample(i))
	}

	for _, conn := range []*websocket.Conn{a, b} {
		for i := 1; i <= 3; i++ {
			env := readEnvelope(t, conn)
			var s sample.Sample
			require.NoError(t, json.Unmarshal(env.Payload, &s))
			assert.Equal(t, float64(i), s.Values[0])
		}
	}
}

// --- Helpers under test ---

func TestEndpoint_LogsCarryRequestIdentifiers(t *testing.T) {
	buf, err := sample.NewBuffer(10)
	require.NoError(t, err)
	reg := broadcast.NewRegistry(broadcast.WithSendTimeout(time.Second))
	core, logs := observer.New(zap.InfoLevel)
	endpoint := New(openConfig(), buf, reg, WithLogger(zap.New(core)))

	// 模拟外层中间件写入的标识
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ctxkeys.WithRequestID(r.Context(), "req-42")
		ctx = ctxkeys.WithTraceID(ctx, "trace-7")
		endpoint.ServeHTTP(w, r.WithContext(ctx))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return logs.FilterMessage("client connected").Len() == 1 },
		5*time.Second, 5*time.Millisecond)
	fields := logs.FilterMessage("client connected").All()[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "trace-7", fields["trace_id"])
	assert.NotEmpty(t, fields["subscriber_id"])
}

func TestContextLogger_OmitsMissingIdentifiers(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	contextLogger(context.Background(), zap.New(core)).Info("x")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestAcceptOptions(t *testing.T) {
	opts := acceptOptions([]string{"http://localhost:3000", " https://example.com:8443 ", "", "plain.host"})
	assert.Equal(t, []string{"localhost:3000", "example.com:8443", "plain.host"}, opts.OriginPatterns)
	assert.False(t, opts.InsecureSkipVerify)

	assert.True(t, acceptOptions([]string{"*"}).InsecureSkipVerify)
}

func TestIsUpgradeRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.False(t, isUpgradeRequest(r))

	r.Header.Set("Connection", "keep-alive, Upgrade")
	r.Header.Set("Upgrade", "WebSocket")
	assert.True(t, isUpgradeRequest(r))
}
