package bohttp_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/gordian-engine/benor/bocodec/bojson"
	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/bop2p/bohttp"
	"github.com/gordian-engine/benor/internal/gtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNode struct {
	mock.Mock
}

func (m *mockNode) HandleMessage(ctx context.Context, msg boconsensus.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockNode) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockNode) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockNode) Status(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockNode) State(ctx context.Context) (boconsensus.NodeState, error) {
	args := m.Called(ctx)
	return args.Get(0).(boconsensus.NodeState), args.Error(1)
}

// startServer serves node on a loopback TCP listener
// and returns the server's base URL.
func startServer(t *testing.T, ctx context.Context, cfg bohttp.HTTPServerConfig) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg.Listener = ln
	if cfg.Codec == nil {
		cfg.Codec = bojson.MarshalCodec{}
	}

	srv := bohttp.NewHTTPServer(ctx, gtest.NewLogger(t), cfg)
	t.Cleanup(srv.Wait)

	return "http://" + ln.Addr().String()
}

func doRequest(t *testing.T, method, url, body string) (int, string) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(b)
}

func TestHTTPServer_status(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := new(mockNode)
	base := startServer(t, ctx, bohttp.HTTPServerConfig{Node: n})

	n.On("Status", mock.Anything).Return(nil).Once()
	code, body := doRequest(t, "GET", base+"/status", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "live", body)

	n.On("Status", mock.Anything).Return(boconsensus.ErrNotAlive).Once()
	code, body = doRequest(t, "GET", base+"/status", "")
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "faulty", body)

	n.AssertExpectations(t)
}

func TestHTTPServer_message(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := new(mockNode)
	base := startServer(t, ctx, bohttp.HTTPServerConfig{Node: n})

	want := boconsensus.Message{Round: 2, Value: boconsensus.Undetermined, Phase: boconsensus.PhaseVote}

	n.On("HandleMessage", mock.Anything, want).Return(nil).Once()
	code, body := doRequest(t, "POST", base+"/message", `{"k":2,"x":"?","messageType":"vote"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "message received", body)

	n.On("HandleMessage", mock.Anything, want).Return(boconsensus.ErrNotAlive).Once()
	code, body = doRequest(t, "POST", base+"/message", `{"k":2,"x":"?","messageType":"vote"}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "node is faulty or consensus is not running", body)

	// Values other than 0 and 1 still reach the node, as undetermined.
	for _, in := range []string{
		`{"k":2,"messageType":"vote"}`,
		`{"k":2,"x":null,"messageType":"vote"}`,
		`{"k":2,"x":5,"messageType":"vote"}`,
	} {
		n.On("HandleMessage", mock.Anything, want).Return(nil).Once()
		code, body = doRequest(t, "POST", base+"/message", in)
		require.Equal(t, http.StatusOK, code, in)
		require.Equal(t, "message received", body, in)
	}

	// Undecodable bodies never reach the node.
	code, _ = doRequest(t, "POST", base+"/message", `{"k":-2,"x":1,"messageType":"vote"}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = doRequest(t, "GET", base+"/message", "")
	require.Equal(t, http.StatusMethodNotAllowed, code)

	n.AssertExpectations(t)
}

func TestHTTPServer_start(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := new(mockNode)
	base := startServer(t, ctx, bohttp.HTTPServerConfig{Node: n})

	for _, tc := range []struct {
		err  error
		code int
		body string
	}{
		{err: nil, code: http.StatusOK, body: "consensus started"},
		{err: boconsensus.ErrNotReady, code: http.StatusBadRequest, body: "not all nodes are ready"},
		{err: boconsensus.ErrNotAlive, code: http.StatusBadRequest, body: "node is faulty"},
	} {
		n.On("Start", mock.Anything).Return(tc.err).Once()

		code, body := doRequest(t, "GET", base+"/start", "")
		require.Equal(t, tc.code, code)
		require.Equal(t, tc.body, body)
	}

	n.AssertExpectations(t)
}

func TestHTTPServer_stop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := new(mockNode)
	base := startServer(t, ctx, bohttp.HTTPServerConfig{Node: n})

	n.On("Stop", mock.Anything).Return(nil).Once()
	code, body := doRequest(t, "GET", base+"/stop", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "consensus stopped", body)

	n.AssertExpectations(t)
}

func TestHTTPServer_getState(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := new(mockNode)
	base := startServer(t, ctx, bohttp.HTTPServerConfig{Node: n})

	n.On("State", mock.Anything).Return(boconsensus.NodeState{
		Alive:    true,
		Value:    boconsensus.One,
		Decided:  true,
		Progress: boconsensus.ActiveRound(3),
	}, nil).Once()
	code, body := doRequest(t, "GET", base+"/getState", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"killed":false,"x":1,"decided":true,"k":3}`, body)

	n.On("State", mock.Anything).Return(boconsensus.NodeState{Faulty: true}, nil).Once()
	code, body = doRequest(t, "GET", base+"/getState", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"killed":true,"x":null,"decided":null,"k":null}`, body)

	n.AssertExpectations(t)
}

func TestHTTPServer_contextErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := new(mockNode)
	base := startServer(t, ctx, bohttp.HTTPServerConfig{Node: n})

	n.On("Stop", mock.Anything).Return(errors.New("shutting down")).Once()
	code, body := doRequest(t, "GET", base+"/stop", "")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Contains(t, body, "shutting down")

	n.AssertExpectations(t)
}

func TestHTTPServer_metrics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "benor_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	base := startServer(t, ctx, bohttp.HTTPServerConfig{
		Node:     new(mockNode),
		Gatherer: reg,
	})

	code, body := doRequest(t, "GET", base+"/metrics", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "benor_test_total 3")
}

func TestHTTPServer_noMetricsWithoutGatherer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := startServer(t, ctx, bohttp.HTTPServerConfig{Node: new(mockNode)})

	code, _ := doRequest(t, "GET", base+"/metrics", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestHTTPServer_OnReady(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	_ = startServer(t, ctx, bohttp.HTTPServerConfig{
		Node:    new(mockNode),
		OnReady: func() { close(ready) },
	})

	_ = gtest.ReceiveSoon(t, ready)
}

func TestHTTPServer_shutdownWithRequestInFlight(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	entered := make(chan struct{})
	n := new(mockNode)
	n.On("Status", mock.Anything).Run(func(args mock.Arguments) {
		close(entered)
		<-args.Get(0).(context.Context).Done()
	}).Return(context.Canceled).Once()

	srv := bohttp.NewHTTPServer(ctx, gtest.NewLogger(t), bohttp.HTTPServerConfig{
		Listener: ln,
		Node:     n,
		Codec:    bojson.MarshalCodec{},
	})

	codes := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/status")
		if err != nil {
			codes <- 0
			return
		}
		_ = resp.Body.Close()
		codes <- resp.StatusCode
	}()

	_ = gtest.ReceiveSoon(t, entered)
	cancel()

	// Request contexts derive from the server context,
	// so the in-flight handler finishes and shutdown completes.
	require.Equal(t, http.StatusServiceUnavailable, gtest.ReceiveSoon(t, codes))

	stopped := make(chan struct{})
	go func() {
		srv.Wait()
		close(stopped)
	}()
	_ = gtest.ReceiveSoon(t, stopped)

	n.AssertExpectations(t)
}
