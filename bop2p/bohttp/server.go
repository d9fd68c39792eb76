package bohttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gordian-engine/benor/bocodec"
	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/bop2p"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Plain-text response bodies.
// Clients match on these to recover sentinel errors.
const (
	respLive            = "live"
	respFaulty          = "faulty"
	respMessageReceived = "message received"
	respMessageRejected = "node is faulty or consensus is not running"
	respStarted         = "consensus started"
	respNotReady        = "not all nodes are ready"
	respStartFaulty     = "node is faulty"
	respStopped         = "consensus stopped"
)

// Upper bound on a /message request body.
const maxMessageBytes = 4 << 10

// HTTPServer exposes a single node over HTTP.
type HTTPServer struct {
	done chan struct{}
}

// HTTPServerConfig is the configuration for [NewHTTPServer].
type HTTPServerConfig struct {
	Listener net.Listener

	Node  bop2p.NodeHandler
	Codec bocodec.Codec

	// If set, metrics are served on GET /metrics.
	Gatherer prometheus.Gatherer

	// If set, called once the server is about to accept requests.
	OnReady func()
}

// NewHTTPServer starts serving cfg.Node on cfg.Listener.
// The server runs until ctx is cancelled;
// use [*HTTPServer.Wait] to block until it has shut down.
func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) *HTTPServer {
	srv := &http.Server{
		Handler: newMux(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv, cfg.OnReady)
	go h.waitForShutdown(ctx, log, srv)

	return h
}

// Wait blocks until the server has stopped.
func (h *HTTPServer) Wait() {
	<-h.done
}

// shutdownGrace bounds how long in-flight requests may run
// after the root context is cancelled.
const shutdownGrace = 500 * time.Millisecond

func (h *HTTPServer) waitForShutdown(ctx context.Context, log *slog.Logger, srv *http.Server) {
	select {
	case <-h.done:
		return
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("Graceful HTTP shutdown incomplete; closing connections", "err", err)
		if err := srv.Close(); err != nil {
			log.Warn("Error closing HTTP server", "err", err)
		}
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server, onReady func()) {
	defer close(h.done)

	// The listener is already bound, so connections queue until Serve picks them up.
	if onReady != nil {
		onReady()
	}

	log.Info("HTTP server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}

func newMux(log *slog.Logger, cfg HTTPServerConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/status", handleStatus(log, cfg)).Methods("GET")
	r.HandleFunc("/message", handleMessage(log, cfg)).Methods("POST")
	r.HandleFunc("/start", handleStart(log, cfg)).Methods("GET")
	r.HandleFunc("/stop", handleStop(log, cfg)).Methods("GET")
	r.HandleFunc("/getState", handleGetState(log, cfg)).Methods("GET")

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	return r
}

func handleStatus(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		err := cfg.Node.Status(req.Context())
		switch {
		case err == nil:
			writeText(log, w, http.StatusOK, respLive)
		case errors.Is(err, boconsensus.ErrNotAlive):
			writeText(log, w, http.StatusInternalServerError, respFaulty)
		default:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		}
	}
}

func handleMessage(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		b, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxMessageBytes))
		if err != nil {
			http.Error(w, "failed to read body: "+err.Error(), http.StatusBadRequest)
			return
		}

		var msg boconsensus.Message
		if err := cfg.Codec.UnmarshalMessage(b, &msg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err = cfg.Node.HandleMessage(req.Context(), msg)
		switch {
		case err == nil:
			writeText(log, w, http.StatusOK, respMessageReceived)
		case errors.Is(err, boconsensus.ErrNotAlive):
			writeText(log, w, http.StatusBadRequest, respMessageRejected)
		default:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		}
	}
}

func handleStart(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		err := cfg.Node.Start(req.Context())
		switch {
		case err == nil:
			writeText(log, w, http.StatusOK, respStarted)
		case errors.Is(err, boconsensus.ErrNotReady):
			writeText(log, w, http.StatusBadRequest, respNotReady)
		case errors.Is(err, boconsensus.ErrNotAlive):
			writeText(log, w, http.StatusBadRequest, respStartFaulty)
		default:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		}
	}
}

func handleStop(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := cfg.Node.Stop(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeText(log, w, http.StatusOK, respStopped)
	}
}

func handleGetState(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		s, err := cfg.Node.State(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		b, err := cfg.Codec.MarshalState(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(b); err != nil {
			log.Debug("Failed to write state response", "err", err)
		}
	}
}

func writeText(log *slog.Logger, w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	if _, err := io.WriteString(w, body); err != nil {
		log.Debug("Failed to write response", "err", err)
	}
}
