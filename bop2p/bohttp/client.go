package bohttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gordian-engine/benor/bocodec"
	"github.com/gordian-engine/benor/boconsensus"
	"github.com/gordian-engine/benor/bop2p"
	"github.com/tv42/httpunix"
)

// Client issues requests to the HTTP servers of a fixed set of peers.
// It is safe for concurrent use.
type Client struct {
	log *slog.Logger

	bases []string
	codec bocodec.Codec
	hc    *http.Client

	stats clientStats
}

var _ bop2p.PeerSender = (*Client)(nil)

// ClientConfig is the configuration for [NewClient].
type ClientConfig struct {
	// Base address of each peer, indexed by node index.
	// Either an http:// URL or unix:///path/to/socket.
	Peers []string

	Codec bocodec.Codec

	// Per-request timeout. Zero means no timeout beyond the request context.
	Timeout time.Duration
}

// Stats is a point-in-time copy of a [Client]'s counters.
type Stats struct {
	MessagesSent uint64
	SendErrors   uint64
	ActiveSends  uint32
}

type clientStats struct {
	messagesSent atomic.Uint64
	sendErrors   atomic.Uint64
	activeSends  atomic.Uint32
}

// NewClient returns a client for the peers in cfg.
func NewClient(log *slog.Logger, cfg ClientConfig) (*Client, error) {
	if len(cfg.Peers) == 0 {
		return nil, errors.New("at least one peer is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("codec is required")
	}

	ut := &httpunix.Transport{
		DialTimeout:           time.Second,
		RequestTimeout:        cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	bases := make([]string, len(cfg.Peers))
	for i, p := range cfg.Peers {
		if path, ok := strings.CutPrefix(p, "unix://"); ok {
			loc := fmt.Sprintf("node%d", i)
			ut.RegisterLocation(loc, path)
			bases[i] = httpunix.Scheme + "://" + loc
			continue
		}

		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("invalid address for peer %d: %w", i, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("unsupported scheme %q for peer %d", u.Scheme, i)
		}
		bases[i] = strings.TrimSuffix(p, "/")
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.RegisterProtocol(httpunix.Scheme, ut)

	// Every broadcast opens one request per peer at once.
	t.MaxIdleConnsPerHost = len(cfg.Peers)

	return &Client{
		log: log,

		bases: bases,
		codec: cfg.Codec,
		hc: &http.Client{
			Transport: t,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// Send implements [bop2p.PeerSender] by posting msg to the peer's /message route.
// A stopped or faulty peer results in an error wrapping [boconsensus.ErrNotAlive].
func (c *Client) Send(ctx context.Context, peerIdx int, msg boconsensus.Message) error {
	c.stats.activeSends.Add(1)
	defer c.stats.activeSends.Add(^uint32(0))

	if err := c.send(ctx, peerIdx, msg); err != nil {
		c.stats.sendErrors.Add(1)
		return err
	}
	c.stats.messagesSent.Add(1)
	return nil
}

func (c *Client) send(ctx context.Context, peerIdx int, msg boconsensus.Message) error {
	b, err := c.codec.MarshalMessage(msg)
	if err != nil {
		return err
	}

	code, body, err := c.do(ctx, peerIdx, http.MethodPost, "/message", b)
	if err != nil {
		return err
	}

	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusBadRequest && body == respMessageRejected:
		return fmt.Errorf("peer %d: %w", peerIdx, boconsensus.ErrNotAlive)
	default:
		return unexpectedResponse(peerIdx, code, body)
	}
}

// Status returns nil if the peer reports itself live,
// or an error wrapping [boconsensus.ErrNotAlive] if it reports faulty.
func (c *Client) Status(ctx context.Context, peerIdx int) error {
	code, body, err := c.do(ctx, peerIdx, http.MethodGet, "/status", nil)
	if err != nil {
		return err
	}

	switch {
	case code == http.StatusOK && body == respLive:
		return nil
	case code == http.StatusInternalServerError && body == respFaulty:
		return fmt.Errorf("peer %d: %w", peerIdx, boconsensus.ErrNotAlive)
	default:
		return unexpectedResponse(peerIdx, code, body)
	}
}

// Start asks the peer to begin consensus.
// The returned error wraps [boconsensus.ErrNotReady] or [boconsensus.ErrNotAlive]
// when the peer rejects the request for one of those reasons.
func (c *Client) Start(ctx context.Context, peerIdx int) error {
	code, body, err := c.do(ctx, peerIdx, http.MethodGet, "/start", nil)
	if err != nil {
		return err
	}

	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusBadRequest && body == respNotReady:
		return fmt.Errorf("peer %d: %w", peerIdx, boconsensus.ErrNotReady)
	case code == http.StatusBadRequest && body == respStartFaulty:
		return fmt.Errorf("peer %d: %w", peerIdx, boconsensus.ErrNotAlive)
	default:
		return unexpectedResponse(peerIdx, code, body)
	}
}

// Stop asks the peer to stop participating.
func (c *Client) Stop(ctx context.Context, peerIdx int) error {
	code, body, err := c.do(ctx, peerIdx, http.MethodGet, "/stop", nil)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return unexpectedResponse(peerIdx, code, body)
	}
	return nil
}

// State fetches the peer's state snapshot.
func (c *Client) State(ctx context.Context, peerIdx int) (boconsensus.NodeState, error) {
	code, body, err := c.do(ctx, peerIdx, http.MethodGet, "/getState", nil)
	if err != nil {
		return boconsensus.NodeState{}, err
	}
	if code != http.StatusOK {
		return boconsensus.NodeState{}, unexpectedResponse(peerIdx, code, body)
	}

	var s boconsensus.NodeState
	if err := c.codec.UnmarshalState([]byte(body), &s); err != nil {
		return boconsensus.NodeState{}, fmt.Errorf("peer %d: %w", peerIdx, err)
	}
	return s, nil
}

// Peer returns a [bop2p.NodeHandler] that forwards every call
// to the peer at peerIdx.
func (c *Client) Peer(peerIdx int) bop2p.NodeHandler {
	return remoteNode{c: c, idx: peerIdx}
}

// Stats returns a copy of the client's counters.
func (c *Client) Stats() Stats {
	return Stats{
		MessagesSent: c.stats.messagesSent.Load(),
		SendErrors:   c.stats.sendErrors.Load(),
		ActiveSends:  c.stats.activeSends.Load(),
	}
}

// CloseIdleConnections releases any pooled connections.
func (c *Client) CloseIdleConnections() {
	c.hc.CloseIdleConnections()
}

func (c *Client) do(
	ctx context.Context, peerIdx int, method, path string, reqBody []byte,
) (code int, respBody string, err error) {
	if peerIdx < 0 || peerIdx >= len(c.bases) {
		return 0, "", fmt.Errorf("peer index %d out of range [0, %d)", peerIdx, len(c.bases))
	}

	var r io.Reader
	if reqBody != nil {
		r = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.bases[peerIdx]+path, r)
	if err != nil {
		return 0, "", fmt.Errorf("failed to build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("request to peer %d failed: %w", peerIdx, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read response from peer %d: %w", peerIdx, err)
	}

	return resp.StatusCode, string(b), nil
}

func unexpectedResponse(peerIdx, code int, body string) error {
	return fmt.Errorf("unexpected response from peer %d: %d %s", peerIdx, code, strings.TrimSpace(body))
}

// remoteNode adapts a single peer of a [Client] to [bop2p.NodeHandler].
type remoteNode struct {
	c   *Client
	idx int
}

func (n remoteNode) HandleMessage(ctx context.Context, msg boconsensus.Message) error {
	return n.c.Send(ctx, n.idx, msg)
}

func (n remoteNode) Start(ctx context.Context) error {
	return n.c.Start(ctx, n.idx)
}

func (n remoteNode) Stop(ctx context.Context) error {
	return n.c.Stop(ctx, n.idx)
}

func (n remoteNode) Status(ctx context.Context) error {
	return n.c.Status(ctx, n.idx)
}

func (n remoteNode) State(ctx context.Context) (boconsensus.NodeState, error) {
	return n.c.State(ctx, n.idx)
}
