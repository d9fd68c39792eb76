// Package boconfig loads the description of a local benor cluster
// from a YAML file.
package boconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/gordian-engine/benor/boconsensus"
	"gopkg.in/yaml.v3"
)

// Transport names accepted in [Cluster.Transport].
const (
	TransportHTTP   = "http"
	TransportLibp2p = "libp2p"
)

// Cluster describes every node in a local cluster.
type Cluster struct {
	Nodes          int `yaml:"nodes"`
	FaultTolerance int `yaml:"fault_tolerance"`

	// Indices of nodes that never participate.
	FaultyNodes []int `yaml:"faulty_nodes"`

	// One entry per node, each 0 or 1.
	// Left empty, every node draws its initial value at random.
	InitialValues []int `yaml:"initial_values"`

	// Carries consensus messages between nodes.
	// Each node always serves its control routes over HTTP.
	Transport string `yaml:"transport"`

	ListenHost string `yaml:"listen_host"`
	BasePort   int    `yaml:"base_port"`

	// If set, HTTP servers listen on Unix sockets in this directory
	// instead of on ListenHost:BasePort+i.
	SocketDir string `yaml:"socket_dir"`

	RetainRounds uint32 `yaml:"retain_rounds"`

	// Serve Prometheus metrics on each node's /metrics route.
	Metrics bool `yaml:"metrics"`

	// How long to wait for every live node to decide.
	DecideTimeout time.Duration `yaml:"decide_timeout"`

	// Permit clusters where N <= 3F.
	AllowUnsafeFaultBound bool `yaml:"allow_unsafe_fault_bound"`
}

// Default returns the four-node, one-fault cluster
// with every other field at its default.
func Default() Cluster {
	c := Cluster{
		Nodes:          4,
		FaultTolerance: 1,
	}
	c.FillEmptyFields()
	return c
}

// Load reads and parses the YAML file at path,
// fills in defaults, and validates the result.
func Load(path string) (Cluster, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Cluster{}, fmt.Errorf("failed to read cluster config: %w", err)
	}

	c, err := Parse(b)
	if err != nil {
		return Cluster{}, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return c, nil
}

// Parse is like [Load] for an in-memory document.
// Unknown fields are an error.
func Parse(b []byte) (Cluster, error) {
	var c Cluster
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Cluster{}, fmt.Errorf("failed to parse cluster config: %w", err)
	}

	c.FillEmptyFields()
	if err := c.Validate(); err != nil {
		return Cluster{}, err
	}
	return c, nil
}

// FillEmptyFields sets defaults for fields left at their zero value.
func (c *Cluster) FillEmptyFields() {
	if c.Transport == "" {
		c.Transport = TransportHTTP
	}
	if c.ListenHost == "" {
		c.ListenHost = "127.0.0.1"
	}
	if c.BasePort == 0 {
		c.BasePort = 3000
	}
	if c.DecideTimeout == 0 {
		c.DecideTimeout = 30 * time.Second
	}
}

// FillInitialValues assigns a coin flip to every node
// if no initial values were configured.
func (c *Cluster) FillInitialValues(coin boconsensus.Coin) {
	if len(c.InitialValues) > 0 {
		return
	}
	c.InitialValues = make([]int, c.Nodes)
	for i := range c.InitialValues {
		c.InitialValues[i] = int(coin.Flip())
	}
}

// Validate reports every problem with c.
func (c Cluster) Validate() error {
	var errs []error

	p := c.Params()
	if err := p.Validate(); err != nil {
		errs = append(errs, err)
	} else if !p.SafeFaultBound() && !c.AllowUnsafeFaultBound {
		errs = append(errs, fmt.Errorf(
			"nodes (%d) must be greater than 3 * fault_tolerance (%d); set allow_unsafe_fault_bound to override",
			c.Nodes, c.FaultTolerance,
		))
	}

	if len(c.FaultyNodes) > c.FaultTolerance {
		errs = append(errs, fmt.Errorf(
			"%d faulty nodes configured but fault_tolerance is %d", len(c.FaultyNodes), c.FaultTolerance,
		))
	}
	seen := make(map[int]bool, len(c.FaultyNodes))
	for _, idx := range c.FaultyNodes {
		if idx < 0 || idx >= c.Nodes {
			errs = append(errs, fmt.Errorf("faulty node index %d out of range [0, %d)", idx, c.Nodes))
		}
		if seen[idx] {
			errs = append(errs, fmt.Errorf("faulty node index %d listed more than once", idx))
		}
		seen[idx] = true
	}

	if len(c.InitialValues) > 0 {
		if len(c.InitialValues) != c.Nodes {
			errs = append(errs, fmt.Errorf(
				"got %d initial values for %d nodes", len(c.InitialValues), c.Nodes,
			))
		}
		for i, v := range c.InitialValues {
			if v != 0 && v != 1 {
				errs = append(errs, fmt.Errorf("initial value for node %d must be 0 or 1 (got %d)", i, v))
			}
		}
	}

	switch c.Transport {
	case TransportHTTP, TransportLibp2p:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}

	if c.SocketDir == "" && (c.BasePort <= 0 || c.BasePort+c.Nodes-1 > 65535) {
		errs = append(errs, fmt.Errorf("base_port %d leaves no room for %d nodes", c.BasePort, c.Nodes))
	}

	if c.DecideTimeout < 0 {
		errs = append(errs, errors.New("decide_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// Params returns the protocol parameters for the cluster.
func (c Cluster) Params() boconsensus.Params {
	return boconsensus.Params{N: c.Nodes, F: c.FaultTolerance}
}

// IsFaulty reports whether the node at idx is configured as faulty.
func (c Cluster) IsFaulty(idx int) bool {
	return slices.Contains(c.FaultyNodes, idx)
}

// InitialValue returns the configured initial value of the node at idx.
// Call [*Cluster.FillInitialValues] first if none were configured.
func (c Cluster) InitialValue(idx int) boconsensus.Value {
	return boconsensus.Value(c.InitialValues[idx])
}
