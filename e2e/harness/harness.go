// Package harness runs several node services in one
// process and routes their envelopes to each other, so
// multi-node behaviour can be tested without the external
// harness binary.
package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/i5heu/maelstrom-node/pkg/logging"
	"github.com/i5heu/maelstrom-node/pkg/node"
	"github.com/i5heu/maelstrom-node/pkg/protocol"
)

const (
	logKeyNodeID      = "nodeId"
	logKeyDest        = "dest"
	logKeyMessageType = "messageType"
	logKeySteps       = "steps"
	logKeyNodeCount   = "nodeCount"
)

// RegistryFactory builds the handler registry of one
// node. It is called once per node.
type RegistryFactory func(id protocol.NodeID) (*node.Registry, error)

// TestNode is one in-process node of a TestCluster.
type TestNode struct { // A
	ID       protocol.NodeID
	Service  *node.Service
	Received int
}

// TestCluster routes envelopes between in-process nodes.
// Envelopes addressed to a node are queued and delivered
// in FIFO order; everything else is collected in the
// inbox of the addressed client.
type TestCluster struct { // A
	Nodes []*TestNode

	byID     map[protocol.NodeID]*TestNode
	queue    []protocol.Envelope
	inbox    map[protocol.NodeID][]protocol.Envelope
	unrouted []protocol.Envelope
	nextID   protocol.MessageID
	opts     ClusterOptions
	logger   *slog.Logger
}

// ClusterOptions configures cluster creation.
type ClusterOptions struct { // A
	// Client is the id used for init and for Call.
	Client protocol.NodeID
	// MaxSteps bounds the deliveries of one Settle.
	MaxSteps int
	// StaggerInit settles the traffic of each init before
	// the next node is initialized, so peers can receive
	// messages before their own init.
	StaggerInit bool
	Logger      *slog.Logger
}

// DefaultClusterOptions returns the options used by
// NewTestCluster.
func DefaultClusterOptions() ClusterOptions { // A
	return ClusterOptions{
		Client:   "c0",
		MaxSteps: 10_000,
	}
}

// NewTestCluster creates n nodes named n1..nN, sends each
// an init naming all of them and settles the resulting
// traffic.
func NewTestCluster( // A
	ctx context.Context,
	n int,
	factory RegistryFactory,
) (*TestCluster, error) {
	return NewTestClusterWithOptions(ctx, n, factory, DefaultClusterOptions())
}

// NewTestClusterWithOptions is NewTestCluster with custom
// options.
func NewTestClusterWithOptions( // A
	ctx context.Context,
	n int,
	factory RegistryFactory,
	opts ClusterOptions,
) (*TestCluster, error) {
	if n <= 0 {
		return nil, fmt.Errorf("node count must be positive, got %d", n)
	}
	if factory == nil {
		return nil, fmt.Errorf("registry factory must not be nil")
	}
	if opts.Client == "" {
		opts.Client = DefaultClusterOptions().Client
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultClusterOptions().MaxSteps
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	c := &TestCluster{
		Nodes:  make([]*TestNode, 0, n),
		byID:   make(map[protocol.NodeID]*TestNode, n),
		inbox:  make(map[protocol.NodeID][]protocol.Envelope),
		opts:   opts,
		logger: logger,
	}

	ids := make([]protocol.NodeID, n)
	for i := range ids {
		ids[i] = protocol.NodeID(fmt.Sprintf("n%d", i+1))
	}
	for _, id := range ids {
		reg, err := factory(id)
		if err != nil {
			return nil, fmt.Errorf("registry for %s: %w", id, err)
		}
		tn := &TestNode{
			ID:      id,
			Service: node.NewService(reg, logger.With(logKeyNodeID, string(id))),
		}
		c.Nodes = append(c.Nodes, tn)
		c.byID[id] = tn
	}

	for _, id := range ids {
		reply, err := c.deliverNow(
			ctx,
			c.clientEnvelope(id, protocol.KindInit),
			node.InitPayload{NodeID: id, NodeIDs: ids},
		)
		if err != nil {
			return nil, err
		}
		if reply.Kind() != protocol.KindInitOK {
			return nil, fmt.Errorf("init %s: got %q", id, reply.Kind())
		}
		if !opts.StaggerInit {
			continue
		}
		if err := c.Settle(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.Settle(ctx); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "cluster ready", logKeyNodeCount, n)
	return c, nil
}

// Node returns the node with the given id, or nil.
func (c *TestCluster) Node(id protocol.NodeID) *TestNode { // H
	return c.byID[id]
}

// Call sends kind/payload from the cluster client to
// dest, settles all traffic and returns the reply.
func (c *TestCluster) Call( // A
	ctx context.Context,
	dest protocol.NodeID,
	kind string,
	payload any,
) (protocol.Envelope, error) {
	env := c.clientEnvelope(dest, kind)
	reply, err := c.deliverNow(ctx, env, payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	if err := c.Settle(ctx); err != nil {
		return protocol.Envelope{}, err
	}
	return reply, nil
}

// Settle delivers queued envelopes until the queue is
// empty. It fails when MaxSteps deliveries were not
// enough or ctx is done.
func (c *TestCluster) Settle(ctx context.Context) error { // A
	steps := 0
	for len(c.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if steps >= c.opts.MaxSteps {
			return fmt.Errorf(
				"cluster did not settle after %d deliveries",
				steps,
			)
		}
		env := c.queue[0]
		c.queue = c.queue[1:]
		if err := c.deliver(ctx, env); err != nil {
			return err
		}
		steps++
	}
	c.logger.DebugContext(ctx, "cluster settled", logKeySteps, steps)
	return nil
}

// Inbox returns the envelopes delivered to a client id,
// oldest first.
func (c *TestCluster) Inbox(client protocol.NodeID) []protocol.Envelope { // H
	return append([]protocol.Envelope(nil), c.inbox[client]...)
}

// Unrouted returns envelopes that had no destination.
func (c *TestCluster) Unrouted() []protocol.Envelope { // H
	return append([]protocol.Envelope(nil), c.unrouted...)
}

func (c *TestCluster) clientEnvelope( // A
	dest protocol.NodeID,
	kind string,
) protocol.Envelope {
	c.nextID++
	return protocol.Envelope{
		Src:  c.opts.Client,
		Dest: dest,
		Body: protocol.Body{
			MsgID: protocol.ID(c.nextID),
			Kind:  kind,
		},
	}
}

// deliverNow encodes payload into env, delivers it ahead
// of the queue and returns the reply to the client.
func (c *TestCluster) deliverNow( // A
	ctx context.Context,
	env protocol.Envelope,
	payload any,
) (protocol.Envelope, error) {
	p, err := protocol.EncodePayload(payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	env.Body.Payload = p

	before := len(c.inbox[env.Src])
	if err := c.deliver(ctx, env); err != nil {
		return protocol.Envelope{}, err
	}
	for _, got := range c.inbox[env.Src][before:] {
		irt := got.Body.InReplyTo
		if irt != nil && *irt == *env.Body.MsgID {
			return got, nil
		}
	}
	return protocol.Envelope{}, fmt.Errorf(
		"no reply from %s to %q",
		env.Dest,
		env.Kind(),
	)
}

// deliver hands env to its node over the wire encoding
// and routes the output.
func (c *TestCluster) deliver( // A
	ctx context.Context,
	env protocol.Envelope,
) error {
	tn, ok := c.byID[env.Dest]
	if !ok {
		return fmt.Errorf("unknown node %q", env.Dest)
	}
	line, err := protocol.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode for %s: %w", env.Dest, err)
	}
	tn.Received++
	for _, out := range tn.Service.Input(ctx, line) {
		c.route(ctx, out)
	}
	return nil
}

func (c *TestCluster) route( // A
	ctx context.Context,
	env protocol.Envelope,
) {
	switch {
	case env.Dest == "":
		c.logger.WarnContext(ctx, "unrouted envelope",
			logKeyNodeID, string(env.Src),
			logKeyMessageType, env.Kind())
		c.unrouted = append(c.unrouted, env)
	case c.byID[env.Dest] != nil:
		c.queue = append(c.queue, env)
	default:
		c.inbox[env.Dest] = append(c.inbox[env.Dest], env)
		c.logger.DebugContext(ctx, "client delivery",
			logKeyDest, string(env.Dest),
			logKeyMessageType, env.Kind())
	}
}
