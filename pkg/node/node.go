// Package node implements the node-side message runtime:
// the init lifecycle, the outbound sequencer, the
// per-message context, the handler registry and the
// Service that ties them together.
//
// The runtime is strictly sequential. One inbound
// message is fully dispatched and its output drained
// before the next one is read, so none of the types in
// this package are safe for concurrent use.
package node

import (
	"slices"

	"github.com/i5heu/maelstrom-node/pkg/protocol"
)

// State is the lifecycle state of a Node.
type State int // H

const ( // H
	StateUninitialized State = iota
	StateInitialized
)

// String returns the name of the state.
func (s State) String() string { // H
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// NodeView is the read-only view of the local node that
// contexts and the sequencer borrow.
type NodeView interface { // A
	// LocalID returns the local node id and whether the
	// node has been initialized.
	LocalID() (protocol.NodeID, bool)
	// Peers returns the known peer set in init order.
	Peers() []protocol.NodeID
}

// InitPayload is the payload of an "init" message.
type InitPayload struct { // AC
	NodeID  protocol.NodeID   `json:"node_id"`
	NodeIDs []protocol.NodeID `json:"node_ids"`
}

// Node holds the identity of the local process and its
// peer set. Only Initialize mutates it.
type Node struct { // AC
	localID     protocol.NodeID
	peers       []protocol.NodeID
	initialized bool
}

// NewNode returns an uninitialized Node.
func NewNode() *Node { // H
	return &Node{}
}

// Initialize stores the identity handed out by the init
// handshake. Calling it again overwrites the previous
// identity without validation.
func (n *Node) Initialize( // A
	localID protocol.NodeID,
	peers []protocol.NodeID,
) {
	n.localID = localID
	n.peers = slices.Clone(peers)
	n.initialized = true
}

// Initialized reports whether an init message has been
// processed.
func (n *Node) Initialized() bool { // H
	return n.initialized
}

// State returns the lifecycle state.
func (n *Node) State() State { // H
	if n.initialized {
		return StateInitialized
	}
	return StateUninitialized
}

// LocalID implements NodeView.
func (n *Node) LocalID() (protocol.NodeID, bool) { // A
	if !n.initialized {
		return "", false
	}
	return n.localID, true
}

// Peers implements NodeView. The returned slice is a copy.
func (n *Node) Peers() []protocol.NodeID { // A
	return slices.Clone(n.peers)
}

var _ NodeView = (*Node)(nil)
