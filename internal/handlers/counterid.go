package handlers

import (
	"github.com/i5heu/maelstrom-node/pkg/node"
	"github.com/i5heu/maelstrom-node/pkg/protocol"
)

const (
	KindGenerateID   = "generate_id"
	KindGenerateIDOK = "generate_id_ok"
	KindGetMaxID     = "get_max_id"
	KindGetMaxIDOK   = "get_max_id_ok"
)

// CounterPayload carries a counter value. It is the
// payload of generate_id_ok, get_max_id_ok and of the
// fan-out that spreads a new maximum to peers.
type CounterPayload struct { // A
	ID uint64 `json:"id"`
}

// CounterID hands out increasing integer ids. After each
// generated id it sends the new maximum to every other
// peer, and raises its own counter whenever a peer reports
// a higher one, so counters across the cluster converge.
// Ids can repeat across nodes until they have converged.
type CounterID struct { // AC
	maxID uint64
}

// NewCounterID returns a CounterID starting at zero.
func NewCounterID() *CounterID { // H
	return &CounterID{}
}

// Kinds implements node.Handler.
func (c *CounterID) Kinds() []string { // H
	return []string{KindGenerateID, KindGetMaxID, KindGetMaxIDOK}
}

// Handle implements node.Handler.
func (c *CounterID) Handle(ctx *node.MessageContext) error { // A
	switch kind := ctx.Kind(); kind {
	case KindGenerateID:
		return c.handleGenerateID(ctx)
	case KindGetMaxID:
		return ctx.Reply(KindGetMaxIDOK, CounterPayload{ID: c.maxID})
	case KindGetMaxIDOK:
		return c.handleGetMaxIDOK(ctx)
	default:
		return protocol.NewError(
			protocol.ErrNotSupported,
			"message type `%s` not supported",
			kind,
		)
	}
}

// MaxID returns the current counter value.
func (c *CounterID) MaxID() uint64 { // H
	return c.maxID
}

func (c *CounterID) handleGenerateID( // A
	ctx *node.MessageContext,
) error {
	c.maxID++
	if err := ctx.Reply(
		KindGenerateIDOK,
		CounterPayload{ID: c.maxID},
	); err != nil {
		return err
	}
	self, _ := ctx.LocalID()
	for _, peer := range ctx.Peers() {
		if peer == self {
			continue
		}
		if err := ctx.Send(
			peer,
			KindGetMaxIDOK,
			CounterPayload{ID: c.maxID},
		); err != nil {
			return err
		}
	}
	return nil
}

func (c *CounterID) handleGetMaxIDOK( // A
	ctx *node.MessageContext,
) error {
	msg, err := node.DecodeInbound[CounterPayload](ctx)
	if err != nil {
		return err
	}
	if msg.ID > c.maxID {
		c.maxID = msg.ID
	}
	return nil
}

var _ node.Handler = (*CounterID)(nil)
