package node

import (
	"github.com/i5heu/maelstrom-node/pkg/protocol"
)

// MessageContext mediates all handler I/O for exactly one
// dispatch cycle. It exposes the inbound envelope and
// collects outbound envelopes in send order until they
// are drained.
type MessageContext struct { // AC
	inbound  *protocol.Envelope
	outbound []protocol.Envelope
	node     NodeView
	seq      *Sequencer
}

// NewMessageContext creates a context around inbound,
// which may be nil for contexts that only report a
// transport failure. node and seq are borrowed.
func NewMessageContext( // A
	inbound *protocol.Envelope,
	node NodeView,
	seq *Sequencer,
) *MessageContext {
	if seq == nil {
		seq = NewSequencer()
	}
	return &MessageContext{
		inbound: inbound,
		node:    node,
		seq:     seq,
	}
}

// Kind returns the inbound discriminator, or "" when
// there is no inbound message.
func (c *MessageContext) Kind() string { // A
	if c.inbound == nil {
		return ""
	}
	return c.inbound.Kind()
}

// Inbound returns a copy of the inbound envelope.
func (c *MessageContext) Inbound() (protocol.Envelope, bool) { // A
	if c.inbound == nil {
		return protocol.Envelope{}, false
	}
	return *c.inbound, true
}

// Src returns the sender of the inbound message.
func (c *MessageContext) Src() protocol.NodeID { // H
	if c.inbound == nil {
		return ""
	}
	return c.inbound.Src
}

// Dest returns the destination of the inbound message.
func (c *MessageContext) Dest() protocol.NodeID { // H
	if c.inbound == nil {
		return ""
	}
	return c.inbound.Dest
}

// MsgID returns the inbound msg_id.
func (c *MessageContext) MsgID() (protocol.MessageID, bool) { // H
	if c.inbound == nil || c.inbound.Body.MsgID == nil {
		return 0, false
	}
	return *c.inbound.Body.MsgID, true
}

// InReplyTo returns the inbound in_reply_to.
func (c *MessageContext) InReplyTo() (protocol.MessageID, bool) { // H
	if c.inbound == nil || c.inbound.Body.InReplyTo == nil {
		return 0, false
	}
	return *c.inbound.Body.InReplyTo, true
}

// LocalID returns the local node id, if initialized.
func (c *MessageContext) LocalID() (protocol.NodeID, bool) { // H
	if c.node == nil {
		return "", false
	}
	return c.node.LocalID()
}

// Peers returns the known peer set.
func (c *MessageContext) Peers() []protocol.NodeID { // H
	if c.node == nil {
		return nil
	}
	return c.node.Peers()
}

// DecodeInbound projects the inbound payload onto T. It
// fails with MalformedRequest when there is no inbound
// message or the payload does not fit T.
func DecodeInbound[T any](c *MessageContext) (T, error) { // A
	if c.inbound == nil {
		var zero T
		return zero, protocol.NewError(
			protocol.ErrMalformedRequest,
			"message not available",
		)
	}
	return protocol.DecodePayload[T](
		c.inbound.Kind(),
		c.inbound.Body.Payload,
	)
}

// Reply sends kind/payload back to the inbound sender,
// correlated with the inbound msg_id. payload must encode
// to a JSON object (or nil); otherwise Reply fails with
// Crash and nothing is buffered.
func (c *MessageContext) Reply(kind string, payload any) error { // A
	var (
		dest      protocol.NodeID
		inReplyTo *protocol.MessageID
	)
	if c.inbound != nil {
		dest = c.inbound.Src
		if c.inbound.Body.MsgID != nil {
			inReplyTo = protocol.ID(*c.inbound.Body.MsgID)
		}
	}
	return c.send(kind, payload, dest, inReplyTo)
}

// Announce buffers an envelope without destination or
// correlation. It is not a broadcast; see FanOut.
func (c *MessageContext) Announce(kind string, payload any) error { // A
	return c.send(kind, payload, "", nil)
}

// Send buffers an envelope addressed to dest without
// correlation.
func (c *MessageContext) Send( // A
	dest protocol.NodeID,
	kind string,
	payload any,
) error {
	return c.send(kind, payload, dest, nil)
}

// FanOut buffers one envelope per known peer, each with
// its own msg_id and a copy of payload.
func (c *MessageContext) FanOut(kind string, payload any) error { // A
	p, err := protocol.EncodePayload(payload)
	if err != nil {
		return err
	}
	for _, peer := range c.Peers() {
		c.push(kind, p.Clone(), peer, nil)
	}
	return nil
}

// Error replies with an "error" message carrying the code
// and text of err. Errors that are not *ErrorMessage are
// reported as Crash.
func (c *MessageContext) Error(err error) error { // A
	em := protocol.AsErrorMessage(err)
	if em == nil {
		return nil
	}
	return c.Reply(protocol.KindError, em.Payload())
}

// Drain returns the buffered envelopes in send order and
// empties the buffer.
func (c *MessageContext) Drain() []protocol.Envelope { // A
	out := c.outbound
	c.outbound = nil
	return out
}

// Len returns the number of buffered envelopes.
func (c *MessageContext) Len() int { // H
	return len(c.outbound)
}

func (c *MessageContext) send( // A
	kind string,
	payload any,
	dest protocol.NodeID,
	inReplyTo *protocol.MessageID,
) error {
	p, err := protocol.EncodePayload(payload)
	if err != nil {
		return err
	}
	c.push(kind, p, dest, inReplyTo)
	return nil
}

func (c *MessageContext) push( // A
	kind string,
	p protocol.Payload,
	dest protocol.NodeID,
	inReplyTo *protocol.MessageID,
) {
	env := protocol.Envelope{
		Dest: dest,
		Body: protocol.Body{
			InReplyTo: inReplyTo,
			Kind:      kind,
			Payload:   p,
		},
	}
	c.seq.Stamp(&env, c.node)
	c.outbound = append(c.outbound, env)
}
