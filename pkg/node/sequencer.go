package node

import "github.com/i5heu/maelstrom-node/pkg/protocol"

// Sequencer assigns msg_id values to outbound envelopes
// and stamps their source. Ids start at 1 and are never
// reused within one process.
type Sequencer struct { // AC
	next protocol.MessageID
}

// NewSequencer returns a Sequencer whose first id is 1.
func NewSequencer() *Sequencer { // H
	return &Sequencer{next: 1}
}

// Next returns the next id and advances the counter.
func (s *Sequencer) Next() protocol.MessageID { // A
	if s.next == 0 {
		s.next = 1
	}
	id := s.next
	s.next++
	return id
}

// Last returns the most recently assigned id, or 0 when
// nothing has been assigned yet.
func (s *Sequencer) Last() protocol.MessageID { // H
	if s.next <= 1 {
		return 0
	}
	return s.next - 1
}

// Stamp assigns a fresh msg_id to env and sets its src to
// the local node id when the node is initialized.
func (s *Sequencer) Stamp( // A
	env *protocol.Envelope,
	node NodeView,
) {
	env.Body.MsgID = protocol.ID(s.Next())
	if node == nil {
		return
	}
	if id, ok := node.LocalID(); ok {
		env.Src = id
	}
}
