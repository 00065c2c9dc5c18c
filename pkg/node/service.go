package node

import (
	"context"
	"log/slog"

	"github.com/i5heu/maelstrom-node/pkg/logging"
	"github.com/i5heu/maelstrom-node/pkg/protocol"
)

// Slog attribute keys used throughout the node package.
const (
	logKeyMessageType = "messageType"
	logKeyNodeID      = "nodeId"
	logKeySrc         = "src"
	logKeyMsgID       = "msgId"
	logKeyPeerCount   = "peerCount"
	logKeyOutCount    = "outCount"
	logKeyErrorCode   = "errorCode"
	logKeyError       = "error"
)

// Service is the message runtime of one node process. It
// owns the Node lifecycle and the Sequencer, borrows the
// Registry, and turns each inbound line into the list of
// envelopes to write.
type Service struct { // AC
	node     *Node
	registry *Registry
	seq      *Sequencer
	log      *slog.Logger
}

// NewService creates a Service dispatching to registry.
// A nil logger discards log output.
func NewService( // A
	registry *Registry,
	logger *slog.Logger,
) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		node:     NewNode(),
		registry: registry,
		seq:      NewSequencer(),
		log:      logger,
	}
}

// Node returns the lifecycle state of the service.
func (s *Service) Node() *Node { // H
	return s.node
}

// Sequencer returns the outbound id sequencer.
func (s *Service) Sequencer() *Sequencer { // H
	return s.seq
}

// Input decodes one wire line and handles it. A line that
// is not a well-formed envelope has no addressable sender;
// it is logged and produces no output.
func (s *Service) Input( // A
	ctx context.Context,
	line []byte,
) []protocol.Envelope {
	env, err := protocol.DecodeEnvelope(line)
	if err != nil {
		em := protocol.NewError(
			protocol.ErrMalformedRequest,
			"malformed envelope",
		).WithCause(err)
		s.log.WarnContext(ctx, "dropping undecodable line",
			logKeyErrorCode, em.Code(),
			logKeyError, em.Error())
		return nil
	}
	return s.Handle(ctx, env)
}

// Handle processes one decoded envelope and returns the
// envelopes it produced, in send order.
func (s *Service) Handle( // A
	ctx context.Context,
	env protocol.Envelope,
) []protocol.Envelope {
	mctx := NewMessageContext(&env, s.node, s.seq)

	s.log.DebugContext(ctx, "handling message",
		logKeyMessageType, env.Kind(),
		logKeySrc, string(env.Src),
		logKeyMsgID, msgIDAttr(env.Body.MsgID))

	if err := s.route(ctx, mctx); err != nil {
		s.fail(ctx, mctx, err)
	}

	out := mctx.Drain()
	s.log.DebugContext(ctx, "message handled",
		logKeyMessageType, env.Kind(),
		logKeyOutCount, len(out))
	return out
}

func (s *Service) route( // A
	ctx context.Context,
	mctx *MessageContext,
) error {
	kind := mctx.Kind()
	if kind == protocol.KindInit {
		return s.handleInit(ctx, mctx)
	}
	if !s.node.Initialized() {
		return protocol.NewError(
			protocol.ErrPreconditionFailed,
			"node not initialized, cannot handle message type `%s`",
			kind,
		)
	}
	return s.registry.Dispatch(mctx)
}

func (s *Service) handleInit( // A
	ctx context.Context,
	mctx *MessageContext,
) error {
	req, err := DecodeInbound[InitPayload](mctx)
	if err != nil {
		return err
	}
	if req.NodeID == "" {
		return protocol.NewError(
			protocol.ErrMalformedRequest,
			"init: node_id must not be empty",
		)
	}

	s.node.Initialize(req.NodeID, req.NodeIDs)
	s.log.InfoContext(ctx, "node initialized",
		logKeyNodeID, string(req.NodeID),
		logKeyPeerCount, len(req.NodeIDs))

	if err := mctx.Reply(protocol.KindInitOK, nil); err != nil {
		return err
	}
	return s.registry.InitAll(mctx, req.NodeID, req.NodeIDs)
}

// fail turns err into an "error" reply when the inbound
// message has a sender. Otherwise the error is only
// logged. An inbound "error" is never answered with
// another error, so two nodes cannot bounce errors back
// and forth.
func (s *Service) fail( // A
	ctx context.Context,
	mctx *MessageContext,
	err error,
) {
	em := protocol.AsErrorMessage(err)
	if mctx.Src() == "" || mctx.Kind() == protocol.KindError {
		s.log.WarnContext(ctx, "dropping unanswerable error",
			logKeyMessageType, mctx.Kind(),
			logKeyErrorCode, em.Code(),
			logKeyError, em.Error())
		return
	}

	s.log.InfoContext(ctx, "replying with error",
		logKeyMessageType, mctx.Kind(),
		logKeySrc, string(mctx.Src()),
		logKeyErrorCode, em.Code(),
		logKeyError, em.Error())

	if replyErr := mctx.Error(em); replyErr != nil {
		s.log.ErrorContext(ctx, "failed to buffer error reply",
			logKeyMessageType, mctx.Kind(),
			logKeyError, replyErr.Error())
	}
}

func msgIDAttr(id *protocol.MessageID) any { // A
	if id == nil {
		return nil
	}
	return uint64(*id)
}
