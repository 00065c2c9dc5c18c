package node

import (
	"fmt"
	"slices"
	"sort"

	"github.com/i5heu/maelstrom-node/pkg/protocol"
)

// Handler processes inbound messages of the kinds it
// declares. A handler instance is created once and may
// keep private state across messages.
type Handler interface { // AC
	// Kinds returns the discriminators the handler
	// processes.
	Kinds() []string
	// Handle processes the message in ctx and writes its
	// output through ctx.
	Handle(ctx *MessageContext) error
}

// Initializer is implemented by handlers that want to
// observe the init handshake.
type Initializer interface { // A
	Init(
		ctx *MessageContext,
		localID protocol.NodeID,
		peers []protocol.NodeID,
	) error
}

// HandlerFunc adapts a function to a single-kind Handler.
type HandlerFunc struct { // A
	Kind string
	Fn   func(ctx *MessageContext) error
}

// Kinds implements Handler.
func (h HandlerFunc) Kinds() []string { // A
	return []string{h.Kind}
}

// Handle implements Handler.
func (h HandlerFunc) Handle(ctx *MessageContext) error { // A
	return h.Fn(ctx)
}

// Registry maps discriminators to handlers. Registration
// order is dispatch order, across all kinds.
type Registry struct { // AC
	handlers []Handler
	byKind   map[string][]int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry { // H
	return &Registry{byKind: make(map[string][]int)}
}

// Register appends h and indexes it under every kind it
// declares. Several handlers may share a kind.
func (r *Registry) Register(h Handler) error { // A
	if h == nil {
		return fmt.Errorf("handler must not be nil")
	}
	kinds := h.Kinds()
	if len(kinds) == 0 {
		return fmt.Errorf(
			"handler %T declares no message types",
			h,
		)
	}
	for _, k := range kinds {
		if k == "" {
			return fmt.Errorf(
				"handler %T declares an empty message type",
				h,
			)
		}
		if k == protocol.KindInit {
			return fmt.Errorf(
				"handler %T must not claim %q, use Initializer",
				h,
				protocol.KindInit,
			)
		}
	}

	idx := len(r.handlers)
	r.handlers = append(r.handlers, h)
	for _, k := range kinds {
		if slices.Contains(r.byKind[k], idx) {
			continue
		}
		r.byKind[k] = append(r.byKind[k], idx)
	}
	return nil
}

// Dispatch invokes every handler registered for the
// context's kind in registration order. The first error
// stops dispatch; envelopes buffered before it stay in
// the context.
func (r *Registry) Dispatch(ctx *MessageContext) error { // A
	kind := ctx.Kind()
	idxs, ok := r.byKind[kind]
	if !ok {
		return protocol.NewError(
			protocol.ErrNotSupported,
			"message type `%s` not supported",
			kind,
		)
	}
	for _, idx := range idxs {
		if err := r.handlers[idx].Handle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// InitAll runs the Initializer hook of every handler that
// has one, in registration order, stopping at the first
// error.
func (r *Registry) InitAll( // A
	ctx *MessageContext,
	localID protocol.NodeID,
	peers []protocol.NodeID,
) error {
	for _, h := range r.handlers {
		in, ok := h.(Initializer)
		if !ok {
			continue
		}
		if err := in.Init(ctx, localID, slices.Clone(peers)); err != nil {
			return err
		}
	}
	return nil
}

// Kinds returns the registered discriminators, sorted.
func (r *Registry) Kinds() []string { // H
	out := make([]string, 0, len(r.byKind))
	for k := range r.byKind {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int { // H
	return len(r.handlers)
}
