// Package handlers contains the message handlers a node
// binary can register: echo, UUID based unique ids and a
// counter based id generator that exchanges its maximum
// with peers.
package handlers

import (
	"github.com/i5heu/maelstrom-node/pkg/node"
)

const (
	KindEcho   = "echo"
	KindEchoOK = "echo_ok"
)

// Echo replies to every "echo" message with an "echo_ok"
// carrying the inbound payload unchanged.
type Echo struct{} // H

// NewEcho returns an Echo handler.
func NewEcho() *Echo { // H
	return &Echo{}
}

// Kinds implements node.Handler.
func (e *Echo) Kinds() []string { // H
	return []string{KindEcho}
}

// Handle implements node.Handler.
func (e *Echo) Handle(ctx *node.MessageContext) error { // A
	in, ok := ctx.Inbound()
	if !ok {
		_, err := node.DecodeInbound[struct{}](ctx)
		return err
	}
	return ctx.Reply(KindEchoOK, in.Body.Payload.Clone())
}

var _ node.Handler = (*Echo)(nil)
