package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/i5heu/maelstrom-node/pkg/protocol"
)

func initializedNode(id protocol.NodeID, peers ...protocol.NodeID) *Node {
	n := NewNode()
	n.Initialize(id, peers)
	return n
}

func inbound(src protocol.NodeID, kind string, msgID uint64, p protocol.Payload) *protocol.Envelope {
	env := &protocol.Envelope{
		Src:  src,
		Dest: "n1",
		Body: protocol.Body{Kind: kind, Payload: p},
	}
	if msgID != 0 {
		env.Body.MsgID = protocol.ID(protocol.MessageID(msgID))
	}
	return env
}

func TestContextAccessors(t *testing.T) { // A
	t.Parallel()
	env := inbound("c1", "echo", 7, protocol.Payload{
		"echo": json.RawMessage(`"x"`),
	})
	env.Body.InReplyTo = protocol.ID(3)
	ctx := NewMessageContext(env, initializedNode("n1", "n1", "n2"), nil)

	assert.Equal(t, "echo", ctx.Kind())
	assert.Equal(t, protocol.NodeID("c1"), ctx.Src())
	assert.Equal(t, protocol.NodeID("n1"), ctx.Dest())
	id, ok := ctx.MsgID()
	assert.True(t, ok)
	assert.Equal(t, protocol.MessageID(7), id)
	irt, ok := ctx.InReplyTo()
	assert.True(t, ok)
	assert.Equal(t, protocol.MessageID(3), irt)
	local, ok := ctx.LocalID()
	assert.True(t, ok)
	assert.Equal(t, protocol.NodeID("n1"), local)
	assert.Equal(t, []protocol.NodeID{"n1", "n2"}, ctx.Peers())

	got, ok := ctx.Inbound()
	assert.True(t, ok)
	assert.Equal(t, "echo", got.Kind())
}

func TestContextWithoutInbound(t *testing.T) { // A
	t.Parallel()
	ctx := NewMessageContext(nil, nil, nil)
	assert.Empty(t, ctx.Kind())
	assert.Empty(t, ctx.Src())
	assert.Empty(t, ctx.Dest())
	_, ok := ctx.MsgID()
	assert.False(t, ok)
	_, ok = ctx.InReplyTo()
	assert.False(t, ok)
	_, ok = ctx.Inbound()
	assert.False(t, ok)
	_, ok = ctx.LocalID()
	assert.False(t, ok)
	assert.Empty(t, ctx.Peers())

	_, err := DecodeInbound[InitPayload](ctx)
	var em *protocol.ErrorMessage
	require.True(t, errors.As(err, &em))
	assert.Equal(t, protocol.ErrMalformedRequest, em.Kind())
	assert.Equal(t, "message not available", em.Text())

	// A reply without inbound goes nowhere but is still
	// sequenced.
	require.NoError(t, ctx.Reply("x", nil))
	out := ctx.Drain()
	require.Len(t, out, 1)
	assert.Empty(t, out[0].Dest)
	assert.Nil(t, out[0].Body.InReplyTo)
}

func TestContextReply(t *testing.T) { // A
	t.Parallel()
	seq := NewSequencer()
	ctx := NewMessageContext(
		inbound("c1", "echo", 7, nil),
		initializedNode("n1", "n1"),
		seq,
	)

	require.NoError(t, ctx.Reply("echo_ok", map[string]string{"echo": "hi"}))
	out := ctx.Drain()
	require.Len(t, out, 1)

	env := out[0]
	assert.Equal(t, protocol.NodeID("n1"), env.Src)
	assert.Equal(t, protocol.NodeID("c1"), env.Dest)
	assert.Equal(t, "echo_ok", env.Kind())
	require.NotNil(t, env.Body.InReplyTo)
	assert.Equal(t, protocol.MessageID(7), *env.Body.InReplyTo)
	assert.Equal(t, protocol.MessageID(1), *env.Body.MsgID)
	assert.Equal(t, `"hi"`, string(env.Body.Payload["echo"]))
	assert.Equal(t, protocol.MessageID(1), seq.Last())
}

func TestContextReplyWithoutInboundMsgID(t *testing.T) { // H
	t.Parallel()
	ctx := NewMessageContext(inbound("c1", "x", 0, nil), initializedNode("n1"), nil)
	require.NoError(t, ctx.Reply("x_ok", nil))
	assert.Nil(t, ctx.Drain()[0].Body.InReplyTo)
}

func TestContextReplyRejectsNonObjectPayload(t *testing.T) { // A
	t.Parallel()
	ctx := NewMessageContext(inbound("c1", "x", 1, nil), initializedNode("n1"), nil)

	err := ctx.Reply("x_ok", []string{"not", "an", "object"})
	var em *protocol.ErrorMessage
	require.True(t, errors.As(err, &em))
	assert.Equal(t, protocol.ErrCrash, em.Kind())
	assert.Zero(t, ctx.Len(), "nothing buffered on failure")
}

func TestContextAnnounceAndSend(t *testing.T) { // A
	t.Parallel()
	ctx := NewMessageContext(inbound("c1", "x", 4, nil), initializedNode("n1"), nil)

	require.NoError(t, ctx.Announce("hello", nil))
	require.NoError(t, ctx.Send("n2", "gossip", map[string]int{"v": 1}))
	out := ctx.Drain()
	require.Len(t, out, 2)

	assert.Empty(t, out[0].Dest)
	assert.Nil(t, out[0].Body.InReplyTo)
	assert.Equal(t, protocol.NodeID("n1"), out[0].Src)

	assert.Equal(t, protocol.NodeID("n2"), out[1].Dest)
	assert.Nil(t, out[1].Body.InReplyTo)
	assert.Equal(t, `1`, string(out[1].Body.Payload["v"]))
}

func TestContextFanOut(t *testing.T) { // A
	t.Parallel()
	ctx := NewMessageContext(
		inbound("c1", "x", 9, nil),
		initializedNode("n1", "n1", "n2", "n3"),
		nil,
	)

	require.NoError(t, ctx.FanOut("x", map[string]any{}))
	out := ctx.Drain()
	require.Len(t, out, 3)

	seen := make(map[protocol.MessageID]bool)
	for i, env := range out {
		assert.Equal(t, []protocol.NodeID{"n1", "n2", "n3"}[i], env.Dest)
		assert.Nil(t, env.Body.InReplyTo)
		require.NotNil(t, env.Body.MsgID)
		assert.False(t, seen[*env.Body.MsgID], "msg_id reused")
		seen[*env.Body.MsgID] = true
	}

	// Payloads are independent copies.
	require.NoError(t, ctx.FanOut("y", map[string]int{"v": 1}))
	out = ctx.Drain()
	out[0].Body.Payload["v"][0] = '9'
	assert.Equal(t, `1`, string(out[1].Body.Payload["v"]))
}

func TestContextFanOutWithoutPeers(t *testing.T) { // H
	t.Parallel()
	ctx := NewMessageContext(inbound("c1", "x", 1, nil), initializedNode("n1"), nil)
	require.NoError(t, ctx.FanOut("x", nil))
	assert.Empty(t, ctx.Drain())
}

func TestContextError(t *testing.T) { // A
	t.Parallel()
	ctx := NewMessageContext(inbound("c1", "x", 5, nil), initializedNode("n1"), nil)

	require.NoError(t, ctx.Error(protocol.NewError(protocol.ErrAbort, "nope")))
	require.NoError(t, ctx.Error(errors.New("plain")))
	require.NoError(t, ctx.Error(nil))
	out := ctx.Drain()
	require.Len(t, out, 2)

	assert.Equal(t, protocol.KindError, out[0].Kind())
	assert.JSONEq(t, `14`, string(out[0].Body.Payload["code"]))
	assert.JSONEq(t, `"nope"`, string(out[0].Body.Payload["text"]))
	assert.Equal(t, protocol.MessageID(5), *out[0].Body.InReplyTo)

	assert.JSONEq(t, `13`, string(out[1].Body.Payload["code"]))
}

func TestContextDrainConsumes(t *testing.T) { // A
	t.Parallel()
	ctx := NewMessageContext(inbound("c1", "x", 1, nil), initializedNode("n1"), nil)
	require.NoError(t, ctx.Announce("a", nil))
	require.NoError(t, ctx.Announce("b", nil))
	assert.Equal(t, 2, ctx.Len())

	out := ctx.Drain()
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Kind())
	assert.Equal(t, "b", out[1].Kind())
	assert.Empty(t, ctx.Drain())
	assert.Zero(t, ctx.Len())
}

func TestDecodeInbound(t *testing.T) { // A
	t.Parallel()
	ctx := NewMessageContext(inbound("c0", "init", 1, protocol.Payload{
		"node_id":  json.RawMessage(`"n1"`),
		"node_ids": json.RawMessage(`["n1","n2"]`),
	}), nil, nil)

	got, err := DecodeInbound[InitPayload](ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.NodeID("n1"), got.NodeID)
	assert.Equal(t, []protocol.NodeID{"n1", "n2"}, got.NodeIDs)

	bad := NewMessageContext(inbound("c0", "init", 1, protocol.Payload{
		"node_ids": json.RawMessage(`"n1"`),
	}), nil, nil)
	_, err = DecodeInbound[InitPayload](bad)
	var em *protocol.ErrorMessage
	require.True(t, errors.As(err, &em))
	assert.Equal(t, protocol.ErrMalformedRequest, em.Kind())
	assert.Contains(t, em.Text(), "`init`")
}

// Outbound ids stay strictly increasing across any mix of
// operations and contexts sharing one sequencer.
func TestMsgIDMonotonicProperty(t *testing.T) { // A
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		peerCount := rapid.IntRange(0, 5).Draw(t, "peers")
		peers := make([]protocol.NodeID, peerCount)
		for i := range peers {
			peers[i] = protocol.NodeID(fmt.Sprintf("p%d", i))
		}
		n := initializedNode("n1", peers...)
		seq := NewSequencer()

		var last protocol.MessageID
		contexts := rapid.IntRange(1, 20).Draw(t, "contexts")
		for c := 0; c < contexts; c++ {
			ctx := NewMessageContext(inbound("c1", "x", uint64(c+1), nil), n, seq)
			ops := rapid.SliceOfN(rapid.IntRange(0, 4), 0, 10).Draw(t, "ops")
			for _, op := range ops {
				var err error
				switch op {
				case 0:
					err = ctx.Reply("r", nil)
				case 1:
					err = ctx.Announce("a", nil)
				case 2:
					err = ctx.FanOut("f", nil)
				case 3:
					err = ctx.Send("n2", "s", nil)
				case 4:
					err = ctx.Error(protocol.NewError(protocol.ErrAbort, "x"))
				}
				if err != nil {
					t.Fatalf("op %d: %v", op, err)
				}
			}
			for _, env := range ctx.Drain() {
				if env.Body.MsgID == nil {
					t.Fatalf("missing msg_id")
				}
				if *env.Body.MsgID <= last {
					t.Fatalf("msg_id %d not above %d", *env.Body.MsgID, last)
				}
				last = *env.Body.MsgID
			}
		}
		if seq.Last() != last {
			t.Fatalf("sequencer last %d, observed %d", seq.Last(), last)
		}
	})
}
