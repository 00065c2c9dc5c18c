package handlers

import (
	"github.com/google/uuid"

	"github.com/i5heu/maelstrom-node/pkg/node"
)

const (
	KindGenerate   = "generate"
	KindGenerateOK = "generate_ok"
)

// GenerateOKPayload is the reply payload of "generate".
type GenerateOKPayload struct { // A
	ID string `json:"id"`
}

// UniqueID answers "generate" with a random UUID. The ids
// are unique across nodes without any coordination.
type UniqueID struct { // AC
	newID  func() string
	issued uint64
}

// NewUniqueID returns a UniqueID handler backed by
// uuid.NewString.
func NewUniqueID() *UniqueID { // H
	return &UniqueID{newID: uuid.NewString}
}

// Kinds implements node.Handler.
func (u *UniqueID) Kinds() []string { // H
	return []string{KindGenerate}
}

// Handle implements node.Handler.
func (u *UniqueID) Handle(ctx *node.MessageContext) error { // A
	id := u.newID()
	if err := ctx.Reply(
		KindGenerateOK,
		GenerateOKPayload{ID: id},
	); err != nil {
		return err
	}
	u.issued++
	return nil
}

// Issued returns how many ids this handler has handed out.
func (u *UniqueID) Issued() uint64 { // H
	return u.issued
}

var _ node.Handler = (*UniqueID)(nil)
