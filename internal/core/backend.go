package core

import (
	"context"
	"errors"
	"iter"

	"gwi.com/aether-chat/internal/store"
)

var ErrNoImage = errors.New("no image data returned from API")

// Turn is one replayed history entry. Only text is replayed; attachments of
// past turns are never re-sent.
type Turn struct {
	Role store.Role
	Text string
}

// Attachment is a raw, not yet transport-encoded payload.
type Attachment struct {
	MIMEType string
	Data     []byte
}

type ChatRequest struct {
	// History is the whole chat, oldest first, ending with the new user turn.
	History           []Turn
	SystemInstruction string
	Model             string
	// Attachments belong to the last turn only.
	Attachments []Attachment
}

// Backend is the generative API the controller talks to.
type Backend interface {
	// StreamChat returns a finite, single-use sequence of text chunks. A
	// non-nil error ends the sequence; cancelling ctx stops further chunks.
	StreamChat(ctx context.Context, req ChatRequest) iter.Seq2[string, error]
	GenerateImage(ctx context.Context, prompt string) (*store.Image, error)
}
