package export

import (
	"log"

	"github.com/atotto/clipboard"

	"gwi.com/aether-chat/internal/store"
)

type ShareResult struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	// Copied reports whether the text landed on the system clipboard. When
	// false the caller should hand Text to its own share facility.
	Copied bool `json:"copied"`
}

// Sharer copies chats to the system clipboard.
type Sharer struct {
	// WriteClipboard defaults to clipboard.WriteAll.
	WriteClipboard func(text string) error
	// Unsupported defaults to clipboard.Unsupported.
	Unsupported bool
}

func NewSharer() *Sharer {
	return &Sharer{
		WriteClipboard: clipboard.WriteAll,
		Unsupported:    clipboard.Unsupported,
	}
}

func (s *Sharer) Share(chat *store.Chat) ShareResult {
	res := ShareResult{Title: chat.Title, Text: ShareText(chat)}
	if s.Unsupported || s.WriteClipboard == nil {
		return res
	}
	if err := s.WriteClipboard(res.Text); err != nil {
		log.Printf("Failed to copy chat %s to clipboard: %v", chat.ID, err)
		return res
	}
	res.Copied = true
	return res
}
