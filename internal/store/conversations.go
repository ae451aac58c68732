package store

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gwi.com/aether-chat/internal/utils"
)

var ErrChatNotFound = errors.New("chat not found")

// ConversationStore owns every chat and the active-chat pointer. Reads hand out
// deep copies; mutations are serialized and followed by change notifications
// in mutation order.
type ConversationStore struct {
	writeMu sync.Mutex // serializes mutation + notification
	mu      sync.RWMutex

	chats       []*Chat // most recent first
	activeID    string
	titleLength int
	listeners   []func([]*Chat)

	now func() time.Time
}

func NewConversationStore(titleLength int) *ConversationStore {
	return &ConversationStore{
		titleLength: titleLength,
		now:         time.Now,
	}
}

// OnChange registers fn to receive a snapshot of the chat list after every
// mutation of it.
func (s *ConversationStore) OnChange(fn func(chats []*Chat)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// mutate runs fn under the write lock and, if fn reports a change, notifies
// listeners with a fresh snapshot.
func (s *ConversationStore) mutate(fn func() bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	changed := fn()
	var snap []*Chat
	if changed && len(s.listeners) > 0 {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range s.listeners {
		l(snap)
	}
}

func (s *ConversationStore) CreateChat(defaultModel string) *Chat {
	return s.CreateChatTitled(defaultModel, DefaultChatTitle)
}

// CreateChatTitled prepends a new empty chat with the given title and makes it
// active.
func (s *ConversationStore) CreateChatTitled(modelID, title string) *Chat {
	if title == "" {
		title = DefaultChatTitle
	}
	chat := &Chat{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  []*Message{},
		CreatedAt: s.now().UnixMilli(),
		ModelID:   modelID,
	}
	s.mutate(func() bool {
		s.chats = append([]*Chat{chat}, s.chats...)
		s.activeID = chat.ID
		return true
	})
	return chat.clone()
}

// SelectChat makes the chat with id active. Unknown ids are ignored.
func (s *ConversationStore) SelectChat(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(id) == nil {
		return false
	}
	s.activeID = id
	return true
}

func (s *ConversationStore) DeleteChat(id string) bool {
	deleted := false
	s.mutate(func() bool {
		for i, c := range s.chats {
			if c.ID == id {
				s.chats = append(s.chats[:i:i], s.chats[i+1:]...)
				deleted = true
				break
			}
		}
		if deleted && s.activeID == id {
			s.activeID = ""
		}
		return deleted
	})
	return deleted
}

// AppendMessage appends msg to the chat. The first user message of a chat sets
// its title to the message text truncated to the configured length; empty
// text keeps the existing title.
func (s *ConversationStore) AppendMessage(chatID string, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = s.now().UnixMilli()
	}
	stored := msg.clone()

	var err error
	s.mutate(func() bool {
		chat := s.findLocked(chatID)
		if chat == nil {
			err = ErrChatNotFound
			return false
		}
		if len(chat.Messages) == 0 && stored.Role == RoleUser {
			if title := utils.Truncate(stored.Content.Text(), s.titleLength); title != "" {
				chat.Title = title
			}
		}
		chat.Messages = append(chat.Messages, stored)
		return true
	})
	return err
}

// Search returns chats whose title or any message text contains query,
// case-insensitively. An empty query returns every chat.
func (s *ConversationStore) Search(query string) []*Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	out := make([]*Chat, 0, len(s.chats))
	for _, c := range s.chats {
		if q == "" || chatMatches(c, q) {
			out = append(out, c.clone())
		}
	}
	return out
}

func chatMatches(c *Chat, q string) bool {
	if strings.Contains(strings.ToLower(c.Title), q) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content.Text()), q) {
			return true
		}
	}
	return false
}

func (s *ConversationStore) List() []*Chat {
	return s.Search("")
}

// Chat returns a copy of the chat, or nil.
func (s *ConversationStore) Chat(id string) *Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(id).clone()
}

func (s *ConversationStore) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns a copy of the active chat, or nil when none is active.
func (s *ConversationStore) Active() *Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" {
		return nil
	}
	return s.findLocked(s.activeID).clone()
}

// Replace swaps in a rehydrated chat list, skipping nil entries. No chat is
// active afterwards and listeners are not notified.
func (s *ConversationStore) Replace(chats []*Chat) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = make([]*Chat, 0, len(chats))
	for _, c := range chats {
		if c == nil {
			continue
		}
		cp := c.clone()
		msgs := make([]*Message, 0, len(cp.Messages))
		for _, m := range cp.Messages {
			if m != nil {
				msgs = append(msgs, m)
			}
		}
		cp.Messages = msgs
		s.chats = append(s.chats, cp)
	}
	s.activeID = ""
}

func (s *ConversationStore) Snapshot() []*Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *ConversationStore) snapshotLocked() []*Chat {
	snap := make([]*Chat, len(s.chats))
	for i, c := range s.chats {
		snap[i] = c.clone()
	}
	return snap
}

func (s *ConversationStore) findLocked(id string) *Chat {
	for _, c := range s.chats {
		if c.ID == id {
			return c
		}
	}
	return nil
}
