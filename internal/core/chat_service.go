package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"gwi.com/aether-chat/internal/store"
)

const (
	streamErrorMessage = "I encountered an error processing your request. Please check your API key or connection."
	imageErrorFormat   = "Sorry, I couldn't generate that image. Error: %v"
)

var ErrBusy = errors.New("a reply is already in progress")

type State int

const (
	StateIdle State = iota
	StateComposing
	StateSending
	StateStreaming
	StateFinalizing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComposing:
		return "composing"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type SendRequest struct {
	Text        string
	Attachments []Upload
	// OnChunk, if set, sees every streamed chunk in order.
	OnChunk func(chunk string)
}

// Exchange is the outcome of one committed turn.
type Exchange struct {
	ChatID string
	User   *store.Message
	Reply  *store.Message
	// Failed reports that Reply is the synthetic error message.
	Failed bool
}

// DraftView describes the composer contents.
type DraftView struct {
	Text        string   `json:"text"`
	Attachments []string `json:"attachments"`
}

// ChatService drives the send/stream lifecycle on top of the conversation
// store. At most one send or image cycle runs at a time.
type ChatService struct {
	chats    *store.ConversationStore
	settings *store.SettingsStore
	backend  Backend

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	partial strings.Builder

	draftText        string
	draftAttachments []Upload
}

func NewChatService(chats *store.ConversationStore, settings *store.SettingsStore, backend Backend) *ChatService {
	return &ChatService{
		chats:    chats,
		settings: settings,
		backend:  backend,
	}
}

// Chat list operations.

func (s *ChatService) CreateChat() *store.Chat {
	return s.chats.CreateChat(s.settings.Get().DefaultModel)
}

func (s *ChatService) SelectChat(id string) bool {
	return s.chats.SelectChat(id)
}

func (s *ChatService) DeleteChat(id string) bool {
	return s.chats.DeleteChat(id)
}

func (s *ChatService) SearchChats(query string) []*store.Chat {
	return s.chats.Search(query)
}

func (s *ChatService) GetChat(id string) *store.Chat {
	return s.chats.Chat(id)
}

func (s *ChatService) ActiveChat() *store.Chat {
	return s.chats.Active()
}

// Composer.

func (s *ChatService) SetDraftText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draftText = text
}

func (s *ChatService) AddDraftAttachment(u Upload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draftAttachments = append(s.draftAttachments, u)
}

func (s *ChatService) RemoveDraftAttachment(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.draftAttachments) {
		return false
	}
	s.draftAttachments = append(s.draftAttachments[:index:index], s.draftAttachments[index+1:]...)
	return true
}

func (s *ChatService) Draft() DraftView {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.draftAttachments))
	for i, u := range s.draftAttachments {
		names[i] = u.Name
	}
	return DraftView{Text: s.draftText, Attachments: names}
}

// SendDraft sends the composer contents.
func (s *ChatService) SendDraft(ctx context.Context, onChunk func(string)) (*Exchange, error) {
	s.mu.Lock()
	req := SendRequest{
		Text:        s.draftText,
		Attachments: append([]Upload(nil), s.draftAttachments...),
		OnChunk:     onChunk,
	}
	s.mu.Unlock()
	return s.Send(ctx, req)
}

// Observers.

func (s *ChatService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle && (s.draftText != "" || len(s.draftAttachments) > 0) {
		return StateComposing
	}
	return s.state
}

// Partial returns the text streamed so far in the current cycle.
func (s *ChatService) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial.String()
}

// Cancel aborts the in-flight cycle. It reports whether there was one to
// abort; calling it again, or after the reply is complete, changes nothing.
func (s *ChatService) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil || (s.state != StateSending && s.state != StateStreaming) {
		return false
	}
	s.cancel()
	return true
}

// Send commits a user turn and streams the assistant reply into the active
// chat, creating one if none is active. Blank text with no attachments is
// ignored. Backend failures and cancellation are recorded as an assistant
// error message rather than returned; attachment encoding failures abort the
// turn before anything is appended.
func (s *ChatService) Send(ctx context.Context, req SendRequest) (*Exchange, error) {
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return nil, nil
	}

	cycleCtx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.finish()

	settings := s.settings.Get()
	chatID := s.ensureChat(settings.DefaultModel)

	raw, encoded, err := EncodeAttachments(cycleCtx, req.Attachments)
	if err != nil {
		s.setState(StateError)
		log.Printf("Aborting send for chat %s: %v", chatID, err)
		return nil, err
	}

	userMsg := &store.Message{
		Role:        store.RoleUser,
		Content:     store.Text(req.Text),
		Attachments: encoded,
	}
	if err := s.chats.AppendMessage(chatID, userMsg); err != nil {
		s.setState(StateError)
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}
	s.clearDraft()

	chat := s.chats.Chat(chatID)
	if chat == nil {
		s.setState(StateError)
		return nil, store.ErrChatNotFound
	}
	model := settings.DefaultModel
	if model == "" {
		model = chat.ModelID
	}
	chatReq := ChatRequest{
		History:           historyTurns(chat.Messages),
		SystemInstruction: settings.ActivePersona.SystemPrompt,
		Model:             model,
		Attachments:       raw,
	}

	s.setState(StateStreaming)
	var streamErr error
	for chunk, err := range s.backend.StreamChat(cycleCtx, chatReq) {
		if err != nil {
			streamErr = err
			break
		}
		s.appendPartial(chunk)
		if req.OnChunk != nil {
			req.OnChunk(chunk)
		}
	}

	// From here on Cancel is a no-op; only a cancellation that already landed
	// counts against this turn.
	s.setState(StateFinalizing)
	if streamErr == nil {
		streamErr = cycleCtx.Err()
	}

	reply := &store.Message{Role: store.RoleAssistant}
	if streamErr != nil {
		log.Printf("Error generating model response for chat %s: %v", chatID, streamErr)
		reply.Content = store.Text(streamErrorMessage)
	} else {
		reply.Content = store.Text(s.Partial())
	}
	if err := s.chats.AppendMessage(chatID, reply); err != nil {
		s.setState(StateError)
		return nil, fmt.Errorf("failed to store model message: %w", err)
	}

	return &Exchange{ChatID: chatID, User: userMsg, Reply: reply, Failed: streamErr != nil}, nil
}

// GenerateImage appends prompt as a user turn and the generated image (or an
// error message naming the failure) as the reply.
func (s *ChatService) GenerateImage(ctx context.Context, prompt string) (*Exchange, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, nil
	}

	cycleCtx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.finish()

	chatID := s.ensureChat(s.settings.Get().DefaultModel)
	userMsg := &store.Message{Role: store.RoleUser, Content: store.Text(prompt)}
	if err := s.chats.AppendMessage(chatID, userMsg); err != nil {
		s.setState(StateError)
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}
	s.clearDraft()

	s.setState(StateStreaming)
	img, genErr := s.backend.GenerateImage(cycleCtx, prompt)
	s.setState(StateFinalizing)

	reply := &store.Message{Role: store.RoleAssistant}
	if genErr != nil {
		log.Printf("Image generation failed for chat %s: %v", chatID, genErr)
		reply.Content = store.Text(fmt.Sprintf(imageErrorFormat, genErr))
	} else {
		reply.Content = store.ImageContent(img.MIMEType, img.Data)
	}
	if err := s.chats.AppendMessage(chatID, reply); err != nil {
		s.setState(StateError)
		return nil, fmt.Errorf("failed to store model message: %w", err)
	}

	return &Exchange{ChatID: chatID, User: userMsg, Reply: reply, Failed: genErr != nil}, nil
}

func (s *ChatService) begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil, ErrBusy
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateSending
	s.partial.Reset()
	return cycleCtx, nil
}

// finish always runs, whatever the outcome of the cycle.
func (s *ChatService) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.partial.Reset()
	s.state = StateIdle
}

// ensureChat returns the active chat id, creating a chat when none is
// active. The new chat takes its title from the first user message.
func (s *ChatService) ensureChat(model string) string {
	if id := s.chats.ActiveID(); id != "" {
		return id
	}
	return s.chats.CreateChat(model).ID
}

func (s *ChatService) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *ChatService) appendPartial(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial.WriteString(chunk)
}

func (s *ChatService) clearDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draftText = ""
	s.draftAttachments = nil
}

// historyTurns replays the chat as text only. Images are never re-sent.
func historyTurns(messages []*store.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, Turn{Role: m.Role, Text: m.Content.Text()})
	}
	return turns
}
