package store

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "model" // Gemini's name for the assistant turn
)

const DefaultChatTitle = "New Chat"

type Chat struct {
	ID        string     `json:"id"` // UUID
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt int64      `json:"createdAt"` // unix millis
	ModelID   string     `json:"modelId"`
}

type Message struct {
	ID          string   `json:"id"` // UUID
	Role        Role     `json:"role"`
	Content     Content  `json:"content"`
	Attachments []string `json:"attachments,omitempty"` // data URLs
	Timestamp   int64    `json:"timestamp"`             // unix millis
}

type Persona struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"systemPrompt"`
}

type Settings struct {
	DefaultModel  string    `json:"defaultModel"`
	ActivePersona Persona   `json:"activePersona"`
	SavedPersonas []Persona `json:"savedPersonas"`
}

func (c *Chat) clone() *Chat {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		cp.Messages[i] = m.clone()
	}
	return &cp
}

func (m *Message) clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Attachments != nil {
		cp.Attachments = append([]string(nil), m.Attachments...)
	}
	cp.Content = m.Content.clone()
	return &cp
}

func (s Settings) clone() Settings {
	cp := s
	cp.SavedPersonas = append([]Persona(nil), s.SavedPersonas...)
	return cp
}
