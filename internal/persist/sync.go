package persist

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"gwi.com/aether-chat/internal/store"
)

const (
	ChatsKey    = "aether_chats"
	SettingsKey = "aether_settings"

	writeTimeout = 5 * time.Second
)

// Sync mirrors the conversation and settings stores into a KeyValue store.
// Persistence is best effort: read failures fall back to defaults and write
// failures are only logged.
type Sync struct {
	kv store.KeyValue
}

func NewSync(kv store.KeyValue) *Sync {
	return &Sync{kv: kv}
}

// LoadChats reads the persisted chat list. Missing or malformed data yields an
// empty list.
func (s *Sync) LoadChats(ctx context.Context) []*store.Chat {
	raw, ok := s.read(ctx, ChatsKey)
	if !ok {
		return []*store.Chat{}
	}
	var chats []*store.Chat
	if err := json.Unmarshal([]byte(raw), &chats); err != nil {
		log.Printf("Warning: persisted chats are malformed, starting empty: %v", err)
		return []*store.Chat{}
	}
	return dropNullEntries(chats)
}

// dropNullEntries removes null chats and null messages, which decode without
// error but would otherwise reach the store as nil pointers.
func dropNullEntries(chats []*store.Chat) []*store.Chat {
	out := make([]*store.Chat, 0, len(chats))
	for _, c := range chats {
		if c == nil {
			continue
		}
		msgs := make([]*store.Message, 0, len(c.Messages))
		for _, m := range c.Messages {
			if m != nil {
				msgs = append(msgs, m)
			}
		}
		if len(msgs) != len(c.Messages) {
			log.Printf("Warning: dropped %d null messages from persisted chat %s", len(c.Messages)-len(msgs), c.ID)
		}
		c.Messages = msgs
		out = append(out, c)
	}
	return out
}

// LoadSettings reads the persisted settings, falling back to defaults.
func (s *Sync) LoadSettings(ctx context.Context, defaults store.Settings) store.Settings {
	raw, ok := s.read(ctx, SettingsKey)
	if !ok {
		return defaults
	}
	var settings store.Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		log.Printf("Warning: persisted settings are malformed, using defaults: %v", err)
		return defaults
	}
	return fillSettings(settings, defaults)
}

// fillSettings takes fields missing from a persisted record (null, {} or a
// partial object) from defaults.
func fillSettings(settings, defaults store.Settings) store.Settings {
	if settings.DefaultModel == "" {
		settings.DefaultModel = defaults.DefaultModel
	}
	if len(settings.SavedPersonas) == 0 {
		settings.SavedPersonas = defaults.SavedPersonas
	}
	if settings.ActivePersona.Name == "" && settings.ActivePersona.SystemPrompt == "" {
		settings.ActivePersona = defaults.ActivePersona
	}
	return settings
}

// Restore rehydrates both stores from the KeyValue store.
func (s *Sync) Restore(ctx context.Context, chats *store.ConversationStore, settings *store.SettingsStore, defaults store.Settings) {
	loaded := s.LoadChats(ctx)
	chats.Replace(loaded)
	settings.Replace(s.LoadSettings(ctx, defaults))
	log.Printf("Restored %d chats from local storage.", len(loaded))
}

// Attach writes both structures through on every subsequent change.
func (s *Sync) Attach(chats *store.ConversationStore, settings *store.SettingsStore) {
	chats.OnChange(func(snapshot []*store.Chat) {
		s.write(ChatsKey, snapshot)
	})
	settings.OnChange(func(snapshot store.Settings) {
		s.write(SettingsKey, snapshot)
	})
}

func (s *Sync) read(ctx context.Context, key string) (string, bool) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		log.Printf("Warning: failed to read %s from local storage: %v", key, err)
		return "", false
	}
	return raw, ok
}

func (s *Sync) write(key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to serialize %s: %v", key, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.kv.Set(ctx, key, string(b)); err != nil {
		log.Printf("Failed to persist %s: %v", key, err)
	}
}
