package store

import "sync"

var DefaultPersonas = []Persona{
	{
		Name:         "Helpful Assistant",
		SystemPrompt: "You are a helpful, clever, and friendly AI assistant named 1lineAi. You provide clear and concise answers, formatting your responses with Markdown. You are skilled at analyzing images to identify objects, cars, brands, and estimating real-world dimensions based on visual context.",
	},
	{
		Name:         "Senior Developer",
		SystemPrompt: "You are a world-class senior software engineer. You write clean, production-ready code. You prefer TypeScript and React. You explain your architectural decisions clearly.",
	},
	{
		Name:         "Creative Writer",
		SystemPrompt: "You are a creative writing expert. You focus on vivid imagery, engaging plots, and emotional depth.",
	},
}

func DefaultSettings(defaultModel string) Settings {
	return Settings{
		DefaultModel:  defaultModel,
		ActivePersona: DefaultPersonas[0],
		SavedPersonas: append([]Persona(nil), DefaultPersonas...),
	}
}

// SettingsStore holds the single Settings record. Every change replaces the
// whole record and notifies listeners.
type SettingsStore struct {
	writeMu   sync.Mutex
	mu        sync.RWMutex
	settings  Settings
	listeners []func(Settings)
}

func NewSettingsStore(initial Settings) *SettingsStore {
	return &SettingsStore{settings: initial.clone()}
}

func (s *SettingsStore) OnChange(fn func(Settings)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.clone()
}

// Save replaces the settings wholesale.
func (s *SettingsStore) Save(settings Settings) {
	s.update(func(cur *Settings) bool {
		*cur = settings.clone()
		return true
	})
}

// AddPersona appends p to the saved personas. Name uniqueness is not enforced.
func (s *SettingsStore) AddPersona(p Persona) {
	s.update(func(cur *Settings) bool {
		cur.SavedPersonas = append(cur.SavedPersonas, p)
		return true
	})
}

// SelectPersona activates the first saved persona called name.
func (s *SettingsStore) SelectPersona(name string) bool {
	found := false
	s.update(func(cur *Settings) bool {
		for _, p := range cur.SavedPersonas {
			if p.Name == name {
				cur.ActivePersona = p
				found = true
				return true
			}
		}
		return false
	})
	return found
}

// Replace swaps in rehydrated settings without notifying listeners.
func (s *SettingsStore) Replace(settings Settings) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	s.settings = settings.clone()
	s.mu.Unlock()
}

func (s *SettingsStore) update(fn func(cur *Settings) bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	changed := fn(&s.settings)
	snap := s.settings.clone()
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range s.listeners {
		l(snap)
	}
}
