package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings("gemini-2.5-flash")
	assert.Equal(t, "gemini-2.5-flash", s.DefaultModel)
	assert.Equal(t, "Helpful Assistant", s.ActivePersona.Name)
	require.Len(t, s.SavedPersonas, 3)

	s.SavedPersonas[0].Name = "changed"
	assert.Equal(t, "Helpful Assistant", DefaultPersonas[0].Name)
}

func TestSettingsStoreMutations(t *testing.T) {
	st := NewSettingsStore(DefaultSettings("m"))
	var seen []Settings
	st.OnChange(func(s Settings) { seen = append(seen, s) })

	st.AddPersona(Persona{Name: "Pirate", SystemPrompt: "Arr."})
	assert.True(t, st.SelectPersona("Pirate"))
	assert.False(t, st.SelectPersona("Ghost"))

	got := st.Get()
	assert.Equal(t, "Pirate", got.ActivePersona.Name)
	assert.Len(t, got.SavedPersonas, 4)
	assert.Len(t, seen, 2, "failed selection does not notify")

	st.Save(Settings{DefaultModel: "gemini-3-pro-preview"})
	assert.Equal(t, "gemini-3-pro-preview", st.Get().DefaultModel)
	assert.Len(t, seen, 3)
}

func TestSettingsStoreReplaceIsSilent(t *testing.T) {
	st := NewSettingsStore(DefaultSettings("m"))
	called := false
	st.OnChange(func(Settings) { called = true })

	st.Replace(Settings{DefaultModel: "x"})
	assert.Equal(t, "x", st.Get().DefaultModel)
	assert.False(t, called)
}
