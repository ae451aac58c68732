package api

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/aether-chat/internal/core"
	"gwi.com/aether-chat/internal/export"
	"gwi.com/aether-chat/internal/store"
)

type scriptedBackend struct {
	chunks []string
	image  *store.Image
	last   core.ChatRequest
	// gate, when set, holds the stream open after the first chunk until it
	// is closed.
	gate chan struct{}
}

func (b *scriptedBackend) StreamChat(ctx context.Context, req core.ChatRequest) iter.Seq2[string, error] {
	b.last = req
	return func(yield func(string, error) bool) {
		for _, c := range b.chunks {
			if !yield(c, nil) {
				return
			}
			if b.gate != nil {
				<-b.gate
			}
		}
	}
}

func (b *scriptedBackend) GenerateImage(ctx context.Context, prompt string) (*store.Image, error) {
	if b.image == nil {
		return nil, core.ErrNoImage
	}
	return b.image, nil
}

type testServer struct {
	handler  http.Handler
	svc      *core.ChatService
	chats    *store.ConversationStore
	settings *store.SettingsStore
	backend  *scriptedBackend
	copied   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		chats:    store.NewConversationStore(30),
		settings: store.NewSettingsStore(store.DefaultSettings("gemini-2.5-flash")),
		backend:  &scriptedBackend{chunks: []string{"Hel", "lo"}},
	}
	ts.svc = core.NewChatService(ts.chats, ts.settings, ts.backend)
	sharer := &export.Sharer{WriteClipboard: func(text string) error {
		ts.copied = text
		return nil
	}}
	ts.handler = NewRouter(NewAPIHandler(ts.svc, ts.settings, sharer))
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChatLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/chats", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created store.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, store.DefaultChatTitle, created.Title)

	rec = ts.do(t, http.MethodGet, "/api/chats/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/chats", nil)
	var summaries []ChatSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Active)

	rec = ts.do(t, http.MethodPut, "/api/chats/active", SelectChatRequest{ID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/chats/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/chats/active", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/chats/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostMessageStreamsEvents(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/messages", PostMessageRequest{Text: "What is 2+2?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: chunk\ndata: {\"text\":\"Hel\"}\n\n")
	assert.Contains(t, body, "event: chunk\ndata: {\"text\":\"lo\"}\n\n")
	assert.Contains(t, body, "event: done\n")

	chat := ts.chats.Active()
	require.NotNil(t, chat)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "Hello", chat.Messages[1].Content.Text())
	assert.Equal(t, "What is 2+2?", chat.Title)
}

func TestPostMessageRejectsEmpty(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/messages", PostMessageRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.chats.List())
}

func TestPostMessageMultipart(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "car.png")
	require.NoError(t, err)
	part.Write([]byte("\x89PNG\r\n\x1a\npixels"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/messages", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	msgs := ts.chats.Active().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "", msgs[0].Content.Text())
	require.Len(t, msgs[0].Attachments, 1)
	assert.True(t, strings.HasPrefix(msgs[0].Attachments[0], "data:"))
	require.Len(t, ts.backend.last.Attachments, 1)
}

func TestDraftEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/draft", DraftRequest{Text: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"a.png", "b.png"} {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		part.Write([]byte(name))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/draft/attachments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/draft/attachments/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/draft/attachments/9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/stream", nil)
	assert.JSONEq(t, `{"state":"composing","partial":""}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/draft", nil)
	assert.JSONEq(t, `{"text":"hello","attachments":["b.png"]}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/draft", nil)
	assert.JSONEq(t, `{"text":"","attachments":[]}`, rec.Body.String())
}

func TestCancelWhenIdle(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/cancel", nil)
	assert.JSONEq(t, `{"cancelled":false}`, rec.Body.String())
}

func TestGenerateImage(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.image = &store.Image{MIMEType: "image/png", Data: []byte("img")}

	rec := ts.do(t, http.MethodPost, "/api/images", GenerateImageRequest{Prompt: "a lighthouse"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content":"data:image/png;base64,aW1n"`)

	rec = ts.do(t, http.MethodPost, "/api/images", GenerateImageRequest{Prompt: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchChats(t *testing.T) {
	ts := newTestServer(t)
	ts.chats.CreateChatTitled("m", "Go generics")
	ts.chats.CreateChatTitled("m", "Dinner")

	rec := ts.do(t, http.MethodGet, "/api/chats?q=generics", nil)
	var summaries []ChatSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "Go generics", summaries[0].Title)
}

func TestExportAndShare(t *testing.T) {
	ts := newTestServer(t)
	chat := ts.chats.CreateChat("m")
	require.NoError(t, ts.chats.AppendMessage(chat.ID, &store.Message{Role: store.RoleUser, Content: store.Text("What is 2+2?")}))

	rec := ts.do(t, http.MethodGet, "/api/chats/"+chat.ID+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename=what_is_2_2_.txt`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "User:\nWhat is 2+2?")

	rec = ts.do(t, http.MethodPost, "/api/chats/"+chat.ID+"/share", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"title":"What is 2+2?","text":"User: What is 2+2?","copied":true}`, rec.Body.String())
	assert.Equal(t, "User: What is 2+2?", ts.copied)
}

func TestSettingsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/settings/personas", store.Persona{Name: "Pirate", SystemPrompt: "Arr."})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/settings/persona", SelectPersonaRequest{Name: "Pirate"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Pirate", ts.settings.Get().ActivePersona.Name)

	rec = ts.do(t, http.MethodPut, "/api/settings/persona", SelectPersonaRequest{Name: "Nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/settings", store.Settings{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	updated := ts.settings.Get()
	updated.DefaultModel = "gemini-3-pro-preview"
	rec = ts.do(t, http.MethodPut, "/api/settings", updated)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gemini-3-pro-preview", ts.settings.Get().DefaultModel)

	rec = ts.do(t, http.MethodGet, "/api/models", nil)
	var models []core.ModelInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &models))
	assert.Len(t, models, 2)
}

func TestPostMessageBodyBypassesDraft(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.chunks = []string{"ok"}
	ts.do(t, http.MethodPut, "/api/draft", DraftRequest{Text: "draft text"})

	rec := ts.do(t, http.MethodPost, "/api/messages", PostMessageRequest{Text: "body text"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body text", ts.chats.Active().Messages[0].Content.Text())
}

func TestConcurrentPostDoesNotReplaceInFlightMessage(t *testing.T) {
	ts := newTestServer(t)
	ts.backend.gate = make(chan struct{})

	first := make(chan *httptest.ResponseRecorder)
	go func() {
		first <- ts.do(t, http.MethodPost, "/api/messages", PostMessageRequest{Text: "first"})
	}()
	require.Eventually(t, func() bool {
		return ts.svc.State() == core.StateStreaming
	}, time.Second, time.Millisecond)

	rec := ts.do(t, http.MethodPost, "/api/messages", PostMessageRequest{Text: "second"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(ts.backend.gate)
	require.Equal(t, http.StatusOK, (<-first).Code)

	msgs := ts.chats.Active().Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content.Text())
	assert.Equal(t, "Hello", msgs[1].Content.Text())
	assert.Equal(t, core.DraftView{Text: "", Attachments: []string{}}, ts.svc.Draft())
}
