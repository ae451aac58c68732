package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gwi.com/aether-chat/internal/core"
	"gwi.com/aether-chat/internal/export"
	"gwi.com/aether-chat/internal/store"
)

const maxUploadMemory = 32 << 20

type APIHandler struct {
	chatService *core.ChatService
	settings    *store.SettingsStore
	sharer      *export.Sharer
	location    *time.Location
}

func NewAPIHandler(cs *core.ChatService, settings *store.SettingsStore, sharer *export.Sharer) *APIHandler {
	return &APIHandler{
		chatService: cs,
		settings:    settings,
		sharer:      sharer,
		location:    time.Local,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// writeServiceError maps controller errors onto status codes.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, core.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, core.ErrAttachmentEncoding):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrChatNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Printf("Error trying to %s: %v", action, err)
		http.Error(w, "Failed to "+action, http.StatusInternalServerError)
	}
}

// Models and settings

func (h *APIHandler) ListModelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Models)
}

func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

func (h *APIHandler) SaveSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req store.Settings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.DefaultModel == "" {
		http.Error(w, "Default model is required", http.StatusBadRequest)
		return
	}
	h.settings.Save(req)
	writeJSON(w, http.StatusOK, h.settings.Get())
}

func (h *APIHandler) AddPersonaHandler(w http.ResponseWriter, r *http.Request) {
	var req store.Persona
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.SystemPrompt) == "" {
		http.Error(w, "Persona name and system prompt are required", http.StatusBadRequest)
		return
	}
	h.settings.AddPersona(req)
	writeJSON(w, http.StatusCreated, h.settings.Get())
}

type SelectPersonaRequest struct {
	Name string `json:"name"`
}

func (h *APIHandler) SelectPersonaHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectPersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !h.settings.SelectPersona(req.Name) {
		http.Error(w, "Persona not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.settings.Get())
}

// Chats

type ChatSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAt    int64  `json:"createdAt"`
	ModelID      string `json:"modelId"`
	MessageCount int    `json:"messageCount"`
	Active       bool   `json:"active"`
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats := h.chatService.SearchChats(r.URL.Query().Get("q"))
	activeID := ""
	if active := h.chatService.ActiveChat(); active != nil {
		activeID = active.ID
	}

	summaries := make([]ChatSummary, len(chats))
	for i, c := range chats {
		summaries[i] = ChatSummary{
			ID:           c.ID,
			Title:        c.Title,
			CreatedAt:    c.CreatedAt,
			ModelID:      c.ModelID,
			MessageCount: len(c.Messages),
			Active:       c.ID == activeID,
		}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.chatService.CreateChat())
}

func (h *APIHandler) GetActiveChatHandler(w http.ResponseWriter, r *http.Request) {
	chat := h.chatService.ActiveChat()
	if chat == nil {
		http.Error(w, "No active chat", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

type SelectChatRequest struct {
	ID string `json:"id"`
}

func (h *APIHandler) SelectChatHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !h.chatService.SelectChat(req.ID) {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.chatService.ActiveChat())
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	chat := h.chatService.GetChat(chi.URLParam(r, "chatID"))
	if chat == nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	if !h.chatService.DeleteChat(chi.URLParam(r, "chatID")) {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ExportChatHandler(w http.ResponseWriter, r *http.Request) {
	chat := h.chatService.GetChat(chi.URLParam(r, "chatID"))
	if chat == nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": export.Filename(chat.Title)}))
	w.Write([]byte(export.Text(chat, h.location)))
}

func (h *APIHandler) ShareChatHandler(w http.ResponseWriter, r *http.Request) {
	chat := h.chatService.GetChat(chi.URLParam(r, "chatID"))
	if chat == nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.sharer.Share(chat))
}

// Composer

func (h *APIHandler) GetDraftHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chatService.Draft())
}

type DraftRequest struct {
	Text string `json:"text"`
}

func (h *APIHandler) UpdateDraftHandler(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.chatService.SetDraftText(req.Text)
	writeJSON(w, http.StatusOK, h.chatService.Draft())
}

func (h *APIHandler) AddDraftAttachmentsHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "Invalid multipart body: "+err.Error(), http.StatusBadRequest)
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "No files provided", http.StatusBadRequest)
		return
	}
	for _, fh := range files {
		upload, err := bufferedUpload(fh)
		if err != nil {
			http.Error(w, "Failed to read "+fh.Filename+": "+err.Error(), http.StatusBadRequest)
			return
		}
		h.chatService.AddDraftAttachment(upload)
	}
	writeJSON(w, http.StatusCreated, h.chatService.Draft())
}

func (h *APIHandler) RemoveDraftAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || !h.chatService.RemoveDraftAttachment(index) {
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.chatService.Draft())
}

// bufferedUpload reads the part now; multipart temp files do not outlive the
// request, the draft may.
func bufferedUpload(fh *multipart.FileHeader) (core.Upload, error) {
	f, err := fh.Open()
	if err != nil {
		return core.Upload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return core.Upload{}, err
	}
	return core.BytesUpload(fh.Filename, fh.Header.Get("Content-Type"), data), nil
}

// Sending

type PostMessageRequest struct {
	Text string `json:"text"`
}

// messageFromRequest reads text and files carried by the request body. ok is
// false when the body carries nothing, in which case the draft is sent.
func messageFromRequest(r *http.Request) (req core.SendRequest, ok bool, err error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return req, false, err
		}
		req.Text = r.FormValue("text")
		for _, fh := range r.MultipartForm.File["files"] {
			upload, err := bufferedUpload(fh)
			if err != nil {
				return req, false, err
			}
			req.Attachments = append(req.Attachments, upload)
		}
	case "application/json":
		var body PostMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, false, err
		}
		req.Text = body.Text
	}
	return req, req.Text != "" || len(req.Attachments) > 0, nil
}

type MessageDoneEvent struct {
	Chat   *store.Chat `json:"chat"`
	Failed bool        `json:"failed"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	sendReq, carried, err := messageFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	stream := newEventStream(w)
	sendReq.OnChunk = func(chunk string) {
		if err := stream.send("chunk", map[string]string{"text": chunk}); err != nil {
			log.Printf("Error writing stream chunk: %v", err)
		}
	}

	// A message carried by the body is sent as is, so concurrent posts never
	// meet in the shared draft; an empty body sends the draft.
	var exchange *core.Exchange
	if carried {
		exchange, err = h.chatService.Send(r.Context(), sendReq)
	} else {
		exchange, err = h.chatService.SendDraft(r.Context(), sendReq.OnChunk)
	}
	if err != nil {
		if stream.started {
			stream.send("error", map[string]string{"error": err.Error()})
			return
		}
		writeServiceError(w, err, "post message")
		return
	}
	if exchange == nil {
		http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
		return
	}

	stream.send("done", MessageDoneEvent{
		Chat:   h.chatService.GetChat(exchange.ChatID),
		Failed: exchange.Failed,
	})
}

func (h *APIHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.chatService.Cancel()})
}

type StreamStatus struct {
	State   string `json:"state"`
	Partial string `json:"partial"`
}

func (h *APIHandler) StreamStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StreamStatus{
		State:   h.chatService.State().String(),
		Partial: h.chatService.Partial(),
	})
}

type GenerateImageRequest struct {
	Prompt string `json:"prompt"`
}

func (h *APIHandler) GenerateImageHandler(w http.ResponseWriter, r *http.Request) {
	var req GenerateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	exchange, err := h.chatService.GenerateImage(r.Context(), req.Prompt)
	if err != nil {
		writeServiceError(w, err, "generate image")
		return
	}
	if exchange == nil {
		http.Error(w, "Prompt cannot be empty", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, MessageDoneEvent{
		Chat:   h.chatService.GetChat(exchange.ChatID),
		Failed: exchange.Failed,
	})
}
