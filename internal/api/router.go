package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
		r.Get("/models", apiHandler.ListModelsHandler)

		// Settings and personas
		r.Get("/settings", apiHandler.GetSettingsHandler)
		r.Put("/settings", apiHandler.SaveSettingsHandler)
		r.Post("/settings/personas", apiHandler.AddPersonaHandler)
		r.Put("/settings/persona", apiHandler.SelectPersonaHandler)

		// Chat routes
		r.Get("/chats", apiHandler.ListChatsHandler)
		r.Post("/chats", apiHandler.CreateChatHandler)
		r.Get("/chats/active", apiHandler.GetActiveChatHandler)
		r.Put("/chats/active", apiHandler.SelectChatHandler)
		r.Get("/chats/{chatID}", apiHandler.GetChatDetailsHandler)
		r.Delete("/chats/{chatID}", apiHandler.DeleteChatHandler)
		r.Get("/chats/{chatID}/export", apiHandler.ExportChatHandler)
		r.Post("/chats/{chatID}/share", apiHandler.ShareChatHandler)

		// Composer
		r.Get("/draft", apiHandler.GetDraftHandler)
		r.Put("/draft", apiHandler.UpdateDraftHandler)
		r.Post("/draft/attachments", apiHandler.AddDraftAttachmentsHandler)
		r.Delete("/draft/attachments/{index}", apiHandler.RemoveDraftAttachmentHandler)

		// Sending and streaming
		r.Post("/messages", apiHandler.PostMessageHandler)
		r.Post("/cancel", apiHandler.CancelHandler)
		r.Get("/stream", apiHandler.StreamStatusHandler)
		r.Post("/images", apiHandler.GenerateImageHandler)
	})

	return r
}
