package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gwi.com/aether-chat/internal/api"
	"gwi.com/aether-chat/internal/config"
	"gwi.com/aether-chat/internal/core"
	"gwi.com/aether-chat/internal/export"
	"gwi.com/aether-chat/internal/persist"
	"gwi.com/aether-chat/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.Debug() {
		log.Println("Service starting in DEBUG mode")
	}

	// Command line flag for exporting a stored chat
	exportChatFlag := flag.String("export", "", "Print the text export of the chat with this id and exit")
	flag.Parse()

	// Initialize local storage
	kv, err := store.NewSQLiteKV(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer kv.Close()

	// Rehydrate chats and settings, then write every change back
	defaults := store.DefaultSettings(config.AppConfig.DefaultModel)
	chats := store.NewConversationStore(config.AppConfig.TitleLength)
	settings := store.NewSettingsStore(defaults)
	syncer := persist.NewSync(kv)
	syncer.Restore(context.Background(), chats, settings, defaults)

	if *exportChatFlag != "" {
		chat := chats.Chat(*exportChatFlag)
		if chat == nil {
			log.Fatalf("Chat %s not found", *exportChatFlag)
		}
		fmt.Print(export.Text(chat, time.Local))
		// kv.Close() is skipped by os.Exit; nothing was written.
		os.Exit(0)
	}

	syncer.Attach(chats, settings)

	// Initialize LLM service
	llmService, err := core.NewLLMService(context.Background(), config.AppConfig.GeminiAPIKey, config.AppConfig.ImageModel)
	if err != nil {
		log.Fatalf("Failed to initialize LLM service: %v", err)
	}
	defer llmService.Close()

	// Initialize Chat service
	chatService := core.NewChatService(chats, settings, llmService)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, settings, export.NewSharer())
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: replies stream for as long as the model keeps talking.
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// An in-flight reply is cancelled so it lands as an error message
	// before the stores stop being written.
	if chatService.Cancel() {
		log.Println("Cancelled in-flight reply")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
