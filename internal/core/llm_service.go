package core

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"gwi.com/aether-chat/internal/store"
)

// Placeholder replayed for past turns whose text is empty (attachment-only
// user turns, generated images, empty replies). Gemini rejects empty parts.
const omittedContentPlaceholder = "[attachment omitted]"

var _ Backend = (*LLMService)(nil)

type LLMService struct {
	client     *genai.Client
	imageModel string
}

func NewLLMService(ctx context.Context, apiKey, imageModel string) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LLMService{
		client:     client,
		imageModel: imageModel,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

func (s *LLMService) StreamChat(ctx context.Context, req ChatRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if len(req.History) == 0 {
			yield("", fmt.Errorf("prompt history is empty for chat completion"))
			return
		}
		last := req.History[len(req.History)-1]
		if last.Role != store.RoleUser {
			yield("", fmt.Errorf("last message in history is not from 'user', cannot proceed with chat completion"))
			return
		}

		model := s.client.GenerativeModel(req.Model)
		if req.SystemInstruction != "" {
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(req.SystemInstruction)},
			}
		}

		chatSession := model.StartChat()
		chatSession.History = historyContents(req.History[:len(req.History)-1])

		parts := turnParts(last.Text, req.Attachments)
		it := chatSession.SendMessageStream(ctx, parts...)
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("gemini chat SendMessageStream failed: %w", err))
				return
			}
			if text := responseText(resp); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func (s *LLMService) GenerateImage(ctx context.Context, prompt string) (*store.Image, error) {
	model := s.client.GenerativeModel(s.imageModel)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini image generation request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, ErrNoImage
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
			return &store.Image{MIMEType: blob.MIMEType, Data: blob.Data}, nil
		}
	}
	return nil, ErrNoImage
}

func historyContents(turns []Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		text := t.Text
		if text == "" {
			text = omittedContentPlaceholder
		}
		history = append(history, &genai.Content{
			Role:  string(t.Role),
			Parts: []genai.Part{genai.Text(text)},
		})
	}
	return history
}

func turnParts(text string, attachments []Attachment) []genai.Part {
	parts := make([]genai.Part, 0, len(attachments)+1)
	if text != "" {
		parts = append(parts, genai.Text(text))
	}
	for _, a := range attachments {
		parts = append(parts, genai.Blob{MIMEType: a.MIMEType, Data: a.Data})
	}
	return parts
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text += string(txt)
		}
	}
	return text
}
