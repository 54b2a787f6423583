package services

import (
	"context"

	"github.com/jwebster45206/quantum-theater/pkg/chat"
)

// LLMService defines the interface for interacting with the narrator model.
type LLMService interface {
	// InitModel prepares the model on startup
	InitModel(ctx context.Context, modelName string) error

	// GenerateResponse generates narration for the given prompt messages
	GenerateResponse(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
}
