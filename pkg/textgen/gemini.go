package textgen

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// Gemini generates comment text through the Google GenAI API.
type Gemini struct {
	client *genai.Client
	model  string
}

// GeminiConfig holds configuration for the Gemini generator.
type GeminiConfig struct {
	APIKey string // falls back to GOOGLE_API_KEY
	Model  string // e.g. "gemini-3-pro"
}

// NewGemini creates a Gemini-backed generator.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-3-pro"
	}

	return &Gemini{client: client, model: model}, nil
}

// Generate renders the request into a prompt and asks the model for the
// comment text.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	prompt := BuildPrompt(req)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response from gemini")
	}

	var result string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			result += part.Text
		}
	}

	result = strings.TrimSpace(result)
	if result == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	return result, nil
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}
