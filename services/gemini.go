package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiScriptGenerator struct {
	apiKey string
	model  string
}

func NewGeminiScriptGenerator(apiKey, model string) (*GeminiScriptGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("missing GEMINI_API_KEY")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiScriptGenerator{apiKey: apiKey, model: model}, nil
}

func (g *GeminiScriptGenerator) GenerateScript(ctx context.Context, req ScriptRequest) (*ThreadScript, error) {
	content, err := g.generate(ctx, scriptSystemPrompt(), scriptUserPrompt(req), true)
	if err != nil {
		return nil, err
	}
	return ParseThreadScript(content, req)
}

// GenerateText: prompt tự do, dùng cho bước làm sạch nguồn tài liệu
func (g *GeminiScriptGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return g.generate(ctx, "", prompt, false)
}

func (g *GeminiScriptGenerator) generate(ctx context.Context, system, prompt string, jsonOut bool) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	model.SetTemperature(0.3)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if jsonOut {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", &ProviderError{Provider: "gemini", Message: err.Error()}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &ProviderError{Provider: "gemini", Message: "empty response"}
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}
