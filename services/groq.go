package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// GroqScriptGenerator gọi Groq qua API tương thích OpenAI
type GroqScriptGenerator struct {
	client *openai.Client
	model  string
}

func NewGroqScriptGenerator(apiKey, baseURL, model string) (*GroqScriptGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("missing GROQ_API_KEY")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = "llama-3.1-8b-instant"
	}
	return &GroqScriptGenerator{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (g *GroqScriptGenerator) GenerateScript(ctx context.Context, req ScriptRequest) (*ThreadScript, error) {
	content, err := g.complete(ctx, scriptSystemPrompt(), scriptUserPrompt(req))
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, &ScriptValidationError{}
	}
	return ParseThreadScript(content, req)
}

// GenerateText dùng cho làm sạch tài liệu nguồn
func (g *GroqScriptGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return g.complete(ctx, "", prompt)
}

func (g *GroqScriptGenerator) complete(ctx context.Context, system, user string) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: 0.3,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &ProviderError{Provider: "groq", Code: codeString(apiErr.Code), Message: apiErr.Message, Status: apiErr.HTTPStatusCode}
		}
		return "", &ProviderError{Provider: "groq", Message: err.Error()}
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func codeString(code any) string {
	if code == nil {
		return ""
	}
	return fmt.Sprint(code)
}
