package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	defaultElevenLabsVoice   = "21m00Tcm4TlvDq8ikWAM"
	defaultElevenLabsModel   = "eleven_turbo_v2_5"
)

type ElevenLabsNarrator struct {
	baseURL string
	apiKey  string
	voiceID string
	model   string
	http    *http.Client
}

func NewElevenLabsNarrator(apiKey, voiceID, model string, httpClient *http.Client) (*ElevenLabsNarrator, error) {
	if apiKey == "" {
		return nil, errors.New("missing ELEVENLABS_API_KEY")
	}
	if voiceID == "" {
		voiceID = defaultElevenLabsVoice
	}
	if model == "" {
		model = defaultElevenLabsModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ElevenLabsNarrator{
		baseURL: defaultElevenLabsBaseURL,
		apiKey:  apiKey,
		voiceID: voiceID,
		model:   model,
		http:    httpClient,
	}, nil
}

// WithBaseURL dùng cho test với httptest server
func (n *ElevenLabsNarrator) WithBaseURL(u string) *ElevenLabsNarrator {
	n.baseURL = strings.TrimRight(u, "/")
	return n
}

func (n *ElevenLabsNarrator) Name() string         { return "elevenlabs" }
func (n *ElevenLabsNarrator) LanguageCode() string { return "en" }

func (n *ElevenLabsNarrator) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	body, err := json.Marshal(map[string]interface{}{
		"text":     text,
		"model_id": n.model,
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.5,
		},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", n.baseURL, n.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", n.apiKey)

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{
			Provider: "elevenlabs",
			Message:  fmt.Sprintf("TTS API request failed with status %d: %s", resp.StatusCode, truncate(string(msg), 200)),
			Status:   resp.StatusCode,
		}
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, &ProviderError{Provider: "elevenlabs", Message: "empty audio"}
	}
	return audio, nil
}
