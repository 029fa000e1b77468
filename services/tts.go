package services

import (
	"context"
	"errors"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

var ErrEmptyText = errors.New("text is empty")

// Narrator chuyển script thành audio MP3
type Narrator interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Name() string
	LanguageCode() string
}

// GoogleNarrator dùng Google Cloud Text-to-Speech
type GoogleNarrator struct {
	credentials string
	voice       string
	language    string
	rate        float64
}

// credentials: đường dẫn file JSON hoặc nội dung JSON
func NewGoogleNarrator(credentials, voice string, rate float64) (*GoogleNarrator, error) {
	if credentials == "" {
		return nil, errors.New("GOOGLE_CREDENTIALS_JSON environment variable is not set")
	}
	if voice == "" {
		voice = "en-US-Chirp3-HD-Puck"
	}
	if rate <= 0 {
		rate = 1.0
	}
	lang := "en-US"
	if parts := strings.SplitN(voice, "-", 3); len(parts) >= 2 {
		lang = parts[0] + "-" + parts[1]
	}
	return &GoogleNarrator{credentials: credentials, voice: voice, language: lang, rate: rate}, nil
}

func (g *GoogleNarrator) Name() string { return "google" }

func (g *GoogleNarrator) LanguageCode() string {
	return strings.SplitN(g.language, "-", 2)[0]
}

func (g *GoogleNarrator) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	credOpt := option.WithCredentialsFile(g.credentials)
	if strings.HasPrefix(strings.TrimSpace(g.credentials), "{") {
		credOpt = option.WithCredentialsJSON([]byte(g.credentials))
	}
	client, err := texttospeech.NewClient(ctx, credOpt)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	// Google giới hạn 5000 byte mỗi request
	chunks := splitTextToChunksByByte(text, 4500)
	var allAudio []byte
	for _, chunk := range chunks {
		req := &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
			},
			Voice: &texttospeechpb.VoiceSelectionParams{
				LanguageCode: g.language,
				Name:         g.voice,
			},
			AudioConfig: &texttospeechpb.AudioConfig{
				AudioEncoding: texttospeechpb.AudioEncoding_MP3,
				SpeakingRate:  g.rate,
			},
		}
		resp, err := client.SynthesizeSpeech(ctx, req)
		if err != nil {
			return nil, &ProviderError{Provider: "google-tts", Message: err.Error()}
		}
		allAudio = append(allAudio, resp.AudioContent...)
	}
	return allAudio, nil
}

// splitTextToChunksByByte chia text theo giới hạn byte, ưu tiên cắt ở dấu câu
func splitTextToChunksByByte(text string, maxBytes int) []string {
	var chunks []string
	remaining := text

	for len(remaining) > 0 {
		if len(remaining) <= maxBytes {
			chunks = append(chunks, remaining)
			break
		}

		cutPos := maxBytes
		for i := cutPos; i > 0; i-- {
			if remaining[i-1] == '.' || remaining[i-1] == '!' || remaining[i-1] == '?' || remaining[i-1] == '\n' {
				cutPos = i
				break
			}
		}
		// không cắt giữa ký tự UTF-8
		for cutPos < len(remaining) && (remaining[cutPos]&0xC0) == 0x80 {
			cutPos++
		}

		chunks = append(chunks, remaining[:cutPos])
		remaining = remaining[cutPos:]
	}
	return chunks
}
