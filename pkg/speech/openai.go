package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// WhisperConfig defines configuration for the OpenAI Whisper transcriber.
type WhisperConfig struct {
	APIKey string
	Model  string
	Logger zerolog.Logger
}

// WhisperTranscriber implements Transcriber using the OpenAI audio API.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewWhisperTranscriber builds a Whisper-backed transcriber.
func NewWhisperTranscriber(cfg WhisperConfig) (*WhisperTranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}

	return &WhisperTranscriber{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: cfg.Logger.With().Str("component", "whisper_transcriber").Logger(),
	}, nil
}

// Transcribe sends the audio to the Whisper endpoint. Silence comes back as an
// empty transcript, not an error.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, language, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	request := openai.AudioRequest{
		Model:    t.model,
		Reader:   bytes.NewReader(audio),
		FilePath: "answer" + extensionForMIME(mimeType),
		Language: language,
	}

	resp, err := t.client.CreateTranscription(ctx, request)
	if err != nil {
		return "", fmt.Errorf("whisper transcribe: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

func extensionForMIME(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return ".m4a"
	default:
		return ".mp3"
	}
}
