package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GoogleTranscriber implements Transcriber using the Google Cloud
// Speech-to-Text API. Credentials come from the ambient GCP environment.
type GoogleTranscriber struct {
	client *speech.Client
	logger zerolog.Logger
}

// NewGoogleTranscriber builds a Cloud Speech backed transcriber.
func NewGoogleTranscriber(ctx context.Context, logger zerolog.Logger) (*GoogleTranscriber, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &GoogleTranscriber{
		client: client,
		logger: logger.With().Str("component", "google_transcriber").Logger(),
	}, nil
}

// Close releases the underlying gRPC connection.
func (t *GoogleTranscriber) Close() error {
	return t.client.Close()
}

// Transcribe runs synchronous recognition on the audio blob. An answer under a
// minute fits the synchronous API. No recognized speech yields an empty
// transcript with a nil error.
func (t *GoogleTranscriber) Transcribe(ctx context.Context, audio []byte, language, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encodingForMIME(mimeType),
			LanguageCode:               languageCode(language),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	resp, err := t.client.Recognize(ctx, req)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.InvalidArgument {
			t.logger.Warn().Str("mime_type", mimeType).Msg("audio rejected by speech api")
		}
		return "", fmt.Errorf("speech recognize: %w", err)
	}

	parts := make([]string, 0, len(resp.GetResults()))
	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(alternatives[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

func encodingForMIME(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	switch {
	case strings.Contains(mimeType, "ogg"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(mimeType, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(mimeType, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(mimeType, "flac"):
		return speechpb.RecognitionConfig_FLAC
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func languageCode(language string) string {
	switch strings.ToLower(language) {
	case "", "en":
		return "en-US"
	case "ru":
		return "ru-RU"
	case "uz":
		return "uz-UZ"
	case "kk":
		return "kk-KZ"
	default:
		return language
	}
}
