package speech

import "context"

// Transcriber converts submitted audio to text. An empty transcript with a nil
// error means no speech was detected; a non-nil error means the service itself
// failed and the caller decides how to degrade.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language, mimeType string) (string, error)
}
