package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string

	JWTSecret string

	OpenAIAPIKey string
	OpenAIModel  string

	SpeechProvider string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string

	NATSURL     string
	NATSSubject string

	SessionTTL        time.Duration
	GenerationLockTTL time.Duration
	ReferenceCacheTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("MEDVOX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "MedVox API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("speech.provider", "openai")
	v.SetDefault("cloudinary.folder", "medvox/oral-audio")
	v.SetDefault("nats.subject", "medvox.oral.sessions")
	v.SetDefault("session.ttl", "15m")
	v.SetDefault("generation.lock_ttl", "30s")
	v.SetDefault("reference.cache_ttl", "1h")

	sessionTTL, err := parseDuration(v, "session.ttl", 15*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid session ttl: %w", err)
	}

	lockTTL, err := parseDuration(v, "generation.lock_ttl", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid generation lock ttl: %w", err)
	}

	referenceTTL, err := parseDuration(v, "reference.cache_ttl", time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("invalid reference cache ttl: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		OpenAIModel:         v.GetString("openai.model"),
		SpeechProvider:      strings.ToLower(v.GetString("speech.provider")),
		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    v.GetString("cloudinary.folder"),
		NATSURL:             v.GetString("nats.url"),
		NATSSubject:         v.GetString("nats.subject"),
		SessionTTL:          sessionTTL,
		GenerationLockTTL:   lockTTL,
		ReferenceCacheTTL:   referenceTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}

	if parsed <= 0 {
		return fallback, nil
	}

	return parsed, nil
}
