package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medvox",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of AI requests",
	}, []string{"operation", "model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medvox",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed AI requests",
	}, []string{"operation", "model"})
)

const evaluationSchemaJSON = `{
  "type": "object",
  "required": ["score", "coverage", "missed_points", "summary"],
  "properties": {
    "score": {"type": "number"},
    "coverage": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["topic", "status"],
        "properties": {
          "topic": {"type": "string"},
          "status": {"type": "string", "enum": ["full", "partial", "missing"]}
        }
      }
    },
    "missed_points": {"type": "array", "items": {"type": "string"}},
    "summary": {"type": "string"}
  }
}`

var evaluationSchema = jsonschema.MustCompileString("evaluation.json", evaluationSchemaJSON)

// OpenAIConfig defines configuration options for the OpenAI client.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIClient implements Generator and Evaluator against the OpenAI chat
// completion API.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIClient builds a new client using the provided configuration.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	tracer := otel.Tracer("github.com/medvox/medvox-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAIClient{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Generate produces a canonical reference answer for the question.
func (c *OpenAIClient) Generate(parent context.Context, language, questionText string) (string, error) {
	ctx, span := c.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
		attribute.String("language", language),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: generatorSystemPrompt(language),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: questionText,
			},
		},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues("generate", c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues("generate", c.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		aiFailures.WithLabelValues("generate", c.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		aiFailures.WithLabelValues("generate", c.cfg.Model).Inc()
		return "", fmt.Errorf("empty answer returned from openai")
	}

	return content, nil
}

// Evaluate grades the transcript against the reference answer and returns a
// structured 0-10 verdict.
func (c *OpenAIClient) Evaluate(parent context.Context, input EvaluationInput) (Evaluation, error) {
	ctx, span := c.tracer.Start(parent, "openai.evaluate", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
		attribute.String("language", input.Language),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: evaluatorSystemPrompt(input.Language),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildEvaluationPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues("evaluate", c.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues("evaluate", c.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Evaluation{}, fmt.Errorf("openai evaluate: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		aiFailures.WithLabelValues("evaluate", c.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Evaluation{}, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := parseEvaluationResponse(content)
	if err != nil {
		aiFailures.WithLabelValues("evaluate", c.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Evaluation{}, err
	}

	return result, nil
}

func generatorSystemPrompt(language string) string {
	builder := strings.Builder{}
	builder.WriteString("You are a senior medical examiner preparing canonical model answers for an oral certification exam. ")
	builder.WriteString("Write a complete, accurate reference answer for the question the user provides. ")
	builder.WriteString("Cover every point an examinee would be expected to mention, in concise prose. ")
	builder.WriteString(fmt.Sprintf("Answer in the language with code %q.", language))
	return builder.String()
}

func evaluatorSystemPrompt(language string) string {
	builder := strings.Builder{}
	builder.WriteString("You are an oral exam evaluator. Compare the examinee's spoken answer transcript to the reference answer. ")
	builder.WriteString("An empty transcript means no answer was given and scores 0. ")
	builder.WriteString(fmt.Sprintf("Write feedback in the language with code %q. ", language))
	builder.WriteString("Respond ONLY with a JSON object with these fields:\n")
	builder.WriteString(`{"score": <integer 0 to 10>, "coverage": [{"topic": "<topic>", "status": "full"|"partial"|"missing"}], "missed_points": ["<point>"], "summary": "<brief summary>"}`)
	return builder.String()
}

func buildEvaluationPrompt(input EvaluationInput) string {
	builder := strings.Builder{}
	builder.WriteString("## Question\n")
	builder.WriteString(input.QuestionText)
	builder.WriteString("\n\n## Reference Answer\n")
	builder.WriteString(input.ReferenceAnswer)
	builder.WriteString("\n\n## Examinee Transcript\n")
	if strings.TrimSpace(input.Transcript) == "" {
		builder.WriteString("(no answer given)")
	} else {
		builder.WriteString(input.Transcript)
	}
	builder.WriteString("\n\nReturn JSON.")
	return builder.String()
}

func parseEvaluationResponse(content string) (Evaluation, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Evaluation{}, fmt.Errorf("parse evaluation json: %w", err)
	}

	if err := evaluationSchema.Validate(raw); err != nil {
		return Evaluation{}, fmt.Errorf("evaluation schema: %w", err)
	}

	var data struct {
		Score        float64        `json:"score"`
		Coverage     []CoverageItem `json:"coverage"`
		MissedPoints []string       `json:"missed_points"`
		Summary      string         `json:"summary"`
	}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return Evaluation{}, fmt.Errorf("parse evaluation json: %w", err)
	}

	score := int(data.Score)
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}

	if data.Coverage == nil {
		data.Coverage = []CoverageItem{}
	}
	if data.MissedPoints == nil {
		data.MissedPoints = []string{}
	}

	return Evaluation{
		Score:        score,
		Coverage:     data.Coverage,
		MissedPoints: data.MissedPoints,
		Summary:      data.Summary,
	}, nil
}
