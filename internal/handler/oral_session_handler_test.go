package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medvox/medvox-api/internal/cache"
	"github.com/medvox/medvox-api/internal/config"
	"github.com/medvox/medvox-api/internal/handler"
	"github.com/medvox/medvox-api/internal/models"
	"github.com/medvox/medvox-api/internal/repository"
	"github.com/medvox/medvox-api/internal/router"
	"github.com/medvox/medvox-api/internal/service"
	"github.com/medvox/medvox-api/pkg/ai"
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, language, questionText string) (string, error) {
	return "reference answer for " + questionText, nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(_ context.Context, _ []byte, _, _ string) (string, error) {
	return "spoken answer", nil
}

type stubEvaluator struct{}

func (stubEvaluator) Evaluate(_ context.Context, _ ai.EvaluationInput) (ai.Evaluation, error) {
	return ai.Evaluation{
		Score:        6,
		Coverage:     []ai.CoverageItem{{Topic: "diagnosis", Status: ai.CoverageFull}},
		MissedPoints: []string{"differential diagnosis"},
		Summary:      "solid answer",
	}, nil
}

func setupOralApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Direction{}, &models.Exam{}, &models.Question{},
		&models.OralExamSession{}, &models.OralExamAnswer{},
		&models.DirectionAnswer{}, &models.QuestionReferenceAnswer{},
		&models.Subscription{}, &models.AIUsageLog{},
	))

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	logger := zerolog.New(io.Discard)
	store := cache.NewStore(redis.NewClient(&redis.Options{Addr: mini.Addr()}), logger)
	validate := validator.New(validator.WithRequiredStructEnabled())

	questionRepo := repository.NewQuestionRepository(db)
	resolver := service.NewReferenceAnswerService(
		questionRepo,
		repository.NewReferenceAnswerRepository(db),
		store, stubGenerator{}, 30*time.Second, time.Hour, logger,
	)

	sessionService := service.NewOralSessionService(service.OralSessionDeps{
		Sessions:      repository.NewOralSessionRepository(db),
		Questions:     questionRepo,
		Subscriptions: repository.NewSubscriptionRepository(db),
		Usage:         repository.NewUsageLogRepository(db),
		Store:         store,
		Resolver:      resolver,
		Transcriber:   stubTranscriber{},
		Evaluator:     stubEvaluator{},
		SessionTTL:    15 * time.Minute,
	}, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		OralSessionHandler: handler.NewOralSessionHandler(sessionService, validate, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			c.Locals("user_id", uint(1))
			c.Locals("is_admin", false)
			return c.Next()
		},
	})

	return app, db
}

func seedOralExam(t *testing.T, db *gorm.DB, questionCount int) models.Exam {
	t.Helper()

	direction := models.Direction{Name: "Surgery"}
	require.NoError(t, db.Create(&direction).Error)

	exam := models.Exam{Title: "Surgery Board", Language: "en", DirectionID: direction.ID}
	require.NoError(t, db.Create(&exam).Error)

	for i := 0; i < questionCount; i++ {
		require.NoError(t, db.Create(&models.Question{
			ExamID: exam.ID,
			Type:   models.QuestionTypeOral,
			Text:   fmt.Sprintf("Question %d", i+1),
		}).Error)
	}

	now := time.Now()
	require.NoError(t, db.Create(&models.Subscription{
		UserID:   1,
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(time.Hour),
	}).Error)

	return exam
}

// wavAudio builds a minimal RIFF/WAVE payload large enough to be treated as a
// real recording.
func wavAudio() []byte {
	payload := make([]byte, 2048)
	copy(payload, "RIFF")
	copy(payload[8:], "WAVEfmt ")
	return payload
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, apiEnvelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var envelope apiEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	resp.Body.Close()

	return resp, envelope
}

func startSession(t *testing.T, app *fiber.App, examID uint) (string, []uint) {
	t.Helper()

	resp, envelope := doJSON(t, app, http.MethodPost, "/api/v1/oral/sessions", map[string]uint{"exam_id": examID})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var data struct {
		SessionID string `json:"session_id"`
		Questions []struct {
			ID uint `json:"id"`
		} `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &data))

	ids := make([]uint, 0, len(data.Questions))
	for _, q := range data.Questions {
		ids = append(ids, q.ID)
	}

	return data.SessionID, ids
}

func TestOralSessionLifecycleOverHTTP(t *testing.T) {
	app, db := setupOralApp(t)
	exam := seedOralExam(t, db, models.QuestionsPerSession)

	sessionID, questionIDs := startSession(t, app, exam.ID)
	require.Len(t, questionIDs, models.QuestionsPerSession)

	// Submit one answer as multipart audio.
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("question_id", strconv.FormatUint(uint64(questionIDs[0]), 10)))
	part, err := writer.CreateFormFile("audio", "answer.wav")
	require.NoError(t, err)
	_, err = part.Write(wavAudio())
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/oral/sessions/"+sessionID+"/answers", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var envelope apiEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	resp.Body.Close()

	var answer struct {
		Transcript string `json:"transcript"`
		Score      int    `json:"score"`
		MaxScore   int    `json:"max_score"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &answer))
	require.Equal(t, "spoken answer", answer.Transcript)
	require.Equal(t, 6, answer.Score)
	require.Equal(t, models.PerQuestionMaxScore, answer.MaxScore)

	// Status shows progress.
	resp, envelope = doJSON(t, app, http.MethodGet, "/api/v1/oral/sessions/"+sessionID+"/status", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var status struct {
		Status        string `json:"status"`
		AnsweredCount int    `json:"answered_count"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &status))
	require.Equal(t, models.SessionStatusActive, status.Status)
	require.Equal(t, 1, status.AnsweredCount)

	// Finish returns the aggregate.
	resp, envelope = doJSON(t, app, http.MethodPost, "/api/v1/oral/sessions/"+sessionID+"/finish", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var finish struct {
		Score    int    `json:"score"`
		MaxScore int    `json:"max_score"`
		Passed   bool   `json:"passed"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &finish))
	require.Equal(t, 6, finish.Score)
	require.Equal(t, models.SessionMaxScore, finish.MaxScore)
	require.False(t, finish.Passed)
	require.Equal(t, models.SessionStatusFinished, finish.Status)
}

func TestStartSessionConflictsMapToStatusCodes(t *testing.T) {
	app, db := setupOralApp(t)

	// No subscription seeded yet.
	direction := models.Direction{Name: "Pediatrics"}
	require.NoError(t, db.Create(&direction).Error)
	exam := models.Exam{Title: "Pediatrics Board", Language: "en", DirectionID: direction.ID}
	require.NoError(t, db.Create(&exam).Error)

	resp, envelope := doJSON(t, app, http.MethodPost, "/api/v1/oral/sessions", map[string]uint{"exam_id": exam.ID})
	require.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
	require.Equal(t, service.ReasonSubscriptionRequired, envelope.Code)

	// Subscribed, but the exam has too few oral questions.
	now := time.Now()
	require.NoError(t, db.Create(&models.Subscription{
		UserID:   1,
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(time.Hour),
	}).Error)

	resp, envelope = doJSON(t, app, http.MethodPost, "/api/v1/oral/sessions", map[string]uint{"exam_id": exam.ID})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, service.ReasonNotEnoughQuestions, envelope.Code)
}

func TestSubmitAnswerRejectsNonAudioUpload(t *testing.T) {
	app, db := setupOralApp(t)
	exam := seedOralExam(t, db, models.QuestionsPerSession)
	sessionID, questionIDs := startSession(t, app, exam.ID)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("question_id", strconv.FormatUint(uint64(questionIDs[0]), 10)))
	part, err := writer.CreateFormFile("audio", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("this is plain text, not a recording"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/oral/sessions/"+sessionID+"/answers", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSessionStatusUnknownIDReturnsNotFound(t *testing.T) {
	app, _ := setupOralApp(t)

	resp, envelope := doJSON(t, app, http.MethodGet, "/api/v1/oral/sessions/does-not-exist/status", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, service.ReasonSessionNotFound, envelope.Code)
}
