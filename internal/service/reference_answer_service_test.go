package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medvox/medvox-api/internal/cache"
	"github.com/medvox/medvox-api/internal/models"
	"github.com/medvox/medvox-api/internal/repository"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	failErr error
}

func (g *fakeGenerator) Generate(_ context.Context, language, questionText string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	if g.failErr != nil {
		return "", g.failErr
	}

	return fmt.Sprintf("reference[%s] %s", language, questionText), nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newResolverTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Direction{}, &models.Exam{}, &models.Question{},
		&models.DirectionAnswer{}, &models.QuestionReferenceAnswer{},
	))

	return db
}

func seedExam(t *testing.T, db *gorm.DB, language string, questionTexts ...string) []models.Question {
	t.Helper()

	direction := models.Direction{Name: "Cardiology"}
	require.NoError(t, db.Create(&direction).Error)

	exam := models.Exam{Title: "Cardiology Board", Language: language, DirectionID: direction.ID}
	require.NoError(t, db.Create(&exam).Error)

	questions := make([]models.Question, 0, len(questionTexts))
	for _, text := range questionTexts {
		question := models.Question{ExamID: exam.ID, Type: models.QuestionTypeOral, Text: text}
		require.NoError(t, db.Create(&question).Error)
		questions = append(questions, question)
	}

	return questions
}

func newResolver(t *testing.T, db *gorm.DB, generator *fakeGenerator) (ReferenceAnswerService, *miniredis.Miniredis) {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	store := cache.NewStore(client, zerolog.Nop())

	resolver := NewReferenceAnswerService(
		repository.NewQuestionRepository(db),
		repository.NewReferenceAnswerRepository(db),
		store,
		generator,
		30*time.Second,
		time.Hour,
		zerolog.Nop(),
	)

	return resolver, mini
}

func TestResolveGeneratesOncePerQuestion(t *testing.T) {
	db := newResolverTestDB(t)
	questions := seedExam(t, db, "en", "Describe the management of acute myocardial infarction.")
	generator := &fakeGenerator{}
	resolver, mini := newResolver(t, db, generator)

	ctx := context.Background()

	first, err := resolver.Resolve(ctx, questions[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := resolver.Resolve(ctx, questions[0].ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, generator.callCount())

	// Survives a cold fast cache: the durable tier backs it.
	mini.FlushAll()
	third, err := resolver.Resolve(ctx, questions[0].ID)
	require.NoError(t, err)
	require.Equal(t, first, third)
	require.Equal(t, 1, generator.callCount())
}

func TestResolveConcurrentRequestsGenerateOnce(t *testing.T) {
	db := newResolverTestDB(t)
	questions := seedExam(t, db, "en", "Explain the pathophysiology of heart failure.")
	generator := &fakeGenerator{delay: 50 * time.Millisecond}
	resolver, _ := newResolver(t, db, generator)

	const workers = 8
	results := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = resolver.Resolve(context.Background(), questions[0].ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i])
	}

	require.Equal(t, 1, generator.callCount())
}

func TestResolveReusesAnswerAcrossIdenticalPrompts(t *testing.T) {
	db := newResolverTestDB(t)
	prompt := "  List the indications for coronary angiography. "
	questions := seedExam(t, db, "en", prompt, prompt)
	generator := &fakeGenerator{}
	resolver, _ := newResolver(t, db, generator)

	ctx := context.Background()

	first, err := resolver.Resolve(ctx, questions[0].ID)
	require.NoError(t, err)

	second, err := resolver.Resolve(ctx, questions[1].ID)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 1, generator.callCount())
}

func TestResolveFallsThroughWhenLockNeverReleases(t *testing.T) {
	db := newResolverTestDB(t)
	questions := seedExam(t, db, "en", "Outline the treatment of atrial fibrillation.")
	generator := &fakeGenerator{}
	resolver, mini := newResolver(t, db, generator)

	// Durable row exists, but a foreign lock holder never releases.
	require.NoError(t, db.Create(&models.QuestionReferenceAnswer{
		QuestionID: questions[0].ID,
		Content:    "stored answer",
	}).Error)
	mini.Set(cache.GenerationLockKey(questions[0].ID), "1")

	impl := resolver.(*referenceAnswerService)
	impl.pollInterval = time.Millisecond
	impl.pollAttempts = 3

	content, err := resolver.Resolve(context.Background(), questions[0].ID)
	require.NoError(t, err)
	require.Equal(t, "stored answer", content)
	require.Equal(t, 0, generator.callCount())
}

func TestResolveGenerationFailure(t *testing.T) {
	db := newResolverTestDB(t)
	questions := seedExam(t, db, "en", "Describe aortic stenosis auscultation findings.")
	generator := &fakeGenerator{failErr: fmt.Errorf("upstream 500: internal provider error")}
	resolver, mini := newResolver(t, db, generator)

	_, err := resolver.Resolve(context.Background(), questions[0].ID)
	require.Error(t, err)

	reason, ok := AsReasonError(err)
	require.True(t, ok)
	require.Equal(t, ReasonGenerationFailed, reason.Code)
	require.NotContains(t, reason.Message, "upstream 500")

	// The lock is released on failure so a retry can proceed.
	require.False(t, mini.Exists(cache.GenerationLockKey(questions[0].ID)))
}

func TestPromptHashNormalizesWhitespace(t *testing.T) {
	require.Equal(t, PromptHash("What is sepsis?"), PromptHash("  What is sepsis?\n"))
	require.NotEqual(t, PromptHash("What is sepsis?"), PromptHash("What is shock?"))
}
