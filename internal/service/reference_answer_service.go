package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/medvox/medvox-api/internal/cache"
	"github.com/medvox/medvox-api/internal/models"
	"github.com/medvox/medvox-api/internal/repository"
	"github.com/medvox/medvox-api/pkg/ai"
)

// ReferenceAnswerService resolves the canonical model answer for a question,
// generating it on first use. Concurrent first-time requests for one question
// generate at most once; identical prompt text within one direction and
// language shares a single generated answer across questions.
type ReferenceAnswerService interface {
	Resolve(ctx context.Context, questionID uint) (string, error)
}

type referenceAnswerService struct {
	questions  repository.QuestionRepository
	references repository.ReferenceAnswerRepository
	store      *cache.Store
	generator  ai.Generator
	lockTTL    time.Duration
	cacheTTL   time.Duration

	pollInterval time.Duration
	pollAttempts int

	logger zerolog.Logger
}

// NewReferenceAnswerService constructs the resolver.
func NewReferenceAnswerService(
	questions repository.QuestionRepository,
	references repository.ReferenceAnswerRepository,
	store *cache.Store,
	generator ai.Generator,
	lockTTL, cacheTTL time.Duration,
	logger zerolog.Logger,
) ReferenceAnswerService {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}

	return &referenceAnswerService{
		questions:    questions,
		references:   references,
		store:        store,
		generator:    generator,
		lockTTL:      lockTTL,
		cacheTTL:     cacheTTL,
		pollInterval: 300 * time.Millisecond,
		pollAttempts: 10,
		logger:       logger.With().Str("component", "reference_answer_service").Logger(),
	}
}

func (s *referenceAnswerService) Resolve(ctx context.Context, questionID uint) (string, error) {
	cacheKey := cache.ReferenceAnswerKey(questionID)

	if content, found := s.store.Get(ctx, cacheKey); found {
		return content, nil
	}

	lockKey := cache.GenerationLockKey(questionID)
	acquired := s.store.AcquireLock(ctx, lockKey, s.lockTTL)
	if acquired {
		defer s.store.ReleaseLock(ctx, lockKey)
	} else {
		// Another request is generating. Wait for the lock to clear, then
		// re-check the fast cache; falls through after the poll budget so a
		// caller never hangs on somebody else's generation.
		s.awaitLockRelease(ctx, lockKey)
		if content, found := s.store.Get(ctx, cacheKey); found {
			return content, nil
		}
	}

	if row, err := s.references.GetByQuestionID(ctx, questionID); err == nil {
		s.store.Set(ctx, cacheKey, row.Content, s.cacheTTL)
		return row.Content, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return "", err
	}

	directionID := question.Exam.DirectionID
	language := question.Exam.Language
	promptHash := PromptHash(question.Text)

	// The direction tier is the source of truth: a different question with the
	// same prompt text may have generated this answer already.
	if shared, err := s.references.GetByPromptHash(ctx, directionID, language, promptHash); err == nil {
		s.persistQuestionAnswer(ctx, questionID, shared.Content)
		s.store.Set(ctx, cacheKey, shared.Content, s.cacheTTL)
		return shared.Content, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	content, err := s.generator.Generate(ctx, language, question.Text)
	if err != nil {
		s.logger.Error().Err(err).Uint("question_id", questionID).Msg("reference answer generation failed")
		return "", WrapReason(ReasonGenerationFailed, "failed to prepare the reference answer, please try again", err)
	}

	if err := s.references.SaveDirectionAnswer(ctx, &models.DirectionAnswer{
		DirectionID: directionID,
		Language:    language,
		PromptHash:  promptHash,
		Content:     content,
	}); err != nil {
		// Partial persistence is tolerated; readers treat a missing tier as a
		// cache miss, not corruption.
		s.logger.Warn().Err(err).Uint("question_id", questionID).Msg("direction answer write failed")
	}

	s.persistQuestionAnswer(ctx, questionID, content)
	s.store.Set(ctx, cacheKey, content, s.cacheTTL)

	return content, nil
}

func (s *referenceAnswerService) awaitLockRelease(ctx context.Context, lockKey string) {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		if !s.store.Locked(ctx, lockKey) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *referenceAnswerService) persistQuestionAnswer(ctx context.Context, questionID uint, content string) {
	if err := s.references.SaveQuestionAnswer(ctx, &models.QuestionReferenceAnswer{
		QuestionID: questionID,
		Content:    content,
	}); err != nil {
		s.logger.Warn().Err(err).Uint("question_id", questionID).Msg("question answer write failed")
	}
}

// PromptHash returns the stable dedup key for a question prompt: the hex
// SHA-256 of the trimmed text.
func PromptHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
