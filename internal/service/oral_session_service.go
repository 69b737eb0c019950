package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/medvox/medvox-api/internal/cache"
	"github.com/medvox/medvox-api/internal/dto"
	"github.com/medvox/medvox-api/internal/models"
	"github.com/medvox/medvox-api/internal/observability"
	"github.com/medvox/medvox-api/internal/repository"
	"github.com/medvox/medvox-api/pkg/ai"
	"github.com/medvox/medvox-api/pkg/speech"
)

// Audio payloads at or below this size are treated as empty submissions and
// skip transcription.
const minAudioBytes = 100

const backgroundCallTimeout = 30 * time.Second

// AudioArchiver stores submitted answer audio. Invoked fire-and-forget.
type AudioArchiver interface {
	ArchiveAudio(ctx context.Context, sessionID string, questionID uint, reader io.Reader) (string, error)
}

// OralSessionService owns the oral exam session lifecycle: creation with
// entitlement and rate-limit gating, answer submission, finish, and status
// polling.
type OralSessionService interface {
	StartSession(ctx context.Context, userID, examID uint, isAdmin bool) (dto.StartSessionResponse, error)
	SubmitAnswer(ctx context.Context, sessionID string, questionID uint, audio []byte, mimeType string) (dto.SubmitAnswerResponse, error)
	FinishSession(ctx context.Context, sessionID string, userID uint) (dto.FinishSessionResponse, error)
	GetSessionStatus(ctx context.Context, sessionID string, userID uint) (*dto.SessionStatusResponse, error)
}

type oralSessionService struct {
	sessions      repository.OralSessionRepository
	questions     repository.QuestionRepository
	subscriptions repository.SubscriptionRepository
	usage         repository.UsageLogRepository
	store         *cache.Store
	resolver      ReferenceAnswerService
	transcriber   speech.Transcriber
	evaluator     ai.Evaluator
	archiver      AudioArchiver
	events        *SessionEventPublisher
	sanitizer     *bluemonday.Policy
	sessionTTL    time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

// OralSessionDeps groups the collaborators of the session service.
type OralSessionDeps struct {
	Sessions      repository.OralSessionRepository
	Questions     repository.QuestionRepository
	Subscriptions repository.SubscriptionRepository
	Usage         repository.UsageLogRepository
	Store         *cache.Store
	Resolver      ReferenceAnswerService
	Transcriber   speech.Transcriber
	Evaluator     ai.Evaluator
	Archiver      AudioArchiver
	Events        *SessionEventPublisher
	SessionTTL    time.Duration
}

// NewOralSessionService constructs the session manager.
func NewOralSessionService(deps OralSessionDeps, logger zerolog.Logger) OralSessionService {
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &oralSessionService{
		sessions:      deps.Sessions,
		questions:     deps.Questions,
		subscriptions: deps.Subscriptions,
		usage:         deps.Usage,
		store:         deps.Store,
		resolver:      deps.Resolver,
		transcriber:   deps.Transcriber,
		evaluator:     deps.Evaluator,
		archiver:      deps.Archiver,
		events:        deps.Events,
		sanitizer:     bluemonday.StrictPolicy(),
		sessionTTL:    ttl,
		logger:        logger.With().Str("component", "oral_session_service").Logger(),
		now:           time.Now,
	}
}

func (s *oralSessionService) StartSession(ctx context.Context, userID, examID uint, isAdmin bool) (dto.StartSessionResponse, error) {
	now := s.now()

	if !isAdmin {
		active, err := s.subscriptions.HasActive(ctx, userID, now)
		if err != nil {
			return dto.StartSessionResponse{}, fmt.Errorf("subscription lookup: %w", err)
		}
		if !active {
			return dto.StartSessionResponse{}, NewReasonError(ReasonSubscriptionRequired, "an active subscription is required to start an oral exam")
		}
	}

	// Resuming a live session bypasses the daily cap and keeps the original
	// question set.
	if resumed, ok, err := s.tryResume(ctx, userID, now); err != nil {
		return dto.StartSessionResponse{}, err
	} else if ok {
		return resumed, nil
	}

	if !isAdmin {
		if allowed := s.store.MarkOnce(ctx, cache.DailyLimitKey(userID), untilMidnight(now)); !allowed {
			return dto.StartSessionResponse{}, NewReasonError(ReasonRateLimitExceeded, "only one oral exam session per day is allowed")
		}
	}

	candidates, err := s.questions.ListOralByExam(ctx, examID)
	if err != nil {
		return dto.StartSessionResponse{}, fmt.Errorf("question lookup: %w", err)
	}

	if len(candidates) < models.QuestionsPerSession {
		return dto.StartSessionResponse{}, NewReasonError(ReasonNotEnoughQuestions,
			fmt.Sprintf("the exam needs at least %d oral questions, only %d available", models.QuestionsPerSession, len(candidates)))
	}

	selected := pickQuestions(candidates, models.QuestionsPerSession)
	s.prewarmReferences(ctx, selected)

	questionIDs := make([]uint, 0, len(selected))
	for _, question := range selected {
		questionIDs = append(questionIDs, question.ID)
	}

	session := models.OralExamSession{
		ID:          uuid.NewString(),
		UserID:      userID,
		ExamID:      examID,
		Status:      models.SessionStatusActive,
		QuestionIDs: datatypes.NewJSONSlice(questionIDs),
		MaxScore:    models.SessionMaxScore,
	}

	if err := s.sessions.Create(ctx, &session); err != nil {
		return dto.StartSessionResponse{}, fmt.Errorf("session create: %w", err)
	}

	s.store.Set(ctx, cache.SessionLivenessKey(session.ID), "1", s.sessionTTL)

	observability.SessionEvents().WithLabelValues("started").Inc()
	s.events.Publish(EventSessionStarted, session)
	s.logger.Info().Str("session_id", session.ID).Uint("user_id", userID).Uint("exam_id", examID).Msg("oral session started")

	return dto.StartSessionResponse{
		SessionID: session.ID,
		Questions: s.buildQuestionList(session.QuestionIDs, selected),
		ExpiresAt: now.Add(s.sessionTTL),
	}, nil
}

// tryResume returns the caller's still-live active session, if any. An active
// session whose liveness key has elapsed is moved to timeout here, lazily.
func (s *oralSessionService) tryResume(ctx context.Context, userID uint, now time.Time) (dto.StartSessionResponse, bool, error) {
	session, err := s.sessions.FindActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StartSessionResponse{}, false, nil
		}
		return dto.StartSessionResponse{}, false, fmt.Errorf("active session lookup: %w", err)
	}

	remaining := s.store.Remaining(ctx, cache.SessionLivenessKey(session.ID))
	if remaining == cache.TTLKeyMissing || remaining == 0 {
		if err := s.markTimeout(ctx, &session); err != nil {
			return dto.StartSessionResponse{}, false, err
		}
		return dto.StartSessionResponse{}, false, nil
	}

	ttl := s.sessionTTL
	if remaining > 0 {
		ttl = time.Duration(remaining) * time.Second
	}

	questions, err := s.questions.ListByIDs(ctx, session.QuestionIDs)
	if err != nil {
		return dto.StartSessionResponse{}, false, fmt.Errorf("session question lookup: %w", err)
	}

	observability.SessionEvents().WithLabelValues("resumed").Inc()

	return dto.StartSessionResponse{
		SessionID: session.ID,
		Questions: s.buildQuestionList(session.QuestionIDs, questions),
		ExpiresAt: now.Add(ttl),
		Resumed:   true,
	}, true, nil
}

func (s *oralSessionService) SubmitAnswer(ctx context.Context, sessionID string, questionID uint, audio []byte, mimeType string) (dto.SubmitAnswerResponse, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return dto.SubmitAnswerResponse{}, err
	}

	if session.Status != models.SessionStatusActive {
		return dto.SubmitAnswerResponse{}, NewReasonError(ReasonSessionEnded,
			fmt.Sprintf("the session has already ended with status %q", session.Status))
	}

	remaining := s.store.Remaining(ctx, cache.SessionLivenessKey(session.ID))
	if remaining == cache.TTLKeyMissing || remaining == 0 {
		if err := s.markTimeout(ctx, &session); err != nil {
			return dto.SubmitAnswerResponse{}, err
		}
		return dto.SubmitAnswerResponse{}, NewReasonError(ReasonSessionExpired, "the session time has run out")
	}

	if !session.HasQuestion(questionID) {
		return dto.SubmitAnswerResponse{}, NewReasonError(ReasonQuestionNotInSession, "the question does not belong to this session")
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return dto.SubmitAnswerResponse{}, fmt.Errorf("question lookup: %w", err)
	}

	language := question.Exam.Language
	transcript := s.transcribe(ctx, session, questionID, audio, mimeType, language)

	reference, err := s.resolver.Resolve(ctx, questionID)
	if err != nil {
		return dto.SubmitAnswerResponse{}, err
	}

	evaluation := s.evaluate(ctx, question.Text, reference, transcript, language)

	feedback := models.AnswerFeedback{
		Coverage:     coverageFromEvaluation(evaluation.Coverage),
		MissedPoints: evaluation.MissedPoints,
		Summary:      evaluation.Summary,
	}

	answer := models.OralExamAnswer{
		SessionID:  session.ID,
		QuestionID: questionID,
		Transcript: transcript,
		Score:      evaluation.Score,
		Feedback:   datatypes.NewJSONType(feedback),
	}

	if err := s.sessions.UpsertAnswer(ctx, &answer); err != nil {
		return dto.SubmitAnswerResponse{}, fmt.Errorf("answer upsert: %w", err)
	}

	return dto.SubmitAnswerResponse{
		Transcript: transcript,
		Score:      evaluation.Score,
		MaxScore:   models.PerQuestionMaxScore,
		Feedback:   dto.NewFeedbackResponse(feedback),
	}, nil
}

func (s *oralSessionService) FinishSession(ctx context.Context, sessionID string, userID uint) (dto.FinishSessionResponse, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return dto.FinishSessionResponse{}, err
	}

	if session.UserID != userID {
		return dto.FinishSessionResponse{}, NewReasonError(ReasonAccessForbidden, "the session belongs to another user")
	}

	answers, err := s.sessions.ListAnswersBySession(ctx, session.ID)
	if err != nil {
		return dto.FinishSessionResponse{}, fmt.Errorf("answer lookup: %w", err)
	}

	if !session.IsTerminal() {
		total := 0
		for _, answer := range answers {
			total += answer.Score
		}

		completedAt := s.now()
		session.Status = models.SessionStatusFinished
		session.Score = &total
		session.CompletedAt = &completedAt

		if err := s.sessions.Update(ctx, &session); err != nil {
			return dto.FinishSessionResponse{}, fmt.Errorf("session finish: %w", err)
		}

		s.store.Del(ctx, cache.SessionLivenessKey(session.ID))

		observability.SessionEvents().WithLabelValues("finished").Inc()
		s.events.Publish(EventSessionFinished, session)
		s.logger.Info().Str("session_id", session.ID).Int("score", total).Msg("oral session finished")
	} else if session.Score == nil {
		// A timed-out session is finalized on its first finish call; answers
		// cannot change after the timeout transition, so the sum is stable.
		total := 0
		for _, answer := range answers {
			total += answer.Score
		}
		session.Score = &total
		if err := s.sessions.Update(ctx, &session); err != nil {
			return dto.FinishSessionResponse{}, fmt.Errorf("session finalize: %w", err)
		}
	}

	return s.buildFinishResponse(ctx, session, answers)
}

func (s *oralSessionService) GetSessionStatus(ctx context.Context, sessionID string, userID uint) (*dto.SessionStatusResponse, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}

	if session.UserID != userID {
		return nil, nil
	}

	var ttl int64
	if session.Status == models.SessionStatusActive {
		remaining := s.store.Remaining(ctx, cache.SessionLivenessKey(session.ID))
		switch {
		case remaining == cache.TTLKeyMissing || remaining == 0:
			if err := s.markTimeout(ctx, &session); err != nil {
				return nil, err
			}
		case remaining == cache.TTLNoExpiry:
			// Key without expiry cannot be told apart from misconfiguration;
			// treat the session as alive for its full budget.
			ttl = int64(s.sessionTTL / time.Second)
		default:
			ttl = remaining
		}
	}

	answered, err := s.sessions.CountAnswers(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("answer count: %w", err)
	}

	return &dto.SessionStatusResponse{
		Status:         session.Status,
		TTL:            ttl,
		AnsweredCount:  int(answered),
		TotalQuestions: len(session.QuestionIDs),
	}, nil
}

func (s *oralSessionService) loadSession(ctx context.Context, sessionID string) (models.OralExamSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.OralExamSession{}, NewReasonError(ReasonSessionNotFound, "session not found")
		}
		return models.OralExamSession{}, fmt.Errorf("session lookup: %w", err)
	}

	return session, nil
}

func (s *oralSessionService) markTimeout(ctx context.Context, session *models.OralExamSession) error {
	session.Status = models.SessionStatusTimeout
	completedAt := s.now()
	session.CompletedAt = &completedAt

	if err := s.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("session timeout: %w", err)
	}

	s.store.Del(ctx, cache.SessionLivenessKey(session.ID))

	observability.SessionEvents().WithLabelValues("timeout").Inc()
	s.events.Publish(EventSessionTimeout, *session)
	s.logger.Info().Str("session_id", session.ID).Msg("oral session timed out")

	return nil
}

// transcribe converts the audio to text, degrading to an empty transcript on
// any failure. Usage logging and audio archiving run fire-and-forget.
func (s *oralSessionService) transcribe(ctx context.Context, session models.OralExamSession, questionID uint, audio []byte, mimeType, language string) string {
	if len(audio) <= minAudioBytes {
		return ""
	}

	if s.archiver != nil {
		payload := make([]byte, len(audio))
		copy(payload, audio)
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), backgroundCallTimeout)
			defer cancel()
			if _, err := s.archiver.ArchiveAudio(bgCtx, session.ID, questionID, bytes.NewReader(payload)); err != nil {
				s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("audio archive failed")
			}
		}()
	}

	transcript, err := s.transcriber.Transcribe(ctx, audio, language, mimeType)
	s.recordUsage(session.UserID, models.UsageKindTranscription, err == nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.ID).Uint("question_id", questionID).Msg("transcription failed, treating as empty answer")
		return ""
	}

	return transcript
}

// evaluate grades the transcript, degrading to a zero score with a terse
// summary when the evaluator fails.
func (s *oralSessionService) evaluate(ctx context.Context, questionText, reference, transcript, language string) ai.Evaluation {
	evaluation, err := s.evaluator.Evaluate(ctx, ai.EvaluationInput{
		QuestionText:    questionText,
		ReferenceAnswer: reference,
		Transcript:      transcript,
		Language:        language,
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("evaluation failed, degrading to zero score")
		return ai.Evaluation{
			Score:        0,
			Coverage:     []ai.CoverageItem{},
			MissedPoints: []string{},
			Summary:      evaluationFailureSummary(language),
		}
	}

	return evaluation
}

func (s *oralSessionService) recordUsage(userID uint, kind string, success bool) {
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), backgroundCallTimeout)
		defer cancel()
		if err := s.usage.Record(bgCtx, &models.AIUsageLog{
			UserID:  userID,
			Kind:    kind,
			Success: success,
		}); err != nil {
			s.logger.Warn().Err(err).Str("kind", kind).Msg("usage log write failed")
		}
	}()
}

// prewarmReferences resolves the reference answers for the selected questions
// concurrently before the session is returned. Individual failures only mean
// lazy generation on first submission.
func (s *oralSessionService) prewarmReferences(ctx context.Context, questions []models.Question) {
	var wg sync.WaitGroup
	for _, question := range questions {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			if _, err := s.resolver.Resolve(ctx, id); err != nil {
				s.logger.Warn().Err(err).Uint("question_id", id).Msg("reference pre-warm failed")
			}
		}(question.ID)
	}
	wg.Wait()
}

func (s *oralSessionService) buildQuestionList(order []uint, questions []models.Question) []dto.SessionQuestion {
	byID := make(map[uint]models.Question, len(questions))
	for _, question := range questions {
		byID[question.ID] = question
	}

	list := make([]dto.SessionQuestion, 0, len(order))
	for i, id := range order {
		question, ok := byID[id]
		if !ok {
			continue
		}
		list = append(list, dto.SessionQuestion{
			ID:    question.ID,
			Text:  s.sanitizer.Sanitize(question.Text),
			Order: i + 1,
		})
	}

	return list
}

func (s *oralSessionService) buildFinishResponse(ctx context.Context, session models.OralExamSession, answers []models.OralExamAnswer) (dto.FinishSessionResponse, error) {
	questions, err := s.questions.ListByIDs(ctx, session.QuestionIDs)
	if err != nil {
		return dto.FinishSessionResponse{}, fmt.Errorf("session question lookup: %w", err)
	}

	questionByID := make(map[uint]models.Question, len(questions))
	for _, question := range questions {
		questionByID[question.ID] = question
	}

	answerByQuestion := make(map[uint]models.OralExamAnswer, len(answers))
	for _, answer := range answers {
		answerByQuestion[answer.QuestionID] = answer
	}

	breakdown := make([]dto.AnswerBreakdown, 0, len(session.QuestionIDs))
	for _, id := range session.QuestionIDs {
		entry := dto.AnswerBreakdown{QuestionID: id}
		if question, ok := questionByID[id]; ok {
			entry.QuestionText = s.sanitizer.Sanitize(question.Text)
		}
		if answer, ok := answerByQuestion[id]; ok {
			transcript := answer.Transcript
			feedback := dto.NewFeedbackResponse(answer.Feedback.Data())
			entry.Transcript = &transcript
			entry.Score = answer.Score
			entry.Feedback = &feedback
		}
		breakdown = append(breakdown, entry)
	}

	score := 0
	if session.Score != nil {
		score = *session.Score
	}

	return dto.FinishSessionResponse{
		SessionID:     session.ID,
		Score:         score,
		MaxScore:      session.MaxScore,
		Passed:        score >= models.PassThreshold,
		PassThreshold: models.PassThreshold,
		Status:        session.Status,
		Answers:       breakdown,
	}, nil
}

// pickQuestions returns count questions drawn uniformly without replacement.
func pickQuestions(candidates []models.Question, count int) []models.Question {
	shuffled := make([]models.Question, len(candidates))
	copy(shuffled, candidates)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled[:count]
}

func untilMidnight(now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return midnight.Sub(now)
}

func coverageFromEvaluation(items []ai.CoverageItem) []models.CoverageItem {
	coverage := make([]models.CoverageItem, 0, len(items))
	for _, item := range items {
		coverage = append(coverage, models.CoverageItem{Topic: item.Topic, Status: item.Status})
	}
	return coverage
}

func evaluationFailureSummary(language string) string {
	switch strings.ToLower(language) {
	case "ru":
		return "Не удалось оценить ответ. Балл не начислен."
	case "uz":
		return "Javobni baholab bo'lmadi. Ball berilmadi."
	default:
		return "The answer could not be evaluated. No points were awarded."
	}
}
