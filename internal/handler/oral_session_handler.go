package handler

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/medvox/medvox-api/internal/dto"
	"github.com/medvox/medvox-api/internal/service"
	"github.com/medvox/medvox-api/internal/utils"
)

// Submitted audio larger than this is rejected before transcription.
const maxAudioBytes = 15 << 20

// OralSessionHandler exposes the oral exam session endpoints.
type OralSessionHandler struct {
	service   service.OralSessionService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewOralSessionHandler builds an oral session handler instance.
func NewOralSessionHandler(service service.OralSessionService, validator *validator.Validate, logger zerolog.Logger) *OralSessionHandler {
	return &OralSessionHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "oral_session_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *OralSessionHandler) Register(router fiber.Router) {
	router.Post("/sessions", h.start)
	router.Post("/sessions/:id/answers", h.submitAnswer)
	router.Post("/sessions/:id/finish", h.finish)
	router.Get("/sessions/:id/status", h.status)
}

func (h *OralSessionHandler) start(c *fiber.Ctx) error {
	var payload dto.StartSessionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
		}
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.StartSession(c.Context(), userIDFromContext(c), payload.ExamID, isAdminFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	message := "oral session started"
	if result.Resumed {
		message = "oral session resumed"
	}

	return utils.SendSuccess(c, message, result)
}

func (h *OralSessionHandler) submitAnswer(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("id"))
	if sessionID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "session id is required")
	}

	questionID, err := strconv.ParseUint(strings.TrimSpace(c.FormValue("question_id")), 10, 64)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "question_id is required")
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "audio file is required")
	}
	if file.Size > maxAudioBytes {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, "audio file is too large")
	}

	reader, err := file.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "audio file could not be read")
	}
	defer reader.Close()

	audio, err := io.ReadAll(reader)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "audio file could not be read")
	}

	mime := mimetype.Detect(audio)
	if !isPlayableAudio(mime) {
		return utils.SendError(c, fiber.StatusBadRequest, "unsupported audio format")
	}

	result, err := h.service.SubmitAnswer(c.Context(), sessionID, uint(questionID), audio, mime.String())
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "answer evaluated", result)
}

func (h *OralSessionHandler) finish(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("id"))
	if sessionID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "session id is required")
	}

	result, err := h.service.FinishSession(c.Context(), sessionID, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "oral session finished", result)
}

func (h *OralSessionHandler) status(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("id"))
	if sessionID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "session id is required")
	}

	result, err := h.service.GetSessionStatus(c.Context(), sessionID, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	if result == nil {
		return utils.SendErrorCode(c, fiber.StatusNotFound, service.ReasonSessionNotFound, "session not found")
	}

	return utils.SendSuccess(c, "session status", result)
}

func (h *OralSessionHandler) handleError(c *fiber.Ctx, err error) error {
	if reason, ok := service.AsReasonError(err); ok {
		return utils.SendErrorCode(c, statusForReason(reason.Code), reason.Code, reason.Message)
	}

	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendErrorCode(c, fiber.StatusInternalServerError, service.ReasonInternalError, "internal server error")
}

func statusForReason(code string) int {
	switch code {
	case service.ReasonSubscriptionRequired:
		return fiber.StatusPaymentRequired
	case service.ReasonRateLimitExceeded:
		return fiber.StatusTooManyRequests
	case service.ReasonNotEnoughQuestions, service.ReasonSessionEnded:
		return fiber.StatusConflict
	case service.ReasonSessionNotFound:
		return fiber.StatusNotFound
	case service.ReasonSessionExpired:
		return fiber.StatusGone
	case service.ReasonQuestionNotInSession:
		return fiber.StatusBadRequest
	case service.ReasonAccessForbidden:
		return fiber.StatusForbidden
	case service.ReasonGenerationFailed:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// isPlayableAudio accepts the container formats browsers record voice in.
// WebM detects as video even when it only carries an Opus track.
func isPlayableAudio(mime *mimetype.MIME) bool {
	if strings.HasPrefix(mime.String(), "audio/") {
		return true
	}
	return mime.Is("video/webm") || mime.Is("application/ogg")
}
