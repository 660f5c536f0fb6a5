package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ddx-dashboard/backend/internal/metrics"
	"github.com/ddx-dashboard/backend/internal/middleware/validation"
	"github.com/ddx-dashboard/backend/internal/notes"
	"github.com/ddx-dashboard/backend/pkg/logger"
)

type NotesHandler struct{}

func NewNotesHandler() *NotesHandler {
	return &NotesHandler{}
}

type topicVoteRequest struct {
	Topics   []string `json:"topics" validate:"required,min=1,max=10,dive,required,max=80"`
	FreeText string   `json:"free_text" validate:"max=500"`
}

// EncodeTopicVote renders a topic vote in the stored note format so clients
// never hand-build the marker syntax.
func (h *NotesHandler) EncodeTopicVote(c *fiber.Ctx) error {
	var req topicVoteRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	for i, t := range req.Topics {
		req.Topics[i] = validation.SanitizeString(t)
	}
	req.FreeText = validation.SanitizeString(req.FreeText)

	if err := validation.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	content := notes.EncodeTopicVote(req.Topics, req.FreeText)
	metrics.TopicVoteNotes.Inc()

	return c.JSON(fiber.Map{
		"content": content,
		"topics":  notes.Decode(content).Topics,
	})
}
