package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ddx-dashboard/backend/internal/analytics"
	"github.com/ddx-dashboard/backend/internal/dashboard"
	"github.com/ddx-dashboard/backend/internal/middleware/auth"
	"github.com/ddx-dashboard/backend/pkg/circuitbreaker"
	"github.com/ddx-dashboard/backend/pkg/logger"
	"github.com/ddx-dashboard/backend/pkg/utils"
)

// ReportService is the slice of dashboard.Service the handlers use.
type ReportService interface {
	Report(ctx context.Context, caseID uuid.UUID) (*analytics.Report, error)
	Refresh(ctx context.Context, caseID uuid.UUID) (*analytics.Report, error)
}

type AnalyticsHandler struct {
	service ReportService
}

func NewAnalyticsHandler(service ReportService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// GetReport serves the cached or freshly built report with a strong ETag.
func (h *AnalyticsHandler) GetReport(c *fiber.Ctx) error {
	caseID, err := dashboard.ParseCaseID(c.Params("caseId"))
	if err != nil {
		return writeError(c, err)
	}

	report, err := h.service.Report(c.UserContext(), caseID)
	if err != nil {
		return writeError(c, err)
	}
	return sendReport(c, report)
}

// RefreshReport drops the cached report and rebuilds it.
func (h *AnalyticsHandler) RefreshReport(c *fiber.Ctx) error {
	caseID, err := dashboard.ParseCaseID(c.Params("caseId"))
	if err != nil {
		return writeError(c, err)
	}

	logger.Info("Analytics refresh requested",
		zap.String("case_id", caseID.String()),
		zap.String("requested_by", auth.UserID(c)),
	)

	report, err := h.service.Refresh(c.UserContext(), caseID)
	if err != nil {
		return writeError(c, err)
	}
	return sendReport(c, report)
}

func sendReport(c *fiber.Ctx, report *analytics.Report) error {
	body, etag, err := encodeReport(report)
	if err != nil {
		logger.Error("Failed to encode report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encode report",
		})
	}

	c.Set(fiber.HeaderETag, etag)
	if c.Get(fiber.HeaderIfNoneMatch) == etag {
		return c.SendStatus(fiber.StatusNotModified)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

func encodeReport(report *analytics.Report) ([]byte, string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return body, utils.ETag(body), nil
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, dashboard.ErrInvalidCaseID):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid case id"})
	case errors.Is(err, dashboard.ErrCaseNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Case not found"})
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		c.Set(fiber.HeaderRetryAfter, "30")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Analytics temporarily unavailable"})
	default:
		logger.Error("Failed to build analytics report", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to build analytics report"})
	}
}
