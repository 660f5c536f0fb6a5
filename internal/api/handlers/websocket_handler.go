package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ddx-dashboard/backend/internal/dashboard"
	"github.com/ddx-dashboard/backend/internal/metrics"
	"github.com/ddx-dashboard/backend/pkg/logger"
)

type LiveMessage struct {
	Type   string          `json:"type"`
	ETag   string          `json:"etag,omitempty"`
	Report json.RawMessage `json:"report,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// WebSocketHandler pushes a case's report to connected instructors whenever
// it changes.
type WebSocketHandler struct {
	service  ReportService
	interval time.Duration
}

func NewWebSocketHandler(service ReportService, interval time.Duration) *WebSocketHandler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &WebSocketHandler{service: service, interval: interval}
}

// Upgrade rejects plain HTTP requests and a bad case id before the protocol
// switch.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if _, err := dashboard.ParseCaseID(c.Params("caseId")); err != nil {
		return writeError(c, err)
	}
	return c.Next()
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	caseID, err := dashboard.ParseCaseID(c.Params("caseId"))
	if err != nil {
		h.sendError(c, "Invalid case id")
		c.Close()
		return
	}

	metrics.LiveConnections.Inc()
	logger.Info("WebSocket connection established", zap.String("case_id", caseID.String()))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		metrics.LiveConnections.Dec()
		logger.Info("WebSocket connection closed", zap.String("case_id", caseID.String()))
	}()

	refresh := make(chan struct{}, 1)
	go h.readLoop(c, cancel, refresh)

	session := newLiveSession(h.service, caseID)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if !h.push(ctx, c, session, false) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh:
			if !h.push(ctx, c, session, true) {
				return
			}
		case <-ticker.C:
			if !h.push(ctx, c, session, false) {
				return
			}
		}
	}
}

// readLoop turns client messages into refresh signals and cancels the
// session when the client goes away.
func (h *WebSocketHandler) readLoop(c *websocket.Conn, cancel context.CancelFunc, refresh chan<- struct{}) {
	defer cancel()
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			return
		}
		if msg.Type != "refresh" {
			continue
		}
		select {
		case refresh <- struct{}{}:
		default:
		}
	}
}

// push sends the report when it changed (or force is set). A false return
// means the connection is unusable.
func (h *WebSocketHandler) push(ctx context.Context, c *websocket.Conn, s *liveSession, force bool) bool {
	msg, changed, err := s.next(ctx, force)
	if err != nil {
		logger.Warn("Live report unavailable", zap.String("case_id", s.caseID.String()), zap.Error(err))
		return h.sendError(c, "Failed to build analytics report") == nil
	}
	if !changed {
		return true
	}
	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("WebSocket write failed", zap.Error(err))
		return false
	}
	return true
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) error {
	return c.WriteJSON(LiveMessage{Type: "error", Error: errorMsg})
}

// liveSession remembers the last ETag sent on one connection.
type liveSession struct {
	service  ReportService
	caseID   uuid.UUID
	lastETag string
}

func newLiveSession(service ReportService, caseID uuid.UUID) *liveSession {
	return &liveSession{service: service, caseID: caseID}
}

// next fetches the report and reports whether it differs from the last one
// sent. force refreshes the cache and always yields a message.
func (s *liveSession) next(ctx context.Context, force bool) (LiveMessage, bool, error) {
	fetch := s.service.Report
	if force {
		fetch = s.service.Refresh
	}

	report, err := fetch(ctx, s.caseID)
	if err != nil {
		return LiveMessage{}, false, err
	}
	body, etag, err := encodeReport(report)
	if err != nil {
		return LiveMessage{}, false, err
	}
	if etag == s.lastETag && !force {
		return LiveMessage{}, false, nil
	}

	s.lastETag = etag
	return LiveMessage{Type: "report", ETag: etag, Report: body}, true, nil
}
