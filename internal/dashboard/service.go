// Package dashboard loads a case's cohort data and turns it into the
// instructor analytics report.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ddx-dashboard/backend/internal/analytics"
	"github.com/ddx-dashboard/backend/internal/metrics"
	"github.com/ddx-dashboard/backend/internal/storage/models"
	"github.com/ddx-dashboard/backend/pkg/circuitbreaker"
	"github.com/ddx-dashboard/backend/pkg/config"
	"github.com/ddx-dashboard/backend/pkg/logger"
	"github.com/ddx-dashboard/backend/pkg/retry"
)

var (
	ErrInvalidCaseID = errors.New("invalid case id")
	ErrCaseNotFound  = errors.New("case not found")
	ErrDataSource    = errors.New("data source failure")
)

// Source is the read side of the store. Both the SQLite and Postgres clients
// satisfy it.
type Source interface {
	GetCase(ctx context.Context, id uuid.UUID) (*models.Case, error)
	ListSubmissions(ctx context.Context, caseID uuid.UUID) ([]models.Submission, error)
	CountStudents(ctx context.Context) (int, error)
	ListInstructorNotes(ctx context.Context, caseID uuid.UUID) ([]models.Note, error)
	ListSentiments(ctx context.Context, caseID uuid.UUID) ([]models.Sentiment, error)
	ListSessionCaptures(ctx context.Context, caseID uuid.UUID) ([]models.SessionCapture, error)
}

type ReportCache interface {
	GetReport(ctx context.Context, caseID uuid.UUID) (*analytics.Report, bool, error)
	SetReport(ctx context.Context, caseID uuid.UUID, report *analytics.Report, ttl time.Duration) error
	Invalidate(ctx context.Context, caseID uuid.UUID) error
}

type Service struct {
	source  Source
	cache   ReportCache
	cfg     config.AnalyticsConfig
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
	log     *zap.Logger
}

// NewService wires the report pipeline. cache may be nil.
func NewService(source Source, cache ReportCache, cfg config.AnalyticsConfig) *Service {
	log := logger.Named("dashboard")

	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts
	rc.InitialDelay = 25 * time.Millisecond
	rc.Retryable = retryable
	rc.Logger = log

	breaker := circuitbreaker.New("data-source", circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerOpenTimeout,
		IsFailure:        countsAgainstBreaker,
		Logger:           log,
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &Service{
		source:  source,
		cache:   cache,
		cfg:     cfg,
		retry:   rc,
		breaker: breaker,
		log:     log,
	}
}

// ParseCaseID validates a case identifier from a request.
func ParseCaseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidCaseID, raw)
	}
	return id, nil
}

// Report returns the analytics report for a case, serving from cache when it
// can.
func (s *Service) Report(ctx context.Context, caseID uuid.UUID) (*analytics.Report, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.GetReport(ctx, caseID)
		switch {
		case err != nil:
			s.log.Warn("Report cache read failed", zap.String("case_id", caseID.String()), zap.Error(err))
		case ok:
			metrics.CacheHits.WithLabelValues("report").Inc()
			metrics.ReportTotal.WithLabelValues("cached").Inc()
			return cached, nil
		default:
			metrics.CacheMisses.WithLabelValues("report").Inc()
		}
	}

	start := time.Now()
	report, err := s.build(ctx, caseID)
	if err != nil {
		metrics.ReportTotal.WithLabelValues(statusLabel(err)).Inc()
		return nil, err
	}
	metrics.ReportDuration.WithLabelValues("source").Observe(time.Since(start).Seconds())
	metrics.ReportTotal.WithLabelValues("success").Inc()
	metrics.SubmissionsAggregated.Observe(float64(report.SubmissionCount))

	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if err := s.cache.SetReport(ctx, caseID, report, s.cfg.CacheTTL); err != nil {
			s.log.Warn("Report cache write failed", zap.String("case_id", caseID.String()), zap.Error(err))
		}
	}
	return report, nil
}

// Invalidate drops the cached report for a case.
func (s *Service) Invalidate(ctx context.Context, caseID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, caseID)
}

// Refresh invalidates the cached report and rebuilds it.
func (s *Service) Refresh(ctx context.Context, caseID uuid.UUID) (*analytics.Report, error) {
	if err := s.Invalidate(ctx, caseID); err != nil {
		s.log.Warn("Report cache invalidation failed", zap.String("case_id", caseID.String()), zap.Error(err))
	}
	return s.Report(ctx, caseID)
}

func (s *Service) build(ctx context.Context, caseID uuid.UUID) (*analytics.Report, error) {
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	cs, err := fetch(ctx, s, "case", func(ctx context.Context) (*models.Case, error) {
		return s.source.GetCase(ctx, caseID)
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}
	if err != nil {
		return nil, err
	}

	in := analytics.Input{AnswerKey: cs.AnswerKey}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Submissions, err = fetch(gctx, s, "submissions", func(ctx context.Context) ([]models.Submission, error) {
			return s.source.ListSubmissions(ctx, caseID)
		})
		return err
	})
	g.Go(func() (err error) {
		in.TotalStudents, err = fetch(gctx, s, "students", s.source.CountStudents)
		return err
	})
	g.Go(func() (err error) {
		in.Notes, err = fetch(gctx, s, "notes", func(ctx context.Context) ([]models.Note, error) {
			return s.source.ListInstructorNotes(ctx, caseID)
		})
		return err
	})
	g.Go(func() (err error) {
		in.Sentiments, err = fetch(gctx, s, "sentiments", func(ctx context.Context) ([]models.Sentiment, error) {
			return s.source.ListSentiments(ctx, caseID)
		})
		return err
	})
	g.Go(func() (err error) {
		in.SessionCaptures, err = fetch(gctx, s, "session_captures", func(ctx context.Context) ([]models.SessionCapture, error) {
			return s.source.ListSessionCaptures(ctx, caseID)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := analytics.Build(in)
	for _, c := range report.KeyCollisions {
		metrics.KeyCollisions.Inc()
		s.log.Warn("Answer key name claimed by multiple entries",
			zap.String("case_id", caseID.String()),
			zap.String("key", c.Key),
			zap.String("previous", c.Previous),
			zap.String("winner", c.Winner),
		)
	}

	s.log.Debug("Report built",
		zap.String("case_id", caseID.String()),
		zap.Int("submissions", report.SubmissionCount),
		zap.Int("total_students", report.TotalStudents),
	)
	return report, nil
}

// fetch runs one read through retry and the breaker. Failures other than a
// missing row come back wrapped in ErrDataSource.
func fetch[T any](ctx context.Context, s *Service, query string, op func(context.Context) (T, error)) (T, error) {
	out, err := retry.Value(ctx, s.retry, func(ctx context.Context) (T, error) {
		var v T
		err := s.breaker.Execute(func() error {
			var err error
			v, err = op(ctx)
			return err
		})
		return v, err
	})
	if err == nil || errors.Is(err, models.ErrNotFound) {
		return out, err
	}

	metrics.DataSourceErrors.WithLabelValues(query).Inc()
	s.log.Error("Data source read failed", zap.String("query", query), zap.Error(err))
	return out, fmt.Errorf("%w: %s: %w", ErrDataSource, query, err)
}

func retryable(err error) bool {
	return !errors.Is(err, models.ErrNotFound) &&
		!errors.Is(err, circuitbreaker.ErrCircuitOpen) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func countsAgainstBreaker(err error) bool {
	return !errors.Is(err, models.ErrNotFound) && !errors.Is(err, context.Canceled)
}

func statusLabel(err error) string {
	switch {
	case errors.Is(err, ErrCaseNotFound):
		return "not_found"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "unavailable"
	default:
		return "error"
	}
}
