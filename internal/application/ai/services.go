package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/sonarscan-api/internal/application"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/ai"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/analyst"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/report"
)

// ReportSource yields the normalized report of an existing project.
type ReportSource interface {
	Report(ctx context.Context, key, token string) (report.Document, error)
}

type Service struct {
	reports  ReportSource
	client   ai.Client          // nil disables insights
	insights analyst.Repository // optional cache, one insight per analysis
	clock    application.Clock
	logger   *zap.Logger
}

func NewService(reports ReportSource, client ai.Client, insights analyst.Repository, clock application.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = application.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reports: reports, client: client, insights: insights, clock: clock, logger: logger}
}

// Insights returns an AI triage of the project's latest report. A cached
// insight is reused while the backend analysis id is unchanged.
func (s *Service) Insights(ctx context.Context, key, token string) (*analyst.Insight, error) {
	if s.client == nil {
		return nil, ai.ErrDisabled
	}
	doc, err := s.reports.Report(ctx, key, token)
	if err != nil {
		return nil, err
	}
	var analysisID string
	if doc.Project.Summary != nil {
		analysisID = doc.Project.Summary.AnalysisID
	}

	if s.insights != nil && analysisID != "" {
		cached, err := s.insights.LatestByProject(ctx, key)
		if err != nil {
			s.logger.Warn("load cached insight failed", zap.String("project_key", key), zap.Error(err))
		} else if cached != nil && cached.AnalysisID == analysisID {
			return cached, nil
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	result, err := s.client.Summarize(ctx, string(body))
	if err != nil {
		return nil, err
	}

	in := &analyst.Insight{
		ID:         analyst.InsightID(uuid.New().String()),
		ProjectKey: key,
		AnalysisID: analysisID,
		Result:     result,
		CreatedAt:  s.clock.Now(),
	}
	if s.insights != nil {
		if err := s.insights.Save(ctx, in); err != nil {
			s.logger.Warn("save insight failed", zap.String("project_key", key), zap.Error(err))
		}
	}
	return in, nil
}
