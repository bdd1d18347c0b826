package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/repo"
	"github.com/tbourn/widget-chat-backend/internal/utils"
)

// AnalyticsService computes dashboard summaries for an account.
type AnalyticsService struct {
	Sessions repo.SessionStore
	Logs     repo.MessageLogStore
}

// GetAnalytics aggregates sessions created and logs written within r.
// Averages are 0 over empty sets; duration averages ended sessions only and
// rating averages rated sessions only.
func (s *AnalyticsService) GetAnalytics(ctx context.Context, accountID string, r repo.TimeRange) (*domain.Analytics, error) {
	var (
		agg  domain.SessionAggregate
		logs int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agg, err = s.Sessions.SessionAggregate(gctx, accountID, r)
		return err
	})
	g.Go(func() error {
		var err error
		logs, err = s.Logs.CountMessageLogs(gctx, accountID, r)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.Analytics{
		TotalSessions:          agg.Sessions,
		TotalMessages:          agg.Messages,
		TotalUserMessages:      agg.UserMessages,
		TotalAssistantMessages: agg.AssistantMessages,
		TotalTokens:            agg.Tokens,
		TotalCost:              agg.Cost,
		AvgMessagesPerSession:  avg(float64(agg.Messages), agg.Sessions),
		AvgDuration:            avg(agg.DurationSum, agg.EndedSessions),
		AvgRating:              avg(agg.RatingSum, agg.RatedSessions),
		TotalMessageLogs:       logs,
	}, nil
}

func avg(sum float64, n int64) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// DefaultLogLimit and MaxLogLimit bound RecentLogs.
const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

// RecentLogs returns the account's newest message logs, newest first.
func (s *AnalyticsService) RecentLogs(ctx context.Context, accountID string, limit int) ([]domain.MessageLog, error) {
	logs, err := s.Logs.ListMessageLogs(ctx, accountID, utils.Limit(limit, DefaultLogLimit, MaxLogLimit))
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []domain.MessageLog{}
	}
	return logs, nil
}
