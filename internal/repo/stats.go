package repo

import (
	"context"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/widget-chat-backend/internal/domain"
)

func applyRange(q *gorm.DB, col string, r TimeRange) *gorm.DB {
	if !r.From.IsZero() {
		q = q.Where(col+" >= ?", domain.Normalize(r.From))
	}
	if !r.To.IsZero() {
		q = q.Where(col+" <= ?", domain.Normalize(r.To))
	}
	return q
}

// SessionsStats returns the number of sessions an account has and the
// greatest UpdatedAt among them, or nil when there are none. Used for ETags.
func (s *GormStore) SessionsStats(ctx context.Context, accountID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := s.db.WithContext(ctx).Model(&domain.ChatSession{}).Where("account_id = ?", accountID).Session(&gorm.Session{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// SessionAggregate sums session counters for an account over sessions
// created within r. COUNT(expr) skips NULLs, so the CASE arms without ELSE
// restrict duration to ended sessions and rating to rated ones.
func (s *GormStore) SessionAggregate(ctx context.Context, accountID string, r TimeRange) (domain.SessionAggregate, error) {
	var agg domain.SessionAggregate
	q := s.db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Select(`COUNT(*) AS sessions,
			COALESCE(SUM(summary_total_messages), 0) AS messages,
			COALESCE(SUM(summary_user_messages), 0) AS user_messages,
			COALESCE(SUM(summary_assistant_messages), 0) AS assistant_messages,
			COALESCE(SUM(summary_total_tokens), 0) AS tokens,
			COALESCE(SUM(summary_total_cost), 0) AS cost,
			COALESCE(SUM(CASE WHEN status = ? THEN duration END), 0) AS duration_sum,
			COUNT(CASE WHEN status = ? THEN 1 END) AS ended_sessions,
			COALESCE(SUM(CASE WHEN rating_score > 0 THEN rating_score END), 0) AS rating_sum,
			COUNT(CASE WHEN rating_score > 0 THEN 1 END) AS rated_sessions`,
			domain.SessionEnded, domain.SessionEnded).
		Where("account_id = ?", accountID)
	q = applyRange(q, "created_at", r)
	err := q.Scan(&agg).Error
	return agg, err
}

// billableStatuses are the processor statuses counted as active revenue.
var billableStatuses = []string{"active", "trialing"}

// AccountTotals counts accounts and lifetime messages per plan.
func (s *GormStore) AccountTotals(ctx context.Context) (domain.AccountTotals, error) {
	var rows []struct {
		Plan     string
		N        int64
		Messages int64
	}
	err := s.db.WithContext(ctx).
		Model(&domain.Account{}).
		Select("subscription_plan AS plan, COUNT(*) AS n, COALESCE(SUM(usage_total_messages), 0) AS messages").
		Group("subscription_plan").
		Order("subscription_plan").
		Scan(&rows).Error
	if err != nil {
		return domain.AccountTotals{}, err
	}
	t := domain.AccountTotals{ByPlan: []domain.PlanCount{}}
	for _, r := range rows {
		t.Accounts += r.N
		t.TotalMessages += r.Messages
		t.ByPlan = append(t.ByPlan, domain.PlanCount{Plan: r.Plan, Count: r.N})
	}
	return t, nil
}

// SubscriptionTotals aggregates billable subscription records by plan and
// by currency.
func (s *GormStore) SubscriptionTotals(ctx context.Context) (domain.SubscriptionTotals, error) {
	var rows []revenueRow
	err := s.db.WithContext(ctx).
		Model(&domain.SubscriptionRecord{}).
		Select("plan, subscriptions.interval AS interval, currency, COUNT(*) AS n, COALESCE(SUM(amount), 0) AS amount").
		Where("status IN ?", billableStatuses).
		Group("plan, subscriptions.interval, currency").
		Scan(&rows).Error
	if err != nil {
		return domain.SubscriptionTotals{}, err
	}
	return foldRevenue(rows), nil
}

type revenueRow struct {
	Plan     string
	Interval string
	Currency string
	N        int64
	Amount   int64
}

// foldRevenue merges grouped rows into totals. Both backends share it so
// yearly normalization and ordering agree.
func foldRevenue(rows []revenueRow) domain.SubscriptionTotals {
	byPlan := map[string]int64{}
	byCur := map[string]int64{}
	t := domain.SubscriptionTotals{ByPlan: []domain.PlanCount{}, Revenue: []domain.RevenueLine{}}
	for _, r := range rows {
		t.Active += r.N
		byPlan[r.Plan] += r.N
		monthly := r.Amount
		if r.Interval == "year" {
			monthly /= 12
		}
		byCur[strings.ToLower(r.Currency)] += monthly
	}
	for _, p := range sortedKeys(byPlan) {
		t.ByPlan = append(t.ByPlan, domain.PlanCount{Plan: p, Count: byPlan[p]})
	}
	for _, c := range sortedKeys(byCur) {
		t.Revenue = append(t.Revenue, domain.RevenueLine{Currency: c, Monthly: byCur[c]})
	}
	return t
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
