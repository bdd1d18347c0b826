package domain

// SessionAggregate is the raw per-account aggregate a store computes over
// sessions in a time range. Averages are derived by the caller.
type SessionAggregate struct {
	Sessions          int64
	Messages          int64
	UserMessages      int64
	AssistantMessages int64
	Tokens            int64
	Cost              float64
	DurationSum       float64 // seconds, over ended sessions
	EndedSessions     int64
	RatingSum         float64
	RatedSessions     int64
}

// Analytics is the account dashboard summary.
type Analytics struct {
	TotalSessions          int64   `json:"total_sessions"`
	TotalMessages          int64   `json:"total_messages"`
	TotalUserMessages      int64   `json:"total_user_messages"`
	TotalAssistantMessages int64   `json:"total_assistant_messages"`
	TotalTokens            int64   `json:"total_tokens"`
	TotalCost              float64 `json:"total_cost"`
	AvgMessagesPerSession  float64 `json:"avg_messages_per_session"`
	AvgDuration            float64 `json:"avg_duration"`
	AvgRating              float64 `json:"avg_rating"`
	TotalMessageLogs       int64   `json:"total_message_logs"`
}

// PlanCount is one row of a per-plan distribution.
type PlanCount struct {
	Plan  string `json:"plan"`
	Count int64  `json:"count"`
}

// AccountTotals is the operator-wide account aggregate.
type AccountTotals struct {
	Accounts      int64
	TotalMessages int64
	ByPlan        []PlanCount // sorted by plan name
}

// RevenueLine is recurring revenue in one currency, in minor units.
type RevenueLine struct {
	Currency string `json:"currency"`
	Monthly  int64  `json:"monthly"`
}

// SubscriptionTotals aggregates active processor subscriptions. Yearly
// amounts are spread over twelve months.
type SubscriptionTotals struct {
	Active  int64         `json:"active_subscriptions"`
	ByPlan  []PlanCount   `json:"plan_distribution"`
	Revenue []RevenueLine `json:"monthly_revenue"`
}
