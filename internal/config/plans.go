package config

import "strings"

// Plan identifiers stored on Account.Subscription.Plan.
const (
	PlanFree         = "free"
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// Subscription statuses.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusPastDue   = "past_due"
	StatusUnpaid    = "unpaid"
)

// PlanLimits is the monthly message allowance of a plan.
type PlanLimits struct {
	MonthlyMessages int
	Unlimited       bool
}

// Allows reports whether one more message fits after used messages this month.
func (l PlanLimits) Allows(used int) bool {
	return l.Unlimited || used < l.MonthlyMessages
}

// Remaining returns messages left this month, or -1 when unlimited.
func (l PlanLimits) Remaining(used int) int {
	if l.Unlimited {
		return -1
	}
	if used >= l.MonthlyMessages {
		return 0
	}
	return l.MonthlyMessages - used
}

// DefaultPlanLimits is the closed plan table.
var DefaultPlanLimits = map[string]PlanLimits{
	PlanFree:         {MonthlyMessages: 100},
	PlanStarter:      {MonthlyMessages: 1000},
	PlanProfessional: {MonthlyMessages: 5000},
	PlanEnterprise:   {Unlimited: true},
}

var planAliases = map[string]string{
	"basic": PlanStarter,
	"pro":   PlanProfessional,
}

// NormalizePlan lower-cases p and resolves legacy aliases. ok is false for
// names outside the plan table.
func NormalizePlan(p string) (string, bool) {
	p = strings.ToLower(strings.TrimSpace(p))
	if a, found := planAliases[p]; found {
		p = a
	}
	_, ok := DefaultPlanLimits[p]
	return p, ok
}

// GetPlanLimits returns the limits for plan, defaulting to free if unknown.
func GetPlanLimits(plan string) PlanLimits {
	if p, ok := NormalizePlan(plan); ok {
		return DefaultPlanLimits[p]
	}
	return DefaultPlanLimits[PlanFree]
}
