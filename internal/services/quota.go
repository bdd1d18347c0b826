package services

import (
	"github.com/tbourn/widget-chat-backend/internal/config"
	"github.com/tbourn/widget-chat-backend/internal/domain"
)

// CanAcceptMessage reports whether the account may send another message this
// month under its plan. Unknown plans get the free allowance.
func CanAcceptMessage(a *domain.Account) bool {
	if a == nil {
		return false
	}
	return config.GetPlanLimits(a.Subscription.Plan).Allows(a.Usage.MessagesThisMonth)
}
