package services

import (
	"testing"

	"github.com/tbourn/widget-chat-backend/internal/config"
	"github.com/tbourn/widget-chat-backend/internal/domain"
)

func TestCanAcceptMessage_Boundaries(t *testing.T) {
	acct := func(plan string, used int) *domain.Account {
		return &domain.Account{
			Subscription: domain.Subscription{Plan: plan},
			Usage:        domain.Usage{MessagesThisMonth: used},
		}
	}
	cases := []struct {
		name string
		a    *domain.Account
		want bool
	}{
		{"free under", acct(config.PlanFree, 99), true},
		{"free at limit", acct(config.PlanFree, 100), false},
		{"starter under", acct(config.PlanStarter, 999), true},
		{"starter at limit", acct(config.PlanStarter, 1000), false},
		{"legacy basic", acct("basic", 500), true},
		{"professional at limit", acct(config.PlanProfessional, 5000), false},
		{"legacy pro under", acct("Pro", 4999), true},
		{"enterprise unlimited", acct(config.PlanEnterprise, 1_000_000), true},
		{"unknown plan uses free", acct("gold", 100), false},
		{"nil account", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAcceptMessage(tc.a); got != tc.want {
				t.Fatalf("CanAcceptMessage = %v, want %v", got, tc.want)
			}
		})
	}
}
