package services

import (
	"context"
	"sync"
	"testing"

	"github.com/tbourn/widget-chat-backend/internal/config"
	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/llm"
	"github.com/tbourn/widget-chat-backend/internal/repo"
)

// ----- Fakes -----

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	resp  *llm.Response
	err   error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	r := *p.resp
	if r.Text == "" {
		r.Text = "echo: " + req.UserMessage
	}
	return &r, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// ----- Helpers -----

func newStore() *repo.MemoryStore {
	return repo.NewMemoryStore(repo.MemoryOptions{MessageLogCap: 100})
}

func mustAccount(t *testing.T, st repo.AccountStore, email, plan string) *domain.Account {
	t.Helper()
	key := "cb_" + email
	a := &domain.Account{
		Name: "Owner", Email: email, PasswordHash: "h", APIKey: &key,
		Subscription: domain.Subscription{Plan: plan, Status: config.StatusActive},
	}
	if err := st.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

// useMessages bumps the monthly counter n times and returns the fresh account.
func useMessages(t *testing.T, st repo.AccountStore, id string, n int) *domain.Account {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if err := st.IncrementUsage(ctx, id); err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}
	a, err := st.FindAccountByID(ctx, id)
	if err != nil {
		t.Fatalf("FindAccountByID: %v", err)
	}
	return a
}
