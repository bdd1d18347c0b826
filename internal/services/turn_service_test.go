package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tbourn/widget-chat-backend/internal/config"
	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/llm"
	"github.com/tbourn/widget-chat-backend/internal/repo"
)

func newTurnService(st *repo.MemoryStore, p llm.Provider) *TurnService {
	return &TurnService{
		Sessions:        NewSessionService(st, 0),
		Usage:           &UsageService{Accounts: st},
		Logs:            st,
		Idem:            st,
		Provider:        p,
		Model:           "gpt-4o-mini",
		MaxTokens:       500,
		Temperature:     0.7,
		Timeout:         time.Second,
		CostPerToken:    0.00001,
		MaxMessageRunes: 50,
	}
}

type blockingProvider struct{}

func (blockingProvider) Name() string { return "blocking" }

func (blockingProvider) Complete(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	<-ctx.Done()
	return nil, &llm.ProviderError{Kind: llm.KindTimeout, Err: ctx.Err()}
}

func mustFind(t *testing.T, st repo.AccountStore, id string) *domain.Account {
	t.Helper()
	a, err := st.FindAccountByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindAccountByID: %v", err)
	}
	return a
}

func TestSubmitTurn_Success(t *testing.T) {
	st := newStore()
	a := mustAccount(t, st, "t1@example.com", config.PlanFree)
	p := &fakeProvider{resp: &llm.Response{Text: "Hi there", PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20}}
	svc := newTurnService(st, p)
	ctx := context.Background()

	res, err := svc.SubmitTurn(ctx, a, TurnRequest{
		SessionID: "s1",
		Message:   "  hello  ",
		Context:   domain.SessionContext{Website: domain.WebsiteInfo{Domain: "shop.example"}},
	})
	if err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}
	if res.ResponseText != "Hi there" || res.SessionID != "s1" || res.Fallback || res.Timestamp.IsZero() {
		t.Fatalf("unexpected result: %+v", res)
	}

	sess, err := svc.Sessions.Get(ctx, "s1", a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Messages) != 2 || sess.Messages[0].Content != "hello" || sess.Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected transcript: %+v", sess.Messages)
	}
	meta := sess.Messages[1].Metadata
	if meta.Tokens.Total != 20 || meta.Error != "" || meta.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if got, want := meta.Cost, 20*0.00001; got < want-1e-12 || got > want+1e-12 {
		t.Fatalf("cost = %v, want %v", got, want)
	}
	if sess.Summary.TotalMessages != 2 || sess.Summary.TotalTokens != 20 {
		t.Fatalf("unexpected summary: %+v", sess.Summary)
	}

	if u := mustFind(t, st, a.ID).Usage; u.MessagesThisMonth != 1 || u.TotalMessages != 1 {
		t.Fatalf("usage not incremented: %+v", u)
	}
	logs, err := st.ListMessageLogs(ctx, a.ID, 10)
	if err != nil || len(logs) != 1 || logs[0].Website != "shop.example" || logs[0].AIResponse != "Hi there" {
		t.Fatalf("unexpected logs: %v %+v", err, logs)
	}
}

func TestSubmitTurn_ProviderFailureSendsFallback(t *testing.T) {
	st := newStore()
	a := mustAccount(t, st, "t2@example.com", config.PlanFree)
	p := &fakeProvider{err: &llm.ProviderError{Kind: llm.KindRateLimited, Err: errors.New("429")}}
	svc := newTurnService(st, p)
	ctx := context.Background()

	res, err := svc.SubmitTurn(ctx, a, TurnRequest{SessionID: "s2", Message: "hello"})
	if err != nil {
		t.Fatalf("SubmitTurn should not fail on provider error: %v", err)
	}
	if res.ResponseText != FallbackReply || !res.Fallback {
		t.Fatalf("expected fallback reply, got %+v", res)
	}
	sess, _ := svc.Sessions.Get(ctx, "s2", a.ID)
	if len(sess.Messages) != 2 || sess.Messages[1].Metadata.Error != llm.KindRateLimited {
		t.Fatalf("fallback message not recorded with error kind: %+v", sess.Messages)
	}
	if u := mustFind(t, st, a.ID).Usage; u.MessagesThisMonth != 0 {
		t.Fatalf("fallback turns must not count against quota, usage=%+v", u)
	}
	logs, _ := st.ListMessageLogs(ctx, a.ID, 10)
	if len(logs) != 1 || logs[0].Error != llm.KindRateLimited {
		t.Fatalf("expected one log with error kind, got %+v", logs)
	}
}

func TestSubmitTurn_ProviderTimeout(t *testing.T) {
	st := newStore()
	a := mustAccount(t, st, "t3@example.com", config.PlanFree)
	svc := newTurnService(st, blockingProvider{})
	svc.Timeout = 20 * time.Millisecond

	res, err := svc.SubmitTurn(context.Background(), a, TurnRequest{SessionID: "s3", Message: "hello"})
	if err != nil || !res.Fallback {
		t.Fatalf("expected fallback on timeout, got %v %+v", err, res)
	}
	sess, _ := svc.Sessions.Get(context.Background(), "s3", a.ID)
	if sess.Messages[1].Metadata.Error != llm.KindTimeout {
		t.Fatalf("error kind = %q, want timeout", sess.Messages[1].Metadata.Error)
	}
}

func TestSubmitTurn_QuotaExceededChangesNothing(t *testing.T) {
	st := newStore()
	a := mustAccount(t, st, "t4@example.com", config.PlanFree)
	a = useMessages(t, st, a.ID, 100)
	p := &fakeProvider{resp: &llm.Response{Text: "x"}}
	svc := newTurnService(st, p)
	ctx := context.Background()

	if _, err := svc.SubmitTurn(ctx, a, TurnRequest{SessionID: "s4", Message: "hello"}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if p.Calls() != 0 {
		t.Fatalf("provider must not be called over quota")
	}
	if _, err := svc.Sessions.Get(ctx, "s4", a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("no session should be created over quota, got %v", err)
	}
	if n, _ := st.CountMessageLogs(ctx, a.ID, repo.TimeRange{}); n != 0 {
		t.Fatalf("no logs expected, got %d", n)
	}
}

func TestSubmitTurn_Validation(t *testing.T) {
	st := newStore()
	a := mustAccount(t, st, "t5@example.com", config.PlanFree)
	svc := newTurnService(st, &fakeProvider{resp: &llm.Response{}})
	ctx := context.Background()

	cases := []struct {
		req  TurnRequest
		want error
	}{
		{TurnRequest{SessionID: "s", Message: "   "}, ErrEmptyMessage},
		{TurnRequest{SessionID: "s", Message: strings.Repeat("é", 51)}, ErrTooLong},
		{TurnRequest{SessionID: "", Message: "hi"}, ErrInvalidSessionID},
		{TurnRequest{SessionID: strings.Repeat("x", domain.MaxSessionIDLen+1), Message: "hi"}, ErrInvalidSessionID},
	}
	for _, tc := range cases {
		if _, err := svc.SubmitTurn(ctx, a, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("SubmitTurn(%q) err = %v, want %v", tc.req.Message, err, tc.want)
		}
	}
}

func TestSubmitTurn_OtherAccountsSessionForbidden(t *testing.T) {
	st := newStore()
	a := mustAccount(t, st, "owner@example.com", config.PlanFree)
	b := mustAccount(t, st, "intruder@example.com", config.PlanFree)
	svc := newTurnService(st, &fakeProvider{resp: &llm.Response{}})
	ctx := context.Background()

	if _, err := svc.SubmitTurn(ctx, a, TurnRequest{SessionID: "mine", Message: "hi"}); err != nil {
		t.Fatalf("SubmitTurn a: %v", err)
	}
	if _, err := svc.SubmitTurn(ctx, b, TurnRequest{SessionID: "mine", Message: "hi"}); !errors.Is(err, ErrSessionForbidden) {
		t.Fatalf("expected ErrSessionForbidden, got %v", err)
	}
}

func TestSubmitTurn_IdempotentReplay(t *testing.T) {
	st := newStore()
	a := mustAccount(t, st, "t6@example.com", config.PlanFree)
	p := &fakeProvider{resp: &llm.Response{Text: "first answer", TotalTokens: 3}}
	svc := newTurnService(st, p)
	ctx := context.Background()
	req := TurnRequest{SessionID: "s6", Message: "hello", IdempotencyKey: "k-1"}

	first, err := svc.SubmitTurn(ctx, a, req)
	if err != nil {
		t.Fatalf("first SubmitTurn: %v", err)
	}
	p.resp = &llm.Response{Text: "second answer"}
	again, err := svc.SubmitTurn(ctx, a, req)
	if err != nil {
		t.Fatalf("replayed SubmitTurn: %v", err)
	}
	if !again.Replayed || again.ResponseText != first.ResponseText || !again.Timestamp.Equal(first.Timestamp) {
		t.Fatalf("expected replay of first reply, got %+v", again)
	}
	if p.Calls() != 1 {
		t.Fatalf("provider called %d times, want 1", p.Calls())
	}
	sess, _ := svc.Sessions.Get(ctx, "s6", a.ID)
	if len(sess.Messages) != 2 {
		t.Fatalf("replay must not append, got %d messages", len(sess.Messages))
	}
	if u := mustFind(t, st, a.ID).Usage; u.MessagesThisMonth != 1 {
		t.Fatalf("replay must not count, usage=%+v", u)
	}
}

func TestSubmitTurn_ConcurrentTurnsSameSession(t *testing.T) {
	st := newStore()
	a := mustAccount(t, st, "t7@example.com", config.PlanFree)
	svc := newTurnService(st, &fakeProvider{resp: &llm.Response{TotalTokens: 1}})
	ctx := context.Background()

	var g errgroup.Group
	for _, msg := range []string{"first question", "second question"} {
		g.Go(func() error {
			_, err := svc.SubmitTurn(ctx, a, TurnRequest{SessionID: "shared", Message: msg})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent SubmitTurn: %v", err)
	}

	sess, err := svc.Sessions.Get(ctx, "shared", a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Messages) != 4 || sess.Summary.TotalMessages != 4 {
		t.Fatalf("expected 4 messages, got %d (summary %d)", len(sess.Messages), sess.Summary.TotalMessages)
	}
	seen := map[string]bool{}
	for i, m := range sess.Messages {
		if m.Seq != i {
			t.Fatalf("message %d has seq %d", i, m.Seq)
		}
		if m.Role == domain.RoleUser {
			seen[m.Content] = true
		}
	}
	if !seen["first question"] || !seen["second question"] {
		t.Fatalf("both user messages must be present, got %v", seen)
	}
	if u := mustFind(t, st, a.ID).Usage; u.MessagesThisMonth != 2 {
		t.Fatalf("usage = %d, want 2", u.MessagesThisMonth)
	}
}
