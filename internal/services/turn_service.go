// Package services – TurnService
//
// TurnService runs one widget chat turn end to end: quota gate, session
// lookup-or-create, user append, provider call, assistant append, audit log,
// and usage increment. Provider failures never surface to the caller; the
// visitor gets a fixed apology and operators get the cause in the logs.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/llm"
	"github.com/tbourn/widget-chat-backend/internal/observability"
	"github.com/tbourn/widget-chat-backend/internal/repo"
)

// FallbackReply is sent when the provider fails.
const FallbackReply = "I'm experiencing some technical difficulties right now. " +
	"Please try again in a moment, or contact support if the issue persists."

// TurnRequest is one visitor message.
type TurnRequest struct {
	SessionID      string
	Message        string
	IdempotencyKey string
	Context        domain.SessionContext
}

// TurnResult is what the widget receives.
type TurnResult struct {
	ResponseText string    `json:"response"`
	SessionID    string    `json:"session_id"`
	Timestamp    time.Time `json:"timestamp"`
	Replayed     bool      `json:"-"`
	Fallback     bool      `json:"-"`
}

// TurnService orchestrates chat turns.
type TurnService struct {
	Sessions *SessionService
	Usage    *UsageService
	Logs     repo.MessageLogStore
	Idem     repo.IdempotencyStore // optional
	Provider llm.Provider

	Model           string
	SystemPrompt    string
	MaxTokens       int
	Temperature     float64
	Timeout         time.Duration
	CostPerToken    float64
	MaxMessageRunes int
	IdempotencyTTL  time.Duration
}

func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// SubmitTurn processes one message from a visitor of account a.
func (s *TurnService) SubmitTurn(ctx context.Context, a *domain.Account, req TurnRequest) (*TurnResult, error) {
	ctx, span := observability.Tracer("services/TurnService").Start(ctx, "SubmitTurn",
		trace.WithAttributes(
			attribute.String("account.id", a.ID),
			attribute.String("session.id", req.SessionID),
		),
	)
	defer span.End()

	res, err := s.submit(ctx, a, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrQuotaExceeded) {
			observability.ObserveTurn(observability.OutcomeQuotaExceeded)
		} else {
			observability.ObserveTurn(observability.OutcomeError)
		}
		return nil, err
	}
	switch {
	case res.Replayed:
		observability.ObserveTurn(observability.OutcomeReplayed)
	case res.Fallback:
		observability.ObserveTurn(observability.OutcomeFallback)
	default:
		observability.ObserveTurn(observability.OutcomeAnswered)
	}
	return res, nil
}

func (s *TurnService) submit(ctx context.Context, a *domain.Account, req TurnRequest) (*TurnResult, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(msg) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if !domain.ValidSessionID(sessionID) {
		return nil, ErrInvalidSessionID
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	if key != "" && s.Idem != nil {
		rec, err := s.Idem.FindIdempotency(ctx, a.ID, sessionID, key, domain.Now())
		if err == nil {
			return &TurnResult{ResponseText: rec.ResponseText, SessionID: sessionID, Timestamp: rec.RespondedAt, Replayed: true}, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	if !CanAcceptMessage(a) {
		return nil, ErrQuotaExceeded
	}

	sess, err := s.Sessions.GetOrCreate(ctx, sessionID, a.ID, req.Context)
	if err != nil {
		return nil, err
	}
	if _, err := s.Sessions.Append(ctx, sessionID, a.ID, domain.RoleUser, msg, domain.MessageMetadata{}); err != nil {
		return nil, err
	}

	reply, meta := s.complete(ctx, a.ID, sessionID, msg)

	assistant, err := s.Sessions.Append(ctx, sessionID, a.ID, domain.RoleAssistant, reply, meta)
	if err != nil {
		return nil, err
	}

	lg := loggerFrom(ctx)
	entry := &domain.MessageLog{
		AccountID:      a.ID,
		SessionID:      sessionID,
		Website:        sess.Website.Domain,
		UserMessage:    msg,
		AIResponse:     reply,
		ResponseTimeMs: meta.ResponseTimeMs,
		Timestamp:      assistant.Timestamp,
		UserAgent:      sess.Visitor.UserAgent,
		IPAddress:      sess.Visitor.IPAddress,
		Country:        sess.Visitor.Country,
		City:           sess.Visitor.City,
		Error:          meta.Error,
	}
	if err := s.Logs.InsertMessageLog(ctx, entry); err != nil {
		lg.Warn().Err(err).Str("session_id", sessionID).Msg("message log insert failed")
	}

	fallback := meta.Error != ""
	if !fallback {
		if err := s.Usage.Increment(ctx, a.ID); err != nil {
			lg.Error().Err(err).Str("account_id", a.ID).Msg("usage increment failed")
		}
	}

	if key != "" && s.Idem != nil {
		s.remember(ctx, a.ID, sessionID, key, reply, assistant.Timestamp)
	}

	return &TurnResult{
		ResponseText: reply,
		SessionID:    sessionID,
		Timestamp:    assistant.Timestamp,
		Fallback:     fallback,
	}, nil
}

// complete calls the provider and returns the reply with its metadata. On
// failure the reply is FallbackReply and Metadata.Error is the error kind.
func (s *TurnService) complete(ctx context.Context, accountID, sessionID, msg string) (string, domain.MessageMetadata) {
	provider := s.Provider
	if provider == nil {
		provider = llm.Disabled{}
	}
	cctx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := provider.Complete(cctx, llm.Request{
		Model:        s.Model,
		SystemPrompt: s.SystemPrompt,
		UserMessage:  msg,
		MaxTokens:    s.MaxTokens,
		Temperature:  s.Temperature,
	})
	elapsed := time.Since(start)
	meta := domain.MessageMetadata{ResponseTimeMs: elapsed.Milliseconds(), Model: s.Model}

	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = &llm.ProviderError{Kind: llm.KindUnknown, Err: errors.New("empty completion")}
	}
	if err != nil {
		kind := llm.KindOf(err)
		observability.ObserveCompletion(provider.Name(), kind, elapsed, 0)
		loggerFrom(ctx).Warn().Err(err).
			Str("provider", provider.Name()).
			Str("kind", kind).
			Str("account_id", accountID).
			Str("session_id", sessionID).
			Msg("completion failed, sending fallback reply")
		meta.Error = kind
		return FallbackReply, meta
	}

	if resp.Model != "" {
		meta.Model = resp.Model
	}
	meta.Tokens = domain.TokenUsage{
		Prompt:     resp.PromptTokens,
		Completion: resp.CompletionTokens,
		Total:      resp.TotalTokens,
	}
	meta.Cost = float64(resp.TotalTokens) * s.CostPerToken
	observability.ObserveCompletion(provider.Name(), "ok", elapsed, resp.TotalTokens)
	return resp.Text, meta
}

func (s *TurnService) remember(ctx context.Context, accountID, sessionID, key, reply string, at time.Time) {
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	rec := &domain.Idempotency{
		AccountID:    accountID,
		SessionID:    sessionID,
		Key:          key,
		ResponseText: reply,
		RespondedAt:  at,
		ExpiresAt:    domain.Now().Add(ttl),
	}
	if err := s.Idem.SaveIdempotency(ctx, rec); err != nil && !errors.Is(err, repo.ErrDuplicate) {
		loggerFrom(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("idempotency save failed")
	}
}
