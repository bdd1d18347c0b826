package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tbourn/widget-chat-backend/internal/auth"
	"github.com/tbourn/widget-chat-backend/internal/config"
	"github.com/tbourn/widget-chat-backend/internal/domain"
	"github.com/tbourn/widget-chat-backend/internal/repo"
	"github.com/tbourn/widget-chat-backend/internal/utils"
)

const minPasswordLen = 8

// SignupInput is the registration form.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Company  string
	Website  string
}

// AuthResult is an account with a freshly issued bearer token.
type AuthResult struct {
	Account *domain.Account `json:"account"`
	Token   string          `json:"token"`
}

// AccountService handles registration, login, API keys, and admin account
// changes.
type AccountService struct {
	Store  repo.AccountStore
	Tokens *auth.Tokens
	Now    func() time.Time
}

func (s *AccountService) now() time.Time {
	if s.Now == nil {
		return domain.Now()
	}
	return domain.Normalize(s.Now())
}

// Signup creates a free-plan account with an API key.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)
	if name == "" || !strings.Contains(email, "@") || utf8.RuneCountInString(in.Password) < minPasswordLen {
		return nil, ErrInvalidAccount
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	key, err := auth.NewAPIKey()
	if err != nil {
		return nil, err
	}
	now := s.now()
	a := &domain.Account{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		APIKey:       &key,
		Company:      strings.TrimSpace(in.Company),
		Website:      strings.TrimSpace(in.Website),
		Subscription: domain.Subscription{Plan: config.PlanFree, Status: config.StatusActive},
		Usage:        domain.Usage{LastResetDate: now},
	}
	if err := s.Store.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return s.issue(a)
}

// Login verifies credentials and stamps the login time.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	a, err := s.Store.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(a.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	now := s.now()
	a.LastLoginAt = &now
	if err := s.Store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	return s.issue(a)
}

func (s *AccountService) issue(a *domain.Account) (*AuthResult, error) {
	if s.Tokens == nil {
		return &AuthResult{Account: a}, nil
	}
	tok, err := s.Tokens.Issue(a.ID, a.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Account: a, Token: tok}, nil
}

// Profile returns the account.
func (s *AccountService) Profile(ctx context.Context, accountID string) (*domain.Account, error) {
	a, err := s.Store.FindAccountByID(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return a, err
}

// RegenerateAPIKey replaces the account's API key. The old key stops
// resolving immediately.
func (s *AccountService) RegenerateAPIKey(ctx context.Context, accountID string) (string, error) {
	a, err := s.Profile(ctx, accountID)
	if err != nil {
		return "", err
	}
	key, err := auth.NewAPIKey()
	if err != nil {
		return "", err
	}
	a.APIKey = &key
	if err := s.Store.UpdateAccount(ctx, a); err != nil {
		return "", err
	}
	return key, nil
}

// ResolveAPIKey returns the account owning key.
func (s *AccountService) ResolveAPIKey(ctx context.Context, key string) (*domain.Account, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrUnauthorized
	}
	a, err := s.Store.FindAccountByAPIKey(ctx, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	return a, err
}

// ResolveToken returns the account named by a bearer token.
func (s *AccountService) ResolveToken(ctx context.Context, raw string) (*domain.Account, error) {
	if s.Tokens == nil {
		return nil, ErrUnauthorized
	}
	id, err := s.Tokens.Verify(raw)
	if err != nil {
		return nil, ErrUnauthorized
	}
	a, err := s.Store.FindAccountByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	return a, err
}

// ListPage returns a page of accounts, newest first, and the total.
func (s *AccountService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Account, int64, error) {
	_, size, offset := utils.Page(page, pageSize)
	total, err := s.Store.CountAccounts(ctx)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Account{}, 0, nil
	}
	items, err := s.Store.ListAccounts(ctx, offset, size)
	return items, total, err
}

// SetPlan changes the account's plan directly, bypassing billing.
func (s *AccountService) SetPlan(ctx context.Context, accountID, plan string) (*domain.Account, error) {
	p, ok := config.NormalizePlan(plan)
	if !ok {
		return nil, ErrInvalidPlan
	}
	a, err := s.Profile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	a.Subscription.Plan = p
	a.Subscription.Status = config.StatusActive
	if err := s.Store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// WidgetConfig returns the widget appearance for the account owning key.
// A blank or unknown key gets the defaults so the widget can still render.
func (s *AccountService) WidgetConfig(ctx context.Context, key string) (domain.WidgetConfig, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.DefaultWidgetConfig(), nil
	}
	a, err := s.Store.FindAccountByAPIKey(ctx, key)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.DefaultWidgetConfig(), nil
	}
	if err != nil {
		return domain.WidgetConfig{}, err
	}
	return a.Widget.WithDefaults(), nil
}

// UpdateWidgetConfig validates and applies a partial widget update.
func (s *AccountService) UpdateWidgetConfig(ctx context.Context, accountID string, p domain.WidgetConfigPatch) (domain.WidgetConfig, error) {
	a, err := s.Profile(ctx, accountID)
	if err != nil {
		return domain.WidgetConfig{}, err
	}
	next, err := p.Apply(a.Widget)
	if err != nil {
		return domain.WidgetConfig{}, fmt.Errorf("%w: %v", ErrInvalidWidgetConfig, err)
	}
	a.Widget = next
	if err := s.Store.UpdateAccount(ctx, a); err != nil {
		return domain.WidgetConfig{}, err
	}
	return next.WithDefaults(), nil
}
