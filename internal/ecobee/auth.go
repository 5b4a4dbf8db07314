package ecobee

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/thermopoll/internal/errors"
	"codeberg.org/mutker/thermopoll/internal/logger"
	"codeberg.org/mutker/thermopoll/internal/transport"
)

const (
	DefaultBaseURL = "https://api.ecobee.com"
	authScope      = "smartRead"
)

// ConfirmFunc surfaces the device-flow PIN to a human and blocks until the
// app has been authorized on the vendor portal. No timeout is enforced here;
// that is the caller's concern.
type ConfirmFunc func(pin string) error

// StdinConfirm prints the PIN and waits for Enter.
func StdinConfirm(pin string) error {
	fmt.Printf("Please authorize the app on the Ecobee portal using PIN: %s\n", pin)
	fmt.Print("Press Enter once authorized...")

	reader := bufio.NewReader(os.Stdin)
	_, err := reader.ReadString('\n')

	return err
}

// Manager owns the token lifecycle: device-flow acquisition when no token is
// persisted, lazy expiry-driven refresh, and persistence before any token is
// handed out. Refresh failures are surfaced, never retried here.
type Manager struct {
	apiKey  string
	baseURL string
	store   TokenStore
	httpc   *transport.Client
	confirm ConfirmFunc
	now     func() time.Time

	mu    sync.Mutex
	token *Token
}

type ManagerOption func(*Manager)

// WithBaseURL overrides the vendor endpoint, used by tests.
func WithBaseURL(u string) ManagerOption {
	return func(m *Manager) {
		m.baseURL = strings.TrimRight(u, "/")
	}
}

// WithConfirmFunc overrides the interactive confirmation step.
func WithConfirmFunc(f ConfirmFunc) ManagerOption {
	return func(m *Manager) {
		m.confirm = f
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(apiKey string, store TokenStore, httpc *transport.Client, opts ...ManagerOption) *Manager {
	m := &Manager{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		store:   store,
		httpc:   httpc,
		confirm: StdinConfirm,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Token returns a token whose expiry is in the future, acquiring or
// refreshing and persisting it first when necessary.
func (m *Manager) Token(ctx context.Context) (*Token, error) {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		stored, err := m.store.Load()
		if err != nil {
			return nil, err
		}
		if stored != nil {
			logger.Debug().Msg("Loaded persisted token; skipping interactive authorization")
			m.token = stored
		} else {
			acquired, err := m.acquire(ctx)
			if err != nil {
				return nil, err
			}
			m.token = acquired
		}
	}

	if !m.token.Valid(m.now()) {
		logger.Debug().Msg("Token has expired; refreshing")
		refreshed, err := m.refresh(ctx, m.token)
		if err != nil {
			return nil, err
		}
		m.token = refreshed
	}

	if m.token.AccessToken == "" {
		return nil, errFactory.New(ErrTokenParseFailed)
	}

	tok := *m.token

	return &tok, nil
}

// Invalidate marks the current token as expired so the next Token call goes
// through a refresh. Used when the vendor rejects a request with 401 despite
// a future expiry.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil {
		m.token.Expiry = 0
	}
}

type authorizeResponse struct {
	EcobeePin string `json:"ecobeePin"`
	Code      string `json:"code"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

func (m *Manager) acquire(ctx context.Context) (*Token, error) {
	errFactory := errors.New()

	query := url.Values{
		"response_type": {"ecobeePin"},
		"client_id":     {m.apiKey},
		"scope":         {authScope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/authorize?"+query.Encode(), nil)
	if err != nil {
		return nil, errFactory.Wrap(ErrAuthorizeFailed, err)
	}

	resp, err := m.httpc.Do(req)
	if err != nil {
		return nil, errFactory.Wrap(ErrAuthorizeFailed, err)
	}
	defer resp.Body.Close()

	auth := authorizeResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, errFactory.Wrap(ErrAuthorizeFailed, err)
	}

	if err := m.confirm(auth.EcobeePin); err != nil {
		return nil, errFactory.Wrap(ErrAuthAbandoned, err)
	}

	token, err := m.exchange(ctx, url.Values{
		"grant_type": {"ecobeePin"},
		"code":       {auth.Code},
		"client_id":  {m.apiKey},
	}, ErrTokenExchange)
	if err != nil {
		return nil, err
	}

	if err := m.store.Save(token); err != nil {
		return nil, err
	}
	logger.Debug().Msg("New token acquired and persisted")

	return token, nil
}

func (m *Manager) refresh(ctx context.Context, current *Token) (*Token, error) {
	token, err := m.exchange(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
		"client_id":     {m.apiKey},
	}, ErrRefreshDenied)
	if err != nil {
		return nil, err
	}

	if err := m.store.Save(token); err != nil {
		return nil, err
	}
	logger.Debug().Msg("Token refreshed and persisted")

	return token, nil
}

func (m *Manager) exchange(ctx context.Context, form url.Values, failCode errors.ErrorCode) (*Token, error) {
	errFactory := errors.New()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errFactory.Wrap(failCode, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return nil, errFactory.Wrap(failCode, err)
	}
	defer resp.Body.Close()

	tr := tokenResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, errFactory.Wrap(ErrTokenParseFailed, err)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return nil, errFactory.New(ErrTokenParseFailed)
	}

	return &Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
		Scope:        tr.Scope,
		Expiry:       m.now().Unix() + tr.ExpiresIn,
	}, nil
}
