// Package jwt implements [phototag.TokenSource] for the auth service's JWT
// access tokens.
//
// The access token's exp claim is read without verifying the signature (the
// client has no key and only needs to know when to refresh). When the token
// is about to expire it is exchanged at the refresh endpoint, and a rotated
// refresh token replaces the old one.
package jwt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fwojciec/phototag"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	defaultSkew  = 30 * time.Second
	maxErrorBody = 64 * 1024
)

// Interface compliance check.
var _ phototag.TokenSource = (*TokenSource)(nil)

// TokenSource caches an access token and refreshes it on demand.
// It is safe for concurrent use; concurrent callers share one refresh.
type TokenSource struct {
	mu      sync.Mutex
	access  string
	refresh string

	refreshURL string
	httpClient *http.Client
	skew       time.Duration
	now        func() time.Time
	logger     *zap.Logger
	parser     *jwt.Parser
}

// Option configures a [TokenSource].
type Option func(*TokenSource)

// WithRefreshURL sets the endpoint that exchanges a refresh token for a new
// access token. Without it, expired tokens cannot be renewed.
func WithRefreshURL(url string) Option {
	return func(s *TokenSource) { s.refreshURL = url }
}

// WithHTTPClient sets a custom HTTP client for refresh requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *TokenSource) { s.httpClient = hc }
}

// WithSkew sets how long before exp a token is already treated as expired.
func WithSkew(d time.Duration) Option {
	return func(s *TokenSource) { s.skew = d }
}

// WithClock overrides time.Now. Useful for testing.
func WithClock(now func() time.Time) Option {
	return func(s *TokenSource) { s.now = now }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *TokenSource) { s.logger = l }
}

// New creates a [TokenSource]. Either token may be empty.
func New(accessToken, refreshToken string, opts ...Option) *TokenSource {
	s := &TokenSource{
		access:     accessToken,
		refresh:    refreshToken,
		httpClient: http.DefaultClient,
		skew:       defaultSkew,
		now:        time.Now,
		logger:     zap.NewNop(),
		parser:     jwt.NewParser(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AccessToken returns a usable access token, refreshing it first if it is
// missing or about to expire. It returns "" with a nil error when there is no
// token and nothing to refresh it with.
func (s *TokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.access != "" && s.fresh(s.access) {
		return s.access, nil
	}
	if s.refresh == "" || s.refreshURL == "" {
		if s.access != "" {
			s.logger.Warn("access token expired and cannot be refreshed")
		}
		return "", nil
	}
	if err := s.doRefresh(ctx); err != nil {
		return "", fmt.Errorf("jwt: refresh: %w", err)
	}
	return s.access, nil
}

// Tokens returns the current access and refresh tokens, for callers that
// persist rotated credentials.
func (s *TokenSource) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, s.refresh
}

// fresh reports whether tok is usable for at least the skew window. Tokens
// that are not JWTs or carry no exp claim cannot be judged and count as fresh.
func (s *TokenSource) fresh(tok string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := s.parser.ParseUnverified(tok, claims); err != nil {
		s.logger.Debug("access token is not a JWT; using as-is", zap.Error(err))
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.After(s.now().Add(s.skew))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (s *TokenSource) doRefresh(ctx context.Context) error {
	body, err := json.Marshal(refreshRequest{RefreshToken: s.refresh})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Message != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, e.Message)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out.AccessToken == "" {
		return errors.New("response has no access token")
	}
	s.access = out.AccessToken
	if out.RefreshToken != "" {
		s.refresh = out.RefreshToken
	}
	s.logger.Info("access token refreshed", zap.Bool("rotated", out.RefreshToken != ""))
	return nil
}
