package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/tranex/internal/domain"
	"github.com/fjod/tranex/pkg/circuitbreaker"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Provider is the hosted identity service.
type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.User, *domain.Session, error)
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	RecoverPassword(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, password string) (*domain.User, error)
	GetUser(ctx context.Context, accessToken string) (*domain.User, error)
}

// ProviderError is a non-2xx reply from the auth API.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("auth: status %d: %s", e.Status, e.Message)
}

// GoTrueClient talks to the Supabase auth REST API (/auth/v1).
type GoTrueClient struct {
	baseURL string
	anonKey string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	now     func() time.Time
}

func NewGoTrueClient(baseURL, anonKey string, timeout time.Duration, breaker *circuitbreaker.Breaker) *GoTrueClient {
	return &GoTrueClient{
		baseURL: strings.TrimRight(baseURL, "/") + "/auth/v1",
		anonKey: anonKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		now:     time.Now,
	}
}

type sessionPayload struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         *domain.User `json:"user"`
}

func (c *GoTrueClient) toSession(p sessionPayload) *domain.Session {
	s := &domain.Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresAt:    tokenExpiry(p.AccessToken),
	}
	if s.ExpiresAt.IsZero() {
		switch {
		case p.ExpiresAt > 0:
			s.ExpiresAt = time.Unix(p.ExpiresAt, 0)
		case p.ExpiresIn > 0:
			s.ExpiresAt = c.now().Add(time.Duration(p.ExpiresIn) * time.Second)
		}
	}
	if p.User != nil {
		s.User = *p.User
	}
	return s
}

// tokenExpiry reads the exp claim without verifying the signature; the token
// was just issued by the provider and is only inspected, never trusted.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// SignUp registers a user. With email confirmation enabled the provider
// returns only the user and the session is nil.
func (c *GoTrueClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.User, *domain.Session, error) {
	body := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	var raw json.RawMessage
	if err := c.call(ctx, http.MethodPost, "/signup", nil, "", body, &raw); err != nil {
		return nil, nil, err
	}

	var p sessionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, fmt.Errorf("decode signup: %w", err)
	}
	if p.AccessToken != "" {
		s := c.toSession(p)
		return &s.User, s, nil
	}

	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, nil, fmt.Errorf("decode signup user: %w", err)
	}
	return &u, nil, nil
}

func (c *GoTrueClient) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	var p sessionPayload
	q := url.Values{"grant_type": {"password"}}
	if err := c.call(ctx, http.MethodPost, "/token", q, "", map[string]string{"email": email, "password": password}, &p); err != nil {
		return nil, err
	}
	return c.toSession(p), nil
}

// RefreshSession trades a refresh token for a new session. The refresh token
// is single use; the returned session carries its replacement.
func (c *GoTrueClient) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	var p sessionPayload
	q := url.Values{"grant_type": {"refresh_token"}}
	if err := c.call(ctx, http.MethodPost, "/token", q, "", map[string]string{"refresh_token": refreshToken}, &p); err != nil {
		return nil, err
	}
	return c.toSession(p), nil
}

func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	return c.call(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil)
}

func (c *GoTrueClient) RecoverPassword(ctx context.Context, email, redirectTo string) error {
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	return c.call(ctx, http.MethodPost, "/recover", q, "", map[string]string{"email": email}, nil)
}

func (c *GoTrueClient) UpdatePassword(ctx context.Context, accessToken, password string) (*domain.User, error) {
	var u domain.User
	if err := c.call(ctx, http.MethodPut, "/user", nil, accessToken, map[string]string{"password": password}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (*domain.User, error) {
	var u domain.User
	if err := c.call(ctx, http.MethodGet, "/user", nil, accessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *GoTrueClient) call(ctx context.Context, method, path string, q url.Values, token string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}

	// rejected credentials and other 4xx replies must not trip the breaker
	type reply struct {
		body     []byte
		rejected error
	}
	r, err := circuitbreaker.Execute(c.breaker, func() (reply, error) {
		body, err := c.do(ctx, method, path, q, token, payload)
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Status < http.StatusInternalServerError {
			return reply{rejected: err}, nil
		}
		return reply{body: body}, err
	})
	if err != nil {
		return err
	}
	if r.rejected != nil {
		return r.rejected
	}
	body := r.body

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *GoTrueClient) do(ctx context.Context, method, path string, q url.Values, token string, payload []byte) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anonKey)
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{Status: resp.StatusCode, Message: errorMessage(body, resp.Status)}
	}
	return body, nil
}

// errorMessage picks the human readable field out of the several error
// shapes the auth API produces.
func errorMessage(body []byte, fallback string) string {
	var e struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		for _, m := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
			if m != "" {
				return m
			}
		}
	}
	return fallback
}
