package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fjod/tranex/internal/auth"
	"github.com/fjod/tranex/pkg/circuitbreaker"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const anonKey = "anon"

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func newGoTrue(t *testing.T, handler http.HandlerFunc) *auth.GoTrueClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return auth.NewGoTrueClient(srv.URL, anonKey, time.Second, nil)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestGoTrueClient_SignIn(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, exp)

	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, anonKey, r.Header.Get("apikey"))
		body := decodeBody(t, r)
		assert.Equal(t, "a@b.co", body["email"])
		assert.Equal(t, "secret123", body["password"])

		_, _ = w.Write([]byte(`{"access_token":"` + token + `","refresh_token":"r","token_type":"bearer",
			"expires_in":3600,"user":{"id":"user-1","email":"a@b.co","user_metadata":{"full_name":"Ada"}}}`))
	})

	session, err := c.SignIn(context.Background(), "a@b.co", "secret123")

	require.NoError(t, err)
	assert.Equal(t, token, session.AccessToken)
	assert.Equal(t, "r", session.RefreshToken)
	assert.True(t, exp.Equal(session.ExpiresAt), "expiry comes from the exp claim")
	assert.Equal(t, "user-1", session.User.ID)
	assert.Equal(t, "Ada", session.User.FullName())
}

func TestGoTrueClient_SignIn_NonJWTTokenUsesExpiresAt(t *testing.T) {
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"opaque","expires_at":1900000000,"user":{"id":"u"}}`))
	})

	session, err := c.SignIn(context.Background(), "a@b.co", "secret123")

	require.NoError(t, err)
	assert.Equal(t, int64(1900000000), session.ExpiresAt.Unix())
}

func TestGoTrueClient_SignIn_InvalidCredentials(t *testing.T) {
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	})

	_, err := c.SignIn(context.Background(), "a@b.co", "wrong")

	var pe *auth.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadRequest, pe.Status)
	assert.Equal(t, "Invalid login credentials", pe.Message)
}

func TestGoTrueClient_RejectionsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"msg":"Invalid login credentials"}`))
	}))
	t.Cleanup(srv.Close)
	breaker := circuitbreaker.New("gotrue-test", circuitbreaker.Config{ConsecutiveFailures: 1, Timeout: time.Minute}, nil)
	c := auth.NewGoTrueClient(srv.URL, anonKey, time.Second, breaker)

	for range 3 {
		_, err := c.SignIn(context.Background(), "a@b.co", "wrong")
		require.Error(t, err)
		assert.False(t, circuitbreaker.IsOpen(err))
	}
}

func TestGoTrueClient_SignUp_WithConfirmationReturnsUserOnly(t *testing.T) {
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, map[string]any{"full_name": "Ada"}, body["data"])
		_, _ = w.Write([]byte(`{"id":"user-1","email":"a@b.co","user_metadata":{"full_name":"Ada"}}`))
	})

	user, session, err := c.SignUp(context.Background(), "a@b.co", "secret123", map[string]any{"full_name": "Ada"})

	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "Ada", user.FullName())
}

func TestGoTrueClient_SignUp_AutoConfirmReturnsSession(t *testing.T) {
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"opaque","expires_in":60,"user":{"id":"user-1","email":"a@b.co"}}`))
	})

	user, session, err := c.SignUp(context.Background(), "a@b.co", "secret123", nil)

	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "user-1", user.ID)
	assert.False(t, session.ExpiresAt.IsZero())
}

func TestGoTrueClient_AuthenticatedCalls(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.Method+" "+r.URL.Path] = r.Header.Get("Authorization")
		mu.Unlock()
		switch r.Method + " " + r.URL.Path {
		case "POST /auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
		case "PUT /auth/v1/user":
			assert.Equal(t, "newpass123", decodeBody(t, r)["password"])
			_, _ = w.Write([]byte(`{"id":"user-1"}`))
		case "GET /auth/v1/user":
			_, _ = w.Write([]byte(`{"id":"user-1","email":"a@b.co"}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	require.NoError(t, c.SignOut(ctx, "tok"))
	_, err := c.UpdatePassword(ctx, "tok", "newpass123")
	require.NoError(t, err)
	u, err := c.GetUser(ctx, "tok")
	require.NoError(t, err)

	assert.Equal(t, "a@b.co", u.Email)
	mu.Lock()
	defer mu.Unlock()
	for call, authz := range seen {
		assert.Equal(t, "Bearer tok", authz, call)
	}
	assert.Len(t, seen, 3)
}

func TestGoTrueClient_RecoverPassword(t *testing.T) {
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/recover", r.URL.Path)
		assert.Equal(t, "https://shop.example/update-password", r.URL.Query().Get("redirect_to"))
		assert.Equal(t, "a@b.co", decodeBody(t, r)["email"])
		_, _ = w.Write([]byte(`{}`))
	})

	err := c.RecoverPassword(context.Background(), "a@b.co", "https://shop.example/update-password")

	assert.NoError(t, err)
}

func TestGoTrueClient_RefreshSession(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, exp)

	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "r1", decodeBody(t, r)["refresh_token"])

		_, _ = w.Write([]byte(`{"access_token":"` + token + `","refresh_token":"r2","token_type":"bearer",
			"user":{"id":"user-1","email":"a@b.co"}}`))
	})

	s, err := c.RefreshSession(context.Background(), "r1")

	require.NoError(t, err)
	assert.Equal(t, token, s.AccessToken)
	assert.Equal(t, "r2", s.RefreshToken)
	assert.True(t, s.ExpiresAt.Equal(exp))
	assert.Equal(t, "user-1", s.User.ID)
}

func TestGoTrueClient_RefreshSession_Revoked(t *testing.T) {
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token: Already Used"}`))
	})

	_, err := c.RefreshSession(context.Background(), "used")

	var pe *auth.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadRequest, pe.Status)
	assert.Equal(t, "Invalid Refresh Token: Already Used", pe.Message)
}
