package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fjod/tranex/internal/auth"
	"github.com/fjod/tranex/internal/cart"
	"github.com/fjod/tranex/internal/catalog"
	"github.com/fjod/tranex/internal/domain"
	"github.com/fjod/tranex/internal/fragment"
	"github.com/fjod/tranex/internal/preferences"
	"github.com/fjod/tranex/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// LookupMock serves products from a map.
type LookupMock struct {
	products map[string]domain.Product
	err      error
}

func (l LookupMock) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	if l.err != nil {
		return nil, l.err
	}
	p, ok := l.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

// AuthServiceMock records the last call and returns a canned result.
type AuthServiceMock struct {
	mu       sync.Mutex
	result   auth.Result
	calls    []string
	lastSID  string
	lastArgs []string
}

func (a *AuthServiceMock) record(op, sid string, args ...string) auth.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, op)
	a.lastSID = sid
	a.lastArgs = args
	return a.result
}

func (a *AuthServiceMock) SignUp(_ context.Context, sid, email, password, fullName string) auth.Result {
	return a.record("signup", sid, email, password, fullName)
}

func (a *AuthServiceMock) SignIn(_ context.Context, sid, email, password string) auth.Result {
	return a.record("signin", sid, email, password)
}

func (a *AuthServiceMock) SignOut(_ context.Context, sid string) auth.Result {
	return a.record("signout", sid)
}

func (a *AuthServiceMock) ResetPassword(_ context.Context, email string) auth.Result {
	return a.record("reset", "", email)
}

func (a *AuthServiceMock) UpdatePassword(_ context.Context, sid, password string) auth.Result {
	return a.record("password", sid, password)
}

func (a *AuthServiceMock) CurrentUser(_ context.Context, sid string) auth.Result {
	return a.record("user", sid)
}

func (a *AuthServiceMock) CurrentSession(_ context.Context, sid string) auth.Result {
	return a.record("session", sid)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

var errDown = errors.New("connection refused")

type testEnv struct {
	router   http.Handler
	storage  *storage.MemoryStorage
	registry *cart.Registry
	auth     *AuthServiceMock
	prefs    *preferences.Service
	cookie   *http.Cookie
}

func widgetProduct() domain.Product {
	return domain.Product{
		ID:     "widget",
		Name:   "Widget",
		Price:  decimal.RequireFromString("10"),
		Images: domain.ProductImages{Main: "/img/widget.jpg"},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := storage.NewMemoryStorage()
	registry := cart.NewRegistry(st, "", nil)

	sqlite, err := catalog.NewSQLiteCatalog(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	require.NoError(t, sqlite.RunMigrations("../catalog/migrations"))

	lookup := LookupMock{products: map[string]domain.Product{"widget": widgetProduct()}}
	prefs := preferences.NewService(st, nil)
	authMock := &AuthServiceMock{result: auth.Result{Success: true}}

	router := NewRouter(RouterConfig{
		Cart:        NewCartHandler(registry, lookup, decimal.NewFromInt(10), 5*time.Second, nil),
		Products:    NewProductHandler(catalog.NewLoader(sqlite, 0, nil), 5*time.Second),
		Auth:        NewAuthHandler(authMock, prefs, 5*time.Second),
		Preferences: NewPreferencesHandler(prefs),
		Fragments:   NewFragmentHandler(fragment.NewLoader(fragment.Embedded()), prefs),
		Health:      NewHealthHandler(map[string]Pinger{"storage": st}, time.Second),
		Timeout:     10 * time.Second,
	})

	return &testEnv{router: router, storage: st, registry: registry, auth: authMock, prefs: prefs}
}

// do sends a request through the router, carrying the session cookie between
// calls like a browser would.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			e.cookie = c
		}
	}
	return rec
}

func (e *testEnv) sessionID() string {
	if e.cookie == nil {
		return ""
	}
	return e.cookie.Value
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func withSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sid)
}
