package httpauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/password"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "10.0.0.2:1234", "198.51.100.7"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"remote without port", nil, "192.0.2.1", "192.0.2.1"},
		{"empty forwarded falls through", map[string]string{"X-Forwarded-For": " ,10.0.0.1"}, "192.0.2.1:80", "192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(r))
		})
	}
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	tok, ok = bearerToken("bearer  abc ")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	for _, v := range []string{"", "Bearer", "Bearer ", "Basic abc"} {
		_, ok := bearerToken(v)
		assert.False(t, ok, v)
	}
}

func newEngine(t *testing.T) *credcore.Engine {
	t.Helper()
	cfg := credcore.DefaultConfig()
	cfg.Password.Hash = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Lockout.FailureDelay = 0
	cfg.Tokens.SigningMethod = "hs256"
	cfg.Tokens.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	e, err := credcore.New().WithConfig(cfg).WithStore(credcore.NewMemoryStore()).Build()
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func meRouter(auth Authenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestContext)
	r.With(RequireFull(auth)).Get("/me", func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "no principal", http.StatusInternalServerError)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"id": p.AccountID, "role": string(p.Role)})
	})
	return r
}

func TestRequireFullAcceptsFullToken(t *testing.T) {
	e := newEngine(t)
	res, err := e.Register(context.Background(), "Ada", "a@x.com", "Abc123!@#")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rec := httptest.NewRecorder()
	meRouter(e).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, res.Account.ID, body["id"])
	assert.Equal(t, "standard", body["role"])
}

func TestRequireFullRejects(t *testing.T) {
	e := newEngine(t)
	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic Zm9vOmJhcg==",
		"garbage token":  "Bearer not.a.jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			meRouter(e).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			var body errorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "Invalid session token.", body.Error)
		})
	}
}

type authFunc func(ctx context.Context, token string) (*credcore.Principal, error)

func (f authFunc) Authenticate(ctx context.Context, token string) (*credcore.Principal, error) {
	return f(ctx, token)
}

func TestRequireFullLockedAccount(t *testing.T) {
	auth := authFunc(func(context.Context, string) (*credcore.Principal, error) {
		return nil, &credcore.LockedError{Until: time.Now().Add(30 * time.Minute)}
	})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	meRouter(auth).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestRequestContextFeedsEngine(t *testing.T) {
	var seenIP string
	auth := authFunc(func(ctx context.Context, _ string) (*credcore.Principal, error) {
		return &credcore.Principal{AccountID: "u1", Role: credcore.RoleStandard}, nil
	})
	r := chi.NewRouter()
	r.Use(RequestContext)
	r.With(RequireFull(auth)).Get("/ip", func(w http.ResponseWriter, r *http.Request) {
		seenIP = ClientIP(r)
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ip", nil)
	req.Header.Set("Authorization", "Bearer t")
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "203.0.113.5", seenIP)
}

func TestWriteErrorStatuses(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{credcore.ErrInvalidCredentials, http.StatusUnauthorized},
		{&credcore.RateLimitError{Retry: 90 * time.Second}, http.StatusTooManyRequests},
		{credcore.ErrWeakPassword, http.StatusBadRequest},
		{credcore.ErrCodeExpired, http.StatusBadRequest},
		{credcore.ErrEmailTaken, http.StatusConflict},
		{credcore.ErrDeviceNotFound, http.StatusNotFound},
		{credcore.ErrUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}

	rec := httptest.NewRecorder()
	WriteError(rec, &credcore.RateLimitError{Retry: 1500 * time.Millisecond})
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}
