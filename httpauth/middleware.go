package httpauth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/credcore"
)

type principalContextKey struct{}

// Authenticator is the slice of *credcore.Engine the guard needs.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*credcore.Principal, error)
}

// PrincipalFromContext returns the principal RequireFull stored.
func PrincipalFromContext(ctx context.Context) (*credcore.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*credcore.Principal)
	return p, ok
}

// RequestContext attaches the client IP and user agent to every request.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := credcore.WithClientIP(r.Context(), ClientIP(r))
		ctx = credcore.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireFull rejects requests without a valid full-scope bearer token.
// Pending second-factor tokens are refused.
func RequireFull(engine Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, credcore.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				WriteError(w, credcore.ErrTokenMalformed)
				return
			}

			p, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				if status(err) == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				}
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

var _ Authenticator = (*credcore.Engine)(nil)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func status(err error) int {
	var locked *credcore.LockedError
	switch {
	case errors.As(err, &locked):
		return http.StatusLocked
	case errors.Is(err, credcore.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, credcore.ErrInvalidCredentials),
		errors.Is(err, credcore.ErrTokenExpired),
		errors.Is(err, credcore.ErrTokenMalformed),
		errors.Is(err, credcore.ErrTokenNotYetValid),
		errors.Is(err, credcore.ErrTokenScope),
		errors.Is(err, credcore.ErrSecondFactorInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, credcore.ErrInvalidInput),
		errors.Is(err, credcore.ErrWeakPassword),
		errors.Is(err, credcore.ErrCodeExpired),
		errors.Is(err, credcore.ErrCodeInvalid):
		return http.StatusBadRequest
	case errors.Is(err, credcore.ErrEmailTaken),
		errors.Is(err, credcore.ErrSecondFactorAlreadyEnabled),
		errors.Is(err, credcore.ErrSecondFactorNotPending),
		errors.Is(err, credcore.ErrSecondFactorNotConfigured):
		return http.StatusConflict
	case errors.Is(err, credcore.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, credcore.ErrDeliveryFailed):
		return http.StatusBadGateway
	case errors.Is(err, credcore.ErrUnavailable), errors.Is(err, credcore.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
