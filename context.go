package credcore

import (
	"context"

	"github.com/MrEthical07/credcore/internal"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's resolved IP address to ctx. Together
// with the user agent it forms the trusted-device fingerprint and it is
// recorded as the last login IP. A request carrying neither has no
// fingerprint and cannot be remembered as a trusted device.
//
// Resolve it proxy-aware before calling; httpauth.ClientIP does that for
// net/http requests.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func fingerprintFromContext(ctx context.Context) string {
	return internal.Fingerprint(userAgentFromContext(ctx), clientIPFromContext(ctx))
}
