package gatekeeper

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type acceptLanguageContextKey struct{}

// WithClientIP attaches the caller's address to ctx. Login uses it as the
// lockout key and records it on the new session.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the User-Agent header. Login classifies it into
// browser, OS and device for the session listing.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithAcceptLanguage attaches the Accept-Language header for login
// notifications.
func WithAcceptLanguage(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, acceptLanguageContextKey{}, lang)
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

func acceptLanguageFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	lang, _ := ctx.Value(acceptLanguageContextKey{}).(string)
	return lang
}
