package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

// WithRequestMetadata adds the client IP, raw User-Agent and a short
// client description to ctx for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ua := r.Header.Get("User-Agent")
	ctx = core.ContextWithIPAddress(ctx, r.RemoteAddr) // already resolved by TrustedRealIP
	ctx = core.ContextWithUserAgent(ctx, ua)
	if client := describeClient(ua); client != "" {
		ctx = core.ContextWithClient(ctx, client)
	}
	return ctx
}

// describeClient summarizes a User-Agent as "Firefox 128.0 / Linux x86_64".
func describeClient(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot: " + name
	}

	name, version := ua.Browser()
	parts := []string{strings.TrimSpace(name + " " + version)}
	if os := ua.OS(); os != "" {
		parts = append(parts, os)
	}
	if ua.Mobile() {
		parts = append(parts, "mobile")
	}
	return strings.Join(parts, " / ")
}
