package middleware

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/guardflux/internal/audit"
)

// RequestMeta is a middleware that adds client IP and user-agent to the
// request context, where audit events pick them up.
func RequestMeta(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		meta := audit.RequestMeta{
			ClientIP:  clientIP(ctx),
			UserAgent: ctx.Header("User-Agent"),
		}

		next(huma.WithContext(ctx, audit.ContextWithRequestMeta(ctx.Context(), meta)))
	}
}
