package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/serroba/guardflux/internal/audit"
	"github.com/serroba/guardflux/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOutput struct {
	Body string `json:"body"`
}

func setupTestAPI(t *testing.T) (*chi.Mux, chan audit.RequestMeta) {
	t.Helper()

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("Test", "1.0.0"))
	api.UseMiddleware(middleware.RequestMeta(api))

	metas := make(chan audit.RequestMeta, 1)

	huma.Get(api, "/test", func(ctx context.Context, _ *struct{}) (*testOutput, error) {
		metas <- audit.RequestMetaFromContext(ctx)

		return &testOutput{Body: "ok"}, nil
	})

	return router, metas
}

func TestRequestMeta(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    audit.RequestMeta
	}{
		{
			name:    "user agent and remote address",
			headers: map[string]string{"User-Agent": "TestAgent/1.0"},
			want:    audit.RequestMeta{ClientIP: "192.0.2.1", UserAgent: "TestAgent/1.0"},
		},
		{
			name:    "single X-Forwarded-For",
			headers: map[string]string{"X-Forwarded-For": "192.168.1.1"},
			want:    audit.RequestMeta{ClientIP: "192.168.1.1"},
		},
		{
			name:    "first of several X-Forwarded-For",
			headers: map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.1, 172.16.0.1"},
			want:    audit.RequestMeta{ClientIP: "192.168.1.1"},
		},
		{
			name:    "X-Real-IP when X-Forwarded-For is absent",
			headers: map[string]string{"X-Real-IP": "10.0.0.1"},
			want:    audit.RequestMeta{ClientIP: "10.0.0.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, metas := setupTestAPI(t)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Del("User-Agent")

			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, <-metas)
		})
	}
}
