package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/config"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

func serveIdentity(cfg *config.SecurityConfig, headers map[string]string) (core.Principal, int) {
	var got core.Principal
	h := Identity(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/persons", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return got, rec.Code
}

func TestIdentity(t *testing.T) {
	open := &config.SecurityConfig{}
	locked := &config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}

	tests := []struct {
		name     string
		cfg      *config.SecurityConfig
		headers  map[string]string
		want     core.Principal
		wantCode int
	}{
		{
			name:     "anonymous",
			cfg:      open,
			want:     core.Principal{},
			wantCode: http.StatusOK,
		},
		{
			name:     "role is normalized",
			cfg:      open,
			headers:  map[string]string{HeaderPrincipalID: "u1", HeaderPrincipalRole: " Admin "},
			want:     core.Principal{ID: "u1", Role: core.RoleAdmin},
			wantCode: http.StatusOK,
		},
		{
			name:     "unknown role kept for core to reject",
			cfg:      open,
			headers:  map[string]string{HeaderPrincipalID: "u1", HeaderPrincipalRole: "root"},
			want:     core.Principal{ID: "u1", Role: "root"},
			wantCode: http.StatusOK,
		},
		{
			name:     "headers ignored without api key",
			cfg:      locked,
			headers:  map[string]string{HeaderPrincipalID: "u1", HeaderPrincipalRole: "admin"},
			want:     core.Principal{},
			wantCode: http.StatusOK,
		},
		{
			name:     "headers trusted with valid api key",
			cfg:      locked,
			headers:  map[string]string{HeaderAPIKey: "k2", HeaderPrincipalID: "u1", HeaderPrincipalRole: "moderator"},
			want:     core.Principal{ID: "u1", Role: core.RoleModerator},
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong api key rejected",
			cfg:      locked,
			headers:  map[string]string{HeaderAPIKey: "nope", HeaderPrincipalID: "u1", HeaderPrincipalRole: "admin"},
			want:     core.Principal{},
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, code := serveIdentity(tt.cfg, tt.headers)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsValidAPIKey(t *testing.T) {
	keys := []string{"alpha", "beta"}
	assert.True(t, isValidAPIKey("beta", keys))
	assert.False(t, isValidAPIKey("bet", keys))
	assert.False(t, isValidAPIKey("", keys))
	assert.False(t, isValidAPIKey("alpha", nil))
}
