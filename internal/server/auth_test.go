package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIssueAndValidateToken(t *testing.T) {
	token, err := IssueToken(testJWT, "writer")
	require.NoError(t, err)

	claims, err := ValidateToken(testJWT, token)
	require.NoError(t, err)
	assert.Equal(t, "writer", claims.User)

	expired, err := IssueToken(JWTConfig{Secret: testJWT.Secret, TTL: -time.Minute}, "writer")
	require.NoError(t, err)
	_, err = ValidateToken(testJWT, expired)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	token, err := IssueToken(testJWT, "writer")
	require.NoError(t, err)

	handler := AuthMiddleware(zap.NewNop(), testJWT)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "writer", user)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
