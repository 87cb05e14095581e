package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
)

func preflight(handler http.Handler, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/listings/x/reserve", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCORSAdmitsConfiguredOrigins(t *testing.T) {
	handler := CORS(config.CORSConfig{
		AllowedOrigins: []string{" https://stadiumcard.app/ ", ""},
		MaxAge:         5 * time.Minute,
	})(http.NotFoundHandler())

	rec := preflight(handler, "https://stadiumcard.app")
	assert.Equal(t, "https://stadiumcard.app", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "300", rec.Header().Get("Access-Control-Max-Age"))

	rec = preflight(handler, "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardDropsCredentials(t *testing.T) {
	handler := CORS(config.CORSConfig{AllowedOrigins: []string{"*"}})(http.NotFoundHandler())
	rec := preflight(handler, "https://anywhere.example")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}
