package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTResolverRoundTrip(t *testing.T) {
	r := NewJWTResolver("secret", "photo-feed", time.Hour)
	token, err := r.Issue("u1")
	require.NoError(t, err)

	id, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestJWTResolverRejects(t *testing.T) {
	r := NewJWTResolver("secret", "photo-feed", time.Hour)

	other := NewJWTResolver("other-secret", "photo-feed", time.Hour)
	forged, err := other.Issue("u1")
	require.NoError(t, err)

	wrongIssuer := NewJWTResolver("secret", "someone-else", time.Hour)
	foreign, err := wrongIssuer.Issue("u1")
	require.NoError(t, err)

	expired := NewJWTResolver("secret", "photo-feed", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("u1")
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": forged,
		"wrong issuer": foreign,
		"expired":      old,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tok)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc"))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewJWTResolver("secret", "photo-feed", time.Hour)
	token, err := r.Issue("u42")
	require.NoError(t, err)

	engine := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }
	engine.GET("/me", Middleware(r, true, deny), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c.Request.Context()))
	})
	engine.GET("/open", Middleware(r, false, deny), func(c *gin.Context) {
		c.String(http.StatusOK, "anon:"+UserID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u42", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anon:", w.Body.String())
}
