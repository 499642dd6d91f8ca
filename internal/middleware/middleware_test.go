package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/authz"
	"github.com/iliyamo/medconcierge/internal/config"
	"github.com/iliyamo/medconcierge/internal/utils"
)

const secret = "test-secret"

func token(t *testing.T, id uint64, role string) string {
	t.Helper()
	at, err := utils.NewAccessToken(secret, utils.Session{UserID: id, Role: role, Phone: "+4917612345678"}, 5)
	require.NoError(t, err)
	return "Bearer " + at.Token
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func do(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		s, ok := SessionFrom(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": s.UserID, "role": s.Role, "uid": currentUserID(c)})
	}, JWTAuth(secret))

	rec := do(e, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodGet, "/me", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodGet, "/me", token(t, 42, "CLIENT"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42,"role":"CLIENT","uid":"42"}`, rec.Body.String())
}

func TestAuthorize(t *testing.T) {
	enf, err := authz.NewEnforcer()
	require.NoError(t, err)

	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	g := e.Group("/api", JWTAuth(secret), Authorize(enf, zap.NewNop()))
	g.PATCH("/applications/:id/status", ok)
	g.GET("/applications/:id", ok)

	assert.Equal(t, http.StatusForbidden, do(e, http.MethodPatch, "/api/applications/5/status", token(t, 1, "CLIENT")).Code)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodPatch, "/api/applications/5/status", token(t, 2, "MANAGER")).Code)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodPatch, "/api/applications/5/status", token(t, 3, "ADMIN")).Code)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodGet, "/api/applications/5", token(t, 1, "CLIENT")).Code)
}

func TestTokenBucket(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 2 * time.Hour, KeyStrategy: "ip_route", Prefix: "rl",
	}
	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		NewTokenBucket(cfg, newRedis(t), zap.NewNop()))

	first := do(e, http.MethodPost, "/login", "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/login", "").Code)

	blocked := do(e, http.MethodPost, "/login", "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, nil, zap.NewNop()))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/x", "").Code)
	}
}

func TestRedisCache(t *testing.T) {
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 10,
	}
	calls := 0
	e := echo.New()
	e.GET("/api/reference", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}, NewRedisCache(cfg, newRedis(t), zap.NewNop()))

	miss := do(e, http.MethodGet, "/api/reference", "")
	require.Equal(t, http.StatusOK, miss.Code)
	assert.Equal(t, "MISS", miss.Header().Get("X-Cache"))

	hit := do(e, http.MethodGet, "/api/reference", "")
	require.Equal(t, http.StatusOK, hit.Code)
	assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
	assert.Equal(t, miss.Body.String(), hit.Body.String())
	assert.Contains(t, hit.Header().Get(echo.HeaderContentType), "application/json")
	assert.Equal(t, 1, calls)

	other := do(e, http.MethodGet, "/api/reference?kind=service", "")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestRedisCacheSkipsLargeBodies(t *testing.T) {
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 8,
	}
	calls := 0
	e := echo.New()
	e.GET("/big", func(c echo.Context) error {
		calls++
		return c.String(http.StatusOK, "this body is longer than eight bytes")
	}, NewRedisCache(cfg, newRedis(t), zap.NewNop()))

	for i := 0; i < 2; i++ {
		rec := do(e, http.MethodGet, "/big", "")
		assert.Equal(t, "this body is longer than eight bytes", rec.Body.String())
	}
	assert.Equal(t, 2, calls)
}

func TestObserveSetsRequestID(t *testing.T) {
	e := echo.New()
	e.Use(Observe(zap.NewNop()))
	e.GET("/fail", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "nope") })

	rec := do(e, http.MethodGet, "/fail", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, rec.Header().Get(headerRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(headerRequestID))
}
