package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/widget/internal/bridge"
	"github.com/xiaot623/gogo/widget/internal/config"
	"github.com/xiaot623/gogo/widget/internal/hub"
	"github.com/xiaot623/gogo/widget/internal/policy"
)

func newTestServer(t *testing.T, allowed ...string) *Server {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	cfg := &config.Config{
		PublicURL:      "https://chat.example",
		AllowedOrigins: allowed,
	}
	return NewServer(cfg, hub.NewHub(zerolog.Nop()), engine, nil, zerolog.Nop())
}

func get(t *testing.T, s *Server, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t), "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, 0.0, resp["connections"])
}

func TestLoaderScript(t *testing.T) {
	rec := get(t, newTestServer(t), "/embed.js?tenantId=acme&mode=bare", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")

	body := rec.Body.String()
	assert.Contains(t, body, `const SOURCE = "gogo-widget"`)
	assert.Contains(t, body, `tenantId: "acme"`)
	assert.Contains(t, body, `mode: "bare"`)
	assert.Contains(t, body, `const FRAME_ORIGIN = "https://chat.example"`)
	assert.Contains(t, body, bridge.DefaultElementID)
	assert.Contains(t, body, bridge.AttrTenantID)
	assert.Contains(t, body, bridge.GlobalTenantID)
}

func TestLoaderBuildsFrameSrcWithURLAPI(t *testing.T) {
	body := get(t, newTestServer(t), "/embed.js?tenantId=acme", nil).Body.String()
	assert.Contains(t, body, "new URL(FRAME_URL)")
	assert.Contains(t, body, `src.searchParams.set("tenantId", config.tenantId)`)
	assert.NotContains(t, body, `FRAME_URL + "?"`)
}

func TestLoaderEscapesParameters(t *testing.T) {
	rec := get(t, newTestServer(t), `/embed.js?tenantId=%22%29%3Balert(1)%2F%2F`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `tenantId: "");alert(1)//"`)
}

func TestFrameWithoutTenantShowsConfigError(t *testing.T) {
	rec := get(t, newTestServer(t), "/widget", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "tenantId is required")
	assert.NotContains(t, body, "new WebSocket")
}

func TestFrameRendersThemeAndHello(t *testing.T) {
	rec := get(t, newTestServer(t), "/widget?tenantId=acme&tenantPrimaryColor=%23112233&mode=bare", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "--primary: #112233")
	assert.Contains(t, body, "--bg: transparent")
	assert.Contains(t, body, `"tenant_id":"acme"`)
	assert.Contains(t, body, "new WebSocket")
}

func TestFramePolicy(t *testing.T) {
	s := newTestServer(t, "https://shop.example")

	rec := get(t, s, "/widget?tenantId=acme", map[string]string{"Referer": "https://evil.example/page"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(t, s, "/widget?tenantId=acme", map[string]string{"Referer": "https://shop.example/cart?x=1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s, "/widget?tenantId=acme", map[string]string{"Origin": "https://shop.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFrameWithoutAllowListAcceptsAnyOrigin(t *testing.T) {
	rec := get(t, newTestServer(t), "/widget?tenantId=acme", map[string]string{"Referer": "https://anything.example/"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, requestOrigin(req))

	req.Header.Set("Referer", "https://shop.example/a/b")
	assert.Equal(t, "https://shop.example", requestOrigin(req))

	req.Header.Set("Origin", "https://other.example")
	assert.Equal(t, "https://other.example", requestOrigin(req))
}
