package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"coreconnect/internal/config"
	"coreconnect/internal/domain"
	"coreconnect/internal/identity"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if cfg.AuthMode == "" {
		cfg.AuthMode = domain.ResolveHeader
	}
	return NewServerWithDeps(cfg, ServerDeps{})
}

func serve(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func serverAdminHeaders() map[string]string {
	return map[string]string{
		identity.HeaderUserID:   guardUserID,
		identity.HeaderTenantID: guardTenantID,
		identity.HeaderRoles:    domain.PlatformAdminRole,
	}
}

func TestHealthzNoDB(t *testing.T) {
	s := newTestServer(t, config.Config{Enforcement: domain.EnforcementWarn})
	w := serve(s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "no-db", body["mode"])
}

func TestEntitlementsWithValidLicense(t *testing.T) {
	licenseJSON, publicKey := licenseFor(t, "crm", "billing")
	s := newTestServer(t, config.Config{
		Enforcement:      domain.EnforcementStrict,
		LicenseJSON:      licenseJSON,
		LicensePublicKey: publicKey,
	})
	w := serve(s, http.MethodGet, "/entitlements", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp entitlementsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Valid)
	require.Equal(t, []string{"billing", "crm"}, resp.Modules)
	require.Empty(t, resp.Errors)
}

func TestEntitlementsWithoutLicense(t *testing.T) {
	s := newTestServer(t, config.Config{Enforcement: domain.EnforcementWarn})
	w := serve(s, http.MethodGet, "/entitlements", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp entitlementsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Valid)
	require.Equal(t, []string{}, resp.Modules)
	require.Contains(t, resp.Errors, "license_missing")
}

func TestAdminEndpointsRequireIdentity(t *testing.T) {
	s := newTestServer(t, config.Config{Enforcement: domain.EnforcementWarn})
	w := serve(s, http.MethodGet, "/v1/admin/tenants/"+guardTenantID+"/modules", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminEndpointsRejectNonAdmin(t *testing.T) {
	s := newTestServer(t, config.Config{Enforcement: domain.EnforcementWarn})
	headers := map[string]string{
		identity.HeaderUserID:   guardUserID,
		identity.HeaderTenantID: guardTenantID,
	}
	w := serve(s, http.MethodGet, "/v1/admin/tenants/"+guardTenantID+"/modules", "", headers)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminModulesWithoutStore(t *testing.T) {
	s := newTestServer(t, config.Config{Enforcement: domain.EnforcementWarn})
	w := serve(s, http.MethodGet, "/v1/admin/tenants/"+guardTenantID+"/modules", "", serverAdminHeaders())
	// No database configured: the admin surface reports the resource missing.
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminSetModuleValidatesStatus(t *testing.T) {
	s := newTestServer(t, config.Config{Enforcement: domain.EnforcementWarn})
	w := serve(s, http.MethodPut, "/v1/admin/tenants/"+guardTenantID+"/modules/crm",
		`{"status":"SOMETIMES"}`, serverAdminHeaders())
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_STATUS", decodeError(t, w).Code)
}

func TestAdminSetModuleRejectsBadJSON(t *testing.T) {
	s := newTestServer(t, config.Config{Enforcement: domain.EnforcementWarn})
	w := serve(s, http.MethodPut, "/v1/admin/tenants/"+guardTenantID+"/modules/crm",
		`{not json`, serverAdminHeaders())
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_JSON", decodeError(t, w).Code)
}

func TestAdminReloadLicense(t *testing.T) {
	licenseJSON, publicKey := licenseFor(t, "crm")
	s := newTestServer(t, config.Config{
		Enforcement:      domain.EnforcementStrict,
		LicenseJSON:      licenseJSON,
		LicensePublicKey: publicKey,
	})
	w := serve(s, http.MethodPost, "/v1/admin/license/reload", "", serverAdminHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["valid"])
}

func TestRunFailsOnInvalidLicenseStrict(t *testing.T) {
	s := newTestServer(t, config.Config{Enforcement: domain.EnforcementStrict})
	err := s.Run()
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrLicenseInvalid)
}
