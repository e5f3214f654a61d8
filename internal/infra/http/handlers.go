package http

import (
	"errors"
	"net/http"
	"time"

	"coreconnect/internal/domain"
	"coreconnect/internal/infra/db"
	"coreconnect/internal/tenantscope"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type entitlementsResponse struct {
	Valid      bool           `json:"valid"`
	Modules    []string       `json:"modules"`
	Errors     []string       `json:"errors,omitempty"`
	CustomerID string         `json:"customer_id,omitempty"`
	Plan       string         `json:"plan,omitempty"`
	Limits     map[string]any `json:"limits,omitempty"`
	IssuedAt   *time.Time     `json:"issued_at,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

type moduleStatusResponse struct {
	TenantID   string         `json:"tenant_id"`
	Module     string         `json:"module"`
	Status     string         `json:"status"`
	Config     map[string]any `json:"config,omitempty"`
	EnabledAt  *time.Time     `json:"enabled_at,omitempty"`
	DisabledAt *time.Time     `json:"disabled_at,omitempty"`
	UpdatedBy  string         `json:"updated_by,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type moduleStatusRequest struct {
	Status string         `json:"status"`
	Config map[string]any `json:"config"`
}

type adminTenantRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	dbMode := "no-db"
	if s.store != nil && s.store.DB != nil {
		dbMode = "db"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
}

// handleEntitlements reports the license verification outcome. The modules
// listed here are what the license grants, not what any tenant has switched
// on.
func (s *Server) handleEntitlements(c *gin.Context) {
	state := s.licenses.Verify()
	resp := entitlementsResponse{
		Valid:     state.Valid,
		Modules:   state.Modules,
		Errors:    state.Errors,
		ExpiresAt: state.ExpiresAt,
	}
	if resp.Modules == nil {
		resp.Modules = []string{}
	}
	for _, payload := range state.Payloads {
		if v, ok := payload["customer_id"].(string); ok && resp.CustomerID == "" {
			resp.CustomerID = v
		}
		if v, ok := payload["plan"].(string); ok && resp.Plan == "" {
			resp.Plan = v
		}
		if v, ok := payload["limits"].(map[string]any); ok && resp.Limits == nil {
			resp.Limits = v
		}
		if resp.IssuedAt == nil {
			resp.IssuedAt = payloadTimestamp(payload, "issued_at")
		}
	}
	c.JSON(http.StatusOK, resp)
}

func payloadTimestamp(payload map[string]any, key string) *time.Time {
	raw, ok := payload[key].(string)
	if !ok {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &ts
}

func (s *Server) handleAdminReloadLicense(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	s.licenses.Reload()
	state := s.licenses.Verify()
	c.JSON(http.StatusOK, gin.H{
		"valid":   state.Valid,
		"modules": state.Modules,
		"errors":  state.Errors,
	})
}

func (s *Server) handleAdminListModules(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.modules == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	tenantID := c.Param("tenant_id")
	ctx := tenantscope.WithAllTenants(c.Request.Context())
	ents, err := s.modules.List(ctx, tenantID)
	if err != nil {
		writeErrorCode(c, http.StatusInternalServerError, codeStoreError, "failed to list modules")
		return
	}
	out := make([]moduleStatusResponse, 0, len(ents))
	for _, ent := range ents {
		out = append(out, buildModuleResponse(ent))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAdminSetModule(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	tenantID := c.Param("tenant_id")
	module := c.Param("module")
	var req moduleStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, codeInvalidJSON, "invalid json")
		return
	}
	status, ok := domain.ParseModuleStatus(req.Status)
	if !ok {
		writeErrorCode(c, http.StatusBadRequest, codeInvalidStatus, "status must be ENABLED, DISABLED or TRIAL")
		return
	}
	if s.modules == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	actorID := ""
	if id, found := IdentityFromContext(c); found {
		actorID = id.UserID
	}
	ctx := tenantscope.WithAllTenants(c.Request.Context())
	if err := s.modules.SetStatus(ctx, tenantID, module, status, actorID, req.Config); err != nil {
		writeErrorCode(c, http.StatusInternalServerError, codeStoreError, "failed to update module")
		return
	}
	s.audit.ModuleChanged(ctx, tenantID, actorID, module, status)
	c.JSON(http.StatusOK, gin.H{
		"tenant_id": tenantID,
		"module":    module,
		"status":    string(status),
	})
}

func (s *Server) handleAdminCreateTenant(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.tenants == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req adminTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, codeInvalidJSON, "invalid json")
		return
	}
	if req.Name == "" {
		writeErrorCode(c, http.StatusBadRequest, codeInvalidJSON, "name is required")
		return
	}
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = uuid.NewString()
	}
	tenant := db.Tenant{
		ID:        tenantID,
		Name:      req.Name,
		Active:    true,
		Status:    "ACTIVE",
		CreatedAt: time.Now().UTC(),
	}
	ctx := tenantscope.WithAllTenants(c.Request.Context())
	if err := s.tenants.Create(ctx, tenant); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			writeErrorCode(c, http.StatusConflict, "ALREADY_EXISTS", "tenant already exists")
			return
		}
		writeErrorCode(c, http.StatusInternalServerError, codeStoreError, "failed to create tenant")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID})
}

func (s *Server) handleAdminGetTenant(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.tenants == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	ctx := tenantscope.WithAllTenants(c.Request.Context())
	tenant, err := s.tenants.GetByID(ctx, c.Param("tenant_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id":  tenant.ID,
		"name":       tenant.Name,
		"created_at": tenant.CreatedAt,
	})
}

// requireAdmin gates the admin surface on the platform admin role. The role
// may arrive as a claim or be assigned in the policy store.
func (s *Server) requireAdmin(c *gin.Context) bool {
	id, err := s.guard.ResolveIdentity(c)
	if err != nil {
		writeErrorCode(c, http.StatusUnauthorized, codeUnauthenticated, "unauthenticated")
		c.Abort()
		return false
	}
	if id.IsPlatformAdmin {
		return true
	}
	// The guard may have allowed the request without binding a tenant
	// (exempt path, unbound instance); the role lookup needs the scope.
	ctx := c.Request.Context()
	if _, ok := tenantscope.FromContext(ctx); !ok {
		ctx = tenantscope.WithTenant(ctx, id.TenantID)
	}
	ok, err := s.rbac.HasRole(ctx, id, domain.PlatformAdminRole)
	if err != nil {
		writeError(c, err)
		c.Abort()
		return false
	}
	if !ok {
		writeErrorCode(c, http.StatusForbidden, codeForbidden, "platform admin required")
		c.Abort()
		return false
	}
	return true
}

func buildModuleResponse(ent domain.ModuleEntitlement) moduleStatusResponse {
	return moduleStatusResponse{
		TenantID:   ent.TenantID,
		Module:     ent.Module,
		Status:     string(ent.Status),
		Config:     ent.Config,
		EnabledAt:  ent.EnabledAt,
		DisabledAt: ent.DisabledAt,
		UpdatedBy:  ent.UpdatedBy,
		UpdatedAt:  ent.UpdatedAt,
	}
}
