package http

import (
	"net/http"
	"strings"

	"coreconnect/internal/audit"
	"coreconnect/internal/config"
	"coreconnect/internal/domain"
	"coreconnect/internal/entitlement"
	"coreconnect/internal/identity"
	"coreconnect/internal/license"
	"coreconnect/internal/rbac"
	"coreconnect/internal/tenantscope"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityContextKey = "identity"

var defaultExemptPaths = []string{"/health", "/healthz", "/docs", "/openapi.json", "/entitlements"}

// Guard is the entitlement middleware: it composes the license verifier,
// identity resolver, module entitlement check and RBAC into one pass/fail
// decision per request, in a fixed short-circuiting order.
type Guard struct {
	cfg          config.Config
	licenses     *license.Verifier
	identities   *identity.Resolver
	rbac         *rbac.Resolver
	entitlements *entitlement.Checker
	audit        *audit.Emitter
	limiter      domain.RateLimiter
	log          *zap.Logger
	exempt       []string
}

type GuardDeps struct {
	Licenses     *license.Verifier
	Identities   *identity.Resolver
	RBAC         *rbac.Resolver
	Entitlements *entitlement.Checker
	Audit        *audit.Emitter
	Limiter      domain.RateLimiter
	Logger       *zap.Logger
	// PublicPaths are instance-specific prefixes exempt from all checks,
	// e.g. payment-provider webhooks.
	PublicPaths []string
}

func NewGuard(cfg config.Config, deps GuardDeps) *Guard {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	exempt := make([]string, 0, len(defaultExemptPaths)+len(cfg.ExemptPaths)+len(deps.PublicPaths))
	exempt = append(exempt, defaultExemptPaths...)
	exempt = append(exempt, cfg.ExemptPaths...)
	exempt = append(exempt, deps.PublicPaths...)
	return &Guard{
		cfg:          cfg,
		licenses:     deps.Licenses,
		identities:   deps.Identities,
		rbac:         deps.RBAC,
		entitlements: deps.Entitlements,
		audit:        deps.Audit,
		limiter:      deps.Limiter,
		log:          logger,
		exempt:       exempt,
	}
}

// Middleware runs the precedence chain. Order is fixed: exemptions, license,
// module binding, identity, admin bypass, rate limit, tenant entitlement,
// RBAC. The first failure terminates the request.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || g.isExempt(c.Request.URL.Path) {
			c.Next()
			return
		}

		if !g.licenses.IsModuleEnabled(g.cfg.ModuleID) {
			g.deny(c, http.StatusForbidden, codeModuleNotLicensed, "module not licensed", nil)
			return
		}

		// An instance that guards no specific module performs no further
		// checks.
		if g.cfg.ModuleID == "" {
			c.Next()
			return
		}

		id, err := g.ResolveIdentity(c)
		if err != nil {
			g.log.Debug("identity resolution failed", zap.Error(err))
			g.deny(c, http.StatusUnauthorized, codeUnauthenticated, "unauthenticated", nil)
			return
		}

		// The tenant binding rides on the request context, so it is dropped
		// on every exit path, panics included.
		ctx := tenantscope.WithTenant(c.Request.Context(), id.TenantID)
		c.Request = c.Request.WithContext(ctx)

		if id.IsPlatformAdmin {
			g.allow(c, id)
			return
		}

		if !g.enforceRateLimit(c, id) {
			return
		}

		enabled, err := g.entitlements.ModuleEnabled(ctx, id, g.cfg.ModuleID)
		if err != nil {
			g.log.Warn("module entitlement check failed", zap.Error(err))
			g.deny(c, http.StatusForbidden, codePolicyUnavailable, "forbidden", id)
			return
		}
		if !enabled {
			g.deny(c, http.StatusForbidden, codeModuleNotEnabled, "module not enabled for tenant", id)
			return
		}

		perm, ok := rbac.PermissionForRequest(g.cfg.ModuleID, c.Request.Method)
		if !ok {
			g.deny(c, http.StatusForbidden, codeInsufficientPerms, "insufficient permissions", id)
			return
		}
		allowed, err := g.rbac.HasPermission(ctx, id, perm)
		if err != nil {
			g.log.Warn("rbac check failed", zap.Error(err))
			g.deny(c, http.StatusForbidden, codePolicyUnavailable, "forbidden", id)
			return
		}
		if !allowed {
			g.deny(c, http.StatusForbidden, codeInsufficientPerms, "insufficient permissions", id)
			return
		}

		g.allow(c, id)
	}
}

// ResolveIdentity resolves and memoizes the caller identity for this request.
// A second call returns the cached result.
func (g *Guard) ResolveIdentity(c *gin.Context) (*domain.Identity, error) {
	if id, ok := IdentityFromContext(c); ok {
		return id, nil
	}
	id, err := g.identities.Resolve(c.Request)
	if err != nil {
		return nil, err
	}
	c.Set(identityContextKey, id)
	return id, nil
}

func (g *Guard) allow(c *gin.Context, id *domain.Identity) {
	if rbac.WriteMethod(c.Request.Method) {
		g.audit.Decision(c.Request.Context(), id.TenantID, id.UserID,
			domain.AuditResultAllowed, "", c.Request.URL.Path, c.Request.Method)
	}
	c.Next()
}

func (g *Guard) deny(c *gin.Context, status int, code, message string, id *domain.Identity) {
	tenantID, actorID := "", ""
	if id != nil {
		tenantID, actorID = id.TenantID, id.UserID
	}
	g.audit.Decision(c.Request.Context(), tenantID, actorID,
		domain.AuditResultDenied, code, c.Request.URL.Path, c.Request.Method)
	writeErrorCode(c, status, code, message)
	c.Abort()
}

func (g *Guard) isExempt(path string) bool {
	for _, prefix := range g.exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IdentityFromContext returns the identity the guard attached for downstream
// handlers.
func IdentityFromContext(c *gin.Context) (*domain.Identity, bool) {
	raw, ok := c.Get(identityContextKey)
	if !ok {
		return nil, false
	}
	id, ok := raw.(*domain.Identity)
	return id, ok
}
