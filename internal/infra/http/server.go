package http

import (
	"coreconnect/internal/audit"
	"coreconnect/internal/config"
	"coreconnect/internal/domain"
	"coreconnect/internal/entitlement"
	"coreconnect/internal/identity"
	"coreconnect/internal/infra/db"
	"coreconnect/internal/infra/ratelimit"
	"coreconnect/internal/license"
	"coreconnect/internal/rbac"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine
	log   *zap.Logger

	licenses     *license.Verifier
	identities   *identity.Resolver
	rbac         *rbac.Resolver
	entitlements *entitlement.Checker
	audit        *audit.Emitter
	guard        *Guard

	modules *db.ModuleEntitlementRepository
	tenants *db.TenantRepository

	rateLimiter domain.RateLimiter

	authInitErr error
}

func NewServer(cfg config.Config, store *db.Store, logger *zap.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{cfg: cfg, store: store, r: r, log: logger}
	s.initDeps()
	s.routes()
	return s
}

// ServerDeps lets tests inject fakes for any collaborator; nil fields fall
// back to what initDeps would build.
type ServerDeps struct {
	Licenses     *license.Verifier
	Identities   *identity.Resolver
	RBAC         *rbac.Resolver
	Entitlements *entitlement.Checker
	Audit        *audit.Emitter
	RateLimiter  domain.RateLimiter
	Modules      *db.ModuleEntitlementRepository
	Tenants      *db.TenantRepository
	Logger       *zap.Logger
	PublicPaths  []string
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:          cfg,
		r:            r,
		log:          logger,
		licenses:     deps.Licenses,
		identities:   deps.Identities,
		rbac:         deps.RBAC,
		entitlements: deps.Entitlements,
		audit:        deps.Audit,
		modules:      deps.Modules,
		tenants:      deps.Tenants,
		rateLimiter:  deps.RateLimiter,
	}
	if s.licenses == nil {
		s.licenses = license.NewVerifier(cfg, logger)
	}
	if s.identities == nil {
		resolver, err := identity.NewResolver(cfg, logger)
		if err != nil {
			s.authInitErr = err
		}
		s.identities = resolver
	}
	if s.rbac == nil {
		s.rbac = rbac.NewResolver(nil, cfg.Enforcement, logger)
	}
	if s.entitlements == nil {
		var statuses entitlement.Store
		if s.modules != nil {
			statuses = s.modules
		}
		s.entitlements = entitlement.NewChecker(statuses, logger)
	}
	if s.audit == nil {
		s.audit = audit.NewEmitter(nil, logger)
	}
	s.initRateLimit(deps.RateLimiter)
	s.initGuard(deps.PublicPaths)
	s.routes()
	return s
}

func (s *Server) initDeps() {
	s.licenses = license.NewVerifier(s.cfg, s.log)

	resolver, err := identity.NewResolver(s.cfg, s.log)
	if err != nil {
		s.authInitErr = err
	}
	s.identities = resolver

	var (
		policyRepo *db.PolicyRepository
		auditRepo  *db.AuditEventRepository
	)
	if s.store != nil && s.store.DB != nil {
		policyRepo = db.NewPolicyRepository(s.store)
		auditRepo = db.NewAuditEventRepository(s.store.DB)
		s.modules = db.NewModuleEntitlementRepository(s.store)
		s.tenants = db.NewTenantRepository(s.store)
	}

	if policyRepo != nil {
		s.rbac = rbac.NewResolver(policyRepo, s.cfg.Enforcement, s.log)
	} else {
		s.rbac = rbac.NewResolver(nil, s.cfg.Enforcement, s.log)
	}
	var statuses entitlement.Store
	if s.modules != nil {
		statuses = s.modules
	}
	s.entitlements = entitlement.NewChecker(statuses, s.log)
	if auditRepo != nil {
		s.audit = audit.NewEmitter(auditRepo, s.log)
	} else {
		s.audit = audit.NewEmitter(nil, s.log)
	}

	s.initRateLimit(nil)
	s.initGuard(nil)
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
}

func (s *Server) initGuard(publicPaths []string) {
	s.guard = NewGuard(s.cfg, GuardDeps{
		Licenses:     s.licenses,
		Identities:   s.identities,
		RBAC:         s.rbac,
		Entitlements: s.entitlements,
		Audit:        s.audit,
		Limiter:      s.rateLimiter,
		Logger:       s.log,
		PublicPaths:  publicPaths,
	})
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealthz)
	s.r.GET("/entitlements", s.handleEntitlements)

	s.r.Use(s.guard.Middleware())

	v1 := s.r.Group("/v1")
	{
		admin := v1.Group("/admin")
		{
			admin.POST("/license/reload", s.handleAdminReloadLicense)
			admin.POST("/tenants", s.handleAdminCreateTenant)
			admin.GET("/tenants/:tenant_id", s.handleAdminGetTenant)
			admin.GET("/tenants/:tenant_id/modules", s.handleAdminListModules)
			admin.PUT("/tenants/:tenant_id/modules/:module", s.handleAdminSetModule)
		}
	}
}

// Engine exposes the router for embedding the guard in a host service.
func (s *Server) Engine() *gin.Engine {
	return s.r
}

// Guard exposes the middleware so a host service can mount it on its own
// routes.
func (s *Server) Guard() *Guard {
	return s.guard
}

func (s *Server) Run() error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	if err := s.licenses.EnsureValid(); err != nil {
		return err
	}
	return s.r.Run(s.cfg.HTTPAddr)
}
