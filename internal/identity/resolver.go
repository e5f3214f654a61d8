package identity

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"coreconnect/internal/config"
	"coreconnect/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderUserID      = "X-User-Id"
	HeaderTenantID    = "X-Tenant-Id"
	HeaderRoles       = "X-Roles"
	HeaderPermissions = "X-Permissions"
	HeaderModules     = "X-Modules"
	HeaderOrgOverride = "X-Org-Id"
)

// Resolver builds an Identity from an inbound request, either by verifying a
// bearer token or by trusting gateway-set headers. Resolution is idempotent
// per request; the guard memoizes the result on the request context.
type Resolver struct {
	cfg config.Config
	log *zap.Logger

	verifyKey any
}

func NewResolver(cfg config.Config, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{cfg: cfg, log: logger}
	switch cfg.AuthMode {
	case domain.ResolveToken:
		if cfg.JWTVerify {
			key, err := verificationKey(cfg)
			if err != nil {
				return nil, err
			}
			r.verifyKey = key
		}
	case domain.ResolveHeader:
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
	return r, nil
}

func (r *Resolver) Resolve(req *http.Request) (*domain.Identity, error) {
	var (
		id  *domain.Identity
		err error
	)
	switch r.cfg.AuthMode {
	case domain.ResolveToken:
		id, err = r.resolveToken(req)
	case domain.ResolveHeader:
		id, err = r.resolveHeader(req)
	default:
		err = fmt.Errorf("%w: auth mode not configured", domain.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}

	id.IsPlatformAdmin = id.IsPlatformAdmin ||
		id.HasRoleClaim(domain.PlatformAdminRole) ||
		id.HasPermissionClaim(domain.PlatformAdminPermission)

	if err := r.applyTenantOverride(req, id); err != nil {
		return nil, err
	}

	// Tenant scope is mandatory: a caller with no tenant and no admin
	// override never gets an implicit one.
	if id.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant scope", domain.ErrUnauthenticated)
	}
	id.ModuleAccess = make(map[string]bool)
	return id, nil
}

func (r *Resolver) resolveToken(req *http.Request) (*domain.Identity, error) {
	token := extractBearerToken(req.Header.Get("Authorization"))
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthenticated)
	}
	claims, err := r.decodeToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}

	subject := firstStringClaim(claims, "sub", "user_id")
	userID, err := parseID(subject)
	if err != nil {
		return nil, fmt.Errorf("%w: missing or invalid user id", domain.ErrUnauthenticated)
	}
	tenantID := ""
	if raw := firstStringClaim(claims, "tenant_id", "org_id"); raw != "" {
		tenantID, err = parseID(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tenant id", domain.ErrUnauthenticated)
		}
	}

	isAdmin, _ := claims["is_platform_admin"].(bool)
	return &domain.Identity{
		UserID:          userID,
		TenantID:        tenantID,
		Roles:           NormalizeClaim(claims["roles"]),
		Permissions:     NormalizeClaim(claims["permissions"]),
		Modules:         NormalizeClaim(claims["modules"]),
		IsPlatformAdmin: isAdmin,
		RawClaims:       claims,
		Mode:            domain.ResolveToken,
	}, nil
}

func (r *Resolver) resolveHeader(req *http.Request) (*domain.Identity, error) {
	userRaw := strings.TrimSpace(req.Header.Get(HeaderUserID))
	tenantRaw := strings.TrimSpace(req.Header.Get(HeaderTenantID))
	if userRaw == "" && r.cfg.AllowAnonymous {
		userRaw = r.cfg.DefaultUserID
	}
	if tenantRaw == "" && r.cfg.AllowAnonymous {
		tenantRaw = r.cfg.DefaultTenantID
	}
	if userRaw == "" || tenantRaw == "" {
		return nil, fmt.Errorf("%w: missing %s or %s", domain.ErrUnauthenticated, HeaderUserID, HeaderTenantID)
	}
	userID, err := parseID(userRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id", domain.ErrUnauthenticated)
	}
	tenantID, err := parseID(tenantRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tenant id", domain.ErrUnauthenticated)
	}
	return &domain.Identity{
		UserID:      userID,
		TenantID:    tenantID,
		Roles:       SplitCSV(req.Header.Get(HeaderRoles)),
		Permissions: SplitCSV(req.Header.Get(HeaderPermissions)),
		Modules:     SplitCSV(req.Header.Get(HeaderModules)),
		RawClaims:   map[string]any{},
		Mode:        domain.ResolveHeader,
	}, nil
}

// applyTenantOverride honors the org-override header for platform admins and
// ignores it for everyone else. The home tenant is retained so downstream
// audit can see the impersonation.
func (r *Resolver) applyTenantOverride(req *http.Request, id *domain.Identity) error {
	override := strings.TrimSpace(req.Header.Get(HeaderOrgOverride))
	if override == "" {
		return nil
	}
	if !id.IsPlatformAdmin {
		r.log.Debug("ignoring tenant override from non-admin",
			zap.String("user_id", id.UserID))
		return nil
	}
	overrideID, err := parseID(override)
	if err != nil {
		return fmt.Errorf("%w: invalid org override", domain.ErrUnauthenticated)
	}
	if id.TenantID != "" && id.TenantID != overrideID {
		id.HomeTenantID = id.TenantID
	}
	id.TenantID = overrideID
	return nil
}

func (r *Resolver) decodeToken(token string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods(validMethods(r.cfg.JWTAlgorithm)))
	if !r.cfg.JWTVerify {
		if _, _, err := parser.ParseUnverified(token, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return r.verifyKey, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func validMethods(alg string) []string {
	if alg == "" {
		return []string{"HS256"}
	}
	return []string{alg}
}

func verificationKey(cfg config.Config) (any, error) {
	switch {
	case strings.HasPrefix(cfg.JWTAlgorithm, "HS"), cfg.JWTAlgorithm == "":
		if cfg.JWTSecret == "" {
			return nil, errors.New("AUTH_JWT_SECRET is required for HMAC verification")
		}
		return []byte(cfg.JWTSecret), nil
	default:
		if cfg.JWTPublicKeyPEM == "" {
			return nil, errors.New("AUTH_JWT_PUBLIC_KEY is required")
		}
		return parsePublicKeyPEM(cfg.JWTPublicKeyPEM, cfg.JWTAlgorithm)
	}
}

func parsePublicKeyPEM(raw, alg string) (any, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("invalid PEM block in AUTH_JWT_PUBLIC_KEY")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	switch alg {
	case "EdDSA":
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return nil, errors.New("AUTH_JWT_PUBLIC_KEY is not an Ed25519 key")
		}
		return pub, nil
	default:
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("AUTH_JWT_PUBLIC_KEY is not an RSA key")
		}
		return pub, nil
	}
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

func firstStringClaim(claims map[string]any, keys ...string) string {
	for _, key := range keys {
		if raw, ok := claims[key]; ok {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func parseID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
