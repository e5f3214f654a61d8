package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"coreconnect/internal/domain"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	// Enforcement governs license, module and RBAC checks alike. There is
	// exactly one knob; per-check overrides do not exist.
	Enforcement domain.EnforcementMode

	AuthMode        domain.ResolutionMode
	JWTSecret       string
	JWTPublicKeyPEM string
	JWTAlgorithm    string
	JWTVerify       bool
	AllowAnonymous  bool
	DefaultUserID   string
	DefaultTenantID string

	ModuleID    string
	ExemptPaths []string

	LicensePath      string
	LicensesDir      string
	LicenseJSON      string
	LicenseSignature string
	LicensePublicKey string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	enforcement, ok := domain.ParseEnforcementMode(strings.ToLower(envDefault("ENFORCEMENT_MODE", string(domain.EnforcementStrict))))
	if !ok {
		// Ambiguous configuration fails closed.
		enforcement = domain.EnforcementStrict
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		Enforcement:            enforcement,
		AuthMode:               domain.ResolutionMode(envDefault("AUTH_MODE", string(domain.ResolveHeader))),
		JWTSecret:              os.Getenv("AUTH_JWT_SECRET"),
		JWTPublicKeyPEM:        os.Getenv("AUTH_JWT_PUBLIC_KEY"),
		JWTAlgorithm:           envDefault("AUTH_JWT_ALGORITHM", "HS256"),
		JWTVerify:              envBoolDefault("AUTH_JWT_VERIFY", true),
		AllowAnonymous:         envBoolDefault("AUTH_ALLOW_ANONYMOUS", false),
		DefaultUserID:          os.Getenv("DEFAULT_USER_ID"),
		DefaultTenantID:        os.Getenv("DEFAULT_TENANT_ID"),
		ModuleID:               os.Getenv("MODULE_ID"),
		ExemptPaths:            envCSV("EXEMPT_PATHS"),
		LicensePath:            os.Getenv("LICENSE_PATH"),
		LicensesDir:            os.Getenv("LICENSES_DIR"),
		LicenseJSON:            os.Getenv("LICENSE_JSON"),
		LicenseSignature:       os.Getenv("LICENSE_SIGNATURE"),
		LicensePublicKey:       os.Getenv("LICENSE_PUBLIC_KEY"),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
	}
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func envCSV(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
