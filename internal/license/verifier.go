package license

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"coreconnect/internal/config"
	"coreconnect/internal/domain"

	"go.uber.org/zap"
)

// Verifier loads the configured license documents, checks each Ed25519
// signature over the canonical payload encoding, and exposes the union of
// entitled modules. Verification runs once per process; concurrent first
// readers share the single run. Reload discards the memoized state.
type Verifier struct {
	cfg config.Config
	log *zap.Logger

	mu     sync.Mutex
	loaded bool
	state  domain.LicenseState
}

func NewVerifier(cfg config.Config, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{cfg: cfg, log: logger}
}

func (v *Verifier) Verify() domain.LicenseState {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.loaded {
		return v.state
	}
	v.state = v.verify()
	v.loaded = true
	return v.state
}

// State returns the memoized verification result, verifying first if needed.
func (v *Verifier) State() domain.LicenseState {
	return v.Verify()
}

// Reload discards the memoized state so the next read re-verifies.
func (v *Verifier) Reload() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loaded = false
	v.state = domain.LicenseState{}
}

// EnsureValid is called once at startup. Under strict enforcement an invalid
// state is fatal; under warn it is logged and the service keeps serving.
func (v *Verifier) EnsureValid() error {
	state := v.Verify()
	if state.Valid {
		return nil
	}
	if v.cfg.Enforcement.Warn() {
		v.log.Warn("license invalid, continuing in warn mode",
			zap.Strings("errors", state.Errors))
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrLicenseInvalid, strings.Join(state.Errors, ","))
}

// IsModuleEnabled reports whether the named module is licensed. An empty name
// always passes. An invalid license blocks nothing under warn enforcement and
// everything under strict.
func (v *Verifier) IsModuleEnabled(name string) bool {
	state := v.Verify()
	if !state.Valid {
		return v.cfg.Enforcement.Warn()
	}
	if name == "" {
		return true
	}
	return state.ModuleEntitled(name)
}

func (v *Verifier) verify() domain.LicenseState {
	state := domain.LicenseState{}

	docs, errs := v.loadDocuments()
	state.Errors = append(state.Errors, errs...)
	if len(docs) == 0 {
		if len(state.Errors) == 0 {
			state.Errors = append(state.Errors, "license_missing")
		}
		return state
	}

	if v.cfg.LicensePublicKey == "" {
		state.Errors = append(state.Errors, "public_key_missing")
		return state
	}
	pub, err := ParsePublicKey(v.cfg.LicensePublicKey)
	if err != nil {
		state.Errors = append(state.Errors, "public_key_invalid:"+err.Error())
		return state
	}

	modules := map[string]struct{}{}
	now := time.Now()
	for _, doc := range docs {
		payload, expiresAt, err := v.checkDocument(pub, doc, now)
		if err != nil {
			state.Errors = append(state.Errors, err.Error())
			continue
		}
		state.Payloads = append(state.Payloads, payload)
		for _, m := range payloadModules(payload) {
			modules[m] = struct{}{}
		}
		if expiresAt != nil && (state.ExpiresAt == nil || expiresAt.After(*state.ExpiresAt)) {
			state.ExpiresAt = expiresAt
		}
	}

	state.Modules = make([]string, 0, len(modules))
	for m := range modules {
		state.Modules = append(state.Modules, m)
	}
	sort.Strings(state.Modules)
	state.Valid = len(state.Payloads) > 0
	return state
}

// checkDocument applies the per-document pipeline: signature present, Ed25519
// over the canonical payload, then expiry. The returned error doubles as the
// recorded state error code.
func (v *Verifier) checkDocument(pub ed25519.PublicKey, doc domain.LicenseDocument, now time.Time) (map[string]any, *time.Time, error) {
	if strings.TrimSpace(doc.Signature) == "" {
		return nil, nil, errors.New("signature_missing")
	}
	sig, err := base64.StdEncoding.DecodeString(doc.Signature)
	if err != nil {
		return nil, nil, fmt.Errorf("verify_failed:%v", err)
	}
	canonical, err := Canonicalize(doc.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("verify_failed:%v", err)
	}
	if !ed25519.Verify(pub, canonical, sig) {
		return nil, nil, errors.New("verify_failed:signature mismatch")
	}

	var payload map[string]any
	dec := json.NewDecoder(strings.NewReader(string(doc.Payload)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("verify_failed:%v", err)
	}

	expiresAt := payloadExpiry(payload)
	if expiresAt != nil && expiresAt.Before(now) {
		return nil, nil, errors.New("license_expired")
	}
	return payload, expiresAt, nil
}

func (v *Verifier) loadDocuments() ([]domain.LicenseDocument, []string) {
	if v.cfg.LicensePath != "" {
		raw, err := os.ReadFile(v.cfg.LicensePath)
		if err != nil {
			return nil, []string{"license_missing"}
		}
		doc, err := v.parseDocument(raw)
		if err != nil {
			return nil, []string{"verify_failed:" + err.Error()}
		}
		return []domain.LicenseDocument{doc}, nil
	}

	if v.cfg.LicensesDir != "" {
		paths, _ := filepath.Glob(filepath.Join(v.cfg.LicensesDir, "*.json"))
		sort.Strings(paths)
		var docs []domain.LicenseDocument
		var errs []string
		for _, path := range paths {
			raw, err := os.ReadFile(path)
			if err != nil {
				v.log.Warn("failed to read license file", zap.String("path", path), zap.Error(err))
				continue
			}
			doc, err := v.parseDocument(raw)
			if err != nil {
				errs = append(errs, "verify_failed:"+err.Error())
				continue
			}
			docs = append(docs, doc)
		}
		return docs, errs
	}

	if v.cfg.LicenseJSON != "" {
		doc, err := v.parseDocument([]byte(v.cfg.LicenseJSON))
		if err != nil {
			return nil, []string{"verify_failed:" + err.Error()}
		}
		return []domain.LicenseDocument{doc}, nil
	}

	return nil, nil
}

// parseDocument accepts either {"payload": ..., "signature": ...} or a bare
// payload with the signature supplied out of band.
func (v *Verifier) parseDocument(raw []byte) (domain.LicenseDocument, error) {
	var doc domain.LicenseDocument
	if err := json.Unmarshal(raw, &doc); err == nil && len(doc.Payload) > 0 {
		if doc.Signature == "" {
			doc.Signature = v.cfg.LicenseSignature
		}
		return doc, nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return domain.LicenseDocument{}, err
	}
	return domain.LicenseDocument{
		Payload:   json.RawMessage(raw),
		Signature: v.cfg.LicenseSignature,
	}, nil
}

// ParsePublicKey accepts a PEM-encoded or raw base64 Ed25519 public key.
func ParsePublicKey(raw string) (ed25519.PublicKey, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "-----BEGIN") {
		block, _ := pem.Decode([]byte(raw))
		if block == nil {
			return nil, errors.New("invalid PEM block")
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return nil, errors.New("not an Ed25519 public key")
		}
		return pub, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.New("invalid Ed25519 public key length")
	}
	return ed25519.PublicKey(decoded), nil
}

func payloadModules(payload map[string]any) []string {
	raw, ok := payload["modules"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func payloadExpiry(payload map[string]any) *time.Time {
	for _, key := range []string{"expires_at", "expiry", "exp"} {
		if raw, ok := payload[key]; ok {
			if ts := parseTimestamp(raw); ts != nil {
				return ts
			}
		}
	}
	return nil
}

func parseTimestamp(raw any) *time.Time {
	switch v := raw.(type) {
	case json.Number:
		if secs, err := v.Float64(); err == nil {
			t := time.Unix(int64(secs), 0).UTC()
			return &t
		}
	case float64:
		t := time.Unix(int64(v), 0).UTC()
		return &t
	case string:
		value := strings.TrimSpace(v)
		if value == "" {
			return nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, value); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}
