package domain

import (
	"encoding/json"
	"time"
)

// LicenseDocument is one signed license blob: a payload plus a detached
// signature over the canonical encoding of that payload.
type LicenseDocument struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// LicenseState is the outcome of verifying every loaded license document.
// Modules is the union across all documents that passed verification; a
// document that fails contributes nothing but always leaves an error behind.
type LicenseState struct {
	Valid     bool
	Modules   []string
	Errors    []string
	ExpiresAt *time.Time
	Payloads  []map[string]any
}

// ModuleEntitled reports membership in the entitled set.
func (s LicenseState) ModuleEntitled(name string) bool {
	for _, m := range s.Modules {
		if m == name {
			return true
		}
	}
	return false
}
