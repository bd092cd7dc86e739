// Package auth implements stateless multi-scheme request authentication:
// static bearer tokens, self-describing HMAC-signed bearer tokens, and static
// API keys, all resolved against operator-supplied configuration into a
// normalized identity. The engine is a pure decision function; it holds no
// mutable state and persists nothing.
package auth

// Principal types.
const (
	PrincipalUser    = "user"
	PrincipalService = "service"
)

// Authentication methods recorded on a resolved identity.
const (
	MethodBearer = "bearer"
	MethodAPIKey = "api_key"
)

// Error codes. Every code maps to HTTP 401; the coarse classification is all
// a caller learns, never which specific check failed.
const (
	CodeInvalidSignature   = "invalid_signature"
	CodeInvalidCredentials = "invalid_credentials"
	CodeMissingCredentials = "missing_credentials"
	CodeExpiredToken       = "expired_token"
	CodeRevokedKey         = "revoked_key"
	CodeDisabledIdentity   = "disabled_identity"
)

// signedTokenPrefix marks the self-describing HMAC-signed bearer format.
const signedTokenPrefix = "v1."

// Error is a classified authentication failure.
type Error struct {
	Code       string `json:"code"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Detail
}

func newError(code, detail string) *Error {
	return &Error{Code: code, Detail: detail, StatusCode: 401}
}

// CredentialRecord is one configured static credential, keyed in
// configuration by the literal token or API key string.
type CredentialRecord struct {
	UserID           string
	PrincipalType    string
	DisplayName      *string
	KeyID            *string
	Disabled         bool
	Scopes           []string
	ScopeEnforced    bool
	ServiceAccountID *string
}

// Identity is the normalized result of a successful authentication.
// Scopes is never nil so it always serializes as a JSON array.
type Identity struct {
	UserID           string   `json:"user_id"`
	PrincipalType    string   `json:"principal_type"`
	DisplayName      *string  `json:"display_name"`
	AuthMethod       string   `json:"auth_method"`
	KeyID            *string  `json:"key_id"`
	Scopes           []string `json:"scopes"`
	ScopeEnforced    bool     `json:"scope_enforced"`
	ServiceAccountID *string  `json:"service_account_id"`
}

func identityFromRecord(record *CredentialRecord, method string) *Identity {
	scopes := record.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return &Identity{
		UserID:           record.UserID,
		PrincipalType:    record.PrincipalType,
		DisplayName:      record.DisplayName,
		AuthMethod:       method,
		KeyID:            record.KeyID,
		Scopes:           scopes,
		ScopeEnforced:    record.ScopeEnforced,
		ServiceAccountID: record.ServiceAccountID,
	}
}
