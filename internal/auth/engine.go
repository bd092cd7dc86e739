package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Engine resolves request credentials against a parsed Store. It is stateless
// and safe for concurrent use.
type Engine struct {
	store   *Store
	metrics *Metrics
	// now is injectable for expiry tests.
	now func() time.Time
}

// NewEngine creates an authentication engine. Metrics may be nil.
func NewEngine(store *Store, metrics *Metrics) *Engine {
	return &Engine{store: store, metrics: metrics, now: time.Now}
}

// Authenticate resolves the Authorization and X-API-Key header values into an
// identity or a classified error. Decision order: Authorization wins when
// present, then X-API-Key, then missing_credentials.
func (e *Engine) Authenticate(authorization, apiKey string) (*Identity, *Error) {
	identity, authErr := e.authenticate(authorization, apiKey)
	if e.metrics != nil {
		method := methodOf(authorization, apiKey)
		if authErr != nil {
			e.metrics.ObserveAttempt(method, authErr.Code)
		} else {
			e.metrics.ObserveAttempt(method, "ok")
		}
	}
	return identity, authErr
}

func methodOf(authorization, apiKey string) string {
	if strings.TrimSpace(authorization) != "" {
		return MethodBearer
	}
	if strings.TrimSpace(apiKey) != "" {
		return MethodAPIKey
	}
	return "none"
}

func (e *Engine) authenticate(authorization, apiKey string) (*Identity, *Error) {
	if strings.TrimSpace(authorization) != "" {
		scheme, token, found := strings.Cut(authorization, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return nil, newError(CodeInvalidCredentials, "Authorization header must use Bearer scheme")
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, newError(CodeMissingCredentials, "Missing bearer token")
		}
		if strings.HasPrefix(token, signedTokenPrefix) {
			return e.authenticateSignedBearer(token)
		}
		record, ok := e.store.bearerToken(token)
		if !ok {
			return nil, newError(CodeInvalidCredentials, "Invalid bearer token")
		}
		if record.KeyID != nil && e.store.kidRevoked(*record.KeyID) {
			return nil, newError(CodeRevokedKey, "Bearer token has been revoked")
		}
		if record.Disabled {
			return nil, newError(CodeDisabledIdentity, "Principal is disabled")
		}
		return identityFromRecord(record, MethodBearer), nil
	}

	if strings.TrimSpace(apiKey) != "" {
		record, ok := e.store.apiKey(strings.TrimSpace(apiKey))
		if !ok {
			return nil, newError(CodeInvalidCredentials, "Invalid API key")
		}
		if record.KeyID != nil && e.store.kidRevoked(*record.KeyID) {
			return nil, newError(CodeRevokedKey, "API key has been revoked")
		}
		if record.Disabled {
			return nil, newError(CodeDisabledIdentity, "Principal is disabled")
		}
		return identityFromRecord(record, MethodAPIKey), nil
	}

	return nil, newError(CodeMissingCredentials,
		"Authentication required. Provide Authorization: Bearer <token> or X-API-Key.")
}

// authenticateSignedBearer verifies a self-describing "v1." token: three
// dot-separated segments, the second a base64url (no padding) JSON payload
// and the third the base64url HMAC-SHA256 of the raw payload segment under
// the secret selected by the payload's kid.
func (e *Engine) authenticateSignedBearer(token string) (*Identity, *Error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, newError(CodeInvalidSignature, "Malformed signed bearer token")
	}
	payloadSegment := parts[1]
	payloadBytes, err := base64.RawURLEncoding.DecodeString(payloadSegment)
	if err != nil {
		return nil, newError(CodeInvalidSignature, "Malformed signed bearer token")
	}
	signatureBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, newError(CodeInvalidSignature, "Malformed signed bearer token")
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, newError(CodeInvalidSignature, "Invalid signed token payload")
	}

	kid, _ := payload["kid"].(string)
	if kid == "" {
		return nil, newError(CodeInvalidSignature, "Signed token missing key id")
	}
	if !e.store.kidActive(kid) {
		return nil, newError(CodeRevokedKey, "Token signed by inactive key")
	}
	if e.store.kidRevoked(kid) {
		return nil, newError(CodeRevokedKey, "Token key id has been revoked")
	}

	secret, ok := e.store.signingSecret(kid)
	if !ok {
		return nil, newError(CodeInvalidSignature, "Unknown token signing key")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payloadSegment))
	expectedHex := hex.EncodeToString(mac.Sum(nil))
	actualHex := hex.EncodeToString(signatureBytes)
	if !verifyDigest(expectedHex, actualHex) {
		return nil, newError(CodeInvalidSignature, "Invalid bearer token signature")
	}

	exp, ok := payload["exp"].(float64)
	if !ok {
		return nil, newError(CodeInvalidCredentials, "Signed token missing exp")
	}
	if exp < float64(e.now().Unix()) {
		return nil, newError(CodeExpiredToken, "Bearer token has expired")
	}

	sub, _ := payload["sub"].(string)
	if sub == "" {
		return nil, newError(CodeInvalidCredentials, "Signed token missing subject")
	}
	if boolOrFalse(payload, "disabled") {
		return nil, newError(CodeDisabledIdentity, "Principal is disabled")
	}

	principalType := PrincipalUser
	if value, isString := payload["principal_type"].(string); isString {
		principalType = value
	}
	if principalType != PrincipalUser && principalType != PrincipalService {
		return nil, newError(CodeInvalidCredentials, "Invalid principal type")
	}

	return &Identity{
		UserID:           sub,
		PrincipalType:    principalType,
		DisplayName:      optionalString(payload, "display_name"),
		AuthMethod:       MethodBearer,
		KeyID:            &kid,
		Scopes:           parseScopes(payload["scopes"]),
		ScopeEnforced:    boolOrFalse(payload, "scope_enforced"),
		ServiceAccountID: optionalString(payload, "service_account_id"),
	}, nil
}

// verifyDigest compares two hex digests in constant time after an
// equal-length precheck. Never early-exits on mismatch position.
func verifyDigest(expected, actual string) bool {
	if len(expected) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
