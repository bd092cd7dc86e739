package auth

import "strings"

// Config carries the raw operator-supplied credential configuration.
// All fields are optional; blanks mean "not configured".
type Config struct {
	// BearerTokensJSON maps literal bearer token strings to credential records.
	BearerTokensJSON string
	// APIKeysJSON maps literal API key strings to credential records.
	APIKeysJSON string
	// SigningSecrets is a "kid:secret,kid2:secret2" list for signed tokens.
	SigningSecrets string
	// ActiveKIDs is a comma-separated allow-list of signing key ids.
	// Empty means every configured kid is allowed.
	ActiveKIDs string
	// RevokedKeyIDs is a comma-separated deny-list of key ids.
	RevokedKeyIDs string
	// BootstrapToken, when set and no static bearer tokens are configured,
	// acts as a single synthetic bearer credential for initial setup.
	BootstrapToken string
	// BootstrapUserID overrides the synthetic bootstrap identity's user id.
	BootstrapUserID string
}

// Store holds the parsed credential configuration for one authentication
// call. It is immutable after construction.
type Store struct {
	bearerTokens   map[string]*CredentialRecord
	apiKeys        map[string]*CredentialRecord
	signingSecrets map[string]string
	activeKIDs     map[string]struct{}
	revokedKeyIDs  map[string]struct{}
}

// NewStore parses the configuration. The bootstrap token becomes a synthetic
// bearer credential only when zero static bearer tokens parsed; it must never
// activate alongside a real configured token.
func NewStore(cfg Config) *Store {
	bearerTokens := parseRecordMap(cfg.BearerTokensJSON)
	if len(bearerTokens) == 0 && strings.TrimSpace(cfg.BootstrapToken) != "" {
		userID := strings.TrimSpace(cfg.BootstrapUserID)
		if userID == "" {
			userID = "bootstrap-user"
		}
		displayName := "Local Bootstrap User"
		keyID := "bootstrap"
		bearerTokens[cfg.BootstrapToken] = &CredentialRecord{
			UserID:        userID,
			PrincipalType: PrincipalUser,
			DisplayName:   &displayName,
			KeyID:         &keyID,
			Scopes:        []string{},
		}
	}

	return &Store{
		bearerTokens:   bearerTokens,
		apiKeys:        parseRecordMap(cfg.APIKeysJSON),
		signingSecrets: parseKeyValueMap(cfg.SigningSecrets),
		activeKIDs:     parseStringSet(cfg.ActiveKIDs),
		revokedKeyIDs:  parseStringSet(cfg.RevokedKeyIDs),
	}
}

func (s *Store) bearerToken(token string) (*CredentialRecord, bool) {
	record, ok := s.bearerTokens[token]
	return record, ok
}

func (s *Store) apiKey(key string) (*CredentialRecord, bool) {
	record, ok := s.apiKeys[key]
	return record, ok
}

func (s *Store) signingSecret(kid string) (string, bool) {
	secret, ok := s.signingSecrets[kid]
	return secret, ok
}

func (s *Store) kidActive(kid string) bool {
	if len(s.activeKIDs) == 0 {
		return true
	}
	_, ok := s.activeKIDs[kid]
	return ok
}

func (s *Store) kidRevoked(kid string) bool {
	_, ok := s.revokedKeyIDs[kid]
	return ok
}
