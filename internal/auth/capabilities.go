package auth

import "sort"

// SnapshotVersion identifies the capability snapshot schema.
const SnapshotVersion = "auth-core-go-v1"

// Snapshot is a read-only diagnostic summary of the configured credential
// stores. It exposes counts and key identifiers only, never a credential or
// secret value, and deliberately ignores the bootstrap fallback: it reflects
// configuration as written.
type Snapshot struct {
	Version       string                `json:"version"`
	Enforcement   SnapshotEnforcement   `json:"enforcement"`
	Providers     SnapshotProviders     `json:"providers"`
	IdentityModel SnapshotIdentityModel `json:"identity_model"`
}

type SnapshotEnforcement struct {
	MandatoryAuthentication        bool `json:"mandatory_authentication"`
	LocalhostRequiresAuthentication bool `json:"localhost_requires_authentication"`
	RemoteRequiresAuthentication   bool `json:"remote_requires_authentication"`
}

type SnapshotProviders struct {
	Bearer SnapshotBearerProvider `json:"bearer"`
	APIKey SnapshotAPIKeyProvider `json:"api_key"`
}

type SnapshotBearerProvider struct {
	SupportsStaticTokens       bool     `json:"supports_static_tokens"`
	SupportsSignedTokens       bool     `json:"supports_signed_tokens"`
	ConfiguredStaticTokenCount int      `json:"configured_static_token_count"`
	ConfiguredSigningKIDCount  int      `json:"configured_signing_kid_count"`
	ActiveKIDs                 []string `json:"active_kids"`
}

type SnapshotAPIKeyProvider struct {
	SupportsStaticAPIKeys           bool     `json:"supports_static_api_keys"`
	SupportsSpaceServiceAccountKeys bool     `json:"supports_space_service_account_keys"`
	ConfiguredStaticAPIKeyCount     int      `json:"configured_static_api_key_count"`
	RevokedKeyIDs                   []string `json:"revoked_key_ids"`
}

type SnapshotIdentityModel struct {
	PrincipalTypes []string `json:"principal_types"`
	Fields         []string `json:"fields"`
}

// CapabilitiesSnapshot summarizes the credential configuration for
// diagnostics.
func CapabilitiesSnapshot(cfg Config) *Snapshot {
	bearerTokens := parseRecordMap(cfg.BearerTokensJSON)
	apiKeys := parseRecordMap(cfg.APIKeysJSON)
	signingSecrets := parseKeyValueMap(cfg.SigningSecrets)
	activeKIDs := sortedKeys(parseStringSet(cfg.ActiveKIDs))
	revokedKeyIDs := sortedKeys(parseStringSet(cfg.RevokedKeyIDs))

	return &Snapshot{
		Version: SnapshotVersion,
		Enforcement: SnapshotEnforcement{
			MandatoryAuthentication:        true,
			LocalhostRequiresAuthentication: true,
			RemoteRequiresAuthentication:   true,
		},
		Providers: SnapshotProviders{
			Bearer: SnapshotBearerProvider{
				SupportsStaticTokens:       true,
				SupportsSignedTokens:       true,
				ConfiguredStaticTokenCount: len(bearerTokens),
				ConfiguredSigningKIDCount:  len(signingSecrets),
				ActiveKIDs:                 activeKIDs,
			},
			APIKey: SnapshotAPIKeyProvider{
				SupportsStaticAPIKeys:           true,
				SupportsSpaceServiceAccountKeys: true,
				ConfiguredStaticAPIKeyCount:     len(apiKeys),
				RevokedKeyIDs:                   revokedKeyIDs,
			},
		},
		IdentityModel: SnapshotIdentityModel{
			PrincipalTypes: []string{PrincipalUser, PrincipalService},
			Fields: []string{
				"user_id", "principal_type", "display_name", "auth_method",
				"key_id", "scopes", "scope_enforced", "service_account_id",
			},
		},
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
