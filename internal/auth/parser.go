package auth

import (
	"encoding/json"
	"sort"
	"strings"
)

// Credential configuration is operator-supplied and parsed with deliberate
// leniency: malformed entries are dropped, never rejected, so one bad record
// cannot lock every caller out. This is configuration-level leniency only;
// ledger parsing elsewhere fails fast by design.

// parseJSONMap parses a JSON object from a raw configuration string.
// Anything that is not a JSON object yields an empty map.
func parseJSONMap(raw string) map[string]json.RawMessage {
	if strings.TrimSpace(raw) == "" {
		return map[string]json.RawMessage{}
	}
	parsed := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]json.RawMessage{}
	}
	return parsed
}

// parseKeyValueMap parses "kid:secret,kid2:secret2" into a map, skipping
// malformed pairs and blank keys or values.
func parseKeyValueMap(raw string) map[string]string {
	result := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		item := strings.TrimSpace(pair)
		if item == "" {
			continue
		}
		key, value, found := strings.Cut(item, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key != "" && value != "" {
			result[key] = value
		}
	}
	return result
}

// parseStringSet parses a comma-separated list into a deduplicated set.
func parseStringSet(raw string) map[string]struct{} {
	result := map[string]struct{}{}
	for _, item := range strings.Split(raw, ",") {
		token := strings.TrimSpace(item)
		if token != "" {
			result[token] = struct{}{}
		}
	}
	return result
}

// parseScopes normalizes a decoded scopes value into a sorted, deduplicated
// list of non-empty trimmed strings. Non-array input yields an empty list.
func parseScopes(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return []string{}
	}
	seen := map[string]struct{}{}
	scopes := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			continue
		}
		scope := strings.TrimSpace(str)
		if scope == "" {
			continue
		}
		if _, dup := seen[scope]; dup {
			continue
		}
		seen[scope] = struct{}{}
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}

// parseRecordMap parses a credential-string to record JSON object. Entries
// missing user_id or with an unrecognized principal_type are dropped.
func parseRecordMap(raw string) map[string]*CredentialRecord {
	records := map[string]*CredentialRecord{}
	for credential, entry := range parseJSONMap(raw) {
		var obj map[string]any
		if err := json.Unmarshal(entry, &obj); err != nil {
			continue
		}
		userID, _ := obj["user_id"].(string)
		if userID == "" {
			continue
		}
		principalType := optionalString(obj, "principal_type")
		if principalType == nil {
			defaulted := PrincipalUser
			principalType = &defaulted
		}
		if *principalType != PrincipalUser && *principalType != PrincipalService {
			continue
		}

		records[credential] = &CredentialRecord{
			UserID:           userID,
			PrincipalType:    *principalType,
			DisplayName:      optionalString(obj, "display_name"),
			KeyID:            optionalString(obj, "key_id"),
			Disabled:         boolOrFalse(obj, "disabled"),
			Scopes:           parseScopes(obj["scopes"]),
			ScopeEnforced:    boolOrFalse(obj, "scope_enforced"),
			ServiceAccountID: optionalString(obj, "service_account_id"),
		}
	}
	return records
}

// optionalString returns the field as *string when present and a string,
// nil otherwise. A non-string value counts as absent.
func optionalString(obj map[string]any, field string) *string {
	value, ok := obj[field].(string)
	if !ok {
		return nil
	}
	return &value
}

// boolOrFalse returns the field when present and a bool, false otherwise.
func boolOrFalse(obj map[string]any, field string) bool {
	value, ok := obj[field].(bool)
	return ok && value
}
