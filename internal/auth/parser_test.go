package auth

import (
	"reflect"
	"testing"
)

func TestParseRecordMap_Leniency(t *testing.T) {
	raw := `{
		"good": {"user_id":"u1","principal_type":"service","scopes":["b","a","a"]},
		"defaulted": {"user_id":"u2"},
		"no-user": {"principal_type":"user"},
		"empty-user": {"user_id":""},
		"bad-principal": {"user_id":"u3","principal_type":"robot"},
		"not-an-object": 42,
		"loose-types": {"user_id":"u4","disabled":"yes","principal_type":7}
	}`

	records := parseRecordMap(raw)
	if len(records) != 3 {
		t.Fatalf("parsed %d records, want 3 (good, defaulted, loose-types)", len(records))
	}

	good := records["good"]
	if good.PrincipalType != PrincipalService {
		t.Errorf("principal_type = %q, want service", good.PrincipalType)
	}
	if !reflect.DeepEqual(good.Scopes, []string{"a", "b"}) {
		t.Errorf("scopes = %v, want sorted deduplicated [a b]", good.Scopes)
	}

	if records["defaulted"].PrincipalType != PrincipalUser {
		t.Error("missing principal_type should default to user")
	}

	// Wrong-typed fields fall back, they do not reject the record.
	loose := records["loose-types"]
	if loose.Disabled {
		t.Error("non-bool disabled should parse as false")
	}
	if loose.PrincipalType != PrincipalUser {
		t.Error("non-string principal_type should default to user")
	}
}

func TestParseRecordMap_MalformedInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "not json", `["array"]`, `"string"`} {
		if got := parseRecordMap(raw); len(got) != 0 {
			t.Errorf("parseRecordMap(%q) = %v, want empty", raw, got)
		}
	}
}

func TestParseKeyValueMap(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{
			name: "basic",
			raw:  "k1:secret1,k2:secret2",
			want: map[string]string{"k1": "secret1", "k2": "secret2"},
		},
		{
			name: "whitespace and malformed pairs ignored",
			raw:  " k1 : s1 , nokey, :novalue, k2:, , k3:s3",
			want: map[string]string{"k1": "s1", "k3": "s3"},
		},
		{
			name: "colon in secret kept",
			raw:  "k1:part:with:colons",
			want: map[string]string{"k1": "part:with:colons"},
		},
		{
			name: "empty",
			raw:  "",
			want: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseKeyValueMap(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseKeyValueMap(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseStringSet(t *testing.T) {
	got := parseStringSet(" a, b ,a,, c ")
	want := map[string]struct{}{"a": {}, "b": {}, "c": {}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseStringSet() = %v, want %v", got, want)
	}
	if len(parseStringSet("")) != 0 {
		t.Error("empty input should yield empty set")
	}
}

func TestParseScopes(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{name: "sorted deduped", value: []any{"w", "r", "w", " r "}, want: []string{"r", "w"}},
		{name: "non-strings skipped", value: []any{"a", 1, true, ""}, want: []string{"a"}},
		{name: "not an array", value: "a,b", want: []string{}},
		{name: "nil", value: nil, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseScopes(tt.value); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseScopes(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
