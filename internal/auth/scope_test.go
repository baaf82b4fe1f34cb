package auth

import (
	"reflect"
	"testing"
)

func TestResolveScope(t *testing.T) {
	if got := ResolveScope(42, true, "sid-1"); got != "user:42" {
		t.Fatalf("authenticated scope = %q", got)
	}
	if got := ResolveScope(0, false, "sid-1"); got != "session:sid-1" {
		t.Fatalf("anonymous scope = %q", got)
	}
}

func TestScopeAliases(t *testing.T) {
	cases := []struct {
		scope string
		want  []string
	}{
		{"user:42", []string{"user:42"}},
		{"session:sid-1", []string{"session:sid-1", "anonymous:sid-1"}},
		{"anonymous:sid-1", []string{"anonymous:sid-1", "session:sid-1"}},
		{"  ", nil},
	}

	for _, tc := range cases {
		if got := ScopeAliases(tc.scope); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ScopeAliases(%q) = %v, want %v", tc.scope, got, tc.want)
		}
	}
}

func TestScopePolicyFailsClosed(t *testing.T) {
	// Override disabled: nothing gets through.
	policy := NewScopePolicy(false, true, "secret", true)
	if policy.CanAccessAllScopes("secret") {
		t.Fatal("disabled override granted access")
	}

	// Single-tenant deployment needs no extra proof.
	policy = NewScopePolicy(true, true, "", true)
	if !policy.CanAccessAllScopes("") {
		t.Fatal("single-tenant override denied")
	}

	// Multi-tenant without a configured operator token stays closed.
	policy = NewScopePolicy(true, false, "", true)
	if policy.CanAccessAllScopes("anything") {
		t.Fatal("missing operator token granted access")
	}

	// Multi-tenant with a token requires an exact match.
	policy = NewScopePolicy(true, false, "secret", true)
	if policy.CanAccessAllScopes("wrong") {
		t.Fatal("wrong operator token granted access")
	}
	if !policy.CanAccessAllScopes(" secret ") {
		t.Fatal("trimmed operator token denied")
	}
}

func TestScopePolicyListScopes(t *testing.T) {
	strict := NewScopePolicy(false, true, "", true)
	if got := strict.ListScopes("session:sid-1", "sid-1"); !reflect.DeepEqual(got, []string{"session:sid-1", "anonymous:sid-1"}) {
		t.Fatalf("isolated listing = %v", got)
	}

	// With isolation off the legacy bare session id stays readable.
	legacy := NewScopePolicy(false, true, "", false)
	if got := legacy.ListScopes("session:sid-1", "sid-1"); !reflect.DeepEqual(got, []string{"session:sid-1", "anonymous:sid-1", "sid-1"}) {
		t.Fatalf("legacy listing = %v", got)
	}

	// User scopes never pick up the bare id.
	if got := legacy.ListScopes("user:42", "sid-1"); !reflect.DeepEqual(got, []string{"user:42"}) {
		t.Fatalf("user listing = %v", got)
	}
}
