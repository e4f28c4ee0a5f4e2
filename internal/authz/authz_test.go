package authz

import "testing"

func TestAllow(t *testing.T) {
	e, err := NewEnforcer()
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	tests := []struct {
		role   string
		route  string
		method string
		want   bool
	}{
		{"client", "/api/booths", "GET", true},
		{"client", "/api/booths/{boothID}/vouchers/{id}", "DELETE", true},
		{"client", "/api/revenue", "GET", true},
		{"client", "/api/revenue", "POST", false},
		{"client", "/api/admin/users", "GET", false},
		{"admin", "/api/admin/users", "GET", true},
		{"admin", "/api/booths", "POST", true},
		{"photobooth", "/api/booth/config", "GET", true},
		{"photobooth", "/api/booths", "GET", false},
		{"client", "/api/booth/config", "GET", false},
		{"", "/api/booths", "GET", false},
		{"stranger", "/api/booths", "GET", false},
	}
	for _, tc := range tests {
		if got := e.Allow(tc.role, tc.route, tc.method); got != tc.want {
			t.Fatalf("%s %s %s: expected %v, got %v", tc.role, tc.method, tc.route, tc.want, got)
		}
	}
}
