package models

import "testing"

func TestParseUserRole(t *testing.T) {
	tests := []struct {
		in   string
		want UserRole
		ok   bool
	}{
		{"ADMIN", RoleAdmin, true},
		{"admin", RoleAdmin, true},
		{"Reviewer", RoleReviewer, true},
		{"viewer", RoleViewer, true},
		{"MANAGER", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseUserRole(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseUserRole(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
