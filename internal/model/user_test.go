package model

import "testing"

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role     Role
		expected bool
	}{
		{RoleSuperadmin, true},
		{RoleAdmin, true},
		{RoleItemMaster, true},
		{RoleStorageMasterManager, true},
		{RoleStorageMaster, true},
		{RoleManager, true},
		{RoleUser, true},
		// Unknown roles fail-closed.
		{"unknown", false},
		{"Admin", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.expected {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.expected)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{"1234567", true},
		{"12345678", false},
		{"a-valid-password", false},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}
