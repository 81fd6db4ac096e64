package auth

import (
	"testing"

	"github.com/erazemk/zaloga/internal/model"
)

func TestCan(t *testing.T) {
	tests := []struct {
		role   model.Role
		action Action
		want   bool
	}{
		{model.RoleSuperadmin, ManageUsers, true},
		{model.RoleSuperadmin, BulkClearance, true},
		{model.RoleAdmin, ArchiveItems, true},
		{model.RoleItemMaster, ArchiveItems, false},
		{model.RoleItemMaster, ManageItems, true},
		{model.RoleItemMaster, BulkClearance, true},
		{model.RoleAdmin, BulkClearance, false},
		{model.RoleStorageMaster, ApproveBorrowStorage, true},
		{model.RoleStorageMaster, ApproveClearance, false},
		{model.RoleStorageMasterManager, ApproveClearance, true},
		{model.RoleManager, ApproveClearance, true},
		{model.RoleManager, ApproveBorrowStorage, false},
		{model.RoleManager, ApproveBorrowManager, true},
		{model.RoleUser, ManageStock, false},
		{model.RoleUser, ViewAllBorrows, false},
		{model.Role("intern"), ManageItems, false},
	}

	for _, tt := range tests {
		if got := Can(tt.role, tt.action); got != tt.want {
			t.Errorf("Can(%q, %q) = %v, want %v", tt.role, tt.action, got, tt.want)
		}
	}
}

func TestCanApproveForDepartment(t *testing.T) {
	manager := model.Actor{UserID: 2, Role: model.RoleManager, Department: "sales"}

	if !CanApproveForDepartment(manager, "sales") {
		t.Error("manager should approve own department")
	}
	if CanApproveForDepartment(manager, "marketing") {
		t.Error("manager should not approve other department")
	}

	noDept := model.Actor{UserID: 3, Role: model.RoleManager}
	if CanApproveForDepartment(noDept, "") {
		t.Error("manager without department should not match empty department")
	}

	super := model.Actor{UserID: 1, Role: model.RoleSuperadmin}
	if !CanApproveForDepartment(super, "anything") {
		t.Error("superadmin should approve any department")
	}

	storage := model.Actor{UserID: 4, Role: model.RoleStorageMaster, Department: "sales"}
	if CanApproveForDepartment(storage, "sales") {
		t.Error("storage master cannot give manager approval")
	}
}
