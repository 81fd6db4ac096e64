package auth

import "github.com/erazemk/zaloga/internal/model"

// Action is a capability checked against a role.
type Action string

// Actions.
const (
	ManageItems          Action = "items.manage"
	ApproveItems         Action = "items.approve"
	ArchiveItems         Action = "items.archive"
	BulkClearance        Action = "items.bulk_clearance"
	ManageStock          Action = "stock.manage"
	MoveStock            Action = "stock.move"
	ManageBoxes          Action = "boxes.manage"
	ApproveBorrowManager Action = "borrow.approve_manager"
	ApproveBorrowStorage Action = "borrow.approve_storage"
	ProcessBorrowReturn  Action = "borrow.process_return"
	DecideExtension      Action = "borrow.decide_extension"
	ViewAllBorrows       Action = "borrow.view_all"
	ManageClearance      Action = "clearance.manage"
	ApproveClearance     Action = "clearance.approve"
	ManageUsers          Action = "users.manage"
)

var storageRoles = []model.Role{model.RoleStorageMaster, model.RoleStorageMasterManager}

var permissions = map[Action][]model.Role{
	ManageItems:          {model.RoleAdmin, model.RoleItemMaster},
	ApproveItems:         {model.RoleAdmin},
	ArchiveItems:         {model.RoleAdmin},
	BulkClearance:        {model.RoleItemMaster},
	ManageStock:          storageRoles,
	MoveStock:            storageRoles,
	ManageBoxes:          {model.RoleStorageMasterManager},
	ApproveBorrowManager: {model.RoleManager},
	ApproveBorrowStorage: storageRoles,
	ProcessBorrowReturn:  storageRoles,
	DecideExtension:      storageRoles,
	ViewAllBorrows:       {model.RoleStorageMaster, model.RoleStorageMasterManager, model.RoleManager, model.RoleAdmin},
	ManageClearance:      storageRoles,
	ApproveClearance:     {model.RoleStorageMasterManager, model.RoleManager},
	ManageUsers:          {model.RoleAdmin},
}

// Can reports whether role may perform action. Superadmin may do anything.
func Can(role model.Role, action Action) bool {
	if role == model.RoleSuperadmin {
		return true
	}
	for _, r := range permissions[action] {
		if r == role {
			return true
		}
	}
	return false
}

// CanApproveForDepartment reports whether actor may give the manager-stage
// approval for a request filed by someone in department. Managers are limited
// to their own department.
func CanApproveForDepartment(actor model.Actor, department string) bool {
	if !Can(actor.Role, ApproveBorrowManager) {
		return false
	}
	if actor.Role == model.RoleSuperadmin {
		return true
	}
	return actor.Department != "" && actor.Department == department
}
