package domain

const SuperAdminRole = "Super Admin"

var (
	Resources = []string{"USER", "ROLE", "PROJECT", "TICKET"}
	Actions   = []string{"READ", "UPDATE", "DELETE", "CREATE"}
)

// Well-known permission names guarded by the REST surface.
const (
	PermReadUser   = "READ_USER"
	PermCreateUser = "CREATE_USER"
	PermUpdateUser = "UPDATE_USER"
	PermDeleteUser = "DELETE_USER"
	PermReadRole   = "READ_ROLE"
	PermCreateRole = "CREATE_ROLE"
	PermUpdateRole = "UPDATE_ROLE"
	PermDeleteRole = "DELETE_ROLE"
)

// BootstrapData is the seed applied to an empty database.
type BootstrapData struct {
	SuperuserUsername  string
	SuperuserPassword  string
	SuperuserFirstName string
	SuperuserLastName  string
	Roles              []RoleDefinition
}

type RoleDefinition struct {
	Name        string
	Permissions []string
}

// DefaultPermissions is every action over every resource.
func DefaultPermissions() []Permission {
	perms := make([]Permission, 0, len(Resources)*len(Actions))
	for _, res := range Resources {
		for _, act := range Actions {
			perms = append(perms, NewPermission("", res, act))
		}
	}
	return perms
}

// DefaultRoles holds a single Super Admin role with every permission.
func DefaultRoles() []RoleDefinition {
	all := DefaultPermissions()
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.Name
	}
	return []RoleDefinition{{Name: SuperAdminRole, Permissions: names}}
}
