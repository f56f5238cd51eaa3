package directory

import "time"

const (
	RoleSupervisor = "Supervisor"
	RoleManager    = "Manager"
	RoleAgent      = "Agent"
)

// supervisorRoles are the roles that carry the report-approval capability.
var supervisorRoles = map[string]bool{
	RoleSupervisor: true,
	RoleManager:    true,
}

type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	RoleID    string    `json:"roleId"`
	RoleName  string    `json:"roleName"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Actor is the authenticated caller as resolved from the directory at
// login time. Supervisor is resolved once from the role, not re-derived
// per call site.
type Actor struct {
	UserID     string
	Email      string
	RoleID     string
	RoleName   string
	Supervisor bool
}

// CanApproveKPIReports is the capability consulted by the report workflow.
func (a Actor) CanApproveKPIReports() bool {
	return a.Supervisor
}

// IsSupervisorRole reports whether a role name carries supervisor
// capabilities.
func IsSupervisorRole(roleName string) bool {
	return supervisorRoles[roleName]
}
