package domain

// Role identifies what an authenticated actor may see.
type Role string

// Roles. Admin and lab operators are unrestricted; dentist and clinic roles
// are external and scoped by their linkage.
const (
	RoleAdmin   Role = "admin"
	RoleLab     Role = "lab"
	RoleDentist Role = "dentist"
	RoleClinic  Role = "clinic"
)

// Actor is the identity a read is performed for. It is always passed
// explicitly; there is no ambient current actor.
type Actor struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	ClinicID  string `json:"clinic_id,omitempty"`
	DentistID string `json:"dentist_id,omitempty"`
}

// Unrestricted reports whether the actor sees every record.
func (a Actor) Unrestricted() bool {
	return a.Role == RoleAdmin || a.Role == RoleLab
}
