package model

import "strings"

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleClinicOwner  Role = "CLINIC_OWNER"
	RoleAttendant    Role = "ATTENDANT"
	RoleProfessional Role = "PROFESSIONAL"
	RolePatient      Role = "PATIENT"
)

// ClinicStaff reports roles that administer a clinic's agenda.
func (r Role) ClinicStaff() bool {
	return r == RoleClinicOwner || r == RoleAttendant
}

type User struct {
	ID       string
	Name     string
	Email    string
	Phone    string
	Role     Role
	Active   bool
	ClinicID string
	// DefaultDurationMinutes is the professional's standard appointment
	// length; 0 means unset.
	DefaultDurationMinutes int
}

type Address struct {
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	State      string
	PostalCode string
}

// String renders "Street, Number - Complement, District, City - State, PostalCode",
// skipping empty parts.
func (a Address) String() string {
	line := a.Street
	if a.Number != "" {
		line = joinNonEmpty(", ", line, a.Number)
	}
	if a.Complement != "" {
		line = joinNonEmpty(" - ", line, a.Complement)
	}
	city := joinNonEmpty(" - ", a.City, a.State)
	return joinNonEmpty(", ", line, a.District, city, a.PostalCode)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

type Clinic struct {
	ID       string
	Name     string
	Address  Address
	Timezone string // IANA name; empty means UTC
	Active   bool
}

type Procedure struct {
	ID              string
	ClinicID        string
	Name            string
	DurationMinutes int
	Active          bool
}
