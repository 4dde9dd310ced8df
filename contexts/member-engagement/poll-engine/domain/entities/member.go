package entities

type MemberRole string

const (
	MemberRoleMember MemberRole = "member"
	MemberRoleAdmin  MemberRole = "admin"
)

type Member struct {
	MemberID string
	Email    string
	Name     string
	Role     MemberRole

	// Suspended members cannot act and are not counted as active.
	Suspended bool
}

func (m Member) IsAdmin() bool {
	return m.Role == MemberRoleAdmin
}
