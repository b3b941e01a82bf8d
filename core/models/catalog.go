package models

// GroupRole is a member's role within a group
type GroupRole string

const (
	GroupRoleOwner  GroupRole = "owner"
	GroupRoleAdmin  GroupRole = "admin"
	GroupRoleMember GroupRole = "member"
	GroupRoleViewer GroupRole = "viewer"
)

// CanManage reports whether the role may configure group revenue
func (r GroupRole) CanManage() bool {
	return r == GroupRoleOwner || r == GroupRoleAdmin
}
