package access

type Role string
type Action string

const (
	RoleGuest         Role = "guest"
	RoleMember        Role = "member"
	RoleModerator     Role = "moderator"
	RoleAdministrator Role = "administrator"
)

const (
	ActionRead        Action = "read"
	ActionReply       Action = "reply"
	ActionEdit        Action = "edit"
	ActionDelete      Action = "delete"
	ActionRestore     Action = "restore"
	ActionFlag        Action = "flag"
	ActionViewDeleted Action = "viewDeleted"
)

// Can answers role-level permission. Ownership refinements (a member may
// edit their own posts) are the store's concern, layered on top of this.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdministrator, RoleModerator:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionReply || action == ActionFlag
	case RoleGuest:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleGuest, RoleMember, RoleModerator, RoleAdministrator:
		return Role(role)
	default:
		return RoleGuest
	}
}
