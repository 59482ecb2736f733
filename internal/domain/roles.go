package domain

// Role es una capability con nombre, cerrada por tipo de tenant.
// Nada en el core compara strings libres: toda autorización pasa por
// estas enumeraciones más el predicado de bypass IsSuperAdmin.
type Role string

const (
	// Roles de tenants agency.
	RoleSuperAdmin    Role = "superadmin"
	RoleManageUsers   Role = "manage_users"
	RoleInviteUsers   Role = "invite_users"
	RoleManageDomains Role = "manage_domains"
	RoleMember        Role = "member"

	// Roles del tenant admin global.
	RoleAdmin   Role = "admin"
	RoleSupport Role = "support"
)

var agencyRoles = map[Role]bool{
	RoleSuperAdmin:    true,
	RoleManageUsers:   true,
	RoleInviteUsers:   true,
	RoleManageDomains: true,
	RoleMember:        true,
}

var adminRoles = map[Role]bool{
	RoleAdmin:   true,
	RoleSupport: true,
}

// DefaultAgencyRoles se asignan a cada cuenta agency que completa su
// alta por invitación, además de los roles que trajera la invitación.
var DefaultAgencyRoles = []Role{RoleMember}

// ValidRole informa si el rol existe para el tipo de tenant.
func ValidRole(kind TenantKind, r Role) bool {
	if kind == TenantAdmin {
		return adminRoles[r]
	}
	return agencyRoles[r]
}

// AdministrativeRole retorna el rol administrativo tope del tipo de
// tenant: el que protege el invariante "último admin".
func AdministrativeRole(kind TenantKind) Role {
	if kind == TenantAdmin {
		return RoleAdmin
	}
	return RoleSuperAdmin
}

// IsSuperAdmin es el predicado de bypass: quien tiene el rol
// administrativo tope puede ejecutar operaciones de gestión sin poseer
// el rol específico. Se evalúa siempre como bypass-OR-rol, nunca como
// dos puertas independientes.
func IsSuperAdmin(kind TenantKind, p *Principal) bool {
	return p != nil && p.HasRole(AdministrativeRole(kind))
}
