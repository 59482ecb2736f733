package domain

import "time"

// TenantKind distingue el tenant global admin de los tenants agency.
type TenantKind string

const (
	TenantAdmin  TenantKind = "admin"
	TenantAgency TenantKind = "agency"
)

// Tenant es el ámbito dentro del cual emails, dominios y roles son únicos.
type Tenant struct {
	ID          string
	Kind        TenantKind
	DisplayName string
	// RegionCode es el prefijo corto (3 letras + 1 dígito) que llevan los
	// tokens emitidos para flujos de este tenant. Vacío para el tenant admin.
	RegionCode string
	CreatedAt  time.Time
}

// PrincipalStatus es el estado de una cuenta. Los principals nunca se
// borran físicamente: sólo transicionan de estado.
type PrincipalStatus string

const (
	PrincipalActive   PrincipalStatus = "active"
	PrincipalDisabled PrincipalStatus = "disabled"
)

// Principal es una cuenta de usuario dentro de un tenant.
type Principal struct {
	ID           string
	TenantID     string
	Email        string // siempre normalizado a minúsculas
	FullName     string
	PasswordHash string
	Status       PrincipalStatus
	Language     string
	Roles        []Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole informa si el principal tiene asignado el rol exacto.
func (p *Principal) HasRole(r Role) bool {
	for _, have := range p.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// IsActive informa si la cuenta puede operar.
func (p *Principal) IsActive() bool { return p.Status == PrincipalActive }

// TFAChallenge liga un token opaco con un código numérico de un solo
// dígito de vida. Es reintentable: un código erróneo no lo quema; expira
// solo (consumptionPolicy = retryable).
type TFAChallenge struct {
	ID          string
	TenantID    string
	PrincipalID string
	TokenHash   string // sha256 del secreto presentado
	CodeHash    string // sha256 del código de seis dígitos
	RememberMe  bool
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Session es la credencial bearer de un principal autenticado.
type Session struct {
	ID          string
	TenantID    string
	PrincipalID string
	TokenHash   string
	RememberMe  bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

// Alive informa si la sesión es usable en el instante dado.
func (s *Session) Alive(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// TokenPurpose etiqueta el flujo al que pertenece un SingleUseToken.
type TokenPurpose string

const (
	TokenInvite TokenPurpose = "invite"
	TokenSignup TokenPurpose = "signup"
	TokenReset  TokenPurpose = "reset"
)

// SingleUseToken es un secreto válido para exactamente un consumo
// exitoso antes de su expiración (consumptionPolicy = single-use).
// El consumo fallido por causas de negocio (ej. DNS aún no verificado
// en signup) NO lo consume y permite reintento.
type SingleUseToken struct {
	ID         string
	TenantID   string
	Purpose    TokenPurpose
	SecretHash string
	// Email destino del flujo. Para invite/signup es el email de la
	// futura cuenta; para reset, el de la cuenta existente.
	Email string
	// PrincipalID referencia la cuenta objetivo cuando ya existe (reset).
	PrincipalID string
	// Roles a asignar al completar un invite.
	Roles []Role
	// Domain del signup (vacío para otros purposes).
	Domain     string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// DomainClaimStatus es el estado de una reclamación de dominio.
type DomainClaimStatus string

const (
	DomainPending  DomainClaimStatus = "PENDING"
	DomainVerified DomainClaimStatus = "VERIFIED"
)

// DomainClaim es el par (dominio, tenant dueño) con su desafío TXT.
// Un nombre de dominio es globalmente único entre tenants mientras esté
// PENDING o VERIFIED.
type DomainClaim struct {
	ID       string
	TenantID string
	Domain   string // normalizado a minúsculas
	Status   DomainClaimStatus
	// ChallengeHash es sha256 del valor TXT esperado. El valor en claro
	// viaja una sola vez, fuera de banda.
	ChallengeHash string
	ExpiresAt     time.Time
	CreatedAt     time.Time
	VerifiedAt    *time.Time
}

// TXTRecordName es el nombre del registro TXT requerido para verificar
// la propiedad de un dominio.
func TXTRecordName(domainName string) string {
	return "_vetchium-verify." + domainName
}

// SupportedLanguages son los idiomas de preferencia aceptados al crear
// cuentas. El contenido localizado vive fuera de este core.
var SupportedLanguages = map[string]bool{
	"en": true,
	"es": true,
	"de": true,
	"fr": true,
	"ta": true,
}
