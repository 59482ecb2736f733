// Package invite implementa los flujos de alta de cuentas: invitación
// dentro de un tenant existente y signup de un tenant agency nuevo.
// Ambos corren sobre single-use tokens con exactamente un consumo
// exitoso por token.
package invite

import (
	"fmt"
	"strings"
	"time"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/email"
	"github.com/vetchium/idcore/internal/security/password"
	"github.com/vetchium/idcore/internal/service/domainverify"
	"github.com/vetchium/idcore/internal/service/rbac"
	"github.com/vetchium/idcore/internal/store"
)

// Config define las ventanas de validez de los tokens.
type Config struct {
	InviteTTL time.Duration
	SignupTTL time.Duration
}

// Deps contiene las dependencias del engine.
type Deps struct {
	Repo     store.Repository
	RBAC     *rbac.Engine
	Domains  *domainverify.Engine
	Notifier email.Notifier
	Policy   password.Policy
	Clock    func() time.Time
	Cfg      Config
}

// Engine implementa invite/complete-setup y signup/complete-signup.
type Engine struct {
	repo     store.Repository
	rbac     *rbac.Engine
	domains  *domainverify.Engine
	notifier email.Notifier
	policy   password.Policy
	now      func() time.Time
	cfg      Config
}

// New crea el engine aplicando defaults.
func New(deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Cfg.InviteTTL <= 0 {
		deps.Cfg.InviteTTL = 7 * 24 * time.Hour
	}
	if deps.Cfg.SignupTTL <= 0 {
		deps.Cfg.SignupTTL = 24 * time.Hour
	}
	if deps.Policy == (password.Policy{}) {
		deps.Policy = password.DefaultPolicy
	}
	return &Engine{
		repo:     deps.Repo,
		rbac:     deps.RBAC,
		domains:  deps.Domains,
		notifier: deps.Notifier,
		policy:   deps.Policy,
		now:      deps.Clock,
		cfg:      deps.Cfg,
	}
}

// Errores del engine.
var (
	ErrInvalidEmail    = fmt.Errorf("invalid email address: %w", domain.ErrInvalidInput)
	ErrInvalidFullName = fmt.Errorf("full name required: %w", domain.ErrInvalidInput)
	ErrInvalidPassword = fmt.Errorf("password does not meet policy: %w", domain.ErrInvalidInput)
	ErrInvalidRole     = fmt.Errorf("unknown role for tenant type: %w", domain.ErrInvalidInput)
	ErrInvalidLanguage = fmt.Errorf("unsupported language: %w", domain.ErrInvalidInput)
	ErrMissingConsent  = fmt.Errorf("eula and dns acknowledgment required: %w", domain.ErrInvalidInput)
	ErrEmailTaken      = fmt.Errorf("email already registered in tenant: %w", domain.ErrConflict)
	ErrSignupPending   = fmt.Errorf("a pending signup already exists for this domain: %w", domain.ErrConflict)
	// ErrTokenInvalid cubre desconocido, consumido y expirado con una
	// sola forma: el estado de consumo nunca se revela por separado.
	ErrTokenInvalid = fmt.Errorf("invalid or exhausted token: %w", domain.ErrUnauthorized)
	// ErrDomainUnverified es la falla de negocio de CompleteSignup que
	// NO quema el token: el caller publica el TXT y reintenta.
	ErrDomainUnverified = fmt.Errorf("domain ownership not yet verified: %w", domain.ErrInvariantViolation)
)

// normalizeEmail baja a minúsculas y valida la forma mínima.
func normalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	at := strings.Index(s, "@")
	if at < 1 || at == len(s)-1 || !strings.Contains(s[at:], ".") {
		return "", ErrInvalidEmail
	}
	return s, nil
}
