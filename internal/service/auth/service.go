// Package auth implementa la máquina de estados de autenticación:
// Unauthenticated → TFAPending → Authenticated.
package auth

import (
	"fmt"
	"time"

	"github.com/vetchium/idcore/internal/cache"
	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/email"
	"github.com/vetchium/idcore/internal/store"
)

// Config define los TTLs del engine. Cero usa el default.
type Config struct {
	TFATTL        time.Duration // vida del desafío TFA
	SessionTTL    time.Duration // sesión corta por defecto
	RememberMeTTL time.Duration // sesión larga con remember-me
	CacheTTL      time.Duration // tope del read-through de sesiones
}

// Deps contiene las dependencias del engine.
type Deps struct {
	Repo     store.Repository
	Cache    cache.Cache // opcional: nil desactiva el read-through
	Notifier email.Notifier
	// Clock es la única fuente de tiempo del engine; inyectable para
	// que los cortes de expiración sean testeables. nil = time.Now UTC.
	Clock func() time.Time
	Cfg   Config
}

// Engine implementa login, TFA y ciclo de vida de sesiones.
type Engine struct {
	repo     store.Repository
	cache    cache.Cache
	notifier email.Notifier
	now      func() time.Time
	cfg      Config
}

// New crea el engine aplicando defaults.
func New(deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Cfg.TFATTL <= 0 {
		deps.Cfg.TFATTL = 10 * time.Minute
	}
	if deps.Cfg.SessionTTL <= 0 {
		deps.Cfg.SessionTTL = 8 * time.Hour
	}
	if deps.Cfg.RememberMeTTL <= 0 {
		deps.Cfg.RememberMeTTL = 30 * 24 * time.Hour
	}
	if deps.Cfg.CacheTTL <= 0 {
		deps.Cfg.CacheTTL = 5 * time.Minute
	}
	return &Engine{
		repo:     deps.Repo,
		cache:    deps.Cache,
		notifier: deps.Notifier,
		now:      deps.Clock,
		cfg:      deps.Cfg,
	}
}

// Errores del engine. Las fallas de existencia y de credencial son
// deliberadamente uniformes para no regalar oráculos de enumeración.
var (
	ErrMissingFields      = fmt.Errorf("missing required fields: %w", domain.ErrInvalidInput)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	ErrAccountDisabled    = fmt.Errorf("account disabled: %w", domain.ErrForbidden)
	ErrWrongCode          = fmt.Errorf("wrong code: %w", domain.ErrUnauthorized)
	ErrUnauthorized       = fmt.Errorf("session invalid: %w", domain.ErrUnauthorized)
)
