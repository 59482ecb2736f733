// Package recovery implementa reset de password por token single-use y
// cambio de password con sesión activa, con la invalidación de
// sesiones que cada camino exige.
package recovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vetchium/idcore/internal/audit"
	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/email"
	"github.com/vetchium/idcore/internal/metrics"
	"github.com/vetchium/idcore/internal/observability/logger"
	"github.com/vetchium/idcore/internal/security/password"
	tokens "github.com/vetchium/idcore/internal/security/token"
	"github.com/vetchium/idcore/internal/service/auth"
	"github.com/vetchium/idcore/internal/store"
)

// Config define la ventana del token de reset.
type Config struct {
	ResetTTL time.Duration
}

// Deps contiene las dependencias del engine.
type Deps struct {
	Repo     store.Repository
	Auth     *auth.Engine
	Notifier email.Notifier
	Policy   password.Policy
	Clock    func() time.Time
	Cfg      Config
}

// Engine implementa los flujos de recuperación.
type Engine struct {
	repo     store.Repository
	auth     *auth.Engine
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
	if deps.Cfg.ResetTTL <= 0 {
		deps.Cfg.ResetTTL = time.Hour
	}
	if deps.Policy == (password.Policy{}) {
		deps.Policy = password.DefaultPolicy
	}
	return &Engine{
		repo:     deps.Repo,
		auth:     deps.Auth,
		notifier: deps.Notifier,
		policy:   deps.Policy,
		now:      deps.Clock,
		cfg:      deps.Cfg,
	}
}

// Errores del engine.
var (
	ErrInvalidPassword = fmt.Errorf("password does not meet policy: %w", domain.ErrInvalidInput)
	ErrSamePassword    = fmt.Errorf("new password equals current: %w", domain.ErrInvalidInput)
	ErrTokenInvalid    = fmt.Errorf("invalid or exhausted token: %w", domain.ErrUnauthorized)
	ErrWrongPassword   = fmt.Errorf("current password mismatch: %w", domain.ErrUnauthorized)
)

// RequestReset arranca la recuperación. SIEMPRE retorna éxito, exista
// o no la cuenta: la respuesta no puede ser un oráculo de enumeración.
// Si la cuenta existe y está activa, emite el token y lo manda por
// email.
func (e *Engine) RequestReset(ctx context.Context, tenantID, rawEmail string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("recovery"),
		logger.Op("RequestReset"),
		logger.TenantID(tenantID),
	)

	addr := strings.TrimSpace(strings.ToLower(rawEmail))

	tenant, err := e.repo.Tenants().GetByID(ctx, tenantID)
	if err != nil {
		return nil
	}
	p, err := e.repo.Principals().GetByEmail(ctx, tenantID, addr)
	if err != nil || !p.IsActive() {
		return nil
	}

	secret, err := tokens.NewSecret(tokens.SecretBytes)
	if err != nil {
		return err
	}

	now := e.now()
	tok := &domain.SingleUseToken{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Purpose:     domain.TokenReset,
		SecretHash:  tokens.Hash(secret),
		Email:       p.Email,
		PrincipalID: p.ID,
		ExpiresAt:   now.Add(e.cfg.ResetTTL),
		CreatedAt:   now,
	}
	if err := e.repo.Tokens().Create(ctx, tok); err != nil {
		return err
	}

	if err := e.notifier.Send(ctx, p.Email, email.KindPasswordReset, email.Params{
		"token":      tokens.Encode(secret, tenant.RegionCode),
		"expires_at": tok.ExpiresAt.Format(time.RFC3339),
	}); err != nil {
		log.Error("failed to send reset token", logger.Err(err))
		return err
	}

	metrics.TokensIssuedTotal.WithLabelValues(string(domain.TokenReset)).Inc()
	log.Info("reset token issued", logger.PrincipalID(p.ID))
	return nil
}

// CompleteReset canjea el token, cambia el hash y revoca TODAS las
// sesiones del principal: quien completó el reset es quien controla la
// cuenta, y ninguna sesión previa puede sobrevivirle.
func (e *Engine) CompleteReset(ctx context.Context, rawToken, newPassword string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("recovery"),
		logger.Op("CompleteReset"),
	)

	// Política antes del token: input malo no revela existencia.
	if ok, _ := e.policy.Validate(newPassword); !ok {
		return ErrInvalidPassword
	}

	_, secret, ok := tokens.Decode(rawToken)
	if !ok {
		return ErrTokenInvalid
	}
	tok, err := e.repo.Tokens().GetBySecretHash(ctx, tokens.Hash(secret))
	if err != nil {
		return ErrTokenInvalid
	}
	now := e.now()
	if tok.Purpose != domain.TokenReset || tok.ConsumedAt != nil || !now.Before(tok.ExpiresAt) {
		return ErrTokenInvalid
	}

	hash, err := password.Hash(password.Default, newPassword)
	if err != nil {
		return err
	}

	err = e.repo.Atomically(ctx, func(tx store.Repository) error {
		if err := tx.Tokens().Consume(ctx, tok.ID, now); err != nil {
			return ErrTokenInvalid
		}
		return tx.Principals().UpdatePasswordHash(ctx, tok.PrincipalID, hash)
	})
	if err != nil {
		return err
	}

	if err := e.auth.RevokeAllSessions(ctx, tok.PrincipalID, "", "password_reset"); err != nil {
		log.Error("failed to revoke sessions after reset", logger.Err(err))
		return err
	}

	metrics.TokensConsumedTotal.WithLabelValues(string(domain.TokenReset)).Inc()
	audit.Log(ctx, audit.EventPasswordReset, tok.PrincipalID, tok.PrincipalID)
	log.Info("password reset completed", logger.PrincipalID(tok.PrincipalID))
	return nil
}

// ChangePassword cambia el password de una sesión autenticada. Revoca
// todas las OTRAS sesiones del principal; la sesión que ejecuta el
// cambio sigue viva.
func (e *Engine) ChangePassword(ctx context.Context, sessionToken, currentPassword, newPassword string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("recovery"),
		logger.Op("ChangePassword"),
	)

	p, session, err := e.auth.RequireAuth(ctx, sessionToken)
	if err != nil {
		return err
	}

	if !password.Verify(currentPassword, p.PasswordHash) {
		return ErrWrongPassword
	}
	if newPassword == currentPassword {
		return ErrSamePassword
	}
	if ok, _ := e.policy.Validate(newPassword); !ok {
		return ErrInvalidPassword
	}

	hash, err := password.Hash(password.Default, newPassword)
	if err != nil {
		return err
	}
	if err := e.repo.Principals().UpdatePasswordHash(ctx, p.ID, hash); err != nil {
		return err
	}

	if err := e.auth.RevokeAllSessions(ctx, p.ID, session.ID, "password_change"); err != nil {
		log.Error("failed to revoke other sessions", logger.Err(err))
		return err
	}

	audit.Log(ctx, audit.EventPasswordChanged, p.ID, p.ID)
	log.Info("password changed", logger.PrincipalID(p.ID))
	return nil
}
