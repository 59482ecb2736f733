package invite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/email"
	"github.com/vetchium/idcore/internal/metrics"
	"github.com/vetchium/idcore/internal/observability/logger"
	"github.com/vetchium/idcore/internal/security/password"
	tokens "github.com/vetchium/idcore/internal/security/token"
	"github.com/vetchium/idcore/internal/store"
)

// InviteResult identifica la invitación emitida. El token viaja sólo
// por email, nunca en esta respuesta.
type InviteResult struct {
	InvitationID string
	ExpiresAt    time.Time
}

// Invite emite una invitación para sumar una cuenta al tenant del
// actor. Requiere la capability de invitar (o el bypass de superadmin)
// y que el email no pertenezca ya a una cuenta del tenant.
func (e *Engine) Invite(ctx context.Context, actor *domain.Principal, rawEmail string, roles []domain.Role) (*InviteResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("invite"),
		logger.Op("Invite"),
		logger.TenantID(actor.TenantID),
	)

	addr, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	tenant, err := e.repo.Tenants().GetByID(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}
	if err := e.rbac.Authorize(tenant.Kind, actor, domain.RoleInviteUsers); err != nil {
		return nil, err
	}
	for _, r := range roles {
		if !domain.ValidRole(tenant.Kind, r) {
			return nil, ErrInvalidRole
		}
	}

	if _, err := e.repo.Principals().GetByEmail(ctx, tenant.ID, addr); err == nil {
		return nil, ErrEmailTaken
	}

	secret, err := tokens.NewSecret(tokens.SecretBytes)
	if err != nil {
		return nil, err
	}

	now := e.now()
	tok := &domain.SingleUseToken{
		ID:         uuid.NewString(),
		TenantID:   tenant.ID,
		Purpose:    domain.TokenInvite,
		SecretHash: tokens.Hash(secret),
		Email:      addr,
		Roles:      roles,
		ExpiresAt:  now.Add(e.cfg.InviteTTL),
		CreatedAt:  now,
	}
	if err := e.repo.Tokens().Create(ctx, tok); err != nil {
		return nil, err
	}

	if err := e.notifier.Send(ctx, addr, email.KindInvite, email.Params{
		"token":       tokens.Encode(secret, tenant.RegionCode),
		"tenant_name": tenant.DisplayName,
		"expires_at":  tok.ExpiresAt.Format(time.RFC3339),
	}); err != nil {
		log.Error("failed to send invitation", logger.Err(err))
		return nil, err
	}

	metrics.TokensIssuedTotal.WithLabelValues(string(domain.TokenInvite)).Inc()
	log.Info("invitation issued", logger.Email(addr), logger.ID(tok.ID))
	return &InviteResult{InvitationID: tok.ID, ExpiresAt: tok.ExpiresAt}, nil
}

// CompleteSetup canjea una invitación: crea la cuenta activa con los
// roles de la invitación más los defaults del tenant. La validación de
// password y nombre corre ANTES de mirar el token, para que un input
// malo no revele si el token existe. Reenviar el mismo token después
// del éxito siempre falla como inválido.
func (e *Engine) CompleteSetup(ctx context.Context, rawToken, pw, fullName string) (*domain.Principal, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("invite"),
		logger.Op("CompleteSetup"),
	)

	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, ErrInvalidFullName
	}
	if ok, _ := e.policy.Validate(pw); !ok {
		return nil, ErrInvalidPassword
	}

	tok, err := e.usableToken(ctx, rawToken, domain.TokenInvite)
	if err != nil {
		return nil, err
	}

	hash, err := password.Hash(password.Default, pw)
	if err != nil {
		return nil, err
	}

	tenant, err := e.repo.Tenants().GetByID(ctx, tok.TenantID)
	if err != nil {
		return nil, err
	}

	roles := tok.Roles
	if tenant.Kind == domain.TenantAgency {
		roles = mergeRoles(roles, domain.DefaultAgencyRoles)
	}

	now := e.now()
	p := &domain.Principal{
		ID:           uuid.NewString(),
		TenantID:     tok.TenantID,
		Email:        tok.Email,
		FullName:     fullName,
		PasswordHash: hash,
		Status:       domain.PrincipalActive,
		Language:     "en",
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = e.repo.Atomically(ctx, func(tx store.Repository) error {
		if err := tx.Tokens().Consume(ctx, tok.ID, now); err != nil {
			// Carrera con otro canje: mismo resultado que token gastado.
			return ErrTokenInvalid
		}
		if err := tx.Principals().Create(ctx, p); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return ErrEmailTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TokensConsumedTotal.WithLabelValues(string(domain.TokenInvite)).Inc()
	log.Info("account activated",
		logger.PrincipalID(p.ID),
		logger.TenantID(p.TenantID),
	)
	return p, nil
}

// usableToken decodifica y valida un single-use token: forma, purpose,
// no consumido, no expirado. Toda falla es ErrTokenInvalid.
func (e *Engine) usableToken(ctx context.Context, rawToken string, purpose domain.TokenPurpose) (*domain.SingleUseToken, error) {
	_, secret, ok := tokens.Decode(rawToken)
	if !ok {
		return nil, ErrTokenInvalid
	}
	tok, err := e.repo.Tokens().GetBySecretHash(ctx, tokens.Hash(secret))
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if tok.Purpose != purpose || tok.ConsumedAt != nil || !e.now().Before(tok.ExpiresAt) {
		return nil, ErrTokenInvalid
	}
	return tok, nil
}

// mergeRoles une dos listas sin duplicar.
func mergeRoles(a, b []domain.Role) []domain.Role {
	out := make([]domain.Role, 0, len(a)+len(b))
	seen := make(map[domain.Role]bool, len(a)+len(b))
	for _, r := range append(append([]domain.Role{}, a...), b...) {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
