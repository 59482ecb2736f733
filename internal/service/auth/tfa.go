package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/metrics"
	"github.com/vetchium/idcore/internal/observability/logger"
	tokens "github.com/vetchium/idcore/internal/security/token"
)

// VerifyTFAResult es la salida del segundo paso: la sesión emitida más
// los datos que el portal necesita para el primer render.
type VerifyTFAResult struct {
	SessionToken string
	ExpiresAt    time.Time
	Language     string
	TenantName   string
}

// VerifyTFA canjea un desafío por una sesión. Un código erróneo NO
// invalida el desafío: el mismo token puede reintentarse hasta que
// expire. Decisión deliberada (usabilidad sobre lockout de un intento);
// el rate limiting vive en la capa que rodea a este core.
func (e *Engine) VerifyTFA(ctx context.Context, tfaToken, code string, rememberMe bool) (*VerifyTFAResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.tfa"),
		logger.Op("VerifyTFA"),
	)

	_, secret, ok := tokens.Decode(tfaToken)
	if !ok {
		metrics.TFAVerificationsTotal.WithLabelValues("expired").Inc()
		return nil, domain.ErrInvalidOrExpiredToken
	}

	challenge, err := e.repo.Challenges().GetByTokenHash(ctx, tokens.Hash(secret))
	if err != nil {
		metrics.TFAVerificationsTotal.WithLabelValues("expired").Inc()
		return nil, domain.ErrInvalidOrExpiredToken
	}

	now := e.now()
	if !now.Before(challenge.ExpiresAt) {
		metrics.TFAVerificationsTotal.WithLabelValues("expired").Inc()
		return nil, domain.ErrInvalidOrExpiredToken
	}

	if !tokens.EqualHashed(code, challenge.CodeHash) {
		log.Debug("wrong tfa code", logger.PrincipalID(challenge.PrincipalID))
		metrics.TFAVerificationsTotal.WithLabelValues("wrong_code").Inc()
		return nil, ErrWrongCode
	}

	p, err := e.repo.Principals().GetByID(ctx, challenge.PrincipalID)
	if err != nil {
		return nil, domain.ErrInvalidOrExpiredToken
	}
	if !p.IsActive() {
		// La cuenta pudo deshabilitarse entre login y TFA.
		return nil, ErrAccountDisabled
	}

	tenant, err := e.repo.Tenants().GetByID(ctx, challenge.TenantID)
	if err != nil {
		return nil, err
	}

	secret, err = tokens.NewSecret(tokens.SecretBytes)
	if err != nil {
		return nil, err
	}

	remember := rememberMe || challenge.RememberMe
	ttl := e.cfg.SessionTTL
	if remember {
		ttl = e.cfg.RememberMeTTL
	}

	session := &domain.Session{
		ID:          uuid.NewString(),
		TenantID:    tenant.ID,
		PrincipalID: p.ID,
		TokenHash:   tokens.Hash(secret),
		RememberMe:  remember,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := e.repo.Sessions().Create(ctx, session); err != nil {
		log.Error("failed to persist session", logger.Err(err))
		return nil, err
	}

	metrics.TFAVerificationsTotal.WithLabelValues("ok").Inc()
	log.Info("session issued",
		logger.PrincipalID(p.ID),
		logger.TenantID(tenant.ID),
		logger.Bool("remember_me", remember),
	)

	return &VerifyTFAResult{
		SessionToken: tokens.Encode(secret, tenant.RegionCode),
		ExpiresAt:    session.ExpiresAt,
		Language:     p.Language,
		TenantName:   tenant.DisplayName,
	}, nil
}
