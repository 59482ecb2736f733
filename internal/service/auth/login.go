package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/email"
	"github.com/vetchium/idcore/internal/metrics"
	"github.com/vetchium/idcore/internal/observability/logger"
	"github.com/vetchium/idcore/internal/security/password"
	tokens "github.com/vetchium/idcore/internal/security/token"
)

// LoginRequest es la entrada del primer paso de autenticación.
type LoginRequest struct {
	TenantID   string
	Email      string
	Password   string
	RememberMe bool
}

// LoginResult devuelve el token del desafío TFA pendiente.
type LoginResult struct {
	TFAToken  string
	ExpiresAt time.Time
}

// Login verifica credenciales y, si son válidas, crea un desafío TFA y
// envía el código por el Notifier. Nunca distingue "no existe" de
// "password incorrecto".
func (e *Engine) Login(ctx context.Context, in LoginRequest) (*LoginResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("Login"),
	)

	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.TenantID = strings.TrimSpace(in.TenantID)
	if in.Email == "" || in.Password == "" || in.TenantID == "" {
		return nil, ErrMissingFields
	}

	tenant, err := e.repo.Tenants().GetByID(ctx, in.TenantID)
	if err != nil {
		log.Debug("tenant resolution failed", logger.Err(err))
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}
	log = log.With(logger.TenantID(tenant.ID))

	p, err := e.repo.Principals().GetByEmail(ctx, tenant.ID, in.Email)
	if err != nil {
		log.Debug("principal not found")
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}
	log = log.With(logger.PrincipalID(p.ID))

	if !p.IsActive() {
		log.Info("login on disabled account")
		metrics.LoginsTotal.WithLabelValues("disabled").Inc()
		return nil, ErrAccountDisabled
	}

	if !password.Verify(in.Password, p.PasswordHash) {
		log.Debug("password check failed")
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	secret, err := tokens.NewSecret(tokens.SecretBytes)
	if err != nil {
		return nil, err
	}
	code, err := tokens.NewOneTimeCode()
	if err != nil {
		return nil, err
	}

	now := e.now()
	challenge := &domain.TFAChallenge{
		ID:          uuid.NewString(),
		TenantID:    tenant.ID,
		PrincipalID: p.ID,
		TokenHash:   tokens.Hash(secret),
		CodeHash:    tokens.Hash(code),
		RememberMe:  in.RememberMe,
		ExpiresAt:   now.Add(e.cfg.TFATTL),
		CreatedAt:   now,
	}
	if err := e.repo.Challenges().Create(ctx, challenge); err != nil {
		log.Error("failed to persist tfa challenge", logger.Err(err))
		return nil, err
	}

	// Notificar recién después de persistir.
	if err := e.notifier.Send(ctx, p.Email, email.KindTFACode, email.Params{
		"code": code,
	}); err != nil {
		log.Error("failed to send tfa code", logger.Err(err))
		return nil, err
	}

	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	log.Info("tfa challenge issued")

	return &LoginResult{
		TFAToken:  tokens.Encode(secret, tenant.RegionCode),
		ExpiresAt: challenge.ExpiresAt,
	}, nil
}
