package invite

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
	"github.com/vetchium/idcore/internal/service/domainverify"
	"github.com/vetchium/idcore/internal/store"
)

// SignupResult son las instrucciones del bootstrap: el registro TXT a
// publicar y la ventana del token. El token de signup y el valor TXT
// viajan en DOS emails separados; ninguno de los dos mensajes revela
// ambos secretos.
type SignupResult struct {
	SignupID  string
	TXTName   string
	ExpiresAt time.Time
}

// InitSignup arranca el alta de un tenant agency nuevo dueño de un
// dominio. Sólo puede haber un signup pendiente por dominio.
func (e *Engine) InitSignup(ctx context.Context, rawEmail, domainName, displayName string) (*SignupResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("invite"),
		logger.Op("InitSignup"),
	)

	addr, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	name, err := domainverify.NormalizeDomain(domainName)
	if err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = name
	}

	now := e.now()
	if _, err := e.repo.Tokens().PendingSignupForDomain(ctx, name, now); err == nil {
		return nil, ErrSignupPending
	}
	// Dominio ya tomado: rechazar ANTES de crear el tenant. Esta entrada
	// no está autenticada y no puede dejar tenants huérfanos por intento.
	if err := e.domains.Claimable(ctx, name); err != nil {
		return nil, err
	}

	region, err := tokens.NewRegionCode()
	if err != nil {
		return nil, err
	}
	tenant := &domain.Tenant{
		ID:          uuid.NewString(),
		Kind:        domain.TenantAgency,
		DisplayName: displayName,
		RegionCode:  region,
		CreatedAt:   now,
	}
	if err := e.repo.Tenants().Create(ctx, tenant); err != nil {
		return nil, err
	}

	// El desafío TXT sale por su propio email desde el engine de
	// dominios; acá sólo viaja el token de signup.
	claim, err := e.domains.ClaimDomain(ctx, tenant.ID, name, addr)
	if err != nil {
		return nil, err
	}

	secret, err := tokens.NewSecret(tokens.SecretBytes)
	if err != nil {
		return nil, err
	}
	tok := &domain.SingleUseToken{
		ID:         uuid.NewString(),
		TenantID:   tenant.ID,
		Purpose:    domain.TokenSignup,
		SecretHash: tokens.Hash(secret),
		Email:      addr,
		Domain:     name,
		ExpiresAt:  now.Add(e.cfg.SignupTTL),
		CreatedAt:  now,
	}
	if err := e.repo.Tokens().Create(ctx, tok); err != nil {
		return nil, err
	}

	if err := e.notifier.Send(ctx, addr, email.KindSignup, email.Params{
		"token":      tokens.Encode(secret, tenant.RegionCode),
		"domain":     name,
		"expires_at": tok.ExpiresAt.Format(time.RFC3339),
	}); err != nil {
		log.Error("failed to send signup token", logger.Err(err))
		return nil, err
	}

	metrics.TokensIssuedTotal.WithLabelValues(string(domain.TokenSignup)).Inc()
	log.Info("signup initiated",
		logger.TenantID(tenant.ID),
		logger.Domain(name),
	)
	return &SignupResult{
		SignupID:  tok.ID,
		TXTName:   claim.TXTName,
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

// CompleteSignupRequest es la entrada del cierre de signup.
type CompleteSignupRequest struct {
	Token      string
	Password   string
	FullName   string
	Language   string
	AcceptEULA bool
	AckDNS     bool
}

// CompleteSignup cierra el bootstrap: re-verifica la propiedad del
// dominio EN este momento y crea la primera cuenta del tenant con el
// rol superadmin en exclusiva. Si el DNS aún no verifica, el token NO
// se consume y el caller reintenta con el mismo token hasta que expire.
func (e *Engine) CompleteSignup(ctx context.Context, req CompleteSignupRequest) (*domain.Principal, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("invite"),
		logger.Op("CompleteSignup"),
	)

	// Validación completa antes de tocar el token.
	if !req.AcceptEULA || !req.AckDNS {
		return nil, ErrMissingConsent
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, ErrInvalidFullName
	}
	if ok, _ := e.policy.Validate(req.Password); !ok {
		return nil, ErrInvalidPassword
	}
	if !domain.SupportedLanguages[req.Language] {
		return nil, ErrInvalidLanguage
	}

	tok, err := e.usableToken(ctx, req.Token, domain.TokenSignup)
	if err != nil {
		return nil, err
	}

	status, err := e.domains.VerifyDomain(ctx, tok.TenantID, tok.Domain)
	if err != nil {
		return nil, err
	}
	if status != domain.DomainVerified {
		log.Info("signup blocked on dns", logger.Domain(tok.Domain))
		return nil, ErrDomainUnverified
	}

	hash, err := password.Hash(password.Default, req.Password)
	if err != nil {
		return nil, err
	}

	now := e.now()
	p := &domain.Principal{
		ID:           uuid.NewString(),
		TenantID:     tok.TenantID,
		Email:        tok.Email,
		FullName:     fullName,
		PasswordHash: hash,
		Status:       domain.PrincipalActive,
		Language:     req.Language,
		Roles:        []domain.Role{domain.RoleSuperAdmin},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = e.repo.Atomically(ctx, func(tx store.Repository) error {
		if err := tx.Tokens().Consume(ctx, tok.ID, now); err != nil {
			return ErrTokenInvalid
		}
		return tx.Principals().Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	metrics.TokensConsumedTotal.WithLabelValues(string(domain.TokenSignup)).Inc()
	log.Info("tenant bootstrapped",
		logger.TenantID(p.TenantID),
		logger.PrincipalID(p.ID),
	)
	return p, nil
}
