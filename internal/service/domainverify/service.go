// Package domainverify implementa la reclamación de dominios y su
// verificación por desafío DNS TXT.
package domainverify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vetchium/idcore/internal/audit"
	"github.com/vetchium/idcore/internal/dnsx"
	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/email"
	"github.com/vetchium/idcore/internal/metrics"
	"github.com/vetchium/idcore/internal/observability/logger"
	"github.com/vetchium/idcore/internal/pagination"
	tokens "github.com/vetchium/idcore/internal/security/token"
	"github.com/vetchium/idcore/internal/store"
)

// Config define los parámetros del engine.
type Config struct {
	ClaimTTL time.Duration // ventana para publicar el registro TXT
}

// Deps contiene las dependencias del engine.
type Deps struct {
	Repo     store.Repository
	Resolver dnsx.Resolver
	Notifier email.Notifier
	Clock    func() time.Time
	Cfg      Config
}

// Engine implementa la máquina Unclaimed → PENDING → VERIFIED.
type Engine struct {
	repo     store.Repository
	resolver dnsx.Resolver
	notifier email.Notifier
	now      func() time.Time
	cfg      Config
}

// New crea el engine aplicando defaults.
func New(deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Cfg.ClaimTTL <= 0 {
		deps.Cfg.ClaimTTL = 72 * time.Hour
	}
	return &Engine{
		repo:     deps.Repo,
		resolver: deps.Resolver,
		notifier: deps.Notifier,
		now:      deps.Clock,
		cfg:      deps.Cfg,
	}
}

// Errores del engine.
var (
	ErrInvalidDomain  = fmt.Errorf("invalid domain name: %w", domain.ErrInvalidInput)
	ErrAlreadyClaimed = fmt.Errorf("domain already claimed: %w", domain.ErrConflict)
)

// ClaimResult son las instrucciones de verificación. El valor TXT
// esperado NO viaja acá: se comunica una sola vez, fuera de banda, al
// recipient. Un observador de red que vea esta respuesta no aprende el
// secreto.
type ClaimResult struct {
	ClaimID   string
	TXTName   string
	ExpiresAt time.Time
}

// NormalizeDomain baja a minúsculas y limpia el nombre.
func NormalizeDomain(name string) (string, error) {
	name = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(name)), ".")
	if name == "" || !strings.Contains(name, ".") || strings.ContainsAny(name, " /@") {
		return "", ErrInvalidDomain
	}
	return name, nil
}

// Claimable informa si el dominio puede reclamarse ahora, sin crear ni
// borrar nada. Permite a un caller rechazar temprano, antes de
// persistir estado propio; ClaimDomain sigue siendo el chequeo
// autoritativo.
func (e *Engine) Claimable(ctx context.Context, domainName string) error {
	name, err := NormalizeDomain(domainName)
	if err != nil {
		return err
	}
	existing, err := e.repo.Domains().GetByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Status == domain.DomainVerified || e.now().Before(existing.ExpiresAt) {
		return ErrAlreadyClaimed
	}
	return nil
}

// ClaimDomain reclama un dominio para el tenant y despacha el desafío
// TXT al recipient. Un dominio PENDING o VERIFIED de cualquier tenant
// bloquea la reclamación; una reclamación PENDING ya expirada se
// libera acá mismo.
func (e *Engine) ClaimDomain(ctx context.Context, tenantID, domainName, recipient string) (*ClaimResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("domainverify"),
		logger.Op("ClaimDomain"),
		logger.TenantID(tenantID),
	)

	name, err := NormalizeDomain(domainName)
	if err != nil {
		return nil, err
	}
	log = log.With(logger.Domain(name))

	now := e.now()
	if existing, err := e.repo.Domains().GetByName(ctx, name); err == nil {
		if existing.Status == domain.DomainVerified || now.Before(existing.ExpiresAt) {
			return nil, ErrAlreadyClaimed
		}
		// PENDING expirado: liberar y seguir.
		if err := e.repo.Domains().Delete(ctx, existing.ID); err != nil {
			return nil, err
		}
	}

	secret, err := tokens.NewSecret(tokens.SecretBytes)
	if err != nil {
		return nil, err
	}

	claim := &domain.DomainClaim{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Domain:        name,
		Status:        domain.DomainPending,
		ChallengeHash: tokens.Hash(secret),
		ExpiresAt:     now.Add(e.cfg.ClaimTTL),
		CreatedAt:     now,
	}
	if err := e.repo.Domains().Create(ctx, claim); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, ErrAlreadyClaimed
		}
		return nil, err
	}

	// El valor esperado viaja una única vez, después de persistir.
	if err := e.notifier.Send(ctx, recipient, email.KindDomainChallenge, email.Params{
		"domain":     name,
		"txt_name":   domain.TXTRecordName(name),
		"txt_value":  tokens.Encode(secret, ""),
		"expires_at": claim.ExpiresAt.Format(time.RFC3339),
	}); err != nil {
		log.Error("failed to send domain challenge", logger.Err(err))
		return nil, err
	}

	log.Info("domain claimed")
	return &ClaimResult{
		ClaimID:   claim.ID,
		TXTName:   domain.TXTRecordName(name),
		ExpiresAt: claim.ExpiresAt,
	}, nil
}

// VerifyDomain consulta el TXT y transiciona a VERIFIED si el valor
// coincide. Resolver caído, registro ausente o valor equivocado no son
// errores: el estado sigue PENDING y el caller reintenta cuando
// quiera. Re-verificar un dominio VERIFIED es un no-op exitoso.
// Un tenant que no es dueño recibe ErrNotFound, nunca el estado real.
func (e *Engine) VerifyDomain(ctx context.Context, tenantID, domainName string) (domain.DomainClaimStatus, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("domainverify"),
		logger.Op("VerifyDomain"),
		logger.TenantID(tenantID),
	)

	name, err := NormalizeDomain(domainName)
	if err != nil {
		return "", err
	}

	claim, err := e.getOwnedClaim(ctx, tenantID, name)
	if err != nil {
		return "", err
	}
	if claim.Status == domain.DomainVerified {
		return domain.DomainVerified, nil
	}

	values, err := e.resolver.LookupTXT(ctx, domain.TXTRecordName(name))
	if err != nil {
		// Timeout o NXDOMAIN: sigue PENDING, jamás fatal.
		log.Debug("txt lookup failed", logger.Domain(name), logger.Err(err))
		metrics.DomainVerificationsTotal.WithLabelValues("resolver_error").Inc()
		return domain.DomainPending, nil
	}

	for _, v := range values {
		if tokens.EqualHashed(strings.TrimSpace(v), claim.ChallengeHash) {
			if err := e.repo.Domains().MarkVerified(ctx, claim.ID, e.now()); err != nil {
				return "", err
			}
			metrics.DomainVerificationsTotal.WithLabelValues("verified").Inc()
			audit.Log(ctx, audit.EventDomainVerified, tenantID, claim.ID, logger.Domain(name))
			log.Info("domain verified", logger.Domain(name))
			return domain.DomainVerified, nil
		}
	}

	metrics.DomainVerificationsTotal.WithLabelValues("pending").Inc()
	return domain.DomainPending, nil
}

// GetDomainStatus retorna el estado sin tocar DNS. Mismas reglas de
// propiedad que VerifyDomain.
func (e *Engine) GetDomainStatus(ctx context.Context, tenantID, domainName string) (domain.DomainClaimStatus, error) {
	name, err := NormalizeDomain(domainName)
	if err != nil {
		return "", err
	}
	claim, err := e.getOwnedClaim(ctx, tenantID, name)
	if err != nil {
		return "", err
	}
	return claim.Status, nil
}

// ListDomains pagina las reclamaciones del tenant en orden (domain, id).
func (e *Engine) ListDomains(ctx context.Context, tenantID string, req pagination.Request) (pagination.Page[domain.DomainClaim], error) {
	var empty pagination.Page[domain.DomainClaim]

	after, err := req.Validate()
	if err != nil {
		return empty, err
	}

	rows, err := e.repo.Domains().List(ctx, tenantID, after, req.Limit+1)
	if err != nil {
		return empty, err
	}
	return pagination.Build(rows, req.Limit, func(c domain.DomainClaim) pagination.Cursor {
		return pagination.Cursor{Key: c.Domain, ID: c.ID}
	}), nil
}

// getOwnedClaim aplica propiedad y expiración: dominio de otro tenant
// o reclamación PENDING vencida son ErrNotFound, indistinguibles de la
// inexistencia.
func (e *Engine) getOwnedClaim(ctx context.Context, tenantID, name string) (*domain.DomainClaim, error) {
	claim, err := e.repo.Domains().GetForTenant(ctx, tenantID, name)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	if claim.Status == domain.DomainPending && !e.now().Before(claim.ExpiresAt) {
		return nil, domain.ErrNotFound
	}
	return claim, nil
}
