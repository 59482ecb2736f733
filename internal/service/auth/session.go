package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/metrics"
	"github.com/vetchium/idcore/internal/observability/logger"
	tokens "github.com/vetchium/idcore/internal/security/token"
)

const sessionCachePrefix = "sid:"

// RequireAuth resuelve una credencial bearer a su sesión viva y su
// principal activo. Credencial ausente, malformada, desconocida,
// expirada o revocada: siempre el mismo ErrUnauthorized.
func (e *Engine) RequireAuth(ctx context.Context, sessionToken string) (*domain.Principal, *domain.Session, error) {
	_, secret, ok := tokens.Decode(sessionToken)
	if !ok {
		return nil, nil, ErrUnauthorized
	}
	hash := tokens.Hash(secret)

	session := e.cachedSession(hash)
	if session == nil {
		var err error
		session, err = e.repo.Sessions().GetByTokenHash(ctx, hash)
		if err != nil {
			return nil, nil, ErrUnauthorized
		}
	}

	now := e.now()
	if !session.Alive(now) {
		e.evict(hash)
		return nil, nil, ErrUnauthorized
	}

	// El principal se relee siempre: un disable debe cortar acceso de
	// inmediato aunque la sesión esté cacheada.
	p, err := e.repo.Principals().GetByID(ctx, session.PrincipalID)
	if err != nil || !p.IsActive() {
		return nil, nil, ErrUnauthorized
	}

	e.cacheSession(hash, session, now)
	return p, session, nil
}

// Logout revoca la sesión. Un segundo logout con el mismo token falla
// igual que un token desconocido.
func (e *Engine) Logout(ctx context.Context, sessionToken string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.session"),
		logger.Op("Logout"),
	)

	_, secret, ok := tokens.Decode(sessionToken)
	if !ok {
		return ErrUnauthorized
	}
	hash := tokens.Hash(secret)

	session, err := e.repo.Sessions().GetByTokenHash(ctx, hash)
	if err != nil {
		return ErrUnauthorized
	}
	if !session.Alive(e.now()) {
		e.evict(hash)
		return ErrUnauthorized
	}

	if err := e.repo.Sessions().Revoke(ctx, session.ID, e.now()); err != nil {
		// Conflict = carrera con otro logout: mismo resultado uniforme.
		return ErrUnauthorized
	}
	e.evict(hash)
	metrics.SessionsRevokedTotal.WithLabelValues("logout").Inc()
	log.Info("session revoked", logger.PrincipalID(session.PrincipalID))
	return nil
}

// RevokeAllSessions revoca todas las sesiones vivas del principal
// excepto exceptSessionID (vacío = todas) y evicta el cache de cada
// una. reason alimenta la métrica.
func (e *Engine) RevokeAllSessions(ctx context.Context, principalID, exceptSessionID, reason string) error {
	hashes, err := e.repo.Sessions().RevokeAllForPrincipal(ctx, principalID, exceptSessionID, e.now())
	if err != nil {
		return err
	}
	for _, h := range hashes {
		e.evict(h)
	}
	if len(hashes) > 0 {
		metrics.SessionsRevokedTotal.WithLabelValues(reason).Add(float64(len(hashes)))
	}
	return nil
}

// ---- read-through de sesiones ----

func (e *Engine) cachedSession(hash string) *domain.Session {
	if e.cache == nil {
		return nil
	}
	b, ok := e.cache.Get(sessionCachePrefix + hash)
	if !ok {
		return nil
	}
	var s domain.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	return &s
}

func (e *Engine) cacheSession(hash string, s *domain.Session, now time.Time) {
	if e.cache == nil {
		return
	}
	ttl := e.cfg.CacheTTL
	if remaining := s.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	e.cache.Set(sessionCachePrefix+hash, b, ttl)
}

func (e *Engine) evict(hash string) {
	if e.cache != nil {
		e.cache.Delete(sessionCachePrefix + hash)
	}
}
