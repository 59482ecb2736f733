// Package memory implementa store.Repository en memoria.
//
// Un único mutex protege todo el estado: Atomically retiene el lock
// durante fn, lo que da serializabilidad real (suficiente para el
// invariante del último admin), y restaura un snapshot si fn falla,
// igual que el rollback del adapter pg. Pensado para tests y modo dev;
// no persiste nada.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/pagination"
	"github.com/vetchium/idcore/internal/store"
)

type data struct {
	tenants    map[string]*domain.Tenant
	principals map[string]*domain.Principal
	emailIdx   map[string]string // tenantID|email -> principalID

	challenges   map[string]*domain.TFAChallenge
	challengeIdx map[string]string // tokenHash -> id

	sessions   map[string]*domain.Session
	sessionIdx map[string]string // tokenHash -> id

	tokens   map[string]*domain.SingleUseToken
	tokenIdx map[string]string // secretHash -> id

	domains   map[string]*domain.DomainClaim
	domainIdx map[string]string // domain -> id
}

// clone copia profunda del estado. Atomically la usa como snapshot de
// rollback; nada más la mutación vía los repos toca estos mapas.
func (d *data) clone() *data {
	cp := &data{
		tenants:      make(map[string]*domain.Tenant, len(d.tenants)),
		principals:   make(map[string]*domain.Principal, len(d.principals)),
		emailIdx:     make(map[string]string, len(d.emailIdx)),
		challenges:   make(map[string]*domain.TFAChallenge, len(d.challenges)),
		challengeIdx: make(map[string]string, len(d.challengeIdx)),
		sessions:     make(map[string]*domain.Session, len(d.sessions)),
		sessionIdx:   make(map[string]string, len(d.sessionIdx)),
		tokens:       make(map[string]*domain.SingleUseToken, len(d.tokens)),
		tokenIdx:     make(map[string]string, len(d.tokenIdx)),
		domains:      make(map[string]*domain.DomainClaim, len(d.domains)),
		domainIdx:    make(map[string]string, len(d.domainIdx)),
	}
	for id, t := range d.tenants {
		v := *t
		cp.tenants[id] = &v
	}
	for id, p := range d.principals {
		cp.principals[id] = clonePrincipal(p)
	}
	for id, c := range d.challenges {
		v := *c
		cp.challenges[id] = &v
	}
	for id, s := range d.sessions {
		cp.sessions[id] = cloneSession(s)
	}
	for id, t := range d.tokens {
		cp.tokens[id] = cloneToken(t)
	}
	for id, c := range d.domains {
		cp.domains[id] = cloneClaim(c)
	}
	for k, v := range d.emailIdx {
		cp.emailIdx[k] = v
	}
	for k, v := range d.challengeIdx {
		cp.challengeIdx[k] = v
	}
	for k, v := range d.sessionIdx {
		cp.sessionIdx[k] = v
	}
	for k, v := range d.tokenIdx {
		cp.tokenIdx[k] = v
	}
	for k, v := range d.domainIdx {
		cp.domainIdx[k] = v
	}
	return cp
}

// Store implementa store.Repository.
type Store struct {
	mu     *sync.Mutex
	d      *data
	locked bool // true dentro de Atomically: no re-lockear
}

// New crea un Store vacío.
func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		d: &data{
			tenants:      map[string]*domain.Tenant{},
			principals:   map[string]*domain.Principal{},
			emailIdx:     map[string]string{},
			challenges:   map[string]*domain.TFAChallenge{},
			challengeIdx: map[string]string{},
			sessions:     map[string]*domain.Session{},
			sessionIdx:   map[string]string{},
			tokens:       map[string]*domain.SingleUseToken{},
			tokenIdx:     map[string]string{},
			domains:      map[string]*domain.DomainClaim{},
			domainIdx:    map[string]string{},
		},
	}
}

func (s *Store) lock() func() {
	if s.locked {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Ping(context.Context) error { return nil }

// Atomically retiene el lock global durante fn. Si fn retorna error,
// el estado vuelve al snapshot previo: ninguna escritura parcial
// sobrevive, igual que bajo la transacción del adapter pg.
func (s *Store) Atomically(_ context.Context, fn func(store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.d.clone()
	if err := fn(&Store{mu: s.mu, d: s.d, locked: true}); err != nil {
		*s.d = *snap
		return err
	}
	return nil
}

func (s *Store) Tenants() store.TenantRepo       { return (*tenants)(s) }
func (s *Store) Principals() store.PrincipalRepo { return (*principals)(s) }
func (s *Store) Challenges() store.ChallengeRepo { return (*challenges)(s) }
func (s *Store) Sessions() store.SessionRepo     { return (*sessions)(s) }
func (s *Store) Tokens() store.TokenRepo         { return (*tokens)(s) }
func (s *Store) Domains() store.DomainRepo       { return (*domains)(s) }

func emailKey(tenantID, email string) string {
	return tenantID + "|" + strings.ToLower(email)
}

// ---- tenants ----

type tenants Store

func (t *tenants) Create(_ context.Context, tn *domain.Tenant) error {
	defer (*Store)(t).lock()()
	if _, ok := t.d.tenants[tn.ID]; ok {
		return domain.ErrConflict
	}
	cp := *tn
	t.d.tenants[tn.ID] = &cp
	return nil
}

func (t *tenants) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	defer (*Store)(t).lock()()
	tn, ok := t.d.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *tn
	return &cp, nil
}

// ---- principals ----

type principals Store

func clonePrincipal(p *domain.Principal) *domain.Principal {
	cp := *p
	cp.Roles = append([]domain.Role(nil), p.Roles...)
	return &cp
}

func (r *principals) Create(_ context.Context, p *domain.Principal) error {
	defer (*Store)(r).lock()()
	key := emailKey(p.TenantID, p.Email)
	if _, ok := r.d.emailIdx[key]; ok {
		return domain.ErrConflict
	}
	if _, ok := r.d.principals[p.ID]; ok {
		return domain.ErrConflict
	}
	r.d.principals[p.ID] = clonePrincipal(p)
	r.d.emailIdx[key] = p.ID
	return nil
}

func (r *principals) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	defer (*Store)(r).lock()()
	p, ok := r.d.principals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePrincipal(p), nil
}

func (r *principals) GetByEmail(_ context.Context, tenantID, email string) (*domain.Principal, error) {
	defer (*Store)(r).lock()()
	id, ok := r.d.emailIdx[emailKey(tenantID, email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePrincipal(r.d.principals[id]), nil
}

func (r *principals) UpdateStatus(_ context.Context, id string, st domain.PrincipalStatus) error {
	defer (*Store)(r).lock()()
	p, ok := r.d.principals[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = st
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *principals) UpdatePasswordHash(_ context.Context, id, hash string) error {
	defer (*Store)(r).lock()()
	p, ok := r.d.principals[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.PasswordHash = hash
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *principals) AddRole(_ context.Context, id string, role domain.Role) error {
	defer (*Store)(r).lock()()
	p, ok := r.d.principals[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, have := range p.Roles {
		if have == role {
			return domain.ErrConflict
		}
	}
	p.Roles = append(p.Roles, role)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *principals) RemoveRole(_ context.Context, id string, role domain.Role) error {
	defer (*Store)(r).lock()()
	p, ok := r.d.principals[id]
	if !ok {
		return domain.ErrNotFound
	}
	for i, have := range p.Roles {
		if have == role {
			p.Roles = append(p.Roles[:i], p.Roles[i+1:]...)
			p.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return domain.ErrConflict
}

func (r *principals) CountOtherActiveWithRole(_ context.Context, tenantID, excludeID string, role domain.Role) (int, error) {
	defer (*Store)(r).lock()()
	n := 0
	for _, p := range r.d.principals {
		if p.TenantID != tenantID || p.ID == excludeID || p.Status != domain.PrincipalActive {
			continue
		}
		for _, have := range p.Roles {
			if have == role {
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *principals) List(_ context.Context, tenantID string, after pagination.Cursor, limit int) ([]domain.Principal, error) {
	defer (*Store)(r).lock()()
	var rows []domain.Principal
	for _, p := range r.d.principals {
		if p.TenantID != tenantID {
			continue
		}
		if !after.After(p.Email, p.ID) {
			continue
		}
		rows = append(rows, *clonePrincipal(p))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Email != rows[j].Email {
			return rows[i].Email < rows[j].Email
		}
		return rows[i].ID < rows[j].ID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// ---- challenges ----

type challenges Store

func (r *challenges) Create(_ context.Context, c *domain.TFAChallenge) error {
	defer (*Store)(r).lock()()
	cp := *c
	r.d.challenges[c.ID] = &cp
	r.d.challengeIdx[c.TokenHash] = c.ID
	return nil
}

func (r *challenges) GetByTokenHash(_ context.Context, hash string) (*domain.TFAChallenge, error) {
	defer (*Store)(r).lock()()
	id, ok := r.d.challengeIdx[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r.d.challenges[id]
	return &cp, nil
}

func (r *challenges) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	defer (*Store)(r).lock()()
	n := 0
	for id, c := range r.d.challenges {
		if c.ExpiresAt.Before(before) {
			delete(r.d.challenges, id)
			delete(r.d.challengeIdx, c.TokenHash)
			n++
		}
	}
	return n, nil
}

// ---- sessions ----

type sessions Store

func cloneSession(s *domain.Session) *domain.Session {
	cp := *s
	if s.RevokedAt != nil {
		at := *s.RevokedAt
		cp.RevokedAt = &at
	}
	return &cp
}

func (r *sessions) Create(_ context.Context, s *domain.Session) error {
	defer (*Store)(r).lock()()
	r.d.sessions[s.ID] = cloneSession(s)
	r.d.sessionIdx[s.TokenHash] = s.ID
	return nil
}

func (r *sessions) GetByTokenHash(_ context.Context, hash string) (*domain.Session, error) {
	defer (*Store)(r).lock()()
	id, ok := r.d.sessionIdx[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSession(r.d.sessions[id]), nil
}

func (r *sessions) Revoke(_ context.Context, id string, at time.Time) error {
	defer (*Store)(r).lock()()
	s, ok := r.d.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if s.RevokedAt != nil {
		return domain.ErrConflict
	}
	t := at
	s.RevokedAt = &t
	return nil
}

func (r *sessions) RevokeAllForPrincipal(_ context.Context, principalID, exceptID string, at time.Time) ([]string, error) {
	defer (*Store)(r).lock()()
	var hashes []string
	for _, s := range r.d.sessions {
		if s.PrincipalID != principalID || s.ID == exceptID || s.RevokedAt != nil {
			continue
		}
		t := at
		s.RevokedAt = &t
		hashes = append(hashes, s.TokenHash)
	}
	return hashes, nil
}

func (r *sessions) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	defer (*Store)(r).lock()()
	n := 0
	for id, s := range r.d.sessions {
		if s.ExpiresAt.Before(before) {
			delete(r.d.sessions, id)
			delete(r.d.sessionIdx, s.TokenHash)
			n++
		}
	}
	return n, nil
}

// ---- tokens ----

type tokens Store

func cloneToken(t *domain.SingleUseToken) *domain.SingleUseToken {
	cp := *t
	cp.Roles = append([]domain.Role(nil), t.Roles...)
	if t.ConsumedAt != nil {
		at := *t.ConsumedAt
		cp.ConsumedAt = &at
	}
	return &cp
}

func (r *tokens) Create(_ context.Context, t *domain.SingleUseToken) error {
	defer (*Store)(r).lock()()
	r.d.tokens[t.ID] = cloneToken(t)
	r.d.tokenIdx[t.SecretHash] = t.ID
	return nil
}

func (r *tokens) GetBySecretHash(_ context.Context, hash string) (*domain.SingleUseToken, error) {
	defer (*Store)(r).lock()()
	id, ok := r.d.tokenIdx[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneToken(r.d.tokens[id]), nil
}

func (r *tokens) Consume(_ context.Context, id string, at time.Time) error {
	defer (*Store)(r).lock()()
	t, ok := r.d.tokens[id]
	if !ok {
		return domain.ErrNotFound
	}
	if t.ConsumedAt != nil {
		return domain.ErrConflict
	}
	ts := at
	t.ConsumedAt = &ts
	return nil
}

func (r *tokens) PendingSignupForDomain(_ context.Context, domainName string, now time.Time) (*domain.SingleUseToken, error) {
	defer (*Store)(r).lock()()
	for _, t := range r.d.tokens {
		if t.Purpose == domain.TokenSignup && t.Domain == domainName &&
			t.ConsumedAt == nil && now.Before(t.ExpiresAt) {
			return cloneToken(t), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *tokens) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	defer (*Store)(r).lock()()
	n := 0
	for id, t := range r.d.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.d.tokens, id)
			delete(r.d.tokenIdx, t.SecretHash)
			n++
		}
	}
	return n, nil
}

// ---- domains ----

type domains Store

func cloneClaim(c *domain.DomainClaim) *domain.DomainClaim {
	cp := *c
	if c.VerifiedAt != nil {
		at := *c.VerifiedAt
		cp.VerifiedAt = &at
	}
	return &cp
}

func (r *domains) Create(_ context.Context, c *domain.DomainClaim) error {
	defer (*Store)(r).lock()()
	if _, ok := r.d.domainIdx[c.Domain]; ok {
		return domain.ErrConflict
	}
	r.d.domains[c.ID] = cloneClaim(c)
	r.d.domainIdx[c.Domain] = c.ID
	return nil
}

func (r *domains) Delete(_ context.Context, id string) error {
	defer (*Store)(r).lock()()
	c, ok := r.d.domains[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.d.domains, id)
	delete(r.d.domainIdx, c.Domain)
	return nil
}

func (r *domains) GetByName(_ context.Context, domainName string) (*domain.DomainClaim, error) {
	defer (*Store)(r).lock()()
	id, ok := r.d.domainIdx[domainName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneClaim(r.d.domains[id]), nil
}

func (r *domains) GetForTenant(_ context.Context, tenantID, domainName string) (*domain.DomainClaim, error) {
	defer (*Store)(r).lock()()
	id, ok := r.d.domainIdx[domainName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := r.d.domains[id]
	if c.TenantID != tenantID {
		// No-propiedad indistinguible de inexistencia.
		return nil, domain.ErrNotFound
	}
	return cloneClaim(c), nil
}

func (r *domains) MarkVerified(_ context.Context, id string, at time.Time) error {
	defer (*Store)(r).lock()()
	c, ok := r.d.domains[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = domain.DomainVerified
	t := at
	c.VerifiedAt = &t
	return nil
}

func (r *domains) List(_ context.Context, tenantID string, after pagination.Cursor, limit int) ([]domain.DomainClaim, error) {
	defer (*Store)(r).lock()()
	var rows []domain.DomainClaim
	for _, c := range r.d.domains {
		if c.TenantID != tenantID {
			continue
		}
		if !after.After(c.Domain, c.ID) {
			continue
		}
		rows = append(rows, *cloneClaim(c))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Domain != rows[j].Domain {
			return rows[i].Domain < rows[j].Domain
		}
		return rows[i].ID < rows[j].ID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *domains) DeleteExpiredPending(_ context.Context, before time.Time) (int, error) {
	defer (*Store)(r).lock()()
	n := 0
	for id, c := range r.d.domains {
		if c.Status == domain.DomainPending && c.ExpiresAt.Before(before) {
			delete(r.d.domains, id)
			delete(r.d.domainIdx, c.Domain)
			n++
		}
	}
	return n, nil
}
