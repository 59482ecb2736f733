package invite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vetchium/idcore/internal/dnsx"
	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/email"
	"github.com/vetchium/idcore/internal/service/domainverify"
	"github.com/vetchium/idcore/internal/service/invite"
	"github.com/vetchium/idcore/internal/service/rbac"
	"github.com/vetchium/idcore/internal/store/memory"
)

const goodPassword = "Str0ng-Password-Aqui"

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	repo     *memory.Store
	mail     *email.Recorder
	clk      *clock
	resolver *dnsx.Static
	engine   *invite.Engine
	tenant   *domain.Tenant
	admin    *domain.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	mail := email.NewRecorder()
	clk := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	resolver := &dnsx.Static{Records: map[string][]string{}}

	domains := domainverify.New(domainverify.Deps{
		Repo: repo, Resolver: resolver, Notifier: mail, Clock: clk.now,
	})
	engine := invite.New(invite.Deps{
		Repo:     repo,
		RBAC:     rbac.New(rbac.Deps{Repo: repo}),
		Domains:  domains,
		Notifier: mail,
		Clock:    clk.now,
	})

	tenant := &domain.Tenant{
		ID:          uuid.NewString(),
		Kind:        domain.TenantAgency,
		DisplayName: "Acme Staffing",
		RegionCode:  "AGY1",
		CreatedAt:   clk.t,
	}
	if err := repo.Tenants().Create(context.Background(), tenant); err != nil {
		t.Fatal(err)
	}
	admin := &domain.Principal{
		ID:        uuid.NewString(),
		TenantID:  tenant.ID,
		Email:     "root@acme.test",
		Status:    domain.PrincipalActive,
		Roles:     []domain.Role{domain.RoleSuperAdmin},
		CreatedAt: clk.t,
		UpdatedAt: clk.t,
	}
	if err := repo.Principals().Create(context.Background(), admin); err != nil {
		t.Fatal(err)
	}
	return &fixture{repo: repo, mail: mail, clk: clk, resolver: resolver, engine: engine, tenant: tenant, admin: admin}
}

// inviteToken emite una invitación y devuelve el token que viajó por
// email.
func (f *fixture) inviteToken(t *testing.T, addr string, roles ...domain.Role) string {
	t.Helper()
	if _, err := f.engine.Invite(context.Background(), f.admin, addr, roles); err != nil {
		t.Fatalf("Invite(%s): %v", addr, err)
	}
	sent, ok := f.mail.LastTo(addr)
	if !ok || sent.Kind != email.KindInvite {
		t.Fatalf("no llegó el email de invitación a %s", addr)
	}
	return sent.Params["token"]
}

func TestInviteAuthorizationAndConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("email ya registrado", func(t *testing.T) {
		if _, err := f.engine.Invite(ctx, f.admin, "Root@Acme.Test", nil); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("err=%v, quiero ErrConflict", err)
		}
	})
	t.Run("actor sin capability", func(t *testing.T) {
		member := &domain.Principal{
			ID:       uuid.NewString(),
			TenantID: f.tenant.ID,
			Email:    "plain@acme.test",
			Status:   domain.PrincipalActive,
			Roles:    []domain.Role{domain.RoleMember},
		}
		if err := f.repo.Principals().Create(ctx, member); err != nil {
			t.Fatal(err)
		}
		if _, err := f.engine.Invite(ctx, member, "nueva@acme.test", nil); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("err=%v, quiero ErrForbidden", err)
		}
	})
	t.Run("invite_users alcanza sin superadmin", func(t *testing.T) {
		recruiter := &domain.Principal{
			ID:       uuid.NewString(),
			TenantID: f.tenant.ID,
			Email:    "hr@acme.test",
			Status:   domain.PrincipalActive,
			Roles:    []domain.Role{domain.RoleInviteUsers},
		}
		if err := f.repo.Principals().Create(ctx, recruiter); err != nil {
			t.Fatal(err)
		}
		if _, err := f.engine.Invite(ctx, recruiter, "nueva@acme.test", nil); err != nil {
			t.Fatal(err)
		}
	})
	t.Run("rol desconocido", func(t *testing.T) {
		if _, err := f.engine.Invite(ctx, f.admin, "otra@acme.test", []domain.Role{domain.RoleAdmin}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err=%v", err)
		}
	})
	t.Run("email malformado", func(t *testing.T) {
		if _, err := f.engine.Invite(ctx, f.admin, "sin-arroba", nil); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err=%v", err)
		}
	})
}

func TestCompleteSetupSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.inviteToken(t, "ana@acme.test", domain.RoleManageDomains)

	// Input inválido se rechaza ANTES de consultar el token.
	if _, err := f.engine.CompleteSetup(ctx, "token-basura", "corta", "Ana"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err=%v, quiero ErrInvalidInput", err)
	}
	if _, err := f.engine.CompleteSetup(ctx, token, goodPassword, "   "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("nombre vacío: err=%v", err)
	}

	p, err := f.engine.CompleteSetup(ctx, token, goodPassword, "Ana García")
	if err != nil {
		t.Fatalf("CompleteSetup: %v", err)
	}
	if !p.IsActive() {
		t.Fatal("la cuenta debe quedar activa")
	}
	if !p.HasRole(domain.RoleManageDomains) || !p.HasRole(domain.RoleMember) {
		t.Fatalf("roles %v: faltan los de la invitación o el default member", p.Roles)
	}

	// El mismo token otra vez: Unauthorized, nunca Conflict.
	_, err = f.engine.CompleteSetup(ctx, token, goodPassword, "Ana García")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("segundo canje: err=%v, quiero ErrUnauthorized", err)
	}
}

func TestCompleteSetupFailureKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Dos invitaciones vivas para el mismo email: la segunda compite con
	// una cuenta que la primera ya creó.
	first := f.inviteToken(t, "dup@acme.test")
	second := f.inviteToken(t, "dup@acme.test")

	if _, err := f.engine.CompleteSetup(ctx, first, goodPassword, "Primera"); err != nil {
		t.Fatalf("primer alta: %v", err)
	}

	if _, err := f.engine.CompleteSetup(ctx, second, goodPassword, "Segunda"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err=%v, quiero ErrConflict", err)
	}
	// El intento fallido NO quema el token: el reintento vuelve a chocar
	// con el email tomado, nunca con un token consumido.
	if _, err := f.engine.CompleteSetup(ctx, second, goodPassword, "Segunda"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("reintento: err=%v, quiero ErrConflict otra vez", err)
	}
}

func TestCompleteSetupExpiredToken(t *testing.T) {
	f := newFixture(t)
	token := f.inviteToken(t, "ana@acme.test")

	f.clk.advance(8 * 24 * time.Hour) // InviteTTL default 7d

	if _, err := f.engine.CompleteSetup(context.Background(), token, goodPassword, "Ana"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err=%v, quiero ErrUnauthorized", err)
	}
}

// signupEmails devuelve el token de signup y el valor TXT, verificando
// que viajaron en mensajes separados.
func (f *fixture) signupEmails(t *testing.T, addr string) (token, txtName, txtValue string) {
	t.Helper()
	var challenge, signup *email.Recorded
	for _, s := range f.mail.Sent() {
		s := s
		if s.Recipient != addr {
			continue
		}
		switch s.Kind {
		case email.KindDomainChallenge:
			challenge = &s
		case email.KindSignup:
			signup = &s
		}
	}
	if challenge == nil || signup == nil {
		t.Fatal("faltan emails del signup (desafío TXT y token)")
	}
	if signup.Params["txt_value"] != "" || challenge.Params["token"] != "" {
		t.Fatal("un mismo email no puede llevar ambos secretos")
	}
	return signup.Params["token"], challenge.Params["txt_name"], challenge.Params["txt_value"]
}

func TestSignupEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.InitSignup(ctx, "founder@widgets.example", "Widgets.Example", "Widgets Inc")
	if err != nil {
		t.Fatalf("InitSignup: %v", err)
	}
	if res.TXTName != "_vetchium-verify.widgets.example" {
		t.Fatalf("TXTName=%q", res.TXTName)
	}

	token, txtName, txtValue := f.signupEmails(t, "founder@widgets.example")

	complete := func(tok string) (*domain.Principal, error) {
		return f.engine.CompleteSignup(ctx, invite.CompleteSignupRequest{
			Token:      tok,
			Password:   goodPassword,
			FullName:   "Fundadora Widgets",
			Language:   "es",
			AcceptEULA: true,
			AckDNS:     true,
		})
	}

	// Sin TXT publicado: falla como violación de invariante y el token
	// sobrevive.
	if _, err := complete(token); !errors.Is(err, invite.ErrDomainUnverified) {
		t.Fatalf("err=%v, quiero ErrDomainUnverified", err)
	}
	if !errors.Is(invite.ErrDomainUnverified, domain.ErrInvariantViolation) {
		t.Fatal("ErrDomainUnverified debe mapear a InvariantViolation")
	}

	// Publicar el TXT y reintentar con el MISMO token.
	f.resolver.Records[txtName] = []string{txtValue}
	p, err := complete(token)
	if err != nil {
		t.Fatalf("reintento tras publicar TXT: %v", err)
	}
	if len(p.Roles) != 1 || p.Roles[0] != domain.RoleSuperAdmin {
		t.Fatalf("la primera cuenta debe tener superadmin en exclusiva: %v", p.Roles)
	}
	if p.Language != "es" || !p.IsActive() {
		t.Fatalf("cuenta inesperada: %+v", p)
	}

	// Ahora sí: el éxito consumió el token.
	if _, err := complete(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("tercer intento: err=%v, quiero ErrUnauthorized", err)
	}
}

func TestCompleteSignupValidationBeforeToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := invite.CompleteSignupRequest{
		Token:      "cualquiera",
		Password:   goodPassword,
		FullName:   "Alguien",
		Language:   "en",
		AcceptEULA: true,
		AckDNS:     true,
	}

	cases := []struct {
		name   string
		mutate func(*invite.CompleteSignupRequest)
	}{
		{"sin eula", func(r *invite.CompleteSignupRequest) { r.AcceptEULA = false }},
		{"sin ack dns", func(r *invite.CompleteSignupRequest) { r.AckDNS = false }},
		{"password débil", func(r *invite.CompleteSignupRequest) { r.Password = "abc" }},
		{"idioma no soportado", func(r *invite.CompleteSignupRequest) { r.Language = "xx" }},
		{"nombre vacío", func(r *invite.CompleteSignupRequest) { r.FullName = " " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			if _, err := f.engine.CompleteSignup(ctx, req); !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("err=%v, quiero ErrInvalidInput", err)
			}
		})
	}
}

func TestInitSignupClaimedDomainFailsBeforeAnyWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// El dominio ya es de otro tenant.
	if err := f.repo.Domains().Create(ctx, &domain.DomainClaim{
		ID:        uuid.NewString(),
		TenantID:  f.tenant.ID,
		Domain:    "taken.example",
		Status:    domain.DomainVerified,
		ExpiresAt: f.clk.t.Add(72 * time.Hour),
		CreatedAt: f.clk.t,
	}); err != nil {
		t.Fatal(err)
	}

	before := len(f.mail.Sent())
	if _, err := f.engine.InitSignup(ctx, "intrusa@taken.example", "taken.example", "Intrusa"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err=%v, quiero ErrConflict", err)
	}
	// Rechazo temprano: ni emails ni estado nuevo por intento.
	if got := len(f.mail.Sent()); got != before {
		t.Fatalf("se enviaron %d emails durante el rechazo", got-before)
	}
}

func TestOnePendingSignupPerDomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.InitSignup(ctx, "a@widgets.example", "widgets.example", "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.InitSignup(ctx, "b@widgets.example", "widgets.example", "B"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("segundo signup pendiente: err=%v, quiero ErrConflict", err)
	}

	// Expirado el token de signup, el dominio queda libre de nuevo
	// (el claim de dominio expira después, así que también se libera).
	f.clk.advance(80 * time.Hour)
	if _, err := f.engine.InitSignup(ctx, "c@widgets.example", "widgets.example", "C"); err != nil {
		t.Fatalf("signup tras expiración: %v", err)
	}
}
