package domainverify_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vetchium/idcore/internal/dnsx"
	"github.com/vetchium/idcore/internal/domain"
	"github.com/vetchium/idcore/internal/email"
	"github.com/vetchium/idcore/internal/pagination"
	"github.com/vetchium/idcore/internal/service/domainverify"
	"github.com/vetchium/idcore/internal/store/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	repo     *memory.Store
	mail     *email.Recorder
	clk      *clock
	resolver *dnsx.Static
	engine   *domainverify.Engine
	tenant   *domain.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	mail := email.NewRecorder()
	clk := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	resolver := &dnsx.Static{Records: map[string][]string{}}

	engine := domainverify.New(domainverify.Deps{
		Repo:     repo,
		Resolver: resolver,
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
	return &fixture{repo: repo, mail: mail, clk: clk, resolver: resolver, engine: engine, tenant: tenant}
}

// claim reclama el dominio y devuelve el valor TXT que salió por email.
func (f *fixture) claim(t *testing.T, tenantID, name string) (txtName, txtValue string) {
	t.Helper()
	res, err := f.engine.ClaimDomain(context.Background(), tenantID, name, "ops@acme.test")
	if err != nil {
		t.Fatalf("ClaimDomain(%s): %v", name, err)
	}
	sent, ok := f.mail.LastTo("ops@acme.test")
	if !ok || sent.Kind != email.KindDomainChallenge {
		t.Fatal("no salió el email con el desafío TXT")
	}
	return res.TXTName, sent.Params["txt_value"]
}

func TestClaimAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txtName, txtValue := f.claim(t, f.tenant.ID, "Acme.Example.")
	if txtName != "_vetchium-verify.acme.example" {
		t.Fatalf("nombre TXT %q", txtName)
	}

	// Sin registro publicado: PENDING, no error.
	st, err := f.engine.VerifyDomain(ctx, f.tenant.ID, "acme.example")
	if err != nil || st != domain.DomainPending {
		t.Fatalf("VerifyDomain sin TXT: %v %v", st, err)
	}

	// Registro publicado con valores basura alrededor del correcto.
	f.resolver.Records[txtName] = []string{"otro-valor", txtValue, "mas-ruido"}
	st, err = f.engine.VerifyDomain(ctx, f.tenant.ID, "acme.example")
	if err != nil || st != domain.DomainVerified {
		t.Fatalf("VerifyDomain con TXT: %v %v", st, err)
	}

	// Re-verificación idempotente, incluso si el registro desaparece.
	delete(f.resolver.Records, txtName)
	st, err = f.engine.VerifyDomain(ctx, f.tenant.ID, "acme.example")
	if err != nil || st != domain.DomainVerified {
		t.Fatalf("re-verificación: %v %v", st, err)
	}

	st, err = f.engine.GetDomainStatus(ctx, f.tenant.ID, "acme.example")
	if err != nil || st != domain.DomainVerified {
		t.Fatalf("GetDomainStatus: %v %v", st, err)
	}
}

func TestClaimResponseNeverLeaksSecret(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.ClaimDomain(context.Background(), f.tenant.ID, "acme.example", "ops@acme.test")
	if err != nil {
		t.Fatal(err)
	}
	sent, _ := f.mail.LastTo("ops@acme.test")
	secret := sent.Params["txt_value"]
	if secret == "" {
		t.Fatal("el email debe llevar el valor TXT")
	}
	if res.TXTName == secret || res.ClaimID == secret {
		t.Fatal("la respuesta del claim filtra el secreto")
	}
}

func TestResolverErrorDegradesToPending(t *testing.T) {
	f := newFixture(t)
	f.claim(t, f.tenant.ID, "acme.example")

	f.resolver.Err = errors.New("dns timeout")
	st, err := f.engine.VerifyDomain(context.Background(), f.tenant.ID, "acme.example")
	if err != nil {
		t.Fatalf("un timeout del resolver no puede ser fatal: %v", err)
	}
	if st != domain.DomainPending {
		t.Fatalf("status=%v, quiero PENDING", st)
	}
}

func TestClaimConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txtName, txtValue := f.claim(t, f.tenant.ID, "acme.example")

	other := &domain.Tenant{ID: uuid.NewString(), Kind: domain.TenantAgency, CreatedAt: f.clk.t}
	if err := f.repo.Tenants().Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	t.Run("pending bloquea a cualquier tenant", func(t *testing.T) {
		if _, err := f.engine.ClaimDomain(ctx, other.ID, "acme.example", "x@other.test"); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("err=%v", err)
		}
		if _, err := f.engine.ClaimDomain(ctx, f.tenant.ID, "acme.example", "ops@acme.test"); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("re-claim propio: err=%v", err)
		}
	})

	t.Run("verified bloquea para siempre", func(t *testing.T) {
		f.resolver.Records[txtName] = []string{txtValue}
		if _, err := f.engine.VerifyDomain(ctx, f.tenant.ID, "acme.example"); err != nil {
			t.Fatal(err)
		}
		f.clk.advance(100 * 24 * time.Hour)
		if _, err := f.engine.ClaimDomain(ctx, other.ID, "acme.example", "x@other.test"); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("err=%v", err)
		}
	})
}

func TestClaimable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Libre: nil, y no crea nada.
	if err := f.engine.Claimable(ctx, "libre.example"); err != nil {
		t.Fatalf("dominio libre: %v", err)
	}
	if _, err := f.repo.Domains().GetByName(ctx, "libre.example"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Claimable no debe persistir claims: %v", err)
	}

	txtName, txtValue := f.claim(t, f.tenant.ID, "acme.example")

	t.Run("pending vivo bloquea", func(t *testing.T) {
		if err := f.engine.Claimable(ctx, "acme.example"); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("err=%v, quiero ErrConflict", err)
		}
	})

	t.Run("pending expirado no bloquea", func(t *testing.T) {
		f.clk.advance(73 * time.Hour) // ClaimTTL default 72h
		if err := f.engine.Claimable(ctx, "acme.example"); err != nil {
			t.Fatalf("err=%v", err)
		}
		f.clk.advance(-73 * time.Hour)
	})

	t.Run("verified bloquea para siempre", func(t *testing.T) {
		f.resolver.Records[txtName] = []string{txtValue}
		if _, err := f.engine.VerifyDomain(ctx, f.tenant.ID, "acme.example"); err != nil {
			t.Fatal(err)
		}
		f.clk.advance(365 * 24 * time.Hour)
		if err := f.engine.Claimable(ctx, "acme.example"); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("nombre malformado", func(t *testing.T) {
		if err := f.engine.Claimable(ctx, "sin-punto"); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err=%v", err)
		}
	})
}

func TestExpiredPendingClaimIsReleased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.claim(t, f.tenant.ID, "acme.example")

	f.clk.advance(73 * time.Hour) // ClaimTTL default 72h

	other := &domain.Tenant{ID: uuid.NewString(), Kind: domain.TenantAgency, CreatedAt: f.clk.t}
	if err := f.repo.Tenants().Create(ctx, other); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.ClaimDomain(ctx, other.ID, "acme.example", "x@other.test"); err != nil {
		t.Fatalf("el claim expirado debía liberarse: %v", err)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.claim(t, f.tenant.ID, "acme.example")

	intruder := &domain.Tenant{ID: uuid.NewString(), Kind: domain.TenantAgency, CreatedAt: f.clk.t}
	if err := f.repo.Tenants().Create(ctx, intruder); err != nil {
		t.Fatal(err)
	}

	// Nunca Forbidden ni el estado real: sólo NotFound.
	if _, err := f.engine.VerifyDomain(ctx, intruder.ID, "acme.example"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("VerifyDomain ajeno: err=%v", err)
	}
	if _, err := f.engine.GetDomainStatus(ctx, intruder.ID, "acme.example"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetDomainStatus ajeno: err=%v", err)
	}
	if _, err := f.engine.GetDomainStatus(ctx, f.tenant.ID, "no-reclamado.example"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("dominio sin reclamar: err=%v", err)
	}
}

func TestListDomainsPaginated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		f.claim(t, f.tenant.ID, fmt.Sprintf("site%02d.example", i))
	}

	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := f.engine.ListDomains(ctx, f.tenant.ID, pagination.Request{Limit: 10, Cursor: cursor})
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range page.Items {
			if seen[c.Domain] {
				t.Fatalf("dominio %s repetido", c.Domain)
			}
			seen[c.Domain] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 25 {
		t.Fatalf("vistos %d dominios, quiero 25", len(seen))
	}
}
